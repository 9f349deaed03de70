package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
probes:
  - name: tsc
    command: ["yarn", "tsc", "--noEmit"]
    timeout_seconds: 60
    format: tsc
  - name: eslint
    command: ["yarn", "lint"]
rules:
  - id: var-to-let
    pattern: "var "
    replacement: "let "
    description: modernize declarations
  - id: wrap-interval
    kind: regex
    pattern: 'setInterval\((\w+),'
    replacement: 'setInterval(() => void $1(),'
    file_filter_glob: "src/**/*.ts"
candidates:
  root: .
  exclude:
    - "node_modules/**"
backup:
  strategy: file_copy
max_files: 10
`

func TestLoad_YAML(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, ".fixrc.yaml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o644))

	cfg, err := Load(ctx, path)
	require.NoError(t, err)

	require.Len(t, cfg.Probes, 2)
	assert.Equal(t, "tsc", cfg.Probes[0].Name)
	assert.Equal(t, 60, cfg.Probes[0].TimeoutSeconds)
	assert.Equal(t, "tsc", cfg.Probes[0].Format)
	// Defaults applied
	assert.Equal(t, DefaultTimeoutSeconds, cfg.Probes[1].TimeoutSeconds)
	assert.Equal(t, "unix", cfg.Probes[1].Format)

	require.Len(t, cfg.Rules, 2)
	assert.Equal(t, "literal", cfg.Rules[0].Kind)
	assert.Equal(t, "regex", cfg.Rules[1].Kind)

	assert.Equal(t, "file_copy", cfg.Backup.Strategy)
	assert.Equal(t, filepath.Join(DefaultStateDir, "backups"), cfg.Backup.Dir)
	assert.Equal(t, 10, cfg.MaxFiles)
	assert.Equal(t, DefaultStateDir, cfg.StateDir)
}

func TestLoad_JSON(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "fixrc.json")
	data := `{
  "probes": [{"name": "tsc", "command": ["tsc", "--noEmit"], "format": "tsc"}],
  "rules": [{"id": "a", "pattern": "old", "replacement": "new"}],
  "backup": {"strategy": "git_stash"}
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "git_stash", cfg.Backup.Strategy)
	require.Len(t, cfg.Probes, 1)
	assert.Equal(t, []string{"tsc", "--noEmit"}, cfg.Probes[0].Command)
}

func TestLoad_HCL(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, ".fixrc.hcl")
	data := `
probe "tsc" {
  command = ["yarn", "tsc", "--noEmit"]
  format  = "tsc"
}

rule "var-to-let" {
  pattern     = "var "
  replacement = "let "
}

candidates {
  root  = "."
  files = ["src/a.ts", "src/b.ts"]
}

max_files = 5
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(ctx, path)
	require.NoError(t, err)
	require.Len(t, cfg.Probes, 1)
	assert.Equal(t, "tsc", cfg.Probes[0].Name)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "var-to-let", cfg.Rules[0].ID)
	assert.Equal(t, []string{"src/a.ts", "src/b.ts"}, cfg.Candidates.Files)
	assert.Equal(t, 5, cfg.MaxFiles)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(cfg *Config)
		wantError string
	}{
		{
			name:      "no_probes",
			mutate:    func(cfg *Config) { cfg.Probes = nil },
			wantError: "at least one probe",
		},
		{
			name:      "probe_without_command",
			mutate:    func(cfg *Config) { cfg.Probes[0].Command = nil },
			wantError: "command is required",
		},
		{
			name:      "unknown_probe_format",
			mutate:    func(cfg *Config) { cfg.Probes[0].Format = "sarif" },
			wantError: "unknown format",
		},
		{
			name:      "no_rules",
			mutate:    func(cfg *Config) { cfg.Rules = nil },
			wantError: "at least one rule",
		},
		{
			name:      "duplicate_rule_id",
			mutate:    func(cfg *Config) { cfg.Rules = append(cfg.Rules, cfg.Rules[0]) },
			wantError: "duplicate id",
		},
		{
			name:      "unknown_backup_strategy",
			mutate:    func(cfg *Config) { cfg.Backup.Strategy = "tarball" },
			wantError: "unknown strategy",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Probes: []ProbeConfig{{Name: "p", Command: []string{"true"}}},
				Rules:  []RuleConfig{{ID: "r", Pattern: "a", Replacement: "b"}},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantError)
		})
	}
}

func TestLoad_NoParser(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o644))

	_, err := Load(ctx, path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no parser found")
}
