// Copyright 2025 walteh LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// 🔌 Parser is the interface for config parsers
type Parser interface {
	// 📝 Parse parses the config from bytes
	Parse(ctx context.Context, data []byte) (*Config, error)

	// 🔍 CanParse checks if this parser can handle the given file
	CanParse(filename string) bool
}

var (
	// 🗺️ parsers is a list of available parsers
	parsers []Parser
)

// 📝 Register registers a parser
func Register(p Parser) {
	parsers = append(parsers, p)
}

// 🎯 GetParser returns a parser that can handle the given file
func GetParser(filename string) Parser {
	for _, p := range parsers {
		if p.CanParse(filename) {
			return p
		}
	}
	return nil
}

// 🔬 ProbeConfig describes one external checker invocation
type ProbeConfig struct {
	Name           string   `json:"name" yaml:"name" hcl:"name,label"`
	Command        []string `json:"command" yaml:"command" hcl:"command"`
	TimeoutSeconds int      `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" hcl:"timeout_seconds,optional"`
	Format         string   `json:"format,omitempty" yaml:"format,omitempty" hcl:"format,optional"` // "tsc" or "unix"
}

// 🔄 RuleConfig represents one ordered rewrite rule
type RuleConfig struct {
	ID             string `json:"id" yaml:"id" hcl:"id,label"`
	Kind           string `json:"kind,omitempty" yaml:"kind,omitempty" hcl:"kind,optional"` // "literal" or "regex"
	Pattern        string `json:"pattern" yaml:"pattern" hcl:"pattern"`
	Replacement    string `json:"replacement" yaml:"replacement" hcl:"replacement"`
	Description    string `json:"description,omitempty" yaml:"description,omitempty" hcl:"description,optional"`
	FileFilterGlob string `json:"file_filter_glob,omitempty" yaml:"file_filter_glob,omitempty" hcl:"file_filter_glob,optional"`
}

// 🎯 CandidateConfig controls how files are picked for a batch
type CandidateConfig struct {
	Root    string   `json:"root,omitempty" yaml:"root,omitempty" hcl:"root,optional"`
	Files   []string `json:"files,omitempty" yaml:"files,omitempty" hcl:"files,optional"` // static allow-list mode
	Include []string `json:"include,omitempty" yaml:"include,omitempty" hcl:"include,optional"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty" hcl:"exclude,optional"`
}

// 💾 BackupConfig selects the rollback strategy
type BackupConfig struct {
	Strategy string `json:"strategy,omitempty" yaml:"strategy,omitempty" hcl:"strategy,optional"` // "file_copy" or "git_stash"
	Dir      string `json:"dir,omitempty" yaml:"dir,omitempty" hcl:"dir,optional"`
}

// 📚 Config represents the complete configuration
type Config struct {
	Probes     []ProbeConfig   `json:"probes" yaml:"probes" hcl:"probe,block"`
	Rules      []RuleConfig    `json:"rules" yaml:"rules" hcl:"rule,block"`
	Candidates CandidateConfig `json:"candidates,omitempty" yaml:"candidates,omitempty" hcl:"candidates,block"`
	Backup     BackupConfig    `json:"backup,omitempty" yaml:"backup,omitempty" hcl:"backup,block"`
	MaxFiles   int             `json:"max_files,omitempty" yaml:"max_files,omitempty" hcl:"max_files,optional"`
	StateDir   string          `json:"state_dir,omitempty" yaml:"state_dir,omitempty" hcl:"state_dir,optional"`
}

const (
	DefaultTimeoutSeconds = 45
	DefaultStateDir       = ".fixrc"
	DefaultBackupStrategy = "file_copy"
)

// 🎯 Load loads the configuration from a file
func Load(ctx context.Context, path string) (*Config, error) {
	logger := zerolog.Ctx(ctx)
	logger.Debug().Str("path", path).Msg("loading configuration")

	// Read config file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading config file: %w", err)
	}

	// Get parser
	p := GetParser(path)
	if p == nil {
		return nil, errors.Errorf("no parser found for file: %s", path)
	}

	// Parse config
	cfg, err := p.Parse(ctx, data)
	if err != nil {
		return nil, errors.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// 🔍 Validate checks the configuration and fills in defaults
func (cfg *Config) Validate() error {
	if len(cfg.Probes) == 0 {
		return errors.Errorf("at least one probe is required")
	}
	for i := range cfg.Probes {
		p := &cfg.Probes[i]
		if len(p.Command) == 0 {
			return errors.Errorf("probe %q: command is required", p.Name)
		}
		if p.TimeoutSeconds <= 0 {
			p.TimeoutSeconds = DefaultTimeoutSeconds
		}
		switch p.Format {
		case "":
			p.Format = "unix"
		case "tsc", "unix":
		default:
			return errors.Errorf("probe %q: unknown format %q", p.Name, p.Format)
		}
	}

	if len(cfg.Rules) == 0 {
		return errors.Errorf("at least one rule is required")
	}
	seen := map[string]bool{}
	for i, r := range cfg.Rules {
		if r.ID == "" {
			return errors.Errorf("rule %d: id is required", i)
		}
		if seen[r.ID] {
			return errors.Errorf("rule %q: duplicate id", r.ID)
		}
		seen[r.ID] = true
		if r.Pattern == "" {
			return errors.Errorf("rule %q: pattern is required", r.ID)
		}
		switch r.Kind {
		case "":
			cfg.Rules[i].Kind = "literal"
		case "literal", "regex":
		default:
			return errors.Errorf("rule %q: unknown kind %q", r.ID, r.Kind)
		}
	}

	switch cfg.Backup.Strategy {
	case "":
		cfg.Backup.Strategy = DefaultBackupStrategy
	case "file_copy", "git_stash":
	default:
		return errors.Errorf("backup: unknown strategy %q", cfg.Backup.Strategy)
	}

	if cfg.StateDir == "" {
		cfg.StateDir = DefaultStateDir
	}
	if cfg.Backup.Dir == "" {
		cfg.Backup.Dir = filepath.Join(cfg.StateDir, "backups")
	}
	if cfg.Candidates.Root == "" {
		cfg.Candidates.Root = "."
	}
	cfg.StateDir = filepath.Clean(cfg.StateDir)
	cfg.Backup.Dir = filepath.Clean(cfg.Backup.Dir)
	cfg.Candidates.Root = filepath.Clean(cfg.Candidates.Root)

	return nil
}

// 📝 String returns a string representation of the config
func (cfg *Config) String() string {
	names := make([]string, 0, len(cfg.Probes))
	for _, p := range cfg.Probes {
		names = append(names, p.Name)
	}
	return fmt.Sprintf("probes=[%s] rules=%d strategy=%s", strings.Join(names, ","), len(cfg.Rules), cfg.Backup.Strategy)
}

// 🔧 YAMLParser implements the Parser interface for YAML files
type YAMLParser struct{}

func init() {
	Register(&YAMLParser{})
}

func (p *YAMLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".yaml") || strings.HasSuffix(filename, ".yml")
}

func (p *YAMLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, errors.Errorf("parsing YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
