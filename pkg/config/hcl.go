package config

import (
	"context"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gitlab.com/tozd/go/errors"
)

// 🔧 HCLParser implements the Parser interface for HCL files
type HCLParser struct{}

func init() {
	Register(&HCLParser{})
}

func (p *HCLParser) CanParse(filename string) bool {
	return strings.HasSuffix(filename, ".hcl")
}

// hclConfig mirrors Config with block-structured fields for gohcl decoding
type hclConfig struct {
	Probes     []ProbeConfig    `hcl:"probe,block"`
	Rules      []RuleConfig     `hcl:"rule,block"`
	Candidates *CandidateConfig `hcl:"candidates,block"`
	Backup     *BackupConfig    `hcl:"backup,block"`
	MaxFiles   int              `hcl:"max_files,optional"`
	StateDir   string           `hcl:"state_dir,optional"`
}

func (p *HCLParser) Parse(ctx context.Context, data []byte) (*Config, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(data, "config.hcl")
	if diags.HasErrors() {
		return nil, errors.Errorf("parsing HCL: %s", diags.Error())
	}

	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{},
	}

	var raw hclConfig
	diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &raw)
	if diags.HasErrors() {
		return nil, errors.Errorf("decoding HCL: %s", diags.Error())
	}

	cfg := Config{
		Probes:   raw.Probes,
		Rules:    raw.Rules,
		MaxFiles: raw.MaxFiles,
		StateDir: raw.StateDir,
	}
	if raw.Candidates != nil {
		cfg.Candidates = *raw.Candidates
	}
	if raw.Backup != nil {
		cfg.Backup = *raw.Backup
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}
