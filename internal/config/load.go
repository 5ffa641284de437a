// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"

	"grimm.is/streamgate/internal/errors"
)

// evalContext exposes a few host facts to HCL expressions, so a config can
// say e.g. `listen = "${hostname}:9035"`.
func evalContext() *hcl.EvalContext {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"hostname": cty.StringVal(hostname),
			"env":      envValue(),
		},
	}
}

func envValue() cty.Value {
	vars := map[string]cty.Value{}
	for _, kv := range os.Environ() {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				vars[kv[:i]] = cty.StringVal(kv[i+1:])
				break
			}
		}
	}
	if len(vars) == 0 {
		return cty.EmptyObjectVal
	}
	return cty.ObjectVal(vars)
}

// Load reads, decodes and validates an HCL config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindNotFound, "failed to read config file")
	}
	return Parse(data, path)
}

// Parse decodes and validates HCL config bytes. The filename is used only
// in diagnostics.
func Parse(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to parse config")
	}

	cfg := &Config{}
	if diags := gohcl.DecodeBody(file.Body, evalContext(), cfg); diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to decode config")
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Workers == 0 {
		cfg.Workers = 1
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
