// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// configFile is the layout of a configuration file.
// Absent attributes keep their default values.
type configFile struct {
	Frames        *int    `hcl:"frames,optional"`
	StagingSize   *int64  `hcl:"staging_size,optional"`
	MaxNodes      *int    `hcl:"max_nodes,optional"`
	DescSets      *int    `hcl:"desc_sets,optional"`
	Loaders       *int    `hcl:"loaders,optional"`
	BatchBarriers *bool   `hcl:"batch_barriers,optional"`
	Driver        *string `hcl:"driver,optional"`
}

// EvalContext returns the context in which configuration
// expressions are evaluated.
// It defines the variables kib, mib, min_frames and
// max_frames.
func EvalContext() *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"kib":        cty.NumberIntVal(1 << 10),
			"mib":        cty.NumberIntVal(1 << 20),
			"min_frames": cty.NumberIntVal(MinFrame),
			"max_frames": cty.NumberIntVal(MaxFrame),
		},
	}
}

// LoadConfig reads a configuration file in HCL format.
func LoadConfig(path string) (Config, error) {
	f, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("engine: failed to parse config file %s: %w", path, diags)
	}
	return decodeConfig(f, path)
}

// ParseConfig parses a configuration in HCL format.
// filename is used in diagnostics.
func ParseConfig(src []byte, filename string) (Config, error) {
	f, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("engine: failed to parse config %s: %w", filename, diags)
	}
	return decodeConfig(f, filename)
}

func decodeConfig(f *hcl.File, filename string) (Config, error) {
	var cf configFile
	if diags := gohcl.DecodeBody(f.Body, EvalContext(), &cf); diags.HasErrors() {
		return Config{}, fmt.Errorf("engine: failed to decode config %s: %w", filename, diags)
	}
	c := DefaultConfig()
	if cf.Frames != nil {
		c.Frames = *cf.Frames
	}
	if cf.StagingSize != nil {
		c.StagingSize = *cf.StagingSize
	}
	if cf.MaxNodes != nil {
		c.MaxNodes = *cf.MaxNodes
	}
	if cf.DescSets != nil {
		c.DescSets = *cf.DescSets
	}
	if cf.Loaders != nil {
		c.Loaders = *cf.Loaders
	}
	if cf.BatchBarriers != nil {
		c.BatchBarriers = *cf.BatchBarriers
	}
	if cf.Driver != nil {
		c.Driver = *cf.Driver
	}
	if err := c.Validate(); err != nil {
		return Config{}, fmt.Errorf("%w (in %s)", err, filename)
	}
	return c, nil
}
