// Copyright 2023 Gustavo C. Viegas. All rights reserved.

package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	require.Equal(t, 2, c.Frames)
	require.Equal(t, int64(4<<20), c.StagingSize)
	require.Equal(t, 256, c.MaxNodes)
	require.False(t, c.BatchBarriers)
}

func TestValidate(t *testing.T) {
	for _, x := range [...]func(*Config){
		func(c *Config) { c.Frames = MinFrame - 1 },
		func(c *Config) { c.Frames = MaxFrame + 1 },
		func(c *Config) { c.StagingSize = 0 },
		func(c *Config) { c.MaxNodes = -1 },
		func(c *Config) { c.DescSets = 0 },
		func(c *Config) { c.Loaders = 0 },
	} {
		c := DefaultConfig()
		x(&c)
		require.Error(t, c.Validate())
	}
}

func TestParseConfig(t *testing.T) {
	src := `
frames         = max_frames
staging_size   = 2 * mib
desc_sets      = 16
batch_barriers = true
driver         = "soft"
`
	c, err := ParseConfig([]byte(src), "test.hcl")
	require.NoError(t, err)
	want := DefaultConfig()
	want.Frames = MaxFrame
	want.StagingSize = 2 << 20
	want.DescSets = 16
	want.BatchBarriers = true
	want.Driver = "soft"
	require.Equal(t, want, c)
}

func TestParseConfigEmpty(t *testing.T) {
	c, err := ParseConfig(nil, "empty.hcl")
	require.NoError(t, err)
	require.Equal(t, DefaultConfig(), c)
}

func TestParseConfigInvalid(t *testing.T) {
	for _, src := range []string{
		`frames = 1`,
		`staging_size = 0`,
		`frames = "two"`,
		`unknown = 1`,
		`frames = `,
	} {
		_, err := ParseConfig([]byte(src), "bad.hcl")
		require.Error(t, err, src)
		require.Contains(t, err.Error(), "engine: ")
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgraph.hcl")
	require.NoError(t, os.WriteFile(path, []byte("loaders = 4\nmax_nodes = 64 * 2\n"), 0o644))
	c, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 4, c.Loaders)
	require.Equal(t, 128, c.MaxNodes)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}
