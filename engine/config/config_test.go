package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revolution.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
log_level = "debug"
frames = 10

[target]
width = 640
anti_alias = "msaa4x"

[shaders]
watch = true

[debug]
preview_dir = "out"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 10, cfg.Frames)
	assert.Equal(t, math.NewVec2u(640, 720), cfg.TargetSize())
	assert.Equal(t, metadata.AntiAliasMSAA4x, cfg.AntiAlias())
	assert.True(t, cfg.Shaders.Watch)
	assert.Equal(t, "assets/shaders", cfg.Shaders.Dir)
	assert.Equal(t, "out", cfg.Debug.PreviewDir)
	assert.Equal(t, BackendHeadless, cfg.Backend)
}

func TestDecodeRejects(t *testing.T) {
	tests := []struct {
		name string
		toml string
	}{
		{"unknown key", `colour = "red"`},
		{"unknown backend", `backend = "metal"`},
		{"bad level", `log_level = "loud"`},
		{"zero frames", `frames = 0`},
		{"empty target", "[target]\nheight = 0"},
		{"bad anti alias", "[target]\nanti_alias = \"fxaa\""},
		{"msaa on vulkan", "backend = \"vulkan\"\n[target]\nanti_alias = \"msaa4x\""},
		{"zero pool", "[descriptors]\npool_size = 0"},
		{"syntax", `frames = `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			assert.Error(t, Decode([]byte(tt.toml), &cfg))
		})
	}
}
