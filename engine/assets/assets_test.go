package assets

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineShaderKind(t *testing.T) {
	tests := []struct {
		path string
		kind ShaderKind
	}{
		{"shaders/fullScreen.vert.spv", ShaderKindSPIRV},
		{"shaders/tonemap.frag", ShaderKindGLSL},
		{"shaders/common.glsl", ShaderKindGLSL},
		{"shaders/zPrePass.fx", ShaderKindEffect},
		{"shaders/readme.md", ShaderKindNone},
		{"shaders/noext", ShaderKindNone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.kind, DetermineShaderKind(tt.path))
		})
	}
}

func spirv(words ...uint32) []byte {
	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}
	return out
}

func TestShaderLoader(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ok.spv"), spirv(SpirvMagic, 0x00010000, 7), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.spv"), spirv(0xdeadbeef), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "odd.spv"), []byte{1, 2, 3, 4, 5}, 0o644))

	loader := ShaderLoader{Dir: dir}
	words, err := loader.Load("ok.spv")
	require.NoError(t, err)
	assert.Equal(t, []uint32{SpirvMagic, 0x00010000, 7}, words)

	_, err = loader.Load("bad.spv")
	assert.True(t, errors.Is(err, core.ErrResourceCreation))
	_, err = loader.Load("odd.spv")
	assert.True(t, errors.Is(err, core.ErrResourceCreation))
	_, err = loader.Load("missing.spv")
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestShaderWatcherIndexesExistingShaders(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "post"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.spv"), spirv(SpirvMagic), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "post", "b.fx"), []byte("fx"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	w, err := NewShaderWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(dir))

	assert.Equal(t, []string{filepath.Join(dir, "a.spv"), filepath.Join(dir, "post", "b.fx")}, w.Shaders())
	info, ok := w.Shader(filepath.Join(dir, "post", "b.fx"))
	require.True(t, ok)
	assert.Equal(t, ShaderKindEffect, info.Kind)
	assert.Zero(t, w.Poll(), "indexing is not a change")
}

func TestShaderWatcherReportsChanges(t *testing.T) {
	dir := t.TempDir()
	w, err := NewShaderWatcher()
	require.NoError(t, err)
	defer w.Close()
	require.NoError(t, w.Watch(dir))

	var reloaded []string
	w.OnReload(func(path string) { reloaded = append(reloaded, path) })

	target := filepath.Join(dir, "tonemap.frag.spv")
	require.NoError(t, os.WriteFile(target, spirv(SpirvMagic), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		w.Poll()
		return len(reloaded) > 0
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, target, reloaded[0])
	for _, p := range reloaded {
		assert.Equal(t, target, p)
	}
}

func TestShaderWatcherClose(t *testing.T) {
	w, err := NewShaderWatcher()
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	assert.Error(t, w.Watch(t.TempDir()))
}
