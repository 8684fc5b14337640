package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spaghettifunk/revolution/engine/config"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/raster"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCubeGeometry(t *testing.T) {
	positions, uvs, indices := cubeGeometry(0.5)
	require.Len(t, positions, 24)
	require.Len(t, uvs, 24)
	require.Len(t, indices, 36)
	for _, p := range positions {
		assert.InDelta(t, 0.5, max(abs(p.X), abs(p.Y), abs(p.Z)), 1e-6)
	}
	for _, i := range indices {
		assert.Less(t, i, uint32(24))
	}
}

func abs(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestBuildSceneCentersItems(t *testing.T) {
	heap := raster.NewHeap()
	items := buildScene(heap, 3)
	require.Len(t, items, 3)
	assert.Equal(t, 1, heap.NumMeshes())
	assert.Equal(t, float32(-1.5), items[0].World.Data[12])
	assert.Equal(t, float32(0), items[1].World.Data[12])
	assert.Equal(t, float32(1.5), items[2].World.Data[12])
	for _, it := range items {
		assert.Equal(t, uint32(0), it.Mesh)
	}
	assert.Equal(t, math.NewVec3(0, 0, -4).Z, items[1].World.Data[14])
}

func TestEngineRendersHeadlessFrames(t *testing.T) {
	cfg := config.Default()
	cfg.Frames = 4
	cfg.Target.Width = 64
	cfg.Target.Height = 32
	cfg.Debug.PreviewDir = t.TempDir()
	cfg.Debug.PreviewScale = 2

	e, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Initialize())
	require.NoError(t, e.Run())

	assert.Equal(t, uint64(4), e.frame)
	stats := e.Stats()
	assert.Zero(t, stats.LockedTextures)
	assert.Zero(t, stats.LockedFrameBuffers)
	// Targets are reused from the cache instead of growing every frame.
	assert.LessOrEqual(t, stats.Textures, 3)

	for _, name := range []string{"output.png", "depth.png"} {
		info, err := os.Stat(filepath.Join(cfg.Debug.PreviewDir, name))
		require.NoError(t, err)
		assert.NotZero(t, info.Size())
	}
	require.NoError(t, e.Shutdown())
}

func TestRunBeforeInitializePanics(t *testing.T) {
	e, err := New(config.Default())
	require.NoError(t, err)
	assert.Panics(t, func() { _ = e.Run() })
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Backend = "metal"
	_, err := New(cfg)
	assert.Error(t, err)
}
