package descriptor

import (
	"errors"
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/headless"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fragment = vk.ShaderStageFlags(vk.ShaderStageFragmentBit)

func materialLayout() *Layout {
	l := NewLayout()
	l.AddStorageBuffer("materials", 0, fragment)
	l.AddTexture("albedo", 1, fragment)
	l.AddImage("output", 2, vk.ShaderStageFlags(vk.ShaderStageComputeBit))
	l.AddTextureArray("textures", 3, 16, fragment)
	return l
}

func newTexture(t *testing.T, dev *headless.Device) metadata.Texture2d {
	t.Helper()
	tex, err := dev.CreateTexture2d(metadata.TextureDescriptor{
		Size:        math.NewVec2u(4, 4),
		PixelFormat: metadata.PixelFormat{Channel: metadata.ChannelFormatByte, NumChannels: 4},
	})
	require.NoError(t, err)
	return tex
}

func TestLayoutPoolSizes(t *testing.T) {
	l := materialLayout()
	assert.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 4},
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 68},
		{Type: vk.DescriptorTypeStorageImage, DescriptorCount: 4},
	}, l.PoolSizes(4))

	texturesOnly := NewLayout()
	texturesOnly.AddTexture("a", 0, fragment)
	assert.Equal(t, []vk.DescriptorPoolSize{
		{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: 3},
	}, texturesOnly.PoolSizes(3))
}

func TestLayoutBindings(t *testing.T) {
	l := materialLayout()
	b := l.Bindings()
	require.Len(t, b, 4)
	assert.Equal(t, uint32(3), b[3].Binding)
	assert.Equal(t, uint32(16), b[3].DescriptorCount)
	assert.Equal(t, vk.DescriptorTypeStorageImage, b[2].DescriptorType)
}

func TestLayoutRejectsBadBindings(t *testing.T) {
	l := NewLayout()
	assert.Panics(t, func() { l.AddTexture("", 0, fragment) })

	l.AddTexture("albedo", 0, fragment)
	assert.Panics(t, func() { l.AddStorageBuffer("materials", 0, fragment) })
}

func TestCloseTwiceIsFatal(t *testing.T) {
	dev := headless.New()
	l := materialLayout()
	_, err := l.Close(dev, 2)
	require.NoError(t, err)
	assert.True(t, l.IsClosed())

	assert.Panics(t, func() { _, _ = l.Close(dev, 2) })
	assert.Panics(t, func() { l.AddTexture("late", 9, fragment) })
}

func TestCloseAllocatesSets(t *testing.T) {
	dev := headless.New()
	pool, err := materialLayout().Close(dev, 3)
	require.NoError(t, err)
	require.Equal(t, 3, pool.Len())

	seen := map[metadata.DescriptorSet]bool{}
	for i := uint32(0); i < 3; i++ {
		set := pool.Set(i)
		assert.True(t, set.IsValid())
		seen[set] = true
	}
	assert.Len(t, seen, 3)
	assert.Panics(t, func() { pool.Set(3) })
}

func TestPoolFromOpenLayoutIsFatal(t *testing.T) {
	assert.Panics(t, func() { _, _ = NewPool(headless.New(), materialLayout(), 1) })
}

func TestUpdateResolvesNamesToLayoutPositions(t *testing.T) {
	dev := headless.New()
	pool, err := materialLayout().Close(dev, 2)
	require.NoError(t, err)

	buf, err := dev.Allocator().CreateGpuBuffer(64, vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit), dev.GraphicsQueueFamily())
	require.NoError(t, err)
	albedo := newTexture(t, dev)
	output := newTexture(t, dev)

	NewUpdate(pool, 1).
		AddImage("output", output).
		AddTexture("albedo", albedo).
		AddStorageBuffer("materials", buf).
		Send()

	assert.Equal(t, 1, dev.Stats().DescriptorUpdates)

	w, ok := dev.DescriptorBinding(pool.Set(1), 0)
	require.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, w.Type)
	assert.Equal(t, []metadata.GPUBuffer{buf}, w.Buffers)

	w, ok = dev.DescriptorBinding(pool.Set(1), 1)
	require.True(t, ok)
	assert.Equal(t, []metadata.Texture2d{albedo}, w.Textures)

	w, ok = dev.DescriptorBinding(pool.Set(1), 2)
	require.True(t, ok)
	assert.Equal(t, vk.DescriptorTypeStorageImage, w.Type)
	assert.Equal(t, []metadata.Texture2d{output}, w.Textures)

	_, ok = dev.DescriptorBinding(pool.Set(0), 1)
	assert.False(t, ok)
}

func TestUpdateWritesAreOrdered(t *testing.T) {
	dev := headless.New()
	l := NewLayout()
	for i, name := range []string{"e", "d", "c", "b", "a"} {
		l.AddTexture(name, uint32(10-i), fragment)
	}
	pool, err := l.Close(dev, 1)
	require.NoError(t, err)

	tex := newTexture(t, dev)
	u := NewUpdate(pool, 0)
	for _, name := range []string{"c", "a", "e", "b", "d"} {
		u.AddTexture(name, tex)
	}
	var bindings []uint32
	for _, w := range u.Writes() {
		bindings = append(bindings, w.Binding)
	}
	assert.Equal(t, []uint32{6, 7, 8, 9, 10}, bindings)
}

func TestUpdateUnknownNameIsFatal(t *testing.T) {
	dev := headless.New()
	pool, err := materialLayout().Close(dev, 1)
	require.NoError(t, err)
	u := NewUpdate(pool, 0)

	assert.Panics(t, func() { u.AddTexture("normals", metadata.Texture2d{ID: 1}) })
	// Names are per category.
	assert.Panics(t, func() { u.AddTexture("materials", metadata.Texture2d{ID: 1}) })
	assert.Panics(t, func() { u.AddStorageBuffer("albedo", metadata.GPUBuffer{ID: 1}) })
}

func TestEmptyUpdateSendsNothing(t *testing.T) {
	dev := headless.New()
	pool, err := materialLayout().Close(dev, 1)
	require.NoError(t, err)
	NewUpdate(pool, 0).Send()
	assert.Zero(t, dev.Stats().DescriptorUpdates)
}

func TestWriteArrayTexture(t *testing.T) {
	dev := headless.New()
	pool, err := materialLayout().Close(dev, 1)
	require.NoError(t, err)

	pool.WriteArrayTextureToDescriptor(0, "textures", nil)
	assert.Zero(t, dev.Stats().DescriptorUpdates)

	textures := []metadata.Texture2d{newTexture(t, dev), newTexture(t, dev), newTexture(t, dev)}
	pool.WriteArrayTextureToDescriptor(0, "textures", textures)
	assert.Equal(t, 1, dev.Stats().DescriptorUpdates)

	w, ok := dev.DescriptorBinding(pool.Set(0), 3)
	require.True(t, ok)
	assert.Equal(t, 3, w.Count())
	assert.Equal(t, textures, w.Textures)

	assert.Panics(t, func() { pool.WriteArrayTextureToDescriptor(0, "albedo", textures) })
}

func TestLayoutServesSeveralPools(t *testing.T) {
	dev := headless.New()
	l := materialLayout()
	_, err := l.Close(dev, 2)
	require.NoError(t, err)

	second, err := NewPool(dev, l, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, second.Len())
	second.Destroy()
	assert.Equal(t, 0, second.Len())
}

type failingAllocator struct {
	*headless.Device
}

func (f failingAllocator) AllocateDescriptorSets(metadata.DescriptorPool, metadata.DescriptorSetLayout, uint32) ([]metadata.DescriptorSet, error) {
	return nil, core.ErrOutOfMemory
}

func TestCloseReportsAllocationFailure(t *testing.T) {
	_, err := materialLayout().Close(failingAllocator{headless.New()}, 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutOfMemory))
}
