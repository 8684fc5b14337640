package rendergraph

import (
	"testing"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/headless"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, opts ...headless.Option) (*headless.Device, *FrameBufferCache) {
	t.Helper()
	dev := headless.New(opts...)
	cache, err := NewFrameBufferCache(dev)
	require.NoError(t, err)
	return dev, cache
}

var rgba512 = BufferDesc{Size: math.NewVec2u(512, 512), Format: metadata.BufferFormatRGBA8, AntiAlias: metadata.AntiAliasNone}

func TestCacheReusesTextureAfterFreeResources(t *testing.T) {
	dev, cache := newTestCache(t)

	first, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	cache.FreeResources()
	second, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dev.Stats().TexturesCreated)
}

func TestCacheReusesFrameBufferAfterFreeResources(t *testing.T) {
	dev, cache := newTestCache(t)
	tex, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	desc := metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: tex}}}

	first, err := cache.RequestFrameBuffer(desc)
	require.NoError(t, err)
	cache.FreeResources()
	desc.Name = "renamed"
	second, err := cache.RequestFrameBuffer(desc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, dev.Stats().FrameBuffersCreated)
}

func TestCacheGrowsToPeakLockedRequests(t *testing.T) {
	dev, cache := newTestCache(t)

	for frame := 0; frame < 5; frame++ {
		a, err := cache.RequestTargetTexture(rgba512)
		require.NoError(t, err)
		b, err := cache.RequestTargetTexture(rgba512)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
		if frame == 2 {
			_, err := cache.RequestTargetTexture(rgba512)
			require.NoError(t, err)
		}
		cache.FreeResources()
	}
	assert.Equal(t, 3, dev.Stats().TexturesCreated)
	assert.Equal(t, 3, cache.Stats().Textures)
}

func TestCacheExactMatchOnly(t *testing.T) {
	dev, cache := newTestCache(t)
	_, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	cache.FreeResources()

	smaller := rgba512
	smaller.Size = math.NewVec2u(256, 256)
	_, err = cache.RequestTargetTexture(smaller)
	require.NoError(t, err)

	msaa := rgba512
	msaa.AntiAlias = metadata.AntiAliasMSAA4x
	_, err = cache.RequestTargetTexture(msaa)
	require.NoError(t, err)

	assert.Equal(t, 3, dev.Stats().TexturesCreated)
}

func TestFreeResourcesIsIdempotent(t *testing.T) {
	_, cache := newTestCache(t)
	_, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)

	cache.FreeResources()
	once := cache.Stats()
	cache.FreeResources()
	assert.Equal(t, once, cache.Stats())
	assert.Zero(t, once.LockedTextures)
}

func TestFreeTextureUnlocksSingleEntry(t *testing.T) {
	dev, cache := newTestCache(t)
	a, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	b, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)

	cache.FreeTexture(a)
	assert.Equal(t, 1, cache.Stats().LockedTextures)

	c, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	assert.Equal(t, a, c)
	assert.NotEqual(t, b, c)
	assert.Equal(t, 2, dev.Stats().TexturesCreated)
}

func TestTargetTextureDescriptor(t *testing.T) {
	dev, cache := newTestCache(t)

	tests := []struct {
		format   metadata.BufferFormat
		depth    bool
		srgb     bool
		channel  metadata.ChannelFormat
		channels uint8
	}{
		{metadata.BufferFormatRGBA8, false, false, metadata.ChannelFormatByte, 4},
		{metadata.BufferFormatSRGBA8, false, true, metadata.ChannelFormatByte, 4},
		{metadata.BufferFormatRGBA32, false, false, metadata.ChannelFormatFloat32, 4},
		{metadata.BufferFormatDepth24, true, false, metadata.ChannelFormatFloat32, 1},
		{metadata.BufferFormatDepth32, true, false, metadata.ChannelFormatFloat32, 1},
	}
	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			tex, err := cache.RequestTargetTexture(BufferDesc{Size: math.NewVec2u(64, 32), Format: tt.format})
			require.NoError(t, err)
			desc, ok := dev.TextureDescriptor(tex)
			require.True(t, ok)
			assert.Equal(t, tt.depth, desc.Depth)
			assert.Equal(t, tt.srgb, desc.SRGB)
			assert.Equal(t, tt.channel, desc.PixelFormat.Channel)
			assert.Equal(t, tt.channels, desc.PixelFormat.NumChannels)
			assert.Equal(t, uint32(1), desc.MipLevels)
			assert.Equal(t, cache.sampler, desc.Sampler)
		})
	}
}

func TestEvictTextureDropsFrameBuffersOfExternalTexture(t *testing.T) {
	dev, cache := newTestCache(t)
	target, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	external, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: math.NewVec2u(512, 512), PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)

	_, err = cache.RequestFrameBuffer(metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: target}, {Texture: external}}})
	require.NoError(t, err)
	_, err = cache.RequestFrameBuffer(metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: target}}})
	require.NoError(t, err)
	cache.FreeResources()

	assert.Equal(t, 1, cache.EvictTexture(external))
	assert.Equal(t, 1, cache.Stats().FrameBuffers)
	assert.Equal(t, 1, dev.Stats().LiveFrameBuffers)
	assert.Zero(t, cache.EvictTexture(external))
	dev.DestroyTexture2d(external)

	replacement, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: math.NewVec2u(512, 512), PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)
	_, err = cache.RequestFrameBuffer(metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: target}, {Texture: replacement}}})
	require.NoError(t, err)
	assert.Equal(t, 3, dev.Stats().FrameBuffersCreated)
}

func TestEvictLockedFrameBufferIsFatal(t *testing.T) {
	dev, cache := newTestCache(t)
	external, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: math.NewVec2u(8, 8), PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)
	_, err = cache.RequestFrameBuffer(metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: external}}})
	require.NoError(t, err)

	assert.Panics(t, func() { cache.EvictTexture(external) })
}

func TestDeallocateResourcesDestroysEverything(t *testing.T) {
	dev, cache := newTestCache(t)
	tex, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)
	_, err = cache.RequestFrameBuffer(metadata.FrameBufferDescriptor{Attachments: []metadata.FrameBufferAttachment{{Texture: tex}}})
	require.NoError(t, err)

	cache.DeallocateResources()
	assert.Equal(t, CacheStats{}, cache.Stats())
	assert.Zero(t, dev.Stats().LiveTextures)
	assert.Zero(t, dev.Stats().LiveFrameBuffers)
}

func TestCacheReportsDeviceFailures(t *testing.T) {
	_, cache := newTestCache(t, headless.WithTextureBudget(1))
	_, err := cache.RequestTargetTexture(rgba512)
	require.NoError(t, err)

	tex, err := cache.RequestTargetTexture(rgba512)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
	assert.False(t, tex.IsValid())
	assert.Equal(t, 1, cache.Stats().Textures)
}
