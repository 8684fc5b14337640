package headless

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransfersCompleteInIssueOrder(t *testing.T) {
	dev := New(WithTransferLatency(2))
	alloc := dev.Allocator()

	buf, err := alloc.CreateGpuBuffer(8, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), 0)
	require.NoError(t, err)

	first, err := alloc.AsyncTransfer(buf, []byte{1, 2, 3, 4}, 0)
	require.NoError(t, err)
	second, err := alloc.AsyncTransfer(buf, []byte{5, 6, 7, 8}, 4)
	require.NoError(t, err)
	assert.Less(t, first, second)

	require.NoError(t, alloc.SubmitTransfers())
	assert.False(t, alloc.IsTransferFinished(first))

	require.NoError(t, dev.RenderQueue().Present())
	assert.False(t, alloc.IsTransferFinished(second))

	require.NoError(t, dev.RenderQueue().Present())
	assert.True(t, alloc.IsTransferFinished(first))
	assert.True(t, alloc.IsTransferFinished(second))

	data, ok := dev.allocator.BufferData(buf)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8}, data)
}

func TestDestroyedBufferDropsItsTransfers(t *testing.T) {
	dev := New()
	alloc := dev.Allocator()
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)

	big, err := alloc.CreateGpuBuffer(64, usage, 0)
	require.NoError(t, err)
	token, err := alloc.AsyncTransfer(big, make([]byte, 16), 32)
	require.NoError(t, err)
	alloc.DestroyGpuBuffer(big)

	small, err := alloc.CreateGpuBuffer(16, usage, 0)
	require.NoError(t, err)
	require.Equal(t, big.ID, small.ID)

	assert.NotPanics(t, func() { require.NoError(t, alloc.SubmitTransfers()) })
	assert.True(t, alloc.IsTransferFinished(token))
	data, ok := dev.allocator.BufferData(small)
	require.True(t, ok)
	assert.Equal(t, make([]byte, 16), data)
}

func TestDestroyedBufferDropsInFlightTransfers(t *testing.T) {
	dev := New(WithTransferLatency(1))
	alloc := dev.Allocator()
	usage := vk.BufferUsageFlags(vk.BufferUsageTransferDstBit)

	a, err := alloc.CreateGpuBuffer(4, usage, 0)
	require.NoError(t, err)
	_, err = alloc.AsyncTransfer(a, []byte{9, 9, 9, 9}, 0)
	require.NoError(t, err)
	require.NoError(t, alloc.SubmitTransfers())
	alloc.DestroyGpuBuffer(a)

	b, err := alloc.CreateGpuBuffer(4, usage, 0)
	require.NoError(t, err)
	require.NoError(t, dev.RenderQueue().Present())

	data, ok := dev.allocator.BufferData(b)
	require.True(t, ok)
	assert.Equal(t, []byte{0, 0, 0, 0}, data)
	assert.Zero(t, dev.allocator.PendingTransfers())
}

func TestTransferOverflowIsAnError(t *testing.T) {
	dev := New()
	buf, err := dev.Allocator().CreateGpuBuffer(4, vk.BufferUsageFlags(vk.BufferUsageTransferDstBit), 0)
	require.NoError(t, err)

	_, err = dev.Allocator().AsyncTransfer(buf, make([]byte, 8), 0)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)

	_, err = dev.Allocator().AsyncTransfer(metadata.GPUBuffer{ID: 42}, []byte{1}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidHandle)
}

func TestTextureBudget(t *testing.T) {
	dev := New(WithTextureBudget(1))
	desc := metadata.TextureDescriptor{Size: math.NewVec2u(4, 4), PixelFormat: metadata.PixelFormat{NumChannels: 4}}

	tex, err := dev.CreateTexture2d(desc)
	require.NoError(t, err)
	_, err = dev.CreateTexture2d(desc)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)

	dev.DestroyTexture2d(tex)
	_, err = dev.CreateTexture2d(desc)
	assert.NoError(t, err)
	assert.Equal(t, 2, dev.Stats().TexturesCreated)
}

func TestClearWritesIntoBoundTarget(t *testing.T) {
	dev := New()
	tex, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: math.NewVec2u(8, 8), PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)
	fb, err := dev.CreateFrameBuffer(metadata.FrameBufferDescriptor{
		Attachments: []metadata.FrameBufferAttachment{{Target: metadata.AttachmentTargetColor, Texture: tex}},
	})
	require.NoError(t, err)

	cb, err := dev.CreateCommandBuffer()
	require.NoError(t, err)
	cb.BindFrameBuffer(fb)
	cb.ClearColor(math.NewVec4(1, 0, 0, 1))
	require.NoError(t, dev.RenderQueue().SubmitCommandBuffer(cb))

	img, err := dev.Preview(tex, 2)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())
	r, g, _, a := img.At(1, 1).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), g)
	assert.Equal(t, uint32(0xffff), a)
}

func TestDescriptorPoolExhaustion(t *testing.T) {
	dev := New()
	layout, err := dev.CreateDescriptorSetLayout([]vk.DescriptorSetLayoutBinding{{
		Binding:         0,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		DescriptorCount: 1,
	}})
	require.NoError(t, err)
	pool, err := dev.CreateDescriptorPool(2, []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 2}})
	require.NoError(t, err)

	sets, err := dev.AllocateDescriptorSets(pool, layout, 2)
	require.NoError(t, err)
	assert.Len(t, sets, 2)

	_, err = dev.AllocateDescriptorSets(pool, layout, 1)
	assert.ErrorIs(t, err, core.ErrOutOfMemory)
}
