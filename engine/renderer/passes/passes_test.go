package passes

import (
	"testing"

	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/headless"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/spaghettifunk/revolution/engine/renderer/raster"
	"github.com/spaghettifunk/revolution/engine/renderer/rendergraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"honnef.co/go/safeish"
)

var targetSize = math.NewVec2u(64, 32)

func newFullScreen(t *testing.T, dev *headless.Device) *FullScreenPass {
	t.Helper()
	p, err := NewFullScreenPass(dev, FullScreenPassConfig{
		FragmentShader:   "tonemap.frag.spv",
		ColorFormat:      metadata.BufferFormatRGBA8,
		PushConstantSize: 16,
	})
	require.NoError(t, err)
	return p
}

func newTarget(t *testing.T, dev *headless.Device) metadata.FrameBuffer {
	t.Helper()
	tex, err := dev.CreateTexture2d(metadata.TextureDescriptor{
		Size:        targetSize,
		PixelFormat: metadata.PixelFormat{Channel: metadata.ChannelFormatByte, NumChannels: 4},
	})
	require.NoError(t, err)
	fb, err := dev.CreateFrameBuffer(metadata.FrameBufferDescriptor{
		Attachments: []metadata.FrameBufferAttachment{{Texture: tex}},
	})
	require.NoError(t, err)
	return fb
}

func TestFullScreenPassSkipsUntilUploaded(t *testing.T) {
	dev := headless.New(headless.WithTransferLatency(1))
	p := newFullScreen(t, dev)
	target := newTarget(t, dev)

	cb := &headless.CommandBuffer{}
	require.NoError(t, p.Begin(cb, target, targetSize, nil, metadata.DescriptorSet{}))
	assert.False(t, p.Render(cb))
	p.End(cb)
	assert.Zero(t, cb.Count(headless.OpDrawIndexed))
	assert.Zero(t, cb.Count(headless.OpClearColor))

	require.NoError(t, dev.Allocator().SubmitTransfers())
	require.NoError(t, dev.RenderQueue().Present())

	cb = &headless.CommandBuffer{}
	clear := math.NewVec4(0, 0, 0, 1)
	require.NoError(t, p.Begin(cb, target, targetSize, &clear, metadata.DescriptorSet{}))
	assert.True(t, p.Render(cb))
	p.End(cb)

	ops := make([]headless.CommandOp, len(cb.Commands))
	for i, c := range cb.Commands {
		ops[i] = c.Op
	}
	assert.Equal(t, []headless.CommandOp{
		headless.OpBindFrameBuffer,
		headless.OpSetViewport,
		headless.OpSetScissor,
		headless.OpClearColor,
		headless.OpBindPipeline,
		headless.OpBindIndexBuffer,
		headless.OpDrawIndexed,
	}, ops)
	assert.Equal(t, uint32(3), cb.Commands[6].Count)

	data, ok := dev.Allocator().(*headless.Allocator).BufferData(cb.Commands[5].Buffer)
	require.True(t, ok)
	assert.Equal(t, []uint32{0, 1, 2}, safeish.SliceCast[[]uint32](data))
}

func TestFullScreenPassRebuildsInvalidatedPipeline(t *testing.T) {
	dev := headless.New()
	p := newFullScreen(t, dev)
	first := p.Pipeline()

	cb := &headless.CommandBuffer{}
	require.NoError(t, p.Bind(cb, metadata.DescriptorSet{ID: 3}))
	assert.Equal(t, first, p.Pipeline())
	assert.Equal(t, 1, dev.Stats().PipelinesCreated)

	p.InvalidateShaders()
	require.NoError(t, p.Bind(cb, metadata.DescriptorSet{ID: 3}))
	assert.NotEqual(t, first, p.Pipeline())
	assert.Equal(t, 2, dev.Stats().PipelinesCreated)
	assert.Equal(t, 2, cb.Count(headless.OpBindDescriptorSet))
	assert.Equal(t, p.Pipeline(), cb.Commands[len(cb.Commands)-2].Pipeline)
}

func TestFullScreenPassPushConstantLimit(t *testing.T) {
	dev := headless.New()
	p := newFullScreen(t, dev)
	cb := &headless.CommandBuffer{}
	p.PushConstants(cb, make([]byte, 16))
	assert.Equal(t, 1, cb.Count(headless.OpPushConstants))
	assert.Panics(t, func() { p.PushConstants(cb, make([]byte, 17)) })
}

func TestFullScreenPassBeginEndPairing(t *testing.T) {
	dev := headless.New()
	p := newFullScreen(t, dev)
	target := newTarget(t, dev)
	cb := &headless.CommandBuffer{}

	assert.Panics(t, func() { p.End(cb) })
	require.NoError(t, p.Begin(cb, target, targetSize, nil, metadata.DescriptorSet{}))
	assert.Panics(t, func() { _ = p.Begin(cb, target, targetSize, nil, metadata.DescriptorSet{}) })
}

func TestFullScreenPassRequiresShader(t *testing.T) {
	assert.Panics(t, func() { _, _ = NewFullScreenPass(headless.New(), FullScreenPassConfig{}) })
}

func TestFullScreenPassDestroy(t *testing.T) {
	dev := headless.New()
	p := newFullScreen(t, dev)
	assert.Equal(t, 1, dev.Stats().LiveBuffers)
	p.Destroy()
	assert.Zero(t, dev.Stats().LiveBuffers)
	assert.False(t, p.Pipeline().IsValid())
}

func newHeap(t *testing.T, dev *headless.Device) (*raster.Heap, metadata.StreamToken) {
	t.Helper()
	h := raster.NewHeap()
	positions := []math.Vec3{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	uvs := []math.Vec2{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 1}}
	h.AddPrimitiveData(positions, nil, nil, uvs, []uint32{0, 1, 2}, 0)
	h.AddPrimitiveData(positions, nil, nil, uvs, []uint32{0, 2, 3}, 0)
	h.AddMesh(raster.Mesh{FirstPrimitive: 0, EndPrimitive: 2})
	h.AddMesh(raster.Mesh{FirstPrimitive: 1, EndPrimitive: 2})
	token, err := h.CloseAndSubmit(dev, dev.Allocator())
	require.NoError(t, err)
	return h, token
}

func TestZPrePassRender(t *testing.T) {
	dev := headless.New()
	heap, token := newHeap(t, dev)
	sampler, err := NewDepthMapSampler(dev)
	require.NoError(t, err)
	depth, err := CreateDepthMapTexture(dev, targetSize, sampler)
	require.NoError(t, err)
	fb, err := CreateDepthBuffer(dev, depth)
	require.NoError(t, err)

	z, err := NewZPrePass(dev, heap, token, fb, targetSize)
	require.NoError(t, err)

	items := []RenderItem{
		{Mesh: 0, World: math.NewMat4Identity()},
		{Mesh: 1, World: math.NewMat4Translation(math.NewVec3(0, 0, -2))},
	}

	cb := &headless.CommandBuffer{}
	z.Render(math.NewMat4Identity(), items, cb)
	assert.Zero(t, cb.Count(headless.OpDrawIndexed), "geometry upload still pending")
	assert.Equal(t, 1, cb.Count(headless.OpClearDepth))

	require.NoError(t, dev.Allocator().SubmitTransfers())
	cb = &headless.CommandBuffer{}
	z.Render(math.NewMat4Identity(), items, cb)
	assert.Equal(t, 3, cb.Count(headless.OpDrawIndexed))
	assert.Equal(t, 2, cb.Count(headless.OpPushConstants))

	var draws []headless.Command
	var pushes []headless.Command
	for _, c := range cb.Commands {
		switch c.Op {
		case headless.OpDrawIndexed:
			draws = append(draws, c)
		case headless.OpPushConstants:
			pushes = append(pushes, c)
		}
	}
	assert.Equal(t, uint32(3), draws[1].First)
	assert.Equal(t, uint64(4), draws[2].Offset)
	assert.Len(t, pushes[1].Data, 64)
	assert.Equal(t, float32(-2), safeish.SliceCast[[]float32](pushes[1].Data)[14])

	require.NoError(t, dev.RenderQueue().SubmitCommandBuffer(cb))
	assert.Zero(t, dev.RenderQueue().(*headless.Queue).UnsafeDraws)

	desc, ok := dev.TextureDescriptor(depth)
	require.True(t, ok)
	assert.True(t, desc.Depth)
	assert.Equal(t, metadata.ChannelFormatFloat32, desc.PixelFormat.Channel)
}

func TestZPrePassResize(t *testing.T) {
	dev := headless.New()
	heap, token := newHeap(t, dev)
	z, err := NewZPrePass(dev, heap, token, metadata.FrameBuffer{}, targetSize)
	require.NoError(t, err)
	assert.Panics(t, func() { z.Render(math.NewMat4Identity(), nil, &headless.CommandBuffer{}) })

	bigger := math.NewVec2u(128, 64)
	sampler, err := NewDepthMapSampler(dev)
	require.NoError(t, err)
	tex, err := CreateDepthMapTexture(dev, bigger, sampler)
	require.NoError(t, err)
	require.NoError(t, z.OnResizeTarget(bigger, tex))
	assert.Equal(t, bigger, z.Size())
	first := z.FrameBuffer()

	tex2, err := CreateDepthMapTexture(dev, bigger, sampler)
	require.NoError(t, err)
	require.NoError(t, z.OnResizeTarget(bigger, tex2))
	assert.NotEqual(t, first, z.FrameBuffer())
	assert.Equal(t, 1, dev.Stats().LiveFrameBuffers)

	z.Destroy()
	assert.Zero(t, dev.Stats().LiveFrameBuffers)

	// Both depth maps share the one sampler.
	dev.DestroyTexture2d(tex)
	dev.DestroyTexture2d(tex2)
	assert.Equal(t, 1, dev.Stats().LiveSamplers)
	dev.DestroyTextureSampler(sampler)
	assert.Zero(t, dev.Stats().LiveSamplers)
}

func TestPassesInRenderGraph(t *testing.T) {
	dev := headless.New()
	heap, token := newHeap(t, dev)
	fs := newFullScreen(t, dev)
	require.NoError(t, dev.Allocator().SubmitTransfers())

	cache, err := rendergraph.NewFrameBufferCache(dev)
	require.NoError(t, err)
	g := rendergraph.New(dev, cache)

	z, err := NewZPrePass(dev, heap, token, metadata.FrameBuffer{}, targetSize)
	require.NoError(t, err)

	depth := z.AddToGraph(g, math.NewMat4Identity(), []RenderItem{{Mesh: 0, World: math.NewMat4Identity()}})
	var sampled metadata.Texture2d
	out := fs.AddToGraph(g, "resolve", targetSize, nil, metadata.DescriptorSet{}, nil)

	light := g.PassNamed("light", targetSize, metadata.AntiAliasNone)
	g.ReadDepth(light, 0, depth)
	g.ReadColor(light, 1, out)
	lit := g.WriteColor(light, metadata.BufferFormatRGBA32, 0, rendergraph.ReadModeClear, rendergraph.Attachment{})
	g.SetExecution(light, func(res rendergraph.Resources, _ renderer.CommandBuffer) {
		sampled = res.GetTexture(depth)
	})

	require.NoError(t, g.Run())
	assert.Equal(t, g.GetTexture(depth), sampled)
	assert.True(t, g.GetTexture(lit).IsValid())

	q := dev.RenderQueue().(*headless.Queue)
	require.Len(t, q.Submitted, 1)
	assert.Equal(t, 3, q.Submitted[0].Count(headless.OpDrawIndexed))
	assert.Equal(t, light, g.ExecutionOrder()[2])
}
