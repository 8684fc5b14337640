package rendergraph

import (
	"testing"

	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/headless"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var size512 = math.NewVec2u(512, 512)

func newTestGraph(t *testing.T) (*headless.Device, *FrameBufferCache, *RenderGraph) {
	t.Helper()
	dev, cache := newTestCache(t)
	return dev, cache, New(dev, cache)
}

func TestWriteVersionsIncrease(t *testing.T) {
	_, _, g := newTestGraph(t)

	var last Attachment
	for i := 0; i < 4; i++ {
		p := g.Pass(size512, metadata.AntiAliasNone)
		mode := ReadModeKeep
		if i == 0 {
			mode = ReadModeClear
		}
		next := g.WriteColor(p, metadata.BufferFormatRGBA8, 0, mode, last)
		assert.Greater(t, next.id, last.id)
		state := g.Resources().State(next)
		assert.Equal(t, uint32(i+1), state.WriteCounter)
		assert.Equal(t, 0, state.Resource)
		last = next
	}
	assert.Equal(t, 1, g.Resources().NumResources())
}

func TestDepthDoubleWriteIsFatal(t *testing.T) {
	_, _, g := newTestGraph(t)
	p := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteDepth(p, DepthFormatF32, ReadModeClear, Attachment{})

	assert.Panics(t, func() {
		g.WriteDepth(p, DepthFormatF32, ReadModeClear, Attachment{})
	})
}

func TestReadingUnknownAttachmentIsFatal(t *testing.T) {
	_, _, g := newTestGraph(t)
	p := g.Pass(size512, metadata.AntiAliasNone)

	assert.Panics(t, func() { g.ReadColor(p, 0, Attachment{}) })
	assert.Panics(t, func() { g.ReadColor(p, 0, Attachment{id: 99}) })
}

func TestStaleWriteIsFatal(t *testing.T) {
	_, _, g := newTestGraph(t)
	a := g.Pass(size512, metadata.AntiAliasNone)
	v1 := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	b := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)

	c := g.Pass(size512, metadata.AntiAliasNone)
	assert.Panics(t, func() {
		g.WriteColor(c, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)
	})
}

func TestReadAndWriteSameResourceIsFatal(t *testing.T) {
	_, _, g := newTestGraph(t)
	a := g.Pass(size512, metadata.AntiAliasNone)
	v1 := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	b := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadColor(b, 0, v1)
	assert.Panics(t, func() {
		g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)
	})
}

func TestCompileOrdersReadersBeforeOverwrite(t *testing.T) {
	_, _, g := newTestGraph(t)

	producer := g.PassNamed("producer", size512, metadata.AntiAliasNone)
	v1 := g.WriteColor(producer, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	accumulate := g.PassNamed("accumulate", size512, metadata.AntiAliasNone)
	g.WriteColor(accumulate, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)

	reader := g.PassNamed("reader", size512, metadata.AntiAliasNone)
	g.ReadColor(reader, 0, v1)
	g.WriteColor(reader, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	require.NoError(t, g.Compile())
	assert.Equal(t, []Pass{producer, reader, accumulate}, g.ExecutionOrder())
}

func TestCompileKeepsDeclarationOrderOfIndependentPasses(t *testing.T) {
	_, _, g := newTestGraph(t)
	var passes []Pass
	for i := 0; i < 3; i++ {
		p := g.Pass(size512, metadata.AntiAliasNone)
		g.WriteColor(p, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
		passes = append(passes, p)
	}
	require.NoError(t, g.Compile())
	assert.Equal(t, passes, g.ExecutionOrder())
}

func TestCompileRejectsCycles(t *testing.T) {
	_, _, g := newTestGraph(t)
	a := g.Pass(size512, metadata.AntiAliasNone)
	b := g.Pass(size512, metadata.AntiAliasNone)
	outA := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	outB := g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	g.ReadColor(a, 0, outB)
	g.ReadColor(b, 0, outA)

	assert.Panics(t, func() { _ = g.Compile() })
}

func TestCompileAliasesTransientTargets(t *testing.T) {
	dev, _, g := newTestGraph(t)

	a := g.Pass(size512, metadata.AntiAliasNone)
	t1 := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	b := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadColor(b, 0, t1)
	t2 := g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	c := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadColor(c, 0, t2)
	t3 := g.WriteColor(c, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	require.NoError(t, g.Compile())
	assert.Equal(t, 2, dev.Stats().TexturesCreated)
	assert.Equal(t, g.GetTexture(t1), g.GetTexture(t3))
	assert.NotEqual(t, g.GetTexture(t2), g.GetTexture(t3))
}

func TestUnreadOutputsKeepTheirTextures(t *testing.T) {
	dev, cache, g := newTestGraph(t)
	size := math.NewVec2u(4, 4)

	scene := g.PassNamed("scene", size, metadata.AntiAliasNone)
	g.SetClearColor(scene, math.NewVec4(1, 0, 0, 1))
	sceneOut := g.WriteColor(scene, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	ui := g.PassNamed("ui", size, metadata.AntiAliasNone)
	g.SetClearColor(ui, math.NewVec4(0, 0, 1, 1))
	uiOut := g.WriteColor(ui, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	require.NoError(t, g.Run())
	require.NotEqual(t, g.GetTexture(sceneOut), g.GetTexture(uiOut))
	assert.Equal(t, 2, cache.Stats().LockedTextures)

	img, err := dev.Preview(g.GetTexture(sceneOut), 1)
	require.NoError(t, err)
	r, _, b, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(0xffff), r)
	assert.Equal(t, uint32(0), b)

	cache.FreeResources()
	assert.Zero(t, cache.Stats().LockedTextures)
}

func TestCompileFailureUnlocksTextures(t *testing.T) {
	dev, cache := newTestCache(t, headless.WithTextureBudget(2))
	g := New(dev, cache)

	a := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	b := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	g.WriteDepth(b, DepthFormatF32, ReadModeClear, Attachment{})

	require.Error(t, g.Compile())
	assert.Zero(t, cache.Stats().LockedTextures)

	require.Error(t, g.Compile())
	assert.Zero(t, cache.Stats().LockedTextures)
	assert.Equal(t, 2, cache.Stats().Textures)
}

func TestGraphReusesTargetsAcrossFrames(t *testing.T) {
	dev, cache, g := newTestGraph(t)
	build := func() {
		g.Reset()
		z := g.Pass(size512, metadata.AntiAliasNone)
		depth := g.WriteDepth(z, DepthFormatF32, ReadModeClear, Attachment{})
		geo := g.Pass(size512, metadata.AntiAliasNone)
		g.ReadDepth(geo, 0, depth)
		g.WriteColor(geo, metadata.BufferFormatRGBA32, 0, ReadModeClear, Attachment{})
		require.NoError(t, g.Run())
		cache.FreeResources()
	}
	for frame := 0; frame < 4; frame++ {
		build()
	}
	assert.Equal(t, 2, dev.Stats().TexturesCreated)
	assert.Equal(t, 2, dev.Stats().FrameBuffersCreated)
	assert.Equal(t, 4, dev.Stats().Submissions)
}

func TestReadOnlyDepthIsAttached(t *testing.T) {
	dev, _, g := newTestGraph(t)
	z := g.Pass(size512, metadata.AntiAliasNone)
	depth := g.WriteDepth(z, DepthFormatF24, ReadModeClear, Attachment{})
	geo := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadDepth(geo, 1, depth)
	color := g.WriteColor(geo, metadata.BufferFormatSRGBA8, 0, ReadModeClear, Attachment{})

	require.NoError(t, g.Compile())
	desc, ok := dev.FrameBufferDescriptor(g.FrameBuffer(geo))
	require.True(t, ok)
	require.Len(t, desc.Attachments, 2)
	assert.Equal(t, g.GetTexture(color), desc.Attachments[0].Texture)
	assert.Equal(t, metadata.AttachmentTargetDepth, desc.Attachments[1].Target)
	assert.Equal(t, g.GetTexture(depth), desc.Attachments[1].Texture)
}

func TestRecordExecutionBindsAndClears(t *testing.T) {
	dev, _, g := newTestGraph(t)
	p := g.Pass(math.NewVec2u(320, 240), metadata.AntiAliasNone)
	g.SetClearColor(p, math.NewVec4(0, 0, 0.2, 1))
	out := g.WriteColor(p, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	g.WriteDepth(p, DepthFormatF32, ReadModeClear, Attachment{})

	var seen metadata.Texture2d
	g.SetExecution(p, func(res Resources, dst renderer.CommandBuffer) {
		seen = res.GetTexture(out)
		dst.Draw(3)
	})
	require.NoError(t, g.Compile())

	cb, err := dev.CreateCommandBuffer()
	require.NoError(t, err)
	g.RecordExecution(cb)

	cmds := cb.(*headless.CommandBuffer).Commands
	ops := make([]headless.CommandOp, len(cmds))
	for i, c := range cmds {
		ops[i] = c.Op
	}
	assert.Equal(t, []headless.CommandOp{
		headless.OpBindFrameBuffer,
		headless.OpSetViewport,
		headless.OpSetScissor,
		headless.OpClearColor,
		headless.OpClearDepth,
		headless.OpDraw,
	}, ops)
	assert.Equal(t, math.NewVec2u(320, 240), cmds[1].Size)
	assert.Equal(t, float32(1), cmds[4].Depth)
	assert.Equal(t, g.GetTexture(out), seen)
}

func TestKeepModeSkipsClear(t *testing.T) {
	dev, _, g := newTestGraph(t)
	a := g.Pass(size512, metadata.AntiAliasNone)
	v1 := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	b := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)
	require.NoError(t, g.Compile())

	cb, err := dev.CreateCommandBuffer()
	require.NoError(t, err)
	g.RecordExecution(cb)
	hcb := cb.(*headless.CommandBuffer)
	assert.Equal(t, 2, hcb.Count(headless.OpBindFrameBuffer))
	assert.Equal(t, 1, hcb.Count(headless.OpClearColor))
}

func TestExternalFrameBufferPass(t *testing.T) {
	dev, _, g := newTestGraph(t)
	backTex, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: size512, PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)
	backBuffer, err := dev.CreateFrameBuffer(metadata.FrameBufferDescriptor{
		Attachments: []metadata.FrameBufferAttachment{{Texture: backTex}},
	})
	require.NoError(t, err)

	scene := g.Pass(size512, metadata.AntiAliasNone)
	hdr := g.WriteColor(scene, metadata.BufferFormatRGBA32, 0, ReadModeClear, Attachment{})
	present := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadColor(present, 0, hdr)
	g.WriteFrameBuffer(present, backBuffer, ReadModeDontCare)

	assert.Panics(t, func() {
		g.WriteColor(present, metadata.BufferFormatRGBA8, 1, ReadModeDontCare, Attachment{})
	})

	require.NoError(t, g.Compile())
	assert.Equal(t, backBuffer, g.FrameBuffer(present))
	assert.Equal(t, 2, dev.Stats().FrameBuffersCreated)
}

func TestImportedTextureIsReadable(t *testing.T) {
	dev, _, g := newTestGraph(t)
	env, err := dev.CreateTexture2d(metadata.TextureDescriptor{Size: math.NewVec2u(16, 16), PixelFormat: metadata.PixelFormat{NumChannels: 4}})
	require.NoError(t, err)

	sky := g.ImportTexture(env, metadata.CubeMapSidePosX)
	p := g.Pass(size512, metadata.AntiAliasNone)
	g.ReadColor(p, 2, sky)
	g.WriteColor(p, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})

	require.NoError(t, g.Compile())
	assert.Equal(t, env, g.GetTexture(sky))
}

func TestClearResourcesWhileBuildingIsFatal(t *testing.T) {
	dev, _, g := newTestGraph(t)
	p := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(p, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	assert.Panics(t, g.ClearResources)

	require.NoError(t, g.Compile())
	assert.NotPanics(t, g.ClearResources)
	assert.Zero(t, dev.Stats().LiveTextures)
}

func TestCompileReportsAllocationFailure(t *testing.T) {
	dev := headless.New(headless.WithTextureBudget(1))
	cache, err := NewFrameBufferCache(dev)
	require.NoError(t, err)
	g := New(dev, cache)

	p := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(p, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	g.WriteDepth(p, DepthFormatF32, ReadModeClear, Attachment{})

	assert.Error(t, g.Compile())
}

func TestGraphStats(t *testing.T) {
	_, _, g := newTestGraph(t)
	a := g.Pass(size512, metadata.AntiAliasNone)
	v1 := g.WriteColor(a, metadata.BufferFormatRGBA8, 0, ReadModeClear, Attachment{})
	b := g.Pass(size512, metadata.AntiAliasNone)
	g.WriteColor(b, metadata.BufferFormatRGBA8, 0, ReadModeKeep, v1)
	g.Pass(size512, metadata.AntiAliasNone)
	require.NoError(t, g.Compile())

	assert.Equal(t, GraphStats{Passes: 3, Resources: 1, Versions: 2, FrameBuffers: 2}, g.Stats())
}
