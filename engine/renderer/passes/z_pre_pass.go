package passes

import (
	"fmt"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/spaghettifunk/revolution/engine/renderer/raster"
	"github.com/spaghettifunk/revolution/engine/renderer/rendergraph"
	"honnef.co/go/safeish"
)

const (
	zPrePassVertexShader   = "zPrePass.vert.spv"
	zPrePassFragmentShader = "zPrePass.frag.spv"
)

// RenderItem is one mesh of a raster heap placed in the world.
type RenderItem struct {
	Mesh  uint32
	World math.Mat4
}

/**
 * @brief Renders the depth of a list of RenderItems, with no color output,
 * so later passes can test against it.
 */
type ZPrePass struct {
	device      renderer.Device
	heap        *raster.Heap
	heapToken   metadata.StreamToken
	pipeline    metadata.Pipeline
	frameBuffer metadata.FrameBuffer
	ownsBuffer  bool
	size        math.Vec2u
}

// NewDepthMapSampler creates the linear clamp sampler depth maps are read
// with. One sampler serves every depth map; the caller destroys it.
func NewDepthMapSampler(device renderer.Device) (metadata.TextureSampler, error) {
	sampler, err := device.CreateTextureSampler(metadata.SamplerDescriptor{
		Filter: metadata.SamplerFilterLinear,
		WrapS:  metadata.SamplerWrapClamp,
		WrapT:  metadata.SamplerWrapClamp,
	})
	if err != nil {
		return metadata.TextureSampler{}, fmt.Errorf("depth map sampler: %w", err)
	}
	return sampler, nil
}

// CreateDepthMapTexture creates a Depth32 texture sampled through sampler,
// which must outlive the texture.
func CreateDepthMapTexture(device renderer.Device, size math.Vec2u, sampler metadata.TextureSampler) (metadata.Texture2d, error) {
	tex, err := device.CreateTexture2d(metadata.TextureDescriptor{
		Name:        "depth-map",
		Size:        size,
		PixelFormat: metadata.PixelFormat{Channel: metadata.ChannelFormatFloat32, NumChannels: 1},
		Depth:       true,
		MipLevels:   1,
		Samples:     1,
		Sampler:     sampler,
	})
	if err != nil {
		return metadata.Texture2d{}, fmt.Errorf("depth map texture: %w", err)
	}
	return tex, nil
}

// CreateDepthBuffer wraps a depth texture into a framebuffer.
func CreateDepthBuffer(device renderer.Device, tex metadata.Texture2d) (metadata.FrameBuffer, error) {
	return device.CreateFrameBuffer(metadata.FrameBufferDescriptor{
		Name: "depth-buffer",
		Attachments: []metadata.FrameBufferAttachment{{
			Target:  metadata.AttachmentTargetDepth,
			Texture: tex,
		}},
	})
}

/**
 * @brief Creates the pass drawing the meshes of heap.
 * @param heapToken The upload token returned when the heap was closed. No
 * geometry is drawn until it finishes.
 * @param target Framebuffer used by Render. May be invalid when the pass is
 * only recorded through a render graph.
 */
func NewZPrePass(device renderer.Device, heap *raster.Heap, heapToken metadata.StreamToken, target metadata.FrameBuffer, size math.Vec2u) (*ZPrePass, error) {
	core.Assert(heap.IsClosed(), "depth pre-pass over an open raster heap")
	pipeline, err := device.CreatePipeline(metadata.PipelineDescriptor{
		Name:           "zPrePass",
		VertexShader:   zPrePassVertexShader,
		FragmentShader: zPrePassFragmentShader,
		DepthFormat:    metadata.BufferFormatDepth32,
		HasDepth:       true,
		DepthTest:      true,
		DepthWrite:     true,
		CullBack:       true,
		VertexStreams:  []metadata.VertexFormat{metadata.VertexFormatVec3},
		// World view projection.
		PushConstantSize: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("depth pre-pass pipeline: %w", err)
	}
	return &ZPrePass{
		device:      device,
		heap:        heap,
		heapToken:   heapToken,
		pipeline:    pipeline,
		frameBuffer: target,
		size:        size,
	}, nil
}

// OnResizeTarget renders into a new depth texture of the given size from now on.
func (z *ZPrePass) OnResizeTarget(size math.Vec2u, tex metadata.Texture2d) error {
	fb, err := CreateDepthBuffer(z.device, tex)
	if err != nil {
		return fmt.Errorf("resize depth pre-pass: %w", err)
	}
	if z.ownsBuffer {
		z.device.DestroyFrameBuffer(z.frameBuffer)
	}
	z.frameBuffer = fb
	z.ownsBuffer = true
	z.size = size
	return nil
}

func (z *ZPrePass) Size() math.Vec2u {
	return z.size
}

func (z *ZPrePass) FrameBuffer() metadata.FrameBuffer {
	return z.frameBuffer
}

// Render clears the target depth to 1 and draws items into it.
func (z *ZPrePass) Render(viewProj math.Mat4, items []RenderItem, dst renderer.CommandBuffer) {
	core.Assert(z.frameBuffer.IsValid(), "depth pre-pass rendered without target")
	dst.BindFrameBuffer(z.frameBuffer)
	dst.SetViewport(math.Vec2u{}, z.size)
	dst.SetScissor(math.Vec2u{}, z.size)
	dst.ClearDepth(1)
	z.draw(viewProj, items, dst)
}

// AddToGraph declares the pass on g as a Depth32 writer and returns the depth attachment.
func (z *ZPrePass) AddToGraph(g *rendergraph.RenderGraph, viewProj math.Mat4, items []RenderItem) rendergraph.Attachment {
	p := g.PassNamed("zPrePass", z.size, metadata.AntiAliasNone)
	g.SetClearDepth(p, 1)
	depth := g.WriteDepth(p, rendergraph.DepthFormatF32, rendergraph.ReadModeClear, rendergraph.Attachment{})
	g.SetExecution(p, func(_ rendergraph.Resources, dst renderer.CommandBuffer) {
		z.draw(viewProj, items, dst)
	})
	return depth
}

func (z *ZPrePass) draw(viewProj math.Mat4, items []RenderItem, dst renderer.CommandBuffer) {
	if len(items) == 0 || !z.device.Allocator().IsTransferFinished(z.heapToken) {
		return
	}
	dst.BindPipeline(z.pipeline)
	pos, _, _, _ := z.heap.GetVertexBindings()
	dst.BindVertexBuffers([]metadata.VertexBinding{pos})
	dst.BindIndexBuffer(z.heap.IndexBuffer(), 0)

	for _, item := range items {
		// Mul composes left to right: world first, then view projection.
		wvp := item.World.Mul(viewProj)
		dst.PushConstants(z.pipeline, safeish.AsBytes(&wvp.Data))
		mesh := z.heap.Mesh(item.Mesh)
		for id := mesh.FirstPrimitive; id < mesh.EndPrimitive; id++ {
			prim := z.heap.Primitive(id)
			dst.DrawIndexed(prim.NumIndices, prim.IndexOffset, int32(prim.VertexOffset))
		}
	}
}

func (z *ZPrePass) Destroy() {
	if z.ownsBuffer {
		z.device.DestroyFrameBuffer(z.frameBuffer)
		z.ownsBuffer = false
	}
	z.frameBuffer = metadata.FrameBuffer{}
	if z.pipeline.IsValid() {
		z.device.DestroyPipeline(z.pipeline)
		z.pipeline = metadata.Pipeline{}
	}
}
