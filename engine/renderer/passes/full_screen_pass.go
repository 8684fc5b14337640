package passes

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/spaghettifunk/revolution/engine/renderer/rendergraph"
	"honnef.co/go/safeish"
)

// FullScreenVertexShader generates the covering triangle from the vertex index.
const FullScreenVertexShader = "fullScreen.vert.spv"

/** @brief Shader and target state of a FullScreenPass. */
type FullScreenPassConfig struct {
	FragmentShader   string
	ColorFormat      metadata.BufferFormat
	DescriptorLayout metadata.DescriptorSetLayout
	PushConstantSize uint32
}

/**
 * @brief Draws a single triangle covering the whole target with a fragment
 * shader. The three indices are streamed at construction; until that upload
 * has landed Render draws nothing.
 */
type FullScreenPass struct {
	device   renderer.Device
	config   FullScreenPassConfig
	pipeline metadata.Pipeline
	dirty    bool
	began    bool

	indexBuffer metadata.GPUBuffer
	token       metadata.StreamToken
}

func NewFullScreenPass(device renderer.Device, config FullScreenPassConfig) (*FullScreenPass, error) {
	core.Assert(config.FragmentShader != "", "full screen pass without fragment shader")
	p := &FullScreenPass{
		device: device,
		config: config,
	}
	if err := p.createPipeline(); err != nil {
		return nil, err
	}

	alloc := device.Allocator()
	indices := []uint32{0, 1, 2}
	size := uint64(len(indices) * 4)
	if err := alloc.ReserveStreamingBuffer(size); err != nil {
		return nil, fmt.Errorf("full screen streaming buffer: %w", err)
	}
	buf, err := alloc.CreateGpuBuffer(size,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageTransferDstBit), device.GraphicsQueueFamily())
	if err != nil {
		device.DestroyPipeline(p.pipeline)
		return nil, fmt.Errorf("full screen index buffer: %w", err)
	}
	p.indexBuffer = buf
	p.token, err = alloc.AsyncTransfer(buf, safeish.SliceCast[[]byte](indices), 0)
	if err != nil {
		p.Destroy()
		return nil, fmt.Errorf("full screen index upload: %w", err)
	}
	return p, nil
}

func (p *FullScreenPass) createPipeline() error {
	desc := metadata.PipelineDescriptor{
		Name:             "fullScreen:" + p.config.FragmentShader,
		VertexShader:     FullScreenVertexShader,
		FragmentShader:   p.config.FragmentShader,
		ColorFormats:     []metadata.BufferFormat{p.config.ColorFormat},
		PushConstantSize: p.config.PushConstantSize,
	}
	if p.config.DescriptorLayout.IsValid() {
		desc.DescriptorLayouts = []metadata.DescriptorSetLayout{p.config.DescriptorLayout}
	}
	pipeline, err := p.device.CreatePipeline(desc)
	if err != nil {
		return fmt.Errorf("full screen pipeline %q: %w", p.config.FragmentShader, err)
	}
	p.pipeline = pipeline
	p.dirty = false
	return nil
}

// Bind binds the pipeline and descriptor set into dst, rebuilding the
// pipeline first if its shaders were invalidated.
func (p *FullScreenPass) Bind(dst renderer.CommandBuffer, set metadata.DescriptorSet) error {
	if p.dirty {
		old := p.pipeline
		if err := p.createPipeline(); err != nil {
			return err
		}
		p.device.DestroyPipeline(old)
		core.LogInfo("full screen pipeline %q rebuilt", p.config.FragmentShader)
	}
	dst.BindPipeline(p.pipeline)
	if set.IsValid() {
		dst.BindDescriptorSet(p.pipeline, set)
	}
	return nil
}

// Begin starts rendering into target. A nil clearColor keeps the target contents.
func (p *FullScreenPass) Begin(dst renderer.CommandBuffer, target metadata.FrameBuffer, size math.Vec2u, clearColor *math.Vec4, set metadata.DescriptorSet) error {
	core.Assert(!p.began, "full screen pass begun twice")
	dst.BindFrameBuffer(target)
	dst.SetViewport(math.Vec2u{}, size)
	dst.SetScissor(math.Vec2u{}, size)
	if clearColor != nil {
		dst.ClearColor(*clearColor)
	}
	if err := p.Bind(dst, set); err != nil {
		return err
	}
	p.began = true
	return nil
}

// PushConstants uploads the pass constants. data must fit the configured size.
func (p *FullScreenPass) PushConstants(dst renderer.CommandBuffer, data []byte) {
	core.Assert(uint32(len(data)) <= p.config.PushConstantSize, "%d bytes of push constants, %d declared", len(data), p.config.PushConstantSize)
	dst.PushConstants(p.pipeline, data)
}

// Render draws the covering triangle. It reports false and records nothing
// while the index upload is still in flight.
func (p *FullScreenPass) Render(dst renderer.CommandBuffer) bool {
	if !p.device.Allocator().IsTransferFinished(p.token) {
		return false
	}
	dst.BindIndexBuffer(p.indexBuffer, 0)
	dst.DrawIndexed(3, 0, 0)
	return true
}

// AddToGraph declares a graph pass that samples inputs and writes a new
// color target of the configured format. bind runs before the draw and lets
// the caller write the input textures into set.
func (p *FullScreenPass) AddToGraph(g *rendergraph.RenderGraph, name string, size math.Vec2u, inputs []rendergraph.Attachment, set metadata.DescriptorSet, bind func(res rendergraph.Resources)) rendergraph.Attachment {
	pass := g.PassNamed(name, size, metadata.AntiAliasNone)
	for slot, in := range inputs {
		g.ReadColor(pass, slot, in)
	}
	out := g.WriteColor(pass, p.config.ColorFormat, 0, rendergraph.ReadModeDontCare, rendergraph.Attachment{})
	g.SetExecution(pass, func(res rendergraph.Resources, dst renderer.CommandBuffer) {
		if bind != nil {
			bind(res)
		}
		if err := p.Bind(dst, set); err != nil {
			core.LogError("%s: %s", name, err)
			return
		}
		p.Render(dst)
	})
	return out
}

func (p *FullScreenPass) End(dst renderer.CommandBuffer) {
	core.Assert(p.began, "full screen pass ended without begin")
	p.began = false
}

// InvalidateShaders rebuilds the pipeline on the next Bind.
func (p *FullScreenPass) InvalidateShaders() {
	p.dirty = true
}

func (p *FullScreenPass) Pipeline() metadata.Pipeline {
	return p.pipeline
}

func (p *FullScreenPass) Destroy() {
	if p.pipeline.IsValid() {
		p.device.DestroyPipeline(p.pipeline)
		p.pipeline = metadata.Pipeline{}
	}
	if p.indexBuffer.IsValid() {
		p.device.Allocator().DestroyGpuBuffer(p.indexBuffer)
		p.indexBuffer = metadata.GPUBuffer{}
	}
}
