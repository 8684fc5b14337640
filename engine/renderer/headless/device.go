package headless

import (
	"fmt"
	"image"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type texture struct {
	desc  metadata.TextureDescriptor
	color *image.RGBA
	depth []float32
}

type pipeline struct {
	desc  metadata.PipelineDescriptor
	valid bool
}

// Stats counts the objects a Device created over its lifetime and the ones
// still alive.
type Stats struct {
	TexturesCreated     int
	FrameBuffersCreated int
	SamplersCreated     int
	PipelinesCreated    int
	BuffersCreated      int
	LiveTextures        int
	LiveFrameBuffers    int
	LiveBuffers         int
	LiveSamplers        int
	Submissions         int
	DescriptorUpdates   int
	Frames              uint64
}

type options struct {
	transferLatency     uint64
	graphicsQueueFamily uint32
	textureBudget       int
	maxPendingTransfers int
}

type Option func(*options)

// WithTransferLatency makes transfers complete n presented frames after
// being submitted. Zero completes them on submission.
func WithTransferLatency(n uint64) Option {
	return func(o *options) {
		o.transferLatency = n
	}
}

func WithGraphicsQueueFamily(family uint32) Option {
	return func(o *options) {
		o.graphicsQueueFamily = family
	}
}

// WithTextureBudget limits the number of live textures; creation beyond it
// fails with core.ErrOutOfMemory.
func WithTextureBudget(n int) Option {
	return func(o *options) {
		o.textureBudget = n
	}
}

func WithMaxPendingTransfers(n int) Option {
	return func(o *options) {
		o.maxPendingTransfers = n
	}
}

// Device is an in-memory implementation of renderer.Device. Render targets
// are CPU images, clears are applied on submission and draws are recorded
// but not rasterized.
type Device struct {
	opts options

	textures     *core.HandleTable[texture]
	frameBuffers *core.HandleTable[metadata.FrameBufferDescriptor]
	samplers     *core.HandleTable[metadata.SamplerDescriptor]
	pipelines    *core.HandleTable[pipeline]

	layouts *core.HandleTable[[]vk.DescriptorSetLayoutBinding]
	pools   *core.HandleTable[descriptorPool]
	sets    *core.HandleTable[descriptorSet]

	allocator *Allocator
	queue     *Queue
	stats     Stats
}

func New(opts ...Option) *Device {
	o := options{maxPendingTransfers: 256}
	for _, opt := range opts {
		opt(&o)
	}
	d := &Device{
		opts:         o,
		textures:     core.NewHandleTable[texture](16),
		frameBuffers: core.NewHandleTable[metadata.FrameBufferDescriptor](16),
		samplers:     core.NewHandleTable[metadata.SamplerDescriptor](4),
		pipelines:    core.NewHandleTable[pipeline](4),
		layouts:      core.NewHandleTable[[]vk.DescriptorSetLayoutBinding](4),
		pools:        core.NewHandleTable[descriptorPool](4),
		sets:         core.NewHandleTable[descriptorSet](16),
	}
	d.allocator = newAllocator(d, o.transferLatency, o.maxPendingTransfers)
	d.queue = &Queue{device: d}
	return d
}

func (d *Device) GraphicsQueueFamily() uint32 {
	return d.opts.graphicsQueueFamily
}

func (d *Device) CreateFrameBuffer(desc metadata.FrameBufferDescriptor) (metadata.FrameBuffer, error) {
	if len(desc.Attachments) == 0 {
		return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q without attachments: %w", desc.Name, core.ErrResourceCreation)
	}
	for _, a := range desc.Attachments {
		if _, ok := d.textures.Get(a.Texture.ID); !ok {
			return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q references texture %d: %w", desc.Name, a.Texture.ID, core.ErrInvalidHandle)
		}
	}
	d.stats.FrameBuffersCreated++
	return metadata.FrameBuffer{ID: d.frameBuffers.Acquire(desc)}, nil
}

func (d *Device) DestroyFrameBuffer(fb metadata.FrameBuffer) {
	if _, err := d.frameBuffers.Release(fb.ID); err != nil {
		core.LogWarn("destroy framebuffer: %s", err)
	}
}

// FrameBufferDescriptor returns the descriptor fb was created from.
func (d *Device) FrameBufferDescriptor(fb metadata.FrameBuffer) (metadata.FrameBufferDescriptor, bool) {
	return d.frameBuffers.Get(fb.ID)
}

func (d *Device) CreateTexture2d(desc metadata.TextureDescriptor) (metadata.Texture2d, error) {
	if desc.Size.X == 0 || desc.Size.Y == 0 {
		return metadata.Texture2d{}, fmt.Errorf("texture %q with empty size: %w", desc.Name, core.ErrResourceCreation)
	}
	if d.opts.textureBudget > 0 && d.textures.Len() >= d.opts.textureBudget {
		return metadata.Texture2d{}, fmt.Errorf("texture %q over budget of %d: %w", desc.Name, d.opts.textureBudget, core.ErrOutOfMemory)
	}
	tex := texture{desc: desc}
	if desc.Depth {
		tex.depth = make([]float32, desc.Size.Area())
	} else {
		tex.color = image.NewRGBA(image.Rect(0, 0, int(desc.Size.X), int(desc.Size.Y)))
	}
	d.stats.TexturesCreated++
	return metadata.Texture2d{ID: d.textures.Acquire(tex)}, nil
}

func (d *Device) DestroyTexture2d(tex metadata.Texture2d) {
	if _, err := d.textures.Release(tex.ID); err != nil {
		core.LogWarn("destroy texture: %s", err)
	}
}

// TextureDescriptor returns the descriptor tex was created from.
func (d *Device) TextureDescriptor(tex metadata.Texture2d) (metadata.TextureDescriptor, bool) {
	t, ok := d.textures.Get(tex.ID)
	return t.desc, ok
}

func (d *Device) CreateTextureSampler(desc metadata.SamplerDescriptor) (metadata.TextureSampler, error) {
	d.stats.SamplersCreated++
	return metadata.TextureSampler{ID: d.samplers.Acquire(desc)}, nil
}

func (d *Device) DestroyTextureSampler(sampler metadata.TextureSampler) {
	if _, err := d.samplers.Release(sampler.ID); err != nil {
		core.LogWarn("destroy sampler: %s", err)
	}
}

func (d *Device) CreatePipeline(desc metadata.PipelineDescriptor) (metadata.Pipeline, error) {
	if desc.VertexShader == "" || desc.FragmentShader == "" {
		return metadata.Pipeline{}, fmt.Errorf("pipeline %q without shaders: %w", desc.Name, core.ErrResourceCreation)
	}
	d.stats.PipelinesCreated++
	return metadata.Pipeline{ID: d.pipelines.Acquire(pipeline{desc: desc, valid: true})}, nil
}

func (d *Device) DestroyPipeline(p metadata.Pipeline) {
	if _, err := d.pipelines.Release(p.ID); err != nil {
		core.LogWarn("destroy pipeline: %s", err)
	}
}

func (d *Device) CreateCommandBuffer() (renderer.CommandBuffer, error) {
	return &CommandBuffer{}, nil
}

func (d *Device) Allocator() renderer.Allocator {
	return d.allocator
}

func (d *Device) RenderQueue() renderer.RenderQueue {
	return d.queue
}

func (d *Device) WaitIdle() error {
	return d.allocator.drain()
}

func (d *Device) Destroy() {
	d.textures = core.NewHandleTable[texture](0)
	d.frameBuffers = core.NewHandleTable[metadata.FrameBufferDescriptor](0)
	d.samplers = core.NewHandleTable[metadata.SamplerDescriptor](0)
	d.pipelines = core.NewHandleTable[pipeline](0)
	d.layouts = core.NewHandleTable[[]vk.DescriptorSetLayoutBinding](0)
	d.pools = core.NewHandleTable[descriptorPool](0)
	d.sets = core.NewHandleTable[descriptorSet](0)
	d.allocator.reset()
}

func (d *Device) Stats() Stats {
	s := d.stats
	s.LiveTextures = d.textures.Len()
	s.LiveFrameBuffers = d.frameBuffers.Len()
	s.LiveBuffers = d.allocator.buffers.Len()
	s.LiveSamplers = d.samplers.Len()
	s.Frames = d.queue.frame
	return s
}
