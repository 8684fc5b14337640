package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/assets"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type options struct {
	appName     string
	validation  bool
	discreteGPU bool
	shaderDir   string
}

type Option func(*options)

func WithApplicationName(name string) Option {
	return func(o *options) {
		o.appName = name
	}
}

// WithValidation enables the Khronos validation layer and routes its reports
// to the engine log.
func WithValidation(enabled bool) Option {
	return func(o *options) {
		o.validation = enabled
	}
}

func WithDiscreteGPU(required bool) Option {
	return func(o *options) {
		o.discreteGPU = required
	}
}

// WithShaderDir sets the directory pipeline shader names are resolved against.
func WithShaderDir(dir string) Option {
	return func(o *options) {
		o.shaderDir = dir
	}
}

// Device implements renderer.Device on a Vulkan instance without a surface.
// Render targets are images kept in the general layout and every submission
// is fenced so Present can reclaim its command buffers.
type Device struct {
	opts    options
	context *VulkanContext

	shaders      *assets.ShaderLoader
	renderPasses *renderPassCache

	textures       *core.HandleTable[*VulkanImage]
	frameBuffers   *core.HandleTable[*VulkanFramebuffer]
	samplers       *core.HandleTable[vk.Sampler]
	pipelines      *core.HandleTable[*VulkanPipeline]
	layouts        *core.HandleTable[vk.DescriptorSetLayout]
	pools          *core.HandleTable[descriptorPool]
	sets           *core.HandleTable[vk.DescriptorSet]
	defaultSampler vk.Sampler

	allocator *Allocator
	queue     *Queue
}

func New(opts ...Option) (*Device, error) {
	o := options{appName: "Revolution"}
	for _, opt := range opts {
		opt(&o)
	}

	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return nil, fmt.Errorf("vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		return nil, fmt.Errorf("vulkan init: %w", err)
	}

	d := &Device{
		opts:         o,
		context:      &VulkanContext{},
		shaders:      &assets.ShaderLoader{Dir: o.shaderDir},
		renderPasses: newRenderPassCache(),
		textures:     core.NewHandleTable[*VulkanImage](16),
		frameBuffers: core.NewHandleTable[*VulkanFramebuffer](16),
		samplers:     core.NewHandleTable[vk.Sampler](4),
		pipelines:    core.NewHandleTable[*VulkanPipeline](4),
		layouts:      core.NewHandleTable[vk.DescriptorSetLayout](4),
		pools:        core.NewHandleTable[descriptorPool](4),
		sets:         core.NewHandleTable[vk.DescriptorSet](16),
	}
	if err := d.createInstance(); err != nil {
		return nil, err
	}

	if err := DeviceCreate(d.context, VulkanPhysicalDeviceRequirements{
		Graphics:    true,
		Transfer:    true,
		DiscreteGPU: o.discreteGPU,
	}); err != nil {
		d.destroyInstance()
		return nil, err
	}

	sampler, err := NewSampler(d.context, metadata.SamplerDescriptor{
		Filter: metadata.SamplerFilterLinear,
		WrapS:  metadata.SamplerWrapClamp,
		WrapT:  metadata.SamplerWrapClamp,
	})
	if err != nil {
		DeviceDestroy(d.context)
		d.destroyInstance()
		return nil, err
	}
	d.defaultSampler = sampler

	d.allocator = newAllocator(d.context)
	d.queue = &Queue{device: d}
	core.LogInfo("Vulkan device initialized successfully.")
	return d, nil
}

func (d *Device) createInstance() error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(d.opts.appName),
		PEngineName:        VulkanSafeString("Revolution Engine"),
	}
	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	extensions := []string{}
	if runtime.GOOS == "darwin" {
		extensions = append(extensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		// VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
		createInfo.Flags |= 1
	}
	layers := []string{}
	if d.opts.validation {
		extensions = append(extensions, vk.ExtDebugReportExtensionName)
		if !instanceHasLayer(validationLayer) {
			return fmt.Errorf("required validation layer is missing: %s: %w", validationLayer, core.ErrResourceCreation)
		}
		core.LogInfo("Validation layers enabled.")
		layers = append(layers, validationLayer)
	}
	for _, e := range extensions {
		core.LogDebug("Required extension: %s", e)
	}
	createInfo.EnabledExtensionCount = uint32(len(extensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(extensions)
	createInfo.EnabledLayerCount = uint32(len(layers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(layers)

	var instance vk.Instance
	if err := resultError("vkCreateInstance", vk.CreateInstance(&createInfo, d.context.Allocator, &instance)); err != nil {
		return err
	}
	d.context.Instance = instance
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, d.context.Allocator)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if d.opts.validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := resultError("vkCreateDebugReportCallback", vk.CreateDebugReportCallback(instance, &debugCreateInfo, nil, &dbg)); err != nil {
			d.destroyInstance()
			return err
		}
		d.context.debugMessenger = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func instanceHasLayer(name string) bool {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].LayerName[:])
		if vk.ToString(available[i].LayerName[:end+1]) == name {
			return true
		}
	}
	return false
}

func (d *Device) destroyInstance() {
	if d.context.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(d.context.Instance, d.context.debugMessenger, d.context.Allocator)
		d.context.debugMessenger = vk.NullDebugReportCallback
	}
	if d.context.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(d.context.Instance, d.context.Allocator)
		d.context.Instance = nil
	}
}

func (d *Device) GraphicsQueueFamily() uint32 {
	return d.context.Device.GraphicsQueueIndex
}

func (d *Device) CreateFrameBuffer(desc metadata.FrameBufferDescriptor) (metadata.FrameBuffer, error) {
	if len(desc.Attachments) == 0 {
		return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q without attachments: %w", desc.Name, core.ErrResourceCreation)
	}
	images := make([]*VulkanImage, 0, len(desc.Attachments))
	for _, a := range desc.Attachments {
		img, ok := d.textures.Get(a.Texture.ID)
		if !ok {
			return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q references texture %d: %w", desc.Name, a.Texture.ID, core.ErrInvalidHandle)
		}
		if a.MipLevel != 0 || a.Side != metadata.CubeMapSideNone {
			return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q attaches a mip level or cube face: %w", desc.Name, core.ErrResourceCreation)
		}
		if img.Depth != (a.Target == metadata.AttachmentTargetDepth) {
			return metadata.FrameBuffer{}, fmt.Errorf("framebuffer %q attachment target does not match texture %d: %w", desc.Name, a.Texture.ID, core.ErrResourceCreation)
		}
		images = append(images, img)
	}
	fb, err := FramebufferCreate(d.context, d.renderPasses, desc, images)
	if err != nil {
		return metadata.FrameBuffer{}, err
	}
	return metadata.FrameBuffer{ID: d.frameBuffers.Acquire(fb)}, nil
}

func (d *Device) DestroyFrameBuffer(fb metadata.FrameBuffer) {
	f, err := d.frameBuffers.Release(fb.ID)
	if err != nil {
		core.LogWarn("destroy framebuffer: %s", err)
		return
	}
	f.Destroy(d.context)
}

func (d *Device) CreateTexture2d(desc metadata.TextureDescriptor) (metadata.Texture2d, error) {
	if desc.Size.X == 0 || desc.Size.Y == 0 {
		return metadata.Texture2d{}, fmt.Errorf("texture %q with empty size: %w", desc.Name, core.ErrResourceCreation)
	}
	img, err := NewImage(d.context, desc)
	if err != nil {
		return metadata.Texture2d{}, fmt.Errorf("texture %q: %w", desc.Name, err)
	}
	return metadata.Texture2d{ID: d.textures.Acquire(img)}, nil
}

func (d *Device) DestroyTexture2d(tex metadata.Texture2d) {
	img, err := d.textures.Release(tex.ID)
	if err != nil {
		core.LogWarn("destroy texture: %s", err)
		return
	}
	img.Destroy(d.context)
}

func (d *Device) CreateTextureSampler(desc metadata.SamplerDescriptor) (metadata.TextureSampler, error) {
	sampler, err := NewSampler(d.context, desc)
	if err != nil {
		return metadata.TextureSampler{}, err
	}
	return metadata.TextureSampler{ID: d.samplers.Acquire(sampler)}, nil
}

func (d *Device) DestroyTextureSampler(sampler metadata.TextureSampler) {
	s, err := d.samplers.Release(sampler.ID)
	if err != nil {
		core.LogWarn("destroy sampler: %s", err)
		return
	}
	vk.DestroySampler(d.context.Device.LogicalDevice, s, d.context.Allocator)
}

func (d *Device) CreatePipeline(desc metadata.PipelineDescriptor) (metadata.Pipeline, error) {
	if desc.VertexShader == "" || desc.FragmentShader == "" {
		return metadata.Pipeline{}, fmt.Errorf("pipeline %q without shaders: %w", desc.Name, core.ErrResourceCreation)
	}
	layouts := make([]vk.DescriptorSetLayout, 0, len(desc.DescriptorLayouts))
	for _, l := range desc.DescriptorLayouts {
		layout, ok := d.layouts.Get(l.ID)
		if !ok {
			return metadata.Pipeline{}, fmt.Errorf("pipeline %q references descriptor set layout %d: %w", desc.Name, l.ID, core.ErrInvalidHandle)
		}
		layouts = append(layouts, layout)
	}
	p, err := NewGraphicsPipeline(d.context, d.shaders, d.renderPasses, layouts, desc)
	if err != nil {
		return metadata.Pipeline{}, err
	}
	return metadata.Pipeline{ID: d.pipelines.Acquire(p)}, nil
}

func (d *Device) DestroyPipeline(pipeline metadata.Pipeline) {
	p, err := d.pipelines.Release(pipeline.ID)
	if err != nil {
		core.LogWarn("destroy pipeline: %s", err)
		return
	}
	p.Destroy(d.context)
}

// CreateCommandBuffer returns a primary command buffer already recording.
// It is freed by the Present that follows its submission.
func (d *Device) CreateCommandBuffer() (renderer.CommandBuffer, error) {
	cb, err := NewVulkanCommandBuffer(d.context, d.context.Device.GraphicsCommandPool, true)
	if err != nil {
		return nil, err
	}
	cb.device = d
	if err := cb.Begin(true, false, false); err != nil {
		cb.Free(d.context, d.context.Device.GraphicsCommandPool)
		return nil, err
	}
	return cb, nil
}

func (d *Device) Allocator() renderer.Allocator {
	return d.allocator
}

func (d *Device) RenderQueue() renderer.RenderQueue {
	return d.queue
}

// WaitIdle flushes pending transfers and waits for the graphics queue.
func (d *Device) WaitIdle() error {
	if err := d.allocator.drain(); err != nil {
		return err
	}
	return resultError("vkDeviceWaitIdle", vk.DeviceWaitIdle(d.context.Device.LogicalDevice))
}

func (d *Device) Destroy() {
	if d.context.Device == nil {
		return
	}
	if err := d.WaitIdle(); err != nil {
		core.LogError("wait idle before destroy: %s", err)
	}
	if err := d.queue.Present(); err != nil {
		core.LogError("reclaim submissions: %s", err)
	}
	d.allocator.destroy()

	ctx := d.context
	logical := ctx.Device.LogicalDevice
	d.pipelines.Each(func(_ uint32, p **VulkanPipeline) { (*p).Destroy(ctx) })
	d.frameBuffers.Each(func(_ uint32, f **VulkanFramebuffer) { (*f).Destroy(ctx) })
	d.textures.Each(func(_ uint32, img **VulkanImage) { (*img).Destroy(ctx) })
	d.samplers.Each(func(_ uint32, s *vk.Sampler) { vk.DestroySampler(logical, *s, ctx.Allocator) })
	d.pools.Each(func(_ uint32, p *descriptorPool) { vk.DestroyDescriptorPool(logical, p.handle, ctx.Allocator) })
	d.layouts.Each(func(_ uint32, l *vk.DescriptorSetLayout) { vk.DestroyDescriptorSetLayout(logical, *l, ctx.Allocator) })
	vk.DestroySampler(logical, d.defaultSampler, ctx.Allocator)
	d.renderPasses.destroy(ctx)

	DeviceDestroy(ctx)
	ctx.Device = nil
	d.destroyInstance()
	core.LogInfo("Vulkan device destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
