package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/assets"
	"github.com/spaghettifunk/revolution/engine/config"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/descriptor"
	"github.com/spaghettifunk/revolution/engine/renderer/headless"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"github.com/spaghettifunk/revolution/engine/renderer/passes"
	"github.com/spaghettifunk/revolution/engine/renderer/raster"
	"github.com/spaghettifunk/revolution/engine/renderer/rendergraph"
	"github.com/spaghettifunk/revolution/engine/renderer/vulkan"
)

const (
	skyFragmentShader     = "sky.frag.spv"
	tonemapFragmentShader = "tonemap.frag.spv"
	sceneCubes            = 3
	previewWorkers        = 2
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

/**
 * @brief Drives the frame loop: every frame declares a render graph with a
 * depth pre-pass, a sky pass and a tonemap pass reading the sky, runs it on
 * the configured device and presents.
 */
type Engine struct {
	currentStage Stage
	config       config.Config
	isRunning    atomic.Bool

	device  renderer.Device
	cache   *rendergraph.FrameBufferCache
	graph   *rendergraph.RenderGraph
	metrics *core.FrameMetrics
	jobs    *core.JobSystem
	watcher *assets.ShaderWatcher

	heap      *raster.Heap
	heapToken metadata.StreamToken
	items     []passes.RenderItem
	viewProj  math.Mat4

	zPrePass      *passes.ZPrePass
	sky           *passes.FullScreenPass
	tonemap       *passes.FullScreenPass
	tonemapLayout *descriptor.Layout
	tonemapSets   *descriptor.Pool

	frame      uint64
	lastDepth  metadata.Texture2d
	lastOutput metadata.Texture2d
}

func New(cfg config.Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	level, _ := core.ParseLogLevel(cfg.LogLevel)
	core.SetLogLevel(level)

	jobs, err := core.NewJobSystem(previewWorkers, previewWorkers)
	if err != nil {
		return nil, err
	}
	device, err := newDevice(cfg)
	if err != nil {
		_ = jobs.Shutdown()
		return nil, err
	}
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		device:       device,
		metrics:      core.NewFrameMetrics(),
		jobs:         jobs,
	}, nil
}

func newDevice(cfg config.Config) (renderer.Device, error) {
	switch cfg.Backend {
	case config.BackendVulkan:
		d, err := vulkan.New(
			vulkan.WithShaderDir(cfg.Shaders.Dir),
			vulkan.WithValidation(cfg.LogLevel == "debug"),
		)
		if err != nil {
			return nil, fmt.Errorf("vulkan device: %w", err)
		}
		return d, nil
	default:
		return headless.New(), nil
	}
}

func (e *Engine) Initialize() error {
	e.currentStage = EngineStageInitializing
	cfg := e.config
	size := cfg.TargetSize()

	if err := e.device.Allocator().ReserveStreamingBuffer(cfg.Streaming.BufferSize); err != nil {
		return err
	}

	cache, err := rendergraph.NewFrameBufferCache(e.device)
	if err != nil {
		return err
	}
	e.cache = cache
	e.graph = rendergraph.New(e.device, cache)

	e.heap = raster.NewHeap()
	e.items = buildScene(e.heap, sceneCubes)
	e.heapToken, err = e.heap.CloseAndSubmit(e.device, e.device.Allocator())
	if err != nil {
		return fmt.Errorf("upload scene: %w", err)
	}
	core.LogInfo("scene uploaded: %d meshes, %d vertices", e.heap.NumMeshes(), e.heap.NumVertices())

	aspect := float32(size.X) / float32(size.Y)
	e.viewProj = math.NewMat4Perspective(math.DegToRad(60), aspect, 0.1, 100)

	e.zPrePass, err = passes.NewZPrePass(e.device, e.heap, e.heapToken, metadata.FrameBuffer{}, size)
	if err != nil {
		return err
	}

	e.sky, err = passes.NewFullScreenPass(e.device, passes.FullScreenPassConfig{
		FragmentShader: skyFragmentShader,
		ColorFormat:    metadata.BufferFormatRGBA32,
	})
	if err != nil {
		return err
	}

	e.tonemapLayout = descriptor.NewLayout()
	e.tonemapLayout.AddTexture("source", 0, vk.ShaderStageFlags(vk.ShaderStageFragmentBit))
	e.tonemapSets, err = e.tonemapLayout.Close(e.device, cfg.Descriptors.PoolSize)
	if err != nil {
		return err
	}
	e.tonemap, err = passes.NewFullScreenPass(e.device, passes.FullScreenPassConfig{
		FragmentShader:   tonemapFragmentShader,
		ColorFormat:      metadata.BufferFormatSRGBA8,
		DescriptorLayout: e.tonemapLayout.Handle(),
	})
	if err != nil {
		return err
	}

	if cfg.Shaders.Watch {
		if err := e.watchShaders(cfg.Shaders.Dir); err != nil {
			return err
		}
	}

	e.currentStage = EngineStageInitialized
	return nil
}

func (e *Engine) watchShaders(dir string) error {
	watcher, err := assets.NewShaderWatcher()
	if err != nil {
		return fmt.Errorf("shader watcher: %w", err)
	}
	if err := watcher.Watch(dir); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	watcher.OnReload(func(path string) {
		switch filepath.Base(path) {
		case skyFragmentShader, passes.FullScreenVertexShader:
			e.sky.InvalidateShaders()
		}
		switch filepath.Base(path) {
		case tonemapFragmentShader, passes.FullScreenVertexShader:
			e.tonemap.InvalidateShaders()
		}
	})
	e.watcher = watcher
	return nil
}

// Run renders the configured number of frames or until Stop is called.
func (e *Engine) Run() error {
	core.Assert(e.currentStage == EngineStageInitialized, "engine run before initialize")
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)

	for i := 0; i < e.config.Frames && e.isRunning.Load(); i++ {
		if err := e.renderFrame(); err != nil {
			e.isRunning.Store(false)
			return fmt.Errorf("frame %d: %w", e.frame, err)
		}
	}
	e.isRunning.Store(false)

	core.LogInfo("rendered %d frames, %.2f ms average", e.frame, e.metrics.FrameTime())
	return e.writePreviews()
}

// Stop ends Run after the frame in progress. Safe to call from any goroutine.
func (e *Engine) Stop() {
	e.isRunning.Store(false)
}

func (e *Engine) renderFrame() error {
	e.metrics.BeginFrame()
	if e.watcher != nil {
		e.watcher.Poll()
	}

	size := e.config.TargetSize()
	set := e.tonemapSets.Set(uint32(e.frame % uint64(e.tonemapSets.Len())))

	e.graph.Reset()
	depth := e.zPrePass.AddToGraph(e.graph, e.viewProj, e.items)
	sky := e.sky.AddToGraph(e.graph, "sky", size, nil, metadata.DescriptorSet{}, nil)
	output := e.tonemap.AddToGraph(e.graph, "tonemap", size, []rendergraph.Attachment{sky}, set,
		func(res rendergraph.Resources) {
			descriptor.NewUpdate(e.tonemapSets, uint32(e.frame%uint64(e.tonemapSets.Len()))).
				AddTexture("source", res.GetTexture(sky)).
				Send()
		})

	alloc := e.device.Allocator()
	if err := alloc.SubmitTransfers(); err != nil {
		return err
	}
	if err := e.graph.Run(); err != nil {
		return err
	}
	e.lastDepth = e.graph.GetTexture(depth)
	e.lastOutput = e.graph.GetTexture(output)

	stats := e.graph.Stats()
	core.LogDebug("frame %d: %d passes, %d resources, %d framebuffers",
		e.frame, stats.Passes, stats.Resources, stats.FrameBuffers)

	if err := e.device.RenderQueue().Present(); err != nil {
		return err
	}
	e.cache.FreeResources()
	e.frame++
	e.metrics.EndFrame()
	return nil
}

// writePreviews stores the last frame's targets when the device can read them back.
func (e *Engine) writePreviews() error {
	dir := e.config.Debug.PreviewDir
	dev, ok := e.device.(*headless.Device)
	if dir == "" || !ok || !e.lastOutput.IsValid() {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	scale := e.config.Debug.PreviewScale
	previews := map[string]metadata.Texture2d{"output.png": e.lastOutput, "depth.png": e.lastDepth}
	jobs := make([]core.Job, 0, len(previews))
	for name, tex := range previews {
		path := filepath.Join(dir, name)
		jobs = append(jobs, core.Job{
			Name: name,
			Run:  func() error { return dev.WritePreview(tex, scale, path) },
		})
	}
	if err := e.jobs.RunAll(jobs...); err != nil {
		return err
	}
	core.LogInfo("previews written to %s", dir)
	return nil
}

// Stats returns the cache occupancy after the last frame.
func (e *Engine) Stats() rendergraph.CacheStats {
	return e.cache.Stats()
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var firstErr error
	if err := e.device.WaitIdle(); err != nil {
		firstErr = err
	}
	if e.watcher != nil {
		if err := e.watcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.tonemap != nil {
		e.tonemap.Destroy()
	}
	if e.sky != nil {
		e.sky.Destroy()
	}
	if e.tonemapSets != nil {
		e.tonemapSets.Destroy()
	}
	if e.tonemapLayout != nil {
		e.tonemapLayout.Destroy()
	}
	if e.zPrePass != nil {
		e.zPrePass.Destroy()
	}
	if e.heap != nil {
		e.heap.Destroy(e.device.Allocator())
	}
	if e.cache != nil {
		e.cache.Destroy()
	}
	e.device.Destroy()
	if err := e.jobs.Shutdown(); err != nil && firstErr == nil {
		firstErr = err
	}
	e.currentStage = EngineStageUninitialized
	return firstErr
}
