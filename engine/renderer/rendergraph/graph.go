package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type graphState int

const (
	graphIdle graphState = iota
	graphBuilding
	graphCompiled
)

// RenderGraph collects the passes of a frame with their read and write
// dependencies, orders them, assigns physical targets from a
// FrameBufferCache and records them into command buffers.
//
// A graph is used from a single thread: Reset, declare passes, Compile, then
// RecordExecution or Run.
type RenderGraph struct {
	device renderer.Device
	cache  *FrameBufferCache

	passes    []passInfo
	resources VirtualResourceTable
	state     graphState

	order    []int
	physical []metadata.Texture2d
}

func New(device renderer.Device, cache *FrameBufferCache) *RenderGraph {
	return &RenderGraph{
		device: device,
		cache:  cache,
	}
}

// Reset drops every pass and resource version. Physical resources stay in the cache.
func (g *RenderGraph) Reset() {
	g.passes = g.passes[:0]
	g.resources.Reset()
	g.order = g.order[:0]
	g.physical = g.physical[:0]
	g.state = graphIdle
}

// Pass declares a new pass rendering at size.
func (g *RenderGraph) Pass(size math.Vec2u, antiAlias metadata.AntiAlias) Pass {
	return g.PassNamed(fmt.Sprintf("pass-%d", len(g.passes)), size, antiAlias)
}

func (g *RenderGraph) PassNamed(name string, size math.Vec2u, antiAlias metadata.AntiAlias) Pass {
	g.touch()
	g.passes = append(g.passes, passInfo{
		name:       name,
		size:       size,
		antiAlias:  antiAlias,
		clearDepth: 1,
	})
	return Pass{id: uint32(len(g.passes))}
}

func (g *RenderGraph) pass(p Pass) *passInfo {
	core.Assert(p.IsValid() && p.index() < len(g.passes), "unknown pass %d", p.id)
	return &g.passes[p.index()]
}

// touch moves the graph back to the building state after a declaration.
func (g *RenderGraph) touch() {
	g.state = graphBuilding
}

func (g *RenderGraph) SetClearColor(p Pass, color math.Vec4) {
	g.pass(p).clearColor = color
}

func (g *RenderGraph) SetClearDepth(p Pass, depth float32) {
	g.pass(p).clearDepth = depth
}

// ImportTexture makes an external texture readable by passes. Framebuffers the
// cache builds on it outlive the frame; call FrameBufferCache.EvictTexture
// before destroying tex.
func (g *RenderGraph) ImportTexture(tex metadata.Texture2d, side metadata.CubeMapSide) Attachment {
	core.Assert(tex.IsValid(), "import of invalid texture")
	g.touch()
	return g.resources.AddTexture(tex, side)
}

func (g *RenderGraph) checkReadable(p Pass, att Attachment) *VirtualResource {
	core.Assert(g.resources.Contains(att), "pass %q reads attachment %d that was never produced", g.pass(p).name, att.id)
	res := g.resources.Resource(att)
	core.Assert(res.kind != resourceExternalFrameBuffer, "pass %q reads an external framebuffer", g.pass(p).name)
	info := g.pass(p)
	for _, o := range info.colorOutputs {
		core.Assert(g.resources.State(o.dst).Resource != g.resources.State(att).Resource,
			"pass %q reads and writes the same resource", info.name)
	}
	if info.depthOutput != nil {
		core.Assert(g.resources.State(info.depthOutput.dst).Resource != g.resources.State(att).Resource,
			"pass %q reads and writes the same depth resource", info.name)
	}
	return res
}

// ReadColor declares that p samples att at binding slot.
func (g *RenderGraph) ReadColor(p Pass, slot int, att Attachment) {
	info := g.pass(p)
	res := g.checkReadable(p, att)
	core.Assert(!res.IsDepth(), "pass %q reads a depth attachment as color", info.name)
	core.Assert(len(info.colorInputs) < MaxInputs, "pass %q exceeds %d color inputs", info.name, MaxInputs)
	g.touch()
	info.colorInputs = append(info.colorInputs, inputBinding{slot: slot, att: att})
	g.resources.AddReader(att, p.index())
}

// ReadDepth declares that p reads the depth attachment att at binding slot.
// Passes without a depth output also get att bound read-only as depth buffer.
func (g *RenderGraph) ReadDepth(p Pass, slot int, att Attachment) {
	info := g.pass(p)
	res := g.checkReadable(p, att)
	core.Assert(res.IsDepth() || res.kind == resourceExternalTexture, "pass %q reads a color attachment as depth", info.name)
	core.Assert(len(info.depthInputs) < MaxInputs, "pass %q exceeds %d depth inputs", info.name, MaxInputs)
	g.touch()
	info.depthInputs = append(info.depthInputs, inputBinding{slot: slot, att: att})
	g.resources.AddReader(att, p.index())
}

func (g *RenderGraph) checkNotRead(info *passInfo, src Attachment) {
	if !src.IsValid() {
		return
	}
	resource := g.resources.State(src).Resource
	for _, in := range append(append([]inputBinding(nil), info.colorInputs...), info.depthInputs...) {
		core.Assert(g.resources.State(in.att).Resource != resource, "pass %q reads and writes the same resource", info.name)
	}
}

// WriteColor declares that p renders a color target at binding slot and
// returns the attachment holding the result. With a valid src the target is
// the next version of src; otherwise a new target of format and the pass
// size is created.
func (g *RenderGraph) WriteColor(p Pass, format metadata.BufferFormat, slot int, mode ReadMode, src Attachment) Attachment {
	info := g.pass(p)
	core.Assert(!format.IsDepth(), "pass %q writes color with depth format %s", info.name, format)
	core.Assert(info.external == nil, "pass %q already renders into an external framebuffer", info.name)
	core.Assert(len(info.colorOutputs) < MaxOutputs, "pass %q exceeds %d color outputs", info.name, MaxOutputs)
	if len(info.colorOutputs) > 0 {
		core.Assert(info.colorOutputs[0].mode == mode, "pass %q mixes read modes across color outputs", info.name)
	}
	g.checkNotRead(info, src)
	g.touch()

	var dst Attachment
	if src.IsValid() {
		core.Assert(g.resources.Contains(src), "pass %q writes from unknown attachment %d", info.name, src.id)
		res := g.resources.Resource(src)
		core.Assert(res.kind != resourceExternalFrameBuffer, "pass %q writes over an external framebuffer attachment", info.name)
		if res.kind == resourceGenerated {
			core.Assert(res.Desc.Format == format, "pass %q writes %s into a %s target", info.name, format, res.Desc.Format)
			core.Assert(res.Desc.Size == info.size, "pass %q size does not match its target", info.name)
		}
		dst = g.resources.NewVersion(src, p.index())
	} else {
		core.Assert(mode != ReadModeKeep, "pass %q keeps the contents of a new target", info.name)
		dst = g.resources.AddGenerated(BufferDesc{Size: info.size, Format: format, AntiAlias: info.antiAlias}, p.index())
	}
	info.colorOutputs = append(info.colorOutputs, outputBinding{slot: slot, mode: mode, src: src, dst: dst})
	return dst
}

// WriteDepth declares the single depth output of p.
func (g *RenderGraph) WriteDepth(p Pass, format DepthFormat, mode ReadMode, src Attachment) Attachment {
	info := g.pass(p)
	core.Assert(info.depthOutput == nil, "pass %q writes more than one depth buffer", info.name)
	core.Assert(info.external == nil, "pass %q already renders into an external framebuffer", info.name)
	g.checkNotRead(info, src)
	g.touch()

	var dst Attachment
	if src.IsValid() {
		core.Assert(g.resources.Contains(src), "pass %q writes from unknown attachment %d", info.name, src.id)
		res := g.resources.Resource(src)
		core.Assert(res.IsDepth(), "pass %q writes depth over a color attachment", info.name)
		core.Assert(res.Desc.Format == format.bufferFormat(), "pass %q depth format does not match its target", info.name)
		core.Assert(res.Desc.Size == info.size, "pass %q size does not match its depth target", info.name)
		dst = g.resources.NewVersion(src, p.index())
	} else {
		core.Assert(mode != ReadModeKeep, "pass %q keeps the contents of a new depth target", info.name)
		dst = g.resources.AddGenerated(BufferDesc{Size: info.size, Format: format.bufferFormat(), AntiAlias: info.antiAlias}, p.index())
	}
	info.depthOutput = &outputBinding{mode: mode, src: src, dst: dst}
	return dst
}

// WriteFrameBuffer makes p render straight into an external framebuffer,
// which must then be its only output.
func (g *RenderGraph) WriteFrameBuffer(p Pass, fb metadata.FrameBuffer, mode ReadMode) Attachment {
	info := g.pass(p)
	core.Assert(fb.IsValid(), "pass %q writes into an invalid framebuffer", info.name)
	core.Assert(!info.hasOutputs(), "pass %q mixes an external framebuffer with other outputs", info.name)
	g.touch()
	dst := g.resources.AddFrameBuffer(fb, p.index())
	info.external = &outputBinding{mode: mode, dst: dst}
	return dst
}

func (g *RenderGraph) SetExecution(p Pass, execution PassExecution) {
	g.pass(p).execution = execution
}

// GetTexture returns the physical texture behind att. Only valid after Compile.
func (g *RenderGraph) GetTexture(att Attachment) metadata.Texture2d {
	core.Assert(g.state == graphCompiled, "texture lookup on a graph that is not compiled")
	core.Assert(g.resources.Contains(att), "texture lookup of unknown attachment %d", att.id)
	tex := g.physical[g.resources.State(att).Resource]
	core.Assert(tex.IsValid(), "attachment %d has no texture", att.id)
	return tex
}

// ExecutionOrder returns the passes in the order they will be recorded.
func (g *RenderGraph) ExecutionOrder() []Pass {
	out := make([]Pass, len(g.order))
	for i, idx := range g.order {
		out[i] = Pass{id: uint32(idx + 1)}
	}
	return out
}

// FrameBuffer returns the framebuffer resolved for p.
func (g *RenderGraph) FrameBuffer(p Pass) metadata.FrameBuffer {
	core.Assert(g.state == graphCompiled, "framebuffer lookup on a graph that is not compiled")
	return g.pass(p).frameBuffer
}

func (g *RenderGraph) NumPasses() int {
	return len(g.passes)
}

func (g *RenderGraph) Resources() *VirtualResourceTable {
	return &g.resources
}

// ClearResources drops the physical mapping and releases every GPU resource
// held by the cache. It must not run while passes are being declared.
func (g *RenderGraph) ClearResources() {
	core.Assert(g.state != graphBuilding, "clear resources on a graph that is being built")
	g.physical = g.physical[:0]
	for i := range g.passes {
		g.passes[i].frameBuffer = metadata.FrameBuffer{}
	}
	g.cache.DeallocateResources()
	if g.state == graphCompiled {
		g.state = graphIdle
	}
}

// GraphStats counts what the graph declared and what Compile resolved.
type GraphStats struct {
	Passes       int
	Resources    int
	Versions     int
	FrameBuffers int
}

func (g *RenderGraph) Stats() GraphStats {
	s := GraphStats{
		Passes:    len(g.passes),
		Resources: g.resources.NumResources(),
		Versions:  g.resources.NumStates(),
	}
	for _, p := range g.passes {
		if p.frameBuffer.IsValid() {
			s.FrameBuffers++
		}
	}
	return s
}
