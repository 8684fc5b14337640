package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
)

// RecordExecution records every pass in execution order into dst: bind the
// target, set viewport and scissor to the pass size, apply clears, then run
// the pass execution.
func (g *RenderGraph) RecordExecution(dst renderer.CommandBuffer) {
	core.Assert(g.state == graphCompiled, "recording a render graph that is not compiled")
	for _, idx := range g.order {
		info := &g.passes[idx]
		if info.frameBuffer.IsValid() {
			dst.BindFrameBuffer(info.frameBuffer)
			dst.SetViewport(math.Vec2u{}, info.size)
			dst.SetScissor(math.Vec2u{}, info.size)
			if info.clearsColor() {
				dst.ClearColor(info.clearColor)
			}
			if info.depthOutput != nil && info.depthOutput.mode == ReadModeClear {
				dst.ClearDepth(info.clearDepth)
			}
		}
		if info.execution != nil {
			info.execution(g, dst)
		}
	}
}

func (p *passInfo) clearsColor() bool {
	if p.external != nil {
		return p.external.mode == ReadModeClear
	}
	return len(p.colorOutputs) > 0 && p.colorOutputs[0].mode == ReadModeClear
}

// Run compiles if needed, records into a fresh command buffer and submits it
// to the device render queue.
func (g *RenderGraph) Run() error {
	if err := g.Compile(); err != nil {
		return err
	}
	cb, err := g.device.CreateCommandBuffer()
	if err != nil {
		return fmt.Errorf("render graph command buffer: %w", err)
	}
	g.RecordExecution(cb)
	if err := g.device.RenderQueue().SubmitCommandBuffer(cb); err != nil {
		return fmt.Errorf("render graph submit: %w", err)
	}
	return nil
}
