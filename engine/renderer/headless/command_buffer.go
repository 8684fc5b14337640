package headless

import (
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type CommandOp int

const (
	OpBindFrameBuffer CommandOp = iota
	OpSetViewport
	OpSetScissor
	OpClearColor
	OpClearDepth
	OpBindPipeline
	OpBindDescriptorSet
	OpPushConstants
	OpBindVertexBuffers
	OpBindIndexBuffer
	OpDrawIndexed
	OpDraw
)

// Command is one recorded operation. Only the fields relevant to Op are set.
type Command struct {
	Op          CommandOp
	FrameBuffer metadata.FrameBuffer
	Pos, Size   math.Vec2u
	Color       math.Vec4
	Depth       float32
	Pipeline    metadata.Pipeline
	Set         metadata.DescriptorSet
	Data        []byte
	Vertex      []metadata.VertexBinding
	Buffer      metadata.GPUBuffer
	Offset      uint64
	Count       uint32
	First       uint32
}

// CommandBuffer records commands into a plain list.
type CommandBuffer struct {
	Commands []Command
}

func (cb *CommandBuffer) BindFrameBuffer(fb metadata.FrameBuffer) {
	cb.Commands = append(cb.Commands, Command{Op: OpBindFrameBuffer, FrameBuffer: fb})
}

func (cb *CommandBuffer) SetViewport(pos, size math.Vec2u) {
	cb.Commands = append(cb.Commands, Command{Op: OpSetViewport, Pos: pos, Size: size})
}

func (cb *CommandBuffer) SetScissor(pos, size math.Vec2u) {
	cb.Commands = append(cb.Commands, Command{Op: OpSetScissor, Pos: pos, Size: size})
}

func (cb *CommandBuffer) ClearColor(color math.Vec4) {
	cb.Commands = append(cb.Commands, Command{Op: OpClearColor, Color: color})
}

func (cb *CommandBuffer) ClearDepth(depth float32) {
	cb.Commands = append(cb.Commands, Command{Op: OpClearDepth, Depth: depth})
}

func (cb *CommandBuffer) BindPipeline(pipeline metadata.Pipeline) {
	cb.Commands = append(cb.Commands, Command{Op: OpBindPipeline, Pipeline: pipeline})
}

func (cb *CommandBuffer) BindDescriptorSet(pipeline metadata.Pipeline, set metadata.DescriptorSet) {
	cb.Commands = append(cb.Commands, Command{Op: OpBindDescriptorSet, Pipeline: pipeline, Set: set})
}

func (cb *CommandBuffer) PushConstants(pipeline metadata.Pipeline, data []byte) {
	cb.Commands = append(cb.Commands, Command{Op: OpPushConstants, Pipeline: pipeline, Data: append([]byte(nil), data...)})
}

func (cb *CommandBuffer) BindVertexBuffers(bindings []metadata.VertexBinding) {
	cb.Commands = append(cb.Commands, Command{Op: OpBindVertexBuffers, Vertex: append([]metadata.VertexBinding(nil), bindings...)})
}

func (cb *CommandBuffer) BindIndexBuffer(buffer metadata.GPUBuffer, offset uint64) {
	cb.Commands = append(cb.Commands, Command{Op: OpBindIndexBuffer, Buffer: buffer, Offset: offset})
}

func (cb *CommandBuffer) DrawIndexed(numIndices, firstIndex uint32, vertexOffset int32) {
	cb.Commands = append(cb.Commands, Command{Op: OpDrawIndexed, Count: numIndices, First: firstIndex, Offset: uint64(vertexOffset)})
}

func (cb *CommandBuffer) Draw(numVertices uint32) {
	cb.Commands = append(cb.Commands, Command{Op: OpDraw, Count: numVertices})
}

// Count returns how many commands with op were recorded.
func (cb *CommandBuffer) Count(op CommandOp) int {
	n := 0
	for _, c := range cb.Commands {
		if c.Op == op {
			n++
		}
	}
	return n
}
