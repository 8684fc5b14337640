package headless

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"golang.org/x/image/draw"
)

// Queue executes headless command buffers: clears write into the bound
// targets and draws are counted.
type Queue struct {
	device *Device
	frame  uint64

	// Draws is the number of draw calls executed.
	Draws int
	// UnsafeDraws counts draws that read a buffer with an upload still in flight.
	UnsafeDraws int
	// Submitted keeps every command buffer of the current frame.
	Submitted []*CommandBuffer
}

func (q *Queue) SubmitCommandBuffer(cb renderer.CommandBuffer) error {
	hcb, ok := cb.(*CommandBuffer)
	if !ok {
		return fmt.Errorf("command buffer of type %T: %w", cb, core.ErrInvalidHandle)
	}
	var bound metadata.FrameBufferDescriptor
	var index metadata.GPUBuffer
	var vertex []metadata.VertexBinding
	for _, c := range hcb.Commands {
		switch c.Op {
		case OpBindFrameBuffer:
			desc, ok := q.device.frameBuffers.Get(c.FrameBuffer.ID)
			if !ok {
				return fmt.Errorf("bind framebuffer %d: %w", c.FrameBuffer.ID, core.ErrInvalidHandle)
			}
			bound = desc
		case OpClearColor:
			q.clearColor(bound, c.Color)
		case OpClearDepth:
			q.clearDepth(bound, c.Depth)
		case OpBindIndexBuffer:
			index = c.Buffer
		case OpBindVertexBuffers:
			vertex = c.Vertex
		case OpDrawIndexed, OpDraw:
			q.Draws++
			if q.readsPendingUpload(index, vertex, c.Op == OpDrawIndexed) {
				q.UnsafeDraws++
			}
		}
	}
	q.Submitted = append(q.Submitted, hcb)
	q.device.stats.Submissions++
	return nil
}

// Present ends the frame and lets due transfers complete.
func (q *Queue) Present() error {
	q.frame++
	q.Submitted = q.Submitted[:0]
	q.device.allocator.retire(q.frame)
	return nil
}

func (q *Queue) readsPendingUpload(index metadata.GPUBuffer, vertex []metadata.VertexBinding, indexed bool) bool {
	if indexed && q.device.allocator.pendingFor(index.ID) {
		return true
	}
	for _, v := range vertex {
		if q.device.allocator.pendingFor(v.Buffer.ID) {
			return true
		}
	}
	return false
}

func (q *Queue) clearColor(fb metadata.FrameBufferDescriptor, c math.Vec4) {
	fill := color.RGBA{
		R: unorm8(c.X),
		G: unorm8(c.Y),
		B: unorm8(c.Z),
		A: unorm8(c.W),
	}
	for _, a := range fb.Attachments {
		if a.Target != metadata.AttachmentTargetColor {
			continue
		}
		if tex := q.device.textures.Ptr(a.Texture.ID); tex != nil && tex.color != nil {
			draw.Draw(tex.color, tex.color.Bounds(), &image.Uniform{C: fill}, image.Point{}, draw.Src)
		}
	}
}

func (q *Queue) clearDepth(fb metadata.FrameBufferDescriptor, depth float32) {
	a, ok := fb.DepthAttachment()
	if !ok {
		return
	}
	if tex := q.device.textures.Ptr(a.Texture.ID); tex != nil {
		for i := range tex.depth {
			tex.depth[i] = depth
		}
	}
}

func unorm8(v float32) uint8 {
	return uint8(math.Clamp(v, 0, 1)*255 + 0.5)
}
