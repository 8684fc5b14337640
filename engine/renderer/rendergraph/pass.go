package rendergraph

import (
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

const (
	MaxInputs  = 8
	MaxOutputs = 8
)

// Pass is a handle to a pass declared on a RenderGraph. The zero value is invalid.
type Pass struct{ id uint32 }

func (p Pass) IsValid() bool { return p.id != 0 }

func (p Pass) index() int { return int(p.id) - 1 }

// ReadMode tells what happens to the previous contents of a written target.
type ReadMode int

const (
	// ReadModeClear overwrites the target with the pass clear value.
	ReadModeClear ReadMode = iota
	// ReadModeKeep loads the existing contents so the pass can accumulate.
	ReadModeKeep
	// ReadModeDontCare leaves the contents undefined.
	ReadModeDontCare
)

type DepthFormat int

const (
	DepthFormatF24 DepthFormat = iota
	DepthFormatF32
)

func (f DepthFormat) bufferFormat() metadata.BufferFormat {
	if f == DepthFormatF24 {
		return metadata.BufferFormatDepth24
	}
	return metadata.BufferFormatDepth32
}

// Resources gives a pass execution access to the physical textures behind
// the attachments it declared.
type Resources interface {
	GetTexture(att Attachment) metadata.Texture2d
}

// PassExecution records the commands of a pass into dst.
type PassExecution func(res Resources, dst renderer.CommandBuffer)

type inputBinding struct {
	slot int
	att  Attachment
}

type outputBinding struct {
	slot int
	mode ReadMode
	src  Attachment
	dst  Attachment
}

type passInfo struct {
	name       string
	size       math.Vec2u
	antiAlias  metadata.AntiAlias
	clearColor math.Vec4
	clearDepth float32

	colorInputs  []inputBinding
	depthInputs  []inputBinding
	colorOutputs []outputBinding
	depthOutput  *outputBinding
	external     *outputBinding

	execution PassExecution

	frameBuffer metadata.FrameBuffer
}

func (p *passInfo) hasOutputs() bool {
	return len(p.colorOutputs) > 0 || p.depthOutput != nil || p.external != nil
}
