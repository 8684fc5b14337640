package metadata

import "golang.org/x/exp/slices"

type AttachmentTarget int

const (
	AttachmentTargetColor AttachmentTarget = iota
	AttachmentTargetDepth
)

type FrameBufferAttachment struct {
	Target   AttachmentTarget
	Texture  Texture2d
	MipLevel uint32
	Side     CubeMapSide
}

/**
 * @brief Ordered list of attachments a framebuffer is created from.
 */
type FrameBufferDescriptor struct {
	Name        string
	Attachments []FrameBufferAttachment
}

// Equal compares attachments structurally. Debug names are ignored.
func (d FrameBufferDescriptor) Equal(other FrameBufferDescriptor) bool {
	return slices.Equal(d.Attachments, other.Attachments)
}

// DepthAttachment returns the depth attachment, if any.
func (d FrameBufferDescriptor) DepthAttachment() (FrameBufferAttachment, bool) {
	for _, a := range d.Attachments {
		if a.Target == AttachmentTargetDepth {
			return a, true
		}
	}
	return FrameBufferAttachment{}, false
}

// References reports whether tex is one of the attachments.
func (d FrameBufferDescriptor) References(tex Texture2d) bool {
	return slices.ContainsFunc(d.Attachments, func(a FrameBufferAttachment) bool {
		return a.Texture == tex
	})
}
