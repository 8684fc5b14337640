package metadata

import (
	"github.com/spaghettifunk/revolution/engine/math"
)

/** @brief Face of a cube map a texture attachment refers to. */
type CubeMapSide int

const (
	CubeMapSideNone CubeMapSide = iota
	CubeMapSidePosX
	CubeMapSideNegX
	CubeMapSidePosY
	CubeMapSideNegY
	CubeMapSidePosZ
	CubeMapSideNegZ
)

type SamplerFilter int

const (
	SamplerFilterNearest SamplerFilter = iota
	SamplerFilterLinear
)

type SamplerWrap int

const (
	SamplerWrapRepeat SamplerWrap = iota
	SamplerWrapClamp
)

type SamplerDescriptor struct {
	Filter SamplerFilter
	WrapS  SamplerWrap
	WrapT  SamplerWrap
}

/**
 * @brief Everything the device needs to create a 2d texture.
 */
type TextureDescriptor struct {
	Name        string
	Size        math.Vec2u
	PixelFormat PixelFormat
	SRGB        bool
	Depth       bool
	MipLevels   uint32
	Samples     uint32
	Sampler     TextureSampler
}
