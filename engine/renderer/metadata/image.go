package metadata

import "fmt"

/**
 * @brief Pixel formats a render graph target can be created with.
 */
type BufferFormat int

const (
	BufferFormatRGBA8 BufferFormat = iota
	BufferFormatSRGBA8
	BufferFormatRGBA32
	BufferFormatDepth24
	BufferFormatDepth32
)

func (f BufferFormat) IsDepth() bool {
	return f == BufferFormatDepth24 || f == BufferFormatDepth32
}

func (f BufferFormat) String() string {
	switch f {
	case BufferFormatRGBA8:
		return "RGBA8"
	case BufferFormatSRGBA8:
		return "sRGBA8"
	case BufferFormatRGBA32:
		return "RGBA32"
	case BufferFormatDepth24:
		return "depth24"
	case BufferFormatDepth32:
		return "depth32"
	}
	return fmt.Sprintf("BufferFormat(%d)", int(f))
}

/** @brief Hardware multisampling applied to a render target. */
type AntiAlias int

const (
	AntiAliasNone AntiAlias = iota
	AntiAliasMSAA2x
	AntiAliasMSAA4x
	AntiAliasMSAA8x
)

// Samples is the number of samples per texel.
func (a AntiAlias) Samples() uint32 {
	switch a {
	case AntiAliasMSAA2x:
		return 2
	case AntiAliasMSAA4x:
		return 4
	case AntiAliasMSAA8x:
		return 8
	}
	return 1
}

/** @brief Storage type of a single image channel. */
type ChannelFormat int

const (
	ChannelFormatByte ChannelFormat = iota
	ChannelFormatFloat32
)

type PixelFormat struct {
	Channel     ChannelFormat
	NumChannels uint8
}

// BytesPerPixel is the texel footprint of the format.
func (p PixelFormat) BytesPerPixel() int {
	if p.Channel == ChannelFormatFloat32 {
		return 4 * int(p.NumChannels)
	}
	return int(p.NumChannels)
}
