package raster

import "github.com/spaghettifunk/revolution/engine/math"

// NoTexture marks an unused texture slot of a material.
const NoTexture int32 = -1

// PBRMaterial is the std430 record read by shaders from the materials
// buffer. The layout is 64 bytes with no implicit padding.
type PBRMaterial struct {
	BaseColor        math.Vec4
	Emissive         math.Vec3
	Metalness        float32
	Roughness        float32
	BaseColorTexture int32
	PBRTexture       int32
	AOTexture        int32
	EmissiveTexture  int32
	NormalTexture    int32
	_                [2]uint32
}

// DefaultMaterial is an untextured white dielectric.
func DefaultMaterial() PBRMaterial {
	return PBRMaterial{
		BaseColor:        math.NewVec4(1, 1, 1, 1),
		Roughness:        1,
		BaseColorTexture: NoTexture,
		PBRTexture:       NoTexture,
		AOTexture:        NoTexture,
		EmissiveTexture:  NoTexture,
		NormalTexture:    NoTexture,
	}
}
