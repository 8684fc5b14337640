package raster

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/revolution/engine/math"
)

// faceNormals derives per-vertex normals by accumulating the area-weighted
// normal of every triangle touching the vertex.
func faceNormals(positions []math.Vec3, indices []uint32) []math.Vec3 {
	normals := make([]math.Vec3, len(positions))
	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]
		e1 := positions[i1].Sub(positions[i0])
		e2 := positions[i2].Sub(positions[i0])
		n := e1.Cross(e2)
		normals[i0] = normals[i0].Add(n)
		normals[i1] = normals[i1].Add(n)
		normals[i2] = normals[i2].Add(n)
	}
	for i := range normals {
		normals[i] = normals[i].Normalize()
	}
	return normals
}

/**
 * @brief Derives a tangent per vertex from the UV gradients of the triangles
 * using it. The tangent is orthonormalized against the vertex normal; w holds
 * the handedness of the bitangent.
 */
func generateTangentSpace(positions []math.Vec3, uvs []math.Vec2, normals []math.Vec3, indices []uint32) []math.Vec4 {
	tangents := make([]math.Vec4, len(positions))

	for i := 0; i+2 < len(indices); i += 3 {
		i0, i1, i2 := indices[i], indices[i+1], indices[i+2]

		deltaUV1 := uvs[i1].Sub(uvs[i0])
		deltaUV2 := uvs[i2].Sub(uvs[i0])
		deltaPos1 := positions[i1].Sub(positions[i0])
		deltaPos2 := positions[i2].Sub(positions[i0])

		determinant := deltaUV1.X*deltaUV2.Y - deltaUV2.X*deltaUV1.Y
		var t math.Vec3
		if math32.Abs(determinant) > math.K_FLOAT_EPSILON {
			t = deltaPos1.MulScalar(deltaUV1.X).Sub(deltaPos2.MulScalar(deltaUV1.Y)).MulScalar(1 / determinant)
		}
		contribution := t.ToVec4(determinant)
		tangents[i0] = tangents[i0].Add(contribution)
		tangents[i1] = tangents[i1].Add(contribution)
		tangents[i2] = tangents[i2].Add(contribution)
	}

	for i := range tangents {
		n := normals[i]
		t := tangents[i].ToVec3()
		t = t.Sub(n.MulScalar(t.Dot(n))).Normalize()
		tangents[i] = t.ToVec4(math32.Copysign(1, -tangents[i].W))
	}
	return tangents
}
