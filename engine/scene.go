package engine

import (
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer/passes"
	"github.com/spaghettifunk/revolution/engine/renderer/raster"
)

type cubeFace struct {
	normal, u, v math.Vec3
}

var cubeFaces = [6]cubeFace{
	{math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1), math.NewVec3(0, 1, 0)},
	{math.NewVec3(-1, 0, 0), math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0)},
	{math.NewVec3(0, 1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, -1)},
	{math.NewVec3(0, -1, 0), math.NewVec3(1, 0, 0), math.NewVec3(0, 0, 1)},
	{math.NewVec3(0, 0, 1), math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0)},
	{math.NewVec3(0, 0, -1), math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0)},
}

// cubeGeometry builds a cube of the given half extent with four vertices per
// face, so every face gets its own normal and UV square.
func cubeGeometry(halfExtent float32) (positions []math.Vec3, uvs []math.Vec2, indices []uint32) {
	corners := [4]math.Vec2{{X: -1, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 1}, {X: -1, Y: 1}}
	for _, f := range cubeFaces {
		base := uint32(len(positions))
		for _, c := range corners {
			p := f.normal.Add(f.u.MulScalar(c.X)).Add(f.v.MulScalar(c.Y))
			positions = append(positions, p.MulScalar(halfExtent))
			uvs = append(uvs, math.NewVec2((c.X+1)/2, (1-c.Y)/2))
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return positions, uvs, indices
}

// buildScene fills heap with a row of cubes and returns the items drawing them.
func buildScene(heap *raster.Heap, count int) []passes.RenderItem {
	positions, uvs, indices := cubeGeometry(0.5)
	material := heap.AddMaterial(raster.DefaultMaterial())
	prim := heap.AddPrimitiveData(positions, nil, nil, uvs, indices, material)
	mesh := heap.AddMesh(raster.Mesh{FirstPrimitive: prim, EndPrimitive: prim + 1})

	items := make([]passes.RenderItem, count)
	for i := range items {
		offset := float32(i) - float32(count-1)/2
		items[i] = passes.RenderItem{
			Mesh:  mesh,
			World: math.NewMat4Translation(math.NewVec3(offset*1.5, 0, -4)),
		}
	}
	return items
}
