package raster

import (
	"fmt"
	stdmath "math"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"honnef.co/go/safeish"
)

const (
	positionSize = 12
	normalSize   = 12
	tangentSize  = 16
	uvSize       = 8
	indexSize    = 4
	materialSize = 64
	vertexSize   = positionSize + normalSize + tangentSize + uvSize
)

type upload struct {
	dst    metadata.GPUBuffer
	data   []byte
	offset uint64
}

// Primitive is a range of the shared index buffer drawn with one material.
type Primitive struct {
	VertexOffset  uint32
	IndexOffset   uint32
	NumIndices    uint32
	MaterialIndex uint32
}

// Mesh groups the primitives [FirstPrimitive, EndPrimitive).
type Mesh struct {
	FirstPrimitive uint32
	EndPrimitive   uint32
}

/**
 * @brief Accumulates many primitives on the CPU and uploads them into one
 * vertex buffer, one index buffer and one materials buffer. The vertex
 * buffer holds all positions, then all normals, then all tangents, then all
 * UVs. Once closed no more geometry can be added.
 */
type Heap struct {
	positions []math.Vec3
	normals   []math.Vec3
	tangents  []math.Vec4
	uvs       []math.Vec2
	indices   []uint32
	materials []PBRMaterial

	primitives []Primitive
	meshes     []Mesh
	closed     bool

	vertexBuffer    metadata.GPUBuffer
	indexBuffer     metadata.GPUBuffer
	materialsBuffer metadata.GPUBuffer
	positionOffset  uint64
	normalOffset    uint64
	tangentOffset   uint64
	uvOffset        uint64
}

func NewHeap() *Heap {
	return &Heap{}
}

/**
 * @brief Appends the data of one primitive and returns its id. Ids start at
 * 0 and increase by one per call.
 * @param positions One position per vertex.
 * @param normals Per-vertex normals. Derived from the faces when nil.
 * @param tangents Per-vertex tangents. Derived from UVs and normals when nil.
 * @param uvs One texture coordinate per vertex.
 * @param indices Triangle list into this primitive's vertices.
 * @param materialIndex The material record drawn with the primitive.
 */
func (h *Heap) AddPrimitiveData(positions, normals []math.Vec3, tangents []math.Vec4, uvs []math.Vec2, indices []uint32, materialIndex uint32) uint32 {
	core.Assert(!h.IsClosed(), "primitive added to a closed raster heap")
	numVertices := len(positions)
	core.Assert(len(uvs) == numVertices, "primitive has %d uvs for %d vertices", len(uvs), numVertices)
	core.Assert(normals == nil || len(normals) == numVertices, "primitive has %d normals for %d vertices", len(normals), numVertices)
	core.Assert(tangents == nil || len(tangents) == numVertices, "primitive has %d tangents for %d vertices", len(tangents), numVertices)
	core.Assert(uint64(len(h.positions))+uint64(numVertices) < stdmath.MaxUint32, "raster heap exceeds the vertex limit")
	core.Assert(uint64(len(h.indices))+uint64(len(indices)) < stdmath.MaxUint32, "raster heap exceeds the index limit")
	core.Assert(uint64(len(h.primitives)) < stdmath.MaxUint32, "raster heap exceeds the primitive limit")

	if normals == nil {
		normals = faceNormals(positions, indices)
	}
	if tangents == nil {
		tangents = generateTangentSpace(positions, uvs, normals, indices)
	}

	primitive := Primitive{
		VertexOffset:  uint32(len(h.positions)),
		IndexOffset:   uint32(len(h.indices)),
		NumIndices:    uint32(len(indices)),
		MaterialIndex: materialIndex,
	}
	h.positions = append(h.positions, positions...)
	h.normals = append(h.normals, normals...)
	h.tangents = append(h.tangents, tangents...)
	h.uvs = append(h.uvs, uvs...)
	h.indices = append(h.indices, indices...)
	h.primitives = append(h.primitives, primitive)
	return uint32(len(h.primitives) - 1)
}

// AddMaterial appends a material record and returns its index.
func (h *Heap) AddMaterial(material PBRMaterial) uint32 {
	core.Assert(!h.IsClosed(), "material added to a closed raster heap")
	core.Assert(uint64(len(h.materials)) < stdmath.MaxUint32, "raster heap exceeds the material limit")
	h.materials = append(h.materials, material)
	return uint32(len(h.materials) - 1)
}

// AddMesh records a primitive range and returns the mesh id.
func (h *Heap) AddMesh(mesh Mesh) uint32 {
	core.Assert(mesh.FirstPrimitive <= mesh.EndPrimitive && int(mesh.EndPrimitive) <= len(h.primitives),
		"mesh range [%d, %d) outside of %d primitives", mesh.FirstPrimitive, mesh.EndPrimitive, len(h.primitives))
	h.meshes = append(h.meshes, mesh)
	return uint32(len(h.meshes) - 1)
}

func (h *Heap) Primitive(id uint32) Primitive {
	return h.primitives[id]
}

func (h *Heap) Mesh(id uint32) Mesh {
	return h.meshes[id]
}

func (h *Heap) NumPrimitives() int {
	return len(h.primitives)
}

func (h *Heap) NumMeshes() int {
	return len(h.meshes)
}

// NumVertices is the number of vertices waiting for upload.
func (h *Heap) NumVertices() int {
	return len(h.positions)
}

/**
 * @brief Creates the GPU buffers and streams every accumulated array into
 * them: positions, normals, tangents, UVs, indices and finally materials.
 * CPU copies are dropped afterwards and the heap is closed for good.
 * @param ctx Supplies the queue family owning the buffers.
 * @param alloc Creates the buffers and carries the transfers.
 * @return The token of the last transfer. Once finished every stream has landed.
 * An empty heap creates no buffers and returns the zero token, which is always finished.
 */
func (h *Heap) CloseAndSubmit(ctx renderer.RenderContext, alloc renderer.Allocator) (metadata.StreamToken, error) {
	core.Assert(!h.IsClosed(), "raster heap closed twice")

	numVertices := uint64(len(h.positions))
	vertexDataSize := numVertices * vertexSize
	indexDataSize := uint64(len(h.indices)) * indexSize
	materialDataSize := uint64(len(h.materials)) * materialSize
	family := ctx.GraphicsQueueFamily()

	var vertexBuffer, indexBuffer metadata.GPUBuffer
	var err error
	if vertexDataSize > 0 {
		vertexBuffer, err = alloc.CreateGpuBuffer(vertexDataSize,
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit|vk.BufferUsageVertexBufferBit), family)
		if err != nil {
			return 0, fmt.Errorf("raster heap vertex buffer: %w", err)
		}
	}
	if indexDataSize > 0 {
		indexBuffer, err = alloc.CreateGpuBuffer(indexDataSize,
			vk.BufferUsageFlags(vk.BufferUsageTransferDstBit|vk.BufferUsageIndexBufferBit), family)
		if err != nil {
			destroyBuffers(alloc, vertexBuffer)
			return 0, fmt.Errorf("raster heap index buffer: %w", err)
		}
	}
	var materialsBuffer metadata.GPUBuffer
	if len(h.materials) > 0 {
		materialsBuffer, err = alloc.CreateGpuBuffer(materialDataSize,
			vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageTransferDstBit), family)
		if err != nil {
			destroyBuffers(alloc, vertexBuffer, indexBuffer)
			return 0, fmt.Errorf("raster heap materials buffer: %w", err)
		}
	}

	if total := vertexDataSize + indexDataSize + materialDataSize; total > 0 {
		if err := alloc.ReserveStreamingBuffer(total); err != nil {
			destroyBuffers(alloc, vertexBuffer, indexBuffer, materialsBuffer)
			return 0, fmt.Errorf("raster heap streaming buffer: %w", err)
		}
	}

	h.positionOffset = 0
	h.normalOffset = numVertices * positionSize
	h.tangentOffset = h.normalOffset + numVertices*normalSize
	h.uvOffset = h.tangentOffset + numVertices*tangentSize

	uploads := []upload{
		{vertexBuffer, safeish.SliceCast[[]byte](h.positions), h.positionOffset},
		{vertexBuffer, safeish.SliceCast[[]byte](h.normals), h.normalOffset},
		{vertexBuffer, safeish.SliceCast[[]byte](h.tangents), h.tangentOffset},
		{vertexBuffer, safeish.SliceCast[[]byte](h.uvs), h.uvOffset},
		{indexBuffer, safeish.SliceCast[[]byte](h.indices), 0},
	}
	if materialsBuffer.IsValid() {
		uploads = append(uploads, upload{materialsBuffer, safeish.SliceCast[[]byte](h.materials), 0})
	}

	var token metadata.StreamToken
	for _, u := range uploads {
		if len(u.data) == 0 {
			continue
		}
		token, err = alloc.AsyncTransfer(u.dst, u.data, u.offset)
		if err != nil {
			destroyBuffers(alloc, vertexBuffer, indexBuffer, materialsBuffer)
			return 0, fmt.Errorf("raster heap upload: %w", err)
		}
	}

	h.closed = true
	h.vertexBuffer = vertexBuffer
	h.indexBuffer = indexBuffer
	h.materialsBuffer = materialsBuffer

	h.positions = nil
	h.normals = nil
	h.tangents = nil
	h.uvs = nil
	h.indices = nil
	h.materials = nil

	core.LogDebug("raster heap submitted: %d vertices, %d bytes of indices, %d primitives",
		numVertices, indexDataSize, len(h.primitives))
	return token, nil
}

// IsClosed reports whether CloseAndSubmit created the GPU buffers.
func (h *Heap) IsClosed() bool {
	return h.closed
}

// GetVertexBindings returns where each attribute stream lives in the shared vertex buffer.
func (h *Heap) GetVertexBindings() (pos, normal, tangent, uv metadata.VertexBinding) {
	core.Assert(h.vertexBuffer.IsValid(), "vertex bindings of a raster heap without vertex buffer")
	return metadata.VertexBinding{Buffer: h.vertexBuffer, Offset: h.positionOffset},
		metadata.VertexBinding{Buffer: h.vertexBuffer, Offset: h.normalOffset},
		metadata.VertexBinding{Buffer: h.vertexBuffer, Offset: h.tangentOffset},
		metadata.VertexBinding{Buffer: h.vertexBuffer, Offset: h.uvOffset}
}

func (h *Heap) VertexBuffer() metadata.GPUBuffer {
	return h.vertexBuffer
}

func (h *Heap) IndexBuffer() metadata.GPUBuffer {
	return h.indexBuffer
}

// MaterialsBuffer is invalid when no material was added.
func (h *Heap) MaterialsBuffer() metadata.GPUBuffer {
	return h.materialsBuffer
}

// Destroy releases the GPU buffers. The heap stays closed.
func (h *Heap) Destroy(alloc renderer.Allocator) {
	destroyBuffers(alloc, h.vertexBuffer, h.indexBuffer, h.materialsBuffer)
	h.vertexBuffer = metadata.GPUBuffer{}
	h.indexBuffer = metadata.GPUBuffer{}
	h.materialsBuffer = metadata.GPUBuffer{}
}

func destroyBuffers(alloc renderer.Allocator, buffers ...metadata.GPUBuffer) {
	for _, b := range buffers {
		if b.IsValid() {
			alloc.DestroyGpuBuffer(b)
		}
	}
}
