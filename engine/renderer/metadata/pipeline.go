package metadata

type Pipeline struct{ ID uint32 }

func (h Pipeline) IsValid() bool { return h.ID != 0 }

/** @brief Layout of one vertex attribute stream. */
type VertexFormat int

const (
	VertexFormatVec2 VertexFormat = iota
	VertexFormatVec3
	VertexFormatVec4
)

// Stride is the byte size of one element of the stream.
func (f VertexFormat) Stride() uint32 {
	switch f {
	case VertexFormatVec2:
		return 8
	case VertexFormatVec3:
		return 12
	}
	return 16
}

/** @brief A vertex stream bound at draw time: a buffer and the byte offset of the stream inside it. */
type VertexBinding struct {
	Buffer GPUBuffer
	Offset uint64
}

/**
 * @brief Fixed function and shader state of a raster pipeline. Each entry of
 * VertexStreams is read from its own binding, in order.
 */
type PipelineDescriptor struct {
	Name              string
	VertexShader      string
	FragmentShader    string
	ColorFormats      []BufferFormat
	DepthFormat       BufferFormat
	HasDepth          bool
	DepthTest         bool
	DepthWrite        bool
	CullBack          bool
	VertexStreams     []VertexFormat
	DescriptorLayouts []DescriptorSetLayout
	PushConstantSize  uint32
}
