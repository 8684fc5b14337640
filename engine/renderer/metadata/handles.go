package metadata

// Handles are 1-based ids into the device's resource tables. The zero value of
// every handle is invalid, so an unset field never aliases a live resource.

type FrameBuffer struct{ ID uint32 }

func (h FrameBuffer) IsValid() bool { return h.ID != 0 }

type Texture2d struct{ ID uint32 }

func (h Texture2d) IsValid() bool { return h.ID != 0 }

type TextureSampler struct{ ID uint32 }

func (h TextureSampler) IsValid() bool { return h.ID != 0 }

// GPUBuffer references a device buffer together with its byte size.
type GPUBuffer struct {
	ID   uint32
	Size uint64
}

func (h GPUBuffer) IsValid() bool { return h.ID != 0 }

type DescriptorSetLayout struct{ ID uint32 }

func (h DescriptorSetLayout) IsValid() bool { return h.ID != 0 }

type DescriptorPool struct{ ID uint32 }

func (h DescriptorPool) IsValid() bool { return h.ID != 0 }

type DescriptorSet struct{ ID uint32 }

func (h DescriptorSet) IsValid() bool { return h.ID != 0 }

// StreamToken identifies an asynchronous upload. Tokens increase with every
// transfer an allocator issues.
type StreamToken uint64
