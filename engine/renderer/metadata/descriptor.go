package metadata

import (
	vk "github.com/goki/vulkan"
)

/**
 * @brief One write into a descriptor set binding. Exactly one of Buffers or
 * Textures is populated depending on Type.
 */
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         vk.DescriptorType
	Buffers      []GPUBuffer
	Textures     []Texture2d
}

// Count is the number of descriptors the write covers.
func (w DescriptorWrite) Count() int {
	if len(w.Buffers) > 0 {
		return len(w.Buffers)
	}
	return len(w.Textures)
}
