package descriptor

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type arrayBinding struct {
	position uint32
	count    uint32
}

/**
 * @brief The shape of a shader's resource bindings. Bindings are added by
 * name, then Close creates the native layout. Names are looked up again by
 * Update and Pool when resources are written.
 */
type Layout struct {
	bindings       []vk.DescriptorSetLayoutBinding
	storageBuffers map[string]uint32
	textures       map[string]uint32
	images         map[string]uint32
	textureArrays  map[string]arrayBinding
	positions      map[uint32]string

	numStorageBuffers uint32
	numTextures       uint32
	numImages         uint32

	device renderer.DescriptorAllocator
	handle metadata.DescriptorSetLayout
}

func NewLayout() *Layout {
	return &Layout{
		storageBuffers: map[string]uint32{},
		textures:       map[string]uint32{},
		images:         map[string]uint32{},
		textureArrays:  map[string]arrayBinding{},
		positions:      map[uint32]string{},
	}
}

func (l *Layout) add(name string, position, count uint32, kind vk.DescriptorType, stages vk.ShaderStageFlags) {
	core.Assert(name != "", "descriptor binding %d without a name", position)
	core.Assert(!l.IsClosed(), "binding %q added to a closed layout", name)
	other, taken := l.positions[position]
	core.Assert(!taken, "binding %q reuses position %d of %q", name, position, other)
	l.positions[position] = name
	l.bindings = append(l.bindings, vk.DescriptorSetLayoutBinding{
		Binding:         position,
		DescriptorType:  kind,
		DescriptorCount: count,
		StageFlags:      stages,
	})
}

func (l *Layout) AddStorageBuffer(name string, position uint32, stages vk.ShaderStageFlags) {
	l.add(name, position, 1, vk.DescriptorTypeStorageBuffer, stages)
	l.storageBuffers[name] = position
	l.numStorageBuffers++
}

func (l *Layout) AddTexture(name string, position uint32, stages vk.ShaderStageFlags) {
	l.add(name, position, 1, vk.DescriptorTypeCombinedImageSampler, stages)
	l.textures[name] = position
	l.numTextures++
}

// AddImage declares a storage image binding.
func (l *Layout) AddImage(name string, position uint32, stages vk.ShaderStageFlags) {
	l.add(name, position, 1, vk.DescriptorTypeStorageImage, stages)
	l.images[name] = position
	l.numImages++
}

// AddTextureArray reserves count texture slots at a single binding.
func (l *Layout) AddTextureArray(name string, position, count uint32, stages vk.ShaderStageFlags) {
	core.Assert(count > 0, "texture array %q without slots", name)
	l.add(name, position, count, vk.DescriptorTypeCombinedImageSampler, stages)
	l.textureArrays[name] = arrayBinding{position: position, count: count}
	l.numTextures += count
}

/**
 * @brief Creates the native layout and a first pool of poolSize sets.
 * Closing a layout twice is fatal.
 * @param dev The allocator creating the layout, pool and sets.
 * @param poolSize The number of descriptor sets to allocate up front.
 * @return The pool holding the sets.
 */
func (l *Layout) Close(dev renderer.DescriptorAllocator, poolSize uint32) (*Pool, error) {
	core.Assert(!l.IsClosed(), "descriptor set layout closed twice")
	handle, err := dev.CreateDescriptorSetLayout(l.bindings)
	if err != nil {
		return nil, fmt.Errorf("close descriptor set layout: %w", err)
	}
	l.device = dev
	l.handle = handle
	return NewPool(dev, l, poolSize)
}

func (l *Layout) IsClosed() bool {
	return l.handle.IsValid()
}

func (l *Layout) Handle() metadata.DescriptorSetLayout {
	return l.handle
}

func (l *Layout) Bindings() []vk.DescriptorSetLayoutBinding {
	return l.bindings
}

// PoolSizes returns the descriptors of each type needed by numSets sets.
// Types the layout does not use are left out.
func (l *Layout) PoolSizes(numSets uint32) []vk.DescriptorPoolSize {
	var sizes []vk.DescriptorPoolSize
	if l.numStorageBuffers > 0 {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: numSets * l.numStorageBuffers})
	}
	if l.numTextures > 0 {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vk.DescriptorTypeCombinedImageSampler, DescriptorCount: numSets * l.numTextures})
	}
	if l.numImages > 0 {
		sizes = append(sizes, vk.DescriptorPoolSize{Type: vk.DescriptorTypeStorageImage, DescriptorCount: numSets * l.numImages})
	}
	return sizes
}

// Destroy releases the native layout. Pools created from it must be destroyed first.
func (l *Layout) Destroy() {
	if !l.IsClosed() {
		return
	}
	l.device.DestroyDescriptorSetLayout(l.handle)
	l.handle = metadata.DescriptorSetLayout{}
}

func (l *Layout) storageBuffer(name string) uint32 {
	pos, ok := l.storageBuffers[name]
	core.Assert(ok, "unknown storage buffer binding %q", name)
	return pos
}

func (l *Layout) texture(name string) uint32 {
	pos, ok := l.textures[name]
	core.Assert(ok, "unknown texture binding %q", name)
	return pos
}

func (l *Layout) image(name string) uint32 {
	pos, ok := l.images[name]
	core.Assert(ok, "unknown image binding %q", name)
	return pos
}

func (l *Layout) textureArray(name string) arrayBinding {
	b, ok := l.textureArrays[name]
	core.Assert(ok, "unknown texture array binding %q", name)
	return b
}
