package descriptor

import (
	"fmt"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// Pool owns a native descriptor pool and the sets allocated from it, all
// sharing one closed Layout.
type Pool struct {
	device renderer.DescriptorAllocator
	layout *Layout
	handle metadata.DescriptorPool
	sets   []metadata.DescriptorSet
}

// NewPool allocates numSets descriptor sets of layout.
func NewPool(dev renderer.DescriptorAllocator, layout *Layout, numSets uint32) (*Pool, error) {
	core.Assert(layout.IsClosed(), "descriptor pool from a layout that is not closed")
	core.Assert(numSets > 0, "descriptor pool without sets")

	handle, err := dev.CreateDescriptorPool(numSets, layout.PoolSizes(numSets))
	if err != nil {
		return nil, fmt.Errorf("create descriptor pool of %d sets: %w", numSets, err)
	}
	sets, err := dev.AllocateDescriptorSets(handle, layout.handle, numSets)
	if err != nil {
		dev.DestroyDescriptorPool(handle)
		return nil, fmt.Errorf("allocate %d descriptor sets: %w", numSets, err)
	}
	return &Pool{
		device: dev,
		layout: layout,
		handle: handle,
		sets:   sets,
	}, nil
}

func (p *Pool) Layout() *Layout {
	return p.layout
}

func (p *Pool) Len() int {
	return len(p.sets)
}

// Set returns the descriptor set at index.
func (p *Pool) Set(index uint32) metadata.DescriptorSet {
	core.Assert(int(index) < len(p.sets), "descriptor set %d out of %d", index, len(p.sets))
	return p.sets[index]
}

// WriteArrayTextureToDescriptor immediately writes textures into the texture
// array binding name of set index. An empty list writes nothing.
func (p *Pool) WriteArrayTextureToDescriptor(index uint32, name string, textures []metadata.Texture2d) {
	binding := p.layout.textureArray(name)
	if len(textures) == 0 {
		return
	}
	core.Assert(uint32(len(textures)) <= binding.count, "%d textures written into array %q of %d", len(textures), name, binding.count)
	p.device.UpdateDescriptorSets([]metadata.DescriptorWrite{{
		Set:      p.Set(index),
		Binding:  binding.position,
		Type:     textureType,
		Textures: append([]metadata.Texture2d(nil), textures...),
	}})
}

// Destroy releases the native pool, which frees every set in it.
func (p *Pool) Destroy() {
	if !p.handle.IsValid() {
		return
	}
	p.device.DestroyDescriptorPool(p.handle)
	p.handle = metadata.DescriptorPool{}
	p.sets = nil
}
