package headless

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

type descriptorPool struct {
	maxSets   uint32
	available map[vk.DescriptorType]uint32
	allocated uint32
}

type descriptorSet struct {
	pool     uint32
	layout   uint32
	bindings map[uint32]metadata.DescriptorWrite
}

func (d *Device) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (metadata.DescriptorSetLayout, error) {
	if len(bindings) == 0 {
		return metadata.DescriptorSetLayout{}, fmt.Errorf("descriptor set layout without bindings: %w", core.ErrResourceCreation)
	}
	copied := append([]vk.DescriptorSetLayoutBinding(nil), bindings...)
	return metadata.DescriptorSetLayout{ID: d.layouts.Acquire(copied)}, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayout) {
	if _, err := d.layouts.Release(layout.ID); err != nil {
		core.LogWarn("destroy descriptor set layout: %s", err)
	}
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (metadata.DescriptorPool, error) {
	pool := descriptorPool{maxSets: maxSets, available: map[vk.DescriptorType]uint32{}}
	for _, s := range sizes {
		pool.available[s.Type] += s.DescriptorCount
	}
	return metadata.DescriptorPool{ID: d.pools.Acquire(pool)}, nil
}

func (d *Device) DestroyDescriptorPool(pool metadata.DescriptorPool) {
	if _, err := d.pools.Release(pool.ID); err != nil {
		core.LogWarn("destroy descriptor pool: %s", err)
		return
	}
	var owned []uint32
	d.sets.Each(func(id uint32, s *descriptorSet) {
		if s.pool == pool.ID {
			owned = append(owned, id)
		}
	})
	for _, id := range owned {
		_, _ = d.sets.Release(id)
	}
}

// AllocateDescriptorSets fails with core.ErrOutOfMemory when the pool runs
// out of sets or of descriptors of any type the layout needs.
func (d *Device) AllocateDescriptorSets(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, count uint32) ([]metadata.DescriptorSet, error) {
	p := d.pools.Ptr(pool.ID)
	if p == nil {
		return nil, fmt.Errorf("allocate from pool %d: %w", pool.ID, core.ErrInvalidHandle)
	}
	bindings, ok := d.layouts.Get(layout.ID)
	if !ok {
		return nil, fmt.Errorf("allocate with layout %d: %w", layout.ID, core.ErrInvalidHandle)
	}
	if p.allocated+count > p.maxSets {
		return nil, fmt.Errorf("pool %d exhausted (%d of %d sets): %w", pool.ID, p.allocated, p.maxSets, core.ErrOutOfMemory)
	}
	need := map[vk.DescriptorType]uint32{}
	for _, b := range bindings {
		need[b.DescriptorType] += b.DescriptorCount * count
	}
	for t, n := range need {
		if p.available[t] < n {
			return nil, fmt.Errorf("pool %d has %d descriptors of type %d, %d needed: %w", pool.ID, p.available[t], t, n, core.ErrOutOfMemory)
		}
	}
	for t, n := range need {
		p.available[t] -= n
	}
	p.allocated += count

	sets := make([]metadata.DescriptorSet, count)
	for i := range sets {
		sets[i] = metadata.DescriptorSet{ID: d.sets.Acquire(descriptorSet{
			pool:     pool.ID,
			layout:   layout.ID,
			bindings: map[uint32]metadata.DescriptorWrite{},
		})}
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	d.stats.DescriptorUpdates++
	for _, w := range writes {
		s := d.sets.Ptr(w.Set.ID)
		if s == nil {
			core.LogWarn("update of unknown descriptor set %d", w.Set.ID)
			continue
		}
		s.bindings[w.Binding] = w
	}
}

// DescriptorBinding returns the last write into binding of set.
func (d *Device) DescriptorBinding(set metadata.DescriptorSet, binding uint32) (metadata.DescriptorWrite, bool) {
	s, ok := d.sets.Get(set.ID)
	if !ok {
		return metadata.DescriptorWrite{}, false
	}
	w, ok := s.bindings[binding]
	return w, ok
}
