package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

/**
 * @brief A native descriptor pool and the sets allocated from it. Sets are
 * released together with their pool.
 */
type descriptorPool struct {
	handle vk.DescriptorPool
	sets   []uint32
}

func (d *Device) CreateDescriptorSetLayout(bindings []vk.DescriptorSetLayoutBinding) (metadata.DescriptorSetLayout, error) {
	var layout vk.DescriptorSetLayout
	res := vk.CreateDescriptorSetLayout(d.context.Device.LogicalDevice, &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, d.context.Allocator, &layout)
	if err := resultError("vkCreateDescriptorSetLayout", res); err != nil {
		return metadata.DescriptorSetLayout{}, err
	}
	return metadata.DescriptorSetLayout{ID: d.layouts.Acquire(layout)}, nil
}

func (d *Device) DestroyDescriptorSetLayout(layout metadata.DescriptorSetLayout) {
	handle, err := d.layouts.Release(layout.ID)
	if err != nil {
		core.LogWarn("destroy descriptor set layout: %s", err)
		return
	}
	vk.DestroyDescriptorSetLayout(d.context.Device.LogicalDevice, handle, d.context.Allocator)
}

func (d *Device) CreateDescriptorPool(maxSets uint32, sizes []vk.DescriptorPoolSize) (metadata.DescriptorPool, error) {
	var pool vk.DescriptorPool
	res := vk.CreateDescriptorPool(d.context.Device.LogicalDevice, &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       maxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}, d.context.Allocator, &pool)
	if err := resultError("vkCreateDescriptorPool", res); err != nil {
		return metadata.DescriptorPool{}, err
	}
	return metadata.DescriptorPool{ID: d.pools.Acquire(descriptorPool{handle: pool})}, nil
}

func (d *Device) DestroyDescriptorPool(pool metadata.DescriptorPool) {
	p, err := d.pools.Release(pool.ID)
	if err != nil {
		core.LogWarn("destroy descriptor pool: %s", err)
		return
	}
	for _, id := range p.sets {
		_, _ = d.sets.Release(id)
	}
	vk.DestroyDescriptorPool(d.context.Device.LogicalDevice, p.handle, d.context.Allocator)
}

func (d *Device) AllocateDescriptorSets(pool metadata.DescriptorPool, layout metadata.DescriptorSetLayout, count uint32) ([]metadata.DescriptorSet, error) {
	p := d.pools.Ptr(pool.ID)
	if p == nil {
		return nil, fmt.Errorf("allocate from descriptor pool %d: %w", pool.ID, core.ErrInvalidHandle)
	}
	l, ok := d.layouts.Get(layout.ID)
	if !ok {
		return nil, fmt.Errorf("allocate with descriptor set layout %d: %w", layout.ID, core.ErrInvalidHandle)
	}
	layouts := make([]vk.DescriptorSetLayout, count)
	for i := range layouts {
		layouts[i] = l
	}
	handles := make([]vk.DescriptorSet, count)
	res := vk.AllocateDescriptorSets(d.context.Device.LogicalDevice, &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.handle,
		DescriptorSetCount: count,
		PSetLayouts:        layouts,
	}, &handles[0])
	if err := resultError("vkAllocateDescriptorSets", res); err != nil {
		return nil, err
	}
	sets := make([]metadata.DescriptorSet, count)
	for i, h := range handles {
		id := d.sets.Acquire(h)
		p.sets = append(p.sets, id)
		sets[i] = metadata.DescriptorSet{ID: id}
	}
	return sets, nil
}

func (d *Device) UpdateDescriptorSets(writes []metadata.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, 0, len(writes))
	for _, w := range writes {
		set, ok := d.sets.Get(w.Set.ID)
		core.Assert(ok, "descriptor write into unknown set %d", w.Set.ID)
		wd := vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: uint32(w.Count()),
			DescriptorType:  w.Type,
		}
		if len(w.Buffers) > 0 {
			infos := make([]vk.DescriptorBufferInfo, len(w.Buffers))
			for i, b := range w.Buffers {
				infos[i] = vk.DescriptorBufferInfo{
					Buffer: d.allocator.handle(b),
					Offset: 0,
					Range:  vk.DeviceSize(vk.WholeSize),
				}
			}
			wd.PBufferInfo = infos
		} else {
			infos := make([]vk.DescriptorImageInfo, len(w.Textures))
			for i, t := range w.Textures {
				img, ok := d.textures.Get(t.ID)
				core.Assert(ok, "descriptor write of unknown texture %d", t.ID)
				infos[i] = vk.DescriptorImageInfo{
					ImageView:   img.View,
					ImageLayout: vk.ImageLayoutGeneral,
				}
				if w.Type == vk.DescriptorTypeCombinedImageSampler {
					infos[i].Sampler = d.samplerFor(img)
				}
			}
			wd.PImageInfo = infos
		}
		vkWrites = append(vkWrites, wd)
	}
	vk.UpdateDescriptorSets(d.context.Device.LogicalDevice, uint32(len(vkWrites)), vkWrites, 0, nil)
}

// samplerFor falls back to the device default when a texture has no sampler.
func (d *Device) samplerFor(img *VulkanImage) vk.Sampler {
	if s, ok := d.samplers.Get(img.Sampler.ID); ok {
		return s
	}
	return d.defaultSampler
}
