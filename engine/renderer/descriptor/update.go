package descriptor

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const (
	bufferType  = vk.DescriptorTypeStorageBuffer
	textureType = vk.DescriptorTypeCombinedImageSampler
	imageType   = vk.DescriptorTypeStorageImage
)

// Update batches writes into one descriptor set of a pool so Send can submit
// them with a single driver call. Writing the same name twice keeps the last
// resource.
type Update struct {
	pool     *Pool
	index    uint32
	buffers  map[uint32]metadata.GPUBuffer
	textures map[uint32]metadata.Texture2d
	images   map[uint32]metadata.Texture2d
}

func NewUpdate(pool *Pool, index uint32) *Update {
	return &Update{
		pool:     pool,
		index:    index,
		buffers:  map[uint32]metadata.GPUBuffer{},
		textures: map[uint32]metadata.Texture2d{},
		images:   map[uint32]metadata.Texture2d{},
	}
}

func (u *Update) AddStorageBuffer(name string, buffer metadata.GPUBuffer) *Update {
	u.buffers[u.pool.layout.storageBuffer(name)] = buffer
	return u
}

func (u *Update) AddTexture(name string, tex metadata.Texture2d) *Update {
	u.textures[u.pool.layout.texture(name)] = tex
	return u
}

func (u *Update) AddImage(name string, image metadata.Texture2d) *Update {
	u.images[u.pool.layout.image(name)] = image
	return u
}

// Writes returns the batched writes: storage buffers first, then textures,
// then images, each in binding order.
func (u *Update) Writes() []metadata.DescriptorWrite {
	set := u.pool.Set(u.index)
	writes := make([]metadata.DescriptorWrite, 0, len(u.buffers)+len(u.textures)+len(u.images))

	for _, pos := range sortedKeys(u.buffers) {
		writes = append(writes, metadata.DescriptorWrite{
			Set:     set,
			Binding: pos,
			Type:    bufferType,
			Buffers: []metadata.GPUBuffer{u.buffers[pos]},
		})
	}
	for _, pos := range sortedKeys(u.textures) {
		writes = append(writes, metadata.DescriptorWrite{
			Set:      set,
			Binding:  pos,
			Type:     textureType,
			Textures: []metadata.Texture2d{u.textures[pos]},
		})
	}
	for _, pos := range sortedKeys(u.images) {
		writes = append(writes, metadata.DescriptorWrite{
			Set:      set,
			Binding:  pos,
			Type:     imageType,
			Textures: []metadata.Texture2d{u.images[pos]},
		})
	}
	return writes
}

// Send submits every batched write in one call. An empty batch sends nothing.
func (u *Update) Send() {
	writes := u.Writes()
	if len(writes) == 0 {
		return
	}
	u.pool.device.UpdateDescriptorSets(writes)
}

func sortedKeys[V any](m map[uint32]V) []uint32 {
	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}
