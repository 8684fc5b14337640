package rendergraph

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/math"
	"github.com/spaghettifunk/revolution/engine/renderer"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// BufferDesc describes a render target the graph allocates itself.
type BufferDesc struct {
	Size      math.Vec2u
	Format    metadata.BufferFormat
	AntiAlias metadata.AntiAlias
}

type cachedFrameBuffer struct {
	handle metadata.FrameBuffer
	desc   metadata.FrameBufferDescriptor
	locked bool
}

type cachedTexture struct {
	handle metadata.Texture2d
	desc   BufferDesc
	locked bool
}

// CacheStats reports the size of the pools and how many entries are locked.
type CacheStats struct {
	FrameBuffers       int
	Textures           int
	LockedFrameBuffers int
	LockedTextures     int
}

// FrameBufferCache pools framebuffers and render target textures across
// frames. A request returns the first unlocked entry whose descriptor is
// exactly equal and locks it; if there is none a new resource is created.
// Locks are dropped per resource with FreeBuffer/FreeTexture or all at once
// with FreeResources.
type FrameBufferCache struct {
	device       renderer.Device
	sampler      metadata.TextureSampler
	frameBuffers []cachedFrameBuffer
	textures     []cachedTexture
}

func NewFrameBufferCache(device renderer.Device) (*FrameBufferCache, error) {
	sampler, err := device.CreateTextureSampler(metadata.SamplerDescriptor{
		Filter: metadata.SamplerFilterLinear,
		WrapS:  metadata.SamplerWrapClamp,
		WrapT:  metadata.SamplerWrapClamp,
	})
	if err != nil {
		return nil, fmt.Errorf("frame buffer cache sampler: %w", err)
	}
	return &FrameBufferCache{
		device:  device,
		sampler: sampler,
	}, nil
}

func (c *FrameBufferCache) RequestFrameBuffer(desc metadata.FrameBufferDescriptor) (metadata.FrameBuffer, error) {
	for i := range c.frameBuffers {
		entry := &c.frameBuffers[i]
		if !entry.locked && entry.desc.Equal(desc) {
			entry.locked = true
			return entry.handle, nil
		}
	}

	if desc.Name == "" {
		desc.Name = "fb-" + uuid.NewString()
	}
	fb, err := c.device.CreateFrameBuffer(desc)
	if err != nil {
		return metadata.FrameBuffer{}, fmt.Errorf("request framebuffer %s: %w", desc.Name, err)
	}
	c.frameBuffers = append(c.frameBuffers, cachedFrameBuffer{handle: fb, desc: desc, locked: true})
	core.LogDebug("framebuffer cache miss, created %s with %d attachments", desc.Name, len(desc.Attachments))
	return fb, nil
}

func (c *FrameBufferCache) RequestTargetTexture(desc BufferDesc) (metadata.Texture2d, error) {
	for i := range c.textures {
		entry := &c.textures[i]
		if !entry.locked && entry.desc == desc {
			entry.locked = true
			return entry.handle, nil
		}
	}

	texDesc := c.textureDescriptor(desc)
	tex, err := c.device.CreateTexture2d(texDesc)
	if err != nil {
		return metadata.Texture2d{}, fmt.Errorf("request target texture %dx%d %s: %w", desc.Size.X, desc.Size.Y, desc.Format, err)
	}
	c.textures = append(c.textures, cachedTexture{handle: tex, desc: desc, locked: true})
	core.LogDebug("texture cache miss, created %s %dx%d %s", texDesc.Name, desc.Size.X, desc.Size.Y, desc.Format)
	return tex, nil
}

func (c *FrameBufferCache) textureDescriptor(desc BufferDesc) metadata.TextureDescriptor {
	texDesc := metadata.TextureDescriptor{
		Name:      "rt-" + uuid.NewString(),
		Size:      desc.Size,
		Depth:     desc.Format.IsDepth(),
		SRGB:      desc.Format == metadata.BufferFormatSRGBA8,
		MipLevels: 1,
		Samples:   desc.AntiAlias.Samples(),
		Sampler:   c.sampler,
	}
	switch desc.Format {
	case metadata.BufferFormatRGBA8, metadata.BufferFormatSRGBA8:
		texDesc.PixelFormat.Channel = metadata.ChannelFormatByte
	default:
		texDesc.PixelFormat.Channel = metadata.ChannelFormatFloat32
	}
	if texDesc.Depth {
		texDesc.PixelFormat.NumChannels = 1
	} else {
		texDesc.PixelFormat.NumChannels = 4
	}
	return texDesc
}

// FreeBuffer unlocks a single framebuffer so later requests can reuse it.
func (c *FrameBufferCache) FreeBuffer(fb metadata.FrameBuffer) {
	for i := range c.frameBuffers {
		if c.frameBuffers[i].handle == fb {
			c.frameBuffers[i].locked = false
			return
		}
	}
	core.LogWarn("free of framebuffer %d not owned by the cache", fb.ID)
}

// FreeTexture unlocks a single target texture so later requests can reuse it.
func (c *FrameBufferCache) FreeTexture(tex metadata.Texture2d) {
	for i := range c.textures {
		if c.textures[i].handle == tex {
			c.textures[i].locked = false
			return
		}
	}
	core.LogWarn("free of texture %d not owned by the cache", tex.ID)
}

// EvictTexture destroys every pooled framebuffer attaching tex. Call it before
// destroying a texture the cache does not own, such as an imported one, since
// a new texture may get its handle and match the stale entries.
func (c *FrameBufferCache) EvictTexture(tex metadata.Texture2d) int {
	kept := c.frameBuffers[:0]
	evicted := 0
	for _, entry := range c.frameBuffers {
		if !entry.desc.References(tex) {
			kept = append(kept, entry)
			continue
		}
		core.Assert(!entry.locked, "evicting framebuffer %s while it is in use", entry.desc.Name)
		c.device.DestroyFrameBuffer(entry.handle)
		evicted++
	}
	c.frameBuffers = kept
	if evicted > 0 {
		core.LogDebug("frame buffer cache evicted %d framebuffers of texture %d", evicted, tex.ID)
	}
	return evicted
}

// FreeResources unlocks every pooled resource. Call once per frame boundary.
func (c *FrameBufferCache) FreeResources() {
	for i := range c.frameBuffers {
		c.frameBuffers[i].locked = false
	}
	for i := range c.textures {
		c.textures[i].locked = false
	}
}

// DeallocateResources destroys every pooled GPU resource and empties the pool.
func (c *FrameBufferCache) DeallocateResources() {
	for _, entry := range c.frameBuffers {
		c.device.DestroyFrameBuffer(entry.handle)
	}
	for _, entry := range c.textures {
		c.device.DestroyTexture2d(entry.handle)
	}
	core.LogDebug("frame buffer cache released %d framebuffers and %d textures", len(c.frameBuffers), len(c.textures))
	c.frameBuffers = nil
	c.textures = nil
}

// Destroy releases the pool and the shared sampler.
func (c *FrameBufferCache) Destroy() {
	c.DeallocateResources()
	if c.sampler.IsValid() {
		c.device.DestroyTextureSampler(c.sampler)
		c.sampler = metadata.TextureSampler{}
	}
}

func (c *FrameBufferCache) Stats() CacheStats {
	s := CacheStats{
		FrameBuffers: len(c.frameBuffers),
		Textures:     len(c.textures),
	}
	for _, entry := range c.frameBuffers {
		if entry.locked {
			s.LockedFrameBuffers++
		}
	}
	for _, entry := range c.textures {
		if entry.locked {
			s.LockedTextures++
		}
	}
	return s
}
