package rendergraph

import (
	"fmt"

	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// Compile orders the passes and assigns physical resources to every virtual
// one. A transient texture whose last use is a read inside the graph is handed
// back to the cache right after that read, so passes further down the order
// can alias it. Outputs nobody reads stay locked until FreeResources.
func (g *RenderGraph) Compile() error {
	if g.state == graphCompiled {
		return nil
	}
	g.order = g.sortPasses()

	g.physical = make([]metadata.Texture2d, g.resources.NumResources())
	lastRead := g.lastReads()

	for pos, idx := range g.order {
		info := &g.passes[idx]
		if err := g.resolvePass(info); err != nil {
			g.unlockPhysical(lastRead, pos)
			return fmt.Errorf("compile pass %q: %w", info.name, err)
		}
		g.releaseAfter(pos, lastRead)
	}

	g.state = graphCompiled
	core.LogDebug("render graph compiled: %d passes, %d resources, %d versions",
		len(g.passes), g.resources.NumResources(), g.resources.NumStates())
	return nil
}

// sortPasses is a topological sort over the dependencies implied by the
// resource versions. Each version orders its producer before its readers and
// before the pass writing the next version, and every reader before that
// overwriting pass. Among ready passes the one declared first goes first, so
// an already valid declaration order is kept.
func (g *RenderGraph) sortPasses() []int {
	n := len(g.passes)
	succ := make([][]int, n)
	indegree := make([]int, n)
	seen := make(map[[2]int]struct{})
	addEdge := func(from, to int) {
		if from < 0 || to < 0 || from == to {
			return
		}
		key := [2]int{from, to}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		succ[from] = append(succ[from], to)
		indegree[to]++
	}

	for _, s := range g.resources.states {
		for _, r := range s.readers {
			addEdge(s.producer, r)
			addEdge(r, s.overwriter)
		}
		addEdge(s.producer, s.overwriter)
	}

	order := make([]int, 0, n)
	done := make([]bool, n)
	for len(order) < n {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		core.Assert(next >= 0, "render graph has a dependency cycle")
		done[next] = true
		order = append(order, next)
		for _, s := range succ[next] {
			indegree[s]--
		}
	}
	return order
}

// lastReads maps every resource to the position in the order of the pass
// reading it last, or -1 when its last use is a write. Only those reads may
// release the resource.
func (g *RenderGraph) lastReads() []int {
	position := make([]int, len(g.passes))
	for pos, idx := range g.order {
		position[idx] = pos
	}
	n := g.resources.NumResources()
	last := make([]int, n)
	isRead := make([]bool, n)
	for i := range last {
		last[i] = -1
	}
	use := func(att Attachment, passIdx int, read bool) {
		r := g.resources.State(att).Resource
		if pos := position[passIdx]; pos >= last[r] {
			last[r] = pos
			isRead[r] = read
		}
	}
	for idx, info := range g.passes {
		for _, in := range info.colorInputs {
			use(in.att, idx, true)
		}
		for _, in := range info.depthInputs {
			use(in.att, idx, true)
		}
		for _, out := range info.colorOutputs {
			use(out.dst, idx, false)
		}
		if info.depthOutput != nil {
			use(info.depthOutput.dst, idx, false)
		}
	}
	for r := range last {
		if !isRead[r] {
			last[r] = -1
		}
	}
	return last
}

// physicalTexture returns the texture behind att, requesting one from the
// cache the first time a generated resource is touched.
func (g *RenderGraph) physicalTexture(att Attachment) (metadata.Texture2d, error) {
	r := g.resources.State(att).Resource
	if g.physical[r].IsValid() {
		return g.physical[r], nil
	}
	res := g.resources.Resource(att)
	switch res.kind {
	case resourceExternalTexture:
		g.physical[r] = res.Texture
	case resourceGenerated:
		tex, err := g.cache.RequestTargetTexture(res.Desc)
		if err != nil {
			return metadata.Texture2d{}, err
		}
		g.physical[r] = tex
	}
	return g.physical[r], nil
}

func (g *RenderGraph) resolvePass(info *passInfo) error {
	if info.external != nil {
		info.frameBuffer = g.resources.Resource(info.external.dst).FrameBuffer
		return nil
	}

	for _, in := range append(append([]inputBinding(nil), info.colorInputs...), info.depthInputs...) {
		r := g.resources.State(in.att).Resource
		if g.resources.Resource(in.att).kind == resourceExternalTexture {
			g.physical[r] = g.resources.Resource(in.att).Texture
		}
		core.Assert(g.physical[r].IsValid(), "pass %q reads a resource before it is written", info.name)
	}

	var desc metadata.FrameBufferDescriptor
	for _, out := range info.colorOutputs {
		tex, err := g.physicalTexture(out.dst)
		if err != nil {
			return err
		}
		desc.Attachments = append(desc.Attachments, metadata.FrameBufferAttachment{
			Target:  metadata.AttachmentTargetColor,
			Texture: tex,
			Side:    g.resources.Resource(out.dst).Side,
		})
	}
	if info.depthOutput != nil {
		tex, err := g.physicalTexture(info.depthOutput.dst)
		if err != nil {
			return err
		}
		desc.Attachments = append(desc.Attachments, metadata.FrameBufferAttachment{
			Target:  metadata.AttachmentTargetDepth,
			Texture: tex,
		})
	} else if len(info.depthInputs) > 0 {
		// Read only depth.
		desc.Attachments = append(desc.Attachments, metadata.FrameBufferAttachment{
			Target:  metadata.AttachmentTargetDepth,
			Texture: g.physical[g.resources.State(info.depthInputs[0].att).Resource],
		})
	}

	if len(desc.Attachments) == 0 {
		info.frameBuffer = metadata.FrameBuffer{}
		return nil
	}
	desc.Name = info.name
	fb, err := g.cache.RequestFrameBuffer(desc)
	if err != nil {
		return err
	}
	info.frameBuffer = fb
	// Framebuffers only reference textures; the texture locks below decide reuse.
	g.cache.FreeBuffer(fb)
	return nil
}

// releaseAfter unlocks generated textures whose last read is at pos.
func (g *RenderGraph) releaseAfter(pos int, lastRead []int) {
	for r, last := range lastRead {
		if last != pos {
			continue
		}
		if g.resources.resources[r].kind == resourceGenerated && g.physical[r].IsValid() {
			g.cache.FreeTexture(g.physical[r])
		}
	}
}

// unlockPhysical hands back every generated texture this compile still holds
// after the pass at failedPos failed, and forgets the physical mapping.
func (g *RenderGraph) unlockPhysical(lastRead []int, failedPos int) {
	for r, tex := range g.physical {
		if !tex.IsValid() || g.resources.resources[r].kind != resourceGenerated {
			continue
		}
		if last := lastRead[r]; last >= 0 && last < failedPos {
			continue
		}
		g.cache.FreeTexture(tex)
	}
	g.physical = nil
	g.order = nil
}
