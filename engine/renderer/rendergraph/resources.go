package rendergraph

import (
	"github.com/spaghettifunk/revolution/engine/core"
	"github.com/spaghettifunk/revolution/engine/renderer/metadata"
)

// Attachment is a versioned handle to a graph resource. The zero value is
// the invalid attachment. Ids increase with every write and import.
type Attachment struct{ id uint32 }

func (a Attachment) IsValid() bool { return a.id != 0 }

func (a Attachment) index() int { return int(a.id) - 1 }

type resourceKind int

const (
	resourceGenerated resourceKind = iota
	resourceExternalFrameBuffer
	resourceExternalTexture
)

// VirtualResource is a logical resource before a physical one is assigned.
// Exactly one of Desc, FrameBuffer or Texture is meaningful, depending on
// how it was created.
type VirtualResource struct {
	kind        resourceKind
	Desc        BufferDesc
	FrameBuffer metadata.FrameBuffer
	Texture     metadata.Texture2d
	Side        metadata.CubeMapSide
	latest      uint32
}

func (r *VirtualResource) IsExternal() bool {
	return r.kind != resourceGenerated
}

func (r *VirtualResource) IsDepth() bool {
	return r.kind == resourceGenerated && r.Desc.Format.IsDepth()
}

// PassState is one version of a virtual resource along with the passes that
// produce, read and overwrite it.
type PassState struct {
	Resource     int
	WriteCounter uint32

	producer   int
	overwriter int
	readers    []int
}

// VirtualResourceTable records every resource and version declared while a
// graph is being built.
type VirtualResourceTable struct {
	resources []VirtualResource
	states    []PassState
}

func (t *VirtualResourceTable) addState(resource int, counter uint32, producer int) Attachment {
	t.states = append(t.states, PassState{
		Resource:     resource,
		WriteCounter: counter,
		producer:     producer,
		overwriter:   -1,
	})
	t.resources[resource].latest = counter
	return Attachment{id: uint32(len(t.states))}
}

// AddGenerated creates a graph-owned resource whose first version is written by producer.
func (t *VirtualResourceTable) AddGenerated(desc BufferDesc, producer int) Attachment {
	t.resources = append(t.resources, VirtualResource{kind: resourceGenerated, Desc: desc})
	return t.addState(len(t.resources)-1, 1, producer)
}

// AddFrameBuffer imports an external framebuffer written by producer.
func (t *VirtualResourceTable) AddFrameBuffer(fb metadata.FrameBuffer, producer int) Attachment {
	t.resources = append(t.resources, VirtualResource{kind: resourceExternalFrameBuffer, FrameBuffer: fb})
	return t.addState(len(t.resources)-1, 1, producer)
}

// AddTexture imports an external texture. Its first version has no producer.
func (t *VirtualResourceTable) AddTexture(tex metadata.Texture2d, side metadata.CubeMapSide) Attachment {
	t.resources = append(t.resources, VirtualResource{kind: resourceExternalTexture, Texture: tex, Side: side})
	return t.addState(len(t.resources)-1, 0, -1)
}

// NewVersion records that writer produces the version following src.
// Writing from anything but the latest version forks the history and is fatal.
func (t *VirtualResourceTable) NewVersion(src Attachment, writer int) Attachment {
	core.Assert(t.Contains(src), "write from unknown attachment %d", src.id)
	state := &t.states[src.index()]
	resource := &t.resources[state.Resource]
	core.Assert(state.WriteCounter == resource.latest,
		"write from stale version %d of resource %d, latest is %d", state.WriteCounter, state.Resource, resource.latest)
	state.overwriter = writer
	return t.addState(state.Resource, state.WriteCounter+1, writer)
}

// AddReader records that reader consumes att.
func (t *VirtualResourceTable) AddReader(att Attachment, reader int) {
	state := &t.states[att.index()]
	state.readers = append(state.readers, reader)
}

func (t *VirtualResourceTable) Contains(att Attachment) bool {
	return att.IsValid() && att.index() < len(t.states)
}

func (t *VirtualResourceTable) State(att Attachment) PassState {
	return t.states[att.index()]
}

func (t *VirtualResourceTable) Resource(att Attachment) *VirtualResource {
	return &t.resources[t.states[att.index()].Resource]
}

func (t *VirtualResourceTable) NumResources() int {
	return len(t.resources)
}

func (t *VirtualResourceTable) NumStates() int {
	return len(t.states)
}

func (t *VirtualResourceTable) Reset() {
	t.resources = t.resources[:0]
	t.states = t.states[:0]
}
