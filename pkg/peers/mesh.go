package peers

import (
	"slices"
	"sync"
)

// DropFunc decides whether a datagram from one endpoint to another is lost.
type DropFunc func(from, to Handle, data []byte) bool

// Mesh is an in-memory, fully connected datagram network. Every endpoint
// that joins sees every other endpoint as a peer. Delivery is immediate and
// ordered unless a DropFunc or a partition discards the datagram.
//
// Mesh is safe for concurrent use.
type Mesh struct {
	mu       sync.Mutex
	next     Handle
	nodes    map[Handle]*Endpoint
	cut      map[[2]Handle]bool
	drop     DropFunc
	primary  Handle
	observer func(from, to Handle, data []byte)
}

// NewMesh creates an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{
		next:  1,
		nodes: make(map[Handle]*Endpoint),
		cut:   make(map[[2]Handle]bool),
	}
}

type datagram struct {
	from Handle
	data []byte
}

// Endpoint is one node's view of the mesh. It implements Transport.
type Endpoint struct {
	mesh   *Mesh
	handle Handle
	name   string
	inbox  []datagram
}

var _ Transport = (*Endpoint)(nil)

// Join adds a named endpoint. The first endpoint to join is the primary.
func (m *Mesh) Join(name string) *Endpoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &Endpoint{mesh: m, handle: m.next, name: name}
	m.next++
	m.nodes[e.handle] = e
	if m.primary == 0 {
		m.primary = e.handle
	}
	return e
}

// Leave removes e from the mesh. Pending datagrams for e are discarded.
func (m *Mesh) Leave(e *Endpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.nodes, e.handle)
	e.inbox = nil
}

// SetDrop installs a loss function; nil delivers everything.
func (m *Mesh) SetDrop(fn DropFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop = fn
}

// Observe installs a callback invoked for every delivered datagram.
func (m *Mesh) Observe(fn func(from, to Handle, data []byte)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// Partition cuts (or restores) both directions between a and b. Peers stay
// listed in PeerHandles while partitioned, as with a silent network.
func (m *Mesh) Partition(a, b Handle, cut bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cut {
		m.cut[[2]Handle{a, b}] = true
		m.cut[[2]Handle{b, a}] = true
	} else {
		delete(m.cut, [2]Handle{a, b})
		delete(m.cut, [2]Handle{b, a})
	}
}

// Inject delivers data to `to` as if sent by `from`, bypassing loss rules.
func (m *Mesh) Inject(from, to Handle, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst, ok := m.nodes[to]
	if !ok {
		return ErrUnknownPeer
	}
	dst.inbox = append(dst.inbox, datagram{from: from, data: append([]byte(nil), data...)})
	return nil
}

// Handle returns the endpoint's own handle as seen by other endpoints.
func (e *Endpoint) Handle() Handle {
	return e.handle
}

func (e *Endpoint) Update() error {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	if _, ok := e.mesh.nodes[e.handle]; !ok {
		return ErrClosed
	}
	return nil
}

func (e *Endpoint) PeerHandles() []Handle {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	if _, ok := e.mesh.nodes[e.handle]; !ok {
		return nil
	}
	handles := make([]Handle, 0, len(e.mesh.nodes))
	for h := range e.mesh.nodes {
		if h != e.handle {
			handles = append(handles, h)
		}
	}
	slices.Sort(handles)
	return handles
}

func (e *Endpoint) SendReady(h Handle) bool {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	_, ok := e.mesh.nodes[h]
	return ok
}

func (e *Endpoint) Send(h Handle, data []byte, _ bool) error {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	dst, ok := e.mesh.nodes[h]
	if !ok {
		return ErrUnknownPeer
	}
	if e.mesh.cut[[2]Handle{e.handle, h}] {
		return nil
	}
	if e.mesh.drop != nil && e.mesh.drop(e.handle, h, data) {
		return nil
	}
	msg := append([]byte(nil), data...)
	dst.inbox = append(dst.inbox, datagram{from: e.handle, data: msg})
	if e.mesh.observer != nil {
		e.mesh.observer(e.handle, h, msg)
	}
	return nil
}

func (e *Endpoint) ReceiveAnyPending() bool {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	return len(e.inbox) > 0
}

func (e *Endpoint) Receive(buf []byte) (int, Handle, error) {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	if len(e.inbox) == 0 {
		return 0, 0, ErrNoPending
	}
	d := e.inbox[0]
	e.inbox[0] = datagram{}
	e.inbox = e.inbox[1:]
	if len(d.data) > len(buf) {
		return 0, d.from, ErrBufferTooSmall
	}
	return copy(buf, d.data), d.from, nil
}

func (e *Endpoint) IsPrimary() bool {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	return e.mesh.primary == e.handle
}

func (e *Endpoint) PeerName(h Handle) string {
	e.mesh.mu.Lock()
	defer e.mesh.mu.Unlock()
	if n, ok := e.mesh.nodes[h]; ok {
		return n.name
	}
	return ""
}
