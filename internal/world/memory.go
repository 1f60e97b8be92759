// Package world provides an in-memory view of networked objects for the
// standalone server and for tests.
package world

import (
	"sync"

	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

var _ host.World = (*Memory)(nil)

// Option configures a Memory world.
type Option func(*Memory)

// WithAutoReplicate makes unknown network ids resolve to a fresh object, as if
// replication had already completed. The standalone server runs this way.
func WithAutoReplicate() Option {
	return func(m *Memory) { m.autoReplicate = true }
}

// Memory is a host.World backed by maps.
type Memory struct {
	mu            sync.Mutex
	next          core.ObjectHandle
	byNet         map[core.NetworkID]core.ObjectHandle
	live          map[core.ObjectHandle]core.NetworkID
	deleted       []core.ObjectHandle
	autoReplicate bool
}

// NewMemory creates an empty world.
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		byNet: make(map[core.NetworkID]core.ObjectHandle),
		live:  make(map[core.ObjectHandle]core.NetworkID),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Replicate registers a networked object and returns its handle.
// Replicating a known id returns the existing handle.
func (m *Memory) Replicate(id core.NetworkID) core.ObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replicateLocked(id)
}

func (m *Memory) replicateLocked(id core.NetworkID) core.ObjectHandle {
	if h, ok := m.byNet[id]; ok {
		return h
	}
	m.next++
	m.byNet[id] = m.next
	m.live[m.next] = id
	return m.next
}

// ObjectFromNetworkID implements host.World.
func (m *Memory) ObjectFromNetworkID(id core.NetworkID) (core.ObjectHandle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok := m.byNet[id]; ok {
		return h, true
	}
	if m.autoReplicate && id.Valid() {
		return m.replicateLocked(id), true
	}
	return 0, false
}

// ObjectExists implements host.World.
func (m *Memory) ObjectExists(h core.ObjectHandle) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.live[h]
	return ok
}

// DeleteObject implements host.World. Deleting an unknown handle is a no-op.
func (m *Memory) DeleteObject(h core.ObjectHandle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.live[h]
	if !ok {
		return
	}
	delete(m.live, h)
	delete(m.byNet, id)
	m.deleted = append(m.deleted, h)
}

// Deleted returns the handles deleted so far, in order.
func (m *Memory) Deleted() []core.ObjectHandle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.ObjectHandle, len(m.deleted))
	copy(out, m.deleted)
	return out
}

// Len returns the number of live objects.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}
