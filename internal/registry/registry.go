// Package registry tracks which connection owns which networked object on the
// server and tears those objects down when the owner asks or goes away.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/internal/wait"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/host"
)

// Ledger persists ownership events.
type Ledger interface {
	RecordOwnership(e core.OwnershipEvent) error
}

// Metrics receives ownership events for counters.
type Metrics interface {
	WriteOwnership(e core.OwnershipEvent)
}

// Dependencies holds everything the registry needs.
type Dependencies struct {
	World    host.World
	Ledger   Ledger  // optional
	Metrics  Metrics // optional
	Logger   *slog.Logger
	Timeouts config.TimeoutsConfig
}

// Registry maps connections to the objects they own. At most one connection
// owns a given object. The mutex is never held while waiting on the world.
//
// A confirmation may still be waiting when its connection drops. Disconnected
// connections are remembered long enough to outlive any such wait, and a
// confirmation that completes for one is rejected and its object deleted.
type Registry struct {
	deps Dependencies
	log  *slog.Logger

	mu     sync.Mutex
	owned  map[core.ConnectionID][]core.ObjectHandle
	owners map[core.ObjectHandle]core.ConnectionID
	closed map[core.ConnectionID]time.Time

	accepted uint64
	rejected uint64
	deleted  uint64
}

// New creates an empty registry.
func New(deps Dependencies) *Registry {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Timeouts == (config.TimeoutsConfig{}) {
		deps.Timeouts = config.DefaultTimeouts()
	}
	return &Registry{
		deps:   deps,
		log:    deps.Logger.With("component", "registry"),
		owned:  make(map[core.ConnectionID][]core.ObjectHandle),
		owners: make(map[core.ObjectHandle]core.ConnectionID),
		closed: make(map[core.ConnectionID]time.Time),
	}
}

// HandleSpawnConfirmation waits for netID to resolve to an existing object and
// records conn as its owner. It returns false on either wait timing out or when
// another connection already owns the object; the owned set is unchanged then.
func (r *Registry) HandleSpawnConfirmation(ctx context.Context, conn core.ConnectionID, netID core.NetworkID) bool {
	if !netID.Valid() {
		r.reject(conn, netID, 0, "invalid network id")
		return false
	}

	t := r.deps.Timeouts
	h, err := wait.For(ctx, t.Resolve, t.PollInterval, func() (core.ObjectHandle, bool) {
		return r.deps.World.ObjectFromNetworkID(netID)
	})
	if err != nil {
		r.reject(conn, netID, 0, waitReason("resolve", err))
		return false
	}

	err = wait.Until(ctx, t.Exists, t.PollInterval, func() bool {
		return r.deps.World.ObjectExists(h)
	})
	if err != nil {
		r.reject(conn, netID, h, waitReason("exists", err))
		return false
	}

	r.mu.Lock()
	if owner, ok := r.owners[h]; ok && owner != conn {
		r.mu.Unlock()
		r.reject(conn, netID, h, "owned by "+string(owner))
		return false
	}
	if _, gone := r.closed[conn]; gone {
		r.mu.Unlock()
		r.deps.World.DeleteObject(h)
		r.reject(conn, netID, h, "connection closed")
		return false
	}
	if _, ok := r.owners[h]; !ok {
		r.owners[h] = conn
		r.owned[conn] = append(r.owned[conn], h)
	}
	r.accepted++
	r.mu.Unlock()

	r.log.Info("Spawn accepted", "conn", conn, "netId", netID, "object", h)
	r.record(core.OwnershipEvent{Connection: conn, Action: core.ActionSpawnAccepted, NetworkID: netID, Object: h})
	return true
}

// HandleDeleteAllOwned deletes every object owned by conn. Each object leaves
// the set before the world delete. Calling it with nothing owned is a no-op.
func (r *Registry) HandleDeleteAllOwned(conn core.ConnectionID) int {
	return r.sweep(conn, core.ActionDeleted)
}

// HandleDisconnect deletes everything conn owned and forgets the connection.
func (r *Registry) HandleDisconnect(conn core.ConnectionID) int {
	now := time.Now()
	retain := 2 * (r.deps.Timeouts.Resolve + r.deps.Timeouts.Exists)
	r.mu.Lock()
	for c, at := range r.closed {
		if now.Sub(at) > retain {
			delete(r.closed, c)
		}
	}
	r.closed[conn] = now
	r.mu.Unlock()

	n := r.sweep(conn, core.ActionDisconnect)
	r.log.Debug("Connection dropped", "conn", conn, "deleted", n)
	return n
}

func (r *Registry) sweep(conn core.ConnectionID, action core.OwnershipAction) int {
	r.mu.Lock()
	set := r.owned[conn]
	delete(r.owned, conn)
	for _, h := range set {
		delete(r.owners, h)
	}
	r.deleted += uint64(len(set))
	r.mu.Unlock()

	for _, h := range set {
		r.deps.World.DeleteObject(h)
		r.log.Info("Deleted owned object", "conn", conn, "object", h, "reason", string(action))
		r.record(core.OwnershipEvent{Connection: conn, Action: action, Object: h})
	}
	return len(set)
}

// Owned returns a copy of the objects conn owns, in acceptance order.
func (r *Registry) Owned(conn core.ConnectionID) []core.ObjectHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.owned[conn])
}

// Owner returns the connection owning h.
func (r *Registry) Owner(h core.ObjectHandle) (core.ConnectionID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.owners[h]
	return c, ok
}

// Connections returns the connections that currently own something, sorted.
func (r *Registry) Connections() []core.ConnectionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.ConnectionID, 0, len(r.owned))
	for c := range r.owned {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// Stats returns a snapshot of the registry counters.
func (r *Registry) Stats() core.OwnershipStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return core.OwnershipStats{
		Time:        time.Now(),
		Connections: len(r.owned),
		Objects:     len(r.owners),
		Accepted:    r.accepted,
		Rejected:    r.rejected,
		Deleted:     r.deleted,
	}
}

func (r *Registry) reject(conn core.ConnectionID, netID core.NetworkID, h core.ObjectHandle, reason string) {
	r.mu.Lock()
	r.rejected++
	r.mu.Unlock()

	r.log.Warn("Spawn rejected", "conn", conn, "netId", netID, "reason", reason)
	r.record(core.OwnershipEvent{Connection: conn, Action: core.ActionSpawnRejected, NetworkID: netID, Object: h, Reason: reason})
}

func (r *Registry) record(e core.OwnershipEvent) {
	e.Time = time.Now()
	if r.deps.Ledger != nil {
		if err := r.deps.Ledger.RecordOwnership(e); err != nil {
			r.log.Error("Failed to record ownership event", "action", e.Action, "error", err)
		}
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.WriteOwnership(e)
	}
}

func waitReason(stage string, err error) string {
	if errors.Is(err, wait.ErrTimeout) {
		return stage + " timed out"
	}
	return stage + ": " + err.Error()
}
