// Package memory implements the storage.Backend interface in process memory.
// The ledger can be exported as JSON when the backend closes.
package memory

import (
	"sync"

	"github.com/scaleformeter/scaleformeter/internal/config"
	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// Backend keeps the ownership ledger and preferences in memory.
type Backend struct {
	cfg config.MemoryConfig

	mu          sync.RWMutex
	events      []core.OwnershipEvent
	snapshots   []core.OwnershipStats
	preferences map[string]map[string]string // profile -> key -> value

	lastExportPath string
}

// New creates a new memory backend.
func New(cfg config.MemoryConfig) *Backend {
	return &Backend{
		cfg:         cfg,
		preferences: make(map[string]map[string]string),
	}
}

// Init initializes the backend.
func (b *Backend) Init() error {
	return nil
}

// Close exports the ledger when an output directory is configured.
func (b *Backend) Close() error {
	if b.cfg.OutputDir == "" {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exportJSON()
}

// RecordOwnership appends e to the ledger.
func (b *Backend) RecordOwnership(e core.OwnershipEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

// RecordSnapshot appends s to the registry history.
func (b *Backend) RecordSnapshot(s core.OwnershipStats) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.snapshots = append(b.snapshots, s)
	return nil
}

// OwnershipEvents returns the ledger entries of conn, or all of them when
// conn is empty.
func (b *Backend) OwnershipEvents(conn core.ConnectionID) ([]core.OwnershipEvent, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]core.OwnershipEvent, 0, len(b.events))
	for _, e := range b.events {
		if conn == "" || e.Connection == conn {
			out = append(out, e)
		}
	}
	return out, nil
}

// Snapshots returns the recorded registry history.
func (b *Backend) Snapshots() []core.OwnershipStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]core.OwnershipStats, len(b.snapshots))
	copy(out, b.snapshots)
	return out
}

// GetPreference returns the stored value of key for profile.
func (b *Backend) GetPreference(profile, key string) (string, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.preferences[profile][key]
	return v, ok, nil
}

// SetPreference stores value under key for profile.
func (b *Backend) SetPreference(profile, key, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	prefs, ok := b.preferences[profile]
	if !ok {
		prefs = make(map[string]string)
		b.preferences[profile] = prefs
	}
	prefs[key] = value
	return nil
}

// LastExportPath returns the path written by the last export, if any.
func (b *Backend) LastExportPath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}
