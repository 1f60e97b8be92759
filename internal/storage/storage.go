// Package storage defines the persistence contract for the ownership ledger
// and client preferences.
package storage

import "github.com/scaleformeter/scaleformeter/pkg/core"

// Backend is the interface all storage implementations must satisfy.
type Backend interface {
	// Lifecycle
	Init() error
	Close() error

	// Ownership ledger
	RecordOwnership(e core.OwnershipEvent) error
	RecordSnapshot(s core.OwnershipStats) error
	OwnershipEvents(conn core.ConnectionID) ([]core.OwnershipEvent, error)

	// Preferences, scoped by profile
	GetPreference(profile, key string) (string, bool, error)
	SetPreference(profile, key, value string) error
}
