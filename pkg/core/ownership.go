package core

import "time"

// OwnershipAction is what happened to an owned object.
type OwnershipAction string

const (
	ActionSpawnAccepted OwnershipAction = "spawn_accepted"
	ActionSpawnRejected OwnershipAction = "spawn_rejected"
	ActionDeleted       OwnershipAction = "deleted"
	ActionDisconnect    OwnershipAction = "disconnect"
)

// OwnershipEvent is one entry of the server's ownership ledger.
type OwnershipEvent struct {
	Time       time.Time
	Connection ConnectionID
	Action     OwnershipAction
	NetworkID  NetworkID
	Object     ObjectHandle
	Reason     string
}

// OwnershipStats is a point-in-time view of the registry.
type OwnershipStats struct {
	Time        time.Time
	Connections int
	Objects     int
	Accepted    uint64
	Rejected    uint64
	Deleted     uint64
}
