package core

import "errors"

// Error taxonomy shared by client and server. Callers match with errors.Is.
var (
	// ErrConfig marks a malformed or missing settings/catalog document. Fatal to the load attempt.
	ErrConfig = errors.New("config error")

	// ErrResourceLoadTimeout is returned when a model or overlay never finished loading.
	ErrResourceLoadTimeout = errors.New("resource load timeout")

	// ErrReplicationTimeout is returned when a spawned object never got a network identity.
	ErrReplicationTimeout = errors.New("replication timeout")

	// ErrRejectedByPeer is returned when the server declined a spawn confirmation.
	ErrRejectedByPeer = errors.New("rejected by peer")

	// ErrInvalidCommandContext is returned for a control operation outside the Ready phase.
	ErrInvalidCommandContext = errors.New("invalid command context")

	// ErrBusy is returned when a projected object create or delete is already in flight.
	ErrBusy = errors.New("operation in flight")

	// ErrInitInProgress is returned when an overlay initialization is already running.
	ErrInitInProgress = errors.New("initialization in progress")
)
