package core

import "fmt"

// NetworkID is the session-wide identity of a replicated object.
// Zero means the object has not been assigned one yet.
type NetworkID int32

// Valid reports whether the id has been assigned.
func (id NetworkID) Valid() bool {
	return id != 0
}

// ObjectHandle is a host-local reference to an object. Zero is never a live object.
type ObjectHandle int32

// ConnectionID identifies a connected participant on the server.
type ConnectionID string

// Resolution is the screen size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}
