package streaming

import (
	"encoding/json"
	"fmt"

	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// Message type constants of the overlay protocol.
const (
	TypeRequestConfig     = "request_config"
	TypeSpawnConfirmation = "spawn_confirmation"
	TypeDeleteAllOwned    = "delete_all_owned"
	TypeLiveReload        = "live_reload"
	TypeReply             = "reply"
)

// Envelope wraps all messages sent over the WebSocket. Requests that expect a
// reply carry an ID; the reply echoes it with Type "reply".
type Envelope struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// NewEnvelope marshals payload into an envelope of the given type.
// A nil payload leaves Payload empty.
func NewEnvelope(id, typ string, payload any) (Envelope, error) {
	env := Envelope{ID: id, Type: typ}
	if payload == nil {
		return env, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	env.Payload = data
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: empty payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: decode payload: %w", e.Type, err)
	}
	return nil
}

// RequestConfigPayload asks the server for the settings and preset catalog.
type RequestConfigPayload struct {
	Resource string `json:"resource"`
}

// ConfigReply carries the server's settings and ordered preset catalog.
type ConfigReply struct {
	Settings core.GlobalSettings `json:"settings"`
	Catalog  *core.PresetCatalog `json:"catalog"`
}

// SpawnConfirmationPayload asks the server to take ownership of a replicated object.
type SpawnConfirmationPayload struct {
	NetID core.NetworkID `json:"netId"`
}

// SpawnConfirmationReply is the server's verdict.
type SpawnConfirmationReply struct {
	Accepted bool `json:"accepted"`
}

// LiveReloadPayload names an overlay asset that changed on disk.
type LiveReloadPayload struct {
	Overlay string `json:"overlay"`
}
