package client

import (
	"context"
	"fmt"

	"github.com/scaleformeter/scaleformeter/internal/catalog"
	"github.com/scaleformeter/scaleformeter/internal/overlay"
	"github.com/scaleformeter/scaleformeter/internal/projection"
	"github.com/scaleformeter/scaleformeter/internal/transport"
	"github.com/scaleformeter/scaleformeter/pkg/core"
	"github.com/scaleformeter/scaleformeter/pkg/streaming"
)

// Transport is the part of transport.Client the runtime relies on.
type Transport interface {
	Request(ctx context.Context, typ string, payload, out any) error
	Send(typ string, payload any) error
	OnNotice(typ string, fn transport.NoticeFunc)
}

var (
	_ Transport            = (*transport.Client)(nil)
	_ overlay.ConfigSource = (*Remote)(nil)
	_ projection.Peer      = (*Remote)(nil)
)

// Remote issues the overlay protocol requests over a Transport.
type Remote struct {
	t Transport
}

// NewRemote wraps t.
func NewRemote(t Transport) *Remote {
	return &Remote{t: t}
}

// RequestConfig fetches the settings and preset catalog for resource. An empty
// catalog is returned as is; every preset of a non-empty one is validated.
func (r *Remote) RequestConfig(ctx context.Context, resource string) (core.GlobalSettings, *core.PresetCatalog, error) {
	var reply streaming.ConfigReply
	err := r.t.Request(ctx, streaming.TypeRequestConfig, streaming.RequestConfigPayload{Resource: resource}, &reply)
	if err != nil {
		return core.GlobalSettings{}, nil, err
	}
	if reply.Catalog == nil {
		reply.Catalog = core.NewPresetCatalog()
	}
	if reply.Catalog.Len() > 0 {
		if err := catalog.Validate(reply.Catalog); err != nil {
			return core.GlobalSettings{}, nil, err
		}
	}
	return reply.Settings, reply.Catalog, nil
}

// ConfirmSpawn asks the server to take ownership of id.
func (r *Remote) ConfirmSpawn(ctx context.Context, id core.NetworkID) (bool, error) {
	var reply streaming.SpawnConfirmationReply
	if err := r.t.Request(ctx, streaming.TypeSpawnConfirmation, streaming.SpawnConfirmationPayload{NetID: id}, &reply); err != nil {
		return false, err
	}
	return reply.Accepted, nil
}

// DeleteAllOwned asks the server to delete every object this client owns.
func (r *Remote) DeleteAllOwned() error {
	if err := r.t.Send(streaming.TypeDeleteAllOwned, nil); err != nil {
		return fmt.Errorf("%s: %w", streaming.TypeDeleteAllOwned, err)
	}
	return nil
}
