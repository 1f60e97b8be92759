// Package convert maps domain types to their GORM rows and back.
package convert

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/scaleformeter/scaleformeter/internal/model"
	"github.com/scaleformeter/scaleformeter/pkg/core"
)

// CoreToOwnershipEvent converts a ledger event to its row.
func CoreToOwnershipEvent(e core.OwnershipEvent) model.OwnershipEvent {
	row := model.OwnershipEvent{
		Time:       e.Time,
		Connection: string(e.Connection),
		Action:     string(e.Action),
		NetworkID:  int32(e.NetworkID),
		Object:     int32(e.Object),
		Reason:     e.Reason,
	}
	if payload, err := json.Marshal(e); err == nil {
		row.Payload = datatypes.JSON(payload)
	}
	return row
}

// OwnershipEventToCore converts a row back to a ledger event.
func OwnershipEventToCore(row model.OwnershipEvent) core.OwnershipEvent {
	return core.OwnershipEvent{
		Time:       row.Time,
		Connection: core.ConnectionID(row.Connection),
		Action:     core.OwnershipAction(row.Action),
		NetworkID:  core.NetworkID(row.NetworkID),
		Object:     core.ObjectHandle(row.Object),
		Reason:     row.Reason,
	}
}

// CoreToRegistrySnapshot converts registry stats to a snapshot row.
func CoreToRegistrySnapshot(s core.OwnershipStats) model.RegistrySnapshot {
	return model.RegistrySnapshot{
		Time:        s.Time,
		Connections: s.Connections,
		Objects:     s.Objects,
		Accepted:    s.Accepted,
		Rejected:    s.Rejected,
		Deleted:     s.Deleted,
	}
}
