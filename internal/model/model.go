package model

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels lists every struct that represents a table in the schema.
var DatabaseModels = []interface{}{
	&ServiceInfo{},
	&OwnershipEvent{},
	&Preference{},
	&RegistrySnapshot{},
}

// ServiceInfo describes the instance that owns the database.
type ServiceInfo struct {
	gorm.Model
	ResourceName string `json:"resourceName" gorm:"size:127"`
	Description  string `json:"description" gorm:"size:255"`
}

func (*ServiceInfo) TableName() string {
	return "service_infos"
}

// OwnershipEvent is one ledger entry of the ownership registry.
type OwnershipEvent struct {
	ID         uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time       time.Time `json:"time" gorm:"index"`
	Connection string    `json:"connection" gorm:"size:64;index"`
	Action     string    `json:"action" gorm:"size:32;index"`
	NetworkID  int32     `json:"networkId"`
	Object     int32     `json:"object"`
	Reason     string    `json:"reason" gorm:"size:255"`
	// Payload is the event as received, for auditing.
	Payload datatypes.JSON `json:"payload"`
}

func (*OwnershipEvent) TableName() string {
	return "ownership_events"
}

// Preference is one persisted client preference, scoped by profile.
type Preference struct {
	Profile   string    `json:"profile" gorm:"primaryKey;size:64"`
	Key       string    `json:"key" gorm:"primaryKey;size:127"`
	Value     string    `json:"value" gorm:"size:255"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (*Preference) TableName() string {
	return "preferences"
}

// RegistrySnapshot is a periodic sample of the ownership registry.
type RegistrySnapshot struct {
	ID          uint      `json:"id" gorm:"primarykey;autoIncrement"`
	Time        time.Time `json:"time" gorm:"index"`
	Connections int       `json:"connections"`
	Objects     int       `json:"objects"`
	Accepted    uint64    `json:"accepted"`
	Rejected    uint64    `json:"rejected"`
	Deleted     uint64    `json:"deleted"`
}

func (*RegistrySnapshot) TableName() string {
	return "registry_snapshots"
}
