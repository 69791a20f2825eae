package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one mutation with its before/after snapshot.
// ActorID is nil for system changes.
type AuditLog struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	CreatedAt  time.Time      `gorm:"index" json:"created_at"`
	ActorID    *uint          `gorm:"index" json:"actor_id"`
	EntityType string         `gorm:"size:50;not null;index:idx_audit_entity" json:"entity_type"`
	EntityID   uint           `gorm:"not null;index:idx_audit_entity" json:"entity_id"`
	Action     string         `gorm:"size:50;not null" json:"action"`
	OldValues  datatypes.JSON `json:"old_values,omitempty"`
	NewValues  datatypes.JSON `json:"new_values,omitempty"`
}
