package domain

import (
	"time"

	"github.com/google/uuid"
)

// Audit action tags recorded by the protocol engine and admin surface.
const (
	ActionFirstActivation      = "first_activation"
	ActionReactivateSameDevice = "reactivate_same_device"
	ActionNewDeviceKickOld     = "new_device_kick_old"
	ActionDeniedInvalidKey     = "denied_invalid_key"
	ActionDeniedLocked         = "denied_locked"
	ActionDeniedExpired        = "denied_expired"
	ActionDeniedConflict       = "denied_conflict"
	ActionDeniedLockedHB       = "denied_locked_on_heartbeat"
	ActionDeniedKickedOut      = "denied_kicked_out"
	ActionForceLockTooMany     = "force_lock_too_many_devices"

	ActionKeysCreated        = "keys_created"
	ActionKeyDeleted         = "key_deleted"
	ActionLockToggled        = "lock_toggled"
	ActionExpiryExtended     = "expiry_extended"
	ActionConvertedPermanent = "converted_permanent"
	ActionBulkAction         = "bulk_action"
)

// AuditLogEntry is append-only. KeyID is nil for attempts against key
// values that do not exist in the registry.
type AuditLogEntry struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	KeyID       *uuid.UUID `gorm:"type:uuid;index" json:"keyId"`
	Action      string     `gorm:"type:text;not null" json:"action"`
	IPAddress   string     `gorm:"type:text" json:"ipAddress"`
	Fingerprint string     `gorm:"type:text" json:"fingerprint"`
	ProgramName string     `gorm:"type:text" json:"programName"`
	Details     string     `gorm:"type:text" json:"details"`
	CreatedAt   time.Time  `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (AuditLogEntry) TableName() string { return "audit_log_entries" }
