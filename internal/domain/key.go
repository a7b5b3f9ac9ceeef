package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivationKey is the central registry record. keyValue is the
// client-facing credential; everything else is binding state mutated
// only by the protocol engine or explicit admin actions.
type ActivationKey struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	KeyValue            string     `gorm:"type:text;not null;uniqueIndex:ux_activation_keys_value" json:"keyValue"`
	CreatedAt           time.Time  `gorm:"not null;autoCreateTime" json:"createdAt"`
	ExpiresAt           *time.Time `json:"expiresAt"`
	IsLocked            bool       `gorm:"not null;default:false" json:"isLocked"`
	ForceLockReason     *string    `gorm:"type:text" json:"forceLockReason"`
	IsActivated         bool       `gorm:"not null;default:false" json:"isActivated"`
	BoundFingerprint    *string    `gorm:"type:text" json:"boundFingerprint"`
	ActivationDate      *time.Time `json:"activationDate"`
	CurrentSessionToken *string    `gorm:"type:text" json:"-"`
	LastHeartbeat       *time.Time `json:"lastHeartbeat"`
	ActivationCount     int        `gorm:"not null;default:0" json:"activationCount"`
	DeviceChangeCount   int        `gorm:"not null;default:0" json:"deviceChangeCount"`
	Notes               string     `gorm:"type:text" json:"notes"`
	IsTrialKey          bool       `gorm:"not null;default:false" json:"isTrialKey"`
}

func (ActivationKey) TableName() string { return "activation_keys" }
