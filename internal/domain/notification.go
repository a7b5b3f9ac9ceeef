package domain

import (
	"time"

	"github.com/google/uuid"
)

// Notification is an admin-broadcast banner. At most one row is active
// at a time; creating a new one deactivates all others.
type Notification struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	IsActive  bool      `gorm:"not null;default:false" json:"isActive"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"createdAt"`
}

func (Notification) TableName() string { return "notifications" }
