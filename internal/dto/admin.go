package dto

import (
	"time"

	"licensing/internal/domain"
)

type CreateKeysRequest struct {
	Count      int        `json:"count"`
	ExpiresAt  *time.Time `json:"expiresAt"`
	Notes      string     `json:"notes"`
	IsTrialKey bool       `json:"isTrialKey"`
}

type CreateKeysResponse struct {
	Created int                    `json:"created"`
	Keys    []domain.ActivationKey `json:"keys"`
}

// KeyView decorates a registry record with its derived state so the
// console never re-implements the precedence rules.
type KeyView struct {
	domain.ActivationKey
	State domain.KeyState `json:"state"`
}

type ListKeysResponse struct {
	Keys  []KeyView `json:"keys"`
	Total int       `json:"total"`
}

type ExtendExpiryRequest struct {
	ExpiresAt time.Time `json:"expiresAt"`
}

type BulkActionRequest struct {
	IDs      []string `json:"ids"`
	Action   string   `json:"action"`
	Password string   `json:"password"`
}

type BulkActionResponse struct {
	Affected int `json:"affected"`
}

type AuditLogResponse struct {
	Entries []domain.AuditLogEntry `json:"entries"`
}
