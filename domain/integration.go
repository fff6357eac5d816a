package domain

import "time"

// ProviderMicrosoftCalendar is the only calendar provider currently wired.
const ProviderMicrosoftCalendar = "microsoft_calendar"

// SyncStatus records the outcome of the most recent sync attempt.
type SyncStatus string

const (
	SyncStatusNone    SyncStatus = ""
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusError   SyncStatus = "error"
)

// IntegrationSettings is the per-user, per-provider sync record. It is
// created on the first connect attempt and soft-disabled rather than
// deleted on disconnect.
type IntegrationSettings struct {
	UserID         string     `json:"userId"`
	Provider       string     `json:"provider"`
	SyncEnabled    bool       `json:"syncEnabled"`
	LastSyncTime   time.Time  `json:"lastSyncTime,omitzero"`
	LastSyncStatus SyncStatus `json:"lastSyncStatus,omitempty"`
	IsActive       bool       `json:"isActive"`
}
