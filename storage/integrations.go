package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

type integrationEntity struct {
	aztables.Entity
	SyncEnabled    bool   `json:"SyncEnabled"`
	LastSyncTime   string `json:"LastSyncTime"`
	LastSyncStatus string `json:"LastSyncStatus"`
	IsActive       bool   `json:"IsActive"`
}

// GetIntegration reads the user's settings for one provider.
// ErrNotFound when the user never attempted a connect.
func (s *Storage) GetIntegration(ctx context.Context, userID, provider string) (domain.IntegrationSettings, error) {
	resp, err := s.integrationTable.GetEntity(ctx, userID, provider, nil)
	if err != nil {
		return domain.IntegrationSettings{}, mapError(err)
	}
	var ent integrationEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.IntegrationSettings{}, err
	}
	return domain.IntegrationSettings{
		UserID:         userID,
		Provider:       provider,
		SyncEnabled:    ent.SyncEnabled,
		LastSyncTime:   decodeTime(ent.LastSyncTime),
		LastSyncStatus: domain.SyncStatus(ent.LastSyncStatus),
		IsActive:       ent.IsActive,
	}, nil
}

// UpsertIntegration writes the settings row. Settings rows are never hard
// deleted; disconnect only soft-disables them.
func (s *Storage) UpsertIntegration(ctx context.Context, settings domain.IntegrationSettings) error {
	payload, err := json.Marshal(integrationEntity{
		Entity: aztables.Entity{
			PartitionKey: settings.UserID,
			RowKey:       settings.Provider,
		},
		SyncEnabled:    settings.SyncEnabled,
		LastSyncTime:   encodeTime(settings.LastSyncTime),
		LastSyncStatus: string(settings.LastSyncStatus),
		IsActive:       settings.IsActive,
	})
	if err != nil {
		return err
	}
	_, err = s.integrationTable.UpsertEntity(ctx, payload, nil)
	return mapError(err)
}
