package storage

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

type profileEntity struct {
	aztables.Entity
	Email                string `json:"Email"`
	RefreshToken         string `json:"RefreshToken"`
	Theme                string `json:"Theme"`
	NotificationsEnabled bool   `json:"NotificationsEnabled"`
}

// GetProfile reads the user's profile row. A missing row yields a zero
// profile rather than an error; profiles are created lazily.
func (s *Storage) GetProfile(ctx context.Context, userID string) (domain.UserProfile, error) {
	resp, err := s.profileTable.GetEntity(ctx, userID, userID, nil)
	if err != nil {
		if errors.Is(mapError(err), ErrNotFound) {
			return domain.UserProfile{ID: userID}, nil
		}
		return domain.UserProfile{}, mapError(err)
	}
	var ent profileEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.UserProfile{}, err
	}
	return domain.UserProfile{
		ID:                   userID,
		Email:                ent.Email,
		RefreshToken:         ent.RefreshToken,
		Theme:                ent.Theme,
		NotificationsEnabled: ent.NotificationsEnabled,
	}, nil
}

// UpsertProfile writes the full profile row.
func (s *Storage) UpsertProfile(ctx context.Context, p domain.UserProfile) error {
	payload, err := json.Marshal(profileEntity{
		Entity:               aztables.Entity{PartitionKey: p.ID, RowKey: p.ID},
		Email:                p.Email,
		RefreshToken:         p.RefreshToken,
		Theme:                p.Theme,
		NotificationsEnabled: p.NotificationsEnabled,
	})
	if err != nil {
		return err
	}
	_, err = s.profileTable.UpsertEntity(ctx, payload, nil)
	return mapError(err)
}

// SetRefreshToken stores (or clears, when empty) the calendar refresh
// credential while preserving the rest of the profile.
func (s *Storage) SetRefreshToken(ctx context.Context, userID, token string) error {
	p, err := s.GetProfile(ctx, userID)
	if err != nil {
		return err
	}
	p.RefreshToken = token
	return s.UpsertProfile(ctx, p)
}
