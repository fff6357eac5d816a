package storage

import (
	"context"
	"encoding/json"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

type categoryEntity struct {
	aztables.Entity
	Name  string `json:"Name"`
	Color string `json:"Color"`
}

// FetchCategories lists the user's categories.
func (s *Storage) FetchCategories(ctx context.Context, userID string) ([]domain.Category, error) {
	rows, err := listByPartition(ctx, s.categoryTable, userID)
	if err != nil {
		return nil, err
	}
	categories := []domain.Category{}
	for _, row := range rows {
		var ent categoryEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		categories = append(categories, domain.Category{ID: ent.RowKey, Name: ent.Name, Color: ent.Color})
	}
	return categories, nil
}

// InsertCategory writes a new category row.
func (s *Storage) InsertCategory(ctx context.Context, userID string, c domain.Category) error {
	payload, err := json.Marshal(categoryEntity{
		Entity: aztables.Entity{PartitionKey: userID, RowKey: c.ID},
		Name:   c.Name,
		Color:  c.Color,
	})
	if err != nil {
		return err
	}
	_, err = s.categoryTable.AddEntity(ctx, payload, nil)
	return mapError(err)
}

// UpdateCategory replaces a category row.
func (s *Storage) UpdateCategory(ctx context.Context, userID string, c domain.Category) error {
	payload, err := json.Marshal(categoryEntity{
		Entity: aztables.Entity{PartitionKey: userID, RowKey: c.ID},
		Name:   c.Name,
		Color:  c.Color,
	})
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.categoryTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return mapError(err)
}

// DeleteCategory removes a category row.
func (s *Storage) DeleteCategory(ctx context.Context, userID, categoryID string) error {
	_, err := s.categoryTable.DeleteEntity(ctx, userID, categoryID, nil)
	return mapError(err)
}
