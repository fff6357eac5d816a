package storage

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// depEntity is a single directed edge. The row key is
// "<dependent>|<dependency>" so an edge can be addressed directly.
type depEntity struct {
	aztables.Entity
	DependentID  string `json:"DependentId"`
	DependencyID string `json:"DependencyId"`
	CreatedAt    string `json:"CreatedAt"`
}

func edgeRowKey(dependentID, dependencyID string) string {
	return dependentID + "|" + dependencyID
}

// FetchDependencies lists every dependency edge of the user.
func (s *Storage) FetchDependencies(ctx context.Context, userID string) ([]domain.Dependency, error) {
	rows, err := listByPartition(ctx, s.depTable, userID)
	if err != nil {
		return nil, err
	}
	edges := []domain.Dependency{}
	for _, row := range rows {
		var ent depEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		dependent, dependency := ent.DependentID, ent.DependencyID
		if dependent == "" || dependency == "" {
			// Older rows carried the ids only in the row key.
			if parts := strings.SplitN(ent.RowKey, "|", 2); len(parts) == 2 {
				dependent, dependency = parts[0], parts[1]
			}
		}
		edges = append(edges, domain.Dependency{
			DependentID:  dependent,
			DependencyID: dependency,
			CreatedAt:    decodeTime(ent.CreatedAt),
		})
	}
	return edges, nil
}

// InsertDependency writes one edge row; ErrConflict when it exists.
func (s *Storage) InsertDependency(ctx context.Context, userID string, edge domain.Dependency) error {
	ent := depEntity{
		Entity: aztables.Entity{
			PartitionKey: userID,
			RowKey:       edgeRowKey(edge.DependentID, edge.DependencyID),
		},
		DependentID:  edge.DependentID,
		DependencyID: edge.DependencyID,
		CreatedAt:    encodeTime(edge.CreatedAt),
	}
	payload, err := json.Marshal(ent)
	if err != nil {
		return err
	}
	_, err = s.depTable.AddEntity(ctx, payload, nil)
	return mapError(err)
}

// DeleteDependency removes one edge row.
func (s *Storage) DeleteDependency(ctx context.Context, userID, dependentID, dependencyID string) error {
	_, err := s.depTable.DeleteEntity(ctx, userID, edgeRowKey(dependentID, dependencyID), nil)
	return mapError(err)
}
