package taskstore

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

// CategoryRows is the persistence slice backing category writes.
type CategoryRows interface {
	FetchCategories(ctx context.Context, userID string) ([]domain.Category, error)
	InsertCategory(ctx context.Context, userID string, c domain.Category) error
	UpdateCategory(ctx context.Context, userID string, c domain.Category) error
	DeleteCategory(ctx context.Context, userID, categoryID string) error
}

// ErrEmptyCategoryName rejects categories without a name.
var ErrEmptyCategoryName = errors.New("category name must not be empty")

// Categories is the writer for board categories. Tasks reference
// categories by ID only, so deleting one never touches task rows.
type Categories struct {
	rows      CategoryRows
	publisher Publisher
	evictor   Evictor
	newID     func() string
}

// NewCategories creates a category store. publisher and evictor may be
// nil.
func NewCategories(rows CategoryRows, publisher Publisher, evictor Evictor) *Categories {
	if rows == nil {
		panic("taskstore.NewCategories: rows is nil")
	}
	return &Categories{
		rows:      rows,
		publisher: publisher,
		evictor:   evictor,
		newID:     uuid.NewString,
	}
}

// List returns the user's categories.
func (c *Categories) List(ctx context.Context, userID string) ([]domain.Category, error) {
	return c.rows.FetchCategories(ctx, userID)
}

// Create inserts a new category with a generated ID.
func (c *Categories) Create(ctx context.Context, userID, name, color string) (domain.Category, error) {
	if name == "" {
		return domain.Category{}, ErrEmptyCategoryName
	}
	cat := domain.Category{ID: c.newID(), Name: name, Color: color}
	if err := c.rows.InsertCategory(ctx, userID, cat); err != nil {
		return domain.Category{}, err
	}
	c.announce(ctx, userID, cat.ID, storage.ChangeCreated)
	return cat, nil
}

// Update renames or recolors an existing category.
func (c *Categories) Update(ctx context.Context, userID string, cat domain.Category) (domain.Category, error) {
	if cat.Name == "" {
		return domain.Category{}, ErrEmptyCategoryName
	}
	if err := c.rows.UpdateCategory(ctx, userID, cat); err != nil {
		return domain.Category{}, err
	}
	c.announce(ctx, userID, cat.ID, storage.ChangeUpdated)
	return cat, nil
}

// Delete removes a category. Task rows keep their reference; clients
// drop IDs that no longer resolve.
func (c *Categories) Delete(ctx context.Context, userID, categoryID string) error {
	if err := c.rows.DeleteCategory(ctx, userID, categoryID); err != nil {
		return err
	}
	c.announce(ctx, userID, categoryID, storage.ChangeDeleted)
	return nil
}

func (c *Categories) announce(ctx context.Context, userID, id, kind string) {
	if c.evictor != nil {
		c.evictor.Evict(ctx, userID)
	}
	if c.publisher != nil {
		c.publisher.Publish(ctx, storage.Change{
			UserID:     userID,
			EntityType: storage.EntityCategory,
			EntityID:   id,
			Kind:       kind,
		})
	}
}
