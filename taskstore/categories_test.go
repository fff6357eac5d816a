package taskstore

import (
	"context"
	"errors"
	"testing"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

type fakeCategoryRows struct {
	categories map[string][]domain.Category
}

func newFakeCategoryRows() *fakeCategoryRows {
	return &fakeCategoryRows{categories: map[string][]domain.Category{}}
}

func (f *fakeCategoryRows) FetchCategories(_ context.Context, userID string) ([]domain.Category, error) {
	return append([]domain.Category(nil), f.categories[userID]...), nil
}

func (f *fakeCategoryRows) InsertCategory(_ context.Context, userID string, c domain.Category) error {
	for _, existing := range f.categories[userID] {
		if existing.ID == c.ID {
			return storage.ErrConflict
		}
	}
	f.categories[userID] = append(f.categories[userID], c)
	return nil
}

func (f *fakeCategoryRows) UpdateCategory(_ context.Context, userID string, c domain.Category) error {
	for i, existing := range f.categories[userID] {
		if existing.ID == c.ID {
			f.categories[userID][i] = c
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeCategoryRows) DeleteCategory(_ context.Context, userID, categoryID string) error {
	cats := f.categories[userID]
	for i, existing := range cats {
		if existing.ID == categoryID {
			f.categories[userID] = append(cats[:i], cats[i+1:]...)
			return nil
		}
	}
	return storage.ErrNotFound
}

func TestCategoriesCreateAndList(t *testing.T) {
	rows := newFakeCategoryRows()
	pub := &recordingPublisher{}
	cats := NewCategories(rows, pub, nil)

	created, err := cats.Create(context.Background(), "alice", "Work", "#3b82f6")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" || created.Name != "Work" {
		t.Fatalf("unexpected category: %+v", created)
	}

	list, err := cats.List(context.Background(), "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].ID != created.ID {
		t.Fatalf("unexpected list: %+v", list)
	}

	ch, ok := pub.last()
	if !ok || ch.EntityType != storage.EntityCategory || ch.Kind != storage.ChangeCreated {
		t.Fatalf("unexpected change: %+v", ch)
	}
}

func TestCategoriesCreateRejectsEmptyName(t *testing.T) {
	cats := NewCategories(newFakeCategoryRows(), nil, nil)

	if _, err := cats.Create(context.Background(), "alice", "", "#fff"); !errors.Is(err, ErrEmptyCategoryName) {
		t.Fatalf("expected empty name error, got %v", err)
	}
}

func TestCategoriesUpdateUnknownID(t *testing.T) {
	cats := NewCategories(newFakeCategoryRows(), nil, nil)

	_, err := cats.Update(context.Background(), "alice", domain.Category{ID: "missing", Name: "x"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCategoriesDeleteKeepsTaskRowsUntouched(t *testing.T) {
	rows := newFakeCategoryRows()
	pub := &recordingPublisher{}
	cats := NewCategories(rows, pub, nil)

	created, err := cats.Create(context.Background(), "alice", "Home", "#f59e0b")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := cats.Delete(context.Background(), "alice", created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	list, _ := cats.List(context.Background(), "alice")
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %+v", list)
	}
	ch, ok := pub.last()
	if !ok || ch.Kind != storage.ChangeDeleted {
		t.Fatalf("unexpected change: %+v", ch)
	}
}
