package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
)

func TestTaskMarshalOmitsUnsetCalendarFields(t *testing.T) {
	task := Task{ID: "t1", Title: "Title", Priority: PriorityLow, Status: StatusTodo}

	payload, err := sonic.Marshal(task)
	if err != nil {
		t.Fatalf("marshal task: %v", err)
	}

	if strings.Contains(string(payload), "startTime") {
		t.Fatalf("expected zero start time to be omitted, got %s", payload)
	}
	if !strings.Contains(string(payload), "\"status\":\"todo\"") {
		t.Fatalf("expected status field, got %s", payload)
	}
}

func TestTaskUpdateApplyLeavesNilFieldsUntouched(t *testing.T) {
	due := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	task := Task{ID: "t1", Title: "Old", Description: "keep", Priority: PriorityHigh, Status: StatusTodo, DueDate: due}

	title := "New"
	status := StatusInProgress
	updated := TaskUpdate{Title: &title, Status: &status}.Apply(task)

	if updated.Title != "New" || updated.Status != StatusInProgress {
		t.Fatalf("patch not applied: %+v", updated)
	}
	if updated.Description != "keep" || updated.Priority != PriorityHigh || !updated.DueDate.Equal(due) {
		t.Fatalf("untouched fields changed: %+v", updated)
	}
}

func TestTaskUpdateApplyKeepsExistingTagColors(t *testing.T) {
	task := Task{Tags: []Tag{{Name: "work", Color: "#3b82f6"}}}

	names := []string{"work", "urgent"}
	updated := TaskUpdate{Tags: &names}.Apply(task)

	if len(updated.Tags) != 2 {
		t.Fatalf("expected 2 tags, got %d", len(updated.Tags))
	}
	if updated.Tags[0].Color != "#3b82f6" {
		t.Fatalf("existing tag color was re-randomized: %+v", updated.Tags[0])
	}
	if updated.Tags[1].Color == "" {
		t.Fatalf("new tag missing color")
	}
}

func TestStatusAndPriorityValid(t *testing.T) {
	for _, s := range []Status{StatusTodo, StatusInProgress, StatusCompleted} {
		if !s.Valid() {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	if Status("done").Valid() {
		t.Fatal("unknown status reported valid")
	}
	if Priority("urgent").Valid() {
		t.Fatal("unknown priority reported valid")
	}
}
