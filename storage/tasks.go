package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"

	"taskboard-api/domain"
)

// taskEntity is the table row shape for a task. Slice-valued fields are
// stored as JSON strings inside a single property each.
type taskEntity struct {
	aztables.Entity
	Title           string `json:"Title"`
	Description     string `json:"Description"`
	Priority        string `json:"Priority"`
	Status          string `json:"Status"`
	DueDate         string `json:"DueDate"`
	CreatedAt       string `json:"CreatedAt"`
	CategoryIDs     string `json:"CategoryIds"`
	Tags            string `json:"Tags"`
	Subtasks        string `json:"Subtasks"`
	EventType       string `json:"EventType"`
	StartTime       string `json:"StartTime"`
	EndTime         string `json:"EndTime"`
	Attendees       string `json:"Attendees"`
	RecurrenceRule  string `json:"RecurrenceRule"`
	ReminderMinutes int    `json:"ReminderMinutes"`
	Location        string `json:"Location"`
	Sensitivity     string `json:"Sensitivity"`
	ExternalEventID string `json:"ExternalEventId"`
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func encodeJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func taskToEntity(userID string, t domain.Task) taskEntity {
	return taskEntity{
		Entity:          aztables.Entity{PartitionKey: userID, RowKey: t.ID},
		Title:           t.Title,
		Description:     t.Description,
		Priority:        string(t.Priority),
		Status:          string(t.Status),
		DueDate:         encodeTime(t.DueDate),
		CreatedAt:       encodeTime(t.CreatedAt),
		CategoryIDs:     encodeJSON(t.CategoryIDs),
		Tags:            encodeJSON(t.Tags),
		Subtasks:        encodeJSON(t.Subtasks),
		EventType:       string(t.EventType),
		StartTime:       encodeTime(t.StartTime),
		EndTime:         encodeTime(t.EndTime),
		Attendees:       encodeJSON(t.Attendees),
		RecurrenceRule:  t.RecurrenceRule,
		ReminderMinutes: t.ReminderMinutes,
		Location:        t.Location,
		Sensitivity:     t.Sensitivity,
		ExternalEventID: t.ExternalEventID,
	}
}

func entityToTask(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:              ent.RowKey,
		Title:           ent.Title,
		Description:     ent.Description,
		Priority:        domain.Priority(ent.Priority),
		Status:          domain.Status(ent.Status),
		DueDate:         decodeTime(ent.DueDate),
		CreatedAt:       decodeTime(ent.CreatedAt),
		EventType:       domain.EventType(ent.EventType),
		StartTime:       decodeTime(ent.StartTime),
		EndTime:         decodeTime(ent.EndTime),
		RecurrenceRule:  ent.RecurrenceRule,
		ReminderMinutes: ent.ReminderMinutes,
		Location:        ent.Location,
		Sensitivity:     ent.Sensitivity,
		ExternalEventID: ent.ExternalEventID,
	}
	if ent.CategoryIDs != "" {
		_ = json.Unmarshal([]byte(ent.CategoryIDs), &t.CategoryIDs)
	}
	if ent.Tags != "" {
		_ = json.Unmarshal([]byte(ent.Tags), &t.Tags)
	}
	if ent.Subtasks != "" {
		_ = json.Unmarshal([]byte(ent.Subtasks), &t.Subtasks)
	}
	if ent.Attendees != "" {
		_ = json.Unmarshal([]byte(ent.Attendees), &t.Attendees)
	}
	return t
}

// FetchTasks retrieves all tasks for the provided user. Dependency edges
// are stored in their own table and are not merged here.
func (s *Storage) FetchTasks(ctx context.Context, userID string) ([]domain.Task, error) {
	rows, err := listByPartition(ctx, s.taskTable, userID)
	if err != nil {
		return nil, err
	}
	tasks := []domain.Task{}
	for _, row := range rows {
		var ent taskEntity
		if err := json.Unmarshal(row, &ent); err != nil {
			return nil, err
		}
		tasks = append(tasks, entityToTask(ent))
	}
	return tasks, nil
}

// GetTask retrieves a single task row.
func (s *Storage) GetTask(ctx context.Context, userID, taskID string) (domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, userID, taskID, nil)
	if err != nil {
		return domain.Task{}, mapError(err)
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return domain.Task{}, err
	}
	return entityToTask(ent), nil
}

// InsertTask writes a new task row; ErrConflict when the id exists.
func (s *Storage) InsertTask(ctx context.Context, userID string, t domain.Task) error {
	payload, err := json.Marshal(taskToEntity(userID, t))
	if err != nil {
		return err
	}
	_, err = s.taskTable.AddEntity(ctx, payload, nil)
	return mapError(err)
}

// UpdateTask replaces the task row. Row-scoped last-write-wins; no
// optimistic concurrency check.
func (s *Storage) UpdateTask(ctx context.Context, userID string, t domain.Task) error {
	payload, err := json.Marshal(taskToEntity(userID, t))
	if err != nil {
		return err
	}
	et := azcore.ETagAny
	_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{
		IfMatch:    &et,
		UpdateMode: aztables.UpdateModeReplace,
	})
	return mapError(err)
}

// DeleteTask removes the task row.
func (s *Storage) DeleteTask(ctx context.Context, userID, taskID string) error {
	_, err := s.taskTable.DeleteEntity(ctx, userID, taskID, nil)
	return mapError(err)
}
