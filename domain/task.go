package domain

import (
	"math/rand"
	"time"
)

// Priority ranks how urgent a task is.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Status is the board column a task lives in.
type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Subtask is a single checklist item inside a task.
type Subtask struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Tag labels a task. The color is assigned from the palette once at
// creation and persisted with the task so it stays stable across reads.
type Tag struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

// TagPalette is the fixed set of colors tags are assigned from.
var TagPalette = []string{
	"#ef4444", "#f97316", "#f59e0b", "#84cc16",
	"#10b981", "#06b6d4", "#3b82f6", "#8b5cf6", "#ec4899",
}

// NewTag creates a tag with a color picked from the palette.
func NewTag(name string) Tag {
	return Tag{Name: name, Color: TagPalette[rand.Intn(len(TagPalette))]}
}

// EventType distinguishes plain tasks from calendar entries.
type EventType string

const (
	EventTypeNone    EventType = ""
	EventTypeMeeting EventType = "meeting"
	EventTypeEvent   EventType = "event"
)

// Task represents a single board item with its optional calendar fields.
type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Priority    Priority  `json:"priority"`
	Status      Status    `json:"status"`
	DueDate     time.Time `json:"dueDate"`
	CreatedAt   time.Time `json:"createdAt"`

	// Dependencies holds the ids of tasks this task depends on
	// (edges dependent -> dependency).
	Dependencies []string  `json:"dependencies,omitempty"`
	CategoryIDs  []string  `json:"categoryIds,omitempty"`
	Tags         []Tag     `json:"tags,omitempty"`
	Subtasks     []Subtask `json:"subtasks,omitempty"`

	EventType       EventType `json:"eventType,omitempty"`
	StartTime       time.Time `json:"startTime,omitzero"`
	EndTime         time.Time `json:"endTime,omitzero"`
	Attendees       []string  `json:"attendees,omitempty"`
	RecurrenceRule  string    `json:"recurrenceRule,omitempty"`
	ReminderMinutes int       `json:"reminderMinutes,omitempty"`
	Location        string    `json:"location,omitempty"`
	Sensitivity     string    `json:"sensitivity,omitempty"`

	// ExternalEventID is the id assigned by the external calendar once
	// the task has been mirrored there. Empty means not yet pushed.
	ExternalEventID string `json:"externalEventId,omitempty"`
}

// Dependency is a directed edge stating that the dependent task cannot be
// completed until the dependency task is.
type Dependency struct {
	DependentID  string    `json:"dependentTaskId"`
	DependencyID string    `json:"dependencyTaskId"`
	CreatedAt    time.Time `json:"createdAt"`
}
