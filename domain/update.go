package domain

import "time"

// TaskUpdate is an exhaustively-typed patch applied to a task. Nil fields
// are left untouched. Dependency edges are not part of a patch; they are
// mutated through the dedicated edge operations.
type TaskUpdate struct {
	Title           *string    `json:"title,omitempty"`
	Description     *string    `json:"description,omitempty"`
	Priority        *Priority  `json:"priority,omitempty"`
	Status          *Status    `json:"status,omitempty"`
	DueDate         *time.Time `json:"dueDate,omitempty"`
	CategoryIDs     *[]string  `json:"categoryIds,omitempty"`
	Tags            *[]string  `json:"tags,omitempty"`
	Subtasks        *[]Subtask `json:"subtasks,omitempty"`
	EventType       *EventType `json:"eventType,omitempty"`
	StartTime       *time.Time `json:"startTime,omitempty"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	Attendees       *[]string  `json:"attendees,omitempty"`
	RecurrenceRule  *string    `json:"recurrenceRule,omitempty"`
	ReminderMinutes *int       `json:"reminderMinutes,omitempty"`
	Location        *string    `json:"location,omitempty"`
	Sensitivity     *string    `json:"sensitivity,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (u TaskUpdate) Empty() bool {
	return u == (TaskUpdate{})
}

// Apply copies the non-nil patch fields onto a task. New tag names keep
// their previously assigned color; unknown names get a fresh one.
func (u TaskUpdate) Apply(t Task) Task {
	if u.Title != nil {
		t.Title = *u.Title
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.Priority != nil {
		t.Priority = *u.Priority
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
	if u.CategoryIDs != nil {
		t.CategoryIDs = append([]string(nil), (*u.CategoryIDs)...)
	}
	if u.Tags != nil {
		existing := make(map[string]string, len(t.Tags))
		for _, tag := range t.Tags {
			existing[tag.Name] = tag.Color
		}
		tags := make([]Tag, 0, len(*u.Tags))
		for _, name := range *u.Tags {
			if color, ok := existing[name]; ok {
				tags = append(tags, Tag{Name: name, Color: color})
				continue
			}
			tags = append(tags, NewTag(name))
		}
		t.Tags = tags
	}
	if u.Subtasks != nil {
		t.Subtasks = append([]Subtask(nil), (*u.Subtasks)...)
	}
	if u.EventType != nil {
		t.EventType = *u.EventType
	}
	if u.StartTime != nil {
		t.StartTime = *u.StartTime
	}
	if u.EndTime != nil {
		t.EndTime = *u.EndTime
	}
	if u.Attendees != nil {
		t.Attendees = append([]string(nil), (*u.Attendees)...)
	}
	if u.RecurrenceRule != nil {
		t.RecurrenceRule = *u.RecurrenceRule
	}
	if u.ReminderMinutes != nil {
		t.ReminderMinutes = *u.ReminderMinutes
	}
	if u.Location != nil {
		t.Location = *u.Location
	}
	if u.Sensitivity != nil {
		t.Sensitivity = *u.Sensitivity
	}
	return t
}
