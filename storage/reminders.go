package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"
)

// maxVisibilityDelay is the queue service's upper bound on message
// invisibility. Reminders further out are re-enqueued by the worker when
// they surface early.
const maxVisibilityDelay = 7 * 24 * time.Hour

// Reminder is a queued "remind the user about this task" message.
type Reminder struct {
	UserID   string    `json:"userId"`
	TaskID   string    `json:"taskId"`
	Title    string    `json:"title"`
	RemindAt time.Time `json:"remindAt"`
}

// QueuedReminder pairs a reminder with the receipt needed to ack it.
type QueuedReminder struct {
	Reminder
	messageID  string
	popReceipt string
}

// EnqueueReminder schedules a reminder, hidden until RemindAt (capped at
// the service limit).
func (s *Storage) EnqueueReminder(ctx context.Context, r Reminder) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	var opts *azqueue.EnqueueMessageOptions
	if delay := time.Until(r.RemindAt); delay > 0 {
		if delay > maxVisibilityDelay {
			delay = maxVisibilityDelay
		}
		secs := int32(delay / time.Second)
		opts = &azqueue.EnqueueMessageOptions{VisibilityTimeout: &secs}
	}
	_, err = s.reminderQueue.EnqueueMessage(ctx, string(data), opts)
	return mapError(err)
}

// DequeueReminder pops at most one visible reminder. A nil result with a
// nil error means the queue is currently empty.
func (s *Storage) DequeueReminder(ctx context.Context) (*QueuedReminder, error) {
	resp, err := s.reminderQueue.DequeueMessage(ctx, nil)
	if err != nil {
		return nil, mapError(err)
	}
	if len(resp.Messages) == 0 {
		return nil, nil
	}
	msg := resp.Messages[0]
	if msg.MessageText == nil || msg.MessageID == nil || msg.PopReceipt == nil {
		return nil, nil
	}
	var r Reminder
	if err := json.Unmarshal([]byte(*msg.MessageText), &r); err != nil {
		// Poison message; drop it so the queue keeps draining.
		_, _ = s.reminderQueue.DeleteMessage(ctx, *msg.MessageID, *msg.PopReceipt, nil)
		return nil, nil
	}
	return &QueuedReminder{Reminder: r, messageID: *msg.MessageID, popReceipt: *msg.PopReceipt}, nil
}

// AckReminder deletes a handled reminder from the queue.
func (s *Storage) AckReminder(ctx context.Context, q *QueuedReminder) error {
	_, err := s.reminderQueue.DeleteMessage(ctx, q.messageID, q.popReceipt, nil)
	return mapError(err)
}
