package notify

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"taskboard-api/domain"
	"taskboard-api/storage"
)

// ReminderQueue is the slice of storage the worker drains.
type ReminderQueue interface {
	EnqueueReminder(ctx context.Context, r storage.Reminder) error
	DequeueReminder(ctx context.Context) (*storage.QueuedReminder, error)
	AckReminder(ctx context.Context, q *storage.QueuedReminder) error
}

// ReminderSender delivers one due reminder to its user.
type ReminderSender interface {
	SendReminder(ctx context.Context, r storage.Reminder) error
}

// Worker polls the reminder queue and sends reminders when they come
// due. Messages that surface before their time (the queue caps the
// visibility delay) are re-enqueued with the remaining delay.
type Worker struct {
	queue    ReminderQueue
	sender   ReminderSender
	logger   *log.Logger
	interval time.Duration
	now      func() time.Time
}

// NewWorker creates a reminder worker polling at the given interval.
func NewWorker(queue ReminderQueue, sender ReminderSender, interval time.Duration, logger *log.Logger) *Worker {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = log.New()
	}
	return &Worker{
		queue:    queue,
		sender:   sender,
		logger:   logger,
		interval: interval,
		now:      time.Now,
	}
}

// Run drains the queue until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if err := w.drainOnce(ctx); err != nil {
			w.logger.WithError(err).Error("reminder dequeue failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drainOnce handles every currently visible message.
func (w *Worker) drainOnce(ctx context.Context) error {
	for {
		msg, err := w.queue.DequeueReminder(ctx)
		if err != nil {
			return err
		}
		if msg == nil {
			return nil
		}
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg *storage.QueuedReminder) {
	if msg.RemindAt.After(w.now()) {
		// Surfaced early because of the visibility cap; push it back
		// out for the remaining wait.
		if err := w.queue.EnqueueReminder(ctx, msg.Reminder); err != nil {
			w.logger.WithError(err).Errorf("re-enqueue reminder for task %s", msg.TaskID)
			return
		}
		if err := w.queue.AckReminder(ctx, msg); err != nil {
			w.logger.WithError(err).Errorf("ack re-enqueued reminder for task %s", msg.TaskID)
		}
		return
	}

	if err := w.sender.SendReminder(ctx, msg.Reminder); err != nil {
		// Leave the message unacked; it reappears after the pop
		// visibility timeout.
		w.logger.WithError(err).Errorf("send reminder for task %s", msg.TaskID)
		return
	}
	if err := w.queue.AckReminder(ctx, msg); err != nil {
		w.logger.WithError(err).Errorf("ack reminder for task %s", msg.TaskID)
	}
}

// MailReminderSender delivers reminders through the same mail function
// used for invites.
type MailReminderSender struct {
	mailer   Mailer
	resolver AddressResolver
}

// AddressResolver maps a user id to the address reminders go to.
type AddressResolver interface {
	EmailForUser(ctx context.Context, userID string) (string, error)
}

// NewMailReminderSender creates a reminder sender backed by a mailer.
func NewMailReminderSender(mailer Mailer, resolver AddressResolver) *MailReminderSender {
	return &MailReminderSender{mailer: mailer, resolver: resolver}
}

func (s *MailReminderSender) SendReminder(ctx context.Context, r storage.Reminder) error {
	to, err := s.resolver.EmailForUser(ctx, r.UserID)
	if err != nil {
		return err
	}
	return s.mailer.SendInvite(ctx, Invite{
		To:        to,
		Title:     "Reminder: " + r.Title,
		StartTime: r.RemindAt,
	})
}

// ErrNoAddress is returned when a user has no email on their profile.
var ErrNoAddress = errors.New("notify: no email address on profile")

// ProfileReader is the profile slice the resolver reads from.
type ProfileReader interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
}

// ProfileResolver resolves reminder addresses from the profile row.
type ProfileResolver struct {
	profiles ProfileReader
}

// NewProfileResolver creates a profile-backed address resolver.
func NewProfileResolver(profiles ProfileReader) *ProfileResolver {
	return &ProfileResolver{profiles: profiles}
}

func (r *ProfileResolver) EmailForUser(ctx context.Context, userID string) (string, error) {
	profile, err := r.profiles.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if profile.Email == "" {
		return "", ErrNoAddress
	}
	return profile.Email, nil
}
