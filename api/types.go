package api

import (
	"context"

	"taskboard-api/calendar"
	"taskboard-api/domain"
	"taskboard-api/notify"
	"taskboard-api/storage"
	"taskboard-api/taskstore"
)

// Tasks is the aggregate-store surface handlers mutate tasks through.
// Implemented by *taskstore.Store.
type Tasks interface {
	List(ctx context.Context, userID string) ([]domain.Task, error)
	Get(ctx context.Context, userID, taskID string) (domain.Task, error)
	Create(ctx context.Context, userID string, req taskstore.CreateRequest) (domain.Task, error)
	Update(ctx context.Context, userID, taskID string, patch domain.TaskUpdate) (domain.Task, error)
	Move(ctx context.Context, userID, taskID string, status domain.Status) (domain.Task, error)
	Delete(ctx context.Context, userID, taskID string) error
	AddDependency(ctx context.Context, userID, taskID, dependencyID string) error
	RemoveDependency(ctx context.Context, userID, taskID, dependencyID string) error
}

// Categories is the category writer surface. Implemented by
// *taskstore.Categories.
type Categories interface {
	List(ctx context.Context, userID string) ([]domain.Category, error)
	Create(ctx context.Context, userID, name, color string) (domain.Category, error)
	Update(ctx context.Context, userID string, cat domain.Category) (domain.Category, error)
	Delete(ctx context.Context, userID, categoryID string) error
}

// Profiles reads and writes user preferences. Implemented by
// *storage.Storage.
type Profiles interface {
	GetProfile(ctx context.Context, userID string) (domain.UserProfile, error)
	UpsertProfile(ctx context.Context, p domain.UserProfile) error
}

// Calendar drives the external calendar connection state machine.
// Implemented by *calendar.Client.
type Calendar interface {
	BeginConnect(ctx context.Context, userID string) (calendar.Authorization, error)
	CompleteConnect(ctx context.Context, userID, code, state string) error
	EnableSync(ctx context.Context, userID string) error
	DisableSync(ctx context.Context, userID string) error
	Sync(ctx context.Context, userID string) (calendar.SyncResult, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (calendar.Status, error)
}

// Inviter mails meeting invitations after a meeting task is created.
// Implemented by *notify.Dispatcher.
type Inviter interface {
	SendMeetingInvites(ctx context.Context, attendees []string, details notify.MeetingDetails) (success, failure int)
}

// Feed hands out per-user change feed subscriptions for the SSE stream.
// Implemented by *storage.Notifier.
type Feed interface {
	Subscribe(ctx context.Context, userID string) *storage.Subscription
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
