package storage

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Change describes one persisted mutation. Subscribers treat it as a cue
// to refresh their snapshot, not as an authoritative diff.
type Change struct {
	UserID     string `json:"userId"`
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	Kind       string `json:"kind"`
}

const (
	EntityTask        = "task"
	EntityCategory    = "category"
	EntityIntegration = "integration"

	ChangeCreated = "created"
	ChangeUpdated = "updated"
	ChangeDeleted = "deleted"
)

// Notifier publishes and subscribes to the per-table change feed over
// Redis pub/sub.
type Notifier struct {
	redis   *redis.Client
	channel string
	logger  *log.Logger
}

// NewNotifier creates a change feed on the given channel.
func NewNotifier(client *redis.Client, channel string, logger *log.Logger) *Notifier {
	return &Notifier{redis: client, channel: channel, logger: logger}
}

// Publish emits a change notification. Publish failures are logged, not
// returned: the row write already succeeded and must not be rolled back
// because the feed hiccupped.
func (n *Notifier) Publish(ctx context.Context, ch Change) {
	if n == nil || n.redis == nil {
		return
	}
	payload, err := json.Marshal(ch)
	if err != nil {
		return
	}
	if err := n.redis.Publish(ctx, n.channel, payload).Err(); err != nil && n.logger != nil {
		n.logger.WithError(err).Errorf("publish change for user %s", ch.UserID)
	}
}

// Subscription is a cancellable handle on the change feed, filtered to a
// single user.
type Subscription struct {
	C      <-chan Change
	cancel context.CancelFunc
	pubsub *redis.PubSub
}

// Close cancels the subscription and releases the underlying pub/sub
// connection. Safe to call more than once.
func (s *Subscription) Close() {
	s.cancel()
	if s.pubsub != nil {
		_ = s.pubsub.Close()
	}
}

// Subscribe returns a handle delivering the given user's changes until
// Close is called or ctx is done. Messages for other users are dropped.
func (n *Notifier) Subscribe(ctx context.Context, userID string) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	pubsub := n.redis.Subscribe(ctx, n.channel)
	out := make(chan Change, 16)
	sub := &Subscription{C: out, cancel: cancel, pubsub: pubsub}

	go func() {
		defer close(out)
		in := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-in:
				if !ok {
					return
				}
				var ch Change
				if err := json.Unmarshal([]byte(msg.Payload), &ch); err != nil {
					if n.logger != nil {
						n.logger.WithError(err).Error("unable to parse change notification")
					}
					continue
				}
				if ch.UserID != userID {
					continue
				}
				select {
				case out <- ch:
				default:
					// Slow consumer; drop rather than block the feed. The
					// subscriber refreshes its snapshot on the next message.
				}
			}
		}
	}()

	return sub
}
