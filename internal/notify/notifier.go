// Package notify publishes notification and audit events to Redis Pub/Sub.
// Delivery is fire-and-forget: failures are logged, never returned to the
// paths that emit events.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jonesrussell/content-scheduler/internal/logger"
)

// Pub/Sub channels.
const (
	ChannelAudit         = "scheduler:audit"
	ChannelNotifications = "scheduler:notifications"
)

// Event kinds.
const (
	EventApprovalSubmitted   = "approval.submitted"
	EventApprovalDecided     = "approval.decided"
	EventContentPublished    = "content.published"
	EventDispatchPartial     = "dispatch.partial_failure"
	EventDispatchFailed      = "dispatch.all_failed"
	EventTargetUnrecoverable = "dispatch.target_unrecoverable"
	EventRecurrenceExhausted = "schedule.recurrence_exhausted"
)

const publishTimeout = 3 * time.Second

// Event is the envelope published to both channels.
type Event struct {
	Kind       string         `json:"kind"`
	ContentID  string         `json:"content_id,omitempty"`
	ScheduleID string         `json:"schedule_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Detail     map[string]any `json:"detail,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Notifier sends events to the notification and audit channels.
type Notifier struct {
	client redis.UniversalClient
	logger logger.Logger
}

// NewNotifier creates a new notifier.
func NewNotifier(client redis.UniversalClient, log logger.Logger) *Notifier {
	return &Notifier{client: client, logger: log}
}

// Audit emits an audit-trail event.
func (n *Notifier) Audit(ctx context.Context, event Event) {
	n.publish(ctx, ChannelAudit, event)
}

// Notify emits a user-visible notification event.
func (n *Notifier) Notify(ctx context.Context, event Event) {
	n.publish(ctx, ChannelNotifications, event)
}

func (n *Notifier) publish(ctx context.Context, channel string, event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("failed to marshal event",
			logger.String("kind", event.Kind),
			logger.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	if pubErr := n.client.Publish(pubCtx, channel, payload).Err(); pubErr != nil {
		n.logger.Warn("failed to publish event",
			logger.String("channel", channel),
			logger.String("kind", event.Kind),
			logger.Error(pubErr))
	}
}
