package notifier

import (
	"context"
	"fmt"
	"time"

	"marketplace-payments/internal/models"
	"marketplace-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// NotificationStore persists notification rows
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

// Publisher pushes notification events onto the delivery queue
type Publisher interface {
	PublishEvent(ctx context.Context, key string, event interface{}) error
}

// Notifier is the fire-and-forget notification sink. Failures are logged and
// never surfaced to the primary transaction path.
type Notifier struct {
	store     NotificationStore
	publisher Publisher
	logger    *zap.Logger
	timeout   time.Duration
}

// New creates a notifier
func New(store NotificationStore, publisher Publisher) *Notifier {
	return &Notifier{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
		timeout:   5 * time.Second,
	}
}

// Send queues a notification from a detached goroutine so the caller's
// success path never blocks on it
func (n *Notifier) Send(userID int64, notifType, title, message, referenceID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()

		if err := n.deliver(ctx, userID, notifType, title, message, referenceID); err != nil {
			n.logger.Error("Failed to queue notification",
				zap.Int64("user_id", userID),
				zap.String("type", notifType),
				zap.Error(err))
			return
		}

		util.NotificationsQueuedTotal.Inc()
	}()
}

func (n *Notifier) deliver(ctx context.Context, userID int64, notifType, title, message, referenceID string) error {
	row := &models.Notification{
		UserID:      userID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
	}

	if err := n.store.CreateNotification(ctx, row); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	event := &models.NotificationEvent{
		EventID:     uuid.New().String(),
		UserID:      userID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
	}

	key := fmt.Sprintf("user-%d", userID)
	if err := n.publisher.PublishEvent(ctx, key, event); err != nil {
		return fmt.Errorf("publish notification event: %w", err)
	}

	return nil
}
