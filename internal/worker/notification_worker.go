package worker

import (
	"context"
	"encoding/json"

	"marketplace-payments/internal/broker"
	"marketplace-payments/internal/models"
	"marketplace-payments/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Sender delivers a notification to the user's channel (email, push).
// Rendering and transport live outside this service.
type Sender interface {
	Deliver(ctx context.Context, event *models.NotificationEvent) error
}

// LogSender records deliveries in the log; the default when no real
// transport is configured
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a log-only sender
func NewLogSender() *LogSender {
	return &LogSender{logger: util.GetLogger()}
}

// Deliver implements Sender
func (s *LogSender) Deliver(_ context.Context, event *models.NotificationEvent) error {
	s.logger.Info("Notification delivered",
		zap.Int64("user_id", event.UserID),
		zap.String("type", event.Type),
		zap.String("title", event.Title))
	return nil
}

// NotificationWorker consumes queued notification events and delivers them.
// Delivery is best effort: a failed delivery is logged and the message is
// committed anyway, never blocking the queue.
type NotificationWorker struct {
	consumer *broker.Consumer
	sender   Sender
	logger   *zap.Logger
}

// NewNotificationWorker creates a notification delivery worker
func NewNotificationWorker(consumer *broker.Consumer, sender Sender) *NotificationWorker {
	return &NotificationWorker{
		consumer: consumer,
		sender:   sender,
		logger:   util.GetLogger(),
	}
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")

	return w.consumer.StartConsuming(ctx, func(ctx context.Context, msg kafka.Message) error {
		var event models.NotificationEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			w.logger.Error("Failed to unmarshal notification event", zap.Error(err))
			return nil
		}

		if err := w.sender.Deliver(ctx, &event); err != nil {
			util.NotificationsDeliveredTotal.WithLabelValues("error").Inc()
			w.logger.Error("Failed to deliver notification",
				zap.String("event_id", event.EventID),
				zap.Int64("user_id", event.UserID),
				zap.Error(err))
			return nil
		}

		util.NotificationsDeliveredTotal.WithLabelValues("success").Inc()
		return nil
	})
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
