package service

import (
	"context"
	"fmt"

	"marketplace-payments/internal/models"
	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// SubscriptionStore is the persistence surface the subscription handlers need
type SubscriptionStore interface {
	GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetSubscription(ctx context.Context, userID int64, subscriptionID, status string) error
	SetSubscriptionStatusByID(ctx context.Context, subscriptionID, status string) (bool, error)
}

// SubscriptionService mirrors subscription lifecycle events onto user records
type SubscriptionService struct {
	store    SubscriptionStore
	notifier NotificationSink
	logger   *zap.Logger
}

// NewSubscriptionService creates a subscription service
func NewSubscriptionService(store SubscriptionStore, notifier NotificationSink) *SubscriptionService {
	return &SubscriptionService{
		store:    store,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// HandleSubscriptionChanged mirrors the upstream status verbatim onto the
// holding user; created and updated variants share this path
func (ss *SubscriptionService) HandleSubscriptionChanged(ctx context.Context, sub *models.SubscriptionData) error {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.HandleSubscriptionChanged")
	defer span.End()

	updated, err := ss.store.SetSubscriptionStatusByID(ctx, sub.ID, sub.Status)
	if err != nil {
		return fmt.Errorf("failed to set subscription status: %w", err)
	}
	if updated {
		ss.logger.Info("Subscription status mirrored",
			zap.String("subscription_id", sub.ID),
			zap.String("status", sub.Status))
		return nil
	}

	// First notice of this subscription: attach it by customer email if the
	// payload carries one we recognize.
	email := sub.Metadata["user_email"]
	if email == "" {
		ss.logger.Warn("Subscription event for unknown user",
			zap.String("subscription_id", sub.ID))
		return nil
	}
	user, err := ss.store.GetUserByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		ss.logger.Warn("Subscription event for unknown user",
			zap.String("subscription_id", sub.ID),
			zap.String("email", email))
		return nil
	}
	if err := ss.store.SetSubscription(ctx, user.ID, sub.ID, sub.Status); err != nil {
		return fmt.Errorf("failed to attach subscription: %w", err)
	}
	return nil
}

// HandleSubscriptionDeleted forces the status to canceled regardless of the
// payload's own status field
func (ss *SubscriptionService) HandleSubscriptionDeleted(ctx context.Context, sub *models.SubscriptionData) error {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.HandleSubscriptionDeleted")
	defer span.End()

	updated, err := ss.store.SetSubscriptionStatusByID(ctx, sub.ID, models.SubscriptionStatusCanceled)
	if err != nil {
		return fmt.Errorf("failed to cancel subscription: %w", err)
	}
	if !updated {
		ss.logger.Warn("Subscription deletion for unknown subscription",
			zap.String("subscription_id", sub.ID))
	}
	return nil
}

// HandleTrialWillEnd notifies the subscriber; no state mutation
func (ss *SubscriptionService) HandleTrialWillEnd(ctx context.Context, sub *models.SubscriptionData) error {
	ctx, span := util.StartSpan(ctx, "SubscriptionService.HandleTrialWillEnd")
	defer span.End()

	user, err := ss.store.GetUserBySubscriptionID(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		return nil
	}

	ss.notifier.Send(user.ID, models.NotificationTrialEnding,
		"Your trial is ending soon",
		"Your free trial ends in a few days. Add a payment method to keep your subscription.",
		sub.ID)
	return nil
}
