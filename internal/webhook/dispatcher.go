package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"marketplace-payments/internal/models"
	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// Outcome describes what the dispatcher did with an event
type Outcome string

const (
	OutcomeProcessed Outcome = "processed"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeIgnored   Outcome = "ignored"
)

// PaymentHandler reconciles payment-family events
type PaymentHandler interface {
	HandlePaymentSucceeded(ctx context.Context, intent *models.PaymentIntentData) error
	HandlePaymentFailed(ctx context.Context, intent *models.PaymentIntentData) error
	HandleChargeRefunded(ctx context.Context, charge *models.ChargeData) error
	HandleCheckoutCompleted(ctx context.Context, session *models.CheckoutSessionData) error
}

// PayoutHandler reconciles transfer, account and identity events
type PayoutHandler interface {
	HandleAccountUpdated(ctx context.Context, account *models.AccountData) error
	HandleTransferSettled(ctx context.Context, transfer *models.TransferData) error
	HandleTransferFailed(ctx context.Context, transfer *models.TransferData) error
	HandleIdentityVerified(ctx context.Context, session *models.IdentitySessionData) error
	HandleIdentityIncomplete(ctx context.Context, session *models.IdentitySessionData) error
}

// SubscriptionHandler reconciles subscription lifecycle events
type SubscriptionHandler interface {
	HandleSubscriptionChanged(ctx context.Context, sub *models.SubscriptionData) error
	HandleSubscriptionDeleted(ctx context.Context, sub *models.SubscriptionData) error
	HandleTrialWillEnd(ctx context.Context, sub *models.SubscriptionData) error
}

// Ledger is the durable record of processed event ids
type Ledger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// Dispatcher routes a verified event to exactly one handler family.
// Unknown types are acknowledged without action so the sender stops
// redelivering them.
type Dispatcher struct {
	ledger        Ledger
	payments      PaymentHandler
	payouts       PayoutHandler
	subscriptions SubscriptionHandler
	logger        *zap.Logger
}

// NewDispatcher creates an event dispatcher
func NewDispatcher(ledger Ledger, payments PaymentHandler, payouts PayoutHandler, subscriptions SubscriptionHandler) *Dispatcher {
	return &Dispatcher{
		ledger:        ledger,
		payments:      payments,
		payouts:       payouts,
		subscriptions: subscriptions,
		logger:        util.GetLogger(),
	}
}

// Dispatch routes one verified event. Delivery is at-least-once upstream, so
// the processed-event ledger is consulted first and every handler is safe to
// re-run regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.WebhookEvent) (Outcome, error) {
	ctx, span := util.StartSpan(ctx, "Dispatcher.Dispatch")
	defer span.End()

	start := time.Now()
	defer func() {
		util.WebhookProcessingLatency.WithLabelValues(event.Type).Observe(time.Since(start).Seconds())
	}()

	processed, err := d.ledger.IsEventProcessed(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("failed to check event ledger: %w", err)
	}
	if processed {
		d.logger.Info("Duplicate webhook event",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type))
		util.WebhookEventsTotal.WithLabelValues(event.Type, string(OutcomeDuplicate)).Inc()
		return OutcomeDuplicate, nil
	}

	handled, err := d.route(ctx, event)
	if err != nil {
		util.WebhookEventsTotal.WithLabelValues(event.Type, "error").Inc()
		return "", err
	}

	if !handled {
		d.logger.Info("Ignoring unhandled webhook event type",
			zap.String("event_id", event.ID),
			zap.String("type", event.Type))
		util.WebhookEventsTotal.WithLabelValues(event.Type, string(OutcomeIgnored)).Inc()
		return OutcomeIgnored, nil
	}

	if err := d.ledger.MarkEventProcessed(ctx, event.ID, event.Type); err != nil {
		// The handlers are individually convergent, so a redelivery after a
		// failed mark re-applies cleanly.
		d.logger.Error("Failed to mark event processed",
			zap.String("event_id", event.ID),
			zap.Error(err))
	}

	util.WebhookEventsTotal.WithLabelValues(event.Type, string(OutcomeProcessed)).Inc()
	return OutcomeProcessed, nil
}

func (d *Dispatcher) route(ctx context.Context, event *models.WebhookEvent) (bool, error) {
	switch event.Type {
	case models.EventPaymentSucceeded:
		var intent models.PaymentIntentData
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return false, fmt.Errorf("decode payment intent: %w", err)
		}
		return true, d.payments.HandlePaymentSucceeded(ctx, &intent)

	case models.EventPaymentFailed:
		var intent models.PaymentIntentData
		if err := json.Unmarshal(event.Data.Object, &intent); err != nil {
			return false, fmt.Errorf("decode payment intent: %w", err)
		}
		return true, d.payments.HandlePaymentFailed(ctx, &intent)

	case models.EventChargeRefunded:
		var charge models.ChargeData
		if err := json.Unmarshal(event.Data.Object, &charge); err != nil {
			return false, fmt.Errorf("decode charge: %w", err)
		}
		return true, d.payments.HandleChargeRefunded(ctx, &charge)

	case models.EventCheckoutSessionCompleted:
		var session models.CheckoutSessionData
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return false, fmt.Errorf("decode checkout session: %w", err)
		}
		return true, d.payments.HandleCheckoutCompleted(ctx, &session)

	case models.EventAccountUpdated:
		var account models.AccountData
		if err := json.Unmarshal(event.Data.Object, &account); err != nil {
			return false, fmt.Errorf("decode account: %w", err)
		}
		return true, d.payouts.HandleAccountUpdated(ctx, &account)

	case models.EventTransferCreated, models.EventTransferPaid:
		var transfer models.TransferData
		if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
			return false, fmt.Errorf("decode transfer: %w", err)
		}
		return true, d.payouts.HandleTransferSettled(ctx, &transfer)

	case models.EventTransferFailed:
		var transfer models.TransferData
		if err := json.Unmarshal(event.Data.Object, &transfer); err != nil {
			return false, fmt.Errorf("decode transfer: %w", err)
		}
		return true, d.payouts.HandleTransferFailed(ctx, &transfer)

	case models.EventIdentityVerified:
		var session models.IdentitySessionData
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return false, fmt.Errorf("decode identity session: %w", err)
		}
		return true, d.payouts.HandleIdentityVerified(ctx, &session)

	case models.EventIdentityRequiresInput, models.EventIdentityCanceled:
		var session models.IdentitySessionData
		if err := json.Unmarshal(event.Data.Object, &session); err != nil {
			return false, fmt.Errorf("decode identity session: %w", err)
		}
		return true, d.payouts.HandleIdentityIncomplete(ctx, &session)

	case models.EventSubscriptionCreated, models.EventSubscriptionUpdated:
		var sub models.SubscriptionData
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		return true, d.subscriptions.HandleSubscriptionChanged(ctx, &sub)

	case models.EventSubscriptionDeleted:
		var sub models.SubscriptionData
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		return true, d.subscriptions.HandleSubscriptionDeleted(ctx, &sub)

	case models.EventSubscriptionTrialEnding:
		var sub models.SubscriptionData
		if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
			return false, fmt.Errorf("decode subscription: %w", err)
		}
		return true, d.subscriptions.HandleTrialWillEnd(ctx, &sub)
	}

	return false, nil
}
