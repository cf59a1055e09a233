package service

import (
	"context"
	"fmt"

	"marketplace-payments/internal/models"
	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// NotificationSink is the fire-and-forget notification capability
type NotificationSink interface {
	Send(userID int64, notifType, title, message, referenceID string)
}

// PaymentStore is the persistence surface the payment handlers need
type PaymentStore interface {
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	GetTransactionByPaymentReference(ctx context.Context, ref string) (*models.Transaction, error)
	UpdateTransactionStatusIf(ctx context.Context, id int64, fromStatus, toStatus string) (bool, error)
	ApplyRefund(ctx context.Context, id int64, cumulativeRefund int64, reason string) (bool, error)
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	MarkBookingPaid(ctx context.Context, id int64) (bool, error)
	CancelBookingForRefund(ctx context.Context, id int64, refundAmount int64) (bool, error)
	RecordBookingPartialRefund(ctx context.Context, id int64, refundAmount int64) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetSubscription(ctx context.Context, userID int64, subscriptionID, status string) error
}

// PaymentService reconciles payment-family webhook events onto transactions
// and bookings. Every state change is a conditional update so redelivered
// events converge instead of double-applying.
type PaymentService struct {
	store    PaymentStore
	notifier NotificationSink
	logger   *zap.Logger
}

// NewPaymentService creates a payment reconciliation service
func NewPaymentService(store PaymentStore, notifier NotificationSink) *PaymentService {
	return &PaymentService{
		store:    store,
		notifier: notifier,
		logger:   util.GetLogger(),
	}
}

// HandlePaymentSucceeded records a completed charge. If no transaction
// carries the payment reference yet, this event is the first notice and a
// completed row is created; otherwise the existing row is left as is.
func (ps *PaymentService) HandlePaymentSucceeded(ctx context.Context, intent *models.PaymentIntentData) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentSucceeded")
	defer span.End()

	tx, err := ps.store.GetTransactionByPaymentReference(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}

	bookingID := bookingIDFromMetadata(intent.Metadata)

	if tx == nil {
		newTx := &models.Transaction{
			UserEmail:        intent.ReceiptEmail,
			TransactionType:  models.TransactionTypeCharge,
			Amount:           intent.Amount,
			Status:           models.TransactionStatusCompleted,
			PaymentReference: intent.ID,
			ReferenceID:      nullInt64(bookingID),
		}
		if err := ps.store.CreateTransaction(ctx, newTx); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		tx = newTx
		ps.logger.Info("Transaction created from payment event",
			zap.Int64("transaction_id", tx.ID),
			zap.String("payment_reference", intent.ID))
	} else {
		// A pending row moves forward; completed or refunded rows are
		// untouched on replay.
		moved, err := ps.store.UpdateTransactionStatusIf(ctx, tx.ID,
			models.TransactionStatusPending, models.TransactionStatusCompleted)
		if err != nil {
			return fmt.Errorf("failed to complete transaction: %w", err)
		}
		if !moved {
			ps.logger.Info("Transaction already reflects payment",
				zap.Int64("transaction_id", tx.ID),
				zap.String("status", tx.Status))
		}
	}

	if bookingID == 0 && tx.ReferenceID.Valid {
		bookingID = tx.ReferenceID.Int64
	}
	if bookingID != 0 {
		if _, err := ps.store.MarkBookingPaid(ctx, bookingID); err != nil {
			return fmt.Errorf("failed to mark booking paid: %w", err)
		}
	}

	if user, err := ps.store.GetUserByEmail(ctx, intent.ReceiptEmail); err == nil && user != nil {
		ps.notifier.Send(user.ID, models.NotificationPaymentReceived,
			"Payment received",
			fmt.Sprintf("Your payment of %s was received.", formatCents(intent.Amount)),
			intent.ID)
	}

	return nil
}

// HandlePaymentFailed moves a pending transaction to failed. Bookings are not
// touched: failure is distinct from the refund flow.
func (ps *PaymentService) HandlePaymentFailed(ctx context.Context, intent *models.PaymentIntentData) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandlePaymentFailed")
	defer span.End()

	tx, err := ps.store.GetTransactionByPaymentReference(ctx, intent.ID)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}
	if tx == nil {
		ps.logger.Info("Payment failure for unknown transaction",
			zap.String("payment_reference", intent.ID))
		return nil
	}

	moved, err := ps.store.UpdateTransactionStatusIf(ctx, tx.ID,
		models.TransactionStatusPending, models.TransactionStatusFailed)
	if err != nil {
		return fmt.Errorf("failed to fail transaction: %w", err)
	}
	if moved {
		ps.logger.Warn("Transaction marked failed",
			zap.Int64("transaction_id", tx.ID),
			zap.String("failure_message", intent.FailureMessage))
	}

	return nil
}

// HandleChargeRefunded mirrors a processor-initiated refund. The charge
// payload carries the cumulative refunded amount, so replay converges.
func (ps *PaymentService) HandleChargeRefunded(ctx context.Context, charge *models.ChargeData) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleChargeRefunded")
	defer span.End()

	tx, err := ps.store.GetTransactionByPaymentReference(ctx, charge.PaymentIntent)
	if err != nil {
		return fmt.Errorf("failed to look up transaction: %w", err)
	}
	if tx == nil {
		return ErrNotFound("transaction not found for refunded charge", nil)
	}

	applied, err := ps.store.ApplyRefund(ctx, tx.ID, charge.AmountRefunded, "processor refund")
	if err != nil {
		return fmt.Errorf("failed to apply refund: %w", err)
	}
	if !applied {
		ps.logger.Info("Refund already reflected",
			zap.Int64("transaction_id", tx.ID),
			zap.Int64("amount_refunded", charge.AmountRefunded))
		return nil
	}

	if tx.ReferenceID.Valid {
		if charge.Refunded {
			if _, err := ps.store.CancelBookingForRefund(ctx, tx.ReferenceID.Int64, charge.AmountRefunded); err != nil {
				return fmt.Errorf("failed to cancel booking: %w", err)
			}
		} else {
			if err := ps.store.RecordBookingPartialRefund(ctx, tx.ReferenceID.Int64, charge.AmountRefunded); err != nil {
				return fmt.Errorf("failed to record partial refund on booking: %w", err)
			}
		}
	}

	if user, err := ps.store.GetUserByEmail(ctx, tx.UserEmail); err == nil && user != nil {
		ps.notifier.Send(user.ID, models.NotificationRefundIssued,
			"Refund issued",
			fmt.Sprintf("A refund of %s was issued to your payment method.", formatCents(charge.AmountRefunded)),
			charge.ID)
	}

	return nil
}

// HandleCheckoutCompleted settles a checkout session. Payment-mode sessions
// complete the linked transaction and booking; subscription-mode sessions
// attach the new subscription to the purchasing user.
func (ps *PaymentService) HandleCheckoutCompleted(ctx context.Context, session *models.CheckoutSessionData) error {
	ctx, span := util.StartSpan(ctx, "PaymentService.HandleCheckoutCompleted")
	defer span.End()

	if session.Mode == "subscription" {
		user, err := ps.store.GetUserByEmail(ctx, session.CustomerEmail)
		if err != nil {
			return fmt.Errorf("failed to look up user: %w", err)
		}
		if user == nil {
			ps.logger.Warn("Checkout completed for unknown user",
				zap.String("session_id", session.ID))
			return nil
		}
		if err := ps.store.SetSubscription(ctx, user.ID, session.Subscription, models.SubscriptionStatusActive); err != nil {
			return fmt.Errorf("failed to set subscription: %w", err)
		}
		return nil
	}

	if session.PaymentIntent == "" {
		ps.logger.Warn("Checkout session without payment intent",
			zap.String("session_id", session.ID))
		return nil
	}

	intent := &models.PaymentIntentData{
		ID:           session.PaymentIntent,
		Amount:       session.AmountTotal,
		ReceiptEmail: session.CustomerEmail,
		Metadata:     session.Metadata,
	}
	return ps.HandlePaymentSucceeded(ctx, intent)
}
