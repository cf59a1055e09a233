package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-payments/internal/gateway"
	"marketplace-payments/internal/models"
	"marketplace-payments/internal/store"
	"marketplace-payments/internal/util"

	"go.uber.org/zap"
)

// RefundStore is the persistence surface the refund operation needs
type RefundStore interface {
	GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error)
	CreateTransaction(ctx context.Context, tx *models.Transaction) error
	ApplyRefund(ctx context.Context, id int64, cumulativeRefund int64, reason string) (bool, error)
	GetBookingByID(ctx context.Context, id int64) (*models.Booking, error)
	CancelBookingForRefund(ctx context.Context, id int64, refundAmount int64) (bool, error)
	RecordBookingPartialRefund(ctx context.Context, id int64, refundAmount int64) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

// RefundService executes user-initiated refunds through the processor
type RefundService struct {
	store    RefundStore
	gateway  gateway.Client
	locker   Locker
	notifier NotificationSink
	logger   *zap.Logger
	lockTTL  time.Duration
}

// NewRefundService creates a refund service
func NewRefundService(store RefundStore, gw gateway.Client, locker Locker, notifier NotificationSink) *RefundService {
	return &RefundService{
		store:    store,
		gateway:  gw,
		locker:   locker,
		notifier: notifier,
		logger:   util.GetLogger(),
		lockTTL:  30 * time.Second,
	}
}

// RefundRequest is a user-initiated refund
type RefundRequest struct {
	TransactionID int64  `json:"transaction_id" binding:"required"`
	RefundAmount  int64  `json:"refund_amount,omitempty"` // cents; zero means full remaining
	RefundReason  string `json:"refund_reason,omitempty"`
	BookingID     int64  `json:"booking_id,omitempty"`
}

// RefundResponse acknowledges a processed refund
type RefundResponse struct {
	Success       bool   `json:"success"`
	RefundID      string `json:"refund_id"`
	Amount        int64  `json:"amount"`
	TransactionID int64  `json:"transaction_id"`
}

// Refund reverses part or all of a charge. Authorized for admins and for the
// owner of the listing on the linked booking. Cumulative refunds may not
// exceed the original amount.
func (rs *RefundService) Refund(ctx context.Context, caller Identity, req *RefundRequest) (*RefundResponse, error) {
	ctx, span := util.StartSpan(ctx, "RefundService.Refund")
	defer span.End()

	// The remaining-balance check reads a snapshot, so the read, the
	// processor call and the write must be serialized per transaction or
	// two concurrent requests would each pass the check and refund twice.
	lockKey := fmt.Sprintf("refund:%d", req.TransactionID)
	acquired, err := rs.locker.AcquireLock(ctx, lockKey, rs.lockTTL)
	if err != nil {
		return nil, ErrDependency("failed to acquire refund lock", err)
	}
	if !acquired {
		util.RefundsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("a refund for this transaction is already in progress")
	}
	defer func() {
		if err := rs.locker.ReleaseLock(context.Background(), lockKey); err != nil {
			rs.logger.Error("Failed to release refund lock",
				zap.String("lock_key", lockKey),
				zap.Error(err))
		}
	}()

	tx, err := rs.store.GetTransactionByID(ctx, req.TransactionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.RefundsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound("transaction not found", err)
		}
		return nil, ErrDependency("failed to look up transaction", err)
	}

	booking, err := rs.resolveBooking(ctx, tx, req.BookingID)
	if err != nil {
		return nil, err
	}

	if !caller.IsAdmin() {
		if booking == nil || booking.OwnerID != caller.UserID {
			util.RefundsTotal.WithLabelValues("forbidden").Inc()
			return nil, ErrForbidden("not authorized to refund this transaction")
		}
	}

	if tx.Status == models.TransactionStatusRefunded {
		util.RefundsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("transaction is already fully refunded")
	}
	if tx.PaymentReference == "" {
		util.RefundsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrValidation("transaction has no payment reference")
	}

	remaining := tx.Amount - tx.RefundAmount
	amountToRefund := req.RefundAmount
	if amountToRefund == 0 {
		amountToRefund = remaining
	}
	if amountToRefund <= 0 {
		util.RefundsTotal.WithLabelValues("invalid").Inc()
		return nil, ErrValidation("refund amount must be positive")
	}
	if amountToRefund > remaining {
		util.RefundsTotal.WithLabelValues("over_refund").Inc()
		return nil, ErrValidation(fmt.Sprintf(
			"refund amount %d exceeds remaining refundable balance %d", amountToRefund, remaining))
	}

	result, err := rs.gateway.CreateRefund(ctx, &gateway.RefundRequest{
		PaymentReference: tx.PaymentReference,
		AmountCents:      amountToRefund,
		Reason:           req.RefundReason,
	})
	if err != nil {
		util.RefundsTotal.WithLabelValues("gateway_error").Inc()
		return nil, ErrDependency("refund request to payment processor failed", err)
	}

	refundRow := &models.Transaction{
		UserEmail:        tx.UserEmail,
		TransactionType:  models.TransactionTypeRefund,
		Amount:           amountToRefund,
		Status:           models.TransactionStatusCompleted,
		PaymentReference: result.RefundID,
		ReferenceID:      nullInt64(tx.ID),
		RefundReason:     nullString(req.RefundReason),
	}
	if err := rs.store.CreateTransaction(ctx, refundRow); err != nil {
		return nil, fmt.Errorf("failed to record refund transaction: %w", err)
	}

	cumulative := tx.RefundAmount + amountToRefund
	if _, err := rs.store.ApplyRefund(ctx, tx.ID, cumulative, req.RefundReason); err != nil {
		return nil, fmt.Errorf("failed to update original transaction: %w", err)
	}

	if booking != nil {
		if cumulative >= tx.Amount {
			if _, err := rs.store.CancelBookingForRefund(ctx, booking.ID, cumulative); err != nil {
				return nil, fmt.Errorf("failed to cancel booking: %w", err)
			}
		} else {
			if err := rs.store.RecordBookingPartialRefund(ctx, booking.ID, cumulative); err != nil {
				return nil, fmt.Errorf("failed to record partial refund on booking: %w", err)
			}
		}
	}

	if user, lookupErr := rs.store.GetUserByEmail(ctx, tx.UserEmail); lookupErr == nil && user != nil {
		rs.notifier.Send(user.ID, models.NotificationRefundIssued,
			"Refund issued",
			fmt.Sprintf("A refund of %s has been issued.", formatCents(amountToRefund)),
			result.RefundID)
	}

	util.RefundsTotal.WithLabelValues("success").Inc()
	rs.logger.Info("Refund processed",
		zap.Int64("transaction_id", tx.ID),
		zap.Int64("amount", amountToRefund),
		zap.String("refund_id", result.RefundID))

	return &RefundResponse{
		Success:       true,
		RefundID:      result.RefundID,
		Amount:        amountToRefund,
		TransactionID: tx.ID,
	}, nil
}

func (rs *RefundService) resolveBooking(ctx context.Context, tx *models.Transaction, requestedID int64) (*models.Booking, error) {
	bookingID := requestedID
	if bookingID == 0 && tx.ReferenceID.Valid {
		bookingID = tx.ReferenceID.Int64
	}
	if bookingID == 0 {
		return nil, nil
	}

	booking, err := rs.store.GetBookingByID(ctx, bookingID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound("booking not found", err)
		}
		return nil, ErrDependency("failed to look up booking", err)
	}
	return booking, nil
}
