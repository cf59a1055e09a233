package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-payments/internal/models"
)

// GetBookingByID retrieves a booking by ID
func (s *Store) GetBookingByID(ctx context.Context, id int64) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.GetContext(ctx, &booking, "SELECT * FROM bookings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: booking %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// MarkBookingPaid marks a booking paid while it is still awaiting payment
func (s *Store) MarkBookingPaid(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET payment_status = $1, updated_at = NOW() WHERE id = $2 AND payment_status = $3",
		models.BookingPaymentPaid, id, models.BookingPaymentPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CancelBookingForRefund cancels a booking after a full refund. Idempotent:
// an already-cancelled booking is left untouched.
func (s *Store) CancelBookingForRefund(ctx context.Context, id int64, refundAmount int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE bookings
		SET status = $1, payment_status = $2, refund_amount = $3, refund_date = NOW(), updated_at = NOW()
		WHERE id = $4 AND payment_status <> $2`,
		models.BookingStatusCancelled, models.BookingPaymentRefunded, refundAmount, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RecordBookingPartialRefund records a partial refund without cancelling
func (s *Store) RecordBookingPartialRefund(ctx context.Context, id int64, refundAmount int64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE bookings SET refund_amount = $1, refund_date = NOW(), updated_at = NOW() WHERE id = $2",
		refundAmount, id)
	return err
}
