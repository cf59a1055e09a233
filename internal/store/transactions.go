package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-payments/internal/models"
)

// CreateTransaction inserts a transaction row
func (s *Store) CreateTransaction(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (user_email, transaction_type, amount, status, payment_reference, reference_id, refund_amount, refund_reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, tx, query,
		tx.UserEmail, tx.TransactionType, tx.Amount, tx.Status,
		tx.PaymentReference, tx.ReferenceID, tx.RefundAmount, tx.RefundReason)
}

// GetTransactionByID retrieves a transaction by ID
func (s *Store) GetTransactionByID(ctx context.Context, id int64) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx, "SELECT * FROM transactions WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: transaction %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetTransactionByPaymentReference retrieves a charge transaction by its
// processor payment reference; returns nil if none exists yet
func (s *Store) GetTransactionByPaymentReference(ctx context.Context, ref string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.GetContext(ctx, &tx,
		"SELECT * FROM transactions WHERE payment_reference = $1 AND transaction_type = $2",
		ref, models.TransactionTypeCharge)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// UpdateTransactionStatusIf moves a transaction to status only when it is
// currently in fromStatus. Returns true if the row was updated, so that
// redelivered events converge instead of double-applying.
func (s *Store) UpdateTransactionStatusIf(ctx context.Context, id int64, fromStatus, toStatus string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE transactions SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		toStatus, id, fromStatus)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ApplyRefund records a refund against a charge transaction. The cumulative
// refunded amount is written and the status flips to refunded only when the
// total reaches the charge amount. The WHERE clause keeps the write
// convergent: a replay with the same cumulative total is a no-op.
func (s *Store) ApplyRefund(ctx context.Context, id int64, cumulativeRefund int64, reason string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE transactions
		SET refund_amount = $1,
		    refund_reason = $2,
		    status = CASE WHEN $1 >= amount THEN 'refunded' ELSE status END,
		    updated_at = NOW()
		WHERE id = $3 AND status IN ('completed', 'refunded') AND refund_amount < $1`,
		cumulativeRefund, reason, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
