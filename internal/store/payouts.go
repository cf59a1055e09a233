package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-payments/internal/models"
)

// GetPayoutByID retrieves a payout by ID
func (s *Store) GetPayoutByID(ctx context.Context, id int64) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.GetContext(ctx, &payout, "SELECT * FROM payouts WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: payout %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// GetPayoutByTransferRef retrieves a payout by its transfer reference;
// returns nil if no payout carries the reference
func (s *Store) GetPayoutByTransferRef(ctx context.Context, ref string) (*models.Payout, error) {
	var payout models.Payout
	err := s.db.GetContext(ctx, &payout, "SELECT * FROM payouts WHERE transaction_ref = $1", ref)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// CompletePayout marks a pending payout completed with its transfer
// reference. A payout that already left pending is never touched again.
func (s *Store) CompletePayout(ctx context.Context, id int64, transferRef string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payouts
		SET status = $1, transaction_ref = $2, payout_date = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = $4`,
		models.PayoutStatusCompleted, transferRef, id, models.PayoutStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FailPayout marks a pending payout failed
func (s *Store) FailPayout(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE payouts SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		models.PayoutStatusFailed, id, models.PayoutStatusPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetVerifiedPayoutMethod returns the host's default verified stripe payout
// method; nil if the host has none
func (s *Store) GetVerifiedPayoutMethod(ctx context.Context, hostID int64) (*models.PayoutMethod, error) {
	var method models.PayoutMethod
	err := s.db.GetContext(ctx, &method, `
		SELECT * FROM payout_methods
		WHERE host_id = $1 AND method_type = $2 AND status = $3
		ORDER BY is_default DESC, id
		LIMIT 1`,
		hostID, models.PayoutMethodTypeStripe, models.PayoutMethodVerified)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &method, nil
}

// PromotePayoutMethodByAccount verifies a pending payout method identified by
// its connected account id
func (s *Store) PromotePayoutMethodByAccount(ctx context.Context, externalAccountID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payout_methods
		SET status = $1, updated_at = NOW()
		WHERE external_account_id = $2 AND status <> $1`,
		models.PayoutMethodVerified, externalAccountID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// PromotePayoutMethodByIdentitySession verifies the payout method of the user
// whose identity session matches
func (s *Store) PromotePayoutMethodByIdentitySession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payout_methods
		SET status = $1, updated_at = NOW()
		WHERE host_id = (SELECT id FROM users WHERE identity_session_id = $2)
		  AND status = $3`,
		models.PayoutMethodVerified, sessionID, models.PayoutMethodPendingVerification)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// FlagPayoutMethodByIdentitySession moves a not-yet-verified payout method to
// requires_input. A verified method is never demoted.
func (s *Store) FlagPayoutMethodByIdentitySession(ctx context.Context, sessionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE payout_methods
		SET status = $1, updated_at = NOW()
		WHERE host_id = (SELECT id FROM users WHERE identity_session_id = $2)
		  AND status = $3`,
		models.PayoutMethodRequiresInput, sessionID, models.PayoutMethodPendingVerification)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
