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

// PayoutStore is the persistence surface payout processing needs
type PayoutStore interface {
	GetPayoutByID(ctx context.Context, id int64) (*models.Payout, error)
	GetPayoutByTransferRef(ctx context.Context, ref string) (*models.Payout, error)
	CompletePayout(ctx context.Context, id int64, transferRef string) (bool, error)
	FailPayout(ctx context.Context, id int64) (bool, error)
	GetVerifiedPayoutMethod(ctx context.Context, hostID int64) (*models.PayoutMethod, error)
	PromotePayoutMethodByAccount(ctx context.Context, externalAccountID string) (bool, error)
	PromotePayoutMethodByIdentitySession(ctx context.Context, sessionID string) (bool, error)
	FlagPayoutMethodByIdentitySession(ctx context.Context, sessionID string) (bool, error)
}

// Locker serializes payout processing across instances
type Locker interface {
	AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey string) error
}

// PayoutService moves host earnings to connected accounts and reconciles
// transfer, account and identity webhook events
type PayoutService struct {
	store    PayoutStore
	gateway  gateway.Client
	locker   Locker
	notifier NotificationSink
	logger   *zap.Logger
	lockTTL  time.Duration
}

// NewPayoutService creates a payout service
func NewPayoutService(store PayoutStore, gw gateway.Client, locker Locker, notifier NotificationSink) *PayoutService {
	return &PayoutService{
		store:    store,
		gateway:  gw,
		locker:   locker,
		notifier: notifier,
		logger:   util.GetLogger(),
		lockTTL:  30 * time.Second,
	}
}

// PayoutRequest asks for a payout to be processed
type PayoutRequest struct {
	PayoutID int64 `json:"payout_id" binding:"required"`
}

// PayoutResponse acknowledges a processed payout
type PayoutResponse struct {
	Success    bool   `json:"success"`
	TransferID string `json:"transfer_id"`
	Amount     int64  `json:"amount"`
	PayoutID   int64  `json:"payout_id"`
}

// ProcessPayout transfers a host's net earnings to their connected account.
// Requires a verified payout method; a payout that already completed is
// rejected rather than re-transferred.
func (ps *PayoutService) ProcessPayout(ctx context.Context, req *PayoutRequest) (*PayoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "PayoutService.ProcessPayout")
	defer span.End()

	payout, err := ps.store.GetPayoutByID(ctx, req.PayoutID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			util.PayoutsTotal.WithLabelValues("not_found").Inc()
			return nil, ErrNotFound("payout not found", err)
		}
		return nil, ErrDependency("failed to look up payout", err)
	}

	if payout.Status == models.PayoutStatusCompleted {
		util.PayoutsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("payout has already been completed")
	}
	if payout.Status == models.PayoutStatusFailed {
		util.PayoutsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("payout is in a failed state")
	}

	lockKey := fmt.Sprintf("payout:%d", payout.ID)
	acquired, err := ps.locker.AcquireLock(ctx, lockKey, ps.lockTTL)
	if err != nil {
		return nil, ErrDependency("failed to acquire payout lock", err)
	}
	if !acquired {
		util.PayoutsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("payout is already being processed")
	}
	defer func() {
		if err := ps.locker.ReleaseLock(context.Background(), lockKey); err != nil {
			ps.logger.Error("Failed to release payout lock",
				zap.String("lock_key", lockKey),
				zap.Error(err))
		}
	}()

	method, err := ps.store.GetVerifiedPayoutMethod(ctx, payout.HostID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up payout method: %w", err)
	}
	if method == nil {
		// No verified destination: fail the payout and report, without
		// touching the transfer capability.
		if _, failErr := ps.store.FailPayout(ctx, payout.ID); failErr != nil {
			return nil, fmt.Errorf("failed to mark payout failed: %w", failErr)
		}
		util.PayoutsTotal.WithLabelValues("no_method").Inc()
		ps.notifier.Send(payout.HostID, models.NotificationPayoutFailed,
			"Payout failed",
			"Your payout could not be sent because no verified payout method is on file.",
			fmt.Sprintf("%d", payout.ID))
		return nil, ErrValidation("host has no verified payout method")
	}

	result, err := ps.gateway.CreateTransfer(ctx, &gateway.TransferRequest{
		AmountCents:   payout.NetAmount,
		Currency:      "usd",
		Destination:   method.ExternalAccountID,
		TransferGroup: fmt.Sprintf("booking-%d", payout.BookingID),
	})
	if err != nil {
		util.PayoutsTotal.WithLabelValues("gateway_error").Inc()
		return nil, ErrDependency("transfer request to payment processor failed", err)
	}

	completed, err := ps.store.CompletePayout(ctx, payout.ID, result.TransferID)
	if err != nil {
		return nil, fmt.Errorf("failed to complete payout: %w", err)
	}
	if !completed {
		// A concurrent processor won the conditional update; the transfer
		// group ties both transfers to the same charge for manual review.
		ps.logger.Warn("Payout completed concurrently",
			zap.Int64("payout_id", payout.ID),
			zap.String("transfer_id", result.TransferID))
		util.PayoutsTotal.WithLabelValues("conflict").Inc()
		return nil, ErrConflict("payout was completed by a concurrent request")
	}

	util.PayoutsTotal.WithLabelValues("success").Inc()
	ps.logger.Info("Payout completed",
		zap.Int64("payout_id", payout.ID),
		zap.Int64("amount", payout.NetAmount),
		zap.String("transfer_id", result.TransferID))

	ps.notifier.Send(payout.HostID, models.NotificationPayoutSent,
		"Payout sent",
		fmt.Sprintf("Your payout of %s is on its way.", formatCents(payout.NetAmount)),
		result.TransferID)

	return &PayoutResponse{
		Success:    true,
		TransferID: result.TransferID,
		Amount:     payout.NetAmount,
		PayoutID:   payout.ID,
	}, nil
}

// HandleAccountUpdated promotes the host's payout method once the connected
// account can receive payouts
func (ps *PayoutService) HandleAccountUpdated(ctx context.Context, account *models.AccountData) error {
	ctx, span := util.StartSpan(ctx, "PayoutService.HandleAccountUpdated")
	defer span.End()

	if !account.PayoutsEnabled {
		return nil
	}

	promoted, err := ps.store.PromotePayoutMethodByAccount(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("failed to promote payout method: %w", err)
	}
	if promoted {
		ps.logger.Info("Payout method verified via account update",
			zap.String("account_id", account.ID))
	}
	return nil
}

// HandleTransferSettled reconciles transfer.created and transfer.paid onto
// the payout carrying the transfer's metadata or reference
func (ps *PayoutService) HandleTransferSettled(ctx context.Context, transfer *models.TransferData) error {
	ctx, span := util.StartSpan(ctx, "PayoutService.HandleTransferSettled")
	defer span.End()

	payout, err := ps.findPayoutForTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if payout == nil {
		ps.logger.Info("Transfer event for unknown payout",
			zap.String("transfer_id", transfer.ID))
		return nil
	}

	completed, err := ps.store.CompletePayout(ctx, payout.ID, transfer.ID)
	if err != nil {
		return fmt.Errorf("failed to complete payout: %w", err)
	}
	if completed {
		ps.notifier.Send(payout.HostID, models.NotificationPayoutSent,
			"Payout sent",
			fmt.Sprintf("Your payout of %s is on its way.", formatCents(payout.NetAmount)),
			transfer.ID)
	}
	return nil
}

// HandleTransferFailed marks the payout failed and tells the host
func (ps *PayoutService) HandleTransferFailed(ctx context.Context, transfer *models.TransferData) error {
	ctx, span := util.StartSpan(ctx, "PayoutService.HandleTransferFailed")
	defer span.End()

	payout, err := ps.findPayoutForTransfer(ctx, transfer)
	if err != nil {
		return err
	}
	if payout == nil {
		return nil
	}

	failed, err := ps.store.FailPayout(ctx, payout.ID)
	if err != nil {
		return fmt.Errorf("failed to mark payout failed: %w", err)
	}
	if failed {
		ps.notifier.Send(payout.HostID, models.NotificationPayoutFailed,
			"Payout failed",
			"Your payout could not be delivered. Please check your payout method.",
			transfer.ID)
	}
	return nil
}

// HandleIdentityVerified promotes a pending payout method once the host's
// identity check passes
func (ps *PayoutService) HandleIdentityVerified(ctx context.Context, session *models.IdentitySessionData) error {
	ctx, span := util.StartSpan(ctx, "PayoutService.HandleIdentityVerified")
	defer span.End()

	promoted, err := ps.store.PromotePayoutMethodByIdentitySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to promote payout method: %w", err)
	}
	if promoted {
		ps.logger.Info("Payout method verified via identity session",
			zap.String("session_id", session.ID))
	}
	return nil
}

// HandleIdentityIncomplete flags a pending payout method as needing input.
// A method that already verified is never demoted.
func (ps *PayoutService) HandleIdentityIncomplete(ctx context.Context, session *models.IdentitySessionData) error {
	ctx, span := util.StartSpan(ctx, "PayoutService.HandleIdentityIncomplete")
	defer span.End()

	flagged, err := ps.store.FlagPayoutMethodByIdentitySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("failed to flag payout method: %w", err)
	}
	if flagged {
		ps.logger.Info("Payout method flagged for input",
			zap.String("session_id", session.ID),
			zap.String("reason", session.LastError.Reason))
	}
	return nil
}

func (ps *PayoutService) findPayoutForTransfer(ctx context.Context, transfer *models.TransferData) (*models.Payout, error) {
	if id, ok := transfer.Metadata["payout_id"]; ok {
		var payoutID int64
		if _, err := fmt.Sscanf(id, "%d", &payoutID); err == nil {
			payout, err := ps.store.GetPayoutByID(ctx, payoutID)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, ErrNotFound("payout not found for transfer", err)
				}
				return nil, ErrDependency("failed to look up payout", err)
			}
			return payout, nil
		}
	}
	return ps.store.GetPayoutByTransferRef(ctx, transfer.ID)
}
