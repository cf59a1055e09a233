package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace-payments/internal/gateway"
	"marketplace-payments/internal/models"
	"marketplace-payments/internal/store"
)

// fakeStore is an in-memory stand-in for the sqlx store, mirroring its
// conditional-update semantics. Setting lookupErr makes every by-ID
// lookup fail as if the database were unreachable.
type fakeStore struct {
	transactions  map[int64]*models.Transaction
	bookings      map[int64]*models.Booking
	payouts       map[int64]*models.Payout
	payoutMethods map[int64]*models.PayoutMethod
	users         map[int64]*models.User
	notifications []*models.Notification
	nextID        int64
	lookupErr     error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		transactions:  make(map[int64]*models.Transaction),
		bookings:      make(map[int64]*models.Booking),
		payouts:       make(map[int64]*models.Payout),
		payoutMethods: make(map[int64]*models.PayoutMethod),
		users:         make(map[int64]*models.User),
		nextID:        100,
	}
}

func (f *fakeStore) CreateTransaction(_ context.Context, tx *models.Transaction) error {
	f.nextID++
	tx.ID = f.nextID
	copied := *tx
	f.transactions[tx.ID] = &copied
	return nil
}

func (f *fakeStore) GetTransactionByID(_ context.Context, id int64) (*models.Transaction, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	tx, ok := f.transactions[id]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %d", store.ErrNotFound, id)
	}
	copied := *tx
	return &copied, nil
}

func (f *fakeStore) GetTransactionByPaymentReference(_ context.Context, ref string) (*models.Transaction, error) {
	for _, tx := range f.transactions {
		if tx.PaymentReference == ref && tx.TransactionType == models.TransactionTypeCharge {
			copied := *tx
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpdateTransactionStatusIf(_ context.Context, id int64, fromStatus, toStatus string) (bool, error) {
	tx, ok := f.transactions[id]
	if !ok || tx.Status != fromStatus {
		return false, nil
	}
	tx.Status = toStatus
	return true, nil
}

func (f *fakeStore) ApplyRefund(_ context.Context, id int64, cumulativeRefund int64, reason string) (bool, error) {
	tx, ok := f.transactions[id]
	if !ok {
		return false, nil
	}
	if tx.Status != models.TransactionStatusCompleted && tx.Status != models.TransactionStatusRefunded {
		return false, nil
	}
	if tx.RefundAmount >= cumulativeRefund {
		return false, nil
	}
	tx.RefundAmount = cumulativeRefund
	tx.RefundReason = nullString(reason)
	if cumulativeRefund >= tx.Amount {
		tx.Status = models.TransactionStatusRefunded
	}
	return true, nil
}

func (f *fakeStore) GetBookingByID(_ context.Context, id int64) (*models.Booking, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	booking, ok := f.bookings[id]
	if !ok {
		return nil, fmt.Errorf("%w: booking %d", store.ErrNotFound, id)
	}
	copied := *booking
	return &copied, nil
}

func (f *fakeStore) MarkBookingPaid(_ context.Context, id int64) (bool, error) {
	booking, ok := f.bookings[id]
	if !ok || booking.PaymentStatus != models.BookingPaymentPending {
		return false, nil
	}
	booking.PaymentStatus = models.BookingPaymentPaid
	return true, nil
}

func (f *fakeStore) CancelBookingForRefund(_ context.Context, id int64, refundAmount int64) (bool, error) {
	booking, ok := f.bookings[id]
	if !ok || booking.PaymentStatus == models.BookingPaymentRefunded {
		return false, nil
	}
	booking.Status = models.BookingStatusCancelled
	booking.PaymentStatus = models.BookingPaymentRefunded
	booking.RefundAmount = refundAmount
	return true, nil
}

func (f *fakeStore) RecordBookingPartialRefund(_ context.Context, id int64, refundAmount int64) error {
	booking, ok := f.bookings[id]
	if !ok {
		return fmt.Errorf("booking not found: %d", id)
	}
	booking.RefundAmount = refundAmount
	return nil
}

func (f *fakeStore) GetPayoutByID(_ context.Context, id int64) (*models.Payout, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	payout, ok := f.payouts[id]
	if !ok {
		return nil, fmt.Errorf("%w: payout %d", store.ErrNotFound, id)
	}
	copied := *payout
	return &copied, nil
}

func (f *fakeStore) GetPayoutByTransferRef(_ context.Context, ref string) (*models.Payout, error) {
	for _, payout := range f.payouts {
		if payout.TransactionRef.Valid && payout.TransactionRef.String == ref {
			copied := *payout
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) CompletePayout(_ context.Context, id int64, transferRef string) (bool, error) {
	payout, ok := f.payouts[id]
	if !ok || payout.Status != models.PayoutStatusPending {
		return false, nil
	}
	payout.Status = models.PayoutStatusCompleted
	payout.TransactionRef = nullString(transferRef)
	return true, nil
}

func (f *fakeStore) FailPayout(_ context.Context, id int64) (bool, error) {
	payout, ok := f.payouts[id]
	if !ok || payout.Status != models.PayoutStatusPending {
		return false, nil
	}
	payout.Status = models.PayoutStatusFailed
	return true, nil
}

func (f *fakeStore) GetVerifiedPayoutMethod(_ context.Context, hostID int64) (*models.PayoutMethod, error) {
	for _, method := range f.payoutMethods {
		if method.HostID == hostID &&
			method.MethodType == models.PayoutMethodTypeStripe &&
			method.Status == models.PayoutMethodVerified {
			copied := *method
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) PromotePayoutMethodByAccount(_ context.Context, externalAccountID string) (bool, error) {
	for _, method := range f.payoutMethods {
		if method.ExternalAccountID == externalAccountID && method.Status != models.PayoutMethodVerified {
			method.Status = models.PayoutMethodVerified
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) PromotePayoutMethodByIdentitySession(_ context.Context, sessionID string) (bool, error) {
	for _, user := range f.users {
		if user.IdentitySessionID.Valid && user.IdentitySessionID.String == sessionID {
			for _, method := range f.payoutMethods {
				if method.HostID == user.ID && method.Status == models.PayoutMethodPendingVerification {
					method.Status = models.PayoutMethodVerified
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (f *fakeStore) FlagPayoutMethodByIdentitySession(_ context.Context, sessionID string) (bool, error) {
	for _, user := range f.users {
		if user.IdentitySessionID.Valid && user.IdentitySessionID.String == sessionID {
			for _, method := range f.payoutMethods {
				if method.HostID == user.ID && method.Status == models.PayoutMethodPendingVerification {
					method.Status = models.PayoutMethodRequiresInput
					return true, nil
				}
			}
		}
	}
	return false, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id int64) (*models.User, error) {
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	copied := *user
	return &copied, nil
}

func (f *fakeStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, user := range f.users {
		if user.Email == email {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetUserBySubscriptionID(_ context.Context, subscriptionID string) (*models.User, error) {
	for _, user := range f.users {
		if user.SubscriptionID.Valid && user.SubscriptionID.String == subscriptionID {
			copied := *user
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) SetSubscription(_ context.Context, userID int64, subscriptionID, status string) error {
	user, ok := f.users[userID]
	if !ok {
		return fmt.Errorf("user not found: %d", userID)
	}
	user.SubscriptionID = nullString(subscriptionID)
	user.SubscriptionStatus = status
	return nil
}

func (f *fakeStore) SetSubscriptionStatusByID(_ context.Context, subscriptionID, status string) (bool, error) {
	for _, user := range f.users {
		if user.SubscriptionID.Valid && user.SubscriptionID.String == subscriptionID {
			user.SubscriptionStatus = status
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateNotification(_ context.Context, n *models.Notification) error {
	f.nextID++
	n.ID = f.nextID
	copied := *n
	f.notifications = append(f.notifications, &copied)
	return nil
}

// fakeGateway records outbound processor calls and can be forced to fail
type fakeGateway struct {
	transfers []*gateway.TransferRequest
	refunds   []*gateway.RefundRequest
	failWith  error
}

func (f *fakeGateway) CreateTransfer(_ context.Context, req *gateway.TransferRequest) (*gateway.TransferResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.transfers = append(f.transfers, req)
	return &gateway.TransferResult{
		TransferID: fmt.Sprintf("tr_%d", len(f.transfers)),
		Amount:     req.AmountCents,
	}, nil
}

func (f *fakeGateway) CreateRefund(_ context.Context, req *gateway.RefundRequest) (*gateway.RefundResult, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	f.refunds = append(f.refunds, req)
	return &gateway.RefundResult{
		RefundID: fmt.Sprintf("re_%d", len(f.refunds)),
		Amount:   req.AmountCents,
		Status:   "succeeded",
	}, nil
}

// fakeNotifier records sends synchronously so tests can assert on them
type fakeNotifier struct {
	sent []models.Notification
}

func (f *fakeNotifier) Send(userID int64, notifType, title, message, referenceID string) {
	f.sent = append(f.sent, models.Notification{
		UserID:      userID,
		Type:        notifType,
		Title:       title,
		Message:     message,
		ReferenceID: referenceID,
	})
}

// fakeLocker always grants the lock unless told otherwise
type fakeLocker struct {
	denied   bool
	acquired []string
	released []string
}

func (f *fakeLocker) AcquireLock(_ context.Context, lockKey string, _ time.Duration) (bool, error) {
	if f.denied {
		return false, nil
	}
	f.acquired = append(f.acquired, lockKey)
	return true, nil
}

func (f *fakeLocker) ReleaseLock(_ context.Context, lockKey string) error {
	f.released = append(f.released, lockKey)
	return nil
}

var errGatewayDown = errors.New("connection refused")
