package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"marketplace-payments/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLedger struct {
	processed map[string]bool
	markErr   error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{processed: make(map[string]bool)}
}

func (f *fakeLedger) IsEventProcessed(_ context.Context, eventID string) (bool, error) {
	return f.processed[eventID], nil
}

func (f *fakeLedger) MarkEventProcessed(_ context.Context, eventID, _ string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.processed[eventID] = true
	return nil
}

// recordingHandlers satisfies all three handler families and records which
// method each event reached
type recordingHandlers struct {
	calls   []string
	failAll error
}

func (r *recordingHandlers) record(name string) error {
	r.calls = append(r.calls, name)
	return r.failAll
}

func (r *recordingHandlers) HandlePaymentSucceeded(context.Context, *models.PaymentIntentData) error {
	return r.record("payment_succeeded")
}
func (r *recordingHandlers) HandlePaymentFailed(context.Context, *models.PaymentIntentData) error {
	return r.record("payment_failed")
}
func (r *recordingHandlers) HandleChargeRefunded(context.Context, *models.ChargeData) error {
	return r.record("charge_refunded")
}
func (r *recordingHandlers) HandleCheckoutCompleted(context.Context, *models.CheckoutSessionData) error {
	return r.record("checkout_completed")
}
func (r *recordingHandlers) HandleAccountUpdated(context.Context, *models.AccountData) error {
	return r.record("account_updated")
}
func (r *recordingHandlers) HandleTransferSettled(context.Context, *models.TransferData) error {
	return r.record("transfer_settled")
}
func (r *recordingHandlers) HandleTransferFailed(context.Context, *models.TransferData) error {
	return r.record("transfer_failed")
}
func (r *recordingHandlers) HandleIdentityVerified(context.Context, *models.IdentitySessionData) error {
	return r.record("identity_verified")
}
func (r *recordingHandlers) HandleIdentityIncomplete(context.Context, *models.IdentitySessionData) error {
	return r.record("identity_incomplete")
}
func (r *recordingHandlers) HandleSubscriptionChanged(context.Context, *models.SubscriptionData) error {
	return r.record("subscription_changed")
}
func (r *recordingHandlers) HandleSubscriptionDeleted(context.Context, *models.SubscriptionData) error {
	return r.record("subscription_deleted")
}
func (r *recordingHandlers) HandleTrialWillEnd(context.Context, *models.SubscriptionData) error {
	return r.record("trial_will_end")
}

func newTestDispatcher(ledger Ledger, h *recordingHandlers) *Dispatcher {
	return NewDispatcher(ledger, h, h, h)
}

func makeEvent(id, eventType, object string) *models.WebhookEvent {
	event := &models.WebhookEvent{ID: id, Type: eventType}
	event.Data.Object = json.RawMessage(object)
	return event
}

func TestDispatchRouting(t *testing.T) {
	cases := []struct {
		eventType string
		wantCall  string
	}{
		{models.EventPaymentSucceeded, "payment_succeeded"},
		{models.EventPaymentFailed, "payment_failed"},
		{models.EventChargeRefunded, "charge_refunded"},
		{models.EventCheckoutSessionCompleted, "checkout_completed"},
		{models.EventAccountUpdated, "account_updated"},
		{models.EventTransferCreated, "transfer_settled"},
		{models.EventTransferPaid, "transfer_settled"},
		{models.EventTransferFailed, "transfer_failed"},
		{models.EventIdentityVerified, "identity_verified"},
		{models.EventIdentityRequiresInput, "identity_incomplete"},
		{models.EventIdentityCanceled, "identity_incomplete"},
		{models.EventSubscriptionCreated, "subscription_changed"},
		{models.EventSubscriptionUpdated, "subscription_changed"},
		{models.EventSubscriptionDeleted, "subscription_deleted"},
		{models.EventSubscriptionTrialEnding, "trial_will_end"},
	}

	for i, tc := range cases {
		t.Run(tc.eventType, func(t *testing.T) {
			handlers := &recordingHandlers{}
			d := newTestDispatcher(newFakeLedger(), handlers)

			outcome, err := d.Dispatch(context.Background(),
				makeEvent("evt_route_"+tc.eventType, tc.eventType, "{}"))
			require.NoError(t, err)
			assert.Equal(t, OutcomeProcessed, outcome)
			assert.Equal(t, []string{tc.wantCall}, handlers.calls, "case %d", i)
		})
	}
}

func TestDispatchDuplicate(t *testing.T) {
	ledger := newFakeLedger()
	handlers := &recordingHandlers{}
	d := newTestDispatcher(ledger, handlers)

	event := makeEvent("evt_dup", models.EventPaymentSucceeded, "{}")

	outcome, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)

	outcome, err = d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeDuplicate, outcome)
	assert.Len(t, handlers.calls, 1, "duplicate must not reach the handler")
}

func TestDispatchUnknownTypeIgnored(t *testing.T) {
	ledger := newFakeLedger()
	handlers := &recordingHandlers{}
	d := newTestDispatcher(ledger, handlers)

	outcome, err := d.Dispatch(context.Background(),
		makeEvent("evt_unknown", "invoice.finalized", "{}"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeIgnored, outcome)
	assert.Empty(t, handlers.calls)

	// Ignored events are not marked: a later deploy may learn to handle them.
	assert.False(t, ledger.processed["evt_unknown"])
}

func TestDispatchHandlerErrorLeavesEventUnmarked(t *testing.T) {
	ledger := newFakeLedger()
	handlers := &recordingHandlers{failAll: errors.New("db down")}
	d := newTestDispatcher(ledger, handlers)

	event := makeEvent("evt_retry", models.EventChargeRefunded, "{}")

	_, err := d.Dispatch(context.Background(), event)
	require.Error(t, err)
	assert.False(t, ledger.processed["evt_retry"], "failed event must stay eligible for redelivery")

	// Redelivery succeeds once the handler recovers.
	handlers.failAll = nil
	outcome, err := d.Dispatch(context.Background(), event)
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.True(t, ledger.processed["evt_retry"])
}

func TestDispatchMarkFailureStillProcessed(t *testing.T) {
	ledger := newFakeLedger()
	ledger.markErr = errors.New("write timeout")
	handlers := &recordingHandlers{}
	d := newTestDispatcher(ledger, handlers)

	// The handler ran; a ledger write failure is logged, not surfaced, because
	// handlers converge on redelivery.
	outcome, err := d.Dispatch(context.Background(),
		makeEvent("evt_mark", models.EventPaymentSucceeded, "{}"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeProcessed, outcome)
	assert.Len(t, handlers.calls, 1)
}

func TestDispatchMalformedPayload(t *testing.T) {
	d := newTestDispatcher(newFakeLedger(), &recordingHandlers{})

	_, err := d.Dispatch(context.Background(),
		makeEvent("evt_bad", models.EventPaymentSucceeded, `{"amount":"not-a-number"`))
	require.Error(t, err)
}
