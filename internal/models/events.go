package models

import "encoding/json"

// Webhook event types the dispatcher routes on
const (
	EventPaymentSucceeded         = "payment_intent.succeeded"
	EventPaymentFailed            = "payment_intent.payment_failed"
	EventChargeRefunded           = "charge.refunded"
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventAccountUpdated           = "account.updated"
	EventTransferCreated          = "transfer.created"
	EventTransferPaid             = "transfer.paid"
	EventTransferFailed           = "transfer.failed"
	EventIdentityVerified         = "identity.verification_session.verified"
	EventIdentityRequiresInput    = "identity.verification_session.requires_input"
	EventIdentityCanceled         = "identity.verification_session.canceled"
	EventSubscriptionCreated      = "customer.subscription.created"
	EventSubscriptionUpdated      = "customer.subscription.updated"
	EventSubscriptionDeleted      = "customer.subscription.deleted"
	EventSubscriptionTrialEnding  = "customer.subscription.trial_will_end"
)

// WebhookEvent is the signed envelope delivered by the processor.
// Data.Object stays raw until the dispatcher knows the concrete type.
type WebhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// PaymentIntentData is the payload of payment_intent.* events
type PaymentIntentData struct {
	ID             string            `json:"id"`
	Amount         int64             `json:"amount"` // cents
	Currency       string            `json:"currency"`
	Status         string            `json:"status"`
	ReceiptEmail   string            `json:"receipt_email"`
	Metadata       map[string]string `json:"metadata"`
	LatestCharge   string            `json:"latest_charge"`
	FailureMessage string            `json:"failure_message,omitempty"`
}

// ChargeData is the payload of charge.* events
type ChargeData struct {
	ID             string            `json:"id"`
	PaymentIntent  string            `json:"payment_intent"`
	Amount         int64             `json:"amount"`
	AmountRefunded int64             `json:"amount_refunded"` // cumulative cents
	Refunded       bool              `json:"refunded"`        // true once fully refunded
	Metadata       map[string]string `json:"metadata"`
}

// CheckoutSessionData is the payload of checkout.session.completed
type CheckoutSessionData struct {
	ID              string            `json:"id"`
	Mode            string            `json:"mode"` // "payment" or "subscription"
	Customer        string            `json:"customer"`
	CustomerEmail   string            `json:"customer_email"`
	PaymentIntent   string            `json:"payment_intent"`
	Subscription    string            `json:"subscription"`
	AmountTotal     int64             `json:"amount_total"`
	ClientReference string            `json:"client_reference_id"`
	Metadata        map[string]string `json:"metadata"`
}

// AccountData is the payload of account.updated for connected accounts
type AccountData struct {
	ID             string            `json:"id"`
	PayoutsEnabled bool              `json:"payouts_enabled"`
	ChargesEnabled bool              `json:"charges_enabled"`
	Metadata       map[string]string `json:"metadata"`
}

// TransferData is the payload of transfer.* events
type TransferData struct {
	ID            string            `json:"id"`
	Amount        int64             `json:"amount"`
	Destination   string            `json:"destination"`
	TransferGroup string            `json:"transfer_group"`
	Metadata      map[string]string `json:"metadata"`
}

// IdentitySessionData is the payload of identity.verification_session.* events
type IdentitySessionData struct {
	ID       string            `json:"id"`
	Status   string            `json:"status"`
	Metadata map[string]string `json:"metadata"`
	LastError struct {
		Reason string `json:"reason"`
	} `json:"last_error"`
}

// SubscriptionData is the payload of customer.subscription.* events
type SubscriptionData struct {
	ID               string            `json:"id"`
	Customer         string            `json:"customer"`
	Status           string            `json:"status"`
	CurrentPeriodEnd int64             `json:"current_period_end"`
	TrialEnd         int64             `json:"trial_end"`
	Metadata         map[string]string `json:"metadata"`
}

// Notification event types pushed to the delivery queue
const (
	NotificationPaymentReceived = "payment_received"
	NotificationRefundIssued    = "refund_issued"
	NotificationPayoutSent      = "payout_sent"
	NotificationPayoutFailed    = "payout_failed"
	NotificationTrialEnding     = "trial_ending"
)

// NotificationEvent is published to Kafka for async delivery
type NotificationEvent struct {
	EventID     string `json:"event_id"`
	UserID      int64  `json:"user_id"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Message     string `json:"message"`
	ReferenceID string `json:"reference_id,omitempty"`
}
