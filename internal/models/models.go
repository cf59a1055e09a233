package models

import (
	"database/sql"
	"time"
)

// Transaction represents a money movement mirrored from the payment processor
type Transaction struct {
	ID               int64          `db:"id" json:"id"`
	UserEmail        string         `db:"user_email" json:"user_email"`
	TransactionType  string         `db:"transaction_type" json:"transaction_type"`
	Amount           int64          `db:"amount" json:"amount"` // cents
	Status           string         `db:"status" json:"status"`
	PaymentReference string         `db:"payment_reference" json:"payment_reference,omitempty"`
	ReferenceID      sql.NullInt64  `db:"reference_id" json:"reference_id,omitempty"`
	RefundAmount     int64          `db:"refund_amount" json:"refund_amount,omitempty"` // cumulative cents refunded
	RefundReason     sql.NullString `db:"refund_reason" json:"refund_reason,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Booking represents a marketplace booking linked to a charge
type Booking struct {
	ID            int64        `db:"id" json:"id"`
	ListingID     int64        `db:"listing_id" json:"listing_id"`
	OwnerID       int64        `db:"owner_id" json:"owner_id"`
	GuestID       int64        `db:"guest_id" json:"guest_id"`
	PaymentStatus string       `db:"payment_status" json:"payment_status"`
	Status        string       `db:"status" json:"status"`
	RefundAmount  int64        `db:"refund_amount" json:"refund_amount,omitempty"`
	RefundDate    sql.NullTime `db:"refund_date" json:"refund_date,omitempty"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time    `db:"updated_at" json:"updated_at"`
}

// Payout represents funds owed to a host for a completed booking
type Payout struct {
	ID             int64          `db:"id" json:"id"`
	HostID         int64          `db:"host_id" json:"host_id"`
	BookingID      int64          `db:"booking_id" json:"booking_id"`
	NetAmount      int64          `db:"net_amount" json:"net_amount"` // cents
	Status         string         `db:"status" json:"status"`
	TransactionRef sql.NullString `db:"transaction_ref" json:"transaction_ref,omitempty"`
	PayoutDate     sql.NullTime   `db:"payout_date" json:"payout_date,omitempty"`
	CreatedAt      time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at"`
}

// PayoutMethod represents a host's destination for transfers
type PayoutMethod struct {
	ID                int64     `db:"id" json:"id"`
	HostID            int64     `db:"host_id" json:"host_id"`
	MethodType        string    `db:"method_type" json:"method_type"`
	ExternalAccountID string    `db:"external_account_id" json:"external_account_id"`
	Status            string    `db:"status" json:"status"`
	IsDefault         bool      `db:"is_default" json:"is_default"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}

// User carries the identity and subscription fields the reconciliation core touches
type User struct {
	ID                 int64          `db:"id" json:"id"`
	Email              string         `db:"email" json:"email"`
	Role               string         `db:"role" json:"role"`
	SubscriptionStatus string         `db:"subscription_status" json:"subscription_status"`
	SubscriptionID     sql.NullString `db:"subscription_id" json:"subscription_id,omitempty"`
	IdentitySessionID  sql.NullString `db:"identity_session_id" json:"identity_session_id,omitempty"`
	CreatedAt          time.Time      `db:"created_at" json:"created_at"`
}

// Notification is write-only; the core never reads it back
type Notification struct {
	ID          int64     `db:"id" json:"id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	Type        string    `db:"type" json:"type"`
	Title       string    `db:"title" json:"title"`
	Message     string    `db:"message" json:"message"`
	ReferenceID string    `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Transaction types
const (
	TransactionTypeCharge = "charge"
	TransactionTypeRefund = "refund"
)

// Transaction statuses; status only moves forward
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
)

// Booking statuses
const (
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"

	BookingPaymentPending  = "pending"
	BookingPaymentPaid     = "paid"
	BookingPaymentRefunded = "refunded"
)

// Payout statuses; completed and failed are terminal
const (
	PayoutStatusPending   = "pending"
	PayoutStatusCompleted = "completed"
	PayoutStatusFailed    = "failed"
)

// Payout method statuses
const (
	PayoutMethodPendingVerification = "pending_verification"
	PayoutMethodVerified            = "verified"
	PayoutMethodRequiresInput       = "requires_input"
)

// PayoutMethodTypeStripe is the only method type transfers can target
const PayoutMethodTypeStripe = "stripe"

// Subscription statuses mirrored from the processor
const (
	SubscriptionStatusNone     = "none"
	SubscriptionStatusTrialing = "trialing"
	SubscriptionStatusActive   = "active"
	SubscriptionStatusPastDue  = "past_due"
	SubscriptionStatusCanceled = "canceled"
)

// User roles
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// ProcessedEvent for webhook idempotency
type ProcessedEvent struct {
	EventID     string    `db:"event_id"`
	EventType   string    `db:"event_type"`
	ProcessedAt time.Time `db:"processed_at"`
}
