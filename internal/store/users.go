package store

import (
	"context"
	"database/sql"
	"fmt"

	"marketplace-payments/internal/models"
)

// GetUserByID retrieves a user by ID
func (s *Store) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email; returns nil if absent
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", email)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUserBySubscriptionID retrieves the user holding a subscription; nil if none
func (s *Store) GetUserBySubscriptionID(ctx context.Context, subscriptionID string) (*models.User, error) {
	var user models.User
	err := s.db.GetContext(ctx, &user, "SELECT * FROM users WHERE subscription_id = $1", subscriptionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// SetSubscription mirrors the processor's subscription status onto a user
func (s *Store) SetSubscription(ctx context.Context, userID int64, subscriptionID, status string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET subscription_id = $1, subscription_status = $2 WHERE id = $3",
		subscriptionID, status, userID)
	return err
}

// SetSubscriptionStatusByID updates the status of whichever user holds the
// subscription; returns false if no user does
func (s *Store) SetSubscriptionStatusByID(ctx context.Context, subscriptionID, status string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET subscription_status = $1 WHERE subscription_id = $2",
		status, subscriptionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CreateNotification inserts a notification row
func (s *Store) CreateNotification(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications (user_id, type, title, message, reference_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`

	return s.db.GetContext(ctx, n, query,
		n.UserID, n.Type, n.Title, n.Message, n.ReferenceID)
}
