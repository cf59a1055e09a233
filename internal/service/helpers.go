package service

import (
	"database/sql"
	"fmt"
	"strconv"
)

// Identity is the verified caller resolved by the API boundary
type Identity struct {
	UserID int64
	Email  string
	Role   string
}

// IsAdmin reports whether the caller holds the admin role
func (i Identity) IsAdmin() bool {
	return i.Role == "admin"
}

func bookingIDFromMetadata(metadata map[string]string) int64 {
	if metadata == nil {
		return 0
	}
	id, err := strconv.ParseInt(metadata["booking_id"], 10, 64)
	if err != nil {
		return 0
	}
	return id
}

func nullInt64(v int64) sql.NullInt64 {
	if v == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: v, Valid: true}
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("$%d.%02d", cents/100, cents%100)
}
