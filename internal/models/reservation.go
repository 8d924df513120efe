package models

import "time"

const (
	ReservationStatusActive   = "ACTIVE"
	ReservationStatusClaimed  = "CLAIMED"
	ReservationStatusExpired  = "EXPIRED"
	ReservationStatusReleased = "RELEASED"
)

// Reservation is a time-bounded hold on an account's available balance.
type Reservation struct {
	ID            string    `json:"id" db:"id"`
	TransactionID string    `json:"transactionId" db:"transaction_id"`
	AccountID     string    `json:"accountId" db:"account_id"`
	Amount        int64     `json:"amount,string" db:"amount"`
	Status        string    `json:"status" db:"status"`
	ExpiresAt     time.Time `json:"expiresAt" db:"expires_at"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// IsActiveAt reports whether the hold still earmarks funds at t.
func (r *Reservation) IsActiveAt(t time.Time) bool {
	return r.Status == ReservationStatusActive && r.ExpiresAt.After(t)
}
