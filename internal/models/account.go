package models

import (
	"time"
)

// Account holds the balances moved by the transfer core. Amounts are in minor units.
type Account struct {
	ID               string    `json:"id" db:"id"`
	CustomerID       *string   `json:"customerId,omitempty" db:"customer_id"`
	AccountNumber    string    `json:"accountNumber" db:"account_number"`
	Balance          int64     `json:"balance,string" db:"balance"`
	AvailableBalance int64     `json:"availableBalance,string" db:"available_balance"`
	Currency         string    `json:"currency" db:"currency"`
	Version          int       `json:"version" db:"version"` // kept for external consumers, not used for locking
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt        time.Time `json:"updatedAt" db:"updated_at"`
}

// HeldAmount is the part of the balance earmarked by holds.
func (a *Account) HeldAmount() int64 {
	return a.Balance - a.AvailableBalance
}
