package models

import (
	"time"
)

const (
	TransactionTypeTransfer   = "TRANSFER"
	TransactionTypeDeposit    = "DEPOSIT"
	TransactionTypeWithdrawal = "WITHDRAWAL"
)

const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
)

// Transaction is the header row of a money movement.
type Transaction struct {
	ID              string     `json:"id" db:"id"`
	IdempotencyKey  *string    `json:"idempotencyKey,omitempty" db:"idempotency_key"`
	ReferenceNumber string     `json:"referenceNumber" db:"reference_number"`
	Type            string     `json:"type" db:"type"`
	Status          string     `json:"status" db:"status"`
	Amount          int64      `json:"amount,string" db:"amount"`
	Currency        string     `json:"currency" db:"currency"`
	FromAccountID   *string    `json:"fromAccountId,omitempty" db:"from_account_id"`
	ToAccountID     *string    `json:"toAccountId,omitempty" db:"to_account_id"`
	Description     string     `json:"description,omitempty" db:"description"`
	Metadata        Metadata   `json:"metadata,omitempty" db:"metadata"`
	CreatedAt       time.Time  `json:"createdAt" db:"created_at"`
	CompletedAt     *time.Time `json:"completedAt,omitempty" db:"completed_at"`
}
