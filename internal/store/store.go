// Package store persists accounts, transactions, holds and ledger entries.
//
// The Postgres implementation relies on row-level locks and unique
// constraints of the database. Memory mirrors those guarantees in-process
// and backs the service tests.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

var (
	// ErrNotFound is returned when a looked-up row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when an insert violates a unique constraint.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrLockTimeout is returned when a row lock could not be acquired in time
	// or the database aborted the transaction to break a deadlock.
	ErrLockTimeout = errors.New("lock wait timed out")
)

// Unique constraints surfaced through ErrDuplicateKey.
const (
	ConstraintAccountNumber   = "accounts_account_number_key"
	ConstraintIdempotencyKey  = "transactions_idempotency_key_key"
	ConstraintReferenceNumber = "transactions_reference_number_key"
)

// IsConstraint reports whether err is a unique violation of the named constraint.
func IsConstraint(err error, constraint string) bool {
	return errors.Is(err, ErrDuplicateKey) && strings.Contains(err.Error(), constraint)
}

// Keyset is a position in the (created_at DESC, id DESC) ledger order.
type Keyset struct {
	CreatedAt time.Time
	ID        string
}

// Tx is the set of writes available inside one durable unit of work.
type Tx interface {
	// LockAccount reads the account and holds an exclusive row lock until the
	// unit of work ends.
	LockAccount(ctx context.Context, id string) (*models.Account, error)
	// GetAccount reads the account without taking a lock.
	GetAccount(ctx context.Context, id string) (*models.Account, error)
	// AdjustBalance adds delta to balance and available balance and returns
	// the row as it is after the update.
	AdjustBalance(ctx context.Context, accountID string, delta int64) (*models.Account, error)
	// FindTransactionByIdempotencyKey sees every transaction committed
	// before the call, including ones committed while a lock was awaited.
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	InsertTransaction(ctx context.Context, t *models.Transaction) error
	CompleteTransaction(ctx context.Context, id string, completedAt time.Time) error
	InsertReservation(ctx context.Context, r *models.Reservation) error
	UpdateReservationStatus(ctx context.Context, id, status string) error
	InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error
}

// Store is the persistence boundary used by the services.
type Store interface {
	// WithTx runs fn inside one transaction. Any error returned by fn rolls
	// back every write made through the Tx.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	CreateAccount(ctx context.Context, a *models.Account) error
	FindAccountByID(ctx context.Context, id string) (*models.Account, error)
	FindAccountByNumber(ctx context.Context, number string) (*models.Account, error)

	FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error)
	FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error)
	CountPendingTransactions(ctx context.Context, accountID string) (int64, error)

	// SumActiveHolds totals ACTIVE reservations on the account that have not
	// expired at now.
	SumActiveHolds(ctx context.Context, accountID string, now time.Time) (int64, error)

	// ListStatement returns up to limit ledger lines for the account, newest
	// first, strictly older than after when after is non-nil.
	ListStatement(ctx context.Context, accountID string, after *Keyset, limit int) ([]models.StatementLine, error)
}
