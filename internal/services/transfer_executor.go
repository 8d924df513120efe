package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// TransferCommand is one fully resolved money movement handed to the executor.
type TransferCommand struct {
	SenderID        string
	ReceiverID      string
	Amount          int64
	Currency        string
	Type            string
	ReferenceNumber string
	IdempotencyKey  *string
	Description     string
	Metadata        models.Metadata
}

// TransferResult is everything the executor committed.
type TransferResult struct {
	Transaction models.Transaction
	Reservation models.Reservation
	Debit       models.LedgerEntry
	Credit      models.LedgerEntry
	Sender      models.Account
	Receiver    models.Account
}

// DepositCommand credits a single account from outside the ledger.
type DepositCommand struct {
	AccountID       string
	Amount          int64
	Currency        string
	ReferenceNumber string
	IdempotencyKey  *string
	Description     string
	Metadata        models.Metadata
}

// DepositResult is everything a deposit committed.
type DepositResult struct {
	Transaction models.Transaction
	Credit      models.LedgerEntry
	Account     models.Account
}

// TransferExecutor applies transfers and deposits as single units of work.
type TransferExecutor struct {
	store        store.Store
	reservations *ReservationService
	ledger       *DoubleLedgerService
	logger       *zap.Logger
	now          func() time.Time
}

func NewTransferExecutor(st store.Store, reservations *ReservationService, ledger *DoubleLedgerService, logger *zap.Logger) *TransferExecutor {
	return &TransferExecutor{
		store:        st,
		reservations: reservations,
		ledger:       ledger,
		logger:       logger.Named("executor"),
		now:          time.Now,
	}
}

// Execute moves cmd.Amount from sender to receiver. Only the sender row is
// locked; the receiver is credited with an atomic increment.
//
// Returned errors wrap ErrInsufficientFunds, ErrReceiverNotFound,
// ErrAccountNotFound or ErrTransferInProgress for the domain outcomes, and
// ErrTransferFailed for everything else. No write survives a failure.
func (e *TransferExecutor) Execute(ctx context.Context, cmd TransferCommand) (*TransferResult, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if cmd.Type == "" {
		cmd.Type = models.TransactionTypeTransfer
	}

	var result TransferResult
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		sender, err := tx.LockAccount(ctx, cmd.SenderID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("sender %s: %w", cmd.SenderID, ErrAccountNotFound)
			}
			return fmt.Errorf("lock sender: %w", err)
		}

		if err := ensureKeyUnused(ctx, tx, cmd.IdempotencyKey); err != nil {
			return err
		}

		if sender.AvailableBalance < cmd.Amount {
			return fmt.Errorf("%w: available %d, requested %d", ErrInsufficientFunds, sender.AvailableBalance, cmd.Amount)
		}

		if _, err := tx.GetAccount(ctx, cmd.ReceiverID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("receiver %s: %w", cmd.ReceiverID, ErrReceiverNotFound)
			}
			return fmt.Errorf("read receiver: %w", err)
		}

		now := e.now().UTC()
		transaction := models.Transaction{
			ID:              uuid.NewString(),
			IdempotencyKey:  cmd.IdempotencyKey,
			ReferenceNumber: cmd.ReferenceNumber,
			Type:            cmd.Type,
			Status:          models.TransactionStatusPending,
			Amount:          cmd.Amount,
			Currency:        cmd.Currency,
			FromAccountID:   &cmd.SenderID,
			ToAccountID:     &cmd.ReceiverID,
			Description:     cmd.Description,
			Metadata:        cmd.Metadata,
			CreatedAt:       now,
		}
		if err := tx.InsertTransaction(ctx, &transaction); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		hold, err := e.reservations.Hold(ctx, tx, transaction.ID, sender.ID, cmd.Amount, now)
		if err != nil {
			return err
		}

		debited, err := tx.AdjustBalance(ctx, sender.ID, -cmd.Amount)
		if err != nil {
			return fmt.Errorf("debit sender: %w", err)
		}
		credited, err := tx.AdjustBalance(ctx, cmd.ReceiverID, cmd.Amount)
		if err != nil {
			return fmt.Errorf("credit receiver: %w", err)
		}

		if err := e.reservations.Claim(ctx, tx, hold); err != nil {
			return err
		}

		debit, credit, err := e.ledger.PostTransfer(ctx, tx, transaction.ID, debited, credited, cmd.Amount, now)
		if err != nil {
			return err
		}

		if err := tx.CompleteTransaction(ctx, transaction.ID, now); err != nil {
			return fmt.Errorf("complete transaction: %w", err)
		}
		transaction.Status = models.TransactionStatusCompleted
		transaction.CompletedAt = &now

		result = TransferResult{
			Transaction: transaction,
			Reservation: *hold,
			Debit:       *debit,
			Credit:      *credit,
			Sender:      *debited,
			Receiver:    *credited,
		}
		return nil
	})
	if err != nil {
		return nil, e.classify(err, cmd.ReferenceNumber)
	}

	e.logger.Debug("transfer committed",
		zap.String("transaction_id", result.Transaction.ID),
		zap.String("reference", result.Transaction.ReferenceNumber),
		zap.Int64("amount", cmd.Amount),
	)
	return &result, nil
}

// Deposit credits cmd.Amount to one account and writes a single CREDIT entry.
func (e *TransferExecutor) Deposit(ctx context.Context, cmd DepositCommand) (*DepositResult, error) {
	if cmd.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var result DepositResult
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		account, err := tx.LockAccount(ctx, cmd.AccountID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("account %s: %w", cmd.AccountID, ErrAccountNotFound)
			}
			return fmt.Errorf("lock account: %w", err)
		}
		if err := ensureKeyUnused(ctx, tx, cmd.IdempotencyKey); err != nil {
			return err
		}
		if account.Currency != cmd.Currency {
			return fmt.Errorf("%w: account is %s, deposit is %s", ErrCurrencyMismatch, account.Currency, cmd.Currency)
		}

		now := e.now().UTC()
		transaction := models.Transaction{
			ID:              uuid.NewString(),
			IdempotencyKey:  cmd.IdempotencyKey,
			ReferenceNumber: cmd.ReferenceNumber,
			Type:            models.TransactionTypeDeposit,
			Status:          models.TransactionStatusPending,
			Amount:          cmd.Amount,
			Currency:        cmd.Currency,
			ToAccountID:     &cmd.AccountID,
			Description:     cmd.Description,
			Metadata:        cmd.Metadata,
			CreatedAt:       now,
		}
		if err := tx.InsertTransaction(ctx, &transaction); err != nil {
			return fmt.Errorf("insert transaction: %w", err)
		}

		credited, err := tx.AdjustBalance(ctx, account.ID, cmd.Amount)
		if err != nil {
			return fmt.Errorf("credit account: %w", err)
		}

		credit, err := e.ledger.PostCredit(ctx, tx, transaction.ID, credited, cmd.Amount, now)
		if err != nil {
			return err
		}

		if err := tx.CompleteTransaction(ctx, transaction.ID, now); err != nil {
			return fmt.Errorf("complete transaction: %w", err)
		}
		transaction.Status = models.TransactionStatusCompleted
		transaction.CompletedAt = &now

		result = DepositResult{Transaction: transaction, Credit: *credit, Account: *credited}
		return nil
	})
	if err != nil {
		return nil, e.classify(err, cmd.ReferenceNumber)
	}
	return &result, nil
}

// ensureKeyUnused re-reads the idempotency key once the account lock is
// held. An attempt that committed while this one waited on the lock makes
// this one a conflict, decided before any funds check.
func ensureKeyUnused(ctx context.Context, tx store.Tx, key *string) error {
	if key == nil {
		return nil
	}
	prior, err := tx.FindTransactionByIdempotencyKey(ctx, *key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("recheck idempotency key: %w", err)
	}
	return fmt.Errorf("%w: key belongs to transaction %s", ErrTransferInProgress, prior.ID)
}

// errReferenceTaken is returned when the generated reference number already
// exists. The orchestrator retries with a fresh one.
var errReferenceTaken = errors.New("reference number already in use")

func (e *TransferExecutor) classify(err error, reference string) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrTransferInProgress):
		return err
	case store.IsConstraint(err, store.ConstraintIdempotencyKey):
		return fmt.Errorf("%w: %v", ErrTransferInProgress, err)
	case store.IsConstraint(err, store.ConstraintReferenceNumber):
		return fmt.Errorf("%w: %s", errReferenceTaken, reference)
	default:
		e.logger.Warn("transfer aborted", zap.String("reference", reference), zap.Error(err))
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
}
