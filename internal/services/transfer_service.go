package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// TransferRequest is a caller's request to move funds between two accounts.
type TransferRequest struct {
	FromAccountID  string
	ToAccountID    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Description    string
	Metadata       models.Metadata
}

// DepositRequest is a caller's request to fund one account.
type DepositRequest struct {
	AccountID      string
	Amount         int64
	Currency       string
	IdempotencyKey string
	Description    string
	Metadata       models.Metadata
}

// TransferService is the public entry point for money movement.
type TransferService struct {
	store    store.Store
	executor *TransferExecutor
	guard    *IdempotencyGuard
	ids      *IdentifierGenerator
	audit    AuditLogger
	logger   *zap.Logger
}

func NewTransferService(st store.Store, executor *TransferExecutor, guard *IdempotencyGuard, ids *IdentifierGenerator, audit AuditLogger, logger *zap.Logger) *TransferService {
	return &TransferService{
		store:    st,
		executor: executor,
		guard:    guard,
		ids:      ids,
		audit:    audit,
		logger:   logger.Named("transfers"),
	}
}

// Transfer validates the request, deduplicates it by idempotency key and
// executes it. A replay with a completed key returns the original outcome.
func (s *TransferService) Transfer(ctx context.Context, req TransferRequest) (*TransferOutcome, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	req.Currency = strings.ToUpper(req.Currency)
	fp := fingerprintOf(models.TransactionTypeTransfer, &req.FromAccountID, &req.ToAccountID, req.Amount, req.Currency)

	if req.IdempotencyKey != "" {
		prior, err := s.guard.Check(ctx, req.IdempotencyKey, fp)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.audit.LogReplay(prior.TransactionID, req.IdempotencyKey)
			return prior, nil
		}
	}

	sender, err := s.findAccount(ctx, req.FromAccountID)
	if err != nil {
		return nil, err
	}
	receiver, err := s.findAccount(ctx, req.ToAccountID)
	if err != nil {
		return nil, err
	}
	if sender.Currency != req.Currency || receiver.Currency != req.Currency {
		return nil, fmt.Errorf("%w: sender %s, receiver %s, transfer %s",
			ErrCurrencyMismatch, sender.Currency, receiver.Currency, req.Currency)
	}

	cmd := TransferCommand{
		SenderID:       req.FromAccountID,
		ReceiverID:     req.ToAccountID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Type:           models.TransactionTypeTransfer,
		IdempotencyKey: optionalKey(req.IdempotencyKey),
		Description:    req.Description,
		Metadata:       req.Metadata,
	}

	var result *TransferResult
	err = retryUnique(ctx, s.ids.Reference, func(reference string) (bool, error) {
		cmd.ReferenceNumber = reference
		var execErr error
		result, execErr = s.executor.Execute(ctx, cmd)
		if errors.Is(execErr, errReferenceTaken) {
			s.logger.Info("reference collision, regenerating", zap.String("reference", reference))
			return true, nil
		}
		return false, execErr
	})
	if err != nil {
		s.audit.LogError(cmd.ReferenceNumber, req.FromAccountID, err)
		return nil, s.mapError(err)
	}

	outcome := TransferOutcome{
		TransactionID:   result.Transaction.ID,
		ReferenceNumber: result.Transaction.ReferenceNumber,
		Status:          result.Transaction.Status,
	}
	if req.IdempotencyKey != "" {
		s.guard.Remember(ctx, req.IdempotencyKey, fp, outcome)
	}
	s.audit.LogTransfer(outcome.TransactionID, req.FromAccountID, req.ToAccountID, req.Amount, outcome.Status)
	return &outcome, nil
}

// Deposit funds one account under the same idempotency rules as Transfer.
func (s *TransferService) Deposit(ctx context.Context, req DepositRequest) (*TransferOutcome, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	req.Currency = strings.ToUpper(req.Currency)
	fp := fingerprintOf(models.TransactionTypeDeposit, nil, &req.AccountID, req.Amount, req.Currency)

	if req.IdempotencyKey != "" {
		prior, err := s.guard.Check(ctx, req.IdempotencyKey, fp)
		if err != nil {
			return nil, err
		}
		if prior != nil {
			s.audit.LogReplay(prior.TransactionID, req.IdempotencyKey)
			return prior, nil
		}
	}

	cmd := DepositCommand{
		AccountID:      req.AccountID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: optionalKey(req.IdempotencyKey),
		Description:    req.Description,
		Metadata:       req.Metadata,
	}

	var result *DepositResult
	err := retryUnique(ctx, s.ids.Reference, func(reference string) (bool, error) {
		cmd.ReferenceNumber = reference
		var execErr error
		result, execErr = s.executor.Deposit(ctx, cmd)
		if errors.Is(execErr, errReferenceTaken) {
			return true, nil
		}
		return false, execErr
	})
	if err != nil {
		s.audit.LogError(cmd.ReferenceNumber, req.AccountID, err)
		return nil, s.mapError(err)
	}

	outcome := TransferOutcome{
		TransactionID:   result.Transaction.ID,
		ReferenceNumber: result.Transaction.ReferenceNumber,
		Status:          result.Transaction.Status,
	}
	if req.IdempotencyKey != "" {
		s.guard.Remember(ctx, req.IdempotencyKey, fp, outcome)
	}
	s.audit.LogDeposit(outcome.TransactionID, req.AccountID, req.Amount, outcome.Status)
	return &outcome, nil
}

// GetTransaction looks a transaction up by id.
func (s *TransferService) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	t, err := s.store.FindTransactionByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return t, err
}

// GetByReference looks a transaction up by its reference number.
func (s *TransferService) GetByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	t, err := s.store.FindTransactionByReference(ctx, reference)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, reference)
	}
	return t, err
}

func (s *TransferService) findAccount(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.store.FindAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
	return a, nil
}

// mapError keeps domain outcomes and folds everything else into
// ErrTransferFailed.
func (s *TransferService) mapError(err error) error {
	switch {
	case errors.Is(err, ErrInsufficientFunds),
		errors.Is(err, ErrReceiverNotFound),
		errors.Is(err, ErrAccountNotFound),
		errors.Is(err, ErrCurrencyMismatch),
		errors.Is(err, ErrTransferInProgress),
		errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrTransferFailed):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}
}

func optionalKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}
