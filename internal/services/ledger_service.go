package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// DoubleLedgerService writes and reads the append-only ledger. Entries are
// only written through a store.Tx so they commit with the balance changes
// they describe.
type DoubleLedgerService struct {
	store store.Store
}

func NewDoubleLedgerService(st store.Store) *DoubleLedgerService {
	return &DoubleLedgerService{store: st}
}

// PostTransfer writes the DEBIT/CREDIT pair for one transfer. sender and
// receiver are the account rows as they are after the balance update.
func (s *DoubleLedgerService) PostTransfer(ctx context.Context, tx store.Tx, transactionID string, sender, receiver *models.Account, amount int64, at time.Time) (debit, credit *models.LedgerEntry, err error) {
	debit, err = s.createLedgerEntry(ctx, tx, transactionID, sender, models.EntryTypeDebit, amount, at)
	if err != nil {
		return nil, nil, err
	}
	credit, err = s.createLedgerEntry(ctx, tx, transactionID, receiver, models.EntryTypeCredit, amount, at)
	if err != nil {
		return nil, nil, err
	}
	return debit, credit, nil
}

// PostCredit writes a single CREDIT entry, used for deposits.
func (s *DoubleLedgerService) PostCredit(ctx context.Context, tx store.Tx, transactionID string, account *models.Account, amount int64, at time.Time) (*models.LedgerEntry, error) {
	return s.createLedgerEntry(ctx, tx, transactionID, account, models.EntryTypeCredit, amount, at)
}

// Statement reads up to limit ledger lines for the account, newest first.
func (s *DoubleLedgerService) Statement(ctx context.Context, accountID string, after *store.Keyset, limit int) ([]models.StatementLine, error) {
	lines, err := s.store.ListStatement(ctx, accountID, after, limit)
	if err != nil {
		return nil, fmt.Errorf("list statement for %s: %w", accountID, err)
	}
	return lines, nil
}

func (s *DoubleLedgerService) createLedgerEntry(ctx context.Context, tx store.Tx, transactionID string, account *models.Account, entryType string, amount int64, at time.Time) (*models.LedgerEntry, error) {
	txID := transactionID
	entry := &models.LedgerEntry{
		ID:            uuid.NewString(),
		TransactionID: &txID,
		AccountID:     account.ID,
		EntryType:     entryType,
		Amount:        amount,
		BalanceAfter:  account.Balance,
		CreatedAt:     at,
	}
	if err := tx.InsertLedgerEntry(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert %s entry for %s: %w", entryType, account.ID, err)
	}
	return entry, nil
}
