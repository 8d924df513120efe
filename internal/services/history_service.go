package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 100
)

// HistoryItem is one statement line. Money is rendered as exact decimal
// strings of minor units; debits carry a leading minus.
type HistoryItem struct {
	ID                    string    `json:"id"`
	TransactionID         *string   `json:"transactionId,omitempty"`
	ReferenceNumber       string    `json:"referenceNumber,omitempty"`
	Type                  string    `json:"type,omitempty"`
	Status                string    `json:"status,omitempty"`
	EntryType             string    `json:"entryType"`
	Amount                string    `json:"amount"`
	BalanceAfter          string    `json:"balanceAfter"`
	Currency              string    `json:"currency,omitempty"`
	Description           string    `json:"description,omitempty"`
	CounterpartyAccountID *string   `json:"counterpartyAccountId,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
}

// HistorySummary is a point-in-time view of the account next to the page.
type HistorySummary struct {
	CurrentBalance      string `json:"currentBalance"`
	AvailableBalance    string `json:"availableBalance"`
	PendingTransactions int64  `json:"pendingTransactions"`
	TotalHolds          string `json:"totalHolds"`
}

// HistoryPage is one page of an account statement.
type HistoryPage struct {
	Items      []HistoryItem
	NextCursor string
	HasMore    bool
	Summary    HistorySummary
}

// HistoryService reconstructs per-account statements.
type HistoryService struct {
	store        store.Store
	ledger       *DoubleLedgerService
	reservations *ReservationService
}

func NewHistoryService(st store.Store, ledger *DoubleLedgerService, reservations *ReservationService) *HistoryService {
	return &HistoryService{store: st, ledger: ledger, reservations: reservations}
}

// GetHistory returns up to limit entries strictly older than cursor, plus a
// summary computed concurrently with the page read.
func (s *HistoryService) GetHistory(ctx context.Context, accountID string, limit int, cursor string) (*HistoryPage, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	account, err := s.store.FindAccountByID(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, accountID)
	}
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", accountID, err)
	}

	after, err := DecodeCursor(cursor)
	if err != nil {
		return nil, err
	}

	var (
		lines   []models.StatementLine
		pending int64
		holds   int64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		lines, err = s.ledger.Statement(gctx, accountID, after, limit+1)
		return err
	})
	g.Go(func() error {
		var err error
		pending, err = s.store.CountPendingTransactions(gctx, accountID)
		if err != nil {
			return fmt.Errorf("count pending for %s: %w", accountID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		holds, err = s.reservations.TotalActiveHolds(gctx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	page := &HistoryPage{
		HasMore: len(lines) > limit,
		Summary: HistorySummary{
			CurrentBalance:      strconv.FormatInt(account.Balance, 10),
			AvailableBalance:    strconv.FormatInt(account.AvailableBalance, 10),
			PendingTransactions: pending,
			TotalHolds:          strconv.FormatInt(holds, 10),
		},
	}
	if page.HasMore {
		lines = lines[:limit]
		last := lines[len(lines)-1].Entry
		page.NextCursor = EncodeCursor(store.Keyset{CreatedAt: last.CreatedAt, ID: last.ID})
	}

	page.Items = make([]HistoryItem, 0, len(lines))
	for _, line := range lines {
		page.Items = append(page.Items, toHistoryItem(line))
	}
	return page, nil
}

func toHistoryItem(line models.StatementLine) HistoryItem {
	item := HistoryItem{
		ID:              line.Entry.ID,
		TransactionID:   line.Entry.TransactionID,
		ReferenceNumber: line.ReferenceNumber,
		Type:            line.Type,
		Status:          line.Status,
		EntryType:       line.Entry.EntryType,
		Amount:          line.Entry.SignedAmount(),
		BalanceAfter:    strconv.FormatInt(line.Entry.BalanceAfter, 10),
		Currency:        line.Currency,
		Description:     line.Description,
		CreatedAt:       line.Entry.CreatedAt,
	}
	if line.Entry.EntryType == models.EntryTypeDebit {
		item.CounterpartyAccountID = line.ToAccountID
	} else {
		item.CounterpartyAccountID = line.FromAccountID
	}
	return item
}
