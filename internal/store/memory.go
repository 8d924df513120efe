package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ruralpay/ledger/internal/models"
)

// Memory is a concurrency-safe in-process Store. Write transactions are
// serialized and staged, so a failed unit of work leaves no trace.
type Memory struct {
	mu           sync.Mutex
	accounts     map[string]models.Account
	transactions map[string]models.Transaction
	reservations map[string]models.Reservation
	entries      []models.LedgerEntry
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
		reservations: make(map[string]models.Reservation),
	}
}

func (m *Memory) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memTx{
		m:            m,
		accounts:     make(map[string]models.Account),
		transactions: make(map[string]models.Transaction),
		reservations: make(map[string]models.Reservation),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	for id, a := range tx.accounts {
		m.accounts[id] = a
	}
	for id, t := range tx.transactions {
		m.transactions[id] = t
	}
	for id, r := range tx.reservations {
		m.reservations[id] = r
	}
	m.entries = append(m.entries, tx.entries...)
	return nil
}

func (m *Memory) CreateAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.accounts[a.ID]; exists {
		return fmt.Errorf("%w: accounts_pkey", ErrDuplicateKey)
	}
	for _, existing := range m.accounts {
		if existing.AccountNumber == a.AccountNumber {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, ConstraintAccountNumber)
		}
	}
	m.accounts[a.ID] = *a
	return nil
}

func (m *Memory) FindAccountByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (m *Memory) FindAccountByNumber(_ context.Context, number string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, a := range m.accounts {
		if a.AccountNumber == number {
			return &a, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindTransactionByID(_ context.Context, id string) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.transactions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &t, nil
}

func (m *Memory) FindTransactionByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	return m.findTransaction(func(t *models.Transaction) bool {
		return t.IdempotencyKey != nil && *t.IdempotencyKey == key
	})
}

func (m *Memory) FindTransactionByReference(_ context.Context, reference string) (*models.Transaction, error) {
	return m.findTransaction(func(t *models.Transaction) bool {
		return t.ReferenceNumber == reference
	})
}

func (m *Memory) findTransaction(match func(t *models.Transaction) bool) (*models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.transactions {
		if match(&t) {
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) CountPendingTransactions(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var count int64
	for _, t := range m.transactions {
		if t.Status != models.TransactionStatusPending {
			continue
		}
		if (t.FromAccountID != nil && *t.FromAccountID == accountID) ||
			(t.ToAccountID != nil && *t.ToAccountID == accountID) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) SumActiveHolds(_ context.Context, accountID string, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var total int64
	for _, r := range m.reservations {
		if r.AccountID == accountID && r.IsActiveAt(now) {
			total += r.Amount
		}
	}
	return total, nil
}

func (m *Memory) ListStatement(_ context.Context, accountID string, after *Keyset, limit int) ([]models.StatementLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []models.LedgerEntry
	for _, e := range m.entries {
		if e.AccountID != accountID {
			continue
		}
		if after != nil && !olderThan(e, *after) {
			continue
		}
		matched = append(matched, e)
	}

	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})

	if limit >= 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	lines := make([]models.StatementLine, 0, len(matched))
	for _, e := range matched {
		line := models.StatementLine{Entry: e}
		if e.TransactionID != nil {
			if t, ok := m.transactions[*e.TransactionID]; ok {
				line.ReferenceNumber = t.ReferenceNumber
				line.Type = t.Type
				line.Status = t.Status
				line.Currency = t.Currency
				line.Description = t.Description
				line.FromAccountID = t.FromAccountID
				line.ToAccountID = t.ToAccountID
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// olderThan reports whether e sorts strictly after k in (created_at DESC, id DESC).
func olderThan(e models.LedgerEntry, k Keyset) bool {
	if !e.CreatedAt.Equal(k.CreatedAt) {
		return e.CreatedAt.Before(k.CreatedAt)
	}
	return e.ID < k.ID
}

type memTx struct {
	m            *Memory
	accounts     map[string]models.Account
	transactions map[string]models.Transaction
	reservations map[string]models.Reservation
	entries      []models.LedgerEntry
}

func (t *memTx) account(id string) (models.Account, bool) {
	if a, ok := t.accounts[id]; ok {
		return a, true
	}
	a, ok := t.m.accounts[id]
	return a, ok
}

func (t *memTx) transaction(id string) (models.Transaction, bool) {
	if tr, ok := t.transactions[id]; ok {
		return tr, true
	}
	tr, ok := t.m.transactions[id]
	return tr, ok
}

func (t *memTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return t.GetAccount(ctx, id)
}

func (t *memTx) GetAccount(_ context.Context, id string) (*models.Account, error) {
	a, ok := t.account(id)
	if !ok {
		return nil, ErrNotFound
	}
	return &a, nil
}

func (t *memTx) AdjustBalance(_ context.Context, accountID string, delta int64) (*models.Account, error) {
	a, ok := t.account(accountID)
	if !ok {
		return nil, ErrNotFound
	}
	a.Balance += delta
	a.AvailableBalance += delta
	if a.AvailableBalance < 0 || a.AvailableBalance > a.Balance {
		return nil, fmt.Errorf("account %s violates balance check constraint", accountID)
	}
	a.Version++
	a.UpdatedAt = time.Now().UTC()
	t.accounts[accountID] = a
	return &a, nil
}

func (t *memTx) FindTransactionByIdempotencyKey(_ context.Context, key string) (*models.Transaction, error) {
	for _, set := range []map[string]models.Transaction{t.transactions, t.m.transactions} {
		for _, tr := range set {
			if tr.IdempotencyKey != nil && *tr.IdempotencyKey == key {
				return &tr, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (t *memTx) InsertTransaction(_ context.Context, tr *models.Transaction) error {
	if _, exists := t.transaction(tr.ID); exists {
		return fmt.Errorf("%w: transactions_pkey", ErrDuplicateKey)
	}
	check := func(existing models.Transaction) error {
		if tr.IdempotencyKey != nil && existing.IdempotencyKey != nil && *tr.IdempotencyKey == *existing.IdempotencyKey {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, ConstraintIdempotencyKey)
		}
		if existing.ReferenceNumber == tr.ReferenceNumber {
			return fmt.Errorf("%w: %s", ErrDuplicateKey, ConstraintReferenceNumber)
		}
		return nil
	}
	for _, existing := range t.m.transactions {
		if err := check(existing); err != nil {
			return err
		}
	}
	for _, existing := range t.transactions {
		if err := check(existing); err != nil {
			return err
		}
	}
	t.transactions[tr.ID] = *tr
	return nil
}

func (t *memTx) CompleteTransaction(_ context.Context, id string, completedAt time.Time) error {
	tr, ok := t.transaction(id)
	if !ok || tr.Status != models.TransactionStatusPending {
		return fmt.Errorf("transaction %s: %w", id, ErrNotFound)
	}
	tr.Status = models.TransactionStatusCompleted
	tr.CompletedAt = &completedAt
	t.transactions[id] = tr
	return nil
}

func (t *memTx) InsertReservation(_ context.Context, r *models.Reservation) error {
	if _, exists := t.m.reservations[r.ID]; exists {
		return fmt.Errorf("%w: transaction_reservations_pkey", ErrDuplicateKey)
	}
	if _, exists := t.reservations[r.ID]; exists {
		return fmt.Errorf("%w: transaction_reservations_pkey", ErrDuplicateKey)
	}
	t.reservations[r.ID] = *r
	return nil
}

func (t *memTx) UpdateReservationStatus(_ context.Context, id, status string) error {
	r, ok := t.reservations[id]
	if !ok {
		r, ok = t.m.reservations[id]
	}
	if !ok {
		return fmt.Errorf("reservation %s: %w", id, ErrNotFound)
	}
	r.Status = status
	t.reservations[id] = r
	return nil
}

func (t *memTx) InsertLedgerEntry(_ context.Context, e *models.LedgerEntry) error {
	t.entries = append(t.entries, *e)
	return nil
}

var _ Store = (*Memory)(nil)
