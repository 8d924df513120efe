package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

type MockAuditLogger struct {
	mock.Mock
}

func (m *MockAuditLogger) LogTransfer(txID, fromAccount, toAccount string, amount int64, status string) {
	m.Called(txID, fromAccount, toAccount, amount, status)
}

func (m *MockAuditLogger) LogDeposit(txID, accountID string, amount int64, status string) {
	m.Called(txID, accountID, amount, status)
}

func (m *MockAuditLogger) LogReplay(txID, idempotencyKey string) {
	m.Called(txID, idempotencyKey)
}

func (m *MockAuditLogger) LogError(referenceNumber, accountID string, err error) {
	m.Called(referenceNumber, accountID, err)
}

// permissive accepts every audit call; tests assert on the recorded calls.
func (m *MockAuditLogger) permissive() *MockAuditLogger {
	m.On("LogTransfer", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogDeposit", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Maybe()
	m.On("LogReplay", mock.Anything, mock.Anything).Maybe()
	m.On("LogError", mock.Anything, mock.Anything, mock.Anything).Maybe()
	return m
}

type harness struct {
	store        *store.Memory
	ids          *IdentifierGenerator
	reservations *ReservationService
	ledger       *DoubleLedgerService
	executor     *TransferExecutor
	guard        *IdempotencyGuard
	transfers    *TransferService
	accounts     *AccountService
	history      *HistoryService
	audit        *MockAuditLogger
}

func newHarness(t *testing.T, cache *redis.Client) *harness {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemory()
	h := &harness{store: st, audit: (&MockAuditLogger{}).permissive()}
	h.ids = NewIdentifierGenerator("TXN")
	h.reservations = NewReservationService(st, DefaultReservationTTL)
	h.ledger = NewDoubleLedgerService(st)
	h.executor = NewTransferExecutor(st, h.reservations, h.ledger, logger)
	clock := tickingClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	h.executor.now = clock
	h.reservations.now = clock
	h.guard = NewIdempotencyGuard(st, cache, time.Hour, logger)
	h.transfers = NewTransferService(st, h.executor, h.guard, h.ids, h.audit, logger)
	h.accounts = NewAccountService(st, h.ids, logger)
	h.history = NewHistoryService(st, h.ledger, h.reservations)
	return h
}

// openAccount creates an NGN account funded by a deposit of balance.
func (h *harness) openAccount(t *testing.T, balance int64) *models.Account {
	t.Helper()
	ctx := context.Background()
	a, err := h.accounts.Create(ctx, CreateAccountRequest{Currency: "NGN"})
	require.NoError(t, err)
	if balance > 0 {
		_, err := h.transfers.Deposit(ctx, DepositRequest{AccountID: a.ID, Amount: balance, Currency: "NGN"})
		require.NoError(t, err)
	}
	a, err = h.accounts.FindByID(ctx, a.ID)
	require.NoError(t, err)
	return a
}

func (h *harness) account(t *testing.T, id string) *models.Account {
	t.Helper()
	a, err := h.store.FindAccountByID(context.Background(), id)
	require.NoError(t, err)
	return a
}

// tickingClock returns a clock that advances one millisecond per reading so
// ledger order in tests never depends on the id tie-break.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	current := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		current = current.Add(time.Millisecond)
		return current
	}
}
