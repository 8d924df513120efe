package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

func TestTransferService_Transfer(t *testing.T) {
	ctx := context.Background()

	t.Run("replay with the same key returns the original outcome", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 10000)
		receiver := h.openAccount(t, 0)

		req := TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID,
			Amount: 4000, Currency: "ngn", IdempotencyKey: "k1",
		}
		first, err := h.transfers.Transfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, models.TransactionStatusCompleted, first.Status)

		second, err := h.transfers.Transfer(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, first, second)

		assert.Equal(t, int64(6000), h.account(t, sender.ID).Balance)
		lines, err := h.store.ListStatement(ctx, receiver.ID, nil, 10)
		require.NoError(t, err)
		assert.Len(t, lines, 1)

		h.audit.AssertCalled(t, "LogReplay", first.TransactionID, "k1")
		h.audit.AssertNumberOfCalls(t, "LogTransfer", 1)
	})

	t.Run("pending key is a conflict", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 10000)
		receiver := h.openAccount(t, 0)

		key := "k-pending"
		require.NoError(t, h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertTransaction(ctx, &models.Transaction{
				ID: "4b8f0f4e-3c1d-4d5e-9a7b-1f2e3d4c5b6a", IdempotencyKey: &key, ReferenceNumber: "TXN-P",
				Type: models.TransactionTypeTransfer, Status: models.TransactionStatusPending,
				Amount: 100, Currency: "NGN", FromAccountID: &sender.ID, ToAccountID: &receiver.ID,
				CreatedAt: time.Now().UTC(),
			})
		}))

		_, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 100, Currency: "NGN", IdempotencyKey: key,
		})
		assert.ErrorIs(t, err, ErrTransferInProgress)
		assert.Equal(t, int64(10000), h.account(t, sender.ID).Balance)
	})

	t.Run("key reused for a different request", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 10000)
		receiver := h.openAccount(t, 0)

		_, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 100, Currency: "NGN", IdempotencyKey: "k2",
		})
		require.NoError(t, err)

		_, err = h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 999, Currency: "NGN", IdempotencyKey: "k2",
		})
		assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
	})

	t.Run("currency mismatch", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 10000)
		receiver := h.openAccount(t, 0)

		_, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 100, Currency: "USD",
		})
		assert.ErrorIs(t, err, ErrCurrencyMismatch)
	})

	t.Run("unknown sender", func(t *testing.T) {
		h := newHarness(t, nil)
		receiver := h.openAccount(t, 0)

		_, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: "6d1f2e3a-0000-4000-8000-000000000001", ToAccountID: receiver.ID, Amount: 100, Currency: "NGN",
		})
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("insufficient funds is audited", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 100)
		receiver := h.openAccount(t, 0)

		_, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 500, Currency: "NGN", IdempotencyKey: "k3",
		})
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		h.audit.AssertCalled(t, "LogError",
			mock.MatchedBy(func(reference string) bool { return strings.HasPrefix(reference, "TXN") }),
			sender.ID, mock.Anything)

		_, err = h.store.FindTransactionByIdempotencyKey(ctx, "k3")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("reference collisions are bounded", func(t *testing.T) {
		h := newHarness(t, nil)
		sender := h.openAccount(t, 10000)
		receiver := h.openAccount(t, 0)

		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		h.ids.now = func() time.Time { return fixed }
		h.ids.random = func(int64) (int64, error) { return 7, nil }

		first, err := h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 100, Currency: "NGN",
		})
		require.NoError(t, err)
		assert.Equal(t, "TXN1772366400000000007", first.ReferenceNumber)

		_, err = h.transfers.Transfer(ctx, TransferRequest{
			FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 100, Currency: "NGN",
		})
		assert.ErrorIs(t, err, ErrTransferFailed)
		assert.ErrorIs(t, err, ErrIdentifierExhausted)
		assert.Equal(t, int64(9900), h.account(t, sender.ID).Balance)
	})
}

func TestTransferService_ConcurrentSameKey(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	sender := h.openAccount(t, 1000)
	receiver := h.openAccount(t, 0)

	const attempts = 10
	outcomes := make([]*TransferOutcome, attempts)
	errs := make([]error, attempts)

	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcomes[i], errs[i] = h.transfers.Transfer(ctx, TransferRequest{
				FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 800,
				Currency: "NGN", IdempotencyKey: "k-race",
			})
		}()
	}
	wg.Wait()

	stored, err := h.store.FindTransactionByIdempotencyKey(ctx, "k-race")
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, stored.Status)

	var succeeded int
	for i := 0; i < attempts; i++ {
		if errs[i] == nil {
			succeeded++
			assert.Equal(t, stored.ID, outcomes[i].TransactionID)
			continue
		}
		assert.ErrorIs(t, errs[i], ErrTransferInProgress)
		assert.NotErrorIs(t, errs[i], ErrInsufficientFunds)
	}
	assert.GreaterOrEqual(t, succeeded, 1)

	assert.Equal(t, int64(200), h.account(t, sender.ID).Balance)
	assert.Equal(t, int64(800), h.account(t, receiver.ID).Balance)
}

func TestTransferService_Deposit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	a := h.openAccount(t, 0)

	req := DepositRequest{AccountID: a.ID, Amount: 700, Currency: "NGN", IdempotencyKey: "dep-1"}
	first, err := h.transfers.Deposit(ctx, req)
	require.NoError(t, err)

	second, err := h.transfers.Deposit(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int64(700), h.account(t, a.ID).Balance)
}

func TestTransferService_Lookups(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	sender := h.openAccount(t, 1000)
	receiver := h.openAccount(t, 0)

	outcome, err := h.transfers.Transfer(ctx, TransferRequest{
		FromAccountID: sender.ID, ToAccountID: receiver.ID, Amount: 250, Currency: "NGN",
		Description: "school fees", Metadata: models.Metadata{"channel": "ussd"},
	})
	require.NoError(t, err)

	byID, err := h.transfers.GetTransaction(ctx, outcome.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, outcome.ReferenceNumber, byID.ReferenceNumber)
	assert.Equal(t, "school fees", byID.Description)
	assert.Equal(t, "ussd", byID.Metadata["channel"])

	byRef, err := h.transfers.GetByReference(ctx, outcome.ReferenceNumber)
	require.NoError(t, err)
	assert.Equal(t, outcome.TransactionID, byRef.ID)

	_, err = h.transfers.GetTransaction(ctx, "missing")
	assert.ErrorIs(t, err, ErrTransactionNotFound)
}
