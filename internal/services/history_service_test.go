package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

func TestHistoryService_GetHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("walks five entries two at a time", func(t *testing.T) {
		h := newHarness(t, nil)
		a := h.openAccount(t, 10000)
		b := h.openAccount(t, 0)

		for _, amount := range []int64{1000, 2000, 3000, 500} {
			_, err := h.transfers.Transfer(ctx, TransferRequest{
				FromAccountID: a.ID, ToAccountID: b.ID, Amount: amount, Currency: "NGN",
			})
			require.NoError(t, err)
		}

		first, err := h.history.GetHistory(ctx, a.ID, 2, "")
		require.NoError(t, err)
		require.Len(t, first.Items, 2)
		assert.True(t, first.HasMore)
		assert.NotEmpty(t, first.NextCursor)
		assert.Equal(t, "-500", first.Items[0].Amount)
		assert.Equal(t, "3500", first.Items[0].BalanceAfter)
		assert.Equal(t, b.ID, *first.Items[0].CounterpartyAccountID)

		second, err := h.history.GetHistory(ctx, a.ID, 2, first.NextCursor)
		require.NoError(t, err)
		require.Len(t, second.Items, 2)
		assert.True(t, second.HasMore)

		third, err := h.history.GetHistory(ctx, a.ID, 2, second.NextCursor)
		require.NoError(t, err)
		require.Len(t, third.Items, 1)
		assert.False(t, third.HasMore)
		assert.Empty(t, third.NextCursor)
		assert.Equal(t, "10000", third.Items[0].Amount)
		assert.Equal(t, models.TransactionTypeDeposit, third.Items[0].Type)

		assert.Equal(t, "3500", third.Summary.CurrentBalance)
		assert.Equal(t, "3500", third.Summary.AvailableBalance)
		assert.Equal(t, "0", third.Summary.TotalHolds)
		assert.Zero(t, third.Summary.PendingTransactions)
	})

	t.Run("every entry exactly once when timestamps collide", func(t *testing.T) {
		h := newHarness(t, nil)
		fixed := time.Date(2026, 5, 5, 9, 30, 0, 123456000, time.UTC)
		h.executor.now = func() time.Time { return fixed }

		a := h.openAccount(t, 100000)
		b := h.openAccount(t, 0)
		for i := 0; i < 24; i++ {
			_, err := h.transfers.Transfer(ctx, TransferRequest{
				FromAccountID: a.ID, ToAccountID: b.ID, Amount: int64(i + 1), Currency: "NGN",
			})
			require.NoError(t, err)
		}

		all, err := h.store.ListStatement(ctx, a.ID, nil, 1000)
		require.NoError(t, err)
		require.Len(t, all, 25)

		seen := map[string]bool{}
		var walked []HistoryItem
		cursor := ""
		for pages := 0; pages < 100; pages++ {
			page, err := h.history.GetHistory(ctx, a.ID, 7, cursor)
			require.NoError(t, err)
			for _, item := range page.Items {
				assert.False(t, seen[item.ID], "duplicate entry %s", item.ID)
				seen[item.ID] = true
			}
			walked = append(walked, page.Items...)
			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}

		require.Len(t, walked, 25)
		for i := 1; i < len(walked); i++ {
			prev, cur := walked[i-1], walked[i]
			if prev.CreatedAt.Equal(cur.CreatedAt) {
				assert.Greater(t, prev.ID, cur.ID)
			} else {
				assert.True(t, prev.CreatedAt.After(cur.CreatedAt))
			}
		}
	})

	t.Run("summary reports active holds and pending transfers", func(t *testing.T) {
		h := newHarness(t, nil)
		a := h.openAccount(t, 1000)
		now := h.reservations.now()

		require.NoError(t, h.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.InsertTransaction(ctx, &models.Transaction{
				ID: "6c0f2b7e-0000-4000-8000-00000000000a", ReferenceNumber: "TXN-PENDING",
				Type: models.TransactionTypeTransfer, Status: models.TransactionStatusPending,
				Amount: 300, Currency: "NGN", FromAccountID: &a.ID, CreatedAt: now,
			}); err != nil {
				return err
			}
			if _, err := h.reservations.Hold(ctx, tx, "6c0f2b7e-0000-4000-8000-00000000000a", a.ID, 300, now); err != nil {
				return err
			}
			_, err := h.reservations.Hold(ctx, tx, "6c0f2b7e-0000-4000-8000-00000000000a", a.ID, 50, now.Add(-time.Hour))
			return err
		}))

		page, err := h.history.GetHistory(ctx, a.ID, 0, "")
		require.NoError(t, err)
		assert.Equal(t, "300", page.Summary.TotalHolds)
		assert.Equal(t, int64(1), page.Summary.PendingTransactions)
		assert.Equal(t, "1000", page.Summary.CurrentBalance)
	})

	t.Run("unknown account", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.history.GetHistory(ctx, "1f4e5d6c-0000-4000-8000-000000000000", 10, "")
		assert.ErrorIs(t, err, ErrAccountNotFound)
	})

	t.Run("malformed cursor", func(t *testing.T) {
		h := newHarness(t, nil)
		a := h.openAccount(t, 0)
		_, err := h.history.GetHistory(ctx, a.ID, 10, "yesterday")
		assert.ErrorIs(t, err, ErrInvalidCursor)
	})
}

func TestCursor(t *testing.T) {
	k := store.Keyset{
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 678901000, time.UTC),
		ID:        "0b6f6a62-4b0d-4a8e-a4d6-0d6f7c0b1e2f",
	}

	encoded := EncodeCursor(k)
	assert.Equal(t, "2026-01-02T03:04:05.678901Z|0b6f6a62-4b0d-4a8e-a4d6-0d6f7c0b1e2f", encoded)

	decoded, err := DecodeCursor(encoded)
	require.NoError(t, err)
	assert.True(t, k.CreatedAt.Equal(decoded.CreatedAt))
	assert.Equal(t, k.ID, decoded.ID)

	empty, err := DecodeCursor("")
	assert.NoError(t, err)
	assert.Nil(t, empty)

	for _, bad := range []string{
		"2026-01-02T03:04:05Z",
		"2026-01-02T03:04:05Z|",
		"not-a-time|0b6f6a62-4b0d-4a8e-a4d6-0d6f7c0b1e2f",
		"2026-01-02T03:04:05Z|not-a-uuid",
	} {
		_, err := DecodeCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}
