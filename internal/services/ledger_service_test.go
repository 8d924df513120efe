package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

func TestDoubleLedgerService_PostTransfer(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	st := store.NewPostgres(db, 0)
	service := NewDoubleLedgerService(st)
	at := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	sender := &models.Account{ID: "account1", Balance: 4000}
	receiver := &models.Account{ID: "account2", Balance: 3000}

	t.Run("successful posting", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries \\(id, transaction_id, account_id, entry_type, amount, balance_after, created_at\\)").
			WithArgs(sqlmock.AnyArg(), "tx123", "account1", "DEBIT", int64(1000), int64(4000), at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WithArgs(sqlmock.AnyArg(), "tx123", "account2", "CREDIT", int64(1000), int64(3000), at).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		var debit, credit *models.LedgerEntry
		err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			var err error
			debit, credit, err = service.PostTransfer(ctx, tx, "tx123", sender, receiver, 1000, at)
			return err
		})

		require.NoError(t, err)
		assert.Equal(t, "-1000", debit.SignedAmount())
		assert.Equal(t, "1000", credit.SignedAmount())
		assert.NotEqual(t, debit.ID, credit.ID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("credit insert failure aborts the posting", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec("INSERT INTO ledger_entries").
			WillReturnError(errors.New("disk full"))
		mock.ExpectRollback()

		err := st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
			_, _, err := service.PostTransfer(ctx, tx, "tx123", sender, receiver, 1000, at)
			return err
		})

		assert.Error(t, err)
		assert.Contains(t, err.Error(), "insert CREDIT entry for account2")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDoubleLedgerService_Statement(t *testing.T) {
	st := store.NewMemory()
	service := NewDoubleLedgerService(st)
	ctx := context.Background()
	at := time.Now().UTC()

	require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := service.PostCredit(ctx, tx, "tx1", &models.Account{ID: "account1", Balance: 500}, 500, at)
		return err
	}))

	lines, err := service.Statement(ctx, "account1", nil, 10)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, int64(500), lines[0].Entry.BalanceAfter)
	assert.Equal(t, "tx1", *lines[0].Entry.TransactionID)
}
