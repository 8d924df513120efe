package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const cachedK1 = `{"fingerprint":{"amount":"4000","currency":"NGN","from":"acc-a","to":"acc-b","type":"TRANSFER"},` +
	`"outcome":{"referenceNumber":"TXN1","status":"COMPLETED","transactionId":"tx-1"}}`

func k1Fingerprint() RequestFingerprint {
	from, to := "acc-a", "acc-b"
	return fingerprintOf(models.TransactionTypeTransfer, &from, &to, 4000, "NGN")
}

func TestIdempotencyGuard_Check(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips the database", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		guard := NewIdempotencyGuard(store.NewMemory(), client, time.Hour, zap.NewNop())

		mock.ExpectGet("idempotency:transfer:k1").SetVal(cachedK1)

		outcome, err := guard.Check(ctx, "k1", k1Fingerprint())
		require.NoError(t, err)
		assert.Equal(t, &TransferOutcome{TransactionID: "tx-1", ReferenceNumber: "TXN1", Status: "COMPLETED"}, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cache hit for another request", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		guard := NewIdempotencyGuard(store.NewMemory(), client, time.Hour, zap.NewNop())

		mock.ExpectGet("idempotency:transfer:k1").SetVal(cachedK1)

		from, to := "acc-a", "acc-c"
		_, err := guard.Check(ctx, "k1", fingerprintOf(models.TransactionTypeTransfer, &from, &to, 4000, "NGN"))
		assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
	})

	t.Run("database hit is cached canonically", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		st := store.NewMemory()
		guard := NewIdempotencyGuard(st, client, time.Hour, zap.NewNop())

		key, from, to := "k1", "acc-a", "acc-b"
		completed := time.Now().UTC()
		require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.InsertTransaction(ctx, &models.Transaction{
				ID: "tx-1", IdempotencyKey: &key, ReferenceNumber: "TXN1", Type: models.TransactionTypeTransfer,
				Status: models.TransactionStatusPending, Amount: 4000, Currency: "NGN",
				FromAccountID: &from, ToAccountID: &to,
			}); err != nil {
				return err
			}
			return tx.CompleteTransaction(ctx, "tx-1", completed)
		}))

		mock.ExpectGet("idempotency:transfer:k1").RedisNil()
		mock.ExpectSet("idempotency:transfer:k1", cachedK1, time.Hour).SetVal("OK")

		outcome, err := guard.Check(ctx, "k1", k1Fingerprint())
		require.NoError(t, err)
		assert.Equal(t, "tx-1", outcome.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("redis outage falls back to the database", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		guard := NewIdempotencyGuard(store.NewMemory(), client, time.Hour, zap.NewNop())

		mock.ExpectGet("idempotency:transfer:k9").SetErr(errors.New("connection refused"))

		outcome, err := guard.Check(ctx, "k9", k1Fingerprint())
		assert.NoError(t, err)
		assert.Nil(t, outcome)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("account id case does not change the fingerprint", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		defer db.Close()

		guard := NewIdempotencyGuard(store.NewPostgres(db, 0), nil, time.Hour, zap.NewNop())
		from := "3f1c2a9e-7b4d-4e8a-9c11-2f6d5b8e0a14"
		to := "8b2d4c6e-1a3f-4b5d-8e7f-0a1b2c3d4e5f"
		now := time.Now()

		mock.ExpectQuery("SELECT .* FROM transactions WHERE idempotency_key = \\$1").
			WithArgs("k-case").
			WillReturnRows(sqlmock.NewRows([]string{"id", "idempotency_key", "reference_number", "type", "status", "amount", "currency",
				"from_account_id", "to_account_id", "description", "metadata", "created_at", "completed_at"}).
				AddRow("tx-1", "k-case", "TXN1", "TRANSFER", "COMPLETED", 4000, "NGN", from, to, "", nil, now, now))

		upperFrom, upperTo := strings.ToUpper(from), strings.ToUpper(to)
		outcome, err := guard.Check(ctx, "k-case", fingerprintOf(models.TransactionTypeTransfer, &upperFrom, &upperTo, 4000, "ngn"))
		require.NoError(t, err)
		require.NotNil(t, outcome)
		assert.Equal(t, "tx-1", outcome.TransactionID)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed prior attempt", func(t *testing.T) {
		st := store.NewMemory()
		guard := NewIdempotencyGuard(st, nil, time.Hour, zap.NewNop())

		key, from, to := "k-failed", "acc-a", "acc-b"
		require.NoError(t, st.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			return tx.InsertTransaction(ctx, &models.Transaction{
				ID: "tx-f", IdempotencyKey: &key, ReferenceNumber: "TXNF", Type: models.TransactionTypeTransfer,
				Status: models.TransactionStatusFailed, Amount: 4000, Currency: "NGN",
				FromAccountID: &from, ToAccountID: &to,
			})
		}))

		_, err := guard.Check(ctx, key, k1Fingerprint())
		assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
	})
}
