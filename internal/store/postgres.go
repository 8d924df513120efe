package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/ruralpay/ledger/internal/models"
)

const (
	pqUniqueViolation    = "23505"
	pqLockNotAvailable   = "55P03"
	pqDeadlockDetected   = "40P01"
	pqSerializationError = "40001"
)

const accountColumns = `id, customer_id, account_number, balance, available_balance, currency, version, created_at, updated_at`

const transactionColumns = `id, idempotency_key, reference_number, type, status, amount, currency,
	from_account_id, to_account_id, COALESCE(description, ''), metadata, created_at, completed_at`

// Postgres is the PostgreSQL-backed Store.
type Postgres struct {
	db          *sql.DB
	lockTimeout time.Duration
}

// NewPostgres wraps an open database handle. A positive lockTimeout bounds
// how long a transfer waits for a contended sender row.
func NewPostgres(db *sql.DB, lockTimeout time.Duration) *Postgres {
	return &Postgres{db: db, lockTimeout: lockTimeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// translateError maps driver errors onto the package sentinels.
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqUniqueViolation:
			return fmt.Errorf("%w: %s", ErrDuplicateKey, pqErr.Constraint)
		case pqLockNotAvailable, pqDeadlockDetected, pqSerializationError:
			return fmt.Errorf("%w: %s", ErrLockTimeout, pqErr.Message)
		}
	}
	return err
}

func (s *Postgres) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback()

	if s.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return translateError(err)
		}
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	return translateError(tx.Commit())
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var customerID sql.NullString
	err := row.Scan(&a.ID, &customerID, &a.AccountNumber, &a.Balance, &a.AvailableBalance,
		&a.Currency, &a.Version, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, translateError(err)
	}
	a.CustomerID = nullableString(customerID)
	return &a, nil
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	var t models.Transaction
	var idemKey, fromID, toID sql.NullString
	var completedAt sql.NullTime
	err := row.Scan(&t.ID, &idemKey, &t.ReferenceNumber, &t.Type, &t.Status, &t.Amount, &t.Currency,
		&fromID, &toID, &t.Description, &t.Metadata, &t.CreatedAt, &completedAt)
	if err != nil {
		return nil, translateError(err)
	}
	t.IdempotencyKey = nullableString(idemKey)
	t.FromAccountID = nullableString(fromID)
	t.ToAccountID = nullableString(toID)
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return &t, nil
}

func nullableString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func (s *Postgres) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, customer_id, account_number, balance, available_balance, currency, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.CustomerID, a.AccountNumber, a.Balance, a.AvailableBalance, a.Currency, a.Version, a.CreatedAt, a.UpdatedAt)
	return translateError(err)
}

func (s *Postgres) FindAccountByID(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (s *Postgres) FindAccountByNumber(ctx context.Context, number string) (*models.Account, error) {
	return scanAccount(s.db.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE account_number = $1`, number))
}

func (s *Postgres) FindTransactionByID(ctx context.Context, id string) (*models.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id))
}

func (s *Postgres) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
}

func (s *Postgres) FindTransactionByReference(ctx context.Context, reference string) (*models.Transaction, error) {
	return scanTransaction(s.db.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE reference_number = $1`, reference))
}

func (s *Postgres) CountPendingTransactions(ctx context.Context, accountID string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM transactions
		WHERE status = $1 AND (from_account_id = $2 OR to_account_id = $2)`,
		models.TransactionStatusPending, accountID).Scan(&count)
	return count, translateError(err)
}

func (s *Postgres) SumActiveHolds(ctx context.Context, accountID string, now time.Time) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM transaction_reservations
		WHERE account_id = $1 AND status = $2 AND expires_at > $3`,
		accountID, models.ReservationStatusActive, now).Scan(&total)
	return total, translateError(err)
}

func (s *Postgres) ListStatement(ctx context.Context, accountID string, after *Keyset, limit int) ([]models.StatementLine, error) {
	conditions := []string{"le.account_id = $1"}
	args := []any{accountID}
	argIndex := 2

	if after != nil {
		conditions = append(conditions, fmt.Sprintf("(le.created_at, le.id) < ($%d, $%d)", argIndex, argIndex+1))
		args = append(args, after.CreatedAt, after.ID)
		argIndex += 2
	}

	query := `
		SELECT le.id, le.transaction_id, le.account_id, le.entry_type, le.amount, le.balance_after, le.created_at,
		       COALESCE(t.reference_number, ''), COALESCE(t.type, ''), COALESCE(t.status, ''),
		       COALESCE(t.currency, ''), COALESCE(t.description, ''), t.from_account_id, t.to_account_id
		FROM ledger_entries le
		LEFT JOIN transactions t ON t.id = le.transaction_id
		WHERE ` + strings.Join(conditions, " AND ") + `
		ORDER BY le.created_at DESC, le.id DESC` +
		fmt.Sprintf(" LIMIT $%d", argIndex)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, translateError(err)
	}
	defer rows.Close()

	lines := []models.StatementLine{}
	for rows.Next() {
		var line models.StatementLine
		var txID, fromID, toID sql.NullString
		err := rows.Scan(
			&line.Entry.ID, &txID, &line.Entry.AccountID, &line.Entry.EntryType, &line.Entry.Amount,
			&line.Entry.BalanceAfter, &line.Entry.CreatedAt,
			&line.ReferenceNumber, &line.Type, &line.Status, &line.Currency, &line.Description,
			&fromID, &toID,
		)
		if err != nil {
			return nil, translateError(err)
		}
		line.Entry.TransactionID = nullableString(txID)
		line.FromAccountID = nullableString(fromID)
		line.ToAccountID = nullableString(toID)
		lines = append(lines, line)
	}

	return lines, translateError(rows.Err())
}

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) LockAccount(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1 FOR UPDATE`, id))
}

func (t *pgTx) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (t *pgTx) AdjustBalance(ctx context.Context, accountID string, delta int64) (*models.Account, error) {
	return scanAccount(t.tx.QueryRowContext(ctx, `
		UPDATE accounts
		SET balance = balance + $1, available_balance = available_balance + $1,
		    version = version + 1, updated_at = NOW()
		WHERE id = $2
		RETURNING `+accountColumns, delta, accountID))
}

func (t *pgTx) FindTransactionByIdempotencyKey(ctx context.Context, key string) (*models.Transaction, error) {
	return scanTransaction(t.tx.QueryRowContext(ctx,
		`SELECT `+transactionColumns+` FROM transactions WHERE idempotency_key = $1`, key))
}

func (t *pgTx) InsertTransaction(ctx context.Context, tr *models.Transaction) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transactions
		(id, idempotency_key, reference_number, type, status, amount, currency,
		 from_account_id, to_account_id, description, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		tr.ID, tr.IdempotencyKey, tr.ReferenceNumber, tr.Type, tr.Status, tr.Amount, tr.Currency,
		tr.FromAccountID, tr.ToAccountID, tr.Description, tr.Metadata, tr.CreatedAt)
	return translateError(err)
}

func (t *pgTx) CompleteTransaction(ctx context.Context, id string, completedAt time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE transactions SET status = $1, completed_at = $2
		WHERE id = $3 AND status = $4`,
		models.TransactionStatusCompleted, completedAt, id, models.TransactionStatusPending)
	return expectOneRow(res, err, "transaction", id)
}

func (t *pgTx) InsertReservation(ctx context.Context, r *models.Reservation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO transaction_reservations (id, transaction_id, account_id, amount, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.TransactionID, r.AccountID, r.Amount, r.Status, r.ExpiresAt, r.CreatedAt)
	return translateError(err)
}

func (t *pgTx) UpdateReservationStatus(ctx context.Context, id, status string) error {
	res, err := t.tx.ExecContext(ctx,
		`UPDATE transaction_reservations SET status = $1 WHERE id = $2`, status, id)
	return expectOneRow(res, err, "reservation", id)
}

func (t *pgTx) InsertLedgerEntry(ctx context.Context, e *models.LedgerEntry) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, transaction_id, account_id, entry_type, amount, balance_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TransactionID, e.AccountID, e.EntryType, e.Amount, e.BalanceAfter, e.CreatedAt)
	return translateError(err)
}

func expectOneRow(res sql.Result, err error, kind, id string) error {
	if err != nil {
		return translateError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
	}
	return nil
}

var _ Store = (*Postgres)(nil)
