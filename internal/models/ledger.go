package models

import (
	"strconv"
	"time"
)

const (
	EntryTypeDebit  = "DEBIT"
	EntryTypeCredit = "CREDIT"
)

// LedgerEntry is one immutable side of a posting. Amount is always positive;
// the sign comes from EntryType.
type LedgerEntry struct {
	ID            string    `json:"id" db:"id"`
	TransactionID *string   `json:"transactionId,omitempty" db:"transaction_id"`
	AccountID     string    `json:"accountId" db:"account_id"`
	EntryType     string    `json:"entryType" db:"entry_type"`
	Amount        int64     `json:"amount,string" db:"amount"`
	BalanceAfter  int64     `json:"balanceAfter,string" db:"balance_after"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// SignedAmount renders the entry amount as an exact decimal string,
// negative for debits.
func (e *LedgerEntry) SignedAmount() string {
	if e.EntryType == EntryTypeDebit {
		return "-" + strconv.FormatInt(e.Amount, 10)
	}
	return strconv.FormatInt(e.Amount, 10)
}

// StatementLine is a ledger entry joined with its owning transaction.
type StatementLine struct {
	Entry           LedgerEntry
	ReferenceNumber string
	Type            string
	Status          string
	Currency        string
	Description     string
	FromAccountID   *string
	ToAccountID     *string
}
