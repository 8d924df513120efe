package services

import "errors"

var (
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrReceiverNotFound    = errors.New("receiver account not found")
	ErrAccountNotFound     = errors.New("account not found")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrCurrencyMismatch    = errors.New("currency mismatch")
	ErrInvalidAmount       = errors.New("amount must be a positive number of minor units")
	ErrSameAccount         = errors.New("sender and receiver must be different accounts")
	ErrTransferFailed      = errors.New("transfer failed")
	// ErrTransferInProgress means another attempt with the same idempotency
	// key has not finished. Callers retry later with the same key.
	ErrTransferInProgress = errors.New("transfer with this idempotency key is already being processed")
	// ErrIdempotencyKeyReused means the key belongs to a different request
	// or to an attempt that ended FAILED.
	ErrIdempotencyKeyReused = errors.New("idempotency key already used for a different request")
	ErrInvalidCursor        = errors.New("invalid cursor")
	ErrIdentifierExhausted  = errors.New("could not generate a unique identifier")
)
