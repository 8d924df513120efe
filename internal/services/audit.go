package services

// AuditLogger records money-movement outcomes. *audit.Logger satisfies it.
type AuditLogger interface {
	LogTransfer(transactionID, fromAccount, toAccount string, amount int64, status string)
	LogDeposit(transactionID, accountID string, amount int64, status string)
	LogReplay(transactionID, idempotencyKey string)
	// LogError records a failed attempt. No transaction row survives a
	// failure, so the attempt is identified by its reference number.
	LogError(referenceNumber, accountID string, err error)
}
