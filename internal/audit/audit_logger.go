package audit

import (
	"time"

	"go.uber.org/zap"
)

const (
	EventTransfer = "TRANSFER"
	EventDeposit  = "DEPOSIT"
	EventError    = "ERROR"
	EventReplay   = "IDEMPOTENT_REPLAY"
)

// Event is one audit record.
type Event struct {
	Timestamp     time.Time         `json:"timestamp"`
	EventType     string            `json:"event_type"`
	TransactionID string            `json:"transaction_id"`
	AccountID     string            `json:"account_id"`
	Amount        int64             `json:"amount"`
	Status        string            `json:"status"`
	Details       map[string]string `json:"details"`
}

// Logger writes money-movement audit events as structured log records.
type Logger struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewLogger(logger *zap.Logger) *Logger {
	return &Logger{logger: logger.Named("audit"), now: time.Now}
}

func (a *Logger) LogTransfer(transactionID, fromAccount, toAccount string, amount int64, status string) {
	a.log(Event{
		EventType:     EventTransfer,
		TransactionID: transactionID,
		AccountID:     fromAccount,
		Amount:        amount,
		Status:        status,
		Details: map[string]string{
			"from_account": fromAccount,
			"to_account":   toAccount,
		},
	})
}

func (a *Logger) LogDeposit(transactionID, accountID string, amount int64, status string) {
	a.log(Event{
		EventType:     EventDeposit,
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        status,
	})
}

func (a *Logger) LogReplay(transactionID, idempotencyKey string) {
	a.log(Event{
		EventType:     EventReplay,
		TransactionID: transactionID,
		Status:        "SUCCESS",
		Details:       map[string]string{"idempotency_key": idempotencyKey},
	})
}

func (a *Logger) LogError(referenceNumber, accountID string, err error) {
	a.log(Event{
		EventType: EventError,
		AccountID: accountID,
		Status:    "FAILED",
		Details: map[string]string{
			"reference_number": referenceNumber,
			"error":            err.Error(),
		},
	})
}

func (a *Logger) log(event Event) {
	event.Timestamp = a.now().UTC()
	fields := []zap.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("event_type", event.EventType),
		zap.String("transaction_id", event.TransactionID),
		zap.String("account_id", event.AccountID),
		zap.Int64("amount", event.Amount),
		zap.String("status", event.Status),
	}
	for k, v := range event.Details {
		fields = append(fields, zap.String(k, v))
	}
	a.logger.Info("AUDIT", fields...)
}
