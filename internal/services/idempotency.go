package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gowebpki/jcs"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

const idempotencyKeyPrefix = "idempotency:transfer:"

// TransferOutcome is the caller-facing result of a transfer or deposit.
type TransferOutcome struct {
	TransactionID   string `json:"transactionId"`
	ReferenceNumber string `json:"referenceNumber"`
	Status          string `json:"status"`
}

// RequestFingerprint identifies the money movement a key was first used for.
type RequestFingerprint struct {
	Type     string `json:"type"`
	From     string `json:"from"`
	To       string `json:"to"`
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type cachedOutcome struct {
	Outcome     TransferOutcome    `json:"outcome"`
	Fingerprint RequestFingerprint `json:"fingerprint"`
}

// IdempotencyGuard deduplicates submissions that carry the same key. The
// transactions table is the source of truth; Redis caches completed
// outcomes so replays skip the database. A nil Redis client disables the
// cache.
type IdempotencyGuard struct {
	store  store.Store
	cache  *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyGuard(st store.Store, cache *redis.Client, ttl time.Duration, logger *zap.Logger) *IdempotencyGuard {
	return &IdempotencyGuard{store: st, cache: cache, ttl: ttl, logger: logger.Named("idempotency")}
}

func fingerprintOf(txType string, from, to *string, amount int64, currency string) RequestFingerprint {
	fp := RequestFingerprint{Type: txType, Amount: strconv.FormatInt(amount, 10), Currency: strings.ToUpper(currency)}
	// account ids are UUIDs; the database hands them back lowercase
	if from != nil {
		fp.From = strings.ToLower(*from)
	}
	if to != nil {
		fp.To = strings.ToLower(*to)
	}
	return fp
}

// Check returns the prior outcome for key when one completed, nil when the
// key is unused, ErrTransferInProgress when an attempt is still PENDING and
// ErrIdempotencyKeyReused when the key belongs to a different request.
func (g *IdempotencyGuard) Check(ctx context.Context, key string, fp RequestFingerprint) (*TransferOutcome, error) {
	if cached, ok := g.fromCache(ctx, key); ok {
		if cached.Fingerprint != fp {
			return nil, ErrIdempotencyKeyReused
		}
		return &cached.Outcome, nil
	}

	prior, err := g.store.FindTransactionByIdempotencyKey(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: idempotency lookup: %w", ErrTransferFailed, err)
	}

	if fingerprintOf(prior.Type, prior.FromAccountID, prior.ToAccountID, prior.Amount, prior.Currency) != fp {
		return nil, ErrIdempotencyKeyReused
	}

	switch prior.Status {
	case models.TransactionStatusCompleted:
		outcome := TransferOutcome{
			TransactionID:   prior.ID,
			ReferenceNumber: prior.ReferenceNumber,
			Status:          prior.Status,
		}
		g.Remember(ctx, key, fp, outcome)
		return &outcome, nil
	case models.TransactionStatusPending:
		return nil, ErrTransferInProgress
	default:
		return nil, fmt.Errorf("%w: transaction %s is %s", ErrIdempotencyKeyReused, prior.ID, prior.Status)
	}
}

// Remember caches a completed outcome. Cache failures are logged, never
// returned: the database still answers the next lookup.
func (g *IdempotencyGuard) Remember(ctx context.Context, key string, fp RequestFingerprint, outcome TransferOutcome) {
	if g.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedOutcome{Outcome: outcome, Fingerprint: fp})
	if err == nil {
		raw, err = jcs.Transform(raw)
	}
	if err != nil {
		g.logger.Error("encode idempotent outcome", zap.String("key", key), zap.Error(err))
		return
	}
	if err := g.cache.Set(ctx, idempotencyKeyPrefix+key, string(raw), g.ttl).Err(); err != nil {
		g.logger.Warn("cache idempotent outcome", zap.String("key", key), zap.Error(err))
	}
}

func (g *IdempotencyGuard) fromCache(ctx context.Context, key string) (*cachedOutcome, bool) {
	if g.cache == nil {
		return nil, false
	}
	raw, err := g.cache.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			g.logger.Warn("read idempotency cache", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var cached cachedOutcome
	if err := json.Unmarshal(raw, &cached); err != nil {
		g.logger.Warn("discarding corrupt idempotency cache entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return &cached, true
}
