package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// DefaultReservationTTL is how long a transfer hold earmarks funds.
const DefaultReservationTTL = 5 * time.Minute

// ReservationService reports held funds and performs hold transitions for
// the executor inside its unit of work. It never changes state on its own.
type ReservationService struct {
	store store.Store
	ttl   time.Duration
	now   func() time.Time
}

func NewReservationService(st store.Store, ttl time.Duration) *ReservationService {
	if ttl <= 0 {
		ttl = DefaultReservationTTL
	}
	return &ReservationService{store: st, ttl: ttl, now: time.Now}
}

// TotalActiveHolds sums ACTIVE holds on the account whose expiry is still
// in the future. Expired holds drop out here even if nothing swept them.
func (s *ReservationService) TotalActiveHolds(ctx context.Context, accountID string) (int64, error) {
	total, err := s.store.SumActiveHolds(ctx, accountID, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sum active holds for %s: %w", accountID, err)
	}
	return total, nil
}

// Hold inserts an ACTIVE reservation for amount, expiring ttl after at.
func (s *ReservationService) Hold(ctx context.Context, tx store.Tx, transactionID, accountID string, amount int64, at time.Time) (*models.Reservation, error) {
	r := &models.Reservation{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		AccountID:     accountID,
		Amount:        amount,
		Status:        models.ReservationStatusActive,
		ExpiresAt:     at.Add(s.ttl),
		CreatedAt:     at,
	}
	if err := tx.InsertReservation(ctx, r); err != nil {
		return nil, fmt.Errorf("insert reservation: %w", err)
	}
	return r, nil
}

// Claim marks the hold as consumed by the debit it protected.
func (s *ReservationService) Claim(ctx context.Context, tx store.Tx, r *models.Reservation) error {
	if err := tx.UpdateReservationStatus(ctx, r.ID, models.ReservationStatusClaimed); err != nil {
		return fmt.Errorf("claim reservation %s: %w", r.ID, err)
	}
	r.Status = models.ReservationStatusClaimed
	return nil
}
