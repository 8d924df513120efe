package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/store"
)

// CreateAccountRequest opens a zero-balance account. Funds arrive through
// deposits so every unit of balance has a ledger entry behind it.
type CreateAccountRequest struct {
	CustomerID *string
	Currency   string
}

// AccountService is the keyed account store used by the transfer core.
type AccountService struct {
	store  store.Store
	ids    *IdentifierGenerator
	logger *zap.Logger
	now    func() time.Time
}

func NewAccountService(st store.Store, ids *IdentifierGenerator, logger *zap.Logger) *AccountService {
	return &AccountService{store: st, ids: ids, logger: logger.Named("accounts"), now: time.Now}
}

// Create opens an account with a freshly generated unique account number.
func (s *AccountService) Create(ctx context.Context, req CreateAccountRequest) (*models.Account, error) {
	now := s.now().UTC()
	account := &models.Account{
		ID:         uuid.NewString(),
		CustomerID: req.CustomerID,
		Currency:   strings.ToUpper(req.Currency),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err := retryUnique(ctx, s.ids.AccountNumber, func(number string) (bool, error) {
		account.AccountNumber = number
		err := s.store.CreateAccount(ctx, account)
		if store.IsConstraint(err, store.ConstraintAccountNumber) {
			s.logger.Info("account number collision, regenerating", zap.String("account_number", number))
			return true, nil
		}
		return false, err
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("account_number", account.AccountNumber),
		zap.String("currency", account.Currency),
	)
	return account, nil
}

func (s *AccountService) FindByID(ctx context.Context, id string) (*models.Account, error) {
	a, err := s.store.FindAccountByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
	}
	return a, err
}

func (s *AccountService) FindByNumber(ctx context.Context, number string) (*models.Account, error) {
	a, err := s.store.FindAccountByNumber(ctx, number)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, number)
	}
	return a, err
}
