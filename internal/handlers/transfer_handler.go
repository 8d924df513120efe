package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/models"
	"github.com/ruralpay/ledger/internal/services"
)

const idempotencyHeader = "Idempotency-Key"

type TransferHandler struct {
	service   *services.TransferService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewTransferHandler(service *services.TransferService, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("transfer_handler"),
	}
}

// CreateTransferRequest is the body of POST /transfers. Amount is a decimal
// string of minor units.
type CreateTransferRequest struct {
	FromAccountID  string          `json:"fromAccountId" validate:"required,uuid_rfc4122"`
	ToAccountID    string          `json:"toAccountId" validate:"required,uuid_rfc4122"`
	Amount         string          `json:"amount" validate:"required,minor_units" example:"4000"`
	Currency       string          `json:"currency" validate:"required,len=3,alpha" example:"NGN"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"omitempty,max=255"`
	Description    string          `json:"description,omitempty" validate:"max=500"`
	Metadata       models.Metadata `json:"metadata,omitempty" swaggertype:"object"`
}

// DepositRequest is the body of POST /accounts/{accountId}/deposits.
type DepositRequest struct {
	Amount         string          `json:"amount" validate:"required,minor_units" example:"10000"`
	Currency       string          `json:"currency" validate:"required,len=3,alpha" example:"NGN"`
	IdempotencyKey string          `json:"idempotencyKey,omitempty" validate:"omitempty,max=255"`
	Description    string          `json:"description,omitempty" validate:"max=500"`
	Metadata       models.Metadata `json:"metadata,omitempty" swaggertype:"object"`
}

// resolveIdempotencyKey merges the body field with the Idempotency-Key
// header. Both may be given only if they agree.
func resolveIdempotencyKey(r *http.Request, bodyKey string) (string, bool) {
	headerKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	switch {
	case headerKey == "":
		return bodyKey, true
	case bodyKey == "" || bodyKey == headerKey:
		return headerKey, len(headerKey) <= 255
	default:
		return "", false
	}
}

// CreateTransfer moves funds between two accounts
// @Summary Transfer funds
// @Description Atomically debit one account and credit another. Replays with the same idempotency key return the original result.
// @Tags transfers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param Idempotency-Key header string false "Idempotency key (alternative to the body field)"
// @Param request body CreateTransferRequest true "Transfer request"
// @Success 201 {object} services.TransferOutcome
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /transfers [post]
func (h *TransferHandler) CreateTransfer(w http.ResponseWriter, r *http.Request) {
	var req CreateTransferRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	req.FromAccountID = canonicalUUID(req.FromAccountID)
	req.ToAccountID = canonicalUUID(req.ToAccountID)

	if req.FromAccountID == req.ToAccountID {
		services.SendErrorResponse(w, services.ErrSameAccount.Error(), http.StatusBadRequest, nil)
		return
	}

	key, ok := resolveIdempotencyKey(r, req.IdempotencyKey)
	if !ok {
		services.SendErrorResponse(w, "Idempotency-Key header does not match idempotencyKey", http.StatusBadRequest, nil)
		return
	}

	amount, err := services.ParseMinorUnits(req.Amount)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	outcome, err := h.service.Transfer(r.Context(), services.TransferRequest{
		FromAccountID:  req.FromAccountID,
		ToAccountID:    req.ToAccountID,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
		Description:    req.Description,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, outcome)
}

// CreateDeposit funds an account
// @Summary Deposit funds
// @Description Credit an account from outside the ledger
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param Idempotency-Key header string false "Idempotency key (alternative to the body field)"
// @Param request body DepositRequest true "Deposit request"
// @Success 201 {object} services.TransferOutcome
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Router /accounts/{accountId}/deposits [post]
func (h *TransferHandler) CreateDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, ok := uuidParam(w, r, "accountId")
	if !ok {
		return
	}

	var req DepositRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	key, ok := resolveIdempotencyKey(r, req.IdempotencyKey)
	if !ok {
		services.SendErrorResponse(w, "Idempotency-Key header does not match idempotencyKey", http.StatusBadRequest, nil)
		return
	}

	amount, err := services.ParseMinorUnits(req.Amount)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	outcome, err := h.service.Deposit(r.Context(), services.DepositRequest{
		AccountID:      accountID,
		Amount:         amount,
		Currency:       req.Currency,
		IdempotencyKey: key,
		Description:    req.Description,
		Metadata:       req.Metadata,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, outcome)
}

// GetTransaction retrieves a specific transaction
// @Summary Get transaction by ID
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param transactionId path string true "Transaction ID"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/{transactionId} [get]
func (h *TransferHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "transactionId")
	if !ok {
		return
	}

	tx, err := h.service.GetTransaction(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetTransactionByReference retrieves a transaction by reference number
// @Summary Get transaction by reference number
// @Tags transactions
// @Produce json
// @Security BearerAuth
// @Param referenceNumber path string true "Reference number"
// @Success 200 {object} models.Transaction
// @Failure 404 {object} services.ErrorResponse
// @Router /transactions/by-reference/{referenceNumber} [get]
func (h *TransferHandler) GetTransactionByReference(w http.ResponseWriter, r *http.Request) {
	tx, err := h.service.GetByReference(r.Context(), chi.URLParam(r, "referenceNumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}
