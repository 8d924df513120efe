package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/services"
)

type AccountHandler struct {
	service   *services.AccountService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewAccountHandler(service *services.AccountService, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("account_handler"),
	}
}

// CreateAccountRequest is the body of POST /accounts.
type CreateAccountRequest struct {
	CustomerID *string `json:"customerId,omitempty" validate:"omitempty,uuid_rfc4122"`
	Currency   string  `json:"currency" validate:"required,len=3,alpha" example:"NGN"`
}

// CreateAccount opens a new account
// @Summary Open account
// @Description Open a zero-balance account with a generated 10-digit account number
// @Tags accounts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateAccountRequest true "Account request"
// @Success 201 {object} models.Account
// @Failure 400 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /accounts [post]
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	if req.CustomerID != nil {
		id := canonicalUUID(*req.CustomerID)
		req.CustomerID = &id
	}

	account, err := h.service.Create(r.Context(), services.CreateAccountRequest{
		CustomerID: req.CustomerID,
		Currency:   req.Currency,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, account)
}

// GetAccount retrieves an account by id
// @Summary Get account
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := uuidParam(w, r, "accountId")
	if !ok {
		return
	}

	account, err := h.service.FindByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// GetAccountByNumber retrieves an account by its account number
// @Summary Get account by number
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountNumber path string true "10-digit account number"
// @Success 200 {object} models.Account
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/by-number/{accountNumber} [get]
func (h *AccountHandler) GetAccountByNumber(w http.ResponseWriter, r *http.Request) {
	account, err := h.service.FindByNumber(r.Context(), chi.URLParam(r, "accountNumber"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}
