package handlers

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/ruralpay/ledger/internal/services"
)

type HistoryHandler struct {
	service   *services.HistoryService
	validator *services.ValidationHelper
	logger    *zap.Logger
}

func NewHistoryHandler(service *services.HistoryService, logger *zap.Logger) *HistoryHandler {
	return &HistoryHandler{
		service:   service,
		validator: services.NewValidationHelper(),
		logger:    logger.Named("history_handler"),
	}
}

// Pagination carries the keyset cursor of the next page.
type Pagination struct {
	NextCursor *string `json:"nextCursor"`
	HasMore    bool    `json:"hasMore"`
}

// HistoryResponse is one page of an account statement.
type HistoryResponse struct {
	Data       []services.HistoryItem  `json:"data"`
	Pagination Pagination              `json:"pagination"`
	Summary    services.HistorySummary `json:"summary"`
}

// GetHistory returns an account statement page
// @Summary Account transaction history
// @Description Ledger entries newest first with signed amounts, running balances and a live balance summary
// @Tags accounts
// @Produce json
// @Security BearerAuth
// @Param accountId path string true "Account ID"
// @Param limit query int false "Page size (default: 50, max: 100)"
// @Param cursor query string false "Cursor from a previous page"
// @Success 200 {object} HistoryResponse
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Router /accounts/{accountId}/transactions [get]
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	accountID, ok := uuidParam(w, r, "accountId")
	if !ok {
		return
	}

	var req struct {
		Limit int `validate:"min=1,max=100"`
	}
	req.Limit = services.DefaultHistoryLimit

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			services.SendErrorResponse(w, "Invalid limit parameter", http.StatusBadRequest, nil)
			return
		}
		req.Limit = limit
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	page, err := h.service.GetHistory(r.Context(), accountID, req.Limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := HistoryResponse{
		Data:       page.Items,
		Pagination: Pagination{HasMore: page.HasMore},
		Summary:    page.Summary,
	}
	if page.NextCursor != "" {
		resp.Pagination.NextCursor = &page.NextCursor
	}
	writeJSON(w, http.StatusOK, resp)
}
