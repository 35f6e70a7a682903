package v1

import (
	"context"
	"net/http"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/usecase"
	"storefront-backend/pkg/utils"
)

type ShippingService interface {
	Quote(ctx context.Context, req usecase.QuoteReq) (*domain.Resolution, error)
	SelectRate(ctx context.Context, req usecase.SelectRateReq) (*usecase.SelectedRate, error)
}

type ShippingHandler struct {
	shippingUC ShippingService
}

func NewShippingHandler(uc ShippingService) *ShippingHandler {
	return &ShippingHandler{shippingUC: uc}
}

type quoteResponse struct {
	Success      bool                    `json:"success"`
	Status       domain.ResolutionStatus `json:"status"`
	MatchedZone  *domain.ZoneRef         `json:"matched_zone"`
	Rates        []domain.ResolvedRate   `json:"rates"`
	FallbackUsed bool                    `json:"fallback_used"`
}

// POST /api/v1/shipping/quote
//
// A no_rate outcome is still a 200: checkout decides how to present it.
func (h *ShippingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var req usecase.QuoteReq
	if !decodeJSON(w, r, &req) {
		return
	}

	res, err := h.shippingUC.Quote(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, quoteResponse{
		Success:      true,
		Status:       res.Status,
		MatchedZone:  res.MatchedZone,
		Rates:        res.Rates,
		FallbackUsed: res.FallbackUsed,
	})
}

// POST /api/v1/shipping/select
func (h *ShippingHandler) SelectRate(w http.ResponseWriter, r *http.Request) {
	var req usecase.SelectRateReq
	if !decodeJSON(w, r, &req) {
		return
	}

	selected, err := h.shippingUC.SelectRate(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, selected)
}
