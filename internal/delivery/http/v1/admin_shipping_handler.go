package v1

import (
	"context"
	"net/http"

	"storefront-backend/internal/domain"
	"storefront-backend/pkg/utils"
)

type AdminShippingService interface {
	ListZones(ctx context.Context) ([]domain.Zone, error)
	GetZone(ctx context.Context, id string) (*domain.Zone, error)
	CreateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error)
	UpdateZone(ctx context.Context, zone *domain.Zone) (*domain.Zone, error)
	DeleteZone(ctx context.Context, id string) error
	AddRule(ctx context.Context, rule *domain.ZoneRule) (*domain.ZoneRule, error)
	DeleteRule(ctx context.Context, id string) error
	AddRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error)
	UpdateRate(ctx context.Context, rate *domain.ZoneRate) (*domain.ZoneRate, error)
	DeleteRate(ctx context.Context, id string) error
	GetFallback(ctx context.Context) (*domain.FallbackSettings, error)
	UpdateFallback(ctx context.Context, settings *domain.FallbackSettings) (*domain.FallbackSettings, error)
	ExportSnapshot(ctx context.Context) (string, error)
}

type AdminShippingHandler struct {
	shippingUC AdminShippingService
}

func NewAdminShippingHandler(uc AdminShippingService) *AdminShippingHandler {
	return &AdminShippingHandler{shippingUC: uc}
}

// GET /api/v1/admin/shipping/zones
func (h *AdminShippingHandler) ListZones(w http.ResponseWriter, r *http.Request) {
	zones, err := h.shippingUC.ListZones(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if zones == nil {
		zones = []domain.Zone{}
	}
	utils.WriteJSON(w, http.StatusOK, zones)
}

// GET /api/v1/admin/shipping/zones/{id}
func (h *AdminShippingHandler) GetZone(w http.ResponseWriter, r *http.Request) {
	zone, err := h.shippingUC.GetZone(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, zone)
}

// POST /api/v1/admin/shipping/zones
func (h *AdminShippingHandler) CreateZone(w http.ResponseWriter, r *http.Request) {
	var req domain.Zone
	if !decodeJSON(w, r, &req) {
		return
	}

	created, err := h.shippingUC.CreateZone(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

// PUT /api/v1/admin/shipping/zones/{id}
func (h *AdminShippingHandler) UpdateZone(w http.ResponseWriter, r *http.Request) {
	var req domain.Zone
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	updated, err := h.shippingUC.UpdateZone(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

// DELETE /api/v1/admin/shipping/zones/{id}
func (h *AdminShippingHandler) DeleteZone(w http.ResponseWriter, r *http.Request) {
	if err := h.shippingUC.DeleteZone(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/shipping/zones/{id}/rules
func (h *AdminShippingHandler) AddRule(w http.ResponseWriter, r *http.Request) {
	var req domain.ZoneRule
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ZoneID = r.PathValue("id")

	created, err := h.shippingUC.AddRule(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

// DELETE /api/v1/admin/shipping/rules/{id}
func (h *AdminShippingHandler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := h.shippingUC.DeleteRule(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/shipping/zones/{id}/rates
func (h *AdminShippingHandler) AddRate(w http.ResponseWriter, r *http.Request) {
	var req domain.ZoneRate
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ZoneID = r.PathValue("id")

	created, err := h.shippingUC.AddRate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

// PUT /api/v1/admin/shipping/rates/{id}
func (h *AdminShippingHandler) UpdateRate(w http.ResponseWriter, r *http.Request) {
	var req domain.ZoneRate
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ID = r.PathValue("id")

	updated, err := h.shippingUC.UpdateRate(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

// DELETE /api/v1/admin/shipping/rates/{id}
func (h *AdminShippingHandler) DeleteRate(w http.ResponseWriter, r *http.Request) {
	if err := h.shippingUC.DeleteRate(r.Context(), r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/admin/shipping/fallback
func (h *AdminShippingHandler) GetFallback(w http.ResponseWriter, r *http.Request) {
	settings, err := h.shippingUC.GetFallback(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, settings)
}

// PUT /api/v1/admin/shipping/fallback
func (h *AdminShippingHandler) UpdateFallback(w http.ResponseWriter, r *http.Request) {
	var req domain.FallbackSettings
	if !decodeJSON(w, r, &req) {
		return
	}

	updated, err := h.shippingUC.UpdateFallback(r.Context(), &req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, updated)
}

// POST /api/v1/admin/shipping/export
func (h *AdminShippingHandler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	url, err := h.shippingUC.ExportSnapshot(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, map[string]string{"url": url})
}
