package v1

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"storefront-backend/internal/usecase"
	"storefront-backend/pkg/utils"
)

type PublicConfigService interface {
	PublicConfig(ctx context.Context) (*usecase.PublicShippingConfig, error)
}

type ConfigHandler struct {
	shippingUC PublicConfigService
	maxAge     time.Duration
}

func NewConfigHandler(uc PublicConfigService, maxAge time.Duration) *ConfigHandler {
	return &ConfigHandler{shippingUC: uc, maxAge: maxAge}
}

// GET /api/v1/config/shipping
func (h *ConfigHandler) GetShippingConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.shippingUC.PublicConfig(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(h.maxAge.Seconds())))
	utils.WriteJSON(w, http.StatusOK, cfg)
}
