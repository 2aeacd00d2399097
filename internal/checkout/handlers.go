package checkout

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Handler exposes checkout over HTTP.
type Handler struct {
	Svc *Service
}

// Checkout places the order for POST /v1/checkout/{customer}.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	tenantID, err := tenant.IDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant could not be resolved", nil)
		return
	}
	customer := strings.TrimSpace(chi.URLParam(r, "customer"))
	if customer == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "customer is required", nil)
		return
	}
	out, err := h.Svc.Checkout(r.Context(), tenantID, customer)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": out})
}
