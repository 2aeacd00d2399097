package conversation

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Handler exposes the conversation state of a customer.
type Handler struct {
	Machine *Machine
}

type stateResponse struct {
	State   StateName `json:"state"`
	Payload State     `json:"payload"`
}

// Get returns the current state: GET /v1/conversations/{customer}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	st, err := h.Machine.Current(r.Context(), tenantID, customer)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load conversation", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": stateResponse{State: st.Name(), Payload: st}})
}

// ShippingInfo records the delivery address for the order awaiting it.
func (h *Handler) ShippingInfo(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	var payload ShippingInfo
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	st, err := h.Machine.ProvideShippingInfo(r.Context(), tenantID, customer, payload)
	if err != nil {
		if errors.Is(err, ErrIllegalTransition) {
			common.JSONError(w, http.StatusConflict, "INVALID_STATE", "no order is awaiting shipping information", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to save shipping information", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": stateResponse{State: st.Name(), Payload: st}})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	if h.Machine == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "conversation not configured", nil)
		return uuid.Nil, "", false
	}
	tenantID, err := tenant.IDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant could not be resolved", nil)
		return uuid.Nil, "", false
	}
	customer := strings.TrimSpace(chi.URLParam(r, "customer"))
	if customer == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "customer is required", nil)
		return uuid.Nil, "", false
	}
	return tenantID, customer, true
}
