package cart

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/discount"
	"github.com/noah-isme/toko-checkout/internal/pricing"
	"github.com/noah-isme/toko-checkout/internal/tax"
	"github.com/noah-isme/toko-checkout/internal/tenant"
)

// Handler wires cart services to HTTP.
type Handler struct {
	Svc *Service
}

// Routes registers the cart endpoints under /v1/carts/{customer}.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.View)
	r.Delete("/", h.Clear)
	r.Post("/items", h.AddItem)
	r.Patch("/items/{itemID}", h.UpdateItem)
	r.Delete("/items/{itemID}", h.RemoveItem)
	r.Post("/items/{itemID}/price", h.ApproveItemPrice)
	r.Post("/discount", h.ApproveDiscount)
	r.Delete("/discount", h.RemoveDiscount)
	r.Post("/volume-offer", h.OfferVolume)
	r.Post("/volume-offer/accept", h.AcceptVolume)
	r.Put("/shipping-state", h.SetShippingState)
}

type addItemRequest struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	Qty       int    `json:"qty" validate:"gte=1"`
}

type updateItemRequest struct {
	Qty int `json:"qty" validate:"gte=1"`
}

type priceRequest struct {
	Price decimal.Decimal `json:"price"`
}

type percentRequest struct {
	Percent decimal.Decimal `json:"percent"`
}

type volumeRequest struct {
	Mode          string           `json:"mode" validate:"omitempty,oneof=min max custom"`
	CustomPercent *decimal.Decimal `json:"customPercent"`
}

type shippingStateRequest struct {
	State string `json:"state" validate:"required,max=64"`
}

// View returns the priced cart and clears stale overrides.
func (h *Handler) View(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	res, err := h.Svc.View(r.Context(), tenantID, customer)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// Clear empties the customer's cart.
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Clear(r.Context(), tenantID, customer); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddItem adds or increments a cart line item.
func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	var payload addItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	c, err := h.Svc.AddItem(r.Context(), tenantID, customer, uuid.MustParse(payload.ProductID), payload.Qty)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// UpdateItem changes a line quantity.
func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	var payload updateItemRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.UpdateQty(r.Context(), tenantID, customer, itemID, payload.Qty); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RemoveItem deletes a line.
func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveItem(r.Context(), tenantID, customer, itemID); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveItemPrice stores a negotiated unit price for a line.
func (h *Handler) ApproveItemPrice(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	itemID, ok := itemParam(w, r)
	if !ok {
		return
	}
	var payload priceRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.ApproveItemPrice(r.Context(), tenantID, customer, itemID, payload.Price); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ApproveDiscount stores a negotiated order-level percentage.
func (h *Handler) ApproveDiscount(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	var payload percentRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	approved, err := h.Svc.ApproveDiscount(r.Context(), tenantID, customer, payload.Percent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": approved})
}

// RemoveDiscount drops the approved order-level discount.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	if err := h.Svc.RemoveDiscount(r.Context(), tenantID, customer); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OfferVolume previews the volume discount the cart qualifies for.
func (h *Handler) OfferVolume(w http.ResponseWriter, r *http.Request) {
	h.volume(w, r, false)
}

// AcceptVolume stores the volume offer as the cart's approved discount.
func (h *Handler) AcceptVolume(w http.ResponseWriter, r *http.Request) {
	h.volume(w, r, true)
}

func (h *Handler) volume(w http.ResponseWriter, r *http.Request, accept bool) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	var payload volumeRequest
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &payload); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	mode := discount.ParseMode(payload.Mode)
	if accept {
		approved, err := h.Svc.AcceptVolumeOffer(r.Context(), tenantID, customer, mode, payload.CustomPercent)
		if err != nil {
			h.writeError(w, err)
			return
		}
		common.JSON(w, http.StatusOK, map[string]any{"data": approved})
		return
	}
	decision, err := h.Svc.OfferVolumeDiscount(r.Context(), tenantID, customer, mode, payload.CustomPercent)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": decision})
}

// SetShippingState records the buyer's state for tax purposes.
func (h *Handler) SetShippingState(w http.ResponseWriter, r *http.Request) {
	tenantID, customer, ok := h.scope(w, r)
	if !ok {
		return
	}
	var payload shippingStateRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.SetShippingState(r.Context(), tenantID, customer, payload.State); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type snapshotLine struct {
	ItemID           string           `json:"itemId" validate:"omitempty,uuid"`
	ProductID        string           `json:"productId" validate:"required,uuid"`
	Name             string           `json:"name"`
	CatalogPrice     decimal.Decimal  `json:"catalogPrice"`
	Quantity         int              `json:"quantity"`
	PriceOverride    *decimal.Decimal `json:"priceOverride"`
	OverrideApproved bool             `json:"overrideApproved"`
}

type previewRequest struct {
	Items            []snapshotLine     `json:"items" validate:"dive"`
	ReturningPrices  map[string]string  `json:"returningPrices"`
	ApprovedDiscount *discount.Approved `json:"approvedDiscount"`
	AutoVolume       bool               `json:"autoVolumeDiscount"`
	VolumeMode       string             `json:"volumeMode" validate:"omitempty,oneof=min max custom"`
	CustomPercent    *decimal.Decimal   `json:"customPercent"`
	DiscountAmount   decimal.Decimal    `json:"discountAmount"`
	RoundTotals      *bool              `json:"roundTotals"`
	CustomerState    string             `json:"customerState"`
}

// Preview prices a caller-supplied cart snapshot with the tenant's
// configuration. Nothing is read from or written to the cart store.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.IDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant could not be resolved", nil)
		return
	}
	var payload previewRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	lines := make([]pricing.LineInput, 0, len(payload.Items))
	for _, it := range payload.Items {
		itemID := uuid.Nil
		if it.ItemID != "" {
			itemID = uuid.MustParse(it.ItemID)
		}
		lines = append(lines, pricing.LineInput{
			ItemID: itemID,
			Product: pricing.Product{
				ID:           uuid.MustParse(it.ProductID),
				Name:         it.Name,
				CatalogPrice: it.CatalogPrice,
			},
			Quantity:         it.Quantity,
			Override:         it.PriceOverride,
			OverrideApproved: it.OverrideApproved,
		})
	}
	opts := pricing.Options{
		ApprovedDiscount:   payload.ApprovedDiscount,
		AutoVolumeDiscount: payload.AutoVolume,
		VolumeMode:         discount.ParseMode(payload.VolumeMode),
		CustomPercent:      payload.CustomPercent,
		DiscountAmount:     payload.DiscountAmount,
		RoundTotals:        h.Svc.RoundTotals,
		CustomerState:      strings.ToUpper(strings.TrimSpace(payload.CustomerState)),
	}
	if payload.RoundTotals != nil {
		opts.RoundTotals = *payload.RoundTotals
	}
	if len(payload.ReturningPrices) > 0 {
		opts.Customer.Returning = true
		opts.Customer.LastPrices = make(map[uuid.UUID]decimal.Decimal, len(payload.ReturningPrices))
		for productID, price := range payload.ReturningPrices {
			id, perr := uuid.Parse(productID)
			if perr != nil {
				continue
			}
			if d, derr := decimal.NewFromString(price); derr == nil {
				opts.Customer.LastPrices[id] = d
			}
		}
	}
	if h.Svc.Settings != nil {
		settings, err := h.Svc.Settings.Settings(r.Context(), tenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		opts.Slabs = settings.Slabs
		opts.Shipping = settings.Shipping
		opts.Tax = settings.Tax
		opts.Customer.CatalogOnly = settings.CatalogOnlyForNewCustomers && !opts.Customer.Returning
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pricing.Compute(tenantID, lines, opts)})
}

// TaxInclusive derives the pre-tax base from a tax-inclusive total.
func (h *Handler) TaxInclusive(w http.ResponseWriter, r *http.Request) {
	tenantID, err := tenant.IDFromContext(r.Context())
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "TENANT_REQUIRED", "tenant could not be resolved", nil)
		return
	}
	total, err := decimal.NewFromString(strings.TrimSpace(r.URL.Query().Get("total")))
	if err != nil || total.Sign() < 0 {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "total must be a non-negative decimal", nil)
		return
	}
	var cfg *tax.Config
	if h.Svc.Settings != nil {
		settings, err := h.Svc.Settings.Settings(r.Context(), tenantID)
		if err != nil {
			h.writeError(w, err)
			return
		}
		cfg = settings.Tax
	}
	rate := tax.EffectiveRate(cfg)
	base := tax.DeriveBaseFromGrandTotal(total, rate)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"total": total,
			"rate":  rate,
			"base":  base,
			"tax":   total.Sub(base),
		},
	})
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (uuid.UUID, string, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "cart service not configured", nil)
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

func itemParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "itemID"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid item id", nil)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	case errors.Is(err, ErrDiscountConflict):
		common.JSONError(w, http.StatusConflict, "DISCOUNT_CONFLICT", err.Error(), nil)
	default:
		common.WriteError(w, err)
	}
}
