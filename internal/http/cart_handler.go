package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront-cart/internal/domain"
	"github.com/fjod/storefront-cart/internal/service"
	"github.com/fjod/storefront-cart/pkg/circuitbreaker"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Carts hands out the cart of a session.
type Carts interface {
	Get(ctx context.Context, sessionID string) *service.CartStore
}

type CartHandler struct {
	carts   Carts
	timeout time.Duration
	log     *zap.Logger
}

func NewCartHandler(carts Carts, timeout time.Duration, log *zap.Logger) *CartHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &CartHandler{
		carts:   carts,
		timeout: timeout,
		log:     log,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ApplyDiscountRequestDTO struct {
	Code string `json:"code"`
}

type SetShippingRequestDTO struct {
	ShippingOption *domain.ShippingOption `json:"shippingOption"`
}

type ToggleResponseDTO struct {
	IsOpen bool `json:"isOpen"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func (h *CartHandler) cart(r *http.Request) *service.CartStore {
	return h.carts.Get(r.Context(), getSessionID(r.Context()))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.cart(r).View())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !h.decodeBody(w, r, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		h.respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity <= 0 {
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be positive")
		return
	}

	cart := h.cart(r)
	if _, err := cart.AddItem(ctx, req.ProductID, req.Quantity, req.VariantID); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, cart.View())
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !h.decodeBody(w, r, &req) {
		return
	}

	cart := h.cart(r)
	if err := cart.UpdateQuantity(ctx, chi.URLParam(r, "item_id"), req.Quantity); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart := h.cart(r)
	if err := cart.RemoveItem(ctx, chi.URLParam(r, "item_id")); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart := h.cart(r)
	if err := cart.ClearCart(ctx); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ApplyDiscountRequestDTO
	if !h.decodeBody(w, r, &req) {
		return
	}

	cart := h.cart(r)
	if !cart.ApplyDiscountCode(ctx, req.Code) {
		h.respondError(w, http.StatusUnprocessableEntity, "discount_rejected", cart.LastError())
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	cart := h.cart(r)
	if err := cart.RemoveDiscount(ctx, chi.URLParam(r, "code")); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) SetShipping(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req SetShippingRequestDTO
	if !h.decodeBody(w, r, &req) {
		return
	}
	if opt := req.ShippingOption; opt != nil {
		if opt.ID == "" {
			h.respondError(w, http.StatusBadRequest, "invalid_shipping_option", "shipping option id is required")
			return
		}
		if opt.Cost.IsNegative() {
			h.respondError(w, http.StatusBadRequest, "invalid_shipping_option", "shipping cost must not be negative")
			return
		}
	}

	cart := h.cart(r)
	if err := cart.SetShippingOption(ctx, req.ShippingOption); err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, cart.View())
}

func (h *CartHandler) OpenCart(w http.ResponseWriter, r *http.Request) {
	cart := h.cart(r)
	cart.OpenCart()
	h.respondJSON(w, http.StatusOK, ToggleResponseDTO{IsOpen: cart.IsOpen()})
}

func (h *CartHandler) CloseCart(w http.ResponseWriter, r *http.Request) {
	cart := h.cart(r)
	cart.CloseCart()
	h.respondJSON(w, http.StatusOK, ToggleResponseDTO{IsOpen: cart.IsOpen()})
}

func (h *CartHandler) ToggleCart(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, ToggleResponseDTO{IsOpen: h.cart(r).ToggleCart()})
}

func (h *CartHandler) BeginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	summary, err := h.cart(r).BeginCheckout(ctx)
	if errors.Is(err, domain.ErrCheckoutBlocked) {
		h.respondJSON(w, http.StatusConflict, summary)
		return
	}
	if err != nil {
		h.handleCartError(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, summary)
}

func (h *CartHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (h *CartHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error("failed to encode response", zap.Error(err))
	}
}

func (h *CartHandler) respondError(w http.ResponseWriter, status int, code, message string) {
	h.respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func (h *CartHandler) handleCartError(w http.ResponseWriter, r *http.Request, err error) {
	var stockErr *domain.StockError
	switch {
	case errors.As(err, &stockErr):
		h.respondJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "quantity exceeds available stock",
			Code:    "quantity_exceeds_stock",
			Details: stockErr.Error(),
		})
	case errors.Is(err, domain.ErrInvalidQuantity):
		h.respondError(w, http.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, domain.ErrOutOfStock):
		h.respondError(w, http.StatusConflict, "out_of_stock", err.Error())
	case errors.Is(err, domain.ErrItemNotFound):
		h.respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, domain.ErrProductNotFound):
		h.respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, domain.ErrVariantNotFound):
		h.respondError(w, http.StatusNotFound, "variant_not_found", err.Error())
	case errors.Is(err, domain.ErrStoreClosed):
		h.respondError(w, http.StatusServiceUnavailable, "cart_unavailable", "cart is being unloaded, retry")
	case errors.Is(err, circuitbreaker.ErrOpen):
		h.respondError(w, http.StatusServiceUnavailable, "service_unavailable", "catalog temporarily unavailable")
	case errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "timeout", "catalog lookup timed out")
	default:
		h.log.Error("cart operation failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
