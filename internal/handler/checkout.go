package handler

import (
	"net/http"

	"github.com/mmeshcher/urbanpos/internal/middleware"
	"github.com/mmeshcher/urbanpos/internal/service"
)

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon проверяет купон для текущей корзины. Использование купона не фиксируется.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	c, err := h.service.ApplyCoupon(r.Context(), req.Code)
	if err != nil {
		h.writeError(w, err, "apply coupon")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Quote рассчитывает итоги корзины.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req service.Order
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	q, err := h.service.Quote(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "quote")
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// Settle проводит продажу и возвращает чек.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: http.StatusText(http.StatusUnauthorized)})
		return
	}

	var req service.Order
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	receipt, err := h.service.Settle(r.Context(), session, req)
	if err != nil {
		h.writeError(w, err, "settle")
		return
	}
	writeJSON(w, http.StatusCreated, receipt)
}

// ListRates возвращает курсы валют для выбора валюты отображения.
func (h *Handler) ListRates(w http.ResponseWriter, r *http.Request) {
	rates, err := h.service.ListRates(r.Context())
	if err != nil {
		h.writeError(w, err, "list rates")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(rates))
}
