package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/urbanpos/internal/model"
)

// ListProducts возвращает каталог товаров.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.ListProducts(r.Context())
	if err != nil {
		h.writeError(w, err, "list products")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(products))
}

// GetProduct возвращает товар по идентификатору.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// CreateProduct добавляет товар.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	p, err := h.service.CreateProduct(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "create product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// UpdateProduct заменяет карточку товара.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req model.Product
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	p, err := h.service.UpdateProduct(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err, "update product")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// DeleteProduct удаляет товар.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "delete product")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCategories возвращает категории.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.service.ListCategories(r.Context())
	if err != nil {
		h.writeError(w, err, "list categories")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(categories))
}

// CreateCategory добавляет категорию.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req model.Category
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	c, err := h.service.CreateCategory(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "create category")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// DeleteCategory удаляет категорию.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "delete category")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListCoupons возвращает купоны с их состоянием.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.service.ListCoupons(r.Context())
	if err != nil {
		h.writeError(w, err, "list coupons")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(coupons))
}

// CreateCoupon создаёт купон.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req model.Coupon
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	c, err := h.service.CreateCoupon(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "create coupon")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// UpdateCoupon меняет параметры купона.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req model.Coupon
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	c, err := h.service.UpdateCoupon(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		h.writeError(w, err, "update coupon")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// DeleteCoupon удаляет купон.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCoupon(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "delete coupon")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
