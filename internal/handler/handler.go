// Package handler содержит HTTP-обработчики API сервиса UrbanPOS.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/urbanpos/internal/cart"
	"github.com/mmeshcher/urbanpos/internal/checkout"
	"github.com/mmeshcher/urbanpos/internal/coupon"
	"github.com/mmeshcher/urbanpos/internal/middleware"
	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/repository"
	"github.com/mmeshcher/urbanpos/internal/service"
	"github.com/mmeshcher/urbanpos/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	Login(ctx context.Context, key string) (*model.Session, error)

	ListProducts(ctx context.Context) ([]model.Product, error)
	GetProduct(ctx context.Context, id string) (*model.Product, error)
	CreateProduct(ctx context.Context, p model.Product) (*model.Product, error)
	UpdateProduct(ctx context.Context, id string, p model.Product) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateCategory(ctx context.Context, c model.Category) (*model.Category, error)
	DeleteCategory(ctx context.Context, id string) error

	ListCoupons(ctx context.Context) ([]service.CouponView, error)
	CreateCoupon(ctx context.Context, c model.Coupon) (*model.Coupon, error)
	UpdateCoupon(ctx context.Context, id string, c model.Coupon) (*model.Coupon, error)
	DeleteCoupon(ctx context.Context, id string) error

	ApplyCoupon(ctx context.Context, code string) (*model.Coupon, error)
	Quote(ctx context.Context, order service.Order) (*checkout.Quote, error)
	Settle(ctx context.Context, session model.Session, order service.Order) (*checkout.Receipt, error)
	ListRates(ctx context.Context) ([]model.ExchangeRate, error)

	ListSales(ctx context.Context, filter service.SalesFilter) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	Dashboard(ctx context.Context) (*model.DashboardSummary, error)

	GetSettings(ctx context.Context) (*model.Settings, error)
	SaveSettings(ctx context.Context, s model.Settings) (*model.Settings, error)
	SyncRates(ctx context.Context) (int, error)
	ListAccessKeys(ctx context.Context) ([]model.AccessKey, error)
	CreateAccessKey(ctx context.Context, k model.AccessKey) (*model.AccessKey, error)
	DeleteAccessKey(ctx context.Context, id string) error
}

// Handler реализует HTTP-обработчики API сервиса UrbanPOS.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// writeError переводит доменную ошибку в HTTP-статус.
func (h *Handler) writeError(w http.ResponseWriter, err error, op string) {
	switch {
	case errors.Is(err, checkout.ErrCommitFailed):
		writeJSON(w, http.StatusConflict, errorResponse{Error: checkout.ErrCommitFailed.Error(), Reason: commitReason(err)})
	case coupon.IsRejection(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Reason: coupon.Reason(err)})
	case errors.Is(err, validation.ErrInvalid),
		errors.Is(err, checkout.ErrEmptyCart),
		errors.Is(err, cart.ErrInvalidQuantity):
		badRequest(w, err.Error())
	case errors.Is(err, service.ErrInvalidCredentials):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrCategoryNotFound),
		errors.Is(err, repository.ErrCouponNotFound),
		errors.Is(err, repository.ErrSaleNotFound),
		errors.Is(err, repository.ErrAccessKeyNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, cart.ErrOutOfStock),
		errors.Is(err, cart.ErrStockLimit),
		errors.Is(err, repository.ErrCategoryExists),
		errors.Is(err, repository.ErrCouponExists),
		errors.Is(err, repository.ErrAccessKeyExists):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
	case errors.Is(err, service.ErrRateSyncDisabled):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(op+" error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
	}
}

func commitReason(err error) string {
	if reason := coupon.Reason(err); reason != "" {
		return reason
	}
	switch {
	case errors.Is(err, repository.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, repository.ErrCouponLimitExceeded):
		return "limit_reached"
	case errors.Is(err, repository.ErrProductNotFound):
		return "product_not_found"
	}
	return ""
}

type loginRequest struct {
	Key string `json:"key"`
}

// Login проверяет ключ доступа и устанавливает cookie сессии.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if req.Key == "" {
		badRequest(w, "key is required")
		return
	}

	session, err := h.service.Login(r.Context(), req.Key)
	if err != nil {
		h.writeError(w, err, "login")
		return
	}

	if err := h.authMiddleware.SetSessionCookie(w, *session); err != nil {
		h.writeError(w, err, "set session cookie")
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// Logout удаляет cookie сессии.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authMiddleware.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// CurrentSession возвращает сессию текущего кассира.
func (h *Handler) CurrentSession(w http.ResponseWriter, r *http.Request) {
	session, ok := middleware.GetSessionFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: http.StatusText(http.StatusUnauthorized)})
		return
	}
	writeJSON(w, http.StatusOK, session)
}
