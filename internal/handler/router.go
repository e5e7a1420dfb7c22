package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	custommiddleware "github.com/mmeshcher/urbanpos/internal/middleware"
	"github.com/mmeshcher/urbanpos/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса UrbanPOS.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.Login)
		r.Delete("/session", h.Logout)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Get("/session", h.CurrentSession)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PagePOS, model.PageInventory))

				r.Get("/products", h.ListProducts)
				r.Get("/products/{id}", h.GetProduct)
				r.Get("/categories", h.ListCategories)
			})

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PageInventory))

				r.Post("/products", h.CreateProduct)
				r.Put("/products/{id}", h.UpdateProduct)
				r.Delete("/products/{id}", h.DeleteProduct)

				r.Post("/categories", h.CreateCategory)
				r.Delete("/categories/{id}", h.DeleteCategory)
			})

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PagePOS))

				r.Post("/checkout/coupon", h.ApplyCoupon)
				r.Post("/checkout/quote", h.Quote)
				r.Post("/checkout/settle", h.Settle)
				r.Get("/rates", h.ListRates)
			})

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PageCoupons))

				r.Get("/coupons", h.ListCoupons)
				r.Post("/coupons", h.CreateCoupon)
				r.Put("/coupons/{id}", h.UpdateCoupon)
				r.Delete("/coupons/{id}", h.DeleteCoupon)
			})

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PageSales))

				r.Get("/sales", h.ListSales)
				r.Get("/sales/{id}", h.GetSale)
			})

			r.With(custommiddleware.RequirePermission(model.PageDashboard)).Get("/dashboard", h.Dashboard)

			r.Group(func(r chi.Router) {
				r.Use(custommiddleware.RequirePermission(model.PageSettings))

				r.Get("/settings", h.GetSettings)
				r.Put("/settings", h.SaveSettings)
				r.Post("/settings/rates/sync", h.SyncRates)
				r.Get("/settings/keys", h.ListAccessKeys)
				r.Post("/settings/keys", h.CreateAccessKey)
				r.Delete("/settings/keys/{id}", h.DeleteAccessKey)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
