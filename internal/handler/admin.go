package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mmeshcher/urbanpos/internal/model"
	"github.com/mmeshcher/urbanpos/internal/service"
)

// ListSales возвращает историю продаж. Параметры: q (поиск) и since (RFC 3339 или YYYY-MM-DD).
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	filter := service.SalesFilter{Query: r.URL.Query().Get("q")}

	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := parseSince(raw)
		if err != nil {
			badRequest(w, "invalid since parameter")
			return
		}
		filter.Since = since
	}

	sales, err := h.service.ListSales(r.Context(), filter)
	if err != nil {
		h.writeError(w, err, "list sales")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(sales))
}

func parseSince(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, raw)
}

// GetSale возвращает продажу по номеру транзакции.
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.service.GetSale(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err, "get sale")
		return
	}
	writeJSON(w, http.StatusOK, sale)
}

// Dashboard возвращает сводные показатели.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.Dashboard(r.Context())
	if err != nil {
		h.writeError(w, err, "dashboard")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// GetSettings возвращает настройки магазина.
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.service.GetSettings(r.Context())
	if err != nil {
		h.writeError(w, err, "get settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// SaveSettings сохраняет настройки магазина.
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req model.Settings
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	settings, err := h.service.SaveSettings(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "save settings")
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

type syncRatesResponse struct {
	Updated int `json:"updated"`
}

// SyncRates запускает синхронизацию курсов валют.
func (h *Handler) SyncRates(w http.ResponseWriter, r *http.Request) {
	n, err := h.service.SyncRates(r.Context())
	if err != nil {
		h.writeError(w, err, "sync rates")
		return
	}
	writeJSON(w, http.StatusOK, syncRatesResponse{Updated: n})
}

// ListAccessKeys возвращает ключи доступа.
func (h *Handler) ListAccessKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListAccessKeys(r.Context())
	if err != nil {
		h.writeError(w, err, "list access keys")
		return
	}
	writeJSON(w, http.StatusOK, orEmpty(keys))
}

// CreateAccessKey выдаёт ключ доступа.
func (h *Handler) CreateAccessKey(w http.ResponseWriter, r *http.Request) {
	var req model.AccessKey
	if err := decodeJSON(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	k, err := h.service.CreateAccessKey(r.Context(), req)
	if err != nil {
		h.writeError(w, err, "create access key")
		return
	}
	writeJSON(w, http.StatusCreated, k)
}

// DeleteAccessKey отзывает ключ доступа.
func (h *Handler) DeleteAccessKey(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteAccessKey(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err, "delete access key")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
