package httpx

import (
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-book-marketplace/internal/analytics"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/session"
	"github.com/go-chi/chi/v5"
)

type AnalyticsHandler struct {
	Analytics *analytics.Service
}

func (h *AnalyticsHandler) Register(r chi.Router) {
	r.Route("/analytics", func(r chi.Router) {
		r.Use(session.RequireRole(session.RoleSeller, session.RoleAdmin))
		r.Get("/seller-dashboard", h.dashboard)
		r.Get("/top-books", h.topBooks)
		r.Get("/category-stats", h.categoryStats)
	})
}

func rangeAndLimit(r *http.Request) (analytics.Range, int, error) {
	rng, err := analytics.ParseRange(r.URL.Query().Get("range"))
	if err != nil {
		return "", 0, err
	}
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return "", 0, orders.Validationf("limit must be a positive integer")
		}
	}
	return rng, limit, nil
}

func (h *AnalyticsHandler) dashboard(w http.ResponseWriter, r *http.Request) {
	rng, limit, err := rangeAndLimit(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	d, err := h.Analytics.Dashboard(r.Context(), caller(r), rng, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"dashboard": d})
}

func (h *AnalyticsHandler) topBooks(w http.ResponseWriter, r *http.Request) {
	rng, limit, err := rangeAndLimit(r)
	if err != nil {
		fail(w, r, err)
		return
	}
	books, err := h.Analytics.TopBooks(r.Context(), caller(r), rng, limit)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"books": books, "range": rng})
}

func (h *AnalyticsHandler) categoryStats(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Analytics.CategoryStats(r.Context(), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"categories": cats})
}
