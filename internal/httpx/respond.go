package httpx

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/ariefcatur/go-book-marketplace/internal/session"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

type H map[string]any

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ok writes {success: true, ...body}.
func ok(w http.ResponseWriter, code int, body H) {
	if body == nil {
		body = H{}
	}
	body["success"] = true
	writeJSON(w, code, body)
}

func statusOf(err error) int {
	switch orders.Kind(err) {
	case "validation":
		return http.StatusBadRequest
	case "authorization":
		return http.StatusForbidden
	case "not_found":
		return http.StatusNotFound
	case "insufficient_stock", "invalid_transition", "conflict":
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// fail writes {success: false, message, kind}. Internal errors are logged and
// their text withheld.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	code := statusOf(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", r.URL.Path).Str("request_id", middleware.GetReqID(r.Context())).Msg("http: internal error")
		msg = "internal error"
	}
	body := H{"success": false, "message": msg, "kind": orders.Kind(err)}
	var ise *orders.InsufficientStockError
	if errors.As(err, &ise) {
		body["bookId"] = ise.BookID
		body["available"] = ise.Available
	}
	var ite *orders.InvalidTransitionError
	if errors.As(err, &ite) {
		body["currentStatus"] = ite.Current
	}
	writeJSON(w, code, body)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return orders.Validationf("request body is required")
		}
		return orders.Validationf("invalid json: %v", err)
	}
	return nil
}

// caller returns the authenticated user. Routes are mounted behind
// session.Middleware, so a missing session is a wiring bug.
func caller(r *http.Request) string {
	s, _ := session.FromContext(r.Context())
	return s.UserID
}
