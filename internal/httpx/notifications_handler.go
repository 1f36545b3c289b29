package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-book-marketplace/internal/notify"
	"github.com/go-chi/chi/v5"
)

type NotificationsHandler struct {
	Notify *notify.Emitter
}

func (h *NotificationsHandler) Register(r chi.Router) {
	r.Get("/notifications", h.list)
	r.Patch("/notifications/read-all", h.readAll)
	r.Patch("/notifications/{id}/read", h.read)
}

func (h *NotificationsHandler) list(w http.ResponseWriter, r *http.Request) {
	uid := caller(r)
	ns, err := h.Notify.List(r.Context(), uid)
	if err != nil {
		fail(w, r, err)
		return
	}
	unread, err := h.Notify.UnreadCount(r.Context(), uid)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"notifications": ns, "unreadCount": unread})
}

func (h *NotificationsHandler) read(w http.ResponseWriter, r *http.Request) {
	if err := h.Notify.MarkRead(r.Context(), caller(r), chi.URLParam(r, "id")); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *NotificationsHandler) readAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.Notify.MarkAllRead(r.Context(), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"updated": n})
}
