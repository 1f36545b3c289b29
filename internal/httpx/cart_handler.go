package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-book-marketplace/internal/cart"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	Cart *cart.Service
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.clear)
		r.Post("/items", h.add)
		r.Patch("/items/{bookId}", h.update)
		r.Delete("/items/{bookId}", h.remove)
	})
}

type cartItemReq struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
	Qty      int    `json:"qty"` // older clients
}

func (q cartItemReq) quantity() int {
	if q.Quantity != 0 {
		return q.Quantity
	}
	return q.Qty
}

func (h *CartHandler) get(w http.ResponseWriter, r *http.Request) {
	v, err := h.Cart.GetCart(r.Context(), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"cart": v})
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	it, err := h.Cart.AddItem(r.Context(), caller(r), req.BookID, req.quantity())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, H{"item": it})
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	var req cartItemReq
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	it, err := h.Cart.UpdateQuantity(r.Context(), caller(r), chi.URLParam(r, "bookId"), req.quantity())
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"item": it})
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.RemoveItem(r.Context(), caller(r), chi.URLParam(r, "bookId")); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	if err := h.Cart.Clear(r.Context(), caller(r)); err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, nil)
}
