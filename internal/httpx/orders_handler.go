package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-book-marketplace/internal/checkout"
	"github.com/ariefcatur/go-book-marketplace/internal/lifecycle"
	"github.com/ariefcatur/go-book-marketplace/internal/orders"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type OrdersHandler struct {
	Store     orders.Store
	Checkout  *checkout.Orchestrator
	Lifecycle *lifecycle.Machine
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
	r.Get("/checkout/flags", h.flags)

	r.Post("/orders", h.place)
	r.Get("/orders/mine", h.mine)
	r.Get("/orders/seller", h.seller)
	r.Get("/orders/{id}", h.get)
	r.Patch("/orders/{id}/status", h.updateStatus)
	r.Delete("/orders/{id}", h.cancel)
}

type placeReq struct {
	BookID        string `json:"bookId"`
	Quantity      int    `json:"quantity"`
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod"`
	TotalAmount   *int64 `json:"totalAmount"`
}

func (h *OrdersHandler) place(w http.ResponseWriter, r *http.Request) {
	var req placeReq
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()

	o, err := h.Checkout.PlaceOrder(ctx, checkout.PlaceRequest{
		BuyerID:       caller(r),
		BookID:        req.BookID,
		Quantity:      req.Quantity,
		AddressID:     req.AddressID,
		PaymentMethod: req.PaymentMethod,
		ExpectedTotal: req.TotalAmount,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusCreated, H{"order": o})
}

type checkoutReq struct {
	AddressID     string        `json:"addressId"`
	PaymentMethod string        `json:"paymentMethod"`
	Mode          checkout.Mode `json:"mode"`
}

// checkout answers 201 when every line became an order, 207 on a partial
// result and 409 when no line did.
func (h *OrdersHandler) checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutReq
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	ctx := r.Context()

	res, err := h.Checkout.Checkout(ctx, checkout.Request{
		BuyerID:        caller(r),
		AddressID:      req.AddressID,
		PaymentMethod:  req.PaymentMethod,
		Mode:           req.Mode,
		IdempotencyKey: strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	switch res.Status {
	case checkout.ResultCompleted:
		ok(w, http.StatusCreated, H{"checkout": res})
	case checkout.ResultPartial:
		ok(w, http.StatusMultiStatus, H{"checkout": res})
	default:
		writeJSON(w, http.StatusConflict, H{"success": false, "message": "no cart line could be ordered", "checkout": res})
	}
}

func (h *OrdersHandler) flags(w http.ResponseWriter, r *http.Request) {
	fs, err := h.Store.ListCheckoutFlags(r.Context(), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"flags": fs})
}

func (h *OrdersHandler) mine(w http.ResponseWriter, r *http.Request) {
	list, err := h.Store.ListOrdersByBuyer(r.Context(), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"orders": list})
}

func (h *OrdersHandler) seller(w http.ResponseWriter, r *http.Request) {
	status := orders.Status(r.URL.Query().Get("status"))
	if status != "" && !status.Valid() {
		fail(w, r, orders.Validationf("unknown status %q", status))
		return
	}
	list, err := h.Store.ListOrdersBySeller(r.Context(), caller(r), status)
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"orders": list})
}

func (h *OrdersHandler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Store.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, err)
		return
	}
	if _, party := lifecycle.ActorOf(o, caller(r)); !party {
		fail(w, r, orders.NotFoundf("order %s", o.ID))
		return
	}
	ok(w, http.StatusOK, H{"order": o})
}

type statusReq struct {
	Status orders.Status `json:"status"`
	From   orders.Status `json:"from"`
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusReq
	if err := decode(w, r, &req); err != nil {
		fail(w, r, err)
		return
	}
	res, err := h.Lifecycle.Transition(r.Context(), lifecycle.Request{
		OrderID: chi.URLParam(r, "id"),
		ActorID: caller(r),
		To:      req.Status,
		From:    req.From,
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"order": res.Order, "from": res.From})
}

// cancel is the pending-order delete: a transition to cancelled, never a row delete.
func (h *OrdersHandler) cancel(w http.ResponseWriter, r *http.Request) {
	res, err := h.Lifecycle.Cancel(r.Context(), chi.URLParam(r, "id"), caller(r))
	if err != nil {
		fail(w, r, err)
		return
	}
	ok(w, http.StatusOK, H{"order": res.Order, "released": res.Released})
}
