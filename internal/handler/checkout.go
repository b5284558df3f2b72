package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
)

func (h *Handler) respond(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	writeJSON(w, status, e.Bytes())
}

func (h *Handler) respondSession(w http.ResponseWriter, status int, sess *checkout.Session) {
	h.respond(w, status, func(e *jx.Encoder) { encodeSession(e, sess) })
}

func sessionID(r *http.Request) string {
	return chi.URLParam(r, "sessionID")
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeStartRequest(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	sess, err := h.svc.Start(ctx, checkout.StartRequest{
		CartItemIDs: req.CartItemIDs,
		OrderID:     req.OrderID,
		Locale:      r.Header.Get("Accept-Language"),
	})
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	w.Header().Set("Location", "/api/v1/checkout/sessions/"+sess.ID)
	h.respondSession(w, http.StatusCreated, sess)
}

func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Get(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) setAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	req, err := decodeAddressRequest(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}

	var sess *checkout.Session
	if req.Address != nil {
		if req.Address.ID == "" {
			req.Address.ID = req.AddressID
		}
		sess, err = h.svc.EditAddress(ctx, sessionID(r), *req.Address)
	} else {
		sess, err = h.svc.SelectAddress(ctx, sessionID(r), req.AddressID)
	}
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) setPaymentMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := decodeStringField(r, "paymentMethod")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	method, err := checkout.ParsePaymentMethod(raw)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	sess, err := h.svc.SelectPaymentMethod(ctx, sessionID(r), method)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) setShippingMethod(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	raw, err := decodeStringField(r, "shippingMethod")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	sess, err := h.svc.SelectShippingMethod(ctx, sessionID(r), checkout.ShippingMethod(raw))
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) shippingMethods(w http.ResponseWriter, _ *http.Request) {
	tiers := h.svc.ShippingTiers()
	h.respond(w, http.StatusOK, func(e *jx.Encoder) { encodeShippingTiers(e, tiers) })
}

func (h *Handler) listVouchers(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Vouchers(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, func(e *jx.Encoder) { encodeVoucherList(e, list) })
}

func (h *Handler) toggleVoucher(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.ToggleVoucher(r.Context(), sessionID(r), chi.URLParam(r, "voucherID"))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) clearDiscounts(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.ClearDiscounts(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) applyPromoCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := decodeStringField(r, "code")
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	sess, err := h.svc.ApplyPromoCode(ctx, sessionID(r), code)
	if err != nil {
		h.failWith(ctx, w, err, promoStatusOf)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) removePromoCode(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.RemovePromoCode(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Totals(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, func(e *jx.Encoder) { encodeTotals(e, t) })
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Submit(r.Context(), sessionID(r))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, func(e *jx.Encoder) { encodeSubmitResult(e, res) })
}

func (h *Handler) paymentResult(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	res, err := decodePaymentResult(r)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	sess, err := h.svc.ConfirmPayment(ctx, sessionID(r), res)
	if err != nil {
		h.fail(ctx, w, err)
		return
	}
	h.respondSession(w, http.StatusOK, sess)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Order(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		h.fail(r.Context(), w, err)
		return
	}
	h.respond(w, http.StatusOK, func(e *jx.Encoder) { encodeOrder(e, order) })
}
