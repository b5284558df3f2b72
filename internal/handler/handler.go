// Package handler exposes the checkout service over HTTP.
package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/marketplace"
)

// Handler serves the checkout API.
type Handler struct {
	svc    *checkout.Service
	hasher *checkout.OwnerHasher
}

// NewHandler returns a Handler over svc. Bearer tokens are hashed with hasher
// to identify the session owner.
func NewHandler(svc *checkout.Service, hasher *checkout.OwnerHasher) *Handler {
	return &Handler{svc: svc, hasher: hasher}
}

// Routes returns the API router, meant to be mounted under /api/v1.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(h.authenticate)

	r.Route("/checkout", func(r chi.Router) {
		r.Get("/shipping-methods", h.shippingMethods)
		r.Get("/orders/{orderID}", h.getOrder)

		r.Post("/sessions", h.startSession)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.getSession)
			r.Put("/address", h.setAddress)
			r.Put("/payment-method", h.setPaymentMethod)
			r.Put("/shipping-method", h.setShippingMethod)
			r.Get("/vouchers", h.listVouchers)
			r.Post("/vouchers/{voucherID}/toggle", h.toggleVoucher)
			r.Delete("/discounts", h.clearDiscounts)
			r.Post("/promo-code", h.applyPromoCode)
			r.Delete("/promo-code", h.removePromoCode)
			r.Get("/totals", h.totals)
			r.Post("/submit", h.submit)
			r.Post("/payment-result", h.paymentResult)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// authenticate requires a bearer token. The token is forwarded to the
// marketplace and its digest identifies the session owner.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="checkout"`)
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		ctx := marketplace.WithToken(r.Context(), token)
		ctx = checkout.WithOwner(ctx, h.hasher.Hash(token))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
