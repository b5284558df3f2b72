package handler

import (
	"context"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/marketplace-checkout/internal/domain/checkout"
	"github.com/xenking/marketplace-checkout/internal/domain/promo"
	"github.com/xenking/marketplace-checkout/internal/marketplace"
)

// badRequestError is a request that could not be decoded.
type badRequestError struct {
	msg string
	err error
}

func (e *badRequestError) Error() string {
	if e.err == nil {
		return e.msg
	}
	return e.msg + ": " + e.err.Error()
}

func (e *badRequestError) Unwrap() error { return e.err }

func badRequest(msg string, err error) error {
	return &badRequestError{msg: msg, err: err}
}

var badInput = []error{
	checkout.ErrNoItems,
	checkout.ErrAddressRequired,
	checkout.ErrPaymentMethodRequired,
	checkout.ErrShippingMethodRequired,
	checkout.ErrInvalidPaymentMethod,
	checkout.ErrUnknownShippingMethod,
	checkout.ErrUnknownAddress,
	checkout.ErrUnknownVoucher,
	promo.ErrEmptyCode,
}

// statusOf maps a service error to a response status and the message shown
// to the caller.
func statusOf(err error) (int, string) {
	var (
		br      *badRequestError
		verr    *checkout.ValidationError
		gateway *checkout.GatewayError
		api     *marketplace.APIError
	)
	switch {
	case errors.As(err, &br), errors.As(err, &verr):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, checkout.ErrNoOwner):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, checkout.ErrSessionNotFound), errors.Is(err, checkout.ErrOrderNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, checkout.ErrSessionClosed),
		errors.Is(err, checkout.ErrNotAwaitingPayment),
		errors.Is(err, checkout.ErrPaymentPending),
		errors.Is(err, checkout.ErrSessionBusy),
		errors.Is(err, checkout.ErrDiscountsLocked),
		errors.Is(err, checkout.ErrHoldLost),
		errors.Is(err, checkout.ErrOrderOwnerMismatch):
		return http.StatusConflict, err.Error()
	case errors.Is(err, promo.ErrUnknownCode):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &gateway):
		return http.StatusBadGateway, "payment gateway unavailable, try again or pick another payment method"
	case errors.As(err, &api):
		return http.StatusBadGateway, api.Message
	}
	for _, target := range badInput {
		if errors.Is(err, target) {
			return http.StatusBadRequest, target.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

// promoStatusOf is statusOf for promo code validation, where a client error
// from the marketplace means the code was rejected.
func promoStatusOf(err error) (int, string) {
	var api *marketplace.APIError
	if errors.As(err, &api) && api.Status >= 400 && api.Status < 500 {
		return http.StatusUnprocessableEntity, api.Message
	}
	return statusOf(err)
}

func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error) {
	h.failWith(ctx, w, err, statusOf)
}

func (h *Handler) failWith(ctx context.Context, w http.ResponseWriter, err error, mapper func(error) (int, string)) {
	status, msg := mapper(err)
	lg := zctx.From(ctx)
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr)
		return
	}
	writeError(w, status, msg)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(status)
	e.FieldStart("message")
	e.Str(msg)
	e.ObjEnd()
	writeJSON(w, status, e.Bytes())
}

func writeValidationError(w http.ResponseWriter, verr *checkout.ValidationError) {
	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("code")
	e.Int(http.StatusBadRequest)
	e.FieldStart("message")
	e.Str(verr.Error())
	e.FieldStart("fields")
	encodeStrings(&e, verr.Fields)
	e.ObjEnd()
	writeJSON(w, http.StatusBadRequest, e.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
