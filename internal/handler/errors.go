package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

var (
	errRouteNotFound    = &apiError{status: http.StatusNotFound, message: "route not found"}
	errMethodNotAllowed = &apiError{status: http.StatusMethodNotAllowed, message: "method not allowed"}
)

// apiError is an error with a fixed HTTP status and client-facing message.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(msg string) error {
	return &apiError{status: http.StatusBadRequest, message: msg}
}

// upstreamError marks a failure of the order backend.
type upstreamError struct {
	err error
}

func (e *upstreamError) Error() string { return e.err.Error() }
func (e *upstreamError) Unwrap() error { return e.err }

// errorBody is the JSON error payload: {code, message} plus optional
// validation fields and the current checkout step.
type errorBody struct {
	status  int
	message string
	fields  map[string]string
	step    checkout.Step
}

func (b errorBody) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(b.status)
	e.FieldStart("message")
	e.Str(b.message)
	if len(b.fields) > 0 {
		e.FieldStart("fields")
		e.ObjStart()
		for k, v := range b.fields {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
	if b.step != 0 {
		e.FieldStart("step")
		e.Int(int(b.step))
	}
	e.ObjEnd()
}

// mapError converts domain errors to HTTP error responses.
func mapError(err error) errorBody {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return errorBody{status: apiErr.status, message: apiErr.message}
	}

	if errors.Is(err, product.ErrNotFound) {
		return errorBody{status: http.StatusNotFound, message: "product not found"}
	}

	var validationErr *checkout.ValidationError
	if errors.As(err, &validationErr) {
		return errorBody{
			status:  http.StatusUnprocessableEntity,
			message: "validation failed",
			fields:  validationErr.Fields,
		}
	}

	var stepErr *checkout.StepError
	if errors.As(err, &stepErr) {
		return errorBody{status: http.StatusConflict, message: stepErr.Error(), step: stepErr.Current}
	}
	if errors.Is(err, checkout.ErrCartEmpty) {
		return errorBody{status: http.StatusConflict, message: checkout.ErrCartEmpty.Error()}
	}

	for _, sentinel := range []error{cart.ErrInvalidQuantity, cart.ErrOutOfStock, order.ErrEmptyItems} {
		if errors.Is(err, sentinel) {
			return errorBody{status: http.StatusUnprocessableEntity, message: sentinel.Error()}
		}
	}

	var iqErr *order.InvalidQuantityError
	if errors.As(err, &iqErr) {
		return errorBody{status: http.StatusUnprocessableEntity, message: iqErr.Error()}
	}
	var pnfErr *order.ProductNotFoundError
	if errors.As(err, &pnfErr) {
		return errorBody{status: http.StatusUnprocessableEntity, message: pnfErr.Error()}
	}
	var stockErr *order.InsufficientStockError
	if errors.As(err, &stockErr) {
		return errorBody{status: http.StatusUnprocessableEntity, message: stockErr.Error()}
	}

	var upErr *upstreamError
	if errors.As(err, &upErr) {
		return errorBody{status: http.StatusBadGateway, message: "order could not be placed"}
	}

	return errorBody{status: http.StatusInternalServerError, message: "internal server error"}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	body := mapError(err)
	if body.status >= http.StatusInternalServerError {
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
	}
	writeJSON(w, body.status, body)
}
