package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/session"
)

// checkoutOp runs op against the session's checkout and writes the resulting
// view. op errors are returned after the session is persisted.
func (h *Handler) checkoutOp(
	w http.ResponseWriter,
	r *http.Request,
	op func(s *session.Session) error,
) error {
	var view checkoutView
	err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		if err := op(s); err != nil {
			return err
		}
		view = h.view(s)
		return nil
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

// withCart wraps op with the entry guard: outside the confirmation step a
// checkout transition needs a non-empty cart.
func withCart(op func(s *session.Session) error) func(s *session.Session) error {
	return func(s *session.Session) error {
		if _, err := s.Checkout.Enter(s.Cart.IsEmpty()); err != nil {
			return err
		}
		return op(s)
	}
}

func (h *Handler) view(s *session.Session) checkoutView {
	return checkoutView{
		state:     s.Checkout.State(),
		cart:      s.Cart.Snapshot(),
		pricing:   h.pricing,
		expiresAt: s.Checkout.ExpiresAt(),
	}
}

// getCheckout enters the checkout. With an empty cart the body carries
// redirect: "catalog" instead of an error so the client can navigate away.
func (h *Handler) getCheckout(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var view checkoutView
	err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		_, err := s.Checkout.Enter(s.Cart.IsEmpty())
		view = h.view(s)
		if errors.Is(err, checkout.ErrCartEmpty) {
			view.redirect = "catalog"
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, view)
	return nil
}

func (h *Handler) submitShipping(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	info, err := decodeShipping(r)
	if err != nil {
		return err
	}
	return h.checkoutOp(w, r, withCart(func(s *session.Session) error {
		_, err := s.Checkout.SubmitShipping(info)
		return err
	}))
}

func (h *Handler) submitPayment(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	info, err := decodePayment(r)
	if err != nil {
		return err
	}
	return h.checkoutOp(w, r, withCart(func(s *session.Session) error {
		_, err := s.Checkout.SubmitPayment(info)
		return err
	}))
}

func (h *Handler) checkoutBack(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	return h.checkoutOp(w, r, withCart(func(s *session.Session) error {
		_, err := s.Checkout.Back()
		return err
	}))
}

func (h *Handler) checkoutEdit(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	step, err := decodeStep(r)
	if err != nil {
		return err
	}
	return h.checkoutOp(w, r, withCart(func(s *session.Session) error {
		_, err := s.Checkout.Edit(step)
		return err
	}))
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	err := h.checkoutOp(w, r, func(s *session.Session) error {
		st, err := s.Checkout.PlaceOrder(r.Context(), s.Cart, h.placer)
		if err != nil {
			return classifyOrderError(err)
		}
		zctx.From(r.Context()).Info("Order placed",
			zap.String("order_id", st.Receipt.OrderID),
			zap.String("total", st.Receipt.Total.StringFixed(2)),
		)
		return nil
	})
	h.metrics.order(r.Context(), err)
	return err
}

// classifyOrderError marks order backend failures that are not caused by the
// request so they surface as 502.
func classifyOrderError(err error) error {
	var (
		stepErr  *checkout.StepError
		iqErr    *order.InvalidQuantityError
		pnfErr   *order.ProductNotFoundError
		stockErr *order.InsufficientStockError
	)
	switch {
	case errors.As(err, &stepErr),
		errors.Is(err, checkout.ErrCartEmpty),
		errors.Is(err, order.ErrEmptyItems),
		errors.As(err, &iqErr),
		errors.As(err, &pnfErr),
		errors.As(err, &stockErr):
		return err
	default:
		return &upstreamError{err: err}
	}
}

func (h *Handler) checkoutReset(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	return h.checkoutOp(w, r, func(s *session.Session) error {
		s.Checkout.Reset()
		return nil
	})
}
