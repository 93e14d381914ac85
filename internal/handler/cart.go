package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/julienschmidt/httprouter"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/session"
)

func (h *Handler) writeCart(w http.ResponseWriter, status int, s cart.Snapshot) {
	writeJSON(w, status, encodeFunc(func(e *jx.Encoder) { h.encodeCart(e, s) }))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var snap cart.Snapshot
	if err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		snap = s.Cart.Snapshot()
		return nil
	}); err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, snap)
	return nil
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var (
		productID string
		quantity  = 1
	)
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			return decodeString(d, &productID)
		case "quantity":
			return decodeInt(d, &quantity)
		default:
			return d.Skip()
		}
	}); err != nil {
		return err
	}
	if productID == "" {
		return badRequest("productId is required")
	}

	p, err := h.catalog.GetByID(r.Context(), productID)
	if err != nil {
		return errors.Wrapf(err, "get product %q", productID)
	}

	var snap cart.Snapshot
	err = h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		var err error
		snap, err = s.Cart.AddItem(*p, quantity)
		return err
	})
	h.metrics.cartMutation(r.Context(), "add", err)
	if err != nil {
		return err
	}
	h.writeCart(w, http.StatusOK, snap)
	return nil
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error {
	quantity, set := 0, false
	if err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "quantity" {
			return d.Skip()
		}
		set = true
		return decodeInt(d, &quantity)
	}); err != nil {
		return err
	}
	if !set {
		return badRequest("quantity is required")
	}

	id := ps.ByName("id")
	var snap cart.Snapshot
	if err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		snap = s.Cart.UpdateQuantity(id, quantity)
		return nil
	}); err != nil {
		return err
	}
	h.metrics.cartMutation(r.Context(), "update", nil)
	h.writeCart(w, http.StatusOK, snap)
	return nil
}

func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error {
	id := ps.ByName("id")
	var snap cart.Snapshot
	if err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		snap = s.Cart.RemoveItem(id)
		return nil
	}); err != nil {
		return err
	}
	h.metrics.cartMutation(r.Context(), "remove", nil)
	h.writeCart(w, http.StatusOK, snap)
	return nil
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	var snap cart.Snapshot
	if err := h.sessions.Do(r.Context(), sessionFromContext(r.Context()), func(s *session.Session) error {
		snap = s.Cart.Clear()
		return nil
	}); err != nil {
		return err
	}
	h.metrics.cartMutation(r.Context(), "clear", nil)
	h.writeCart(w, http.StatusOK, snap)
	return nil
}
