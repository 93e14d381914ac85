// Package handler exposes the catalog, cart and checkout over HTTP.
package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/otel/metric"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/pkg/httpmiddleware"
)

// Catalog answers product queries.
type Catalog interface {
	Query(q catalog.Query) catalog.Result
	Facets() catalog.Facets
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

// HandlerConfig holds non-dependency configuration for the Handler.
type HandlerConfig struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
	// Pricing is used for the order summary shown during checkout. Nil uses
	// order.DefaultPricing.
	Pricing *order.Pricing
	// MeterProvider receives catalog, cart and order counters. Nil disables
	// metrics.
	MeterProvider metric.MeterProvider
}

// Handler serves the storefront API.
type Handler struct {
	catalog      Catalog
	sessions     *session.Manager
	placer       checkout.OrderPlacer
	pricing      order.Pricing
	imageBaseURL string
	metrics      *metrics
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg HandlerConfig,
	cat Catalog,
	sessions *session.Manager,
	placer checkout.OrderPlacer,
) (*Handler, error) {
	m, err := newMetrics(cfg.MeterProvider)
	if err != nil {
		return nil, err
	}
	pricing := order.DefaultPricing()
	if cfg.Pricing != nil {
		pricing = *cfg.Pricing
	}
	return &Handler{
		catalog:      cat,
		sessions:     sessions,
		placer:       placer,
		pricing:      pricing,
		imageBaseURL: cfg.ImageBaseURL,
		metrics:      m,
	}, nil
}

type handleFunc func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error

// Router returns the API routes mounted under /api.
func (h *Handler) Router() *httprouter.Router {
	r := httprouter.New()
	r.HandleMethodNotAllowed = true
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, errRouteNotFound)
	})
	r.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, req, errMethodNotAllowed)
	})

	h.handle(r, http.MethodGet, "/api/products", h.listProducts)
	h.handle(r, http.MethodGet, "/api/products/:id", h.getProduct)
	h.handle(r, http.MethodGet, "/api/facets", h.getFacets)

	h.handle(r, http.MethodGet, "/api/cart", h.session(h.getCart))
	h.handle(r, http.MethodDelete, "/api/cart", h.session(h.clearCart))
	h.handle(r, http.MethodPost, "/api/cart/items", h.session(h.addCartItem))
	h.handle(r, http.MethodPut, "/api/cart/items/:id", h.session(h.updateCartItem))
	h.handle(r, http.MethodDelete, "/api/cart/items/:id", h.session(h.removeCartItem))

	h.handle(r, http.MethodGet, "/api/checkout", h.session(h.getCheckout))
	h.handle(r, http.MethodPost, "/api/checkout/shipping", h.session(h.submitShipping))
	h.handle(r, http.MethodPost, "/api/checkout/payment", h.session(h.submitPayment))
	h.handle(r, http.MethodPost, "/api/checkout/back", h.session(h.checkoutBack))
	h.handle(r, http.MethodPost, "/api/checkout/edit", h.session(h.checkoutEdit))
	h.handle(r, http.MethodPost, "/api/checkout/order", h.session(h.placeOrder))
	h.handle(r, http.MethodPost, "/api/checkout/reset", h.session(h.checkoutReset))

	return r
}

func (h *Handler) handle(r *httprouter.Router, method, pattern string, fn handleFunc) {
	r.Handle(method, pattern, func(w http.ResponseWriter, req *http.Request, ps httprouter.Params) {
		httpmiddleware.SetRoute(req.Context(), method, pattern)
		if err := fn(w, req, ps); err != nil {
			writeError(w, req, err)
		}
	})
}

// withImageBase prefixes relative image paths with the configured base URL.
func (h *Handler) withImageBase(p product.Product) product.Product {
	if h.imageBaseURL == "" || len(p.Images) == 0 {
		return p
	}
	images := make([]string, len(p.Images))
	for i, img := range p.Images {
		if isAbsoluteURL(img) {
			images[i] = img
		} else {
			images[i] = h.imageBaseURL + img
		}
	}
	p.Images = images
	return p
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}
