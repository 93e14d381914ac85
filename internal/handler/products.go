package handler

import (
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/catalog"
)

// listProducts runs a catalog query described by the URL parameters.
// Malformed parameters fall back to their defaults.
func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request, _ httprouter.Params) error {
	q := catalog.ParseQuery(r.URL.Query())
	res := h.catalog.Query(q)

	trace.SpanFromContext(r.Context()).SetAttributes(
		attribute.String("catalog.sort", string(q.Sort)),
		attribute.Int("catalog.page", res.Page),
		attribute.Int("catalog.limit", q.Limit),
		attribute.Int("catalog.total", res.Total),
		attribute.StringSlice("catalog.categories", q.Filters.Categories),
		attribute.Bool("catalog.search", q.Filters.Search != ""),
	)
	h.metrics.query(r.Context(), q.Sort, res.Total == 0)

	writeJSON(w, http.StatusOK, encodeFunc(func(e *jx.Encoder) { h.encodeResult(e, res) }))
	return nil
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request, ps httprouter.Params) error {
	id := strings.TrimSpace(ps.ByName("id"))
	p, err := h.catalog.GetByID(r.Context(), id)
	if err != nil {
		return errors.Wrapf(err, "get product %q", id)
	}
	writeJSON(w, http.StatusOK, h.withImageBase(*p))
	return nil
}

func (h *Handler) getFacets(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) error {
	f := h.catalog.Facets()
	writeJSON(w, http.StatusOK, encodeFunc(func(e *jx.Encoder) { encodeFacets(e, f) }))
	return nil
}
