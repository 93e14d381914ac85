package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
	"github.com/xenking/storefront/internal/session"
	"github.com/xenking/storefront/internal/storage/memory"
)

func newTestProduct(id, category, brand, price string, stock int, created time.Time) product.Product {
	return product.Product{
		ID:            id,
		Name:          "Product " + id,
		Category:      category,
		Brand:         brand,
		Price:         decimal.RequireFromString(price),
		OriginalPrice: decimal.RequireFromString(price),
		Rating:        4,
		Stock:         stock,
		Images:        []string{"/img/" + id + ".jpg"},
		CreatedAt:     created,
	}
}

type memOrders struct {
	created []*order.Order
	err     error
}

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	if m.err != nil {
		return m.err
	}
	m.created = append(m.created, o)
	return nil
}

type testEnv struct {
	server *httptest.Server
	orders *memOrders
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store, err := catalog.NewStore([]product.Product{
		newTestProduct("p1", product.CategoryElectronics, "TechCorp", "10.00", 5, base),
		newTestProduct("p2", product.CategoryBooks, "BookHub", "20.00", 2, base.Add(time.Hour)),
		newTestProduct("p3", product.CategoryBooks, "BookHub", "30.00", 0, base.Add(2*time.Hour)),
	})
	require.NoError(t, err)

	orders := &memOrders{}
	svc := order.NewService(store, orders, order.DefaultPricing())
	resolve := func(id string) (product.Product, bool) {
		p, err := store.GetByID(context.Background(), id)
		if err != nil {
			return product.Product{}, false
		}
		return *p, true
	}
	sessions := session.NewManager(memory.New(0), resolve, session.Config{}, zap.NewNop())

	h, err := NewHandler(HandlerConfig{ImageBaseURL: "https://cdn.example"}, store, sessions, session.Placer{Orders: svc})
	require.NoError(t, err)

	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)
	return &testEnv{server: srv, orders: orders}
}

type response struct {
	status  int
	session string
	body    map[string]any
}

func (env *testEnv) do(t *testing.T, method, path, sessionID, body string) response {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, env.server.URL+path, rd)
	require.NoError(t, err)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	out := response{status: resp.StatusCode, session: resp.Header.Get(SessionHeader)}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out.body))
	return out
}

func productIDs(t *testing.T, body map[string]any) []string {
	t.Helper()
	items, ok := body["products"].([]any)
	require.True(t, ok)
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.(map[string]any)["id"].(string))
	}
	return ids
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/products", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, []string{"p3", "p2", "p1"}, productIDs(t, res.body))
	assert.EqualValues(t, 3, res.body["total"])
	assert.EqualValues(t, 1, res.body["totalPage"])

	res = env.do(t, http.MethodGet, "/api/products?categories=Books&inStockOnly=true&sort=price-asc", "", "")
	assert.Equal(t, []string{"p2"}, productIDs(t, res.body))

	res = env.do(t, http.MethodGet, "/api/products?sort=price-asc&limit=2&page=2", "", "")
	assert.Equal(t, []string{"p3"}, productIDs(t, res.body))
	assert.EqualValues(t, 2, res.body["totalPage"])

	res = env.do(t, http.MethodGet, "/api/products?page=abc&limit=-5", "", "")
	assert.EqualValues(t, 1, res.body["page"])
	assert.Len(t, productIDs(t, res.body), 3)
}

func TestGetProduct(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/products/p1", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "p1", res.body["id"])
	assert.Equal(t, []any{"https://cdn.example/img/p1.jpg"}, res.body["images"])

	res = env.do(t, http.MethodGet, "/api/products/nope", "", "")
	assert.Equal(t, http.StatusNotFound, res.status)
	assert.EqualValues(t, 404, res.body["code"])
}

func TestFacets(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/facets", "", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 2, res.body["inStock"])
	assert.EqualValues(t, 1, res.body["outOfStock"])
	assert.Equal(t, map[string]any{"min": 10.0, "max": 30.0}, res.body["priceRange"])
}

func TestRouting(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/nothing", "", "")
	assert.Equal(t, http.StatusNotFound, res.status)

	res = env.do(t, http.MethodPatch, "/api/cart", "", "")
	assert.Equal(t, http.StatusMethodNotAllowed, res.status)
}

func TestCart(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/cart", "", "")
	require.Equal(t, http.StatusOK, res.status)
	sid := res.session
	require.NotEmpty(t, sid)

	res = env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, sid, res.session)
	assert.EqualValues(t, 3, res.body["totalItems"])
	assert.EqualValues(t, 30, res.body["totalPrice"])

	res = env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p1","quantity":4}`)
	assert.EqualValues(t, 5, res.body["totalItems"], "merge clamps to stock")

	res = env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p2"}`)
	assert.EqualValues(t, 6, res.body["totalItems"], "quantity defaults to 1")

	res = env.do(t, http.MethodPut, "/api/cart/items/p1", sid, `{"quantity":2}`)
	assert.EqualValues(t, 3, res.body["totalItems"])

	res = env.do(t, http.MethodPut, "/api/cart/items/p1", sid, `{"quantity":0}`)
	assert.EqualValues(t, 1, res.body["totalItems"])

	res = env.do(t, http.MethodDelete, "/api/cart/items/p2", sid, "")
	assert.EqualValues(t, 0, res.body["totalItems"])

	res = env.do(t, http.MethodDelete, "/api/cart/items/p2", sid, "")
	assert.Equal(t, http.StatusOK, res.status, "remove is idempotent")

	// Another session has its own cart.
	res = env.do(t, http.MethodPost, "/api/cart/items", "other-session", `{"productId":"p2"}`)
	require.Equal(t, http.StatusOK, res.status)
	res = env.do(t, http.MethodDelete, "/api/cart", "other-session", "")
	assert.Empty(t, res.body["items"])
}

func TestCart_Errors(t *testing.T) {
	env := newTestEnv(t)
	sid := "cart-errors"

	for _, tt := range []struct {
		name   string
		body   string
		status int
	}{
		{"malformed", `{"productId":`, http.StatusBadRequest},
		{"missing product id", `{"quantity":1}`, http.StatusBadRequest},
		{"unknown product", `{"productId":"nope"}`, http.StatusNotFound},
		{"zero quantity", `{"productId":"p1","quantity":0}`, http.StatusUnprocessableEntity},
		{"out of stock", `{"productId":"p3"}`, http.StatusUnprocessableEntity},
	} {
		t.Run(tt.name, func(t *testing.T) {
			res := env.do(t, http.MethodPost, "/api/cart/items", sid, tt.body)
			assert.Equal(t, tt.status, res.status)
			assert.EqualValues(t, tt.status, res.body["code"])
			assert.NotEmpty(t, res.body["message"])
		})
	}

	res := env.do(t, http.MethodPut, "/api/cart/items/p1", sid, `{}`)
	assert.Equal(t, http.StatusBadRequest, res.status)
}

const (
	shippingBody = `{"firstName":"Ada","lastName":"Lovelace","email":"ada@example.com","phone":"555 123 4567",
		"address":"1 Main St","city":"Springfield","state":"IL","zipCode":"62701","country":"US"}`
	paymentBody = `{"cardName":"Ada Lovelace","cardNumber":"4111 1111 1111 1111","expiryDate":"04/30","cvv":"123"}`
)

func TestCheckout_EmptyCartRedirects(t *testing.T) {
	env := newTestEnv(t)

	res := env.do(t, http.MethodGet, "/api/checkout", "empty-cart", "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "catalog", res.body["redirect"])
	assert.EqualValues(t, 1, res.body["step"])
}

func TestCheckout_EmptyCartBlocksTransitions(t *testing.T) {
	env := newTestEnv(t)
	sid := "empty-transitions"

	for _, tt := range []struct {
		path string
		body string
	}{
		{"/api/checkout/shipping", shippingBody},
		{"/api/checkout/payment", paymentBody},
		{"/api/checkout/back", ""},
		{"/api/checkout/edit", `{"step":1}`},
	} {
		res := env.do(t, http.MethodPost, tt.path, sid, tt.body)
		assert.Equal(t, http.StatusConflict, res.status, tt.path)
	}

	res := env.do(t, http.MethodGet, "/api/checkout", sid, "")
	assert.EqualValues(t, 1, res.body["step"])
	assert.Nil(t, res.body["shipping"])

	// Emptying the cart mid-checkout stops the walk as well.
	sid = "emptied-mid-checkout"
	res = env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p1"}`)
	require.Equal(t, http.StatusOK, res.status)
	res = env.do(t, http.MethodPost, "/api/checkout/shipping", sid, shippingBody)
	require.Equal(t, http.StatusOK, res.status)
	res = env.do(t, http.MethodDelete, "/api/cart", sid, "")
	require.Equal(t, http.StatusOK, res.status)
	res = env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)
	assert.Equal(t, http.StatusConflict, res.status)
	res = env.do(t, http.MethodGet, "/api/checkout", sid, "")
	assert.EqualValues(t, 2, res.body["step"])
}

func TestCheckout_Flow(t *testing.T) {
	env := newTestEnv(t)
	sid := "checkout-flow"

	res := env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p1","quantity":2}`)
	require.Equal(t, http.StatusOK, res.status)

	res = env.do(t, http.MethodGet, "/api/checkout", sid, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.Nil(t, res.body["redirect"])
	assert.Equal(t, "shipping", res.body["stepName"])
	assert.Equal(t, map[string]any{"subtotal": 20.0, "shipping": 10.0, "tax": 2.0, "total": 32.0}, res.body["summary"])

	res = env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)
	assert.Equal(t, http.StatusConflict, res.status)
	assert.EqualValues(t, 1, res.body["step"])

	res = env.do(t, http.MethodPost, "/api/checkout/shipping", sid, `{"firstName":"Ada","email":"nope"}`)
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	fields, ok := res.body["fields"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "lastName")

	res = env.do(t, http.MethodPost, "/api/checkout/shipping", sid, shippingBody)
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 2, res.body["step"])

	res = env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 3, res.body["step"])
	assert.Equal(t, map[string]any{"cardName": "Ada Lovelace", "cardLast4": "1111", "expiryDate": "04/30"}, res.body["payment"])

	res = env.do(t, http.MethodPost, "/api/checkout/edit", sid, `{"step":"shipping"}`)
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 1, res.body["step"])

	res = env.do(t, http.MethodPost, "/api/checkout/shipping", sid, shippingBody)
	require.Equal(t, http.StatusOK, res.status)
	res = env.do(t, http.MethodPost, "/api/checkout/edit", sid, `{"step":3}`)
	assert.Equal(t, http.StatusConflict, res.status, "forward jumps are refused")
	res = env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)
	require.Equal(t, http.StatusOK, res.status)

	res = env.do(t, http.MethodPost, "/api/checkout/back", sid, "")
	assert.EqualValues(t, 2, res.body["step"])
	res = env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)
	require.Equal(t, http.StatusOK, res.status)

	res = env.do(t, http.MethodPost, "/api/checkout/order", sid, "")
	require.Equal(t, http.StatusOK, res.status)
	assert.EqualValues(t, 4, res.body["step"])
	placed, ok := res.body["order"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 32, placed["total"])
	assert.NotEmpty(t, res.body["resetAt"])
	require.Len(t, env.orders.created, 1)
	assert.Equal(t, "1111", env.orders.created[0].CardLast4)

	res = env.do(t, http.MethodGet, "/api/cart", sid, "")
	assert.EqualValues(t, 0, res.body["totalItems"])

	res = env.do(t, http.MethodGet, "/api/checkout", sid, "")
	assert.EqualValues(t, 4, res.body["step"], "confirmation survives the empty cart")
	assert.Nil(t, res.body["redirect"])

	res = env.do(t, http.MethodPost, "/api/checkout/reset", sid, "")
	assert.EqualValues(t, 1, res.body["step"])
	assert.Nil(t, res.body["shipping"])
}

func TestCheckout_OrderBackendFailure(t *testing.T) {
	env := newTestEnv(t)
	env.orders.err = errors.New("database unavailable")
	sid := "backend-failure"

	env.do(t, http.MethodPost, "/api/cart/items", sid, `{"productId":"p2","quantity":1}`)
	env.do(t, http.MethodPost, "/api/checkout/shipping", sid, shippingBody)
	env.do(t, http.MethodPost, "/api/checkout/payment", sid, paymentBody)

	res := env.do(t, http.MethodPost, "/api/checkout/order", sid, "")
	assert.Equal(t, http.StatusBadGateway, res.status)

	res = env.do(t, http.MethodGet, "/api/checkout", sid, "")
	assert.EqualValues(t, 3, res.body["step"])
	res = env.do(t, http.MethodGet, "/api/cart", sid, "")
	assert.EqualValues(t, 1, res.body["totalItems"])
}

func TestMapError(t *testing.T) {
	for _, tt := range []struct {
		err    error
		status int
	}{
		{product.ErrNotFound, http.StatusNotFound},
		{errors.Wrap(product.ErrNotFound, "get"), http.StatusNotFound},
		{&checkout.ValidationError{Fields: map[string]string{"cvv": "bad"}}, http.StatusUnprocessableEntity},
		{&checkout.StepError{Op: "back", Current: checkout.StepShipping}, http.StatusConflict},
		{checkout.ErrCartEmpty, http.StatusConflict},
		{&order.InsufficientStockError{ProductID: "p"}, http.StatusUnprocessableEntity},
		{&upstreamError{err: errors.New("x")}, http.StatusBadGateway},
		{badRequest("bad"), http.StatusBadRequest},
		{errors.New("unknown"), http.StatusInternalServerError},
	} {
		assert.Equal(t, tt.status, mapError(tt.err).status, tt.err.Error())
	}
}

func TestIsValidSessionID(t *testing.T) {
	assert.True(t, isValidSessionID("3f1c9a2e-8b7d-4c3e-9f1a-2b3c4d5e6f70"))
	assert.False(t, isValidSessionID("short"))
	assert.False(t, isValidSessionID("has spaces in it"))
}
