package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
	"github.com/xenking/storefront/internal/domain/product"
)

type fakeStore struct {
	mu      sync.Mutex
	data    map[string][]byte
	saves   int
	saveErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string][]byte)}
}

func (f *fakeStore) Load(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return v, nil
}

func (f *fakeStore) Save(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	f.data[key] = value
	return nil
}

func (f *fakeStore) saveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

var testCatalog = map[string]product.Product{
	"p1": {ID: "p1", Name: "Widget", Category: product.CategoryToys, Price: decimal.RequireFromString("10.00"), OriginalPrice: decimal.RequireFromString("10.00"), Stock: 5},
	"p2": {ID: "p2", Name: "Gadget", Category: product.CategoryToys, Price: decimal.RequireFromString("2.50"), OriginalPrice: decimal.RequireFromString("2.50"), Stock: 1},
}

func resolve(id string) (product.Product, bool) {
	p, ok := testCatalog[id]
	return p, ok
}

func validShipping() checkout.ShippingInfo {
	return checkout.ShippingInfo{
		FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Phone: "5551234567",
		Address: "1 Main St", City: "Springfield", State: "IL", ZipCode: "62701", Country: "US",
	}
}

func validPayment() checkout.PaymentInfo {
	return checkout.PaymentInfo{CardName: "Ada Lovelace", CardNumber: "4111111111111111", ExpiryDate: "01/30", CVV: "999"}
}

func TestManager_PersistsAndRestores(t *testing.T) {
	ctx := context.Background()
	store := newFakeStore()

	m := NewManager(store, resolve, Config{}, zap.NewNop())
	err := m.Do(ctx, "s1", func(s *Session) error {
		if _, err := s.Cart.AddItem(testCatalog["p1"], 2); err != nil {
			return err
		}
		if _, err := s.Cart.AddItem(testCatalog["p2"], 1); err != nil {
			return err
		}
		if _, err := s.Checkout.SubmitShipping(validShipping()); err != nil {
			return err
		}
		_, err := s.Checkout.SubmitPayment(validPayment())
		return err
	})
	require.NoError(t, err)
	assert.Contains(t, string(store.data["checkout:s1"]), "************1111")
	assert.NotContains(t, string(store.data["checkout:s1"]), "4111111111111111")
	assert.NotContains(t, string(store.data["checkout:s1"]), `"cvv":"999"`)

	// A fresh manager simulates a restart.
	m2 := NewManager(store, resolve, Config{}, zap.NewNop())
	require.NoError(t, m2.Do(ctx, "s1", func(s *Session) error {
		assert.Equal(t, 3, s.Cart.TotalItems())
		assert.Equal(t, "Widget", s.Cart.Snapshot().Items[0].Product.Name)
		st := s.Checkout.State()
		assert.Equal(t, checkout.StepReview, st.Step)
		require.NotNil(t, st.Payment)
		assert.Equal(t, "1111", st.Payment.Last4())
		return nil
	}))
}

func TestManager_CorruptSnapshotRestartsEmpty(t *testing.T) {
	store := newFakeStore()
	store.data["cart:s1"] = []byte("{not json")
	store.data["checkout:s1"] = []byte(`{"step":`)

	m := NewManager(store, resolve, Config{}, zap.NewNop())
	require.NoError(t, m.Do(context.Background(), "s1", func(s *Session) error {
		assert.True(t, s.Cart.IsEmpty())
		assert.Equal(t, checkout.StepShipping, s.Checkout.Step())
		return nil
	}))
}

func TestManager_ReadOnlyDoesNotSave(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, resolve, Config{}, zap.NewNop())

	require.NoError(t, m.Do(context.Background(), "s1", func(s *Session) error {
		_ = s.Cart.Snapshot()
		return nil
	}))
	assert.Zero(t, store.saveCount())
}

func TestManager_SaveErrorIsNotReturned(t *testing.T) {
	store := newFakeStore()
	store.saveErr = errors.New("redis down")
	m := NewManager(store, resolve, Config{}, zap.NewNop())

	err := m.Do(context.Background(), "s1", func(s *Session) error {
		_, err := s.Cart.AddItem(testCatalog["p1"], 1)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, 1, store.saveCount())
}

func TestManager_ReturnsFnError(t *testing.T) {
	m := NewManager(newFakeStore(), resolve, Config{}, zap.NewNop())
	boom := errors.New("boom")
	err := m.Do(context.Background(), "s1", func(*Session) error { return boom })
	require.ErrorIs(t, err, boom)
}

func TestManager_ConfirmationExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewManager(newFakeStore(), resolve, Config{ConfirmationDwell: 10 * time.Second}, zap.NewNop())
	m.now = func() time.Time { return now }

	placer := Placer{Orders: order.NewService(stubProducts{}, &memOrders{}, order.DefaultPricing())}
	ctx := context.Background()
	require.NoError(t, m.Do(ctx, "s1", func(s *Session) error {
		if _, err := s.Cart.AddItem(testCatalog["p1"], 1); err != nil {
			return err
		}
		if _, err := s.Checkout.SubmitShipping(validShipping()); err != nil {
			return err
		}
		if _, err := s.Checkout.SubmitPayment(validPayment()); err != nil {
			return err
		}
		st, err := s.Checkout.PlaceOrder(ctx, s.Cart, placer)
		if err != nil {
			return err
		}
		assert.Equal(t, checkout.StepConfirmation, st.Step)
		assert.True(t, decimal.RequireFromString("21.00").Equal(st.Receipt.Total), st.Receipt.Total.String())
		return nil
	}))

	now = now.Add(5 * time.Second)
	require.NoError(t, m.Do(ctx, "s1", func(s *Session) error {
		assert.Equal(t, checkout.StepConfirmation, s.Checkout.Step())
		assert.True(t, s.Cart.IsEmpty())
		return nil
	}))

	now = now.Add(5 * time.Second)
	require.NoError(t, m.Do(ctx, "s1", func(s *Session) error {
		assert.Equal(t, checkout.StepShipping, s.Checkout.Step())
		return nil
	}))
}

func TestManager_Evict(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	m := NewManager(store, resolve, Config{IdleTimeout: time.Minute}, zap.NewNop())
	m.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, m.Do(ctx, "old", func(s *Session) error {
		_, err := s.Cart.AddItem(testCatalog["p1"], 1)
		return err
	}))
	now = now.Add(2 * time.Minute)
	require.NoError(t, m.Do(ctx, "new", func(*Session) error { return nil }))

	assert.Equal(t, 1, m.Evict(now.Add(-time.Minute)))
	assert.Equal(t, 1, m.Len())

	// Evicted sessions come back from the store.
	require.NoError(t, m.Do(ctx, "old", func(s *Session) error {
		assert.Equal(t, 1, s.Cart.TotalItems())
		return nil
	}))
}

func TestNewManager_IdleTimeoutExceedsPersistDelay(t *testing.T) {
	m := NewManager(newFakeStore(), resolve, Config{
		IdleTimeout:  time.Second,
		PersistDelay: 5 * time.Second,
	}, zap.NewNop())
	assert.Equal(t, 10*time.Second, m.cfg.IdleTimeout)

	m = NewManager(newFakeStore(), resolve, Config{
		IdleTimeout:  time.Minute,
		PersistDelay: time.Second,
	}, zap.NewNop())
	assert.Equal(t, time.Minute, m.cfg.IdleTimeout)

	m = NewManager(newFakeStore(), resolve, Config{PersistDelay: time.Second}, zap.NewNop())
	assert.Zero(t, m.cfg.IdleTimeout, "eviction stays disabled")
}

func TestManager_PersistDelayCoalesces(t *testing.T) {
	store := newFakeStore()
	m := NewManager(store, resolve, Config{PersistDelay: time.Hour}, zap.NewNop())
	ctx := context.Background()

	for range 3 {
		require.NoError(t, m.Do(ctx, "s1", func(s *Session) error {
			_, err := s.Cart.AddItem(testCatalog["p1"], 1)
			return err
		}))
	}
	assert.Zero(t, store.saveCount())

	m.Close()
	assert.Equal(t, 1, store.saveCount())
	assert.Contains(t, string(store.data["cart:s1"]), `"quantity":3`)
}

func TestManager_ConcurrentAccess(t *testing.T) {
	stock := testCatalog["p1"]
	stock.Stock = 1000
	m := NewManager(newFakeStore(), resolve, Config{}, zap.NewNop())
	ctx := context.Background()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Do(ctx, "shared", func(s *Session) error {
				_, err := s.Cart.AddItem(stock, 1)
				return err
			})
		}()
	}
	wg.Wait()

	require.NoError(t, m.Do(ctx, "shared", func(s *Session) error {
		assert.Equal(t, 50, s.Cart.TotalItems())
		return nil
	}))
}

type stubProducts struct{}

func (stubProducts) List(context.Context) ([]product.Product, error) { return nil, nil }

func (stubProducts) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := testCatalog[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (stubProducts) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := testCatalog[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

type memOrders struct{ orders []*order.Order }

func (m *memOrders) Create(_ context.Context, o *order.Order) error {
	m.orders = append(m.orders, o)
	return nil
}
