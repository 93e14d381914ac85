// Package session keeps per-visitor cart and checkout state and persists it
// to a key-value store so it survives restarts.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/pkg/debounce"
)

// ErrNotFound is returned by a Store when a key has no value.
var ErrNotFound = errors.New("snapshot not found")

// Store persists opaque snapshots by key.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, value []byte) error
}

// Config controls session lifetime and persistence.
type Config struct {
	// IdleTimeout evicts in-memory sessions not used for this long. Zero
	// disables eviction. NewManager raises it to twice PersistDelay when it
	// does not exceed it, so no session is dropped with a save pending.
	IdleTimeout time.Duration
	// PersistDelay coalesces saves of a session made within this window.
	// Zero saves synchronously after every call.
	PersistDelay time.Duration
	// ConfirmationDwell is how long an order confirmation is shown.
	ConfirmationDwell time.Duration
	// LiteralInsert stops the cart clamping first inserts to stock.
	LiteralInsert bool
}

// Session is the state of one visitor. Its fields are only safe to use inside
// Manager.Do.
type Session struct {
	ID       string
	Cart     *cart.Ledger
	Checkout *checkout.Sequencer

	mu            sync.Mutex
	loaded        bool
	cartDirty     bool
	checkoutDirty bool
	refs          int
	lastUsed      time.Time
}

// Manager owns the live sessions.
type Manager struct {
	store    Store
	resolve  cart.Resolver
	cfg      Config
	lg       *zap.Logger
	debounce *debounce.Debouncer
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a Manager. resolve refreshes restored cart lines from the
// catalog.
func NewManager(store Store, resolve cart.Resolver, cfg Config, lg *zap.Logger) *Manager {
	if cfg.ConfirmationDwell <= 0 {
		cfg.ConfirmationDwell = checkout.DefaultConfirmationDwell
	}
	if cfg.IdleTimeout > 0 && cfg.IdleTimeout <= cfg.PersistDelay {
		lg.Warn("Session idle timeout does not exceed persist delay, raising it",
			zap.Duration("idle_timeout", cfg.IdleTimeout),
			zap.Duration("persist_delay", cfg.PersistDelay),
		)
		cfg.IdleTimeout = 2 * cfg.PersistDelay
	}
	m := &Manager{
		store:    store,
		resolve:  resolve,
		cfg:      cfg,
		lg:       lg,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
	if cfg.PersistDelay > 0 {
		m.debounce = debounce.New(cfg.PersistDelay)
	}
	return m
}

// Do runs fn with exclusive access to the session id, restoring it from the
// store on first use and persisting whatever fn changed. Persistence failures
// are logged, not returned; the error is fn's.
func (m *Manager) Do(ctx context.Context, id string, fn func(s *Session) error) error {
	s := m.acquire(id)
	defer m.release(s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		m.load(ctx, s)
	}
	s.Checkout.Expire(m.now())

	err := fn(s)
	m.persist(ctx, s)
	return err
}

// Len returns the number of sessions held in memory.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) acquire(id string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		s = &Session{ID: id}
		m.sessions[id] = s
	}
	s.refs++
	s.lastUsed = m.now()
	return s
}

func (m *Manager) release(s *Session) {
	m.mu.Lock()
	s.refs--
	s.lastUsed = m.now()
	m.mu.Unlock()
}

func (m *Manager) load(ctx context.Context, s *Session) {
	lg := zctx.From(ctx).With(zap.String("session", s.ID))

	var opts []cart.Option
	if m.cfg.LiteralInsert {
		opts = append(opts, cart.WithLiteralInsert())
	}
	s.Cart = cart.New(opts...)
	if data, err := m.store.Load(ctx, cartKey(s.ID)); err == nil {
		snap, err := decodeCart(data)
		if err != nil {
			lg.Warn("Discarding corrupt cart snapshot", zap.Error(err))
		} else {
			s.Cart = cart.Restore(snap, m.resolve, opts...)
		}
	} else if !errors.Is(err, ErrNotFound) {
		lg.Warn("Load cart snapshot", zap.Error(err))
	}

	seqOpts := []checkout.Option{
		checkout.WithDwell(m.cfg.ConfirmationDwell),
		checkout.WithClock(func() time.Time { return m.now() }),
	}
	s.Checkout = checkout.New(seqOpts...)
	if data, err := m.store.Load(ctx, checkoutKey(s.ID)); err == nil {
		st, err := decodeCheckout(data)
		if err != nil {
			lg.Warn("Discarding corrupt checkout snapshot", zap.Error(err))
		} else {
			s.Checkout = checkout.Restore(st, seqOpts...)
		}
	} else if !errors.Is(err, ErrNotFound) {
		lg.Warn("Load checkout snapshot", zap.Error(err))
	}

	s.Cart.Subscribe(func(cart.Snapshot) { s.cartDirty = true })
	s.Checkout.Subscribe(func(checkout.State) { s.checkoutDirty = true })
	s.loaded = true
}

func (m *Manager) persist(ctx context.Context, s *Session) {
	if s.cartDirty {
		s.cartDirty = false
		if data, err := encodeCart(s.Cart.Snapshot()); err != nil {
			zctx.From(ctx).Error("Encode cart snapshot", zap.String("session", s.ID), zap.Error(err))
		} else {
			m.save(ctx, cartKey(s.ID), data)
		}
	}
	if s.checkoutDirty {
		s.checkoutDirty = false
		if data, err := encodeCheckout(s.Checkout.State()); err != nil {
			zctx.From(ctx).Error("Encode checkout snapshot", zap.String("session", s.ID), zap.Error(err))
		} else {
			m.save(ctx, checkoutKey(s.ID), data)
		}
	}
}

func (m *Manager) save(ctx context.Context, key string, data []byte) {
	if m.debounce == nil {
		if err := m.store.Save(ctx, key, data); err != nil {
			zctx.From(ctx).Warn("Persist snapshot", zap.String("key", key), zap.Error(err))
		}
		return
	}
	ctx = context.WithoutCancel(ctx)
	m.debounce.Trigger(key, func() {
		if err := m.store.Save(ctx, key, data); err != nil {
			m.lg.Warn("Persist snapshot", zap.String("key", key), zap.Error(err))
		}
	})
}

// Evict drops sessions idle since before cutoff and returns how many were
// removed. Their persisted snapshots are kept.
func (m *Manager) Evict(cutoff time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.refs == 0 && s.lastUsed.Before(cutoff) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// Run evicts idle sessions until ctx is done, then flushes pending saves.
func (m *Manager) Run(ctx context.Context) error {
	defer m.Close()
	if m.cfg.IdleTimeout <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(max(m.cfg.IdleTimeout/2, time.Second))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := m.Evict(m.now().Add(-m.cfg.IdleTimeout)); n > 0 {
				m.lg.Debug("Evicted idle sessions", zap.Int("count", n))
			}
		}
	}
}

// Close writes out any saves still waiting in the coalescing window.
func (m *Manager) Close() {
	if m.debounce != nil {
		m.debounce.Stop()
	}
}
