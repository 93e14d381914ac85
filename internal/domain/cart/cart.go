// Package cart implements the shopping cart ledger: line items keyed by
// product with quantities clamped to available stock.
package cart

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

var (
	// ErrInvalidQuantity is returned when adding a non-positive quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	// ErrOutOfStock is returned when a product with no stock is added to a
	// cart that clamps on insert.
	ErrOutOfStock = errors.New("product is out of stock")
)

// LineItem pairs a product with a positive quantity.
type LineItem struct {
	Product  product.Product
	Quantity int
}

// Subtotal returns price * quantity.
func (li LineItem) Subtotal() decimal.Decimal {
	return li.Product.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
}

// Snapshot is an immutable view of the cart after a mutation.
type Snapshot struct {
	Items []LineItem
}

// TotalPrice returns the sum of price * quantity over all items.
func (s Snapshot) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	for _, li := range s.Items {
		total = total.Add(li.Subtotal())
	}
	return total
}

// TotalItems returns the sum of quantities.
func (s Snapshot) TotalItems() int {
	n := 0
	for _, li := range s.Items {
		n += li.Quantity
	}
	return n
}

// Listener is notified with the new state after every mutation.
type Listener func(Snapshot)

// Option configures a Ledger.
type Option func(*Ledger)

// WithLiteralInsert disables clamping when a product is first added, so only
// merges into an existing line are capped at stock.
func WithLiteralInsert() Option {
	return func(l *Ledger) { l.clampOnInsert = false }
}

// Ledger holds the line items of one cart in insertion order. It is not safe
// for concurrent use; callers serialise access per session.
type Ledger struct {
	items         []LineItem
	clampOnInsert bool
	listeners     map[int]Listener
	nextListener  int
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{clampOnInsert: true}
	for _, o := range opts {
		o(l)
	}
	return l
}

// AddItem adds qty units of p. An existing line grows to min(existing+qty,
// stock); a new line is clamped to stock unless WithLiteralInsert is set.
func (l *Ledger) AddItem(p product.Product, qty int) (Snapshot, error) {
	if qty <= 0 {
		return l.Snapshot(), ErrInvalidQuantity
	}

	if i := l.index(p.ID); i >= 0 {
		room := max(p.Stock-l.items[i].Quantity, 0)
		l.items[i].Quantity = min(l.items[i].Quantity+min(qty, room), p.Stock)
		l.items[i].Product = p
		if l.items[i].Quantity <= 0 {
			l.items = append(l.items[:i], l.items[i+1:]...)
		}
		return l.commit(), nil
	}

	if l.clampOnInsert {
		qty = min(qty, p.Stock)
		if qty <= 0 {
			return l.Snapshot(), ErrOutOfStock
		}
	}
	l.items = append(l.items, LineItem{Product: p, Quantity: qty})
	return l.commit(), nil
}

// RemoveItem drops the line for productID. Removing an absent id is a no-op.
func (l *Ledger) RemoveItem(productID string) Snapshot {
	i := l.index(productID)
	if i < 0 {
		return l.Snapshot()
	}
	l.items = append(l.items[:i], l.items[i+1:]...)
	return l.commit()
}

// UpdateQuantity sets the quantity of an existing line, clamped to stock.
// A quantity <= 0 removes the line.
func (l *Ledger) UpdateQuantity(productID string, qty int) Snapshot {
	if qty <= 0 {
		return l.RemoveItem(productID)
	}
	i := l.index(productID)
	if i < 0 {
		return l.Snapshot()
	}
	l.items[i].Quantity = min(qty, l.items[i].Product.Stock)
	if l.items[i].Quantity <= 0 {
		l.items = append(l.items[:i], l.items[i+1:]...)
	}
	return l.commit()
}

// Clear removes every line.
func (l *Ledger) Clear() Snapshot {
	l.items = nil
	return l.commit()
}

// TotalPrice returns the sum of price * quantity.
func (l *Ledger) TotalPrice() decimal.Decimal {
	return Snapshot{Items: l.items}.TotalPrice()
}

// TotalItems returns the sum of quantities.
func (l *Ledger) TotalItems() int {
	return Snapshot{Items: l.items}.TotalItems()
}

// IsEmpty reports whether the cart has no lines.
func (l *Ledger) IsEmpty() bool {
	return len(l.items) == 0
}

// Get returns the line for productID.
func (l *Ledger) Get(productID string) (LineItem, bool) {
	if i := l.index(productID); i >= 0 {
		return l.items[i], true
	}
	return LineItem{}, false
}

// Snapshot returns a copy of the current lines.
func (l *Ledger) Snapshot() Snapshot {
	items := make([]LineItem, len(l.items))
	copy(items, l.items)
	return Snapshot{Items: items}
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (l *Ledger) Subscribe(fn Listener) (unsubscribe func()) {
	if l.listeners == nil {
		l.listeners = make(map[int]Listener)
	}
	id := l.nextListener
	l.nextListener++
	l.listeners[id] = fn
	return func() { delete(l.listeners, id) }
}

func (l *Ledger) commit() Snapshot {
	s := l.Snapshot()
	for _, fn := range l.listeners {
		fn(s)
	}
	return s
}

func (l *Ledger) index(productID string) int {
	for i, li := range l.items {
		if li.Product.ID == productID {
			return i
		}
	}
	return -1
}
