package cart

import "github.com/xenking/storefront/internal/domain/product"

// Resolver returns the current catalog record for a product id.
type Resolver func(id string) (product.Product, bool)

// Restore rebuilds a ledger from a persisted snapshot. Each line is refreshed
// through resolve; lines whose product no longer exists or has no stock are
// dropped and the rest are re-clamped to current stock.
func Restore(s Snapshot, resolve Resolver, opts ...Option) *Ledger {
	l := New(opts...)
	for _, li := range s.Items {
		p, ok := resolve(li.Product.ID)
		if !ok {
			continue
		}
		qty := min(li.Quantity, p.Stock)
		if qty <= 0 || l.index(p.ID) >= 0 {
			continue
		}
		l.items = append(l.items, LineItem{Product: p, Quantity: qty})
	}
	return l
}
