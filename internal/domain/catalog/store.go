package catalog

import (
	"context"

	"github.com/go-faster/errors"

	"github.com/xenking/storefront/internal/domain/product"
)

// Source yields the full product set once at startup.
type Source interface {
	List(ctx context.Context) ([]product.Product, error)
}

var _ product.Repository = (*Store)(nil)

// Store is the immutable, in-memory catalog. It is safe for concurrent use
// because nothing mutates it after construction.
type Store struct {
	products []product.Product
	byID     map[string]int
	facets   Facets
}

// NewStore indexes products. Duplicate identifiers are rejected.
func NewStore(products []product.Product) (*Store, error) {
	byID := make(map[string]int, len(products))
	for i, p := range products {
		if _, dup := byID[p.ID]; dup {
			return nil, errors.Errorf("duplicate product id %q", p.ID)
		}
		byID[p.ID] = i
	}
	return &Store{
		products: products,
		byID:     byID,
		facets:   BuildFacets(products),
	}, nil
}

// Load reads every product from src and builds a Store.
func Load(ctx context.Context, src Source) (*Store, error) {
	products, err := src.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	return NewStore(products)
}

// Query runs q against the catalog.
func (s *Store) Query(q Query) Result {
	return Run(s.products, q)
}

// Facets returns the precomputed facet metadata.
func (s *Store) Facets() Facets {
	return s.facets
}

// Len returns the number of products.
func (s *Store) Len() int {
	return len(s.products)
}

// List returns a copy of every product in load order.
func (s *Store) List(context.Context) ([]product.Product, error) {
	out := make([]product.Product, len(s.products))
	copy(out, s.products)
	return out, nil
}

// GetByID returns product.ErrNotFound for unknown identifiers.
func (s *Store) GetByID(_ context.Context, id string) (*product.Product, error) {
	i, ok := s.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := s.products[i]
	return &p, nil
}

// GetByIDs returns the known products among ids; unknown ids are skipped.
func (s *Store) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if i, ok := s.byID[id]; ok {
			out = append(out, s.products[i])
		}
	}
	return out, nil
}
