// Package catalog implements the storefront query engine: faceted filtering,
// text search, stable sorting and pagination over the in-memory product set.
package catalog

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// Sort selects the ordering of query results.
type Sort string

const (
	SortPriceAsc   Sort = "price-asc"
	SortPriceDesc  Sort = "price-desc"
	SortRatingDesc Sort = "rating-desc"
	SortNewest     Sort = "newest"
	SortPopular    Sort = "popular"
)

// Defaults applied when external input is missing or malformed.
const (
	DefaultPage      = 1
	DefaultLimit     = 24
	MaxLimit         = 100
	DefaultMinPrice  = 0
	DefaultMaxPrice  = 999999
	DefaultMinRating = 0
	DefaultSort      = SortNewest
)

// Filters holds the criteria a product must satisfy. Empty Categories or
// Brands mean no restriction on that dimension.
type Filters struct {
	Categories  []string
	Brands      []string
	MinPrice    decimal.Decimal
	MaxPrice    decimal.Decimal
	MinRating   float64
	InStockOnly bool
	Search      string
}

// DefaultFilters returns filters that match every product.
func DefaultFilters() Filters {
	return Filters{
		MinPrice:  decimal.NewFromInt(DefaultMinPrice),
		MaxPrice:  decimal.NewFromInt(DefaultMaxPrice),
		MinRating: DefaultMinRating,
	}
}

// Query is a complete catalog request.
type Query struct {
	Filters Filters
	Sort    Sort
	Page    int
	Limit   int
}

// DefaultQuery returns the first page of the newest products.
func DefaultQuery() Query {
	return Query{
		Filters: DefaultFilters(),
		Sort:    DefaultSort,
		Page:    DefaultPage,
		Limit:   DefaultLimit,
	}
}

// Result is one page of a query.
type Result struct {
	Items     []product.Product
	Page      int
	Total     int
	TotalPage int
}

// Run filters, sorts and paginates products. The input slice is not modified.
func Run(products []product.Product, q Query) Result {
	m := newMatcher(q.Filters)

	filtered := make([]product.Product, 0, len(products))
	for _, p := range products {
		if m.match(p) {
			filtered = append(filtered, p)
		}
	}

	sortProducts(filtered, q.Sort)

	limit := q.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	total := len(filtered)
	res := Result{
		Page:      q.Page,
		Total:     total,
		Items:     []product.Product{},
	}
	if total > 0 {
		res.TotalPage = (total-1)/limit + 1
	}

	if q.Page < 1 || q.Page > res.TotalPage {
		return res
	}
	start := (q.Page - 1) * limit
	end := min(start+limit, total)
	res.Items = filtered[start:end]
	return res
}

// matcher is a prepared form of Filters.
type matcher struct {
	f          Filters
	search     string
	categories map[string]struct{}
	brands     map[string]struct{}
}

func newMatcher(f Filters) matcher {
	return matcher{
		f:          f,
		search:     strings.ToLower(f.Search),
		categories: toSet(f.Categories),
		brands:     toSet(f.Brands),
	}
}

func toSet(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func (m matcher) match(p product.Product) bool {
	if m.search != "" &&
		!strings.Contains(strings.ToLower(p.Name), m.search) &&
		!strings.Contains(strings.ToLower(p.Description), m.search) &&
		!strings.Contains(strings.ToLower(p.Brand), m.search) {
		return false
	}
	if m.categories != nil {
		if _, ok := m.categories[p.Category]; !ok {
			return false
		}
	}
	if m.brands != nil {
		if _, ok := m.brands[p.Brand]; !ok {
			return false
		}
	}
	if p.Price.LessThan(m.f.MinPrice) || p.Price.GreaterThan(m.f.MaxPrice) {
		return false
	}
	if p.Rating < m.f.MinRating {
		return false
	}
	return !m.f.InStockOnly || p.Stock > 0
}

// sortProducts orders ps in place. Unknown keys keep the filtered order.
func sortProducts(ps []product.Product, s Sort) {
	var compare func(a, b product.Product) int
	switch s {
	case SortPriceAsc:
		compare = func(a, b product.Product) int { return a.Price.Cmp(b.Price) }
	case SortPriceDesc:
		compare = func(a, b product.Product) int { return b.Price.Cmp(a.Price) }
	case SortRatingDesc:
		compare = func(a, b product.Product) int { return cmp.Compare(b.Rating, a.Rating) }
	case SortNewest:
		compare = func(a, b product.Product) int { return b.CreatedAt.Compare(a.CreatedAt) }
	case SortPopular:
		compare = func(a, b product.Product) int { return cmp.Compare(b.ReviewCount, a.ReviewCount) }
	default:
		return
	}
	slices.SortStableFunc(ps, compare)
}
