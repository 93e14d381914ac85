package catalog

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// FacetValue is one selectable value of a faceted filter with the number of
// products carrying it.
type FacetValue struct {
	Value string
	Count int
}

// Facets summarises the catalog for the filter sidebar.
type Facets struct {
	Categories []FacetValue
	Brands     []FacetValue
	MinPrice   decimal.Decimal
	MaxPrice   decimal.Decimal
	InStock    int
	OutOfStock int
}

// BuildFacets computes facet metadata over products. Categories follow the
// canonical category order; brands are sorted by name.
func BuildFacets(products []product.Product) Facets {
	var f Facets
	categories := make(map[string]int)
	brands := make(map[string]int)

	for i, p := range products {
		categories[p.Category]++
		brands[p.Brand]++
		if p.InStock() {
			f.InStock++
		} else {
			f.OutOfStock++
		}
		if i == 0 || p.Price.LessThan(f.MinPrice) {
			f.MinPrice = p.Price
		}
		if i == 0 || p.Price.GreaterThan(f.MaxPrice) {
			f.MaxPrice = p.Price
		}
	}

	for _, c := range product.Categories {
		if n, ok := categories[c]; ok {
			f.Categories = append(f.Categories, FacetValue{Value: c, Count: n})
		}
	}
	for b, n := range brands {
		f.Brands = append(f.Brands, FacetValue{Value: b, Count: n})
	}
	slices.SortFunc(f.Brands, func(a, b FacetValue) int {
		return strings.Compare(a.Value, b.Value)
	})
	return f
}
