package catalog

import (
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/ogen-go/ogen/conv"
	"github.com/shopspring/decimal"
)

// Query string parameter names of the catalog endpoint.
const (
	ParamPage        = "page"
	ParamLimit       = "limit"
	ParamCategories  = "categories"
	ParamBrands      = "brands"
	ParamMinPrice    = "minPrice"
	ParamMaxPrice    = "maxPrice"
	ParamMinRating   = "minRating"
	ParamInStockOnly = "inStockOnly"
	ParamSearch      = "search"
	ParamSort        = "sort"
)

// ParseQuery builds a Query from URL parameters. Missing or malformed numbers
// fall back to their defaults; it never fails.
func ParseQuery(v url.Values) Query {
	q := DefaultQuery()

	q.Page = parseInt(v.Get(ParamPage), DefaultPage)
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	q.Limit = parseInt(v.Get(ParamLimit), DefaultLimit)
	if q.Limit < 1 {
		q.Limit = DefaultLimit
	}
	q.Limit = min(q.Limit, MaxLimit)

	q.Filters.Categories = splitList(v.Get(ParamCategories))
	q.Filters.Brands = splitList(v.Get(ParamBrands))
	q.Filters.MinPrice = parseDecimal(v.Get(ParamMinPrice), q.Filters.MinPrice)
	q.Filters.MaxPrice = parseDecimal(v.Get(ParamMaxPrice), q.Filters.MaxPrice)
	q.Filters.MinRating = parseFloat(v.Get(ParamMinRating), DefaultMinRating)
	q.Filters.InStockOnly = v.Get(ParamInStockOnly) == "true"
	q.Filters.Search = v.Get(ParamSearch)

	if s := v.Get(ParamSort); s != "" {
		q.Sort = Sort(s)
	}
	return q
}

// Values encodes q back into URL parameters. Default-valued filters are omitted.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(q.Page))
	v.Set(ParamLimit, strconv.Itoa(q.Limit))
	if q.Sort != "" {
		v.Set(ParamSort, string(q.Sort))
	}
	f := q.Filters
	if f.Search != "" {
		v.Set(ParamSearch, f.Search)
	}
	if len(f.Categories) > 0 {
		v.Set(ParamCategories, strings.Join(f.Categories, ","))
	}
	if len(f.Brands) > 0 {
		v.Set(ParamBrands, strings.Join(f.Brands, ","))
	}
	v.Set(ParamMinPrice, f.MinPrice.String())
	v.Set(ParamMaxPrice, f.MaxPrice.String())
	if f.MinRating > 0 {
		v.Set(ParamMinRating, strconv.FormatFloat(f.MinRating, 'f', -1, 64))
	}
	if f.InStockOnly {
		v.Set(ParamInStockOnly, "true")
	}
	return v
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := conv.ToInt(s)
	if err != nil {
		return def
	}
	return n
}

func parseFloat(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := conv.ToFloat64(s)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return def
	}
	return f
}

func parseDecimal(s string, def decimal.Decimal) decimal.Decimal {
	if s == "" {
		return def
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return def
	}
	return d
}
