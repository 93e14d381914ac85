package product

import (
	"context"
	"slices"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Catalog categories. The storefront only ever shows products from this set.
const (
	CategoryElectronics = "Electronics"
	CategoryClothing    = "Clothing"
	CategoryBooks       = "Books"
	CategoryHomeGarden  = "Home & Garden"
	CategorySports      = "Sports"
	CategoryToys        = "Toys"
	CategoryBeauty      = "Beauty"
	CategoryAutomotive  = "Automotive"
)

// Categories lists every known category in display order.
var Categories = []string{
	CategoryElectronics,
	CategoryClothing,
	CategoryBooks,
	CategoryHomeGarden,
	CategorySports,
	CategoryToys,
	CategoryBeauty,
	CategoryAutomotive,
}

// IsCategory reports whether c is one of the known categories.
func IsCategory(c string) bool {
	return slices.Contains(Categories, c)
}

// Product is an immutable catalog record.
type Product struct {
	ID            string
	Name          string
	Description   string
	Brand         string
	Category      string
	Price         decimal.Decimal
	OriginalPrice decimal.Decimal
	// Discount is a percentage in [0, 100].
	Discount    float64
	Rating      float64
	ReviewCount int
	Stock       int
	Images      []string
	Tags        []string
	CreatedAt   time.Time
}

// InStock reports whether at least one unit is available.
func (p Product) InStock() bool {
	return p.Stock > 0
}

// Repository defines read operations for the product catalog.
type Repository interface {
	List(ctx context.Context) ([]Product, error)
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
}
