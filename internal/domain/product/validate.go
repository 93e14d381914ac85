package product

import (
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	hundred        = decimal.NewFromInt(100)
	priceTolerance = decimal.RequireFromString("0.01")
)

// InvalidError describes a catalog record that violates a product invariant.
type InvalidError struct {
	ProductID string
	Reason    string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid product %q: %s", e.ProductID, e.Reason)
}

// Validate checks the record invariants: price <= originalPrice, the discount
// agrees with both prices to the cent, and rating, counts and stock are in range.
func (p Product) Validate() error {
	invalid := func(format string, args ...any) error {
		return &InvalidError{ProductID: p.ID, Reason: fmt.Sprintf(format, args...)}
	}

	switch {
	case p.ID == "":
		return invalid("empty id")
	case p.Name == "":
		return invalid("empty name")
	case !IsCategory(p.Category):
		return invalid("unknown category %q", p.Category)
	case p.Price.IsNegative():
		return invalid("negative price %s", p.Price)
	case p.Price.GreaterThan(p.OriginalPrice):
		return invalid("price %s exceeds original price %s", p.Price, p.OriginalPrice)
	case p.Discount < 0 || p.Discount > 100:
		return invalid("discount %v out of [0, 100]", p.Discount)
	case p.Rating < 0 || p.Rating > 5:
		return invalid("rating %v out of [0, 5]", p.Rating)
	case p.ReviewCount < 0:
		return invalid("negative review count %d", p.ReviewCount)
	case p.Stock < 0:
		return invalid("negative stock %d", p.Stock)
	}

	expected := p.OriginalPrice.Mul(hundred.Sub(decimal.NewFromFloat(p.Discount))).Div(hundred)
	if expected.Sub(p.Price).Abs().GreaterThan(priceTolerance) {
		return invalid("price %s does not match %s with %.2f%% discount", p.Price, p.OriginalPrice, p.Discount)
	}
	return nil
}
