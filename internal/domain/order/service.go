package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems      = fmt.Errorf("items required")
	ErrInvalidQuantity = fmt.Errorf("quantity must be greater than 0")
)

// Defaults for the order summary.
var (
	DefaultShippingFee = decimal.RequireFromString("10.00")
	DefaultTaxRate     = decimal.RequireFromString("0.10")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrInvalidQuantity }

// InsufficientStockError indicates a line item asks for more than is in stock.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("product %s: requested %d, only %d in stock", e.ProductID, e.Requested, e.Available)
}

// Line is a requested product and quantity.
type Line struct {
	ProductID string
	Quantity  int
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	Items        []Line
	Address      Address
	PaymentLast4 string
}

// Summary is the price breakdown shown on the review step.
type Summary struct {
	Subtotal    decimal.Decimal
	ShippingFee decimal.Decimal
	Tax         decimal.Decimal
	Total       decimal.Decimal
}

// Pricing computes order summaries.
type Pricing struct {
	ShippingFee decimal.Decimal
	TaxRate     decimal.Decimal
}

// DefaultPricing returns a flat 10.00 shipping fee and 10% tax.
func DefaultPricing() Pricing {
	return Pricing{ShippingFee: DefaultShippingFee, TaxRate: DefaultTaxRate}
}

// Summarize returns subtotal, shipping, tax and total for a subtotal, each
// rounded to cents.
func (p Pricing) Summarize(subtotal decimal.Decimal) Summary {
	tax := subtotal.Mul(p.TaxRate).Round(2)
	subtotal = subtotal.Round(2)
	fee := p.ShippingFee.Round(2)
	return Summary{
		Subtotal:    subtotal,
		ShippingFee: fee,
		Tax:         tax,
		Total:       subtotal.Add(fee).Add(tax),
	}
}

// Service encapsulates order placement business logic.
type Service struct {
	products product.Repository
	orders   Repository
	pricing  Pricing
	now      func() time.Time
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products product.Repository,
	orders Repository,
	pricing Pricing,
) *Service {
	return &Service{
		products: products,
		orders:   orders,
		pricing:  pricing,
		now:      time.Now,
	}
}

// Pricing returns the pricing the service applies.
func (s *Service) Pricing() Pricing { return s.pricing }

// PlaceOrder validates items, fetches products in a single batch, checks
// stock, prices the order and persists it.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	// Batch fetch all products in a single query.
	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("get products: %w", err)
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	items := make([]OrderItem, 0, len(req.Items))
	subtotal := decimal.Zero
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		if item.Quantity > p.Stock {
			return nil, &InsufficientStockError{
				ProductID: p.ID,
				Requested: item.Quantity,
				Available: p.Stock,
			}
		}
		items = append(items, OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
		})
		subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	sum := s.pricing.Summarize(subtotal)
	o := &Order{
		ID:          uuid.New().String(),
		Items:       items,
		Subtotal:    sum.Subtotal,
		ShippingFee: sum.ShippingFee,
		Tax:         sum.Tax,
		Total:       sum.Total,
		Address:     req.Address,
		CardLast4:   req.PaymentLast4,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	return o, nil
}
