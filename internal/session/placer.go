package session

import (
	"context"

	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
)

// OrderService places orders.
type OrderService interface {
	PlaceOrder(ctx context.Context, req order.PlaceOrderRequest) (*order.Order, error)
}

// Placer adapts an order service to the checkout flow.
type Placer struct {
	Orders OrderService
}

var _ checkout.OrderPlacer = Placer{}

// PlaceOrder implements checkout.OrderPlacer.
func (p Placer) PlaceOrder(ctx context.Context, req checkout.OrderRequest) (*checkout.Receipt, error) {
	lines := make([]order.Line, len(req.Items))
	for i, li := range req.Items {
		lines[i] = order.Line{ProductID: li.Product.ID, Quantity: li.Quantity}
	}
	sh := req.Shipping
	o, err := p.Orders.PlaceOrder(ctx, order.PlaceOrderRequest{
		Items: lines,
		Address: order.Address{
			FirstName: sh.FirstName,
			LastName:  sh.LastName,
			Email:     sh.Email,
			Phone:     sh.Phone,
			Street:    sh.Address,
			City:      sh.City,
			State:     sh.State,
			ZipCode:   sh.ZipCode,
			Country:   sh.Country,
		},
		PaymentLast4: req.Payment.Last4(),
	})
	if err != nil {
		return nil, err
	}
	return &checkout.Receipt{OrderID: o.ID, Total: o.Total}, nil
}
