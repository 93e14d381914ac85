package handler

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/xenking/storefront/internal/domain/catalog"
)

const meterName = "github.com/xenking/storefront/internal/handler"

type metrics struct {
	queries       metric.Int64Counter
	cartMutations metric.Int64Counter
	orders        metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter(meterName)

	var (
		m   metrics
		err error
	)
	if m.queries, err = meter.Int64Counter("storefront.catalog.queries",
		metric.WithDescription("Catalog queries served"),
	); err != nil {
		return nil, errors.Wrap(err, "catalog queries counter")
	}
	if m.cartMutations, err = meter.Int64Counter("storefront.cart.mutations",
		metric.WithDescription("Cart mutations by operation and result"),
	); err != nil {
		return nil, errors.Wrap(err, "cart mutations counter")
	}
	if m.orders, err = meter.Int64Counter("storefront.orders",
		metric.WithDescription("Order placement attempts by result"),
	); err != nil {
		return nil, errors.Wrap(err, "orders counter")
	}
	return &m, nil
}

func result(err error) attribute.KeyValue {
	if err != nil {
		return attribute.String("result", "error")
	}
	return attribute.String("result", "ok")
}

func (m *metrics) query(ctx context.Context, sort catalog.Sort, empty bool) {
	m.queries.Add(ctx, 1, metric.WithAttributes(
		attribute.String("sort", string(sort)),
		attribute.Bool("empty", empty),
	))
}

func (m *metrics) cartMutation(ctx context.Context, op string, err error) {
	m.cartMutations.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op), result(err)))
}

func (m *metrics) order(ctx context.Context, err error) {
	m.orders.Add(ctx, 1, metric.WithAttributes(result(err)))
}
