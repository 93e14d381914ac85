package catalog

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/klauspost/pgzip"

	"github.com/xenking/storefront/internal/domain/product"
)

var _ Source = FileSource{}

// FileSource reads the catalog from a JSON array of products. Files ending in
// ".gz" are decompressed on the fly.
type FileSource struct {
	Path string
}

// List decodes and validates every product in the file.
func (s FileSource) List(ctx context.Context) ([]product.Product, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", s.Path)
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(s.Path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrapf(err, "create gzip reader for %s", s.Path)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}

	return ReadProducts(ctx, r)
}

// ReadProducts decodes a JSON array of products from r, validating each one.
func ReadProducts(ctx context.Context, r io.Reader) ([]product.Product, error) {
	var products []product.Product
	err := product.DecodeList(jx.Decode(r, 64*1024), func(p product.Product) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.Validate(); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "decode products")
	}
	return products, nil
}
