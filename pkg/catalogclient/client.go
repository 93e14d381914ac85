// Package catalogclient queries the storefront catalog over HTTP.
package catalogclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/product"
)

// StatusError is a non-2xx response from the API.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("catalog api: %d %s", e.StatusCode, e.Message)
}

// Client calls the catalog endpoints.
type Client struct {
	base *url.URL
	http *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the instrumented default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// New creates a client for the API rooted at baseURL, e.g. http://localhost:8080.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimSuffix(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("base url %q must be absolute", baseURL)
	}
	c := &Client{
		base: u,
		http: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Query runs q against GET /api/products.
func (c *Client) Query(ctx context.Context, q catalog.Query) (catalog.Result, error) {
	var res catalog.Result
	err := c.get(ctx, "/api/products", q.Values(), func(d *jx.Decoder) error {
		return d.Obj(func(d *jx.Decoder, key string) error {
			var err error
			switch key {
			case "products":
				err = d.Arr(func(d *jx.Decoder) error {
					var p product.Product
					if err := p.Decode(d); err != nil {
						return err
					}
					res.Items = append(res.Items, p)
					return nil
				})
			case "page":
				res.Page, err = d.Int()
			case "total":
				res.Total, err = d.Int()
			case "totalPage":
				res.TotalPage, err = d.Int()
			default:
				err = d.Skip()
			}
			return errors.Wrap(err, key)
		})
	})
	if err != nil {
		return catalog.Result{}, err
	}
	return res, nil
}

// Product fetches one product. An unknown id returns product.ErrNotFound.
func (c *Client) Product(ctx context.Context, id string) (*product.Product, error) {
	var p product.Product
	err := c.get(ctx, "/api/products/"+url.PathEscape(id), nil, p.Decode)
	if se := (*StatusError)(nil); errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
		return nil, errors.Wrap(product.ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, decode func(*jx.Decoder) error) error {
	u := c.base.JoinPath(path)
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return errors.Wrap(err, "create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read response")
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return decodeStatusError(resp.StatusCode, body)
	}
	if err := decode(jx.DecodeBytes(body)); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

func decodeStatusError(code int, body []byte) error {
	se := &StatusError{StatusCode: code, Message: http.StatusText(code)}
	_ = jx.DecodeBytes(body).Obj(func(d *jx.Decoder, key string) error {
		if key != "message" {
			return d.Skip()
		}
		msg, err := d.Str()
		if err == nil && msg != "" {
			se.Message = msg
		}
		return err
	})
	return se
}
