package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/catalog"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/order"
)

const maxBodyBytes = 1 << 20

type encoder interface {
	Encode(e *jx.Encoder)
}

type encodeFunc func(e *jx.Encoder)

func (f encodeFunc) Encode(e *jx.Encoder) { f(e) }

func writeJSON(w http.ResponseWriter, status int, v encoder) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	v.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// decodeBody reads a JSON object from the request body, calling fn for each
// field. An empty body is treated as {}.
func decodeBody(r *http.Request, fn func(d *jx.Decoder, key string) error) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		return badRequest("read body")
	}
	if len(data) > maxBodyBytes {
		return badRequest("body too large")
	}
	if len(data) == 0 {
		return nil
	}
	d := jx.DecodeBytes(data)
	if err := d.Obj(fn); err != nil {
		return badRequest("malformed JSON body: " + err.Error())
	}
	return nil
}

func decodeString(d *jx.Decoder, dst *string) error {
	v, err := d.Str()
	if err != nil {
		return errors.Wrap(err, "expected string")
	}
	*dst = v
	return nil
}

func decodeInt(d *jx.Decoder, dst *int) error {
	v, err := d.Int()
	if err != nil {
		return errors.Wrap(err, "expected integer")
	}
	*dst = v
	return nil
}

func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Float64(v.Round(2).InexactFloat64())
}

func (h *Handler) encodeResult(e *jx.Encoder, res catalog.Result) {
	e.ObjStart()
	e.FieldStart("products")
	e.ArrStart()
	for _, p := range res.Items {
		h.withImageBase(p).Encode(e)
	}
	e.ArrEnd()
	e.FieldStart("page")
	e.Int(res.Page)
	e.FieldStart("total")
	e.Int(res.Total)
	e.FieldStart("totalPage")
	e.Int(res.TotalPage)
	e.ObjEnd()
}

func encodeFacetValues(e *jx.Encoder, values []catalog.FacetValue) {
	e.ArrStart()
	for _, v := range values {
		e.ObjStart()
		e.FieldStart("value")
		e.Str(v.Value)
		e.FieldStart("count")
		e.Int(v.Count)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeFacets(e *jx.Encoder, f catalog.Facets) {
	e.ObjStart()
	e.FieldStart("categories")
	encodeFacetValues(e, f.Categories)
	e.FieldStart("brands")
	encodeFacetValues(e, f.Brands)
	e.FieldStart("priceRange")
	e.ObjStart()
	e.FieldStart("min")
	encodeMoney(e, f.MinPrice)
	e.FieldStart("max")
	encodeMoney(e, f.MaxPrice)
	e.ObjEnd()
	e.FieldStart("inStock")
	e.Int(f.InStock)
	e.FieldStart("outOfStock")
	e.Int(f.OutOfStock)
	e.ObjEnd()
}

func (h *Handler) encodeCart(e *jx.Encoder, s cart.Snapshot) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for _, li := range s.Items {
		e.ObjStart()
		e.FieldStart("product")
		h.withImageBase(li.Product).Encode(e)
		e.FieldStart("quantity")
		e.Int(li.Quantity)
		e.FieldStart("subtotal")
		encodeMoney(e, li.Subtotal())
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalItems")
	e.Int(s.TotalItems())
	e.FieldStart("totalPrice")
	encodeMoney(e, s.TotalPrice())
	e.ObjEnd()
}

func encodeShipping(e *jx.Encoder, s checkout.ShippingInfo) {
	e.ObjStart()
	for _, f := range []struct{ k, v string }{
		{"firstName", s.FirstName},
		{"lastName", s.LastName},
		{"email", s.Email},
		{"phone", s.Phone},
		{"address", s.Address},
		{"city", s.City},
		{"state", s.State},
		{"zipCode", s.ZipCode},
		{"country", s.Country},
	} {
		e.FieldStart(f.k)
		e.Str(f.v)
	}
	e.ObjEnd()
}

// encodePayment never writes the card number or CVV.
func encodePayment(e *jx.Encoder, p checkout.PaymentInfo) {
	e.ObjStart()
	e.FieldStart("cardName")
	e.Str(p.CardName)
	e.FieldStart("cardLast4")
	e.Str(p.Last4())
	e.FieldStart("expiryDate")
	e.Str(p.ExpiryDate)
	e.ObjEnd()
}

func encodeSummary(e *jx.Encoder, s order.Summary) {
	e.ObjStart()
	e.FieldStart("subtotal")
	encodeMoney(e, s.Subtotal)
	e.FieldStart("shipping")
	encodeMoney(e, s.ShippingFee)
	e.FieldStart("tax")
	encodeMoney(e, s.Tax)
	e.FieldStart("total")
	encodeMoney(e, s.Total)
	e.ObjEnd()
}

// checkoutView is the response for every checkout endpoint.
type checkoutView struct {
	state     checkout.State
	cart      cart.Snapshot
	pricing   order.Pricing
	expiresAt time.Time
	redirect  string
}

func (v checkoutView) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("step")
	e.Int(int(v.state.Step))
	e.FieldStart("stepName")
	e.Str(v.state.Step.String())
	if v.state.Shipping != nil {
		e.FieldStart("shipping")
		encodeShipping(e, *v.state.Shipping)
	}
	if v.state.Payment != nil {
		e.FieldStart("payment")
		encodePayment(e, *v.state.Payment)
	}
	if len(v.cart.Items) > 0 {
		e.FieldStart("summary")
		encodeSummary(e, v.pricing.Summarize(v.cart.TotalPrice()))
	}
	if r := v.state.Receipt; r != nil {
		e.FieldStart("order")
		e.ObjStart()
		e.FieldStart("id")
		e.Str(r.OrderID)
		e.FieldStart("total")
		encodeMoney(e, r.Total)
		e.ObjEnd()
	}
	if !v.expiresAt.IsZero() {
		e.FieldStart("resetAt")
		e.Str(v.expiresAt.UTC().Format(time.RFC3339))
	}
	if v.redirect != "" {
		e.FieldStart("redirect")
		e.Str(v.redirect)
	}
	e.ObjEnd()
}

func decodeShipping(r *http.Request) (checkout.ShippingInfo, error) {
	var s checkout.ShippingInfo
	fields := map[string]*string{
		"firstName": &s.FirstName,
		"lastName":  &s.LastName,
		"email":     &s.Email,
		"phone":     &s.Phone,
		"address":   &s.Address,
		"city":      &s.City,
		"state":     &s.State,
		"zipCode":   &s.ZipCode,
		"country":   &s.Country,
	}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if dst, ok := fields[key]; ok {
			return decodeString(d, dst)
		}
		return d.Skip()
	})
	return s, err
}

func decodePayment(r *http.Request) (checkout.PaymentInfo, error) {
	var p checkout.PaymentInfo
	fields := map[string]*string{
		"cardName":   &p.CardName,
		"cardNumber": &p.CardNumber,
		"expiryDate": &p.ExpiryDate,
		"cvv":        &p.CVV,
	}
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if dst, ok := fields[key]; ok {
			return decodeString(d, dst)
		}
		return d.Skip()
	})
	return p, err
}

// decodeStep accepts the step as a number or a step name.
func decodeStep(r *http.Request) (checkout.Step, error) {
	var step checkout.Step
	err := decodeBody(r, func(d *jx.Decoder, key string) error {
		if key != "step" {
			return d.Skip()
		}
		switch d.Next() {
		case jx.Number:
			n, err := d.Int()
			step = checkout.Step(n)
			return err
		case jx.String:
			s, err := d.Str()
			if err != nil {
				return err
			}
			step = parseStepName(s)
			return nil
		default:
			return errors.New("step must be a number or name")
		}
	})
	if err != nil {
		return 0, err
	}
	if !step.Valid() {
		return 0, badRequest("unknown step")
	}
	return step, nil
}

func parseStepName(s string) checkout.Step {
	for st := checkout.StepShipping; st <= checkout.StepConfirmation; st++ {
		if st.String() == s {
			return st
		}
	}
	if n, err := strconv.Atoi(s); err == nil {
		return checkout.Step(n)
	}
	return 0
}
