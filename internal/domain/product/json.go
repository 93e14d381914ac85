package product

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// timeLayout matches the millisecond ISO-8601 form the storefront dataset uses.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Encode writes p as a JSON object using the storefront field names.
func (p Product) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("price")
	e.Float64(p.Price.InexactFloat64())
	e.FieldStart("originalPrice")
	e.Float64(p.OriginalPrice.InexactFloat64())
	e.FieldStart("discount")
	e.Float64(p.Discount)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("rating")
	e.Float64(p.Rating)
	e.FieldStart("reviewCount")
	e.Int(p.ReviewCount)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("images")
	encodeStrings(e, p.Images)
	e.FieldStart("tags")
	encodeStrings(e, p.Tags)
	e.FieldStart("createdAt")
	e.Str(p.CreatedAt.UTC().Format(timeLayout))
	e.ObjEnd()
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.ArrStart()
	for _, s := range ss {
		e.Str(s)
	}
	e.ArrEnd()
}

// Decode reads a JSON object produced by Encode (or by the dataset generator).
// Unknown fields are skipped.
func (p *Product) Decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "id":
			p.ID, err = d.Str()
		case "name":
			p.Name, err = d.Str()
		case "description":
			p.Description, err = d.Str()
		case "brand":
			p.Brand, err = d.Str()
		case "category":
			p.Category, err = d.Str()
		case "price":
			p.Price, err = decodeDecimal(d)
		case "originalPrice":
			p.OriginalPrice, err = decodeDecimal(d)
		case "discount":
			p.Discount, err = d.Float64()
		case "rating":
			p.Rating, err = d.Float64()
		case "reviewCount":
			p.ReviewCount, err = d.Int()
		case "stock":
			p.Stock, err = d.Int()
		case "images":
			p.Images, err = decodeStrings(d)
		case "tags":
			p.Tags, err = decodeStrings(d)
		case "createdAt":
			p.CreatedAt, err = decodeTime(d)
		default:
			err = d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
}

// DecodeList streams a JSON array of products, calling fn for each element.
func DecodeList(d *jx.Decoder, fn func(Product) error) error {
	return d.Arr(func(d *jx.Decoder) error {
		var p Product
		if err := p.Decode(d); err != nil {
			return err
		}
		return fn(p)
	})
}

func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	n, err := d.Num()
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromString(string(n))
}

func decodeStrings(d *jx.Decoder) ([]string, error) {
	out := []string{}
	err := d.Arr(func(d *jx.Decoder) error {
		s, err := d.Str()
		if err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, s)
}
