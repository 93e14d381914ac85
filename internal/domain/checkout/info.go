package checkout

import (
	"reflect"
	"regexp"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-playground/validator/v10"
)

// ShippingInfo is the delivery address collected at step 1.
type ShippingInfo struct {
	FirstName string `json:"firstName" validate:"required"`
	LastName  string `json:"lastName" validate:"required"`
	Email     string `json:"email" validate:"required,email"`
	Phone     string `json:"phone" validate:"required,phone"`
	Address   string `json:"address" validate:"required"`
	City      string `json:"city" validate:"required"`
	State     string `json:"state" validate:"required"`
	ZipCode   string `json:"zipCode" validate:"required"`
	Country   string `json:"country" validate:"required"`
}

// PaymentInfo is the card collected at step 2.
type PaymentInfo struct {
	CardName   string `json:"cardName" validate:"required,min=3"`
	CardNumber string `json:"cardNumber" validate:"required,cardnumber"`
	ExpiryDate string `json:"expiryDate" validate:"required,expiry"`
	CVV        string `json:"cvv" validate:"required,cvv"`
}

// Last4 returns the last four digits of the card number.
func (p PaymentInfo) Last4() string {
	if len(p.CardNumber) < 4 {
		return p.CardNumber
	}
	return p.CardNumber[len(p.CardNumber)-4:]
}

// Redacted returns a copy safe to persist or display: the card number keeps
// only its last four digits and the CVV is dropped.
func (p PaymentInfo) Redacted() PaymentInfo {
	last4 := p.Last4()
	return PaymentInfo{
		CardName:   p.CardName,
		CardNumber: strings.Repeat("*", len(p.CardNumber)-len(last4)) + last4,
		ExpiryDate: p.ExpiryDate,
	}
}

func (s ShippingInfo) normalize() ShippingInfo {
	for _, f := range []*string{
		&s.FirstName, &s.LastName, &s.Email, &s.Phone, &s.Address,
		&s.City, &s.State, &s.ZipCode, &s.Country,
	} {
		*f = strings.TrimSpace(*f)
	}
	return s
}

func (p PaymentInfo) normalize() PaymentInfo {
	p.CardName = strings.TrimSpace(p.CardName)
	p.CardNumber = strings.NewReplacer(" ", "", "-", "").Replace(p.CardNumber)
	p.ExpiryDate = strings.TrimSpace(p.ExpiryDate)
	p.CVV = strings.TrimSpace(p.CVV)
	return p
}

// ValidationError carries one message per invalid field, keyed by the JSON
// field name.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return "invalid " + strings.Join(names, ", ")
}

var fieldMessages = map[string]string{
	"firstName":  "First name is required",
	"lastName":   "Last name is required",
	"email":      "Invalid email address",
	"phone":      "Phone number must be 7 to 20 digits",
	"address":    "Address is required",
	"city":       "City is required",
	"state":      "State is required",
	"zipCode":    "ZIP code is required",
	"country":    "Country is required",
	"cardName":   "Name on card is required",
	"cardNumber": "Card number must be 16 digits",
	"expiryDate": "Expiry date must be MM/YY format",
	"cvv":        "CVV must be 3 or 4 digits",
}

var (
	phoneRe      = regexp.MustCompile(`^[0-9+\-() ]{7,20}$`)
	cardNumberRe = regexp.MustCompile(`^\d{16}$`)
	expiryRe     = regexp.MustCompile(`^(0[1-9]|1[0-2])/\d{2}$`)
	cvvRe        = regexp.MustCompile(`^\d{3,4}$`)
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		return name
	})
	for tag, re := range map[string]*regexp.Regexp{
		"phone":      phoneRe,
		"cardnumber": cardNumberRe,
		"expiry":     expiryRe,
		"cvv":        cvvRe,
	} {
		re := re
		if err := v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return re.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}
	}
	return v
}

func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	ve := &ValidationError{Fields: make(map[string]string, len(fieldErrs))}
	for _, fe := range fieldErrs {
		msg, ok := fieldMessages[fe.Field()]
		if !ok {
			msg = fe.Field() + " is invalid"
		}
		ve.Fields[fe.Field()] = msg
	}
	return ve
}

// Validate normalises whitespace and checks every field.
func (s ShippingInfo) Validate() (ShippingInfo, error) {
	s = s.normalize()
	return s, validateStruct(s)
}

// Validate normalises the card number and checks every field.
func (p PaymentInfo) Validate() (PaymentInfo, error) {
	p = p.normalize()
	return p, validateStruct(p)
}
