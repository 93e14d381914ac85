package session

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
	"github.com/xenking/storefront/internal/domain/checkout"
	"github.com/xenking/storefront/internal/domain/product"
)

const snapshotVersion = 1

// Keys under which a session's blobs are stored.
func cartKey(id string) string     { return "cart:" + id }
func checkoutKey(id string) string { return "checkout:" + id }

type cartLine struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartSnapshot struct {
	Version int        `json:"version"`
	Items   []cartLine `json:"items"`
}

type receiptSnapshot struct {
	OrderID string          `json:"orderId"`
	Total   decimal.Decimal `json:"total"`
}

type checkoutSnapshot struct {
	Version     int                    `json:"version"`
	Step        int                    `json:"step"`
	Shipping    *checkout.ShippingInfo `json:"shipping,omitempty"`
	Payment     *checkout.PaymentInfo  `json:"payment,omitempty"`
	Receipt     *receiptSnapshot       `json:"receipt,omitempty"`
	ConfirmedAt *time.Time             `json:"confirmedAt,omitempty"`
}

func encodeCart(s cart.Snapshot) ([]byte, error) {
	snap := cartSnapshot{Version: snapshotVersion, Items: make([]cartLine, 0, len(s.Items))}
	for _, li := range s.Items {
		snap.Items = append(snap.Items, cartLine{ProductID: li.Product.ID, Quantity: li.Quantity})
	}
	return json.Marshal(snap)
}

// decodeCart returns a snapshot whose products carry only their id; the
// ledger refreshes them from the catalog on restore.
func decodeCart(data []byte) (cart.Snapshot, error) {
	var snap cartSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return cart.Snapshot{}, err
	}
	s := cart.Snapshot{Items: make([]cart.LineItem, 0, len(snap.Items))}
	for _, l := range snap.Items {
		s.Items = append(s.Items, cart.LineItem{
			Product:  product.Product{ID: l.ProductID},
			Quantity: l.Quantity,
		})
	}
	return s, nil
}

// encodeCheckout never writes the full card number or CVV.
func encodeCheckout(st checkout.State) ([]byte, error) {
	snap := checkoutSnapshot{
		Version:  snapshotVersion,
		Step:     int(st.Step),
		Shipping: st.Shipping,
	}
	if st.Payment != nil {
		p := st.Payment.Redacted()
		snap.Payment = &p
	}
	if st.Receipt != nil {
		snap.Receipt = &receiptSnapshot{OrderID: st.Receipt.OrderID, Total: st.Receipt.Total}
	}
	if !st.ConfirmedAt.IsZero() {
		t := st.ConfirmedAt.UTC()
		snap.ConfirmedAt = &t
	}
	return json.Marshal(snap)
}

func decodeCheckout(data []byte) (checkout.State, error) {
	var snap checkoutSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return checkout.State{}, err
	}
	st := checkout.State{
		Step:     checkout.Step(snap.Step),
		Shipping: snap.Shipping,
		Payment:  snap.Payment,
	}
	if snap.Receipt != nil {
		st.Receipt = &checkout.Receipt{OrderID: snap.Receipt.OrderID, Total: snap.Receipt.Total}
	}
	if snap.ConfirmedAt != nil {
		st.ConfirmedAt = *snap.ConfirmedAt
	}
	return st, nil
}
