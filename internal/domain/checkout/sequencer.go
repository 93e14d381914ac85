// Package checkout implements the four-step checkout flow: shipping, payment,
// review and confirmation.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/cart"
)

// Step is a position in the checkout flow.
type Step int

const (
	StepShipping Step = iota + 1
	StepPayment
	StepReview
	StepConfirmation
)

// DefaultConfirmationDwell is how long the confirmation step is shown before
// the flow resets.
const DefaultConfirmationDwell = 10 * time.Second

func (s Step) String() string {
	switch s {
	case StepShipping:
		return "shipping"
	case StepPayment:
		return "payment"
	case StepReview:
		return "review"
	case StepConfirmation:
		return "confirmation"
	default:
		return "unknown"
	}
}

// Valid reports whether s is one of the four steps.
func (s Step) Valid() bool {
	return s >= StepShipping && s <= StepConfirmation
}

var (
	// ErrCartEmpty is returned when checkout is entered or an order placed
	// with nothing in the cart.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrStepOrder is returned when an operation is not allowed at the
	// current step.
	ErrStepOrder = errors.New("operation not allowed at current step")
)

// StepError reports an out-of-order transition. It matches ErrStepOrder.
type StepError struct {
	Op      string
	Current Step
}

func (e *StepError) Error() string {
	return e.Op + ": not allowed at step " + e.Current.String()
}

func (e *StepError) Is(target error) bool { return target == ErrStepOrder }

// Receipt is what the order backend returns for a placed order.
type Receipt struct {
	OrderID string
	Total   decimal.Decimal
}

// OrderRequest is handed to the OrderPlacer on step 3.
type OrderRequest struct {
	Items    []cart.LineItem
	Shipping ShippingInfo
	Payment  PaymentInfo
}

// OrderPlacer submits an order. It must not have side effects on failure.
type OrderPlacer interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (*Receipt, error)
}

// State is the persisted checkout position.
type State struct {
	Step        Step
	Shipping    *ShippingInfo
	Payment     *PaymentInfo
	Receipt     *Receipt
	ConfirmedAt time.Time
}

// Initial returns the state at step 1 with nothing collected.
func Initial() State {
	return State{Step: StepShipping}
}

// Listener is notified after every state change.
type Listener func(State)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithDwell overrides DefaultConfirmationDwell.
func WithDwell(d time.Duration) Option {
	return func(s *Sequencer) { s.dwell = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Sequencer) { s.now = now }
}

// Sequencer drives one checkout. It is not safe for concurrent use.
type Sequencer struct {
	state        State
	dwell        time.Duration
	now          func() time.Time
	listeners    map[int]Listener
	nextListener int
}

// New returns a sequencer at step 1.
func New(opts ...Option) *Sequencer {
	return Restore(Initial(), opts...)
}

// Restore returns a sequencer positioned at a previously persisted state.
// An invalid step falls back to step 1.
func Restore(st State, opts ...Option) *Sequencer {
	s := &Sequencer{
		state: st,
		dwell: DefaultConfirmationDwell,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if !s.state.Step.Valid() {
		s.state = Initial()
	}
	return s
}

// State returns a copy of the current state.
func (s *Sequencer) State() State {
	st := s.state
	if st.Shipping != nil {
		v := *st.Shipping
		st.Shipping = &v
	}
	if st.Payment != nil {
		v := *st.Payment
		st.Payment = &v
	}
	if st.Receipt != nil {
		v := *st.Receipt
		st.Receipt = &v
	}
	return st
}

// Step returns the current step.
func (s *Sequencer) Step() Step { return s.state.Step }

// Enter is called whenever the checkout view is opened. With an empty cart and
// no order just confirmed it returns ErrCartEmpty so the caller can redirect
// to the catalog. A step whose prerequisites are missing is walked back to the
// first incomplete step.
func (s *Sequencer) Enter(cartEmpty bool) (State, error) {
	if s.state.Step == StepConfirmation {
		if s.state.Receipt == nil {
			s.set(Initial())
		} else {
			return s.State(), nil
		}
	}
	if cartEmpty {
		return s.State(), ErrCartEmpty
	}

	st := s.state
	if st.Step >= StepPayment && st.Shipping == nil {
		st.Step = StepShipping
	} else if st.Step >= StepReview && st.Payment == nil {
		st.Step = StepPayment
	}
	if st.Step != s.state.Step {
		s.set(st)
	}
	return s.State(), nil
}

// SubmitShipping validates and stores shipping info, advancing to step 2.
func (s *Sequencer) SubmitShipping(info ShippingInfo) (State, error) {
	if s.state.Step != StepShipping {
		return s.State(), &StepError{Op: "submit shipping", Current: s.state.Step}
	}
	info, err := info.Validate()
	if err != nil {
		return s.State(), err
	}
	st := s.state
	st.Shipping = &info
	st.Step = StepPayment
	s.set(st)
	return s.State(), nil
}

// SubmitPayment validates and stores payment info, advancing to step 3.
func (s *Sequencer) SubmitPayment(info PaymentInfo) (State, error) {
	if s.state.Step != StepPayment || s.state.Shipping == nil {
		return s.State(), &StepError{Op: "submit payment", Current: s.state.Step}
	}
	info, err := info.Validate()
	if err != nil {
		return s.State(), err
	}
	st := s.state
	st.Payment = &info
	st.Step = StepReview
	s.set(st)
	return s.State(), nil
}

// Back moves one step backwards from payment or review. Collected info is kept.
func (s *Sequencer) Back() (State, error) {
	switch s.state.Step {
	case StepPayment, StepReview:
		st := s.state
		st.Step--
		s.set(st)
		return s.State(), nil
	default:
		return s.State(), &StepError{Op: "back", Current: s.state.Step}
	}
}

// Edit jumps back to an earlier step to change what was entered there.
// Forward jumps and leaving the confirmation step are rejected.
func (s *Sequencer) Edit(to Step) (State, error) {
	cur := s.state.Step
	if cur == StepConfirmation || !to.Valid() || to >= cur {
		return s.State(), &StepError{Op: "edit " + to.String(), Current: cur}
	}
	st := s.state
	st.Step = to
	s.set(st)
	return s.State(), nil
}

// PlaceOrder submits the order on step 3. On success the cart is cleared and
// the flow moves to the confirmation step; on failure nothing changes.
func (s *Sequencer) PlaceOrder(ctx context.Context, ledger *cart.Ledger, placer OrderPlacer) (State, error) {
	st := s.state
	if st.Step != StepReview || st.Shipping == nil || st.Payment == nil {
		return s.State(), &StepError{Op: "place order", Current: st.Step}
	}
	if ledger.IsEmpty() {
		return s.State(), ErrCartEmpty
	}

	receipt, err := placer.PlaceOrder(ctx, OrderRequest{
		Items:    ledger.Snapshot().Items,
		Shipping: *st.Shipping,
		Payment:  *st.Payment,
	})
	if err != nil {
		return s.State(), errors.Wrap(err, "place order")
	}

	ledger.Clear()
	st.Step = StepConfirmation
	st.Receipt = receipt
	st.ConfirmedAt = s.now()
	s.set(st)
	return s.State(), nil
}

// Expire resets the flow once the confirmation step has been shown for the
// dwell period. It reports whether a reset happened.
func (s *Sequencer) Expire(now time.Time) bool {
	if s.state.Step != StepConfirmation || now.Sub(s.state.ConfirmedAt) < s.dwell {
		return false
	}
	s.set(Initial())
	return true
}

// ExpiresAt returns when the confirmation step will reset, or the zero time
// when not on it.
func (s *Sequencer) ExpiresAt() time.Time {
	if s.state.Step != StepConfirmation {
		return time.Time{}
	}
	return s.state.ConfirmedAt.Add(s.dwell)
}

// Reset returns to step 1 and forgets collected info.
func (s *Sequencer) Reset() State {
	s.set(Initial())
	return s.State()
}

// Subscribe registers fn for change notifications and returns a function that
// removes it.
func (s *Sequencer) Subscribe(fn Listener) (unsubscribe func()) {
	if s.listeners == nil {
		s.listeners = make(map[int]Listener)
	}
	id := s.nextListener
	s.nextListener++
	s.listeners[id] = fn
	return func() { delete(s.listeners, id) }
}

func (s *Sequencer) set(st State) {
	s.state = st
	if len(s.listeners) == 0 {
		return
	}
	snap := s.State()
	for _, fn := range s.listeners {
		fn(snap)
	}
}
