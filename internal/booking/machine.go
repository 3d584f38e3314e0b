package booking

import (
	"errors"
	"fmt"
	"math"
	"time"

	"planora/internal/models"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTransition = errors.New("transition not allowed from current status")
	ErrTerminalState     = errors.New("booking is in a terminal state")
	ErrActorNotAllowed   = errors.New("actor is not allowed to perform this action")
	ErrActorMismatch     = errors.New("actor is not a party to this booking")
	ErrUnauthenticated   = errors.New("user not authenticated")
	ErrFinalPriceLocked  = errors.New("final price is already set")
	ErrInvalidPrice      = errors.New("price must be positive")
	ErrNoCounterOffer    = errors.New("booking has no vendor counter offer")
)

var (
	hundred     = decimal.NewFromInt(100)
	maxDiscount = decimal.NewFromInt(math.MaxInt64)
	minDiscount = decimal.NewFromInt(math.MinInt64)
)

// DiscountPercent returns round((original - offered) / original * 100).
// A zero original price yields 0. A percentage outside int64 is
// ErrInvalidPrice.
func DiscountPercent(original, offered decimal.Decimal) (int64, error) {
	if original.IsZero() {
		return 0, nil
	}
	pct := original.Sub(offered).Div(original).Mul(hundred).Round(0)
	if pct.GreaterThan(maxDiscount) || pct.LessThan(minDiscount) {
		return 0, fmt.Errorf("%w: discount of %s%% is out of range", ErrInvalidPrice, pct.String())
	}
	return pct.IntPart(), nil
}

// Command is a request to apply an action to a booking.
type Command struct {
	Action   Action
	Actor    models.Actor
	ActorID  string
	Price    *decimal.Decimal
	Message  string
	Metadata map[string]string
}

// Result holds the booking after a transition and the entries it appended.
type Result struct {
	Booking *models.Booking
	From    models.BookingStatus
	To      models.BookingStatus
	Entries []models.TimelineEntry
}

// Machine is the single authority over booking status changes.
type Machine struct {
	now func() time.Time
}

func NewMachine() *Machine {
	return &Machine{now: time.Now}
}

// NewMachineWithClock is used where the caller controls time.
func NewMachineWithClock(now func() time.Time) *Machine {
	if now == nil {
		now = time.Now
	}
	return &Machine{now: now}
}

// timestamp never goes below the last timeline entry.
func (m *Machine) timestamp(b *models.Booking) time.Time {
	now := m.now().UTC()
	if last := b.LastTimelineAt(); now.Before(last) {
		return last
	}
	return now
}

// Open prepares a freshly submitted booking: initial status, negotiation
// defaults and the first timeline entry.
func (m *Machine) Open(b *models.Booking) error {
	if b.Budget.IsNegative() || b.MaxBudget.IsNegative() {
		return ErrInvalidPrice
	}

	b.Status = models.StatusPending
	b.PaymentStatus = models.PaymentPending
	b.Timeline = nil

	meta := map[string]string{"budget": b.Budget.String()}
	description := "Booking request submitted"

	if n := b.Negotiation; n != nil && n.Enabled {
		if n.OriginalPrice.IsZero() {
			n.OriginalPrice = b.Budget
		}
		if !n.OfferedPrice.IsPositive() {
			return ErrInvalidPrice
		}
		discount, err := DiscountPercent(n.OriginalPrice, n.OfferedPrice)
		if err != nil {
			return err
		}
		n.DiscountPercent = discount
		n.Status = models.NegotiationPending
		n.VendorCounterOffer = nil
		n.FinalPrice = nil

		b.Status = models.StatusNegotiationPending
		description = fmt.Sprintf("Customer offered %s", n.OfferedPrice.String())
		meta["offeredPrice"] = n.OfferedPrice.String()
		meta["discountPercent"] = fmt.Sprintf("%d", n.DiscountPercent)
	} else {
		b.Negotiation = nil
	}

	b.Timeline = []models.TimelineEntry{{
		Status:      b.Status,
		Timestamp:   m.timestamp(b),
		Description: description,
		Actor:       models.ActorCustomer,
		Metadata:    meta,
	}}
	return nil
}

// Apply validates cmd against the transition table and returns the updated
// booking. The input booking is never modified.
func (m *Machine) Apply(current *models.Booking, cmd Command) (*Result, error) {
	if current.Status.IsTerminal() {
		return nil, ErrTerminalState
	}

	t, ok := findTransition(current.Status, cmd.Action)
	if !ok {
		return nil, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, cmd.Action, current.Status)
	}
	if !t.allows(cmd.Actor) {
		return nil, fmt.Errorf("%w: %s cannot %s", ErrActorNotAllowed, cmd.Actor, cmd.Action)
	}
	if err := checkParty(current, cmd); err != nil {
		return nil, err
	}

	b := current.Clone()
	at := m.timestamp(b)
	res := &Result{Booking: b, From: current.Status, To: t.To}

	entry := func(status models.BookingStatus, description string, meta map[string]string) {
		merged := make(map[string]string, len(cmd.Metadata)+len(meta)+1)
		for k, v := range cmd.Metadata {
			merged[k] = v
		}
		for k, v := range meta {
			merged[k] = v
		}
		if cmd.Message != "" {
			merged["message"] = cmd.Message
		}
		if len(merged) == 0 {
			merged = nil
		}
		res.Entries = append(res.Entries, models.TimelineEntry{
			Status:      status,
			Timestamp:   at,
			Description: description,
			Actor:       cmd.Actor,
			Metadata:    merged,
		})
	}

	switch cmd.Action {
	case ActionStartReview:
		entry(t.To, "Vendor is reviewing the request", nil)

	case ActionVendorAccept:
		if current.Status == models.StatusNegotiationPending {
			n := b.Negotiation
			if n == nil {
				return nil, fmt.Errorf("%w: negotiation missing", ErrInvalidTransition)
			}
			if err := setFinalPrice(n, n.OfferedPrice); err != nil {
				return nil, err
			}
			n.Status = models.NegotiationAccepted
			entry(t.To, fmt.Sprintf("Vendor accepted the offered price of %s", n.OfferedPrice.String()),
				map[string]string{"finalPrice": n.OfferedPrice.String()})
		} else {
			entry(t.To, "Vendor accepted the booking request", nil)
		}

	case ActionVendorReject:
		if b.Negotiation != nil {
			b.Negotiation.Status = models.NegotiationRejected
		}
		entry(t.To, "Vendor rejected the booking request", nil)

	case ActionVendorCounter:
		if cmd.Price == nil || !cmd.Price.IsPositive() {
			return nil, ErrInvalidPrice
		}
		if b.Negotiation == nil {
			b.Negotiation = &models.Negotiation{
				Enabled:       true,
				OriginalPrice: b.Budget,
				OfferedPrice:  b.Budget,
			}
		}
		n := b.Negotiation
		if n.FinalPrice != nil {
			return nil, ErrFinalPriceLocked
		}
		original := n.OriginalPrice
		if original.IsZero() {
			original = b.Budget
		}
		discount, err := DiscountPercent(original, *cmd.Price)
		if err != nil {
			return nil, err
		}
		n.Enabled = true
		n.Status = models.NegotiationCounterOffered
		n.DiscountPercent = discount
		n.VendorCounterOffer = &models.CounterOffer{
			Price:           *cmd.Price,
			DiscountPercent: discount,
			Message:         cmd.Message,
			Timestamp:       at,
		}
		entry(t.To, fmt.Sprintf("Vendor sent a counter offer of %s (%d%% discount)", cmd.Price.String(), discount),
			map[string]string{
				"price":           cmd.Price.String(),
				"discountPercent": fmt.Sprintf("%d", discount),
			})

	case ActionCustomerAccept:
		n := b.Negotiation
		if n == nil || n.VendorCounterOffer == nil {
			return nil, ErrNoCounterOffer
		}
		price := n.VendorCounterOffer.Price
		if err := setFinalPrice(n, price); err != nil {
			return nil, err
		}
		n.Status = models.NegotiationAccepted
		entry(t.To, fmt.Sprintf("Customer accepted the counter offer of %s", price.String()),
			map[string]string{"finalPrice": price.String()})

	case ActionCustomerReject:
		if b.Negotiation != nil {
			b.Negotiation.Status = models.NegotiationRejected
		}
		entry(t.To, "Customer rejected the counter offer", nil)

	case ActionInitiatePayment:
		if b.Negotiation == nil {
			b.Negotiation = &models.Negotiation{
				OriginalPrice: b.Budget,
				OfferedPrice:  b.Budget,
				Status:        models.NegotiationAccepted,
			}
		}
		if b.Negotiation.FinalPrice == nil {
			fp := b.Budget
			b.Negotiation.FinalPrice = &fp
		}
		b.PaymentStatus = models.PaymentPending
		entry(t.To, fmt.Sprintf("Payment of %s initiated", b.Negotiation.FinalPrice.String()),
			map[string]string{"amount": b.Negotiation.FinalPrice.String()})

	case ActionPaymentSucceeded:
		b.PaymentStatus = models.PaymentPaid
		entry(models.StatusPaymentCompleted, "Payment completed", nil)
		entry(t.To, "Booking confirmed and in progress", nil)

	case ActionPaymentFailed:
		b.PaymentStatus = models.PaymentFailed
		entry(t.To, "Payment failed", nil)

	case ActionStartService:
		entry(t.To, "Booking confirmed and in progress", nil)

	case ActionStartPreparing:
		entry(t.To, "Vendor is preparing", nil)

	case ActionDepart:
		entry(t.To, "Vendor is on the way", nil)

	case ActionArrive:
		entry(t.To, "Vendor arrived at the venue", nil)

	case ActionStartEvent:
		entry(t.To, "Event in progress", nil)

	case ActionComplete:
		entry(t.To, "Booking completed", nil)

	case ActionCancel:
		entry(t.To, fmt.Sprintf("Booking cancelled by %s", cmd.Actor), nil)

	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidTransition, cmd.Action)
	}

	b.Status = t.To
	b.UpdatedAt = at
	b.Timeline = append(b.Timeline, res.Entries...)
	return res, nil
}

func setFinalPrice(n *models.Negotiation, price decimal.Decimal) error {
	if n.FinalPrice != nil {
		return ErrFinalPriceLocked
	}
	fp := price
	n.FinalPrice = &fp
	return nil
}

// checkParty ties customer and vendor actors to the booking they act on.
func checkParty(b *models.Booking, cmd Command) error {
	switch cmd.Actor {
	case models.ActorCustomer:
		if cmd.ActorID == "" {
			return ErrUnauthenticated
		}
		if cmd.ActorID != b.CustomerID {
			return ErrActorMismatch
		}
	case models.ActorVendor:
		if cmd.ActorID == "" {
			return ErrUnauthenticated
		}
		if cmd.ActorID != b.VendorID {
			return ErrActorMismatch
		}
	}
	return nil
}
