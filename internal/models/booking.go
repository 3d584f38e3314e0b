package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Booking struct {
	ID            int64           `json:"id"`
	CustomerID    string          `json:"customerId"`
	VendorID      string          `json:"vendorId"`
	PackageID     string          `json:"packageId,omitempty"`
	EventType     string          `json:"eventType,omitempty"`
	EventDate     time.Time       `json:"eventDate"`
	GuestCount    int             `json:"guestCount,omitempty"`
	Location      string          `json:"location,omitempty"`
	Notes         string          `json:"notes,omitempty"`
	Budget        decimal.Decimal `json:"budget"`
	MaxBudget     decimal.Decimal `json:"maxBudget"`
	Status        BookingStatus   `json:"status"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	Negotiation   *Negotiation    `json:"negotiation,omitempty"`
	Timeline      []TimelineEntry `json:"timeline"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	Version       int64           `json:"version"`
}

// Negotiation tracks the price offers exchanged between customer and vendor.
type Negotiation struct {
	Enabled            bool              `json:"enabled"`
	OriginalPrice      decimal.Decimal   `json:"originalPrice"`
	OfferedPrice       decimal.Decimal   `json:"offeredPrice"`
	DiscountPercent    int64             `json:"discountPercent"`
	Status             NegotiationStatus `json:"status"`
	VendorCounterOffer *CounterOffer     `json:"vendorCounterOffer,omitempty"`
	FinalPrice         *decimal.Decimal  `json:"finalPrice,omitempty"`
}

type CounterOffer struct {
	Price           decimal.Decimal `json:"price"`
	DiscountPercent int64           `json:"discountPercent"`
	Message         string          `json:"message,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// TimelineEntry is one append-only audit record of a booking.
type TimelineEntry struct {
	Status      BookingStatus     `json:"status"`
	Timestamp   time.Time         `json:"timestamp"`
	Description string            `json:"description"`
	Actor       Actor             `json:"actor"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (b *Booking) Clone() *Booking {
	if b == nil {
		return nil
	}
	out := *b
	if b.Negotiation != nil {
		n := *b.Negotiation
		if n.VendorCounterOffer != nil {
			co := *n.VendorCounterOffer
			n.VendorCounterOffer = &co
		}
		if n.FinalPrice != nil {
			fp := *n.FinalPrice
			n.FinalPrice = &fp
		}
		out.Negotiation = &n
	}
	out.Timeline = make([]TimelineEntry, len(b.Timeline))
	for i, e := range b.Timeline {
		if e.Metadata != nil {
			md := make(map[string]string, len(e.Metadata))
			for k, v := range e.Metadata {
				md[k] = v
			}
			e.Metadata = md
		}
		out.Timeline[i] = e
	}
	return &out
}

// LastTimelineAt returns the timestamp of the most recent timeline entry.
func (b *Booking) LastTimelineAt() time.Time {
	if len(b.Timeline) == 0 {
		return time.Time{}
	}
	return b.Timeline[len(b.Timeline)-1].Timestamp
}

// AgreedPrice returns the final price if set, otherwise the budget.
func (b *Booking) AgreedPrice() decimal.Decimal {
	if b.Negotiation != nil && b.Negotiation.FinalPrice != nil {
		return *b.Negotiation.FinalPrice
	}
	return b.Budget
}

// BookingFilter narrows a booking listing. Empty fields are ignored.
type BookingFilter struct {
	CustomerID string
	VendorID   string
	Status     BookingStatus
}

// TransitionFunc receives the stored booking and returns the updated booking
// together with the timeline entries to append.
type TransitionFunc func(current *Booking) (*Booking, []TimelineEntry, error)
