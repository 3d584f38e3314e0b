package models

import (
	"fmt"
	"strings"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending              BookingStatus = "pending"
	StatusVendorReviewing      BookingStatus = "vendor_reviewing"
	StatusNegotiationPending   BookingStatus = "negotiation_pending"
	StatusVendorAccepted       BookingStatus = "vendor_accepted"
	StatusVendorCounterOffered BookingStatus = "vendor_counter_offered"
	StatusPriceAgreed          BookingStatus = "price_agreed"
	StatusPaymentPending       BookingStatus = "payment_pending"
	StatusPaymentCompleted     BookingStatus = "payment_completed"
	StatusInProgress           BookingStatus = "in_progress"
	StatusVendorPreparing      BookingStatus = "vendor_preparing"
	StatusOnTheWay             BookingStatus = "on_the_way"
	StatusArrived              BookingStatus = "arrived"
	StatusEventInProgress      BookingStatus = "event_in_progress"
	StatusCompleted            BookingStatus = "completed"
	StatusCancelled            BookingStatus = "cancelled"
)

// Legacy spellings still found in stored documents.
const (
	legacyStatusBookingCreated = "booking_created"
	legacyStatusVendorRejected = "vendor_rejected"
)

var bookingStatuses = map[BookingStatus]struct{}{
	StatusPending:              {},
	StatusVendorReviewing:      {},
	StatusNegotiationPending:   {},
	StatusVendorAccepted:       {},
	StatusVendorCounterOffered: {},
	StatusPriceAgreed:          {},
	StatusPaymentPending:       {},
	StatusPaymentCompleted:     {},
	StatusInProgress:           {},
	StatusVendorPreparing:      {},
	StatusOnTheWay:             {},
	StatusArrived:              {},
	StatusEventInProgress:      {},
	StatusCompleted:            {},
	StatusCancelled:            {},
}

// ParseBookingStatus maps a stored or user supplied status onto the closed set,
// folding legacy aliases.
func ParseBookingStatus(s string) (BookingStatus, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case legacyStatusBookingCreated:
		return StatusPending, nil
	case legacyStatusVendorRejected:
		return StatusCancelled, nil
	}
	st := BookingStatus(s)
	if _, ok := bookingStatuses[st]; !ok {
		return "", fmt.Errorf("unknown booking status: %q", s)
	}
	return st, nil
}

func (s *BookingStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseBookingStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StoredSpellings returns every value a stored row may carry for s,
// the canonical one first.
func (s BookingStatus) StoredSpellings() []string {
	switch s {
	case StatusPending:
		return []string{string(s), legacyStatusBookingCreated}
	case StatusCancelled:
		return []string{string(s), legacyStatusVendorRejected}
	}
	return []string{string(s)}
}

// IsTerminal reports whether no further action is accepted.
func (s BookingStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// NegotiationStatus is the state of the embedded price negotiation.
type NegotiationStatus string

const (
	NegotiationPending        NegotiationStatus = "pending"
	NegotiationAccepted       NegotiationStatus = "accepted"
	NegotiationRejected       NegotiationStatus = "rejected"
	NegotiationCounterOffered NegotiationStatus = "counter_offered"
)

func ParseNegotiationStatus(s string) (NegotiationStatus, error) {
	switch NegotiationStatus(strings.ToLower(strings.TrimSpace(s))) {
	case "", NegotiationPending:
		return NegotiationPending, nil
	case NegotiationAccepted:
		return NegotiationAccepted, nil
	case NegotiationRejected:
		return NegotiationRejected, nil
	case NegotiationCounterOffered:
		return NegotiationCounterOffered, nil
	default:
		return "", fmt.Errorf("unknown negotiation status: %q", s)
	}
}

func (s *NegotiationStatus) UnmarshalText(text []byte) error {
	parsed, err := ParseNegotiationStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PaymentStatus is tracked separately from the booking status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

// Actor is the role that performed a change.
type Actor string

const (
	ActorCustomer Actor = "customer"
	ActorVendor   Actor = "vendor"
	ActorAdmin    Actor = "admin"
	ActorSystem   Actor = "system"
)

func ParseActor(s string) (Actor, error) {
	switch a := Actor(strings.ToLower(strings.TrimSpace(s))); a {
	case ActorCustomer, ActorVendor, ActorAdmin, ActorSystem:
		return a, nil
	default:
		return "", fmt.Errorf("unknown actor: %q", s)
	}
}

const (
	// DefaultCartTTL время жизни корзины в Redis
	DefaultCartTTL = 7 * 24 * 60 * 60 // 7 дней в секундах

	// RateLimitMessages количество сообщений в окне
	RateLimitMessages = 20

	// RateLimitWindow окно ограничения частоты сообщений
	RateLimitWindow = 60 // 1 минута в секундах

	// WorkerQueueSize размер очереди воркера
	WorkerQueueSize = 128

	// MaxTransitionAttempts попытки применить переход при конфликте версий
	MaxTransitionAttempts = 3

	// MaxCartQuantity предел количества одной услуги в корзине
	MaxCartQuantity = 100
)
