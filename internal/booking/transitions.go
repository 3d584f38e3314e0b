package booking

import (
	"fmt"
	"strings"

	"planora/internal/models"
)

// Action is a user or system intent that may move a booking to a new status.
type Action string

const (
	ActionStartReview      Action = "start_review"
	ActionVendorAccept     Action = "vendor_accept"
	ActionVendorReject     Action = "vendor_reject"
	ActionVendorCounter    Action = "vendor_counter"
	ActionCustomerAccept   Action = "customer_accept"
	ActionCustomerReject   Action = "customer_reject"
	ActionInitiatePayment  Action = "initiate_payment"
	ActionPaymentSucceeded Action = "payment_succeeded"
	ActionPaymentFailed    Action = "payment_failed"
	ActionStartService     Action = "start_service"
	ActionStartPreparing   Action = "start_preparing"
	ActionDepart           Action = "depart"
	ActionArrive           Action = "arrive"
	ActionStartEvent       Action = "start_event"
	ActionComplete         Action = "complete"
	ActionCancel           Action = "cancel"
)

func ParseAction(s string) (Action, error) {
	a := Action(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range transitions {
		if t.Action == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action: %q", s)
}

// Transition is one edge of the booking lifecycle graph.
type Transition struct {
	From   models.BookingStatus
	Action Action
	To     models.BookingStatus
	Actors []models.Actor
}

var (
	vendorOnly   = []models.Actor{models.ActorVendor, models.ActorAdmin}
	customerOnly = []models.Actor{models.ActorCustomer, models.ActorAdmin}
	systemOnly   = []models.Actor{models.ActorSystem, models.ActorAdmin}
	adminOnly    = []models.Actor{models.ActorAdmin}
	anyParty     = []models.Actor{models.ActorCustomer, models.ActorVendor, models.ActorAdmin}
)

// preServiceStatuses are the non-terminal states a customer may still cancel from.
var preServiceStatuses = []models.BookingStatus{
	models.StatusPending,
	models.StatusVendorReviewing,
	models.StatusNegotiationPending,
	models.StatusVendorAccepted,
	models.StatusVendorCounterOffered,
	models.StatusPriceAgreed,
	models.StatusPaymentPending,
}

var serviceStatuses = []models.BookingStatus{
	models.StatusPaymentCompleted,
	models.StatusInProgress,
	models.StatusVendorPreparing,
	models.StatusOnTheWay,
	models.StatusArrived,
	models.StatusEventInProgress,
}

var transitions = buildTransitions()

func buildTransitions() []Transition {
	t := []Transition{
		{models.StatusPending, ActionStartReview, models.StatusVendorReviewing, vendorOnly},

		{models.StatusPending, ActionVendorAccept, models.StatusVendorAccepted, vendorOnly},
		{models.StatusVendorReviewing, ActionVendorAccept, models.StatusVendorAccepted, vendorOnly},
		{models.StatusNegotiationPending, ActionVendorAccept, models.StatusPriceAgreed, vendorOnly},

		{models.StatusPending, ActionVendorReject, models.StatusCancelled, vendorOnly},
		{models.StatusVendorReviewing, ActionVendorReject, models.StatusCancelled, vendorOnly},
		{models.StatusNegotiationPending, ActionVendorReject, models.StatusCancelled, vendorOnly},

		{models.StatusPending, ActionVendorCounter, models.StatusVendorCounterOffered, vendorOnly},
		{models.StatusVendorReviewing, ActionVendorCounter, models.StatusVendorCounterOffered, vendorOnly},
		{models.StatusNegotiationPending, ActionVendorCounter, models.StatusVendorCounterOffered, vendorOnly},

		{models.StatusVendorCounterOffered, ActionCustomerAccept, models.StatusPriceAgreed, customerOnly},
		{models.StatusVendorCounterOffered, ActionCustomerReject, models.StatusCancelled, customerOnly},

		{models.StatusVendorAccepted, ActionInitiatePayment, models.StatusPaymentPending, customerOnly},
		{models.StatusPriceAgreed, ActionInitiatePayment, models.StatusPaymentPending, customerOnly},

		{models.StatusPaymentPending, ActionPaymentSucceeded, models.StatusInProgress, systemOnly},
		{models.StatusPaymentPending, ActionPaymentFailed, models.StatusPaymentPending, systemOnly},
		{models.StatusPaymentCompleted, ActionStartService, models.StatusInProgress, []models.Actor{models.ActorVendor, models.ActorSystem, models.ActorAdmin}},

		{models.StatusInProgress, ActionStartPreparing, models.StatusVendorPreparing, vendorOnly},
		{models.StatusVendorPreparing, ActionDepart, models.StatusOnTheWay, vendorOnly},
		{models.StatusOnTheWay, ActionArrive, models.StatusArrived, vendorOnly},
		{models.StatusArrived, ActionStartEvent, models.StatusEventInProgress, vendorOnly},
	}

	for _, from := range []models.BookingStatus{
		models.StatusInProgress,
		models.StatusVendorPreparing,
		models.StatusOnTheWay,
		models.StatusArrived,
		models.StatusEventInProgress,
	} {
		t = append(t, Transition{from, ActionComplete, models.StatusCompleted, anyParty})
	}

	for _, from := range preServiceStatuses {
		t = append(t, Transition{from, ActionCancel, models.StatusCancelled, customerOnly})
	}
	for _, from := range serviceStatuses {
		t = append(t, Transition{from, ActionCancel, models.StatusCancelled, adminOnly})
	}

	return t
}

// Transitions returns a copy of the lifecycle graph.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

func findTransition(from models.BookingStatus, action Action) (Transition, bool) {
	for _, t := range transitions {
		if t.From == from && t.Action == action {
			return t, true
		}
	}
	return Transition{}, false
}

func (t Transition) allows(actor models.Actor) bool {
	for _, a := range t.Actors {
		if a == actor {
			return true
		}
	}
	return false
}

// CanTransition reports whether actor may perform action from the given status.
func CanTransition(from models.BookingStatus, action Action, actor models.Actor) bool {
	t, ok := findTransition(from, action)
	return ok && t.allows(actor)
}

// AllowedActions lists the actions actor can take on a booking in status.
func AllowedActions(status models.BookingStatus, actor models.Actor) []Action {
	var out []Action
	for _, t := range transitions {
		if t.From == status && t.allows(actor) {
			out = append(out, t.Action)
		}
	}
	return out
}
