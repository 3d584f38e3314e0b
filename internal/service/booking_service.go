package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"planora/internal/booking"
	"planora/internal/database"
	"planora/internal/domain"
	"planora/internal/events"
	"planora/internal/metrics"
	"planora/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ApplyRequest is an action on a booking. Version 0 means the caller did not
// pin a version and conflicts are retried.
type ApplyRequest struct {
	Command booking.Command
	Version int64
}

// BookingService is the only writer of booking status. Every change goes
// through the state machine and is committed together with its timeline
// entries.
type BookingService struct {
	repo        domain.BookingRepository
	vendors     domain.VendorRepository
	eventBus    domain.EventPublisher
	syncWorker  domain.SyncWorker
	machine     *booking.Machine
	maxAttempts int
	logger      *zerolog.Logger
}

func NewBookingService(
	repo domain.BookingRepository,
	vendors domain.VendorRepository,
	eventBus domain.EventPublisher,
	syncWorker domain.SyncWorker,
	machine *booking.Machine,
	maxAttempts int,
	logger *zerolog.Logger,
) *BookingService {
	if machine == nil {
		machine = booking.NewMachine()
	}
	if maxAttempts <= 0 {
		maxAttempts = models.MaxTransitionAttempts
	}
	return &BookingService{
		repo:        repo,
		vendors:     vendors,
		eventBus:    eventBus,
		syncWorker:  syncWorker,
		machine:     machine,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// CreateBooking validates a customer request, opens it and stores it.
func (s *BookingService) CreateBooking(ctx context.Context, b *models.Booking) (*models.Booking, error) {
	b.CustomerID = strings.TrimSpace(b.CustomerID)
	b.VendorID = strings.TrimSpace(b.VendorID)
	if b.CustomerID == "" {
		return nil, validationError("customerId is required")
	}
	if b.VendorID == "" {
		return nil, validationError("vendorId is required")
	}
	if b.EventDate.IsZero() {
		return nil, validationError("eventDate is required")
	}
	if b.GuestCount < 0 {
		return nil, validationError("guestCount must not be negative")
	}

	if err := s.resolvePackage(ctx, b); err != nil {
		return nil, err
	}

	if err := s.machine.Open(b); err != nil {
		if errors.Is(err, booking.ErrInvalidPrice) {
			return nil, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return nil, err
	}

	if err := s.repo.CreateBooking(ctx, b); err != nil {
		return nil, err
	}

	metrics.IncTransition("create", string(b.Status))
	s.logger.Info().
		Int64("booking_id", b.ID).
		Str("customer_id", b.CustomerID).
		Str("vendor_id", b.VendorID).
		Str("status", string(b.Status)).
		Msg("Booking created")

	s.publishEvent(events.EventBookingCreated, b, nil, booking.Command{Actor: models.ActorCustomer, ActorID: b.CustomerID})
	s.enqueueSync(ctx, b, models.SyncTaskUpsertBooking)
	return b, nil
}

// resolvePackage checks the vendor and package references and takes the
// package price as budget when none was given.
func (s *BookingService) resolvePackage(ctx context.Context, b *models.Booking) error {
	if s.vendors == nil {
		return nil
	}
	vendor, err := s.vendors.GetVendor(ctx, b.VendorID)
	if errors.Is(err, database.ErrNotFound) {
		return validationError("vendor %s does not exist", b.VendorID)
	}
	if err != nil {
		return err
	}
	if b.PackageID == "" {
		return nil
	}

	pkg, ok := vendor.FindPackage(b.PackageID)
	if !ok {
		return validationError("package %s not offered by vendor %s", b.PackageID, b.VendorID)
	}
	if b.Budget.IsZero() {
		b.Budget = pkg.Price
		if pkg.DiscountedPrice != nil && pkg.DiscountedPrice.IsPositive() {
			b.Budget = *pkg.DiscountedPrice
		}
	}
	if b.Negotiation != nil && b.Negotiation.Enabled && b.Negotiation.OriginalPrice.IsZero() {
		b.Negotiation.OriginalPrice = pkg.Price
	}
	return nil
}

// ApplyAction runs one action through the state machine and commits it.
func (s *BookingService) ApplyAction(ctx context.Context, id int64, req ApplyRequest) (*models.Booking, error) {
	cmd := req.Command
	var (
		updated *models.Booking
		result  *booking.Result
		err     error
	)

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		updated, err = s.repo.ApplyTransition(ctx, id, req.Version, func(current *models.Booking) (*models.Booking, []models.TimelineEntry, error) {
			res, err := s.machine.Apply(current, cmd)
			if err != nil {
				return nil, nil, err
			}
			result = res
			return res.Booking, res.Entries, nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, database.ErrConcurrentModification) || req.Version > 0 {
			break
		}
		s.logger.Debug().Int64("booking_id", id).Int("attempt", attempt).Msg("Version conflict, retrying transition")
	}

	if err != nil {
		metrics.IncTransitionError(string(cmd.Action), errorReason(err))
		s.logger.Warn().Err(err).
			Int64("booking_id", id).
			Str("action", string(cmd.Action)).
			Str("actor", string(cmd.Actor)).
			Msg("Booking transition rejected")
		return nil, err
	}

	metrics.IncTransition(string(cmd.Action), string(updated.Status))
	s.logger.Info().
		Int64("booking_id", id).
		Str("action", string(cmd.Action)).
		Str("from", string(result.From)).
		Str("to", string(updated.Status)).
		Int64("version", updated.Version).
		Msg("Booking transition applied")

	s.publishEvent(eventTypeFor(cmd.Action, updated.Status), updated, result, cmd)
	s.enqueueSync(ctx, updated, syncTaskFor(cmd.Action))
	return updated, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

// ListBookings requires a customer or a vendor to scope the listing.
func (s *BookingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	if filter.CustomerID == "" && filter.VendorID == "" {
		return nil, validationError("customerId or vendorId is required")
	}
	return s.repo.ListBookings(ctx, filter)
}

// AllowedActions lists what actor may do next on the booking.
func (s *BookingService) AllowedActions(ctx context.Context, id int64, actor models.Actor) ([]booking.Action, error) {
	b, err := s.repo.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	return booking.AllowedActions(b.Status, actor), nil
}

func (s *BookingService) publishEvent(eventType string, b *models.Booking, res *booking.Result, cmd booking.Command) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:  b.ID,
		CustomerID: b.CustomerID,
		VendorID:   b.VendorID,
		Action:     string(cmd.Action),
		To:         string(b.Status),
		Actor:      string(cmd.Actor),
		ActorID:    cmd.ActorID,
		Message:    cmd.Message,
		Version:    b.Version,
		At:         b.UpdatedAt,
	}
	if res != nil {
		payload.From = string(res.From)
	}
	if p := eventPrice(b); !p.IsZero() {
		payload.Price = p.String()
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", b.ID).Msg("publish event error")
	}
}

func (s *BookingService) enqueueSync(ctx context.Context, b *models.Booking, taskType string) {
	if s.syncWorker == nil {
		return
	}
	if err := s.syncWorker.EnqueueTask(ctx, taskType, b); err != nil {
		s.logger.Error().Err(err).Int64("booking_id", b.ID).Str("task", taskType).Msg("ledger enqueue error")
	}
}

// eventPrice is the most relevant amount for a notification.
func eventPrice(b *models.Booking) decimal.Decimal {
	n := b.Negotiation
	switch {
	case n == nil:
		return b.Budget
	case n.FinalPrice != nil:
		return *n.FinalPrice
	case n.VendorCounterOffer != nil && b.Status == models.StatusVendorCounterOffered:
		return n.VendorCounterOffer.Price
	case n.Enabled:
		return n.OfferedPrice
	}
	return b.Budget
}

func eventTypeFor(action booking.Action, to models.BookingStatus) string {
	switch {
	case action == booking.ActionVendorCounter:
		return events.EventCounterOffered
	case to == models.StatusPriceAgreed:
		return events.EventPriceAgreed
	case action == booking.ActionPaymentSucceeded:
		return events.EventPaymentCompleted
	case to == models.StatusCompleted:
		return events.EventBookingCompleted
	case to == models.StatusCancelled:
		return events.EventBookingCancelled
	}
	return events.EventBookingStatusChanged
}

// syncTaskFor picks a full row rewrite when prices or payment changed.
func syncTaskFor(action booking.Action) string {
	switch action {
	case booking.ActionVendorAccept, booking.ActionVendorCounter, booking.ActionCustomerAccept,
		booking.ActionInitiatePayment, booking.ActionPaymentSucceeded, booking.ActionPaymentFailed:
		return models.SyncTaskUpsertBooking
	}
	return models.SyncTaskStatusChange
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, booking.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, booking.ErrTerminalState):
		return "terminal"
	case errors.Is(err, booking.ErrActorNotAllowed), errors.Is(err, booking.ErrActorMismatch):
		return "forbidden"
	case errors.Is(err, booking.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, booking.ErrInvalidPrice), errors.Is(err, booking.ErrNoCounterOffer),
		errors.Is(err, booking.ErrFinalPriceLocked):
		return "invalid_price"
	case errors.Is(err, database.ErrConcurrentModification):
		return "conflict"
	case errors.Is(err, database.ErrNotFound):
		return "not_found"
	}
	return "internal"
}
