package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"planora/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newTestBooking("cust-1", "vend-1")
	b.Notes = "outdoor"
	require.NoError(t, db.CreateBooking(ctx, b))
	assert.NotZero(t, b.ID)
	assert.Equal(t, int64(1), b.Version)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, "outdoor", got.Notes)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, got.Budget.Equal(decimal.NewFromInt(100000)))
	assert.True(t, got.EventDate.Equal(b.EventDate))
	assert.Nil(t, got.Negotiation)
	require.Len(t, got.Timeline, 1)
	assert.Equal(t, "100000", got.Timeline[0].Metadata["budget"])
	assert.True(t, got.Timeline[0].Timestamp.Equal(b.Timeline[0].Timestamp))
}

func TestGetBooking_NotFound(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.GetBooking(context.Background(), 404)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBookingNegotiationRoundTrip(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	fp := decimal.NewFromInt(80000)
	b := newTestBooking("cust-1", "vend-1")
	b.Status = models.StatusPriceAgreed
	b.Negotiation = &models.Negotiation{
		Enabled:         true,
		OriginalPrice:   decimal.NewFromInt(100000),
		OfferedPrice:    decimal.NewFromInt(90000),
		DiscountPercent: 20,
		Status:          models.NegotiationAccepted,
		VendorCounterOffer: &models.CounterOffer{
			Price:           decimal.NewFromInt(80000),
			DiscountPercent: 20,
			Message:         "final",
			Timestamp:       time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC),
		},
		FinalPrice: &fp,
	}
	require.NoError(t, db.CreateBooking(ctx, b))

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Negotiation)
	assert.Equal(t, models.NegotiationAccepted, got.Negotiation.Status)
	require.NotNil(t, got.Negotiation.FinalPrice)
	assert.True(t, got.Negotiation.FinalPrice.Equal(fp))
	require.NotNil(t, got.Negotiation.VendorCounterOffer)
	assert.Equal(t, "final", got.Negotiation.VendorCounterOffer.Message)
}

func TestLegacyStatusAliasOnRead(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newTestBooking("c", "v")
	require.NoError(t, db.CreateBooking(ctx, b))
	_, err := db.ExecContext(ctx, `UPDATE bookings SET status = 'booking_created' WHERE id = ?`, b.ID)
	require.NoError(t, err)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, got.Status)
}

func TestListBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, pair := range [][2]string{{"c1", "v1"}, {"c1", "v2"}, {"c2", "v1"}} {
		require.NoError(t, db.CreateBooking(ctx, newTestBooking(pair[0], pair[1])))
	}

	byCustomer, err := db.ListBookings(ctx, models.BookingFilter{CustomerID: "c1"})
	require.NoError(t, err)
	assert.Len(t, byCustomer, 2)
	for _, b := range byCustomer {
		assert.Len(t, b.Timeline, 1)
	}

	byVendor, err := db.ListBookings(ctx, models.BookingFilter{VendorID: "v1"})
	require.NoError(t, err)
	assert.Len(t, byVendor, 2)

	none, err := db.ListBookings(ctx, models.BookingFilter{VendorID: "v1", Status: models.StatusCompleted})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListBookings_LegacyStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	created := newTestBooking("c1", "v1")
	require.NoError(t, db.CreateBooking(ctx, created))
	rejected := newTestBooking("c1", "v1")
	require.NoError(t, db.CreateBooking(ctx, rejected))

	_, err := db.ExecContext(ctx, `UPDATE bookings SET status = 'booking_created' WHERE id = ?`, created.ID)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `UPDATE bookings SET status = 'vendor_rejected' WHERE id = ?`, rejected.ID)
	require.NoError(t, err)

	pending, err := db.ListBookings(ctx, models.BookingFilter{CustomerID: "c1", Status: models.StatusPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, created.ID, pending[0].ID)
	assert.Equal(t, models.StatusPending, pending[0].Status)

	cancelled, err := db.ListBookings(ctx, models.BookingFilter{CustomerID: "c1", Status: models.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, rejected.ID, cancelled[0].ID)
	assert.Equal(t, models.StatusCancelled, cancelled[0].Status)
}

func appendEntry(status models.BookingStatus, description string) models.TransitionFunc {
	return func(current *models.Booking) (*models.Booking, []models.TimelineEntry, error) {
		next := current.Clone()
		entry := models.TimelineEntry{
			Status:      status,
			Timestamp:   current.LastTimelineAt().Add(time.Second),
			Description: description,
			Actor:       models.ActorVendor,
		}
		next.Status = status
		next.UpdatedAt = entry.Timestamp
		next.Timeline = append(next.Timeline, entry)
		return next, []models.TimelineEntry{entry}, nil
	}
}

func TestApplyTransition(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	b := newTestBooking("c", "v")
	require.NoError(t, db.CreateBooking(ctx, b))

	updated, err := db.ApplyTransition(ctx, b.ID, 0, appendEntry(models.StatusVendorReviewing, "review"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated.Version)
	assert.Equal(t, models.StatusVendorReviewing, updated.Status)

	got, err := db.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Version)
	assert.Equal(t, models.StatusVendorReviewing, got.Status)
	require.Len(t, got.Timeline, 2)
	assert.Equal(t, "review", got.Timeline[1].Description)

	t.Run("PinnedVersionConflict", func(t *testing.T) {
		_, err := db.ApplyTransition(ctx, b.ID, 1, appendEntry(models.StatusVendorAccepted, "stale"))
		assert.ErrorIs(t, err, ErrConcurrentModification)

		after, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Len(t, after.Timeline, 2)
	})

	t.Run("CallbackErrorRollsBack", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := db.ApplyTransition(ctx, b.ID, 0, func(*models.Booking) (*models.Booking, []models.TimelineEntry, error) {
			return nil, nil, boom
		})
		assert.ErrorIs(t, err, boom)

		after, err := db.GetBooking(ctx, b.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), after.Version)
	})

	t.Run("NotFound", func(t *testing.T) {
		_, err := db.ApplyTransition(ctx, 9999, 0, appendEntry(models.StatusCancelled, "x"))
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
