package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"planora/internal/models"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

const bookingColumns = `id, customer_id, vendor_id, package_id, event_type, event_date,
	guest_count, location, notes, budget, max_budget, status, payment_status,
	negotiation, created_at, updated_at, version`

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	negotiation, err := encodeNegotiation(booking.Negotiation)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `INSERT INTO bookings (
				customer_id, vendor_id, package_id, event_type, event_date, guest_count,
				location, notes, budget, max_budget, status, payment_status,
				negotiation, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		booking.CustomerID,
		booking.VendorID,
		booking.PackageID,
		booking.EventType,
		booking.EventDate,
		booking.GuestCount,
		booking.Location,
		booking.Notes,
		booking.Budget,
		booking.MaxBudget,
		string(booking.Status),
		string(booking.PaymentStatus),
		negotiation,
		now,
		now,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertTimeline(ctx, tx, id, 0, booking.Timeline); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id int64) (*models.Booking, error) {
	row := q.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	b.Timeline, err = loadTimeline(ctx, q, id)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.CustomerID != "" {
		where = append(where, "customer_id = ?")
		args = append(args, filter.CustomerID)
	}
	if filter.VendorID != "" {
		where = append(where, "vendor_id = ?")
		args = append(args, filter.VendorID)
	}
	if filter.Status != "" {
		spellings := filter.Status.StoredSpellings()
		where = append(where, "status IN (?"+strings.Repeat(", ?", len(spellings)-1)+")")
		for _, v := range spellings {
			args = append(args, v)
		}
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id DESC"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}

	// Соединение одно: историю читаем только после закрытия rows
	for _, b := range bookings {
		if b.Timeline, err = loadTimeline(ctx, db, b.ID); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// ApplyTransition reads the booking, runs fn and commits the new state with
// the appended timeline entries in one transaction. The update is conditional
// on the version read; expectedVersion > 0 additionally pins the version the
// caller saw.
func (db *DB) ApplyTransition(ctx context.Context, id, expectedVersion int64, fn models.TransitionFunc) (*models.Booking, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	current, err := getBooking(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion > 0 && current.Version != expectedVersion {
		return nil, ErrConcurrentModification
	}

	updated, entries, err := fn(current)
	if err != nil {
		return nil, err
	}

	negotiation, err := encodeNegotiation(updated.Negotiation)
	if err != nil {
		return nil, err
	}

	query := `UPDATE bookings SET status = ?, payment_status = ?, negotiation = ?,
				updated_at = ?, version = version + 1
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		string(updated.Status),
		string(updated.PaymentStatus),
		negotiation,
		updated.UpdatedAt,
		id,
		current.Version,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrConcurrentModification
	}

	if err := insertTimeline(ctx, tx, id, len(current.Timeline), entries); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transition: %w", err)
	}

	updated.Version = current.Version + 1
	return updated, nil
}

func insertTimeline(ctx context.Context, tx *sql.Tx, bookingID int64, offset int, entries []models.TimelineEntry) error {
	query := `INSERT INTO booking_timeline (booking_id, seq, status, timestamp, description, actor, metadata)
              VALUES (?, ?, ?, ?, ?, ?, ?)`
	for i, e := range entries {
		var metadata sql.NullString
		if len(e.Metadata) > 0 {
			raw, err := json.Marshal(e.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode timeline metadata: %w", err)
			}
			metadata = sql.NullString{String: string(raw), Valid: true}
		}
		_, err := tx.ExecContext(ctx, query,
			bookingID, offset+i+1, string(e.Status), e.Timestamp.UTC(), e.Description, string(e.Actor), metadata)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return ErrConcurrentModification
			}
			return fmt.Errorf("failed to append timeline: %w", err)
		}
	}
	return nil
}

func loadTimeline(ctx context.Context, q querier, bookingID int64) ([]models.TimelineEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT status, timestamp, description, actor, metadata
              FROM booking_timeline WHERE booking_id = ? ORDER BY seq ASC`, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load timeline: %w", err)
	}
	defer rows.Close()

	timeline := []models.TimelineEntry{}
	for rows.Next() {
		var (
			e           models.TimelineEntry
			status      string
			actor       string
			description sql.NullString
			metadata    sql.NullString
		)
		if err := rows.Scan(&status, &e.Timestamp, &description, &actor, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan timeline entry: %w", err)
		}
		e.Status, _ = models.ParseBookingStatus(status)
		e.Actor = models.Actor(actor)
		e.Description = description.String
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &e.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode timeline metadata: %w", err)
			}
		}
		timeline = append(timeline, e)
	}
	return timeline, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		packageID   sql.NullString
		eventType   sql.NullString
		eventDate   sql.NullTime
		location    sql.NullString
		notes       sql.NullString
		status      string
		payment     string
		negotiation sql.NullString
	)
	err := row.Scan(
		&b.ID, &b.CustomerID, &b.VendorID, &packageID, &eventType, &eventDate,
		&b.GuestCount, &location, &notes, &b.Budget, &b.MaxBudget, &status, &payment,
		&negotiation, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.PackageID = packageID.String
	b.EventType = eventType.String
	b.EventDate = eventDate.Time
	b.Location = location.String
	b.Notes = notes.String
	b.PaymentStatus = models.PaymentStatus(payment)

	if b.Status, err = models.ParseBookingStatus(status); err != nil {
		return nil, err
	}
	if negotiation.Valid && negotiation.String != "" {
		b.Negotiation = &models.Negotiation{}
		if err := json.Unmarshal([]byte(negotiation.String), b.Negotiation); err != nil {
			return nil, fmt.Errorf("failed to decode negotiation: %w", err)
		}
	}
	return &b, nil
}

func encodeNegotiation(n *models.Negotiation) (sql.NullString, error) {
	if n == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(n)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode negotiation: %w", err)
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}
