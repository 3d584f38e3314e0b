package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"planora/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T, mux *http.ServeMux) *SheetsService {
	t.Helper()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(),
		option.WithEndpoint(server.URL),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)

	logger := zerolog.Nop()
	s := newSheetsService(srv, "ledger_sid", "Bookings", &logger)
	s.now = func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func writeJSON(t *testing.T, w http.ResponseWriter, v interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func testBooking(id int64) *models.Booking {
	final := decimal.NewFromInt(80000)
	created := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	return &models.Booking{
		ID:            id,
		CustomerID:    "cust-1",
		VendorID:      "vend-1",
		PackageID:     "pkg-gold",
		EventType:     "wedding",
		EventDate:     time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC),
		Budget:        decimal.NewFromInt(100000),
		Status:        models.StatusPriceAgreed,
		PaymentStatus: models.PaymentPending,
		Negotiation:   &models.Negotiation{Enabled: true, FinalPrice: &final},
		CreatedAt:     created,
		UpdatedAt:     created.Add(time.Hour),
	}
}

func TestBookingRowValues(t *testing.T) {
	row := bookingRowValues(testBooking(7))
	require.Len(t, row, len(ledgerHeaders))
	assert.Equal(t, int64(7), row[0])
	assert.Equal(t, "2026-06-20", row[4])
	assert.Equal(t, string(models.StatusPriceAgreed), row[6])
	assert.Equal(t, "100000", row[8])
	assert.Equal(t, "80000", row[9])
	assert.Equal(t, "2026-04-01 09:00:00", row[10])

	b := testBooking(8)
	b.Negotiation = nil
	b.EventDate = time.Time{}
	row = bookingRowValues(b)
	assert.Equal(t, "", row[4])
	assert.Equal(t, "", row[9])
}

func TestRowFromRange(t *testing.T) {
	row, ok := rowFromRange("Bookings!A10:L10")
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	_, ok = rowFromRange("garbage")
	assert.False(t, ok)
}

func TestCellID(t *testing.T) {
	id, ok := cellID([]interface{}{"42"})
	assert.True(t, ok)
	assert.Equal(t, int64(42), id)

	id, ok = cellID([]interface{}{float64(5)})
	assert.True(t, ok)
	assert.Equal(t, int64(5), id)

	_, ok = cellID([]interface{}{"ID"})
	assert.False(t, ok)
	_, ok = cellID(nil)
	assert.False(t, ok)
}

func TestWarmUpCacheAndFind(t *testing.T) {
	var gets int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&gets, 1)
		writeJSON(t, w, sheets.ValueRange{Values: [][]interface{}{{"ID"}, {"3"}, {"9"}}})
	})
	s := setupMockServer(t, mux)
	ctx := context.Background()

	require.NoError(t, s.WarmUpCache(ctx))
	row, err := s.FindBookingRow(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 3, row)
	assert.Equal(t, int32(1), atomic.LoadInt32(&gets), "cached lookup must not hit the API")

	_, err = s.FindBookingRow(ctx, 100)
	assert.ErrorIs(t, err, ErrRowNotFound)

	_, err = s.FindBookingRow(ctx, 0)
	assert.Error(t, err)
}

func TestUpsertBooking_AppendsNewRow(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &appended))
		writeJSON(t, w, sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A10:L10"},
		})
	})
	s := setupMockServer(t, mux)

	require.NoError(t, s.UpsertBooking(context.Background(), testBooking(11)))
	require.Len(t, appended.Values, 1)
	assert.Equal(t, "cust-1", appended.Values[0][1])

	row, ok := s.getCachedRow(11)
	assert.True(t, ok)
	assert.Equal(t, 10, row)
}

func TestUpsertBooking_UpdatesExistingRow(t *testing.T) {
	mux := http.NewServeMux()
	var updated int32
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A4:L4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		atomic.AddInt32(&updated, 1)
		writeJSON(t, w, sheets.UpdateValuesResponse{UpdatedRange: "Bookings!A4:L4"})
	})
	s := setupMockServer(t, mux)
	s.setCachedRow(12, 4)

	require.NoError(t, s.UpsertBooking(context.Background(), testBooking(12)))
	assert.Equal(t, int32(1), atomic.LoadInt32(&updated))

	assert.Error(t, s.UpsertBooking(context.Background(), nil))
}

func TestUpsertBooking_UpdateFailureDropsCache(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A4:L4", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":500,"message":"boom"}}`, http.StatusInternalServerError)
	})
	s := setupMockServer(t, mux)
	s.setCachedRow(12, 4)

	assert.Error(t, s.UpsertBooking(context.Background(), testBooking(12)))
	_, ok := s.getCachedRow(12)
	assert.False(t, ok)
}

func TestUpdateBookingStatus(t *testing.T) {
	mux := http.NewServeMux()
	var req sheets.BatchUpdateValuesRequest
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values:batchUpdate", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &req))
		writeJSON(t, w, sheets.BatchUpdateValuesResponse{})
	})
	s := setupMockServer(t, mux)
	s.setCachedRow(5, 6)

	require.NoError(t, s.UpdateBookingStatus(context.Background(), 5, models.StatusCompleted))
	require.Len(t, req.Data, 2)
	assert.Equal(t, "Bookings!G6", req.Data[0].Range)
	assert.Equal(t, string(models.StatusCompleted), req.Data[0].Values[0][0])
	assert.Equal(t, "Bookings!L6", req.Data[1].Range)
	assert.Equal(t, "2026-05-01 12:00:00", req.Data[1].Values[0][0])
}

func TestReplaceBookingsSheet(t *testing.T) {
	mux := http.NewServeMux()
	cleared := false
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A:L:clear", func(w http.ResponseWriter, r *http.Request) {
		cleared = true
		writeJSON(t, w, sheets.ClearValuesResponse{})
	})
	var written sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &written))
		writeJSON(t, w, sheets.UpdateValuesResponse{})
	})
	s := setupMockServer(t, mux)

	require.NoError(t, s.ReplaceBookingsSheet(context.Background(), []*models.Booking{testBooking(1), testBooking(2)}))
	assert.True(t, cleared)
	require.Len(t, written.Values, 3)
	assert.Equal(t, "ID", written.Values[0][0])

	row, ok := s.getCachedRow(2)
	assert.True(t, ok)
	assert.Equal(t, 3, row)
}

func TestTestConnection(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/v4/spreadsheets/ledger_sid/values/Bookings!A1", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, sheets.ValueRange{})
	})
	s := setupMockServer(t, mux)
	assert.NoError(t, s.TestConnection(context.Background()))

	s.spreadsheetID = "missing"
	assert.Error(t, s.TestConnection(context.Background()))
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"ledger@planora.iam.gserviceaccount.com"}`), 0o600))

	email, err := ServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "ledger@planora.iam.gserviceaccount.com", email)

	_, err = ServiceAccountEmail(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestNewSheetsService_BadCredentials(t *testing.T) {
	logger := zerolog.Nop()
	_, err := NewSheetsService(context.Background(), filepath.Join(t.TempDir(), "missing.json"), "sid", "Bookings", &logger)
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))
	_, err = NewSheetsService(context.Background(), path, "sid", "Bookings", &logger)
	assert.Error(t, err)
}
