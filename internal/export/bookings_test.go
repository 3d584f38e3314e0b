package export

import (
	"bytes"
	"os"
	"testing"
	"time"

	"planora/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func fixture() (*models.Vendor, []*models.Booking) {
	vendor := &models.Vendor{
		ID:           "vend-1",
		Name:         "Spice Route",
		BusinessName: "Spice Route Caterers",
		Packages:     []models.Package{{ID: "gold", Name: "Gold Feast"}},
	}
	created := time.Date(2026, 4, 1, 9, 30, 0, 0, time.UTC)
	final := decimal.NewFromInt(80000)
	return vendor, []*models.Booking{
		{
			ID: 1, CustomerID: "cust-1", PackageID: "gold", EventType: "wedding",
			EventDate: time.Date(2026, 6, 20, 0, 0, 0, 0, time.UTC), GuestCount: 150,
			Budget: decimal.NewFromInt(100000), Status: models.StatusPriceAgreed, PaymentStatus: models.PaymentPending,
			Negotiation: &models.Negotiation{Enabled: true, DiscountPercent: 20, FinalPrice: &final},
			CreatedAt:   created,
		},
		{
			ID: 2, CustomerID: "cust-2", Budget: decimal.NewFromInt(30000),
			Status: models.StatusCancelled, PaymentStatus: models.PaymentPending, CreatedAt: created,
		},
		{
			ID: 3, CustomerID: "cust-3", PackageID: "retired", Budget: decimal.NewFromInt(20000),
			Status: models.StatusPending, PaymentStatus: models.PaymentPending, CreatedAt: created,
		},
	}
}

func TestWriteVendorBookings(t *testing.T) {
	vendor, bookings := fixture()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	var buf bytes.Buffer
	require.NoError(t, WriteVendorBookings(&buf, vendor, bookings, now))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetName}, f.GetSheetList())

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Equal(t, "Spice Route Caterers: bookings as of 01.05.2026 12:00", title)

	header, _ := f.GetCellValue(sheetName, "J2")
	assert.Equal(t, "Agreed price", header)

	pkg, _ := f.GetCellValue(sheetName, "C3")
	assert.Equal(t, "Gold Feast", pkg)
	agreed, _ := f.GetCellValue(sheetName, "J3")
	assert.Equal(t, "80000", agreed)
	discount, _ := f.GetCellValue(sheetName, "K3")
	assert.Equal(t, "20", discount)

	unknownPkg, _ := f.GetCellValue(sheetName, "C5")
	assert.Equal(t, "retired", unknownPkg)

	label, _ := f.GetCellValue(sheetName, "I6")
	assert.Equal(t, "Total", label)
	total, _ := f.GetCellValue(sheetName, "J6")
	assert.Equal(t, "100000", total, "cancelled bookings are left out of the total")
}

func TestWriteVendorBookings_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteVendorBookings(&buf, &models.Vendor{ID: "v"}, nil, time.Now()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	title, _ := f.GetCellValue(sheetName, "A1")
	assert.Contains(t, title, "v: bookings as of")
	total, _ := f.GetCellValue(sheetName, "J3")
	assert.Equal(t, "0", total)
}

func TestSaveVendorBookings(t *testing.T) {
	vendor, bookings := fixture()
	dir := t.TempDir() + "/nested"
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	path, err := SaveVendorBookings(dir, vendor, bookings, now)
	require.NoError(t, err)
	assert.Contains(t, path, "bookings_vend-1_20260501_120000.xlsx")

	_, err = os.Stat(path)
	assert.NoError(t, err)
}
