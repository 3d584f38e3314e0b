package export

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"planora/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{
	"ID", "Customer", "Package", "Event type", "Event date", "Guests",
	"Status", "Payment", "Budget", "Agreed price", "Discount %", "Created",
}

// VendorBookings builds a workbook listing a vendor's bookings with a total of
// agreed prices for bookings that were not cancelled.
func VendorBookings(vendor *models.Vendor, bookings []*models.Booking, now time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, err
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	lastCol, _ := excelize.ColumnNumberToName(len(headers))

	// Заголовок отчёта
	title := fmt.Sprintf("%s: bookings as of %s", vendorTitle(vendor), now.Format("02.01.2006 15:04"))
	_ = f.SetCellValue(sheetName, "A1", title)
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
	}
	_ = f.SetCellStyle(sheetName, "A2", lastCol+"2", headerStyle)

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", lastCol, 18)

	styles := make(map[models.BookingStatus]int)
	total := decimal.Zero
	row := 3
	for _, b := range bookings {
		values := rowValues(vendor, b)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, v)
		}

		styleID, err := statusStyle(f, styles, b.Status)
		if err == nil && styleID != 0 {
			statusCell, _ := excelize.CoordinatesToCellName(7, row)
			_ = f.SetCellStyle(sheetName, statusCell, statusCell, styleID)
		}

		if b.Status != models.StatusCancelled {
			total = total.Add(b.AgreedPrice())
		}
		row++
	}

	_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), "Total")
	totalValue, _ := total.Float64()
	_ = f.SetCellValue(sheetName, fmt.Sprintf("J%d", row), totalValue)
	boldStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	_ = f.SetCellStyle(sheetName, fmt.Sprintf("I%d", row), fmt.Sprintf("J%d", row), boldStyle)

	return f, nil
}

// WriteVendorBookings streams the workbook to w.
func WriteVendorBookings(w io.Writer, vendor *models.Vendor, bookings []*models.Booking, now time.Time) error {
	f, err := VendorBookings(vendor, bookings, now)
	if err != nil {
		return err
	}
	defer f.Close()

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return fmt.Errorf("failed to render workbook: %w", err)
	}
	_, err = buf.WriteTo(w)
	return err
}

// SaveVendorBookings writes the workbook into dir and returns its path.
func SaveVendorBookings(dir string, vendor *models.Vendor, bookings []*models.Booking, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}

	f, err := VendorBookings(vendor, bookings, now)
	if err != nil {
		return "", err
	}
	defer f.Close()

	path := filepath.Join(dir, FileName(vendor.ID, now))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("failed to save workbook: %w", err)
	}
	return path, nil
}

func FileName(vendorID string, now time.Time) string {
	return fmt.Sprintf("bookings_%s_%s.xlsx", vendorID, now.Format("20060102_150405"))
}

func vendorTitle(v *models.Vendor) string {
	if v.BusinessName != "" {
		return v.BusinessName
	}
	if v.Name != "" {
		return v.Name
	}
	return v.ID
}

func rowValues(vendor *models.Vendor, b *models.Booking) []interface{} {
	pkg := b.PackageID
	if p, ok := vendor.FindPackage(b.PackageID); ok {
		pkg = p.Name
	}
	eventDate := ""
	if !b.EventDate.IsZero() {
		eventDate = b.EventDate.Format("02.01.2006")
	}
	var discount interface{} = ""
	if b.Negotiation != nil && b.Negotiation.Enabled {
		discount = b.Negotiation.DiscountPercent
	}
	budget, _ := b.Budget.Float64()
	agreed, _ := b.AgreedPrice().Float64()

	return []interface{}{
		b.ID,
		b.CustomerID,
		pkg,
		b.EventType,
		eventDate,
		b.GuestCount,
		string(b.Status),
		string(b.PaymentStatus),
		budget,
		agreed,
		discount,
		b.CreatedAt.Format("02.01.2006 15:04"),
	}
}

func statusStyle(f *excelize.File, cache map[models.BookingStatus]int, status models.BookingStatus) (int, error) {
	if id, ok := cache[status]; ok {
		return id, nil
	}

	var color string
	switch status {
	case models.StatusCompleted:
		color = "#C6EFCE"
	case models.StatusCancelled:
		color = "#FFC7CE"
	case models.StatusPending, models.StatusNegotiationPending, models.StatusVendorCounterOffered, models.StatusPaymentPending:
		color = "#FFEB9C"
	default:
		return 0, nil
	}

	id, err := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
	})
	if err != nil {
		return 0, err
	}
	cache[status] = id
	return id, nil
}
