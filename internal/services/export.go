package services

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/securefinance/emilock/internal/database"
	"github.com/securefinance/emilock/internal/models"
)

// ExportService builds the fleet XLSX report for the dashboard download.
type ExportService struct{}

func NewExportService() *ExportService {
	return &ExportService{}
}

var fleetExportHeaders = []string{
	"Customer ID", "Name", "Phone", "IMEI 1", "IMEI 2",
	"Brand", "Model", "Status", "Locked", "Online",
	"Total Amount", "EMI Amount", "Paid EMIs", "Total EMIs",
	"Last Seen", "Registered",
}

// FleetReport renders every non-deleted customer row into an XLSX
// workbook. dealerID scopes the report to one operator's fleet; pass 0
// for the whole fleet.
func (s *ExportService) FleetReport(ctx context.Context, dealerID int64) ([]byte, error) {
	var customers []models.Customer
	query := database.DB.NewSelect().
		Model(&customers).
		Where("deleted_at IS NULL").
		Order("created_at DESC")
	if dealerID != 0 {
		query = query.Where("dealer_id = ?", dealerID)
	}
	if err := query.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load fleet: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Fleet"
	f.SetSheetName("Sheet1", sheet)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDEBF7"}},
	})
	if err == nil {
		last, _ := excelize.CoordinatesToCellName(len(fleetExportHeaders), 1)
		f.SetCellStyle(sheet, "A1", last, headerStyle)
	}

	for i, header := range fleetExportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, header)
	}

	now := time.Now()
	for row, c := range customers {
		values := []interface{}{
			c.CustomerID, c.Name, c.PhoneNo, c.IMEI1, c.IMEI2,
			c.Brand, c.ModelName, c.Status, yesNo(c.IsLocked),
			yesNo(IsOnline(c.LastSeen, now, OfflineThreshold())),
			c.TotalAmount, c.EMIAmount, c.PaidEMIs, c.TotalEMIs,
			formatTimePtr(c.LastSeen), c.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			f.SetCellValue(sheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "Never"
	}
	return t.Format("2006-01-02 15:04")
}
