package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"coachdesk/internal/models"
)

var exportHeader = []string{
	"line_item_id", "run_id", "booking_id", "athlete_id", "athlete_name",
	"session_date", "duration_minutes", "is_member", "rate_applied", "owed",
}

func exportRow(item *models.PayoutLineItem) []string {
	return []string{
		strconv.FormatInt(item.ID, 10),
		strconv.FormatInt(item.RunID, 10),
		strconv.FormatInt(item.BookingID, 10),
		strconv.FormatInt(item.AthleteID, 10),
		item.AthleteName,
		item.SessionDate.Format("2006-01-02"),
		strconv.Itoa(item.DurationMinutes),
		strconv.FormatBool(item.IsMember),
		formatCents(item.RateAppliedCents),
		formatCents(item.OwedCents),
	}
}

func formatCents(cents int64) string {
	return fmt.Sprintf("%.2f", float64(cents)/100)
}

func (s *HTTPServer) exportItems(w http.ResponseWriter, r *http.Request) ([]*models.PayoutLineItem, *models.PayoutSummary, bool) {
	filter, err := parsePayoutFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}

	items, err := s.payouts.ListLineItems(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return nil, nil, false
	}
	summary, err := s.payouts.Summarize(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return nil, nil, false
	}
	return items, summary, true
}

func (s *HTTPServer) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, _, ok := s.exportItems(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="payouts.csv"`)

	writer := csv.NewWriter(w)
	_ = writer.Write(exportHeader)
	for _, item := range items {
		_ = writer.Write(exportRow(item))
	}
	writer.Flush()
}

func (s *HTTPServer) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, summary, ok := s.exportItems(w, r)
	if !ok {
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Payouts"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	for col, title := range exportHeader {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		_ = f.SetCellValue(sheetName, cell, title)
	}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	lastHeaderCell, _ := excelize.CoordinatesToCellName(len(exportHeader), 1)
	_ = f.SetCellStyle(sheetName, "A1", lastHeaderCell, headerStyle)

	row := 2
	for _, item := range items {
		for col, value := range exportRow(item) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheetName, cell, value)
		}
		row++
	}

	totalCell, _ := excelize.CoordinatesToCellName(1, row+1)
	_ = f.SetCellValue(sheetName, totalCell, fmt.Sprintf("Total: %d sessions, %s owed",
		summary.TotalSessions, formatCents(summary.TotalOwedCents)))

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="payouts.xlsx"`)
	if _, err := f.WriteTo(w); err != nil {
		// Headers are already gone; nothing left to report to the client.
		return
	}
}

func (s *HTTPServer) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	items, summary, ok := s.exportItems(w, r)
	if !ok {
		return
	}

	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 10, "Coach Payout Report")
	pdf.Ln(12)

	widths := []float64{18, 14, 18, 18, 50, 24, 18, 18, 20, 20}
	pdf.SetFont("Helvetica", "B", 9)
	for i, title := range exportHeader {
		pdf.CellFormat(widths[i], 7, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	for _, item := range items {
		for i, value := range exportRow(item) {
			pdf.CellFormat(widths[i], 6, value, "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 8, fmt.Sprintf("Total: %d sessions (%d member, %d drop-in), %s owed",
		summary.TotalSessions, summary.MemberSessions, summary.DropInSessions,
		formatCents(summary.TotalOwedCents)))

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="payouts.pdf"`)
	if err := pdf.Output(w); err != nil {
		return
	}
}
