package report

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"pm25watcher/internal/analysis"
	"pm25watcher/internal/storage"
)

// DocumentInfo carries report metadata.
type DocumentInfo struct {
	DeviceID    string
	Threshold   decimal.Decimal
	GeneratedAt time.Time
}

// WriteDocument lays out the PDF report: title page with device, period and
// chart, a daily-statistics table, and a table of threshold exceedances.
// The filename carries the generation timestamp; the full path is returned.
func WriteDocument(dir string, info DocumentInfo, stats []analysis.DailyStat, exceedances []storage.Reading, chartPath string) (string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "PM2.5 Analysis Report", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.CellFormat(0, 10, "Device ID: "+info.DeviceID, "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 10, "Report Period: "+reportPeriod(stats), "", 1, "L", false, 0, "")

	if chartPath != "" {
		pdf.ImageOptions(chartPath, 10, 40, 180, 0, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
	}

	pageWidth, _ := pdf.GetPageSize()
	colWidth := pageWidth / 4.5

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 10, "Daily PM2.5 Statistics", "", 1, "L", false, 0, "")
	for _, heading := range []string{"Date", "Max (ug/m3)", "Min (ug/m3)", "Mean (ug/m3)"} {
		pdf.CellFormat(colWidth, 10, heading, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, stat := range stats {
		pdf.CellFormat(colWidth, 10, stat.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidth, 10, statCell(stat.Max, stat), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidth, 10, statCell(stat.Min, stat), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidth, 10, meanCell(stat), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.AddPage()
	pdf.SetFont("Arial", "B", 12)
	heading := fmt.Sprintf("Periods of High PM2.5 Concentration (Threshold: %s ug/m3)", info.Threshold.String())
	pdf.CellFormat(0, 10, heading, "", 1, "L", false, 0, "")
	pdf.CellFormat(colWidth*2, 10, "Timestamp", "1", 0, "C", false, 0, "")
	pdf.CellFormat(colWidth*2, 10, "PM2.5 (ug/m3)", "1", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	for _, r := range exceedances {
		pdf.CellFormat(colWidth*2, 10, storage.FormatTimestamp(r.Timestamp), "1", 0, "C", false, 0, "")
		pdf.CellFormat(colWidth*2, 10, r.Value.Decimal.String(), "1", 1, "C", false, 0, "")
	}
	if len(exceedances) == 0 {
		pdf.CellFormat(colWidth*4, 10, "none", "1", 1, "C", false, 0, "")
	}

	name := fmt.Sprintf("PM25_Analysis_Report_%s.pdf", info.GeneratedAt.Format("20060102_150405"))
	out := filepath.Join(dir, name)
	if err := pdf.OutputFileAndClose(out); err != nil {
		return "", fmt.Errorf("write report document: %w", err)
	}

	return out, nil
}

func reportPeriod(stats []analysis.DailyStat) string {
	if len(stats) == 0 {
		return "no data"
	}
	return stats[0].Date + " - " + stats[len(stats)-1].Date
}

func statCell(value decimal.Decimal, stat analysis.DailyStat) string {
	if !stat.HasData() {
		return "n/a"
	}
	return value.String()
}

func meanCell(stat analysis.DailyStat) string {
	if !stat.HasData() {
		return "n/a"
	}
	return stat.Mean.StringFixed(2)
}
