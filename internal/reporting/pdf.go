// Package reporting renders archived remediation decisions as a PDF incident
// report for post-incident review.
package reporting

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/rooney011/CodeWeaver/internal/archive"
	"github.com/rooney011/CodeWeaver/internal/remediation"
)

// Color scheme
var (
	colorPrimary     = [3]int{30, 58, 95}
	colorAccent      = [3]int{46, 204, 113}
	colorWarning     = [3]int{241, 196, 15}
	colorDanger      = [3]int{231, 76, 60}
	colorTextDark    = [3]int{44, 62, 80}
	colorTextMuted   = [3]int{127, 140, 141}
	colorBackground  = [3]int{248, 249, 250}
	colorTableHeader = [3]int{30, 58, 95}
	colorTableAlt    = [3]int{241, 245, 249}
	colorGridLine    = [3]int{220, 220, 220}
)

// ReportData is the input to Generate.
type ReportData struct {
	Title       string
	GeneratedAt time.Time
	Entries     []archive.Entry
}

// PDFGenerator handles PDF report generation.
type PDFGenerator struct{}

// NewPDFGenerator creates a new PDF generator.
func NewPDFGenerator() *PDFGenerator {
	return &PDFGenerator{}
}

// Generate creates a PDF report from the provided data.
func (g *PDFGenerator) Generate(data *ReportData) ([]byte, error) {
	if data == nil {
		return nil, fmt.Errorf("report data is required")
	}
	if data.Title == "" {
		data.Title = "Remediation Report"
	}
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now().UTC()
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 25)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	g.writeCoverPage(pdf, data, tr)

	pdf.AddPage()
	g.addPageHeader(pdf, "Summary")
	g.writeSummary(pdf, data)

	if len(data.Entries) > 0 {
		pdf.AddPage()
		g.addPageHeader(pdf, "Decisions")
		g.writeDecisionTable(pdf, data, tr)

		pdf.AddPage()
		g.addPageHeader(pdf, "Details")
		g.writeDetails(pdf, data, tr)
	}

	g.addPageNumbers(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("PDF output error: %w", err)
	}
	return buf.Bytes(), nil
}

func (g *PDFGenerator) writeCoverPage(pdf *fpdf.Fpdf, data *ReportData, tr func(string) string) {
	pdf.AddPage()
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, 8, "F")

	pdf.SetY(50)
	pdf.SetFont("Arial", "B", 32)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 15, "CODEWEAVER", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 8, "Human-approved incident remediation", "", 1, "C", false, 0, "")

	pdf.SetY(100)
	pdf.SetFont("Arial", "B", 28)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 12, tr(data.Title), "", 1, "C", false, 0, "")

	pdf.SetY(130)
	boxX := 40.0
	boxWidth := pageWidth - 80
	pdf.SetFillColor(colorBackground[0], colorBackground[1], colorBackground[2])
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	pdf.RoundedRect(boxX, pdf.GetY(), boxWidth, 40, 3, "1234", "FD")

	pdf.SetY(pdf.GetY() + 8)
	pdf.SetFont("Arial", "B", 11)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 7, "PERIOD", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 12)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 8, periodString(data.Entries), "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 8, fmt.Sprintf("%d decision(s)", len(data.Entries)), "", 1, "C", false, 0, "")

	pdf.SetY(200)
	pdf.SetFont("Arial", "", 10)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(0, 6, "Generated "+data.GeneratedAt.Format("January 2, 2006 15:04 MST"), "", 1, "C", false, 0, "")
}

func (g *PDFGenerator) addPageHeader(pdf *fpdf.Fpdf, section string) {
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetDrawColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.SetLineWidth(0.5)
	pdf.Line(20, 15, pageWidth-20, 15)

	pdf.SetY(18)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 5, "CODEWEAVER REMEDIATION REPORT", "", 1, "L", false, 0, "")

	pdf.SetY(30)
	pdf.SetFont("Arial", "B", 18)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 10, section, "", 1, "L", false, 0, "")
	pdf.Ln(5)
}

func (g *PDFGenerator) writeSummary(pdf *fpdf.Fpdf, data *ReportData) {
	byStatus := map[string]int{}
	byAction := map[string]int{}
	for _, e := range data.Entries {
		byStatus[string(e.Plan.Status)]++
		byAction[string(e.Plan.Action.Type)]++
	}

	g.writeCountTable(pdf, "By outcome", []string{
		string(remediation.StatusExecuted),
		string(remediation.StatusFailed),
		string(remediation.StatusRejected),
	}, byStatus)
	pdf.Ln(6)
	g.writeCountTable(pdf, "By action", sortedKeys(byAction), byAction)
}

func (g *PDFGenerator) writeCountTable(pdf *fpdf.Fpdf, title string, keys []string, counts map[string]int) {
	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")

	pdf.SetFillColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(60, 7, "Value", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Count", "1", 1, "C", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	if len(keys) == 0 {
		pdf.CellFormat(90, 6, "none", "1", 1, "C", false, 0, "")
		return
	}
	for _, k := range keys {
		pdf.CellFormat(60, 6, k, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%d", counts[k]), "1", 1, "C", false, 0, "")
	}
}

func (g *PDFGenerator) writeDecisionTable(pdf *fpdf.Fpdf, data *ReportData, tr func(string) string) {
	colWidths := []float64{30, 28, 34, 22, 28, 28}
	headers := []string{"Recorded", "Plan", "Action", "Status", "Decided by", "Result"}

	pdf.SetFillColor(colorTableHeader[0], colorTableHeader[1], colorTableHeader[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Arial", "B", 8)
	for i, header := range headers {
		pdf.CellFormat(colWidths[i], 7, header, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	fill := false
	for _, e := range data.Entries {
		if fill {
			pdf.SetFillColor(colorTableAlt[0], colorTableAlt[1], colorTableAlt[2])
		} else {
			pdf.SetFillColor(255, 255, 255)
		}
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(colWidths[0], 6, e.RecordedAt.Format("Jan 02 15:04"), "1", 0, "C", fill, 0, "")
		pdf.CellFormat(colWidths[1], 6, truncate(e.Plan.ID, 12), "1", 0, "L", fill, 0, "")
		pdf.CellFormat(colWidths[2], 6, string(e.Plan.Action.Type), "1", 0, "L", fill, 0, "")

		c := statusColor(e.Plan.Status)
		pdf.SetTextColor(c[0], c[1], c[2])
		pdf.CellFormat(colWidths[3], 6, string(e.Plan.Status), "1", 0, "C", fill, 0, "")
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])

		pdf.CellFormat(colWidths[4], 6, tr(truncate(e.Plan.DecidedBy, 16)), "1", 0, "L", fill, 0, "")
		result := "-"
		if e.Result != nil {
			result = string(e.Result.Status)
		}
		pdf.CellFormat(colWidths[5], 6, result, "1", 0, "C", fill, 0, "")
		pdf.Ln(-1)
		fill = !fill
	}
}

func (g *PDFGenerator) writeDetails(pdf *fpdf.Fpdf, data *ReportData, tr func(string) string) {
	for _, e := range data.Entries {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
		pdf.CellFormat(0, 7, fmt.Sprintf("%s  (%s, %s)", e.Plan.ID, e.Plan.Action.Type, e.Plan.Status), "", 1, "L", false, 0, "")

		pdf.SetFont("Arial", "", 9)
		detail := func(label, value string) {
			if value == "" {
				return
			}
			pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
			pdf.CellFormat(30, 5, label, "", 0, "L", false, 0, "")
			pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
			pdf.MultiCell(0, 5, tr(truncate(value, 600)), "", "L", false)
		}
		detail("Root cause", e.Plan.Diagnosis.RootCause)
		detail("Reason", e.Plan.Reason)
		if e.Plan.Action.Patch != nil {
			detail("File", e.Plan.Action.Patch.FilePath)
		}
		if e.Plan.Action.Resolve != nil {
			detail("Target", e.Plan.Action.Resolve.Target)
		}
		for _, f := range e.Plan.SafetyFindings {
			detail("Finding", f)
		}
		if e.Result != nil {
			detail("Result", e.Result.Details)
			detail("Backup", e.Result.BackupPath)
		}
		pdf.Ln(4)
	}
}

func (g *PDFGenerator) addPageNumbers(pdf *fpdf.Fpdf) {
	// Disable auto page break while adding footers to prevent creating new pages
	pdf.SetAutoPageBreak(false, 0)

	totalPages := pdf.PageCount()
	for i := 2; i <= totalPages; i++ {
		pdf.SetPage(i)
		pageWidth, pageHeight := pdf.GetPageSize()

		pdf.SetY(pageHeight - 15)
		pdf.SetFont("Arial", "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of %d", i-1, totalPages-1), "", 0, "C", false, 0, "")

		pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		pdf.SetLineWidth(0.3)
		pdf.Line(20, pageHeight-20, pageWidth-20, pageHeight-20)
	}
}

func statusColor(s remediation.Status) [3]int {
	switch s {
	case remediation.StatusExecuted:
		return colorAccent
	case remediation.StatusFailed:
		return colorDanger
	default:
		return colorWarning
	}
}

func periodString(entries []archive.Entry) string {
	if len(entries) == 0 {
		return "no decisions recorded"
	}
	first, last := entries[0].RecordedAt, entries[0].RecordedAt
	for _, e := range entries[1:] {
		if e.RecordedAt.Before(first) {
			first = e.RecordedAt
		}
		if e.RecordedAt.After(last) {
			last = e.RecordedAt
		}
	}
	return fmt.Sprintf("%s  -  %s", first.Format("Jan 2, 2006 15:04"), last.Format("Jan 2, 2006 15:04"))
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
