package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/qdrk/bf-blackbox-parser/internal/health"
)

// SavePDF renders the report into a PDF document with the source digest
// stamped as a QR code on the first page.
func SavePDF(rep FileReport, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Blackbox Log Report", false)
	pdf.SetAuthor("bbxctl", false)
	pdf.SetCreator("bbxctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Blackbox Log Report")
	addDigestStamp(pdf, rep)
	addFileSection(pdf, rep)
	addLogTableSection(pdf, rep.Logs)
	addFindingsSection(pdf, rep.Health)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addDigestStamp(pdf *gofpdf.Fpdf, rep FileReport) {
	png, err := DigestToQR(rep.Sha256, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("digest-qr", opts, bytes.NewReader(png))
	pdf.ImageOptions("digest-qr", 165, 12, 28, 28, false, opts, 0, "")
}

func addFileSection(pdf *gofpdf.Fpdf, rep FileReport) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "File")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Path", value: rep.File},
		{label: "Size", value: fmt.Sprintf("%d bytes", rep.SizeBytes)},
		{label: "SHA-256", value: rep.Sha256},
		{label: "Flights", value: strconv.Itoa(len(rep.Logs))},
		{label: "Health", value: passLabel(rep.Health.Summary.Pass)},
	}
	for _, item := range items {
		pdf.CellFormat(30, 6, item.label, "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 6, item.value, "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 11)
	}
	pdf.Ln(4)
}

func addLogTableSection(pdf *gofpdf.Fpdf, logs []LogSummary) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Flights")
	pdf.Ln(9)

	headers := []string{"#", "Duration", "Frames", "Corrupt", "Chunks", "End", "Status"}
	widths := []float64{10, 24, 30, 22, 20, 16, 58}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, log := range logs {
		status := "OK"
		if log.Error != "" {
			status = log.Error
		}
		end := "lost"
		if log.CleanEnd {
			end = "clean"
		}
		values := []string{
			strconv.Itoa(log.Index + 1),
			formatDuration(log.DurationSec),
			strconv.Itoa(log.IntraFrames + log.InterFrames),
			strconv.Itoa(log.CorruptFrames),
			strconv.Itoa(log.Chunks),
			end,
			status,
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, rep health.Report) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(rep.Findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, d := range rep.Findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s) flight %d", i+1, d.RuleId, d.Severity, d.LogIndex+1)
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(d.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}
		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func passLabel(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}
