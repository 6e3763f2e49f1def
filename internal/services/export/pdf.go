package export

import (
	"fmt"
	"io"

	"github.com/go-pdf/fpdf"
	"github.com/ternarybob/calbuddy/internal/models"
)

var pdfColumns = []struct {
	title string
	width float64
}{
	{"Time", 16},
	{"Name", 52},
	{"Customer", 34},
	{"Type", 52},
	{"Address", 95},
	{"WO", 18},
}

// WriteJobsPDF renders the job list as a printable landscape sheet, one
// section per assignee
func WriteJobsPDF(w io.Writer, results []models.JobResult, title string) error {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
	pdf.Ln(2)

	groups := Group(results)
	if len(groups) == 0 {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, "No jobs collected.", "", 1, "L", false, 0, "")
	}

	for _, company := range groups {
		pdf.SetFont("Arial", "B", 12)
		pdf.SetFillColor(220, 220, 220)
		pdf.CellFormat(0, 7, company.Company, "", 1, "L", true, 0, "")

		for _, date := range company.Dates {
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(0, 6, date.Date, "", 1, "L", false, 0, "")

			pdf.SetFillColor(240, 240, 240)
			for _, col := range pdfColumns {
				pdf.CellFormat(col.width, 6, col.title, "1", 0, "L", true, 0, "")
			}
			pdf.Ln(-1)

			pdf.SetFont("Arial", "", 9)
			for _, job := range date.Jobs {
				cells := []string{
					job.TimeSlot,
					job.DisplayName,
					job.ID,
					job.Category,
					job.Address,
					fmt.Sprintf("WO %d", job.WorkOrderNumber),
				}
				for i, col := range pdfColumns {
					pdf.CellFormat(col.width, 6, fitText(pdf, cells[i], col.width-2), "1", 0, "L", false, 0, "")
				}
				pdf.Ln(-1)
			}
			pdf.Ln(3)
		}
		pdf.Ln(2)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render PDF: %w", err)
	}
	return nil
}

// fitText truncates text with an ellipsis to fit width
func fitText(pdf *fpdf.Fpdf, text string, width float64) string {
	if pdf.GetStringWidth(text) <= width {
		return text
	}
	runes := []rune(text)
	for len(runes) > 1 && pdf.GetStringWidth(string(runes)+"...") > width {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "..."
}
