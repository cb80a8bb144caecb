package quotes

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/pgclosets/quote-service/internal/platform/money"
)

const pdfBusinessLine = "PG Closets | Ottawa, ON | pgclosets.com"

// RenderPDF lays out the quote as a one page A4 document. Dates are shown
// in loc.
func RenderPDF(q *Quote, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Quote "+q.QuoteNumber, false)
	pdf.SetAuthor("PG Closets", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "Quote "+q.QuoteNumber)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 11)
	created := q.CreatedAt.In(loc)
	pdf.Cell(0, 6, "Date: "+created.Format("January 2, 2006"))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Valid until: "+q.ValidUntil().In(loc).Format("January 2, 2006"))
	pdf.Ln(6)
	pdf.Cell(0, 6, "Status: "+string(q.Status))
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "B", 11)
	pdf.Cell(0, 6, "Customer")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 11)
	pdf.Cell(0, 6, tr(q.CustomerName))
	pdf.Ln(6)
	pdf.Cell(0, 6, q.CustomerEmail)
	pdf.Ln(6)
	if q.CustomerPhone != "" {
		pdf.Cell(0, 6, q.CustomerPhone)
		pdf.Ln(6)
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(240, 240, 240)
	pdf.CellFormat(100, 7, "Item", "B", 0, "L", true, 0, "")
	pdf.CellFormat(20, 7, "Qty", "B", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Unit price", "B", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Line total", "B", 1, "R", true, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range q.Items {
		unit, line := "On request", "-"
		if item.UnitPriceCents != nil {
			unit = money.FormatCAD(*item.UnitPriceCents)
			line = money.FormatCAD(item.LineTotalCents())
		}
		pdf.CellFormat(100, 6, tr(truncate(item.Name, 55)), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, strconv.Itoa(item.Quantity), "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, unit, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, line, "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(155, 8, "Total", "T", 0, "R", false, 0, "")
	pdf.CellFormat(35, 8, money.FormatCADWithCode(q.TotalCents()), "T", 1, "R", false, 0, "")

	if q.Notes != "" {
		pdf.Ln(4)
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Notes")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 5, tr(q.Notes), "", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.Cell(0, 4, "Prices exclude tax, delivery and installation unless stated. Final pricing is confirmed after measurement.")
	pdf.Ln(4)
	pdf.Cell(0, 4, pdfBusinessLine)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render quote pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "..."
}
