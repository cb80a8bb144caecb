package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/pgclosets/quote-service/internal/platform/money"
)

const (
	exportSheet   = "Quotes"
	exportPage    = 100
	exportMaxRows = 5000
)

var exportHeaders = []string{"Quote number", "Created", "Status", "Customer", "Email", "Province", "Items", "Total (cents)", "Total"}

// ExportRows collects up to exportMaxRows summaries matching status.
func (s *Service) ExportRows(ctx context.Context, status Status) ([]QuoteSummary, error) {
	var rows []QuoteSummary
	for page := 1; len(rows) < exportMaxRows; page++ {
		batch, pagination, err := s.List(ctx, ListRequest{Status: status, Page: page, PerPage: exportPage})
		if err != nil {
			return nil, err
		}
		rows = append(rows, batch...)
		if page >= pagination.TotalPages || len(batch) == 0 {
			break
		}
	}
	if len(rows) > exportMaxRows {
		rows = rows[:exportMaxRows]
	}
	return rows, nil
}

// RenderXLSX writes summaries to a single-sheet workbook.
func RenderXLSX(rows []QuoteSummary, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	file := excelize.NewFile()
	defer file.Close()

	if err := file.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, err
	}
	set := func(col, row int, value any) error {
		cell, err := excelize.CoordinatesToCellName(col, row)
		if err != nil {
			return err
		}
		return file.SetCellValue(exportSheet, cell, value)
	}

	for i, header := range exportHeaders {
		if err := set(i+1, 1, header); err != nil {
			return nil, err
		}
	}
	bold, err := file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := file.SetRowStyle(exportSheet, 1, 1, bold); err != nil {
		return nil, err
	}

	for i, q := range rows {
		row := i + 2
		values := []any{
			q.QuoteNumber,
			q.CreatedAt.In(loc).Format("2006-01-02 15:04"),
			string(q.Status),
			q.CustomerName,
			q.CustomerEmail,
			q.Province,
			q.ItemCount,
			q.TotalCents,
			money.FormatCAD(q.TotalCents),
		}
		for col, v := range values {
			if err := set(col+1, row, v); err != nil {
				return nil, fmt.Errorf("write export row %d: %w", row, err)
			}
		}
	}

	_ = file.SetColWidth(exportSheet, "A", "A", 24)
	_ = file.SetColWidth(exportSheet, "B", "C", 20)
	_ = file.SetColWidth(exportSheet, "D", "E", 32)
	_ = file.SetColWidth(exportSheet, "F", "I", 14)
	_ = file.SetPanes(exportSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
