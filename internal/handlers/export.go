package handlers

import (
	"net/http"

	"github.com/xuri/excelize/v2"

	"margin-dashboard/internal/errors"
	"margin-dashboard/internal/models"
	"margin-dashboard/internal/observability"
)

const exportSheet = "Margin Analysis"

// HandleExport streams the margin-analysis rows as a spreadsheet. Pure
// serialization; scope and overrides behave exactly as on /api/analytics.
func (h *APIHandlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	scope, overrides, err := parseQuery(r)
	if err != nil {
		errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
		return
	}

	result := h.engine.ComputeAnalytics(r.Context(), scope, overrides)

	workbook, err := marginAnalysisWorkbook(result.MarginAnalysisSummaries)
	if err != nil {
		appErr := errors.InternalWrap(err, "failed to build export workbook")
		errors.WriteError(w, h.logger, appErr, observability.GetRequestID(r.Context()))
		return
	}
	defer workbook.Close()

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="margin-analysis.xlsx"`)

	if err := workbook.Write(w); err != nil {
		h.logger.Error("write export workbook", "error", err)
	}
}

func marginAnalysisWorkbook(rows []models.MarginAnalysisSummary) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(index)

	headers := []string{
		"Product", "Selling Price", "Latest Purchase Price", "Average Margin %",
		"Min Margin %", "Purchases", "Purchases (YTD)", "Vendors",
		"Total Quantity", "Margin Loss", "Margin Loss %", "Best Vendor", "Worst Vendor",
	}
	for i, header := range headers {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		f.SetCellValue(exportSheet, cell, header)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6E6FA"},
			Pattern: 1,
		},
	})
	if err == nil {
		f.SetRowStyle(exportSheet, 1, 1, headerStyle)
	}

	for rowIndex, row := range rows {
		values := []any{
			row.ProductName,
			row.SellingPrice,
			row.LatestPurchasePrice,
			row.AverageMargin,
			row.MinMargin,
			row.PurchaseCount,
			row.YearPurchaseCount,
			row.VendorCount,
			row.TotalQuantity,
			row.TotalMarginLoss,
			row.MarginLossPercentage,
			row.BestVendorName,
			row.WorstVendorName,
		}
		for colIndex, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIndex+1, rowIndex+2)
			if err != nil {
				return nil, err
			}
			f.SetCellValue(exportSheet, cell, value)
		}
	}

	for i := range headers {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err == nil {
			f.SetColWidth(exportSheet, col, col, 18)
		}
	}

	f.DeleteSheet("Sheet1")
	return f, nil
}
