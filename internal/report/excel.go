package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/service"
)

// Sheet names, in workbook order.
const (
	SheetHistory  = "History"
	SheetCategory = "Category"
	SheetProducts = "Products"
	SheetTrend    = "Trend"
)

const (
	missingDate = "--/--/----"
	missingTime = "--:--"
)

var headers = map[string][]any{
	SheetHistory:  {"Date", "Time", "Product", "Seller", "Quantity", "Value (R$)"},
	SheetCategory: {"Category", "Revenue (R$)"},
	SheetProducts: {"Product", "Units Sold", "Revenue (R$)"},
	SheetTrend:    {"Date", "Total (R$)"},
}

// Options controls how dates are rendered.
type Options struct {
	DateLayout string
	TimeLayout string
	Location   *time.Location
}

func (o Options) withDefaults() Options {
	if o.DateLayout == "" {
		o.DateLayout = "02/01/2006"
	}
	if o.TimeLayout == "" {
		o.TimeLayout = "15:04"
	}
	if o.Location == nil {
		o.Location = time.Local
	}
	return o
}

// Filename is the export name stamped with the generation time.
func Filename(generatedAt time.Time) string {
	return fmt.Sprintf("dashboard_report_%s.xlsx", service.ReportStamp(generatedAt))
}

// Build renders snap into a new workbook. The caller closes the file.
func Build(snap model.Snapshot, opts Options) (*excelize.File, error) {
	opts = opts.withDefaults()

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetHistory); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, name := range []string{SheetCategory, SheetProducts, SheetTrend} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, err
	}

	sheets := map[string][][]any{
		SheetHistory:  historyRows(snap.History, opts),
		SheetCategory: categoryRows(snap.Categories),
		SheetProducts: productRows(snap.TopProducts),
		SheetTrend:    trendRows(snap.Trend, opts),
	}
	for name, rows := range sheets {
		if err := writeSheet(f, name, rows, bold); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
	}
	f.SetActiveSheet(0)
	return f, nil
}

// Write renders snap as xlsx into w.
func Write(w io.Writer, snap model.Snapshot, opts Options) error {
	f, err := Build(snap, opts)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteTo(w)
	return err
}

// Save writes the report into dir and returns its path.
func Save(dir string, snap model.Snapshot, opts Options, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}

	path := filepath.Join(dir, Filename(generatedAt))
	out, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}

	if err := Write(out, snap, opts); err != nil {
		_ = out.Close()
		_ = os.Remove(path)
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func writeSheet(f *excelize.File, name string, rows [][]any, headerStyle int) error {
	header := headers[name]
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, headerStyle); err != nil {
		return err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(name, cell, &row); err != nil {
			return err
		}
	}

	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return f.SetColWidth(name, "A", last, 18)
}

func historyRows(sales []model.Sale, opts Options) [][]any {
	rows := make([][]any, 0, len(sales))
	for _, s := range sales {
		date, clock := missingDate, missingTime
		if t, err := service.ParseTimestamp(s.SaleDate); err == nil {
			local := t.In(opts.Location)
			date, clock = local.Format(opts.DateLayout), local.Format(opts.TimeLayout)
		}

		product := s.ProductName
		if product == "" {
			product = fmt.Sprintf("ID: %d", s.ProductID)
		}
		seller := s.SellerName
		if seller == "" {
			seller = s.Owner
		}

		rows = append(rows, []any{date, clock, product, seller, s.Quantity, service.FormatMoney(s.SaleValueBRL)})
	}
	return rows
}

func categoryRows(categories []model.CategoryAggregate) [][]any {
	rows := make([][]any, 0, len(categories))
	for _, c := range categories {
		rows = append(rows, []any{c.Name, service.FormatMoney(c.Revenue)})
	}
	return rows
}

func productRows(products []model.ProductAggregate) [][]any {
	rows := make([][]any, 0, len(products))
	for _, p := range products {
		rows = append(rows, []any{p.Name, p.Sales, service.FormatMoney(p.Revenue)})
	}
	return rows
}

// trendRows keeps trend days as calendar dates; they are not shifted into opts.Location.
func trendRows(points []model.TrendPoint, opts Options) [][]any {
	rows := make([][]any, 0, len(points))
	for _, p := range points {
		date := missingDate
		if t, err := service.ParseTimestamp(p.Date); err == nil {
			date = t.Format(opts.DateLayout)
		}
		rows = append(rows, []any{date, service.FormatMoney(p.Total)})
	}
	return rows
}
