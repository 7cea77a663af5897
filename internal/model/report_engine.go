package model

import (
	"sort"
	"time"

	"storefront-dashboard/pkg/ta"
)

// Display bounds applied to every refreshed report.
const (
	HistoryLimit     = 4
	TopProductsLimit = 10
	CategorySlices   = 3

	OtherCategoryName  = "Other"
	OtherCategoryColor = "#6b7280"
)

// RawReport holds the four aggregate responses exactly as the backend returned them.
type RawReport struct {
	History     []Sale
	Categories  []CategoryAggregate
	TopProducts []ProductAggregate
	Trend       []TrendPoint
}

// Snapshot is the dashboard view of one refresh.
type Snapshot struct {
	History      []Sale              `json:"history"`
	Categories   []CategoryAggregate `json:"categories"`
	TopProducts  []ProductAggregate  `json:"top_products"`
	Trend        []TrendPoint        `json:"trend"`
	TotalUnits   int                 `json:"total_units"`
	TotalRevenue float64             `json:"total_revenue"`
	Range        DateRange           `json:"-"`
	FetchedAt    time.Time           `json:"fetched_at"`
}

// ReportEngine turns raw endpoint responses into a Snapshot.
type ReportEngine struct {
	trendPeriod int
}

// NewReportEngine creates an engine; trendPeriod is the moving-average window for the
// trend overlay (0 disables it).
func NewReportEngine(trendPeriod int) *ReportEngine {
	return &ReportEngine{trendPeriod: trendPeriod}
}

// Build applies truncation, category re-bucketing and totals to raw.
func (e *ReportEngine) Build(raw RawReport, rng DateRange, fetchedAt time.Time) Snapshot {
	return Snapshot{
		History:     truncate(raw.History, HistoryLimit),
		Categories:  RebucketCategories(raw.Categories),
		TopProducts: truncate(raw.TopProducts, TopProductsLimit),
		Trend:       e.trendWithAverage(raw.Trend),
		// units come from the full top-products response, not the truncated one
		TotalUnits: TotalUnits(raw.TopProducts),
		// revenue always covers every category, before re-bucketing
		TotalRevenue: TotalRevenue(raw.Categories),
		Range:        rng,
		FetchedAt:    fetchedAt,
	}
}

func (e *ReportEngine) trendWithAverage(points []TrendPoint) []TrendPoint {
	out := make([]TrendPoint, len(points))
	copy(out, points)
	if e.trendPeriod < 2 || len(out) == 0 {
		return out
	}

	totals := make([]float64, len(out))
	for i, p := range out {
		totals[i] = p.Total
	}
	for i, v := range ta.MovingAverage(totals, e.trendPeriod) {
		out[i].MovingAverage = v
	}
	return out
}

// RebucketCategories keeps the top CategorySlices categories by revenue and folds the
// rest into a single "Other" entry. Inputs of CategorySlices or fewer entries are
// returned unchanged (as a copy).
func RebucketCategories(categories []CategoryAggregate) []CategoryAggregate {
	if len(categories) <= CategorySlices {
		out := make([]CategoryAggregate, len(categories))
		copy(out, categories)
		return out
	}

	sorted := make([]CategoryAggregate, len(categories))
	copy(sorted, categories)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Revenue > sorted[j].Revenue
	})

	other := CategoryAggregate{Name: OtherCategoryName, Color: OtherCategoryColor}
	for _, c := range sorted[CategorySlices:] {
		other.Revenue += c.Revenue
		other.Sales += c.Sales
	}

	out := make([]CategoryAggregate, 0, CategorySlices+1)
	out = append(out, sorted[:CategorySlices]...)
	return append(out, other)
}

// TotalRevenue sums revenue across categories.
func TotalRevenue(categories []CategoryAggregate) float64 {
	var total float64
	for _, c := range categories {
		total += c.Revenue
	}
	return total
}

// TotalUnits sums units sold across products.
func TotalUnits(products []ProductAggregate) int {
	var total int
	for _, p := range products {
		total += p.Sales
	}
	return total
}

func truncate[T any](in []T, limit int) []T {
	n := min(len(in), limit)
	out := make([]T, n)
	copy(out, in[:n])
	return out
}
