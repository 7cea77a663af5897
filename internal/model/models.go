package model

import (
	"fmt"
	"time"
)

// Sale is one historical transaction as returned by /sales-history/.
type Sale struct {
	ID           int64   `json:"id"`
	ProductID    int64   `json:"product_id"`
	Quantity     int     `json:"quantity"`
	SaleDate     string  `json:"sale_date"` // raw backend timestamp, parsed only for display
	SaleValueBRL float64 `json:"sale_value_brl"`
	SaleValueUSD float64 `json:"sale_value_usd"`
	Owner        string  `json:"owner"`
	ProductName  string  `json:"product_name,omitempty"`
	SellerName   string  `json:"seller_name,omitempty"`
}

// CategoryAggregate is the summed revenue of one category over the active range.
type CategoryAggregate struct {
	Name    string  `json:"name"`
	Revenue float64 `json:"revenue"`
	Sales   int     `json:"sales,omitempty"`
	Color   string  `json:"color,omitempty"`
}

// ProductAggregate is one row of /top-products/.
type ProductAggregate struct {
	Name    string  `json:"name"`
	Sales   int     `json:"sales"`
	Revenue float64 `json:"revenue"`
}

// TrendPoint is one day of the sales trend series.
type TrendPoint struct {
	Date          string  `json:"date"`
	Total         float64 `json:"total"`
	MovingAverage float64 `json:"moving_average,omitempty"`
}

// DateRange bounds every aggregate request.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the range of the n days ending at now.
func LastDays(now time.Time, n int) DateRange {
	return DateRange{Start: now.AddDate(0, 0, -n), End: now}
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range needs both start and end")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s is before start %s",
			r.End.Format(time.DateOnly), r.Start.Format(time.DateOnly))
	}
	return nil
}

func (r DateRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.Format(time.DateOnly), r.End.Format(time.DateOnly))
}

// Product is a catalog entry as returned by /products/.
type Product struct {
	ID                int64    `json:"id"`
	Description       string   `json:"description"`
	ImageURL          string   `json:"image_url"`
	Quantity          int      `json:"quantity"`
	SuggestedQuantity int      `json:"suggested_quantity"`
	Price             float64  `json:"price"`
	PriceUSD          float64  `json:"price_usd"`
	Status            string   `json:"status"`
	Categories        []string `json:"categories"`
	Owner             string   `json:"owner"`
}

// ProductCreate is the body of POST /products/. Status, USD price and owner are
// assigned by the backend.
type ProductCreate struct {
	Description       string   `json:"description"`
	ImageURL          string   `json:"image_url"`
	Quantity          int      `json:"quantity"`
	SuggestedQuantity int      `json:"suggested_quantity"`
	Price             float64  `json:"price"`
	Categories        []string `json:"categories"`
}

// PurchaseRequest is the body of POST /products/purchase/.
type PurchaseRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

// PurchaseResult is the backend acknowledgement of a purchase.
type PurchaseResult struct {
	Message string `json:"message"`
	Product string `json:"product,omitempty"`
}
