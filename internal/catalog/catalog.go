package catalog

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"storefront-dashboard/internal/model"
)

// Stock levels shown next to each product.
const (
	StatusRed    = "red"
	StatusYellow = "yellow"
	StatusGreen  = "green"
)

// yellowMargin is how far above the suggested quantity a product still counts as low.
const yellowMargin = 5

// Filter keeps the in-stock products of category (empty matches every category) whose
// description contains search, ignoring case. The input is not modified.
func Filter(products []model.Product, category, search string) []model.Product {
	needle := strings.ToLower(strings.TrimSpace(search))

	out := make([]model.Product, 0, len(products))
	for _, p := range products {
		if p.Quantity <= 0 {
			continue
		}
		if category != "" && !slices.Contains(p.Categories, category) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(p.Description), needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// StockStatus classifies quantity against the suggested stock level.
func StockStatus(quantity, suggested int) string {
	switch {
	case quantity < suggested:
		return StatusRed
	case quantity-suggested <= yellowMargin:
		return StatusYellow
	default:
		return StatusGreen
	}
}

// ToUSD converts a BRL price at rate BRL per USD, rounded to cents. A non-positive
// rate yields 0.
func ToUSD(brl, rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	usd, _ := decimal.NewFromFloat(brl).Div(decimal.NewFromFloat(rate)).Round(2).Float64()
	return usd
}

// WithUSD returns a copy of products with PriceUSD filled in at rate.
func WithUSD(products []model.Product, rate float64) []model.Product {
	out := make([]model.Product, len(products))
	for i, p := range products {
		p.PriceUSD = ToUSD(p.Price, rate)
		out[i] = p
	}
	return out
}
