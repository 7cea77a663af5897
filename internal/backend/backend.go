package backend

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"storefront-dashboard/internal/model"
)

// ErrUnauthorized is matched (via errors.Is) by any 401 response.
var ErrUnauthorized = errors.New("backend rejected the credential")

// Backend is the storefront service as seen by the client. Every call except Login
// needs the bearer token.
type Backend interface {
	// Dashboard aggregates over a date range
	SalesHistory(ctx context.Context, token string, rng model.DateRange) ([]model.Sale, error)
	SalesByCategory(ctx context.Context, token string, rng model.DateRange) ([]model.CategoryAggregate, error)
	TopProducts(ctx context.Context, token string, rng model.DateRange) ([]model.ProductAggregate, error)
	SalesTrend(ctx context.Context, token string, rng model.DateRange) ([]model.TrendPoint, error)

	// Catalog
	Products(ctx context.Context, token string) ([]model.Product, error)
	Categories(ctx context.Context, token string) ([]string, error)
	Purchase(ctx context.Context, token string, req model.PurchaseRequest) (*model.PurchaseResult, error)
	CreateProduct(ctx context.Context, token string, req model.ProductCreate) (*model.Product, error)

	// Login exchanges credentials for a bearer token.
	Login(ctx context.Context, username, password string) (string, error)
}

// StatusError is a non-2xx backend response.
type StatusError struct {
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Path, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: status %d", e.Path, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == 401
}

// FetchDashboard requests the four aggregates concurrently. Any single failure fails
// the whole fetch; no partial report is returned.
func FetchDashboard(ctx context.Context, b Backend, token string, rng model.DateRange) (model.RawReport, error) {
	var raw model.RawReport
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		history, err := b.SalesHistory(gctx, token, rng)
		if err != nil {
			return fmt.Errorf("sales history: %w", err)
		}
		raw.History = history
		return nil
	})
	g.Go(func() error {
		categories, err := b.SalesByCategory(gctx, token, rng)
		if err != nil {
			return fmt.Errorf("sales by category: %w", err)
		}
		raw.Categories = categories
		return nil
	})
	g.Go(func() error {
		products, err := b.TopProducts(gctx, token, rng)
		if err != nil {
			return fmt.Errorf("top products: %w", err)
		}
		raw.TopProducts = products
		return nil
	})
	g.Go(func() error {
		trend, err := b.SalesTrend(gctx, token, rng)
		if err != nil {
			return fmt.Errorf("sales trend: %w", err)
		}
		raw.Trend = trend
		return nil
	})

	if err := g.Wait(); err != nil {
		return model.RawReport{}, err
	}
	return raw, nil
}
