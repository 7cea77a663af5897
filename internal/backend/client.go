package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"storefront-dashboard/internal/metrics"
	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/service"
)

// Backend REST paths.
const (
	PathSalesHistory    = "/sales-history/"
	PathSalesByCategory = "/sales-by-category/"
	PathTopProducts     = "/top-products/"
	PathSalesTrend      = "/sales-trend/"
	PathProducts        = "/products/"
	PathCategories      = "/categories/"
	PathPurchase        = "/products/purchase/"
	PathLogin           = "/auth/login"
)

const maxResponseBytes = 10 << 20

// ClientConfig holds everything the REST client needs.
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	Breaker service.BreakerConfig
}

// Client implements Backend over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[[]byte] // nil when disabled
	logger     *zap.Logger
}

var _ Backend = (*Client)(nil)

func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	logger = logger.With(zap.String("component", "backend-client"))

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}

	if cfg.Breaker.Enabled {
		maxFailures := cfg.Breaker.MaxFailures
		c.cb = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "storefront-backend",
			MaxRequests: 1,
			Timeout:     cfg.Breaker.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= maxFailures
			},
			// client errors are the caller's problem, not the backend's health
			IsSuccessful: func(err error) bool {
				var se *StatusError
				if errors.As(err, &se) {
					return se.StatusCode < 500
				}
				return err == nil
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("Circuit breaker state transition",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
				metrics.CircuitBreakerState.Set(float64(to))
			},
		})
	}

	return c
}

func (c *Client) SalesHistory(ctx context.Context, token string, rng model.DateRange) ([]model.Sale, error) {
	var out []model.Sale
	err := c.get(ctx, PathSalesHistory, token, rangeQuery(rng), &out)
	return out, err
}

func (c *Client) SalesByCategory(ctx context.Context, token string, rng model.DateRange) ([]model.CategoryAggregate, error) {
	var out []model.CategoryAggregate
	err := c.get(ctx, PathSalesByCategory, token, rangeQuery(rng), &out)
	return out, err
}

func (c *Client) TopProducts(ctx context.Context, token string, rng model.DateRange) ([]model.ProductAggregate, error) {
	var out []model.ProductAggregate
	err := c.get(ctx, PathTopProducts, token, rangeQuery(rng), &out)
	return out, err
}

func (c *Client) SalesTrend(ctx context.Context, token string, rng model.DateRange) ([]model.TrendPoint, error) {
	var out []model.TrendPoint
	err := c.get(ctx, PathSalesTrend, token, rangeQuery(rng), &out)
	return out, err
}

// Products lists the catalog. Filtering happens client-side (see catalog.Filter).
func (c *Client) Products(ctx context.Context, token string) ([]model.Product, error) {
	var out []model.Product
	err := c.get(ctx, PathProducts, token, nil, &out)
	return out, err
}

func (c *Client) Categories(ctx context.Context, token string) ([]string, error) {
	var out []string
	err := c.get(ctx, PathCategories, token, nil, &out)
	return out, err
}

func (c *Client) Purchase(ctx context.Context, token string, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("purchase quantity must be positive, got %d", req.Quantity)
	}
	var out model.PurchaseResult
	if err := c.do(ctx, http.MethodPost, PathPurchase, token, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateProduct registers a product; the backend fills in status, USD price and owner.
func (c *Client) CreateProduct(ctx context.Context, token string, req model.ProductCreate) (*model.Product, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, fmt.Errorf("product description is required")
	}
	if req.Categories == nil {
		req.Categories = []string{}
	}
	var out model.Product
	if err := c.do(ctx, http.MethodPost, PathProducts, token, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	body := struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}{username, password}

	var out struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := c.do(ctx, http.MethodPost, PathLogin, "", nil, body, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("login response carried no access token")
	}
	return out.AccessToken, nil
}

// DollarRate fetches the USD→BRL bid from an AwesomeAPI-style endpoint. Any failure
// returns fallback.
func (c *Client) DollarRate(ctx context.Context, rateURL string, fallback float64) float64 {
	rate, err := c.fetchDollarRate(ctx, rateURL)
	if err != nil {
		c.logger.Warn("Error fetching dollar rate, using fallback",
			zap.Error(err), zap.Float64("fallback", fallback))
		return fallback
	}
	return rate
}

func (c *Client) fetchDollarRate(ctx context.Context, rateURL string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rateURL, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate endpoint status %d", resp.StatusCode)
	}

	var payload struct {
		USDBRL struct {
			Bid string `json:"bid"`
		} `json:"USDBRL"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return 0, fmt.Errorf("decode rate: %w", err)
	}

	rate, err := service.StringToFloat(payload.USDBRL.Bid)
	if err != nil {
		return 0, fmt.Errorf("parse bid %q: %w", payload.USDBRL.Bid, err)
	}
	if rate <= 0 {
		return 0, fmt.Errorf("non-positive rate %v", rate)
	}
	return rate, nil
}

func rangeQuery(rng model.DateRange) url.Values {
	q := url.Values{}
	if !rng.Start.IsZero() {
		q.Set("start_date", service.FormatRangeParam(rng.Start))
	}
	if !rng.End.IsZero() {
		q.Set("end_date", service.FormatRangeParam(rng.End))
	}
	return q
}

func (c *Client) get(ctx context.Context, path, token string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, token, query, nil, out)
}

// do performs one request (through the breaker when enabled) and decodes the JSON
// response into out. There is no retry.
func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body, out any) error {
	call := func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, token, query, body)
	}

	var (
		payload []byte
		err     error
	)
	if c.cb != nil {
		payload, err = c.cb.Execute(call)
	} else {
		payload, err = call()
	}
	if err != nil {
		return err
	}

	if out == nil || len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", path, err)
	}
	return nil
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, query url.Values, body any) ([]byte, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordRequest(path, 0, started)
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer resp.Body.Close()
	metrics.RecordRequest(path, resp.StatusCode, started)

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", path, err)
	}

	c.logger.Debug("Backend request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.String("request_id", requestID),
		zap.Duration("took", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Path: path, StatusCode: resp.StatusCode, Detail: errorDetail(payload)}
	}
	return payload, nil
}

// errorDetail extracts FastAPI's {"detail": ...} body when present.
func errorDetail(payload []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Detail == nil {
		return strings.TrimSpace(string(payload))
	}
	if s, ok := body.Detail.(string); ok {
		return s
	}
	encoded, _ := json.Marshal(body.Detail)
	return string(encoded)
}
