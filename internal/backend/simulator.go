package backend

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storefront-dashboard/internal/api"
	"storefront-dashboard/internal/catalog"
	"storefront-dashboard/internal/model"
	"storefront-dashboard/internal/service"
)

const (
	simHistoryLimit = 100
	simTopLimit     = 10
	simStreamBuffer = 64
)

// Colours for the seeded categories; anything else gets a neutral grey.
var categoryColors = map[string]string{
	"Electronics": "#f87171",
	"Clothing":    "#60a5fa",
	"Food":        "#34d399",
	"Books":       "#facc15",
	"Home":        "#a78bfa",
	"Toys":        "#fb923c",
}

// SimulatorConfig seeds an in-memory backend.
type SimulatorConfig struct {
	Username string
	Password string
	Token    string // accepted bearer token; generated when empty
	Rate     float64
	Products []model.Product // defaults to DefaultProducts()
	Now      func() time.Time
}

// simSale keeps the product details alive after the product itself is removed.
type simSale struct {
	sale     model.Sale
	at       time.Time
	category string
}

// Simulator is an in-memory storefront backend. It implements Backend for offline
// runs and tests, and api.Dialer so purchases reach subscribers as new_sale pushes.
type Simulator struct {
	cfg    SimulatorConfig
	logger *zap.Logger

	mu         sync.RWMutex
	products   []*model.Product
	sales      []simSale
	nextSaleID int64
	streams    map[*simStream]struct{}
}

var (
	_ Backend    = (*Simulator)(nil)
	_ api.Dialer = (*Simulator)(nil)
)

func NewSimulator(cfg SimulatorConfig, logger *zap.Logger) *Simulator {
	if cfg.Token == "" {
		cfg.Token = uuid.NewString()
	}
	if cfg.Rate <= 0 {
		cfg.Rate = 5.0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Products == nil {
		cfg.Products = DefaultProducts()
	}

	sim := &Simulator{
		cfg:        cfg,
		logger:     logger.With(zap.String("component", "simulator")),
		nextSaleID: 1,
		streams:    make(map[*simStream]struct{}),
	}
	for _, p := range cfg.Products {
		p.Categories = slices.Clone(p.Categories)
		p.Status = catalog.StockStatus(p.Quantity, p.SuggestedQuantity)
		p.PriceUSD = catalog.ToUSD(p.Price, cfg.Rate)
		if p.Owner == "" {
			p.Owner = cfg.Username
		}
		sim.products = append(sim.products, &p)
	}
	return sim
}

// DefaultProducts is the starter catalog of a fresh account.
func DefaultProducts() []model.Product {
	return []model.Product{
		{ID: 1, Description: "Smartphone", Quantity: 15, SuggestedQuantity: 10, Price: 1999.90, Categories: []string{"Electronics"}},
		{ID: 2, Description: "Notebook", Quantity: 8, SuggestedQuantity: 5, Price: 4999.90, Categories: []string{"Electronics"}},
		{ID: 3, Description: "T-Shirt", Quantity: 50, SuggestedQuantity: 30, Price: 49.90, Categories: []string{"Clothing"}},
		{ID: 4, Description: "Jeans", Quantity: 30, SuggestedQuantity: 20, Price: 129.90, Categories: []string{"Clothing"}},
		{ID: 5, Description: "Rice 5kg", Quantity: 100, SuggestedQuantity: 50, Price: 22.50, Categories: []string{"Food"}},
		{ID: 6, Description: "Coffee 500g", Quantity: 20, SuggestedQuantity: 25, Price: 18.90, Categories: []string{"Food"}},
		{ID: 7, Description: "Novel", Quantity: 12, SuggestedQuantity: 10, Price: 59.90, Categories: []string{"Books"}},
		{ID: 8, Description: "Desk Lamp", Quantity: 9, SuggestedQuantity: 5, Price: 89.90, Categories: []string{"Home"}},
		{ID: 9, Description: "Puzzle", Quantity: 6, SuggestedQuantity: 4, Price: 79.90, Categories: []string{"Toys"}},
	}
}

// Token is the bearer token the simulator accepts.
func (s *Simulator) Token() string { return s.cfg.Token }

func (s *Simulator) authorize(path, token string) error {
	if token == "" || token != s.cfg.Token {
		return &StatusError{Path: path, StatusCode: 401, Detail: "Could not validate credentials"}
	}
	return nil
}

func (s *Simulator) Login(_ context.Context, username, password string) (string, error) {
	if username != s.cfg.Username || password != s.cfg.Password {
		return "", &StatusError{Path: PathLogin, StatusCode: 401, Detail: "Incorrect username or password"}
	}
	return s.cfg.Token, nil
}

func (s *Simulator) Products(_ context.Context, token string) ([]model.Product, error) {
	if err := s.authorize(PathProducts, token); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Product, len(s.products))
	for i, p := range s.products {
		out[i] = *p
		out[i].Categories = slices.Clone(p.Categories)
	}
	return out, nil
}

func (s *Simulator) Categories(_ context.Context, token string) ([]string, error) {
	if err := s.authorize(PathCategories, token); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []string
	for _, p := range s.products {
		for _, c := range p.Categories {
			if !slices.Contains(out, c) {
				out = append(out, c)
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// Purchase records a sale, decrements stock and pushes a new_sale event. A product
// whose stock reaches zero is removed from the catalog.
func (s *Simulator) Purchase(_ context.Context, token string, req model.PurchaseRequest) (*model.PurchaseResult, error) {
	if err := s.authorize(PathPurchase, token); err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, &StatusError{Path: PathPurchase, StatusCode: 422, Detail: "quantity must be positive"}
	}

	s.mu.Lock()
	idx := slices.IndexFunc(s.products, func(p *model.Product) bool { return p.ID == req.ProductID })
	if idx < 0 {
		s.mu.Unlock()
		return nil, &StatusError{Path: PathPurchase, StatusCode: 404, Detail: "Product not found"}
	}
	product := s.products[idx]
	if product.Quantity < req.Quantity {
		s.mu.Unlock()
		return nil, &StatusError{Path: PathPurchase, StatusCode: 400, Detail: "Not enough stock"}
	}

	value := service.RoundMoney(product.Price * float64(req.Quantity))
	now := s.cfg.Now().UTC()
	sale := simSale{
		sale: model.Sale{
			ID:           s.nextSaleID,
			ProductID:    product.ID,
			Quantity:     req.Quantity,
			SaleDate:     now.Format(time.RFC3339),
			SaleValueBRL: value,
			SaleValueUSD: service.RoundMoney(product.PriceUSD * float64(req.Quantity)),
			Owner:        product.Owner,
			ProductName:  product.Description,
		},
		at: now,
	}
	if len(product.Categories) > 0 {
		sale.category = product.Categories[0]
	}
	s.nextSaleID++
	s.sales = append(s.sales, sale)

	product.Quantity -= req.Quantity
	product.Status = catalog.StockStatus(product.Quantity, product.SuggestedQuantity)
	action := "updated"
	if product.Quantity <= 0 {
		s.products = slices.Delete(s.products, idx, idx+1)
		action = "removed"
	}

	event := model.SaleEvent{
		ProductID:          product.ID,
		ProductDescription: product.Description,
		Quantity:           req.Quantity,
		Value:              value,
		Action:             action,
	}
	s.broadcastLocked(event)
	s.mu.Unlock()

	s.logger.Info("Simulated sale",
		zap.Int64("product_id", product.ID),
		zap.Int("quantity", req.Quantity),
		zap.String("action", action))

	return &model.PurchaseResult{Message: "Purchase completed", Product: product.Description}, nil
}

// CreateProduct adds a product owned by the simulated user.
func (s *Simulator) CreateProduct(_ context.Context, token string, req model.ProductCreate) (*model.Product, error) {
	if err := s.authorize(PathProducts, token); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Description) == "" || req.Quantity < 0 || req.SuggestedQuantity < 0 || req.Price < 0 {
		return nil, &StatusError{Path: PathProducts, StatusCode: 422, Detail: "invalid product"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	for _, p := range s.products {
		id = max(id, p.ID)
	}
	product := &model.Product{
		ID:                id + 1,
		Description:       req.Description,
		ImageURL:          req.ImageURL,
		Quantity:          req.Quantity,
		SuggestedQuantity: req.SuggestedQuantity,
		Price:             req.Price,
		PriceUSD:          catalog.ToUSD(req.Price, s.cfg.Rate),
		Status:            catalog.StockStatus(req.Quantity, req.SuggestedQuantity),
		Categories:        slices.Clone(req.Categories),
		Owner:             s.cfg.Username,
	}
	s.products = append(s.products, product)

	out := *product
	out.Categories = slices.Clone(product.Categories)
	return &out, nil
}

// SellRandom purchases one unit of a random in-stock product.
func (s *Simulator) SellRandom(ctx context.Context, r *rand.Rand) (*model.PurchaseResult, error) {
	s.mu.RLock()
	if len(s.products) == 0 {
		s.mu.RUnlock()
		return nil, fmt.Errorf("simulator catalog is empty")
	}
	id := s.products[r.IntN(len(s.products))].ID
	s.mu.RUnlock()

	return s.Purchase(ctx, s.cfg.Token, model.PurchaseRequest{ProductID: id, Quantity: 1})
}

// SalesHistory returns sales in rng, newest first.
func (s *Simulator) SalesHistory(_ context.Context, token string, rng model.DateRange) ([]model.Sale, error) {
	if err := s.authorize(PathSalesHistory, token); err != nil {
		return nil, err
	}
	sales := s.salesIn(rng)
	slices.Reverse(sales)

	out := make([]model.Sale, 0, min(len(sales), simHistoryLimit))
	for _, sale := range sales[:min(len(sales), simHistoryLimit)] {
		out = append(out, sale.sale)
	}
	return out, nil
}

func (s *Simulator) SalesByCategory(_ context.Context, token string, rng model.DateRange) ([]model.CategoryAggregate, error) {
	if err := s.authorize(PathSalesByCategory, token); err != nil {
		return nil, err
	}

	byName := make(map[string]*model.CategoryAggregate)
	for _, sale := range s.salesIn(rng) {
		if sale.category == "" {
			continue
		}
		agg, ok := byName[sale.category]
		if !ok {
			agg = &model.CategoryAggregate{Name: sale.category, Color: categoryColor(sale.category)}
			byName[sale.category] = agg
		}
		agg.Sales += sale.sale.Quantity
		agg.Revenue += sale.sale.SaleValueBRL
	}

	out := make([]model.CategoryAggregate, 0, len(byName))
	for _, agg := range byName {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b model.CategoryAggregate) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// TopProducts ranks products by units sold.
func (s *Simulator) TopProducts(_ context.Context, token string, rng model.DateRange) ([]model.ProductAggregate, error) {
	if err := s.authorize(PathTopProducts, token); err != nil {
		return nil, err
	}

	byName := make(map[string]*model.ProductAggregate)
	for _, sale := range s.salesIn(rng) {
		name := sale.sale.ProductName
		agg, ok := byName[name]
		if !ok {
			agg = &model.ProductAggregate{Name: name}
			byName[name] = agg
		}
		agg.Sales += sale.sale.Quantity
		agg.Revenue += sale.sale.SaleValueBRL
	}

	out := make([]model.ProductAggregate, 0, len(byName))
	for _, agg := range byName {
		out = append(out, *agg)
	}
	slices.SortFunc(out, func(a, b model.ProductAggregate) int {
		if c := cmp.Compare(b.Sales, a.Sales); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return out[:min(len(out), simTopLimit)], nil
}

// SalesTrend sums revenue per UTC day, oldest first.
func (s *Simulator) SalesTrend(_ context.Context, token string, rng model.DateRange) ([]model.TrendPoint, error) {
	if err := s.authorize(PathSalesTrend, token); err != nil {
		return nil, err
	}

	var out []model.TrendPoint
	for _, sale := range s.salesIn(rng) {
		day := sale.at.Format(time.DateOnly)
		if n := len(out); n > 0 && out[n-1].Date == day {
			out[n-1].Total += sale.sale.SaleValueBRL
			continue
		}
		out = append(out, model.TrendPoint{Date: day, Total: sale.sale.SaleValueBRL})
	}
	return out, nil
}

// salesIn returns the sales inside rng in recording order. Zero bounds are open.
func (s *Simulator) salesIn(rng model.DateRange) []simSale {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]simSale, 0, len(s.sales))
	for _, sale := range s.sales {
		if !rng.Start.IsZero() && sale.at.Before(rng.Start) {
			continue
		}
		if !rng.End.IsZero() && sale.at.After(rng.End) {
			continue
		}
		out = append(out, sale)
	}
	return out
}

func categoryColor(name string) string {
	if c, ok := categoryColors[name]; ok {
		return c
	}
	return model.OtherCategoryColor
}

// Open subscribes to the simulated push stream. Like the real backend, an invalid
// token is accepted at the transport level and then closed with a policy violation.
func (s *Simulator) Open(ctx context.Context, token string) (api.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stream := &simStream{
		sim:    s,
		events: make(chan api.StreamEvent, simStreamBuffer),
		done:   make(chan struct{}),
	}
	if token != s.cfg.Token {
		stream.end(api.ClosePolicyViolation, "invalid token")
		return stream, nil
	}

	s.mu.Lock()
	s.streams[stream] = struct{}{}
	s.mu.Unlock()
	return stream, nil
}

// Disconnect closes every open stream with code, as a server restart would.
func (s *Simulator) Disconnect(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for stream := range s.streams {
		stream.end(code, reason)
		delete(s.streams, stream)
	}
}

// StreamCount reports the number of subscribed streams.
func (s *Simulator) StreamCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.streams)
}

func (s *Simulator) broadcastLocked(event model.SaleEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to encode sale event", zap.Error(err))
		return
	}
	payload, err := json.Marshal(model.Envelope{Type: model.KindNewSale, Data: data})
	if err != nil {
		s.logger.Error("Failed to encode push envelope", zap.Error(err))
		return
	}

	for stream := range s.streams {
		if !stream.push(api.StreamEvent{Kind: api.EventMessage, Data: payload}) {
			s.logger.Warn("Dropping push message for slow subscriber")
		}
	}
}

func (s *Simulator) unsubscribe(stream *simStream) {
	s.mu.Lock()
	delete(s.streams, stream)
	s.mu.Unlock()
}

// simStream delivers simulator events until it ends, either closed locally or
// disconnected by the simulator.
type simStream struct {
	sim    *Simulator
	events chan api.StreamEvent

	closeOnce sync.Once
	done      chan struct{}
	code      int // set before done is closed
	reason    string
}

func (st *simStream) push(ev api.StreamEvent) bool {
	select {
	case st.events <- ev:
		return true
	default:
		return false
	}
}

// end stops the stream; Run reports code and reason as its final event. Only the
// first call has an effect.
func (st *simStream) end(code int, reason string) {
	st.closeOnce.Do(func() {
		st.code, st.reason = code, reason
		close(st.done)
	})
}

func (st *simStream) Run(handle func(api.StreamEvent)) {
	for {
		select {
		case <-st.done:
			handle(api.StreamEvent{Kind: api.EventClose, Code: st.code, Reason: st.reason})
			return
		default:
		}

		select {
		case ev := <-st.events:
			handle(ev)
		case <-st.done:
		}
	}
}

func (st *simStream) Close() error {
	st.end(api.CloseNormal, "")
	st.sim.unsubscribe(st)
	return nil
}
