package backend

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"storefront-dashboard/internal/api"
	"storefront-dashboard/internal/model"
)

func newTestSimulator(now time.Time) *Simulator {
	clock := now
	return NewSimulator(SimulatorConfig{
		Username: "admin",
		Password: "secret",
		Token:    "sim-token",
		Rate:     5,
		Products: []model.Product{
			{ID: 1, Description: "Notebook", Quantity: 2, SuggestedQuantity: 1, Price: 4999.90, Categories: []string{"Electronics"}},
			{ID: 2, Description: "T-Shirt", Quantity: 20, SuggestedQuantity: 5, Price: 50, Categories: []string{"Clothing"}},
			{ID: 3, Description: "Rice", Quantity: 30, SuggestedQuantity: 10, Price: 20, Categories: []string{"Food"}},
		},
		Now: func() time.Time { return clock },
	}, zap.NewNop())
}

func TestSimulator_PurchaseUpdatesStockAndAggregates(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	sim := newTestSimulator(now)
	ctx := context.Background()
	token := sim.Token()

	for _, req := range []model.PurchaseRequest{{ProductID: 2, Quantity: 3}, {ProductID: 3, Quantity: 5}, {ProductID: 2, Quantity: 1}} {
		if _, err := sim.Purchase(ctx, token, req); err != nil {
			t.Fatalf("Purchase(%+v) failed: %v", req, err)
		}
	}

	rng := model.DateRange{Start: now.Add(-time.Hour), End: now.Add(time.Hour)}

	history, _ := sim.SalesHistory(ctx, token, rng)
	if len(history) != 3 || history[0].ID != 3 || history[2].ID != 1 {
		t.Errorf("Expected newest-first history, got %+v", history)
	}

	top, _ := sim.TopProducts(ctx, token, rng)
	if len(top) != 2 || top[0].Name != "Rice" || top[0].Sales != 5 || top[1].Sales != 4 || top[1].Revenue != 200 {
		t.Errorf("Unexpected top products %+v", top)
	}

	cats, _ := sim.SalesByCategory(ctx, token, rng)
	if len(cats) != 2 || cats[0].Name != "Clothing" || cats[0].Revenue != 200 || cats[0].Color != "#60a5fa" {
		t.Errorf("Unexpected categories %+v", cats)
	}

	trend, _ := sim.SalesTrend(ctx, token, rng)
	if len(trend) != 1 || trend[0].Date != "2026-10-01" || trend[0].Total != 300 {
		t.Errorf("Unexpected trend %+v", trend)
	}

	products, _ := sim.Products(ctx, token)
	if products[1].Quantity != 16 {
		t.Errorf("Expected stock 16, got %d", products[1].Quantity)
	}
}

func TestSimulator_RangeExcludesOutsideSales(t *testing.T) {
	now := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	sim := newTestSimulator(now)
	ctx := context.Background()

	_, _ = sim.Purchase(ctx, sim.Token(), model.PurchaseRequest{ProductID: 3, Quantity: 1})

	later := model.DateRange{Start: now.Add(24 * time.Hour), End: now.Add(48 * time.Hour)}
	history, _ := sim.SalesHistory(ctx, sim.Token(), later)
	if len(history) != 0 {
		t.Errorf("Expected no sales in a later range, got %d", len(history))
	}
}

func TestSimulator_PurchaseErrors(t *testing.T) {
	sim := newTestSimulator(time.Now())
	ctx := context.Background()

	tests := []struct {
		name   string
		token  string
		req    model.PurchaseRequest
		status int
	}{
		{"bad token", "nope", model.PurchaseRequest{ProductID: 1, Quantity: 1}, 401},
		{"unknown product", sim.Token(), model.PurchaseRequest{ProductID: 99, Quantity: 1}, 404},
		{"not enough stock", sim.Token(), model.PurchaseRequest{ProductID: 1, Quantity: 3}, 400},
		{"zero quantity", sim.Token(), model.PurchaseRequest{ProductID: 1}, 422},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sim.Purchase(ctx, tt.token, tt.req)
			var se *StatusError
			if !errors.As(err, &se) || se.StatusCode != tt.status {
				t.Errorf("Expected status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestSimulator_PushStream(t *testing.T) {
	sim := newTestSimulator(time.Now())
	ctx := context.Background()

	stream, err := sim.Open(ctx, sim.Token())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if sim.StreamCount() != 1 {
		t.Fatalf("Expected one subscriber, got %d", sim.StreamCount())
	}

	events := make(chan api.StreamEvent, 8)
	go stream.Run(func(ev api.StreamEvent) { events <- ev })

	// selling the last two notebooks removes the product
	if _, err := sim.Purchase(ctx, sim.Token(), model.PurchaseRequest{ProductID: 1, Quantity: 2}); err != nil {
		t.Fatalf("Purchase failed: %v", err)
	}

	ev := <-events
	if ev.Kind != api.EventMessage {
		t.Fatalf("Expected message, got %+v", ev)
	}
	var env model.Envelope
	if err := json.Unmarshal(ev.Data, &env); err != nil || env.Type != model.KindNewSale {
		t.Fatalf("Unexpected envelope %s (%v)", ev.Data, err)
	}
	var sale model.SaleEvent
	if err := json.Unmarshal(env.Data, &sale); err != nil {
		t.Fatalf("decode sale: %v", err)
	}
	if sale.ProductDescription != "Notebook" || sale.Quantity != 2 || sale.Action != "removed" || sale.Value != 9999.8 {
		t.Errorf("Unexpected sale event %+v", sale)
	}

	sim.Disconnect(1012, "restart")
	ev = <-events
	if ev.Kind != api.EventClose || ev.Code != 1012 {
		t.Errorf("Expected close 1012, got %+v", ev)
	}
	if sim.StreamCount() != 0 {
		t.Errorf("Expected no subscribers after disconnect")
	}
}

func TestSimulator_InvalidTokenClosesWithPolicyViolation(t *testing.T) {
	sim := newTestSimulator(time.Now())

	stream, err := sim.Open(context.Background(), "wrong")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	var got []api.StreamEvent
	stream.Run(func(ev api.StreamEvent) { got = append(got, ev) })
	if len(got) != 1 || got[0].Kind != api.EventClose || got[0].Code != api.ClosePolicyViolation {
		t.Errorf("Expected a single 1008 close, got %+v", got)
	}
}

func TestSimulator_LocalClose(t *testing.T) {
	sim := newTestSimulator(time.Now())
	stream, _ := sim.Open(context.Background(), sim.Token())

	done := make(chan api.StreamEvent, 1)
	go stream.Run(func(ev api.StreamEvent) { done <- ev })

	_ = stream.Close()
	_ = stream.Close()

	select {
	case ev := <-done:
		if ev.Kind != api.EventClose || ev.Code != api.CloseNormal {
			t.Errorf("Expected normal close, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Close")
	}
	if sim.StreamCount() != 0 {
		t.Error("Closed stream must unsubscribe")
	}
}

func TestSimulator_Login(t *testing.T) {
	sim := newTestSimulator(time.Now())
	token, err := sim.Login(context.Background(), "admin", "secret")
	if err != nil || token != "sim-token" {
		t.Fatalf("Expected sim-token, got %q (%v)", token, err)
	}
	if _, err := sim.Login(context.Background(), "admin", "x"); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
}

func TestSimulator_DisconnectWithFullBuffer(t *testing.T) {
	sim := newTestSimulator(time.Now())
	ctx := context.Background()
	token := sim.Token()

	stream, err := sim.Open(ctx, token)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	product, err := sim.CreateProduct(ctx, token, model.ProductCreate{
		Description: "Pen", Quantity: 200, SuggestedQuantity: 10, Price: 2, Categories: []string{"Office"},
	})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}

	// nobody is reading yet, so the buffer overflows
	for i := 0; i < simStreamBuffer+10; i++ {
		if _, err := sim.Purchase(ctx, token, model.PurchaseRequest{ProductID: product.ID, Quantity: 1}); err != nil {
			t.Fatalf("Purchase #%d failed: %v", i, err)
		}
	}
	sim.Disconnect(1012, "restart")

	last := make(chan api.StreamEvent, 1)
	go func() {
		var final api.StreamEvent
		stream.Run(func(ev api.StreamEvent) { final = ev })
		last <- final
	}()

	select {
	case ev := <-last:
		if ev.Kind != api.EventClose || ev.Code != 1012 || ev.Reason != "restart" {
			t.Errorf("Expected close 1012 as the final event, got %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Disconnect")
	}
}

func TestSimulator_CreateProduct(t *testing.T) {
	sim := newTestSimulator(time.Now())
	ctx := context.Background()

	got, err := sim.CreateProduct(ctx, sim.Token(), model.ProductCreate{
		Description:       "Headphones",
		Quantity:          4,
		SuggestedQuantity: 6,
		Price:             250,
		Categories:        []string{"Electronics"},
	})
	if err != nil {
		t.Fatalf("CreateProduct failed: %v", err)
	}
	if got.ID != 4 || got.Status != "red" || got.PriceUSD != 50 || got.Owner != "admin" {
		t.Errorf("Unexpected product %+v", got)
	}

	products, _ := sim.Products(ctx, sim.Token())
	if len(products) != 4 || products[3].Description != "Headphones" {
		t.Errorf("Expected the new product in the catalog, got %+v", products)
	}

	if _, err := sim.CreateProduct(ctx, "wrong", model.ProductCreate{Description: "X"}); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("Expected ErrUnauthorized, got %v", err)
	}
	var se *StatusError
	if _, err := sim.CreateProduct(ctx, sim.Token(), model.ProductCreate{Description: " "}); !errors.As(err, &se) || se.StatusCode != 422 {
		t.Errorf("Expected 422 for a blank description, got %v", err)
	}
}
