package model

import (
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// NotificationCapacity bounds the live notification log.
const NotificationCapacity = 5

// Push message kinds.
const (
	KindNewSale = "new_sale"
)

// Envelope is the outer shape of every push-stream message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"` // decoded per Type
}

// SaleEvent is the payload of a new_sale push message.
type SaleEvent struct {
	ProductID          int64   `json:"product_id"`
	ProductDescription string  `json:"product_description"`
	Quantity           int     `json:"quantity"`
	Value              float64 `json:"value"`
	Action             string  `json:"action,omitempty"` // "updated" or "removed"
}

// Message is the human-readable line shown for the event.
func (e SaleEvent) Message() string {
	return fmt.Sprintf("New sale: %s (%d un.) - R$ %s",
		e.ProductDescription, e.Quantity, decimal.NewFromFloat(e.Value).StringFixed(2))
}

// Notification is one received live sale event.
type Notification struct {
	ID         string    `json:"id"`
	Message    string    `json:"message"`
	ReceivedAt time.Time `json:"received_at"`
}

// NotificationLog keeps the most recent notifications, newest first.
type NotificationLog struct {
	mu       sync.RWMutex
	capacity int
	entries  []Notification
}

func NewNotificationLog(capacity int) *NotificationLog {
	if capacity <= 0 {
		capacity = NotificationCapacity
	}
	return &NotificationLog{
		capacity: capacity,
		entries:  make([]Notification, 0, capacity),
	}
}

// Push prepends n, dropping the oldest entry once the log is full.
func (l *NotificationLog) Push(n Notification) {
	l.mu.Lock()
	defer l.mu.Unlock()

	keep := len(l.entries)
	if keep >= l.capacity {
		keep = l.capacity - 1
	}

	next := make([]Notification, 0, l.capacity)
	next = append(next, n)
	next = append(next, l.entries[:keep]...)
	l.entries = next
}

// Entries returns a copy, newest first.
func (l *NotificationLog) Entries() []Notification {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Notification, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *NotificationLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
