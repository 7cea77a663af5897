package dashboard

import (
	"slices"
	"time"

	"storefront-dashboard/internal/model"
)

// Status is the connection indicator shown to the user.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
	StatusError        Status = "error"
)

// View is an immutable copy of the dashboard state, handed to observers.
type View struct {
	State         ConnState
	Status        Status
	Range         model.DateRange
	Loading       bool
	HasSnapshot   bool
	Snapshot      model.Snapshot
	Notifications []model.Notification // newest first
	LoginRequired bool
	LastRefresh   time.Time
	LastError     string
}

func (v View) clone() View {
	out := v
	out.Notifications = slices.Clone(v.Notifications)
	out.Snapshot.History = slices.Clone(v.Snapshot.History)
	out.Snapshot.Categories = slices.Clone(v.Snapshot.Categories)
	out.Snapshot.TopProducts = slices.Clone(v.Snapshot.TopProducts)
	out.Snapshot.Trend = slices.Clone(v.Snapshot.Trend)
	return out
}
