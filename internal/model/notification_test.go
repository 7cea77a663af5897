package model

import (
	"fmt"
	"testing"
	"time"
)

func TestNotificationLog_Capacity(t *testing.T) {
	log := NewNotificationLog(NotificationCapacity)
	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for i := 1; i <= 6; i++ {
		log.Push(Notification{
			ID:         fmt.Sprintf("event-%d", i),
			Message:    fmt.Sprintf("sale %d", i),
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		})
		if log.Len() > NotificationCapacity {
			t.Fatalf("log grew beyond capacity: %d", log.Len())
		}
	}

	entries := log.Entries()
	if len(entries) != NotificationCapacity {
		t.Fatalf("Expected %d entries, got %d", NotificationCapacity, len(entries))
	}
	if entries[0].ID != "event-6" {
		t.Errorf("Expected newest first (event-6), got %s", entries[0].ID)
	}
	if entries[len(entries)-1].ID != "event-2" {
		t.Errorf("Expected event-2 last, got %s", entries[len(entries)-1].ID)
	}
	for i := 0; i < len(entries)-1; i++ {
		if !entries[i].ReceivedAt.After(entries[i+1].ReceivedAt) {
			t.Errorf("entries %d and %d not newest-first", i, i+1)
		}
	}
}

func TestNotificationLog_ManyInserts(t *testing.T) {
	log := NewNotificationLog(0)
	for i := 1; i <= 50; i++ {
		log.Push(Notification{ID: fmt.Sprint(i)})
	}

	entries := log.Entries()
	expected := []string{"50", "49", "48", "47", "46"}
	for i, id := range expected {
		if entries[i].ID != id {
			t.Errorf("entry %d: expected %s, got %s", i, id, entries[i].ID)
		}
	}
}

func TestNotificationLog_EntriesIsCopy(t *testing.T) {
	log := NewNotificationLog(3)
	log.Push(Notification{ID: "a"})

	entries := log.Entries()
	entries[0].ID = "mutated"

	if log.Entries()[0].ID != "a" {
		t.Error("Entries must return a copy")
	}
}

func TestSaleEvent_Message(t *testing.T) {
	e := SaleEvent{ProductDescription: "Notebook", Quantity: 2, Value: 4999.9}
	if got := e.Message(); got != "New sale: Notebook (2 un.) - R$ 4999.90" {
		t.Errorf("Unexpected message %q", got)
	}
}
