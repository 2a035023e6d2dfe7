package store

import (
	"testing"

	"github.com/jpalmerr/pulsedeck/model"
)

func TestEventsStore_AddEventPrepends(t *testing.T) {
	store := NewEventsStore()

	store.AddEvent(model.Event{ID: 1})
	store.AddEvent(model.Event{ID: 2})
	store.AddEvent(model.Event{ID: 3})

	got := store.Events()
	want := []int{3, 2, 1}
	if len(got) != len(want) {
		t.Fatalf("Events() = %v items, want %v", len(got), len(want))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Errorf("Events()[%d].ID = %v, want %v", i, got[i].ID, id)
		}
	}
}

func TestEventsStore_AddEventCapsAtMax(t *testing.T) {
	store := NewEventsStore()

	for i := 1; i <= 150; i++ {
		store.AddEvent(model.Event{ID: i})
	}

	got := store.Events()
	if len(got) != MaxEvents {
		t.Fatalf("Events() = %v items, want %v", len(got), MaxEvents)
	}
	// newest first: ids 150 down to 51
	if got[0].ID != 150 {
		t.Errorf("Events()[0].ID = %v, want 150", got[0].ID)
	}
	if got[MaxEvents-1].ID != 51 {
		t.Errorf("Events()[last].ID = %v, want 51", got[MaxEvents-1].ID)
	}
}

func TestEventsStore_SetEvents(t *testing.T) {
	tests := []struct {
		name    string
		count   int
		wantLen int
	}{
		{"empty", 0, 0},
		{"under cap", 10, 10},
		{"at cap", MaxEvents, MaxEvents},
		{"over cap", 250, MaxEvents},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewEventsStore()
			events := make([]model.Event, tt.count)
			for i := range events {
				events[i] = model.Event{ID: tt.count - i}
			}

			store.SetEvents(events)

			got := store.Events()
			if len(got) != tt.wantLen {
				t.Fatalf("Events() = %v items, want %v", len(got), tt.wantLen)
			}
			if tt.count > 0 && got[0].ID != tt.count {
				t.Errorf("Events()[0].ID = %v, want %v", got[0].ID, tt.count)
			}
		})
	}
}

func TestEventsStore_AddAfterSet(t *testing.T) {
	store := NewEventsStore()
	events := make([]model.Event, MaxEvents)
	for i := range events {
		events[i] = model.Event{ID: MaxEvents - i}
	}
	store.SetEvents(events)

	store.AddEvent(model.Event{ID: 1000})

	got := store.Events()
	if len(got) != MaxEvents {
		t.Fatalf("Events() = %v items, want %v", len(got), MaxEvents)
	}
	if got[0].ID != 1000 {
		t.Errorf("Events()[0].ID = %v, want 1000", got[0].ID)
	}
	if got[MaxEvents-1].ID != 2 {
		t.Errorf("Events()[last].ID = %v, want 2 (oldest dropped)", got[MaxEvents-1].ID)
	}
}

func TestEventsStore_Snapshot(t *testing.T) {
	store := NewEventsStore()
	store.SetLoading(true)
	store.SetError("unreachable")

	snap := store.Snapshot()
	if !snap.Loading || snap.Error == nil || *snap.Error != "unreachable" {
		t.Errorf("Snapshot() = %+v", snap)
	}
	if snap.Events == nil {
		t.Error("Snapshot().Events = nil, want empty slice")
	}
}
