package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jpalmerr/pulsedeck/model"
)

func TestServicesStore_Subscribe(t *testing.T) {
	store := NewServicesStore()

	ch := store.Subscribe()
	if ch == nil {
		t.Fatal("Subscribe() = nil")
	}

	// mutation should send to subscriber
	go func() {
		store.SetServices([]model.Service{{ID: 1, Name: "api"}})
	}()

	select {
	case change := <-ch:
		if change.Topic != TopicServices {
			t.Errorf("received Topic = %v, want %v", change.Topic, TopicServices)
		}
		if change.At.IsZero() {
			t.Error("received change without timestamp")
		}
	case <-time.After(1 * time.Second):
		t.Error("Subscribe() channel did not receive change")
	}
}

func TestBroadcaster_MultipleSubscribers(t *testing.T) {
	store := NewEventsStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()
	ch3 := store.Subscribe()

	// a change should fan out to all subscribers
	go func() {
		store.AddEvent(model.Event{ID: 1})
	}()

	received := 0
	timeout := time.After(1 * time.Second)

	for received < 3 {
		select {
		case <-ch1:
			received++
		case <-ch2:
			received++
		case <-ch3:
			received++
		case <-timeout:
			t.Fatalf("Only received %d/3 changes", received)
		}
	}
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	store := NewMetricsStore()

	ch := store.Subscribe()
	store.Unsubscribe(ch)

	// channel should be closed
	select {
	case _, ok := <-ch:
		if ok {
			t.Error("Unsubscribe() channel should be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("Unsubscribe() channel should be closed immediately")
	}

	// second unsubscribe is a no-op
	store.Unsubscribe(ch)
	if n := store.changes.SubscriberCount(); n != 0 {
		t.Errorf("subscriberCount() = %d, want 0", n)
	}
}

func TestBroadcaster_UnsubscribeStopsDelivery(t *testing.T) {
	store := NewServicesStore()

	ch1 := store.Subscribe()
	ch2 := store.Subscribe()

	// unsubscribe ch1
	store.Unsubscribe(ch1)

	// change should only go to ch2
	go func() {
		store.SetStats(model.ServiceStats{TotalServices: 1})
	}()

	select {
	case change := <-ch2:
		if change.Topic != TopicStats {
			t.Errorf("received Topic = %v, want %v", change.Topic, TopicStats)
		}
	case <-time.After(1 * time.Second):
		t.Error("ch2 should still receive changes")
	}
}

func TestBroadcaster_SlowSubscriberDoesNotBlock(t *testing.T) {
	store := NewEventsStore()

	// create a subscriber but don't read from it
	_ = store.Subscribe()

	// create another subscriber that reads
	ch2 := store.Subscribe()

	done := make(chan bool)

	go func() {
		// this should not block even though ch1 is not being read
		for i := 0; i < 200; i++ {
			store.AddEvent(model.Event{ID: i})
		}
		done <- true
	}()

	// drain ch2
	go func() {
		for range ch2 {
		}
	}()

	select {
	case <-done:
		// expected - mutations completed without blocking
	case <-time.After(2 * time.Second):
		t.Error("AddEvent() blocked on slow subscriber")
	}
}

func TestBroadcaster_ConcurrentAccess(t *testing.T) {
	store := NewServicesStore()
	store.SetServices([]model.Service{{ID: 1, Name: "api"}})

	var wg sync.WaitGroup
	numGoroutines := 10
	numUpdates := 100

	// concurrent updates
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				store.UpdateService(model.Service{ID: 1, Name: "api", Status: model.StatusHealthy})
			}
		}()
	}

	// concurrent reads
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < numUpdates; j++ {
				_ = store.Snapshot()
			}
		}()
	}

	// concurrent subscribe/unsubscribe
	for i := 0; i < numGoroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ch := store.Subscribe()
			time.Sleep(10 * time.Millisecond)
			store.Unsubscribe(ch)
		}()
	}

	wg.Wait()
}

func TestBroadcaster_Forward(t *testing.T) {
	services := NewServicesStore()
	events := NewEventsStore()
	merged := NewBroadcaster()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for _, src := range []Notifier{services, events} {
		wg.Add(1)
		go func(src Notifier) {
			defer wg.Done()
			merged.Forward(ctx, src)
		}(src)
	}

	ch := merged.Subscribe()
	defer merged.Unsubscribe(ch)

	// wait for both forwarders to subscribe
	deadline := time.Now().Add(time.Second)
	for services.changes.SubscriberCount() == 0 || events.changes.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("forwarders did not subscribe")
		}
		time.Sleep(5 * time.Millisecond)
	}

	services.SetServices(nil)
	events.AddEvent(model.Event{ID: 1})

	seen := map[Topic]bool{}
	timeout := time.After(time.Second)
	for len(seen) < 2 {
		select {
		case change := <-ch:
			seen[change.Topic] = true
		case <-timeout:
			t.Fatalf("received topics %v, want services and events", seen)
		}
	}

	cancel()
	wg.Wait()

	if n := services.changes.SubscriberCount(); n != 0 {
		t.Errorf("services subscribers after cancel = %d, want 0", n)
	}
}
