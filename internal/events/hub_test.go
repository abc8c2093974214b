package events

import (
	"context"
	"testing"
	"time"
)

func TestPublishAssignsSequences(t *testing.T) {
	hub := NewHub(8)
	hub.Publish(Event{Kind: KindDownloadState})
	hub.Publish(Event{Kind: KindDownloadProgress})

	evts, next := hub.Tail(10)
	if len(evts) != 2 {
		t.Fatalf("len = %d, want 2", len(evts))
	}
	if evts[0].Sequence != 1 || evts[1].Sequence != 2 {
		t.Fatalf("sequences = %d,%d, want 1,2", evts[0].Sequence, evts[1].Sequence)
	}
	if next != 2 {
		t.Fatalf("next = %d, want 2", next)
	}
}

func TestBufferDropsOldestAtCapacity(t *testing.T) {
	hub := NewHub(3)
	for i := 0; i < 5; i++ {
		hub.Publish(Event{Kind: KindSyncProgress})
	}
	evts, _ := hub.Tail(10)
	if len(evts) != 3 {
		t.Fatalf("len = %d, want 3", len(evts))
	}
	if evts[0].Sequence != 3 {
		t.Fatalf("oldest retained = %d, want 3", evts[0].Sequence)
	}
}

func TestFetchSinceCursor(t *testing.T) {
	hub := NewHub(8)
	hub.Publish(Event{Kind: KindDownloadState})
	hub.Publish(Event{Kind: KindSyncState})
	hub.Publish(Event{Kind: KindDeviceState})

	evts, next, err := hub.Fetch(context.Background(), 1, 10, false)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(evts) != 2 {
		t.Fatalf("len = %d, want 2", len(evts))
	}
	if evts[0].Kind != KindSyncState {
		t.Fatalf("first kind = %s, want sync_state", evts[0].Kind)
	}
	if next != 3 {
		t.Fatalf("next = %d, want 3", next)
	}
}

func TestFetchWaitUnblocksOnPublish(t *testing.T) {
	hub := NewHub(8)
	done := make(chan []Event, 1)

	go func() {
		evts, _, _ := hub.Fetch(context.Background(), 0, 10, true)
		done <- evts
	}()

	time.Sleep(20 * time.Millisecond)
	hub.Publish(Event{Kind: KindDownloadProgress, EpisodeID: 9})

	select {
	case evts := <-done:
		if len(evts) != 1 || evts[0].EpisodeID != 9 {
			t.Fatalf("unexpected events: %+v", evts)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Fetch did not unblock")
	}
}

func TestFetchWaitHonorsContext(t *testing.T) {
	hub := NewHub(8)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := hub.Fetch(ctx, 0, 10, true)
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestSubscribeReceivesAndDrops(t *testing.T) {
	hub := NewHub(64)
	ch, cancel := hub.Subscribe(2)
	defer cancel()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Kind: KindDownloadProgress, Percent: float64(i * 20)})
	}

	// The subscriber buffer holds 2; the oldest events were dropped.
	first := <-ch
	if first.Sequence <= 1 {
		t.Fatalf("expected dropped oldest, got seq %d", first.Sequence)
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	hub := NewHub(8)
	ch, cancel := hub.Subscribe(1)
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("expected closed channel")
	}
	// A publish after cancel must not panic.
	hub.Publish(Event{Kind: KindDeviceState})
}
