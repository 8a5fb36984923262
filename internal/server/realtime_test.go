package server

import (
	"context"
	"testing"
	"time"

	"github.com/smartnotes-ai/backend/internal/models"
)

func TestRealtimeDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, 1)
	defer cleanup()

	dispatcher.Publish(enhancementMessage(1, models.Enhancement{ID: 7, NoteID: 42, Version: 2, Status: models.EnhancementStatusCompleted, IsCurrent: true}, time.Now()))

	select {
	case received := <-stream:
		if received.EventType != RealtimeEventEnhancementStatus {
			t.Fatalf("expected event type %s, got %s", RealtimeEventEnhancementStatus, received.EventType)
		}
		if received.NoteID != 42 || received.EnhancementID != 7 || received.Version != 2 || !received.IsCurrent {
			t.Fatalf("unexpected message %+v", received)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestRealtimeDispatcherIsolatedByUser(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	otherCtx, otherCancel := context.WithCancel(context.Background())
	defer otherCancel()

	userStream, cleanup := dispatcher.Subscribe(ctx, 2)
	defer cleanup()

	otherStream, otherCleanup := dispatcher.Subscribe(otherCtx, 3)
	defer otherCleanup()

	dispatcher.Publish(RealtimeMessage{
		UserID:    3,
		EventType: RealtimeEventEnhancementStatus,
		NoteID:    9,
		Timestamp: time.Now().UTC(),
	})

	select {
	case <-userStream:
		t.Fatal("did not expect realtime message for unrelated user")
	case <-time.After(200 * time.Millisecond):
	}

	select {
	case msg := <-otherStream:
		if msg.UserID != 3 {
			t.Fatalf("expected user 3, received %d", msg.UserID)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message for subscribed user")
	}
}

func TestRealtimeDispatcherUnsubscribesOnCancel(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, 5)
	defer cleanup()
	if dispatcher.subscriberCount(5) != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()

	deadline := time.Now().Add(time.Second)
	for dispatcher.subscriberCount(5) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscription to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeDispatcherIgnoresAnonymousSubscribers(t *testing.T) {
	dispatcher := NewRealtimeDispatcher()
	stream, cleanup := dispatcher.Subscribe(context.Background(), 0)
	defer cleanup()
	if _, open := <-stream; open {
		t.Fatal("expected closed stream for anonymous subscriber")
	}
	dispatcher.Publish(RealtimeMessage{EventType: RealtimeEventEnhancementStatus})
}
