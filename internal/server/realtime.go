package server

import (
	"context"
	"sync"
	"time"

	"github.com/smartnotes-ai/backend/internal/models"
)

const (
	RealtimeEventEnhancementStatus = "enhancement-status"
	realtimeEventHeartbeat         = "heartbeat"
	realtimeSourceBackend          = "smartnotes-api"
	defaultRealtimeBufferSize      = 16
)

// RealtimeMessage announces an enhancement transition to the note's owner.
type RealtimeMessage struct {
	UserID        uint64
	EventType     string
	NoteID        uint64
	EnhancementID uint64
	Version       int64
	Status        models.EnhancementStatus
	IsCurrent     bool
	Timestamp     time.Time
}

// RealtimeDispatcher fans messages out to the live subscribers of each user.
// Slow subscribers drop messages instead of blocking publishers.
type RealtimeDispatcher struct {
	mu          sync.RWMutex
	subscribers map[uint64]map[int64]*realtimeSubscriber
	nextID      int64
	bufferSize  int
}

type realtimeSubscriber struct {
	id     int64
	stream chan RealtimeMessage
}

func NewRealtimeDispatcher() *RealtimeDispatcher {
	return &RealtimeDispatcher{
		subscribers: make(map[uint64]map[int64]*realtimeSubscriber),
		bufferSize:  defaultRealtimeBufferSize,
	}
}

func (d *RealtimeDispatcher) Subscribe(ctx context.Context, userID uint64) (<-chan RealtimeMessage, func()) {
	if userID == 0 {
		ch := make(chan RealtimeMessage)
		close(ch)
		return ch, func() {}
	}
	subscriber := &realtimeSubscriber{
		id:     d.nextSequence(),
		stream: make(chan RealtimeMessage, d.bufferSize),
	}
	d.registerSubscriber(userID, subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			d.unregisterSubscriber(userID, subscriber.id)
		})
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

func (d *RealtimeDispatcher) Publish(message RealtimeMessage) {
	if message.UserID == 0 || message.EventType == "" {
		return
	}
	d.mu.RLock()
	subscribers := d.subscribers[message.UserID]
	if len(subscribers) == 0 {
		d.mu.RUnlock()
		return
	}
	copies := make([]*realtimeSubscriber, 0, len(subscribers))
	for _, subscriber := range subscribers {
		copies = append(copies, subscriber)
	}
	d.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// subscriberCount returns the number of live subscriptions for the user.
func (d *RealtimeDispatcher) subscriberCount(userID uint64) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.subscribers[userID])
}

func (d *RealtimeDispatcher) nextSequence() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *RealtimeDispatcher) registerSubscriber(userID uint64, subscriber *realtimeSubscriber) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.subscribers[userID]; !ok {
		d.subscribers[userID] = make(map[int64]*realtimeSubscriber)
	}
	d.subscribers[userID][subscriber.id] = subscriber
}

func (d *RealtimeDispatcher) unregisterSubscriber(userID uint64, subscriberID int64) {
	d.mu.Lock()
	subscribers := d.subscribers[userID]
	if subscribers != nil {
		delete(subscribers, subscriberID)
		if len(subscribers) == 0 {
			delete(d.subscribers, userID)
		}
	}
	d.mu.Unlock()
}

func enhancementMessage(userID uint64, enhancement models.Enhancement, now time.Time) RealtimeMessage {
	return RealtimeMessage{
		UserID:        userID,
		EventType:     RealtimeEventEnhancementStatus,
		NoteID:        enhancement.NoteID,
		EnhancementID: enhancement.ID,
		Version:       enhancement.Version,
		Status:        enhancement.Status,
		IsCurrent:     enhancement.IsCurrent,
		Timestamp:     now.UTC(),
	}
}
