package server

import (
	"context"
	"sync"

	"github.com/MarcoPoloResearchLab/coursewatch/internal/notify"
)

const (
	realtimeEventChange    = "change"
	realtimeEventHeartbeat = "heartbeat"
	realtimeBufferSize     = 16
)

// EventFeed fans rendered change messages out to live subscribers. Slow subscribers drop messages.
type EventFeed struct {
	mu          sync.RWMutex
	subscribers map[int64]*feedSubscriber
	nextID      int64
	bufferSize  int
}

type feedSubscriber struct {
	id     int64
	stream chan notify.Message
}

func NewEventFeed() *EventFeed {
	return &EventFeed{
		subscribers: make(map[int64]*feedSubscriber),
		bufferSize:  realtimeBufferSize,
	}
}

// Subscribe registers a stream that is removed when ctx ends or cleanup is called.
func (f *EventFeed) Subscribe(ctx context.Context) (<-chan notify.Message, func()) {
	subscriber := &feedSubscriber{
		stream: make(chan notify.Message, f.bufferSize),
	}
	f.register(subscriber)
	var once sync.Once
	cleanup := func() {
		once.Do(func() { f.unregister(subscriber.id) })
	}
	go func() {
		<-ctx.Done()
		cleanup()
	}()
	return subscriber.stream, cleanup
}

// Publish implements notify.Publisher.
func (f *EventFeed) Publish(message notify.Message) {
	if message.Kind == "" {
		return
	}
	f.mu.RLock()
	if len(f.subscribers) == 0 {
		f.mu.RUnlock()
		return
	}
	copies := make([]*feedSubscriber, 0, len(f.subscribers))
	for _, subscriber := range f.subscribers {
		copies = append(copies, subscriber)
	}
	f.mu.RUnlock()
	for _, subscriber := range copies {
		select {
		case subscriber.stream <- message:
		default:
		}
	}
}

// Subscribers reports the number of live subscriptions.
func (f *EventFeed) Subscribers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

func (f *EventFeed) register(subscriber *feedSubscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	subscriber.id = f.nextID
	f.subscribers[subscriber.id] = subscriber
}

func (f *EventFeed) unregister(subscriberID int64) {
	f.mu.Lock()
	delete(f.subscribers, subscriberID)
	f.mu.Unlock()
}
