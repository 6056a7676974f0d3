package flowboard

import (
	"log"
	"sync"
	"time"
)

const maxStoredEvents = 100

type Handler func(payload any)

// EventRecord is one persisted entry of the append-only event log.
type EventRecord struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

type eventsDoc struct {
	Items       []EventRecord `json:"items"`
	LastUpdated string        `json:"lastUpdated"`
}

// EventBus fans a published event out to every handler registered for its
// exact type, synchronously and in registration order, then appends the
// event to the persisted log. There are no wildcard subscriptions and no
// unsubscribe. A panicking handler aborts dispatch to the handlers
// registered after it for that publish; callers rely on handlers not
// panicking.
type EventBus struct {
	mu       sync.Mutex
	handlers map[EventType][]Handler

	logMu sync.Mutex
	blobs BlobStore
	now   func() time.Time
}

func NewEventBus(blobs BlobStore, clock func() time.Time) *EventBus {
	if clock == nil {
		clock = time.Now
	}
	return &EventBus{
		handlers: map[EventType][]Handler{},
		blobs:    blobs,
		now:      clock,
	}
}

func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	if handler == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

func (b *EventBus) Publish(eventType EventType, payload any) {
	b.mu.Lock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.Unlock()

	for _, handler := range handlers {
		handler(payload)
	}
	b.appendLog(eventType, payload)
}

func (b *EventBus) appendLog(eventType EventType, payload any) {
	b.logMu.Lock()
	defer b.logMu.Unlock()

	doc := eventsDoc{Items: []EventRecord{}}
	loadDoc(b.blobs, DocEvents, &doc)
	doc.Items = append(doc.Items, EventRecord{
		ID:        newID("evt"),
		Type:      string(eventType),
		Data:      payload,
		Timestamp: timestamp(b.now),
	})
	if len(doc.Items) > maxStoredEvents {
		doc.Items = doc.Items[len(doc.Items)-maxStoredEvents:]
	}
	doc.LastUpdated = timestamp(b.now)
	if err := saveDoc(b.blobs, DocEvents, &doc); err != nil {
		log.Printf("persist event log: %v", err)
	}
}
