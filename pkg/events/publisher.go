// Package events is the in-process pub/sub rooms use to tell side services
// (stats, result archive, logging) about lifecycle changes.
package events

import "sync"

// EventType represents the type of event
type EventType string

// Define event types
const (
	EventRoomCreated   EventType = "ROOM_CREATED"
	EventGameStarted   EventType = "GAME_STARTED"
	EventGameFinished  EventType = "GAME_FINISHED"
	EventRoomReclaimed EventType = "ROOM_RECLAIMED"

	allEvents EventType = "*"
)

// Event represents an event in the system
type Event struct {
	Type    EventType
	RoomID  string
	Payload any
}

// Handler is a function that processes events
type Handler func(event Event)

// Publisher is the central event publisher
type Publisher struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Handler
	wg          sync.WaitGroup
}

// NewPublisher creates a new event publisher
func NewPublisher() *Publisher {
	return &Publisher{
		subscribers: make(map[EventType][]Handler),
	}
}

// Subscribe registers a handler for a specific event type
func (p *Publisher) Subscribe(eventType EventType, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.subscribers[eventType] = append(p.subscribers[eventType], handler)
}

// SubscribeAll registers a handler for all event types
func (p *Publisher) SubscribeAll(handler Handler) {
	p.Subscribe(allEvents, handler)
}

// Publish hands the event to every matching subscriber. Handlers run on
// their own goroutines so a slow subscriber never stalls the publisher.
func (p *Publisher) Publish(event Event) {
	p.mu.RLock()
	handlers := make([]Handler, 0, len(p.subscribers[event.Type])+len(p.subscribers[allEvents]))
	handlers = append(handlers, p.subscribers[event.Type]...)
	handlers = append(handlers, p.subscribers[allEvents]...)
	p.mu.RUnlock()

	for _, handler := range handlers {
		p.wg.Add(1)
		go func(h Handler) {
			defer p.wg.Done()
			h(event)
		}(handler)
	}
}

// Wait blocks until every handler started so far has returned
func (p *Publisher) Wait() {
	p.wg.Wait()
}
