// Package events fans remote file notifications out from the real-time
// channel to the parts of the CLI that react to them (the file table, the
// fetch sink, status output).
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sharedrop/sharedrop/internal/constants"
	"github.com/sharedrop/sharedrop/internal/models"
)

// EventType defines the types of events that can be emitted
type EventType string

const (
	EventFileAvailable EventType = "file_available"
	EventFileDeleted   EventType = "file_deleted"
	EventFileData      EventType = "file_data"
	EventFileError     EventType = "file_error"

	// Connection lifecycle of the real-time channel
	EventConnected    EventType = "connected"
	EventDisconnected EventType = "disconnected"
)

// Event is the base interface for all events
type Event interface {
	Type() EventType
	Timestamp() time.Time
}

// BaseEvent provides common event fields
type BaseEvent struct {
	EventType EventType
	Time      time.Time
}

func (e BaseEvent) Type() EventType      { return e.EventType }
func (e BaseEvent) Timestamp() time.Time { return e.Time }

func base(t EventType) BaseEvent {
	return BaseEvent{EventType: t, Time: time.Now()}
}

// FileAvailableEvent announces a stored file. A burst of these follows every
// connect, one per file already on the server.
type FileAvailableEvent struct {
	BaseEvent
	File models.FileAvailable
}

// FileDeletedEvent announces that a file was removed by any client.
type FileDeletedEvent struct {
	BaseEvent
	FileID string
}

// FileDataEvent carries the reply to a request_file.
type FileDataEvent struct {
	BaseEvent
	Data models.FileData
}

// FileErrorEvent carries a server-side failure to serve a request_file.
type FileErrorEvent struct {
	BaseEvent
	Message string
}

// ConnectionEvent reports connect and disconnect of the real-time channel.
// Err is set on disconnect when the connection failed rather than closed.
type ConnectionEvent struct {
	BaseEvent
	SessionID string
	Err       error
}

// EventBus manages event subscriptions and publishing
type EventBus struct {
	subscribers   map[EventType][]chan Event
	all           []chan Event // Subscribers to all events
	mu            sync.RWMutex
	bufferSize    int
	closed        bool
	droppedEvents atomic.Int64 // Count of dropped events due to full buffers

	// reliable maps lossless subscriptions to a channel closed when they
	// go away, which releases a publisher blocked on them.
	relMu    sync.Mutex
	reliable map[chan Event]chan struct{}
}

// NewEventBus creates a new event bus with specified buffer size
func NewEventBus(bufferSize int) *EventBus {
	if bufferSize <= 0 {
		bufferSize = constants.EventBusDefaultBuffer
	}
	if bufferSize > constants.EventBusMaxBuffer {
		bufferSize = constants.EventBusMaxBuffer
	}
	return &EventBus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
		reliable:    make(map[chan Event]chan struct{}),
	}
}

// Subscribe creates a subscription to the given event types, or to every
// event when no types are given.
func (eb *EventBus) Subscribe(types ...EventType) <-chan Event {
	return eb.subscribe(false, types)
}

// SubscribeReliable is Subscribe without loss: when the subscriber's buffer
// is full, Publish waits for it instead of dropping the event. The consumer
// must keep reading until it unsubscribes or the bus is closed.
func (eb *EventBus) SubscribeReliable(types ...EventType) <-chan Event {
	return eb.subscribe(true, types)
}

func (eb *EventBus) subscribe(reliable bool, types []EventType) <-chan Event {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan Event, eb.bufferSize)
	if eb.closed {
		close(ch)
		return ch
	}
	if reliable {
		eb.relMu.Lock()
		eb.reliable[ch] = make(chan struct{})
		eb.relMu.Unlock()
	}
	if len(types) == 0 {
		eb.all = append(eb.all, ch)
		return ch
	}
	for _, t := range types {
		eb.subscribers[t] = append(eb.subscribers[t], ch)
	}
	return ch
}

// Publish sends an event to all subscribers. Events for a regular subscriber
// whose buffer is full are dropped and counted; reliable subscribers are
// waited for.
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.closed {
		return
	}

	for _, ch := range eb.subscribers[event.Type()] {
		eb.send(ch, event)
	}
	for _, ch := range eb.all {
		eb.send(ch, event)
	}
}

func (eb *EventBus) send(ch chan Event, event Event) {
	select {
	case ch <- event:
		return
	default:
	}

	eb.relMu.Lock()
	gone, ok := eb.reliable[ch]
	eb.relMu.Unlock()
	if !ok {
		eb.droppedEvents.Add(1)
		return
	}
	select {
	case ch <- event:
	case <-gone:
	}
}

// release unblocks publishers waiting on ch, or on every reliable
// subscription when ch is nil. It must run before eb.mu is taken for
// writing, since a waiting publisher holds the read lock.
func (eb *EventBus) release(ch <-chan Event) {
	eb.relMu.Lock()
	defer eb.relMu.Unlock()
	for c, gone := range eb.reliable {
		if ch != nil && (<-chan Event)(c) != ch {
			continue
		}
		close(gone)
		delete(eb.reliable, c)
	}
}

// Close shuts down the event bus and closes all channels
func (eb *EventBus) Close() {
	eb.release(nil)
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}
	eb.closed = true

	// A channel subscribed to several types appears more than once
	seen := make(map[chan Event]bool)
	for _, channels := range eb.subscribers {
		for _, ch := range channels {
			if !seen[ch] {
				seen[ch] = true
				close(ch)
			}
		}
	}
	for _, ch := range eb.all {
		close(ch)
	}
}

// Unsubscribe removes a subscription channel from every event type and
// closes it, so a consumer ranging over it stops.
func (eb *EventBus) Unsubscribe(ch <-chan Event) {
	eb.release(ch)
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.closed {
		return
	}

	var found chan Event
	for eventType, subscribers := range eb.subscribers {
		for i, subCh := range subscribers {
			if subCh == ch {
				found = subCh
				subscribers[i] = subscribers[len(subscribers)-1]
				eb.subscribers[eventType] = subscribers[:len(subscribers)-1]
				break
			}
		}
	}
	for i, subCh := range eb.all {
		if subCh == ch {
			found = subCh
			eb.all[i] = eb.all[len(eb.all)-1]
			eb.all = eb.all[:len(eb.all)-1]
			break
		}
	}
	if found != nil {
		close(found)
	}
}

// PublishFileAvailable is a convenience method for publishing file_available
func (eb *EventBus) PublishFileAvailable(f models.FileAvailable) {
	eb.Publish(&FileAvailableEvent{BaseEvent: base(EventFileAvailable), File: f})
}

// PublishFileDeleted is a convenience method for publishing file_deleted
func (eb *EventBus) PublishFileDeleted(fileID string) {
	eb.Publish(&FileDeletedEvent{BaseEvent: base(EventFileDeleted), FileID: fileID})
}

// PublishFileData is a convenience method for publishing file_data
func (eb *EventBus) PublishFileData(d models.FileData) {
	eb.Publish(&FileDataEvent{BaseEvent: base(EventFileData), Data: d})
}

// PublishFileError is a convenience method for publishing file_error
func (eb *EventBus) PublishFileError(message string) {
	eb.Publish(&FileErrorEvent{BaseEvent: base(EventFileError), Message: message})
}

// PublishConnected is a convenience method for publishing a connect
func (eb *EventBus) PublishConnected(sessionID string) {
	eb.Publish(&ConnectionEvent{BaseEvent: base(EventConnected), SessionID: sessionID})
}

// PublishDisconnected is a convenience method for publishing a disconnect
func (eb *EventBus) PublishDisconnected(err error) {
	eb.Publish(&ConnectionEvent{BaseEvent: base(EventDisconnected), Err: err})
}

// ResetDroppedEventCount returns the number of events dropped since the last
// call and resets the counter.
func (eb *EventBus) ResetDroppedEventCount() int64 {
	return eb.droppedEvents.Swap(0)
}
