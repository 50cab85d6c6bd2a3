package store

import (
	"sync"

	"github.com/slok/tasksync/internal/model"
)

// EventKind identifies a kind of task mutation event.
type EventKind string

const (
	// EventCreated is emitted when a task is created.
	EventCreated EventKind = "created"
	// EventUpdated is emitted when a task is updated.
	EventUpdated EventKind = "updated"
	// EventLabeled is emitted when a task's label set actually changes.
	EventLabeled EventKind = "labeled"
	// EventClosed is emitted when a task is closed.
	EventClosed EventKind = "closed"
)

// Event is a single task mutation notification.
type Event struct {
	Kind EventKind
	Task model.Task
	// Prev holds the task state before the mutation on updated events.
	Prev *model.Task
	// Reason holds the close reason on closed events.
	Reason string
}

// Handler receives task mutation events.
type Handler func(Event)

// eventBus is a per-kind subscriber list. It is instance scoped so parallel
// store instances (e.g. under test) never leak subscriptions to each other.
type eventBus struct {
	mu       sync.Mutex
	nextID   int
	handlers map[EventKind]map[int]Handler
}

func newEventBus() *eventBus {
	return &eventBus{handlers: map[EventKind]map[int]Handler{}}
}

// subscribe registers a handler for an event kind and returns its
// unsubscribe function.
func (b *eventBus) subscribe(kind EventKind, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handlers[kind] == nil {
		b.handlers[kind] = map[int]Handler{}
	}
	id := b.nextID
	b.nextID++
	b.handlers[kind][id] = h

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.handlers[kind], id)
	}
}

// publish delivers the event to the handlers subscribed to its kind.
func (b *eventBus) publish(e Event) {
	b.mu.Lock()
	hs := make([]Handler, 0, len(b.handlers[e.Kind]))
	for _, h := range b.handlers[e.Kind] {
		hs = append(hs, h)
	}
	b.mu.Unlock()

	for _, h := range hs {
		h(e)
	}
}
