package session

import (
	"log"
	"sync"
)

// Listener receives a session snapshot after every state change.
type Listener func(State)

// emitter is the subscription bus. Listeners are invoked synchronously after
// a state transition completes; a panicking listener is logged and isolated
// so the rest still receive the update. No ordering is guaranteed.
type emitter struct {
	mu        sync.Mutex
	nextID    int
	listeners map[int]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[int]Listener)}
}

// subscribe registers fn and returns its unsubscribe func. Unsubscribing
// twice is harmless.
func (e *emitter) subscribe(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.listeners, id)
	}
}

func (e *emitter) notify(s State) {
	e.mu.Lock()
	snapshot := make([]Listener, 0, len(e.listeners))
	for _, fn := range e.listeners {
		snapshot = append(snapshot, fn)
	}
	e.mu.Unlock()

	for _, fn := range snapshot {
		e.invoke(fn, s)
	}
}

func (e *emitter) invoke(fn Listener, s State) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session: listener panicked: %v", r)
		}
	}()
	// Each listener gets its own copy so one cannot corrupt another's view.
	fn(s.clone())
}
