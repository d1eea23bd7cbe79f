// Package events fans ledger operation events out to registered
// listeners, primarily the websocket handler streaming them to clients.
package events

import (
	"fmt"
	"sync"
)

// Events maintains the set of listener channels operation events are
// fanned out to. Listeners register under a unique id, typically the
// request trace id.
type Events struct {
	m  map[string]chan string
	mu sync.RWMutex
}

// New constructs an Events registry for fanning out operation events.
func New() *Events {

	return &Events{
		m: make(map[string]chan string),
	}
}

// Shutdown closes and removes every channel handed out by Acquire. Used
// when the service is shutting down to unblock the websocket handlers.
func (evt *Events) Shutdown() {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for id, ch := range evt.m {
		delete(evt.m, id)
		close(ch)
	}
}

// Acquire registers the unique id and returns the channel operation
// events for it will arrive on.
func (evt *Events) Acquire(id string) chan string {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if exists {
		return ch
	}

	// Since a message will be dropped if the websocket receiver is
	// not ready to receive, this arbitrary buffer should give the receiver
	// enough time to not lose a message. Websocket send could take long.
	const messageBuffer = 100

	evt.m[id] = make(chan string, messageBuffer)
	return evt.m[id]
}

// Release closes and removes the channel registered under the id. Called
// when a listener's websocket connection goes away.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.m[id]
	if !exists {
		return fmt.Errorf("id %q does not exist", id)
	}

	delete(evt.m, id)
	close(ch)
	return nil
}

// Send delivers the event to every registered listener. Send never blocks
// waiting for a receiver, so a slow listener drops events rather than
// stalling the operation that produced them.
func (evt *Events) Send(s string) {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	for _, ch := range evt.m {
		select {
		case ch <- s:
		default:
		}
	}
}
