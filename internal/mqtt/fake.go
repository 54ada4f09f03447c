package mqtt

import (
	"sync"
	"time"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Relays contains every relay state that was published.
	Relays []relay.Relay

	// Cleared contains the ids whose retained state was removed.
	Cleared []int

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, is returned by every publish call.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishRelay records the relay.
func (f *FakePublisher) PublishRelay(r relay.Relay, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Relays = append(f.Relays, r)
	return nil
}

// ClearRelay records the id.
func (f *FakePublisher) ClearRelay(id int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.Cleared = append(f.Cleared, id)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Published returns a copy of the recorded relays.
func (f *FakePublisher) Published() []relay.Relay {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.Relay(nil), f.Relays...)
}

// ClearedIDs returns a copy of the cleared ids.
func (f *FakePublisher) ClearedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.Cleared...)
}
