package dashboard

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/eventbus"
)

// DefaultMaxNotices bounds the notice list.
const DefaultMaxNotices = 20

// Status is the transient connectivity indicator. It is set when a refresh
// fails and cleared by the next successful refresh or by Dismiss.
type Status struct {
	Active   bool      `json:"active"`
	Message  string    `json:"message,omitempty"`
	Since    time.Time `json:"since,omitempty"`
	Failures int       `json:"failures"`
}

// Notice is a user-visible report of a failed interaction.
type Notice struct {
	ID      uint64    `json:"id"`
	At      time.Time `json:"at"`
	Op      string    `json:"op"`
	Message string    `json:"message"`
}

// failLocked records a failed refresh.
func (b *Board) failLocked(err error) {
	if !b.status.Active {
		b.status.Since = b.now()
	}
	b.status.Active = true
	b.status.Failures++
	b.status.Message = err.Error()
	b.publish(eventbus.Event{Type: eventbus.EventStatus, Data: map[string]any{"message": b.status.Message, "failures": b.status.Failures}})
}

// Dismiss hides the status indicator until the next failure. The failure
// count is kept.
func (b *Board) Dismiss() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.status.Active = false
	b.status.Message = ""
}

// Status returns the current indicator.
func (b *Board) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status
}

// Notify implements session.Notifier. The oldest notice is dropped once the
// list is full.
func (b *Board) Notify(op string, err error) {
	log.Warn().Err(err).Str("op", op).Msg("Device call failed")
	b.observer.Notice(op)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.noticeSeq++
	n := Notice{ID: b.noticeSeq, At: b.now(), Op: op, Message: err.Error()}
	b.notices = append(b.notices, n)
	if over := len(b.notices) - b.opts.MaxNotices; over > 0 {
		b.notices = append(b.notices[:0], b.notices[over:]...)
	}
	b.publish(eventbus.Event{Type: eventbus.EventNotice, Data: map[string]any{"op": op, "message": n.Message}})
}

// Notices returns the recent notices, oldest first.
func (b *Board) Notices() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.notices...)
}

// ClearNotice drops one notice. It reports whether it existed.
func (b *Board) ClearNotice(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, n := range b.notices {
		if n.ID == id {
			b.notices = append(b.notices[:i], b.notices[i+1:]...)
			return true
		}
	}
	return false
}
