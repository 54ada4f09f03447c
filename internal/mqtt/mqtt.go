// Package mqtt mirrors relay state to an MQTT broker.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// System event names published on the status topic.
const (
	SystemOnline  = "ONLINE"
	SystemOffline = "OFFLINE"
)

// Publisher publishes relay state to MQTT.
type Publisher interface {
	// PublishRelay sends the retained state of one relay.
	PublishRelay(r relay.Relay, at time.Time) error

	// ClearRelay removes the retained state of a relay that disappeared.
	ClearRelay(id int) error

	// PublishSystem sends a lifecycle event on the status topic.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// SystemEvent represents a lifecycle event of the daemon.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
}

// Topics builds topic names under a prefix.
type Topics struct {
	Prefix string
}

// Relay returns the state topic of one relay.
func (t Topics) Relay(id int) string {
	return fmt.Sprintf("%s/relays/%d/state", strings.TrimRight(t.Prefix, "/"), id)
}

// Status returns the daemon status topic.
func (t Topics) Status() string {
	return strings.TrimRight(t.Prefix, "/") + "/status"
}

// RelayPayload is the retained message of one relay.
type RelayPayload struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	On        bool   `json:"on"`
	Timestamp string `json:"timestamp"`
}

// FormatRelayPayload creates the JSON payload for a relay.
func FormatRelayPayload(r relay.Relay, at time.Time) ([]byte, error) {
	return json.Marshal(RelayPayload{
		ID:        r.ID,
		Name:      r.Name,
		State:     string(r.State),
		On:        r.State.Bool(),
		Timestamp: at.UTC().Format(time.RFC3339),
	})
}

// SystemPayload is the message on the status topic.
type SystemPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	return json.Marshal(SystemPayload{
		Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
		Event:     event.Event,
		Reason:    event.Reason,
	})
}
