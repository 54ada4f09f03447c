package mqtt

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/eventbus"
	"github.com/dokzlo13/relayboard/internal/relay"
)

// Mirror forwards relay events from the bus to a Publisher.
type Mirror struct {
	pub Publisher
}

// NewMirror creates a Mirror.
func NewMirror(pub Publisher) *Mirror {
	return &Mirror{pub: pub}
}

// Attach subscribes the mirror to relay events.
func (m *Mirror) Attach(bus *eventbus.Bus) {
	bus.Subscribe(m.Handle, eventbus.EventRelayCreated, eventbus.EventRelayUpdated, eventbus.EventRelayRemoved)
}

// Handle publishes one relay event. Publish errors are logged.
func (m *Mirror) Handle(e eventbus.Event) {
	var err error
	switch e.Type {
	case eventbus.EventRelayRemoved:
		err = m.pub.ClearRelay(e.RelayID)
	case eventbus.EventRelayCreated, eventbus.EventRelayUpdated:
		name, _ := e.Data[eventbus.DataName].(string)
		raw, _ := e.Data[eventbus.DataState].(string)
		state, perr := relay.ParseState(raw)
		if perr != nil {
			log.Debug().Int("relay", e.RelayID).Str("state", raw).Msg("Skipping relay event without state")
			return
		}
		err = m.pub.PublishRelay(relay.Relay{ID: e.RelayID, Name: name, State: state}, e.At)
	default:
		return
	}
	if err != nil {
		log.Warn().Err(err).Int("relay", e.RelayID).Str("event", string(e.Type)).Msg("Failed to mirror relay to MQTT")
	}
}

// Online announces the daemon on the status topic.
func (m *Mirror) Online() error {
	return m.pub.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: SystemOnline})
}

// Offline announces a clean shutdown on the status topic.
func (m *Mirror) Offline(reason string) error {
	return m.pub.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: SystemOffline, Reason: reason})
}
