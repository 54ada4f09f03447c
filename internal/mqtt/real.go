package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topics Topics
}

// NewRealPublisher creates a publisher connected to the given broker. The
// broker marks the daemon offline through the last will when the connection
// drops.
func NewRealPublisher(broker, clientID, prefix string) (*RealPublisher, error) {
	topics := Topics{Prefix: prefix}
	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: SystemOffline, Reason: "connection lost"})
	if err != nil {
		return nil, err
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(topics.Status(), will, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	log.Info().Str("broker", broker).Str("prefix", prefix).Msg("MQTT connected")
	return &RealPublisher{client: client, topics: topics}, nil
}

func (p *RealPublisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// PublishRelay sends the retained state of one relay.
func (p *RealPublisher) PublishRelay(r relay.Relay, at time.Time) error {
	payload, err := FormatRelayPayload(r, at)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(p.topics.Relay(r.ID), 1, true, payload)
}

// ClearRelay publishes an empty retained message, which deletes it on the broker.
func (p *RealPublisher) ClearRelay(id int) error {
	return p.publish(p.topics.Relay(id), 1, true, []byte{})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(p.topics.Status(), 1, true, payload)
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
