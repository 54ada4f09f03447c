package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/config"
	"github.com/dokzlo13/relayboard/internal/eventbus"
	"github.com/dokzlo13/relayboard/internal/mqtt"
)

// MirrorService mirrors relay state to MQTT.
type MirrorService struct {
	cfg    *config.Config
	bus    *eventbus.Bus
	pub    mqtt.Publisher
	mirror *mqtt.Mirror
}

// NewMirrorService creates a new MirrorService.
func NewMirrorService(cfg *config.Config, bus *eventbus.Bus) *MirrorService {
	return &MirrorService{cfg: cfg, bus: bus}
}

// SetPublisher replaces the broker connection made by Start.
func (s *MirrorService) SetPublisher(pub mqtt.Publisher) {
	s.pub = pub
}

// Start connects to the broker and subscribes to relay events. A broker that
// cannot be reached disables the mirror; the dashboard keeps running.
func (s *MirrorService) Start(ctx context.Context) {
	if !s.cfg.MQTT.Enabled {
		log.Debug().Msg("MQTT mirror disabled")
		return
	}

	if s.pub == nil {
		pub, err := mqtt.NewRealPublisher(s.cfg.MQTT.Broker, s.cfg.MQTT.ClientID, s.cfg.MQTT.TopicPrefix)
		if err != nil {
			log.Error().Err(err).Str("broker", s.cfg.MQTT.Broker).Msg("MQTT mirror unavailable")
			return
		}
		s.pub = pub
	}

	s.mirror = mqtt.NewMirror(s.pub)
	s.mirror.Attach(s.bus)
	if err := s.mirror.Online(); err != nil {
		log.Warn().Err(err).Msg("Failed to announce online status")
	}
}

// Stop announces the shutdown and disconnects.
func (s *MirrorService) Stop(reason string) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Offline(reason); err != nil {
		log.Warn().Err(err).Msg("Failed to announce offline status")
	}
	if err := s.pub.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close MQTT connection")
	}
}
