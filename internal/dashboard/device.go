package dashboard

import (
	"context"
	"errors"

	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/session"
)

var (
	// ErrUnknownRelay is returned for a relay id that is not rendered.
	ErrUnknownRelay = errors.New("unknown relay")

	// ErrUnknownRule is returned for a rule id that is not rendered.
	ErrUnknownRule = errors.New("unknown rule")
)

// Device is the relay controller the board talks to. Both remote.Client and
// remote.Fake implement it.
type Device interface {
	session.RuleRemote

	ListRelays(ctx context.Context) ([]relay.Relay, error)
	SetRelayState(ctx context.Context, relayID int, state relay.State) error
	ListRules(ctx context.Context, relayID int) ([]relay.AlarmRule, error)
	GetSettings(ctx context.Context) (relay.Settings, error)
	SaveSettings(ctx context.Context, s relay.Settings) error
	GetServerTime(ctx context.Context) (relay.DeviceTime, error)
	AdjustServerTime(ctx context.Context, adj relay.TimeAdjustment) (relay.DeviceTime, error)
}

// Observer receives board counters. metrics.Metrics implements it.
type Observer interface {
	ObserveOps(collection string, created, updated, removed int)
	SetRelays(n int)
	Notice(op string)
}

type nopObserver struct{}

func (nopObserver) ObserveOps(string, int, int, int) {}
func (nopObserver) SetRelays(int)                    {}
func (nopObserver) Notice(string)                    {}

// ruleMutations is the session remote of a board. Acknowledged mutations bump
// the relay's rule generation so a rule poll started earlier is dropped.
type ruleMutations struct {
	b *Board
}

func (m ruleMutations) CreateRule(ctx context.Context, relayID int, rule relay.AlarmRule) (int, error) {
	id, err := m.b.device.CreateRule(ctx, relayID, rule)
	if err == nil {
		m.b.ruleMutated(relayID)
	}
	return id, err
}

func (m ruleMutations) UpdateRule(ctx context.Context, relayID, ruleID int, rule relay.AlarmRule) error {
	err := m.b.device.UpdateRule(ctx, relayID, ruleID, rule)
	if err == nil {
		m.b.ruleMutated(relayID)
	}
	return err
}

func (m ruleMutations) DeleteRule(ctx context.Context, relayID, ruleID int) error {
	err := m.b.device.DeleteRule(ctx, relayID, ruleID)
	if err == nil {
		m.b.ruleMutated(relayID)
	}
	return err
}

func (b *Board) ruleMutated(relayID int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if rr, ok := b.rules[relayID]; ok {
		rr.gen++
	}
}
