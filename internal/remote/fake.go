package remote

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// Fake is an in-memory relay controller with the same method set as Client.
// Failures can be injected per operation name.
type Fake struct {
	mu       sync.Mutex
	relays   map[int]relay.Relay
	rules    map[int][]relay.AlarmRule
	settings relay.Settings
	clock    relay.DeviceTime
	nextRule int
	failures map[string]error
	calls    map[string]int
	firmware []byte
}

// Operation names accepted by Fail and Calls.
const (
	OpListRelays    = "list relays"
	OpSetRelayState = "set relay state"
	OpListRules     = "list rules"
	OpCreateRule    = "create rule"
	OpUpdateRule    = "update rule"
	OpDeleteRule    = "delete rule"
	OpGetSettings   = "get settings"
	OpSaveSettings  = "save settings"
	OpGetTime       = "get server time"
	OpAdjustTime    = "adjust server time"
	OpUpload        = "upload firmware"
)

// NewFake creates an empty Fake.
func NewFake() *Fake {
	return &Fake{
		relays:   make(map[int]relay.Relay),
		rules:    make(map[int][]relay.AlarmRule),
		failures: make(map[string]error),
		calls:    make(map[string]int),
		nextRule: 1,
	}
}

// AddRelay adds or replaces a relay.
func (f *Fake) AddRelay(r relay.Relay) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relays[r.ID] = r
	f.settings = f.settings.WithName(r.ID, r.Name)
}

// RemoveRelay drops a relay and its rules.
func (f *Fake) RemoveRelay(id int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.relays, id)
	delete(f.rules, id)
}

// PutRule adds or replaces a rule, keeping its id.
func (f *Fake) PutRule(r relay.AlarmRule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	list := f.rules[r.RelayID]
	for i, existing := range list {
		if existing.ID == r.ID {
			list[i] = r
			return
		}
	}
	f.rules[r.RelayID] = append(list, r)
	if r.ID >= f.nextRule {
		f.nextRule = r.ID + 1
	}
}

// Rules returns the stored rules of a relay.
func (f *Fake) Rules(relayID int) []relay.AlarmRule {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]relay.AlarmRule(nil), f.rules[relayID]...)
}

// Relay returns a stored relay.
func (f *Fake) Relay(id int) (relay.Relay, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.relays[id]
	return r, ok
}

// SetClock sets the reported device time.
func (f *Fake) SetClock(t relay.DeviceTime) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clock = t
}

// Fail makes op return err until cleared with a nil err.
func (f *Fake) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, op)
		return
	}
	f.failures[op] = err
}

// Calls returns how many times op was invoked.
func (f *Fake) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// Settings returns the stored settings.
func (f *Fake) Settings() relay.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

// Firmware returns the last uploaded image.
func (f *Fake) Firmware() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firmware
}

// begin records a call and returns the injected failure, if any. Caller holds mu.
func (f *Fake) begin(ctx context.Context, op string) error {
	f.calls[op]++
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %w", op, ErrRequestFailed, err)
	}
	return f.failures[op]
}

func (f *Fake) ListRelays(ctx context.Context) ([]relay.Relay, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpListRelays); err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(f.relays))
	for id := range f.relays {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]relay.Relay, 0, len(ids))
	for _, id := range ids {
		out = append(out, f.relays[id])
	}
	return out, nil
}

func (f *Fake) SetRelayState(ctx context.Context, relayID int, state relay.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpSetRelayState); err != nil {
		return err
	}
	r, ok := f.relays[relayID]
	if !ok {
		return &StatusError{Op: OpSetRelayState, Code: 404, Body: "relay not found"}
	}
	r.State = state
	f.relays[relayID] = r
	return nil
}

func (f *Fake) ListRules(ctx context.Context, relayID int) ([]relay.AlarmRule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpListRules); err != nil {
		return nil, err
	}
	return append([]relay.AlarmRule(nil), f.rules[relayID]...), nil
}

func (f *Fake) CreateRule(ctx context.Context, relayID int, rule relay.AlarmRule) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpCreateRule); err != nil {
		return 0, err
	}
	if _, ok := f.relays[relayID]; !ok {
		return 0, &StatusError{Op: OpCreateRule, Code: 404, Body: "relay not found"}
	}
	rule.ID = f.nextRule
	rule.RelayID = relayID
	f.nextRule++
	f.rules[relayID] = append(f.rules[relayID], rule)
	return rule.ID, nil
}

func (f *Fake) UpdateRule(ctx context.Context, relayID, ruleID int, rule relay.AlarmRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpUpdateRule); err != nil {
		return err
	}
	for i, r := range f.rules[relayID] {
		if r.ID == ruleID {
			rule.ID = ruleID
			rule.RelayID = relayID
			f.rules[relayID][i] = rule
			return nil
		}
	}
	return &StatusError{Op: OpUpdateRule, Code: 404, Body: "alarm not found"}
}

func (f *Fake) DeleteRule(ctx context.Context, relayID, ruleID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpDeleteRule); err != nil {
		return err
	}
	list := f.rules[relayID]
	for i, r := range list {
		if r.ID == ruleID {
			f.rules[relayID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return &StatusError{Op: OpDeleteRule, Code: 404, Body: "alarm not found"}
}

func (f *Fake) GetSettings(ctx context.Context) (relay.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpGetSettings); err != nil {
		return relay.Settings{}, err
	}
	return f.settings, nil
}

func (f *Fake) SaveSettings(ctx context.Context, s relay.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpSaveSettings); err != nil {
		return err
	}
	f.settings = s
	for _, rn := range s.Relays {
		if r, ok := f.relays[rn.ID]; ok {
			r.Name = rn.Name
			f.relays[rn.ID] = r
		}
	}
	return nil
}

func (f *Fake) GetServerTime(ctx context.Context) (relay.DeviceTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpGetTime); err != nil {
		return relay.DeviceTime{}, err
	}
	return f.clock, nil
}

func (f *Fake) AdjustServerTime(ctx context.Context, adj relay.TimeAdjustment) (relay.DeviceTime, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpAdjustTime); err != nil {
		return relay.DeviceTime{}, err
	}
	f.clock.Hour = ((f.clock.Hour+adj.Hours)%24 + 24) % 24
	f.clock.Minute = ((f.clock.Minute+adj.Minutes)%60 + 60) % 60
	f.clock.Second = ((f.clock.Second+adj.Seconds)%60 + 60) % 60
	if adj.Date != "" {
		var y, m, d int
		if _, err := fmt.Sscanf(adj.Date, "%d-%d-%d", &y, &m, &d); err == nil {
			f.clock.Year, f.clock.Month, f.clock.Day = y, m, d
		}
	}
	return f.clock, nil
}

func (f *Fake) UploadFirmware(ctx context.Context, name string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(ctx, OpUpload); err != nil {
		return "", err
	}
	f.firmware = data
	return fmt.Sprintf("Firmware %s uploaded", name), nil
}
