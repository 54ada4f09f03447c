package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/dokzlo13/relayboard/internal/relay"
)

type relayRecord struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"`
}

type ruleRecord struct {
	ID       int     `json:"id"`
	Time     string  `json:"time"`
	Target   string  `json:"target"`
	Weekdays [7]bool `json:"weekdays"`
}

// View is a persisted dashboard view.
type View struct {
	Relays   []relay.Relay
	Rules    map[int][]relay.AlarmRule
	Settings relay.Settings
	Version  int64
}

// Snapshots stores and restores views.
type Snapshots struct {
	store *Store
}

// NewSnapshots creates a Snapshots on top of store.
func NewSnapshots(store *Store) *Snapshots {
	return &Snapshots{store: store}
}

// SaveRelays stores the relay list in render order.
func (s *Snapshots) SaveRelays(ctx context.Context, relays []relay.Relay) error {
	records := make([]relayRecord, 0, len(relays))
	for _, r := range relays {
		records = append(records, relayRecord{ID: r.ID, Name: r.Name, State: string(r.State)})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, KindRelays, "all", payload)
}

// SaveRules stores one relay's rules in render order.
func (s *Snapshots) SaveRules(ctx context.Context, relayID int, rules []relay.AlarmRule) error {
	records := make([]ruleRecord, 0, len(rules))
	for _, r := range rules {
		records = append(records, ruleRecord{
			ID:       r.ID,
			Time:     r.Trigger.String(),
			Target:   string(r.Target),
			Weekdays: r.Weekdays,
		})
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, KindRules, strconv.Itoa(relayID), payload)
}

// DeleteRules drops the stored rules of a relay.
func (s *Snapshots) DeleteRules(ctx context.Context, relayID int) error {
	return s.store.Delete(ctx, KindRules, strconv.Itoa(relayID))
}

// SaveSettings stores the settings record.
func (s *Snapshots) SaveSettings(ctx context.Context, settings relay.Settings) error {
	payload, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, KindSettings, "device", payload)
}

// Load returns the stored view. An empty database yields an empty view with
// Version 0.
func (s *Snapshots) Load(ctx context.Context) (View, error) {
	view := View{Rules: make(map[int][]relay.AlarmRule)}

	payload, version, err := s.store.Get(ctx, KindRelays, "all")
	if err != nil {
		return View{}, err
	}
	view.Version = version
	if payload != nil {
		var records []relayRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return View{}, fmt.Errorf("failed to decode stored relays: %w", err)
		}
		for _, r := range records {
			st, err := relay.ParseState(r.State)
			if err != nil {
				continue
			}
			view.Relays = append(view.Relays, relay.Relay{ID: r.ID, Name: r.Name, State: st})
		}
	}

	all, err := s.store.GetAll(ctx, KindRules)
	if err != nil {
		return View{}, err
	}
	for key, payload := range all {
		relayID, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		var records []ruleRecord
		if err := json.Unmarshal(payload, &records); err != nil {
			return View{}, fmt.Errorf("failed to decode stored rules for relay %d: %w", relayID, err)
		}
		rules := make([]relay.AlarmRule, 0, len(records))
		for _, r := range records {
			trigger, err := relay.ParseTimeOfDay(r.Time)
			if err != nil {
				continue
			}
			target, err := relay.ParseState(r.Target)
			if err != nil {
				continue
			}
			rules = append(rules, relay.AlarmRule{ID: r.ID, RelayID: relayID, Trigger: trigger, Target: target, Weekdays: r.Weekdays})
		}
		view.Rules[relayID] = rules
	}

	payload, _, err = s.store.Get(ctx, KindSettings, "device")
	if err != nil {
		return View{}, err
	}
	if payload != nil {
		if err := json.Unmarshal(payload, &view.Settings); err != nil {
			return View{}, fmt.Errorf("failed to decode stored settings: %w", err)
		}
	}
	return view, nil
}
