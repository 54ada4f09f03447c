package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Schema names a wire schema generation.
type Schema string

const (
	SchemaV1     Schema = "v1"
	SchemaLegacy Schema = "legacy"
)

// Codec maps canonical types to one wire schema. Nothing outside a codec sees
// wire representations.
type Codec interface {
	Version() Schema
	DecodeRelay(raw []byte) (Relay, error)
	EncodeRelayState(id int, state State) ([]byte, error)
	DecodeRule(relayID int, raw []byte) (AlarmRule, error)
	EncodeRule(rule AlarmRule) ([]byte, error)
}

// CodecFor returns the codec for a schema name. Empty selects v1.
func CodecFor(schema string) (Codec, error) {
	switch Schema(strings.ToLower(schema)) {
	case "", SchemaV1:
		return V1{}, nil
	case SchemaLegacy:
		return Legacy{}, nil
	default:
		return nil, fmt.Errorf("unknown wire schema %q", schema)
	}
}

// V1 is the canonical schema: rule state is a bool and weekdays is a
// Sunday-first bool[7].
type V1 struct{}

func (V1) Version() Schema { return SchemaV1 }

type relayStateBody struct {
	RelayID int    `json:"relayId"`
	State   string `json:"state"`
}

type v1Rule struct {
	ID       int     `json:"id"`
	RelayID  int     `json:"relayId"`
	State    bool    `json:"state"`
	Time     string  `json:"time"`
	Weekdays [7]bool `json:"weekdays"`
}

func (V1) DecodeRelay(raw []byte) (Relay, error) {
	return decodeRelay(raw)
}

func (V1) EncodeRelayState(id int, state State) ([]byte, error) {
	return json.Marshal(relayStateBody{RelayID: id, State: string(state)})
}

func (V1) DecodeRule(relayID int, raw []byte) (AlarmRule, error) {
	f, err := objectFields("alarm", raw)
	if err != nil {
		return AlarmRule{}, err
	}

	r := AlarmRule{RelayID: relayID}
	if err := f.required("id", &r.ID); err != nil {
		return AlarmRule{}, err
	}

	var on bool
	if err := f.required("state", &on); err != nil {
		return AlarmRule{}, err
	}
	r.Target = StateFromBool(on)

	if r.Trigger, err = f.trigger(); err != nil {
		return AlarmRule{}, err
	}

	var days []bool
	present, err := f.optional("weekdays", &days)
	if err != nil {
		return AlarmRule{}, err
	}
	if present {
		if len(days) != len(r.Weekdays) {
			return AlarmRule{}, malformed("alarm", "weekdays", fmt.Sprintf("expected 7 entries, got %d", len(days)))
		}
		copy(r.Weekdays[:], days)
	}
	return r, nil
}

func (V1) EncodeRule(rule AlarmRule) ([]byte, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(v1Rule{
		ID:       rule.ID,
		RelayID:  rule.RelayID,
		State:    rule.Target.Bool(),
		Time:     rule.Trigger.String(),
		Weekdays: rule.Weekdays,
	})
}

// DecodeRelays decodes a relay list, either {"relays": [...]} or a bare array.
// Entities that fail to decode are skipped and their errors joined.
func DecodeRelays(c Codec, raw []byte) ([]Relay, error) {
	items, err := listItems("relays", "relays", raw)
	if err != nil {
		return nil, err
	}

	relays := make([]Relay, 0, len(items))
	var errs []error
	for i, item := range items {
		r, err := c.DecodeRelay(item)
		if err != nil {
			errs = append(errs, fmt.Errorf("relay %d: %w", i, err))
			continue
		}
		relays = append(relays, r)
	}
	return relays, errors.Join(errs...)
}

// DecodeRules decodes a rule list for one relay, either {"alarms": [...]} or a
// bare array. Entities that fail to decode are skipped and their errors joined.
func DecodeRules(c Codec, relayID int, raw []byte) ([]AlarmRule, error) {
	items, err := listItems("alarms", "alarms", raw)
	if err != nil {
		return nil, err
	}

	rules := make([]AlarmRule, 0, len(items))
	var errs []error
	for i, item := range items {
		r, err := c.DecodeRule(relayID, item)
		if err != nil {
			errs = append(errs, fmt.Errorf("alarm %d: %w", i, err))
			continue
		}
		rules = append(rules, r)
	}
	return rules, errors.Join(errs...)
}

func listItems(entity, key string, raw []byte) ([]json.RawMessage, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, malformed(entity, "", "empty body")
	}

	var items []json.RawMessage
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, malformed(entity, "", err.Error())
		}
		return items, nil
	}

	f, err := objectFields(entity, raw)
	if err != nil {
		return nil, err
	}
	if err := f.required(key, &items); err != nil {
		return nil, err
	}
	return items, nil
}

func decodeRelay(raw []byte) (Relay, error) {
	f, err := objectFields("relay", raw)
	if err != nil {
		return Relay{}, err
	}

	var r Relay
	if err := f.required("id", &r.ID); err != nil {
		return Relay{}, err
	}
	if err := f.required("name", &r.Name); err != nil {
		return Relay{}, err
	}
	if r.State, err = f.state("relay"); err != nil {
		return Relay{}, err
	}
	return r, nil
}

// fields is a decoded JSON object whose members are checked one at a time so
// errors can name the offending field.
type fields struct {
	entity string
	m      map[string]json.RawMessage
}

func objectFields(entity string, raw []byte) (fields, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fields{}, malformed(entity, "", err.Error())
	}
	if m == nil {
		return fields{}, malformed(entity, "", "null object")
	}
	return fields{entity: entity, m: m}, nil
}

func (f fields) optional(name string, dst any) (bool, error) {
	v, ok := f.m[name]
	if !ok || string(v) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(v, dst); err != nil {
		return true, malformed(f.entity, name, err.Error())
	}
	return true, nil
}

func (f fields) required(name string, dst any) error {
	present, err := f.optional(name, dst)
	if err != nil {
		return err
	}
	if !present {
		return malformed(f.entity, name, "missing")
	}
	return nil
}

func (f fields) trigger() (TimeOfDay, error) {
	var s string
	if err := f.required("time", &s); err != nil {
		return TimeOfDay{}, err
	}
	t, err := ParseTimeOfDay(s)
	if err != nil {
		return TimeOfDay{}, malformed(f.entity, "time", err.Error())
	}
	return t, nil
}

// state accepts "on"/"off" or a bool; firmware builds differ on this.
func (f fields) state(name string) (State, error) {
	v, ok := f.m["state"]
	if !ok || string(v) == "null" {
		return "", malformed(name, "state", "missing")
	}

	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return StateFromBool(b), nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", malformed(name, "state", "expected string or bool")
	}
	st, err := ParseState(s)
	if err != nil {
		return "", malformed(name, "state", err.Error())
	}
	return st, nil
}
