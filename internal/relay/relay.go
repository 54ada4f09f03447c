// Package relay holds the canonical in-memory types for relays and their weekly
// alarm rules, plus the codecs that map them to and from the device wire format.
package relay

import (
	"fmt"
	"strings"
	"time"
)

// State is the on/off state of a relay, or the target state of a rule.
type State string

const (
	StateOn  State = "on"
	StateOff State = "off"
)

// ParseState parses "on"/"off" (case-insensitive).
func ParseState(s string) (State, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return StateOn, nil
	case "off":
		return StateOff, nil
	default:
		return "", fmt.Errorf("invalid state %q", s)
	}
}

// StateFromBool maps true to on.
func StateFromBool(on bool) State {
	if on {
		return StateOn
	}
	return StateOff
}

// Bool reports whether the state is on.
func (s State) Bool() bool {
	return s == StateOn
}

// Valid reports whether s is one of the known states.
func (s State) Valid() bool {
	return s == StateOn || s == StateOff
}

// Toggled returns the opposite state.
func (s State) Toggled() State {
	if s == StateOn {
		return StateOff
	}
	return StateOn
}

// Relay is a remotely controlled switch. The remote device owns it; the
// dashboard only renames and toggles it.
type Relay struct {
	ID    int
	Name  string
	State State
}

// Key returns the relay identity.
func (r Relay) Key() int {
	return r.ID
}

// Equal compares every observable field.
func (r Relay) Equal(other Relay) bool {
	return r == other
}

// RelayName is the per-relay part of the settings record.
type RelayName struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Settings is the device settings record shared by the load and save paths.
type Settings struct {
	SystemName string      `json:"systemName"`
	Relays     []RelayName `json:"relays"`
}

// NameOf returns the configured name for a relay.
func (s Settings) NameOf(id int) (string, bool) {
	for _, r := range s.Relays {
		if r.ID == id {
			return r.Name, true
		}
	}
	return "", false
}

// WithName returns a copy of s with the relay renamed, appending it if unknown.
func (s Settings) WithName(id int, name string) Settings {
	out := Settings{SystemName: s.SystemName, Relays: make([]RelayName, 0, len(s.Relays)+1)}
	found := false
	for _, r := range s.Relays {
		if r.ID == id {
			r.Name = name
			found = true
		}
		out.Relays = append(out.Relays, r)
	}
	if !found {
		out.Relays = append(out.Relays, RelayName{ID: id, Name: name})
	}
	return out
}

// DeviceTime is the wall clock reported by the device.
type DeviceTime struct {
	Year   int `json:"year"`
	Month  int `json:"month"`
	Day    int `json:"day"`
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
	Second int `json:"second"`
}

// Date formats the date part as YYYY-MM-DD.
func (t DeviceTime) Date() string {
	return fmt.Sprintf("%04d-%02d-%02d", t.Year, t.Month, t.Day)
}

// Clock formats the time part as HH:MM:SS.
func (t DeviceTime) Clock() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// In returns the reported wall clock as a time in loc. It is false when the
// device reported no usable date.
func (t DeviceTime) In(loc *time.Location) (time.Time, bool) {
	if t.Month < 1 || t.Month > 12 || t.Day < 1 || t.Day > 31 || t.Hour > 23 || t.Minute > 59 || t.Second > 59 {
		return time.Time{}, false
	}
	return time.Date(t.Year, time.Month(t.Month), t.Day, t.Hour, t.Minute, t.Second, 0, loc), true
}

// TimeAdjustment nudges the device clock. Date is YYYY-MM-DD and may be empty.
type TimeAdjustment struct {
	Hours   int    `json:"hourAdjustment"`
	Minutes int    `json:"minuteAdjustment"`
	Seconds int    `json:"secondAdjustment"`
	Date    string `json:"date"`
}
