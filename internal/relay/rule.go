package relay

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

// ParseTimeOfDay parses "HH:MM:SS". "HH:MM" is accepted with seconds set to zero.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
	}

	vals := [3]int{}
	for i, p := range parts {
		if len(p) != 2 {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return TimeOfDay{}, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
		vals[i] = n
	}

	t := TimeOfDay{Hour: vals[0], Minute: vals[1], Second: vals[2]}
	if !t.Valid() {
		return TimeOfDay{}, fmt.Errorf("time of day out of range %q", s)
	}
	return t, nil
}

// Valid reports whether every component is in range.
func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour < 24 &&
		t.Minute >= 0 && t.Minute < 60 &&
		t.Second >= 0 && t.Second < 60
}

// String formats as HH:MM:SS.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// On returns the time of day on the date of d, in d's location.
func (t TimeOfDay) On(d time.Time) time.Time {
	y, m, day := d.Date()
	return time.Date(y, m, day, t.Hour, t.Minute, t.Second, 0, d.Location())
}

// Weekdays marks the days a rule is active. Index is time.Weekday, so
// Sunday is 0 and Saturday is 6.
type Weekdays [7]bool

// dayNames is ordered by time.Weekday.
var dayNames = [7]string{"sun", "mon", "tue", "wed", "thu", "fri", "sat"}

// WeekdaysOf builds a set from the given days.
func WeekdaysOf(days ...time.Weekday) Weekdays {
	var w Weekdays
	for _, d := range days {
		w[d] = true
	}
	return w
}

// On reports whether the rule is active on d.
func (w Weekdays) On(d time.Weekday) bool {
	return w[d]
}

// With returns a copy with d set to active.
func (w Weekdays) With(d time.Weekday, active bool) Weekdays {
	w[d] = active
	return w
}

// Any reports whether at least one day is active.
func (w Weekdays) Any() bool {
	for _, on := range w {
		if on {
			return true
		}
	}
	return false
}

// Names returns the short names of the active days, Sunday first.
func (w Weekdays) Names() []string {
	names := make([]string, 0, 7)
	for i, on := range w {
		if on {
			names = append(names, dayNames[i])
		}
	}
	return names
}

func (w Weekdays) String() string {
	if !w.Any() {
		return "never"
	}
	names := w.Names()
	for i, n := range names {
		names[i] = strings.ToUpper(n[:1]) + n[1:]
	}
	return strings.Join(names, ",")
}

// ParseWeekday parses a short ("mon") or full ("Monday") English day name,
// ignoring case.
func ParseWeekday(name string) (time.Weekday, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, d := range dayNames {
		if n == d || n == strings.ToLower(time.Weekday(i).String()) {
			return time.Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday %q", name)
}

// AlarmRule is a weekly time-of-day trigger that drives one relay to a target
// state. ID is assigned by the device and is only unique within RelayID.
type AlarmRule struct {
	ID       int
	RelayID  int
	Trigger  TimeOfDay
	Target   State
	Weekdays Weekdays
}

// DefaultDraft is the value of an unsaved new rule.
func DefaultDraft(relayID int) AlarmRule {
	return AlarmRule{RelayID: relayID, Target: StateOn}
}

// Key returns the rule id. Rule ids are scoped by relay, so collections of rules
// must never mix relays.
func (r AlarmRule) Key() int {
	return r.ID
}

// Equal compares every observable field.
func (r AlarmRule) Equal(other AlarmRule) bool {
	return r == other
}

// Validate checks the fields the client controls.
func (r AlarmRule) Validate() error {
	if !r.Trigger.Valid() {
		return fmt.Errorf("%w: trigger time %s", ErrInvalidRule, r.Trigger)
	}
	if !r.Target.Valid() {
		return fmt.Errorf("%w: target state %q", ErrInvalidRule, r.Target)
	}
	return nil
}

// NextFire returns the first time at or after now when the rule fires,
// looking at most one week ahead. A rule with no active days never fires.
func (r AlarmRule) NextFire(now time.Time) (time.Time, bool) {
	for i := 0; i <= 7; i++ {
		day := now.AddDate(0, 0, i)
		if !r.Weekdays.On(day.Weekday()) {
			continue
		}
		at := r.Trigger.On(day)
		if at.Before(now) {
			continue
		}
		return at, true
	}
	return time.Time{}, false
}
