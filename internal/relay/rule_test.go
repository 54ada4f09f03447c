package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tests := []struct {
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{"07:30:00", TimeOfDay{7, 30, 0}, false},
		{"23:59:59", TimeOfDay{23, 59, 59}, false},
		{"06:15", TimeOfDay{6, 15, 0}, false},
		{" 00:00:00 ", TimeOfDay{}, false},
		{"24:00:00", TimeOfDay{}, true},
		{"12:60", TimeOfDay{}, true},
		{"7:30", TimeOfDay{}, true},
		{"noon", TimeOfDay{}, true},
		{"", TimeOfDay{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimeOfDay(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, "06:15:00", TimeOfDay{6, 15, 0}.String())
}

func TestWeekdays(t *testing.T) {
	w := WeekdaysOf(time.Monday, time.Wednesday)
	assert.True(t, w.On(time.Monday))
	assert.False(t, w.On(time.Sunday))
	assert.True(t, w[1], "Monday is index 1")
	assert.Equal(t, "Mon,Wed", w.String())

	w2 := w.With(time.Monday, false)
	assert.True(t, w.On(time.Monday), "With must not mutate the receiver")
	assert.Equal(t, "Wed", w2.String())

	assert.False(t, Weekdays{}.Any())
	assert.Equal(t, "never", Weekdays{}.String())
}

func TestParseWeekday(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Weekday
		wantErr bool
	}{
		{in: "Sunday", want: time.Sunday},
		{in: "sat", want: time.Saturday},
		{in: " WED ", want: time.Wednesday},
		{in: "thursday", want: time.Thursday},
		{in: "mo", wantErr: true},
		{in: "sundae", wantErr: true},
		{in: "monkey", wantErr: true},
		{in: "tues", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			d, err := ParseWeekday(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, d)
		})
	}
}

func TestDeviceTimeIn(t *testing.T) {
	at, ok := DeviceTime{Year: 2024, Month: 3, Day: 9, Hour: 23, Minute: 15, Second: 5}.In(time.UTC)
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 3, 9, 23, 15, 5, 0, time.UTC), at)

	_, ok = DeviceTime{}.In(time.UTC)
	assert.False(t, ok, "zero clock is not usable")
}

func TestNextFire(t *testing.T) {
	// 2024-01-01 is a Monday.
	monday := func(h, m int) time.Time { return time.Date(2024, 1, 1, h, m, 0, 0, time.UTC) }
	rule := AlarmRule{Trigger: TimeOfDay{7, 30, 0}, Target: StateOn, Weekdays: WeekdaysOf(time.Monday)}

	at, ok := rule.NextFire(monday(6, 0))
	require.True(t, ok)
	assert.Equal(t, monday(7, 30), at)

	at, ok = rule.NextFire(monday(7, 30))
	require.True(t, ok)
	assert.Equal(t, monday(7, 30), at, "fires at exactly now")

	at, ok = rule.NextFire(monday(8, 0))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 8, 7, 30, 0, 0, time.UTC), at)

	rule.Weekdays = WeekdaysOf(time.Friday, time.Tuesday)
	at, ok = rule.NextFire(monday(8, 0))
	require.True(t, ok)
	assert.Equal(t, time.Date(2024, 1, 2, 7, 30, 0, 0, time.UTC), at)

	rule.Weekdays = Weekdays{}
	_, ok = rule.NextFire(monday(8, 0))
	assert.False(t, ok)
}

func TestStateParsing(t *testing.T) {
	s, err := ParseState("ON")
	require.NoError(t, err)
	assert.Equal(t, StateOn, s)
	assert.Equal(t, StateOff, s.Toggled())
	assert.True(t, StateFromBool(true).Bool())

	_, err = ParseState("half")
	assert.Error(t, err)
}

func TestSettingsWithName(t *testing.T) {
	s := Settings{SystemName: "Garden", Relays: []RelayName{{1, "Pump"}, {2, "Fan"}}}

	renamed := s.WithName(2, "Vent")
	name, ok := renamed.NameOf(2)
	require.True(t, ok)
	assert.Equal(t, "Vent", name)

	name, _ = s.NameOf(2)
	assert.Equal(t, "Fan", name, "original untouched")

	added := s.WithName(5, "Heater")
	assert.Len(t, added.Relays, 3)
	assert.Equal(t, "Garden", added.SystemName)
}

func TestDraftDefaults(t *testing.T) {
	d := DefaultDraft(3)
	assert.Equal(t, StateOn, d.Target)
	assert.Equal(t, TimeOfDay{}, d.Trigger)
	assert.False(t, d.Weekdays.Any())
	assert.Equal(t, 3, d.RelayID)
	assert.NoError(t, d.Validate())
}

func TestValidate(t *testing.T) {
	bad := []AlarmRule{
		{Trigger: TimeOfDay{Hour: 24}, Target: StateOn},
		{Trigger: TimeOfDay{Minute: 60}, Target: StateOff},
		{Target: State("dim")},
	}
	for _, r := range bad {
		assert.ErrorIs(t, r.Validate(), ErrInvalidRule)
	}
}
