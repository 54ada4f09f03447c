package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayboard/internal/db"
	"github.com/dokzlo13/relayboard/internal/relay"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return NewStore(database.DB)
}

func TestSnapshotsRoundTrip(t *testing.T) {
	ctx := context.Background()
	snaps := NewSnapshots(openStore(t))

	empty, err := snaps.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Relays)
	assert.Empty(t, empty.Rules)
	assert.Zero(t, empty.Version)

	relays := []relay.Relay{
		{ID: 2, Name: "Fan", State: relay.StateOff},
		{ID: 1, Name: "Pump", State: relay.StateOn},
	}
	rules := []relay.AlarmRule{
		{ID: 3, RelayID: 1, Trigger: relay.TimeOfDay{Hour: 7, Minute: 30}, Target: relay.StateOn, Weekdays: relay.WeekdaysOf(time.Monday)},
		{ID: 1, RelayID: 1, Trigger: relay.TimeOfDay{Hour: 22}, Target: relay.StateOff},
	}
	settings := relay.Settings{SystemName: "Garden", Relays: []relay.RelayName{{ID: 1, Name: "Pump"}}}

	require.NoError(t, snaps.SaveRelays(ctx, relays))
	require.NoError(t, snaps.SaveRules(ctx, 1, rules))
	require.NoError(t, snaps.SaveRules(ctx, 2, nil))
	require.NoError(t, snaps.SaveSettings(ctx, settings))

	view, err := snaps.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, relays, view.Relays, "render order is kept")
	assert.Equal(t, rules, view.Rules[1])
	assert.Empty(t, view.Rules[2])
	assert.Equal(t, settings, view.Settings)
	assert.Equal(t, int64(1), view.Version)

	require.NoError(t, snaps.SaveRelays(ctx, relays[:1]))
	require.NoError(t, snaps.DeleteRules(ctx, 2))

	view, err = snaps.Load(ctx)
	require.NoError(t, err)
	assert.Len(t, view.Relays, 1)
	assert.Equal(t, int64(2), view.Version)
	_, ok := view.Rules[2]
	assert.False(t, ok)
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	require.NoError(t, s.Set(ctx, KindRules, "1", []byte(`[]`)))
	require.NoError(t, s.Set(ctx, KindRelays, "all", []byte(`[]`)))
	require.NoError(t, s.Clear(ctx, KindRules))

	all, err := s.GetAll(ctx, KindRules)
	require.NoError(t, err)
	assert.Empty(t, all)

	payload, version, err := s.Get(ctx, KindRelays, "all")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(payload))
	assert.Equal(t, int64(1), version)

	require.NoError(t, s.Clear(ctx, ""))
	payload, _, err = s.Get(ctx, KindRelays, "all")
	require.NoError(t, err)
	assert.Nil(t, payload)
}
