package dashboard

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/storage"
)

const settingsKey = "settings"

// ErrEmptyName is returned when a relay or system name is blank.
var ErrEmptyName = errors.New("name must not be empty")

// LoadSettings fetches the settings record from the device. Unsaved renames
// stay pending on top of it.
func (b *Board) LoadSettings(ctx context.Context) error {
	s, err := b.device.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	b.mu.Lock()
	b.settings = s
	b.settingsLoaded = true
	b.mu.Unlock()

	b.persist(func(st *storage.Snapshots) error { return st.SaveSettings(ctx, s) })
	return nil
}

// Rename schedules a debounced settings save with the new relay name.
func (b *Board) Rename(relayID int, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.relays.Get(relayID); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	b.pendingNames[relayID] = name
	b.saves.Schedule(settingsKey, b.saveSettings)
	return nil
}

// SetSystemName schedules a debounced settings save with the new system name.
func (b *Board) SetSystemName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.pendingSystem = &name
	b.saves.Schedule(settingsKey, b.saveSettings)
	return nil
}

// FlushSettings sends a pending settings save now.
func (b *Board) FlushSettings() bool {
	return b.saves.Flush(settingsKey)
}

// settingsDraftLocked merges pending renames onto the last known settings.
// Relays missing from the record are filled from the rendered names so a save
// never drops them.
func (b *Board) settingsDraftLocked() relay.Settings {
	draft := relay.Settings{
		SystemName: b.settings.SystemName,
		Relays:     append([]relay.RelayName(nil), b.settings.Relays...),
	}

	for _, r := range b.relays.Items() {
		if _, ok := draft.NameOf(r.ID); !ok {
			draft = draft.WithName(r.ID, r.Name)
		}
	}
	for id, name := range b.pendingNames {
		draft = draft.WithName(id, name)
	}
	if b.pendingSystem != nil {
		draft.SystemName = *b.pendingSystem
	}
	return draft
}

// saveSettings runs from the debouncer. Saves are serialized.
func (b *Board) saveSettings() {
	b.saveMu.Lock()
	defer b.saveMu.Unlock()

	b.mu.Lock()
	draft := b.settingsDraftLocked()
	sentNames := make(map[int]string, len(b.pendingNames))
	for id, name := range b.pendingNames {
		sentNames[id] = name
	}
	sentSystem := b.pendingSystem
	b.mu.Unlock()

	ctx := b.opts.Context
	err := b.device.SaveSettings(ctx, draft)

	b.mu.Lock()
	// Drop the overrides that were sent; newer ones stay pending.
	for id, name := range sentNames {
		if b.pendingNames[id] == name {
			delete(b.pendingNames, id)
		}
	}
	if sentSystem != nil && b.pendingSystem == sentSystem {
		b.pendingSystem = nil
	}
	if err != nil {
		b.mu.Unlock()
		b.Notify("save settings", err)
		return
	}

	b.settings = draft
	b.relayGen++
	changed := false
	for id, name := range sentNames {
		if r, ok := b.relays.Get(id); ok {
			r.Name = name
			changed = b.relays.Patch(r) || changed
		}
	}
	items := b.relays.Items()
	b.mu.Unlock()

	log.Info().Str("system", draft.SystemName).Int("relays", len(draft.Relays)).Msg("Settings saved")
	b.persist(func(s *storage.Snapshots) error {
		if err := s.SaveSettings(ctx, draft); err != nil {
			return err
		}
		if changed {
			return s.SaveRelays(ctx, items)
		}
		return nil
	})
}

// RefreshClock fetches the device clock.
func (b *Board) RefreshClock(ctx context.Context) error {
	t, err := b.device.GetServerTime(ctx)
	if err != nil {
		return fmt.Errorf("refresh clock: %w", err)
	}
	b.mu.Lock()
	b.clock = &t
	b.clockAt = b.now()
	b.mu.Unlock()
	return nil
}

// AdjustClock nudges the device clock and renders the time it reports back.
func (b *Board) AdjustClock(ctx context.Context, adj relay.TimeAdjustment) (relay.DeviceTime, error) {
	t, err := b.device.AdjustServerTime(ctx, adj)
	if err != nil {
		b.Notify("adjust clock", err)
		return relay.DeviceTime{}, err
	}
	b.mu.Lock()
	b.clock = &t
	b.clockAt = b.now()
	b.mu.Unlock()
	log.Info().Str("date", t.Date()).Str("time", t.Clock()).Msg("Device clock adjusted")
	return t, nil
}
