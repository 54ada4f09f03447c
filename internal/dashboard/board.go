// Package dashboard holds the rendered relay board: relays and their rules
// reconciled against the device, the interaction sessions attached to them,
// settings, clock and the failure indicators.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/eventbus"
	"github.com/dokzlo13/relayboard/internal/reconcile"
	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/session"
	"github.com/dokzlo13/relayboard/internal/storage"
)

// Options configures a Board. Every field is optional.
type Options struct {
	Debounce   time.Duration
	MaxNotices int
	Bus        *eventbus.Bus
	Snapshots  *storage.Snapshots
	Observer   Observer

	// Context bounds calls made from debounce timers.
	Context context.Context

	Now func() time.Time
}

// Board is the single writer of the rendered view. One mutex serializes
// reconcile application and session transitions; device calls are made
// without it.
type Board struct {
	mu     sync.Mutex
	device Device
	opts   Options

	observer Observer
	deps     session.Deps
	edits    *session.Debouncer[session.RuleKey]
	saves    *session.Debouncer[string]
	saveMu   sync.Mutex

	lastHandle Handle
	relays     *reconcile.Collection[int, relay.Relay]
	relayNodes map[int]*Node[relay.Relay]
	rules      map[int]*relayRules

	// relayGen counts acknowledged relay mutations. A poll fetched before the
	// counter moved is not applied.
	relayGen uint64

	settings       relay.Settings
	settingsLoaded bool
	pendingNames   map[int]string
	pendingSystem  *string
	clock          *relay.DeviceTime
	clockAt        time.Time
	status         Status
	notices        []Notice
	noticeSeq      uint64
	stale          bool
	ready          bool
	lastRefresh    time.Time
}

// New creates an empty board.
func New(device Device, opts Options) *Board {
	if opts.MaxNotices <= 0 {
		opts.MaxNotices = DefaultMaxNotices
	}
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	b := &Board{
		device:       device,
		opts:         opts,
		observer:     opts.Observer,
		edits:        session.NewDebouncer[session.RuleKey](opts.Debounce),
		saves:        session.NewDebouncer[string](opts.Debounce),
		relayNodes:   make(map[int]*Node[relay.Relay]),
		rules:        make(map[int]*relayRules),
		pendingNames: make(map[int]string),
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	b.deps = session.Deps{
		Remote:    ruleMutations{b: b},
		Refresher: b,
		Notifier:  b,
		Locker:    &b.mu,
		Edits:     b.edits,
		Context:   opts.Context,
	}
	b.relays = reconcile.NewCollection[int, relay.Relay](relayView{b: b})
	return b
}

func (b *Board) now() time.Time {
	return b.opts.Now()
}

func (b *Board) handle() Handle {
	b.lastHandle++
	return b.lastHandle
}

func (b *Board) publish(e eventbus.Event) {
	if b.opts.Bus == nil {
		return
	}
	if e.At.IsZero() {
		e.At = b.now()
	}
	b.opts.Bus.Publish(e)
}

// Restore renders the last persisted view. The board is marked stale until
// the first successful refresh.
func (b *Board) Restore(ctx context.Context) error {
	if b.opts.Snapshots == nil {
		return nil
	}
	view, err := b.opts.Snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ready {
		return nil
	}
	b.relays.Restore(view.Relays)
	for id, rules := range view.Rules {
		if rr, ok := b.rules[id]; ok {
			rr.coll.Restore(rules)
			rr.loaded = true
		}
	}
	if len(view.Settings.Relays) > 0 || view.Settings.SystemName != "" {
		b.settings = view.Settings
	}
	b.stale = len(view.Relays) > 0

	log.Info().Int("relays", len(view.Relays)).Int64("version", view.Version).Msg("Restored last known view")
	return nil
}

// Refresh polls the relay list and every relay's rules. A failing relay list
// keeps the view, sets the status indicator and returns the error. A failing
// rule list only affects its relay.
func (b *Board) Refresh(ctx context.Context) error {
	b.mu.Lock()
	gen := b.relayGen
	b.mu.Unlock()

	list, err := b.device.ListRelays(ctx)
	if list == nil && err != nil {
		b.mu.Lock()
		b.failLocked(err)
		b.mu.Unlock()
		return fmt.Errorf("refresh relays: %w", err)
	}
	if err != nil {
		log.Warn().Err(err).Msg("Skipped malformed relays")
	}

	b.mu.Lock()
	var ops reconcile.Ops[int, relay.Relay]
	if b.relayGen == gen {
		ops = b.relays.Reconcile(list)
	} else {
		log.Debug().Msg("Relay list predates a relay change, not applied")
	}
	ids := b.relays.Snapshot().Keys()
	items := b.relays.Items()
	b.mu.Unlock()

	b.observer.ObserveOps("relays", len(ops.Create), len(ops.Update), len(ops.Remove))
	b.observer.SetRelays(len(ids))
	if !ops.Empty() {
		log.Debug().Int("created", len(ops.Create)).Int("updated", len(ops.Update)).Int("removed", len(ops.Remove)).Msg("Relays reconciled")
		b.persist(func(s *storage.Snapshots) error {
			if err := s.SaveRelays(ctx, items); err != nil {
				return err
			}
			for _, id := range ops.Remove {
				if err := s.DeleteRules(ctx, id); err != nil {
					return err
				}
			}
			return nil
		})
	}

	for _, id := range ids {
		if err := b.RefreshRules(ctx, id); err != nil {
			log.Warn().Err(err).Int("relay", id).Msg("Keeping previous rules")
		}
	}

	b.mu.Lock()
	b.ready = true
	b.stale = false
	b.status = Status{}
	b.lastRefresh = b.now()
	b.mu.Unlock()
	return nil
}

// RefreshRules reconciles one relay's rules. On failure the relay's rendered
// rules are left untouched.
func (b *Board) RefreshRules(ctx context.Context, relayID int) error {
	b.mu.Lock()
	rr, ok := b.rules[relayID]
	var gen uint64
	if ok {
		gen = rr.gen
	}
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}

	list, err := b.device.ListRules(ctx, relayID)
	if list == nil && err != nil {
		return fmt.Errorf("refresh rules of relay %d: %w", relayID, err)
	}
	if err != nil {
		log.Warn().Err(err).Int("relay", relayID).Msg("Skipped malformed rules")
	}

	b.mu.Lock()
	if current, ok := b.rules[relayID]; !ok || current != rr {
		// Removed while the call was in flight.
		b.mu.Unlock()
		return nil
	}
	if rr.gen != gen {
		b.mu.Unlock()
		log.Debug().Int("relay", relayID).Msg("Rule list predates a rule change, not applied")
		return nil
	}
	ops := rr.coll.Reconcile(list)
	rr.loaded = true
	items := rr.coll.Items()
	b.mu.Unlock()

	b.observer.ObserveOps("rules", len(ops.Create), len(ops.Update), len(ops.Remove))
	if !ops.Empty() {
		log.Debug().Int("relay", relayID).Int("created", len(ops.Create)).Int("updated", len(ops.Update)).Int("removed", len(ops.Remove)).Msg("Rules reconciled")
		b.persist(func(s *storage.Snapshots) error { return s.SaveRules(ctx, relayID, items) })
	}
	return nil
}

// Toggle switches a relay. The rendered state changes only once the device
// acknowledges.
func (b *Board) Toggle(ctx context.Context, relayID int, state relay.State) error {
	if !state.Valid() {
		return fmt.Errorf("%w: state %q", relay.ErrMalformedPayload, state)
	}
	b.mu.Lock()
	_, ok := b.relays.Get(relayID)
	b.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}

	if err := b.device.SetRelayState(ctx, relayID, state); err != nil {
		b.Notify(fmt.Sprintf("toggle relay %d", relayID), err)
		return err
	}

	b.mu.Lock()
	b.relayGen++
	current, ok := b.relays.Get(relayID)
	changed := false
	if ok {
		current.State = state
		changed = b.relays.Patch(current)
	}
	items := b.relays.Items()
	b.mu.Unlock()

	log.Info().Int("relay", relayID).Str("state", string(state)).Msg("Relay switched")
	if changed {
		b.observer.ObserveOps("relays", 0, 1, 0)
		b.persist(func(s *storage.Snapshots) error { return s.SaveRelays(ctx, items) })
	}
	return nil
}

// Ready reports whether a refresh has succeeded since start.
func (b *Board) Ready() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Close sends pending edits and saves, then stops the timers.
func (b *Board) Close() {
	b.edits.FlushAll()
	b.saves.FlushAll()
	b.edits.Stop()
	b.saves.Stop()
}

func (b *Board) persist(fn func(*storage.Snapshots) error) {
	if b.opts.Snapshots == nil {
		return
	}
	if err := fn(b.opts.Snapshots); err != nil {
		log.Warn().Err(err).Msg("Failed to persist view")
	}
}
