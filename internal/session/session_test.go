package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayboard/internal/relay"
)

type fakeRemote struct {
	mu        sync.Mutex
	creates   []relay.AlarmRule
	updates   []relay.AlarmRule
	deletes   []RuleKey
	createErr error
	updateErr error
	deleteErr error
	nextID    int

	// When set, DeleteRule signals started and waits for release.
	started chan struct{}
	release chan struct{}
}

func (f *fakeRemote) CreateRule(_ context.Context, relayID int, rule relay.AlarmRule) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	rule.RelayID = relayID
	f.creates = append(f.creates, rule)
	return f.nextID, nil
}

func (f *fakeRemote) UpdateRule(_ context.Context, _, _ int, rule relay.AlarmRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updates = append(f.updates, rule)
	return nil
}

func (f *fakeRemote) DeleteRule(_ context.Context, relayID, ruleID int) error {
	if f.started != nil {
		f.started <- struct{}{}
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletes = append(f.deletes, RuleKey{relayID, ruleID})
	return nil
}

func (f *fakeRemote) counts() (creates, updates, deletes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates), len(f.updates), len(f.deletes)
}

type fakeRefresher struct {
	mu     sync.Mutex
	relays []int
}

func (r *fakeRefresher) RefreshRules(_ context.Context, relayID int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.relays = append(r.relays, relayID)
	return nil
}

type fakeNotifier struct {
	mu  sync.Mutex
	ops []string
}

func (n *fakeNotifier) Notify(op string, _ error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.ops = append(n.ops, op)
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.ops)
}

type harness struct {
	remote    *fakeRemote
	refresher *fakeRefresher
	notifier  *fakeNotifier
	deps      Deps
}

func newHarness(debounce time.Duration) *harness {
	h := &harness{
		remote:    &fakeRemote{nextID: 10},
		refresher: &fakeRefresher{},
		notifier:  &fakeNotifier{},
	}
	h.deps = Deps{
		Remote:    h.remote,
		Refresher: h.refresher,
		Notifier:  h.notifier,
		Edits:     NewDebouncer[RuleKey](debounce),
	}
	return h
}

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		event   Event
		want    State
		wantErr bool
	}{
		{StateViewing, EventDelete, StateConfirmingDelete, false},
		{StateViewing, EventCancel, StateViewing, true},
		{StateViewing, EventConfirm, StateViewing, true},
		{StateConfirmingDelete, EventCancel, StateViewing, false},
		{StateConfirmingDelete, EventConfirm, StateDeleted, false},
		{StateConfirmingDelete, EventDeleteFailed, StateViewing, false},
		{StateConfirmingDelete, EventDelete, StateConfirmingDelete, true},
		{StateDeleted, EventCancel, StateDeleted, true},
		{StateDeleted, EventDelete, StateDeleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.event.String(), func(t *testing.T) {
			got, err := Transition(tt.from, tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestControlsFor(t *testing.T) {
	assert.Equal(t, Controls{Delete: true}, ControlsFor(StateViewing))
	assert.Equal(t, Controls{Confirm: true, Cancel: true}, ControlsFor(StateConfirmingDelete))
	assert.Equal(t, Controls{}, ControlsFor(StateDeleted))
}

func TestDeleteThenCancelIssuesNoCall(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 1, 5)

	require.NoError(t, s.RequestDelete())
	assert.Equal(t, StateConfirmingDelete, s.State())
	assert.False(t, s.Controls().Delete)

	require.NoError(t, s.Cancel())
	assert.Equal(t, StateViewing, s.State())
	assert.Equal(t, Controls{Delete: true}, s.Controls())

	_, _, deletes := h.remote.counts()
	assert.Zero(t, deletes)
	assert.Empty(t, h.refresher.relays)
}

func TestConfirmDeletes(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 2, 5)

	require.NoError(t, s.RequestDelete())
	require.NoError(t, s.Confirm(context.Background()))

	assert.Equal(t, StateDeleted, s.State())
	assert.Equal(t, []RuleKey{{2, 5}}, h.remote.deletes)
	assert.Equal(t, []int{2}, h.refresher.relays)
	assert.ErrorIs(t, s.RequestDelete(), ErrInvalidTransition)
}

func TestConfirmFailureReturnsToViewing(t *testing.T) {
	h := newHarness(time.Hour)
	h.remote.deleteErr = errors.New("boom")
	s := NewRule(h.deps, 2, 5)

	require.NoError(t, s.RequestDelete())
	err := s.Confirm(context.Background())
	assert.Error(t, err)

	assert.Equal(t, StateViewing, s.State())
	assert.Equal(t, 1, h.notifier.count())
	assert.Empty(t, h.refresher.relays)
}

func TestConfirmRequiresConfirmingState(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 1, 1)
	assert.ErrorIs(t, s.Confirm(context.Background()), ErrInvalidTransition)
}

func TestConfirmWhileInFlightIsBusy(t *testing.T) {
	h := newHarness(time.Hour)
	h.remote.started = make(chan struct{})
	h.remote.release = make(chan struct{})
	s := NewRule(h.deps, 1, 5)
	require.NoError(t, s.RequestDelete())

	done := make(chan error, 1)
	go func() { done <- s.Confirm(context.Background()) }()
	<-h.remote.started

	assert.ErrorIs(t, s.Confirm(context.Background()), ErrBusy)
	assert.ErrorIs(t, s.Cancel(), ErrBusy)
	assert.Equal(t, Controls{}, s.Controls())

	close(h.remote.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateDeleted, s.State())
}

func TestEditIsDebounced(t *testing.T) {
	h := newHarness(20 * time.Millisecond)
	s := NewRule(h.deps, 1, 3)

	for _, minute := range []int{1, 2, 3} {
		require.NoError(t, s.Edit(relay.AlarmRule{Trigger: relay.TimeOfDay{Hour: 7, Minute: minute}, Target: relay.StateOn}))
	}
	pending, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, 3, pending.Trigger.Minute)

	require.Eventually(t, func() bool {
		_, updates, _ := h.remote.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	_, updates, _ := h.remote.counts()
	assert.Equal(t, 1, updates)
	assert.Equal(t, 3, h.remote.updates[0].Trigger.Minute)
	assert.Equal(t, 3, h.remote.updates[0].ID)

	_, ok = s.Pending()
	assert.False(t, ok)
}

func TestEditFlushSendsImmediately(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 1, 3)

	require.NoError(t, s.Edit(relay.AlarmRule{Target: relay.StateOff}))
	assert.True(t, s.Flush())
	_, updates, _ := h.remote.counts()
	assert.Equal(t, 1, updates)
	assert.False(t, s.Flush(), "nothing left to flush")
}

func TestEditRejectedWhileConfirming(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 1, 3)
	require.NoError(t, s.RequestDelete())

	err := s.Edit(relay.AlarmRule{Target: relay.StateOn})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestEditHeldWhileConfirmingIsSentAfterCancel(t *testing.T) {
	h := newHarness(20 * time.Millisecond)
	s := NewRule(h.deps, 1, 5)

	require.NoError(t, s.Edit(relay.AlarmRule{Trigger: relay.TimeOfDay{Hour: 9}, Target: relay.StateOn}))
	require.NoError(t, s.RequestDelete())
	time.Sleep(60 * time.Millisecond)

	_, updates, _ := h.remote.counts()
	assert.Zero(t, updates, "nothing is sent while confirming")
	pending, ok := s.Pending()
	require.True(t, ok)
	assert.Equal(t, 9, pending.Trigger.Hour)

	require.NoError(t, s.Cancel())
	require.Eventually(t, func() bool {
		_, updates, _ := h.remote.counts()
		return updates == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 9, h.remote.updates[0].Trigger.Hour)
	_, ok = s.Pending()
	assert.False(t, ok)
}

func TestEditFailureIsReported(t *testing.T) {
	h := newHarness(time.Hour)
	h.remote.updateErr = errors.New("rejected")
	s := NewRule(h.deps, 1, 3)

	require.NoError(t, s.Edit(relay.AlarmRule{Target: relay.StateOn}))
	s.Flush()
	assert.Equal(t, 1, h.notifier.count())
}

func TestClosedSessionDropsEdits(t *testing.T) {
	h := newHarness(time.Hour)
	s := NewRule(h.deps, 1, 3)

	require.NoError(t, s.Edit(relay.AlarmRule{Target: relay.StateOn}))
	s.Close()
	assert.False(t, s.Flush())
	assert.ErrorIs(t, s.RequestDelete(), ErrClosed)
}

func TestDraftSubmit(t *testing.T) {
	h := newHarness(time.Hour)
	d := NewDraft(h.deps, 3)

	assert.Equal(t, relay.DefaultDraft(3), d.Value())

	id, err := d.Submit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 11, id)

	require.Len(t, h.remote.creates, 1)
	sent := h.remote.creates[0]
	assert.Equal(t, relay.StateOn, sent.Target)
	assert.Equal(t, relay.TimeOfDay{}, sent.Trigger)
	assert.False(t, sent.Weekdays.Any())
	assert.Equal(t, []int{3}, h.refresher.relays)
}

func TestDraftSubmitFailureKeepsValues(t *testing.T) {
	h := newHarness(time.Hour)
	h.remote.createErr = errors.New("full")
	d := NewDraft(h.deps, 3)

	value := relay.AlarmRule{Trigger: relay.TimeOfDay{Hour: 6}, Target: relay.StateOff, Weekdays: relay.WeekdaysOf(time.Friday)}
	require.NoError(t, d.Set(value))

	_, err := d.Submit(context.Background())
	assert.Error(t, err)

	got := d.Value()
	assert.Equal(t, relay.StateOff, got.Target)
	assert.True(t, got.Weekdays.On(time.Friday))
	assert.Equal(t, 3, got.RelayID)
	assert.Equal(t, 1, h.notifier.count())
	assert.Empty(t, h.refresher.relays)
}

func TestDraftSetValidates(t *testing.T) {
	d := NewDraft(Deps{Remote: &fakeRemote{}}, 1)
	assert.Error(t, d.Set(relay.AlarmRule{Target: "dim"}))

	require.NoError(t, d.Set(relay.AlarmRule{ID: 99, RelayID: 7, Target: relay.StateOff}))
	got := d.Value()
	assert.Zero(t, got.ID)
	assert.Equal(t, 1, got.RelayID)

	d.Reset()
	assert.Equal(t, relay.DefaultDraft(1), d.Value())
}
