package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// RuleRemote issues the mutating rule calls.
type RuleRemote interface {
	CreateRule(ctx context.Context, relayID int, rule relay.AlarmRule) (int, error)
	UpdateRule(ctx context.Context, relayID, ruleID int, rule relay.AlarmRule) error
	DeleteRule(ctx context.Context, relayID, ruleID int) error
}

// Refresher reloads one relay's rule collection.
type Refresher interface {
	RefreshRules(ctx context.Context, relayID int) error
}

// Notifier reports user-visible failures.
type Notifier interface {
	Notify(op string, err error)
}

// RuleKey identifies a rule. Rule ids are only unique within a relay.
type RuleKey struct {
	RelayID int
	RuleID  int
}

func (k RuleKey) String() string {
	return fmt.Sprintf("%d/%d", k.RelayID, k.RuleID)
}

// Deps are the collaborators shared by every session of a board.
type Deps struct {
	Remote    RuleRemote
	Refresher Refresher
	Notifier  Notifier

	// Locker serializes transitions with whatever else owns the view. When nil
	// each session uses its own mutex.
	Locker sync.Locker

	// Edits is the debouncer used for field edits. When nil each session gets
	// one with DefaultDebounce.
	Edits *Debouncer[RuleKey]

	// Context bounds calls made from debounce timers.
	Context context.Context
}

func (d Deps) withDefaults() Deps {
	if d.Locker == nil {
		d.Locker = &sync.Mutex{}
	}
	if d.Edits == nil {
		d.Edits = NewDebouncer[RuleKey](DefaultDebounce)
	}
	if d.Context == nil {
		d.Context = context.Background()
	}
	if d.Notifier == nil {
		d.Notifier = logNotifier{}
	}
	return d
}

type logNotifier struct{}

func (logNotifier) Notify(op string, err error) {
	log.Warn().Err(err).Str("op", op).Msg("Session call failed")
}

// Rule is the interaction session attached to one rendered rule.
type Rule struct {
	deps Deps
	key  RuleKey

	state    State
	inflight bool
	pending  *relay.AlarmRule
	closed   bool
}

// NewRule creates a session in the Viewing state.
func NewRule(deps Deps, relayID, ruleID int) *Rule {
	return &Rule{
		deps: deps.withDefaults(),
		key:  RuleKey{RelayID: relayID, RuleID: ruleID},
	}
}

// Key returns the rule this session is attached to.
func (s *Rule) Key() RuleKey {
	return s.key
}

// State returns the current state.
func (s *Rule) State() State {
	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	return s.state
}

// Controls returns the controls offered in the current state.
func (s *Rule) Controls() Controls {
	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	return s.controlsLocked()
}

// ControlsLocked is Controls for callers already holding the shared locker.
func (s *Rule) ControlsLocked() Controls {
	return s.controlsLocked()
}

func (s *Rule) controlsLocked() Controls {
	c := ControlsFor(s.state)
	if s.inflight {
		c.Confirm = false
		c.Cancel = false
	}
	return c
}

// StateLocked is State for callers already holding the shared locker.
func (s *Rule) StateLocked() State {
	return s.state
}

// PendingLocked is Pending for callers already holding the shared locker.
func (s *Rule) PendingLocked() (relay.AlarmRule, bool) {
	if s.pending == nil {
		return relay.AlarmRule{}, false
	}
	return *s.pending, true
}

// Pending returns the edit that has not been acknowledged yet.
func (s *Rule) Pending() (relay.AlarmRule, bool) {
	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	return s.PendingLocked()
}

func (s *Rule) apply(e Event) error {
	if s.closed {
		return ErrClosed
	}
	next, err := Transition(s.state, e)
	if err != nil {
		return err
	}
	log.Debug().Stringer("rule", s.key).Stringer("from", s.state).Stringer("to", next).Msg("Rule session transition")
	s.state = next
	return nil
}

// RequestDelete moves to ConfirmingDelete.
func (s *Rule) RequestDelete() error {
	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	return s.apply(EventDelete)
}

// Cancel returns to Viewing without any remote call. An edit held back while
// confirming is scheduled again.
func (s *Rule) Cancel() error {
	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	if s.inflight {
		return ErrBusy
	}
	if err := s.apply(EventCancel); err != nil {
		return err
	}
	if s.pending != nil {
		s.deps.Edits.Schedule(s.key, s.sendEdit)
	}
	return nil
}

// Confirm issues the delete. On success the session is Deleted and the relay's
// rules are refreshed; on failure it returns to Viewing and the failure is
// reported.
func (s *Rule) Confirm(ctx context.Context) error {
	s.deps.Locker.Lock()
	if s.closed {
		s.deps.Locker.Unlock()
		return ErrClosed
	}
	if s.inflight {
		s.deps.Locker.Unlock()
		return ErrBusy
	}
	if s.state != StateConfirmingDelete {
		err := fmt.Errorf("%w: %s on %s", ErrInvalidTransition, EventConfirm, s.state)
		s.deps.Locker.Unlock()
		return err
	}
	s.inflight = true
	s.pending = nil
	s.deps.Locker.Unlock()

	s.deps.Edits.Cancel(s.key)

	err := s.deps.Remote.DeleteRule(ctx, s.key.RelayID, s.key.RuleID)

	s.deps.Locker.Lock()
	s.inflight = false
	if err != nil {
		_ = s.apply(EventDeleteFailed)
		s.deps.Locker.Unlock()
		s.deps.Notifier.Notify("delete rule "+s.key.String(), err)
		return err
	}
	_ = s.apply(EventConfirm)
	s.deps.Locker.Unlock()

	if s.deps.Refresher != nil {
		if rerr := s.deps.Refresher.RefreshRules(ctx, s.key.RelayID); rerr != nil {
			log.Warn().Err(rerr).Stringer("rule", s.key).Msg("Refresh after delete failed")
		}
	}
	return nil
}

// Edit records a field edit and schedules a debounced update call. Edits are
// only accepted while viewing.
func (s *Rule) Edit(rule relay.AlarmRule) error {
	rule.ID = s.key.RuleID
	rule.RelayID = s.key.RelayID
	if err := rule.Validate(); err != nil {
		return err
	}

	s.deps.Locker.Lock()
	defer s.deps.Locker.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.state != StateViewing {
		return fmt.Errorf("%w: edit on %s", ErrInvalidTransition, s.state)
	}
	s.pending = &rule
	s.deps.Edits.Schedule(s.key, s.sendEdit)
	return nil
}

// Flush sends a pending edit now.
func (s *Rule) Flush() bool {
	return s.deps.Edits.Flush(s.key)
}

func (s *Rule) sendEdit() {
	s.deps.Locker.Lock()
	if s.closed || s.pending == nil || s.state != StateViewing {
		s.deps.Locker.Unlock()
		return
	}
	rule := *s.pending
	s.deps.Locker.Unlock()

	err := s.deps.Remote.UpdateRule(s.deps.Context, s.key.RelayID, s.key.RuleID, rule)

	s.deps.Locker.Lock()
	if s.pending != nil && *s.pending == rule {
		s.pending = nil
	}
	s.deps.Locker.Unlock()

	if err != nil {
		s.deps.Notifier.Notify("update rule "+s.key.String(), err)
		return
	}
	log.Debug().Stringer("rule", s.key).Msg("Rule update acknowledged")
}

// Close detaches the session from its rule and drops pending edits.
func (s *Rule) Close() {
	s.deps.Locker.Lock()
	s.closed = true
	s.pending = nil
	s.deps.Locker.Unlock()
	s.deps.Edits.Cancel(s.key)
}

// CloseLocked is Close for callers already holding the shared locker.
func (s *Rule) CloseLocked() {
	s.closed = true
	s.pending = nil
	s.deps.Edits.Cancel(s.key)
}
