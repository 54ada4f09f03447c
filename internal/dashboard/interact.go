package dashboard

import (
	"context"
	"fmt"

	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/session"
)

// Session lookups take the board lock; the session methods take it again
// themselves, so the lock is released before they are called.

func (b *Board) ruleSession(relayID, ruleID int) (*session.Rule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rr, ok := b.rules[relayID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	s, ok := rr.sessions[ruleID]
	if !ok {
		return nil, fmt.Errorf("%w: %d on relay %d", ErrUnknownRule, ruleID, relayID)
	}
	return s, nil
}

func (b *Board) draft(relayID int) (*session.Draft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rr, ok := b.rules[relayID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	return rr.draft, nil
}

// Rule returns the rule as the user currently sees it: the pending edit when
// there is one, the polled rule otherwise.
func (b *Board) Rule(relayID, ruleID int) (relay.AlarmRule, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rr, ok := b.rules[relayID]
	if !ok {
		return relay.AlarmRule{}, fmt.Errorf("%w: %d", ErrUnknownRelay, relayID)
	}
	n, ok := rr.nodes[ruleID]
	if !ok {
		return relay.AlarmRule{}, fmt.Errorf("%w: %d on relay %d", ErrUnknownRule, ruleID, relayID)
	}
	if pending, ok := rr.sessions[ruleID].PendingLocked(); ok {
		return pending, nil
	}
	return n.Entity, nil
}

// RequestDelete asks for delete confirmation.
func (b *Board) RequestDelete(relayID, ruleID int) error {
	s, err := b.ruleSession(relayID, ruleID)
	if err != nil {
		return err
	}
	return s.RequestDelete()
}

// CancelDelete leaves confirmation without a device call.
func (b *Board) CancelDelete(relayID, ruleID int) error {
	s, err := b.ruleSession(relayID, ruleID)
	if err != nil {
		return err
	}
	return s.Cancel()
}

// ConfirmDelete issues the delete call.
func (b *Board) ConfirmDelete(ctx context.Context, relayID, ruleID int) error {
	s, err := b.ruleSession(relayID, ruleID)
	if err != nil {
		return err
	}
	return s.Confirm(ctx)
}

// EditRule records an edit. With immediate the update call is sent now,
// otherwise after the debounce period.
func (b *Board) EditRule(relayID, ruleID int, rule relay.AlarmRule, immediate bool) error {
	s, err := b.ruleSession(relayID, ruleID)
	if err != nil {
		return err
	}
	if err := s.Edit(rule); err != nil {
		return err
	}
	if immediate {
		s.Flush()
	}
	return nil
}

// Draft returns the new-rule draft of a relay.
func (b *Board) Draft(relayID int) (relay.AlarmRule, error) {
	d, err := b.draft(relayID)
	if err != nil {
		return relay.AlarmRule{}, err
	}
	return d.Value(), nil
}

// SetDraft replaces the draft fields of a relay.
func (b *Board) SetDraft(relayID int, rule relay.AlarmRule) error {
	d, err := b.draft(relayID)
	if err != nil {
		return err
	}
	return d.Set(rule)
}

// SubmitDraft creates the drafted rule and returns the assigned id.
func (b *Board) SubmitDraft(ctx context.Context, relayID int) (int, error) {
	d, err := b.draft(relayID)
	if err != nil {
		return 0, err
	}
	return d.Submit(ctx)
}
