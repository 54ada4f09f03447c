package session

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// Draft is the unsaved new-rule row of one relay. It is always rendered after
// the relay's last real rule.
type Draft struct {
	deps    Deps
	relayID int

	value      relay.AlarmRule
	submitting bool
}

// NewDraft creates a draft holding relay.DefaultDraft.
func NewDraft(deps Deps, relayID int) *Draft {
	return &Draft{
		deps:    deps.withDefaults(),
		relayID: relayID,
		value:   relay.DefaultDraft(relayID),
	}
}

// Value returns the current draft.
func (d *Draft) Value() relay.AlarmRule {
	d.deps.Locker.Lock()
	defer d.deps.Locker.Unlock()
	return d.value
}

// ValueLocked is Value for callers already holding the shared locker.
func (d *Draft) ValueLocked() relay.AlarmRule {
	return d.value
}

// SubmittingLocked reports whether a create call is outstanding. The caller
// holds the shared locker.
func (d *Draft) SubmittingLocked() bool {
	return d.submitting
}

// Set replaces the draft fields. The id is cleared and the relay is fixed.
func (d *Draft) Set(rule relay.AlarmRule) error {
	rule.ID = 0
	rule.RelayID = d.relayID
	if err := rule.Validate(); err != nil {
		return err
	}

	d.deps.Locker.Lock()
	defer d.deps.Locker.Unlock()
	if d.submitting {
		return ErrBusy
	}
	d.value = rule
	return nil
}

// Reset restores the defaults.
func (d *Draft) Reset() {
	d.deps.Locker.Lock()
	defer d.deps.Locker.Unlock()
	d.value = relay.DefaultDraft(d.relayID)
}

// Submit issues the create call. On success the draft is reset and the relay's
// rules are refreshed so the new rule appears with its assigned id. On failure
// the draft keeps its values.
func (d *Draft) Submit(ctx context.Context) (int, error) {
	d.deps.Locker.Lock()
	if d.submitting {
		d.deps.Locker.Unlock()
		return 0, ErrBusy
	}
	rule := d.value
	d.submitting = true
	d.deps.Locker.Unlock()

	id, err := d.deps.Remote.CreateRule(ctx, d.relayID, rule)

	d.deps.Locker.Lock()
	d.submitting = false
	if err == nil {
		d.value = relay.DefaultDraft(d.relayID)
	}
	d.deps.Locker.Unlock()

	if err != nil {
		d.deps.Notifier.Notify(fmt.Sprintf("create rule on relay %d", d.relayID), err)
		return 0, err
	}

	log.Info().Int("relay", d.relayID).Int("rule", id).Msg("Rule created")
	if d.deps.Refresher != nil {
		if rerr := d.deps.Refresher.RefreshRules(ctx, d.relayID); rerr != nil {
			log.Warn().Err(rerr).Int("relay", d.relayID).Msg("Refresh after create failed")
		}
	}
	return id, nil
}
