package dashboard

import (
	"sort"
	"time"

	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/session"
)

// View is a rendered copy of the board.
type View struct {
	SystemName     string      `json:"systemName"`
	SettingsLoaded bool        `json:"settingsLoaded"`
	Relays         []RelayView `json:"relays"`
	Status         Status      `json:"status"`
	Notices        []Notice    `json:"notices"`
	Clock          *ClockView  `json:"clock,omitempty"`
	Stale          bool        `json:"stale"`
	Ready          bool        `json:"ready"`
	LastRefresh    time.Time   `json:"lastRefresh,omitempty"`
}

// RelayView is one relay row.
type RelayView struct {
	Handle      Handle      `json:"handle"`
	ID          int         `json:"id"`
	Name        string      `json:"name"`
	PendingName string      `json:"pendingName,omitempty"`
	State       relay.State `json:"state"`
	On          bool        `json:"on"`
	Revision    uint64      `json:"revision"`
	RulesLoaded bool        `json:"rulesLoaded"`
	Rules       []RuleView  `json:"rules"`
	Draft       DraftView   `json:"draft"`
}

// RuleFields are the editable fields of a rule.
type RuleFields struct {
	Time     string         `json:"time"`
	Target   relay.State    `json:"target"`
	Weekdays relay.Weekdays `json:"weekdays"`
	Days     string         `json:"days"`
}

// RuleView is one rule row.
type RuleView struct {
	Handle   Handle           `json:"handle"`
	ID       int              `json:"id"`
	Revision uint64           `json:"revision"`
	Session  string           `json:"session"`
	Controls session.Controls `json:"controls"`
	Pending  *RuleFields      `json:"pending,omitempty"`
	NextFire *time.Time       `json:"nextFire,omitempty"`
	RuleFields
}

// DraftView is the new-rule row rendered after the last rule.
type DraftView struct {
	RuleFields
	Submitting bool `json:"submitting"`
}

// ClockView is the last fetched device clock.
type ClockView struct {
	Date      string    `json:"date"`
	Time      string    `json:"time"`
	FetchedAt time.Time `json:"fetchedAt"`
}

func fieldsOf(r relay.AlarmRule) RuleFields {
	return RuleFields{
		Time:     r.Trigger.String(),
		Target:   r.Target,
		Weekdays: r.Weekdays,
		Days:     r.Weekdays.String(),
	}
}

// deviceNowLocked estimates the device wall clock from the last fetched clock
// and the time elapsed since. Without a clock it is the host time.
func (b *Board) deviceNowLocked() time.Time {
	now := b.now()
	if b.clock == nil {
		return now
	}
	at, ok := b.clock.In(now.Location())
	if !ok {
		return now
	}
	return at.Add(now.Sub(b.clockAt))
}

// Snapshot returns a copy of the rendered board in render order.
func (b *Board) Snapshot() View {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.deviceNowLocked()
	draftSettings := b.settingsDraftLocked()
	v := View{
		SystemName:     draftSettings.SystemName,
		SettingsLoaded: b.settingsLoaded,
		Relays:         make([]RelayView, 0, b.relays.Snapshot().Len()),
		Status:         b.status,
		Notices:        append([]Notice(nil), b.notices...),
		Stale:          b.stale,
		Ready:          b.ready,
		LastRefresh:    b.lastRefresh,
	}
	if b.clock != nil {
		v.Clock = &ClockView{Date: b.clock.Date(), Time: b.clock.Clock(), FetchedAt: b.clockAt}
	}

	for _, r := range b.relays.Items() {
		n := b.relayNodes[r.ID]
		rv := RelayView{
			Handle:      n.Handle,
			ID:          r.ID,
			Name:        r.Name,
			PendingName: b.pendingNames[r.ID],
			State:       r.State,
			On:          r.State.Bool(),
			Revision:    n.Revision,
		}

		rr := b.rules[r.ID]
		rv.RulesLoaded = rr.loaded
		rv.Rules = make([]RuleView, 0, len(rr.nodes))
		for _, rule := range rr.coll.Items() {
			rn := rr.nodes[rule.ID]
			s := rr.sessions[rule.ID]
			view := RuleView{
				Handle:     rn.Handle,
				ID:         rule.ID,
				Revision:   rn.Revision,
				Session:    s.StateLocked().String(),
				Controls:   s.ControlsLocked(),
				RuleFields: fieldsOf(rule),
			}
			if pending, ok := s.PendingLocked(); ok {
				f := fieldsOf(pending)
				view.Pending = &f
			}
			if next, ok := rule.NextFire(now); ok {
				view.NextFire = &next
			}
			rv.Rules = append(rv.Rules, view)
		}
		rv.Draft = DraftView{RuleFields: fieldsOf(rr.draft.ValueLocked()), Submitting: rr.draft.SubmittingLocked()}

		v.Relays = append(v.Relays, rv)
	}
	return v
}

// RelayIDs returns the rendered relay ids in ascending order.
func (b *Board) RelayIDs() []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := b.relays.Snapshot().Keys()
	sort.Ints(ids)
	return ids
}
