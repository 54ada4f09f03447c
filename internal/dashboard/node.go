package dashboard

import (
	"strconv"

	"github.com/dokzlo13/relayboard/internal/eventbus"
	"github.com/dokzlo13/relayboard/internal/reconcile"
	"github.com/dokzlo13/relayboard/internal/relay"
	"github.com/dokzlo13/relayboard/internal/session"
)

// Handle is the opaque identity of a rendered node. It never changes while
// the node is rendered and is never reused.
type Handle uint64

func (h Handle) String() string {
	return "n" + strconv.FormatUint(uint64(h), 10)
}

// Node is one rendered entity. Updates mutate it in place.
type Node[E any] struct {
	Handle   Handle
	Entity   E
	Revision uint64
}

// relayRules is the rule collection of one relay together with its sessions.
type relayRules struct {
	coll     *reconcile.Collection[int, relay.AlarmRule]
	nodes    map[int]*Node[relay.AlarmRule]
	sessions map[int]*session.Rule
	draft    *session.Draft
	loaded   bool

	// gen counts acknowledged rule mutations of this relay.
	gen uint64
}

// relayView renders relay ops into the board. Callers hold b.mu.
type relayView struct {
	b *Board
}

func (v relayView) Create(r relay.Relay) {
	b := v.b
	b.relayNodes[r.ID] = &Node[relay.Relay]{Handle: b.handle(), Entity: r, Revision: 1}
	rr := &relayRules{
		nodes:    make(map[int]*Node[relay.AlarmRule]),
		sessions: make(map[int]*session.Rule),
		draft:    session.NewDraft(b.deps, r.ID),
	}
	rr.coll = reconcile.NewCollection[int, relay.AlarmRule](ruleView{b: b, relayID: r.ID, rules: rr})
	b.rules[r.ID] = rr
	b.publish(eventbus.Event{Type: eventbus.EventRelayCreated, RelayID: r.ID, Data: eventbus.RelayData(r.Name, string(r.State))})
}

func (v relayView) Update(id int, r relay.Relay) {
	b := v.b
	n, ok := b.relayNodes[id]
	if !ok {
		return
	}
	n.Entity = r
	n.Revision++
	b.publish(eventbus.Event{Type: eventbus.EventRelayUpdated, RelayID: id, Data: eventbus.RelayData(r.Name, string(r.State))})
}

func (v relayView) Remove(id int) {
	b := v.b
	delete(b.relayNodes, id)
	if rr, ok := b.rules[id]; ok {
		for _, s := range rr.sessions {
			s.CloseLocked()
		}
		delete(b.rules, id)
	}
	delete(b.pendingNames, id)
	b.publish(eventbus.Event{Type: eventbus.EventRelayRemoved, RelayID: id})
}

// ruleView renders rule ops of one relay. Callers hold b.mu.
type ruleView struct {
	b       *Board
	relayID int
	rules   *relayRules
}

func (v ruleView) Create(r relay.AlarmRule) {
	v.rules.nodes[r.ID] = &Node[relay.AlarmRule]{Handle: v.b.handle(), Entity: r, Revision: 1}
	v.rules.sessions[r.ID] = session.NewRule(v.b.deps, v.relayID, r.ID)
	v.b.publish(eventbus.Event{Type: eventbus.EventRuleCreated, RelayID: v.relayID, RuleID: r.ID})
}

func (v ruleView) Update(id int, r relay.AlarmRule) {
	n, ok := v.rules.nodes[id]
	if !ok {
		return
	}
	n.Entity = r
	n.Revision++
	v.b.publish(eventbus.Event{Type: eventbus.EventRuleUpdated, RelayID: v.relayID, RuleID: id})
}

func (v ruleView) Remove(id int) {
	delete(v.rules.nodes, id)
	if s, ok := v.rules.sessions[id]; ok {
		s.CloseLocked()
		delete(v.rules.sessions, id)
	}
	v.b.publish(eventbus.Event{Type: eventbus.EventRuleRemoved, RelayID: v.relayID, RuleID: id})
}
