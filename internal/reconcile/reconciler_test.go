package reconcile

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dokzlo13/relayboard/internal/relay"
)

// recordingView renders into an ordered list and logs every call.
type recordingView struct {
	order []int
	nodes map[int]relay.Relay
	calls []string
}

func newRecordingView() *recordingView {
	return &recordingView{nodes: make(map[int]relay.Relay)}
}

func (v *recordingView) Create(r relay.Relay) {
	v.order = append(v.order, r.ID)
	v.nodes[r.ID] = r
	v.calls = append(v.calls, fmt.Sprintf("create %d", r.ID))
}

func (v *recordingView) Update(id int, r relay.Relay) {
	v.nodes[id] = r
	v.calls = append(v.calls, fmt.Sprintf("update %d", id))
}

func (v *recordingView) Remove(id int) {
	for i, k := range v.order {
		if k == id {
			v.order = append(v.order[:i], v.order[i+1:]...)
			break
		}
	}
	delete(v.nodes, id)
	v.calls = append(v.calls, fmt.Sprintf("remove %d", id))
}

func relays(ids ...int) []relay.Relay {
	out := make([]relay.Relay, 0, len(ids))
	for _, id := range ids {
		out = append(out, relay.Relay{ID: id, Name: fmt.Sprintf("R%d", id), State: relay.StateOff})
	}
	return out
}

func TestScenarioStateChangeIsSingleUpdate(t *testing.T) {
	prev := NewSnapshot[int, relay.Relay]([]relay.Relay{{ID: 1, Name: "Pump", State: relay.StateOn}})
	ops := Diff(prev, []relay.Relay{{ID: 1, Name: "Pump", State: relay.StateOff}})

	assert.Empty(t, ops.Create)
	assert.Empty(t, ops.Remove)
	require.Len(t, ops.Update, 1)
	assert.Equal(t, 1, ops.Update[0].ID)
	assert.Equal(t, relay.StateOff, ops.Update[0].Entity.State)
}

func TestScenarioMissingEntityIsRemoved(t *testing.T) {
	prev := NewSnapshot[int, relay.Relay](relays(1, 2))
	ops := Diff(prev, relays(2))

	assert.Equal(t, []int{1}, ops.Remove)
	assert.Empty(t, ops.Create)
	assert.Empty(t, ops.Update)
}

func TestDiffCreatesInCurrentOrder(t *testing.T) {
	ops := Diff(NewSnapshot[int, relay.Relay](relays(1)), relays(4, 1, 3, 2))

	ids := make([]int, 0, len(ops.Create))
	for _, e := range ops.Create {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []int{4, 3, 2}, ids)
}

func TestDiffNilPrevious(t *testing.T) {
	ops := Diff[int, relay.Relay](nil, relays(1, 2))
	assert.Len(t, ops.Create, 2)
	assert.Empty(t, ops.Remove)
}

func TestDuplicateIDsFirstWins(t *testing.T) {
	items := []relay.Relay{{ID: 1, Name: "first"}, {ID: 1, Name: "second"}, {ID: 2, Name: "other"}}

	s := NewSnapshot[int, relay.Relay](items)
	assert.Equal(t, 2, s.Len())
	got, _ := s.Get(1)
	assert.Equal(t, "first", got.Name)

	ops := Diff[int, relay.Relay](nil, items)
	require.Len(t, ops.Create, 2)
	assert.Equal(t, "first", ops.Create[0].Name)
}

func TestReconcileIsIdempotent(t *testing.T) {
	c := NewCollection[int, relay.Relay](newRecordingView())
	c.Reconcile(relays(1, 2, 3))

	current := relays(3, 1, 5)
	current[0].State = relay.StateOn
	first := c.Reconcile(current)
	assert.False(t, first.Empty())

	second := c.Reconcile(current)
	assert.True(t, second.Empty())
	assert.Zero(t, second.Len())
}

func TestDiffIsOrderIndependent(t *testing.T) {
	prev := NewSnapshot[int, relay.Relay](relays(1, 2, 3, 4))
	current := relays(2, 3, 5, 6, 7)
	current[0].Name = "renamed"

	base := Diff(prev, current)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		shuffled := append([]relay.Relay(nil), current...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		ops := Diff(prev, shuffled)
		assert.ElementsMatch(t, base.Create, ops.Create)
		assert.ElementsMatch(t, base.Update, ops.Update)
		assert.ElementsMatch(t, base.Remove, ops.Remove)
	}
}

func TestUnrelatedEntitiesProduceNoUpdates(t *testing.T) {
	prev := NewSnapshot[int, relay.Relay](relays(1, 2, 3))
	current := relays(1, 2, 3)
	current[1].State = relay.StateOn

	ops := Diff(prev, current)
	require.Len(t, ops.Update, 1)
	assert.Equal(t, 2, ops.Update[0].ID)
}

func TestCollectionApplyOrder(t *testing.T) {
	view := newRecordingView()
	c := NewCollection[int, relay.Relay](view)
	c.Reconcile(relays(1, 2, 3))
	view.calls = nil

	current := relays(6, 3, 2)
	current[1].Name = "three"
	c.Reconcile(current)

	assert.Equal(t, []string{"remove 1", "update 3", "create 6"}, view.calls)
	assert.Equal(t, []int{2, 3, 6}, view.order, "existing nodes keep their position")
	assert.Equal(t, []int{2, 3, 6}, c.Snapshot().Keys())
	assert.Equal(t, "three", view.nodes[3].Name)
}

func TestCollectionNoopLeavesViewUntouched(t *testing.T) {
	view := newRecordingView()
	c := NewCollection[int, relay.Relay](view)
	c.Reconcile(relays(1, 2))
	view.calls = nil

	c.Reconcile(relays(2, 1))
	assert.Empty(t, view.calls)
	assert.Equal(t, []int{1, 2}, c.Snapshot().Keys())
}

func TestCollectionPatch(t *testing.T) {
	view := newRecordingView()
	c := NewCollection[int, relay.Relay](view)
	c.Reconcile(relays(1, 2))
	view.calls = nil

	on := relay.Relay{ID: 2, Name: "R2", State: relay.StateOn}
	assert.True(t, c.Patch(on))
	assert.False(t, c.Patch(on), "equal patch is a no-op")
	assert.False(t, c.Patch(relay.Relay{ID: 9}), "unknown id is ignored")

	assert.Equal(t, []string{"update 2"}, view.calls)
	got, _ := c.Get(2)
	assert.Equal(t, relay.StateOn, got.State)

	ops := c.Reconcile([]relay.Relay{relays(1)[0], on})
	assert.True(t, ops.Empty(), "next poll agreeing with the patch changes nothing")
}

func TestCollectionRestore(t *testing.T) {
	view := newRecordingView()
	c := NewCollection[int, relay.Relay](view)

	ops := c.Restore(relays(3, 1))
	assert.Len(t, ops.Create, 2)
	assert.Equal(t, []int{3, 1}, view.order)
}

func TestRulesScopedPerRelay(t *testing.T) {
	rule := func(id, relayID int) relay.AlarmRule {
		return relay.AlarmRule{ID: id, RelayID: relayID, Target: relay.StateOn}
	}

	// Each relay owns its own collection so identical rule ids never collide.
	a := NewCollection[int, relay.AlarmRule](noopView[int, relay.AlarmRule]{})
	b := NewCollection[int, relay.AlarmRule](noopView[int, relay.AlarmRule]{})
	a.Reconcile([]relay.AlarmRule{rule(1, 1), rule(2, 1)})
	b.Reconcile([]relay.AlarmRule{rule(1, 2)})

	ops := a.Reconcile([]relay.AlarmRule{rule(1, 1)})
	assert.Equal(t, []int{2}, ops.Remove)
	assert.Equal(t, 1, b.Snapshot().Len())

	keys := a.Snapshot().Keys()
	sort.Ints(keys)
	assert.Equal(t, []int{1}, keys)
}

type noopView[K comparable, E any] struct{}

func (noopView[K, E]) Create(E)    {}
func (noopView[K, E]) Update(K, E) {}
func (noopView[K, E]) Remove(K)    {}
