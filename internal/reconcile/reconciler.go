package reconcile

// Collection owns the last known snapshot of one flat collection and the view
// it renders into. It is the only writer of that view.
//
// Collection is not safe for concurrent use; callers serialize access.
type Collection[K comparable, E Entity[K, E]] struct {
	view     View[K, E]
	snapshot *Snapshot[K, E]
}

// NewCollection creates an empty collection rendering into view.
func NewCollection[K comparable, E Entity[K, E]](view View[K, E]) *Collection[K, E] {
	return &Collection[K, E]{
		view:     view,
		snapshot: NewSnapshot[K, E](nil),
	}
}

// Reconcile diffs current against the last snapshot and applies the result:
// removes, then updates in place, then creates appended. The snapshot is then
// replaced with the rendered order.
func (c *Collection[K, E]) Reconcile(current []E) Ops[K, E] {
	ops := Diff(c.snapshot, current)
	if ops.Empty() {
		return ops
	}
	c.apply(ops)
	return ops
}

func (c *Collection[K, E]) apply(ops Ops[K, E]) {
	removed := make(map[K]struct{}, len(ops.Remove))
	for _, k := range ops.Remove {
		c.view.Remove(k)
		removed[k] = struct{}{}
	}

	updated := make(map[K]E, len(ops.Update))
	for _, u := range ops.Update {
		c.view.Update(u.ID, u.Entity)
		updated[u.ID] = u.Entity
	}

	for _, e := range ops.Create {
		c.view.Create(e)
	}

	next := &Snapshot[K, E]{
		order: make([]K, 0, c.snapshot.Len()-len(removed)+len(ops.Create)),
		index: make(map[K]E, c.snapshot.Len()-len(removed)+len(ops.Create)),
	}
	for _, k := range c.snapshot.order {
		if _, gone := removed[k]; gone {
			continue
		}
		e := c.snapshot.index[k]
		if u, ok := updated[k]; ok {
			e = u
		}
		next.add(e)
	}
	for _, e := range ops.Create {
		next.add(e)
	}
	c.snapshot = next
}

// Patch applies a single acknowledged change to an entity that is already
// rendered. It reports whether an update was applied; unknown ids and equal
// entities are ignored.
func (c *Collection[K, E]) Patch(entity E) bool {
	k := entity.Key()
	old, ok := c.snapshot.Get(k)
	if !ok || old.Equal(entity) {
		return false
	}
	c.apply(Ops[K, E]{Update: []Update[K, E]{{ID: k, Entity: entity}}})
	return true
}

// Restore seeds an empty collection from persisted state, rendering every
// entity as a create. It returns the applied ops.
func (c *Collection[K, E]) Restore(items []E) Ops[K, E] {
	return c.Reconcile(items)
}

// Snapshot returns the last applied snapshot.
func (c *Collection[K, E]) Snapshot() *Snapshot[K, E] {
	return c.snapshot
}

// Get returns the rendered entity for id.
func (c *Collection[K, E]) Get(id K) (E, bool) {
	return c.snapshot.Get(id)
}

// Items returns entities in render order.
func (c *Collection[K, E]) Items() []E {
	return c.snapshot.Items()
}
