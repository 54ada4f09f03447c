package reconcile

// Diff matches current against previous by identity. Creates follow the order
// seen in current, removes follow previous order, and entities whose fields
// are all equal produce no operation. Duplicate ids in current are ignored
// after their first occurrence.
func Diff[K comparable, E Entity[K, E]](previous *Snapshot[K, E], current []E) Ops[K, E] {
	var ops Ops[K, E]
	seen := make(map[K]struct{}, len(current))

	for _, e := range current {
		k := e.Key()
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}

		old, ok := previous.Get(k)
		switch {
		case !ok:
			ops.Create = append(ops.Create, e)
		case !old.Equal(e):
			ops.Update = append(ops.Update, Update[K, E]{ID: k, Entity: e})
		}
	}

	for _, k := range previous.Keys() {
		if _, ok := seen[k]; !ok {
			ops.Remove = append(ops.Remove, k)
		}
	}
	return ops
}
