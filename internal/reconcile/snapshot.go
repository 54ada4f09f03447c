package reconcile

// Snapshot is an ordered, id-keyed mapping of entities.
type Snapshot[K comparable, E Entity[K, E]] struct {
	order []K
	index map[K]E
}

// NewSnapshot builds a snapshot in the order given. When an id repeats, the
// first occurrence wins.
func NewSnapshot[K comparable, E Entity[K, E]](items []E) *Snapshot[K, E] {
	s := &Snapshot[K, E]{
		order: make([]K, 0, len(items)),
		index: make(map[K]E, len(items)),
	}
	for _, item := range items {
		s.add(item)
	}
	return s
}

func (s *Snapshot[K, E]) add(item E) bool {
	k := item.Key()
	if _, dup := s.index[k]; dup {
		return false
	}
	s.order = append(s.order, k)
	s.index[k] = item
	return true
}

// Get returns the entity for id.
func (s *Snapshot[K, E]) Get(id K) (E, bool) {
	if s == nil {
		var zero E
		return zero, false
	}
	e, ok := s.index[id]
	return e, ok
}

// Has reports whether id is present.
func (s *Snapshot[K, E]) Has(id K) bool {
	_, ok := s.Get(id)
	return ok
}

// Len returns the number of entities.
func (s *Snapshot[K, E]) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

// Keys returns ids in order.
func (s *Snapshot[K, E]) Keys() []K {
	if s == nil {
		return nil
	}
	out := make([]K, len(s.order))
	copy(out, s.order)
	return out
}

// Items returns entities in order.
func (s *Snapshot[K, E]) Items() []E {
	if s == nil {
		return nil
	}
	out := make([]E, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.index[k])
	}
	return out
}
