// Package reconcile computes and applies the minimal create/update/remove
// delta between a previously rendered collection and a freshly polled one.
// Collections are flat and keyed by entity identity.
package reconcile

// Entity is anything reconcilable: it has a stable identity and field-wise
// equality.
type Entity[K comparable, E any] interface {
	// Key returns the identity used to match previous and current entities.
	Key() K

	// Equal reports whether every observable field matches.
	Equal(other E) bool
}

// Update replaces the entity rendered under ID.
type Update[K comparable, E any] struct {
	ID     K
	Entity E
}

// Ops is the delta between two collections.
type Ops[K comparable, E any] struct {
	Create []E
	Update []Update[K, E]
	Remove []K
}

// Empty reports whether applying ops would change nothing.
func (o Ops[K, E]) Empty() bool {
	return len(o.Create) == 0 && len(o.Update) == 0 && len(o.Remove) == 0
}

// Len returns the total number of operations.
func (o Ops[K, E]) Len() int {
	return len(o.Create) + len(o.Update) + len(o.Remove)
}

// View is the rendered side of a collection. Implementations must keep nodes
// for untouched ids exactly as they are.
type View[K comparable, E any] interface {
	Create(entity E)
	Update(id K, entity E)
	Remove(id K)
}
