package dialog

import "github.com/sipdum/dum/handlearena"

// Arena and Handle are the generational-handle arena types (Design Notes
// §9). dialogset uses them for DialogSet and Dialog references; usages are
// not held through handles, each Dialog holds its usages directly. The
// implementation lives in handlearena, which has no SIP-domain knowledge
// of its own; aliasing it here gives every entity class its own distinctly
// typed arena (Arena[*Dialog] and Arena[*DialogSet] are different
// instantiations, so a Handle[*Dialog] can never be mistaken for a
// Handle[*DialogSet]).
type Arena[T any] = handlearena.Arena[T]

// Handle is a weak, generation-checked reference into an Arena[T].
type Handle[T any] = handlearena.Handle[T]

// NewArena returns an empty Arena[T].
func NewArena[T any]() *Arena[T] {
	return handlearena.New[T]()
}
