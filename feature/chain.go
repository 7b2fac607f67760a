// Package feature implements the per-transaction feature chain spec.md
// §4.3 describes: an ordered pipeline of stateful interceptors that runs
// before a request or response reaches dialog dispatch. Each Feature
// reports EventTaken/ChainDone flags; the chain advances a cursor and
// tears itself down once ChainDone is set, matching the teacher's
// general request-pipeline shape (teacher_dialog/headers.go's ordered
// ProcessRequest stages) generalized into a reusable, stateful chain
// rather than a fixed method sequence.
package feature

import "github.com/emiago/sipgo/sip"

// Flags is the result a Feature reports after processing one event.
type Flags uint8

const (
	// EventTaken means the event's ownership transferred to the chain
	// (or to a message it created) and must not be forwarded further.
	EventTaken Flags = 1 << iota
	// ChainDone means the chain is finished and should be torn down
	// after this call returns, regardless of EventTaken.
	ChainDone
)

// Has reports whether f includes flag.
func (f Flags) Has(flag Flags) bool { return f&flag != 0 }

// Event is the unit a Feature processes: either a request or a response
// in flight through the chain, direction-agnostic.
type Event struct {
	Request  *sip.Request
	Response *sip.Response
}

// Feature is one stage of a FeatureChain.
type Feature interface {
	// Name identifies the feature for logging and ordering diagnostics.
	Name() string
	// Process runs this stage against ev, returning flags describing
	// whether the event was consumed and whether the chain is done.
	Process(ev *Event) Flags
}

// Chain is an ordered, cursor-advancing pipeline of Features for one
// (direction, transaction-id) pair. At most one Chain exists per
// transaction per direction at any time (spec.md §8 linearity property).
type Chain struct {
	features []Feature
	cursor   int
	done     bool
}

// NewChain builds a chain from features in the given order. Use
// AddIncomingFeature/AddOutgoingFeature on a Set to build feature lists that
// respect the ServerAuthManager-first / EncryptionManager-last ordering
// contract before constructing the Chain itself.
func NewChain(features ...Feature) *Chain {
	return &Chain{features: features}
}

// Done reports whether the chain has finished and should be removed from
// its direction's map.
func (c *Chain) Done() bool { return c.done }

// Process runs ev through the chain starting at the current cursor,
// advancing past features that consume-and-continue, and stops at the
// first feature that sets EventTaken or ChainDone.
func (c *Chain) Process(ev *Event) Flags {
	var total Flags
	for c.cursor < len(c.features) {
		f := c.features[c.cursor]
		flags := f.Process(ev)
		total |= flags
		if flags.Has(ChainDone) {
			c.done = true
			return total
		}
		if flags.Has(EventTaken) {
			return total
		}
		c.cursor++
	}
	c.done = true
	return total
}

// Set builds ordered incoming/outgoing feature lists honoring spec.md
// §4.3's ordering contract: server auth is always first incoming;
// EncryptionManager is always last outgoing; AddIncomingFeature appends,
// AddOutgoingFeature prepends ahead of encryption.
type Set struct {
	incoming  []Feature
	outgoing  []Feature
	encryptor Feature
}

// NewSet builds an empty feature set. If auth is non-nil it is installed
// as the permanent first incoming feature; if encryptor is non-nil it is
// installed as the permanent last outgoing feature.
func NewSet(auth Feature, encryptor Feature) *Set {
	s := &Set{encryptor: encryptor}
	if auth != nil {
		s.incoming = append(s.incoming, auth)
	}
	return s
}

// AddIncomingFeature appends f to the incoming chain, after any
// permanently-first auth feature.
func (s *Set) AddIncomingFeature(f Feature) {
	s.incoming = append(s.incoming, f)
}

// AddOutgoingFeature prepends f to the outgoing chain, so the most
// recently added feature runs first; EncryptionManager, if installed,
// stays at the tail (see OutgoingChain).
func (s *Set) AddOutgoingFeature(f Feature) {
	s.outgoing = append([]Feature{f}, s.outgoing...)
}

// IncomingChain builds a fresh Chain for one incoming transaction.
func (s *Set) IncomingChain() *Chain {
	return NewChain(append([]Feature(nil), s.incoming...)...)
}

// OutgoingChain builds a fresh Chain for one outgoing transaction, with
// EncryptionManager (if installed) placed last regardless of insertion
// order.
func (s *Set) OutgoingChain() *Chain {
	fs := append([]Feature(nil), s.outgoing...)
	if s.encryptor != nil {
		fs = append(fs, s.encryptor)
	}
	return NewChain(fs...)
}
