// Package dialogset implements DialogSet and DialogSetMap, spec.md §3's
// container for the dialogs sharing a single local tag, call-id and
// method class. Grounded on the lookup shape of
// teacher_dialog/manager.go's DialogManager (dialogs keyed by id, plus a
// call-id index), storage is backed by dialog.Arena[T]: each DialogSet
// holds its Dialogs in an Arena[*dialog.Dialog] indexed by remote tag,
// and Map holds its DialogSets in an Arena[*DialogSet] indexed by
// DialogSetId, so both classes get the generational-handle protection
// against stale references that Design Notes §9 calls for. Like
// handlearena, neither type carries its own locking beyond the arena's
// slot bookkeeping mutex: both are mutated only on the single dispatcher
// goroutine (spec.md §5).
package dialogset

import (
	"github.com/sipdum/dum/dialog"
)

// DialogSet owns zero or more Dialogs that share a DialogSetId and a
// reference to the user profile the set was created under (spec.md §3).
// It holds no Creator and no pager-message usage of its own.
type DialogSet struct {
	id dialog.SetId

	profile any // *profile.UserProfile; kept as any to avoid an import cycle with profile

	arena   *dialog.Arena[*dialog.Dialog]
	dialogs map[string]dialog.Handle[*dialog.Dialog] // keyed by Id.RemoteTag ("" until established)

	isDestroying bool
}

// New builds an empty DialogSet for the given id.
func New(id dialog.SetId, userProfile any) *DialogSet {
	return &DialogSet{
		id:      id,
		profile: userProfile,
		arena:   dialog.NewArena[*dialog.Dialog](),
		dialogs: make(map[string]dialog.Handle[*dialog.Dialog]),
	}
}

// Id returns the DialogSetId this set was created under.
func (s *DialogSet) Id() dialog.SetId { return s.id }

// Profile returns the user profile this set was created under.
func (s *DialogSet) Profile() any { return s.profile }

// IsDestroying reports whether this set has begun its teardown sequence.
func (s *DialogSet) IsDestroying() bool { return s.isDestroying }

// BeginDestroying marks this set as tearing down; no new dialogs should
// be added to it after this point.
func (s *DialogSet) BeginDestroying() { s.isDestroying = true }

// AddDialog inserts a dialog into the set, keyed by its remote tag. A
// forking INVITE produces several early dialogs sharing a DialogSetId
// but distinguished by remote tag; at most one survives to Confirmed
// (spec.md §4.4's fork-winner rule is enforced by the dispatcher, not
// here). Re-adding under a remote tag already present replaces the prior
// handle, invalidating it.
func (s *DialogSet) AddDialog(d *dialog.Dialog) {
	tag := d.Id().RemoteTag
	if old, ok := s.dialogs[tag]; ok {
		s.arena.Remove(old)
	}
	s.dialogs[tag] = s.arena.Insert(d)
}

// Dialog looks up a dialog by remote tag ("" for the not-yet-established
// placeholder, if any).
func (s *DialogSet) Dialog(remoteTag string) (*dialog.Dialog, bool) {
	h, ok := s.dialogs[remoteTag]
	if !ok {
		return nil, false
	}
	return s.arena.Resolve(h)
}

// RemoveDialog drops a dialog from the set by remote tag, invalidating
// its handle.
func (s *DialogSet) RemoveDialog(remoteTag string) {
	if h, ok := s.dialogs[remoteTag]; ok {
		s.arena.Remove(h)
		delete(s.dialogs, remoteTag)
	}
}

// Dialogs returns every dialog currently owned by this set, in no
// particular order.
func (s *DialogSet) Dialogs() []*dialog.Dialog {
	out := make([]*dialog.Dialog, 0, len(s.dialogs))
	for _, h := range s.dialogs {
		if d, ok := s.arena.Resolve(h); ok {
			out = append(out, d)
		}
	}
	return out
}

// Empty reports whether the set owns no dialogs, the condition under
// which the dispatcher may reclaim it.
func (s *DialogSet) Empty() bool { return s.arena.Len() == 0 }

// Done reports whether every dialog the set owns has terminated all its
// usages.
func (s *DialogSet) Done() bool {
	if s.arena.Len() == 0 {
		return true
	}
	for _, h := range s.dialogs {
		d, ok := s.arena.Resolve(h)
		if !ok {
			continue
		}
		if !d.Done() {
			return false
		}
	}
	return true
}

// Map is the dispatcher-owned index of every live DialogSet, keyed by
// DialogSetId and backed by an Arena[*DialogSet]. Like dialogs within a
// DialogSet, it is mutated only from the single worker goroutine that
// drains the dispatcher's event queue (spec.md §5).
type Map struct {
	arena *dialog.Arena[*DialogSet]
	sets  map[dialog.SetId]dialog.Handle[*DialogSet]
}

// NewMap returns an empty Map.
func NewMap() *Map {
	return &Map{
		arena: dialog.NewArena[*DialogSet](),
		sets:  make(map[dialog.SetId]dialog.Handle[*DialogSet]),
	}
}

// Get looks up a DialogSet by id.
func (m *Map) Get(id dialog.SetId) (*DialogSet, bool) {
	h, ok := m.sets[id]
	if !ok {
		return nil, false
	}
	return m.arena.Resolve(h)
}

// GetOrCreate returns the DialogSet for id, creating one under
// userProfile if it doesn't yet exist.
func (m *Map) GetOrCreate(id dialog.SetId, userProfile any) *DialogSet {
	if s, ok := m.Get(id); ok {
		return s
	}
	s := New(id, userProfile)
	m.sets[id] = m.arena.Insert(s)
	return s
}

// Remove drops a DialogSet from the map, invalidating its handle.
func (m *Map) Remove(id dialog.SetId) {
	if h, ok := m.sets[id]; ok {
		m.arena.Remove(h)
		delete(m.sets, id)
	}
}

// Len returns the number of live DialogSets.
func (m *Map) Len() int { return m.arena.Len() }

// All returns every live DialogSet, in no particular order.
func (m *Map) All() []*DialogSet {
	out := make([]*DialogSet, 0, len(m.sets))
	for _, h := range m.sets {
		if s, ok := m.arena.Resolve(h); ok {
			out = append(out, s)
		}
	}
	return out
}

// ReapEmpty removes every DialogSet that owns no dialogs and has begun
// destroying, returning the count removed.
func (m *Map) ReapEmpty() int {
	n := 0
	for id, h := range m.sets {
		s, ok := m.arena.Resolve(h)
		if !ok {
			delete(m.sets, id)
			continue
		}
		if s.isDestroying && s.Empty() {
			m.arena.Remove(h)
			delete(m.sets, id)
			n++
		}
	}
	return n
}
