package dialogset

import (
	"testing"

	"github.com/sipdum/dum/dialog"
	"github.com/sipdum/dum/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSetId() dialog.SetId {
	return dialog.SetId{CallID: "call-1", LocalTag: "local-tag", MethodClass: dialog.MethodClassInvite}
}

func TestNewDialogSetIsEmpty(t *testing.T) {
	s := New(testSetId(), nil)
	assert.True(t, s.Empty())
	assert.True(t, s.Done())
}

func TestAddAndLookupDialogByRemoteTag(t *testing.T) {
	s := New(testSetId(), nil)
	id := dialog.Id{Set: testSetId(), RemoteTag: "remote-a"}
	d := dialog.New(id)
	s.AddDialog(d)

	got, ok := s.Dialog("remote-a")
	require.True(t, ok)
	assert.Same(t, d, got)
	assert.False(t, s.Empty())
}

func TestForkingProducesMultipleEarlyDialogs(t *testing.T) {
	s := New(testSetId(), nil)
	for _, tag := range []string{"remote-a", "remote-b", "remote-c"} {
		id := dialog.Id{Set: testSetId(), RemoteTag: tag}
		s.AddDialog(dialog.New(id))
	}
	assert.Len(t, s.Dialogs(), 3)
}

func TestRemoveDialogLosingForkBranches(t *testing.T) {
	s := New(testSetId(), nil)
	s.AddDialog(dialog.New(dialog.Id{Set: testSetId(), RemoteTag: "winner"}))
	s.AddDialog(dialog.New(dialog.Id{Set: testSetId(), RemoteTag: "loser"}))

	s.RemoveDialog("loser")
	assert.Len(t, s.Dialogs(), 1)
	_, ok := s.Dialog("loser")
	assert.False(t, ok)
}

func TestDialogSetDoneReflectsUsages(t *testing.T) {
	s := New(testSetId(), nil)
	id := dialog.Id{Set: testSetId(), RemoteTag: "remote-a"}
	d := dialog.New(id)
	ci := usage.NewClientInvite()
	d.SetInviteUsage(ci)
	s.AddDialog(d)

	assert.False(t, s.Done())
}

func TestMapGetOrCreateAndRemove(t *testing.T) {
	m := NewMap()
	id := testSetId()

	s := m.GetOrCreate(id, nil)
	require.NotNil(t, s)
	assert.Equal(t, 1, m.Len())

	again := m.GetOrCreate(id, nil)
	assert.Same(t, s, again)
	assert.Equal(t, 1, m.Len())

	m.Remove(id)
	assert.Equal(t, 0, m.Len())
}

func TestMapReapEmptyOnlyReapsDestroying(t *testing.T) {
	m := NewMap()
	idA := testSetId()
	idB := dialog.SetId{CallID: "call-2", LocalTag: "local-tag-2", MethodClass: dialog.MethodClassInvite}

	sA := m.GetOrCreate(idA, nil)
	sA.BeginDestroying()
	m.GetOrCreate(idB, nil)

	n := m.ReapEmpty()
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, m.Len())
	_, stillThere := m.Get(idB)
	assert.True(t, stillThere)
}
