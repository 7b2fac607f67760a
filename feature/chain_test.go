package feature

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type recordingFeature struct {
	name  string
	flags Flags
	calls *[]string
}

func (f *recordingFeature) Name() string { return f.name }
func (f *recordingFeature) Process(ev *Event) Flags {
	*f.calls = append(*f.calls, f.name)
	return f.flags
}

func TestChainAdvancesOnContinue(t *testing.T) {
	var calls []string
	a := &recordingFeature{name: "a", flags: 0, calls: &calls}
	b := &recordingFeature{name: "b", flags: ChainDone, calls: &calls}

	c := NewChain(a, b)
	flags := c.Process(&Event{})

	assert.Equal(t, []string{"a", "b"}, calls)
	assert.True(t, flags.Has(ChainDone))
	assert.True(t, c.Done())
}

func TestChainStopsOnEventTaken(t *testing.T) {
	var calls []string
	a := &recordingFeature{name: "a", flags: EventTaken, calls: &calls}
	b := &recordingFeature{name: "b", flags: 0, calls: &calls}

	c := NewChain(a, b)
	flags := c.Process(&Event{})

	assert.Equal(t, []string{"a"}, calls)
	assert.True(t, flags.Has(EventTaken))
	assert.False(t, c.Done(), "EventTaken alone does not finish the chain")
}

func TestChainResumesFromCursor(t *testing.T) {
	var calls []string
	a := &recordingFeature{name: "a", flags: EventTaken, calls: &calls}
	b := &recordingFeature{name: "b", flags: ChainDone, calls: &calls}

	c := NewChain(a, b)
	c.Process(&Event{})
	c.Process(&Event{})

	assert.Equal(t, []string{"a", "b"}, calls)
	assert.True(t, c.Done())
}

func TestSetOrderingAuthFirstEncryptionLast(t *testing.T) {
	var calls []string
	auth := &recordingFeature{name: "auth", flags: 0, calls: &calls}
	enc := &recordingFeature{name: "enc", flags: ChainDone, calls: &calls}
	mid1 := &recordingFeature{name: "mid1", flags: 0, calls: &calls}
	mid2 := &recordingFeature{name: "mid2", flags: 0, calls: &calls}

	set := NewSet(auth, enc)
	set.AddIncomingFeature(mid1)
	set.AddOutgoingFeature(mid2)

	in := set.IncomingChain()
	in.Process(&Event{})
	assert.Equal(t, []string{"auth", "mid1"}, calls)

	calls = nil
	out := set.OutgoingChain()
	out.Process(&Event{})
	assert.Equal(t, []string{"mid2", "enc"}, calls)
}

func TestAddOutgoingFeaturePrependsKeepingEncryptionLast(t *testing.T) {
	var calls []string
	enc := &recordingFeature{name: "enc", flags: 0, calls: &calls}
	first := &recordingFeature{name: "first", flags: 0, calls: &calls}
	second := &recordingFeature{name: "second", flags: 0, calls: &calls}

	set := NewSet(nil, enc)
	set.AddOutgoingFeature(first)
	set.AddOutgoingFeature(second)

	out := set.OutgoingChain()
	out.Process(&Event{})

	assert.Equal(t, []string{"second", "first", "enc"}, calls, "each AddOutgoingFeature call prepends, landing ahead of earlier adds but still before encryption")
}
