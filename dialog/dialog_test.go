package dialog

import (
	"testing"

	"github.com/sipdum/dum/usage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testId() Id {
	return Id{Set: SetId{CallID: "call-1", LocalTag: "local-tag", MethodClass: MethodClassInvite}}
}

func TestNewDialogIdentity(t *testing.T) {
	d := New(testId())
	assert.Equal(t, "call-1", d.Id().Set.CallID)
	assert.Empty(t, d.Id().RemoteTag)
}

func TestSetRemoteTagFixesIdentity(t *testing.T) {
	d := New(testId())
	d.SetRemoteTag("remote-tag")
	assert.Equal(t, "remote-tag", d.Id().RemoteTag)
}

func TestDialogOwnsAtMostOneInviteUsage(t *testing.T) {
	d := New(testId())
	assert.Nil(t, d.InviteUsage())

	ci := usage.NewClientInvite()
	d.SetInviteUsage(ci)
	assert.Same(t, ci, d.InviteUsage().(*usage.ClientInvite))
}

func TestDialogCSeqOrdering(t *testing.T) {
	d := New(testId())
	assert.True(t, d.ObserveRemoteCSeq(1))
	assert.True(t, d.ObserveRemoteCSeq(2))
	assert.False(t, d.ObserveRemoteCSeq(2))
	assert.False(t, d.ObserveRemoteCSeq(1))
}

func TestDialogLocalCSeqMonotonic(t *testing.T) {
	d := New(testId())
	assert.Equal(t, uint32(1), d.NextLocalCSeq())
	assert.Equal(t, uint32(2), d.NextLocalCSeq())
}

func TestDialogDoneWithNoUsages(t *testing.T) {
	d := New(testId())
	assert.True(t, d.Done())
}

func TestDialogDoneReflectsUsageState(t *testing.T) {
	d := New(testId())
	ci := usage.NewClientInvite()
	d.SetInviteUsage(ci)
	require.False(t, d.Done())

	req := sipRequestINVITE(t)
	resp := sipResponse(t, req, 486)
	require.NoError(t, ci.Dispatch(resp))
	assert.True(t, d.Done())
}

func TestDialogSubscriptions(t *testing.T) {
	d := New(testId())
	assert.Empty(t, d.ClientSubscriptions())
	assert.Empty(t, d.ServerSubscriptions())

	cs := usage.NewClientSubscription("presence", timeInAnHour())
	d.AddClientSubscription(cs)
	assert.Len(t, d.ClientSubscriptions(), 1)
	assert.Len(t, d.Usages(), 1)
}

func TestDialogOtherUsages(t *testing.T) {
	d := New(testId())
	assert.Empty(t, d.OtherUsages())

	sr := usage.NewClientRegistration(sipURI(t, "sip:alice@example.com"), timeInAnHour())
	d.AddOtherUsage(sr)
	assert.Len(t, d.OtherUsages(), 1)
	assert.Len(t, d.Usages(), 1)
}

func TestDialogLastRequest(t *testing.T) {
	d := New(testId())
	assert.Nil(t, d.LastRequest())

	req := sipRequestINVITE(t)
	d.SetLastRequest(req)
	assert.Same(t, req, d.LastRequest())
}

func TestDialogRouteSetAndRemoteTarget(t *testing.T) {
	d := New(testId())
	d.SetRouteSet([]string{"sip:proxy1.example.com", "sip:proxy2.example.com"})
	d.SetRemoteTarget("sip:bob@192.0.2.1")
	assert.Equal(t, []string{"sip:proxy1.example.com", "sip:proxy2.example.com"}, d.RouteSet())
	assert.Equal(t, "sip:bob@192.0.2.1", d.RemoteTarget())
}
