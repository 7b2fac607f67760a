package usage

import (
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reqURI(t *testing.T) sip.Uri {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.com", &u))
	return u
}

func TestClientInviteHappyPath(t *testing.T) {
	ci := NewClientInvite()
	req := sip.NewRequest(sip.INVITE, reqURI(t))

	ringing := sip.NewResponseFromRequest(req, 180, "Ringing", nil)
	require.NoError(t, ci.Dispatch(ringing))
	assert.Equal(t, InviteStateEarly, ci.State())

	ok := sip.NewResponseFromRequest(req, 200, "OK", nil)
	require.NoError(t, ci.Dispatch(ok))
	assert.Equal(t, InviteStateConfirmed, ci.State())
	assert.False(t, ci.Done())

	require.NoError(t, ci.End("user hangup"))
	assert.Equal(t, InviteStateTerminating, ci.State())
}

func TestClientInviteRejected(t *testing.T) {
	ci := NewClientInvite()
	req := sip.NewRequest(sip.INVITE, reqURI(t))
	busy := sip.NewResponseFromRequest(req, 486, "Busy Here", nil)

	require.NoError(t, ci.Dispatch(busy))
	assert.True(t, ci.Done())
}

func TestServerInviteLifecycle(t *testing.T) {
	si := NewServerInvite()
	require.NoError(t, si.Provisional())
	assert.True(t, si.EarlyOnly())

	require.NoError(t, si.Accept())
	assert.False(t, si.EarlyOnly())
	assert.False(t, si.Terminated())

	req := sip.NewRequest(sip.BYE, reqURI(t))
	require.NoError(t, si.Dispatch(req))
	assert.True(t, si.Done())
	assert.True(t, si.Terminated())
}

func TestServerInviteRejectIsTerminal(t *testing.T) {
	si := NewServerInvite()
	require.NoError(t, si.Reject())
	assert.True(t, si.Done())
	assert.True(t, si.Terminated())
}

func TestClientSubscriptionTracksNotifyState(t *testing.T) {
	cs := NewClientSubscription("presence", time.Now().Add(time.Hour))
	req := sip.NewRequest(sip.NOTIFY, reqURI(t))
	req.AppendHeader(sip.NewHeader("Subscription-State", "terminated;reason=timeout"))

	require.NoError(t, cs.Dispatch(req))
	assert.True(t, cs.Done())
}

func TestServerSubscriptionExpiresZeroEnds(t *testing.T) {
	ss := NewServerSubscription("presence", time.Now().Add(time.Hour))
	req := sip.NewRequest(sip.SUBSCRIBE, reqURI(t))
	req.AppendHeader(sip.NewHeader("Expires", "0"))

	require.NoError(t, ss.Dispatch(req))
	assert.True(t, ss.Done())
}

func TestClientRegistrationEndsOnFailure(t *testing.T) {
	cr := NewClientRegistration(reqURI(t), time.Now().Add(time.Hour))
	req := sip.NewRequest(sip.REGISTER, reqURI(t))
	resp := sip.NewResponseFromRequest(req, 403, "Forbidden", nil)

	require.NoError(t, cr.Dispatch(resp))
	assert.True(t, cr.Done())
}

func TestServerRegistrationConnectionTerminatedEndsUsage(t *testing.T) {
	sr := NewServerRegistration(reqURI(t))
	sr.OnConnectionTerminated()
	assert.True(t, sr.Done())
}

func TestClientPublicationStoresETag(t *testing.T) {
	cp := NewClientPublication("presence", time.Now().Add(time.Hour))
	req := sip.NewRequest(sip.PUBLISH, reqURI(t))
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	resp.AppendHeader(sip.NewHeader("SIP-ETag", "abc123"))

	require.NoError(t, cp.Dispatch(resp))
	assert.Equal(t, "abc123", cp.ETag())
	assert.False(t, cp.Done())
}

func TestServerPublicationExpiresZeroEnds(t *testing.T) {
	sp := NewServerPublication("presence", "abc123", time.Now().Add(time.Hour))
	req := sip.NewRequest(sip.PUBLISH, reqURI(t))
	req.AppendHeader(sip.NewHeader("Expires", "0"))

	require.NoError(t, sp.Dispatch(req))
	assert.True(t, sp.Done())
}

func TestClientPagerMessageCompletesOnFinalResponse(t *testing.T) {
	cpm := NewClientPagerMessage()
	req := sip.NewRequest(sip.MESSAGE, reqURI(t))
	resp := sip.NewResponseFromRequest(req, 202, "Accepted", nil)

	require.NoError(t, cpm.Dispatch(resp))
	assert.True(t, cpm.Done())
	assert.Equal(t, 202, cpm.StatusCode())
}

func TestServerPagerMessageHoldsBodyUntilResponded(t *testing.T) {
	spm := NewServerPagerMessage([]byte("hello"))
	assert.False(t, spm.Done())
	spm.Responded()
	assert.True(t, spm.Done())
}

func TestOutOfDialogUsagesCompleteOnExchange(t *testing.T) {
	client := NewClientOutOfDialog(sip.OPTIONS)
	req := sip.NewRequest(sip.OPTIONS, reqURI(t))
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	require.NoError(t, client.Dispatch(resp))
	assert.True(t, client.Done())

	server := NewServerOutOfDialog(sip.OPTIONS)
	require.NoError(t, server.Dispatch(req))
	assert.False(t, server.Done())
	server.Responded()
	assert.True(t, server.Done())
}
