package creator

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipdum/dum/profile"
)

func newUserProfile(t *testing.T, opts ...profile.UserProfileOption) *profile.UserProfile {
	t.Helper()
	var addr sip.Uri
	require.NoError(t, sip.ParseUri("sip:alice@example.com", &addr))

	mp, err := profile.NewMasterProfile()
	require.NoError(t, err)
	up, err := profile.NewUserProfile(mp, addr, opts...)
	require.NoError(t, err)
	return up
}

func targetURI(t *testing.T) sip.Uri {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.org", &u))
	return u
}

func TestInviteSkeletonHasRequiredHeaders(t *testing.T) {
	up := newUserProfile(t)
	req := Invite(up, targetURI(t), []byte("v=0"), "application/sdp")

	require.NotNil(t, req.From())
	assert.True(t, req.From().Params.Has("tag"))
	require.NotNil(t, req.To())
	require.NotNil(t, req.CallID())
	require.NotNil(t, req.CSeq())
	assert.EqualValues(t, 1, req.CSeq().SeqNo)
	assert.Equal(t, sip.INVITE, req.CSeq().MethodName)
	require.NotNil(t, req.GetHeader("Max-Forwards"))
	assert.Equal(t, []byte("v=0"), req.Body())
}

func TestTwoInvitesHaveDistinctTagsAndCallIDs(t *testing.T) {
	up := newUserProfile(t)
	a := Invite(up, targetURI(t), nil, "")
	b := Invite(up, targetURI(t), nil, "")

	tagA, _ := a.From().Params.Get("tag")
	tagB, _ := b.From().Params.Get("tag")
	assert.NotEqual(t, tagA, tagB)
	assert.NotEqual(t, a.CallID().Value(), b.CallID().Value())
}

func TestSubscribeDefaultsExpiresFromProfile(t *testing.T) {
	up := newUserProfile(t)
	req := Subscribe(up, targetURI(t), "presence", 0)

	exp := req.GetHeader("Expires")
	require.NotNil(t, exp)
	assert.Equal(t, "3600", exp.Value())
	assert.Equal(t, "presence", req.GetHeader("Event").Value())
}

func TestRegisterZeroExpiresPreservedAsUnregister(t *testing.T) {
	up := newUserProfile(t)
	req := Register(up, targetURI(t), 0)

	exp := req.GetHeader("Expires")
	require.NotNil(t, exp)
	assert.Equal(t, "0", exp.Value())
}

func TestAnonymousInviteUsesAnonymousDisplayName(t *testing.T) {
	up := newUserProfile(t, profile.WithAnonymous())
	req := Invite(up, targetURI(t), nil, "")

	assert.Equal(t, "Anonymous", req.From().DisplayName)
}

func TestPublishAttachesEventAndExpires(t *testing.T) {
	up := newUserProfile(t)
	req := Publish(up, targetURI(t), "presence", 3600, []byte("<presence/>"), "application/pidf+xml")

	assert.Equal(t, "presence", req.GetHeader("Event").Value())
	assert.Equal(t, "3600", req.GetHeader("Expires").Value())
	assert.Equal(t, []byte("<presence/>"), req.Body())
}

func TestOutOfDialogBuildsSkeletonWithoutBody(t *testing.T) {
	up := newUserProfile(t)
	req := OutOfDialog(up, sip.OPTIONS, targetURI(t))

	assert.Equal(t, sip.OPTIONS, req.Method)
	assert.Empty(t, req.Body())
}
