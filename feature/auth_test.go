package feature

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapCredentials map[string]string

func (m mapCredentials) Lookup(username string) (string, bool) {
	pw, ok := m[username]
	return pw, ok
}

func newInviteRequest(t *testing.T) *sip.Request {
	t.Helper()
	var uri sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.com", &uri))
	return sip.NewRequest(sip.INVITE, uri)
}

func TestServerAuthManagerChallengesMissingCredentials(t *testing.T) {
	mgr := NewServerAuthManager("example.com", "opaque-tag", mapCredentials{"alice": "secret"})
	req := newInviteRequest(t)

	ev := &Event{Request: req}
	flags := mgr.Process(ev)

	assert.True(t, flags.Has(EventTaken))
	assert.True(t, flags.Has(ChainDone))
	require.NotNil(t, ev.Response)
	assert.Equal(t, 401, ev.Response.StatusCode)
	assert.NotNil(t, ev.Response.GetHeader("WWW-Authenticate"))
}

func TestServerAuthManagerAcceptsValidCredentials(t *testing.T) {
	mgr := NewServerAuthManager("example.com", "opaque-tag", mapCredentials{"alice": "secret"})
	req := newInviteRequest(t)

	ev := &Event{Request: req}
	mgr.Process(ev) // issues nonce via 401
	require.NotNil(t, ev.Response)

	wwwAuth := ev.Response.GetHeader("WWW-Authenticate")
	chal, err := digest.ParseChallenge(wwwAuth.Value())
	require.NoError(t, err)

	cred, err := digest.Digest(chal, digest.Options{
		Method:   string(req.Method),
		URI:      req.Recipient.String(),
		Username: "alice",
		Password: "secret",
	})
	require.NoError(t, err)

	req2 := newInviteRequest(t)
	req2.AppendHeader(sip.NewHeader("Authorization", cred.String()))

	ev2 := &Event{Request: req2}
	flags := mgr.Process(ev2)
	assert.False(t, flags.Has(EventTaken), "valid credentials must fall through uncontested")
}

func TestServerAuthManagerRejectsWrongPassword(t *testing.T) {
	mgr := NewServerAuthManager("example.com", "opaque-tag", mapCredentials{"alice": "secret"})
	req := newInviteRequest(t)
	ev := &Event{Request: req}
	mgr.Process(ev)

	wwwAuth := ev.Response.GetHeader("WWW-Authenticate")
	chal, err := digest.ParseChallenge(wwwAuth.Value())
	require.NoError(t, err)

	cred, err := digest.Digest(chal, digest.Options{
		Method:   string(req.Method),
		URI:      req.Recipient.String(),
		Username: "alice",
		Password: "wrong-password",
	})
	require.NoError(t, err)

	req2 := newInviteRequest(t)
	req2.AppendHeader(sip.NewHeader("Authorization", cred.String()))

	ev2 := &Event{Request: req2}
	flags := mgr.Process(ev2)
	assert.True(t, flags.Has(EventTaken))
	assert.Equal(t, 401, ev2.Response.StatusCode)
}

func TestClientAuthManagerInjectsCredentialsOn401(t *testing.T) {
	mgr := NewClientAuthManager("alice", "secret")
	req := newInviteRequest(t)

	chal := digest.Challenge{Realm: "example.com", Nonce: "abc123", Algorithm: "MD5"}
	resp := sip.NewResponseFromRequest(req, 401, "Unauthorized", nil)
	resp.AppendHeader(sip.NewHeader("WWW-Authenticate", chal.String()))

	ev := &Event{Request: req, Response: resp}
	flags := mgr.Process(ev)

	assert.True(t, flags.Has(EventTaken))
	assert.True(t, flags.Has(ChainDone))
	assert.NotNil(t, req.GetHeader("Authorization"))
}

func TestClientAuthManagerProactivelyInjectsCachedCredential(t *testing.T) {
	mgr := NewClientAuthManager("alice", "secret")
	req := newInviteRequest(t)

	chal := digest.Challenge{Realm: "example.com", Nonce: "abc123", Algorithm: "MD5"}
	resp := sip.NewResponseFromRequest(req, 401, "Unauthorized", nil)
	resp.AppendHeader(sip.NewHeader("WWW-Authenticate", chal.String()))
	mgr.Process(&Event{Request: req, Response: resp})
	cached := req.GetHeader("Authorization").Value()
	require.NotEmpty(t, cached)

	next := newInviteRequest(t)
	flags := mgr.Process(&Event{Request: next})

	assert.Equal(t, Flags(0), flags, "a request with no response yet is never taken, only decorated")
	got := next.GetHeader("Authorization")
	require.NotNil(t, got, "cached credential from the prior challenge should be proactively attached")
	assert.Equal(t, cached, got.Value())
}

func TestClientAuthManagerDoesNotInjectOnAckOrCancel(t *testing.T) {
	mgr := NewClientAuthManager("alice", "secret")
	req := newInviteRequest(t)
	chal := digest.Challenge{Realm: "example.com", Nonce: "abc123", Algorithm: "MD5"}
	resp := sip.NewResponseFromRequest(req, 401, "Unauthorized", nil)
	resp.AppendHeader(sip.NewHeader("WWW-Authenticate", chal.String()))
	mgr.Process(&Event{Request: req, Response: resp})

	ack := sip.NewRequest(sip.ACK, req.Recipient)
	mgr.Process(&Event{Request: ack})
	assert.Nil(t, ack.GetHeader("Authorization"))
}

func TestClientAuthManagerIgnoresNonChallengeResponse(t *testing.T) {
	mgr := NewClientAuthManager("alice", "secret")
	req := newInviteRequest(t)
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)

	ev := &Event{Request: req, Response: resp}
	flags := mgr.Process(ev)
	assert.Equal(t, Flags(0), flags)
}

func TestEncryptionManagerPassThroughWhenNoHook(t *testing.T) {
	em := &EncryptionManager{}
	req := newInviteRequest(t)

	flags := em.Process(&Event{Request: req})
	assert.True(t, flags.Has(ChainDone))
	assert.False(t, flags.Has(EventTaken))
}

func TestEncryptionManagerAppliesHook(t *testing.T) {
	applied := false
	em := &EncryptionManager{Apply: func(req *sip.Request) error {
		applied = true
		return nil
	}}
	req := newInviteRequest(t)

	em.Process(&Event{Request: req})
	assert.True(t, applied)
}
