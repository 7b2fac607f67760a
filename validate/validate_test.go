package validate

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipdum/dum/profile"
)

func newRequest(t *testing.T, method sip.RequestMethod, rawURI string) *sip.Request {
	t.Helper()
	var uri sip.Uri
	require.NoError(t, sip.ParseUri(rawURI, &uri))
	return sip.NewRequest(method, uri)
}

func newProfiles(t *testing.T, opts ...profile.UserProfileOption) (*profile.MasterProfile, *profile.UserProfile) {
	t.Helper()
	var aor sip.Uri
	require.NoError(t, sip.ParseUri("sip:alice@example.com", &aor))

	mp, err := profile.NewMasterProfile()
	require.NoError(t, err)
	up, err := profile.NewUserProfile(mp, aor, opts...)
	require.NoError(t, err)
	return mp, up
}

func TestMethodAndSchemeRejectsUnknownMethod(t *testing.T) {
	mp, up := newProfiles(t)
	req := newRequest(t, "FOO", "sip:a@b.example.com")

	allowed := map[string]struct{}{"INVITE": {}, "ACK": {}, "BYE": {}, "CANCEL": {}, "OPTIONS": {}}
	schemes := map[string]struct{}{"sip": {}, "sips": {}}

	r := MethodAndScheme(schemes, allowed)(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 405, r.StatusCode)
}

func TestMethodAndSchemeRejectsUnknownScheme(t *testing.T) {
	mp, up := newProfiles(t)
	req := newRequest(t, sip.INVITE, "tel:+15551212")

	allowed := map[string]struct{}{"INVITE": {}}
	schemes := map[string]struct{}{"sip": {}, "sips": {}}

	r := MethodAndScheme(schemes, allowed)(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 416, r.StatusCode)
}

func TestRequireOptionTagsRejectsUnsupported(t *testing.T) {
	mp, up := newProfiles(t)
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")
	req.AppendHeader(sip.NewHeader("Require", "unknown-extension"))

	r := RequireOptionTags(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 420, r.StatusCode)
}

func TestReliable100relRequiredButNotOffered(t *testing.T) {
	mp, up := newProfiles(t, profile.WithUasReliableProvisionalMode(profile.ReliableProvisionalRequired))
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")

	r := Reliable100relCompliance(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 421, r.StatusCode)
}

func TestReliable100relOfferedPasses(t *testing.T) {
	mp, up := newProfiles(t, profile.WithUasReliableProvisionalMode(profile.ReliableProvisionalRequired))
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")
	req.AppendHeader(sip.NewHeader("Supported", "100rel"))

	r := Reliable100relCompliance(req, mp, up)
	assert.True(t, r.Ok)
}

func TestContentPolicyRejectsUnsupportedType(t *testing.T) {
	mp, up := newProfiles(t, profile.WithValidateContent("application/sdp"))
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")
	req.AppendHeader(sip.NewHeader("Content-Type", "text/plain"))
	req.SetBody([]byte("hello"))

	r := ContentPolicy(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 415, r.StatusCode)
}

func TestContentPolicySkippedWithoutBody(t *testing.T) {
	mp, up := newProfiles(t, profile.WithValidateContent("application/sdp"))
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")
	req.AppendHeader(sip.NewHeader("Content-Type", "text/plain"))

	r := ContentPolicy(req, mp, up)
	assert.True(t, r.Ok)
}

func TestAcceptRejectsUnknownType(t *testing.T) {
	mp, up := newProfiles(t, profile.WithValidateAccept())
	req := newRequest(t, sip.INVITE, "sip:a@b.example.com")
	req.AppendHeader(sip.NewHeader("Accept", "application/json"))

	producible := map[string]struct{}{"application/sdp": {}}
	r := Accept(producible)(req, mp, up)
	assert.False(t, r.Ok)
	assert.Equal(t, 406, r.StatusCode)
}

func TestChainShortCircuits(t *testing.T) {
	mp, up := newProfiles(t)
	req := newRequest(t, "FOO", "tel:+15551212")

	schemes := map[string]struct{}{"sip": {}}
	allowed := map[string]struct{}{"INVITE": {}}

	r := Chain(req, mp, up, MethodAndScheme(schemes, allowed), RequireOptionTags)
	assert.False(t, r.Ok)
	assert.Equal(t, 416, r.StatusCode, "scheme check runs before method/require checks in MethodAndScheme")
}
