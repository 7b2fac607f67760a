// Package profile holds the per-UserAgent and per-dialog-set configuration
// that spec.md §6 enumerates: identity, outbound routing, transport
// quirks, validation policy, and advertised capabilities. Both
// MasterProfile and UserProfile are built with functional options, the way
// the teacher's own sipgo dependency builds its UserAgent/Server/Client.
package profile

import (
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
)

// UasReliableProvisionalMode controls whether 1xx responses this UA emits
// as a UAS are sent reliably (RFC 3262, 100rel).
type UasReliableProvisionalMode int

const (
	// ReliableProvisionalNever never attaches 100rel, even if the peer
	// requires it — requests requiring it are rejected (420).
	ReliableProvisionalNever UasReliableProvisionalMode = iota
	// ReliableProvisionalSupported attaches 100rel only when the UAC
	// indicated Supported: 100rel.
	ReliableProvisionalSupported
	// ReliableProvisionalRequired always attaches 100rel and advertises
	// Require: 100rel on every 1xx.
	ReliableProvisionalRequired
)

// MasterProfile is the process-wide configuration shared by every
// UserProfile created against it: transport and routing policy that does
// not vary per identity.
type MasterProfile struct {
	outboundProxy                  *sip.Uri
	forceOutboundProxyOnAllRequests bool
	expressOutboundAsRouteSet      bool

	rportEnabled            bool
	fixedTransportPort      int
	fixedTransportInterface string

	clientOutboundEnabled  bool
	clientOutboundFlowTuple string

	checkReqUriInMergeDetection bool
	allowBadRegistration        bool

	advertisedCapabilities map[string]struct{}
}

// MasterProfileOption configures a MasterProfile at construction time.
type MasterProfileOption func(*MasterProfile) error

// NewMasterProfile builds a MasterProfile, applying options in order.
func NewMasterProfile(opts ...MasterProfileOption) (*MasterProfile, error) {
	mp := &MasterProfile{
		rportEnabled:           true,
		advertisedCapabilities: make(map[string]struct{}),
	}
	for _, opt := range opts {
		if err := opt(mp); err != nil {
			return nil, fmt.Errorf("profile: building master profile: %w", err)
		}
	}
	return mp, nil
}

// WithOutboundProxy records an outbound proxy. It reaches the wire only as
// a Route header: the Creators add it to a usage's first request when
// ExpressOutboundAsRouteSet is set, and send() prepends it to every
// request when ForceOutboundProxyOnAllRequests is set. With neither option
// set, no request is routed through the proxy.
func WithOutboundProxy(proxy sip.Uri) MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.outboundProxy = &proxy
		return nil
	}
}

// WithForceOutboundProxyOnAllRequests sends every request — including
// mid-dialog ones that would otherwise follow the dialog's own route
// set — through the outbound proxy.
func WithForceOutboundProxyOnAllRequests() MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.forceOutboundProxyOnAllRequests = true
		return nil
	}
}

// WithExpressOutboundAsRouteSet represents OutboundProxy as a Route header
// rather than as the request's next hop.
func WithExpressOutboundAsRouteSet() MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.expressOutboundAsRouteSet = true
		return nil
	}
}

// WithRportDisabled turns off rport handling (RFC 3581) on outbound Via.
func WithRportDisabled() MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.rportEnabled = false
		return nil
	}
}

// WithFixedTransportPort pins the local transport to a specific port
// instead of letting the stack pick an ephemeral one.
func WithFixedTransportPort(port int) MasterProfileOption {
	return func(mp *MasterProfile) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("profile: invalid fixed transport port %d", port)
		}
		mp.fixedTransportPort = port
		return nil
	}
}

// WithFixedTransportInterface pins the local transport to a specific
// network interface.
func WithFixedTransportInterface(iface string) MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.fixedTransportInterface = iface
		return nil
	}
}

// WithClientOutboundEnabled turns on RFC 5626 client outbound behavior:
// send() adds the ob parameter to the Contact of every request other than
// ACK and CANCEL. The flow tuple is stored and returned by ClientOutbound;
// it is not attached to any header.
func WithClientOutboundEnabled(flowTuple string) MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.clientOutboundEnabled = true
		mp.clientOutboundFlowTuple = flowTuple
		return nil
	}
}

// WithCheckReqUriInMergeDetection includes the request-URI in the
// retransmission/merge-detection key (spec.md §4.1 step 2), in addition
// to the mandatory From-tag/Call-ID/CSeq triple.
func WithCheckReqUriInMergeDetection() MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.checkReqUriInMergeDetection = true
		return nil
	}
}

// WithAllowBadRegistration lets an incoming REGISTER that carries a To tag
// be handled as a new request instead of being rejected 400 (interop
// workaround).
func WithAllowBadRegistration() MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.allowBadRegistration = true
		return nil
	}
}

// WithAdvertisedCapability adds a token to the Allow/Supported set
// advertised by every profile built against this MasterProfile.
func WithAdvertisedCapability(token string) MasterProfileOption {
	return func(mp *MasterProfile) error {
		mp.advertisedCapabilities[token] = struct{}{}
		return nil
	}
}

// OutboundProxy returns the configured outbound proxy, if any.
func (mp *MasterProfile) OutboundProxy() (sip.Uri, bool) {
	if mp.outboundProxy == nil {
		return sip.Uri{}, false
	}
	return *mp.outboundProxy, true
}

// ForceOutboundProxyOnAllRequests reports whether mid-dialog requests must
// also route through the outbound proxy.
func (mp *MasterProfile) ForceOutboundProxyOnAllRequests() bool {
	return mp.forceOutboundProxyOnAllRequests
}

// ExpressOutboundAsRouteSet reports whether the outbound proxy is
// expressed as a Route set rather than a transport-level next hop.
func (mp *MasterProfile) ExpressOutboundAsRouteSet() bool {
	return mp.expressOutboundAsRouteSet
}

// RportEnabled reports whether rport handling is active.
func (mp *MasterProfile) RportEnabled() bool { return mp.rportEnabled }

// FixedTransport returns the pinned port/interface, if configured.
func (mp *MasterProfile) FixedTransport() (port int, iface string, ok bool) {
	if mp.fixedTransportPort == 0 && mp.fixedTransportInterface == "" {
		return 0, "", false
	}
	return mp.fixedTransportPort, mp.fixedTransportInterface, true
}

// ClientOutbound returns the RFC 5626 flow tuple, if client outbound is
// enabled.
func (mp *MasterProfile) ClientOutbound() (flowTuple string, ok bool) {
	return mp.clientOutboundFlowTuple, mp.clientOutboundEnabled
}

// CheckReqUriInMergeDetection reports whether the request-URI is part of
// the merge-detection key.
func (mp *MasterProfile) CheckReqUriInMergeDetection() bool {
	return mp.checkReqUriInMergeDetection
}

// AllowBadRegistration reports whether a REGISTER carrying a To tag is
// accepted as a new request.
func (mp *MasterProfile) AllowBadRegistration() bool { return mp.allowBadRegistration }

// AdvertisedCapabilities returns the capability token set, in no
// particular order.
func (mp *MasterProfile) AdvertisedCapabilities() []string {
	out := make([]string, 0, len(mp.advertisedCapabilities))
	for tok := range mp.advertisedCapabilities {
		out = append(out, tok)
	}
	return out
}

// UserProfile is the per-identity configuration used when building
// Creators and validating incoming requests: display name, contact
// address, and the content/accept/language policy spec.md §6 calls out.
type UserProfile struct {
	master *MasterProfile

	displayName string
	address     sip.Uri
	userAgent   string

	proxyRequires []string

	validateContent         bool
	validateAccept          bool
	validateContentLanguage bool
	allowedMimeTypes        map[string]struct{}
	allowedLanguages        map[string]struct{}

	uasReliableProvisionalMode UasReliableProvisionalMode

	defaultSubscriptionTime time.Duration
	defaultRegistrationTime time.Duration

	anonymous bool
}

// UserProfileOption configures a UserProfile at construction time.
type UserProfileOption func(*UserProfile) error

// NewUserProfile builds a UserProfile against the given MasterProfile.
func NewUserProfile(master *MasterProfile, address sip.Uri, opts ...UserProfileOption) (*UserProfile, error) {
	if master == nil {
		return nil, fmt.Errorf("profile: NewUserProfile requires a non-nil MasterProfile")
	}
	up := &UserProfile{
		master:                  master,
		address:                 address,
		allowedMimeTypes:        make(map[string]struct{}),
		allowedLanguages:        make(map[string]struct{}),
		defaultSubscriptionTime: 3600 * time.Second,
		defaultRegistrationTime: 3600 * time.Second,
	}
	for _, opt := range opts {
		if err := opt(up); err != nil {
			return nil, fmt.Errorf("profile: building user profile: %w", err)
		}
	}
	return up, nil
}

// WithDisplayName sets the display name attached to From/Contact headers
// built from this profile.
func WithDisplayName(name string) UserProfileOption {
	return func(up *UserProfile) error {
		up.displayName = name
		return nil
	}
}

// WithUserAgent sets the User-Agent header value attached to outbound
// requests built from this profile, suppressed whenever WithAnonymous is
// also set (spec.md §6).
func WithUserAgent(value string) UserProfileOption {
	return func(up *UserProfile) error {
		up.userAgent = value
		return nil
	}
}

// WithAnonymous requests anonymous From headers: the Creators use the
// RFC 3323-style "Anonymous" display name and keep the profile's own
// address as the From URI.
func WithAnonymous() UserProfileOption {
	return func(up *UserProfile) error {
		up.anonymous = true
		return nil
	}
}

// WithProxyRequires adds option tags this profile requires intermediate
// proxies to support (sent as Proxy-Require).
func WithProxyRequires(tags ...string) UserProfileOption {
	return func(up *UserProfile) error {
		up.proxyRequires = append(up.proxyRequires, tags...)
		return nil
	}
}

// WithValidateContent turns on Content-Type validation against
// AllowedMimeTypes for incoming requests (spec.md §4.1 step 7).
// Content-Encoding is not checked.
func WithValidateContent(mimeTypes ...string) UserProfileOption {
	return func(up *UserProfile) error {
		up.validateContent = true
		for _, mt := range mimeTypes {
			up.allowedMimeTypes[mt] = struct{}{}
		}
		return nil
	}
}

// WithValidateAccept turns on Accept-header validation for incoming
// requests, whether or not they carry a body.
func WithValidateAccept() UserProfileOption {
	return func(up *UserProfile) error {
		up.validateAccept = true
		return nil
	}
}

// WithValidateContentLanguage turns on Content-Language validation
// against AllowedLanguages.
func WithValidateContentLanguage(languages ...string) UserProfileOption {
	return func(up *UserProfile) error {
		up.validateContentLanguage = true
		for _, lang := range languages {
			up.allowedLanguages[lang] = struct{}{}
		}
		return nil
	}
}

// WithUasReliableProvisionalMode sets how this profile's UAS side handles
// RFC 3262 reliable provisional responses.
func WithUasReliableProvisionalMode(mode UasReliableProvisionalMode) UserProfileOption {
	return func(up *UserProfile) error {
		up.uasReliableProvisionalMode = mode
		return nil
	}
}

// WithDefaultSubscriptionTime overrides the default Expires applied to
// SUBSCRIBE usages that omit one.
func WithDefaultSubscriptionTime(d time.Duration) UserProfileOption {
	return func(up *UserProfile) error {
		if d <= 0 {
			return fmt.Errorf("profile: default subscription time must be positive, got %s", d)
		}
		up.defaultSubscriptionTime = d
		return nil
	}
}

// WithDefaultRegistrationTime overrides the default Expires applied to
// REGISTER usages that omit one.
func WithDefaultRegistrationTime(d time.Duration) UserProfileOption {
	return func(up *UserProfile) error {
		if d <= 0 {
			return fmt.Errorf("profile: default registration time must be positive, got %s", d)
		}
		up.defaultRegistrationTime = d
		return nil
	}
}

// Master returns the MasterProfile this profile was built against.
func (up *UserProfile) Master() *MasterProfile { return up.master }

// DisplayName returns the configured display name.
func (up *UserProfile) DisplayName() string { return up.displayName }

// Address returns the profile's SIP address-of-record.
func (up *UserProfile) Address() sip.Uri { return up.address }

// Anonymous reports whether outbound From headers should be anonymized.
func (up *UserProfile) Anonymous() bool { return up.anonymous }

// UserAgent returns the configured User-Agent header value, empty if none
// was set.
func (up *UserProfile) UserAgent() string { return up.userAgent }

// ProxyRequires returns the option tags sent as Proxy-Require.
func (up *UserProfile) ProxyRequires() []string { return up.proxyRequires }

// ValidateContentType reports whether contentType passes this profile's
// content validation policy. Always true when content validation is off.
func (up *UserProfile) ValidateContentType(contentType string) bool {
	if !up.validateContent {
		return true
	}
	_, ok := up.allowedMimeTypes[contentType]
	return ok
}

// ValidateAcceptEnabled reports whether Accept-header validation is on.
func (up *UserProfile) ValidateAcceptEnabled() bool { return up.validateAccept }

// AllowedMimeTypes returns the content types this profile accepts (and, by
// the same policy, can produce), in no particular order.
func (up *UserProfile) AllowedMimeTypes() []string {
	out := make([]string, 0, len(up.allowedMimeTypes))
	for mt := range up.allowedMimeTypes {
		out = append(out, mt)
	}
	return out
}

// ValidateContentLanguage reports whether language passes this profile's
// content-language policy. Always true when the check is off.
func (up *UserProfile) ValidateContentLanguage(language string) bool {
	if !up.validateContentLanguage {
		return true
	}
	_, ok := up.allowedLanguages[language]
	return ok
}

// UasReliableProvisionalMode returns the configured 100rel policy.
func (up *UserProfile) UasReliableProvisionalMode() UasReliableProvisionalMode {
	return up.uasReliableProvisionalMode
}

// DefaultSubscriptionTime returns the fallback SUBSCRIBE Expires.
func (up *UserProfile) DefaultSubscriptionTime() time.Duration { return up.defaultSubscriptionTime }

// DefaultRegistrationTime returns the fallback REGISTER Expires.
func (up *UserProfile) DefaultRegistrationTime() time.Duration { return up.defaultRegistrationTime }

// Contact builds the Contact header this profile advertises on outbound
// requests and responses.
func (up *UserProfile) Contact() *sip.ContactHeader {
	return &sip.ContactHeader{
		DisplayName: up.displayName,
		Address:     up.address,
		Params:      sip.NewParams(),
	}
}
