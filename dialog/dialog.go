package dialog

import (
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/usage"
)

// Dialog is mutable; owns at most one invite session (ClientInvite or
// ServerInvite), a set of client/server subscriptions, and
// application-level dialog state. A Dialog's identity never changes
// after creation; its Id's RemoteTag is set exactly once, the first time
// an establishing response or request is observed (spec.md §3).
type Dialog struct {
	id      Id
	created time.Time

	inviteUsage usage.Usage // *usage.ClientInvite or *usage.ServerInvite, nil if this dialog has none

	clientSubscriptions []*usage.ClientSubscription
	serverSubscriptions []*usage.ServerSubscription

	// otherUsages holds registration/out-of-dialog/pager/publication
	// usages that don't need a full Dialog's in-dialog CSeq/route-set
	// tracking but still route their responses through the DialogSet
	// this Dialog belongs to.
	otherUsages []usage.Usage

	routeSet     []string
	remoteTarget string
	localCSeq    uint32
	remoteCSeq   uint32

	// lastRequest is the most recently sent locally-originated request,
	// kept so a 401/407 challenge to it can be retried with credentials
	// the outgoing feature chain injects.
	lastRequest *sip.Request
}

// New builds a Dialog. id.RemoteTag may be empty — call SetRemoteTag once
// the first establishing response/request supplies one.
func New(id Id) *Dialog {
	return &Dialog{id: id, created: time.Now()}
}

// Id returns the dialog's identity.
func (d *Dialog) Id() Id { return d.id }

// SetRemoteTag fixes the dialog's remote tag the first time it becomes
// known. Calling it a second time with a different value is a
// programmer error the caller should guard against (tags are immutable
// after the first establishing response, spec.md §3) — SetRemoteTag
// itself simply overwrites, since enforcing the invariant is the
// dispatcher's job at the point of dialog materialization.
func (d *Dialog) SetRemoteTag(tag string) {
	d.id.RemoteTag = tag
}

// SetInviteUsage attaches the dialog's invite session. A Dialog owns at
// most one.
func (d *Dialog) SetInviteUsage(u usage.Usage) {
	d.inviteUsage = u
}

// InviteUsage returns the dialog's invite session, if any.
func (d *Dialog) InviteUsage() usage.Usage { return d.inviteUsage }

// AddClientSubscription attaches a new client subscription to this
// dialog.
func (d *Dialog) AddClientSubscription(s *usage.ClientSubscription) {
	d.clientSubscriptions = append(d.clientSubscriptions, s)
}

// AddServerSubscription attaches a new server subscription to this
// dialog.
func (d *Dialog) AddServerSubscription(s *usage.ServerSubscription) {
	d.serverSubscriptions = append(d.serverSubscriptions, s)
}

// ClientSubscriptions returns the dialog's client subscriptions.
func (d *Dialog) ClientSubscriptions() []*usage.ClientSubscription {
	return d.clientSubscriptions
}

// ServerSubscriptions returns the dialog's server subscriptions.
func (d *Dialog) ServerSubscriptions() []*usage.ServerSubscription {
	return d.serverSubscriptions
}

// AddOtherUsage attaches a registration/out-of-dialog/pager/publication
// usage to this dialog.
func (d *Dialog) AddOtherUsage(u usage.Usage) {
	d.otherUsages = append(d.otherUsages, u)
}

// OtherUsages returns the dialog's registration/out-of-dialog/pager/
// publication usages.
func (d *Dialog) OtherUsages() []usage.Usage { return d.otherUsages }

// NextLocalCSeq returns the next CSeq value this dialog should use for a
// locally originated in-dialog request.
func (d *Dialog) NextLocalCSeq() uint32 {
	d.localCSeq++
	return d.localCSeq
}

// ObserveRemoteCSeq records a remote in-dialog request's CSeq, rejecting
// out-of-order requests (RFC 3261 §12.2.2). Returns false if seq is not
// strictly greater than the last observed value (and the request must be
// rejected 500 by the caller).
func (d *Dialog) ObserveRemoteCSeq(seq uint32) bool {
	if seq <= d.remoteCSeq && d.remoteCSeq != 0 {
		return false
	}
	d.remoteCSeq = seq
	return true
}

// SetRouteSet stores the dialog's negotiated route set (from
// Record-Route, reversed appropriately by the caller per UAC/UAS role).
func (d *Dialog) SetRouteSet(routeSet []string) { d.routeSet = routeSet }

// RouteSet returns the dialog's negotiated route set.
func (d *Dialog) RouteSet() []string { return d.routeSet }

// SetRemoteTarget stores the dialog's current remote target URI (from
// Contact).
func (d *Dialog) SetRemoteTarget(target string) { d.remoteTarget = target }

// RemoteTarget returns the dialog's current remote target URI.
func (d *Dialog) RemoteTarget() string { return d.remoteTarget }

// SetLastRequest records req as the last locally-originated request sent
// on this dialog.
func (d *Dialog) SetLastRequest(req *sip.Request) { d.lastRequest = req }

// LastRequest returns the last locally-originated request sent on this
// dialog, or nil if none has been sent yet.
func (d *Dialog) LastRequest() *sip.Request { return d.lastRequest }

// Usages returns every usage currently owned by this dialog, for
// lifecycle checks (e.g. "has this dialog terminated all its usages").
func (d *Dialog) Usages() []usage.Usage {
	var all []usage.Usage
	if d.inviteUsage != nil {
		all = append(all, d.inviteUsage)
	}
	for _, s := range d.clientSubscriptions {
		all = append(all, s)
	}
	for _, s := range d.serverSubscriptions {
		all = append(all, s)
	}
	all = append(all, d.otherUsages...)
	return all
}

// Done reports whether every usage this dialog owns has terminated.
func (d *Dialog) Done() bool {
	for _, u := range d.Usages() {
		if !u.Done() {
			return false
		}
	}
	return true
}
