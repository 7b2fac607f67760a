// Package creator builds the first outbound request of a new usage —
// the six kinds spec.md §2 names: Invite, Subscribe/Refer, Register,
// Publish, OutOfDialog, Pager. Each Creator produces a correct header
// skeleton (RequestLine, From with a fresh local tag, fresh Call-ID,
// CSeq=1, Max-Forwards, Contact, Event/Expires where relevant) per
// spec.md §4.4; the dispatcher wraps the result in a fresh DialogSet.
//
// The skeleton-building itself is grounded on the teacher's own
// commented-out makeRequest2 (teacher_dialog/requests.go) — that sketch of
// From/To/Call-ID/CSeq/Max-Forwards/route-set construction is exactly the
// shape spec.md asks every Creator to produce, generalized here from one
// Dialog method into a family of per-usage-kind builders.
package creator

import (
	"strings"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"

	"github.com/sipdum/dum/profile"
)

// NewTag generates a fresh local tag, grounded on the teacher's own
// uuid.New().String() with dashes stripped (teacher_dialog/
// enhanced_dialog_three_fsm.go).
func NewTag() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewCallID generates a fresh Call-ID value.
func NewCallID() string {
	return uuid.New().String()
}

// skeleton fills in the header fields every Creator shares: From (with a
// fresh tag), Recipient/To, Contact, Call-ID, CSeq, Max-Forwards, and the
// outbound-proxy route set if the master profile calls for one.
func skeleton(method sip.RequestMethod, up *profile.UserProfile, target sip.Uri) *sip.Request {
	req := sip.NewRequest(method, target)
	req.Recipient = target

	fromTag := NewTag()
	displayName := up.DisplayName()
	fromAddress := up.Address()
	if up.Anonymous() {
		displayName = "Anonymous"
	}
	req.AppendHeader(&sip.FromHeader{
		DisplayName: displayName,
		Address:     fromAddress,
		Params:      sip.NewParams().Add("tag", fromTag),
	})

	req.AppendHeader(&sip.ToHeader{
		Address: target,
		Params:  sip.NewParams(),
	})

	req.AppendHeader(up.Contact())

	callID := sip.CallIDHeader(NewCallID())
	req.AppendHeader(&callID)

	req.AppendHeader(&sip.CSeqHeader{SeqNo: 1, MethodName: method})

	maxForwards := sip.MaxForwardsHeader(70)
	req.AppendHeader(&maxForwards)

	if mp := up.Master(); mp != nil {
		if proxy, ok := mp.OutboundProxy(); ok && mp.ExpressOutboundAsRouteSet() {
			req.AppendHeader(&sip.RouteHeader{Address: proxy})
		}
	}

	for _, tag := range up.ProxyRequires() {
		req.AppendHeader(sip.NewHeader("Proxy-Require", tag))
	}

	return req
}

// Invite builds the first INVITE of a new invite session.
func Invite(up *profile.UserProfile, target sip.Uri, body []byte, contentType string) *sip.Request {
	req := skeleton(sip.INVITE, up, target)
	attachBody(req, body, contentType)
	return req
}

// Subscribe builds the first SUBSCRIBE of a new subscription, defaulting
// Expires to the profile's DefaultSubscriptionTime when expires <= 0.
func Subscribe(up *profile.UserProfile, target sip.Uri, event string, expiresSeconds int) *sip.Request {
	req := skeleton(sip.SUBSCRIBE, up, target)
	req.AppendHeader(sip.NewHeader("Event", event))
	if expiresSeconds <= 0 {
		expiresSeconds = int(up.DefaultSubscriptionTime().Seconds())
	}
	exp := sip.ExpiresHeader(expiresSeconds)
	req.AppendHeader(&exp)
	return req
}

// Refer builds the first REFER of a refer usage.
func Refer(up *profile.UserProfile, target sip.Uri, referTo string) *sip.Request {
	req := skeleton(sip.REFER, up, target)
	req.AppendHeader(sip.NewHeader("Refer-To", referTo))
	return req
}

// Register builds a REGISTER for the given address-of-record and
// contact, defaulting Expires to the profile's DefaultRegistrationTime
// when expiresSeconds < 0. A 0 value (explicit unregister) is sent as
// Expires: 0.
func Register(up *profile.UserProfile, registrar sip.Uri, expiresSeconds int) *sip.Request {
	req := skeleton(sip.REGISTER, up, registrar)
	if expiresSeconds < 0 {
		expiresSeconds = int(up.DefaultRegistrationTime().Seconds())
	}
	exp := sip.ExpiresHeader(expiresSeconds)
	req.AppendHeader(&exp)
	return req
}

// Publish builds the first PUBLISH of a publication usage. SIP-If-Match
// is attached by the caller on refresh/modify; this always builds an
// initial (no If-Match) PUBLISH.
func Publish(up *profile.UserProfile, target sip.Uri, event string, expiresSeconds int, body []byte, contentType string) *sip.Request {
	req := skeleton(sip.PUBLISH, up, target)
	req.AppendHeader(sip.NewHeader("Event", event))
	exp := sip.ExpiresHeader(expiresSeconds)
	req.AppendHeader(&exp)
	attachBody(req, body, contentType)
	return req
}

// OutOfDialog builds a standalone request (OPTIONS, INFO, etc.) that
// never establishes a dialog.
func OutOfDialog(up *profile.UserProfile, method sip.RequestMethod, target sip.Uri) *sip.Request {
	return skeleton(method, up, target)
}

// Pager builds a MESSAGE usage's first (and typically only) request.
func Pager(up *profile.UserProfile, target sip.Uri, body []byte, contentType string) *sip.Request {
	req := skeleton(sip.MESSAGE, up, target)
	attachBody(req, body, contentType)
	return req
}

func attachBody(req *sip.Request, body []byte, contentType string) {
	if len(body) == 0 {
		return
	}
	req.SetBody(body)
	ct := sip.ContentTypeHeader(contentType)
	req.AppendHeader(&ct)
	cl := sip.ContentLengthHeader(len(body))
	req.AppendHeader(&cl)
}
