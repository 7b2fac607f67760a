package dum

import (
	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/profile"
)

// anonymousStrippedHeaders are removed from outbound requests built under
// an anonymous UserProfile, per spec.md §4.1's send() decoration list.
var anonymousStrippedHeaders = []string{
	"Reply-To", "User-Agent", "Organization", "Server",
	"Subject", "In-Reply-To", "Call-Info", "Warning",
}

// decorate applies the header-level adjustments spec.md §4.1 lists under
// send(msg), ahead of the outgoing feature chain: User-Agent or anonymous
// header stripping, Proxy-Require, a fresh top Via, and the profile's
// rport/fixed-transport/outbound-proxy/client-outbound policy.
func decorate(req *sip.Request, up *profile.UserProfile) {
	if up.Anonymous() {
		for _, name := range anonymousStrippedHeaders {
			req.RemoveHeader(name)
		}
	} else if ua := up.UserAgent(); ua != "" {
		req.RemoveHeader("User-Agent")
		req.AppendHeader(sip.NewHeader("User-Agent", ua))
	}

	mp := up.Master()

	if req.Method != sip.ACK && req.Method != sip.CANCEL {
		applyProxyRequires(req, up)
		resetOutboundVia(req, mp)
		applyForceOutboundProxy(req, mp)
		applyClientOutbound(req, mp)
	}
}

// applyProxyRequires attaches the profile's Proxy-Require tags if the
// request doesn't already carry them (creator.skeleton puts them on the
// first request of a usage; this covers any other path that reaches send()
// without going through a Creator).
func applyProxyRequires(req *sip.Request, up *profile.UserProfile) {
	if req.GetHeader("Proxy-Require") != nil {
		return
	}
	for _, tag := range up.ProxyRequires() {
		req.AppendHeader(sip.NewHeader("Proxy-Require", tag))
	}
}

// resetOutboundVia rebuilds the top Via with a fresh branch, the shape
// DialogUsageManager::send gives every new client transaction, and folds
// in RportEnabled/FixedTransportPort/FixedTransportInterface. Host/port are
// left for the transport layer to fill in when the profile pins neither.
func resetOutboundVia(req *sip.Request, mp *profile.MasterProfile) {
	transport, host, port := "UDP", "", 0
	if via, ok := req.Via(); ok && via != nil {
		transport, host, port = via.Transport, via.Host, via.Port
		req.RemoveHeader("Via")
	}

	if mp != nil {
		if fixedPort, iface, fixed := mp.FixedTransport(); fixed {
			if fixedPort > 0 {
				port = fixedPort
			}
			if iface != "" {
				host = iface
			}
		}
	}

	via := &sip.ViaHeader{
		ProtocolName:    "SIP",
		ProtocolVersion: "2.0",
		Transport:       transport,
		Host:            host,
		Port:            port,
		Params:          sip.NewParams(),
	}
	via.Params.Add("branch", sip.GenerateBranch())
	if mp != nil && mp.RportEnabled() {
		via.Params.Add("rport", "")
	}
	req.PrependHeader(via)
}

// applyForceOutboundProxy routes req through the configured outbound proxy
// even when it would otherwise follow a dialog's own route set, by pushing
// the proxy onto the top of the Route set.
func applyForceOutboundProxy(req *sip.Request, mp *profile.MasterProfile) {
	if mp == nil || !mp.ForceOutboundProxyOnAllRequests() {
		return
	}
	proxy, ok := mp.OutboundProxy()
	if !ok {
		return
	}
	req.PrependHeader(&sip.RouteHeader{Address: proxy})
}

// applyClientOutbound marks req's Contact as belonging to the registered
// RFC 5626 outbound flow, so a downstream proxy keeps routing responses
// and subsequent requests back down the same connection.
func applyClientOutbound(req *sip.Request, mp *profile.MasterProfile) {
	if mp == nil {
		return
	}
	if _, ok := mp.ClientOutbound(); !ok {
		return
	}
	contact, ok := req.Contact()
	if !ok || contact == nil {
		return
	}
	contact.Params.Add("ob", "")
}
