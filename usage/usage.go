// Package usage implements the twelve tagged variants of spec.md §3's
// abstract Usage: ClientInvite, ServerInvite, ClientSubscription,
// ServerSubscription, ClientPublication, ServerPublication,
// ClientRegistration, ServerRegistration, ClientOutOfDialog,
// ServerOutOfDialog, ClientPagerMessage, ServerPagerMessage. Each
// implements the shared capability set {dispatch, end, onTimer} spec.md
// §3 names, replacing the source's Usage class hierarchy with a closed
// set of Go structs per the Design Notes §9 "tagged variants" direction.
package usage

import "github.com/emiago/sipgo/sip"

// Kind identifies which of the twelve variants a Usage value is.
type Kind string

const (
	KindClientInvite        Kind = "ClientInvite"
	KindServerInvite        Kind = "ServerInvite"
	KindClientSubscription  Kind = "ClientSubscription"
	KindServerSubscription  Kind = "ServerSubscription"
	KindClientPublication   Kind = "ClientPublication"
	KindServerPublication   Kind = "ServerPublication"
	KindClientRegistration  Kind = "ClientRegistration"
	KindServerRegistration  Kind = "ServerRegistration"
	KindClientOutOfDialog   Kind = "ClientOutOfDialog"
	KindServerOutOfDialog   Kind = "ServerOutOfDialog"
	KindClientPagerMessage  Kind = "ClientPagerMessage"
	KindServerPagerMessage  Kind = "ServerPagerMessage"
)

// Usage is the capability set every variant implements: dispatch an
// incoming message, end the usage with a reason, and handle a DumTimeout
// addressed to it.
type Usage interface {
	Kind() Kind
	Dispatch(msg sip.Message) error
	End(reason string) error
	OnTimer(timeout string) error
	// Done reports whether the usage has reached a terminal state and can
	// be removed from its owning Dialog.
	Done() bool
}
