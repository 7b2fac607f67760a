package dum

// KeepAliveManager receives flow-keepalive pong notifications, which the
// dispatcher forwards through NotifyPong. The dispatcher never calls
// Process: no timer in this package drives periodic keepalives. Grounded on
// DialogUsageManager::setKeepAliveManager / KeepAliveManager's role in
// the original implementation, generalized to an interface since this
// module has no concrete flow/connection type of its own (spec.md's
// Non-goals exclude transport implementation).
type KeepAliveManager interface {
	// ReceivedPong is invoked when a keepalive response arrives on flow.
	ReceivedPong(flow string)
	// Process is invoked on the keepalive interval timer.
	Process()
}

// ExternalMessageHandler lets an application inject and observe events
// that are not themselves SIP messages — e.g. a REST call (spec.md §6).
// Injected events do not pass through the dispatcher's event queue; see
// InjectExternal.
type ExternalMessageHandler interface {
	// OnExternalMessage is called once per injected event, in dispatcher
	// order.
	OnExternalMessage(payload any)
}

// InjectExternal delivers an application-defined payload to every
// registered ExternalMessageHandler, in registration order, synchronously
// on the calling goroutine. It does not enqueue the payload behind pending
// network events, and every handler is called; none can stop delivery to
// the ones after it.
func (d *Dispatcher) InjectExternal(payload any) {
	for _, h := range d.external {
		h.OnExternalMessage(payload)
	}
}

// NotifyPong forwards a keepalive pong to the installed KeepAliveManager,
// if any.
func (d *Dispatcher) NotifyPong(flow string) {
	if d.keepAlive != nil {
		d.keepAlive.ReceivedPong(flow)
	}
}
