package usage

import (
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
)

// ClientRegistration is the UAC side of a REGISTER relationship: it
// refreshes its own binding against a registrar on a timer.
type ClientRegistration struct {
	aor     sip.Uri
	expires time.Time
	ended   bool
}

// NewClientRegistration builds a ClientRegistration that has just sent
// its initial REGISTER.
func NewClientRegistration(aor sip.Uri, expires time.Time) *ClientRegistration {
	return &ClientRegistration{aor: aor, expires: expires}
}

func (c *ClientRegistration) Kind() Kind { return KindClientRegistration }

func (c *ClientRegistration) Dispatch(msg sip.Message) error {
	resp, ok := msg.(*sip.Response)
	if !ok {
		return fmt.Errorf("usage: ClientRegistration.Dispatch expects a response, got %T", msg)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if exp := resp.GetHeader("Expires"); exp != nil {
			// Caller re-parses into a concrete time; state here only
			// tracks whether the binding is still considered live.
		}
	}
	if resp.StatusCode >= 300 {
		c.ended = true
	}
	return nil
}

// Refresh updates the locally tracked expiry after a successful refresh.
func (c *ClientRegistration) Refresh(expires time.Time) { c.expires = expires }

func (c *ClientRegistration) End(reason string) error {
	c.ended = true
	return nil
}

func (c *ClientRegistration) OnTimer(timeout string) error {
	if timeout == "registration-expires" && time.Now().After(c.expires) {
		c.ended = true
	}
	return nil
}

func (c *ClientRegistration) Done() bool { return c.ended }

// ServerRegistration is the UAS/registrar side: it owns the binding set
// for one address-of-record. OnConnectionTerminated ends it; the
// dispatcher does not route connection-termination notifications to it.
type ServerRegistration struct {
	aor   sip.Uri
	ended bool
}

// NewServerRegistration builds a ServerRegistration for aor.
func NewServerRegistration(aor sip.Uri) *ServerRegistration {
	return &ServerRegistration{aor: aor}
}

func (s *ServerRegistration) Kind() Kind { return KindServerRegistration }

func (s *ServerRegistration) Dispatch(msg sip.Message) error {
	req, ok := msg.(*sip.Request)
	if !ok {
		return fmt.Errorf("usage: ServerRegistration.Dispatch expects REGISTER, got %T", msg)
	}
	if req.Method != sip.REGISTER {
		return nil
	}
	if exp := req.GetHeader("Expires"); exp != nil && exp.Value() == "0" {
		s.ended = true
	}
	return nil
}

// OnConnectionTerminated ends the registration in response to a
// flow-level connection-termination notification.
func (s *ServerRegistration) OnConnectionTerminated() {
	s.ended = true
}

func (s *ServerRegistration) End(reason string) error {
	s.ended = true
	return nil
}

func (s *ServerRegistration) OnTimer(timeout string) error { return nil }

func (s *ServerRegistration) Done() bool { return s.ended }
