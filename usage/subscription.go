package usage

import (
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
)

// subState mirrors the Subscription-State values RFC 3265 defines.
type subState string

const (
	subPending     subState = "pending"
	subActive      subState = "active"
	subTerminated  subState = "terminated"
)

// ClientSubscription is the UAC side of a SUBSCRIBE/NOTIFY relationship.
type ClientSubscription struct {
	event   string
	state   subState
	expires time.Time
}

// NewClientSubscription builds a ClientSubscription that has just sent
// its SUBSCRIBE.
func NewClientSubscription(event string, expires time.Time) *ClientSubscription {
	return &ClientSubscription{event: event, state: subPending, expires: expires}
}

func (c *ClientSubscription) Kind() Kind { return KindClientSubscription }

// Event returns the subscribed event package.
func (c *ClientSubscription) Event() string { return c.event }

func (c *ClientSubscription) Dispatch(msg sip.Message) error {
	req, ok := msg.(*sip.Request)
	if !ok {
		return fmt.Errorf("usage: ClientSubscription.Dispatch expects NOTIFY, got %T", msg)
	}
	if req.Method != sip.NOTIFY {
		return nil
	}
	h := req.GetHeader("Subscription-State")
	if h == nil {
		return nil
	}
	switch {
	case h.Value() == "active" || len(h.Value()) >= 6 && h.Value()[:6] == "active":
		c.state = subActive
	case len(h.Value()) >= 10 && h.Value()[:10] == "terminated":
		c.state = subTerminated
	}
	return nil
}

func (c *ClientSubscription) End(reason string) error {
	c.state = subTerminated
	return nil
}

func (c *ClientSubscription) OnTimer(timeout string) error {
	if timeout == "subscription-expires" {
		c.state = subTerminated
	}
	return nil
}

func (c *ClientSubscription) Done() bool { return c.state == subTerminated }

// ServerSubscription is the UAS side: it received a SUBSCRIBE and sends
// NOTIFYs for the lifetime of the subscription.
type ServerSubscription struct {
	event   string
	state   subState
	expires time.Time
}

// NewServerSubscription builds a ServerSubscription that has just
// accepted a SUBSCRIBE.
func NewServerSubscription(event string, expires time.Time) *ServerSubscription {
	return &ServerSubscription{event: event, state: subActive, expires: expires}
}

func (s *ServerSubscription) Kind() Kind { return KindServerSubscription }

// Event returns the subscribed event package.
func (s *ServerSubscription) Event() string { return s.event }

// Expires returns the subscription's current expiry.
func (s *ServerSubscription) Expires() time.Time { return s.expires }

// Refresh extends the subscription, e.g. on a re-SUBSCRIBE.
func (s *ServerSubscription) Refresh(newExpires time.Time) {
	s.expires = newExpires
	s.state = subActive
}

func (s *ServerSubscription) Dispatch(msg sip.Message) error {
	req, ok := msg.(*sip.Request)
	if !ok {
		return fmt.Errorf("usage: ServerSubscription.Dispatch expects SUBSCRIBE, got %T", msg)
	}
	if req.Method != sip.SUBSCRIBE {
		return nil
	}
	if exp := req.GetHeader("Expires"); exp != nil && exp.Value() == "0" {
		s.state = subTerminated
	}
	return nil
}

func (s *ServerSubscription) End(reason string) error {
	s.state = subTerminated
	return nil
}

func (s *ServerSubscription) OnTimer(timeout string) error {
	if timeout == "subscription-expires" {
		s.state = subTerminated
	}
	return nil
}

func (s *ServerSubscription) Done() bool { return s.state == subTerminated }
