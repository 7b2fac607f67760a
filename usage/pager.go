package usage

import (
	"fmt"

	"github.com/emiago/sipgo/sip"
)

// ClientPagerMessage wraps one outbound MESSAGE (RFC 3428): it never
// establishes a dialog and completes as soon as a final response lands.
type ClientPagerMessage struct {
	done   bool
	status int
}

// NewClientPagerMessage builds a ClientPagerMessage that has just sent
// its MESSAGE.
func NewClientPagerMessage() *ClientPagerMessage {
	return &ClientPagerMessage{}
}

func (c *ClientPagerMessage) Kind() Kind { return KindClientPagerMessage }

// StatusCode returns the final response code once Done.
func (c *ClientPagerMessage) StatusCode() int { return c.status }

func (c *ClientPagerMessage) Dispatch(msg sip.Message) error {
	resp, ok := msg.(*sip.Response)
	if !ok {
		return fmt.Errorf("usage: ClientPagerMessage.Dispatch expects a response, got %T", msg)
	}
	if resp.StatusCode >= 200 {
		c.status = int(resp.StatusCode)
		c.done = true
	}
	return nil
}

func (c *ClientPagerMessage) End(reason string) error {
	c.done = true
	return nil
}

func (c *ClientPagerMessage) OnTimer(timeout string) error {
	c.done = true
	return nil
}

func (c *ClientPagerMessage) Done() bool { return c.done }

// ServerPagerMessage is one inbound MESSAGE awaiting a final response
// from the application.
type ServerPagerMessage struct {
	body []byte
	done bool
}

// NewServerPagerMessage builds a ServerPagerMessage from the incoming
// MESSAGE's body.
func NewServerPagerMessage(body []byte) *ServerPagerMessage {
	return &ServerPagerMessage{body: body}
}

func (s *ServerPagerMessage) Kind() Kind { return KindServerPagerMessage }

// Body returns the delivered message body.
func (s *ServerPagerMessage) Body() []byte { return s.body }

func (s *ServerPagerMessage) Dispatch(msg sip.Message) error {
	if _, ok := msg.(*sip.Request); !ok {
		return fmt.Errorf("usage: ServerPagerMessage.Dispatch expects a request, got %T", msg)
	}
	return nil
}

// Responded marks this usage done once the application has sent its
// final response.
func (s *ServerPagerMessage) Responded() { s.done = true }

func (s *ServerPagerMessage) End(reason string) error {
	s.done = true
	return nil
}

func (s *ServerPagerMessage) OnTimer(timeout string) error {
	s.done = true
	return nil
}

func (s *ServerPagerMessage) Done() bool { return s.done }
