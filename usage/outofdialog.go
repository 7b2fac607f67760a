package usage

import (
	"fmt"

	"github.com/emiago/sipgo/sip"
)

// ClientOutOfDialog wraps a single standalone request/response exchange
// with no dialog state of its own (e.g. OPTIONS, INFO sent outside a
// dialog).
type ClientOutOfDialog struct {
	method sip.RequestMethod
	done   bool
}

// NewClientOutOfDialog builds a ClientOutOfDialog for the given method.
func NewClientOutOfDialog(method sip.RequestMethod) *ClientOutOfDialog {
	return &ClientOutOfDialog{method: method}
}

func (c *ClientOutOfDialog) Kind() Kind { return KindClientOutOfDialog }

func (c *ClientOutOfDialog) Dispatch(msg sip.Message) error {
	if _, ok := msg.(*sip.Response); !ok {
		return fmt.Errorf("usage: ClientOutOfDialog.Dispatch expects a response, got %T", msg)
	}
	c.done = true
	return nil
}

func (c *ClientOutOfDialog) End(reason string) error {
	c.done = true
	return nil
}

func (c *ClientOutOfDialog) OnTimer(timeout string) error {
	c.done = true
	return nil
}

func (c *ClientOutOfDialog) Done() bool { return c.done }

// ServerOutOfDialog is the UAS side of a standalone request.
type ServerOutOfDialog struct {
	method sip.RequestMethod
	done   bool
}

// NewServerOutOfDialog builds a ServerOutOfDialog for the given method.
func NewServerOutOfDialog(method sip.RequestMethod) *ServerOutOfDialog {
	return &ServerOutOfDialog{method: method}
}

func (s *ServerOutOfDialog) Kind() Kind { return KindServerOutOfDialog }

func (s *ServerOutOfDialog) Dispatch(msg sip.Message) error {
	if _, ok := msg.(*sip.Request); !ok {
		return fmt.Errorf("usage: ServerOutOfDialog.Dispatch expects a request, got %T", msg)
	}
	return nil
}

// Responded marks this usage done once the application has sent its
// final response.
func (s *ServerOutOfDialog) Responded() { s.done = true }

func (s *ServerOutOfDialog) End(reason string) error {
	s.done = true
	return nil
}

func (s *ServerOutOfDialog) OnTimer(timeout string) error {
	s.done = true
	return nil
}

func (s *ServerOutOfDialog) Done() bool { return s.done }
