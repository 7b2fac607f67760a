package usage

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo/sip"
	"github.com/looplab/fsm"
)

// Invite session states, shared by the client and server variants. Named
// distinctly from teacher_dialog's own E-prefixed state constants since
// this is a fresh state set scoped to just the invite-session lifecycle,
// not the teacher's combined three-FSM dialog/transaction/timer model.
const (
	InviteStateCalling     = "calling"
	InviteStateProceeding  = "proceeding"
	InviteStateEarly       = "early"
	InviteStateConfirmed   = "confirmed"
	InviteStateTerminating = "terminating"
	InviteStateTerminated  = "terminated"
)

func newInviteFSM(initial string) *fsm.FSM {
	return fsm.NewFSM(
		initial,
		fsm.Events{
			{Name: "recv1xx", Src: []string{InviteStateCalling, InviteStateProceeding}, Dst: InviteStateEarly},
			{Name: "recv2xx", Src: []string{InviteStateCalling, InviteStateProceeding, InviteStateEarly}, Dst: InviteStateConfirmed},
			{Name: "recvFailure", Src: []string{InviteStateCalling, InviteStateProceeding, InviteStateEarly}, Dst: InviteStateTerminated},
			{Name: "sendBye", Src: []string{InviteStateConfirmed}, Dst: InviteStateTerminating},
			{Name: "recvBye", Src: []string{InviteStateConfirmed}, Dst: InviteStateTerminated},
			{Name: "byeConfirmed", Src: []string{InviteStateTerminating}, Dst: InviteStateTerminated},
			{Name: "terminate", Src: []string{"*"}, Dst: InviteStateTerminated},
		},
		fsm.Callbacks{},
	)
}

// ClientInvite is the UAC side of an invite session: it sent the INVITE
// and reacts to provisional/final responses.
type ClientInvite struct {
	machine *fsm.FSM
}

// NewClientInvite builds a ClientInvite that has just sent its INVITE.
func NewClientInvite() *ClientInvite {
	return &ClientInvite{machine: newInviteFSM(InviteStateCalling)}
}

func (c *ClientInvite) Kind() Kind { return KindClientInvite }

// State returns the session's current invite state.
func (c *ClientInvite) State() string { return c.machine.Current() }

func (c *ClientInvite) Dispatch(msg sip.Message) error {
	resp, ok := msg.(*sip.Response)
	if !ok {
		return fmt.Errorf("usage: ClientInvite.Dispatch expects a response, got %T", msg)
	}
	switch {
	case resp.StatusCode >= 100 && resp.StatusCode < 200:
		return c.machine.Event(context.Background(), "recv1xx")
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return c.machine.Event(context.Background(), "recv2xx")
	case resp.StatusCode >= 300:
		return c.machine.Event(context.Background(), "recvFailure")
	}
	return nil
}

func (c *ClientInvite) End(reason string) error {
	if c.machine.Current() == InviteStateConfirmed {
		return c.machine.Event(context.Background(), "sendBye")
	}
	return c.machine.Event(context.Background(), "terminate")
}

func (c *ClientInvite) OnTimer(timeout string) error {
	if timeout == "Timer-B-no-answer" {
		return c.machine.Event(context.Background(), "recvFailure")
	}
	return nil
}

func (c *ClientInvite) Done() bool { return c.machine.Current() == InviteStateTerminated }

// ServerInvite is the UAS side of an invite session: it received the
// INVITE and must send provisional/final responses.
type ServerInvite struct {
	machine   *fsm.FSM
	replaced  bool // set when this session was superseded via Replaces
}

// NewServerInvite builds a ServerInvite that has just received an
// INVITE and not yet responded.
func NewServerInvite() *ServerInvite {
	return &ServerInvite{machine: newInviteFSM(InviteStateProceeding)}
}

func (s *ServerInvite) Kind() Kind { return KindServerInvite }

// State returns the session's current invite state.
func (s *ServerInvite) State() string { return s.machine.Current() }

// EarlyOnly reports whether this session would be rejected 486 by a
// Replaces carrying early-only (spec.md §4.6): true only while Early.
func (s *ServerInvite) EarlyOnly() bool { return s.machine.Current() == InviteStateEarly }

// Terminated reports whether the session is in the Terminated state,
// which spec.md §4.6 maps a Replaces lookup to 603.
func (s *ServerInvite) Terminated() bool { return s.machine.Current() == InviteStateTerminated }

func (s *ServerInvite) Dispatch(msg sip.Message) error {
	req, ok := msg.(*sip.Request)
	if !ok {
		return fmt.Errorf("usage: ServerInvite.Dispatch expects a request, got %T", msg)
	}
	switch req.Method {
	case sip.BYE:
		return s.machine.Event(context.Background(), "recvBye")
	case sip.CANCEL:
		return s.machine.Event(context.Background(), "recvFailure")
	}
	return nil
}

// Accept transitions to Confirmed after sending a 2xx final response.
func (s *ServerInvite) Accept() error {
	return s.machine.Event(context.Background(), "recv2xx")
}

// Provisional transitions to Early after sending a 1xx response.
func (s *ServerInvite) Provisional() error {
	return s.machine.Event(context.Background(), "recv1xx")
}

// Reject transitions to Terminated after sending a final failure
// response.
func (s *ServerInvite) Reject() error {
	return s.machine.Event(context.Background(), "recvFailure")
}

func (s *ServerInvite) End(reason string) error {
	if s.machine.Current() == InviteStateConfirmed {
		return s.machine.Event(context.Background(), "sendBye")
	}
	return s.machine.Event(context.Background(), "terminate")
}

func (s *ServerInvite) OnTimer(timeout string) error { return nil }

// MarkReplaced records that this session was superseded by an incoming
// INVITE carrying a Replaces header naming it (RFC 3891 §3).
func (s *ServerInvite) MarkReplaced() { s.replaced = true }

// Replaced reports whether MarkReplaced has been called.
func (s *ServerInvite) Replaced() bool { return s.replaced }

func (s *ServerInvite) Done() bool { return s.machine.Current() == InviteStateTerminated }
