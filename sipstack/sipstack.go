// Package sipstack adapts emiago/sipgo's callback-based transport/UA/
// server/client API into the single-channel event feed the dispatcher
// (package dum) expects. Grounded on
// _examples/emiago-sipgo/server.go's Server.OnRequest/onRequest
// registration and client.go's Client.TransactionRequest, but flattened:
// sipgo calls back per method or per transaction; Stack instead funnels
// every inbound request and every inbound/terminal response into one
// ordered Events() channel, matching SPEC_FULL.md §4.7's requirement
// that the dispatcher be the only consumer of network events.
package sipstack

import (
	"context"
	"fmt"

	"github.com/emiago/sipgo"
	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"
)

// EventKind distinguishes the two shapes an Event can carry.
type EventKind int

const (
	EventRequest EventKind = iota
	EventResponse
	// EventTURemoved acknowledges a prior RemoveTU call: the stack has
	// finished unregistering the dispatcher as its transaction user and
	// it is now safe to collapse RemovingTransactionUser to Shutdown
	// (spec.md §4.1's shutdown state diagram).
	EventTURemoved
)

// Event is one inbound SIP message plus, for requests, the server
// transaction the dispatcher must eventually respond on.
type Event struct {
	Kind EventKind
	Req  *sip.Request
	Resp *sip.Response
	Tx   sip.ServerTransaction // set when Kind == EventRequest
}

// Stack is the transport/transaction-layer surface the dispatcher
// depends on. SipgoStack is the only production implementation; tests
// substitute a fake.
type Stack interface {
	// Events returns the channel every inbound request and response is
	// delivered on, in arrival order.
	Events() <-chan Event

	// SendRequest sends req as a new client transaction and returns it
	// so the dispatcher can correlate later responses/timeouts to it.
	SendRequest(ctx context.Context, req *sip.Request) (sip.ClientTransaction, error)

	// SendResponse sends resp on the given server transaction.
	SendResponse(tx sip.ServerTransaction, resp *sip.Response) error

	// RegisterTU binds the dispatcher to the stack as its sole
	// transaction user, mirroring DialogUsageManager::init's bind to the
	// SipStack.
	RegisterTU() error

	// RemoveTU begins unregistering the transaction user. Completion is
	// signalled asynchronously by an EventTURemoved event on Events(),
	// not by this call returning.
	RemoveTU()

	// Close tears down the underlying transport and transaction layers.
	Close() error
}

// SipgoStack binds sipgo.UserAgent/sipgo.Server/sipgo.Client into a
// Stack.
type SipgoStack struct {
	ua     *sipgo.UserAgent
	server *sipgo.Server
	client *sipgo.Client

	events chan Event
	log    zerolog.Logger

	tuRegistered bool
}

// NewSipgoStack builds a SipgoStack over an already-constructed
// UserAgent, registering handlers for every method spec.md's Usage
// kinds need (INVITE, ACK, BYE, CANCEL, REGISTER, SUBSCRIBE, NOTIFY,
// REFER, PUBLISH, MESSAGE, OPTIONS, INFO, UPDATE, PRACK) so every inbound
// request of interest reaches Events().
func NewSipgoStack(ua *sipgo.UserAgent, logger zerolog.Logger) (*SipgoStack, error) {
	server, err := sipgo.NewServer(ua, sipgo.WithServerLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("sipstack: new server: %w", err)
	}
	client, err := sipgo.NewClient(ua)
	if err != nil {
		return nil, fmt.Errorf("sipstack: new client: %w", err)
	}

	s := &SipgoStack{
		ua:     ua,
		server: server,
		client: client,
		events: make(chan Event, 256),
		log:    logger,
	}

	for _, method := range []sip.RequestMethod{
		sip.INVITE, sip.ACK, sip.BYE, sip.CANCEL,
		sip.REGISTER, sip.SUBSCRIBE, sip.NOTIFY, sip.REFER,
		sip.PUBLISH, sip.MESSAGE, sip.OPTIONS, sip.INFO, sip.UPDATE, sip.PRACK,
	} {
		server.OnRequest(method, s.onRequest)
	}

	return s, nil
}

func (s *SipgoStack) onRequest(req *sip.Request, tx sip.ServerTransaction) {
	s.events <- Event{Kind: EventRequest, Req: req, Tx: tx}
}

// Events implements Stack.
func (s *SipgoStack) Events() <-chan Event { return s.events }

// SendRequest implements Stack. Responses on the returned transaction
// are forwarded onto Events() as they arrive, since sipgo delivers them
// on the transaction's own Responses() channel rather than a shared one.
func (s *SipgoStack) SendRequest(ctx context.Context, req *sip.Request) (sip.ClientTransaction, error) {
	tx, err := s.client.TransactionRequest(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("sipstack: send request: %w", err)
	}
	go s.pumpResponses(tx)
	return tx, nil
}

func (s *SipgoStack) pumpResponses(tx sip.ClientTransaction) {
	for {
		select {
		case resp, ok := <-tx.Responses():
			if !ok {
				return
			}
			s.events <- Event{Kind: EventResponse, Resp: resp}
		case <-tx.Done():
			return
		}
	}
}

// SendResponse implements Stack.
func (s *SipgoStack) SendResponse(tx sip.ServerTransaction, resp *sip.Response) error {
	return tx.Respond(resp)
}

// RegisterTU implements Stack. sipgo's request handlers are already wired
// in NewSipgoStack; this just marks the binding as active so a later
// RemoveTU has something to undo.
func (s *SipgoStack) RegisterTU() error {
	s.tuRegistered = true
	return nil
}

// RemoveTU implements Stack. There is no separate sipgo-level
// unregistration step — the handlers installed in NewSipgoStack simply
// stop mattering once the transport listener is closed — so this
// immediately acknowledges removal onto Events().
func (s *SipgoStack) RemoveTU() {
	s.tuRegistered = false
	s.events <- Event{Kind: EventTURemoved}
}

// Close implements Stack.
func (s *SipgoStack) Close() error {
	close(s.events)
	return s.server.Close()
}

// ListenAndServe starts the underlying transport listener. network is
// one of "udp", "tcp", "ws" per sipgo's Server.ListenAndServe.
func (s *SipgoStack) ListenAndServe(ctx context.Context, network, addr string) error {
	return s.server.ListenAndServe(ctx, network, addr)
}
