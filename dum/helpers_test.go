package dum

import (
	"context"
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"

	"github.com/sipdum/dum/profile"
	"github.com/sipdum/dum/sipstack"
)

// fakeStack is a minimal sipstack.Stack that hands back whatever is
// written to events and records every response/request sent through it.
type fakeStack struct {
	events chan sipstack.Event
	sent   []*sip.Response
}

func newFakeStack() *fakeStack {
	return &fakeStack{events: make(chan sipstack.Event, 16)}
}

func (f *fakeStack) Events() <-chan sipstack.Event { return f.events }

func (f *fakeStack) SendRequest(ctx context.Context, req *sip.Request) (sip.ClientTransaction, error) {
	return nil, nil
}

func (f *fakeStack) SendResponse(tx sip.ServerTransaction, resp *sip.Response) error {
	f.sent = append(f.sent, resp)
	return tx.Respond(resp)
}

func (f *fakeStack) RegisterTU() error { return nil }

func (f *fakeStack) RemoveTU() { f.events <- sipstack.Event{Kind: sipstack.EventTURemoved} }

func (f *fakeStack) Close() error { close(f.events); return nil }

// fakeServerTx is a minimal sip.ServerTransaction recording every
// response it's asked to send.
type fakeServerTx struct {
	responses []*sip.Response
	done      chan struct{}
	acks      chan *sip.Request
}

func newFakeServerTx() *fakeServerTx {
	return &fakeServerTx{done: make(chan struct{}), acks: make(chan *sip.Request, 1)}
}

func (tx *fakeServerTx) Respond(res *sip.Response) error {
	tx.responses = append(tx.responses, res)
	return nil
}
func (tx *fakeServerTx) Acks() <-chan *sip.Request       { return tx.acks }
func (tx *fakeServerTx) OnCancel(f sip.FnTxCancel) bool  { return true }
func (tx *fakeServerTx) Terminate()                      {}
func (tx *fakeServerTx) OnTerminate(f sip.FnTxTerminate) bool { return true }
func (tx *fakeServerTx) Done() <-chan struct{}           { return tx.done }
func (tx *fakeServerTx) Err() error                      { return nil }

func testMasterProfile(t *testing.T) *profile.MasterProfile {
	t.Helper()
	m, err := profile.NewMasterProfile()
	require.NoError(t, err)
	return m
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *fakeStack) {
	t.Helper()
	stack := newFakeStack()
	d := New(stack, testMasterProfile(t))
	return d, stack
}

func sipRequest(t *testing.T, method sip.RequestMethod, target string) *sip.Request {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri(target, &u))
	return sip.NewRequest(method, u)
}

func sipURI(t *testing.T, raw string) sip.Uri {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri(raw, &u))
	return u
}
