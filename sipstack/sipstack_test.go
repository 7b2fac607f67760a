package sipstack

import (
	"testing"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStack is a minimal in-memory event source used to verify Event
// shape without a real transport.
type fakeStack struct {
	events chan Event
}

func newFakeStack() *fakeStack {
	return &fakeStack{events: make(chan Event, 16)}
}

func (f *fakeStack) Events() <-chan Event { return f.events }

func TestEventCarriesRequestAndTransaction(t *testing.T) {
	f := newFakeStack()
	var u sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.com", &u))
	req := sip.NewRequest(sip.INVITE, u)

	f.events <- Event{Kind: EventRequest, Req: req}
	ev := <-f.events
	assert.Equal(t, EventRequest, ev.Kind)
	assert.Same(t, req, ev.Req)
	assert.Nil(t, ev.Tx)
}

func TestEventCarriesResponse(t *testing.T) {
	f := newFakeStack()
	var u sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.com", &u))
	req := sip.NewRequest(sip.INVITE, u)
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)

	f.events <- Event{Kind: EventResponse, Resp: resp}
	ev := <-f.events
	assert.Equal(t, EventResponse, ev.Kind)
	assert.Same(t, resp, ev.Resp)
}
