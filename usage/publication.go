package usage

import (
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
)

// ClientPublication is the UAC side of a PUBLISH relationship, tracking
// the SIP-ETag the server assigned so refreshes carry SIP-If-Match.
type ClientPublication struct {
	event   string
	etag    string
	expires time.Time
	ended   bool
}

// NewClientPublication builds a ClientPublication that has just sent its
// initial (no If-Match) PUBLISH.
func NewClientPublication(event string, expires time.Time) *ClientPublication {
	return &ClientPublication{event: event, expires: expires}
}

func (c *ClientPublication) Kind() Kind { return KindClientPublication }

// ETag returns the last SIP-ETag this publication was assigned.
func (c *ClientPublication) ETag() string { return c.etag }

func (c *ClientPublication) Dispatch(msg sip.Message) error {
	resp, ok := msg.(*sip.Response)
	if !ok {
		return fmt.Errorf("usage: ClientPublication.Dispatch expects a response, got %T", msg)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if h := resp.GetHeader("SIP-ETag"); h != nil {
			c.etag = h.Value()
		}
		return nil
	}
	if resp.StatusCode >= 300 {
		c.ended = true
	}
	return nil
}

func (c *ClientPublication) End(reason string) error {
	c.ended = true
	return nil
}

func (c *ClientPublication) OnTimer(timeout string) error {
	if timeout == "publication-expires" && time.Now().After(c.expires) {
		c.ended = true
	}
	return nil
}

func (c *ClientPublication) Done() bool { return c.ended }

// ServerPublication is the UAS side: it stores the published event-state
// document and the ETag a subsequent PUBLISH must present to modify it
// (spec.md §4.2).
type ServerPublication struct {
	event   string
	etag    string
	expires time.Time
	ended   bool
}

// NewServerPublication builds a ServerPublication with an
// already-assigned ETag. The dispatcher's own PUBLISH handling keeps
// publications in its PublicationStore and does not construct this usage.
func NewServerPublication(event, etag string, expires time.Time) *ServerPublication {
	return &ServerPublication{event: event, etag: etag, expires: expires}
}

func (s *ServerPublication) Kind() Kind { return KindServerPublication }

// ETag returns the current SIP-ETag.
func (s *ServerPublication) ETag() string { return s.etag }

// Expires returns the publication's current expiry.
func (s *ServerPublication) Expires() time.Time { return s.expires }

// Refresh replaces the stored ETag/expiry after a matching PUBLISH.
func (s *ServerPublication) Refresh(newETag string, newExpires time.Time) {
	s.etag = newETag
	s.expires = newExpires
}

func (s *ServerPublication) Dispatch(msg sip.Message) error {
	req, ok := msg.(*sip.Request)
	if !ok {
		return fmt.Errorf("usage: ServerPublication.Dispatch expects PUBLISH, got %T", msg)
	}
	if req.Method != sip.PUBLISH {
		return nil
	}
	if exp := req.GetHeader("Expires"); exp != nil && exp.Value() == "0" {
		s.ended = true
	}
	return nil
}

func (s *ServerPublication) End(reason string) error {
	s.ended = true
	return nil
}

func (s *ServerPublication) OnTimer(timeout string) error {
	if timeout == "publication-expires" && time.Now().After(s.expires) {
		s.ended = true
	}
	return nil
}

func (s *ServerPublication) Done() bool { return s.ended }
