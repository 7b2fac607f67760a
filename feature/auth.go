package feature

import (
	"crypto/rand"
	"encoding/hex"
	"sync"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/icholy/digest"
)

// CredentialSource resolves a digest username to the password this UA
// authenticates it against. Looking it up is the application's job
// (database, config file, RADIUS, ...); this package only drives the
// challenge/verify exchange.
type CredentialSource interface {
	Lookup(username string) (password string, ok bool)
}

const (
	authAlgoMD5  = "MD5"
	nonceExpiry  = 5 * time.Minute
)

// ServerAuthManager is the incoming-side digest authenticator installed
// as the permanent first feature of every incoming chain (spec.md §4.3).
// It challenges requests lacking valid credentials and only lets
// authenticated requests fall through to the rest of the chain.
type ServerAuthManager struct {
	realm  string
	opaque string
	creds  CredentialSource
	nonces sync.Map // nonce -> issued time.Time
}

// NewServerAuthManager builds a ServerAuthManager challenging against
// realm, resolving credentials through creds.
func NewServerAuthManager(realm, opaque string, creds CredentialSource) *ServerAuthManager {
	return &ServerAuthManager{realm: realm, opaque: opaque, creds: creds}
}

func (s *ServerAuthManager) Name() string { return "ServerAuthManager" }

// Process challenges ev.Request if it has no (or a stale/invalid)
// Authorization header, otherwise lets it fall through unconsumed.
func (s *ServerAuthManager) Process(ev *Event) Flags {
	if ev.Request == nil {
		return 0
	}
	req := ev.Request

	h := req.GetHeader("Authorization")
	if h == nil {
		s.challenge(ev)
		return EventTaken | ChainDone
	}

	cred, err := digest.ParseCredentials(h.Value())
	if err != nil {
		s.challenge(ev)
		return EventTaken | ChainDone
	}

	issued, known := s.nonces.Load(cred.Nonce)
	if !known || time.Since(issued.(time.Time)) > nonceExpiry {
		s.challenge(ev)
		return EventTaken | ChainDone
	}

	password, ok := s.creds.Lookup(cred.Username)
	if !ok {
		s.challenge(ev)
		return EventTaken | ChainDone
	}

	chal := digest.Challenge{Realm: s.realm, Nonce: cred.Nonce, Opaque: s.opaque, Algorithm: authAlgoMD5}
	expected, err := digest.Digest(&chal, digest.Options{
		Method:   string(req.Method),
		URI:      cred.URI,
		Username: cred.Username,
		Password: password,
	})
	if err != nil || cred.Response != expected.Response {
		s.challenge(ev)
		return EventTaken | ChainDone
	}

	s.nonces.Delete(cred.Nonce)
	return 0
}

func (s *ServerAuthManager) challenge(ev *Event) {
	nonce := s.generateNonce()
	s.nonces.Store(nonce, time.Now())

	chal := digest.Challenge{Realm: s.realm, Nonce: nonce, Opaque: s.opaque, Algorithm: authAlgoMD5}
	resp := sip.NewResponseFromRequest(ev.Request, 401, "Unauthorized", nil)
	resp.AppendHeader(sip.NewHeader("WWW-Authenticate", chal.String()))
	ev.Response = resp
}

func (s *ServerAuthManager) generateNonce() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(b)
}

// CleanExpiredNonces drops nonces older than the expiry window. Nothing
// in this module calls it; the dispatcher's timers do not run it.
func (s *ServerAuthManager) CleanExpiredNonces(now time.Time) {
	s.nonces.Range(func(key, value any) bool {
		if now.Sub(value.(time.Time)) > nonceExpiry {
			s.nonces.Delete(key)
		}
		return true
	})
}

// ClientAuthManager injects cached digest credentials into outbound
// requests and retries once against a 401/407 challenge, per the
// "send() decorations" described in spec.md §4.1.
type ClientAuthManager struct {
	username string
	password string

	mu         sync.Mutex
	lastDigest map[string]string // realm -> cached Authorization value, reused until challenged again
	lastRealm  string            // realm of the most recently cached credential, for proactive injection
}

// NewClientAuthManager builds a ClientAuthManager authenticating as
// (username, password) whenever challenged.
func NewClientAuthManager(username, password string) *ClientAuthManager {
	return &ClientAuthManager{username: username, password: password, lastDigest: make(map[string]string)}
}

func (c *ClientAuthManager) Name() string { return "ClientAuthManager" }

// Process proactively attaches a cached credential to a non-ACK/CANCEL
// request that hasn't been challenged yet (spec.md §4.1's send()
// decoration: "invoke ClientAuthManager to inject cached credentials"),
// and inspects ev.Response for a 401/407 challenge, computing fresh
// credentials and reporting EventTaken so the dispatcher retries the
// decorated request when one is found.
func (c *ClientAuthManager) Process(ev *Event) Flags {
	if ev.Request == nil {
		return 0
	}
	if ev.Response == nil {
		if ev.Request.Method != sip.ACK && ev.Request.Method != sip.CANCEL {
			c.mu.Lock()
			c.injectCached(ev.Request)
			c.mu.Unlock()
		}
		return 0
	}
	resp := ev.Response
	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		return 0
	}

	headerName := "WWW-Authenticate"
	credHeader := "Authorization"
	if resp.StatusCode == 407 {
		headerName = "Proxy-Authenticate"
		credHeader = "Proxy-Authorization"
	}

	challengeHeader := resp.GetHeader(headerName)
	if challengeHeader == nil || ev.Request == nil {
		return 0
	}

	chal, err := digest.ParseChallenge(challengeHeader.Value())
	if err != nil {
		return 0
	}

	cred, err := digest.Digest(chal, digest.Options{
		Method:   string(ev.Request.Method),
		URI:      ev.Request.Recipient.String(),
		Username: c.username,
		Password: c.password,
	})
	if err != nil {
		return 0
	}

	ev.Request.RemoveHeader(credHeader)
	ev.Request.AppendHeader(sip.NewHeader(credHeader, cred.String()))

	c.mu.Lock()
	c.lastDigest[chal.Realm] = cred.String()
	c.lastRealm = chal.Realm
	c.mu.Unlock()

	return EventTaken | ChainDone
}

// injectCached attaches the most recently cached credential, if any,
// replacing whatever Authorization req already carries. Caller must hold
// c.mu.
func (c *ClientAuthManager) injectCached(req *sip.Request) {
	if c.lastRealm == "" {
		return
	}
	cached, ok := c.lastDigest[c.lastRealm]
	if !ok {
		return
	}
	req.RemoveHeader("Authorization")
	req.AppendHeader(sip.NewHeader("Authorization", cached))
}

// EncryptionManager is the opaque hook around the out-of-scope TLS/DTLS/
// SRTP security provider (spec.md §1). It is always installed last in the
// outgoing chain (§4.3); this module never implements transport security
// itself, only the extension point an embedder wires a provider into.
type EncryptionManager struct {
	// Apply, if non-nil, is invoked against every outbound request before
	// it leaves the chain (e.g. to request a TLS transport, attach an
	// SRTP crypto offer, or similar). A nil Apply makes this a no-op
	// pass-through.
	Apply func(req *sip.Request) error
}

func (e *EncryptionManager) Name() string { return "EncryptionManager" }

func (e *EncryptionManager) Process(ev *Event) Flags {
	if e.Apply == nil || ev.Request == nil {
		return ChainDone
	}
	if err := e.Apply(ev.Request); err != nil {
		return EventTaken | ChainDone
	}
	return ChainDone
}
