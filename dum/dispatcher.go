// Package dum implements the top-level Dialog Usage Manager dispatcher:
// a single-threaded actor draining one event queue, classifying inbound
// SIP messages (spec.md §4.1), and owning the DialogSetMap, Creators,
// feature chains and persistence stores that make up a usage-manager.
//
// Grounded directly on original_source/resip/dum/DialogUsageManager.cxx
// for the actual classification sequence (internalProcess/processRequest/
// processResponse/processPublish/mergeRequest), since the distilled spec
// is silent on several of these edge cases; translated from resip's
// Fifo<Message>+Mutex model into a Go channel drained by one goroutine.
package dum

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/rs/zerolog"

	"github.com/sipdum/dum/dialogset"
	"github.com/sipdum/dum/dumerr"
	"github.com/sipdum/dum/feature"
	"github.com/sipdum/dum/metrics"
	"github.com/sipdum/dum/profile"
	"github.com/sipdum/dum/sipstack"
	"github.com/sipdum/dum/store"
)

// ShutdownState is the dispatcher's teardown state machine (spec.md §7):
// Running -> ShutdownRequested -> RemovingTransactionUser -> Shutdown ->
// Destroying.
type ShutdownState int

const (
	Running ShutdownState = iota
	ShutdownRequested
	RemovingTransactionUser
	Shutdown
	Destroying
)

func (s ShutdownState) String() string {
	switch s {
	case Running:
		return "running"
	case ShutdownRequested:
		return "shutdown_requested"
	case RemovingTransactionUser:
		return "removing_transaction_user"
	case Shutdown:
		return "shutdown"
	case Destroying:
		return "destroying"
	default:
		return "unknown"
	}
}

// ShutdownHandler is notified once the dispatcher has finished tearing
// down and may be deleted.
type ShutdownHandler interface {
	OnDumCanBeDeleted()
}

// Dispatcher is the DUM actor. Exactly one goroutine may call Process at
// a time; every mutable field below (dialog sets, merge cache, shutdown
// state) is touched only from inside Process, so none of it needs a
// mutex — the same reasoning already applied to handlearena and
// dialogset.Map.
type Dispatcher struct {
	stack   sipstack.Stack
	master  *profile.MasterProfile
	profile *profile.UserProfile
	sets    *dialogset.Map
	regs    store.RegistrationStore
	pubs    store.PublicationStore
	metrics *metrics.Collector
	log     zerolog.Logger

	features *feature.Set

	shutdownState   ShutdownState
	shutdownHandler ShutdownHandler

	merged   map[mergeKey]time.Time
	mergeTTL time.Duration

	keepAlive KeepAliveManager
	external  []ExternalMessageHandler

	// autoAnswerInvite, when non-nil, makes the dispatcher itself accept
	// every inbound INVITE that opens a new ServerInvite usage rather than
	// leaving it Proceeding for the application to answer (spec.md §6 has
	// no dedicated option for this; it's an opt-in convenience for
	// embedders with no call-handling logic of their own, e.g. cmd/dumecho).
	autoAnswerInvite *autoAnswerBody

	// pending holds work already pulled off stack.Events()/timers.fires
	// by a readiness check (HasEvents/moreAvailable) and not yet handled.
	pending []workItem

	timers *timerWheel
}

// autoAnswerBody is the 200 OK body WithAutoAnswerInvite attaches.
type autoAnswerBody struct {
	contentType string
	body        []byte
}

// workItem is either a network event or an expired usage timer; Process
// handles exactly one per call regardless of which.
type workItem struct {
	netEvent  sipstack.Event
	hasNet    bool
	timerFire timerFire
	hasTimer  bool
}

// Option configures a Dispatcher at construction time.
type Option func(*Dispatcher)

// WithRegistrationStore overrides the default in-memory registration
// store.
func WithRegistrationStore(s store.RegistrationStore) Option {
	return func(d *Dispatcher) { d.regs = s }
}

// WithPublicationStore overrides the default in-memory publication
// store.
func WithPublicationStore(s store.PublicationStore) Option {
	return func(d *Dispatcher) { d.pubs = s }
}

// WithMetrics attaches a metrics.Collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

// WithLogger overrides the default zerolog.Logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithMergeDetectionTTL overrides the default 32s window a request's
// merge key is remembered for (RFC 3261 §8.2.2.2's TF interval).
func WithMergeDetectionTTL(d time.Duration) Option {
	return func(disp *Dispatcher) { disp.mergeTTL = d }
}

// WithFeatures installs the incoming/outgoing feature chains (auth,
// encryption) every request/response is run through.
func WithFeatures(f *feature.Set) Option {
	return func(d *Dispatcher) { d.features = f }
}

// WithKeepAliveManager installs a KeepAliveManager for flow-keepalive
// pong routing (spec.md §6).
func WithKeepAliveManager(k KeepAliveManager) Option {
	return func(d *Dispatcher) { d.keepAlive = k }
}

// WithDefaultUserProfile overrides the UserProfile consulted for requests
// that arrive with no matching DialogSet yet (spec.md §6: "the dispatcher
// holds one master profile consulted when no dialog context exists" —
// extended here to the paired UserProfile the validator pipeline needs
// alongside it). Defaults to a bare profile built against master with no
// address and no validation policy enabled.
func WithDefaultUserProfile(up *profile.UserProfile) Option {
	return func(d *Dispatcher) { d.profile = up }
}

// WithAutoAnswerInvite makes the dispatcher answer every inbound INVITE
// that opens a new ServerInvite usage with an immediate 200 OK carrying
// the given body, instead of leaving it in the Proceeding state for the
// application to drive via ServerInvite.Accept/Provisional/Reject.
func WithAutoAnswerInvite(contentType string, body []byte) Option {
	return func(d *Dispatcher) { d.autoAnswerInvite = &autoAnswerBody{contentType: contentType, body: body} }
}

// New builds a Dispatcher bound to stack and master profile.
func New(stack sipstack.Stack, master *profile.MasterProfile, opts ...Option) *Dispatcher {
	defaultProfile, _ := profile.NewUserProfile(master, sip.Uri{})
	d := &Dispatcher{
		stack:    stack,
		master:   master,
		profile:  defaultProfile,
		sets:     dialogset.NewMap(),
		regs:     store.NewMemRegistrationStore(),
		pubs:     store.NewMemPublicationStore(),
		log:      zerolog.Nop(),
		merged:   make(map[mergeKey]time.Time),
		mergeTTL: 32 * time.Second,
		timers:   newTimerWheel(),
	}
	for _, o := range opts {
		o(d)
	}
	if err := d.stack.RegisterTU(); err != nil {
		d.log.Error().Err(err).Msg("dum: failed to register transaction user")
	}
	return d
}

// AddExternalMessageHandler registers a handler for application-injected
// events that aren't themselves SIP messages (spec.md §6).
func (d *Dispatcher) AddExternalMessageHandler(h ExternalMessageHandler) {
	d.external = append(d.external, h)
}

// ClearExternalMessageHandlers removes every registered external message
// handler.
func (d *Dispatcher) ClearExternalMessageHandlers() {
	d.external = nil
}

// HasEvents reports whether the dispatcher has at least one event ready
// without blocking, buffering it internally if so.
func (d *Dispatcher) HasEvents() bool {
	if len(d.pending) > 0 {
		return true
	}
	return d.moreAvailable()
}

// moreAvailable peeks the stack's event channel and the timer wheel
// without blocking, buffering anything found onto d.pending for the
// next Process call.
func (d *Dispatcher) moreAvailable() bool {
	select {
	case ev, ok := <-d.stack.Events():
		if !ok {
			return false
		}
		d.pending = append(d.pending, workItem{netEvent: ev, hasNet: true})
		return true
	case tf := <-d.timers.fires:
		d.pending = append(d.pending, workItem{timerFire: tf, hasTimer: true})
		return true
	default:
		return false
	}
}

// Process drains and handles at most one event, blocking up to timeout
// (zero blocks until ctx is done; negative never blocks). It returns
// true if more events are ready, mirroring
// DialogUsageManager::process(timeoutMs, mutex)'s "return true if there
// is more to do" contract, translated to Go's idiom of returning an
// error instead of asserting on misuse.
func (d *Dispatcher) Process(ctx context.Context, timeout time.Duration) (bool, error) {
	if d.shutdownState == Shutdown {
		return false, nil
	}

	ev, ok, err := d.nextEvent(ctx, timeout)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if d.metrics != nil {
		start := time.Now()
		defer func() { d.metrics.EventProcessTime.Observe(time.Since(start).Seconds()) }()
	}

	if err := d.dispatchEvent(ev); err != nil {
		if d.metrics != nil {
			d.metrics.DispatchErrors.WithLabelValues(string(dumerr.CategoryOf(err))).Inc()
		}
		d.log.Error().Err(err).Msg("dum: error processing event")
	}

	return d.HasEvents(), nil
}

func (d *Dispatcher) nextEvent(ctx context.Context, timeout time.Duration) (workItem, bool, error) {
	if len(d.pending) > 0 {
		w := d.pending[0]
		d.pending = d.pending[1:]
		return w, true, nil
	}

	if timeout < 0 {
		select {
		case ev, ok := <-d.stack.Events():
			if !ok {
				return workItem{}, false, nil
			}
			return workItem{netEvent: ev, hasNet: true}, true, nil
		case tf := <-d.timers.fires:
			return workItem{timerFire: tf, hasTimer: true}, true, nil
		default:
			return workItem{}, false, nil
		}
	}

	var timerC <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timerC = t.C
	}

	select {
	case ev, ok := <-d.stack.Events():
		if !ok {
			return workItem{}, false, nil
		}
		return workItem{netEvent: ev, hasNet: true}, true, nil
	case tf := <-d.timers.fires:
		return workItem{timerFire: tf, hasTimer: true}, true, nil
	case <-timerC:
		return workItem{}, false, nil
	case <-ctx.Done():
		return workItem{}, false, ctx.Err()
	}
}

func (d *Dispatcher) dispatchEvent(w workItem) error {
	switch {
	case w.hasNet:
		switch w.netEvent.Kind {
		case sipstack.EventRequest:
			return d.incomingProcess(w.netEvent.Req, w.netEvent.Tx)
		case sipstack.EventResponse:
			return d.outgoingProcess(w.netEvent.Resp)
		case sipstack.EventTURemoved:
			return d.onTransactionUserRemoved()
		default:
			return dumerr.New(dumerr.CategoryProtocol, fmt.Sprintf("unknown event kind %d", w.netEvent.Kind))
		}
	case w.hasTimer:
		return w.timerFire.target.OnTimer(w.timerFire.timeout)
	default:
		return dumerr.New(dumerr.CategoryProtocol, "empty work item")
	}
}

// DialogSets exposes the live DialogSetMap for inspection/tests.
func (d *Dispatcher) DialogSets() *dialogset.Map { return d.sets }

// MasterProfile returns the dispatcher's master profile.
func (d *Dispatcher) MasterProfile() *profile.MasterProfile { return d.master }

// ShutdownState reports the current teardown phase.
func (d *Dispatcher) ShutdownState() ShutdownState { return d.shutdownState }
