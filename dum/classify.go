package dum

import (
	"context"
	"fmt"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/dialog"
	"github.com/sipdum/dum/dialogset"
	"github.com/sipdum/dum/dumerr"
	"github.com/sipdum/dum/feature"
	"github.com/sipdum/dum/profile"
	"github.com/sipdum/dum/store"
	"github.com/sipdum/dum/usage"
	"github.com/sipdum/dum/validate"
)

// supportedSchemes and supportedMethods bound the request-URI method/
// scheme validator (spec.md §4.1's 405/416 check). The method set mirrors
// sipstack.NewSipgoStack's registered handlers exactly, since a method
// the transport never routes to Events() can't reach here regardless.
var supportedSchemes = map[string]struct{}{"sip": {}, "sips": {}}

var supportedMethods = map[string]struct{}{
	string(sip.INVITE): {}, string(sip.ACK): {}, string(sip.BYE): {}, string(sip.CANCEL): {},
	string(sip.REGISTER): {}, string(sip.SUBSCRIBE): {}, string(sip.NOTIFY): {}, string(sip.REFER): {},
	string(sip.PUBLISH): {}, string(sip.MESSAGE): {}, string(sip.OPTIONS): {}, string(sip.INFO): {},
	string(sip.UPDATE): {}, string(sip.PRACK): {},
}

// defaultSubscriptionTime is used when a DialogSet's owning profile is
// unset or not a *profile.UserProfile (e.g. created without a selected
// user profile).
const defaultSubscriptionTime = 1 * time.Hour

func (d *Dispatcher) subscriptionTimeFor(set *dialogset.DialogSet) time.Duration {
	if up, ok := set.Profile().(*profile.UserProfile); ok && up != nil {
		return up.DefaultSubscriptionTime()
	}
	return defaultSubscriptionTime
}

// resolveUserProfile finds the UserProfile governing req: the profile of
// an already-existing DialogSet the request matches, or the dispatcher's
// default profile when no dialog context exists yet (spec.md §6).
func (d *Dispatcher) resolveUserProfile(req *sip.Request) *profile.UserProfile {
	if set, ok := d.sets.Get(dialogSetIdOf(req)); ok {
		if up, ok := set.Profile().(*profile.UserProfile); ok && up != nil {
			return up
		}
	}
	return d.profile
}

// validateIncoming runs req through the ordered validator pipeline
// spec.md §4.1 mandates before merge detection: request-URI method/
// scheme (405/416), Require option tags (420), 100rel compliance (421),
// content-type/language (415), Accept (406).
func (d *Dispatcher) validateIncoming(req *sip.Request, up *profile.UserProfile) validate.Result {
	producible := make(map[string]struct{})
	for _, mt := range up.AllowedMimeTypes() {
		producible[mt] = struct{}{}
	}
	return validate.Chain(req, d.master, up,
		validate.MethodAndScheme(supportedSchemes, supportedMethods),
		validate.RequireOptionTags,
		validate.Reliable100relCompliance,
		validate.ContentPolicy,
		validate.Accept(producible),
	)
}

// respondValidation sends the response a failed validate.Result mandates,
// attaching Allow/Allow-Events when the validator supplied them.
func (d *Dispatcher) respondValidation(tx sip.ServerTransaction, req *sip.Request, r validate.Result) error {
	resp := sip.NewResponseFromRequest(req, r.StatusCode, r.Reason, nil)
	if r.AllowHeader != "" {
		resp.AppendHeader(sip.NewHeader("Allow", r.AllowHeader))
	}
	if r.AllowEventsHeader != "" {
		resp.AppendHeader(sip.NewHeader("Allow-Events", r.AllowEventsHeader))
	}
	if err := tx.Respond(resp); err != nil {
		return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
	}
	return nil
}

// mergeKey is the RFC 3261 §8.2.2.2 request-merge detection key: From
// tag, Call-ID, CSeq. The Request-URI is folded in too when the master
// profile's CheckReqUriInMergeDetection is enabled.
type mergeKey struct {
	fromTag string
	callID  string
	cseq    uint32
	ruri    string
}

func (d *Dispatcher) requestMergeKey(req *sip.Request) mergeKey {
	k := mergeKey{cseq: req.CSeq().SeqNo}
	if from := req.From(); from != nil {
		if tag, ok := from.Params.Get("tag"); ok {
			k.fromTag = tag
		}
	}
	if cid := req.CallID(); cid != nil {
		k.callID = cid.Value()
	}
	if d.master.CheckReqUriInMergeDetection() {
		k.ruri = req.Recipient.String()
	}
	return k
}

// mergeRequest implements RFC 3261 §8.2.2.2: a request with no To tag
// that collides with one already being processed is a retransmission
// racing a forking proxy, not a new request, and must be rejected 482.
// Grounded directly on DialogUsageManager::mergeRequest.
func (d *Dispatcher) mergeRequest(req *sip.Request, tx sip.ServerTransaction) bool {
	if to := req.To(); to != nil {
		if _, ok := to.Params.Get("tag"); ok {
			return false
		}
	}

	key := d.requestMergeKey(req)
	d.expireMerged()
	if _, seen := d.merged[key]; seen {
		resp := sip.NewResponseFromRequest(req, 482, "Merged Request", nil)
		_ = tx.Respond(resp)
		if d.metrics != nil {
			d.metrics.MergedRequests.Inc()
		}
		return true
	}
	d.merged[key] = time.Now().Add(d.mergeTTL)
	return false
}

func (d *Dispatcher) expireMerged() {
	now := time.Now()
	for k, expiry := range d.merged {
		if now.After(expiry) {
			delete(d.merged, k)
		}
	}
}

func methodClassOf(method sip.RequestMethod) dialog.MethodClass {
	switch method {
	case sip.INVITE:
		return dialog.MethodClassInvite
	case sip.SUBSCRIBE, sip.NOTIFY:
		return dialog.MethodClassSubscribe
	case sip.REFER:
		return dialog.MethodClassRefer
	case sip.REGISTER:
		return dialog.MethodClassRegister
	case sip.PUBLISH:
		return dialog.MethodClassPublish
	case sip.MESSAGE:
		return dialog.MethodClassPager
	default:
		return dialog.MethodClassOther
	}
}

func dialogSetIdOf(req *sip.Request) dialog.SetId {
	id := dialog.SetId{MethodClass: methodClassOf(req.Method)}
	if cid := req.CallID(); cid != nil {
		id.CallID = cid.Value()
	}
	if from := req.From(); from != nil {
		if tag, ok := from.Params.Get("tag"); ok {
			id.LocalTag = tag
		}
	}
	return id
}

// incomingProcess classifies one inbound request, following
// DialogUsageManager::processRequest's decision tree: shutdown
// rejection, PUBLISH's own ETag-keyed path, merge detection, in-dialog
// dispatch vs new-DialogSet creation, and per-method handling of
// requests that arrive with no matching dialog set.
func (d *Dispatcher) incomingProcess(req *sip.Request, tx sip.ServerTransaction) error {
	if d.metrics != nil {
		d.metrics.RequestsReceived.WithLabelValues(string(req.Method)).Inc()
	}

	if d.shutdownState != Running && d.shutdownState != ShutdownRequested {
		return d.respondAndLog(tx, req, 480, "UAS is shutting down")
	}

	if d.features != nil {
		ev := &feature.Event{Request: req}
		flags := d.features.IncomingChain().Process(ev)
		if flags.Has(feature.EventTaken) {
			if ev.Response == nil {
				return nil
			}
			if err := tx.Respond(ev.Response); err != nil {
				return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
			}
			return nil
		}
	}

	if req.Method != sip.ACK {
		up := d.resolveUserProfile(req)
		if r := d.validateIncoming(req, up); !r.Ok {
			return d.respondValidation(tx, req, r)
		}
	}

	if req.Method == sip.PUBLISH {
		return d.processPublish(req, tx)
	}

	if d.mergeRequest(req, tx) {
		return nil
	}

	hasToTag := false
	if to := req.To(); to != nil {
		_, hasToTag = to.Params.Get("tag")
	}
	if req.Method == sip.REGISTER && hasToTag && d.master.AllowBadRegistration() {
		hasToTag = false
	}

	setId := dialogSetIdOf(req)
	existingSet, setExists := d.sets.Get(setId)

	if hasToTag || setExists {
		if req.Method == sip.REGISTER {
			return d.respondAndLog(tx, req, 400, "Registration requests can't have To: tags")
		}
		if !setExists {
			if req.Method == sip.ACK {
				d.log.Info().Str("call_id", setId.CallID).Msg("dum: ACK doesn't match any dialog")
				return nil
			}
			return d.respondAndLog(tx, req, 481, "Call/Transaction Does Not Exist")
		}
		return d.dispatchInDialog(existingSet, req, tx)
	}

	return d.processOutOfDialogRequest(setId, req, tx)
}

func (d *Dispatcher) dispatchInDialog(set *dialogset.DialogSet, req *sip.Request, tx sip.ServerTransaction) error {
	remoteTag := ""
	if from := req.From(); from != nil {
		if tag, ok := from.Params.Get("tag"); ok {
			remoteTag = tag
		}
	}
	for _, dlg := range set.Dialogs() {
		if dlg.Id().RemoteTag != remoteTag {
			continue
		}
		if !dlg.ObserveRemoteCSeq(req.CSeq().SeqNo) && req.Method != sip.ACK {
			return d.respondAndLog(tx, req, 500, "CSeq out of order")
		}
		var err error
		if inv := dlg.InviteUsage(); inv != nil {
			if req.Method == sip.BYE || req.Method == sip.ACK {
				err = inv.Dispatch(req)
			}
		}
		d.reapIfDone(set)
		return err
	}
	if req.Method != sip.ACK {
		return d.respondAndLog(tx, req, 481, "Call/Transaction Does Not Exist")
	}
	return nil
}

// processOutOfDialogRequest handles the methods that legitimately arrive
// with no matching DialogSetId: a brand-new INVITE/SUBSCRIBE/REFER/
// REGISTER/MESSAGE/OPTIONS opens a new DialogSet; everything else that
// requires an existing dialog is rejected 481; ACK with no dialog is
// silently discarded (it is itself the result of a prior rejection).
func (d *Dispatcher) processOutOfDialogRequest(setId dialog.SetId, req *sip.Request, tx sip.ServerTransaction) error {
	switch req.Method {
	case sip.ACK:
		return nil

	case sip.PRACK, sip.BYE, sip.UPDATE, sip.INFO:
		return d.respondAndLog(tx, req, 481, "Call/Transaction Does Not Exist")

	case sip.CANCEL:
		return d.respondAndLog(tx, req, 481, "Call/Transaction Does Not Exist")

	case sip.SUBSCRIBE, sip.NOTIFY, sip.INVITE, sip.REFER, sip.OPTIONS, sip.MESSAGE, sip.REGISTER:
		if _, exists := d.sets.Get(setId); exists {
			return d.respondAndLog(tx, req, 400, "Duplicate dialog set in progress")
		}
		return d.createDialogSetFrom(setId, req, tx)

	default:
		return dumerr.New(dumerr.CategoryProtocol, fmt.Sprintf("unhandled out-of-dialog method %s", req.Method))
	}
}

func (d *Dispatcher) createDialogSetFrom(setId dialog.SetId, req *sip.Request, tx sip.ServerTransaction) error {
	set := d.sets.GetOrCreate(setId, d.master)
	if d.metrics != nil {
		d.metrics.DialogSetsActive.Set(float64(d.sets.Len()))
	}

	switch req.Method {
	case sip.INVITE:
		replaced, rejected, err := d.checkReplaces(req, tx)
		if err != nil || rejected {
			return err
		}
		if replaced != nil {
			replaced.MarkReplaced()
		}

		dlg := dialog.New(dialog.Id{Set: setId})
		si := usage.NewServerInvite()
		dlg.SetInviteUsage(si)
		set.AddDialog(dlg)
		if d.metrics != nil {
			d.metrics.DialogsCreated.Inc()
			d.metrics.UsagesCreated.WithLabelValues(string(usage.KindServerInvite)).Inc()
		}
		if err := si.Dispatch(req); err != nil {
			return err
		}
		if d.autoAnswerInvite != nil {
			return d.acceptInvite(si, req, tx, set)
		}
		return nil

	case sip.SUBSCRIBE:
		event := req.GetHeader("Event")
		eventName := ""
		if event != nil {
			eventName = event.Value()
		}
		dlg := dialog.New(dialog.Id{Set: setId})
		ss := usage.NewServerSubscription(eventName, time.Now().Add(d.subscriptionTimeFor(set)))
		dlg.AddServerSubscription(ss)
		set.AddDialog(dlg)
		return ss.Dispatch(req)

	case sip.REGISTER:
		sr := usage.NewServerRegistration(req.Recipient)
		return sr.Dispatch(req)

	case sip.OPTIONS, sip.MESSAGE, sip.REFER:
		sod := usage.NewServerOutOfDialog(req.Method)
		return sod.Dispatch(req)

	default:
		return dumerr.New(dumerr.CategoryProtocol, fmt.Sprintf("unsupported new-dialog-set method %s", req.Method))
	}
}

// acceptInvite sends the 200 OK WithAutoAnswerInvite configures and moves
// si to Confirmed, for embedders with no call-handling logic of their own.
func (d *Dispatcher) acceptInvite(si *usage.ServerInvite, req *sip.Request, tx sip.ServerTransaction, set *dialogset.DialogSet) error {
	resp := sip.NewResponseFromRequest(req, 200, "OK", d.autoAnswerInvite.body)
	if up, ok := set.Profile().(*profile.UserProfile); ok && up != nil {
		resp.AppendHeader(up.Contact())
	}
	if d.autoAnswerInvite.contentType != "" {
		resp.AppendHeader(sip.NewHeader("Content-Type", d.autoAnswerInvite.contentType))
	}
	if err := tx.Respond(resp); err != nil {
		return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
	}
	return si.Accept()
}

// processPublish implements SIP-If-Match/ETag matching per RFC 3903
// §6.5, grounded directly on
// DialogUsageManager::processPublish.
func (d *Dispatcher) processPublish(req *sip.Request, tx sip.ServerTransaction) error {
	event := req.GetHeader("Event")
	if event == nil {
		return d.respondAndLog(tx, req, 400, "Missing Event header")
	}
	aor := req.Recipient.String()

	ifMatch := req.GetHeader("SIP-If-Match")
	if ifMatch != nil {
		etag := ifMatch.Value()
		pub, ok := d.pubs.Get(aor, event.Value())
		if !ok || pub.ETag != etag {
			return d.respondAndLog(tx, req, 412, "Conditional Request Failed")
		}
		newETag := newPublicationETag()
		d.pubs.Put(aor, event.Value(), store.Publication{
			ETag:    newETag,
			Body:    req.Body(),
			Event:   event.Value(),
			Expires: publishExpiry(req),
		})
		resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
		resp.AppendHeader(sip.NewHeader("SIP-ETag", newETag))
		if err := tx.Respond(resp); err != nil {
			return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
		}
		return nil
	}

	if len(req.Body()) == 0 {
		return d.respondAndLog(tx, req, 400, "PUBLISH with no SIP-If-Match must have a body")
	}

	etag := newPublicationETag()
	d.pubs.Put(aor, event.Value(), store.Publication{
		ETag:    etag,
		Body:    req.Body(),
		Event:   event.Value(),
		Expires: publishExpiry(req),
	})
	resp := sip.NewResponseFromRequest(req, 200, "OK", nil)
	resp.AppendHeader(sip.NewHeader("SIP-ETag", etag))
	if err := tx.Respond(resp); err != nil {
		return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
	}
	return nil
}

// outgoingProcess routes an inbound response to the dialog/usage that
// originated its request, per DialogUsageManager::processResponse.
func (d *Dispatcher) outgoingProcess(resp *sip.Response) error {
	if d.metrics != nil {
		d.metrics.ResponsesSent.WithLabelValues(statusClass(resp.StatusCode)).Inc()
	}

	setId := dialog.SetId{MethodClass: methodClassOf(resp.CSeq().MethodName)}
	if cid := resp.CallID(); cid != nil {
		setId.CallID = cid.Value()
	}
	if from := resp.From(); from != nil {
		if tag, ok := from.Params.Get("tag"); ok {
			setId.LocalTag = tag
		}
	}

	set, ok := d.sets.Get(setId)
	if !ok {
		d.log.Info().Str("call_id", setId.CallID).Msg("dum: response matches no dialog set")
		return nil
	}

	remoteTag := ""
	if to := resp.To(); to != nil {
		if tag, ok := to.Params.Get("tag"); ok {
			remoteTag = tag
		}
	}
	dlg, ok := set.Dialog(remoteTag)
	if !ok {
		if remoteTag == "" {
			return nil
		}
		if placeholder, found := set.Dialog(""); found {
			set.RemoveDialog("")
			dlg = placeholder
		} else {
			dlg = dialog.New(dialog.Id{Set: setId, RemoteTag: remoteTag})
		}
		dlg.SetRemoteTag(remoteTag)
		set.AddDialog(dlg)
	}

	dlg.SetRemoteTag(remoteTag)

	if d.retryChallengedRequest(dlg, resp) {
		return nil
	}

	if inv := dlg.InviteUsage(); inv != nil {
		err := inv.Dispatch(resp)
		d.reapIfDone(set)
		return err
	}
	for _, sub := range dlg.ClientSubscriptions() {
		if !sub.Done() {
			err := sub.Dispatch(resp)
			d.reapIfDone(set)
			return err
		}
	}
	for _, u := range dlg.OtherUsages() {
		if !u.Done() {
			err := u.Dispatch(resp)
			d.reapIfDone(set)
			return err
		}
	}

	d.reapIfDone(set)
	return nil
}

// reapIfDone marks set for destruction once every dialog it owns has
// terminated all its usages, then reclaims it and any other set left
// empty this way, matching
// DialogUsageManager::onDialogSetDestroyed/DialogUsageManager::checkDialogSet.
func (d *Dispatcher) reapIfDone(set *dialogset.DialogSet) {
	if !set.Done() {
		return
	}
	set.BeginDestroying()
	for _, dlg := range set.Dialogs() {
		set.RemoveDialog(dlg.Id().RemoteTag)
	}
	d.NotifyDialogSetEmpty()
}

// retryChallengedRequest runs resp through the outgoing feature chain
// against the request that produced it; if ClientAuthManager decorates
// the request with fresh credentials, it's resent and true is returned
// so the caller skips dispatching resp to the usage as a final answer.
func (d *Dispatcher) retryChallengedRequest(dlg *dialog.Dialog, resp *sip.Response) bool {
	if d.features == nil {
		return false
	}
	if resp.StatusCode != 401 && resp.StatusCode != 407 {
		return false
	}
	req := dlg.LastRequest()
	if req == nil {
		return false
	}

	flags := d.features.OutgoingChain().Process(&feature.Event{Request: req, Response: resp})
	if !flags.Has(feature.EventTaken) {
		return false
	}

	if d.metrics != nil {
		d.metrics.RequestsSent.WithLabelValues(string(req.Method)).Inc()
	}
	if _, err := d.stack.SendRequest(context.Background(), req); err != nil {
		d.log.Error().Err(err).Msg("dum: failed to resend challenged request")
	}
	return true
}

func (d *Dispatcher) respondAndLog(tx sip.ServerTransaction, req *sip.Request, code int, reason string) error {
	resp := sip.NewResponseFromRequest(req, code, reason, nil)
	if err := tx.Respond(resp); err != nil {
		return dumerr.Wrap(dumerr.CategorySystem, "send response", err)
	}
	return nil
}

func statusClass(code int) string {
	return fmt.Sprintf("%dxx", code/100)
}
