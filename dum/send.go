package dum

import (
	"context"
	"strconv"
	"time"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/creator"
	"github.com/sipdum/dum/dialog"
	"github.com/sipdum/dum/dumerr"
	"github.com/sipdum/dum/feature"
	"github.com/sipdum/dum/profile"
	"github.com/sipdum/dum/usage"
)

// send fires req through the transport and folds its DialogSet/Dialog
// bookkeeping, mirroring DialogUsageManager::makeInviteSession and its
// sibling makeXxx methods: every one of them builds the first request
// of a new usage, wraps it in a fresh DialogSet, and posts it to the
// transaction layer.
func (d *Dispatcher) send(ctx context.Context, req *sip.Request, up *profile.UserProfile, attach func(*dialog.Dialog)) error {
	decorate(req, up)

	if d.features != nil {
		d.features.OutgoingChain().Process(&feature.Event{Request: req})
	}

	setId := dialogSetIdOf(req)
	set := d.sets.GetOrCreate(setId, up)
	if d.metrics != nil {
		d.metrics.DialogSetsActive.Set(float64(d.sets.Len()))
	}

	dlg := dialog.New(dialog.Id{Set: setId})
	dlg.SetLastRequest(req)
	attach(dlg)
	set.AddDialog(dlg)

	if d.metrics != nil {
		d.metrics.RequestsSent.WithLabelValues(string(req.Method)).Inc()
	}
	if _, err := d.stack.SendRequest(ctx, req); err != nil {
		return dumerr.Wrap(dumerr.CategorySystem, "send request", err)
	}
	return nil
}

// StartInvite originates a new invite session, matching
// DialogUsageManager::makeInviteSession.
func (d *Dispatcher) StartInvite(ctx context.Context, up *profile.UserProfile, target sip.Uri, body []byte, contentType string) (*usage.ClientInvite, error) {
	req := creator.Invite(up, target, body, contentType)
	ci := usage.NewClientInvite()
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.SetInviteUsage(ci) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.DialogsCreated.Inc()
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientInvite)).Inc()
	}
	return ci, nil
}

// StartSubscribe originates a new subscription, matching
// DialogUsageManager::makeSubscription.
func (d *Dispatcher) StartSubscribe(ctx context.Context, up *profile.UserProfile, target sip.Uri, event string, expiresSeconds int) (*usage.ClientSubscription, error) {
	req := creator.Subscribe(up, target, event, expiresSeconds)
	cs := usage.NewClientSubscription(event, expiresFromHeader(req, up.DefaultSubscriptionTime()))
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddClientSubscription(cs) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientSubscription)).Inc()
	}
	return cs, nil
}

// StartRefer originates a REFER, matching
// DialogUsageManager::makeRefer. REFER has no dedicated Usage kind in
// this module (spec.md §3's closed set), so it's tracked the same way
// OPTIONS/MESSAGE out-of-dialog requests are.
func (d *Dispatcher) StartRefer(ctx context.Context, up *profile.UserProfile, target sip.Uri, referTo string) (*usage.ClientOutOfDialog, error) {
	req := creator.Refer(up, target, referTo)
	cod := usage.NewClientOutOfDialog(sip.REFER)
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddOtherUsage(cod) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientOutOfDialog)).Inc()
	}
	return cod, nil
}

// StartRegister originates a REGISTER, matching
// DialogUsageManager::makeRegistration.
func (d *Dispatcher) StartRegister(ctx context.Context, up *profile.UserProfile, registrar sip.Uri, expiresSeconds int) (*usage.ClientRegistration, error) {
	req := creator.Register(up, registrar, expiresSeconds)
	cr := usage.NewClientRegistration(up.Address(), expiresFromHeader(req, up.DefaultRegistrationTime()))
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddOtherUsage(cr) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientRegistration)).Inc()
	}
	return cr, nil
}

// StartPublish originates a PUBLISH, matching
// DialogUsageManager::makePublication.
func (d *Dispatcher) StartPublish(ctx context.Context, up *profile.UserProfile, target sip.Uri, event string, expiresSeconds int, body []byte, contentType string) (*usage.ClientPublication, error) {
	req := creator.Publish(up, target, event, expiresSeconds, body, contentType)
	cp := usage.NewClientPublication(event, expiresFromHeader(req, defaultPublicationExpiry))
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddOtherUsage(cp) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientPublication)).Inc()
	}
	return cp, nil
}

// StartOutOfDialog originates a standalone request (OPTIONS, INFO, ...)
// that never establishes a dialog, matching
// DialogUsageManager::makeOutOfDialogRequest.
func (d *Dispatcher) StartOutOfDialog(ctx context.Context, up *profile.UserProfile, method sip.RequestMethod, target sip.Uri) (*usage.ClientOutOfDialog, error) {
	req := creator.OutOfDialog(up, method, target)
	cod := usage.NewClientOutOfDialog(method)
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddOtherUsage(cod) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientOutOfDialog)).Inc()
	}
	return cod, nil
}

// StartPager originates a MESSAGE, matching
// DialogUsageManager::makePagerMessage.
func (d *Dispatcher) StartPager(ctx context.Context, up *profile.UserProfile, target sip.Uri, body []byte, contentType string) (*usage.ClientPagerMessage, error) {
	req := creator.Pager(up, target, body, contentType)
	cpm := usage.NewClientPagerMessage()
	if err := d.send(ctx, req, up, func(dlg *dialog.Dialog) { dlg.AddOtherUsage(cpm) }); err != nil {
		return nil, err
	}
	if d.metrics != nil {
		d.metrics.UsagesCreated.WithLabelValues(string(usage.KindClientPagerMessage)).Inc()
	}
	return cpm, nil
}

// expiresFromHeader reads back the Expires header a creator.* builder
// attached so the client usage's own expiry bookkeeping matches exactly
// what was put on the wire, falling back to def if the request carries
// none.
func expiresFromHeader(req *sip.Request, def time.Duration) time.Time {
	h := req.GetHeader("Expires")
	if h == nil {
		return time.Now().Add(def)
	}
	seconds, err := strconv.Atoi(h.Value())
	if err != nil {
		return time.Now().Add(def)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
