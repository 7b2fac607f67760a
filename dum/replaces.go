package dum

import (
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/dialog"
	"github.com/sipdum/dum/dumerr"
	"github.com/sipdum/dum/usage"
)

// FindReplaceableSession resolves a Replaces header (RFC 3891) to the
// invite session it names, grounded directly on
// DialogUsageManager::findInviteSession(const CallId& replaces). callID,
// toTag and fromTag come straight off the Replaces header's value and
// its to-tag/from-tag parameters; earlyOnly reflects the early-only
// parameter's presence.
//
// The to-tag identifies the target dialog from its own local side, so
// the lookup keys the DialogSet by LocalTag=toTag; the from-tag is the
// peer's view of that same dialog, so the matching Dialog within the
// set is found by RemoteTag=fromTag.
//
// Returns the matched session and 200 if the Replaces is satisfiable;
// otherwise a nil session and the status code that should be sent back
// instead: 481 if nothing matches, or the match is a Proceeding dialog
// this UA never sent a provisional for; 486 if the match is already
// Confirmed and the Replaces carries early-only; 603 if it has already
// terminated.
func (d *Dispatcher) FindReplaceableSession(callID, toTag, fromTag string, earlyOnly bool) (*usage.ServerInvite, int) {
	setId := dialog.SetId{MethodClass: dialog.MethodClassInvite, CallID: callID, LocalTag: toTag}
	set, ok := d.sets.Get(setId)
	if !ok {
		return nil, 481
	}
	dlg, ok := set.Dialog(fromTag)
	if !ok {
		return nil, 481
	}
	si, ok := dlg.InviteUsage().(*usage.ServerInvite)
	if !ok || si == nil {
		return nil, 481
	}

	switch {
	case si.Terminated():
		return nil, 603
	case si.State() == usage.InviteStateConfirmed:
		if earlyOnly {
			return nil, 486
		}
		return si, 200
	case !si.EarlyOnly():
		// Proceeding: early, but not yet initiated by this UA's own 1xx.
		return nil, 481
	default:
		return si, 200
	}
}

// checkReplaces inspects req for a Replaces header and, if present,
// resolves and rejects it per FindReplaceableSession before a new
// dialog set is created for req. rejected reports whether a final
// response has already been sent for req; callers must stop processing
// without sending another.
func (d *Dispatcher) checkReplaces(req *sip.Request, tx sip.ServerTransaction) (matched *usage.ServerInvite, rejected bool, err error) {
	h := req.GetHeader("Replaces")
	if h == nil {
		return nil, false, nil
	}

	callID, params := parseReplacesValue(h.Value())
	toTag, _ := params.Get("to-tag")
	fromTag, _ := params.Get("from-tag")
	_, earlyOnly := params.Get("early-only")

	si, code := d.FindReplaceableSession(callID, toTag, fromTag, earlyOnly)
	if code != 200 {
		if respErr := d.respondAndLog(tx, req, code, replacesRejectReason(code)); respErr != nil {
			return nil, true, dumerr.Wrap(dumerr.CategorySystem, "reject replaced invite", respErr)
		}
		return nil, true, nil
	}
	return si, false, nil
}

func replacesRejectReason(code int) string {
	switch code {
	case 486:
		return "Busy Here"
	case 603:
		return "Declined"
	default:
		return "Call/Transaction Does Not Exist"
	}
}

// parseReplacesValue splits a raw Replaces header value ("call-id;to-
// tag=x;from-tag=y[;early-only]") into its Call-ID and parameter list,
// the same shape sip.HeaderParams exposes for parsed header types, but
// done by hand since Replaces has no dedicated struct in this stack.
func parseReplacesValue(raw string) (callID string, params sip.HeaderParams) {
	parts := strings.Split(raw, ";")
	if len(parts) == 0 {
		return "", sip.NewParams()
	}
	callID = strings.TrimSpace(parts[0])
	params = sip.NewParams()
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			params.Add(p[:eq], p[eq+1:])
		} else {
			params.Add(p, "")
		}
	}
	return callID, params
}
