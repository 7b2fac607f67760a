// Package validate holds the pure validator functions spec.md §4.1 runs,
// in order, against every incoming request before it reaches the feature
// chain: request-URI method/scheme support, Require option tags, 100rel
// compliance, content-type/language (Content-Encoding is not checked), and
// Accept. Each validator
// is a pure function from request + policy to a Result, grounded on the
// teacher's HeaderProcessor/SecurityConfig validation style
// (teacher_dialog/headers.go, security.go) but restructured as independent
// functions rather than methods on a stateful processor, since spec.md
// §4.1 runs them as an ordered, short-circuiting pipeline rather than a
// single ProcessRequest call.
package validate

import (
	"strings"

	"github.com/emiago/sipgo/sip"

	"github.com/sipdum/dum/profile"
)

// Result is the outcome of running a validator against a request.
type Result struct {
	// Ok is true when the request passes.
	Ok bool
	// StatusCode is the response code to send when Ok is false.
	StatusCode int
	// Reason is a short diagnostic, suitable for the response's reason
	// phrase or a log line.
	Reason string
	// AllowHeader, when non-empty, is attached to a 405 response.
	AllowHeader string
	// AllowEventsHeader, when non-empty, is attached to a 489 response.
	AllowEventsHeader string
}

func ok() Result { return Result{Ok: true} }

func fail(code int, reason string) Result {
	return Result{Ok: false, StatusCode: code, Reason: reason}
}

// Validator is a single pipeline stage.
type Validator func(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result

// MethodAndScheme checks the request-URI's scheme against a fixed
// supported-scheme set, and the method against the methods the master
// profile advertises in Allow. 416 for scheme, 405 for method, per
// spec.md's response table.
func MethodAndScheme(supportedSchemes map[string]struct{}, allowedMethods map[string]struct{}) Validator {
	return func(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result {
		if _, ok := supportedSchemes[req.Recipient.Scheme]; !ok {
			return fail(416, "unsupported URI scheme "+req.Recipient.Scheme)
		}
		method := string(req.Method)
		if _, ok := allowedMethods[method]; !ok {
			allow := make([]string, 0, len(allowedMethods))
			for m := range allowedMethods {
				allow = append(allow, m)
			}
			r := fail(405, "method "+method+" not allowed")
			r.AllowHeader = strings.Join(allow, ", ")
			return r
		}
		return ok()
	}
}

// RequireOptionTags checks every option tag in a Require header against
// the capabilities the profile advertises, failing 420 on the first
// unsupported tag.
func RequireOptionTags(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result {
	h := req.GetHeader("Require")
	if h == nil {
		return ok()
	}
	supported := make(map[string]struct{})
	for _, c := range mp.AdvertisedCapabilities() {
		supported[c] = struct{}{}
	}
	for _, tag := range splitCSV(h.Value()) {
		if _, known := supported[tag]; !known {
			return fail(420, "unsupported option tag "+tag)
		}
	}
	return ok()
}

// Reliable100relCompliance enforces UasReliableProvisionalMode: when the
// profile requires 100rel and an INVITE doesn't offer Supported/Require
// 100rel, the request is rejected 421.
func Reliable100relCompliance(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result {
	if req.Method != sip.INVITE {
		return ok()
	}
	if up.UasReliableProvisionalMode() != profile.ReliableProvisionalRequired {
		return ok()
	}
	if hasOptionTag(req, "Supported", "100rel") || hasOptionTag(req, "Require", "100rel") {
		return ok()
	}
	return fail(421, "100rel required but not offered")
}

// ContentPolicy validates Content-Type/Content-Language when the profile
// has content validation enabled and the request carries a body.
func ContentPolicy(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result {
	if len(req.Body()) == 0 {
		return ok()
	}
	if ct := req.GetHeader("Content-Type"); ct != nil {
		if !up.ValidateContentType(ct.Value()) {
			return fail(415, "unsupported content-type "+ct.Value())
		}
	}
	if cl := req.GetHeader("Content-Language"); cl != nil {
		if !up.ValidateContentLanguage(cl.Value()) {
			return fail(415, "unsupported content-language "+cl.Value())
		}
	}
	return ok()
}

// Accept validates the request's Accept header, when present and
// validation is enabled, against a fixed set of MIME types this endpoint
// can produce.
func Accept(producible map[string]struct{}) Validator {
	return func(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile) Result {
		if !up.ValidateAcceptEnabled() {
			return ok()
		}
		h := req.GetHeader("Accept")
		if h == nil {
			return ok()
		}
		for _, mt := range splitCSV(h.Value()) {
			if _, ok := producible[mt]; ok {
				return ok()
			}
		}
		return fail(406, "no acceptable content type")
	}
}

// Chain runs validators in order, short-circuiting on the first failure —
// the pipeline spec.md §4.1 mandates (405/416, 420, 421, 415, 406).
func Chain(req *sip.Request, mp *profile.MasterProfile, up *profile.UserProfile, validators ...Validator) Result {
	for _, v := range validators {
		if r := v(req, mp, up); !r.Ok {
			return r
		}
	}
	return ok()
}

func hasOptionTag(req *sip.Request, header, tag string) bool {
	h := req.GetHeader(header)
	if h == nil {
		return false
	}
	for _, t := range splitCSV(h.Value()) {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
