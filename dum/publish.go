package dum

import (
	"strconv"
	"strings"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/google/uuid"
)

// defaultPublicationExpiry is used when a PUBLISH carries no Expires
// header (RFC 3903 §4.1's default is implementation-defined).
const defaultPublicationExpiry = 1 * time.Hour

// newPublicationETag mints a fresh SIP-ETag, grounded on the same
// uuid-based tag generation creator.NewTag uses for From tags.
func newPublicationETag() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

func publishExpiry(req *sip.Request) time.Time {
	exp := req.GetHeader("Expires")
	if exp == nil {
		return time.Now().Add(defaultPublicationExpiry)
	}
	seconds, err := strconv.Atoi(exp.Value())
	if err != nil || seconds <= 0 {
		return time.Now().Add(defaultPublicationExpiry)
	}
	return time.Now().Add(time.Duration(seconds) * time.Second)
}
