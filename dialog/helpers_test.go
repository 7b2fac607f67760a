package dialog

import (
	"testing"
	"time"

	"github.com/emiago/sipgo/sip"
	"github.com/stretchr/testify/require"
)

func sipRequestINVITE(t *testing.T) *sip.Request {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri("sip:bob@example.com", &u))
	return sip.NewRequest(sip.INVITE, u)
}

func sipResponse(t *testing.T, req *sip.Request, code int) *sip.Response {
	t.Helper()
	return sip.NewResponseFromRequest(req, code, "", nil)
}

func timeInAnHour() time.Time {
	return time.Now().Add(time.Hour)
}

func sipURI(t *testing.T, raw string) sip.Uri {
	t.Helper()
	var u sip.Uri
	require.NoError(t, sip.ParseUri(raw, &u))
	return u
}
