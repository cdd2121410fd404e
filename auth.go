package isapi

import (
	"context"
	"net/http"
)

// NegotiateAuth probes the time endpoint with Basic credentials first and
// Digest second, returning the first scheme the device accepts. Transport
// failures count as a rejection.
func (c *Client) NegotiateAuth(ctx context.Context) AuthType {
	for _, auth := range []AuthType{AuthBasic, AuthDigest} {
		if c.probeAuth(ctx, auth) {
			return auth
		}
	}
	return AuthUnauthorized
}

func (c *Client) probeAuth(ctx context.Context, auth AuthType) bool {
	session := c.newSession(auth)
	if _, err := session.roundTrip(ctx, "auth", http.MethodGet, timePath, nil); err != nil {
		c.log.Debug().Err(err).Str("scheme", auth.String()).Msg("authentication probe rejected")
		return false
	}
	return true
}
