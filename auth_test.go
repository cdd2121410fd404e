package isapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNegotiateAuth_Basic(t *testing.T) {
	nvr := newFakeNVR(t, AuthBasic)

	client := nvr.client(t)
	require.Equal(t, AuthBasic, client.NegotiateAuth(context.Background()))

	session, err := client.Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, AuthBasic, session.Auth())
	require.Same(t, client, session.Client())
}

func TestNegotiateAuth_Digest(t *testing.T) {
	nvr := newFakeNVR(t, AuthDigest)

	session, err := nvr.client(t).Connect(context.Background())
	require.NoError(t, err)
	require.Equal(t, AuthDigest, session.Auth())

	// Bodies are replayed after the challenge
	tracks, err := session.SearchPage(context.Background(), testWindow(), 1)
	require.NoError(t, err)
	require.Empty(t, tracks)
}

func TestNegotiateAuth_WrongPassword(t *testing.T) {
	for _, auth := range []AuthType{AuthBasic, AuthDigest} {
		t.Run(auth.String(), func(t *testing.T) {
			nvr := newFakeNVR(t, auth)
			client := NewClientWithConfig(nvr.address(), testUser, "wrong", testConfig(t))

			require.Equal(t, AuthUnauthorized, client.NegotiateAuth(context.Background()))

			_, err := client.Connect(context.Background())
			require.ErrorIs(t, err, ErrUnauthorized)
		})
	}
}

func TestNegotiateAuth_UnreachableDevice(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	address := strings.TrimPrefix(server.URL, "http://")
	server.Close()

	client := NewClientWithConfig(address, testUser, testPassword, testConfig(t))
	require.Equal(t, AuthUnauthorized, client.NegotiateAuth(context.Background()))
}

func TestNegotiateAuth_TriesBasicFirst(t *testing.T) {
	var mu sync.Mutex
	var schemes []string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		scheme, _, _ := strings.Cut(r.Header.Get("Authorization"), " ")
		schemes = append(schemes, scheme)
		w.Header().Set("WWW-Authenticate", `Digest realm="r", nonce="n", qop="auth"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClientWithConfig(server.URL, testUser, testPassword, testConfig(t))
	require.Equal(t, AuthUnauthorized, client.NegotiateAuth(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"Basic", "", "Digest"}, schemes)
}

func TestSession_UnauthorizedScheme(t *testing.T) {
	_, err := NewClient("10.0.0.1", "u", "p").Session(AuthUnauthorized)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func testWindow() TimeInterval {
	interval, _ := ParseLocalInterval("2020-04-15 00:30:00", "2020-04-15 10:59:59", 0)
	return interval
}
