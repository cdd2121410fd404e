package isapi

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/icholy/digest"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// Fixed ISAPI endpoints
const (
	timePath          = "/ISAPI/System/time"
	searchPath        = "/ISAPI/ContentMgmt/search/"
	downloadPath      = "/ISAPI/ContentMgmt/download"
	rebootPath        = "/ISAPI/System/reboot"
	inputProxyPath    = "/ISAPI/ContentMgmt/InputProxy/channels"
	videoInputsPath   = "/ISAPI/System/Video/inputs/channels"
	xmlContentType    = "application/xml; charset=UTF-8"
	defaultDevicePort = 80
)

func newBaseTransport(timeout time.Duration) http.RoundTripper {
	dialer := &net.Dialer{Timeout: timeout, KeepAlive: 30 * time.Second}
	return &http.Transport{
		DialContext:           dialer.DialContext,
		ResponseHeaderTimeout: timeout,
		MaxIdleConnsPerHost:   1,
		IdleConnTimeout:       90 * time.Second,
	}
}

// loggingTransport logs every wire round trip, the request before it is
// sent and the response once headers arrive
type loggingTransport struct {
	next http.RoundTripper
	log  zerolog.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("request")

	start := time.Now()
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		t.log.Debug().Err(err).Str("path", req.URL.Path).Dur("elapsed", time.Since(start)).Msg("request failed")
		return nil, err
	}

	t.log.Debug().Int("status", resp.StatusCode).Str("path", req.URL.Path).
		Dur("elapsed", time.Since(start)).Msg("response")
	return resp, nil
}

type basicTransport struct {
	username string
	password string
	next     http.RoundTripper
}

func (t *basicTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	authorized := req.Clone(req.Context())
	authorized.SetBasicAuth(t.username, t.password)
	return t.next.RoundTrip(authorized)
}

// newDigestTransport answers Digest challenges, replaying the request with
// credentials after a 401 and reusing the challenge for later requests
func newDigestTransport(username, password string, next http.RoundTripper) http.RoundTripper {
	return &digest.Transport{Username: username, Password: password, Transport: next}
}

// do sends one request; the caller owns the response body
func (s *Session) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.client.serviceURL(path), reader)
	if err != nil {
		return nil, errors.Annotate(err, "create request")
	}
	if body != nil {
		req.Header.Set("Content-Type", xmlContentType)
	}

	return s.http.Do(req)
}

// roundTrip sends a bounded request and reads the whole response. Non-success
// statuses come back as *StatusError together with the body.
func (s *Session) roundTrip(ctx context.Context, op, method, path string, body []byte) ([]byte, error) {
	ctx, cancel := s.client.withTimeout(ctx)
	defer cancel()

	resp, err := s.do(ctx, method, path, body)
	if err != nil {
		return nil, errors.Annotate(err, op)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Annotatef(err, "%s: read response", op)
	}

	if !isSuccess(resp.StatusCode) {
		return respBody, newStatusError(op, resp, respBody)
	}
	return respBody, nil
}

// retry runs fn until it succeeds, fails permanently or the retry budget
// is spent. Transient failures wait RetryDelay between attempts.
func (c *Client) retry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Annotate(err, op)
		}

		err := fn()
		if err == nil || !isTransient(err) {
			return err
		}

		if c.config.MaxRetries >= 0 && attempt >= c.config.MaxRetries {
			return errors.Annotatef(ErrRetryLimit, "%s: %v", op, err)
		}

		c.log.Warn().Err(err).Str("op", op).Int("attempt", attempt+1).
			Dur("delay", c.config.RetryDelay).Msg("transient failure, retrying")
		if err := sleep(ctx, c.config.RetryDelay); err != nil {
			return errors.Annotate(err, op)
		}
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// sleep waits for d or until ctx is done
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
