package isapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"syscall"

	"github.com/juju/errors"
)

var (
	// ErrUnauthorized means neither Basic nor Digest credentials were accepted
	ErrUnauthorized = errors.New("unauthorized, check login and password")
	// ErrRebootLimit means a track kept failing with the device error code
	// after the configured number of reboots
	ErrRebootLimit = errors.New("device did not recover after reboot")
	// ErrRetryLimit means transient failures exhausted the retry budget
	ErrRetryLimit = errors.New("retry limit reached")
)

// StatusError is a non-success response from the device
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// newStatusError builds a StatusError whose message comes from the
// device's XML error envelope when there is one
func newStatusError(op string, resp *http.Response, body []byte) *StatusError {
	return &StatusError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Message:    ErrorMessage(resp, body),
	}
}

// ErrorMessage turns a device error response into a readable diagnostic.
// A ResponseStatus envelope carrying statusString and subStatusCode is
// rendered as "Error {code} {reason}: {status} - {substatus}"; anything
// else yields the body text.
func ErrorMessage(resp *http.Response, body []byte) string {
	text := string(stripNamespaces(body))

	doc, err := parseXML([]byte(text))
	if err == nil {
		root := doc.Root()
		status := root.SelectElement("statusString")
		substatus := root.SelectElement("subStatusCode")
		if status != nil && substatus != nil {
			return fmt.Sprintf("Error %d %s: %s - %s",
				resp.StatusCode, statusReason(resp),
				strings.TrimSpace(status.Text()), strings.TrimSpace(substatus.Text()))
		}
	}

	if strings.TrimSpace(text) == "" {
		return fmt.Sprintf("Error %d %s", resp.StatusCode, statusReason(resp))
	}
	return text
}

func statusReason(resp *http.Response) string {
	// resp.Status is "500 Internal Server Error"
	if _, reason, ok := strings.Cut(resp.Status, " "); ok && reason != "" {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}

// isTransient reports whether err is a transport failure (timeout, refused
// or reset connection) worth retrying after a short delay. Device responses,
// whatever their status, are not transient.
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, errDownloadStalled) {
		return true
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
