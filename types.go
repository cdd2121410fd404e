// Package isapi provides a Go client for retrieving recorded video from
// network video recorders that expose the ISAPI HTTP/XML management API.
package isapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// AuthType is the HTTP authentication scheme a device accepted
type AuthType int

const (
	AuthUnauthorized AuthType = iota
	AuthBasic
	AuthDigest
)

func (a AuthType) String() string {
	switch a {
	case AuthBasic:
		return "Basic"
	case AuthDigest:
		return "Digest"
	default:
		return "Unauthorized"
	}
}

// Config holds every tunable of a Client. Zero durations are kept as zero so
// tests can disable delays; use DefaultConfig for production values.
type Config struct {
	Timeout       time.Duration // per-request timeout and TCP dial timeout
	PageSize      int           // maxResults per search request
	ArchiveRoot   string        // root directory of downloaded files
	FileExtension string

	RebootTime       time.Duration // total budget for a device to come back after reboot
	RebootGrace      time.Duration // sleep before the first availability probe
	PollInterval     time.Duration // delay between availability probes
	AvailabilityPort int           // 0 derives the port from the address, else 80
	DeviceErrorCode  int           // status code that triggers reboot recovery

	RetryDelay    time.Duration // backoff after a transient failure
	DownloadDelay time.Duration // pause between consecutive downloads
	MaxReboots    int           // reboot recoveries per track, negative is unlimited
	MaxRetries    int           // transient retries per operation, negative is unlimited

	SkipExisting  bool
	StampMetadata bool

	Logger *zerolog.Logger
}

// DefaultConfig returns the settings used against real devices
func DefaultConfig() Config {
	return Config{
		Timeout:         10 * time.Second,
		PageSize:        50,
		ArchiveRoot:     "video",
		FileExtension:   ".mp4",
		RebootTime:      90 * time.Second,
		RebootGrace:     30 * time.Second,
		PollInterval:    time.Second,
		DeviceErrorCode: http.StatusInternalServerError,
		RetryDelay:      5 * time.Second,
		DownloadDelay:   time.Second,
		MaxReboots:      3,
		MaxRetries:      10,
		SkipExisting:    true,
		StampMetadata:   true,
	}
}

// Client represents an ISAPI device endpoint with credentials
type Client struct {
	Address  string // host or host:port, always spoken to over plain HTTP
	Username string
	Password string

	config    Config
	log       zerolog.Logger
	transport http.RoundTripper
}

// Session is an authenticated view of a Client. It is created once per run
// and never mutated.
type Session struct {
	client *Client
	auth   AuthType
	http   *http.Client
}

// DeviceTime is the device clock as reported by the time endpoint
type DeviceTime struct {
	TimeMode  string
	LocalTime string
	TimeZone  string
}

// Channel is one camera input of an NVR
type Channel struct {
	ID      int
	Name    string
	Enabled bool
}

// Device is an NVR or camera found by WS-Discovery
type Device struct {
	Address  string // host[:port] usable with NewClient
	XAddrs   string
	Name     string
	Model    string
	Location string
}

// DiscoveryOptions provides options for device discovery
type DiscoveryOptions struct {
	Timeout       time.Duration
	MulticastAddr string
	Logger        *zerolog.Logger
}

// ArchiveRequest describes one retrieval run against a single channel
type ArchiveRequest struct {
	Channel int
	Start   time.Time // wall clock, interpreted in device local time unless UTC is set
	End     time.Time
	UTC     bool
}

// ArchiveResult summarises a retrieval run
type ArchiveResult struct {
	Interval TimeInterval
	Tracks   []Track
	Files    []string
	Skipped  []string
	Failed   []TrackFailure
}

// TrackFailure records a track that could not be downloaded
type TrackFailure struct {
	Track Track
	Err   error
}
