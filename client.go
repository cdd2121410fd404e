package isapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// NewClient creates a new ISAPI client with credentials and default settings
func NewClient(address, username, password string) *Client {
	return NewClientWithConfig(address, username, password, DefaultConfig())
}

// NewClientWithConfig creates a new ISAPI client with custom settings
func NewClientWithConfig(address, username, password string, config Config) *Client {
	defaults := DefaultConfig()
	if config.PageSize <= 0 {
		config.PageSize = defaults.PageSize
	}
	if config.FileExtension == "" {
		config.FileExtension = defaults.FileExtension
	}
	if config.ArchiveRoot == "" {
		config.ArchiveRoot = defaults.ArchiveRoot
	}
	if config.DeviceErrorCode == 0 {
		config.DeviceErrorCode = defaults.DeviceErrorCode
	}

	address = normalizeAddress(address)

	log := zerolog.Nop()
	if config.Logger != nil {
		log = config.Logger.With().Str("device", address).Logger()
	}

	return &Client{
		Address:   address,
		Username:  username,
		Password:  password,
		config:    config,
		log:       log,
		transport: newBaseTransport(config.Timeout),
	}
}

// Config returns the settings the client was built with
func (c *Client) Config() Config {
	return c.config
}

// Connect negotiates the authentication scheme and returns a session using it
func (c *Client) Connect(ctx context.Context) (*Session, error) {
	auth := c.NegotiateAuth(ctx)
	c.log.Info().Str("auth", auth.String()).Msg("authentication negotiated")
	return c.Session(auth)
}

// Session returns a session that authenticates with the given scheme
func (c *Client) Session(auth AuthType) (*Session, error) {
	if auth == AuthUnauthorized {
		return nil, errors.Annotate(ErrUnauthorized, "auth")
	}
	return c.newSession(auth), nil
}

func (c *Client) newSession(auth AuthType) *Session {
	var transport http.RoundTripper = &loggingTransport{next: c.transport, log: c.log}

	switch auth {
	case AuthBasic:
		transport = &basicTransport{username: c.Username, password: c.Password, next: transport}
	case AuthDigest:
		transport = newDigestTransport(c.Username, c.Password, transport)
	}

	return &Session{
		client: c,
		auth:   auth,
		http: &http.Client{
			Transport: transport,
			// Redirects are never part of the protocol and would drop auth state
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Auth returns the scheme the session authenticates with
func (s *Session) Auth() AuthType {
	return s.auth
}

// Client returns the client the session was created from
func (s *Session) Client() *Client {
	return s.client
}

func (c *Client) serviceURL(path string) string {
	return "http://" + c.Address + path
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

// availabilityAddress is the TCP endpoint probed while a device reboots
func (c *Client) availabilityAddress() string {
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		host = strings.Trim(c.Address, "[]")
		port = strconv.Itoa(defaultDevicePort)
	}
	if c.config.AvailabilityPort > 0 {
		port = strconv.Itoa(c.config.AvailabilityPort)
	}
	return net.JoinHostPort(host, port)
}

// normalizeAddress accepts "host", "host:port" or a URL and returns host[:port]
func normalizeAddress(address string) string {
	address = strings.TrimSpace(address)
	address = strings.TrimPrefix(address, "http://")
	address = strings.TrimPrefix(address, "https://")
	if i := strings.IndexByte(address, '/'); i >= 0 {
		address = address[:i]
	}
	return address
}
