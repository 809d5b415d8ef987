package device

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/muurk/ippower/internal/logging"
	"go.uber.org/zap"
)

const (
	// DefaultCallTimeout bounds every request that is not a legacy poll query
	DefaultCallTimeout = 1 * time.Second

	// maxBodySize caps how much of a response body is read
	maxBodySize = 64 << 10

	// Device endpoints
	legacyCommandPath = "/set.cmd"
	legacyNamesPath   = "/goform/getpowername"
	jsonCommandPath   = "/json.cmd"
)

// Options configures a Client
type Options struct {
	// Address is the device host, host:port or http:// URL
	Address string

	// Username and Password are sent with every request
	Username string
	Password string

	// Dialect selects the wire protocol used for queries
	Dialect Dialect

	// PollInterval bounds legacy power/name queries (a slow legacy device may
	// take up to one poll period to answer). Zero falls back to CallTimeout.
	PollInterval time.Duration

	// CallTimeout bounds all other requests (default: 1s)
	CallTimeout time.Duration

	// HTTPClient is the underlying HTTP client (default: a new http.Client)
	HTTPClient *http.Client
}

// Client issues power queries and commands against one power strip.
// Client instances are safe for concurrent use.
type Client struct {
	baseURL    *url.URL
	address    string
	username   string
	password   string
	dialect    Dialect
	pollWait   time.Duration
	callWait   time.Duration
	httpClient *http.Client
}

// NewClient creates a client for the device described by opts.
// Missing address or credentials fail with KindConfigIncomplete before any network call.
func NewClient(opts Options) (*Client, error) {
	var missing []string
	if strings.TrimSpace(opts.Address) == "" {
		missing = append(missing, "address")
	}
	if opts.Username == "" {
		missing = append(missing, "username")
	}
	if opts.Password == "" {
		missing = append(missing, "password")
	}
	if len(missing) > 0 {
		return nil, NewConfigIncompleteError(fmt.Sprintf("missing device %s", strings.Join(missing, ", ")))
	}

	base, err := ParseAddress(opts.Address)
	if err != nil {
		return nil, err
	}

	callWait := opts.CallTimeout
	if callWait <= 0 {
		callWait = DefaultCallTimeout
	}
	pollWait := opts.PollInterval
	if pollWait <= 0 {
		pollWait = callWait
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &Client{
		baseURL:    base,
		address:    base.Host,
		username:   opts.Username,
		password:   opts.Password,
		dialect:    opts.Dialect,
		pollWait:   pollWait,
		callWait:   callWait,
		httpClient: httpClient,
	}, nil
}

// ParseAddress turns "10.0.0.5", "10.0.0.5:8080" or "http://10.0.0.5" into a base URL.
func ParseAddress(address string) (*url.URL, error) {
	address = strings.TrimSpace(address)
	if !strings.Contains(address, "://") {
		address = "http://" + address
	}
	u, err := url.Parse(address)
	if err != nil {
		return nil, NewProtocolError(fmt.Sprintf("invalid device address %q", address), err)
	}
	if u.Host == "" {
		return nil, NewProtocolError(fmt.Sprintf("invalid device address %q", address), nil)
	}
	u.Path = ""
	u.RawQuery = ""
	u.User = nil
	return u, nil
}

// Dialect returns the configured wire dialect
func (c *Client) Dialect() Dialect {
	return c.dialect
}

// Address returns the device host[:port]
func (c *Client) Address() string {
	return c.address
}

// QueryPower fetches the power state of all sockets.
// In the JSON dialect the result also carries socket names.
func (c *Client) QueryPower(ctx context.Context) (Delta, error) {
	if c.dialect == DialectJSON {
		body, err := c.get(ctx, "getpower", jsonCommandPath, "getpower", c.callWait)
		if err != nil {
			return nil, err
		}
		delta, err := ParseJSONPower(body)
		if err != nil {
			return nil, c.annotate("getpower", err)
		}
		return delta, nil
	}

	body, err := c.get(ctx, "getpower", legacyCommandPath, c.legacyQuery("getpower"), c.pollWait)
	if err != nil {
		return nil, err
	}
	return ParseLegacyPower(string(body)), nil
}

// QueryNames fetches socket names. The JSON dialect has no separate names call
// and returns an empty delta without touching the network.
func (c *Client) QueryNames(ctx context.Context) (Delta, error) {
	if c.dialect == DialectJSON {
		return Delta{}, nil
	}

	body, err := c.get(ctx, "getpowername", legacyNamesPath, "", c.pollWait)
	if err != nil {
		return nil, err
	}
	return ParseLegacyNames(string(body)), nil
}

// Poll runs one poll cycle: power, then names for the legacy dialect.
// Any failure fails the whole cycle so a partial result is never applied.
func (c *Client) Poll(ctx context.Context) (Delta, error) {
	power, err := c.QueryPower(ctx)
	if err != nil {
		return nil, err
	}
	if c.dialect == DialectJSON {
		return power, nil
	}

	names, err := c.QueryNames(ctx)
	if err != nil {
		return nil, err
	}
	return power.Merge(names), nil
}

// SetPower switches one socket. The legacy set endpoint is used for both dialects.
// The acknowledgment is not interpreted; callers poll again to observe the effect.
func (c *Client) SetPower(ctx context.Context, id SocketID, desired PowerState) error {
	if !id.Valid() {
		return NewInvalidArgumentError(fmt.Sprintf("socket %d out of range %d-%d", int(id), MinSocket, MaxSocket))
	}
	if desired != PowerOn && desired != PowerOff {
		return NewInvalidArgumentError(fmt.Sprintf("cannot set socket %d to %s", int(id), desired))
	}

	query := fmt.Sprintf("%s&p%d=%s", c.legacyQuery("setpower"), id.DeviceNumber(), desired.wireValue())
	_, err := c.get(ctx, "setpower", legacyCommandPath, query, c.callWait)
	if err != nil {
		return err
	}

	logging.Info("Set socket power",
		zap.String("address", c.address),
		zap.Int("socket", int(id)),
		zap.String("state", desired.String()),
	)
	return nil
}

// legacyQuery builds "user={u}+pass={p}+cmd={cmd}". The device splits on '+',
// so credentials are escaped like encodeURIComponent (space as %20, '+' as %2B).
func (c *Client) legacyQuery(cmd string) string {
	return "user=" + escapeComponent(c.username) + "+pass=" + escapeComponent(c.password) + "+cmd=" + cmd
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// get performs one GET with its own timeout and returns the body of a 2xx response
func (c *Client) get(ctx context.Context, op, path, rawQuery string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := *c.baseURL
	u.Path = path
	u.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, c.annotate(op, NewProtocolError("failed to create request", err))
	}
	req.SetBasicAuth(c.username, c.password)

	logging.LogDeviceRequest(c.address, op, path)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.annotate(op, ClassifyTransportError(err, c.address))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		classified := ClassifyTransportError(err, c.address)
		classified.Message = "failed to read response body"
		return nil, c.annotate(op, classified)
	}

	logging.LogDeviceResponse(c.address, op, resp.StatusCode, body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.annotate(op, NewHTTPError(resp.StatusCode, fmt.Sprintf("unexpected status code: %d", resp.StatusCode)))
	}

	return body, nil
}

// annotate stamps the operation and device address on an *Error
func (c *Client) annotate(op string, err error) error {
	if devErr, ok := err.(*Error); ok {
		devErr.Op = op
		if devErr.Address == "" {
			devErr.Address = c.address
		}
		return devErr
	}
	return err
}
