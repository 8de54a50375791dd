package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config identifies the core's local REST controller. Secret may be empty,
// in which case no Authorization header is sent.
type Config struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secret string `json:"secret"`
}

// BaseURL returns the http origin for the controller.
func (c Config) BaseURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(c.Host, strconv.Itoa(c.Port)))
}

// TrafficSnapshot is a cumulative byte count reported by GET /traffic.
type TrafficSnapshot struct {
	Upload   uint64 `json:"up"`
	Download uint64 `json:"down"`
}

// Client talks to the core's control-plane API. All operations follow one
// failure policy: network, timeout and decode errors are logged and reported
// through the return value (ok=false / false / -1), never as an error the
// caller must handle. The control plane being briefly unreachable is a
// normal condition while the core starts or reloads.
type Client struct {
	cfg    Config
	hc     *http.Client
	logger *slog.Logger
}

const (
	dialTimeout = 5 * time.Second

	// RequestTimeout bounds every control-plane call. Callers wrapping calls
	// in their own contexts should use the same bound.
	RequestTimeout = 10 * time.Second
)

// New returns a client bound to cfg. Timeouts are fixed and short: these
// calls sit behind UI-facing operations and must never hang.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger,
		hc: &http.Client{
			Timeout: RequestTimeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{Timeout: dialTimeout}).DialContext,
			},
		},
	}
}

// Version returns the core version string, or ok=false when the controller
// did not answer.
func (c *Client) Version(ctx context.Context) (string, bool) {
	var out struct {
		Version string `json:"version"`
	}
	if !c.getJSON(ctx, "/version", &out) {
		return "", false
	}
	return out.Version, true
}

// Traffic returns a point-in-time cumulative traffic snapshot. The core also
// exposes /traffic as a chunked stream; one snapshot per poll is all the
// monitor needs, so the first JSON object is read and the body dropped.
func (c *Client) Traffic(ctx context.Context) (TrafficSnapshot, bool) {
	var snap TrafficSnapshot
	if !c.getJSON(ctx, "/traffic", &snap) {
		return TrafficSnapshot{}, false
	}
	return snap, true
}

// Connections returns the raw connection table payload.
func (c *Client) Connections(ctx context.Context) (json.RawMessage, bool) {
	var raw json.RawMessage
	if !c.getJSON(ctx, "/connections", &raw) {
		return nil, false
	}
	return raw, true
}

// SwitchProxy selects targetName inside the named selector group.
func (c *Client) SwitchProxy(ctx context.Context, selector, targetName string) bool {
	body := map[string]string{"name": targetName}
	return c.putJSON(ctx, "/proxies/"+url.PathEscape(selector), body)
}

// TestDelay probes proxyName against probeURL and returns the measured delay
// in milliseconds. -1 means unreachable or the request failed; that is an
// expected outcome for a dead proxy, not an error.
func (c *Client) TestDelay(ctx context.Context, proxyName, probeURL string, timeoutMs int) int {
	q := url.Values{}
	q.Set("timeout", strconv.Itoa(timeoutMs))
	q.Set("url", probeURL)
	path := "/proxies/" + url.PathEscape(proxyName) + "/delay?" + q.Encode()

	var out struct {
		Delay int `json:"delay"`
	}
	if !c.getJSON(ctx, path, &out) {
		return -1
	}
	return out.Delay
}

// ApplyConfig asks the core to load the config at path. force bypasses the
// core's own sanity checking.
func (c *Client) ApplyConfig(ctx context.Context, path string, force bool) bool {
	body := map[string]string{"path": path}
	return c.putJSON(ctx, "/configs?force="+strconv.FormatBool(force), body)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL()+path, nil)
	if err != nil {
		c.logger.Debug("controller request build failed", "path", path, "error", err)
		return false
	}
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Debug("controller unreachable", "path", path, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("controller returned non-success", "path", path, "status", resp.StatusCode)
		return false
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		c.logger.Debug("controller response decode failed", "path", path, "error", err)
		return false
	}
	return true
}

func (c *Client) putJSON(ctx context.Context, path string, body any) bool {
	b, err := json.Marshal(body)
	if err != nil {
		c.logger.Debug("controller request marshal failed", "path", path, "error", err)
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.cfg.BaseURL()+path, bytes.NewReader(b))
	if err != nil {
		c.logger.Debug("controller request build failed", "path", path, "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.hc.Do(req)
	if err != nil {
		c.logger.Debug("controller unreachable", "path", path, "error", err)
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Debug("controller rejected request", "path", path, "status", resp.StatusCode)
		return false
	}
	return true
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.Secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Secret)
	}
}
