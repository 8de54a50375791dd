package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// APIClient provides HTTP client functionality to communicate with the
// coremgr daemon.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://127.0.0.1:9898/api"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// IsReachable checks if the daemon is running and reachable.
func (c *APIClient) IsReachable() bool {
	resp, err := c.client.Get(c.baseURL + "/core/status")
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode != http.StatusNotFound
}

func (c *APIClient) decodeError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil || errorResp.Error == "" {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}

func (c *APIClient) postJSON(path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.client.Post(c.baseURL+path, "application/json", bytes.NewReader(data))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *APIClient) getJSON(path string, out any) error {
	resp, err := c.client.Get(c.baseURL + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// StartCore asks the daemon to start the core with the given config.
func (c *APIClient) StartCore(coreConfig string) error {
	return c.postJSON("/core/start", map[string]string{"config": coreConfig}, nil)
}

// StopCore asks the daemon to stop the core.
func (c *APIClient) StopCore() error {
	return c.postJSON("/core/stop", map[string]string{}, nil)
}

// ReloadCore asks the daemon to apply a new core config without restarting.
func (c *APIClient) ReloadCore(coreConfig string) error {
	return c.postJSON("/core/reload", map[string]string{"config": coreConfig}, nil)
}

// GetStatus returns the daemon's view of the core lifecycle.
func (c *APIClient) GetStatus() (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON("/core/status", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetTraffic returns the core's cumulative traffic counters.
func (c *APIClient) GetTraffic() (json.RawMessage, error) {
	var raw json.RawMessage
	if err := c.getJSON("/core/traffic", &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// GetConnections returns the core's active connections payload verbatim.
func (c *APIClient) GetConnections() (json.RawMessage, error) {
	resp, err := c.client.Get(c.baseURL + "/core/connections")
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// GetVersion returns the running core's version string.
func (c *APIClient) GetVersion() (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.getJSON("/core/version", &out); err != nil {
		return "", err
	}
	return out.Version, nil
}

// SwitchProxy selects a proxy inside a selector group.
func (c *APIClient) SwitchProxy(selector, name string) error {
	data, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut,
		c.baseURL+"/core/proxies/"+url.PathEscape(selector), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}
	return nil
}

// TestDelay measures proxy latency via the daemon. probeURL and timeoutMs are
// optional; zero values fall back to the daemon's defaults.
func (c *APIClient) TestDelay(proxy, probeURL string, timeoutMs int) (int, error) {
	q := url.Values{}
	if probeURL != "" {
		q.Set("url", probeURL)
	}
	if timeoutMs > 0 {
		q.Set("timeout_ms", strconv.Itoa(timeoutMs))
	}
	path := "/core/proxies/" + url.PathEscape(proxy) + "/delay"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out struct {
		Proxy   string `json:"proxy"`
		DelayMs int    `json:"delay_ms"`
	}
	if err := c.getJSON(path, &out); err != nil {
		return 0, err
	}
	return out.DelayMs, nil
}

// ExportLogs asks the daemon to copy the recent core log tail into dir and
// returns the exported file path.
func (c *APIClient) ExportLogs(dir string) (string, error) {
	var out struct {
		Path string `json:"path"`
	}
	if err := c.postJSON("/core/logs/export", map[string]string{"dir": dir}, &out); err != nil {
		return "", err
	}
	return out.Path, nil
}
