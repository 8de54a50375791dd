package controller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler, secret string) *Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)
	u, err := url.Parse(ts.URL)
	if err != nil {
		t.Fatalf("parse test server url: %v", err)
	}
	port, _ := strconv.Atoi(u.Port())
	return New(Config{Host: u.Hostname(), Port: port, Secret: secret}, nil)
}

func TestVersion(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/version" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"version":"v1.18.0"}`))
	}), "")
	v, ok := c.Version(context.Background())
	if !ok || v != "v1.18.0" {
		t.Fatalf("unexpected version: %q ok=%v", v, ok)
	}
}

func TestBearerHeaderOnlyWithSecret(t *testing.T) {
	var gotAuth string
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"version":"x"}`))
	})

	c := newTestClient(t, handler, "topsecret")
	if _, ok := c.Version(context.Background()); !ok {
		t.Fatalf("version call failed")
	}
	if gotAuth != "Bearer topsecret" {
		t.Fatalf("expected bearer header, got %q", gotAuth)
	}

	c = newTestClient(t, handler, "")
	if _, ok := c.Version(context.Background()); !ok {
		t.Fatalf("version call failed")
	}
	if gotAuth != "" {
		t.Fatalf("expected no auth header, got %q", gotAuth)
	}
}

func TestTraffic(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"up":1234,"down":56789}`))
	}), "")
	snap, ok := c.Traffic(context.Background())
	if !ok {
		t.Fatalf("traffic call failed")
	}
	if snap.Upload != 1234 || snap.Download != 56789 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestTrafficUnreachable(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 1}, nil)
	if _, ok := c.Traffic(context.Background()); ok {
		t.Fatalf("expected traffic against closed port to fail")
	}
}

func TestSwitchProxy(t *testing.T) {
	var gotPath, gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Fatalf("expected PUT, got %s", r.Method)
		}
		gotPath = r.URL.Path
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}), "")
	if !c.SwitchProxy(context.Background(), "Proxy Group", "HK-01") {
		t.Fatalf("switch failed")
	}
	if gotPath != "/proxies/Proxy%20Group" && gotPath != "/proxies/Proxy Group" {
		t.Fatalf("unexpected path: %s", gotPath)
	}
	if gotBody != `{"name":"HK-01"}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestSwitchProxyRejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}), "")
	if c.SwitchProxy(context.Background(), "g", "p") {
		t.Fatalf("expected rejected switch to return false")
	}
}

func TestTestDelay(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("timeout") != "5000" {
			t.Fatalf("missing timeout query: %s", r.URL.RawQuery)
		}
		if r.URL.Query().Get("url") == "" {
			t.Fatalf("missing url query")
		}
		_, _ = w.Write([]byte(`{"delay":87}`))
	}), "")
	d := c.TestDelay(context.Background(), "HK-01", "http://www.gstatic.com/generate_204", 5000)
	if d != 87 {
		t.Fatalf("unexpected delay: %d", d)
	}
}

func TestTestDelayUnreachable(t *testing.T) {
	// A dead controller must yield the -1 sentinel, never an error.
	c := New(Config{Host: "127.0.0.1", Port: 1}, nil)
	if d := c.TestDelay(context.Background(), "p", "http://example.invalid", 1000); d != -1 {
		t.Fatalf("expected -1, got %d", d)
	}
}

func TestApplyConfig(t *testing.T) {
	var gotForce, gotBody string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotForce = r.URL.Query().Get("force")
		buf := make([]byte, 256)
		n, _ := r.Body.Read(buf)
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusNoContent)
	}), "")
	if !c.ApplyConfig(context.Background(), "/etc/core/config.yaml", true) {
		t.Fatalf("apply failed")
	}
	if gotForce != "true" {
		t.Fatalf("expected force=true, got %q", gotForce)
	}
	if gotBody != `{"path":"/etc/core/config.yaml"}` {
		t.Fatalf("unexpected body: %s", gotBody)
	}
}

func TestClientUsesSharedRequestTimeout(t *testing.T) {
	c := New(Config{Host: "127.0.0.1", Port: 9090}, nil)
	if c.hc.Timeout != RequestTimeout {
		t.Fatalf("client timeout %v diverged from RequestTimeout %v", c.hc.Timeout, RequestTimeout)
	}
}
