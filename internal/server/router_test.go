package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vortexvpn/coremgr/internal/core"
	"github.com/vortexvpn/coremgr/internal/logger"
)

func newTestRouter(t *testing.T) (*Router, *core.Supervisor, string) {
	t.Helper()
	dir := t.TempDir()
	sup := core.New(core.Options{
		BinaryPath: filepath.Join(dir, "missing-core"),
		DataDir:    dir,
		Log:        logger.Config{Dir: filepath.Join(dir, "logs")},
	})
	return NewRouter(sup, "/api", "http://www.gstatic.com/generate_204"), sup, dir
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestStartValidation(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()

	w := do(t, h, http.MethodPost, "/api/core/start", "{not json")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid JSON: code=%d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/core/start", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty config: code=%d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/core/start", `{"config":"relative/path.yaml"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("relative config: code=%d", w.Code)
	}
	w = do(t, h, http.MethodPost, "/api/core/start", `{"config":"/a/../../etc/config.yaml"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("traversal config: code=%d", w.Code)
	}
}

func TestStartMissingBinaryReported(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodPost, "/api/core/start", `{"config":"/tmp/config.yaml"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["error"] == "" {
		t.Fatalf("expected error message, got %q", w.Body.String())
	}
}

func TestStopIsAlwaysOK(t *testing.T) {
	rt, sup, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodPost, "/api/core/stop", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	if sup.State() != core.StateStopped {
		t.Fatalf("state=%v", sup.State())
	}
}

func TestStatusEndpoint(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodGet, "/api/core/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
	var st core.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running {
		t.Fatalf("expected not running")
	}
	if st.State != "stopped" {
		t.Fatalf("state=%q", st.State)
	}
}

func TestControllerEndpointsConflictWhenStopped(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodGet, "/api/core/traffic", ""},
		{http.MethodGet, "/api/core/version", ""},
		{http.MethodGet, "/api/core/connections", ""},
		{http.MethodPut, "/api/core/proxies/GLOBAL", `{"name":"HK-01"}`},
		{http.MethodGet, "/api/core/proxies/HK-01/delay", ""},
	} {
		w := do(t, h, tc.method, tc.path, tc.body)
		if w.Code != http.StatusConflict {
			t.Fatalf("%s %s: code=%d body=%s", tc.method, tc.path, w.Code, w.Body.String())
		}
	}
}

func TestReloadValidation(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodPost, "/api/core/reload", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty config: code=%d", w.Code)
	}
	// Core is not running; reload must be rejected with a conflict.
	w = do(t, h, http.MethodPost, "/api/core/reload", `{"config":"/tmp/config.yaml"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("stopped reload: code=%d", w.Code)
	}
}

func TestSwitchProxyValidation(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodPut, "/api/core/proxies/GLOBAL", `{}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty name: code=%d", w.Code)
	}
}

func TestExportLogsEndpoint(t *testing.T) {
	rt, _, dir := newTestRouter(t)
	h := rt.Handler()

	logDir := filepath.Join(dir, "logs")
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(logDir, "core.log"), []byte("line one\nline two\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	dest := filepath.Join(dir, "export")
	body := `{"dir":"` + dest + `"}`
	w := do(t, h, http.MethodPost, "/api/core/logs/export", body)
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d body=%s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, err := os.ReadFile(resp["path"])
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "line two") {
		t.Fatalf("exported content missing: %q", string(data))
	}

	w = do(t, h, http.MethodPost, "/api/core/logs/export", `{"dir":"relative"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("relative dir: code=%d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	rt, _, _ := newTestRouter(t)
	h := rt.Handler()
	w := do(t, h, http.MethodGet, "/api/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("code=%d", w.Code)
	}
}

func TestSanitizeBase(t *testing.T) {
	cases := map[string]string{
		"":      "",
		"/":     "",
		"api":   "/api",
		"/api":  "/api",
		"/api/": "/api",
	}
	for in, want := range cases {
		if got := sanitizeBase(in); got != want {
			t.Fatalf("sanitizeBase(%q)=%q want %q", in, got, want)
		}
	}
}
