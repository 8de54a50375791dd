package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newFakeDaemon(t *testing.T) (*httptest.Server, *APIClient) {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/core/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"state": "running", "running": true, "pid": 42})
	})
	mux.HandleFunc("/api/core/start", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["config"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "config required"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/core/stop", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/core/version", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"version": "v1.19.0"})
	})
	mux.HandleFunc("/api/core/proxies/GLOBAL", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]bool{"ok": true})
	})
	mux.HandleFunc("/api/core/proxies/HK-01/delay", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"proxy": "HK-01", "delay_ms": 123})
	})
	mux.HandleFunc("/api/core/logs/export", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"path": "/tmp/export/core-log.txt"})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, NewAPIClient(srv.URL+"/api", 2*time.Second)
}

func TestClientIsReachable(t *testing.T) {
	_, client := newFakeDaemon(t)
	if !client.IsReachable() {
		t.Fatalf("expected reachable daemon")
	}
	down := NewAPIClient("http://127.0.0.1:1/api", 200*time.Millisecond)
	if down.IsReachable() {
		t.Fatalf("expected unreachable daemon")
	}
}

func TestClientStartErrors(t *testing.T) {
	_, client := newFakeDaemon(t)
	if err := client.StartCore("/tmp/config.yaml"); err != nil {
		t.Fatalf("start: %v", err)
	}
	err := client.StartCore("")
	if err == nil {
		t.Fatalf("expected API error")
	}
	if got := err.Error(); got != "API error: config required" {
		t.Fatalf("error=%q", got)
	}
}

func TestClientStatusAndVersion(t *testing.T) {
	_, client := newFakeDaemon(t)
	raw, err := client.GetStatus()
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	var st map[string]any
	if err := json.Unmarshal(raw, &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st["state"] != "running" {
		t.Fatalf("state=%v", st["state"])
	}
	v, err := client.GetVersion()
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if v != "v1.19.0" {
		t.Fatalf("version=%q", v)
	}
}

func TestClientSwitchAndDelay(t *testing.T) {
	_, client := newFakeDaemon(t)
	if err := client.SwitchProxy("GLOBAL", "HK-01"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	delay, err := client.TestDelay("HK-01", "", 0)
	if err != nil {
		t.Fatalf("delay: %v", err)
	}
	if delay != 123 {
		t.Fatalf("delay=%d", delay)
	}
}

func TestClientExportLogs(t *testing.T) {
	_, client := newFakeDaemon(t)
	path, err := client.ExportLogs("/tmp/export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if path != "/tmp/export/core-log.txt" {
		t.Fatalf("path=%q", path)
	}
}

func TestClientDefaultBaseURL(t *testing.T) {
	c := NewAPIClient("", 0)
	if c.baseURL != "http://127.0.0.1:9898/api" {
		t.Fatalf("baseURL=%q", c.baseURL)
	}
}
