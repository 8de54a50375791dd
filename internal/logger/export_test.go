package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestExportTailSmallFile(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	if err := os.WriteFile(cfg.File(), []byte("line one\nline two\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := cfg.ExportTail(filepath.Join(dir, "export"), "abc123")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(b) != "line one\nline two\n" {
		t.Fatalf("unexpected export content: %q", b)
	}
	if !strings.Contains(filepath.Base(out), "abc123") {
		t.Fatalf("export name should carry the session id: %s", out)
	}
}

func TestExportTailBounded(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir}
	big := bytes.Repeat([]byte("x"), ExportTailLimit+5000)
	copy(big[len(big)-4:], "TAIL")
	if err := os.WriteFile(cfg.File(), big, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	out, err := cfg.ExportTail(dir, "s")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if len(b) != ExportTailLimit {
		t.Fatalf("export size = %d, want %d", len(b), ExportTailLimit)
	}
	if !bytes.HasSuffix(b, []byte("TAIL")) {
		t.Fatalf("export should keep the most recent bytes")
	}
}

func TestExportTailNoLogConfigured(t *testing.T) {
	var cfg Config
	if _, err := cfg.ExportTail(t.TempDir(), "s"); err == nil {
		t.Fatalf("expected error without a configured log")
	}
}
