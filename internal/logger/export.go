package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// ExportTailLimit bounds how much of the core log an export copies. Exports
// feed bug reports; the most recent tail is what matters.
const ExportTailLimit = 100 * 1024

// ExportTail copies up to ExportTailLimit trailing bytes of the core log to
// destDir and returns the path of the exported file. The export filename
// carries a timestamp and the session id so repeated exports never collide.
func (c Config) ExportTail(destDir, sessionID string) (string, error) {
	src := c.File()
	if src == "" {
		return "", fmt.Errorf("no core log configured")
	}
	f, err := os.Open(src) // #nosec G304 -- path is operator-configured
	if err != nil {
		return "", fmt.Errorf("open core log: %w", err)
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat core log: %w", err)
	}
	if fi.Size() > ExportTailLimit {
		if _, err := f.Seek(fi.Size()-ExportTailLimit, io.SeekStart); err != nil {
			return "", fmt.Errorf("seek core log: %w", err)
		}
	}

	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return "", fmt.Errorf("create export dir: %w", err)
	}
	name := fmt.Sprintf("core-log-%s-%s.txt", time.Now().Format("20060102-150405"), sessionID)
	dest := filepath.Join(destDir, name)
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600) // #nosec G304
	if err != nil {
		return "", fmt.Errorf("create export file: %w", err)
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, f); err != nil {
		return "", fmt.Errorf("copy log tail: %w", err)
	}
	return dest, nil
}
