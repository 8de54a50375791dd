package core

import (
	"bufio"
	"io"
	"strings"
)

// readLogStream drains the core's merged stdout/stderr until the stream
// closes, which happens when the process exits and the last write end of
// the pipe drops. Non-blank lines are teed to the rolling core log and
// forwarded as log events; blank lines are dropped.
func (s *Supervisor) readLogStream(sess *session, r io.ReadCloser) {
	defer sess.wg.Done()
	defer func() { _ = r.Close() }()

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 512*1024)
	for sc.Scan() {
		line := sc.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if sess.logW != nil {
			_, _ = sess.logW.Write([]byte(line + "\n"))
		}
		s.notifyLog(line)
	}
	// EOF is the normal way out. A read error during a deliberate stop is
	// expected and stays quiet.
	if err := sc.Err(); err != nil && !sess.deliberate.Load() && s.State() == StateRunning {
		s.logger.Warn("core output stream read error", "session", sess.id, "error", err)
	}
}
