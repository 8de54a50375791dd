package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	gops "github.com/shirou/gopsutil/v4/process"

	"github.com/vortexvpn/coremgr/internal/controller"
	"github.com/vortexvpn/coremgr/internal/history"
	"github.com/vortexvpn/coremgr/internal/logger"
	"github.com/vortexvpn/coremgr/internal/metrics"
)

const (
	DefaultGracePeriod  = 500 * time.Millisecond
	DefaultStopWait     = 3 * time.Second
	DefaultPollInterval = time.Second
	DefaultPollBackoff  = 5 * time.Second
)

// Options configures a Supervisor.
type Options struct {
	BinaryPath   string        // path to the core executable
	DataDir      string        // working directory and data dir handed to the core
	GracePeriod  time.Duration // how long the core must survive before it counts as started
	StopWait     time.Duration // graceful termination window before force-kill
	PollInterval time.Duration // traffic poll cadence while healthy
	PollBackoff  time.Duration // retry cadence after a failed poll
	Log          logger.Config // rolling file for the core's combined output
	Logger       *slog.Logger
	History      history.Sink
}

func (o Options) withDefaults() Options {
	if o.GracePeriod <= 0 {
		o.GracePeriod = DefaultGracePeriod
	}
	if o.StopWait <= 0 {
		o.StopWait = DefaultStopWait
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollBackoff <= 0 {
		o.PollBackoff = DefaultPollBackoff
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.History == nil {
		o.History = history.NopSink{}
	}
	return o
}

// Supervisor owns the external core process: it launches it, derives the
// controller settings from its config, runs the log and traffic loops for
// the lifetime of a session, and tears everything down on Stop. At most one
// core process exists at a time.
//
// Start, Stop and ReloadConfig are serialized against each other. The
// background loops only read state snapshots; the supervisor is the single
// writer.
type Supervisor struct {
	opts   Options
	logger *slog.Logger
	hist   history.Sink

	opMu sync.Mutex // serializes lifecycle operations

	mu          sync.Mutex
	state       State
	cmd         *exec.Cmd
	configPath  string
	startedAt   time.Time
	sessionID   string
	ctlCfg      controller.Config
	ctl         *controller.Client
	sess        *session
	lastTraffic TrafficUpdate
	listener    Listener
}

// session is one core run: a cancellation scope the background loops live
// in. Stop cancels it and joins the WaitGroup, so no loop outlives its run.
type session struct {
	id         string
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	deliberate atomic.Bool   // set when Stop initiated the shutdown
	waitDone   chan struct{} // closed by the exit watcher after cmd.Wait
	exitErr    error         // valid once waitDone is closed
	logW       io.WriteCloser
}

// New constructs a Supervisor in the Stopped state.
func New(opts Options) *Supervisor {
	opts = opts.withDefaults()
	return &Supervisor{
		opts:   opts,
		logger: opts.Logger,
		hist:   opts.History,
	}
}

// Start launches the core with the given config file. It is idempotent
// while Running. It returns ErrBinaryUnavailable when the executable is
// missing, or an ExitedEarlyError when the core dies inside the grace
// period; in the latter case the supervisor is left in StateFailed.
func (s *Supervisor) Start(configPath string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if s.State() == StateRunning {
		return nil
	}
	s.reapStaleSession()

	fi, err := os.Stat(s.opts.BinaryPath)
	if err != nil || fi.IsDir() || !isExecutable(fi) {
		return fmt.Errorf("%w: %s", ErrBinaryUnavailable, s.opts.BinaryPath)
	}
	if err := os.MkdirAll(s.opts.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctlCfg := controller.ExtractFromFile(configPath, s.logger)
	ctl := controller.New(ctlCfg, s.logger)

	s.setState(StateStarting)

	// #nosec G204 -- binary and config paths are operator-configured
	cmd := exec.Command(s.opts.BinaryPath, "-d", s.opts.DataDir, "-f", configPath)
	cmd.Dir = s.opts.DataDir
	cmd.Env = append(os.Environ(), "HOME="+s.opts.DataDir)
	configureSysProcAttr(cmd)

	// One pipe for stdout and stderr merged; the log reader drains it until
	// the core exits and the write end drops.
	pr, pw, err := os.Pipe()
	if err != nil {
		s.setState(StateStopped)
		return fmt.Errorf("create output pipe: %w", err)
	}
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		_ = pr.Close()
		_ = pw.Close()
		s.setState(StateStopped)
		s.notifyError("failed to launch core process: " + err.Error())
		return fmt.Errorf("launch core process: %w", err)
	}
	_ = pw.Close() // the child owns the write end now

	sess := &session{
		id:       uuid.NewString()[:8],
		waitDone: make(chan struct{}),
		logW:     s.opts.Log.Writer(),
	}
	sess.ctx, sess.cancel = context.WithCancel(context.Background())

	sess.wg.Add(1)
	go s.watchExit(sess, cmd)

	select {
	case <-sess.waitDone:
		// Died inside the grace period.
		code := exitCode(sess.exitErr)
		sess.cancel()
		sess.wg.Wait()
		_ = pr.Close()
		if sess.logW != nil {
			_ = sess.logW.Close()
		}
		s.setState(StateFailed)
		exitErr := &ExitedEarlyError{Code: code}
		s.notifyError(exitErr.Error())
		return exitErr
	case <-time.After(s.opts.GracePeriod):
	}

	s.mu.Lock()
	s.cmd = cmd
	s.configPath = configPath
	s.startedAt = time.Now()
	s.sessionID = sess.id
	s.ctlCfg = ctlCfg
	s.ctl = ctl
	s.sess = sess
	s.lastTraffic = TrafficUpdate{}
	s.mu.Unlock()

	s.logger.Info("core process started",
		"pid", cmd.Process.Pid, "session", sess.id,
		"config", configPath, "controller", ctlCfg.BaseURL())

	// State notification goes out before the loops start.
	s.setState(StateRunning)

	sess.wg.Add(2)
	go s.readLogStream(sess, pr)
	go s.pollTraffic(sess)
	return nil
}

// Stop terminates the core and joins every background loop before
// returning. Whatever happens during termination, the supervisor ends in
// StateStopped with no process handle.
func (s *Supervisor) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	sess := s.sess
	cmd := s.cmd
	st := s.state
	s.mu.Unlock()

	// Nothing to tear down (never started, or died inside the grace period):
	// land on Stopped without announcing a stop that isn't happening.
	if sess == nil && cmd == nil {
		if st != StateStopped {
			s.setState(StateStopped)
		}
		return
	}

	if sess != nil {
		sess.deliberate.Store(true)
	}
	s.setState(StateStopping)
	if sess != nil {
		sess.cancel()
	}

	if cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		if err := terminateProcess(pid); err != nil {
			s.logger.Debug("terminate signal failed", "pid", pid, "error", err)
		}
		if sess != nil {
			select {
			case <-sess.waitDone:
			case <-time.After(s.opts.StopWait):
				s.logger.Warn("core did not exit in time, force-killing", "pid", pid)
				_ = killProcess(pid)
				select {
				case <-sess.waitDone:
				case <-time.After(time.Second):
					s.logger.Error("core process could not be reaped", "pid", pid)
				}
			}
		}
	}

	if sess != nil {
		sess.wg.Wait()
		if sess.logW != nil {
			_ = sess.logW.Close()
		}
	}

	s.mu.Lock()
	s.cmd = nil
	s.configPath = ""
	s.sess = nil
	s.ctl = nil
	s.startedAt = time.Time{}
	s.mu.Unlock()

	s.setState(StateStopped)
	s.mu.Lock()
	s.sessionID = ""
	s.mu.Unlock()
}

// reapStaleSession cleans up a session left behind by an unexpected exit
// (StateFailed) so a new Start begins from a clean slate. opMu held.
func (s *Supervisor) reapStaleSession() {
	s.mu.Lock()
	sess := s.sess
	s.cmd = nil
	s.sess = nil
	s.ctl = nil
	s.mu.Unlock()
	if sess == nil {
		return
	}
	sess.deliberate.Store(true)
	sess.cancel()
	sess.wg.Wait()
	if sess.logW != nil {
		_ = sess.logW.Close()
	}
}

// watchExit is the single waiter on the core process. It reaps the exit
// status, and when the death was not a deliberate stop, flips the
// supervisor into StateFailed with the exit code.
func (s *Supervisor) watchExit(sess *session, cmd *exec.Cmd) {
	defer sess.wg.Done()
	err := cmd.Wait()
	sess.exitErr = err
	close(sess.waitDone)

	if sess.deliberate.Load() {
		return
	}
	s.mu.Lock()
	unexpected := s.state == StateRunning && s.sess == sess
	s.mu.Unlock()
	if !unexpected {
		return
	}
	sess.cancel()
	code := exitCode(err)
	s.logger.Error("core process exited unexpectedly", "exit_code", code, "session", sess.id)
	s.setState(StateFailed)
	s.notifyError(fmt.Sprintf("core process exited unexpectedly (exit code %d)", code))
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsRunning probes the process for liveness instead of trusting the state
// flag; the core can die between polls without the supervisor noticing yet.
func (s *Supervisor) IsRunning() bool {
	s.mu.Lock()
	st := s.state
	cmd := s.cmd
	s.mu.Unlock()
	if st != StateRunning || cmd == nil || cmd.Process == nil {
		return false
	}
	ok, err := gops.PidExists(int32(cmd.Process.Pid)) // #nosec G115
	return err == nil && ok
}

// ReloadConfig asks the running core to apply the config at path. On
// success the path becomes the recorded config and the controller settings
// are re-extracted from it; on failure nothing changes.
func (s *Supervisor) ReloadConfig(path string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	ctl := s.ctl
	s.mu.Unlock()
	if ctl == nil {
		return ErrNotRunning
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if !ctl.ApplyConfig(ctx, path, true) {
		s.notifyError("config reload rejected: " + path)
		return fmt.Errorf("%w: %s", ErrReloadRejected, path)
	}

	ctlCfg := controller.ExtractFromFile(path, s.logger)
	s.mu.Lock()
	s.configPath = path
	s.ctlCfg = ctlCfg
	s.ctl = controller.New(ctlCfg, s.logger)
	s.mu.Unlock()
	s.logger.Info("core config reloaded", "config", path, "controller", ctlCfg.BaseURL())
	return nil
}

// Controller returns the client for the running core's control plane.
func (s *Supervisor) Controller() (*controller.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctl == nil {
		return nil, ErrNotRunning
	}
	return s.ctl, nil
}

// ControllerConfig returns the last extracted controller settings.
func (s *Supervisor) ControllerConfig() controller.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctlCfg
}

// PID returns the core process id, or 0 when no process is managed.
func (s *Supervisor) PID() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return int32(s.cmd.Process.Pid) // #nosec G115
}

// Status is a point-in-time snapshot for callers outside the package.
type Status struct {
	State      string         `json:"state"`
	Running    bool           `json:"running"`
	PID        int32          `json:"pid,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	ConfigPath string         `json:"config_path,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	Traffic    *TrafficUpdate `json:"traffic,omitempty"`
}

func (s *Supervisor) Status() Status {
	running := s.IsRunning()
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		State:      s.state.String(),
		Running:    running,
		SessionID:  s.sessionID,
		ConfigPath: s.configPath,
	}
	if s.cmd != nil && s.cmd.Process != nil {
		st.PID = int32(s.cmd.Process.Pid) // #nosec G115
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		st.StartedAt = &t
	}
	if s.state == StateRunning {
		tr := s.lastTraffic
		st.Traffic = &tr
	}
	return st
}

// LastTraffic returns the most recent traffic update of the current session.
func (s *Supervisor) LastTraffic() TrafficUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastTraffic
}

// ExportLogs copies the recent tail of the core log to destDir and returns
// the exported file path.
func (s *Supervisor) ExportLogs(destDir string) (string, error) {
	s.mu.Lock()
	sid := s.sessionID
	s.mu.Unlock()
	if sid == "" {
		sid = "idle"
	}
	return s.opts.Log.ExportTail(destDir, sid)
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	old := s.state
	s.state = st
	sid := s.sessionID
	s.mu.Unlock()
	if old == st {
		return
	}
	metrics.RecordStateTransition(old.String(), st.String())
	metrics.SetCurrentState(old.String(), false)
	metrics.SetCurrentState(st.String(), true)
	s.record(history.Event{
		Type:       history.EventState,
		OccurredAt: time.Now(),
		SessionID:  sid,
		State:      st.String(),
	})
	s.notifyState(st)
}

func (s *Supervisor) record(e history.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.hist.Send(ctx, e); err != nil {
		s.logger.Debug("history sink send failed", "error", err)
	}
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode()
	}
	return -1
}
