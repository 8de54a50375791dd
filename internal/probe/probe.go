// Package probe runs scheduled latency tests against a configured proxy so
// the UI can show link health without the user pressing a button.
package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vortexvpn/coremgr/internal/core"
	"github.com/vortexvpn/coremgr/internal/metrics"
)

// Spec configures the scheduled probe. Proxy and Schedule are required;
// an empty Spec disables probing.
type Spec struct {
	Schedule  string // cron spec, e.g. "@every 60s"
	Proxy     string
	URL       string
	TimeoutMs int
}

func (s Spec) enabled() bool { return s.Schedule != "" && s.Proxy != "" }

// Result is one probe outcome. DelayMs is -1 when the proxy was
// unreachable.
type Result struct {
	Proxy   string    `json:"proxy"`
	DelayMs int       `json:"delay_ms"`
	At      time.Time `json:"at"`
}

// Prober schedules delay tests against the supervisor's control plane.
// Probes only fire while the core is running; a tick during any other state
// is skipped silently.
type Prober struct {
	spec   Spec
	sup    *core.Supervisor
	logger *slog.Logger

	mu      sync.Mutex
	cr      *cron.Cron
	entryID cron.EntryID
	last    *Result
}

func New(spec Spec, sup *core.Supervisor, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	return &Prober{spec: spec, sup: sup, logger: logger}
}

// Start registers the schedule and begins probing. A disabled spec is a
// no-op so callers don't have to special-case configuration without probes.
func (p *Prober) Start() error {
	if !p.spec.enabled() {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cr != nil {
		return nil
	}
	cr := cron.New()
	id, err := cr.AddFunc(p.spec.Schedule, p.tick)
	if err != nil {
		return fmt.Errorf("invalid probe schedule %q: %w", p.spec.Schedule, err)
	}
	p.cr = cr
	p.entryID = id
	cr.Start()
	p.logger.Info("latency probe scheduled", "schedule", p.spec.Schedule, "proxy", p.spec.Proxy)
	return nil
}

// Stop halts the schedule and waits for an in-flight probe to finish.
func (p *Prober) Stop() {
	p.mu.Lock()
	cr := p.cr
	p.cr = nil
	p.mu.Unlock()
	if cr != nil {
		<-cr.Stop().Done()
	}
}

// Last returns the most recent probe result, if any.
func (p *Prober) Last() (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return Result{}, false
	}
	return *p.last, true
}

func (p *Prober) tick() {
	ctl, err := p.sup.Controller()
	if err != nil {
		return // core not running; nothing to probe
	}
	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(p.spec.TimeoutMs)*time.Millisecond+5*time.Second)
	defer cancel()

	delay := ctl.TestDelay(ctx, p.spec.Proxy, p.spec.URL, p.spec.TimeoutMs)
	metrics.ObserveDelay(p.spec.Proxy, delay)
	res := Result{Proxy: p.spec.Proxy, DelayMs: delay, At: time.Now()}

	p.mu.Lock()
	p.last = &res
	p.mu.Unlock()

	if delay < 0 {
		p.logger.Warn("latency probe failed", "proxy", p.spec.Proxy, "url", p.spec.URL)
		return
	}
	p.logger.Debug("latency probe", "proxy", p.spec.Proxy, "delay_ms", delay)
}
