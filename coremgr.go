package coremgr

import (
	"net/http"
	"time"

	cfg "github.com/vortexvpn/coremgr/internal/config"
	"github.com/vortexvpn/coremgr/internal/controller"
	"github.com/vortexvpn/coremgr/internal/core"
	"github.com/vortexvpn/coremgr/internal/history"
	"github.com/vortexvpn/coremgr/internal/metrics"
	"github.com/vortexvpn/coremgr/internal/probe"
	iapi "github.com/vortexvpn/coremgr/internal/server"
	itls "github.com/vortexvpn/coremgr/internal/tls"
	"github.com/prometheus/client_golang/prometheus"
)

// Re-export core types for external consumers.
// These are aliases so conversions are zero-cost.

type Options = core.Options

type Status = core.Status

type State = core.State

type TrafficUpdate = core.TrafficUpdate

type Listener = core.Listener

type ControllerConfig = controller.Config

type TrafficSnapshot = controller.TrafficSnapshot

type HistoryConfig = cfg.HistoryConfig

type HistorySink = history.Sink

// Manager is a thin facade over internal/core.Supervisor.
// It provides a stable public API for embedding.

type Manager struct{ inner *core.Supervisor }

func New(opts Options) *Manager { return &Manager{inner: core.New(opts)} }

func (m *Manager) Start(configPath string) error      { return m.inner.Start(configPath) }
func (m *Manager) Stop()                              { m.inner.Stop() }
func (m *Manager) ReloadConfig(path string) error     { return m.inner.ReloadConfig(path) }
func (m *Manager) Status() Status                     { return m.inner.Status() }
func (m *Manager) State() State                       { return m.inner.State() }
func (m *Manager) IsRunning() bool                    { return m.inner.IsRunning() }
func (m *Manager) PID() int32                         { return m.inner.PID() }
func (m *Manager) SetListener(l Listener)             { m.inner.SetListener(l) }
func (m *Manager) LastTraffic() TrafficUpdate         { return m.inner.LastTraffic() }
func (m *Manager) ControllerConfig() ControllerConfig { return m.inner.ControllerConfig() }
func (m *Manager) Controller() (*controller.Client, error) {
	return m.inner.Controller()
}
func (m *Manager) ExportLogs(destDir string) (string, error) { return m.inner.ExportLogs(destDir) }

// LoadConfig reads a manager TOML config and fills in defaults.
func LoadConfig(path string) (cfg.FileConfig, error) {
	return cfg.Load(path)
}

// NewHistorySink builds the sink described by hc. A disabled config yields a
// no-op sink so callers can wire it unconditionally.
func NewHistorySink(hc HistoryConfig) (HistorySink, error) {
	if !hc.Enabled {
		return history.NopSink{}, nil
	}
	return history.NewSQLite(hc.DSN)
}

// Prober facade

type ProbeSpec = probe.Spec

type Prober struct{ inner *probe.Prober }

func NewProber(spec ProbeSpec, m *Manager) *Prober {
	return &Prober{inner: probe.New(spec, m.inner, nil)}
}

func (p *Prober) Start() error { return p.inner.Start() }
func (p *Prober) Stop()        { p.inner.Stop() }

// NewHTTPServer starts an HTTP server exposing the control API using the given manager.
func NewHTTPServer(addr, basePath, probeURL string, m *Manager) (*http.Server, error) {
	return iapi.NewServer(addr, basePath, probeURL, m.inner)
}

// NewTLSServer starts an HTTPS control API server described by sc.
func NewTLSServer(sc cfg.ServerConfig, probeURL string, m *Manager) (*http.Server, error) {
	tlsCfg, err := itls.Setup(sc)
	if err != nil {
		return nil, err
	}
	return iapi.NewTLSServer(sc.Listen, sc.BasePath, probeURL, m.inner, tlsCfg)
}

// Metrics helpers (public facade)

func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
func RegisterMetricsDefault() error                 { return metrics.Register(prometheus.DefaultRegisterer) }

// ServeMetrics starts an HTTP server on addr exposing /metrics using the default registry.
// It returns any immediate listen error; otherwise it runs the server in the caller goroutine.
func ServeMetrics(addr string) error {
	http.Handle("/metrics", metrics.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           nil,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv.ListenAndServe()
}
