package server

import (
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/vortexvpn/coremgr/internal/core"
	"github.com/vortexvpn/coremgr/internal/metrics"
)

// Router provides embeddable HTTP handlers for controlling the proxy core.
// Endpoints:
//   POST {basePath}/core/start           body: {"config": "/abs/path.yaml"}
//   POST {basePath}/core/stop
//   POST {basePath}/core/reload          body: {"config": "/abs/path.yaml"}
//   GET  {basePath}/core/status
//   GET  {basePath}/core/version
//   GET  {basePath}/core/traffic
//   GET  {basePath}/core/connections
//   PUT  {basePath}/core/proxies/:selector   body: {"name": "HK-01"}
//   GET  {basePath}/core/proxies/:name/delay query: url=...&timeout_ms=...
//   POST {basePath}/core/logs/export     body: {"dir": "/abs/dir"}
//   GET  {basePath}/metrics
// basePath may be empty or start with '/'; no trailing slash.

type Router struct {
	sup      *core.Supervisor
	basePath string
	probeURL string
}

// NewRouter constructs a new Router with configurable basePath. probeURL is
// the default connectivity endpoint for delay tests when the request omits one.
func NewRouter(sup *core.Supervisor, basePath, probeURL string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath), probeURL: probeURL}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.POST("/core/start", r.handleStart)
	group.POST("/core/stop", r.handleStop)
	group.POST("/core/reload", r.handleReload)
	group.GET("/core/status", r.handleStatus)
	group.GET("/core/version", r.handleVersion)
	group.GET("/core/traffic", r.handleTraffic)
	group.GET("/core/connections", r.handleConnections)
	group.PUT("/core/proxies/:selector", r.handleSwitchProxy)
	group.GET("/core/proxies/:name/delay", r.handleDelay)
	group.POST("/core/logs/export", r.handleExportLogs)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
// Shut it down via http.Server's Close or Shutdown.
func NewServer(addr, basePath, probeURL string, sup *core.Supervisor) (*http.Server, error) {
	server := newServer(addr, basePath, probeURL, sup)
	go func() { _ = server.ListenAndServe() }()
	return server, nil
}

// NewTLSServer starts a standalone HTTPS server on addr using this router.
func NewTLSServer(addr, basePath, probeURL string, sup *core.Supervisor, tlsCfg *tls.Config) (*http.Server, error) {
	if tlsCfg == nil {
		return nil, errors.New("nil TLS config")
	}
	server := newServer(addr, basePath, probeURL, sup)
	server.TLSConfig = tlsCfg
	go func() { _ = server.ListenAndServeTLS("", "") }()
	return server, nil
}

func newServer(addr, basePath, probeURL string, sup *core.Supervisor) *http.Server {
	r := NewRouter(sup, basePath, probeURL)
	return &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// --- Handlers ---

type errorResp struct {
	Error string `json:"error"`
}

type okResp struct {
	OK bool `json:"ok"`
}

type startReq struct {
	Config string `json:"config"`
}

func (r *Router) handleStart(c *gin.Context) {
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Config == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "config required"})
		return
	}
	if !isSafeAbsPath(req.Config) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid config: must be absolute path without traversal"})
		return
	}
	if err := r.sup.Start(req.Config); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStop(c *gin.Context) {
	r.sup.Stop()
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleReload(c *gin.Context) {
	var req startReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Config == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "config required"})
		return
	}
	if !isSafeAbsPath(req.Config) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid config: must be absolute path without traversal"})
		return
	}
	if err := r.sup.ReloadConfig(req.Config); err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

func (r *Router) handleStatus(c *gin.Context) {
	writeJSON(c, http.StatusOK, r.sup.Status())
}

type versionResp struct {
	Version string `json:"version"`
}

func (r *Router) handleVersion(c *gin.Context) {
	ctl, err := r.sup.Controller()
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	v, ok := ctl.Version(c.Request.Context())
	if !ok {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "version query failed"})
		return
	}
	writeJSON(c, http.StatusOK, versionResp{Version: v})
}

func (r *Router) handleTraffic(c *gin.Context) {
	ctl, err := r.sup.Controller()
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	snap, ok := ctl.Traffic(c.Request.Context())
	if !ok {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "traffic query failed"})
		return
	}
	writeJSON(c, http.StatusOK, snap)
}

func (r *Router) handleConnections(c *gin.Context) {
	ctl, err := r.sup.Controller()
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	raw, ok := ctl.Connections(c.Request.Context())
	if !ok {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "connections query failed"})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

type switchReq struct {
	Name string `json:"name"`
}

func (r *Router) handleSwitchProxy(c *gin.Context) {
	selector := c.Param("selector")
	var req switchReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "name required"})
		return
	}
	ctl, err := r.sup.Controller()
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	if !ctl.SwitchProxy(c.Request.Context(), selector, req.Name) {
		writeJSON(c, http.StatusBadGateway, errorResp{Error: "proxy switch failed"})
		return
	}
	writeJSON(c, http.StatusOK, okResp{OK: true})
}

type delayResp struct {
	Proxy   string `json:"proxy"`
	DelayMs int    `json:"delay_ms"`
}

func (r *Router) handleDelay(c *gin.Context) {
	name := c.Param("name")
	url := c.DefaultQuery("url", r.probeURL)
	timeoutMs := 5000
	if v := c.Query("timeout_ms"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			timeoutMs = n
		} else {
			writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid timeout_ms"})
			return
		}
	}
	ctl, err := r.sup.Controller()
	if err != nil {
		writeJSON(c, http.StatusConflict, errorResp{Error: err.Error()})
		return
	}
	delay := ctl.TestDelay(c.Request.Context(), name, url, timeoutMs)
	writeJSON(c, http.StatusOK, delayResp{Proxy: name, DelayMs: delay})
}

type exportReq struct {
	Dir string `json:"dir"`
}

type exportResp struct {
	Path string `json:"path"`
}

func (r *Router) handleExportLogs(c *gin.Context) {
	var req exportReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid JSON: " + err.Error()})
		return
	}
	if req.Dir == "" {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "dir required"})
		return
	}
	if !isSafeAbsPath(req.Dir) {
		writeJSON(c, http.StatusBadRequest, errorResp{Error: "invalid dir: must be absolute path without traversal"})
		return
	}
	path, err := r.sup.ExportLogs(req.Dir)
	if err != nil {
		writeJSON(c, http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	writeJSON(c, http.StatusOK, exportResp{Path: path})
}
