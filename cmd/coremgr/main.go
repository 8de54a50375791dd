package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/vortexvpn/coremgr"
	"github.com/vortexvpn/coremgr/internal/logger"
	"github.com/vortexvpn/coremgr/internal/metrics"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires all subcommands.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	cmd := command{}

	root := &cobra.Command{
		Use:   "coremgr",
		Short: "Supervise and control a proxy core process",
		Long: `coremgr runs a proxy core executable as a supervised child process and
exposes its control plane over a local REST API.

Examples:
  coremgr serve --config=coremgr.toml   # Start the daemon
  coremgr start --core-config=/etc/vortex/config.yaml
  coremgr status
  coremgr switch --selector=GLOBAL --name=HK-01
  coremgr delay --proxy=HK-01`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&globalFlags.ConfigPath, "config", "", "manager TOML config file")
	root.PersistentFlags().StringVar(&globalFlags.APIUrl, "api-url", "", "daemon API base URL (default http://127.0.0.1:9898/api)")
	root.PersistentFlags().DurationVar(&globalFlags.APITimeout, "api-timeout", 10*time.Second, "daemon API request timeout")

	root.AddCommand(
		createServeCommand(globalFlags),
		createStartCommand(cmd, globalFlags),
		createStopCommand(cmd, globalFlags),
		createStatusCommand(cmd, globalFlags),
		createReloadCommand(cmd, globalFlags),
		createTrafficCommand(cmd, globalFlags),
		createConnectionsCommand(cmd, globalFlags),
		createVersionCommand(cmd, globalFlags),
		createSwitchCommand(cmd, globalFlags),
		createDelayCommand(cmd, globalFlags),
		createExportLogsCommand(cmd, globalFlags),
	)
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	c := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the coremgr daemon",
		Long: `Start the coremgr daemon. The daemon supervises the proxy core process
and serves the control API configured in the TOML config.

Examples:
  coremgr serve                     # Uses --config
  coremgr serve coremgr.toml        # Start with a specific config file`,
		RunE: func(c *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			return runServeCommand(serveFlags, args)
		},
	}
	return c
}

func runServeCommand(flags *ServeFlags, args []string) error {
	configPath := flags.ConfigPath
	if len(args) > 0 {
		configPath = args[0]
	}
	if configPath == "" {
		return fmt.Errorf("config file required for serve command. Use --config=coremgr.toml or provide as argument")
	}

	cfg, err := coremgr.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}

	if err := coremgr.RegisterMetricsDefault(); err != nil {
		fmt.Printf("Warning: failed to register metrics: %v\n", err)
	}

	sink, err := coremgr.NewHistorySink(cfg.History)
	if err != nil {
		return fmt.Errorf("failed to open history sink: %w", err)
	}
	defer func() { _ = sink.Close() }()

	log := logger.NewColor(os.Stderr, slog.LevelInfo)

	mgr := coremgr.New(coremgr.Options{
		BinaryPath:   cfg.Core.Binary,
		DataDir:      cfg.Core.DataDir,
		GracePeriod:  cfg.Core.GracePeriod,
		StopWait:     cfg.Core.StopWait,
		PollInterval: cfg.Monitor.PollInterval,
		PollBackoff:  cfg.Monitor.PollBackoff,
		Log:          cfg.Log,
		Logger:       log,
		History:      sink,
	})

	// Resource metrics follow the supervised PID; no core means no samples.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	collector := metrics.NewResourceCollector(cfg.Monitor.ResourceInterval)
	if err := collector.RegisterMetrics(prometheus.DefaultRegisterer); err != nil {
		fmt.Printf("Warning: failed to register resource metrics: %v\n", err)
	}
	go collector.Run(ctx, mgr.PID)

	prober := coremgr.NewProber(coremgr.ProbeSpec{
		Schedule:  cfg.Probe.Schedule,
		Proxy:     cfg.Probe.Proxy,
		URL:       cfg.Probe.URL,
		TimeoutMs: cfg.Probe.TimeoutMs,
	}, mgr)
	if err := prober.Start(); err != nil {
		return fmt.Errorf("failed to start latency prober: %w", err)
	}

	// Launch the core right away when its config already exists; otherwise
	// wait for an explicit start via the API.
	if cfg.Core.Config != "" {
		if _, statErr := os.Stat(cfg.Core.Config); statErr == nil {
			if startErr := mgr.Start(cfg.Core.Config); startErr != nil {
				fmt.Printf("Warning: failed to start core: %v\n", startErr)
			}
		}
	}

	protocol := "HTTP"
	var server *http.Server
	if cfg.Server.TLS != nil && cfg.Server.TLS.Enabled {
		protocol = "HTTPS"
		server, err = coremgr.NewTLSServer(cfg.Server, cfg.Probe.URL, mgr)
		if err != nil {
			return fmt.Errorf("failed to create HTTPS server: %w", err)
		}
	} else {
		server, err = coremgr.NewHTTPServer(cfg.Server.Listen, cfg.Server.BasePath, cfg.Probe.URL, mgr)
		if err != nil {
			return fmt.Errorf("failed to create HTTP server: %w", err)
		}
	}

	fmt.Printf("Starting coremgr %s server on %s%s\n", protocol, cfg.Server.Listen, cfg.Server.BasePath)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("Shutting down...")
	prober.Stop()
	mgr.Stop()
	return server.Close()
}

func createStartCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &StartFlags{}
	c := &cobra.Command{
		Use:   "start",
		Short: "Start the proxy core",
		RunE: func(c *cobra.Command, args []string) error {
			flags.APIUrl = globalFlags.APIUrl
			flags.APITimeout = globalFlags.APITimeout
			return cmd.Start(*flags)
		},
	}
	c.Flags().StringVar(&flags.CoreConfig, "core-config", "", "proxy core YAML config path (absolute)")
	return c
}

func createStopCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the proxy core",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Stop(*globalFlags)
		},
	}
}

func createStatusCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show core lifecycle status",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Status(*globalFlags)
		},
	}
}

func createReloadCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &ReloadFlags{}
	c := &cobra.Command{
		Use:   "reload",
		Short: "Apply a new core config without restarting",
		RunE: func(c *cobra.Command, args []string) error {
			flags.APIUrl = globalFlags.APIUrl
			flags.APITimeout = globalFlags.APITimeout
			return cmd.Reload(*flags)
		},
	}
	c.Flags().StringVar(&flags.CoreConfig, "core-config", "", "proxy core YAML config path (absolute)")
	return c
}

func createTrafficCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "traffic",
		Short: "Show cumulative core traffic counters",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Traffic(*globalFlags)
		},
	}
}

func createConnectionsCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "connections",
		Short: "Show active core connections",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Connections(*globalFlags)
		},
	}
}

func createVersionCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the running core's version",
		RunE: func(c *cobra.Command, args []string) error {
			return cmd.Version(*globalFlags)
		},
	}
}

func createSwitchCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &SwitchFlags{}
	c := &cobra.Command{
		Use:   "switch",
		Short: "Select a proxy inside a selector group",
		RunE: func(c *cobra.Command, args []string) error {
			flags.APIUrl = globalFlags.APIUrl
			flags.APITimeout = globalFlags.APITimeout
			return cmd.Switch(*flags)
		},
	}
	c.Flags().StringVar(&flags.Selector, "selector", "", "selector group name, e.g. GLOBAL")
	c.Flags().StringVar(&flags.Name, "name", "", "proxy name to select")
	return c
}

func createDelayCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &DelayFlags{}
	c := &cobra.Command{
		Use:   "delay",
		Short: "Measure proxy latency",
		RunE: func(c *cobra.Command, args []string) error {
			flags.APIUrl = globalFlags.APIUrl
			flags.APITimeout = globalFlags.APITimeout
			return cmd.Delay(*flags)
		},
	}
	c.Flags().StringVar(&flags.Proxy, "proxy", "", "proxy name to probe")
	c.Flags().StringVar(&flags.URL, "url", "", "connectivity probe URL (daemon default when empty)")
	c.Flags().IntVar(&flags.TimeoutMs, "timeout-ms", 0, "probe timeout in milliseconds (daemon default when 0)")
	return c
}

func createExportLogsCommand(cmd command, globalFlags *GlobalFlags) *cobra.Command {
	flags := &ExportLogsFlags{}
	c := &cobra.Command{
		Use:   "export-logs",
		Short: "Export the recent core log tail",
		RunE: func(c *cobra.Command, args []string) error {
			flags.APIUrl = globalFlags.APIUrl
			flags.APITimeout = globalFlags.APITimeout
			return cmd.ExportLogs(*flags)
		},
	}
	c.Flags().StringVar(&flags.Dir, "dir", "", "destination directory (absolute)")
	return c
}
