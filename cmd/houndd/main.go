// ABOUTME: Entry point for the hound sound server daemon
// ABOUTME: Loads config, wires services, starts devices and serves the control endpoint
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/samber/do/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Resonate-Protocol/hound/internal/config"
	"github.com/Resonate-Protocol/hound/internal/control"
	"github.com/Resonate-Protocol/hound/internal/device"
	"github.com/Resonate-Protocol/hound/internal/discovery"
	"github.com/Resonate-Protocol/hound/internal/logger"
	"github.com/Resonate-Protocol/hound/internal/metrics"
	"github.com/Resonate-Protocol/hound/internal/ui"
	"github.com/Resonate-Protocol/hound/internal/version"
	"github.com/Resonate-Protocol/hound/pkg/hound"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file")
	port       = flag.Int("port", 0, "Control server port (overrides config)")
	name       = flag.String("name", "", "Server friendly name (overrides config)")
	logFile    = flag.String("log-file", "", "Log file path (overrides config)")
	debug      = flag.Bool("debug", false, "Enable debug logging")
	useTUI     = flag.Bool("tui", false, "Show the graph monitor instead of console logs")
	noMDNS     = flag.Bool("no-mdns", false, "Disable mDNS advertisement")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVer {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "houndd: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}

	if *port != 0 {
		cfg.Control.Port = *port
	}
	if *name != "" {
		cfg.Name = *name
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if *noMDNS {
		cfg.Control.EnableMDNS = false
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setupDI(cfg *config.Config, log *zap.Logger) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	do.ProvideValue(injector, log)
	metrics.RegisterDI(injector)
	do.Provide(injector, func(i do.Injector) (*hound.Registry, error) {
		opts := []hound.Option{hound.WithLogger(log.Named("registry"))}
		if cfg.Metrics.Enabled {
			opts = append(opts, hound.WithMetrics(do.MustInvoke[*metrics.Registry](i)))
		}
		return hound.NewRegistry(opts...), nil
	})
	device.RegisterDI(injector)
	control.RegisterDI(injector)

	return injector
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// TUI mode: log only to file
	var console io.Writer = os.Stdout
	if *useTUI {
		console = nil
	}
	log, err := logger.New(logger.Options{LogConfig: cfg.Log, Console: console})
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting hound",
		zap.String("name", cfg.Name),
		zap.String("version", version.Version),
		zap.Int("port", cfg.Control.Port),
		zap.Int("devices", len(cfg.Devices)))

	injector := setupDI(cfg, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry, err := do.Invoke[*hound.Registry](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve registry: %w", err)
	}
	manager, err := do.Invoke[*device.Manager](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve device manager: %w", err)
	}
	srv, err := do.Invoke[*control.Server](injector)
	if err != nil {
		return fmt.Errorf("failed to resolve control server: %w", err)
	}

	added := manager.Start(cfg.Devices, cfg.Connections)
	log.Info("devices started", zap.Int("added", added), zap.Int("configured", len(cfg.Devices)))
	defer func() {
		if err := manager.Close(); err != nil {
			log.Warn("device shutdown errors", zap.Error(err))
		}
	}()

	if cfg.Control.EnableMDNS {
		mdns := discovery.NewManager(discovery.Config{
			ServiceName: cfg.Name,
			Port:        cfg.Control.Port,
			Path:        control.Path,
			Logger:      log.Named("mdns"),
		})
		if err := mdns.Advertise(); err != nil {
			log.Warn("failed to start mDNS advertisement", zap.Error(err))
		} else {
			defer mdns.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx)
	})
	if *useTUI {
		g.Go(func() error {
			// quitting the monitor stops the daemon
			defer stop()
			return ui.Run(gctx, cfg.Name, srv.Addr(), registry.Snapshot)
		})
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}
