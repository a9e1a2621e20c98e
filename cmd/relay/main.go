package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dgnsrekt/tableap/internal/api"
	"github.com/dgnsrekt/tableap/internal/config"
	"github.com/dgnsrekt/tableap/internal/gesture"
	"github.com/dgnsrekt/tableap/internal/logging"
	"github.com/dgnsrekt/tableap/internal/metrics"
	"github.com/dgnsrekt/tableap/internal/netutil"
	"github.com/dgnsrekt/tableap/internal/relay"
)

func main() {
	flags := pflag.NewFlagSet("tableap-relay", pflag.ContinueOnError)
	envFile := flags.String("env-file", "", "env file to load (default ./.env)")
	devicesFile := flags.String("devices", "", "device map YAML, overrides TABLEAP_DEVICES_FILE")
	logLevel := flags.String("log-level", "", "debug, info, warn or error, overrides TABLEAP_LOG_LEVEL")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	cfg, err := config.LoadRelay(*envFile)
	if err != nil {
		slog.Error("failed to load relay config", "error", err)
		os.Exit(1)
	}
	if *devicesFile != "" {
		cfg.DevicesFile = *devicesFile
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logCloser, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		_, _ = io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n")
		os.Exit(1)
	}
	defer func() { _ = logCloser.Close() }()

	slog.Info("relay config loaded",
		"extension_addr", cfg.ExtensionAddr,
		"peer_addr", cfg.PeerAddr,
		"control_addr", cfg.ControlAddr,
		"devices_file", cfg.DevicesFile,
		"gesture_buffer", cfg.GestureBuffer,
		"outbound_buffer", cfg.OutboundBuffer,
		"route_timeout_ms", cfg.RouteTimeout.Milliseconds(),
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	devices, err := config.LoadDevices(cfg.DevicesFile)
	if err != nil {
		slog.Error("failed to load device map", "path", cfg.DevicesFile, "error", err)
		os.Exit(1)
	}
	for _, d := range devices.Devices {
		slog.Info("device mapped", "address", d.Address, "edge", d.Edge)
	}

	if err := run(cfg, devices); err != nil {
		slog.Error("relay stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("relay stopped")
}

func run(cfg *config.RelayConfig, devices config.Devices) error {
	m := metrics.New()
	r := relay.New(devices, relay.Options{
		GestureBuffer:  cfg.GestureBuffer,
		OutboundBuffer: cfg.OutboundBuffer,
		RouteTimeout:   cfg.RouteTimeout,
		Metrics:        m,
	})
	detector := gesture.NewDetector(gesture.Config{
		MinHold:  cfg.GestureHold,
		EdgeBand: float64(cfg.GestureEdgeBand),
		Cooldown: cfg.GestureCooldown,
	}, clock.New())

	extLn, err := net.Listen("tcp", cfg.ExtensionAddr)
	if err != nil {
		return fmt.Errorf("listen extensions on %s: %w", cfg.ExtensionAddr, err)
	}
	peerLn, err := net.Listen("tcp", cfg.PeerAddr)
	if err != nil {
		_ = extLn.Close()
		return fmt.Errorf("listen peers on %s: %w", cfg.PeerAddr, err)
	}
	ctlLn, err := netutil.ListenFirst(cfg.ControlAddr, cfg.ControlAddrCandidates, cfg.ControlAddrAutoFallback)
	if err != nil {
		_ = extLn.Close()
		_ = peerLn.Close()
		return fmt.Errorf("listen control api: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	baseCtx := func(net.Listener) context.Context { return gctx }

	extSrv := &http.Server{
		Handler:     api.NewExtensionRouter(r.Extensions),
		BaseContext: baseCtx,
	}
	ctlSrv := &http.Server{
		Handler: api.NewServer(r, api.Options{
			Detector: detector,
			Metrics:  m.Handler(),
			Events:   relay.SSEHandler(r.Broker),
		}),
		BaseContext:       baseCtx,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return r.Peers.Serve(gctx, peerLn)
	})
	g.Go(func() error {
		slog.Info("extension gateway listening", "addr", extLn.Addr().String())
		return serve(extSrv, extLn)
	})
	g.Go(func() error {
		addr := ctlLn.Addr().String()
		slog.Info("control api listening", "addr", addr, "docs", "http://"+addr+"/docs")
		return serve(ctlSrv, ctlLn)
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down relay")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return errors.Join(
			extSrv.Shutdown(shutdownCtx),
			ctlSrv.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

func serve(srv *http.Server, ln net.Listener) error {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
