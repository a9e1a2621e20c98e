package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"

	"github.com/dgnsrekt/tableap/internal/browser"
	"github.com/dgnsrekt/tableap/internal/config"
	"github.com/dgnsrekt/tableap/internal/logging"
	"github.com/dgnsrekt/tableap/internal/peer"
)

func main() {
	flags := pflag.NewFlagSet("tableap-peer", pflag.ContinueOnError)
	envFile := flags.String("env-file", "", "env file to load (default ./.env)")
	relayAddr := flags.String("relay", "", "relay host[:port], overrides TABLEAP_RELAY_ADDR")
	logLevel := flags.String("log-level", "", "debug, info, warn or error, overrides TABLEAP_LOG_LEVEL")
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	if *relayAddr != "" {
		_ = os.Setenv("TABLEAP_RELAY_ADDR", *relayAddr)
	}

	cfg, err := config.LoadPeer(*envFile)
	if err != nil {
		slog.Error("failed to load peer config", "error", err)
		os.Exit(1)
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

	slog.Info("peer config loaded",
		"relay_addr", cfg.RelayAddr,
		"backoff_unit_ms", cfg.BackoffUnit.Milliseconds(),
		"backoff_max_ms", cfg.BackoffMax().Milliseconds(),
		"opener", cfg.Opener,
		"cdp_url", cfg.CDPURL,
		"launch_browser", cfg.LaunchBrowser,
		"ntfy", cfg.NTFYURL != "",
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener, cleanup, err := buildOpener(ctx, cfg)
	if err != nil {
		slog.Error("failed to set up browser opener", "opener", cfg.Opener, "error", err)
		os.Exit(1)
	}
	defer cleanup()

	client := peer.NewClient(peer.Options{
		Addr:    cfg.RelayAddr,
		Backoff: peer.NewBackoff(cfg.BackoffUnit, cfg.BackoffMaxUnits),
		Clock:   clock.New(),
	}, opener)

	if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("peer client stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("peer stopped")
}

// buildOpener assembles the tab opener: CDP with exec fallback, or exec alone,
// optionally wrapped with an ntfy notification.
func buildOpener(ctx context.Context, cfg *config.PeerConfig) (browser.Opener, func(), error) {
	cleanup := func() {}

	execOpener, err := browser.NewExecOpener(cfg.Browser)
	if err != nil {
		return nil, cleanup, err
	}

	var opener browser.Opener = execOpener
	if cfg.Opener == config.OpenerCDP {
		if cfg.LaunchBrowser {
			launcher, err := browser.NewLauncher(browser.LaunchConfig{
				CDPURL:     cfg.CDPURL,
				Browser:    cfg.Browser,
				ProfileDir: cfg.ProfileDir,
			})
			if err != nil {
				return nil, cleanup, err
			}
			if err := launcher.EnsureRunning(ctx); err != nil {
				return nil, cleanup, err
			}
			cleanup = launcher.Stop
		}
		opener = browser.FallbackOpener{browser.NewCDPOpener(cfg.CDPURL), execOpener}
	}

	if cfg.NTFYURL != "" {
		opener = &browser.NotifyingOpener{Next: opener, Endpoint: cfg.NTFYURL, From: cfg.RelayAddr}
	}
	return opener, cleanup, nil
}
