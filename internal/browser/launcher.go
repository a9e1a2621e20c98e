package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// LaunchConfig describes the browser the peer starts when no DevTools
// endpoint is answering.
type LaunchConfig struct {
	CDPURL     string
	Browser    string
	ProfileDir string
}

// Launcher starts a Chrome/Chromium with remote debugging enabled so the CDP
// opener has something to attach to.
type Launcher struct {
	cfg     LaunchConfig
	host    string
	port    string
	cmd     *exec.Cmd
	timeout time.Duration
}

func NewLauncher(cfg LaunchConfig) (*Launcher, error) {
	u, err := url.Parse(cfg.CDPURL)
	if err != nil {
		return nil, fmt.Errorf("launcher: parse cdp url: %w", err)
	}
	host, port := u.Hostname(), u.Port()
	if host == "" || port == "" {
		return nil, fmt.Errorf("launcher: cdp url %q needs host and port", cfg.CDPURL)
	}
	return &Launcher{cfg: cfg, host: host, port: port, timeout: 15 * time.Second}, nil
}

func (l *Launcher) endpointUp() bool {
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(l.host, l.port), time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// EnsureRunning launches the browser unless the DevTools port already
// answers, then waits for /json/version.
func (l *Launcher) EnsureRunning(ctx context.Context) error {
	if l.endpointUp() {
		slog.Info("browser already running, skipping launch", "host", l.host, "port", l.port)
		return nil
	}

	browserPath := l.cfg.Browser
	if browserPath == "" {
		path, err := detectBrowser()
		if err != nil {
			return err
		}
		browserPath = path
	}
	if err := os.MkdirAll(l.cfg.ProfileDir, 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	args := []string{
		"--remote-debugging-port=" + l.port,
		"--remote-debugging-address=" + l.host,
		"--user-data-dir=" + l.cfg.ProfileDir,
		"--no-first-run",
		"--no-default-browser-check",
	}
	l.cmd = exec.Command(browserPath, args...)
	l.cmd.Stdout = os.Stdout
	l.cmd.Stderr = os.Stderr
	if err := l.cmd.Start(); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	slog.Info("browser process started", "path", browserPath, "pid", l.cmd.Process.Pid)

	if err := l.waitForCDP(ctx); err != nil {
		l.Stop()
		return fmt.Errorf("waiting for CDP: %w", err)
	}
	slog.Info("CDP endpoint ready", "host", l.host, "port", l.port)
	return nil
}

// waitForCDP polls the /json/version endpoint until it responds.
func (l *Launcher) waitForCDP(ctx context.Context) error {
	versionURL := "http://" + net.JoinHostPort(l.host, l.port) + "/json/version"
	deadline := time.After(l.timeout)
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	client := &http.Client{Timeout: time.Second}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("CDP did not become ready within %s at %s", l.timeout, versionURL)
		case <-ticker.C:
			resp, err := client.Get(versionURL)
			if err != nil {
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
	}
}

// Stop terminates a browser this launcher started with SIGTERM, falling back
// to SIGKILL. A browser that was already running is left alone.
func (l *Launcher) Stop() {
	if l.cmd == nil || l.cmd.Process == nil {
		return
	}
	slog.Info("stopping browser", "pid", l.cmd.Process.Pid)
	_ = l.cmd.Process.Signal(syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		_ = l.cmd.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("browser stopped gracefully")
	case <-time.After(5 * time.Second):
		slog.Warn("browser did not exit, sending SIGKILL")
		_ = l.cmd.Process.Kill()
		<-done
	}
	l.cmd = nil
}
