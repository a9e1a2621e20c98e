// Package browser opens forwarded tab lists in a local Chrome/Chromium.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
)

// Opener opens a list of URLs in a local browser.
type Opener interface {
	Open(ctx context.Context, urls []string) error
}

// detectBrowser finds an available Chrome/Chromium binary.
func detectBrowser() (string, error) {
	candidates := []string{"google-chrome", "google-chrome-stable", "chromium-browser", "chromium"}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	if runtime.GOOS == "darwin" {
		macPath := "/Applications/Google Chrome.app/Contents/MacOS/Google Chrome"
		if _, err := os.Stat(macPath); err == nil {
			return macPath, nil
		}
	}
	return "", fmt.Errorf("no supported browser found (tried %v)", candidates)
}

// ExecOpener spawns the browser binary with the URLs as arguments, which
// opens them as tabs of one new window.
type ExecOpener struct {
	name string
	args []string

	// start runs the command; replaced in tests.
	start func(name string, args ...string) error
}

// NewExecOpener uses browser when set, otherwise the first detected Chrome or
// Chromium. On Windows it goes through `cmd /C start chrome`.
func NewExecOpener(browser string) (*ExecOpener, error) {
	if runtime.GOOS == "windows" {
		name := browser
		if name == "" {
			name = "chrome"
		}
		return &ExecOpener{name: "cmd", args: []string{"/C", "start", "", name}, start: startDetached}, nil
	}
	if browser == "" {
		path, err := detectBrowser()
		if err != nil {
			return nil, err
		}
		browser = path
	}
	slog.Info("detected browser", "path", browser)
	return &ExecOpener{name: browser, args: []string{"--new-window"}, start: startDetached}, nil
}

func (o *ExecOpener) Open(_ context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	args := append(append([]string(nil), o.args...), urls...)
	if err := o.start(o.name, args...); err != nil {
		return fmt.Errorf("exec opener: start %s: %w", o.name, err)
	}
	slog.Info("opened tabs in browser", "browser", o.name, "tabs", len(urls))
	return nil
}

// startDetached starts the process and reaps it in the background. The
// browser outlives the request, so no context is attached.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			slog.Debug("browser process exited", "pid", cmd.Process.Pid, "error", err)
		}
	}()
	return nil
}

// FallbackOpener tries each opener in order until one succeeds.
type FallbackOpener []Opener

func (f FallbackOpener) Open(ctx context.Context, urls []string) error {
	var errs []error
	for _, o := range f {
		err := o.Open(ctx, urls)
		if err == nil {
			return nil
		}
		slog.Warn("opener failed, trying next", "error", err)
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return errors.New("no openers configured")
	}
	return errors.Join(errs...)
}
