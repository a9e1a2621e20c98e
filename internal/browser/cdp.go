package browser

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
)

// CDPOpener opens tabs in an already running browser through its DevTools
// endpoint, so forwarded tabs land in the user's profile instead of a fresh
// process.
type CDPOpener struct {
	cdpURL  string
	timeout time.Duration
}

func NewCDPOpener(cdpURL string) *CDPOpener {
	return &CDPOpener{cdpURL: cdpURL, timeout: 15 * time.Second}
}

// Open creates a new window for the first URL and a tab for each of the rest.
func (o *CDPOpener) Open(ctx context.Context, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, o.cdpURL)
	defer allocCancel()

	tempCtx, tempCancel := chromedp.NewContext(allocCtx)
	defer tempCancel()

	err := chromedp.Run(tempCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		browserCtx := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
		for i, u := range urls {
			create := target.CreateTarget(u)
			if i == 0 {
				create = create.WithNewWindow(true)
			}
			id, err := create.Do(browserCtx)
			if err != nil {
				return fmt.Errorf("create target %q: %w", u, err)
			}
			slog.Debug("opened tab via CDP", "target_id", id, "url", truncateURL(u))
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("cdp opener: %w", err)
	}
	slog.Info("opened tabs via CDP", "cdp_url", o.cdpURL, "tabs", len(urls))
	return nil
}

func truncateURL(url string) string {
	if len(url) > 120 {
		return url[:120] + "..."
	}
	return url
}
