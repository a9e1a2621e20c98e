package browser

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dgnsrekt/tableap/internal/notify"
)

// NotifyingOpener posts an ntfy message after the wrapped opener succeeds.
// Notification failures are logged and never fail the open.
type NotifyingOpener struct {
	Next     Opener
	Endpoint string
	From     string
	Client   *http.Client
}

func (o *NotifyingOpener) Open(ctx context.Context, urls []string) error {
	if err := o.Next.Open(ctx, urls); err != nil {
		return err
	}
	if o.Endpoint == "" {
		return nil
	}
	msg := notify.TabsMessage(o.From, urls)
	if err := notify.Send(ctx, o.Client, o.Endpoint, msg); err != nil {
		slog.Warn("failed to send tabs notification", "endpoint", o.Endpoint, "error", err)
	}
	return nil
}
