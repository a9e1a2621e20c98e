// Package notify posts plain-text messages to an ntfy topic.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxListed caps how many URLs a tabs message spells out.
const maxListed = 5

// TabsMessage summarizes a forwarded tab list for a push notification.
func TabsMessage(from string, urls []string) string {
	var b strings.Builder
	noun := "tabs"
	if len(urls) == 1 {
		noun = "tab"
	}
	fmt.Fprintf(&b, "Received %d %s", len(urls), noun)
	if from != "" {
		fmt.Fprintf(&b, " from %s", from)
	}
	for i, u := range urls {
		if i == maxListed {
			fmt.Fprintf(&b, "\n... and %d more", len(urls)-maxListed)
			break
		}
		b.WriteString("\n")
		b.WriteString(u)
	}
	return b.String()
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string) error {
	if endpoint == "" {
		return errors.New("ntfy endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("Title", "tableap")

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
