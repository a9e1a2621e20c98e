package relay

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgnsrekt/tableap/internal/types"
)

// SSEHandler streams gesture events as server-sent events. It subscribes to
// the broker like an extension does, so it sees the same lossy feed.
// Clients may filter via ?edges=left,right.
func SSEHandler(broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		var edgeFilter map[types.Edge]bool
		if q := r.URL.Query().Get("edges"); q != "" {
			edgeFilter = make(map[types.Edge]bool)
			for _, part := range strings.Split(q, ",") {
				edge, err := types.ParseEdge(part)
				if err != nil {
					http.Error(w, err.Error(), http.StatusBadRequest)
					return
				}
				edgeFilter[edge] = true
			}
		}

		// Subscribe before the headers go out so a client that has seen the
		// response cannot miss the next event.
		id, ch := broker.Subscribe()
		defer broker.Unsubscribe(id)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if edgeFilter != nil && !edgeFilter[evt.Edge] {
					continue
				}
				data, err := json.Marshal(evt)
				if err != nil {
					slog.Debug("gesture event encode failed", "error", err)
					continue
				}
				fmt.Fprintf(w, "event: gesture\ndata: %s\n\n", data)
				flusher.Flush()
			}
		}
	}
}
