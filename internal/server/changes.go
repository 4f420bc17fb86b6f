package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"bpdcentral/internal/repo"
)

// Poll cadence for the change feed. Vars so tests can tighten them.
var (
	changePollInterval = time.Second
	heartbeatInterval  = 15 * time.Second
)

// handleChanges streams change notifications as SSE. Events carry no payload
// detail: any row change in any table produces one opaque `change` event and
// receivers are expected to refetch in full.
func handleChanges(r repo.Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")

		writeSSE(w, "connected", map[string]string{"type": "connected"})
		flusher.Flush()

		ctx := req.Context()
		lastSeen, err := r.MaxEventID(ctx)
		if err != nil {
			return
		}

		ticker := time.NewTicker(changePollInterval)
		heartbeat := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(w, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				flusher.Flush()
			case <-ticker.C:
				evts, err := r.EventsSince(ctx, lastSeen)
				if err != nil || len(evts) == 0 {
					continue
				}
				lastSeen = evts[len(evts)-1].ID
				// Coalesce a burst into one notification; the client refetches
				// everything anyway.
				writeSSE(w, "change", map[string]any{"count": len(evts)})
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w io.Writer, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
}
