package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
)

// handleEvents streams the caller's view as server-sent events: the full
// current state first, then every published state in compact form. A comment
// line is sent after heartbeat of silence.
func handleEvents(logger *slog.Logger, engine *game.Engine, broker *live.Broker, heartbeat time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}
		viewer := sessionFrom(r).Viewer

		// Subscribe before the first snapshot so no commit falls in between.
		client := broker.Subscribe(viewer, true)
		defer broker.Unsubscribe(client)

		initial, err := json.Marshal(engine.Snapshot(viewer, false))
		if err != nil {
			logger.Error("rendering initial state", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "event: state\ndata: %s\n\n", initial)
		flusher.Flush()

		ping := time.NewTimer(heartbeat)
		defer ping.Stop()

		for {
			select {
			case <-r.Context().Done():
				return
			case data := <-client.C():
				if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
					logger.Debug("sse write failed", "error", err)
					return
				}
				flusher.Flush()
				ping.Reset(heartbeat)
			case <-ping.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				flusher.Flush()
				ping.Reset(heartbeat)
			}
		}
	}
}
