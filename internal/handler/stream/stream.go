// Package stream pushes the caller's game view over a WebSocket, for clients
// that prefer it to server-sent events.
package stream

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
)

const writeTimeout = 10 * time.Second

// Snapshotter renders the current state for a viewer.
type Snapshotter interface {
	Snapshot(viewer game.Viewer, compact bool) game.View
}

type Handler struct {
	logger    *slog.Logger
	sessions  *live.Sessions
	state     Snapshotter
	broker    *live.Broker
	heartbeat time.Duration
}

func NewHandler(logger *slog.Logger, sessions *live.Sessions, state Snapshotter, broker *live.Broker, heartbeat time.Duration) *Handler {
	return &Handler{
		logger:    logger,
		sessions:  sessions,
		state:     state,
		broker:    broker,
		heartbeat: heartbeat,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.serve)
	return r
}

func (h *Handler) serve(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.sessions.Get(r.URL.Query().Get("token"))
	if !ok {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "not logged in"})
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.logger.Error("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	// Clients never send; CloseRead handles control frames and cancels ctx
	// when the peer goes away.
	ctx := conn.CloseRead(r.Context())

	// Only the first frame carries polygons; later ones are compact.
	client := h.broker.Subscribe(sess.Viewer, true)
	defer h.broker.Unsubscribe(client)

	initial, err := json.Marshal(h.state.Snapshot(sess.Viewer, false))
	if err != nil {
		h.logger.Error("rendering initial state", "error", err)
		conn.Close(websocket.StatusInternalError, "internal error")
		return
	}
	if err := write(ctx, conn, initial); err != nil {
		h.logger.Debug("websocket write failed", "error", err)
		return
	}

	ping := time.NewTicker(h.heartbeat)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("websocket stream ended", "viewer", sess.Viewer.Key())
			return
		case data := <-client.C():
			if err := write(ctx, conn, data); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				h.logger.Debug("websocket ping failed", "error", err)
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, data)
}
