package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
	"github.com/playperu/territories/internal/upload"
)

// Deps are the collaborators the HTTP layer drives.
type Deps struct {
	Engine    *game.Engine
	Sessions  *live.Sessions
	Broker    *live.Broker
	Uploads   *upload.Store
	Archives  ArchiveLister
	PublicDir string
	Heartbeat time.Duration

	// RateLimit is requests per second per client address on /api.
	// Zero disables throttling.
	RateLimit float64
	RateBurst int

	limiter *ipLimiter
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// New builds the server. mount registers extra routes, such as health and
// the WebSocket stream, ahead of the API.
func New(addr string, logger *slog.Logger, d Deps, mount func(r chi.Router)) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           newRouter(logger, d, mount),
			ReadHeaderTimeout: 5 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		logger: logger,
	}
}

func newRouter(logger *slog.Logger, d Deps, mount func(r chi.Router)) chi.Router {
	if d.Heartbeat <= 0 {
		d.Heartbeat = 15 * time.Second
	}
	if d.RateLimit > 0 {
		d.limiter = newIPLimiter(d.RateLimit, d.RateBurst)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(newStructuredLogger(logger))
	r.Use(middleware.Recoverer)

	if mount != nil {
		mount(r)
	}
	addRoutes(r, logger, d)
	return r
}

func (s *Server) Run(_ context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.srv.Addr, err)
	}

	err = s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits up to 10 s for requests,
// including open streams, to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
