package server

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/klauspost/compress/gzhttp"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/territories/internal/game"
)

func addRoutes(r chi.Router, logger *slog.Logger, d Deps) {
	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Territories API", "/openapi.json", "/docs"))

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(d.limiter))

		r.Get("/teams", handleTeams(d.Engine))
		r.Post("/login", handleLogin(logger, d.Engine, d.Sessions))
		r.Post("/admin/login", handleAdminLogin(logger, d.Engine, d.Sessions))
		r.With(gzip).Get("/state", handleState(d.Engine, d.Sessions))

		r.Group(func(r chi.Router) {
			r.Use(requireSession(d.Sessions))
			r.Post("/logout", handleLogout(d.Sessions))
			r.Get("/stream", handleEvents(logger, d.Engine, d.Broker, d.Heartbeat))
			r.Post("/territory/info", handleTerritoryInfo(logger, d.Engine))

			r.With(requireRole(game.RoleTeam)).Post("/territory/claimVerifyRequest", handleRequestVerification(logger, d.Engine))
			r.With(requireRole(game.RoleTeam)).Post("/territory/claimRequest", handleSubmitClaim(logger, d.Engine, d.Uploads))

			r.Route("/admin", func(r chi.Router) {
				r.Use(requireRole(game.RoleAdmin))
				r.Post("/claimVerifyRequest/resolve", handleResolveVerification(logger, d.Engine))
				r.Post("/claimVerifyRequest/assignTask", handleAssignTask(logger, d.Engine))
				r.Post("/claimRequest/resolve", handleResolveClaim(logger, d.Engine))
				r.Post("/territory/setOwner", handleSetOwner(logger, d.Engine))
				r.Post("/team/cooldown", handleTeamCooldown(logger, d.Engine))
				r.Post("/game/setLocked", handleSetLocked(logger, d.Engine))
				r.Post("/territories/reset", handleResetTerritories(logger, d.Engine))
				r.Post("/teams/reset", handleResetTeams(logger, d.Engine))
				r.Post("/geometry", handleReplaceGeometry(logger, d.Engine))
				r.Get("/archives", handleArchives(logger, d.Archives))
			})
		})
	})

	if d.Uploads != nil {
		r.Handle("/uploads/*", handleUploads(d.Uploads.Dir()))
	}

	if d.PublicDir != "" {
		if info, err := os.Stat(d.PublicDir); err == nil && info.IsDir() {
			logger.Info("serving static files", "dir", d.PublicDir)
			r.NotFound(handleSPA(d.PublicDir))
		}
	}
}

// gzip compresses full state payloads, which carry every polygon.
func gzip(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
