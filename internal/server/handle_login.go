package server

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
)

// LoginRequest is the request body for POST /api/login.
type LoginRequest struct {
	TeamID string `json:"teamId"`
	Pin    string `json:"pin"`
}

// AdminLoginRequest is the request body for POST /api/admin/login.
type AdminLoginRequest struct {
	Pin string `json:"pin"`
}

// LoginResponse carries the session token for later requests.
type LoginResponse struct {
	OK          bool           `json:"ok"`
	Token       string         `json:"token"`
	Role        game.Role      `json:"role"`
	Team        *game.TeamView `json:"team,omitempty"`
	ExpiresAtMs int64          `json:"expiresAtMs"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func handleTeams(engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, engine.Teams())
	}
}

func handleLogin(logger *slog.Logger, engine *game.Engine, sessions *live.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.TeamID = strings.TrimSpace(req.TeamID)
		if req.TeamID == "" {
			writeError(w, http.StatusBadRequest, "teamId is required")
			return
		}

		team, err := engine.Login(req.TeamID, req.Pin)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		sess, err := sessions.Create(game.Viewer{Role: game.RoleTeam, TeamID: team.ID})
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("team logged in", "team", team.ID)
		writeJSON(w, http.StatusOK, LoginResponse{
			OK:          true,
			Token:       sess.Token,
			Role:        game.RoleTeam,
			Team:        &team,
			ExpiresAtMs: sess.ExpiresAt.UnixMilli(),
		})
	}
}

func handleAdminLogin(logger *slog.Logger, engine *game.Engine, sessions *live.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AdminLoginRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := engine.AdminLogin(req.Pin); err != nil {
			logger.Warn("admin login failed", "remote", r.RemoteAddr)
			writeGameError(w, logger, err)
			return
		}
		sess, err := sessions.Create(game.Viewer{Role: game.RoleAdmin})
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("admin logged in")
		writeJSON(w, http.StatusOK, LoginResponse{
			OK:          true,
			Token:       sess.Token,
			Role:        game.RoleAdmin,
			ExpiresAtMs: sess.ExpiresAt.UnixMilli(),
		})
	}
}

func handleLogout(sessions *live.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions.Delete(sessionFrom(r).Token)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}
