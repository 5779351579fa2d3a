package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/live"
)

// TerritoryRequest names one territory.
type TerritoryRequest struct {
	TerritoryID string `json:"territoryId"`
}

// handleState returns the state as the caller may see it. Without a session
// the caller gets the guest view.
func handleState(engine *game.Engine, sessions *live.Sessions) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		viewer := game.Viewer{Role: game.RoleGuest}
		if sess, ok := sessions.Get(tokenFromRequest(r)); ok {
			viewer = sess.Viewer
		}
		writeJSON(w, http.StatusOK, engine.Snapshot(viewer, queryBool(r, "compact")))
	}
}

func handleTerritoryInfo(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TerritoryRequest
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TerritoryID == "" {
			writeError(w, http.StatusBadRequest, "territoryId is required")
			return
		}
		info, err := engine.TerritoryInfo(sessionFrom(r).Viewer, req.TerritoryID)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, info)
	}
}

func queryBool(r *http.Request, key string) bool {
	switch r.URL.Query().Get(key) {
	case "1", "true", "yes":
		return true
	}
	return false
}
