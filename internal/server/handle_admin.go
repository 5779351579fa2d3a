package server

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/playperu/territories/internal/game"
)

// ResolveVerifyBody is the request body for POST /api/admin/claimVerifyRequest/resolve.
type ResolveVerifyBody struct {
	ClaimVerifyRequestID string   `json:"claimVerifyRequestId"`
	OK                   flexBool `json:"ok"`
}

// AssignTaskBody is the request body for POST /api/admin/claimVerifyRequest/assignTask.
type AssignTaskBody struct {
	ClaimVerifyRequestID string `json:"claimVerifyRequestId"`
	Task                 string `json:"task"`
}

// ResolveClaimBody is the request body for POST /api/admin/claimRequest/resolve.
// Approve is accepted as an alias of Correct.
type ResolveClaimBody struct {
	ClaimRequestID string    `json:"claimRequestId"`
	Correct        *flexBool `json:"correct,omitempty"`
	Approve        *flexBool `json:"approve,omitempty"`
}

// SetOwnerBody is the request body for POST /api/admin/territory/setOwner.
// An empty or null ownerTeamId clears the owner.
type SetOwnerBody struct {
	TerritoryID string  `json:"territoryId"`
	OwnerTeamID *string `json:"ownerTeamId"`
}

// CooldownBody is the request body for POST /api/admin/team/cooldown.
// Zero minutes clears the cooldown.
type CooldownBody struct {
	TeamID  string  `json:"teamId"`
	Minutes float64 `json:"minutes"`
	Reason  string  `json:"reason,omitempty"`
}

// SetLockedBody is the request body for POST /api/admin/game/setLocked.
type SetLockedBody struct {
	Locked flexBool `json:"locked"`
}

type SetLockedResponse struct {
	OK     bool `json:"ok"`
	Locked bool `json:"locked"`
}

type GeometryResponse struct {
	OK      bool `json:"ok"`
	Regions int  `json:"regions"`
}

type ArchivesResponse struct {
	Archives []string `json:"archives"`
}

// ArchiveLister lists archived states.
type ArchiveLister interface {
	List() ([]string, error)
}

func handleResolveVerification(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveVerifyBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClaimVerifyRequestID == "" {
			writeError(w, http.StatusBadRequest, "claimVerifyRequestId is required")
			return
		}
		v, err := engine.ResolveVerification(r.Context(), req.ClaimVerifyRequestID, bool(req.OK))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("verification resolved", "request", v.ID, "status", v.Status)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleAssignTask(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AssignTaskBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClaimVerifyRequestID == "" {
			writeError(w, http.StatusBadRequest, "claimVerifyRequestId is required")
			return
		}
		v, err := engine.AssignTask(r.Context(), req.ClaimVerifyRequestID, req.Task)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("task assigned", "request", v.ID, "team", v.TeamID, "territory", v.TerritoryID)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleResolveClaim(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ResolveClaimBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClaimRequestID == "" {
			writeError(w, http.StatusBadRequest, "claimRequestId is required")
			return
		}
		correct := req.Correct
		if correct == nil {
			correct = req.Approve
		}
		c, err := engine.ResolveClaim(r.Context(), req.ClaimRequestID, correct != nil && bool(*correct))
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("claim resolved",
			"request", c.ID,
			"team", c.TeamID,
			"territory", c.TerritoryID,
			"status", c.Status,
			"reason", c.RejectReason,
		)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleSetOwner(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetOwnerBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TerritoryID == "" {
			writeError(w, http.StatusBadRequest, "territoryId is required")
			return
		}
		owner := ""
		if req.OwnerTeamID != nil {
			owner = strings.TrimSpace(*req.OwnerTeamID)
		}
		if err := engine.SetOwner(r.Context(), req.TerritoryID, owner); err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("owner set", "territory", req.TerritoryID, "team", owner)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleTeamCooldown(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CooldownBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TeamID == "" || req.Minutes < 0 {
			writeError(w, http.StatusBadRequest, "teamId and non-negative minutes are required")
			return
		}
		d := time.Duration(req.Minutes * float64(time.Minute))
		if err := engine.SetTeamCooldown(r.Context(), req.TeamID, d, req.Reason); err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("team cooldown set", "team", req.TeamID, "minutes", req.Minutes)
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleSetLocked(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetLockedBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if err := engine.SetGameLocked(r.Context(), bool(req.Locked)); err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("game lock changed", "locked", bool(req.Locked))
		writeJSON(w, http.StatusOK, SetLockedResponse{OK: true, Locked: bool(req.Locked)})
	}
}

func handleResetTerritories(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.ResetTerritories(r.Context()); err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("territories reset")
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

func handleResetTeams(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := engine.ResetTeams(r.Context()); err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("teams reset")
		writeJSON(w, http.StatusOK, OKResponse{OK: true})
	}
}

// handleReplaceGeometry takes a GeoJSON FeatureCollection as the raw body.
func handleReplaceGeometry(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		n, err := engine.ReplaceGeometry(r.Context(), raw)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("geometry replaced", "regions", n, "bytes", len(raw))
		writeJSON(w, http.StatusOK, GeometryResponse{OK: true, Regions: n})
	}
}

func handleArchives(logger *slog.Logger, archive ArchiveLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ArchivesResponse{Archives: []string{}}
		if archive != nil {
			names, err := archive.List()
			if err != nil {
				writeGameError(w, logger, err)
				return
			}
			resp.Archives = append(resp.Archives, names...)
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
