package server

import (
	"log/slog"
	"net/http"

	"github.com/playperu/territories/internal/game"
	"github.com/playperu/territories/internal/upload"
)

// VerifyRequestBody is the request body for POST /api/territory/claimVerifyRequest.
type VerifyRequestBody struct {
	TerritoryID string   `json:"territoryId"`
	Lat         *float64 `json:"lat,omitempty"`
	Lng         *float64 `json:"lng,omitempty"`
}

type VerifyResponse struct {
	OK                   bool              `json:"ok"`
	ClaimVerifyRequestID string            `json:"claimVerifyRequestId"`
	Status               game.VerifyStatus `json:"status"`
}

// ClaimRequestBody is the request body for POST /api/territory/claimRequest.
// Image is an optional base64 data URI.
type ClaimRequestBody struct {
	TerritoryID string `json:"territoryId"`
	Answer      string `json:"answer"`
	Image       string `json:"image,omitempty"`
}

type ClaimResponse struct {
	OK             bool   `json:"ok"`
	ClaimRequestID string `json:"claimRequestId"`
}

func handleRequestVerification(logger *slog.Logger, engine *game.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VerifyRequestBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TerritoryID == "" {
			writeError(w, http.StatusBadRequest, "territoryId is required")
			return
		}
		var loc *game.Location
		if req.Lat != nil && req.Lng != nil {
			loc = &game.Location{Lat: *req.Lat, Lng: *req.Lng}
		}

		teamID := sessionFrom(r).Viewer.TeamID
		v, err := engine.RequestVerification(r.Context(), teamID, req.TerritoryID, loc)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("verification requested", "team", teamID, "territory", req.TerritoryID, "request", v.ID)
		writeJSON(w, http.StatusOK, VerifyResponse{OK: true, ClaimVerifyRequestID: v.ID, Status: v.Status})
	}
}

func handleSubmitClaim(logger *slog.Logger, engine *game.Engine, uploads *upload.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ClaimRequestBody
		if err := readJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TerritoryID == "" {
			writeError(w, http.StatusBadRequest, "territoryId is required")
			return
		}

		answer := req.Answer
		if req.Image != "" && uploads != nil {
			url, err := uploads.SaveDataURI(req.Image, "proof")
			if err != nil {
				// The text answer still goes through.
				logger.Warn("storing proof image", "error", err)
			} else {
				answer += " [photo](" + url + ")"
			}
		}

		teamID := sessionFrom(r).Viewer.TeamID
		c, err := engine.SubmitClaim(r.Context(), teamID, req.TerritoryID, answer)
		if err != nil {
			writeGameError(w, logger, err)
			return
		}
		logger.Info("claim submitted", "team", teamID, "territory", req.TerritoryID, "request", c.ID)
		writeJSON(w, http.StatusOK, ClaimResponse{OK: true, ClaimRequestID: c.ID})
	}
}
