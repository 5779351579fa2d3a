package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/playperu/territories/internal/game"
)

// maxBodyBytes bounds request bodies. Geometry uploads and inline photos are
// the large ones.
const maxBodyBytes = 16 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// readJSON decodes the body into v. An empty body leaves v untouched.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeGameError maps a domain error to its HTTP status.
func writeGameError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var ge *game.Error
	if !errors.As(err, &ge) {
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	switch ge.Kind {
	case game.KindValidation:
		writeError(w, http.StatusBadRequest, ge.Msg)
	case game.KindUnauthorized:
		writeError(w, http.StatusUnauthorized, ge.Msg)
	case game.KindForbidden:
		writeError(w, http.StatusForbidden, ge.Msg)
	case game.KindNotFound:
		writeError(w, http.StatusNotFound, ge.Msg)
	case game.KindConflict:
		writeError(w, http.StatusConflict, ge.Msg)
	case game.KindLocked:
		writeRetry(w, http.StatusLocked, ge)
	case game.KindRateLimited:
		writeRetry(w, http.StatusTooManyRequests, ge)
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeRetry(w http.ResponseWriter, status int, ge *game.Error) {
	resp := ErrorResponse{Error: ge.Msg}
	if ge.RetryAfter > 0 {
		secs := int((ge.RetryAfter.Milliseconds() + 999) / 1000)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		resp.RetryAfterMinutes = ge.RetryMinutes()
	}
	writeJSON(w, status, resp)
}

// flexBool accepts true/false, numbers, and strings like "1", "yes" or "ok".
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v := v.(type) {
	case bool:
		*b = flexBool(v)
	case float64:
		*b = v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "ok":
			*b = true
		default:
			*b = false
		}
	default:
		*b = false
	}
	return nil
}
