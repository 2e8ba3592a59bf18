package app

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/klabast/wb-services/duty-calendar/internal/assignment"
	"github.com/klabast/wb-services/duty-calendar/internal/calendar"
	"github.com/klabast/wb-services/duty-calendar/internal/roster"
	"github.com/klabast/wb-services/duty-calendar/internal/storage"
)

// RequireEditMode rejects the request unless edit mode is enabled.
func (s *Server) RequireEditMode(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.Server.EditMode {
			writeError(w, http.StatusForbidden, ErrEditModeDisabled)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireDate reads the {date} path value and answers 400 when it is not a
// date key.
func requireDate(w http.ResponseWriter, r *http.Request) (string, bool) {
	date := r.PathValue("date")
	if !calendar.ValidDate(date) {
		writeError(w, http.StatusBadRequest, ErrInvalidDateFormat)
		return "", false
	}
	return date, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("error encoding response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// statusFor maps core errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, roster.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, roster.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, roster.ErrDuplicate), errors.Is(err, assignment.ErrAlreadyAssigned):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeCoreError answers with the status for err. Persistence failures keep
// the detail out of the response; the store has already logged it.
func writeCoreError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if errors.Is(err, storage.ErrPersistence) {
		writeError(w, status, ErrFailedToSave)
		return
	}
	if status == http.StatusInternalServerError {
		writeError(w, status, ErrInternalServer)
		return
	}
	writeError(w, status, err.Error())
}
