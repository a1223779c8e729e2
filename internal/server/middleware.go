package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/returnlab/portal/internal/apperr"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Error("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondAppError maps domain errors onto HTTP statuses. Upstream causes are
// logged here and never shown to the caller.
func (s *Server) respondAppError(w http.ResponseWriter, err error) {
	var authErr *apperr.AuthorizationError
	switch {
	case apperr.IsValidation(err):
		respondError(w, http.StatusBadRequest, err.Error())
	case apperr.IsNotFound(err):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &authErr):
		respondError(w, http.StatusUnauthorized, "unauthorized")
	default:
		if conflict, ok := apperr.AsConflict(err); ok {
			body := map[string]string{"error": conflict.Message}
			if conflict.ExistingStatus != "" {
				body["existing_status"] = conflict.ExistingStatus
			}
			respondJSON(w, http.StatusConflict, body)
			return
		}
		s.logger.Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

// adminAuthMiddleware gates the admin surface with the shared secret. The
// token travels as a bearer credential and is compared against a bcrypt hash,
// so a leaked config file does not leak the token itself.
func (s *Server) adminAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(s.adminTokenHash), []byte(token)); err != nil {
			respondError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r)
	})
}
