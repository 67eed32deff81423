package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	custom_errors "github-repo-sync/internal/errors"
)

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithErr maps a service error onto its HTTP status.
func (h *Handler) respondWithErr(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidID  *custom_errors.ErrInvalidRepositoryID
		inProgress *custom_errors.ErrSyncInProgress
		authz      *custom_errors.AuthorizationError
		apiErr     *custom_errors.RemoteAPIError
		transform  *custom_errors.TransformError
	)

	switch {
	case errors.As(err, &invalidID):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &inProgress):
		respondWithError(w, http.StatusConflict, err.Error())
	case custom_errors.IsCredential(err), custom_errors.IsRemoteAuth(err):
		respondWithJSON(w, http.StatusUnauthorized, map[string]any{
			"error":              "GitHub reconnect required",
			"reconnect_required": true,
		})
	case custom_errors.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &authz):
		respondWithError(w, http.StatusForbidden, "Access denied")
	case errors.As(err, &apiErr):
		h.logger.Warn("GitHub request failed", "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondWithError(w, http.StatusBadGateway, "GitHub request failed")
	case errors.As(err, &transform):
		h.logger.Error("Malformed repository tree", "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	default:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
