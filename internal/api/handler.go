// internal/api/handler.go
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github-repo-sync/internal/account"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/project"
)

// Projects is the project service behind the /v1/projects routes.
type Projects interface {
	ImportRepository(ctx context.Context, userID, repositoryID string) (*model.Project, error)
	Resync(ctx context.Context, userID, projectID string) (*model.Project, error)
	GetFile(ctx context.Context, userID, projectID, path string, refresh bool) (*model.FileContent, error)
	GetStatus(ctx context.Context, userID, projectID string) (*project.Status, error)
	GetProject(ctx context.Context, userID, projectID string) (*project.View, error)
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	DeleteProject(ctx context.Context, userID, projectID string) error
}

// Accounts is the account service behind the /v1/github routes.
type Accounts interface {
	AuthURL(userID string) (string, error)
	HandleCallback(ctx context.Context, code, state string) (*account.Summary, error)
	Status(ctx context.Context, userID string) (*account.ConnectionStatus, error)
	ListRepositories(ctx context.Context, userID string) ([]model.RepositorySummary, error)
	GetRepository(ctx context.Context, userID, repositoryID string) (*model.Repository, error)
	Disconnect(ctx context.Context, userID string) error
}

// Handler is the container for API dependencies.
type Handler struct {
	projects Projects
	accounts Accounts
	logger   *slog.Logger
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(projects Projects, accounts Accounts, logger *slog.Logger) http.Handler {
	h := &Handler{
		projects: projects,
		accounts: accounts,
		logger:   logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger) // Chi's default logger
	r.Use(middleware.Recoverer)
	r.Use(recordMetrics)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// The callback is reached by GitHub's redirect; the signed state names the user.
		r.Get("/github/auth/callback", h.githubCallback)

		r.Group(func(r chi.Router) {
			r.Use(requireUser)

			r.Get("/github/auth/url", h.githubAuthURL)
			r.Get("/github/status", h.githubStatus)
			r.Get("/github/repositories", h.listRepositories)
			r.Get("/github/repositories/{repositoryID}", h.getRepository)
			r.Post("/github/disconnect", h.githubDisconnect)

			r.Get("/projects", h.listProjects)
			r.Post("/projects/import/{repositoryID}", h.importRepository)
			r.Get("/projects/{projectID}", h.getProject)
			r.Delete("/projects/{projectID}", h.deleteProject)
			r.Get("/projects/{projectID}/status", h.getStatus)
			r.Post("/projects/{projectID}/resync", h.resync)
			r.Get("/projects/{projectID}/file-content", h.getFileContent)
		})
	})

	return r
}

// healthCheck is a simple health endpoint.
func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// githubAuthURL returns the URL that starts the OAuth flow.
// GET /v1/github/auth/url
func (h *Handler) githubAuthURL(w http.ResponseWriter, r *http.Request) {
	url, err := h.accounts.AuthURL(userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"url": url})
}

// githubCallback completes the OAuth flow.
// GET /v1/github/auth/callback?code=...&state=...
func (h *Handler) githubCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	if code == "" || state == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'code' or 'state' parameter.")
		return
	}

	summary, err := h.accounts.HandleCallback(r.Context(), code, state)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, summary)
}

// githubStatus reports whether the user's GitHub account is connected.
// GET /v1/github/status
func (h *Handler) githubStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.accounts.Status(r.Context(), userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// listRepositories lists the repositories the user can import.
// GET /v1/github/repositories
func (h *Handler) listRepositories(w http.ResponseWriter, r *http.Request) {
	repos, err := h.accounts.ListRepositories(r.Context(), userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"repositories": repos})
}

// getRepository returns one repository by numeric id.
// GET /v1/github/repositories/{repositoryID}
func (h *Handler) getRepository(w http.ResponseWriter, r *http.Request) {
	repo, err := h.accounts.GetRepository(r.Context(), userID(r), chi.URLParam(r, "repositoryID"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, repo)
}

// githubDisconnect revokes and clears the user's GitHub credential.
// POST /v1/github/disconnect
func (h *Handler) githubDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Disconnect(r.Context(), userID(r)); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]bool{"is_connected": false})
}

// listProjects lists the user's projects.
// GET /v1/projects
func (h *Handler) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.projects.ListProjects(r.Context(), userID(r))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	if projects == nil {
		projects = []model.Project{}
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

// importRepository creates a project and starts its ingestion.
// POST /v1/projects/import/{repositoryID}
func (h *Handler) importRepository(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.ImportRepository(r.Context(), userID(r), chi.URLParam(r, "repositoryID"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, p)
}

// getProject returns a project with cached file contents joined onto its tree.
// GET /v1/projects/{projectID}
func (h *Handler) getProject(w http.ResponseWriter, r *http.Request) {
	view, err := h.projects.GetProject(r.Context(), userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, view)
}

// deleteProject removes a project and its cached files.
// DELETE /v1/projects/{projectID}
func (h *Handler) deleteProject(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.DeleteProject(r.Context(), userID(r), chi.URLParam(r, "projectID")); err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// getStatus reports a project's ingestion state.
// GET /v1/projects/{projectID}/status
func (h *Handler) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.projects.GetStatus(r.Context(), userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, status)
}

// resync restarts ingestion of a project.
// POST /v1/projects/{projectID}/resync
func (h *Handler) resync(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Resync(r.Context(), userID(r), chi.URLParam(r, "projectID"))
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusAccepted, p)
}

// getFileContent returns one file of a project.
// GET /v1/projects/{projectID}/file-content?path=src/main.go&refresh=true
func (h *Handler) getFileContent(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondWithError(w, http.StatusBadRequest, "Missing 'path' parameter.")
		return
	}
	refresh := false
	if v := r.URL.Query().Get("refresh"); v != "" {
		var err error
		refresh, err = strconv.ParseBool(v)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid 'refresh' parameter. Must be a boolean.")
			return
		}
	}

	file, err := h.projects.GetFile(r.Context(), userID(r), chi.URLParam(r, "projectID"), path, refresh)
	if err != nil {
		h.respondWithErr(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, file)
}
