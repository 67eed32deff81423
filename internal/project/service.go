// Package project is the entry point for project operations: importing a
// repository, resyncing it, reading its files and reporting its status.
package project

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/tree"
)

// Store persists projects and exposes their cached files for the read-side join.
type Store interface {
	LoadProject(ctx context.Context, id string) (*model.Project, error)
	SaveProject(ctx context.Context, p *model.Project) error
	ListProjects(ctx context.Context, userID string) ([]model.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ListCachedFiles(ctx context.Context, projectID string) ([]model.CachedFile, error)
}

// Credentials supplies access tokens and disconnects users whose token was rejected.
type Credentials interface {
	EnsureValidToken(ctx context.Context, userID string) (string, error)
	DisconnectOnAuthFailure(ctx context.Context, userID string, err error) bool
}

// RepositoryGetter looks up a remote repository by its numeric id.
type RepositoryGetter interface {
	GetRepository(ctx context.Context, token string, repositoryID int64) (*model.Repository, error)
}

// Ingester runs ingestion in the background, at most once per project at a time.
type Ingester interface {
	Submit(ctx context.Context, projectID, userID string, prepare func(ctx context.Context) error) error
	IsRunning(projectID string) bool
}

// FileCache serves file contents of a project.
type FileCache interface {
	Get(ctx context.Context, project *model.Project, path string) (*model.FileContent, error)
	Refresh(ctx context.Context, project *model.Project, path string) (*model.FileContent, error)
	Purge(ctx context.Context, projectID string) (int64, error)
}

// Status is the ingestion state of a project as reported to its owner.
type Status struct {
	ProjectID      string              `json:"project_id"`
	Status         model.ProjectStatus `json:"status"`
	Accessible     bool                `json:"is_accessible"`
	ErrorMessage   string              `json:"error,omitempty"`
	SyncInProgress bool                `json:"sync_in_progress"`
	UpdatedAt      time.Time           `json:"updated_at"`
}

// SnapshotView is a Snapshot with cached file contents joined onto its tree.
type SnapshotView struct {
	CommitSHA    string                      `json:"sha"`
	Branch       string                      `json:"branch"`
	Main         *tree.ViewNode              `json:"main"`
	PullRequests []model.PullRequestSnapshot `json:"pull_requests"`
}

// View is a project as served to its owner.
type View struct {
	*model.Project
	FileTree *SnapshotView `json:"file_tree,omitempty"`
}

// Service implements the project operations for the owning user.
type Service struct {
	store  Store
	creds  Credentials
	remote RepositoryGetter
	ingest Ingester
	cache  FileCache
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates a Service.
func NewService(store Store, creds Credentials, remote RepositoryGetter, ingest Ingester, cache FileCache, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		creds:  creds,
		remote: remote,
		ingest: ingest,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

// ImportRepository creates a PENDING project for the repository with the
// given numeric id and starts its first ingestion run.
func (s *Service) ImportRepository(ctx context.Context, userID, repositoryID string) (*model.Project, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(repositoryID), 10, 64)
	if err != nil || id <= 0 {
		return nil, &custom_errors.ErrInvalidRepositoryID{Value: repositoryID}
	}

	token, err := s.creds.EnsureValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	repo, err := s.remote.GetRepository(ctx, token, id)
	if err != nil {
		s.creds.DisconnectOnAuthFailure(ctx, userID, err)
		return nil, err
	}

	now := s.now()
	p := &model.Project{
		ID:            uuid.NewString(),
		UserID:        userID,
		RepositoryID:  strconv.FormatInt(repo.ID, 10),
		Owner:         repo.Owner,
		Name:          repo.Name,
		DefaultBranch: repo.DefaultBranch,
		Status:        model.StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = s.ingest.Submit(ctx, p.ID, userID, func(ctx context.Context) error {
		return s.store.SaveProject(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Imported repository", "project_id", p.ID, "user_id", userID, "owner", p.Owner, "repo", p.Name)
	return p, nil
}

// Resync purges the project's cached files, puts it back into PENDING and
// starts a new ingestion run. The previous snapshot stays until the run succeeds.
func (s *Service) Resync(ctx context.Context, userID, projectID string) (*model.Project, error) {
	if _, err := s.owned(ctx, userID, projectID); err != nil {
		return nil, err
	}

	var pending *model.Project
	err := s.ingest.Submit(ctx, projectID, userID, func(ctx context.Context) error {
		if _, err := s.cache.Purge(ctx, projectID); err != nil {
			return err
		}
		// Reload under the claim so a run that finished meanwhile is not overwritten.
		p, err := s.owned(ctx, userID, projectID)
		if err != nil {
			return err
		}
		p.MarkPending(s.now())
		if err := s.store.SaveProject(ctx, p); err != nil {
			return err
		}
		pending = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Resync started", "project_id", projectID, "user_id", userID)
	return pending, nil
}

// GetFile returns the content of one file of the project, served from the
// cache when possible. refresh forces a re-fetch that overwrites the entry.
func (s *Service) GetFile(ctx context.Context, userID, projectID, path string, refresh bool) (*model.FileContent, error) {
	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	var file *model.FileContent
	if refresh {
		file, err = s.cache.Refresh(ctx, p, path)
	} else {
		file, err = s.cache.Get(ctx, p, path)
	}
	if err != nil {
		s.creds.DisconnectOnAuthFailure(ctx, userID, err)
		return nil, err
	}
	return file, nil
}

// GetStatus reports the project's current ingestion state.
func (s *Service) GetStatus(ctx context.Context, userID, projectID string) (*Status, error) {
	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	return &Status{
		ProjectID:      p.ID,
		Status:         p.Status,
		Accessible:     p.Accessible,
		ErrorMessage:   p.ErrorMessage,
		SyncInProgress: s.ingest.IsRunning(p.ID),
		UpdatedAt:      p.UpdatedAt,
	}, nil
}

// GetProject returns the project with cached file contents joined onto its tree.
func (s *Service) GetProject(ctx context.Context, userID, projectID string) (*View, error) {
	p, err := s.owned(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}

	view := &View{Project: p}
	if p.FileTree == nil {
		return view, nil
	}
	files, err := s.store.ListCachedFiles(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	view.FileTree = &SnapshotView{
		CommitSHA:    p.FileTree.CommitSHA,
		Branch:       p.FileTree.Branch,
		Main:         tree.WithCachedContent(p.FileTree.Main, files),
		PullRequests: p.FileTree.PullRequests,
	}
	return view, nil
}

// ListProjects returns the user's projects.
func (s *Service) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	return s.store.ListProjects(ctx, userID)
}

// DeleteProject removes the project and, with it, its cached files.
func (s *Service) DeleteProject(ctx context.Context, userID, projectID string) error {
	if _, err := s.owned(ctx, userID, projectID); err != nil {
		return err
	}
	if err := s.store.DeleteProject(ctx, projectID); err != nil {
		return err
	}
	s.logger.Info("Deleted project", "project_id", projectID, "user_id", userID)
	return nil
}

func (s *Service) owned(ctx context.Context, userID, projectID string) (*model.Project, error) {
	p, err := s.store.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, &custom_errors.AuthorizationError{UserID: userID, Resource: "project", ID: projectID}
	}
	return p, nil
}
