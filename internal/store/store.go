// Package store maps the database rows onto the domain model. Tokens are sealed
// before they are written and opened after they are read.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github-repo-sync/internal/crypto"
	"github-repo-sync/internal/database"
	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

// Store is the persistence boundary used by the sync engine.
type Store struct {
	q      database.Querier
	cipher *crypto.TokenCipher
}

// New creates a Store over q. cipher seals OAuth tokens at rest.
func New(q database.Querier, cipher *crypto.TokenCipher) *Store {
	return &Store{q: q, cipher: cipher}
}

// LoadProject returns the project with id, or a NotFoundError.
func (s *Store) LoadProject(ctx context.Context, id string) (*model.Project, error) {
	row, err := s.q.GetProject(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &custom_errors.NotFoundError{Resource: "project", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", id, err)
	}
	return toProject(row)
}

// SaveProject inserts or updates p. Identity columns are never rewritten.
func (s *Store) SaveProject(ctx context.Context, p *model.Project) error {
	var fileTree []byte
	if p.FileTree != nil {
		var err error
		fileTree, err = json.Marshal(p.FileTree)
		if err != nil {
			return fmt.Errorf("encode file tree of project %s: %w", p.ID, err)
		}
	}

	err := s.q.UpsertProject(ctx, database.UpsertProjectParams{
		ID:            p.ID,
		UserID:        p.UserID,
		RepositoryID:  p.RepositoryID,
		Owner:         p.Owner,
		Name:          p.Name,
		DefaultBranch: p.DefaultBranch,
		Status:        string(p.Status),
		Accessible:    p.Accessible,
		FileTree:      fileTree,
		ErrorMessage:  p.ErrorMessage,
		CreatedAt:     timestamptz(p.CreatedAt),
		UpdatedAt:     timestamptz(p.UpdatedAt),
	})
	if err != nil {
		return fmt.Errorf("save project %s: %w", p.ID, err)
	}
	return nil
}

// ListProjects returns the projects of userID, newest first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	rows, err := s.q.ListProjectsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects of user %s: %w", userID, err)
	}
	projects := make([]model.Project, 0, len(rows))
	for _, row := range rows {
		p, err := toProject(row)
		if err != nil {
			return nil, err
		}
		projects = append(projects, *p)
	}
	return projects, nil
}

// DeleteProject removes the project and, by cascade, its cached files.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	n, err := s.q.DeleteProject(ctx, id)
	if err != nil {
		return fmt.Errorf("delete project %s: %w", id, err)
	}
	if n == 0 {
		return &custom_errors.NotFoundError{Resource: "project", ID: id}
	}
	return nil
}

// DeleteProjectFiles removes every cached file of projectID and returns how many were removed.
func (s *Store) DeleteProjectFiles(ctx context.Context, projectID string) (int64, error) {
	n, err := s.q.DeleteCachedFilesByProject(ctx, projectID)
	if err != nil {
		return 0, fmt.Errorf("delete cached files of project %s: %w", projectID, err)
	}
	return n, nil
}

// FindCachedFile returns the cached file at (projectID, path), or a NotFoundError.
func (s *Store) FindCachedFile(ctx context.Context, projectID, path string) (*model.CachedFile, error) {
	row, err := s.q.GetCachedFile(ctx, database.GetCachedFileParams{ProjectID: projectID, Path: path})
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &custom_errors.NotFoundError{Resource: "cached file", ID: projectID + ":" + path}
	}
	if err != nil {
		return nil, fmt.Errorf("find cached file %s in project %s: %w", path, projectID, err)
	}
	f := toCachedFile(row)
	return &f, nil
}

// SaveCachedFile inserts or overwrites the cached file at (f.ProjectID, f.Path).
func (s *Store) SaveCachedFile(ctx context.Context, f *model.CachedFile) error {
	err := s.q.UpsertCachedFile(ctx, database.UpsertCachedFileParams{
		ProjectID:    f.ProjectID,
		Path:         f.Path,
		Content:      f.Content,
		Size:         int8Of(f.Size),
		ContentHash:  f.ContentHash,
		LastUpdated:  timestamptz(f.LastUpdated),
		LastAccessed: timestamptz(f.LastAccessed),
	})
	if err != nil {
		return fmt.Errorf("save cached file %s in project %s: %w", f.Path, f.ProjectID, err)
	}
	return nil
}

// TouchCachedFile sets the last-accessed time of one cached file.
func (s *Store) TouchCachedFile(ctx context.Context, projectID, path string, at time.Time) error {
	_, err := s.q.TouchCachedFile(ctx, database.TouchCachedFileParams{
		ProjectID:    projectID,
		Path:         path,
		LastAccessed: timestamptz(at),
	})
	if err != nil {
		return fmt.Errorf("touch cached file %s in project %s: %w", path, projectID, err)
	}
	return nil
}

// ListCachedFiles returns every cached file of projectID.
func (s *Store) ListCachedFiles(ctx context.Context, projectID string) ([]model.CachedFile, error) {
	rows, err := s.q.ListCachedFilesByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list cached files of project %s: %w", projectID, err)
	}
	files := make([]model.CachedFile, 0, len(rows))
	for _, row := range rows {
		files = append(files, toCachedFile(row))
	}
	return files, nil
}

func toProject(row database.Project) (*model.Project, error) {
	p := &model.Project{
		ID:            row.ID,
		UserID:        row.UserID,
		RepositoryID:  row.RepositoryID,
		Owner:         row.Owner,
		Name:          row.Name,
		DefaultBranch: row.DefaultBranch,
		Status:        model.ProjectStatus(row.Status),
		Accessible:    row.Accessible,
		ErrorMessage:  row.ErrorMessage,
		CreatedAt:     row.CreatedAt.Time,
		UpdatedAt:     row.UpdatedAt.Time,
	}
	if len(row.FileTree) > 0 {
		var snapshot model.Snapshot
		if err := json.Unmarshal(row.FileTree, &snapshot); err != nil {
			return nil, fmt.Errorf("decode file tree of project %s: %w", row.ID, err)
		}
		p.FileTree = &snapshot
	}
	return p, nil
}

func toCachedFile(row database.CachedFile) model.CachedFile {
	return model.CachedFile{
		ProjectID:    row.ProjectID,
		Path:         row.Path,
		Content:      row.Content,
		Size:         int64Of(row.Size),
		ContentHash:  row.ContentHash,
		LastUpdated:  row.LastUpdated.Time,
		LastAccessed: row.LastAccessed.Time,
	}
}

func timestamptz(t time.Time) pgtype.Timestamptz {
	return pgtype.Timestamptz{Time: t, Valid: !t.IsZero()}
}

func optionalTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{}
	}
	return timestamptz(*t)
}

func timeOf(ts pgtype.Timestamptz) *time.Time {
	if !ts.Valid {
		return nil
	}
	t := ts.Time
	return &t
}

func int8Of(n *int64) pgtype.Int8 {
	if n == nil {
		return pgtype.Int8{}
	}
	return pgtype.Int8{Int64: *n, Valid: true}
}

func int64Of(n pgtype.Int8) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}
