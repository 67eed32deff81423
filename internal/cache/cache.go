// Package cache serves single-file reads from the cached_files table, falling
// back to GitHub on a miss and remembering the result.
package cache

import (
	"context"
	"log/slog"
	"strings"
	"time"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/telemetry"
)

// Store persists cached files.
type Store interface {
	FindCachedFile(ctx context.Context, projectID, path string) (*model.CachedFile, error)
	SaveCachedFile(ctx context.Context, f *model.CachedFile) error
	TouchCachedFile(ctx context.Context, projectID, path string, at time.Time) error
	DeleteProjectFiles(ctx context.Context, projectID string) (int64, error)
}

// TokenProvider hands out a valid access token for a user.
type TokenProvider interface {
	EnsureValidToken(ctx context.Context, userID string) (string, error)
}

// ContentFetcher reads one file from the remote repository.
type ContentFetcher interface {
	GetRawFileContent(ctx context.Context, token, owner, name, path, ref string) (*model.FileContent, error)
}

// Cache is the per-project file content cache. Entries never expire by time;
// they are dropped in bulk by Purge or overwritten one at a time by Refresh.
type Cache struct {
	store  Store
	tokens TokenProvider
	remote ContentFetcher
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Cache.
func New(store Store, tokens TokenProvider, remote ContentFetcher, logger *slog.Logger) *Cache {
	return &Cache{
		store:  store,
		tokens: tokens,
		remote: remote,
		logger: logger,
		now:    time.Now,
	}
}

// Get returns the content of path in project, from the cache when present.
// A hit updates the entry's last-accessed time.
func (c *Cache) Get(ctx context.Context, project *model.Project, path string) (*model.FileContent, error) {
	clean, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	cached, err := c.store.FindCachedFile(ctx, project.ID, clean)
	switch {
	case err == nil:
		telemetry.ContentCacheRequestsTotal.WithLabelValues("hit").Inc()
		if err := c.store.TouchCachedFile(ctx, project.ID, clean, c.now()); err != nil {
			c.logger.Warn("Failed to update last access of cached file", "project_id", project.ID, "path", clean, "error", err)
		}
		return &model.FileContent{
			Path:        cached.Path,
			Content:     cached.Content,
			Size:        cached.Size,
			ContentHash: cached.ContentHash,
			Cached:      true,
		}, nil
	case !custom_errors.IsNotFound(err):
		return nil, err
	}

	telemetry.ContentCacheRequestsTotal.WithLabelValues("miss").Inc()
	return c.fetch(ctx, project, clean)
}

// Refresh re-fetches path from the remote and overwrites its cache entry.
func (c *Cache) Refresh(ctx context.Context, project *model.Project, path string) (*model.FileContent, error) {
	clean, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, project, clean)
}

// Purge drops every cached file of projectID.
func (c *Cache) Purge(ctx context.Context, projectID string) (int64, error) {
	n, err := c.store.DeleteProjectFiles(ctx, projectID)
	if err != nil {
		return 0, err
	}
	c.logger.Info("Purged cached files", "project_id", projectID, "count", n)
	return n, nil
}

func (c *Cache) fetch(ctx context.Context, project *model.Project, path string) (*model.FileContent, error) {
	token, err := c.tokens.EnsureValidToken(ctx, project.UserID)
	if err != nil {
		return nil, err
	}

	file, err := c.remote.GetRawFileContent(ctx, token, project.Owner, project.Name, path, project.DefaultBranch)
	if err != nil {
		return nil, err
	}

	now := c.now()
	entry := &model.CachedFile{
		ProjectID:    project.ID,
		Path:         path,
		Content:      file.Content,
		Size:         file.Size,
		ContentHash:  file.ContentHash,
		LastUpdated:  now,
		LastAccessed: now,
	}
	if err := c.store.SaveCachedFile(ctx, entry); err != nil {
		c.logger.Error("Failed to cache file content", "project_id", project.ID, "path", path, "error", err)
	}

	return &model.FileContent{
		Path:        path,
		Content:     file.Content,
		Size:        file.Size,
		ContentHash: file.ContentHash,
		Cached:      false,
	}, nil
}

// NormalizePath turns a client-supplied path into a repository path without
// leading or trailing slashes. Empty paths and traversal segments are not found.
func NormalizePath(path string) (string, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return "", &custom_errors.NotFoundError{Resource: "file", ID: path}
	}
	segments := strings.Split(trimmed, "/")
	out := segments[:0]
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			return "", &custom_errors.NotFoundError{Resource: "file", ID: path}
		}
		out = append(out, seg)
	}
	if len(out) == 0 {
		return "", &custom_errors.NotFoundError{Resource: "file", ID: path}
	}
	return strings.Join(out, "/"), nil
}
