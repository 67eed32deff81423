package oauth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github-repo-sync/internal/model"
)

const (
	// Number of credentials refreshed in parallel per sweep.
	sweepConcurrency = 5
)

// ExpiringCredentialLister finds connected, refreshable credentials expiring before a point in time.
type ExpiringCredentialLister interface {
	ListExpiringCredentials(ctx context.Context, before time.Time) ([]model.OAuthCredential, error)
}

// Sweeper periodically refreshes credentials that are about to expire, so
// background ingestion runs rarely have to refresh on their own.
type Sweeper struct {
	manager  *Manager
	lister   ExpiringCredentialLister
	logger   *slog.Logger
	interval time.Duration
}

// NewSweeper creates a Sweeper running every interval.
func NewSweeper(manager *Manager, lister ExpiringCredentialLister, logger *slog.Logger, interval time.Duration) *Sweeper {
	return &Sweeper{
		manager:  manager,
		lister:   lister,
		logger:   logger,
		interval: interval,
	}
}

// Start sweeps immediately and then on every tick until ctx is done.
func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting token sweeper", "interval", s.interval.String(), "concurrency", sweepConcurrency)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.runSweep(ctx)

	for {
		select {
		case <-ticker.C:
			s.runSweep(ctx)
		case <-ctx.Done():
			s.logger.Info("Token sweeper shutting down", "reason", ctx.Err())
			return
		}
	}
}

// runSweep refreshes every credential expiring before the next sweep plus the refresh skew.
// A failure for one user never stops the others.
func (s *Sweeper) runSweep(ctx context.Context) int {
	horizon := s.manager.now().Add(s.interval + s.manager.refreshSkew)
	creds, err := s.lister.ListExpiringCredentials(ctx, horizon)
	if err != nil {
		s.logger.Error("Failed to list expiring credentials", "error", err)
		return 0
	}
	if len(creds) == 0 {
		s.logger.Debug("No credentials due for refresh")
		return 0
	}

	s.logger.Info("Refreshing expiring credentials", "count", len(creds))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sweepConcurrency)

	refreshed := make([]bool, len(creds))
	for i := range creds {
		i := i
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			cred := creds[i]
			if _, err := s.manager.refreshDue(gctx, &cred, horizon); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.logger.Error("Failed to refresh credential", "user_id", cred.UserID, "error", err)
				}
				s.manager.DisconnectOnAuthFailure(gctx, cred.UserID, err)
				return nil
			}
			refreshed[i] = true
			return nil
		})
	}
	_ = g.Wait()

	n := 0
	for _, ok := range refreshed {
		if ok {
			n++
		}
	}
	s.logger.Info("Token sweep finished", "refreshed", n, "failed", len(creds)-n)
	return n
}

// refreshDue refreshes the credential of cred's user if it expires before horizon.
func (m *Manager) refreshDue(ctx context.Context, cred *model.OAuthCredential, horizon time.Time) (string, error) {
	if cred.ExpiresAt != nil && cred.ExpiresAt.After(horizon) {
		return cred.AccessToken, nil
	}
	return m.sharedRefresh(ctx, cred.UserID, horizon)
}
