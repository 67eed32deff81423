// Package account manages a user's GitHub connection: the OAuth flow, the
// connection status and browsing the repositories the user can import.
package account

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

// StateSigner issues and verifies the OAuth state parameter.
type StateSigner interface {
	Sign(userID string) (string, error)
	Verify(state string) (string, error)
}

// Connector owns the OAuth credential lifecycle.
type Connector interface {
	AuthCodeURL(state string) string
	Connect(ctx context.Context, userID, code string) (*model.OAuthCredential, error)
	EnsureValidToken(ctx context.Context, userID string) (string, error)
	Disconnect(ctx context.Context, userID string) error
	DisconnectOnAuthFailure(ctx context.Context, userID string, err error) bool
}

// Remote is the subset of the GitHub client used for account operations.
type Remote interface {
	GetAuthenticatedUser(ctx context.Context, token string) (*model.GitHubProfile, error)
	ListRepositories(ctx context.Context, token string) ([]model.RepositorySummary, error)
	GetRepository(ctx context.Context, token string, repositoryID int64) (*model.Repository, error)
}

// Store reads credentials and keeps the user's GitHub profile.
type Store interface {
	LoadUserCredential(ctx context.Context, userID string) (*model.OAuthCredential, error)
	SaveProfile(ctx context.Context, userID string, p *model.GitHubProfile) error
	LoadProfile(ctx context.Context, userID string) (*model.GitHubProfile, error)
}

// Summary describes a freshly connected account.
type Summary struct {
	UserID      string `json:"user_id"`
	Connected   bool   `json:"github_connected"`
	Login       string `json:"github_username"`
	Name        string `json:"github_name,omitempty"`
	Email       string `json:"github_email,omitempty"`
	AvatarURL   string `json:"github_avatar_url,omitempty"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
	Scope       string `json:"scope"`
	ExpiresIn   int64  `json:"expires_in"`
}

// ConnectionStatus reports whether the user's GitHub account is usable.
type ConnectionStatus struct {
	Connected         bool                 `json:"is_connected"`
	ReconnectRequired bool                 `json:"reconnect_required"`
	Profile           *model.GitHubProfile `json:"profile,omitempty"`
	Scope             string               `json:"scope,omitempty"`
	ExpiresAt         *time.Time           `json:"expires_at,omitempty"`
}

// Service implements the account operations.
type Service struct {
	states    StateSigner
	connector Connector
	remote    Remote
	store     Store
	logger    *slog.Logger
	now       func() time.Time
}

// NewService creates a Service.
func NewService(states StateSigner, connector Connector, remote Remote, store Store, logger *slog.Logger) *Service {
	return &Service{
		states:    states,
		connector: connector,
		remote:    remote,
		store:     store,
		logger:    logger,
		now:       time.Now,
	}
}

// AuthURL returns the GitHub authorization URL for userID.
func (s *Service) AuthURL(userID string) (string, error) {
	state, err := s.states.Sign(userID)
	if err != nil {
		return "", err
	}
	return s.connector.AuthCodeURL(state), nil
}

// HandleCallback completes the OAuth flow: it verifies state, exchanges code,
// stores the credential and the user's profile and returns a summary.
func (s *Service) HandleCallback(ctx context.Context, code, state string) (*Summary, error) {
	userID, err := s.states.Verify(state)
	if err != nil {
		return nil, err
	}
	logger := s.logger.With("user_id", userID)

	cred, err := s.connector.Connect(ctx, userID, code)
	if err != nil {
		logger.Warn("OAuth code exchange failed", "error", err)
		return nil, err
	}

	profile, err := s.remote.GetAuthenticatedUser(ctx, cred.AccessToken)
	if err != nil {
		s.connector.DisconnectOnAuthFailure(ctx, userID, err)
		return nil, err
	}
	if err := s.store.SaveProfile(ctx, userID, profile); err != nil {
		return nil, err
	}
	logger.Info("GitHub callback completed", "login", profile.Login)

	var expiresIn int64
	if cred.ExpiresAt != nil {
		expiresIn = int64(cred.ExpiresAt.Sub(s.now()).Seconds())
	}
	return &Summary{
		UserID:      userID,
		Connected:   true,
		Login:       profile.Login,
		Name:        profile.Name,
		Email:       profile.Email,
		AvatarURL:   profile.AvatarURL,
		PublicRepos: profile.PublicRepos,
		Followers:   profile.Followers,
		Following:   profile.Following,
		Scope:       cred.Scope,
		ExpiresIn:   expiresIn,
	}, nil
}

// Status reports the connection state with the live profile. A token the
// remote rejects disconnects the account and is reported as not connected.
func (s *Service) Status(ctx context.Context, userID string) (*ConnectionStatus, error) {
	cred, err := s.store.LoadUserCredential(ctx, userID)
	switch {
	case custom_errors.IsNotFound(err):
		return &ConnectionStatus{}, nil
	case custom_errors.IsCredential(err):
		return &ConnectionStatus{ReconnectRequired: true}, nil
	case err != nil:
		return nil, err
	}
	if !cred.Connected {
		return &ConnectionStatus{}, nil
	}

	token, err := s.connector.EnsureValidToken(ctx, userID)
	if custom_errors.IsCredential(err) {
		return &ConnectionStatus{ReconnectRequired: true}, nil
	}
	if err != nil {
		return nil, err
	}

	profile, err := s.remote.GetAuthenticatedUser(ctx, token)
	switch {
	case err == nil:
		if err := s.store.SaveProfile(ctx, userID, profile); err != nil {
			s.logger.Warn("Failed to refresh stored GitHub profile", "user_id", userID, "error", err)
		}
	case s.connector.DisconnectOnAuthFailure(ctx, userID, err):
		return &ConnectionStatus{ReconnectRequired: true}, nil
	default:
		// GitHub is unreachable; the stored profile is the best we have.
		s.logger.Warn("Serving stored GitHub profile", "user_id", userID, "error", err)
		stored, lerr := s.store.LoadProfile(ctx, userID)
		if lerr != nil {
			return nil, err
		}
		profile = stored
	}

	// Re-read so a refresh done by EnsureValidToken is reflected.
	if fresh, err := s.store.LoadUserCredential(ctx, userID); err == nil {
		cred = fresh
	}
	return &ConnectionStatus{
		Connected: true,
		Profile:   profile,
		Scope:     cred.Scope,
		ExpiresAt: cred.ExpiresAt,
	}, nil
}

// ListRepositories returns the repositories the user can import.
func (s *Service) ListRepositories(ctx context.Context, userID string) ([]model.RepositorySummary, error) {
	token, err := s.connector.EnsureValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	repos, err := s.remote.ListRepositories(ctx, token)
	if err != nil {
		s.connector.DisconnectOnAuthFailure(ctx, userID, err)
		return nil, err
	}
	return repos, nil
}

// GetRepository returns one repository by its numeric id.
func (s *Service) GetRepository(ctx context.Context, userID, repositoryID string) (*model.Repository, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(repositoryID), 10, 64)
	if err != nil || id <= 0 {
		return nil, &custom_errors.ErrInvalidRepositoryID{Value: repositoryID}
	}
	token, err := s.connector.EnsureValidToken(ctx, userID)
	if err != nil {
		return nil, err
	}
	repo, err := s.remote.GetRepository(ctx, token, id)
	if err != nil {
		s.connector.DisconnectOnAuthFailure(ctx, userID, err)
		return nil, err
	}
	return repo, nil
}

// Disconnect revokes and clears the user's GitHub credential.
func (s *Service) Disconnect(ctx context.Context, userID string) error {
	return s.connector.Disconnect(ctx, userID)
}
