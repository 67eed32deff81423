package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github-repo-sync/internal/database"
	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

// LoadUserCredential returns the OAuth credential of userID, or a NotFoundError
// if the user has no record yet.
func (s *Store) LoadUserCredential(ctx context.Context, userID string) (*model.OAuthCredential, error) {
	row, err := s.q.GetUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &custom_errors.NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("load credential of user %s: %w", userID, err)
	}
	return s.toCredential(row)
}

// SaveCredential persists c. Saving a disconnected credential also wipes the stored GitHub profile.
func (s *Store) SaveCredential(ctx context.Context, c *model.OAuthCredential) error {
	access, err := s.cipher.Seal(c.AccessToken)
	if err != nil {
		return fmt.Errorf("seal access token of user %s: %w", c.UserID, err)
	}
	refresh, err := s.cipher.Seal(c.RefreshToken)
	if err != nil {
		return fmt.Errorf("seal refresh token of user %s: %w", c.UserID, err)
	}

	err = s.q.UpsertUserCredential(ctx, database.UpsertUserCredentialParams{
		ID:                   c.UserID,
		GithubConnected:      c.Connected,
		GithubAccessToken:    access,
		GithubRefreshToken:   refresh,
		GithubTokenExpiresAt: optionalTimestamptz(c.ExpiresAt),
		GithubScope:          c.Scope,
		GithubLastSyncAt:     optionalTimestamptz(c.LastSyncAt),
	})
	if err != nil {
		return fmt.Errorf("save credential of user %s: %w", c.UserID, err)
	}

	if !c.Connected {
		if err := s.q.ClearUserProfile(ctx, c.UserID); err != nil {
			return fmt.Errorf("clear profile of user %s: %w", c.UserID, err)
		}
	}
	return nil
}

// SaveProfile stores the GitHub profile of userID.
func (s *Store) SaveProfile(ctx context.Context, userID string, p *model.GitHubProfile) error {
	err := s.q.UpsertUserProfile(ctx, database.UpsertUserProfileParams{
		ID:                userID,
		GithubID:          int8Of(&p.GitHubID),
		GithubLogin:       p.Login,
		GithubName:        p.Name,
		GithubEmail:       p.Email,
		GithubAvatarUrl:   p.AvatarURL,
		GithubPublicRepos: int32(p.PublicRepos),
		GithubFollowers:   int32(p.Followers),
		GithubFollowing:   int32(p.Following),
	})
	if err != nil {
		return fmt.Errorf("save profile of user %s: %w", userID, err)
	}
	return nil
}

// LoadProfile returns the stored GitHub profile of userID, or a NotFoundError
// when the user has none.
func (s *Store) LoadProfile(ctx context.Context, userID string) (*model.GitHubProfile, error) {
	row, err := s.q.GetUser(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && !row.GithubID.Valid) {
		return nil, &custom_errors.NotFoundError{Resource: "github profile", ID: userID}
	}
	if err != nil {
		return nil, fmt.Errorf("load profile of user %s: %w", userID, err)
	}
	return &model.GitHubProfile{
		GitHubID:    row.GithubID.Int64,
		Login:       row.GithubLogin,
		Name:        row.GithubName,
		Email:       row.GithubEmail,
		AvatarURL:   row.GithubAvatarUrl,
		PublicRepos: int(row.GithubPublicRepos),
		Followers:   int(row.GithubFollowers),
		Following:   int(row.GithubFollowing),
	}, nil
}

// ListExpiringCredentials returns connected, refreshable credentials expiring before the given time.
func (s *Store) ListExpiringCredentials(ctx context.Context, before time.Time) ([]model.OAuthCredential, error) {
	rows, err := s.q.ListExpiringCredentials(ctx, timestamptz(before))
	if err != nil {
		return nil, fmt.Errorf("list expiring credentials: %w", err)
	}
	creds := make([]model.OAuthCredential, 0, len(rows))
	for _, row := range rows {
		c, err := s.toCredential(row)
		if err != nil {
			return nil, err
		}
		creds = append(creds, *c)
	}
	return creds, nil
}

func (s *Store) toCredential(row database.User) (*model.OAuthCredential, error) {
	access, err := s.cipher.Open(row.GithubAccessToken)
	if err != nil {
		return nil, &custom_errors.CredentialError{UserID: row.ID, Reason: "stored access token is unreadable", Err: err}
	}
	refresh, err := s.cipher.Open(row.GithubRefreshToken)
	if err != nil {
		return nil, &custom_errors.CredentialError{UserID: row.ID, Reason: "stored refresh token is unreadable", Err: err}
	}
	return &model.OAuthCredential{
		UserID:       row.ID,
		Connected:    row.GithubConnected,
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    timeOf(row.GithubTokenExpiresAt),
		Scope:        row.GithubScope,
		LastSyncAt:   timeOf(row.GithubLastSyncAt),
	}, nil
}
