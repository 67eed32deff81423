package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const userColumns = `id, github_connected, github_access_token, github_refresh_token, github_token_expires_at,
    github_scope, github_last_sync_at, github_id, github_login, github_name, github_email,
    github_avatar_url, github_public_repos, github_followers, github_following, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (User, error) {
	var i User
	err := row.Scan(
		&i.ID,
		&i.GithubConnected,
		&i.GithubAccessToken,
		&i.GithubRefreshToken,
		&i.GithubTokenExpiresAt,
		&i.GithubScope,
		&i.GithubLastSyncAt,
		&i.GithubID,
		&i.GithubLogin,
		&i.GithubName,
		&i.GithubEmail,
		&i.GithubAvatarUrl,
		&i.GithubPublicRepos,
		&i.GithubFollowers,
		&i.GithubFollowing,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const getUser = `-- name: GetUser :one
SELECT ` + userColumns + `
FROM users
WHERE id = $1
`

func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	row := q.db.QueryRow(ctx, getUser, id)
	return scanUser(row)
}

const upsertUserCredential = `-- name: UpsertUserCredential :exec
INSERT INTO users (
    id, github_connected, github_access_token, github_refresh_token,
    github_token_expires_at, github_scope, github_last_sync_at
) VALUES (
    $1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (id) DO UPDATE SET
    github_connected        = EXCLUDED.github_connected,
    github_access_token     = EXCLUDED.github_access_token,
    github_refresh_token    = EXCLUDED.github_refresh_token,
    github_token_expires_at = EXCLUDED.github_token_expires_at,
    github_scope            = EXCLUDED.github_scope,
    github_last_sync_at     = EXCLUDED.github_last_sync_at,
    updated_at              = NOW()
`

type UpsertUserCredentialParams struct {
	ID                   string
	GithubConnected      bool
	GithubAccessToken    string
	GithubRefreshToken   string
	GithubTokenExpiresAt pgtype.Timestamptz
	GithubScope          string
	GithubLastSyncAt     pgtype.Timestamptz
}

func (q *Queries) UpsertUserCredential(ctx context.Context, arg UpsertUserCredentialParams) error {
	_, err := q.db.Exec(ctx, upsertUserCredential,
		arg.ID,
		arg.GithubConnected,
		arg.GithubAccessToken,
		arg.GithubRefreshToken,
		arg.GithubTokenExpiresAt,
		arg.GithubScope,
		arg.GithubLastSyncAt,
	)
	return err
}

const upsertUserProfile = `-- name: UpsertUserProfile :exec
INSERT INTO users (
    id, github_id, github_login, github_name, github_email, github_avatar_url,
    github_public_repos, github_followers, github_following
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (id) DO UPDATE SET
    github_id           = EXCLUDED.github_id,
    github_login        = EXCLUDED.github_login,
    github_name         = EXCLUDED.github_name,
    github_email        = EXCLUDED.github_email,
    github_avatar_url   = EXCLUDED.github_avatar_url,
    github_public_repos = EXCLUDED.github_public_repos,
    github_followers    = EXCLUDED.github_followers,
    github_following    = EXCLUDED.github_following,
    updated_at          = NOW()
`

type UpsertUserProfileParams struct {
	ID                string
	GithubID          pgtype.Int8
	GithubLogin       string
	GithubName        string
	GithubEmail       string
	GithubAvatarUrl   string
	GithubPublicRepos int32
	GithubFollowers   int32
	GithubFollowing   int32
}

func (q *Queries) UpsertUserProfile(ctx context.Context, arg UpsertUserProfileParams) error {
	_, err := q.db.Exec(ctx, upsertUserProfile,
		arg.ID,
		arg.GithubID,
		arg.GithubLogin,
		arg.GithubName,
		arg.GithubEmail,
		arg.GithubAvatarUrl,
		arg.GithubPublicRepos,
		arg.GithubFollowers,
		arg.GithubFollowing,
	)
	return err
}

const clearUserProfile = `-- name: ClearUserProfile :exec
UPDATE users SET
    github_id           = NULL,
    github_login        = '',
    github_name         = '',
    github_email        = '',
    github_avatar_url   = '',
    github_public_repos = 0,
    github_followers    = 0,
    github_following    = 0,
    updated_at          = NOW()
WHERE id = $1
`

func (q *Queries) ClearUserProfile(ctx context.Context, id string) error {
	_, err := q.db.Exec(ctx, clearUserProfile, id)
	return err
}

const listExpiringCredentials = `-- name: ListExpiringCredentials :many
SELECT ` + userColumns + `
FROM users
WHERE github_connected
  AND github_refresh_token <> ''
  AND (github_token_expires_at IS NULL OR github_token_expires_at < $1)
ORDER BY github_token_expires_at ASC NULLS FIRST
`

func (q *Queries) ListExpiringCredentials(ctx context.Context, before pgtype.Timestamptz) ([]User, error) {
	rows, err := q.db.Query(ctx, listExpiringCredentials, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []User
	for rows.Next() {
		i, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
