package database

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type CachedFile struct {
	ProjectID    string
	Path         string
	Content      string
	Size         pgtype.Int8
	ContentHash  string
	LastUpdated  pgtype.Timestamptz
	LastAccessed pgtype.Timestamptz
}

type Project struct {
	ID            string
	UserID        string
	RepositoryID  string
	Owner         string
	Name          string
	DefaultBranch string
	Status        string
	Accessible    bool
	FileTree      []byte
	ErrorMessage  string
	CreatedAt     pgtype.Timestamptz
	UpdatedAt     pgtype.Timestamptz
}

type User struct {
	ID                   string
	GithubConnected      bool
	GithubAccessToken    string
	GithubRefreshToken   string
	GithubTokenExpiresAt pgtype.Timestamptz
	GithubScope          string
	GithubLastSyncAt     pgtype.Timestamptz
	GithubID             pgtype.Int8
	GithubLogin          string
	GithubName           string
	GithubEmail          string
	GithubAvatarUrl      string
	GithubPublicRepos    int32
	GithubFollowers      int32
	GithubFollowing      int32
	CreatedAt            pgtype.Timestamptz
	UpdatedAt            pgtype.Timestamptz
}
