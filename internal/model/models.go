// internal/model/models.go
package model

import (
	"time"
)

// OAuthCredential is the GitHub OAuth credential owned by one user.
type OAuthCredential struct {
	UserID       string
	Connected    bool
	AccessToken  string
	RefreshToken string // empty means the credential cannot be renewed silently
	ExpiresAt    *time.Time
	Scope        string
	LastSyncAt   *time.Time
}

// IsExpired reports whether the access token is expired at now.
// A credential without an expiry is treated as expired.
func (c *OAuthCredential) IsExpired(now time.Time) bool {
	return c.ExpiresWithin(now, 0)
}

// ExpiresWithin reports whether the token expires before now+d.
func (c *OAuthCredential) ExpiresWithin(now time.Time, d time.Duration) bool {
	if c.ExpiresAt == nil {
		return true
	}
	return !c.ExpiresAt.After(now.Add(d))
}

// CanRefresh reports whether a refresh token is available.
func (c *OAuthCredential) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Clear resets the credential to its disconnected state.
func (c *OAuthCredential) Clear() {
	*c = OAuthCredential{UserID: c.UserID}
}

// GitHubProfile is the subset of the GitHub user profile kept for a connected account.
type GitHubProfile struct {
	GitHubID    int64  `json:"github_id"`
	Login       string `json:"login"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	AvatarURL   string `json:"avatar_url,omitempty"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
	Following   int    `json:"following"`
}

// RepositorySummary is a simplified entry of the user's repository listing.
type RepositorySummary struct {
	ID            int64     `json:"id"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Description   string    `json:"description,omitempty"`
	HTMLURL       string    `json:"html_url"`
	CloneURL      string    `json:"clone_url"`
	DefaultBranch string    `json:"default_branch"`
	Visibility    string    `json:"visibility"`
	Private       bool      `json:"private"`
	Owner         string    `json:"owner"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Repository is the detail record of one remote repository.
type Repository struct {
	RepositorySummary
	Language        string `json:"language,omitempty"`
	StargazersCount int    `json:"stargazers_count"`
	ForksCount      int    `json:"forks_count"`
}

// TreeEntry is one item of the remote's flat recursive tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob, tree or commit
	Size *int64 `json:"size,omitempty"`
	SHA  string `json:"sha"`
	URL  string `json:"url,omitempty"`
}

// Remote tree entry types.
const (
	EntryBlob   = "blob"
	EntryTree   = "tree"
	EntryCommit = "commit"
)
