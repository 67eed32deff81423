// internal/github/client.go
package github

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

const (
	// Total attempts for one remote call, including the first.
	maxRetries = 3
	// Longest primary rate-limit reset the client is willing to sleep through.
	maxRateLimitWait = time.Minute
	perPage          = 100

	defaultCallTimeout   = 30 * time.Second
	defaultRetryInterval = 500 * time.Millisecond
)

// Options configures a Client.
type Options struct {
	// BaseURL is the REST API root; empty means api.github.com.
	BaseURL      string
	ClientID     string
	ClientSecret string
	// CallTimeout bounds every single remote request.
	CallTimeout time.Duration
	// HTTPClient supplies the base transport; nil means http.DefaultClient.
	HTTPClient *http.Client
}

// Client is a wrapper around the go-github client. Each call is made with the
// bearer token of the acting user.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	clientID      string
	clientSecret  string
	callTimeout   time.Duration
	retryInterval time.Duration
	logger        *slog.Logger
}

// NewClient creates and configures a new Client instance.
func NewClient(opts Options, logger *slog.Logger) (*Client, error) {
	c := &Client{
		httpClient:    opts.HTTPClient,
		clientID:      opts.ClientID,
		clientSecret:  opts.ClientSecret,
		callTimeout:   opts.CallTimeout,
		retryInterval: defaultRetryInterval,
		logger:        logger,
	}
	if c.httpClient == nil {
		c.httpClient = http.DefaultClient
	}
	if c.callTimeout <= 0 {
		c.callTimeout = defaultCallTimeout
	}
	if opts.BaseURL != "" {
		base := opts.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, err
		}
		c.baseURL = u
	}
	return c, nil
}

// forToken returns a go-github client authenticating as token.
func (c *Client) forToken(token string) *github.Client {
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	return c.withBaseURL(github.NewClient(oauth2.NewClient(ctx, ts)))
}

func (c *Client) withBaseURL(gh *github.Client) *github.Client {
	if c.baseURL != nil {
		gh.BaseURL = c.baseURL
	}
	return gh
}

// do runs fn with a per-call timeout, retrying server errors and rate limits.
// The returned error is translated into the errors package taxonomy.
func (c *Client) do(ctx context.Context, op string, fn func(ctx context.Context) (*github.Response, error)) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxRetries-1), ctx)

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		callCtx, cancel := context.WithTimeout(ctx, c.callTimeout)
		defer cancel()

		_, err := fn(callCtx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !c.retryable(ctx, err) {
			return backoff.Permanent(err)
		}
		c.logger.Warn("Retrying GitHub request", "op", op, "attempt", attempt, "error", err)
		return err
	}, policy)
	if err != nil {
		return translateError(op, err)
	}
	return nil
}

// retryable reports whether err is transient. For rate limits it first waits for the reset.
func (c *Client) retryable(ctx context.Context, err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		wait := time.Until(rateErr.Rate.Reset.Time) + 100*time.Millisecond
		if wait > maxRateLimitWait {
			return false
		}
		return sleep(ctx, wait)
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		wait := abuseErr.GetRetryAfter()
		if wait > maxRateLimitWait {
			return false
		}
		return sleep(ctx, wait)
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) {
		return respErr.Response != nil && respErr.Response.StatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return false
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// translateError maps go-github errors onto RemoteAuthError and RemoteAPIError.
func translateError(op string, err error) error {
	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		if respErr.Response.StatusCode == http.StatusUnauthorized {
			return &custom_errors.RemoteAuthError{Op: op, Err: err}
		}
		return &custom_errors.RemoteAPIError{Op: op, StatusCode: respErr.Response.StatusCode, Body: respErr.Message}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		status := http.StatusForbidden
		if rateErr.Response != nil {
			status = rateErr.Response.StatusCode
		}
		return &custom_errors.RemoteAPIError{Op: op, StatusCode: status, Body: rateErr.Message}
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		status := http.StatusForbidden
		if abuseErr.Response != nil {
			status = abuseErr.Response.StatusCode
		}
		return &custom_errors.RemoteAPIError{Op: op, StatusCode: status, Body: abuseErr.Message}
	}

	return &custom_errors.RemoteAPIError{Op: op, Err: err}
}

// ListRepositories fetches every repository the token's user can access, most recently updated first.
// It handles API pagination transparently.
func (c *Client) ListRepositories(ctx context.Context, token string) ([]model.RepositorySummary, error) {
	gh := c.forToken(token)
	opts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var all []model.RepositorySummary
	for {
		c.logger.Debug("Fetching repositories page", "page", opts.Page)

		var repos []*github.Repository
		var resp *github.Response
		err := c.do(ctx, "list repositories", func(ctx context.Context) (*github.Response, error) {
			var err error
			repos, resp, err = gh.Repositories.ListByAuthenticatedUser(ctx, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, r := range repos {
			all = append(all, toRepositorySummary(r))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetRepository fetches a repository by its numeric id.
func (c *Client) GetRepository(ctx context.Context, token string, repositoryID int64) (*model.Repository, error) {
	gh := c.forToken(token)

	var repo *github.Repository
	err := c.do(ctx, "get repository", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = gh.Repositories.GetByID(ctx, repositoryID)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return toRepository(repo), nil
}

// GetDefaultBranch returns the default branch of owner/name.
func (c *Client) GetDefaultBranch(ctx context.Context, token, owner, name string) (string, error) {
	gh := c.forToken(token)

	var repo *github.Repository
	err := c.do(ctx, "get default branch", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return repo.GetDefaultBranch(), nil
}

// GetAuthenticatedUser fetches the profile of the token's user. The primary
// verified email is looked up separately; failing that lookup is not an error.
func (c *Client) GetAuthenticatedUser(ctx context.Context, token string) (*model.GitHubProfile, error) {
	gh := c.forToken(token)

	var user *github.User
	err := c.do(ctx, "get authenticated user", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		user, resp, err = gh.Users.Get(ctx, "")
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	profile := &model.GitHubProfile{
		GitHubID:    user.GetID(),
		Login:       user.GetLogin(),
		Name:        user.GetName(),
		Email:       user.GetEmail(),
		AvatarURL:   user.GetAvatarURL(),
		PublicRepos: user.GetPublicRepos(),
		Followers:   user.GetFollowers(),
		Following:   user.GetFollowing(),
	}

	var emails []*github.UserEmail
	err = c.do(ctx, "list user emails", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		emails, resp, err = gh.Users.ListEmails(ctx, &github.ListOptions{PerPage: perPage})
		return resp, err
	})
	if err != nil {
		c.logger.Warn("Could not list GitHub emails", "login", profile.Login, "error", err)
		return profile, nil
	}
	for _, e := range emails {
		if e.GetPrimary() && e.GetVerified() {
			profile.Email = e.GetEmail()
			break
		}
	}
	return profile, nil
}

// RevokeToken revokes an access token of this OAuth app, authenticating with the app's client credentials.
func (c *Client) RevokeToken(ctx context.Context, token string) error {
	tp := &github.BasicAuthTransport{
		Username:  c.clientID,
		Password:  c.clientSecret,
		Transport: c.httpClient.Transport,
	}
	gh := c.withBaseURL(github.NewClient(tp.Client()))

	return c.do(ctx, "revoke token", func(ctx context.Context) (*github.Response, error) {
		return gh.Authorizations.Revoke(ctx, c.clientID, token)
	})
}

// toRepositorySummary translates a github.Repository object to our internal model.RepositorySummary.
func toRepositorySummary(r *github.Repository) model.RepositorySummary {
	return model.RepositorySummary{
		ID:            r.GetID(),
		Name:          r.GetName(),
		FullName:      r.GetFullName(),
		Description:   r.GetDescription(),
		HTMLURL:       r.GetHTMLURL(),
		CloneURL:      r.GetCloneURL(),
		DefaultBranch: r.GetDefaultBranch(),
		Visibility:    r.GetVisibility(),
		Private:       r.GetPrivate(),
		Owner:         r.GetOwner().GetLogin(),
		CreatedAt:     r.GetCreatedAt().Time,
		UpdatedAt:     r.GetUpdatedAt().Time,
	}
}

// toRepository translates a github.Repository object to our internal model.Repository.
func toRepository(r *github.Repository) *model.Repository {
	return &model.Repository{
		RepositorySummary: toRepositorySummary(r),
		Language:          r.GetLanguage(),
		StargazersCount:   r.GetStargazersCount(),
		ForksCount:        r.GetForksCount(),
	}
}
