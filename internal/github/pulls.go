package github

import (
	"context"
	"time"

	"github.com/google/go-github/v62/github"

	"github-repo-sync/internal/model"
)

// ListPullRequests fetches every pull request of owner/name regardless of state.
func (c *Client) ListPullRequests(ctx context.Context, token, owner, name string) ([]model.PullRequest, error) {
	gh := c.forToken(token)
	opts := &github.PullRequestListOptions{
		State:       "all",
		ListOptions: github.ListOptions{PerPage: perPage},
	}

	var all []model.PullRequest
	for {
		c.logger.Debug("Fetching pull requests page", "owner", owner, "repo", name, "page", opts.Page)

		var prs []*github.PullRequest
		var resp *github.Response
		err := c.do(ctx, "list pull requests", func(ctx context.Context) (*github.Response, error) {
			var err error
			prs, resp, err = gh.PullRequests.List(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, pr := range prs {
			all = append(all, toPullRequest(pr))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// GetPullRequestBundle fetches the details, changed files and review comments of one pull request.
// The three calls run in sequence and any failure fails the whole bundle.
func (c *Client) GetPullRequestBundle(ctx context.Context, token, owner, name string, number int) (*model.PullRequestBundle, error) {
	gh := c.forToken(token)

	var pr *github.PullRequest
	err := c.do(ctx, "get pull request", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = gh.PullRequests.Get(ctx, owner, name, number)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	files, err := c.listPullRequestFiles(ctx, gh, owner, name, number)
	if err != nil {
		return nil, err
	}

	comments, err := c.listReviewComments(ctx, gh, owner, name, number)
	if err != nil {
		return nil, err
	}

	return &model.PullRequestBundle{
		Details:  toPullRequest(pr),
		Files:    files,
		Comments: comments,
	}, nil
}

func (c *Client) listPullRequestFiles(ctx context.Context, gh *github.Client, owner, name string, number int) ([]model.PullRequestFile, error) {
	opts := &github.ListOptions{PerPage: perPage}
	all := []model.PullRequestFile{}
	for {
		var files []*github.CommitFile
		var resp *github.Response
		err := c.do(ctx, "list pull request files", func(ctx context.Context) (*github.Response, error) {
			var err error
			files, resp, err = gh.PullRequests.ListFiles(ctx, owner, name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, f := range files {
			all = append(all, model.PullRequestFile{
				Filename:  f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Changes:   f.GetChanges(),
				Patch:     f.GetPatch(),
				SHA:       f.GetSHA(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

func (c *Client) listReviewComments(ctx context.Context, gh *github.Client, owner, name string, number int) ([]model.ReviewComment, error) {
	opts := &github.PullRequestListCommentsOptions{ListOptions: github.ListOptions{PerPage: perPage}}
	all := []model.ReviewComment{}
	for {
		var comments []*github.PullRequestComment
		var resp *github.Response
		err := c.do(ctx, "list pull request comments", func(ctx context.Context) (*github.Response, error) {
			var err error
			comments, resp, err = gh.PullRequests.ListComments(ctx, owner, name, number, opts)
			return resp, err
		})
		if err != nil {
			return nil, err
		}

		for _, cm := range comments {
			all = append(all, model.ReviewComment{
				ID:        cm.GetID(),
				Author:    cm.GetUser().GetLogin(),
				Body:      cm.GetBody(),
				Path:      cm.GetPath(),
				Line:      cm.GetLine(),
				HTMLURL:   cm.GetHTMLURL(),
				CreatedAt: cm.GetCreatedAt().Time,
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// toPullRequest translates a github.PullRequest object to our internal model.PullRequest.
func toPullRequest(pr *github.PullRequest) model.PullRequest {
	return model.PullRequest{
		Number:    pr.GetNumber(),
		Title:     pr.GetTitle(),
		Body:      pr.GetBody(),
		State:     pr.GetState(),
		Author:    pr.GetUser().GetLogin(),
		HTMLURL:   pr.GetHTMLURL(),
		HeadRef:   pr.GetHead().GetRef(),
		HeadSHA:   pr.GetHead().GetSHA(),
		BaseRef:   pr.GetBase().GetRef(),
		Merged:    pr.GetMerged(),
		Draft:     pr.GetDraft(),
		CreatedAt: pr.GetCreatedAt().Time,
		UpdatedAt: pr.GetUpdatedAt().Time,
		ClosedAt:  optionalTime(pr.ClosedAt),
		MergedAt:  optionalTime(pr.MergedAt),
	}
}

func optionalTime(ts *github.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}
