package github

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v62/github"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

// Media type returning a file body as-is, needed above the JSON inline size limit.
const rawMediaType = "application/vnd.github.raw+json"

// GetRef resolves refs/heads/{branch} to its commit SHA.
func (c *Client) GetRef(ctx context.Context, token, owner, name, branch string) (string, error) {
	gh := c.forToken(token)

	var ref *github.Reference
	err := c.do(ctx, "get ref", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		ref, resp, err = gh.Git.GetRef(ctx, owner, name, "heads/"+branch)
		return resp, err
	})
	if err != nil {
		return "", err
	}
	return ref.GetObject().GetSHA(), nil
}

// GetTreeRecursive fetches the flat recursive tree listing of a commit.
// A truncated listing is returned as-is and logged.
func (c *Client) GetTreeRecursive(ctx context.Context, token, owner, name, sha string) ([]model.TreeEntry, error) {
	gh := c.forToken(token)

	var tree *github.Tree
	err := c.do(ctx, "get tree", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		tree, resp, err = gh.Git.GetTree(ctx, owner, name, sha, true)
		return resp, err
	})
	if err != nil {
		return nil, err
	}

	if tree.GetTruncated() {
		c.logger.Warn("GitHub returned a truncated tree", "owner", owner, "repo", name, "sha", sha, "entries", len(tree.Entries))
	}

	entries := make([]model.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		entry := model.TreeEntry{
			Path: e.GetPath(),
			Type: e.GetType(),
			SHA:  e.GetSHA(),
			URL:  e.GetURL(),
		}
		if e.Size != nil {
			size := int64(*e.Size)
			entry.Size = &size
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// GetRawFileContent fetches the text content of the file at path on ref.
// A directory at path is reported as not found.
func (c *Client) GetRawFileContent(ctx context.Context, token, owner, name, path, ref string) (*model.FileContent, error) {
	gh := c.forToken(token)
	opts := &github.RepositoryContentGetOptions{Ref: ref}

	var file *github.RepositoryContent
	var dir []*github.RepositoryContent
	err := c.do(ctx, "get file content", func(ctx context.Context) (*github.Response, error) {
		var resp *github.Response
		var err error
		file, dir, resp, err = gh.Repositories.GetContents(ctx, owner, name, path, opts)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	if file == nil || dir != nil || file.GetType() != "file" {
		return nil, &custom_errors.NotFoundError{Resource: "file", ID: path}
	}

	out := &model.FileContent{
		Path:        file.GetPath(),
		ContentHash: file.GetSHA(),
	}
	if file.Size != nil {
		size := int64(*file.Size)
		out.Size = &size
	}

	if file.GetEncoding() == "none" || (file.Content == nil && file.GetSize() > 0) {
		c.logger.Debug("Fetching raw file content", "owner", owner, "repo", name, "path", path, "size", file.GetSize())
		out.Content, err = c.getRaw(ctx, gh, owner, name, path, ref)
		if err != nil {
			return nil, err
		}
		return out, nil
	}

	out.Content, err = file.GetContent()
	if err != nil {
		return nil, &custom_errors.RemoteAPIError{Op: "decode file content", Err: err}
	}
	return out, nil
}

// getRaw downloads the file body with the raw media type.
func (c *Client) getRaw(ctx context.Context, gh *github.Client, owner, name, path, ref string) (string, error) {
	escaped := (&url.URL{Path: strings.TrimSuffix(path, "/")}).String()
	u := fmt.Sprintf("repos/%s/%s/contents/%s", owner, name, escaped)
	if ref != "" {
		u += "?ref=" + url.QueryEscape(ref)
	}

	var buf bytes.Buffer
	err := c.do(ctx, "get raw file content", func(ctx context.Context) (*github.Response, error) {
		buf.Reset()
		req, err := gh.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", rawMediaType)
		return gh.Do(ctx, req, &buf)
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
