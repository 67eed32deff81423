package github

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "github-repo-sync/internal/errors"
)

func TestClient_ListPullRequests(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/test/repo/pulls", r.URL.Path)
		assert.Equal(t, "all", r.URL.Query().Get("state"))
		fmt.Fprintln(w, `[
			{"number": 8, "title": "Second", "state": "open", "user": {"login": "bob"}},
			{"number": 7, "title": "First", "state": "closed", "user": {"login": "alice"}, "merged_at": "2024-05-02T10:00:00Z"}
		]`)
	})
	client := setupTestClient(t, handler)

	prs, err := client.ListPullRequests(context.Background(), "token", "test", "repo")

	require.NoError(t, err)
	require.Len(t, prs, 2)
	assert.Equal(t, 8, prs[0].Number)
	assert.Equal(t, "bob", prs[0].Author)
	assert.Nil(t, prs[0].MergedAt)
	assert.Equal(t, "closed", prs[1].State)
	require.NotNil(t, prs[1].MergedAt)
}

func TestClient_GetPullRequestBundle(t *testing.T) {
	t.Run("assembles details, files and comments", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/test/repo/pulls/7", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"number": 7, "title": "Fix", "state": "open", "user": {"login": "alice"},
				"head": {"ref": "fix", "sha": "h"}, "base": {"ref": "main"}}`)
		})
		mux.HandleFunc("/repos/test/repo/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `[{"filename": "a.go", "status": "modified", "additions": 2, "deletions": 1, "changes": 3, "patch": "@@"}]`)
		})
		mux.HandleFunc("/repos/test/repo/pulls/7/comments", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `[{"id": 99, "body": "nit", "path": "a.go", "line": 4, "user": {"login": "bob"}}]`)
		})
		client := setupTestClient(t, mux)

		bundle, err := client.GetPullRequestBundle(context.Background(), "token", "test", "repo", 7)

		require.NoError(t, err)
		assert.Equal(t, "Fix", bundle.Details.Title)
		assert.Equal(t, "fix", bundle.Details.HeadRef)
		assert.Equal(t, "main", bundle.Details.BaseRef)
		require.Len(t, bundle.Files, 1)
		assert.Equal(t, 3, bundle.Files[0].Changes)
		require.Len(t, bundle.Comments, 1)
		assert.Equal(t, "bob", bundle.Comments[0].Author)
		assert.Equal(t, 4, bundle.Comments[0].Line)
	})

	t.Run("a failing sub-call fails the bundle", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("/repos/test/repo/pulls/7", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"number": 7}`)
		})
		mux.HandleFunc("/repos/test/repo/pulls/7/files", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprintln(w, `{"message": "diff too large"}`)
		})
		client := setupTestClient(t, mux)

		_, err := client.GetPullRequestBundle(context.Background(), "token", "test", "repo", 7)

		var apiErr *custom_errors.RemoteAPIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	})
}
