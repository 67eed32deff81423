package github

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

func TestClient_GetRef(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/test/repo/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, `{"ref": "refs/heads/main", "object": {"type": "commit", "sha": "abc123"}}`)
	})
	mux.HandleFunc("/repos/test/repo/git/ref/heads/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, `{"message": "Not Found"}`)
	})
	client := setupTestClient(t, mux)

	sha, err := client.GetRef(context.Background(), "token", "test", "repo", "main")
	require.NoError(t, err)
	assert.Equal(t, "abc123", sha)

	_, err = client.GetRef(context.Background(), "token", "test", "repo", "missing")
	require.Error(t, err)
	assert.True(t, custom_errors.IsNotFound(err))
}

func TestClient_GetTreeRecursive(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/test/repo/git/trees/abc123", r.URL.Path)
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		fmt.Fprintln(w, `{
			"sha": "abc123",
			"truncated": true,
			"tree": [
				{"path": "src", "type": "tree", "sha": "t1"},
				{"path": "src/main.go", "type": "blob", "size": 120, "sha": "b1", "url": "https://example.test/b1"},
				{"path": "lib", "type": "commit", "sha": "c1"}
			]
		}`)
	})
	client := setupTestClient(t, handler)

	entries, err := client.GetTreeRecursive(context.Background(), "token", "test", "repo", "abc123")

	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, model.TreeEntry{Path: "src", Type: model.EntryTree, SHA: "t1"}, entries[0])
	assert.Equal(t, "src/main.go", entries[1].Path)
	require.NotNil(t, entries[1].Size)
	assert.Equal(t, int64(120), *entries[1].Size)
	assert.Equal(t, "https://example.test/b1", entries[1].URL)
	assert.Equal(t, model.EntryCommit, entries[2].Type)
}

func TestClient_GetRawFileContent(t *testing.T) {
	t.Run("decodes inline base64 content", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/repos/test/repo/contents/docs/a.txt", r.URL.Path)
			assert.Equal(t, "main", r.URL.Query().Get("ref"))
			fmt.Fprintln(w, `{"type": "file", "encoding": "base64", "size": 5, "path": "docs/a.txt", "sha": "h1", "content": "aGVsbG8="}`)
		})
		client := setupTestClient(t, handler)

		file, err := client.GetRawFileContent(context.Background(), "token", "test", "repo", "docs/a.txt", "main")

		require.NoError(t, err)
		assert.Equal(t, "hello", file.Content)
		assert.Equal(t, "h1", file.ContentHash)
		require.NotNil(t, file.Size)
		assert.Equal(t, int64(5), *file.Size)
	})

	t.Run("re-fetches large files with the raw media type", func(t *testing.T) {
		var rawRequests int
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Accept") == rawMediaType {
				rawRequests++
				assert.Equal(t, "main", r.URL.Query().Get("ref"))
				fmt.Fprint(w, "large body")
				return
			}
			fmt.Fprintln(w, `{"type": "file", "encoding": "none", "size": 2000000, "path": "big.bin", "sha": "h2", "content": ""}`)
		})
		client := setupTestClient(t, handler)

		file, err := client.GetRawFileContent(context.Background(), "token", "test", "repo", "big.bin", "main")

		require.NoError(t, err)
		assert.Equal(t, 1, rawRequests)
		assert.Equal(t, "large body", file.Content)
		assert.Equal(t, "h2", file.ContentHash)
		assert.Equal(t, int64(2000000), *file.Size)
	})

	t.Run("directory is not found", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `[{"type": "file", "name": "a.txt", "path": "docs/a.txt"}]`)
		})
		client := setupTestClient(t, handler)

		_, err := client.GetRawFileContent(context.Background(), "token", "test", "repo", "docs", "main")

		var nf *custom_errors.NotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("missing file is not found", func(t *testing.T) {
		handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprintln(w, `{"message": "Not Found"}`)
		})
		client := setupTestClient(t, handler)

		_, err := client.GetRawFileContent(context.Background(), "token", "test", "repo", "nope.txt", "main")

		assert.True(t, custom_errors.IsNotFound(err))
	})
}
