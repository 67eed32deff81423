package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github-repo-sync/internal/account"
	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/project"
	"github-repo-sync/internal/telemetry"
)

type MockProjects struct {
	mock.Mock
}

func (m *MockProjects) ImportRepository(ctx context.Context, userID, repositoryID string) (*model.Project, error) {
	args := m.Called(ctx, userID, repositoryID)
	p, _ := args.Get(0).(*model.Project)
	return p, args.Error(1)
}
func (m *MockProjects) Resync(ctx context.Context, userID, projectID string) (*model.Project, error) {
	args := m.Called(ctx, userID, projectID)
	p, _ := args.Get(0).(*model.Project)
	return p, args.Error(1)
}
func (m *MockProjects) GetFile(ctx context.Context, userID, projectID, path string, refresh bool) (*model.FileContent, error) {
	args := m.Called(ctx, userID, projectID, path, refresh)
	f, _ := args.Get(0).(*model.FileContent)
	return f, args.Error(1)
}
func (m *MockProjects) GetStatus(ctx context.Context, userID, projectID string) (*project.Status, error) {
	args := m.Called(ctx, userID, projectID)
	s, _ := args.Get(0).(*project.Status)
	return s, args.Error(1)
}
func (m *MockProjects) GetProject(ctx context.Context, userID, projectID string) (*project.View, error) {
	args := m.Called(ctx, userID, projectID)
	v, _ := args.Get(0).(*project.View)
	return v, args.Error(1)
}
func (m *MockProjects) ListProjects(ctx context.Context, userID string) ([]model.Project, error) {
	args := m.Called(ctx, userID)
	ps, _ := args.Get(0).([]model.Project)
	return ps, args.Error(1)
}
func (m *MockProjects) DeleteProject(ctx context.Context, userID, projectID string) error {
	args := m.Called(ctx, userID, projectID)
	return args.Error(0)
}

type MockAccounts struct {
	mock.Mock
}

func (m *MockAccounts) AuthURL(userID string) (string, error) {
	args := m.Called(userID)
	return args.String(0), args.Error(1)
}
func (m *MockAccounts) HandleCallback(ctx context.Context, code, state string) (*account.Summary, error) {
	args := m.Called(ctx, code, state)
	s, _ := args.Get(0).(*account.Summary)
	return s, args.Error(1)
}
func (m *MockAccounts) Status(ctx context.Context, userID string) (*account.ConnectionStatus, error) {
	args := m.Called(ctx, userID)
	s, _ := args.Get(0).(*account.ConnectionStatus)
	return s, args.Error(1)
}
func (m *MockAccounts) ListRepositories(ctx context.Context, userID string) ([]model.RepositorySummary, error) {
	args := m.Called(ctx, userID)
	r, _ := args.Get(0).([]model.RepositorySummary)
	return r, args.Error(1)
}
func (m *MockAccounts) GetRepository(ctx context.Context, userID, repositoryID string) (*model.Repository, error) {
	args := m.Called(ctx, userID, repositoryID)
	r, _ := args.Get(0).(*model.Repository)
	return r, args.Error(1)
}
func (m *MockAccounts) Disconnect(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

func setupRouter() (http.Handler, *MockProjects, *MockAccounts) {
	projects, accounts := new(MockProjects), new(MockAccounts)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(projects, accounts, logger), projects, accounts
}

func do(t *testing.T, h http.Handler, method, target, user string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	if user != "" {
		req.Header.Set(UserIDHeader, user)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHealthCheck(t *testing.T) {
	h, _, _ := setupRouter()

	rec := do(t, h, http.MethodGet, "/health", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRequireUser(t *testing.T) {
	h, projects, _ := setupRouter()

	rec := do(t, h, http.MethodGet, "/v1/projects", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	projects.AssertNotCalled(t, "ListProjects", mock.Anything, mock.Anything)
}

func TestImportRepository(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("ImportRepository", mock.Anything, "u1", "42").
		Return(&model.Project{ID: "p1", UserID: "u1", Status: model.StatusPending}, nil).Once()

	rec := do(t, h, http.MethodPost, "/v1/projects/import/42", "u1")

	assert.Equal(t, http.StatusAccepted, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "p1", body["id"])
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, false, body["accessible"])
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid repository id", &custom_errors.ErrInvalidRepositoryID{Value: "abc"}, http.StatusBadRequest},
		{"sync in progress", &custom_errors.ErrSyncInProgress{ProjectID: "p1"}, http.StatusConflict},
		{"not connected", &custom_errors.CredentialError{UserID: "u1", Reason: "github account is not connected"}, http.StatusUnauthorized},
		{"token rejected", &custom_errors.RemoteAuthError{Op: "get repository"}, http.StatusUnauthorized},
		{"not found", &custom_errors.NotFoundError{Resource: "project", ID: "p1"}, http.StatusNotFound},
		{"remote not found", &custom_errors.RemoteAPIError{Op: "get repository", StatusCode: 404}, http.StatusNotFound},
		{"not owner", &custom_errors.AuthorizationError{UserID: "u1", Resource: "project", ID: "p1"}, http.StatusForbidden},
		{"remote failure", &custom_errors.RemoteAPIError{Op: "get repository", StatusCode: 502}, http.StatusBadGateway},
		{"malformed tree", &custom_errors.TransformError{Path: "a//b", Reason: "invalid path segment"}, http.StatusInternalServerError},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, projects, _ := setupRouter()
			projects.On("Resync", mock.Anything, "u1", "p1").Return(nil, tt.err).Once()

			rec := do(t, h, http.MethodPost, "/v1/projects/p1/resync", "u1")

			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, decode(t, rec), "error")
		})
	}
}

func TestErrorMapping_ReconnectRequired(t *testing.T) {
	h, _, accounts := setupRouter()
	accounts.On("ListRepositories", mock.Anything, "u1").Return(nil, &custom_errors.RemoteAuthError{Op: "list repositories"}).Once()

	rec := do(t, h, http.MethodGet, "/v1/github/repositories", "u1")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, true, decode(t, rec)["reconnect_required"])
}

func TestGetStatus(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("GetStatus", mock.Anything, "u1", "p1").Return(&project.Status{
		ProjectID:    "p1",
		Status:       model.StatusFailed,
		ErrorMessage: "get tree: status 502",
	}, nil).Once()

	rec := do(t, h, http.MethodGet, "/v1/projects/p1/status", "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "FAILED", body["status"])
	assert.Equal(t, false, body["is_accessible"])
	assert.Equal(t, "get tree: status 502", body["error"])
}

func TestGetFileContent(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("GetFile", mock.Anything, "u1", "p1", "src/main.go", true).
		Return(&model.FileContent{Path: "src/main.go", Content: "package main"}, nil).Once()

	rec := do(t, h, http.MethodGet, "/v1/projects/p1/file-content?path=src/main.go&refresh=true", "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "package main", body["content"])
	assert.Equal(t, false, body["cached"])
}

func TestGetFileContent_BadParams(t *testing.T) {
	h, projects, _ := setupRouter()

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/projects/p1/file-content", "u1").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/projects/p1/file-content?path=a&refresh=maybe", "u1").Code)
	projects.AssertNotCalled(t, "GetFile", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListProjects_Empty(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("ListProjects", mock.Anything, "u1").Return(nil, nil).Once()

	rec := do(t, h, http.MethodGet, "/v1/projects", "u1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"projects":[]}`, rec.Body.String())
}

func TestDeleteProject(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("DeleteProject", mock.Anything, "u1", "p1").Return(nil).Once()

	rec := do(t, h, http.MethodDelete, "/v1/projects/p1", "u1")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	projects.AssertExpectations(t)
}

func TestGithubCallback(t *testing.T) {
	h, _, accounts := setupRouter()
	accounts.On("HandleCallback", mock.Anything, "c1", "s1").
		Return(&account.Summary{UserID: "u1", Connected: true, Login: "octocat"}, nil).Once()

	rec := do(t, h, http.MethodGet, "/v1/github/auth/callback?code=c1&state=s1", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["github_connected"])
	assert.Equal(t, "octocat", body["github_username"])
}

func TestGithubCallback_MissingParams(t *testing.T) {
	h, _, accounts := setupRouter()

	rec := do(t, h, http.MethodGet, "/v1/github/auth/callback?code=c1", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	accounts.AssertNotCalled(t, "HandleCallback", mock.Anything, mock.Anything, mock.Anything)
}

func TestGithubAuthURL(t *testing.T) {
	h, _, accounts := setupRouter()
	accounts.On("AuthURL", "u1").Return("https://github.com/login/oauth/authorize?state=x", nil).Once()

	rec := do(t, h, http.MethodGet, "/v1/github/auth/url", "u1")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://github.com/login/oauth/authorize?state=x", decode(t, rec)["url"])
}

func TestGithubDisconnect(t *testing.T) {
	h, _, accounts := setupRouter()
	accounts.On("Disconnect", mock.Anything, "u1").Return(nil).Once()

	rec := do(t, h, http.MethodPost, "/v1/github/disconnect", "u1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"is_connected":false}`, rec.Body.String())
}

func TestMetrics(t *testing.T) {
	h, projects, _ := setupRouter()
	projects.On("GetStatus", mock.Anything, "u1", "p9").Return(nil, &custom_errors.NotFoundError{Resource: "project", ID: "p9"}).Once()
	counter := telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/v1/projects/{projectID}/status", "404")
	before := testutil.ToFloat64(counter)

	do(t, h, http.MethodGet, "/v1/projects/p9/status", "u1")

	assert.Equal(t, before+1, testutil.ToFloat64(counter))

	rec := do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "reposync_http_requests_total")
}
