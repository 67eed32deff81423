package account

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
)

type fakeStates struct{}

func (fakeStates) Sign(userID string) (string, error) { return "state-" + userID, nil }

func (fakeStates) Verify(state string) (string, error) {
	if len(state) > 6 && state[:6] == "state-" {
		return state[6:], nil
	}
	return "", &custom_errors.AuthorizationError{Resource: "oauth state", ID: "callback"}
}

type MockConnector struct {
	mock.Mock
}

func (m *MockConnector) AuthCodeURL(state string) string {
	return "https://github.test/login/oauth/authorize?state=" + state
}
func (m *MockConnector) Connect(ctx context.Context, userID, code string) (*model.OAuthCredential, error) {
	args := m.Called(ctx, userID, code)
	c, _ := args.Get(0).(*model.OAuthCredential)
	return c, args.Error(1)
}
func (m *MockConnector) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}
func (m *MockConnector) Disconnect(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}
func (m *MockConnector) DisconnectOnAuthFailure(ctx context.Context, userID string, err error) bool {
	args := m.Called(ctx, userID, err)
	return args.Bool(0)
}

type MockRemote struct {
	mock.Mock
}

func (m *MockRemote) GetAuthenticatedUser(ctx context.Context, token string) (*model.GitHubProfile, error) {
	args := m.Called(ctx, token)
	p, _ := args.Get(0).(*model.GitHubProfile)
	return p, args.Error(1)
}
func (m *MockRemote) ListRepositories(ctx context.Context, token string) ([]model.RepositorySummary, error) {
	args := m.Called(ctx, token)
	r, _ := args.Get(0).([]model.RepositorySummary)
	return r, args.Error(1)
}
func (m *MockRemote) GetRepository(ctx context.Context, token string, repositoryID int64) (*model.Repository, error) {
	args := m.Called(ctx, token, repositoryID)
	r, _ := args.Get(0).(*model.Repository)
	return r, args.Error(1)
}

type memStore struct {
	creds    map[string]*model.OAuthCredential
	profiles map[string]*model.GitHubProfile
}

func (s *memStore) LoadUserCredential(_ context.Context, userID string) (*model.OAuthCredential, error) {
	c, ok := s.creds[userID]
	if !ok {
		return nil, &custom_errors.NotFoundError{Resource: "user", ID: userID}
	}
	cp := *c
	return &cp, nil
}

func (s *memStore) SaveProfile(_ context.Context, userID string, p *model.GitHubProfile) error {
	s.profiles[userID] = p
	return nil
}

func (s *memStore) LoadProfile(_ context.Context, userID string) (*model.GitHubProfile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, &custom_errors.NotFoundError{Resource: "github profile", ID: userID}
	}
	return p, nil
}

var profile = &model.GitHubProfile{
	GitHubID:    1,
	Login:       "octocat",
	Name:        "The Octocat",
	Email:       "octo@example.com",
	PublicRepos: 8,
	Followers:   20,
	Following:   1,
}

func newTestService() (*Service, *MockConnector, *MockRemote, *memStore, time.Time) {
	connector, remote := new(MockConnector), new(MockRemote)
	store := &memStore{creds: map[string]*model.OAuthCredential{}, profiles: map[string]*model.GitHubProfile{}}
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc := NewService(fakeStates{}, connector, remote, store, logger)
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }
	return svc, connector, remote, store, now
}

func TestService_AuthURL(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	url, err := svc.AuthURL("u1")

	require.NoError(t, err)
	assert.Equal(t, "https://github.test/login/oauth/authorize?state=state-u1", url)
}

func TestService_HandleCallback(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, now := newTestService()
	expires := now.Add(8 * time.Hour)
	connector.On("Connect", ctx, "u1", "code-1").Return(&model.OAuthCredential{
		UserID: "u1", Connected: true, AccessToken: "tok", ExpiresAt: &expires, Scope: "repo,user",
	}, nil).Once()
	remote.On("GetAuthenticatedUser", ctx, "tok").Return(profile, nil).Once()

	summary, err := svc.HandleCallback(ctx, "code-1", "state-u1")

	require.NoError(t, err)
	assert.Equal(t, &Summary{
		UserID:      "u1",
		Connected:   true,
		Login:       "octocat",
		Name:        "The Octocat",
		Email:       "octo@example.com",
		PublicRepos: 8,
		Followers:   20,
		Following:   1,
		Scope:       "repo,user",
		ExpiresIn:   8 * 3600,
	}, summary)
	assert.Equal(t, profile, store.profiles["u1"])
}

func TestService_HandleCallback_BadState(t *testing.T) {
	svc, connector, _, _, _ := newTestService()

	_, err := svc.HandleCallback(context.Background(), "code-1", "forged")

	var authErr *custom_errors.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	connector.AssertNotCalled(t, "Connect", mock.Anything, mock.Anything, mock.Anything)
}

func TestService_HandleCallback_ExchangeRejected(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, _, _ := newTestService()
	connector.On("Connect", ctx, "u1", "stale").Return(nil, &custom_errors.RemoteAuthError{Op: "exchange authorization code"}).Once()

	_, err := svc.HandleCallback(ctx, "stale", "state-u1")

	assert.True(t, custom_errors.IsRemoteAuth(err))
	remote.AssertNotCalled(t, "GetAuthenticatedUser", mock.Anything, mock.Anything)
}

func TestService_Status_NotConnected(t *testing.T) {
	svc, connector, _, store, _ := newTestService()
	store.creds["u2"] = &model.OAuthCredential{UserID: "u2"}

	for _, user := range []string{"u1", "u2"} {
		st, err := svc.Status(context.Background(), user)
		require.NoError(t, err)
		assert.False(t, st.Connected)
		assert.False(t, st.ReconnectRequired)
	}
	connector.AssertNotCalled(t, "EnsureValidToken", mock.Anything, mock.Anything)
}

func TestService_Status_Connected(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, now := newTestService()
	expires := now.Add(time.Hour)
	store.creds["u1"] = &model.OAuthCredential{UserID: "u1", Connected: true, AccessToken: "tok", ExpiresAt: &expires, Scope: "repo"}
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("GetAuthenticatedUser", ctx, "tok").Return(profile, nil).Once()

	st, err := svc.Status(ctx, "u1")

	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "octocat", st.Profile.Login)
	assert.Equal(t, "repo", st.Scope)
	assert.Equal(t, &expires, st.ExpiresAt)
	assert.Equal(t, profile, store.profiles["u1"])
}

func TestService_Status_RejectedTokenDisconnects(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, now := newTestService()
	expires := now.Add(time.Hour)
	store.creds["u1"] = &model.OAuthCredential{UserID: "u1", Connected: true, AccessToken: "tok", ExpiresAt: &expires}
	rejected := &custom_errors.RemoteAuthError{Op: "get authenticated user"}
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("GetAuthenticatedUser", ctx, "tok").Return(nil, rejected).Once()
	connector.On("DisconnectOnAuthFailure", ctx, "u1", rejected).Return(true).Once()

	st, err := svc.Status(ctx, "u1")

	require.NoError(t, err)
	assert.False(t, st.Connected)
	assert.True(t, st.ReconnectRequired)
	connector.AssertExpectations(t)
}

func TestService_Status_RemoteDownServesStoredProfile(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, now := newTestService()
	expires := now.Add(time.Hour)
	store.creds["u1"] = &model.OAuthCredential{UserID: "u1", Connected: true, AccessToken: "tok", ExpiresAt: &expires}
	store.profiles["u1"] = profile
	outage := &custom_errors.RemoteAPIError{Op: "get authenticated user", StatusCode: 503}
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("GetAuthenticatedUser", ctx, "tok").Return(nil, outage).Once()
	connector.On("DisconnectOnAuthFailure", ctx, "u1", outage).Return(false).Once()

	st, err := svc.Status(ctx, "u1")

	require.NoError(t, err)
	assert.True(t, st.Connected)
	assert.Equal(t, "octocat", st.Profile.Login)
}

func TestService_Status_RemoteDownWithoutStoredProfile(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, now := newTestService()
	expires := now.Add(time.Hour)
	store.creds["u1"] = &model.OAuthCredential{UserID: "u1", Connected: true, AccessToken: "tok", ExpiresAt: &expires}
	outage := &custom_errors.RemoteAPIError{Op: "get authenticated user", StatusCode: 503}
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("GetAuthenticatedUser", ctx, "tok").Return(nil, outage).Once()
	connector.On("DisconnectOnAuthFailure", ctx, "u1", outage).Return(false).Once()

	_, err := svc.Status(ctx, "u1")

	assert.Equal(t, outage, err)
}

func TestService_Status_ExpiredWithoutRefresh(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, store, _ := newTestService()
	store.creds["u1"] = &model.OAuthCredential{UserID: "u1", Connected: true, AccessToken: "tok"}
	connector.On("EnsureValidToken", ctx, "u1").
		Return("", &custom_errors.CredentialError{UserID: "u1", Reason: "access token expired and no refresh token is available"}).Once()

	st, err := svc.Status(ctx, "u1")

	require.NoError(t, err)
	assert.True(t, st.ReconnectRequired)
	remote.AssertNotCalled(t, "GetAuthenticatedUser", mock.Anything, mock.Anything)
}

func TestService_ListRepositories(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, _, _ := newTestService()
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("ListRepositories", ctx, "tok").Return([]model.RepositorySummary{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}, nil).Once()

	repos, err := svc.ListRepositories(ctx, "u1")

	require.NoError(t, err)
	assert.Len(t, repos, 2)
}

func TestService_ListRepositories_UnauthorizedDisconnects(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, _, _ := newTestService()
	rejected := &custom_errors.RemoteAuthError{Op: "list repositories"}
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("ListRepositories", ctx, "tok").Return(nil, rejected).Once()
	connector.On("DisconnectOnAuthFailure", ctx, "u1", rejected).Return(true).Once()

	_, err := svc.ListRepositories(ctx, "u1")

	assert.True(t, custom_errors.IsRemoteAuth(err))
	connector.AssertExpectations(t)
}

func TestService_GetRepository(t *testing.T) {
	ctx := context.Background()
	svc, connector, remote, _, _ := newTestService()
	connector.On("EnsureValidToken", ctx, "u1").Return("tok", nil).Once()
	remote.On("GetRepository", ctx, "tok", int64(99)).Return(&model.Repository{
		RepositorySummary: model.RepositorySummary{ID: 99, Name: "repo"},
	}, nil).Once()

	repo, err := svc.GetRepository(ctx, "u1", "99")

	require.NoError(t, err)
	assert.Equal(t, int64(99), repo.ID)
}

func TestService_GetRepository_InvalidID(t *testing.T) {
	svc, connector, _, _, _ := newTestService()

	_, err := svc.GetRepository(context.Background(), "u1", "octo/repo")

	var invalid *custom_errors.ErrInvalidRepositoryID
	assert.ErrorAs(t, err, &invalid)
	connector.AssertNotCalled(t, "EnsureValidToken", mock.Anything, mock.Anything)
}

func TestService_Disconnect(t *testing.T) {
	ctx := context.Background()
	svc, connector, _, _, _ := newTestService()
	connector.On("Disconnect", ctx, "u1").Return(errors.New("db down")).Once()

	assert.EqualError(t, svc.Disconnect(ctx, "u1"), "db down")
}
