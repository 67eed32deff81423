// Package oauth keeps users' GitHub OAuth credentials usable: it exchanges
// authorization codes, refreshes tokens before they expire and disconnects
// accounts whose tokens the remote no longer accepts.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	custom_errors "github-repo-sync/internal/errors"
	"github-repo-sync/internal/model"
	"github-repo-sync/internal/telemetry"
)

const (
	// Upper bound for one refresh, including persisting its result.
	refreshTimeout = 30 * time.Second
	// Upper bound for persisting a credential the remote has already issued.
	persistTimeout = 10 * time.Second
)

// CredentialStore persists per-user OAuth credentials.
type CredentialStore interface {
	LoadUserCredential(ctx context.Context, userID string) (*model.OAuthCredential, error)
	SaveCredential(ctx context.Context, c *model.OAuthCredential) error
}

// Revoker revokes an access token at the remote provider.
type Revoker interface {
	RevokeToken(ctx context.Context, token string) error
}

// Config configures a Manager.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// OAuthURL is the provider's web root, e.g. https://github.com.
	OAuthURL string
	Scopes   []string
	// RefreshSkew renews tokens this long before they expire.
	RefreshSkew time.Duration
	// DefaultTTL is the lifetime assumed when the provider omits expires_in.
	DefaultTTL time.Duration
	HTTPClient *http.Client
}

// Manager guarantees callers a non-expired access token.
type Manager struct {
	oauthCfg    *oauth2.Config
	store       CredentialStore
	revoker     Revoker
	httpClient  *http.Client
	refreshSkew time.Duration
	defaultTTL  time.Duration
	logger      *slog.Logger
	now         func() time.Time

	// Concurrent refreshes for one user share a single remote call.
	refreshes singleflight.Group
}

// NewManager creates a Manager.
func NewManager(cfg Config, store CredentialStore, revoker Revoker, logger *slog.Logger) *Manager {
	base := strings.TrimSuffix(cfg.OAuthURL, "/")
	return &Manager{
		oauthCfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/login/oauth/authorize",
				TokenURL:  base + "/login/oauth/access_token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		store:       store,
		revoker:     revoker,
		httpClient:  cfg.HTTPClient,
		refreshSkew: cfg.RefreshSkew,
		defaultTTL:  cfg.DefaultTTL,
		logger:      logger,
		now:         time.Now,
	}
}

// AuthCodeURL returns the provider authorization URL carrying state.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauthCfg.AuthCodeURL(state)
}

// Connect exchanges an authorization code for tokens and stores them as the
// credential of userID.
func (m *Manager) Connect(ctx context.Context, userID, code string) (*model.OAuthCredential, error) {
	tok, err := m.oauthCfg.Exchange(m.clientContext(ctx), code)
	if err != nil {
		return nil, classifyTokenError("exchange authorization code", err)
	}

	cred := &model.OAuthCredential{UserID: userID}
	m.apply(cred, tok)
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := m.store.SaveCredential(saveCtx, cred); err != nil {
		return nil, fmt.Errorf("persist credential: %w", err)
	}
	m.logger.Info("GitHub account connected", "user_id", userID, "scope", cred.Scope)
	return cred, nil
}

// EnsureValidToken loads the credential of userID and returns a usable access token.
func (m *Manager) EnsureValidToken(ctx context.Context, userID string) (string, error) {
	cred, err := m.store.LoadUserCredential(ctx, userID)
	if custom_errors.IsNotFound(err) {
		return "", &custom_errors.CredentialError{UserID: userID, Reason: "github account is not connected"}
	}
	if err != nil {
		return "", err
	}
	return m.EnsureValid(ctx, cred)
}

// EnsureValid returns cred's access token, refreshing and persisting it first
// when it expires within the refresh skew. Without a refresh token an expired
// credential fails with a CredentialError and no remote call is made.
func (m *Manager) EnsureValid(ctx context.Context, cred *model.OAuthCredential) (string, error) {
	if !cred.Connected || cred.AccessToken == "" {
		return "", &custom_errors.CredentialError{UserID: cred.UserID, Reason: "github account is not connected"}
	}
	if !cred.ExpiresWithin(m.now(), m.refreshSkew) {
		return cred.AccessToken, nil
	}
	if !cred.CanRefresh() {
		return "", &custom_errors.CredentialError{UserID: cred.UserID, Reason: "access token expired and no refresh token is available"}
	}

	return m.sharedRefresh(ctx, cred.UserID, m.now().Add(m.refreshSkew))
}

// sharedRefresh refreshes the credential of userID unless the stored one
// already outlives horizon. Concurrent callers share one refresh, which runs
// detached from their contexts so a rotated token is always persisted.
func (m *Manager) sharedRefresh(ctx context.Context, userID string, horizon time.Time) (string, error) {
	ch := m.refreshes.DoChan(userID, func() (interface{}, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.refresh(rctx, userID, horizon)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			m.logger.Debug("Reused concurrent token refresh", "user_id", userID)
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// refresh works on the stored credential, never on a caller's copy: a
// refresh token the remote has rotated since the caller loaded it would be
// rejected.
func (m *Manager) refresh(ctx context.Context, userID string, horizon time.Time) (string, error) {
	cred, err := m.store.LoadUserCredential(ctx, userID)
	if custom_errors.IsNotFound(err) {
		return "", &custom_errors.CredentialError{UserID: userID, Reason: "github account is not connected"}
	}
	if err != nil {
		return "", err
	}
	if !cred.Connected || cred.AccessToken == "" {
		return "", &custom_errors.CredentialError{UserID: userID, Reason: "github account is not connected"}
	}
	if cred.ExpiresAt != nil && cred.ExpiresAt.After(horizon) {
		m.logger.Debug("Stored token already refreshed", "user_id", userID, "expires_at", cred.ExpiresAt)
		return cred.AccessToken, nil
	}
	if !cred.CanRefresh() {
		return "", &custom_errors.CredentialError{UserID: userID, Reason: "access token expired and no refresh token is available"}
	}

	src := m.oauthCfg.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		telemetry.TokenRefreshesTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()
		return "", &custom_errors.CredentialError{
			UserID: userID,
			Reason: "token refresh failed",
			Err:    classifyTokenError("refresh token", err),
		}
	}

	m.apply(cred, tok)
	if err := m.store.SaveCredential(ctx, cred); err != nil {
		telemetry.TokenRefreshesTotal.WithLabelValues(telemetry.OutcomeFailure).Inc()
		return "", fmt.Errorf("persist refreshed credential of user %s: %w", userID, err)
	}

	telemetry.TokenRefreshesTotal.WithLabelValues(telemetry.OutcomeSuccess).Inc()
	m.logger.Info("Refreshed GitHub access token", "user_id", userID, "expires_at", cred.ExpiresAt)
	return cred.AccessToken, nil
}

// classifyTokenError maps a token endpoint failure to a RemoteAuthError when
// the provider rejected the grant and to a RemoteAPIError otherwise.
func classifyTokenError(op string, err error) error {
	var rerr *oauth2.RetrieveError
	if !errors.As(err, &rerr) {
		return &custom_errors.RemoteAPIError{Op: op, Err: err}
	}
	status := 0
	if rerr.Response != nil {
		status = rerr.Response.StatusCode
	}
	switch {
	case status == http.StatusTooManyRequests, status == http.StatusRequestTimeout, status >= 500:
		return &custom_errors.RemoteAPIError{Op: op, StatusCode: status, Err: err}
	case status >= 400, rerr.ErrorCode != "":
		return &custom_errors.RemoteAuthError{Op: op, Err: err}
	default:
		return &custom_errors.RemoteAPIError{Op: op, StatusCode: status, Err: err}
	}
}

// apply copies a token response onto cred.
func (m *Manager) apply(cred *model.OAuthCredential, tok *oauth2.Token) {
	now := m.now()
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = now.Add(m.defaultTTL)
	}

	cred.Connected = true
	cred.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		cred.RefreshToken = tok.RefreshToken
	}
	cred.ExpiresAt = &expiresAt
	if scope, ok := tok.Extra("scope").(string); ok && scope != "" {
		cred.Scope = scope
	}
	cred.LastSyncAt = &now
}

// Disconnect revokes the user's token at the remote on a best-effort basis,
// then wipes and persists the credential. Only the local write can fail it.
func (m *Manager) Disconnect(ctx context.Context, userID string) error {
	logger := m.logger.With("user_id", userID)

	cred, err := m.store.LoadUserCredential(ctx, userID)
	switch {
	case err == nil:
		if cred.AccessToken != "" {
			if err := m.revoker.RevokeToken(ctx, cred.AccessToken); err != nil {
				logger.Warn("Failed to revoke GitHub token", "error", err)
			}
		}
	case custom_errors.IsNotFound(err), custom_errors.IsCredential(err):
		logger.Warn("No revocable GitHub token", "error", err)
	default:
		return err
	}

	if err := m.store.SaveCredential(ctx, &model.OAuthCredential{UserID: userID}); err != nil {
		return fmt.Errorf("clear credential: %w", err)
	}
	telemetry.CredentialDisconnectsTotal.Inc()
	logger.Info("GitHub account disconnected")
	return nil
}

// DisconnectOnAuthFailure disconnects userID when err says the remote rejected its token.
// It reports whether a disconnect happened.
func (m *Manager) DisconnectOnAuthFailure(ctx context.Context, userID string, err error) bool {
	if !custom_errors.IsRemoteAuth(err) {
		return false
	}
	m.logger.Warn("GitHub rejected credentials, disconnecting account", "user_id", userID, "error", err)
	if derr := m.Disconnect(context.WithoutCancel(ctx), userID); derr != nil {
		m.logger.Error("Failed to disconnect account", "user_id", userID, "error", derr)
		return false
	}
	return true
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

