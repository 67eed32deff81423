package oauth

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github-repo-sync/internal/model"
)

func TestSweeper_RunSweep(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	store := newMemStore(
		model.OAuthCredential{
			UserID:       "due",
			Connected:    true,
			AccessToken:  "a1",
			RefreshToken: "good-refresh",
			ExpiresAt:    timePtr(time.Now().Add(5 * time.Minute)),
		},
		model.OAuthCredential{
			UserID:       "revoked",
			Connected:    true,
			AccessToken:  "a2",
			RefreshToken: "revoked-refresh",
			ExpiresAt:    timePtr(time.Now().Add(-time.Minute)),
		},
		model.OAuthCredential{
			UserID:       "fresh",
			Connected:    true,
			AccessToken:  "a3",
			RefreshToken: "good-refresh",
			ExpiresAt:    timePtr(time.Now().Add(24 * time.Hour)),
		},
	)
	revoker := new(MockRevoker)
	revoker.On("RevokeToken", mock.Anything, "a2").Return(nil).Once()
	m := newTestManager(t, ts, store, revoker)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	sweeper := NewSweeper(m, store, logger, 15*time.Minute)

	refreshed := sweeper.runSweep(ctx)

	assert.Equal(t, 1, refreshed)
	assert.Equal(t, int32(2), ts.count())
	assert.Equal(t, "new-access", store.get("due").AccessToken)
	assert.Equal(t, "a3", store.get("fresh").AccessToken)
	assert.False(t, store.get("revoked").Connected, "a rejected refresh token disconnects the account")
	revoker.AssertExpectations(t)
}

func TestSweeper_StartStopsWithContext(t *testing.T) {
	ts := newTokenServer(t)
	store := newMemStore()
	m := newTestManager(t, ts, store, new(MockRevoker))
	sweeper := NewSweeper(m, store, slog.Default(), time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
