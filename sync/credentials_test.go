// ABOUTME: Tests for the credential manager refresh policy
// ABOUTME: Verifies skew handling, token persistence and deactivation on refresh failure
package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/models"
)

type fakeRefresher struct {
	token *oauth2.Token
	err   error
	calls int
	seen  []string
}

func (f *fakeRefresher) RefreshToken(_ context.Context, refreshToken string) (*oauth2.Token, error) {
	f.calls++
	f.seen = append(f.seen, refreshToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.token, nil
}

var fixedNow = time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)

func newTestCredentials(t *testing.T, refresher TokenRefresher, metrics *Metrics) (*CredentialManager, *db.CalendarRepository) {
	t.Helper()
	repo := db.NewCalendarRepository(setupTestDB(t))
	m := NewCredentialManager(repo, refresher, 10*time.Minute, nil, metrics)
	m.now = func() time.Time { return fixedNow }
	return m, repo
}

func saveConnection(t *testing.T, repo *db.CalendarRepository, expiry time.Time) *models.CalendarConnection {
	t.Helper()
	conn := &models.CalendarConnection{
		UserID:       "user-1",
		Provider:     models.ProviderGoogle,
		AccessToken:  "stored-access",
		RefreshToken: "stored-refresh",
		TokenExpiry:  expiry,
	}
	require.NoError(t, repo.SaveConnection(context.Background(), conn))
	return conn
}

func TestValidAccessTokenNotConnected(t *testing.T) {
	refresher := &fakeRefresher{}
	m, _ := newTestCredentials(t, refresher, nil)

	_, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 0, refresher.calls)
}

func TestValidAccessTokenOutsideSkew(t *testing.T) {
	refresher := &fakeRefresher{}
	m, repo := newTestCredentials(t, refresher, nil)
	saveConnection(t, repo, fixedNow.Add(11*time.Minute))

	token, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "stored-access", token)
	assert.Equal(t, 0, refresher.calls, "no network call for a fresh token")
}

func TestValidAccessTokenRefreshesInsideSkew(t *testing.T) {
	tests := []struct {
		name   string
		expiry time.Time
	}{
		{"exactly at skew", fixedNow.Add(10 * time.Minute)},
		{"inside skew", fixedNow.Add(5 * time.Minute)},
		{"already expired", fixedNow.Add(-time.Hour)},
		{"no expiry recorded", time.Time{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			newExpiry := fixedNow.Add(time.Hour).Truncate(time.Second)
			refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "fresh-access", Expiry: newExpiry}}
			m, repo := newTestCredentials(t, refresher, nil)
			conn := saveConnection(t, repo, tt.expiry)

			token, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
			require.NoError(t, err)
			assert.Equal(t, "fresh-access", token)
			assert.Equal(t, []string{"stored-refresh"}, refresher.seen)

			stored, err := repo.GetActiveConnection(context.Background(), "user-1", models.ProviderGoogle)
			require.NoError(t, err)
			assert.Equal(t, conn.ID, stored.ID, "refresh updates the connection in place")
			assert.Equal(t, "fresh-access", stored.AccessToken)
			assert.Equal(t, "stored-refresh", stored.RefreshToken)
			assert.True(t, stored.TokenExpiry.Equal(newExpiry))
		})
	}
}

func TestValidAccessTokenStoresRotatedRefreshToken(t *testing.T) {
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "fresh", RefreshToken: "rotated", Expiry: fixedNow.Add(time.Hour)}}
	m, repo := newTestCredentials(t, refresher, nil)
	saveConnection(t, repo, fixedNow)

	_, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	require.NoError(t, err)

	stored, err := repo.GetActiveConnection(context.Background(), "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "rotated", stored.RefreshToken)
}

func TestValidAccessTokenRefreshFailureDeactivates(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	refresher := &fakeRefresher{err: errors.New("oauth2: invalid_grant")}
	m, repo := newTestCredentials(t, refresher, metrics)
	conn := saveConnection(t, repo, fixedNow.Add(-time.Minute))
	ctx := context.Background()

	_, err := m.ValidAccessToken(ctx, "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrReauthRequired)

	latest, err := repo.GetLatestConnection(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, latest.ID, "connection is kept, not deleted")
	assert.False(t, latest.Active)

	// Stays inactive on later calls
	_, err = m.ValidAccessToken(ctx, "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.Equal(t, 1, refresher.calls)

	latest, err = repo.GetLatestConnection(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.False(t, latest.Active)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.tokenRefresh.WithLabelValues(resultFailed)))
}

func TestValidAccessTokenEmptyRefreshResponse(t *testing.T) {
	refresher := &fakeRefresher{token: &oauth2.Token{}}
	m, repo := newTestCredentials(t, refresher, nil)
	saveConnection(t, repo, fixedNow)

	_, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrReauthRequired)

	_, err = repo.GetActiveConnection(context.Background(), "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, db.ErrConnectionNotFound)
}

func TestValidAccessTokenReconnectAfterDeactivation(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("revoked")}
	m, repo := newTestCredentials(t, refresher, nil)
	saveConnection(t, repo, fixedNow)

	_, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	require.ErrorIs(t, err, ErrReauthRequired)

	// A new grant is the only way back
	fresh := &models.CalendarConnection{
		UserID:       "user-1",
		Provider:     models.ProviderGoogle,
		AccessToken:  "new-access",
		RefreshToken: "new-refresh",
		TokenExpiry:  fixedNow.Add(time.Hour),
	}
	require.NoError(t, repo.SaveConnection(context.Background(), fresh))

	token, err := m.ValidAccessToken(context.Background(), "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "new-access", token)
}

type cancellingRefresher struct {
	cancel context.CancelFunc
}

func (c *cancellingRefresher) RefreshToken(ctx context.Context, _ string) (*oauth2.Token, error) {
	c.cancel()
	return nil, ctx.Err()
}

func TestValidAccessTokenDeactivatesWhenCallerCancels(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m, repo := newTestCredentials(t, &cancellingRefresher{cancel: cancel}, nil)
	conn := saveConnection(t, repo, fixedNow.Add(-time.Minute))

	_, err := m.ValidAccessToken(ctx, "user-1", models.ProviderGoogle)
	assert.ErrorIs(t, err, ErrReauthRequired)

	latest, err := repo.GetLatestConnection(context.Background(), "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, conn.ID, latest.ID)
	assert.False(t, latest.Active)
}

func TestValidAccessTokenDefaultsMissingExpiry(t *testing.T) {
	refresher := &fakeRefresher{token: &oauth2.Token{AccessToken: "fresh-access"}}
	m, repo := newTestCredentials(t, refresher, nil)
	saveConnection(t, repo, fixedNow)
	ctx := context.Background()

	token, err := m.ValidAccessToken(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, "fresh-access", token)

	stored, err := repo.GetActiveConnection(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.True(t, stored.TokenExpiry.Equal(fixedNow.Add(defaultTokenLifetime)))

	// The defaulted expiry keeps the next call off the network
	_, err = m.ValidAccessToken(ctx, "user-1", models.ProviderGoogle)
	require.NoError(t, err)
	assert.Equal(t, 1, refresher.calls)
}
