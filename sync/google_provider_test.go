// ABOUTME: Tests for the Google Calendar provider against an httptest server
// ABOUTME: Checks request payloads, bearer auth, gone-event deletes and token refresh
package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"

	"github.com/harperreed/closingcal/models"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *GoogleProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	oauthCfg := &oauth2.Config{
		ClientID:     "client",
		ClientSecret: "secret",
		Endpoint: oauth2.Endpoint{
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	loc := time.FixedZone("America/Chicago", -5*3600)
	return NewGoogleProvider(oauthCfg, "primary", loc, 5*time.Second, WithCalendarEndpoint(srv.URL+"/"))
}

func testEvent() *models.CalendarEvent {
	start := time.Date(2025, time.June, 1, 9, 0, 0, 0, time.UTC)
	return &models.CalendarEvent{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Title:         "Closing - 123 Main St",
		Description:   "Closing for 123 Main St.",
		StartTime:     start,
		EndTime:       start.Add(3 * time.Hour),
		EventType:     models.CategoryClosing,
	}
}

func TestGoogleProviderCreateEvent(t *testing.T) {
	var got calendar.Event
	var auth, path string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"evt-123"}`))
	})

	event := testEvent()
	remoteID, err := provider.CreateEvent(context.Background(), "access-1", event)
	require.NoError(t, err)
	assert.Equal(t, "evt-123", remoteID)

	assert.Equal(t, "Bearer access-1", auth)
	assert.Equal(t, "/calendars/primary/events", path)
	assert.Equal(t, "Closing - 123 Main St", got.Summary)
	assert.Equal(t, "Closing for 123 Main St.", got.Description)
	require.NotNil(t, got.Start)
	assert.Equal(t, "2025-06-01T09:00:00Z", got.Start.DateTime)
	assert.Equal(t, "America/Chicago", got.Start.TimeZone)
	assert.Equal(t, "2025-06-01T12:00:00Z", got.End.DateTime)
	require.NotNil(t, got.ExtendedProperties)
	assert.Equal(t, event.TransactionID.String(), got.ExtendedProperties.Private[propTransactionID])
	assert.Equal(t, models.CategoryClosing, got.ExtendedProperties.Private[propCategory])
}

func TestGoogleProviderCreateEventRateLimited(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Rate Limit Exceeded","errors":[{"reason":"rateLimitExceeded","message":"Rate Limit Exceeded"}]}}`))
	})

	_, err := provider.CreateEvent(context.Background(), "access-1", testEvent())
	require.Error(t, err)
	assert.Equal(t, "rate_limited", describeProviderError(err))
	assert.True(t, strings.HasPrefix(pushFailureReason(err), "rate_limited: "))
}

func TestGoogleProviderCreateEventServerError(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := provider.CreateEvent(context.Background(), "access-1", testEvent())
	require.Error(t, err)
	assert.Equal(t, "server_error", describeProviderError(err))
}

func TestGoogleProviderCreateEventTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	t.Cleanup(srv.Close)

	provider := NewGoogleProvider(&oauth2.Config{}, "primary", time.UTC, 50*time.Millisecond, WithCalendarEndpoint(srv.URL+"/"))

	_, err := provider.CreateEvent(context.Background(), "access-1", testEvent())
	require.Error(t, err)
	assert.Equal(t, "timeout", describeProviderError(err))
}

func TestGoogleProviderDeleteEvent(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"deleted", http.StatusNoContent, false},
		{"already gone", http.StatusGone, false},
		{"not found", http.StatusNotFound, false},
		{"server error", http.StatusInternalServerError, true},
		{"unauthorized", http.StatusUnauthorized, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var method, path string
			provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
				method = r.Method
				path = r.URL.Path
				w.WriteHeader(tt.status)
			})

			err := provider.DeleteEvent(context.Background(), "access-1", "evt-9")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, http.MethodDelete, method)
			assert.Equal(t, "/calendars/primary/events/evt-9", path)
		})
	}
}

func TestGoogleProviderRefreshToken(t *testing.T) {
	var grantType, refreshToken string
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		grantType = r.PostForm.Get("grant_type")
		refreshToken = r.PostForm.Get("refresh_token")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new-access","token_type":"Bearer","expires_in":3600}`))
	})

	before := time.Now()
	token, err := provider.RefreshToken(context.Background(), "refresh-1")
	require.NoError(t, err)
	assert.Equal(t, "refresh_token", grantType)
	assert.Equal(t, "refresh-1", refreshToken)
	assert.Equal(t, "new-access", token.AccessToken)
	assert.True(t, token.Expiry.After(before.Add(50*time.Minute)))
}

func TestGoogleProviderRefreshTokenRejected(t *testing.T) {
	provider := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`))
	})

	_, err := provider.RefreshToken(context.Background(), "revoked")
	require.Error(t, err)

	var retrieveErr *oauth2.RetrieveError
	assert.ErrorAs(t, err, &retrieveErr)
}

func TestGoogleProviderRefreshTokenMissing(t *testing.T) {
	provider := NewGoogleProvider(&oauth2.Config{}, "", nil, time.Second)
	_, err := provider.RefreshToken(context.Background(), "")
	assert.Error(t, err)
}
