// ABOUTME: Calendar provider contracts used by the sync orchestrator and credential manager
// ABOUTME: Also classifies provider errors into short reasons for logs, metrics and push outcomes
package sync

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"

	"github.com/harperreed/closingcal/models"
)

// Provider creates and deletes remote calendar events. One request per call, no retries.
type Provider interface {
	CreateEvent(ctx context.Context, accessToken string, event *models.CalendarEvent) (string, error)
	DeleteEvent(ctx context.Context, accessToken, remoteID string) error
}

// TokenRefresher exchanges a refresh token for a new access token.
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// NewHTTPClient returns a client whose every request is bounded by timeout.
func NewHTTPClient(timeout time.Duration) *http.Client {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 60 * time.Second}).DialContext,
		MaxIdleConns:        20,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	return &http.Client{Timeout: timeout, Transport: tr}
}

// describeProviderError maps an error to a short class such as "rate_limited".
func describeProviderError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests:
			return "rate_limited"
		case apiErr.Code == http.StatusForbidden && hasRateLimitReason(apiErr):
			return "rate_limited"
		case apiErr.Code == http.StatusUnauthorized:
			return "unauthorized"
		case apiErr.Code >= 500:
			return "server_error"
		case apiErr.Code >= 400:
			return "invalid_request"
		}
	}

	return "error"
}

func hasRateLimitReason(apiErr *googleapi.Error) bool {
	for _, item := range apiErr.Errors {
		if item.Reason == "rateLimitExceeded" || item.Reason == "userRateLimitExceeded" {
			return true
		}
	}
	return false
}

// pushFailureReason is the text stored on a failed local event.
func pushFailureReason(err error) string {
	return describeProviderError(err) + ": " + err.Error()
}
