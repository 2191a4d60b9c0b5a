// ABOUTME: OAuth configuration for Google Calendar access
// ABOUTME: Builds the oauth2 config from engine settings with the calendar events scope
package sync

import (
	"fmt"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// NewOAuthConfig creates the OAuth2 config used for connect and refresh.
func NewOAuthConfig(cfg *Config) *oauth2.Config {
	redirect := cfg.RedirectURL
	if redirect == "" {
		redirect = DefaultRedirectURL
	}

	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  redirect,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

// RequireOAuth returns an error when client credentials are missing.
func RequireOAuth(cfg *Config) error {
	if !cfg.IsOAuthConfigured() {
		return fmt.Errorf("google OAuth credentials not configured. Set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET environment variables or client_id/client_secret in %s", ConfigPath())
	}
	return nil
}
