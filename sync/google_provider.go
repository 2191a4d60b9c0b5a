// ABOUTME: Google Calendar implementation of the provider client
// ABOUTME: Inserts and deletes events with a bearer token and refreshes tokens via the OAuth endpoint
package sync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/harperreed/closingcal/models"
)

// Private extended properties tagging events created by this engine.
const (
	propTransactionID = "closingcal_transaction_id"
	propCategory      = "closingcal_category"
)

// GoogleProvider talks to a single Google calendar.
type GoogleProvider struct {
	oauth      *oauth2.Config
	calendarID string
	timezone   string
	httpClient *http.Client
	endpoint   string
}

type GoogleProviderOption func(*GoogleProvider)

// WithCalendarEndpoint points the Calendar API at another base URL.
func WithCalendarEndpoint(endpoint string) GoogleProviderOption {
	return func(p *GoogleProvider) {
		p.endpoint = endpoint
	}
}

// WithHTTPClient replaces the timeout-bounded default client.
func WithHTTPClient(client *http.Client) GoogleProviderOption {
	return func(p *GoogleProvider) {
		p.httpClient = client
	}
}

func NewGoogleProvider(oauthCfg *oauth2.Config, calendarID string, loc *time.Location, timeout time.Duration, opts ...GoogleProviderOption) *GoogleProvider {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	if loc == nil {
		loc = time.UTC
	}

	p := &GoogleProvider{
		oauth:      oauthCfg,
		calendarID: calendarID,
		timezone:   loc.String(),
		httpClient: NewHTTPClient(timeout),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *GoogleProvider) service(ctx context.Context, accessToken string) (*calendar.Service, error) {
	client := &http.Client{
		Timeout: p.httpClient.Timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}),
			Base:   p.httpClient.Transport,
		},
	}

	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if p.endpoint != "" {
		opts = append(opts, option.WithEndpoint(p.endpoint))
	}

	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// CreateEvent inserts the event and returns the remote id.
func (p *GoogleProvider) CreateEvent(ctx context.Context, accessToken string, event *models.CalendarEvent) (string, error) {
	service, err := p.service(ctx, accessToken)
	if err != nil {
		return "", err
	}

	payload := &calendar.Event{
		Summary:     event.Title,
		Description: event.Description,
		Start: &calendar.EventDateTime{
			DateTime: event.StartTime.Format(time.RFC3339),
			TimeZone: p.timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: event.EndTime.Format(time.RFC3339),
			TimeZone: p.timezone,
		},
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				propTransactionID: event.TransactionID.String(),
				propCategory:      event.EventType,
			},
		},
	}

	created, err := service.Events.Insert(p.calendarID, payload).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to create provider event: %w", err)
	}
	if created.Id == "" {
		return "", fmt.Errorf("provider returned event without id")
	}

	return created.Id, nil
}

// DeleteEvent removes a remote event. An event that is already gone counts as deleted.
func (p *GoogleProvider) DeleteEvent(ctx context.Context, accessToken, remoteID string) error {
	service, err := p.service(ctx, accessToken)
	if err != nil {
		return err
	}

	err = service.Events.Delete(p.calendarID, remoteID).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && (apiErr.Code == http.StatusGone || apiErr.Code == http.StatusNotFound) {
			return nil
		}
		return fmt.Errorf("failed to delete provider event %s: %w", remoteID, err)
	}

	return nil
}

// RefreshToken exchanges refreshToken at the OAuth token endpoint.
func (p *GoogleProvider) RefreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token stored")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		return nil, fmt.Errorf("failed to refresh token: %w", err)
	}

	return token, nil
}

// Exchange trades an authorization code for a token during connect.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange code: %w", err)
	}
	return token, nil
}
