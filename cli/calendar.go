// ABOUTME: Calendar connection CLI commands
// ABOUTME: Handles Google OAuth connect, status, disconnect, event listing and iCalendar export
package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/handlers"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

// CalendarConnectCommand runs the OAuth flow and stores the resulting connection.
func CalendarConnectCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("connect", flag.ExitOnError)
	noBrowser := fs.Bool("no-browser", false, "Print the URL instead of opening a browser")
	timeout := fs.Duration("timeout", 5*time.Minute, "How long to wait for the OAuth callback")
	_ = fs.Parse(args)

	if err := sync.RequireOAuth(engine.Config); err != nil {
		return err
	}

	redirect, err := url.Parse(engine.OAuth.RedirectURL)
	if err != nil {
		return fmt.Errorf("invalid redirect_url: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	state := ulid.Make().String()
	callbackChan := make(chan *oauth2.Token, 1)
	errChan := make(chan error, 1)

	fail := func(err error) {
		select {
		case errChan <- err:
		default:
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc(redirect.Path, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != state {
			http.Error(w, "state mismatch", http.StatusBadRequest)
			fail(fmt.Errorf("OAuth state mismatch"))
			return
		}
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "missing code", http.StatusBadRequest)
			fail(fmt.Errorf("no authorization code received"))
			return
		}

		token, err := engine.Provider.Exchange(ctx, code)
		if err != nil {
			http.Error(w, "exchange failed", http.StatusBadGateway)
			fail(err)
			return
		}

		select {
		case callbackChan <- token:
		default:
		}
		_, _ = fmt.Fprintf(w, "Calendar connected! You can close this window.")
	})

	server := &http.Server{Addr: redirect.Host, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fail(err)
		}
	}()
	defer func() { _ = server.Shutdown(context.Background()) }()

	authURL := engine.OAuth.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)

	fmt.Println("Opening browser for Google Calendar authorization...")
	fmt.Printf("\nIf browser doesn't open, visit this URL:\n%s\n\n", authURL)
	if !*noBrowser {
		_ = openBrowser(authURL)
	}

	select {
	case token := <-callbackChan:
		conn := &models.CalendarConnection{
			UserID:       engine.Config.UserID,
			Provider:     models.ProviderGoogle,
			AccessToken:  token.AccessToken,
			RefreshToken: token.RefreshToken,
			TokenExpiry:  token.Expiry,
		}
		if err := engine.Repo.SaveConnection(ctx, conn); err != nil {
			return fmt.Errorf("failed to save calendar connection: %w", err)
		}

		fmt.Println()
		printSuccess("Authenticated successfully")
		printSuccess("Google Calendar connected for user %s", conn.UserID)
		if conn.RefreshToken == "" {
			printWarning("No refresh token was issued; you will need to reconnect when the access token expires")
		}
		fmt.Println("\nNew transactions will now be added to your calendar. Run 'closingcal txn resync --id <id>' for existing ones.")
		return nil

	case err := <-errChan:
		return fmt.Errorf("OAuth flow failed: %w", err)

	case <-ctx.Done():
		return fmt.Errorf("OAuth flow timed out after %s", *timeout)
	}
}

// CalendarStatusCommand reports whether the calendar connection is usable.
func CalendarStatusCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	_ = fs.Parse(args)

	status, err := handlers.ConnectionStatus(context.Background(), engine.Repo, engine.Config.UserID)
	if err != nil {
		return err
	}

	switch status.State {
	case models.ProviderStateConnected:
		printSuccess("Google Calendar connected (calendar: %s)", engine.Config.CalendarID)
		fmt.Printf("  Token expires: %s\n", status.TokenExpiry)
	case models.ProviderStateReauthRequired:
		printWarning("Google Calendar needs to be reconnected. Run 'closingcal calendar connect'.")
	default:
		fmt.Println("Google Calendar not connected. Events are stored locally only.")
		fmt.Println("Run 'closingcal calendar connect' to connect.")
	}
	return nil
}

// CalendarDisconnectCommand deactivates the user's calendar connection.
func CalendarDisconnectCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("disconnect", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx := context.Background()
	conn, err := engine.Repo.GetActiveConnection(ctx, engine.Config.UserID, models.ProviderGoogle)
	if errors.Is(err, db.ErrConnectionNotFound) {
		fmt.Println("No active calendar connection")
		return nil
	}
	if err != nil {
		return err
	}

	if err := engine.Repo.DeactivateConnection(ctx, conn.ID); err != nil {
		return fmt.Errorf("failed to disconnect: %w", err)
	}
	printSuccess("Google Calendar disconnected")
	return nil
}

// CalendarEventsCommand lists stored calendar events.
func CalendarEventsCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	txID := fs.String("transaction", "", "Only events for this transaction ID")
	unsynced := fs.Bool("unsynced", false, "Only events not yet pushed to Google")
	limit := fs.Int("limit", 100, "Maximum results")
	_ = fs.Parse(args)

	ctx := context.Background()
	var events []models.CalendarEvent
	if *txID != "" {
		tx, err := lookupTransaction(database, engine.Config.UserID, *txID)
		if err != nil {
			return err
		}
		all, err := engine.Repo.ListTransactionEvents(ctx, tx.ID)
		if err != nil {
			return err
		}
		for _, e := range all {
			if !*unsynced || e.PushStatus != models.PushStatusSynced {
				events = append(events, e)
			}
		}
	} else {
		var err error
		events, err = engine.Repo.ListUserEvents(ctx, engine.Config.UserID, *unsynced, *limit)
		if err != nil {
			return err
		}
	}

	if len(events) == 0 {
		fmt.Println("No calendar events found")
		return nil
	}

	printEvents(events, engine.Location)
	fmt.Printf("\nTotal: %d event(s)\n", len(events))
	return nil
}

// CalendarExportCommand writes a transaction's events as an iCalendar file.
func CalendarExportCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID (required)")
	output := fs.String("output", "", "Output file (default stdout)")
	_ = fs.Parse(args)

	tx, err := lookupTransaction(database, engine.Config.UserID, *id)
	if err != nil {
		return err
	}

	events, err := engine.Repo.ListTransactionEvents(context.Background(), tx.ID)
	if err != nil {
		return err
	}

	if *output == "" {
		return sync.ExportICS(os.Stdout, tx, events)
	}

	f, err := os.Create(*output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if err := sync.ExportICS(f, tx, events); err != nil {
		return err
	}
	printSuccess("Exported %d events to %s", len(events), *output)
	return nil
}

// openBrowser attempts to open URL in default browser
func openBrowser(target string) error {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{target}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", target}
	default:
		cmd = "xdg-open"
		args = []string{target}
	}

	return exec.Command(cmd, args...).Start()
}
