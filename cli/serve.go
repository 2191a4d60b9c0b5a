// ABOUTME: Feed server subcommand
// ABOUTME: Serves .ics subscription feeds and metrics until interrupted
package cli

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/harperreed/closingcal/sync"
	"github.com/harperreed/closingcal/web"
)

// ServeCommand runs the read-only calendar feed server.
func ServeCommand(database *sql.DB, engine *sync.Engine, registry *prometheus.Registry, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8765", "Listen address")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var gatherer prometheus.Gatherer
	if registry != nil {
		gatherer = registry
	}

	printSuccess("Subscribe to http://%s/calendar.ics from your calendar app", *addr)
	return web.NewServer(database, engine, gatherer).Start(ctx, *addr)
}
