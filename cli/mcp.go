// ABOUTME: MCP server subcommand
// ABOUTME: Registers transaction tools, resources and prompts and serves them on stdio
package cli

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/harperreed/closingcal/handlers"
	"github.com/harperreed/closingcal/sync"
)

// Version is reported to MCP clients.
var Version = "0.1.0"

// NewMCPServer builds the MCP server with every tool, resource and prompt registered.
func NewMCPServer(database *sql.DB, engine *sync.Engine) *mcp.Server {
	userID := engine.Config.UserID
	txHandlers := handlers.NewTransactionHandlers(database, engine, userID)
	resourceHandlers := handlers.NewResourceHandlers(database, engine, userID)
	promptHandlers := handlers.NewPromptHandlers(txHandlers)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "closingcal",
		Version: Version,
	}, nil)

	// Tools
	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_transaction",
		Description: "Create a real-estate transaction and add its milestone dates to the calendar",
	}, txHandlers.CreateTransaction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_transaction",
		Description: "Update a transaction's details or milestone dates and rebuild its calendar events",
	}, txHandlers.UpdateTransaction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_transaction",
		Description: "Delete a transaction and remove its events from the calendar",
	}, txHandlers.DeleteTransaction)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resync_transaction_calendar",
		Description: "Rebuild a transaction's calendar events from its current dates, e.g. after reconnecting Google Calendar",
	}, txHandlers.ResyncTransactionCalendar)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_transactions",
		Description: "List transactions, most recently updated first",
	}, txHandlers.ListTransactions)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_transaction_events",
		Description: "List calendar events for a transaction or for all transactions, optionally only those not yet in Google Calendar",
	}, txHandlers.ListTransactionEvents)

	// Resources
	server.AddResource(&mcp.Resource{
		URI:         "closingcal://transactions",
		Name:        "transactions",
		Description: "All transactions",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "closingcal://calendar/status",
		Name:        "calendar-status",
		Description: "Google Calendar connection state",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "closingcal://transactions/{id}",
		Name:        "transaction",
		Description: "A transaction with its calendar sync state",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "closingcal://transactions/{id}/events",
		Name:        "transaction-events",
		Description: "Calendar events for a transaction",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "closingcal://transactions/{id}/calendar.ics",
		Name:        "transaction-ics",
		Description: "A transaction's calendar events as iCalendar",
		MIMEType:    "text/calendar",
	}, resourceHandlers.ReadResource)

	// Prompts
	server.AddPrompt(&mcp.Prompt{
		Name:        "closing-checklist",
		Description: "Review a transaction's upcoming milestones and calendar sync health",
		Arguments: []*mcp.PromptArgument{
			{Name: "transaction_id", Description: "Transaction ID", Required: true},
		},
	}, promptHandlers.GetPrompt)

	return server
}

// MCPCommand starts the MCP server on stdio
func MCPCommand(database *sql.DB, engine *sync.Engine, registry *prometheus.Registry, args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	_ = fs.Parse(args)

	logger := engine.Logger
	logger.Info("starting MCP server", "user", engine.Config.UserID, "calendar", engine.Config.CalendarID)

	if *metricsAddr != "" && registry != nil {
		metricsServer := &http.Server{
			Addr:              *metricsAddr,
			Handler:           sync.Handler(registry),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer func() { _ = metricsServer.Shutdown(context.Background()) }()
		logger.Info("serving metrics", "addr", *metricsAddr)
	}

	server := NewMCPServer(database, engine)
	return server.Run(context.Background(), &mcp.StdioTransport{})
}
