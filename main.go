// ABOUTME: Entry point for the closingcal MCP server and CLI
// ABOUTME: Loads config, opens the database, builds the sync engine and routes commands
package main

import (
	"database/sql"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/harperreed/closingcal/cli"
	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/sync"
)

const version = "0.1.0"

type command func(database *sql.DB, engine *sync.Engine, args []string) error

var txnCommands = map[string]command{
	"add":    cli.TxnAddCommand,
	"update": cli.TxnUpdateCommand,
	"delete": cli.TxnDeleteCommand,
	"resync": cli.TxnResyncCommand,
	"list":   cli.TxnListCommand,
	"show":   cli.TxnShowCommand,
}

var calendarCommands = map[string]command{
	"connect":    cli.CalendarConnectCommand,
	"status":     cli.CalendarStatusCommand,
	"disconnect": cli.CalendarDisconnectCommand,
	"events":     cli.CalendarEventsCommand,
	"export":     cli.CalendarExportCommand,
}

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/closingcal/closingcal.db)")
	configPath := flag.String("config", "", "Config file (default: ~/.config/closingcal/config.toml)")
	initOnly := flag.Bool("init", false, "Initialize database and exit")
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("closingcal version %s\n", version)
		os.Exit(0)
	}

	// .env is optional
	_ = godotenv.Load()

	if *configPath == "" {
		*configPath = sync.ConfigPath()
	}
	cfg, err := sync.LoadConfig(*configPath)
	if err != nil {
		log.Fatal("failed to load config", "path", *configPath, "err", err)
	}

	logger := sync.NewLogger(os.Stderr, cfg.LogLevel)

	finalDBPath := getDatabasePath(*dbPath)
	database, err := db.OpenDatabase(finalDBPath)
	if err != nil {
		logger.Fatal("failed to open database", "path", finalDBPath, "err", err)
	}
	defer func() { _ = database.Close() }()
	logger.Debug("database opened", "path", finalDBPath)

	if *initOnly {
		logger.Info("database initialized", "path", finalDBPath)
		return
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		return
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	engine, err := sync.NewEngine(database, cfg, logger, sync.NewMetrics(registry))
	if err != nil {
		logger.Fatal("failed to build sync engine", "err", err)
	}

	cmd, cmdArgs := args[0], args[1:]
	switch cmd {
	case "mcp":
		if err := cli.MCPCommand(database, engine, registry, cmdArgs); err != nil {
			logger.Fatal("MCP server failed", "err", err)
		}

	case "serve":
		if err := cli.ServeCommand(database, engine, registry, cmdArgs); err != nil {
			logger.Fatal("feed server failed", "err", err)
		}

	case "txn":
		runSubcommand(logger, "txn", txnCommands, database, engine, cmdArgs)

	case "calendar":
		runSubcommand(logger, "calendar", calendarCommands, database, engine, cmdArgs)

	default:
		fmt.Printf("Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func runSubcommand(logger *log.Logger, group string, commands map[string]command, database *sql.DB, engine *sync.Engine, args []string) {
	if len(args) == 0 {
		fmt.Printf("Error: %s requires a subcommand\n\n", group)
		printUsage()
		os.Exit(1)
	}

	run, ok := commands[args[0]]
	if !ok {
		fmt.Printf("Unknown %s command: %s\n\n", group, args[0])
		printUsage()
		os.Exit(1)
	}

	if err := run(database, engine, args[1:]); err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

func getDatabasePath(dbPath string) string {
	if dbPath != "" {
		return dbPath
	}
	return filepath.Join(xdg.DataHome, "closingcal", "closingcal.db")
}

func printUsage() {
	fmt.Printf(`closingcal v%s - Transaction milestones on your calendar

USAGE:
  closingcal [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --db-path <path>       Database path (default: ~/.local/share/closingcal/closingcal.db)
  --config <path>        Config file (default: ~/.config/closingcal/config.toml)
  --init                 Initialize database and exit

COMMANDS:
  mcp                    Start MCP server for Claude Desktop
  serve                  Serve .ics subscription feeds
  txn                    Transaction commands
  calendar               Calendar connection commands

MCP SERVER:
  closingcal mcp
    --metrics-addr <addr>     Also serve Prometheus metrics (e.g. :9090)

FEED SERVER:
  closingcal serve
    --addr <addr>             Listen address (default: 127.0.0.1:8765)
    Feeds: /calendar.ics, /transactions/<id>/calendar.ics, /metrics

TRANSACTION COMMANDS:
  closingcal txn add        Add a transaction and sync its milestones
    --address <addr>          Property address (required)
    --buyer <name>            Buyer name
    --seller <name>           Seller name
    --offer, --acceptance, --inspection, --inspection-deadline,
    --appraisal, --appraisal-deadline, --financing-deadline,
    --title-deadline, --closing, --possession <YYYY-MM-DD>

  closingcal txn update     Update a transaction and rebuild its events
    --id <id>                 Transaction ID (required)
    --clear <categories>      Comma-separated dates to remove
    (plus any flag accepted by 'txn add')

  closingcal txn delete     Delete a transaction and its events
    --id <id>                 Transaction ID (required)

  closingcal txn resync     Rebuild a transaction's events
    --id <id>                 Transaction ID (required)

  closingcal txn list       List transactions
    --limit <n>               Max results (default: 50)

  closingcal txn show       Show a transaction, its sync state and events
    --id <id>                 Transaction ID (required)

CALENDAR COMMANDS:
  closingcal calendar connect      Connect Google Calendar via OAuth
    --no-browser                   Print the URL only
  closingcal calendar status       Show connection state
  closingcal calendar disconnect   Deactivate the connection
  closingcal calendar events       List stored events
    --transaction <id>             Only this transaction
    --unsynced                     Only events not in Google yet
  closingcal calendar export       Write a transaction's events as .ics
    --id <id>                      Transaction ID (required)
    --output <file>                Output file (default: stdout)

ENVIRONMENT:
  GOOGLE_CLIENT_ID, GOOGLE_CLIENT_SECRET   OAuth client (or set in config.toml)
  CLOSINGCAL_USER_ID, CLOSINGCAL_TIMEZONE, CLOSINGCAL_CALENDAR_ID, CLOSINGCAL_LOG_LEVEL

EXAMPLES:
  # Connect Google Calendar
  closingcal calendar connect

  # Add a transaction
  closingcal txn add --address "123 Main St" --buyer "Alice" --closing 2025-06-20 --inspection 2025-05-10

  # Move the closing date
  closingcal txn update --id <id> --closing 2025-06-27

`, version)
}
