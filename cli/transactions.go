// ABOUTME: Transaction CLI commands
// ABOUTME: Human-friendly add/update/delete/list/show/resync that keep the calendar in step
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/closingcal/db"
	"github.com/harperreed/closingcal/handlers"
	"github.com/harperreed/closingcal/models"
	"github.com/harperreed/closingcal/sync"
)

// milestoneFlags binds one --flag per milestone date.
func milestoneFlags(fs *flag.FlagSet) *handlers.MilestoneDates {
	d := &handlers.MilestoneDates{}
	fs.StringVar(&d.OfferDate, "offer", "", "Offer date (YYYY-MM-DD)")
	fs.StringVar(&d.AcceptanceDate, "acceptance", "", "Acceptance date (YYYY-MM-DD)")
	fs.StringVar(&d.InspectionDate, "inspection", "", "Home inspection date (YYYY-MM-DD)")
	fs.StringVar(&d.InspectionDeadline, "inspection-deadline", "", "Inspection deadline (YYYY-MM-DD)")
	fs.StringVar(&d.AppraisalDate, "appraisal", "", "Appraisal date (YYYY-MM-DD)")
	fs.StringVar(&d.AppraisalDeadline, "appraisal-deadline", "", "Appraisal deadline (YYYY-MM-DD)")
	fs.StringVar(&d.FinancingDeadline, "financing-deadline", "", "Financing deadline (YYYY-MM-DD)")
	fs.StringVar(&d.TitleDeadline, "title-deadline", "", "Title deadline (YYYY-MM-DD)")
	fs.StringVar(&d.ClosingDate, "closing", "", "Closing date (YYYY-MM-DD)")
	fs.StringVar(&d.PossessionDate, "possession", "", "Possession date (YYYY-MM-DD)")
	return d
}

// TxnAddCommand creates a transaction and adds its milestones to the calendar.
func TxnAddCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	address := fs.String("address", "", "Property address (required)")
	buyer := fs.String("buyer", "", "Buyer name")
	seller := fs.String("seller", "", "Seller name")
	dates := milestoneFlags(fs)
	_ = fs.Parse(args)

	if *address == "" {
		return fmt.Errorf("--address is required")
	}

	h := handlers.NewTransactionHandlers(database, engine, engine.Config.UserID)
	_, out, err := h.CreateTransaction(context.Background(), nil, handlers.CreateTransactionInput{
		PropertyAddress: *address,
		BuyerName:       *buyer,
		SellerName:      *seller,
		MilestoneDates:  *dates,
	})
	if err != nil {
		return err
	}

	printSuccess("Transaction created: %s (ID: %s)", out.PropertyAddress, out.ID)
	printCalendar(out.Calendar)
	return nil
}

// TxnUpdateCommand edits a transaction and rebuilds its calendar events.
func TxnUpdateCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID (required)")
	address := fs.String("address", "", "New property address")
	buyer := fs.String("buyer", "", "New buyer name")
	seller := fs.String("seller", "", "New seller name")
	clearList := fs.String("clear", "", "Comma-separated milestone categories to remove (e.g. inspection,appraisal)")
	dates := milestoneFlags(fs)
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	var clearDates []string
	for _, c := range strings.Split(*clearList, ",") {
		if c = strings.TrimSpace(c); c != "" {
			clearDates = append(clearDates, c)
		}
	}

	h := handlers.NewTransactionHandlers(database, engine, engine.Config.UserID)
	_, out, err := h.UpdateTransaction(context.Background(), nil, handlers.UpdateTransactionInput{
		ID:              *id,
		PropertyAddress: *address,
		BuyerName:       *buyer,
		SellerName:      *seller,
		ClearDates:      clearDates,
		MilestoneDates:  *dates,
	})
	if err != nil {
		return err
	}

	printSuccess("Transaction updated: %s", out.PropertyAddress)
	printCalendar(out.Calendar)
	return nil
}

// TxnDeleteCommand removes a transaction and its calendar events.
func TxnDeleteCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	h := handlers.NewTransactionHandlers(database, engine, engine.Config.UserID)
	_, out, err := h.DeleteTransaction(context.Background(), nil, handlers.TransactionIDInput{ID: *id})
	if err != nil {
		return err
	}

	printSuccess("Transaction deleted: %s", out.ID)
	fmt.Printf("  Calendar: %s\n", out.Calendar.Message)
	return nil
}

// TxnResyncCommand rebuilds a transaction's calendar events from its current dates.
func TxnResyncCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("resync", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}

	h := handlers.NewTransactionHandlers(database, engine, engine.Config.UserID)
	_, out, err := h.ResyncTransactionCalendar(context.Background(), nil, handlers.TransactionIDInput{ID: *id})
	if err != nil {
		return err
	}

	printSuccess("Calendar resynced for %s", out.PropertyAddress)
	printCalendar(out.Calendar)
	return nil
}

// TxnListCommand lists the user's transactions.
func TxnListCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	transactions, err := db.ListTransactions(database, engine.Config.UserID, *limit)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}

	if len(transactions) == 0 {
		fmt.Println("No transactions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tADDRESS\tBUYER\tCLOSING")
	_, _ = fmt.Fprintln(w, "--\t-------\t-----\t-------")
	for _, tx := range transactions {
		closing := "-"
		if tx.ClosingDate != nil {
			closing = tx.ClosingDate.Format("2006-01-02")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", tx.ID.String()[:8], tx.PropertyAddress, tx.BuyerName, closing)
	}
	_ = w.Flush()

	fmt.Printf("\nTotal: %d transaction(s)\n", len(transactions))
	return nil
}

// TxnShowCommand prints a transaction with its sync state and events.
func TxnShowCommand(database *sql.DB, engine *sync.Engine, args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	id := fs.String("id", "", "Transaction ID (required)")
	_ = fs.Parse(args)

	tx, err := lookupTransaction(database, engine.Config.UserID, *id)
	if err != nil {
		return err
	}

	ctx := context.Background()
	fmt.Printf("%s (ID: %s)\n", tx.PropertyAddress, tx.ID)
	if tx.BuyerName != "" {
		fmt.Printf("  Buyer: %s\n", tx.BuyerName)
	}
	if tx.SellerName != "" {
		fmt.Printf("  Seller: %s\n", tx.SellerName)
	}
	for _, category := range models.MilestoneCategories {
		if d := tx.MilestoneDate(category); d != nil {
			fmt.Printf("  %-20s %s\n", category+":", d.Format("2006-01-02"))
		}
	}

	state, err := engine.Repo.GetTransactionSyncState(ctx, tx.ID)
	if err != nil {
		return err
	}
	fmt.Println()
	if state == nil {
		fmt.Println("Sync: never synced")
	} else {
		fmt.Printf("Sync: %s", state.Status)
		if state.LastSyncTime != nil {
			fmt.Printf(" (last %s, %d events, %d push failures)", state.LastSyncTime.Local().Format(time.RFC822), state.EventsCreated, state.PushFailures)
		}
		fmt.Println()
		if state.Warning != "" {
			printWarning("%s", state.Warning)
		}
		if state.ErrorMessage != "" {
			printWarning("last error: %s", state.ErrorMessage)
		}
	}

	events, err := engine.Repo.ListTransactionEvents(ctx, tx.ID)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	fmt.Println()
	printEvents(events, engine.Location)
	return nil
}

func printEvents(events []models.CalendarEvent, loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "WHEN\tTITLE\tSTATUS")
	_, _ = fmt.Fprintln(w, "----\t-----\t------")
	for _, e := range events {
		status := statusLabel(e.PushStatus)
		if e.PushError != "" {
			status += " " + mutedStyle.Render("("+e.PushError+")")
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.StartTime.In(loc).Format("Mon Jan 2 15:04"), e.Title, status)
	}
	_ = w.Flush()
}

// lookupTransaction resolves an ID flag to a transaction owned by userID.
func lookupTransaction(database *sql.DB, userID, id string) (*models.Transaction, error) {
	if id == "" {
		return nil, fmt.Errorf("--id is required")
	}
	txID, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid transaction ID: %w", err)
	}
	tx, err := db.GetTransaction(database, txID)
	if err != nil {
		return nil, err
	}
	if tx.UserID != userID {
		return nil, db.ErrTransactionNotFound
	}
	return tx, nil
}
