// ABOUTME: iCalendar export of a transaction's local calendar events
// ABOUTME: Single-transaction export and a merged feed for calendar subscriptions
package sync

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"github.com/harperreed/closingcal/models"
)

const icsProductID = "-//closingcal//transaction milestones//EN"

// BuildICS creates a calendar holding one VEVENT per local event.
func BuildICS(tx *models.Transaction, events []models.CalendarEvent) *ics.Calendar {
	cal := newCalendar(tx.PropertyAddress)
	addEvents(cal, tx, events)
	return cal
}

// BuildFeed merges several transactions into one subscribable calendar.
// eventsByTx is keyed by transaction id; transactions without events are skipped.
func BuildFeed(name string, txs []models.Transaction, eventsByTx map[uuid.UUID][]models.CalendarEvent) *ics.Calendar {
	cal := newCalendar(name)
	for i := range txs {
		addEvents(cal, &txs[i], eventsByTx[txs[i].ID])
	}
	return cal
}

func newCalendar(name string) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(icsProductID)
	cal.SetName(name)
	cal.SetXWRCalName(name)
	return cal
}

func addEvents(cal *ics.Calendar, tx *models.Transaction, events []models.CalendarEvent) {
	stamp := time.Now()
	for _, event := range events {
		vevent := cal.AddEvent(event.ID.String() + "@closingcal")
		vevent.SetSummary(event.Title)
		if event.Description != "" {
			vevent.SetDescription(event.Description)
		}
		vevent.SetStartAt(event.StartTime)
		vevent.SetEndAt(event.EndTime)
		if !event.CreatedAt.IsZero() {
			vevent.SetCreatedTime(event.CreatedAt)
		}
		vevent.SetDtStampTime(stamp)
		vevent.AddCategory(event.EventType)
		vevent.SetLocation(tx.PropertyAddress)
	}
}

// ExportICS writes the transaction's events as an .ics document.
func ExportICS(w io.Writer, tx *models.Transaction, events []models.CalendarEvent) error {
	if err := BuildICS(tx, events).SerializeTo(w); err != nil {
		return fmt.Errorf("failed to write ics: %w", err)
	}
	return nil
}
