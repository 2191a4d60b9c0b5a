// ABOUTME: Turns milestones into local calendar event drafts
// ABOUTME: Fixed 09:00-10:00 window in the configured zone, closing runs until noon
package sync

import (
	"time"

	"github.com/google/uuid"

	"github.com/harperreed/closingcal/models"
)

const (
	eventStartHour = 9
	eventEndHour   = 10
	closingEndHour = 12
)

// Materializer places milestone dates on the wall clock of a location.
type Materializer struct {
	loc *time.Location
}

func NewMaterializer(loc *time.Location) *Materializer {
	if loc == nil {
		loc = time.UTC
	}
	return &Materializer{loc: loc}
}

// Materialize builds an unsaved local event for a milestone. Provider fields stay empty.
func (m *Materializer) Materialize(milestone models.Milestone, userID string, transactionID uuid.UUID) *models.CalendarEvent {
	y, mo, d := milestone.Date.Date()

	endHour := eventEndHour
	if milestone.Category == models.CategoryClosing {
		endHour = closingEndHour
	}

	return &models.CalendarEvent{
		UserID:        userID,
		TransactionID: transactionID,
		Title:         milestone.Title,
		Description:   milestone.Description,
		StartTime:     time.Date(y, mo, d, eventStartHour, 0, 0, 0, m.loc),
		EndTime:       time.Date(y, mo, d, endHour, 0, 0, 0, m.loc),
		EventType:     milestone.Category,
		PushStatus:    models.PushStatusNotAttempted,
	}
}
