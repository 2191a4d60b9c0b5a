// ABOUTME: Data models for transactions, milestones, and calendar sync entities
// ABOUTME: Defines Transaction, Milestone, CalendarEvent, CalendarConnection, and push outcomes
package models

import (
	"time"

	"github.com/google/uuid"
)

// Transaction is a real-estate transaction with up to ten optional milestone dates.
// Dates carry no time-of-day; only the calendar date is meaningful.
type Transaction struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             string     `json:"user_id"`
	PropertyAddress    string     `json:"property_address"`
	BuyerName          string     `json:"buyer_name,omitempty"`
	SellerName         string     `json:"seller_name,omitempty"`
	OfferDate          *time.Time `json:"offer_date,omitempty"`
	AcceptanceDate     *time.Time `json:"acceptance_date,omitempty"`
	InspectionDate     *time.Time `json:"inspection_date,omitempty"`
	InspectionDeadline *time.Time `json:"inspection_deadline,omitempty"`
	AppraisalDate      *time.Time `json:"appraisal_date,omitempty"`
	AppraisalDeadline  *time.Time `json:"appraisal_deadline,omitempty"`
	FinancingDeadline  *time.Time `json:"financing_deadline,omitempty"`
	TitleDeadline      *time.Time `json:"title_deadline,omitempty"`
	ClosingDate        *time.Time `json:"closing_date,omitempty"`
	PossessionDate     *time.Time `json:"possession_date,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Milestone categories, in the order events are produced.
const (
	CategoryOffer              = "offer"
	CategoryAcceptance         = "acceptance"
	CategoryInspection         = "inspection"
	CategoryInspectionDeadline = "inspection_deadline"
	CategoryAppraisal          = "appraisal"
	CategoryAppraisalDeadline  = "appraisal_deadline"
	CategoryFinancingDeadline  = "financing_deadline"
	CategoryTitleDeadline      = "title_deadline"
	CategoryClosing            = "closing"
	CategoryPossession         = "possession"
)

// MilestoneCategories lists every category in extraction order.
var MilestoneCategories = []string{
	CategoryOffer,
	CategoryAcceptance,
	CategoryInspection,
	CategoryInspectionDeadline,
	CategoryAppraisal,
	CategoryAppraisalDeadline,
	CategoryFinancingDeadline,
	CategoryTitleDeadline,
	CategoryClosing,
	CategoryPossession,
}

// MilestoneDate returns the transaction's date for a category, or nil.
func (t *Transaction) MilestoneDate(category string) *time.Time {
	switch category {
	case CategoryOffer:
		return t.OfferDate
	case CategoryAcceptance:
		return t.AcceptanceDate
	case CategoryInspection:
		return t.InspectionDate
	case CategoryInspectionDeadline:
		return t.InspectionDeadline
	case CategoryAppraisal:
		return t.AppraisalDate
	case CategoryAppraisalDeadline:
		return t.AppraisalDeadline
	case CategoryFinancingDeadline:
		return t.FinancingDeadline
	case CategoryTitleDeadline:
		return t.TitleDeadline
	case CategoryClosing:
		return t.ClosingDate
	case CategoryPossession:
		return t.PossessionDate
	}
	return nil
}

// SetMilestoneDate assigns the date field for a category. Unknown categories are ignored.
func (t *Transaction) SetMilestoneDate(category string, date *time.Time) {
	switch category {
	case CategoryOffer:
		t.OfferDate = date
	case CategoryAcceptance:
		t.AcceptanceDate = date
	case CategoryInspection:
		t.InspectionDate = date
	case CategoryInspectionDeadline:
		t.InspectionDeadline = date
	case CategoryAppraisal:
		t.AppraisalDate = date
	case CategoryAppraisalDeadline:
		t.AppraisalDeadline = date
	case CategoryFinancingDeadline:
		t.FinancingDeadline = date
	case CategoryTitleDeadline:
		t.TitleDeadline = date
	case CategoryClosing:
		t.ClosingDate = date
	case CategoryPossession:
		t.PossessionDate = date
	}
}

// Milestone is a single named date derived from a transaction. Never persisted.
type Milestone struct {
	Date        time.Time `json:"date"`
	Category    string    `json:"category"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// Push status constants.
const (
	PushStatusSynced       = "synced"
	PushStatusNotAttempted = "not_attempted"
	PushStatusFailed       = "failed"
)

// PushOutcome is the provider-side result attached to a local event.
// Exactly one of RemoteID (synced) or Reason (failed) is set.
type PushOutcome struct {
	Status   string `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func Synced(remoteID string) PushOutcome {
	return PushOutcome{Status: PushStatusSynced, RemoteID: remoteID}
}

func NotAttempted() PushOutcome {
	return PushOutcome{Status: PushStatusNotAttempted}
}

func Failed(reason string) PushOutcome {
	return PushOutcome{Status: PushStatusFailed, Reason: reason}
}

// CalendarEvent is a local calendar event owned by exactly one transaction.
type CalendarEvent struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Title         string    `json:"title"`
	Description   string    `json:"description,omitempty"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	EventType     string    `json:"event_type"`
	RemoteEventID *string   `json:"remote_event_id,omitempty"`
	PushStatus    string    `json:"push_status"`
	PushError     string    `json:"push_error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Outcome reconstructs the push outcome from the persisted columns.
func (e *CalendarEvent) Outcome() PushOutcome {
	switch e.PushStatus {
	case PushStatusSynced:
		if e.RemoteEventID != nil {
			return Synced(*e.RemoteEventID)
		}
	case PushStatusFailed:
		return Failed(e.PushError)
	}
	return NotAttempted()
}

// ProviderGoogle is the only supported calendar provider.
const ProviderGoogle = "google"

// CalendarConnection holds a user's OAuth grant for a calendar provider.
// Deactivated, never deleted, when the refresh token stops working.
type CalendarConnection struct {
	ID           uuid.UUID `json:"id"`
	UserID       string    `json:"user_id"`
	Provider     string    `json:"provider"`
	AccessToken  string    `json:"-"`
	RefreshToken string    `json:"-"`
	TokenExpiry  time.Time `json:"token_expiry"`
	Active       bool      `json:"active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// Provider state constants reported by a sync.
const (
	ProviderStateConnected      = "connected"
	ProviderStateNotConnected   = "not_connected"
	ProviderStateReauthRequired = "reauth_required"
)

// TransactionSyncState records the last calendar sync for a transaction.
type TransactionSyncState struct {
	TransactionID uuid.UUID  `json:"transaction_id"`
	Status        string     `json:"status"`
	LastSyncTime  *time.Time `json:"last_sync_time,omitempty"`
	EventsCreated int        `json:"events_created"`
	PushFailures  int        `json:"push_failures"`
	Warning       string     `json:"warning,omitempty"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
