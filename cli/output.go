// ABOUTME: Terminal styling shared by CLI commands
// ABOUTME: Renders check marks, warnings and sync summaries with lipgloss
package cli

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/closingcal/handlers"
	"github.com/harperreed/closingcal/models"
)

var (
	successStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("42"))

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))
)

func printSuccess(format string, args ...any) {
	fmt.Println(successStyle.Render("✓") + " " + fmt.Sprintf(format, args...))
}

func printWarning(format string, args ...any) {
	fmt.Println(warningStyle.Render("!") + " " + fmt.Sprintf(format, args...))
}

// printCalendar shows the calendar side of a write, including any warning.
func printCalendar(cal *handlers.CalendarSyncOutput) {
	if cal == nil {
		return
	}
	fmt.Printf("  Calendar: %s\n", cal.Message)
	if cal.PushFailures > 0 {
		printWarning("%d events were saved locally but not pushed", cal.PushFailures)
	}
	if cal.ProviderState == models.ProviderStateReauthRequired {
		printWarning("Run 'closingcal calendar connect' to reconnect Google Calendar")
	}
}

func statusLabel(pushStatus string) string {
	switch pushStatus {
	case models.PushStatusSynced:
		return successStyle.Render(pushStatus)
	case models.PushStatusFailed:
		return warningStyle.Render(pushStatus)
	default:
		return mutedStyle.Render(pushStatus)
	}
}
