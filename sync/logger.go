// ABOUTME: Structured logger construction for the calendar sync engine
// ABOUTME: Wraps charmbracelet/log with the configured level and a fixed prefix
package sync

import (
	"io"

	"github.com/charmbracelet/log"
)

// NewLogger builds a leveled logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) *log.Logger {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}

	return log.NewWithOptions(w, log.Options{
		Level:           lvl,
		Prefix:          "closingcal",
		ReportTimestamp: true,
	})
}

// discardLogger is used when callers pass a nil logger.
func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
