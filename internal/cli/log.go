package cli

import (
	"io"
	"time"

	"github.com/charmbracelet/log"
)

// newLogger creates a new logger with timestamp formatting.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// stopwatch measures a command from its creation.
type stopwatch struct {
	logger *log.Logger
	start  time.Time
}

func newStopwatch(l *log.Logger) *stopwatch {
	return &stopwatch{logger: l, start: time.Now()}
}

// elapsed returns the time since the stopwatch was created.
func (s *stopwatch) elapsed() time.Duration {
	return time.Since(s.start)
}

// done logs msg along with the elapsed time, rounded to the millisecond.
// Example output: "Wrote level 3 (1.234s)"
func (s *stopwatch) done(msg string) {
	s.logger.Debugf("%s (%s)", msg, s.elapsed().Round(time.Millisecond))
}
