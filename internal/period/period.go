package period

import (
	"fmt"
	"time"
)

// Cadence is the repetition granularity of a habit.
type Cadence string

const (
	Daily   Cadence = "daily"
	Weekly  Cadence = "weekly"
	Monthly Cadence = "monthly"
)

// ParseCadence validates a cadence string from the HTTP or storage boundary.
func ParseCadence(s string) (Cadence, error) {
	switch Cadence(s) {
	case Daily, Weekly, Monthly:
		return Cadence(s), nil
	}
	return "", fmt.Errorf("invalid cadence %q", s)
}

// Key returns the canonical period key for a date under a cadence:
// 2024-01-15 (daily), 2024-W03 (ISO week), 2024-01 (monthly).
// Keys sort lexicographically in calendar order within a cadence.
func Key(d time.Time, c Cadence) string {
	switch c {
	case Daily:
		return d.Format("2006-01-02")
	case Weekly:
		year, week := d.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	case Monthly:
		return d.Format("2006-01")
	}
	panic("period: invalid cadence " + string(c))
}

// prev steps a cursor date back one period. For monthly the cursor is
// normalized to the first of the month so AddDate never clamps across
// short months (e.g. Mar 31 must reach February, not skip it).
func prev(d time.Time, c Cadence) time.Time {
	switch c {
	case Daily:
		return d.AddDate(0, 0, -1)
	case Weekly:
		return d.AddDate(0, 0, -7)
	case Monthly:
		first := time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, d.Location())
		return first.AddDate(0, -1, 0)
	}
	panic("period: invalid cadence " + string(c))
}

// CurrentStreak counts consecutive completed periods ending at and including
// today's period. If today's period is not in done, the streak is 0. The walk
// stops at the first gap, so a habit with any completions terminates quickly
// regardless of how old its history is.
func CurrentStreak(done map[string]struct{}, c Cadence, today time.Time) int {
	streak := 0
	cursor := today
	for {
		if _, ok := done[Key(cursor, c)]; !ok {
			return streak
		}
		streak++
		cursor = prev(cursor, c)
	}
}

// Entry is one period in a window summary.
type Entry struct {
	Key       string
	Label     string
	Completed bool
}

// WindowSummary returns the most recent n periods ending at today's period,
// oldest first, with completion flags for rendering a progress strip.
func WindowSummary(done map[string]struct{}, c Cadence, today time.Time, n int) []Entry {
	entries := make([]Entry, n)
	cursor := today
	for i := n - 1; i >= 0; i-- {
		key := Key(cursor, c)
		_, ok := done[key]
		entries[i] = Entry{Key: key, Label: label(cursor, c), Completed: ok}
		cursor = prev(cursor, c)
	}
	return entries
}

// Rate returns the completed fraction of a window summary, 0 to 1.
func Rate(entries []Entry) float64 {
	if len(entries) == 0 {
		return 0
	}
	completed := 0
	for _, e := range entries {
		if e.Completed {
			completed++
		}
	}
	return float64(completed) / float64(len(entries))
}

// label is the short column header shown above a progress cell.
func label(d time.Time, c Cadence) string {
	switch c {
	case Daily:
		return d.Format("Mon")
	case Weekly:
		_, week := d.ISOWeek()
		return fmt.Sprintf("W%02d", week)
	case Monthly:
		return d.Format("Jan")
	}
	panic("period: invalid cadence " + string(c))
}
