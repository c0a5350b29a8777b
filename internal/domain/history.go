package domain

import (
	"fmt"
	"time"
)

// StatusHistoryEntry records one interval an item spent in a status. LeftAt is
// nil for the currently open interval; Duration is stored only for closed
// intervals and recomputed live for the open one.
type StatusHistoryEntry struct {
	Status    string
	EnteredAt time.Time
	LeftAt    *time.Time
	Duration  *time.Duration
}

// Closed reports whether the interval has been left.
func (e StatusHistoryEntry) Closed() bool {
	return e.LeftAt != nil
}

// InitializeHistory seeds an empty history with one open interval at the
// item's creation time. No-op when history already exists, so it is safe to
// call on every load for legacy items persisted without history.
func (w *WorkItem) InitializeHistory() {
	if len(w.History) > 0 {
		return
	}
	w.History = []StatusHistoryEntry{{
		Status:    w.Status,
		EnteredAt: w.CreatedAt,
	}}
}

// RecordTransition closes the open interval and opens a new one for the new
// status. Recording the current status again is a no-op: no zero-duration or
// duplicate entries are created.
func (w *WorkItem) RecordTransition(newStatus string, now time.Time) {
	newStatus = normalizeStatus(newStatus)
	if newStatus == "" || newStatus == w.Status {
		return
	}
	now = now.UTC()

	if open := w.openHistoryEntry(); open != nil {
		left := now
		elapsed := now.Sub(open.EnteredAt)
		open.LeftAt = &left
		open.Duration = &elapsed
	}
	w.History = append(w.History, StatusHistoryEntry{
		Status:    newStatus,
		EnteredAt: now,
	})
	w.Status = newStatus
	w.UpdatedAt = now
}

// TimeInStatus returns the accumulated time the item has spent in one status:
// the sum of closed intervals plus the live tail when the open interval
// matches. Missing or malformed history yields zero, never an error.
func (w WorkItem) TimeInStatus(status string, now time.Time) time.Duration {
	status = normalizeStatus(status)
	var total time.Duration
	for _, entry := range w.History {
		if entry.Status != status {
			continue
		}
		if entry.Closed() {
			if entry.Duration != nil {
				total += *entry.Duration
			} else {
				total += entry.LeftAt.Sub(entry.EnteredAt)
			}
			continue
		}
		total += now.UTC().Sub(entry.EnteredAt)
	}
	return total
}

// CurrentStatusDuration returns how long the item has been in its current
// status. Zero when no open interval exists.
func (w WorkItem) CurrentStatusDuration(now time.Time) time.Duration {
	for i := len(w.History) - 1; i >= 0; i-- {
		if !w.History[i].Closed() {
			return now.UTC().Sub(w.History[i].EnteredAt)
		}
	}
	return 0
}

// StatusSummary accumulates time per status across the whole history in one
// pass, including the live tail of the open interval.
func (w WorkItem) StatusSummary(now time.Time) map[string]time.Duration {
	summary := make(map[string]time.Duration, len(w.History))
	for _, entry := range w.History {
		if entry.Closed() {
			if entry.Duration != nil {
				summary[entry.Status] += *entry.Duration
			} else {
				summary[entry.Status] += entry.LeftAt.Sub(entry.EnteredAt)
			}
			continue
		}
		summary[entry.Status] += now.UTC().Sub(entry.EnteredAt)
	}
	return summary
}

// openHistoryEntry returns the currently open interval. The invariant is that
// at most one entry is open and it is the last one; scanning from the tail
// tolerates malformed history.
func (w *WorkItem) openHistoryEntry() *StatusHistoryEntry {
	for i := len(w.History) - 1; i >= 0; i-- {
		if !w.History[i].Closed() {
			return &w.History[i]
		}
	}
	return nil
}

// FormatDuration renders a duration with the coarsest fitting unit pair:
// "2d 5h", "3h 12m", "45m", "30s". At most two units, larger first, each
// level truncated rather than rounded.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	seconds := int64(d / time.Second)
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours%24)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes%60)
	case minutes > 0:
		return fmt.Sprintf("%dm", minutes)
	default:
		return fmt.Sprintf("%ds", seconds)
	}
}
