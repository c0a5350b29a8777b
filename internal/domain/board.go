package domain

import "strings"

// DependencyRules holds the board's dependency-enforcement switches.
type DependencyRules struct {
	EnforcePredecessors bool
	// AllowParallelWork is part of the external board-settings contract but
	// is not consulted by any transition check. Reserved until product
	// intent is clarified.
	AllowParallelWork bool
}

// Board carries the board-level configuration consumed by transition
// validation: the ordered status vocabulary, per-status WIP limits, and
// dependency rules. The board does not own the items.
type Board struct {
	Statuses  []string
	WIPLimits map[string]int
	Rules     DependencyRules
}

// WIPLimit returns the configured limit for a status; zero means unlimited.
func (b Board) WIPLimit(status string) int {
	if b.WIPLimits == nil {
		return 0
	}
	return b.WIPLimits[normalizeStatus(status)]
}

// HasStatus reports whether a status belongs to the board's vocabulary. An
// empty vocabulary accepts any status.
func (b Board) HasStatus(status string) bool {
	if len(b.Statuses) == 0 {
		return true
	}
	status = normalizeStatus(status)
	for _, known := range b.Statuses {
		if normalizeStatus(known) == status {
			return true
		}
	}
	return false
}

// StatusPosition returns the index of a status in the board's ordered
// vocabulary, or -1 when unknown.
func (b Board) StatusPosition(status string) int {
	status = normalizeStatus(status)
	for i, known := range b.Statuses {
		if normalizeStatus(known) == status {
			return i
		}
	}
	return -1
}

// DefaultBoard returns the stock four-column board used when no configuration
// is present.
func DefaultBoard() Board {
	return Board{
		Statuses: []string{"backlog", "in-progress", "review", StatusDone},
		Rules: DependencyRules{
			EnforcePredecessors: true,
		},
	}
}

// FirstStatus returns the initial status for newly created items.
func (b Board) FirstStatus() string {
	if len(b.Statuses) == 0 {
		return "backlog"
	}
	return strings.TrimSpace(b.Statuses[0])
}
