package domain

import (
	"slices"
	"strings"
	"time"
)

// StatusDone is the terminal status value. Predecessor completion and
// readiness checks compare against this literal; it is a fixed convention of
// the board's status vocabulary, not configurable.
const StatusDone = "done"

// WorkItem represents one card tracked on the board. It is the unit both the
// dependency graph and the status history operate on; the graph keys vertices
// by ID and the history lives inline on the item.
type WorkItem struct {
	ID           string
	Title        string
	Status       string
	Predecessors []string
	Successors   []string
	Tags         []string
	History      []StatusHistoryEntry
	// Extra carries unrecognized custom fields from the persisted
	// representation so round-trips do not drop them.
	Extra     map[string]string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkItemInput holds input values for new work items.
type WorkItemInput struct {
	ID           string
	Title        string
	Status       string
	Predecessors []string
	Successors   []string
	Tags         []string
	Extra        map[string]string
}

// NewWorkItem constructs a validated work item and seeds its first open
// history interval at the creation time.
func NewWorkItem(in WorkItemInput, now time.Time) (WorkItem, error) {
	in.ID = strings.TrimSpace(in.ID)
	in.Title = strings.TrimSpace(in.Title)
	in.Status = normalizeStatus(in.Status)

	if in.ID == "" {
		return WorkItem{}, ErrInvalidID
	}
	if in.Title == "" {
		return WorkItem{}, ErrInvalidTitle
	}
	if in.Status == "" {
		return WorkItem{}, ErrInvalidStatus
	}

	item := WorkItem{
		ID:           in.ID,
		Title:        in.Title,
		Status:       in.Status,
		Predecessors: normalizeIDList(in.Predecessors, in.ID),
		Successors:   normalizeIDList(in.Successors, in.ID),
		Tags:         normalizeTags(in.Tags),
		Extra:        cloneExtra(in.Extra),
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}
	item.InitializeHistory()
	return item, nil
}

// Rename renames the item.
func (w *WorkItem) Rename(title string, now time.Time) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return ErrInvalidTitle
	}
	w.Title = title
	w.UpdatedAt = now.UTC()
	return nil
}

// Retag replaces the item's tag set.
func (w *WorkItem) Retag(tags []string, now time.Time) {
	w.Tags = normalizeTags(tags)
	w.UpdatedAt = now.UTC()
}

// DeclarePredecessor records a dependency on another item. The declaration is
// not graph-validated; a dangling id is tolerated and dropped at graph build.
func (w *WorkItem) DeclarePredecessor(id string, now time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	if id == w.ID {
		return ErrSelfDependency
	}
	if slices.Contains(w.Predecessors, id) {
		return nil
	}
	w.Predecessors = append(w.Predecessors, id)
	w.UpdatedAt = now.UTC()
	return nil
}

// DeclareSuccessor records the inverse relation: this item blocks another.
func (w *WorkItem) DeclareSuccessor(id string, now time.Time) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrInvalidID
	}
	if id == w.ID {
		return ErrSelfDependency
	}
	if slices.Contains(w.Successors, id) {
		return nil
	}
	w.Successors = append(w.Successors, id)
	w.UpdatedAt = now.UTC()
	return nil
}

// RemovePredecessor drops a declared dependency. Unknown ids are a no-op.
func (w *WorkItem) RemovePredecessor(id string, now time.Time) {
	before := len(w.Predecessors)
	w.Predecessors = slices.DeleteFunc(w.Predecessors, func(existing string) bool {
		return existing == strings.TrimSpace(id)
	})
	if len(w.Predecessors) != before {
		w.UpdatedAt = now.UTC()
	}
}

// RemoveSuccessor drops a declared inverse relation. Unknown ids are a no-op.
func (w *WorkItem) RemoveSuccessor(id string, now time.Time) {
	before := len(w.Successors)
	w.Successors = slices.DeleteFunc(w.Successors, func(existing string) bool {
		return existing == strings.TrimSpace(id)
	})
	if len(w.Successors) != before {
		w.UpdatedAt = now.UTC()
	}
}

// IsDone reports whether the item has reached the terminal status.
func (w WorkItem) IsDone() bool {
	return w.Status == StatusDone
}

// normalizeStatus canonicalizes a status value.
func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// normalizeIDList trims, deduplicates, and drops empty or self-referencing ids.
func normalizeIDList(ids []string, selfID string) []string {
	out := make([]string, 0, len(ids))
	seen := map[string]struct{}{}
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" || id == selfID {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// normalizeTags trims, lowercases, deduplicates, and sorts tag values.
func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := map[string]struct{}{}
	for _, raw := range tags {
		tag := strings.ToLower(strings.TrimSpace(raw))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	slices.Sort(out)
	return out
}

// cloneExtra copies the open extension map, dropping empty keys.
func cloneExtra(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for key, value := range in {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		out[key] = value
	}
	return out
}
