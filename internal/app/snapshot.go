package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hylla/kanflow/internal/domain"
)

// SnapshotVersion defines the snapshot envelope version.
const SnapshotVersion = "kanflow.snapshot.v1"

// Snapshot is the portable JSON representation of the full board.
type Snapshot struct {
	Version    string         `json:"version"`
	ExportedAt time.Time      `json:"exported_at"`
	Items      []SnapshotItem `json:"items"`
}

// SnapshotItem represents one exported work item.
type SnapshotItem struct {
	ID           string                 `json:"id"`
	Title        string                 `json:"title"`
	Status       string                 `json:"status"`
	Predecessors []string               `json:"predecessors,omitempty"`
	Successors   []string               `json:"successors,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
	Extra        map[string]string      `json:"extra,omitempty"`
	History      []SnapshotHistoryEntry `json:"history"`
	CreatedAt    time.Time              `json:"created_at"`
	UpdatedAt    time.Time              `json:"updated_at"`
}

// SnapshotHistoryEntry represents one exported status interval.
type SnapshotHistoryEntry struct {
	Status     string     `json:"status"`
	EnteredAt  time.Time  `json:"entered_at"`
	LeftAt     *time.Time `json:"left_at,omitempty"`
	DurationMS *int64     `json:"duration_ms,omitempty"`
}

// ExportSnapshot serializes the full board state.
func (s *Service) ExportSnapshot(ctx context.Context) (Snapshot, error) {
	items, err := s.ListItems(ctx)
	if err != nil {
		return Snapshot{}, err
	}

	snap := Snapshot{
		Version:    SnapshotVersion,
		ExportedAt: s.clock().UTC(),
		Items:      make([]SnapshotItem, 0, len(items)),
	}
	for _, item := range items {
		snap.Items = append(snap.Items, toSnapshotItem(item))
	}
	return snap, nil
}

// ImportSnapshot loads items from a snapshot envelope into the repository.
// Existing items with matching ids are overwritten.
func (s *Service) ImportSnapshot(ctx context.Context, snap Snapshot) error {
	if strings.TrimSpace(snap.Version) != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %q", snap.Version)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, snapItem := range snap.Items {
		item, err := fromSnapshotItem(snapItem)
		if err != nil {
			return fmt.Errorf("snapshot item %d: %w", i, err)
		}
		if _, getErr := s.repo.GetWorkItem(ctx, item.ID); getErr == nil {
			if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
				return fmt.Errorf("update item %q: %w", item.ID, err)
			}
			continue
		}
		if err := s.repo.CreateWorkItem(ctx, item); err != nil {
			return fmt.Errorf("create item %q: %w", item.ID, err)
		}
	}
	_, err := s.refreshGraph(ctx)
	return err
}

// toSnapshotItem maps a domain item into its export shape.
func toSnapshotItem(item domain.WorkItem) SnapshotItem {
	out := SnapshotItem{
		ID:           item.ID,
		Title:        item.Title,
		Status:       item.Status,
		Predecessors: append([]string(nil), item.Predecessors...),
		Successors:   append([]string(nil), item.Successors...),
		Tags:         append([]string(nil), item.Tags...),
		Extra:        item.Extra,
		History:      make([]SnapshotHistoryEntry, 0, len(item.History)),
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
	for _, entry := range item.History {
		snapEntry := SnapshotHistoryEntry{
			Status:    entry.Status,
			EnteredAt: entry.EnteredAt,
			LeftAt:    entry.LeftAt,
		}
		if entry.Duration != nil {
			ms := entry.Duration.Milliseconds()
			snapEntry.DurationMS = &ms
		}
		out.History = append(out.History, snapEntry)
	}
	return out
}

// fromSnapshotItem validates and maps an exported item back into the domain.
func fromSnapshotItem(in SnapshotItem) (domain.WorkItem, error) {
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:           in.ID,
		Title:        in.Title,
		Status:       in.Status,
		Predecessors: in.Predecessors,
		Successors:   in.Successors,
		Tags:         in.Tags,
		Extra:        in.Extra,
	}, in.CreatedAt)
	if err != nil {
		return domain.WorkItem{}, err
	}
	item.UpdatedAt = in.UpdatedAt.UTC()

	if len(in.History) == 0 {
		return item, nil
	}
	history := make([]domain.StatusHistoryEntry, 0, len(in.History))
	for _, snapEntry := range in.History {
		entry := domain.StatusHistoryEntry{
			Status:    snapEntry.Status,
			EnteredAt: snapEntry.EnteredAt,
			LeftAt:    snapEntry.LeftAt,
		}
		if snapEntry.DurationMS != nil {
			d := time.Duration(*snapEntry.DurationMS) * time.Millisecond
			entry.Duration = &d
		}
		history = append(history, entry)
	}
	item.History = history
	return item, nil
}
