package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/hylla/kanflow/internal/app"
	"github.com/hylla/kanflow/internal/domain"
	_ "modernc.org/sqlite"
)

func openTestRepo(t *testing.T) *Repository {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "kanflow.db")
	repo, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})
	return repo
}

func TestRepository_WorkItemLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:           "w1",
		Title:        "Design schema",
		Status:       "backlog",
		Predecessors: []string{"w0"},
		Tags:         []string{"storage"},
		Extra:        map[string]string{"owner": "core"},
	}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := repo.CreateWorkItem(ctx, item); err != nil {
		t.Fatalf("CreateWorkItem() error = %v", err)
	}

	loaded, err := repo.GetWorkItem(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorkItem() error = %v", err)
	}
	if loaded.Title != "Design schema" || loaded.Status != "backlog" {
		t.Fatalf("unexpected item %+v", loaded)
	}
	if len(loaded.Predecessors) != 1 || loaded.Predecessors[0] != "w0" {
		t.Fatalf("unexpected predecessors %#v", loaded.Predecessors)
	}
	if loaded.Extra["owner"] != "core" {
		t.Fatalf("unexpected extra %#v", loaded.Extra)
	}
	if !loaded.CreatedAt.Equal(now) {
		t.Fatalf("created at %v, want %v", loaded.CreatedAt, now)
	}
	if len(loaded.History) != 1 || loaded.History[0].Status != "backlog" || loaded.History[0].Closed() {
		t.Fatalf("unexpected history %#v", loaded.History)
	}

	loaded.RecordTransition("in-progress", now.Add(time.Minute))
	if err := repo.UpdateWorkItem(ctx, loaded); err != nil {
		t.Fatalf("UpdateWorkItem() error = %v", err)
	}

	reloaded, err := repo.GetWorkItem(ctx, "w1")
	if err != nil {
		t.Fatalf("GetWorkItem() error = %v", err)
	}
	if reloaded.Status != "in-progress" {
		t.Fatalf("status = %q, want in-progress", reloaded.Status)
	}
	if len(reloaded.History) != 2 {
		t.Fatalf("history has %d entries, want 2", len(reloaded.History))
	}
	first := reloaded.History[0]
	if !first.Closed() {
		t.Fatal("first interval must be closed after the move")
	}
	if first.Duration == nil || *first.Duration != time.Minute {
		t.Fatalf("first interval duration = %v, want 1m", first.Duration)
	}
	if !first.LeftAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("left at %v, want %v", first.LeftAt, now.Add(time.Minute))
	}

	if err := repo.DeleteWorkItem(ctx, "w1"); err != nil {
		t.Fatalf("DeleteWorkItem() error = %v", err)
	}
	if _, err := repo.GetWorkItem(ctx, "w1"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	history, err := repo.loadHistory(ctx, "w1")
	if err != nil {
		t.Fatalf("loadHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history rows survived the cascade: %#v", history)
	}
}

func TestRepository_ListOrdersByCreation(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	base := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"w2", "w1", "w3"} {
		item, err := domain.NewWorkItem(domain.WorkItemInput{
			ID:     id,
			Title:  "Item " + id,
			Status: "backlog",
		}, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("NewWorkItem() error = %v", err)
		}
		if err := repo.CreateWorkItem(ctx, item); err != nil {
			t.Fatalf("CreateWorkItem() error = %v", err)
		}
	}

	items, err := repo.ListWorkItems(ctx)
	if err != nil {
		t.Fatalf("ListWorkItems() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("listed %d items, want 3", len(items))
	}
	gotOrder := []string{items[0].ID, items[1].ID, items[2].ID}
	wantOrder := []string{"w2", "w1", "w3"}
	for i := range wantOrder {
		if gotOrder[i] != wantOrder[i] {
			t.Fatalf("order = %v, want %v", gotOrder, wantOrder)
		}
	}
	for _, item := range items {
		if len(item.History) != 1 {
			t.Fatalf("item %s history %#v", item.ID, item.History)
		}
	}
}

func TestRepository_UpdateMissingItem(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	item, err := domain.NewWorkItem(domain.WorkItemInput{ID: "ghost", Title: "Ghost", Status: "backlog"}, time.Now())
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if err := repo.UpdateWorkItem(ctx, item); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := repo.DeleteWorkItem(ctx, "ghost"); !errors.Is(err, app.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	repo, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory() error = %v", err)
	}
	t.Cleanup(func() {
		_ = repo.Close()
	})

	items, err := repo.ListWorkItems(context.Background())
	if err != nil {
		t.Fatalf("ListWorkItems() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("fresh store listed %d items", len(items))
	}
}
