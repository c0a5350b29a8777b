package domain

import (
	"testing"
	"time"
)

func TestNewWorkItemDefaultsAndNormalization(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	item, err := NewWorkItem(WorkItemInput{
		ID:           "w1",
		Title:        "  Ship feature ",
		Status:       " Backlog ",
		Predecessors: []string{"w2", "w2", "  ", "w1"},
		Tags:         []string{"Backend", "backend", "Urgent"},
	}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}
	if item.Title != "Ship feature" {
		t.Fatalf("unexpected title %q", item.Title)
	}
	if item.Status != "backlog" {
		t.Fatalf("unexpected status %q", item.Status)
	}
	if len(item.Predecessors) != 1 || item.Predecessors[0] != "w2" {
		t.Fatalf("unexpected predecessors %#v", item.Predecessors)
	}
	if len(item.Tags) != 2 || item.Tags[0] != "backend" || item.Tags[1] != "urgent" {
		t.Fatalf("unexpected tags %#v", item.Tags)
	}
	if len(item.History) != 1 {
		t.Fatalf("expected seeded history, got %d entries", len(item.History))
	}
	if item.History[0].Status != "backlog" || !item.History[0].EnteredAt.Equal(now) {
		t.Fatalf("unexpected seed entry %#v", item.History[0])
	}
	if item.History[0].Closed() {
		t.Fatal("seed entry must be open")
	}
}

func TestNewWorkItemValidation(t *testing.T) {
	now := time.Now()
	if _, err := NewWorkItem(WorkItemInput{Title: "x", Status: "backlog"}, now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
	if _, err := NewWorkItem(WorkItemInput{ID: "w1", Status: "backlog"}, now); err != ErrInvalidTitle {
		t.Fatalf("expected ErrInvalidTitle, got %v", err)
	}
	if _, err := NewWorkItem(WorkItemInput{ID: "w1", Title: "x", Status: "  "}, now); err != ErrInvalidStatus {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestDeclarePredecessorAndSuccessor(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	item, err := NewWorkItem(WorkItemInput{ID: "w1", Title: "x", Status: "backlog"}, now)
	if err != nil {
		t.Fatalf("NewWorkItem() error = %v", err)
	}

	if err := item.DeclarePredecessor("w2", now); err != nil {
		t.Fatalf("DeclarePredecessor() error = %v", err)
	}
	if err := item.DeclarePredecessor("w2", now); err != nil {
		t.Fatalf("DeclarePredecessor() duplicate error = %v", err)
	}
	if len(item.Predecessors) != 1 {
		t.Fatalf("duplicate declaration must not grow the list: %#v", item.Predecessors)
	}
	if err := item.DeclarePredecessor("w1", now); err != ErrSelfDependency {
		t.Fatalf("expected ErrSelfDependency, got %v", err)
	}
	if err := item.DeclareSuccessor("", now); err != ErrInvalidID {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}

	item.RemovePredecessor("w2", now)
	if len(item.Predecessors) != 0 {
		t.Fatalf("expected empty predecessors, got %#v", item.Predecessors)
	}
	item.RemovePredecessor("missing", now)
}

func TestBoardWIPLimitAndVocabulary(t *testing.T) {
	board := Board{
		Statuses:  []string{"backlog", "review", "done"},
		WIPLimits: map[string]int{"review": 2},
	}
	if got := board.WIPLimit("Review"); got != 2 {
		t.Fatalf("WIPLimit() = %d, want 2", got)
	}
	if got := board.WIPLimit("backlog"); got != 0 {
		t.Fatalf("WIPLimit() = %d, want 0 (unlimited)", got)
	}
	if !board.HasStatus("REVIEW") {
		t.Fatal("expected review to be a known status")
	}
	if board.HasStatus("shipping") {
		t.Fatal("expected shipping to be unknown")
	}
	if got := board.StatusPosition("done"); got != 2 {
		t.Fatalf("StatusPosition() = %d, want 2", got)
	}
	if got := board.StatusPosition("shipping"); got != -1 {
		t.Fatalf("StatusPosition() = %d, want -1", got)
	}
}

func TestDefaultBoard(t *testing.T) {
	board := DefaultBoard()
	if board.FirstStatus() != "backlog" {
		t.Fatalf("unexpected first status %q", board.FirstStatus())
	}
	if !board.Rules.EnforcePredecessors {
		t.Fatal("default board must enforce predecessors")
	}
	if board.Statuses[len(board.Statuses)-1] != StatusDone {
		t.Fatalf("expected terminal column last, got %q", board.Statuses[len(board.Statuses)-1])
	}
}
