// Package common provides transport-agnostic server contracts used by HTTP and MCP adapters.
package common

import (
	"context"
	"errors"
	"time"
)

// ErrInvalidRequest reports malformed transport input.
var ErrInvalidRequest = errors.New("invalid request")

// ErrNotFound reports missing transport-visible resources.
var ErrNotFound = errors.New("not found")

// ErrCycleDetected reports that a dependency cycle prevented the operation.
var ErrCycleDetected = errors.New("dependency cycle detected")

// BoardService describes the board operations exposed through transport adapters.
type BoardService interface {
	BoardState(ctx context.Context) (BoardStateResponse, error)
	ListItems(ctx context.Context) ([]ItemView, error)
	GetItem(ctx context.Context, id string) (ItemView, error)
	CreateItem(ctx context.Context, req CreateItemRequest) (ItemView, error)
	DeleteItem(ctx context.Context, id string) error
	LinkItems(ctx context.Context, req LinkRequest) error
	UnlinkItems(ctx context.Context, req LinkRequest) error
	MoveItem(ctx context.Context, req MoveRequest) (MoveResponse, error)
	ValidateMove(ctx context.Context, req MoveRequest) (ValidationView, error)
	ReadyItems(ctx context.Context) ([]ItemView, error)
	BlockingItems(ctx context.Context) ([]ItemView, error)
	Cycles(ctx context.Context) ([][]string, error)
	Order(ctx context.Context) ([]string, error)
	History(ctx context.Context, id string) (HistoryView, error)
}

// ItemView represents one work item surfaced by transport adapters.
type ItemView struct {
	ID           string            `json:"id"`
	Title        string            `json:"title"`
	Status       string            `json:"status"`
	Predecessors []string          `json:"predecessors"`
	Successors   []string          `json:"successors"`
	Tags         []string          `json:"tags,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// ColumnView describes one board column with its current load.
type ColumnView struct {
	Status   string     `json:"status"`
	WIPLimit int        `json:"wip_limit"`
	Items    []ItemView `json:"items"`
}

// BoardStateResponse summarizes the whole board for one state snapshot.
type BoardStateResponse struct {
	Columns    []ColumnView `json:"columns"`
	TotalItems int          `json:"total_items"`
	DoneItems  int          `json:"done_items"`
	ReadyIDs   []string     `json:"ready_ids"`
	CycleCount int          `json:"cycle_count"`
}

// CreateItemRequest captures one create-item request.
type CreateItemRequest struct {
	ID           string            `json:"id,omitempty"`
	Title        string            `json:"title"`
	Status       string            `json:"status,omitempty"`
	Predecessors []string          `json:"predecessors,omitempty"`
	Successors   []string          `json:"successors,omitempty"`
	Tags         []string          `json:"tags,omitempty"`
	Extra        map[string]string `json:"extra,omitempty"`
}

// LinkRequest captures one dependency link or unlink request.
type LinkRequest struct {
	PredecessorID string `json:"predecessor_id"`
	SuccessorID   string `json:"successor_id"`
}

// MoveRequest captures one status transition request.
type MoveRequest struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// ValidationView represents one validation verdict with collected messages.
type ValidationView struct {
	IsValid  bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// MoveResponse reports the outcome of one move request.
type MoveResponse struct {
	Moved      bool           `json:"moved"`
	Item       ItemView       `json:"item"`
	Validation ValidationView `json:"validation"`
}

// HistoryEntryView represents one status interval in an item's timeline.
type HistoryEntryView struct {
	Status        string     `json:"status"`
	EnteredAt     time.Time  `json:"entered_at"`
	LeftAt        *time.Time `json:"left_at,omitempty"`
	DurationMS    *int64     `json:"duration_ms,omitempty"`
	DurationHuman string     `json:"duration_human,omitempty"`
}

// StatusTotalView aggregates accumulated time for one status.
type StatusTotalView struct {
	Status        string `json:"status"`
	DurationMS    int64  `json:"duration_ms"`
	DurationHuman string `json:"duration_human"`
}

// HistoryView reports one item's status timeline and per-status totals.
type HistoryView struct {
	Item         ItemView           `json:"item"`
	Entries      []HistoryEntryView `json:"entries"`
	Totals       []StatusTotalView  `json:"totals"`
	CurrentMS    int64              `json:"current_ms"`
	CurrentHuman string             `json:"current_human"`
}
