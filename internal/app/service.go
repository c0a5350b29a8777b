package app

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hylla/kanflow/internal/domain"
	"github.com/hylla/kanflow/internal/graph"
)

// IDGenerator returns unique identifiers for new items.
type IDGenerator func() string

// Clock returns the current time.
type Clock func() time.Time

// ServiceConfig holds configuration for the board service.
type ServiceConfig struct {
	Board domain.Board
}

// Service orchestrates the board: it loads item snapshots from the
// repository, keeps the dependency graph rebuilt after every mutation, gates
// status moves through validation, and records status history. Access is
// serialized; the core itself assumes single-threaded callers.
type Service struct {
	repo  Repository
	idGen IDGenerator
	clock Clock
	board domain.Board

	mu    sync.Mutex
	graph *graph.Graph
}

// NewService constructs a board service.
func NewService(repo Repository, idGen IDGenerator, clock Clock, cfg ServiceConfig) *Service {
	if idGen == nil {
		idGen = func() string { return "" }
	}
	if clock == nil {
		clock = time.Now
	}
	board := cfg.Board
	if len(board.Statuses) == 0 {
		board = domain.DefaultBoard()
	}
	return &Service{
		repo:  repo,
		idGen: idGen,
		clock: clock,
		board: board,
		graph: graph.New(),
	}
}

// Board returns the configured board settings.
func (s *Service) Board() domain.Board {
	return s.board
}

// CreateItemInput holds input values for create item operations.
type CreateItemInput struct {
	ID           string
	Title        string
	Status       string
	Predecessors []string
	Successors   []string
	Tags         []string
	Extra        map[string]string
}

// CreateItem creates a work item and rebuilds the graph. Declared dependency
// ids pointing at unknown items are kept on the item but dropped from the
// graph until the referenced item exists.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(in.ID) == "" {
		in.ID = s.idGen()
	}
	if strings.TrimSpace(in.Status) == "" {
		in.Status = s.board.FirstStatus()
	}
	if !s.board.HasStatus(in.Status) {
		return domain.WorkItem{}, fmt.Errorf("%w: status %q is not a column on the board", domain.ErrInvalidStatus, in.Status)
	}

	item, err := domain.NewWorkItem(domain.WorkItemInput{
		ID:           in.ID,
		Title:        in.Title,
		Status:       in.Status,
		Predecessors: in.Predecessors,
		Successors:   in.Successors,
		Tags:         in.Tags,
		Extra:        in.Extra,
	}, s.clock())
	if err != nil {
		return domain.WorkItem{}, err
	}
	if err := s.repo.CreateWorkItem(ctx, item); err != nil {
		return domain.WorkItem{}, err
	}
	if _, err := s.refreshGraph(ctx); err != nil {
		return domain.WorkItem{}, err
	}
	return item, nil
}

// GetItem returns one item by id.
func (s *Service) GetItem(ctx context.Context, id string) (domain.WorkItem, error) {
	return s.repo.GetWorkItem(ctx, id)
}

// ListItems returns the full item snapshot ordered by creation time.
func (s *Service) ListItems(ctx context.Context) ([]domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshGraph(ctx)
}

// LinkItems declares that predecessorID must be done before successorID, and
// keeps the inverse relation on the predecessor in sync.
func (s *Service) LinkItems(ctx context.Context, predecessorID, successorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pred, err := s.repo.GetWorkItem(ctx, predecessorID)
	if err != nil {
		return err
	}
	succ, err := s.repo.GetWorkItem(ctx, successorID)
	if err != nil {
		return err
	}

	now := s.clock()
	if err := pred.DeclareSuccessor(succ.ID, now); err != nil {
		return err
	}
	if err := succ.DeclarePredecessor(pred.ID, now); err != nil {
		return err
	}
	if err := s.repo.UpdateWorkItem(ctx, pred); err != nil {
		return err
	}
	if err := s.repo.UpdateWorkItem(ctx, succ); err != nil {
		return err
	}
	_, err = s.refreshGraph(ctx)
	return err
}

// UnlinkItems removes a declared dependency in both directions.
func (s *Service) UnlinkItems(ctx context.Context, predecessorID, successorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pred, err := s.repo.GetWorkItem(ctx, predecessorID)
	if err != nil {
		return err
	}
	succ, err := s.repo.GetWorkItem(ctx, successorID)
	if err != nil {
		return err
	}

	now := s.clock()
	pred.RemoveSuccessor(succ.ID, now)
	succ.RemovePredecessor(pred.ID, now)
	if err := s.repo.UpdateWorkItem(ctx, pred); err != nil {
		return err
	}
	if err := s.repo.UpdateWorkItem(ctx, succ); err != nil {
		return err
	}
	_, err = s.refreshGraph(ctx)
	return err
}

// MoveOutcome reports the result of a move attempt. When validation rejects
// the move, Result carries the errors and Item is the unmoved item; warnings
// accompany a performed move.
type MoveOutcome struct {
	Item   domain.WorkItem
	Result graph.ValidationResult
	Moved  bool
}

// ValidateMove runs transition validation without applying the move.
func (s *Service) ValidateMove(ctx context.Context, id, proposedStatus string) (graph.ValidationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.refreshGraph(ctx)
	if err != nil {
		return graph.ValidationResult{}, err
	}
	item, ok := findItem(items, id)
	if !ok {
		return graph.ValidationResult{}, fmt.Errorf("work item %q: %w", id, ErrNotFound)
	}
	return s.validate(item, proposedStatus, items), nil
}

// MoveItem validates a status transition and, when permitted, records it in
// the item's history and persists the result. Validation failures are
// returned as data on the outcome, not as an error.
func (s *Service) MoveItem(ctx context.Context, id, proposedStatus string) (MoveOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.refreshGraph(ctx)
	if err != nil {
		return MoveOutcome{}, err
	}
	item, ok := findItem(items, id)
	if !ok {
		return MoveOutcome{}, fmt.Errorf("work item %q: %w", id, ErrNotFound)
	}

	result := s.validate(item, proposedStatus, items)
	if !result.IsValid {
		return MoveOutcome{Item: item, Result: result}, nil
	}

	item.RecordTransition(proposedStatus, s.clock())
	if err := s.repo.UpdateWorkItem(ctx, item); err != nil {
		return MoveOutcome{}, err
	}
	if _, err := s.refreshGraph(ctx); err != nil {
		return MoveOutcome{}, err
	}
	return MoveOutcome{Item: item, Result: result, Moved: true}, nil
}

// DeleteItem removes an item. The graph is rebuilt without it; declared
// references from other items become dangling and are dropped at build.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.repo.DeleteWorkItem(ctx, id); err != nil {
		return err
	}
	_, err := s.refreshGraph(ctx)
	return err
}

// Ready returns the items that are unblocked and not yet done.
func (s *Service) Ready(ctx context.Context) ([]domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.refreshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return selectByID(items, s.graph.ReadyItems(items)), nil
}

// Blocking returns the unfinished items that other items depend on.
func (s *Service) Blocking(ctx context.Context) ([]domain.WorkItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.refreshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return selectByID(items, s.graph.BlockingItems(items)), nil
}

// Cycles enumerates dependency cycles across the whole board.
func (s *Service) Cycles(ctx context.Context) ([][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.refreshGraph(ctx); err != nil {
		return nil, err
	}
	return s.graph.AllCycles(), nil
}

// Order returns a dependency-respecting ordering of all items, or the
// propagated *graph.CycleError when none exists.
func (s *Service) Order(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	items, err := s.refreshGraph(ctx)
	if err != nil {
		return nil, err
	}
	return s.graph.TopologicalOrder(items)
}

// Dependents returns the transitive dependents of one item.
func (s *Service) Dependents(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.refreshGraph(ctx); err != nil {
		return nil, err
	}
	return s.graph.AllDependents(id), nil
}

// Dependencies returns the transitive dependencies of one item.
func (s *Service) Dependencies(ctx context.Context, id string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.refreshGraph(ctx); err != nil {
		return nil, err
	}
	return s.graph.AllDependencies(id), nil
}

// HistoryReport bundles one item's status timeline with derived durations.
type HistoryReport struct {
	Item    domain.WorkItem
	Summary map[string]time.Duration
	Current time.Duration
}

// History returns the status timeline and per-status accumulation for one
// item.
func (s *Service) History(ctx context.Context, id string) (HistoryReport, error) {
	item, err := s.repo.GetWorkItem(ctx, id)
	if err != nil {
		return HistoryReport{}, err
	}
	item.InitializeHistory()
	now := s.clock()
	return HistoryReport{
		Item:    item,
		Summary: item.StatusSummary(now),
		Current: item.CurrentStatusDuration(now),
	}, nil
}

// validate layers the board-vocabulary check on top of the graph engine's
// transition validation.
func (s *Service) validate(item domain.WorkItem, proposedStatus string, items []domain.WorkItem) graph.ValidationResult {
	result := s.graph.ValidateTransition(item, proposedStatus, items, s.board)
	if !s.board.HasStatus(proposedStatus) {
		result.Errors = append(result.Errors, fmt.Sprintf("status %q is not a column on the board", proposedStatus))
		result.IsValid = false
	}
	return result
}

// refreshGraph loads the item snapshot, repairs missing history on legacy
// rows, rebuilds the graph, and returns the items in stable order. Callers
// must hold s.mu.
func (s *Service) refreshGraph(ctx context.Context) ([]domain.WorkItem, error) {
	items, err := s.repo.ListWorkItems(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		if len(items[i].History) > 0 {
			continue
		}
		items[i].InitializeHistory()
		if err := s.repo.UpdateWorkItem(ctx, items[i]); err != nil {
			return nil, err
		}
	}
	slices.SortFunc(items, func(a, b domain.WorkItem) int {
		if !a.CreatedAt.Equal(b.CreatedAt) {
			if a.CreatedAt.Before(b.CreatedAt) {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	s.graph.Build(items)
	return items, nil
}

// findItem returns the item with the given id from a snapshot.
func findItem(items []domain.WorkItem, id string) (domain.WorkItem, bool) {
	for _, item := range items {
		if item.ID == id {
			return item, true
		}
	}
	return domain.WorkItem{}, false
}

// selectByID maps an id list back onto snapshot items, preserving id order.
func selectByID(items []domain.WorkItem, ids []string) []domain.WorkItem {
	out := make([]domain.WorkItem, 0, len(ids))
	for _, id := range ids {
		if item, ok := findItem(items, id); ok {
			out = append(out, item)
		}
	}
	return out
}
