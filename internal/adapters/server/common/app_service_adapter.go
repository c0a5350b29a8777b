package common

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/hylla/kanflow/internal/app"
	"github.com/hylla/kanflow/internal/domain"
	"github.com/hylla/kanflow/internal/graph"
)

// AppServiceAdapter adapts the application service onto the transport-facing
// BoardService contract.
type AppServiceAdapter struct {
	svc *app.Service
}

// NewAppServiceAdapter constructs one adapter over the board service.
func NewAppServiceAdapter(svc *app.Service) *AppServiceAdapter {
	return &AppServiceAdapter{svc: svc}
}

// BoardState summarizes the whole board grouped by column.
func (a *AppServiceAdapter) BoardState(ctx context.Context) (BoardStateResponse, error) {
	items, err := a.svc.ListItems(ctx)
	if err != nil {
		return BoardStateResponse{}, translateError(err)
	}
	board := a.svc.Board()

	byStatus := map[string][]ItemView{}
	doneCount := 0
	for _, item := range items {
		byStatus[item.Status] = append(byStatus[item.Status], toItemView(item))
		if item.IsDone() {
			doneCount++
		}
	}

	resp := BoardStateResponse{
		TotalItems: len(items),
		DoneItems:  doneCount,
	}
	seen := map[string]struct{}{}
	for _, status := range board.Statuses {
		resp.Columns = append(resp.Columns, ColumnView{
			Status:   status,
			WIPLimit: board.WIPLimit(status),
			Items:    emptyViewsIfNil(byStatus[status]),
		})
		seen[status] = struct{}{}
	}
	// Items on statuses outside the configured vocabulary still show up.
	var stray []string
	for status := range byStatus {
		if _, ok := seen[status]; !ok {
			stray = append(stray, status)
		}
	}
	sort.Strings(stray)
	for _, status := range stray {
		resp.Columns = append(resp.Columns, ColumnView{
			Status: status,
			Items:  byStatus[status],
		})
	}

	ready, err := a.svc.Ready(ctx)
	if err != nil {
		return BoardStateResponse{}, translateError(err)
	}
	resp.ReadyIDs = make([]string, 0, len(ready))
	for _, item := range ready {
		resp.ReadyIDs = append(resp.ReadyIDs, item.ID)
	}

	cycles, err := a.svc.Cycles(ctx)
	if err != nil {
		return BoardStateResponse{}, translateError(err)
	}
	resp.CycleCount = len(cycles)
	return resp, nil
}

// ListItems returns every item as a transport view.
func (a *AppServiceAdapter) ListItems(ctx context.Context) ([]ItemView, error) {
	items, err := a.svc.ListItems(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return toItemViews(items), nil
}

// GetItem returns one item by id.
func (a *AppServiceAdapter) GetItem(ctx context.Context, id string) (ItemView, error) {
	item, err := a.svc.GetItem(ctx, id)
	if err != nil {
		return ItemView{}, translateError(err)
	}
	return toItemView(item), nil
}

// CreateItem creates one item from transport input.
func (a *AppServiceAdapter) CreateItem(ctx context.Context, req CreateItemRequest) (ItemView, error) {
	item, err := a.svc.CreateItem(ctx, app.CreateItemInput{
		ID:           req.ID,
		Title:        req.Title,
		Status:       req.Status,
		Predecessors: req.Predecessors,
		Successors:   req.Successors,
		Tags:         req.Tags,
		Extra:        req.Extra,
	})
	if err != nil {
		return ItemView{}, translateError(err)
	}
	return toItemView(item), nil
}

// DeleteItem deletes one item by id.
func (a *AppServiceAdapter) DeleteItem(ctx context.Context, id string) error {
	return translateError(a.svc.DeleteItem(ctx, id))
}

// LinkItems declares one dependency edge on both endpoints.
func (a *AppServiceAdapter) LinkItems(ctx context.Context, req LinkRequest) error {
	if req.PredecessorID == "" || req.SuccessorID == "" {
		return fmt.Errorf("%w: predecessor_id and successor_id are required", ErrInvalidRequest)
	}
	return translateError(a.svc.LinkItems(ctx, req.PredecessorID, req.SuccessorID))
}

// UnlinkItems removes one dependency edge from both endpoints.
func (a *AppServiceAdapter) UnlinkItems(ctx context.Context, req LinkRequest) error {
	if req.PredecessorID == "" || req.SuccessorID == "" {
		return fmt.Errorf("%w: predecessor_id and successor_id are required", ErrInvalidRequest)
	}
	return translateError(a.svc.UnlinkItems(ctx, req.PredecessorID, req.SuccessorID))
}

// MoveItem applies one status transition; rejections come back as data.
func (a *AppServiceAdapter) MoveItem(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	outcome, err := a.svc.MoveItem(ctx, req.ID, req.Status)
	if err != nil {
		return MoveResponse{}, translateError(err)
	}
	return MoveResponse{
		Moved:      outcome.Moved,
		Item:       toItemView(outcome.Item),
		Validation: toValidationView(outcome.Result),
	}, nil
}

// ValidateMove previews one status transition without applying it.
func (a *AppServiceAdapter) ValidateMove(ctx context.Context, req MoveRequest) (ValidationView, error) {
	result, err := a.svc.ValidateMove(ctx, req.ID, req.Status)
	if err != nil {
		return ValidationView{}, translateError(err)
	}
	return toValidationView(result), nil
}

// ReadyItems returns the unblocked, unfinished items.
func (a *AppServiceAdapter) ReadyItems(ctx context.Context) ([]ItemView, error) {
	items, err := a.svc.Ready(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return toItemViews(items), nil
}

// BlockingItems returns the unfinished items that block others.
func (a *AppServiceAdapter) BlockingItems(ctx context.Context) ([]ItemView, error) {
	items, err := a.svc.Blocking(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return toItemViews(items), nil
}

// Cycles enumerates dependency cycles as id paths.
func (a *AppServiceAdapter) Cycles(ctx context.Context) ([][]string, error) {
	cycles, err := a.svc.Cycles(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	if cycles == nil {
		cycles = [][]string{}
	}
	return cycles, nil
}

// Order returns a dependency-respecting work order.
func (a *AppServiceAdapter) Order(ctx context.Context) ([]string, error) {
	order, err := a.svc.Order(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	if order == nil {
		order = []string{}
	}
	return order, nil
}

// History reports one item's status timeline and per-status totals.
func (a *AppServiceAdapter) History(ctx context.Context, id string) (HistoryView, error) {
	report, err := a.svc.History(ctx, id)
	if err != nil {
		return HistoryView{}, translateError(err)
	}

	view := HistoryView{
		Item:         toItemView(report.Item),
		CurrentMS:    report.Current.Milliseconds(),
		CurrentHuman: domain.FormatDuration(report.Current),
	}
	for _, entry := range report.Item.History {
		ev := HistoryEntryView{
			Status:    entry.Status,
			EnteredAt: entry.EnteredAt,
			LeftAt:    entry.LeftAt,
		}
		if entry.Duration != nil {
			ms := entry.Duration.Milliseconds()
			ev.DurationMS = &ms
			ev.DurationHuman = domain.FormatDuration(*entry.Duration)
		}
		view.Entries = append(view.Entries, ev)
	}

	statuses := make([]string, 0, len(report.Summary))
	for status := range report.Summary {
		statuses = append(statuses, status)
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		d := report.Summary[status]
		view.Totals = append(view.Totals, StatusTotalView{
			Status:        status,
			DurationMS:    d.Milliseconds(),
			DurationHuman: domain.FormatDuration(d),
		})
	}
	return view, nil
}

// translateError maps application errors onto transport error categories.
func translateError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, app.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidID),
		errors.Is(err, domain.ErrInvalidTitle),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrSelfDependency):
		return fmt.Errorf("%w: %s", ErrInvalidRequest, err.Error())
	default:
		var cycleErr *graph.CycleError
		if errors.As(err, &cycleErr) {
			return fmt.Errorf("%w: %s", ErrCycleDetected, cycleErr.Error())
		}
		return err
	}
}

// toItemView converts one domain item into its transport view.
func toItemView(item domain.WorkItem) ItemView {
	return ItemView{
		ID:           item.ID,
		Title:        item.Title,
		Status:       item.Status,
		Predecessors: emptyIfNil(item.Predecessors),
		Successors:   emptyIfNil(item.Successors),
		Tags:         item.Tags,
		Extra:        item.Extra,
		CreatedAt:    item.CreatedAt,
		UpdatedAt:    item.UpdatedAt,
	}
}

func toItemViews(items []domain.WorkItem) []ItemView {
	views := make([]ItemView, 0, len(items))
	for _, item := range items {
		views = append(views, toItemView(item))
	}
	return views
}

func toValidationView(result graph.ValidationResult) ValidationView {
	return ValidationView{
		IsValid:  result.IsValid,
		Errors:   emptyIfNil(result.Errors),
		Warnings: emptyIfNil(result.Warnings),
	}
}

func emptyIfNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func emptyViewsIfNil(in []ItemView) []ItemView {
	if in == nil {
		return []ItemView{}
	}
	return in
}

var _ BoardService = (*AppServiceAdapter)(nil)
