package app

import (
	"context"

	"github.com/hylla/kanflow/internal/domain"
)

// Repository represents work-item persistence used by this package. The
// service treats it as the storage collaborator: items are loaded as a full
// snapshot, mutated in memory, and handed back to persist.
type Repository interface {
	CreateWorkItem(context.Context, domain.WorkItem) error
	UpdateWorkItem(context.Context, domain.WorkItem) error
	GetWorkItem(context.Context, string) (domain.WorkItem, error)
	ListWorkItems(context.Context) ([]domain.WorkItem, error)
	DeleteWorkItem(context.Context, string) error
}
