package repository

import (
	"context"

	"github.com/alexanderramin/todotree/internal/domain"
)

// TodoRepo persists the flat records of a replica's tree.
type TodoRepo interface {
	// Apply writes upserts, then deletes. positions maps todo ids to their
	// index among siblings and may name todos the ChangeSet does not touch.
	// An upserted todo missing from it keeps its stored index, or goes last
	// among its siblings when new.
	Apply(ctx context.Context, cs domain.ChangeSet, positions map[string]int) error
	// ListTree returns every record in pre-order: parents before children,
	// siblings by position.
	ListTree(ctx context.Context) ([]domain.Record, error)
	GetByID(ctx context.Context, id string) (domain.Record, error)
	// Delete removes a todo together with its subtree.
	Delete(ctx context.Context, id string) error
}
