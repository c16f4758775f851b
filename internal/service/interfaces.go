package service

import (
	"context"

	"github.com/alexanderramin/todotree/internal/domain"
)

// TodoService is the replica-facing API over one persisted tree. Every
// mutating call returns the ChangeSet it produced, after that ChangeSet has
// been stored and published. An operation that changes nothing returns an
// empty ChangeSet and publishes nothing.
type TodoService interface {
	// Snapshot returns every record in pre-order.
	Snapshot(ctx context.Context) ([]domain.Record, error)
	Get(ctx context.Context, id string) (domain.Record, error)

	// Upsert adds or updates records in order. Records without an id get a
	// fresh one.
	Upsert(ctx context.Context, records []domain.Record) (domain.ChangeSet, error)
	// Delete removes a todo and its subtree. Deleting an unknown id is a
	// no-op returning an empty ChangeSet.
	Delete(ctx context.Context, id string) (domain.ChangeSet, error)

	Start(ctx context.Context, id string) (domain.ChangeSet, error)
	Stop(ctx context.Context, id string) (domain.ChangeSet, error)
	Complete(ctx context.Context, id string) (domain.ChangeSet, error)
	UnComplete(ctx context.Context, id string) (domain.ChangeSet, error)
	// AddChild creates an empty child under parentID. The new child is the
	// last upserted record of the result.
	AddChild(ctx context.Context, parentID string) (domain.ChangeSet, error)
	GoNext(ctx context.Context, id string) (domain.ChangeSet, error)
}

// Publisher fans a stored ChangeSet out to other replicas.
type Publisher interface {
	Publish(cs domain.ChangeSet)
}

// NewChild returns the record AddChild created.
func NewChild(cs domain.ChangeSet) (domain.Record, bool) {
	if len(cs.Upsert) == 0 {
		return domain.Record{}, false
	}
	return cs.Upsert[len(cs.Upsert)-1], true
}
