package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alexanderramin/todotree/internal/db"
	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/repository"
	"github.com/alexanderramin/todotree/internal/tree"
	"github.com/google/uuid"
)

type todoService struct {
	mu        sync.Mutex
	tree      *tree.Manager
	todos     repository.TodoRepo
	uow       db.UnitOfWork
	publisher Publisher
	observer  UseCaseObserver
	now       func() time.Time
}

// Option configures a TodoService.
type Option func(*todoService)

// WithClock replaces the wall clock used to stamp intervals.
func WithClock(now func() time.Time) Option {
	return func(s *todoService) {
		s.now = now
	}
}

// WithPublisher sends every stored ChangeSet to p.
func WithPublisher(p Publisher) Option {
	return func(s *todoService) {
		s.publisher = p
	}
}

func WithObserver(o UseCaseObserver) Option {
	return func(s *todoService) {
		if o != nil {
			s.observer = o
		}
	}
}

// NewTodoService loads the stored tree and serves it. Writes go through uow
// in one transaction per ChangeSet.
func NewTodoService(ctx context.Context, todos repository.TodoRepo, uow db.UnitOfWork, opts ...Option) (TodoService, error) {
	s := &todoService{
		todos:    todos,
		uow:      uow,
		observer: NoopUseCaseObserver{},
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.reload(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *todoService) reload(ctx context.Context) error {
	records, err := s.todos.ListTree(ctx)
	if err != nil {
		return fmt.Errorf("loading todos: %w", err)
	}
	m, err := tree.NewManagerFromRecords(records)
	if err != nil {
		return fmt.Errorf("rebuilding tree: %w", err)
	}
	s.tree = m
	return nil
}

func (s *todoService) Snapshot(ctx context.Context) ([]domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tree.Snapshot(), nil
}

func (s *todoService) Get(ctx context.Context, id string) (domain.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tree.GetTodo(id)
	if err != nil {
		return domain.Record{}, err
	}
	return t.Record(), nil
}

func (s *todoService) Upsert(ctx context.Context, records []domain.Record) (domain.ChangeSet, error) {
	return s.commit(ctx, UseCaseEvent{Name: "upsert", Records: len(records)}, func(m *tree.Manager) (domain.ChangeSet, error) {
		batch := make([]domain.Record, len(records))
		for i, r := range records {
			if r.ID == "" {
				r.ID = uuid.New().String()
			}
			batch[i] = r
		}
		return m.UpsertBatch(batch)
	})
}

// Delete removes id and its subtree. An id that is already gone yields an
// empty ChangeSet, so replaying a delete is harmless.
func (s *todoService) Delete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.commit(ctx, UseCaseEvent{Name: "delete", TodoID: id}, func(m *tree.Manager) (domain.ChangeSet, error) {
		return m.Delete(id), nil
	})
}

func (s *todoService) Start(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "start", id, func(t *domain.Todo, now time.Time) { t.Start(now) })
}

func (s *todoService) Stop(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "stop", id, func(t *domain.Todo, now time.Time) { t.Stop(now) })
}

func (s *todoService) Complete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "complete", id, func(t *domain.Todo, now time.Time) { t.Complete(now) })
}

func (s *todoService) UnComplete(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "uncomplete", id, func(t *domain.Todo, _ time.Time) { t.UnComplete() })
}

func (s *todoService) AddChild(ctx context.Context, parentID string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "add-child", parentID, func(t *domain.Todo, _ time.Time) { t.AddChild() })
}

func (s *todoService) GoNext(ctx context.Context, id string) (domain.ChangeSet, error) {
	return s.mutate(ctx, "go-next", id, func(t *domain.Todo, now time.Time) { t.GoNext(now) })
}

func (s *todoService) mutate(ctx context.Context, name, id string, fn func(*domain.Todo, time.Time)) (domain.ChangeSet, error) {
	return s.commit(ctx, UseCaseEvent{Name: name, TodoID: id}, func(m *tree.Manager) (domain.ChangeSet, error) {
		now := s.now()
		return m.Mutate(id, func(t *domain.Todo) { fn(t, now) })
	})
}

// commit applies fn to the tree, stores the resulting ChangeSet and
// publishes it. When fn or the write fails, the tree is rebuilt from
// storage so memory never runs ahead of the database. event is completed
// and handed to the observer.
func (s *todoService) commit(ctx context.Context, event UseCaseEvent,
	fn func(*tree.Manager) (domain.ChangeSet, error)) (cs domain.ChangeSet, err error) {
	name := event.Name
	event.StartedAt = time.Now()
	defer func() {
		event.Duration = time.Since(event.StartedAt)
		event.Upserted = len(cs.Upsert)
		event.Deleted = len(cs.Delete)
		event.Err = err
		s.observer.ObserveUseCase(ctx, event)
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	cs, err = fn(s.tree)
	if err != nil {
		if rerr := s.reload(ctx); rerr != nil {
			return domain.ChangeSet{}, fmt.Errorf("%w (reload failed: %v)", err, rerr)
		}
		return domain.ChangeSet{}, err
	}
	if cs.IsEmpty() {
		return cs, nil
	}

	positions := s.positions(cs)
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx db.DBTX) error {
		return repository.NewSQLiteTodoRepo(tx).Apply(ctx, cs, positions)
	})
	if err != nil {
		err = fmt.Errorf("storing %s: %w", name, err)
		if rerr := s.reload(ctx); rerr != nil {
			err = fmt.Errorf("%w (reload failed: %v)", err, rerr)
		}
		return domain.ChangeSet{}, err
	}

	if s.publisher != nil {
		s.publisher.Publish(cs)
	}
	return cs, nil
}

// positions lists the sibling index of every root, every upserted todo and
// the children of every upserted todo, which covers every list a ChangeSet
// can reorder.
func (s *todoService) positions(cs domain.ChangeSet) map[string]int {
	positions := make(map[string]int)
	for i, r := range s.tree.TopTodo() {
		positions[r.ID()] = i
	}
	for _, rec := range cs.Upsert {
		t, err := s.tree.GetTodo(rec.ID)
		if err != nil {
			continue
		}
		if pos, err := s.tree.Position(rec.ID); err == nil {
			positions[rec.ID] = pos
		}
		for i, child := range t.Children() {
			positions[child.ID()] = i
		}
	}
	return positions
}
