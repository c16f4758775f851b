// Package tree holds the replicated todo tree of one replica.
//
// A Manager indexes every todo by id and keeps the ordered list of top-level
// todos. Every mutation returns a domain.ChangeSet naming exactly the
// records that changed, and feeding that ChangeSet to another Manager's
// ApplyChange reproduces the mutation there.
//
// A Manager is not safe for concurrent use. Callers serialize access, for
// example behind one mutex per replica.
package tree

import (
	"fmt"

	"github.com/alexanderramin/todotree/internal/domain"
)

// Manager owns the id index and the root list of one replica.
type Manager struct {
	index map[string]*domain.Todo
	roots []*domain.Todo
}

func NewManager() *Manager {
	return &Manager{index: make(map[string]*domain.Todo)}
}

// NewManagerFromRecords builds a replica from a snapshot.
func NewManagerFromRecords(records []domain.Record) (*Manager, error) {
	m := NewManager()
	if _, err := m.UpsertBatch(records); err != nil {
		return nil, err
	}
	return m, nil
}

// TopTodo returns the top-level todos in order.
func (m *Manager) TopTodo() []*domain.Todo {
	out := make([]*domain.Todo, len(m.roots))
	copy(out, m.roots)
	return out
}

// Len returns the number of indexed todos.
func (m *Manager) Len() int {
	return len(m.index)
}

// GetTodo looks up a todo by id.
func (m *Manager) GetTodo(id string) (*domain.Todo, error) {
	t, ok := m.index[id]
	if !ok {
		return nil, fmt.Errorf("todo %s: %w", id, domain.ErrNotFound)
	}
	return t, nil
}

// Parent resolves the parent link of t through the index.
func (m *Manager) Parent(t *domain.Todo) (*domain.Todo, bool) {
	if !t.IsChild() {
		return nil, false
	}
	p, ok := m.index[t.ParentID()]
	return p, ok
}

// Position returns the index of the todo among its siblings, or among the
// roots for a top-level todo.
func (m *Manager) Position(id string) (int, error) {
	t, err := m.GetTodo(id)
	if err != nil {
		return 0, err
	}
	if p, ok := m.Parent(t); ok {
		return p.ChildIndex(id), nil
	}
	for i, r := range m.roots {
		if r == t {
			return i, nil
		}
	}
	return 0, fmt.Errorf("todo %s is neither a root nor attached", id)
}

// Walk visits every todo in pre-order, roots in order.
func (m *Manager) Walk(fn func(*domain.Todo) bool) {
	for _, r := range m.roots {
		r.Walk(fn)
	}
}

// Snapshot flattens the tree in pre-order, so parents precede children and
// siblings keep their order. UpsertBatch of a snapshot into an empty
// Manager reproduces the tree.
func (m *Manager) Snapshot() []domain.Record {
	records := make([]domain.Record, 0, len(m.index))
	m.Walk(func(t *domain.Todo) bool {
		records = append(records, t.Record())
		return true
	})
	return records
}

// Upsert adds or updates the todo described by r.
//
// An unknown id is added. When r names a parent this replica has not seen
// yet, a phantom parent is created at the top level first and reconciled
// when its own record arrives. A known id is diffed field by field, and
// only fields that differ are written; an upsert that changes nothing
// returns an empty ChangeSet. The delete side of the result is always empty.
func (m *Manager) Upsert(r domain.Record) (domain.ChangeSet, error) {
	if err := r.Validate(); err != nil {
		return domain.ChangeSet{}, err
	}
	if _, ok := m.index[r.ID]; ok {
		return m.update(r)
	}
	return m.add(r), nil
}

// UpsertBatch validates every record, then upserts them in order and
// concatenates the results. A malformed record, including one whose move
// would make a todo its own ancestor at that point in the batch, rejects
// the whole batch before anything is applied.
func (m *Manager) UpsertBatch(records []domain.Record) (domain.ChangeSet, error) {
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return domain.ChangeSet{}, err
		}
	}
	if err := m.checkMoves(records); err != nil {
		return domain.ChangeSet{}, err
	}
	var cs domain.ChangeSet
	for _, r := range records {
		one, err := m.Upsert(r)
		if err != nil {
			return cs, err
		}
		cs = cs.Merge(one)
	}
	return cs, nil
}

func (m *Manager) add(r domain.Record) domain.ChangeSet {
	var cs domain.ChangeSet

	// A child created locally with AddChild is already attached to its
	// parent but not indexed yet. Register it instead of building a twin.
	if r.Parent != "" {
		if parent, ok := m.index[r.Parent]; ok {
			if existing := parent.Child(r.ID); existing != nil {
				m.index[r.ID] = existing
				m.registerSubtree(existing)
				cs.AddUpsert(parent.Record())
				upd, _ := m.update(r)
				cs = cs.Merge(upd)
				if !containsID(upd.Upsert, r.ID) {
					cs.AddUpsert(existing.Record())
				}
				return cs
			}
		}
	}

	todo := domain.FromRecord(r)
	m.index[r.ID] = todo
	if r.Parent == "" {
		m.roots = append(m.roots, todo)
		cs.AddUpsert(todo.Record())
		return cs
	}

	parent := m.ensureIndexed(r.Parent)
	parent.AttachChild(todo)
	cs.AddUpsert(parent.Record(), todo.Record())
	return cs
}

// ensureIndexed returns the todo for id, creating a top-level phantom when
// the id is unknown.
func (m *Manager) ensureIndexed(id string) *domain.Todo {
	if t, ok := m.index[id]; ok {
		return t
	}
	m.add(domain.PhantomRecord(id))
	return m.index[id]
}

func (m *Manager) update(r domain.Record) (domain.ChangeSet, error) {
	var cs domain.ChangeSet
	todo := m.index[r.ID]

	reparent := todo.ParentID() != r.Parent
	if reparent && r.Parent != "" && m.isDescendant(r.Parent, todo) {
		return cs, fmt.Errorf("moving %s under %s would create a cycle: %w",
			r.ID, r.Parent, domain.ErrMalformedRecord)
	}

	dirty := false
	if attrs := domain.NewAttributes(r.Attributes); !todo.Attributes().Equal(attrs) {
		todo.SetAttributes(attrs)
		dirty = true
	}
	// Estimate, completion and intervals of a container are derived from its
	// children, so incoming values for them are not applied.
	if !todo.HasChildren() {
		if !domain.SameTimeRecords(todo.TimeRecords(), r.TimeRecords) {
			todo.RenewTimeRecords(r.TimeRecords)
			dirty = true
		}
		if todo.Completed() != r.Completed {
			todo.SetCompleted(r.Completed)
			dirty = true
		}
		if todo.EstimateTime() != r.EstimateTime {
			todo.SetEstimateTime(r.EstimateTime)
			dirty = true
		}
	}
	if todo.Name() != r.Name {
		todo.SetName(r.Name)
		dirty = true
	}

	if reparent {
		if old, ok := m.Parent(todo); ok {
			old.DeleteChild(todo)
			cs.AddUpsert(old.Record())
		} else {
			m.removeRoot(todo)
		}
		if r.Parent != "" {
			parent := m.ensureIndexed(r.Parent)
			parent.AttachChild(todo)
			cs.AddUpsert(parent.Record())
		} else {
			m.roots = append(m.roots, todo)
		}
		dirty = true
	}

	if dirty {
		cs.AddUpsert(todo.Record())
	}
	return cs, nil
}

// checkMoves replays the parent links of records in order over a copy of
// the current links, phantoms included, and fails at the first record that
// would close a cycle.
func (m *Manager) checkMoves(records []domain.Record) error {
	moved := make(map[string]string)
	parentOf := func(id string) (string, bool) {
		if p, ok := moved[id]; ok {
			return p, true
		}
		if t, ok := m.index[id]; ok {
			return t.ParentID(), true
		}
		return "", false
	}

	for _, r := range records {
		old, known := parentOf(r.ID)
		if known && r.Parent != "" && old != r.Parent {
			for id, ok := r.Parent, true; ok && id != ""; id, ok = parentOf(id) {
				if id == r.ID {
					return fmt.Errorf("moving %s under %s would create a cycle: %w",
						r.ID, r.Parent, domain.ErrMalformedRecord)
				}
			}
		}
		if r.Parent != "" {
			if _, ok := parentOf(r.Parent); !ok {
				moved[r.Parent] = ""
			}
		}
		moved[r.ID] = r.Parent
	}
	return nil
}

// isDescendant reports whether id is t itself or lies below t.
func (m *Manager) isDescendant(id string, t *domain.Todo) bool {
	cur, ok := m.index[id]
	for ok {
		if cur == t {
			return true
		}
		cur, ok = m.Parent(cur)
	}
	return false
}

// Delete removes a todo and its whole subtree. The former parent stays and
// is reported on the upsert side with its new aggregate state. Deleting an
// unknown id is a no-op, so replaying a ChangeSet is safe.
func (m *Manager) Delete(id string) domain.ChangeSet {
	var cs domain.ChangeSet
	todo, ok := m.index[id]
	if !ok {
		return cs
	}

	self := todo.Record()
	if parent, ok := m.Parent(todo); ok {
		parent.DeleteChild(todo)
		cs.AddUpsert(parent.Record())
	} else {
		m.removeRoot(todo)
	}
	m.cascade(todo, &cs)
	cs.AddDelete(self)
	delete(m.index, id)
	return cs
}

// DeleteMany deletes each id in order and concatenates the results.
func (m *Manager) DeleteMany(ids ...string) domain.ChangeSet {
	var cs domain.ChangeSet
	for _, id := range ids {
		cs = cs.Merge(m.Delete(id))
	}
	return cs
}

// cascade unindexes every descendant of t without detaching them one by
// one from parents that are going away anyway.
func (m *Manager) cascade(t *domain.Todo, cs *domain.ChangeSet) {
	for _, child := range t.Children() {
		record := child.Record()
		m.cascade(child, cs)
		cs.AddDelete(record)
		delete(m.index, child.ID())
	}
	t.DeleteAllChildren()
}

// ApplyChange replays a ChangeSet produced by another replica: upserts
// first, then deletes. It returns what actually changed locally.
func (m *Manager) ApplyChange(change domain.ChangeSet) (domain.ChangeSet, error) {
	upserted, err := m.UpsertBatch(change.Upsert)
	if err != nil {
		return upserted, err
	}
	return upserted.Merge(m.DeleteMany(change.DeleteIDs()...)), nil
}

// Mutate runs a local state change on one todo, such as Start, Complete or
// AddChild, and reports every record in the todo's ancestor chain and
// subtree whose flat form changed. Children created inside fn are indexed.
// fn must not detach children; use Delete for that.
func (m *Manager) Mutate(id string, fn func(*domain.Todo)) (domain.ChangeSet, error) {
	todo, err := m.GetTodo(id)
	if err != nil {
		return domain.ChangeSet{}, err
	}

	ancestors := m.ancestors(todo)
	before := make(map[string]domain.Record)
	for _, a := range ancestors {
		before[a.ID()] = a.Record()
	}
	todo.Walk(func(t *domain.Todo) bool {
		before[t.ID()] = t.Record()
		return true
	})

	fn(todo)

	var cs domain.ChangeSet
	emit := func(t *domain.Todo) {
		after := t.Record()
		if prev, ok := before[t.ID()]; !ok || !prev.Equal(after) {
			cs.AddUpsert(after)
		}
	}
	for _, a := range ancestors {
		emit(a)
	}
	todo.Walk(func(t *domain.Todo) bool {
		if _, ok := m.index[t.ID()]; !ok {
			m.index[t.ID()] = t
		}
		emit(t)
		return true
	})
	return cs, nil
}

// ancestors returns the parent chain of t, top-level todo first.
func (m *Manager) ancestors(t *domain.Todo) []*domain.Todo {
	var chain []*domain.Todo
	for p, ok := m.Parent(t); ok; p, ok = m.Parent(p) {
		chain = append([]*domain.Todo{p}, chain...)
	}
	return chain
}

func (m *Manager) registerSubtree(t *domain.Todo) {
	t.Walk(func(d *domain.Todo) bool {
		if _, ok := m.index[d.ID()]; !ok {
			m.index[d.ID()] = d
		}
		return true
	})
}

func (m *Manager) removeRoot(t *domain.Todo) {
	for i, r := range m.roots {
		if r == t {
			m.roots = append(m.roots[:i], m.roots[i+1:]...)
			return
		}
	}
}

func containsID(records []domain.Record, id string) bool {
	for _, r := range records {
		if r.ID == id {
			return true
		}
	}
	return false
}
