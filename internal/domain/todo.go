package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind names the structural state of a todo.
type Kind string

const (
	KindLeaf      Kind = "leaf"
	KindContainer Kind = "container"
)

// NewChildName is the name given to children created by AddChild.
const NewChildName = "New Todo"

// body is either *leaf or *container. Every operation switches over both
// and panics on anything else, so a todo can never hold intervals and
// children at the same time.
type body interface {
	kind() Kind
}

// leaf owns its estimate, completion flag and interval log.
type leaf struct {
	estimate  time.Duration
	completed bool
	records   *TimeRecordCollection
}

func (*leaf) kind() Kind { return KindLeaf }

// container derives estimate, elapsed time and completion from children.
// It is never empty: removing the last child turns it back into a leaf.
type container struct {
	children []*Todo
}

func (*container) kind() Kind { return KindContainer }

// Todo is a task node. The parent is held by id only; ownership flows from
// the parent's child list, or from the manager's root list for top-level
// todos.
type Todo struct {
	id         string
	name       string
	attributes Attributes
	parentID   string
	body       body
}

// NewLeaf builds a detached leaf todo.
func NewLeaf(id, name string, estimate time.Duration, records []TimeRecord, attributes Attributes) *Todo {
	return &Todo{
		id:         id,
		name:       name,
		attributes: attributes,
		body: &leaf{
			estimate: estimate,
			records:  NewTimeRecordCollection(records),
		},
	}
}

// FromRecord builds a detached leaf from r's scalar fields and intervals.
// The parent link is established when the todo is attached.
func FromRecord(r Record) *Todo {
	t := NewLeaf(r.ID, r.Name, r.EstimateTime, r.TimeRecords, NewAttributes(r.Attributes))
	t.body.(*leaf).completed = r.Completed
	return t
}

func unknownBody(b body) string {
	return fmt.Sprintf("todo: unknown body %T", b)
}

func (t *Todo) ID() string { return t.id }
func (t *Todo) Name() string { return t.name }
func (t *Todo) SetName(name string) { t.name = name }
func (t *Todo) Attributes() Attributes { return t.attributes }
func (t *Todo) SetAttributes(a Attributes) { t.attributes = a }
func (t *Todo) Kind() Kind { return t.body.kind() }

// ParentID returns the id of the containing todo, or "" for a top-level todo.
func (t *Todo) ParentID() string { return t.parentID }

// IsChild reports whether the todo is attached to a parent.
func (t *Todo) IsChild() bool { return t.parentID != "" }

func (t *Todo) HasChildren() bool {
	_, ok := t.body.(*container)
	return ok
}

// Children returns the children in order, or nil for a leaf.
func (t *Todo) Children() []*Todo {
	c, ok := t.body.(*container)
	if !ok {
		return nil
	}
	out := make([]*Todo, len(c.children))
	copy(out, c.children)
	return out
}

// UncompletedChildren returns the children that are not completed, in order.
func (t *Todo) UncompletedChildren() []*Todo {
	var out []*Todo
	for _, child := range t.Children() {
		if !child.Completed() {
			out = append(out, child)
		}
	}
	return out
}

// Child returns the direct child with the given id.
func (t *Todo) Child(id string) *Todo {
	c, ok := t.body.(*container)
	if !ok {
		return nil
	}
	for _, child := range c.children {
		if child.id == id {
			return child
		}
	}
	return nil
}

// ChildIndex returns the position of the child with the given id, or -1.
func (t *Todo) ChildIndex(id string) int {
	c, ok := t.body.(*container)
	if !ok {
		return -1
	}
	for i, child := range c.children {
		if child.id == id {
			return i
		}
	}
	return -1
}

// EstimateTime is the leaf's own estimate, or the sum over children.
func (t *Todo) EstimateTime() time.Duration {
	switch b := t.body.(type) {
	case *leaf:
		return b.estimate
	case *container:
		var total time.Duration
		for _, child := range b.children {
			total += child.EstimateTime()
		}
		return total
	default:
		panic(unknownBody(b))
	}
}

// SetEstimateTime sets a leaf's estimate. Containers derive theirs, so the
// call is ignored for them.
func (t *Todo) SetEstimateTime(d time.Duration) {
	if l, ok := t.body.(*leaf); ok {
		l.estimate = d
	}
}

// Completed is the leaf's own flag, or true when every child is completed.
func (t *Todo) Completed() bool {
	switch b := t.body.(type) {
	case *leaf:
		return b.completed
	case *container:
		for _, child := range b.children {
			if !child.Completed() {
				return false
			}
		}
		return true
	default:
		panic(unknownBody(b))
	}
}

// SetCompleted sets a leaf's flag. Ignored for containers.
func (t *Todo) SetCompleted(completed bool) {
	if l, ok := t.body.(*leaf); ok {
		l.completed = completed
	}
}

// ElapsedTime is the tracked time of a leaf, or the sum over children.
func (t *Todo) ElapsedTime(now time.Time) time.Duration {
	switch b := t.body.(type) {
	case *leaf:
		return b.records.ElapsedTime(now)
	case *container:
		var total time.Duration
		for _, child := range b.children {
			total += child.ElapsedTime(now)
		}
		return total
	default:
		panic(unknownBody(b))
	}
}

// RemainingTime is EstimateTime minus ElapsedTime. It goes negative once
// the estimate is exceeded.
func (t *Todo) RemainingTime(now time.Time) time.Duration {
	return t.EstimateTime() - t.ElapsedTime(now)
}

// IsRunning reports an open interval on the leaf or anywhere below.
func (t *Todo) IsRunning() bool {
	switch b := t.body.(type) {
	case *leaf:
		return b.records.IsRunning()
	case *container:
		for _, child := range b.children {
			if child.IsRunning() {
				return true
			}
		}
		return false
	default:
		panic(unknownBody(b))
	}
}

// TimeRecords returns a copy of a leaf's intervals. Containers have none.
func (t *Todo) TimeRecords() []TimeRecord {
	if l, ok := t.body.(*leaf); ok {
		return l.records.Records()
	}
	return nil
}

// RenewTimeRecords replaces a leaf's interval log. Ignored for containers.
func (t *Todo) RenewTimeRecords(records []TimeRecord) {
	if l, ok := t.body.(*leaf); ok {
		l.records.Replace(records)
	}
}

// Start opens an interval on a leaf. A container starts its first
// uncompleted child, recursively, and does nothing when all are completed.
func (t *Todo) Start(now time.Time) {
	switch b := t.body.(type) {
	case *leaf:
		b.records.Start(now)
	case *container:
		for _, child := range b.children {
			if !child.Completed() {
				child.Start(now)
				return
			}
		}
	default:
		panic(unknownBody(b))
	}
}

// Stop closes the open interval of a leaf. A container stops every child so
// no open interval survives anywhere in the subtree.
func (t *Todo) Stop(now time.Time) {
	switch b := t.body.(type) {
	case *leaf:
		b.records.Stop(now)
	case *container:
		for _, child := range b.children {
			child.Stop(now)
		}
	default:
		panic(unknownBody(b))
	}
}

// Complete stops the todo, then marks a leaf completed or completes every
// child of a container.
func (t *Todo) Complete(now time.Time) {
	t.Stop(now)
	switch b := t.body.(type) {
	case *leaf:
		b.completed = true
	case *container:
		for _, child := range b.children {
			child.Complete(now)
		}
	default:
		panic(unknownBody(b))
	}
}

// UnComplete clears the flag of a leaf or of every child of a container.
func (t *Todo) UnComplete() {
	switch b := t.body.(type) {
	case *leaf:
		b.completed = false
	case *container:
		for _, child := range b.children {
			child.UnComplete()
		}
	default:
		panic(unknownBody(b))
	}
}

// GoNext completes the first uncompleted child of a container and starts
// the sibling after it. Leaves are left untouched.
func (t *Todo) GoNext(now time.Time) {
	c, ok := t.body.(*container)
	if !ok {
		return
	}
	for i, child := range c.children {
		if child.Completed() {
			continue
		}
		child.Complete(now)
		if i+1 < len(c.children) {
			c.children[i+1].Start(now)
		}
		return
	}
}

// AddChild creates a new empty leaf with a fresh id and attaches it. When t
// is a leaf it becomes a container first; its own estimate, completion flag
// and intervals are dropped rather than handed to the new child, since a
// container's figures come from its children.
func (t *Todo) AddChild() *Todo {
	child := NewLeaf(uuid.New().String(), NewChildName, 0, nil, Attributes{})
	t.AttachChild(child)
	return child
}

// AttachChild appends an existing todo to the child list, turning t into a
// container if needed. The child must be detached, or already point at t.
// Attaching a todo that belongs to another parent is a programming error.
func (t *Todo) AttachChild(child *Todo) {
	if child == t {
		panic(fmt.Sprintf("todo: cannot attach %s to itself", t.id))
	}
	if child.parentID != "" && child.parentID != t.id {
		panic(fmt.Sprintf("todo: %s is already a child of %s, detach it before attaching to %s",
			child.id, child.parentID, t.id))
	}
	switch b := t.body.(type) {
	case *leaf:
		t.body = &container{children: []*Todo{child}}
	case *container:
		for _, existing := range b.children {
			if existing.id == child.id {
				panic(fmt.Sprintf("todo: %s is already a child of %s", child.id, t.id))
			}
		}
		b.children = append(b.children, child)
	default:
		panic(unknownBody(b))
	}
	child.parentID = t.id
}

// DeleteChild detaches child and clears its parent link. When the last
// child goes, t reverts to a leaf whose estimate and completion flag are the
// aggregate the children had just before removal, with an empty interval
// log. It reports whether child was found.
func (t *Todo) DeleteChild(child *Todo) bool {
	c, ok := t.body.(*container)
	if !ok {
		return false
	}
	idx := -1
	for i, existing := range c.children {
		if existing == child {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	estimate, completed := t.EstimateTime(), t.Completed()
	c.children = append(c.children[:idx], c.children[idx+1:]...)
	child.parentID = ""
	if len(c.children) == 0 {
		t.body = &leaf{estimate: estimate, completed: completed, records: NewTimeRecordCollection(nil)}
	}
	return true
}

// DeleteAllChildren detaches the whole subtree below t, clearing every
// parent link in it, and turns t back into a leaf carrying the aggregate
// estimate and completion flag.
func (t *Todo) DeleteAllChildren() {
	c, ok := t.body.(*container)
	if !ok {
		return
	}
	estimate, completed := t.EstimateTime(), t.Completed()
	for _, child := range c.children {
		child.DeleteAllChildren()
		child.parentID = ""
	}
	t.body = &leaf{estimate: estimate, completed: completed, records: NewTimeRecordCollection(nil)}
}

// Walk visits t and its descendants in pre-order. Returning false from fn
// skips the children of that todo.
func (t *Todo) Walk(fn func(*Todo) bool) {
	if !fn(t) {
		return
	}
	if c, ok := t.body.(*container); ok {
		for _, child := range c.children {
			child.Walk(fn)
		}
	}
}

// Record flattens t. Container records carry the derived estimate and
// completion flag and no intervals.
func (t *Todo) Record() Record {
	return Record{
		ID:           t.id,
		Name:         t.name,
		EstimateTime: t.EstimateTime(),
		Parent:       t.parentID,
		Attributes:   t.attributes.Map(),
		TimeRecords:  t.TimeRecords(),
		Completed:    t.Completed(),
	}
}
