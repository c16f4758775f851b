package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLeaf(id string, estimate time.Duration) *Todo {
	return NewLeaf(id, "todo "+id, estimate, nil, Attributes{})
}

// newContainer builds a parent with leaf children of the given estimates.
func newContainer(id string, estimates ...time.Duration) (*Todo, []*Todo) {
	parent := newLeaf(id, 0)
	children := make([]*Todo, len(estimates))
	for i, e := range estimates {
		children[i] = newLeaf(id+"."+string(rune('a'+i)), e)
		parent.AttachChild(children[i])
	}
	return parent, children
}

func TestTodo_LeafStartStop(t *testing.T) {
	todo := newLeaf("1", time.Hour)

	todo.Start(t0)
	assert.True(t, todo.IsRunning())
	todo.Stop(t0.Add(20 * time.Minute))
	assert.False(t, todo.IsRunning())

	assert.Equal(t, KindLeaf, todo.Kind())
	assert.Equal(t, 20*time.Minute, todo.ElapsedTime(t0.Add(time.Hour)))
	assert.Equal(t, 40*time.Minute, todo.RemainingTime(t0.Add(time.Hour)))
}

func TestTodo_ContainerAggregates(t *testing.T) {
	parent, children := newContainer("p", 10*time.Minute, 20*time.Minute)
	children[0].Start(t0)
	children[0].Stop(t0.Add(4 * time.Minute))

	assert.Equal(t, KindContainer, parent.Kind())
	assert.Equal(t, 30*time.Minute, parent.EstimateTime())
	assert.Equal(t, 4*time.Minute, parent.ElapsedTime(t0.Add(time.Hour)))
	assert.Equal(t, 26*time.Minute, parent.RemainingTime(t0.Add(time.Hour)))
	assert.False(t, parent.Completed())
	assert.Nil(t, parent.TimeRecords())

	children[0].SetCompleted(true)
	children[1].SetCompleted(true)
	assert.True(t, parent.Completed())
}

func TestTodo_ContainerIgnoresScalarSetters(t *testing.T) {
	parent, _ := newContainer("p", time.Minute)
	parent.SetEstimateTime(time.Hour)
	parent.SetCompleted(true)
	parent.RenewTimeRecords([]TimeRecord{{Start: t0}})

	assert.Equal(t, time.Minute, parent.EstimateTime())
	assert.False(t, parent.Completed())
	assert.False(t, parent.IsRunning())
}

func TestTodo_ContainerStartDelegatesToFirstUncompleted(t *testing.T) {
	parent, children := newContainer("p", time.Minute, time.Minute, time.Minute)
	children[0].SetCompleted(true)

	parent.Start(t0)

	assert.False(t, children[0].IsRunning())
	assert.True(t, children[1].IsRunning())
	assert.False(t, children[2].IsRunning())
	assert.True(t, parent.IsRunning())
}

func TestTodo_ContainerStartRecursesIntoNestedContainers(t *testing.T) {
	root := newLeaf("r", 0)
	mid, grandchildren := newContainer("m", time.Minute, time.Minute)
	root.AttachChild(mid)
	grandchildren[0].SetCompleted(true)

	root.Start(t0)

	assert.True(t, grandchildren[1].IsRunning())
}

func TestTodo_ContainerStartAllCompletedIsNoop(t *testing.T) {
	parent, children := newContainer("p", time.Minute)
	children[0].SetCompleted(true)

	parent.Start(t0)

	assert.False(t, parent.IsRunning())
}

func TestTodo_ContainerStopFansOut(t *testing.T) {
	parent, children := newContainer("p", time.Minute, time.Minute)
	children[0].Start(t0)
	children[1].Start(t0)

	parent.Stop(t0.Add(time.Minute))

	for _, c := range children {
		assert.False(t, c.IsRunning())
	}
}

func TestTodo_CompleteStopsFirst(t *testing.T) {
	todo := newLeaf("1", time.Hour)
	todo.Start(t0)

	todo.Complete(t0.Add(time.Minute))

	assert.True(t, todo.Completed())
	assert.False(t, todo.IsRunning())
	assert.Equal(t, time.Minute, todo.ElapsedTime(t0.Add(time.Hour)))
}

func TestTodo_ContainerCompleteAndUnComplete(t *testing.T) {
	parent, children := newContainer("p", time.Minute, time.Minute)
	children[1].Start(t0)

	parent.Complete(t0.Add(time.Minute))
	assert.True(t, parent.Completed())
	assert.False(t, parent.IsRunning())
	for _, c := range children {
		assert.True(t, c.Completed())
	}

	parent.UnComplete()
	assert.False(t, parent.Completed())
	assert.Len(t, parent.UncompletedChildren(), 2)
}

func TestTodo_GoNext(t *testing.T) {
	parent, children := newContainer("p", time.Minute, time.Minute, time.Minute)
	children[0].Start(t0)

	parent.GoNext(t0.Add(time.Minute))

	assert.True(t, children[0].Completed())
	assert.False(t, children[0].IsRunning())
	assert.True(t, children[1].IsRunning())

	parent.GoNext(t0.Add(2 * time.Minute))
	parent.GoNext(t0.Add(3 * time.Minute))
	assert.True(t, parent.Completed())
	assert.False(t, parent.IsRunning())
}

func TestTodo_AddChildLeafToContainerRoundTrip(t *testing.T) {
	todo := newLeaf("1", time.Hour)
	todo.Start(t0)
	todo.Stop(t0.Add(2 * time.Minute))
	require.Equal(t, 2*time.Minute, todo.ElapsedTime(t0.Add(time.Hour)))

	child := todo.AddChild()

	assert.True(t, todo.HasChildren())
	assert.NotEmpty(t, child.ID())
	assert.Equal(t, "1", child.ParentID())
	assert.True(t, child.IsChild())
	assert.Zero(t, child.EstimateTime(), "former estimate is not handed to the new child")
	assert.Empty(t, child.TimeRecords(), "former intervals are not handed to the new child")
	assert.Zero(t, todo.EstimateTime())
	assert.Zero(t, todo.ElapsedTime(t0.Add(time.Hour)))

	require.True(t, todo.DeleteChild(child))

	assert.False(t, todo.HasChildren())
	assert.Equal(t, KindLeaf, todo.Kind())
	assert.Empty(t, todo.TimeRecords())
	assert.False(t, todo.IsRunning())
	assert.False(t, child.IsChild())
}

func TestTodo_DeleteLastChildRehydratesFromAggregate(t *testing.T) {
	parent, children := newContainer("p", 25*time.Minute)
	children[0].SetCompleted(true)

	parent.DeleteChild(children[0])

	assert.Equal(t, 25*time.Minute, parent.EstimateTime())
	assert.True(t, parent.Completed())
}

func TestTodo_DeleteChildKeepsContainerWhileChildrenRemain(t *testing.T) {
	parent, children := newContainer("p", time.Minute, 2*time.Minute)

	assert.True(t, parent.DeleteChild(children[0]))
	assert.True(t, parent.HasChildren())
	assert.Equal(t, 2*time.Minute, parent.EstimateTime())
	assert.False(t, parent.DeleteChild(children[0]), "already detached")
}

func TestTodo_AttachChildOwnedElsewherePanics(t *testing.T) {
	a, children := newContainer("a", time.Minute)
	b := newLeaf("b", 0)

	assert.Panics(t, func() { b.AttachChild(children[0]) })
	assert.Panics(t, func() { a.AttachChild(children[0]) })
	assert.Panics(t, func() { a.AttachChild(a) })

	a.DeleteChild(children[0])
	assert.NotPanics(t, func() { b.AttachChild(children[0]) })
	assert.Equal(t, "b", children[0].ParentID())
}

func TestTodo_DeleteAllChildren(t *testing.T) {
	root := newLeaf("r", 0)
	mid, grandchildren := newContainer("m", time.Minute, 2*time.Minute)
	root.AttachChild(mid)

	root.DeleteAllChildren()

	assert.False(t, root.HasChildren())
	assert.Equal(t, 3*time.Minute, root.EstimateTime())
	assert.False(t, mid.IsChild())
	assert.False(t, mid.HasChildren())
	for _, g := range grandchildren {
		assert.False(t, g.IsChild())
	}
}

func TestTodo_Record(t *testing.T) {
	parent, children := newContainer("p", 5*time.Minute, 7*time.Minute)
	parent.SetAttributes(parent.Attributes().With("tag", "x"))
	children[0].Start(t0)

	pr := parent.Record()
	assert.Equal(t, "p", pr.ID)
	assert.Equal(t, 12*time.Minute, pr.EstimateTime)
	assert.Empty(t, pr.Parent)
	assert.Empty(t, pr.TimeRecords)
	assert.Equal(t, map[string]string{"tag": "x"}, pr.Attributes)

	cr := children[0].Record()
	assert.Equal(t, "p", cr.Parent)
	require.Len(t, cr.TimeRecords, 1)
	assert.True(t, cr.TimeRecords[0].IsRunning())
}

func TestFromRecord(t *testing.T) {
	todo := FromRecord(Record{
		ID:           "1",
		Name:         "TestTodo",
		EstimateTime: time.Second,
		Parent:       "ignored-until-attached",
		Attributes:   map[string]string{"k": "v"},
		TimeRecords:  []TimeRecord{closed(t0, time.Second)},
		Completed:    true,
	})

	assert.Equal(t, "TestTodo", todo.Name())
	assert.True(t, todo.Completed())
	assert.False(t, todo.IsChild())
	assert.Equal(t, time.Second, todo.ElapsedTime(t0.Add(time.Hour)))
	assert.Equal(t, 1, todo.Attributes().Len())
}

func TestTodo_WalkPreOrder(t *testing.T) {
	root := newLeaf("r", 0)
	mid, _ := newContainer("m", time.Minute, time.Minute)
	root.AttachChild(mid)
	root.AttachChild(newLeaf("z", 0))

	var ids []string
	root.Walk(func(t *Todo) bool {
		ids = append(ids, t.ID())
		return true
	})
	assert.Equal(t, []string{"r", "m", "m.a", "m.b", "z"}, ids)

	ids = nil
	root.Walk(func(t *Todo) bool {
		ids = append(ids, t.ID())
		return t.ID() != "m"
	})
	assert.Equal(t, []string{"r", "m", "z"}, ids)
}
