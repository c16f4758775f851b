package tui

import (
	"context"
	"testing"

	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/repository"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/alexanderramin/todotree/internal/testutil"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T, opts ...service.Option) service.TodoService {
	t.Helper()
	database := testutil.NewTestDB(t)
	opts = append([]service.Option{service.WithClock(testutil.Clock())}, opts...)
	svc, err := service.NewTodoService(context.Background(),
		repository.NewSQLiteTodoRepo(database), testutil.NewTestUoW(database), opts...)
	require.NoError(t, err)
	return svc
}

func seeded(t *testing.T) service.TodoService {
	t.Helper()
	svc := newService(t)
	_, err := svc.Upsert(context.Background(), []domain.Record{
		testutil.NewTestRecord("Plan", testutil.WithID("p")),
		testutil.NewTestRecord("One", testutil.WithID("c1"), testutil.WithParent("p")),
		testutil.NewTestRecord("Two", testutil.WithID("c2"), testutil.WithParent("p")),
		testutil.NewTestRecord("Solo", testutil.WithID("s")),
	})
	require.NoError(t, err)
	return svc
}

func open(t *testing.T, svc service.TodoService, opts ...Option) (*driver, *Model) {
	t.Helper()
	opts = append([]Option{WithClock(testutil.Clock())}, opts...)
	m := New(context.Background(), svc, opts...)
	t.Cleanup(m.Close)
	return newDriver(t, m), m
}

func get(t *testing.T, svc service.TodoService, id string) domain.Record {
	t.Helper()
	rec, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func TestModel_RendersTree(t *testing.T) {
	d, m := open(t, seeded(t))

	out := d.view()
	assert.Contains(t, out, "TODOTREE")
	assert.Contains(t, out, "4 todos")
	assert.Contains(t, out, "› Plan")
	assert.Contains(t, out, "├─ One")
	assert.Contains(t, out, "└─ Two")
	assert.Contains(t, out, "Solo")
	assert.Equal(t, "p", m.Selected())
}

func TestModel_EmptyTree(t *testing.T) {
	svc := newService(t)
	d, m := open(t, svc)

	assert.Contains(t, d.view(), "No todos yet")
	assert.Empty(t, m.Selected())

	d.press("s")
	d.press("a")
	records, err := svc.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, domain.NewChildName, records[0].Name)
	assert.Equal(t, records[0].ID, m.Selected())
}

func TestModel_Navigation(t *testing.T) {
	d, m := open(t, seeded(t))

	d.press("down", "down")
	assert.Equal(t, "c2", m.Selected())
	d.press("j")
	assert.Equal(t, "s", m.Selected())
	d.press("down")
	assert.Equal(t, "s", m.Selected(), "cursor stops at the end")
	d.press("k", "up", "up", "up", "up")
	assert.Equal(t, "p", m.Selected(), "cursor stops at the top")
}

func TestModel_TimeTracking(t *testing.T) {
	svc := seeded(t)
	d, _ := open(t, svc)

	d.press("down", "s")
	rec := get(t, svc, "c1")
	require.Len(t, rec.TimeRecords, 1)
	assert.True(t, rec.TimeRecords[0].IsRunning())
	assert.Contains(t, d.view(), "Started")
	assert.Contains(t, d.view(), "▶ One")

	d.press("x")
	assert.False(t, get(t, svc, "c1").TimeRecords[0].IsRunning())

	d.press("c")
	assert.True(t, get(t, svc, "c1").Completed)
	assert.Contains(t, d.view(), "✔ One")

	d.press("u")
	assert.False(t, get(t, svc, "c1").Completed)
}

func TestModel_NextAndAddChild(t *testing.T) {
	svc := seeded(t)
	d, m := open(t, svc)

	d.press("n")
	assert.True(t, get(t, svc, "c1").Completed)
	assert.True(t, get(t, svc, "c2").TimeRecords[0].IsRunning())

	d.press("a")
	child := get(t, svc, m.Selected())
	assert.Equal(t, "p", child.Parent)
	assert.Equal(t, domain.NewChildName, child.Name)
	assert.Contains(t, d.view(), "5 todos")
}

func TestModel_Rename(t *testing.T) {
	svc := seeded(t)
	d, _ := open(t, svc)

	d.press("e")
	for range len("Plan") {
		d.press("backspace")
	}
	d.typeText("Roadmap")
	d.press("enter")

	assert.Equal(t, "Roadmap", get(t, svc, "p").Name)
	assert.Contains(t, d.view(), "Roadmap")

	d.press("e", "esc")
	assert.Equal(t, "Roadmap", get(t, svc, "p").Name)
}

func TestModel_DeleteNeedsConfirmation(t *testing.T) {
	svc := seeded(t)
	d, m := open(t, svc)

	d.press("d")
	assert.Contains(t, d.view(), "Press d again")
	d.press("down", "up", "d")
	_, err := svc.Get(context.Background(), "p")
	require.NoError(t, err, "moving cancels the pending delete")

	d.press("d")
	_, err = svc.Get(context.Background(), "p")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = svc.Get(context.Background(), "c1")
	require.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, "s", m.Selected())
}

func TestModel_ShowsServiceErrors(t *testing.T) {
	svc := seeded(t)
	d, _ := open(t, svc)

	_, err := svc.Delete(context.Background(), "p")
	require.NoError(t, err)
	d.press("s")

	assert.Contains(t, d.view(), "not found")
}

func TestModel_ReloadsOnHubChange(t *testing.T) {
	h := hub.NewHub(8, nil)
	svc := newService(t, service.WithPublisher(h))
	d, _ := open(t, svc, WithHub(h))
	assert.Equal(t, 1, h.Count())

	_, err := svc.Upsert(context.Background(), []domain.Record{{ID: "r", Name: "From elsewhere"}})
	require.NoError(t, err)
	d.send(changedMsg{})

	assert.Contains(t, d.view(), "From elsewhere")
}

func TestModel_WaitsOnSubscription(t *testing.T) {
	h := hub.NewHub(8, nil)
	m := New(context.Background(), newService(t), WithHub(h))
	defer m.Close()

	h.Publish(domain.ChangeSet{})
	msg := execWithTimeout(m.waitForChange())
	assert.IsType(t, changedMsg{}, msg)

	m.Close()
	assert.Equal(t, 0, h.Count())
}

func TestModel_ResubscribesWhenDropped(t *testing.T) {
	h := hub.NewHub(1, nil)
	svc := newService(t, service.WithPublisher(h))
	d, m := open(t, svc, WithHub(h))
	require.Equal(t, 1, h.Count())

	for _, name := range []string{"A", "B", "C", "Missed"} {
		_, err := svc.Upsert(context.Background(), []domain.Record{{ID: name, Name: name}})
		require.NoError(t, err)
	}
	require.Equal(t, 0, h.Count())

	var msg tea.Msg
	for i := 0; i < 3; i++ {
		msg = execWithTimeout(m.waitForChange())
		if _, ok := msg.(droppedMsg); ok {
			break
		}
	}
	require.IsType(t, droppedMsg{}, msg)

	d.send(msg)
	assert.Equal(t, 1, h.Count())
	out := d.view()
	assert.Contains(t, out, "Missed")
	assert.Contains(t, out, "fell behind")

	// A stale notice for the old subscription is ignored.
	d.send(msg)
	assert.Equal(t, 1, h.Count())
}

func TestModel_NoResubscribeAfterClose(t *testing.T) {
	h := hub.NewHub(1, nil)
	m := New(context.Background(), newService(t), WithHub(h))
	sub := m.sub
	m.Close()

	_, cmd := m.Update(droppedMsg{sub: sub})
	assert.Nil(t, cmd)
	assert.Equal(t, 0, h.Count())
}

func TestModel_HelpAndQuit(t *testing.T) {
	d, _ := open(t, seeded(t))

	assert.Contains(t, d.view(), "start")
	d.press("?")
	assert.Contains(t, d.view(), "rename")

	d.press("q")
	assert.True(t, d.quitting)
}

func TestModel_ScrollsToCursor(t *testing.T) {
	svc := newService(t)
	var records []domain.Record
	for i := range 30 {
		records = append(records, domain.Record{ID: string(rune('a' + i%26)) + string(rune('0'+i/26)), Name: "item"})
	}
	_, err := svc.Upsert(context.Background(), records)
	require.NoError(t, err)

	m := New(context.Background(), svc, WithClock(testutil.Clock()))
	d := newDriver(t, m)
	d.send(tea.WindowSizeMsg{Width: 80, Height: 18})
	for range 29 {
		d.press("down")
	}
	assert.Contains(t, d.view(), "› ")
	assert.Equal(t, records[29].ID, m.Selected())
}
