// Package tui is an interactive tree browser over any TodoService, local or
// remote. It redraws whenever the hub reports a change.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/todotree/internal/cli/formatter"
	"github.com/alexanderramin/todotree/internal/domain"
	"github.com/alexanderramin/todotree/internal/hub"
	"github.com/alexanderramin/todotree/internal/service"
	"github.com/alexanderramin/todotree/internal/tree"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const tickInterval = time.Second

type (
	loadedMsg struct {
		tree *tree.Manager
		err  error
	}
	changedMsg struct{}
	// droppedMsg reports that the hub ended sub, usually because the
	// browser fell behind.
	droppedMsg struct {
		sub *hub.Subscription
	}
	doneMsg    struct {
		status string
		cs     domain.ChangeSet
		err    error
	}
	tickMsg time.Time
)

type Option func(*Model)

// WithClock overrides the time used to render running intervals.
func WithClock(now func() time.Time) Option {
	return func(m *Model) {
		m.now = now
	}
}

// WithHub reloads the tree on every change published to h.
func WithHub(h *hub.Hub) Option {
	return func(m *Model) {
		m.hub = h
	}
}

// Model is the bubbletea model for the browser.
type Model struct {
	ctx    context.Context
	todos  service.TodoService
	now    func() time.Time
	hub    *hub.Hub
	sub    *hub.Subscription
	closed bool

	tree *tree.Manager
	ids  []string

	cursor   int
	selected string
	offset   int
	width    int
	height   int

	keys    keyMap
	help    help.Model
	input   textinput.Model
	editing string

	pendingDelete string
	status        string
	statusErr     bool
	quitting      bool
}

// New creates a browser. Call Close when done to release the hub
// subscription.
func New(ctx context.Context, todos service.TodoService, opts ...Option) *Model {
	input := textinput.New()
	input.Prompt = "name: "
	input.CharLimit = 200

	m := &Model{
		ctx:   ctx,
		todos: todos,
		now:   time.Now,
		keys:  defaultKeyMap(),
		help:  help.New(),
		input: input,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.hub != nil {
		m.sub = m.hub.Subscribe()
	}
	return m
}

// Close releases the hub subscription.
func (m *Model) Close() {
	m.closed = true
	if m.sub != nil {
		m.hub.Unsubscribe(m.sub.ID)
		m.sub = nil
	}
}

// Run opens the browser on the terminal until the user quits or ctx ends.
func Run(ctx context.Context, todos service.TodoService, opts ...Option) error {
	m := New(ctx, todos, opts...)
	defer m.Close()

	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.load(), m.waitForChange(), tick())
}

func (m *Model) load() tea.Cmd {
	return func() tea.Msg {
		records, err := m.todos.Snapshot(m.ctx)
		if err != nil {
			return loadedMsg{err: err}
		}
		t, err := tree.NewManagerFromRecords(records)
		return loadedMsg{tree: t, err: err}
	}
}

func (m *Model) waitForChange() tea.Cmd {
	if m.sub == nil {
		return nil
	}
	sub := m.sub
	return func() tea.Msg {
		select {
		case _, ok := <-sub.C():
			if !ok {
				return droppedMsg{sub: sub}
			}
			return changedMsg{}
		case <-m.ctx.Done():
			return nil
		}
	}
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// run executes a command against the selected todo.
func (m *Model) run(status string, fn func(ctx context.Context) (domain.ChangeSet, error)) tea.Cmd {
	return func() tea.Msg {
		cs, err := fn(m.ctx)
		return doneMsg{status: status, cs: cs, err: err}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case loadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setTree(msg.tree)
		return m, nil

	case changedMsg:
		return m, tea.Batch(m.load(), m.waitForChange())

	case droppedMsg:
		if m.closed || m.hub == nil || msg.sub != m.sub {
			return m, nil
		}
		// Changes were missed; subscribe again and reload everything.
		m.sub = m.hub.Subscribe()
		m.status, m.statusErr = "Live updates fell behind; reloaded", false
		return m, tea.Batch(m.load(), m.waitForChange())

	case doneMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.status, m.statusErr = msg.status, false
			if child, ok := service.NewChild(msg.cs); ok && strings.HasPrefix(msg.status, "Added") {
				m.selected = child.ID
			}
		}
		return m, m.load()

	case tickMsg:
		return m, tick()

	case tea.KeyMsg:
		if m.editing != "" {
			return m.updateEditing(msg)
		}
		return m.updateBrowsing(msg)
	}
	return m, nil
}

func (m *Model) updateBrowsing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	pending := m.pendingDelete
	m.pendingDelete = ""
	id := m.selected

	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Up):
		m.move(-1)
	case key.Matches(msg, m.keys.Down):
		m.move(1)
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()
	case key.Matches(msg, m.keys.AddChild):
		if id == "" {
			return m, m.run("Added todo", func(ctx context.Context) (domain.ChangeSet, error) {
				return m.todos.Upsert(ctx, []domain.Record{{Name: domain.NewChildName}})
			})
		}
		return m, m.run("Added child", func(ctx context.Context) (domain.ChangeSet, error) {
			return m.todos.AddChild(ctx, id)
		})
	}

	if id == "" {
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Start):
		return m, m.run("Started", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.Start(ctx, id) })
	case key.Matches(msg, m.keys.Stop):
		return m, m.run("Stopped", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.Stop(ctx, id) })
	case key.Matches(msg, m.keys.Complete):
		return m, m.run("Completed", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.Complete(ctx, id) })
	case key.Matches(msg, m.keys.UnComplete):
		return m, m.run("Reopened", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.UnComplete(ctx, id) })
	case key.Matches(msg, m.keys.Next):
		return m, m.run("Advanced", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.GoNext(ctx, id) })
	case key.Matches(msg, m.keys.Rename):
		t, err := m.tree.GetTodo(id)
		if err != nil {
			m.setError(err)
			return m, nil
		}
		m.editing = id
		m.input.SetValue(t.Name())
		m.input.CursorEnd()
		return m, m.input.Focus()
	case key.Matches(msg, m.keys.Delete):
		if pending != id {
			m.pendingDelete = id
			m.status, m.statusErr = "Press d again to delete "+m.name(id)+" and its children", false
			return m, nil
		}
		return m, m.run("Deleted", func(ctx context.Context) (domain.ChangeSet, error) { return m.todos.Delete(ctx, id) })
	}
	return m, nil
}

func (m *Model) updateEditing(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.stopEditing()
		return m, nil
	case tea.KeyEnter:
		id, name := m.editing, strings.TrimSpace(m.input.Value())
		m.stopEditing()
		if name == "" {
			m.status, m.statusErr = "Name cannot be empty", true
			return m, nil
		}
		return m, m.run("Renamed", func(ctx context.Context) (domain.ChangeSet, error) {
			rec, err := m.todos.Get(ctx, id)
			if err != nil {
				return domain.ChangeSet{}, err
			}
			rec.Name = name
			return m.todos.Upsert(ctx, []domain.Record{rec})
		})
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) stopEditing() {
	m.editing = ""
	m.input.Blur()
	m.input.Reset()
}

func (m *Model) setError(err error) {
	m.status, m.statusErr = err.Error(), true
}

// setTree swaps in a fresh tree, keeping the selection on the same todo
// when it still exists.
func (m *Model) setTree(t *tree.Manager) {
	m.tree = t
	records := t.Snapshot()
	m.ids = make([]string, len(records))
	for i, r := range records {
		m.ids[i] = r.ID
	}

	m.cursor = min(m.cursor, max(len(m.ids)-1, 0))
	for i, id := range m.ids {
		if id == m.selected {
			m.cursor = i
			break
		}
	}
	m.selected = ""
	if len(m.ids) > 0 {
		m.selected = m.ids[m.cursor]
	}
}

func (m *Model) move(delta int) {
	if len(m.ids) == 0 {
		return
	}
	m.cursor = min(max(m.cursor+delta, 0), len(m.ids)-1)
	m.selected = m.ids[m.cursor]
}

func (m *Model) name(id string) string {
	if m.tree != nil {
		if t, err := m.tree.GetTodo(id); err == nil {
			return fmt.Sprintf("%q", t.Name())
		}
	}
	return id
}

// Selected returns the id under the cursor, or "" for an empty tree.
func (m *Model) Selected() string { return m.selected }

func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(formatter.StyleHeader.Render("TODOTREE"))
	if m.tree != nil {
		b.WriteString(formatter.Dim(fmt.Sprintf("  %d todos", m.tree.Len())))
	}
	b.WriteString("\n")
	b.WriteString(formatter.Dim(strings.Repeat("─", max(m.width, 20))) + "\n")

	b.WriteString(m.renderTree())

	if m.editing != "" {
		b.WriteString("\n" + m.input.View() + "\n")
	}

	if m.status != "" {
		style := formatter.StyleGreen
		if m.statusErr {
			style = formatter.StyleRed
		}
		b.WriteString("\n" + style.Render(m.status) + "\n")
	}

	b.WriteString("\n" + m.help.View(m.keys))
	return b.String()
}

func (m *Model) renderTree() string {
	if m.tree == nil {
		return formatter.Dim("Loading…") + "\n"
	}
	if m.tree.Len() == 0 {
		return formatter.Dim("No todos yet. Press a to add one.") + "\n"
	}

	lines := strings.Split(strings.TrimRight(
		formatter.RenderTree(formatter.TodoTreeItems(m.tree.TopTodo(), m.now(), false)), "\n"), "\n")

	start, end := m.window(len(lines))
	cursorStyle := lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)

	var b strings.Builder
	for i := start; i < end; i++ {
		if i == m.cursor {
			b.WriteString(cursorStyle.Render("› ") + lines[i] + "\n")
		} else {
			b.WriteString("  " + lines[i] + "\n")
		}
	}
	return b.String()
}

// window returns the visible line range, scrolling to keep the cursor on
// screen when the terminal is shorter than the tree.
func (m *Model) window(n int) (int, int) {
	rows := m.height - 8
	if m.height == 0 || rows <= 0 || n <= rows {
		return 0, n
	}
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+rows {
		m.offset = m.cursor - rows + 1
	}
	m.offset = min(m.offset, n-rows)
	return m.offset, m.offset + rows
}
