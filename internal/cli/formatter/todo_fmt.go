package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/alexanderramin/todotree/internal/domain"
)

// TodoStatus maps a todo onto the RenderTree status vocabulary.
func TodoStatus(t *domain.Todo) string {
	switch {
	case t.Completed():
		return StatusCompleted
	case t.IsRunning():
		return StatusRunning
	default:
		return ""
	}
}

// TimeBadge renders "remaining / estimate" for a todo at now.
func TimeBadge(t *domain.Todo, now time.Time) string {
	return FormatDuration(t.RemainingTime(now)) + " / " + FormatDuration(t.EstimateTime())
}

// TodoTreeItems flattens roots into pre-order tree items.
func TodoTreeItems(roots []*domain.Todo, now time.Time, showIDs bool) []TreeItem {
	var items []TreeItem
	var visit func(t *domain.Todo, level int, last bool)
	visit = func(t *domain.Todo, level int, last bool) {
		item := TreeItem{
			Title:  t.Name(),
			Level:  level,
			IsLast: last,
			Status: TodoStatus(t),
			Detail: TimeBadge(t, now),
		}
		if showIDs {
			item.ID = t.ID()
		}
		items = append(items, item)
		children := t.Children()
		for i, c := range children {
			visit(c, level+1, i == len(children)-1)
		}
	}
	for i, r := range roots {
		visit(r, 0, i == len(roots)-1)
	}
	return items
}

// FormatTodoTree renders every root and its descendants.
func FormatTodoTree(roots []*domain.Todo, now time.Time) string {
	if len(roots) == 0 {
		return Dim("No todos yet. Add one with `todotree add --name ...`.") + "\n"
	}
	return RenderTree(TodoTreeItems(roots, now, true))
}

// FormatTodoDetail renders one todo as a titled box.
func FormatTodoDetail(t *domain.Todo, parentName string, now time.Time) string {
	var b strings.Builder

	row := func(label, value string) {
		fmt.Fprintf(&b, "%s %s\n", StyleDim.Render(fmt.Sprintf("%-10s", label)), value)
	}

	row("ID", t.ID())
	if parentName != "" {
		row("Parent", fmt.Sprintf("%s %s", parentName, TruncID(t.ParentID())))
	}
	row("Kind", string(t.Kind()))

	status := "open"
	switch TodoStatus(t) {
	case StatusCompleted:
		status = StyleGreen.Render("✔ completed")
	case StatusRunning:
		status = StyleYellowBold.Render("▶ running")
	}
	row("Status", status)

	remaining := t.RemainingTime(now)
	row("Estimate", FormatDuration(t.EstimateTime()))
	row("Elapsed", FormatDuration(t.ElapsedTime(now)))
	row("Remaining", RemainingColor(remaining, t.EstimateTime()).Render(FormatDuration(remaining)))

	if t.HasChildren() {
		row("Children", fmt.Sprintf("%d (%d open)", len(t.Children()), len(t.UncompletedChildren())))
	}

	attrs := t.Attributes()
	if attrs.Len() > 0 {
		b.WriteString("\n" + Header("Attributes") + "\n")
		for _, k := range attrs.Keys() {
			v, _ := attrs.Get(k)
			row(k, v)
		}
	}

	if records := t.TimeRecords(); len(records) > 0 {
		rows := make([][]string, 0, len(records))
		for _, r := range records {
			end := StyleYellow.Render("running")
			if r.End != nil {
				end = HumanTimestamp(*r.End, now)
			}
			rows = append(rows, []string{
				HumanTimestamp(r.Start, now),
				end,
				FormatDuration(r.Elapsed(now)),
			})
		}
		b.WriteString("\n" + RenderTable([]string{"START", "END", "DURATION"}, rows))
	}

	return RenderBox(t.Name(), strings.TrimRight(b.String(), "\n")) + "\n"
}

// FormatChangeSummary describes the effect of a command, such as
// "2 updated, 1 deleted".
func FormatChangeSummary(cs domain.ChangeSet) string {
	if cs.IsEmpty() {
		return "no changes"
	}
	var parts []string
	if n := len(cs.Upsert); n > 0 {
		parts = append(parts, fmt.Sprintf("%d updated", n))
	}
	if n := len(cs.Delete); n > 0 {
		parts = append(parts, fmt.Sprintf("%d deleted", n))
	}
	return strings.Join(parts, ", ")
}
