package tui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// driver feeds messages through a model synchronously and drains the
// commands it returns. Commands that block (ticks, hub waits, cursor blink)
// are skipped after a short timeout.
type driver struct {
	t        *testing.T
	model    tea.Model
	quitting bool
}

const (
	maxDrainDepth = 100
	cmdTimeout    = 20 * time.Millisecond
)

func newDriver(t *testing.T, model tea.Model) *driver {
	t.Helper()
	d := &driver{t: t, model: model}
	d.drain(model.Init(), 0)
	return d
}

func (d *driver) send(msg tea.Msg) {
	d.t.Helper()
	if d.quitting {
		return
	}
	updated, cmd := d.model.Update(msg)
	d.model = updated
	d.drain(cmd, 0)
}

func (d *driver) press(keys ...string) {
	d.t.Helper()
	for _, k := range keys {
		switch k {
		case "up":
			d.send(tea.KeyMsg{Type: tea.KeyUp})
		case "down":
			d.send(tea.KeyMsg{Type: tea.KeyDown})
		case "enter":
			d.send(tea.KeyMsg{Type: tea.KeyEnter})
		case "esc":
			d.send(tea.KeyMsg{Type: tea.KeyEsc})
		case "backspace":
			d.send(tea.KeyMsg{Type: tea.KeyBackspace})
		default:
			d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)})
		}
	}
}

func (d *driver) typeText(s string) {
	d.t.Helper()
	for _, r := range s {
		d.send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
}

func (d *driver) view() string {
	return d.model.View()
}

func (d *driver) drain(cmd tea.Cmd, depth int) {
	d.t.Helper()
	if cmd == nil {
		return
	}
	if depth >= maxDrainDepth {
		d.t.Logf("driver: drain depth limit (%d) reached", maxDrainDepth)
		return
	}

	msg := execWithTimeout(cmd)
	if msg == nil {
		return
	}
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, sub := range batch {
			d.drain(sub, depth+1)
		}
		return
	}
	if _, ok := msg.(tea.QuitMsg); ok {
		d.quitting = true
		return
	}
	updated, next := d.model.Update(msg)
	d.model = updated
	d.drain(next, depth+1)
}

func execWithTimeout(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() {
		ch <- cmd()
	}()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}
