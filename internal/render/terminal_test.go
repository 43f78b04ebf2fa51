package render

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
)

func press(t *testing.T, m Model, keys ...tea.KeyMsg) Model {
	t.Helper()
	for _, k := range keys {
		next, _ := m.Update(k)
		m = next.(Model)
	}
	return m
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func drain(ch chan game.Command) []game.Command {
	var out []game.Command
	for {
		select {
		case cmd := <-ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
}

func workerID(snap *game.Snapshot) game.EntityID {
	for _, e := range snap.Entities {
		if e.Kind == game.KindWorker {
			return e.ID
		}
	}
	return 0
}

// TestTerminalViewHidesFog verifies the map glyphs for one faction
func TestTerminalViewHidesFog(t *testing.T) {
	snap := wideSnapshot(t)
	ch := make(chan game.Command, 8)
	next, _ := NewModel(1, ch).Update(SnapshotMsg{Snap: snap})
	m := next.(Model)

	if m.cursor != (spatial.Coord{X: 1, Y: 1}) {
		t.Errorf("Expected cursor on the home base, got %v", m.cursor)
	}

	tests := []struct {
		cell spatial.Coord
		want byte
	}{
		{spatial.Coord{X: 2, Y: 1}, 'B'},
		{spatial.Coord{X: 3, Y: 1}, 'W'},
		{spatial.Coord{X: 1, Y: 4}, '*'},
		{spatial.Coord{X: 5, Y: 0}, '#'},
		{spatial.Coord{X: 4, Y: 4}, '.'},
		{spatial.Coord{X: 21, Y: 6}, ' '},
	}
	for _, tt := range tests {
		if got := m.glyph(tt.cell); got != tt.want {
			t.Errorf("Expected %q at %v, got %q", tt.want, tt.cell, got)
		}
	}

	view := m.View()
	if !strings.HasPrefix(view, "tick 0") {
		t.Errorf("Expected the status line first, got %q", strings.SplitN(view, "\n", 2)[0])
	}
	if !strings.Contains(view, helpLine) {
		t.Error("Expected the help line")
	}
}

// TestTerminalKeysIssueCommands verifies keyboard input becomes faction commands
func TestTerminalKeysIssueCommands(t *testing.T) {
	snap := wideSnapshot(t)
	worker := workerID(snap)
	ch := make(chan game.Command, 8)
	next, _ := NewModel(1, ch).Update(SnapshotMsg{Snap: snap})
	m := next.(Model)

	// Onto the worker, select it, walk down two cells, move there.
	m = press(t, m, tea.KeyMsg{Type: tea.KeyRight}, tea.KeyMsg{Type: tea.KeyRight}, runes("s"))
	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, runes("m"))
	// Back to the base and queue a worker.
	m = press(t, m, runes("h"), runes("h"), runes("k"), runes("k"), runes("p"))

	got := drain(ch)
	if len(got) != 3 {
		t.Fatalf("Expected 3 commands, got %+v", got)
	}
	tests := []struct {
		typ  game.CommandType
		ids  []game.EntityID
		cell spatial.Coord
		kind game.Kind
	}{
		{game.CommandSelect, []game.EntityID{worker}, spatial.Coord{}, 0},
		{game.CommandMove, []game.EntityID{worker}, spatial.Coord{X: 3, Y: 3}, 0},
		{game.CommandProduce, nil, spatial.Coord{}, game.KindWorker},
	}
	for i, tt := range tests {
		cmd := got[i]
		if cmd.Type != tt.typ || cmd.Faction != 1 {
			t.Errorf("command %d: expected %s for faction 1, got %s for %d", i, tt.typ, cmd.Type, cmd.Faction)
		}
		if tt.ids != nil && (len(cmd.UnitIDs) != 1 || cmd.UnitIDs[0] != tt.ids[0]) {
			t.Errorf("command %d: expected units %v, got %v", i, tt.ids, cmd.UnitIDs)
		}
		if cmd.Target != tt.cell {
			t.Errorf("command %d: expected target %v, got %v", i, tt.cell, cmd.Target)
		}
		if cmd.Kind != tt.kind {
			t.Errorf("command %d: expected kind %s, got %s", i, tt.kind, cmd.Kind)
		}
	}
}

// TestTerminalRefusesBadTargets verifies keys without a valid target issue nothing
func TestTerminalRefusesBadTargets(t *testing.T) {
	snap := wideSnapshot(t)
	ch := make(chan game.Command, 8)
	next, _ := NewModel(1, ch).Update(SnapshotMsg{Snap: snap})
	m := next.(Model)

	m = press(t, m, tea.KeyMsg{Type: tea.KeyDown}, tea.KeyMsg{Type: tea.KeyDown}, runes("a"))
	if m.status != "no enemy under cursor" {
		t.Errorf("Expected attack refusal, got %q", m.status)
	}
	m = press(t, m, runes("b"))
	if m.status != "select a worker first" {
		t.Errorf("Expected build refusal, got %q", m.status)
	}
	m = press(t, m, runes("p"))
	if m.status != "no building of yours under cursor" {
		t.Errorf("Expected produce refusal, got %q", m.status)
	}
	if got := drain(ch); len(got) != 0 {
		t.Errorf("Expected no commands, got %+v", got)
	}

	// The cursor stays on the map.
	for i := 0; i < 10; i++ {
		m = press(t, m, tea.KeyMsg{Type: tea.KeyLeft}, tea.KeyMsg{Type: tea.KeyUp})
	}
	if m.cursor != (spatial.Coord{}) {
		t.Errorf("Expected cursor clamped at the origin, got %v", m.cursor)
	}

	if _, cmd := m.Update(runes("q")); cmd == nil {
		t.Error("Expected q to quit")
	}
}

// TestTerminalDropsInputWhenFull verifies a full command buffer never blocks the UI
func TestTerminalDropsInputWhenFull(t *testing.T) {
	snap := wideSnapshot(t)
	ch := make(chan game.Command)
	next, _ := NewModel(1, ch).Update(SnapshotMsg{Snap: snap})
	m := press(t, next.(Model), runes("m"))
	if m.status != "input dropped" {
		t.Errorf("Expected input dropped, got %q", m.status)
	}
}

// TestTerminalPollInput verifies queued commands drain through PollInput
func TestTerminalPollInput(t *testing.T) {
	term := NewTerminal(1)
	if _, ok := term.PollInput(); ok {
		t.Fatal("Expected no input")
	}
	term.commands <- game.Command{Type: game.CommandMove}
	cmd, ok := term.PollInput()
	if !ok || cmd.Type != game.CommandMove {
		t.Errorf("Expected the queued move, got %v (ok=%v)", cmd, ok)
	}

	close(term.done)
	if err := term.Render(&game.Snapshot{}); err != ErrClosed {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}
