package render

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// commandBuffer is how many keyboard commands can be waiting for PollInput.
const commandBuffer = 32

const helpLine = "arrows move  s select  m move  a attack  g gather  b barracks  p produce  q quit"

// SnapshotMsg delivers a snapshot to the terminal model.
type SnapshotMsg struct {
	Snap *game.Snapshot
}

// Model is the bubbletea model of the terminal renderer. The player controls
// one faction with a cursor and single-key commands.
type Model struct {
	faction  game.Faction
	snap     *game.Snapshot
	cursor   spatial.Coord
	placed   bool
	selected []game.EntityID
	status   string
	commands chan<- game.Command
}

// NewModel returns a model for faction that sends commands on out.
func NewModel(faction game.Faction, out chan<- game.Command) Model {
	return Model{faction: faction, commands: out}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case SnapshotMsg:
		m.snap = msg.Snap.ForFaction(m.faction)
		if !m.placed {
			m.cursor = m.home()
			m.placed = true
		}
		return m, nil
	case tea.KeyMsg:
		return m.key(msg)
	}
	return m, nil
}

func (m Model) key(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		m.moveCursor(0, -1)
	case "down", "j":
		m.moveCursor(0, 1)
	case "left", "h":
		m.moveCursor(-1, 0)
	case "right", "l":
		m.moveCursor(1, 0)
	case "s", " ":
		m.selectAtCursor()
	case "m":
		m.issue(game.Command{Type: game.CommandMove, UnitIDs: m.selected, Target: m.cursor})
	case "a":
		e, ok := m.entityAtCursor()
		if !ok || e.Faction == m.faction {
			m.status = "no enemy under cursor"
			break
		}
		m.issue(game.Command{Type: game.CommandAttack, UnitIDs: m.selected, TargetID: e.ID})
	case "g":
		m.issue(game.Command{Type: game.CommandGather, UnitIDs: m.selected, Target: m.cursor})
	case "b":
		if len(m.selected) == 0 {
			m.status = "select a worker first"
			break
		}
		m.issue(game.Command{Type: game.CommandBuild, UnitIDs: m.selected[:1], Target: m.cursor, Kind: game.KindBarracks})
	case "p":
		e, ok := m.entityAtCursor()
		if !ok || e.Faction != m.faction || !e.Kind.IsBuilding() {
			m.status = "no building of yours under cursor"
			break
		}
		kind := game.KindWorker
		if e.Kind == game.KindBarracks {
			kind = game.KindSoldier
		}
		m.issue(game.Command{Type: game.CommandProduce, UnitIDs: []game.EntityID{e.ID}, Kind: kind})
	}
	return m, nil
}

func (m *Model) moveCursor(dx, dy int) {
	if m.snap == nil {
		return
	}
	next := m.cursor.Add(spatial.Coord{X: dx, Y: dy})
	if next.X >= 0 && next.X < m.snap.Width && next.Y >= 0 && next.Y < m.snap.Height {
		m.cursor = next
	}
}

func (m *Model) selectAtCursor() {
	e, ok := m.entityAtCursor()
	if !ok || e.Faction != m.faction || e.Kind.IsBuilding() {
		m.selected = nil
		m.status = "selection cleared"
		return
	}
	m.selected = []game.EntityID{e.ID}
	m.issue(game.Command{Type: game.CommandSelect, UnitIDs: m.selected})
}

// issue queues cmd for PollInput without blocking the UI.
func (m *Model) issue(cmd game.Command) {
	cmd.Faction = m.faction
	select {
	case m.commands <- cmd:
		m.status = cmd.Type.String()
	default:
		m.status = "input dropped"
	}
}

func (m Model) entityAtCursor() (game.EntitySnapshot, bool) {
	if m.snap == nil {
		return game.EntitySnapshot{}, false
	}
	return m.snap.EntityAt(m.cursor)
}

// home is the anchor of the faction's first base, else the map origin.
func (m Model) home() spatial.Coord {
	for _, e := range m.snap.Entities {
		if e.Faction == m.faction && e.Kind == game.KindBase {
			return e.Cell
		}
	}
	return spatial.Coord{}
}

func (m Model) View() string {
	if m.snap == nil {
		return "waiting for the first tick...\n"
	}
	var b strings.Builder
	b.WriteString(StatusLine(m.snap))
	b.WriteByte('\n')
	for y := 0; y < m.snap.Height; y++ {
		for x := 0; x < m.snap.Width; x++ {
			c := spatial.Coord{X: x, Y: y}
			if c == m.cursor {
				b.WriteByte('+')
				continue
			}
			b.WriteByte(m.glyph(c))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "cursor %d,%d  selected %v  %s\n", m.cursor.X, m.cursor.Y, m.selected, m.status)
	b.WriteString(helpLine)
	b.WriteByte('\n')
	return b.String()
}

// glyph is the character for a cell: own entities upper case, enemies lower
// case, '*' minerals, '#' rock, '.' ground, ':' remembered ground and ' '
// never seen.
func (m Model) glyph(c spatial.Coord) byte {
	fog := m.snap.FogAt(m.faction, c)
	if fog == visibility.Unexplored {
		return ' '
	}
	if e, ok := m.snap.EntityAt(c); ok {
		g := kindGlyph(e.Kind)
		if e.Faction != m.faction {
			g += 'a' - 'A'
		}
		return g
	}
	if _, ok := m.snap.MineralAt(c); ok {
		return '*'
	}
	if !m.snap.Passable(c) {
		return '#'
	}
	if fog == visibility.Explored {
		return ':'
	}
	return '.'
}

func kindGlyph(k game.Kind) byte {
	switch k {
	case game.KindWorker:
		return 'W'
	case game.KindSoldier:
		return 'S'
	case game.KindBase:
		return 'B'
	case game.KindBarracks:
		return 'K'
	default:
		return '?'
	}
}

// Terminal is the bubbletea renderer. Run owns the terminal; Render and
// PollInput are called from Pump on another goroutine.
type Terminal struct {
	program  *tea.Program
	commands chan game.Command
	done     chan struct{}
}

// NewTerminal creates a terminal renderer for faction.
func NewTerminal(faction game.Faction, opts ...tea.ProgramOption) *Terminal {
	commands := make(chan game.Command, commandBuffer)
	return &Terminal{
		program:  tea.NewProgram(NewModel(faction, commands), opts...),
		commands: commands,
		done:     make(chan struct{}),
	}
}

// Run blocks until the player quits.
func (t *Terminal) Run() error {
	defer close(t.done)
	_, err := t.program.Run()
	return err
}

// Render implements Renderer.
func (t *Terminal) Render(snap *game.Snapshot) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	t.program.Send(SnapshotMsg{Snap: snap})
	return nil
}

// PollInput implements Renderer.
func (t *Terminal) PollInput() (game.Command, bool) {
	select {
	case cmd := <-t.commands:
		return cmd, true
	default:
		return game.Command{}, false
	}
}

// Done is closed when Run returns.
func (t *Terminal) Done() <-chan struct{} {
	return t.done
}
