package game

import (
	"fmt"
	"strings"
	"sync"

	"microcraft/internal/game/spatial"
)

// CommandType identifies a command primitive.
type CommandType uint8

const (
	CommandUnknown CommandType = iota
	CommandSelect
	CommandMove
	CommandAttack
	CommandBuild
	CommandProduce
	CommandGather
)

func (t CommandType) String() string {
	switch t {
	case CommandSelect:
		return "select"
	case CommandMove:
		return "move"
	case CommandAttack:
		return "attack"
	case CommandBuild:
		return "build"
	case CommandProduce:
		return "produce"
	case CommandGather:
		return "gather"
	default:
		return "unknown"
	}
}

// ParseCommandType is the inverse of String.
func ParseCommandType(s string) (CommandType, error) {
	switch strings.ToLower(s) {
	case "select":
		return CommandSelect, nil
	case "move":
		return CommandMove, nil
	case "attack":
		return CommandAttack, nil
	case "build":
		return CommandBuild, nil
	case "produce":
		return CommandProduce, nil
	case "gather":
		return CommandGather, nil
	case "unknown":
		// Written by String for CommandUnknown; such commands are rejected
		// by the world, not the decoder.
		return CommandUnknown, nil
	}
	return CommandUnknown, fmt.Errorf("unknown command %q", s)
}

func (t CommandType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *CommandType) UnmarshalText(b []byte) error {
	parsed, err := ParseCommandType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Command is one player instruction. Which fields matter depends on Type:
//
//	select   UnitIDs
//	move     UnitIDs (or the selection), Target
//	attack   UnitIDs (or the selection), TargetID
//	build    UnitIDs[0] is the worker, Kind, Target is the footprint anchor
//	produce  UnitIDs[0] is the building, Kind
//	gather   UnitIDs (or the selection), Target is the mineral cell
type Command struct {
	Type     CommandType   `json:"type"`
	Faction  Faction       `json:"faction"`
	UnitIDs  []EntityID    `json:"unitIds,omitempty"`
	Target   spatial.Coord `json:"target"`
	TargetID EntityID      `json:"targetId,omitempty"`
	Kind     Kind          `json:"kind,omitempty"`
}

// Commander is the command surface shared by human input and the opponent
// controller. Every call goes through the same validation.
type Commander interface {
	SelectUnits(ids []EntityID) error
	Move(ids []EntityID, target spatial.Coord) error
	Attack(ids []EntityID, target EntityID) error
	Build(worker EntityID, kind Kind, anchor spatial.Coord) error
	Produce(building EntityID, kind Kind) error
	Gather(ids []EntityID, mineral spatial.Coord) error
}

// factionCommander issues commands for one faction directly into the world.
// It must only be used from inside the tick.
type factionCommander struct {
	world   *World
	faction Faction
}

func (c factionCommander) SelectUnits(ids []EntityID) error {
	return c.world.Issue(Command{Type: CommandSelect, Faction: c.faction, UnitIDs: ids})
}

func (c factionCommander) Move(ids []EntityID, target spatial.Coord) error {
	return c.world.Issue(Command{Type: CommandMove, Faction: c.faction, UnitIDs: ids, Target: target})
}

func (c factionCommander) Attack(ids []EntityID, target EntityID) error {
	return c.world.Issue(Command{Type: CommandAttack, Faction: c.faction, UnitIDs: ids, TargetID: target})
}

func (c factionCommander) Build(worker EntityID, kind Kind, anchor spatial.Coord) error {
	return c.world.Issue(Command{Type: CommandBuild, Faction: c.faction, UnitIDs: []EntityID{worker}, Kind: kind, Target: anchor})
}

func (c factionCommander) Produce(building EntityID, kind Kind) error {
	return c.world.Issue(Command{Type: CommandProduce, Faction: c.faction, UnitIDs: []EntityID{building}, Kind: kind})
}

func (c factionCommander) Gather(ids []EntityID, mineral spatial.Coord) error {
	return c.world.Issue(Command{Type: CommandGather, Faction: c.faction, UnitIDs: ids, Target: mineral})
}

// Inbox is a bounded multi-producer command queue drained by the tick
// driver at the start of each tick.
type Inbox struct {
	mu      sync.Mutex
	pending []Command
	spare   []Command
	limit   int
}

// NewInbox creates an inbox holding at most limit commands per tick.
func NewInbox(limit int) *Inbox {
	if limit < 1 {
		limit = 1
	}
	return &Inbox{
		pending: make([]Command, 0, limit),
		spare:   make([]Command, 0, limit),
		limit:   limit,
	}
}

// TryPush queues cmd. Returns false if the inbox is full.
func (q *Inbox) TryPush(cmd Command) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) >= q.limit {
		return false
	}
	q.pending = append(q.pending, cmd)
	return true
}

// Drain returns the queued commands in arrival order. The returned slice is
// reused by the next Drain.
func (q *Inbox) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = q.spare[:0]
	q.spare = out
	return out
}

// Len returns the number of queued commands.
func (q *Inbox) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
