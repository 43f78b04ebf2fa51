package game

import (
	"bufio"
	"bytes"
	"encoding/json"
	"testing"

	"golang.org/x/time/rate"

	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
)

// TestEventLogWritesNDJSON verifies events are flushed one JSON object per line
func TestEventLogWritesNDJSON(t *testing.T) {
	var buf bytes.Buffer
	el := NewEventLog()
	el.StartWriter(&buf, nil)

	el.EmitBatch([]Event{
		NewEvent(EventTypeUnitSpawned, 1, 1, 7, UnitSpawnedPayload{Kind: KindWorker}),
		NewEvent(EventTypeResourceCollected, 2, 1, 7, ResourcePayload{WorkerID: 7, Amount: 8, Total: 108}),
		NewEvent(EventTypeGameOver, 3, 1, 0, GameOverPayload{Winner: 1}),
	})
	el.Stop()

	sc := bufio.NewScanner(&buf)
	var types []string
	for sc.Scan() {
		var raw map[string]any
		if err := json.Unmarshal(sc.Bytes(), &raw); err != nil {
			t.Fatalf("line is not JSON: %v", err)
		}
		types = append(types, raw["type"].(string))
	}
	want := []string{"unit_spawned", "resource_collected", "game_over"}
	if len(types) != len(want) {
		t.Fatalf("Expected %d lines, got %d", len(want), len(types))
	}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("Expected line %d type %s, got %s", i, want[i], types[i])
		}
	}

	stats := el.GetStats()
	if stats["written"].(uint64) != 3 {
		t.Errorf("Expected 3 written, got %v", stats["written"])
	}
}

// TestEventLogNotRunning verifies emits are refused before Start
func TestEventLogNotRunning(t *testing.T) {
	el := NewEventLog()
	if el.Emit(NewEvent(EventTypeUnitDied, 1, 1, 1, nil)) {
		t.Error("Expected Emit to fail on a stopped log")
	}
	// Stop without Start is a no-op
	el.Stop()
}

// TestEventLogDropsOldest verifies the bounded buffer overwrites the oldest pending event
func TestEventLogDropsOldest(t *testing.T) {
	el := NewEventLog()
	el.globalLimiter = rate.NewLimiter(rate.Inf, 1)
	el.running.Store(true)

	for i := 0; i < EventBufferSize+10; i++ {
		el.Emit(NewEvent(EventTypeAttackLanded, uint64(i), Neutral, 0, nil))
	}
	if el.size != EventBufferSize {
		t.Errorf("Expected %d pending, got %d", EventBufferSize, el.size)
	}
	if got := el.GetDroppedCount(); got < 10 {
		t.Errorf("Expected at least 10 dropped, got %d", got)
	}
	batch := el.collectBatch(nil)
	if batch[0].TickNum < 10 {
		t.Errorf("Expected oldest events dropped, first pending tick %d", batch[0].TickNum)
	}
}

// TestInbox verifies bounded push and ordered drain
func TestInbox(t *testing.T) {
	q := NewInbox(3)
	for i := 0; i < 3; i++ {
		if !q.TryPush(Command{Type: CommandMove, TargetID: EntityID(i)}) {
			t.Fatalf("TryPush %d failed", i)
		}
	}
	if q.TryPush(Command{}) {
		t.Error("Expected full inbox to refuse")
	}

	got := q.Drain()
	if len(got) != 3 {
		t.Fatalf("Expected 3 commands, got %d", len(got))
	}
	for i, cmd := range got {
		if cmd.TargetID != EntityID(i) {
			t.Errorf("Expected arrival order, got %d at %d", cmd.TargetID, i)
		}
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty inbox, got %d", q.Len())
	}
	if !q.TryPush(Command{}) {
		t.Error("Expected room after drain")
	}
}

// TestCommandJSON verifies the wire form of commands
func TestCommandJSON(t *testing.T) {
	in := `{"type":"build","faction":1,"unitIds":[4],"target":{"x":7,"y":5},"kind":"barracks"}`
	var cmd Command
	if err := json.Unmarshal([]byte(in), &cmd); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cmd.Type != CommandBuild || cmd.Kind != KindBarracks || cmd.Faction != 1 {
		t.Errorf("Unexpected command %+v", cmd)
	}
	if cmd.Target.X != 7 || cmd.Target.Y != 5 {
		t.Errorf("Expected target (7,5), got %v", cmd.Target)
	}

	var bad Command
	if err := json.Unmarshal([]byte(`{"type":"teleport"}`), &bad); err == nil {
		t.Error("Expected unknown command type to fail")
	}
}

// TestCommandTypeTextRoundTrip verifies every command type decodes from what it encodes to
func TestCommandTypeTextRoundTrip(t *testing.T) {
	for ct := CommandUnknown; ct <= CommandGather; ct++ {
		t.Run(ct.String(), func(t *testing.T) {
			text, err := ct.MarshalText()
			if err != nil {
				t.Fatalf("MarshalText: %v", err)
			}
			var got CommandType
			if err := got.UnmarshalText(text); err != nil {
				t.Fatalf("UnmarshalText(%q): %v", text, err)
			}
			if got != ct {
				t.Errorf("Expected %s, got %s", ct, got)
			}
		})
	}
}

// TestRejectedUnknownCommandPayload verifies a rejection of an unknown command can be decoded by consumers
func TestRejectedUnknownCommandPayload(t *testing.T) {
	ev := NewEvent(EventTypeCommandRejected, 3, 1, 0, CommandRejectedPayload{
		Command: CommandUnknown,
		Reason:  ReasonUnknownCommand,
	})
	var p CommandRejectedPayload
	if err := DecodePayload(ev.Payload, &p); err != nil {
		t.Fatalf("decode %s: %v", ev.Payload, err)
	}
	if p.Command != CommandUnknown || p.Reason != ReasonUnknownCommand {
		t.Errorf("Expected {unknown %q}, got %+v", ReasonUnknownCommand, p)
	}
}

// TestEventConcerns verifies which factions an event is routed to
func TestEventConcerns(t *testing.T) {
	attack := NewEvent(EventTypeAttackLanded, 1, 1, 5, nil)
	attack.Other = 2

	tests := []struct {
		name    string
		event   Event
		faction Faction
		want    bool
	}{
		{"own event", NewEvent(EventTypeUnitSpawned, 1, 1, 5, nil), 1, true},
		{"other faction's event", NewEvent(EventTypeUnitSpawned, 1, 1, 5, nil), 2, false},
		{"attacker", attack, 1, true},
		{"victim", attack, 2, true},
		{"bystander", attack, 3, false},
		{"neutral", NewEvent(EventTypeMineralDepleted, 1, Neutral, 0, nil), 3, true},
		{"elimination", NewEvent(EventTypeFactionEliminated, 1, 2, 0, nil), 1, true},
		{"game over", NewEvent(EventTypeGameOver, 1, 1, 0, nil), 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.event.Concerns(tt.faction); got != tt.want {
				t.Errorf("Expected Concerns(%d)=%v, got %v", tt.faction, tt.want, got)
			}
		})
	}
}

// TestSnapshotRevealsDepletion verifies a depleted patch is only reported to
// factions that explored its cell
func TestSnapshotRevealsDepletion(t *testing.T) {
	snap := &Snapshot{
		Width:  3,
		Height: 1,
		Fog: map[Faction]FogGrid{
			1: {visibility.Visible, visibility.Explored, visibility.Unexplored},
			2: {visibility.Unexplored, visibility.Unexplored, visibility.Unexplored},
		},
	}
	depleted := func(x int) Event {
		return NewEvent(EventTypeMineralDepleted, 1, Neutral, 0, MineralDepletedPayload{Cell: spatial.Coord{X: x, Y: 0}})
	}

	tests := []struct {
		name    string
		event   Event
		faction Faction
		want    bool
	}{
		{"visible patch", depleted(0), 1, true},
		{"explored patch", depleted(1), 1, true},
		{"unexplored patch", depleted(2), 1, false},
		{"blind faction", depleted(0), 2, false},
		{"no fog grid", depleted(2), 3, true},
		{"own event", NewEvent(EventTypeUnitSpawned, 1, 2, 5, nil), 2, true},
		{"other faction's event", NewEvent(EventTypeUnitSpawned, 1, 2, 5, nil), 1, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := snap.Reveals(tt.faction, tt.event); got != tt.want {
				t.Errorf("Expected Reveals(%d)=%v, got %v", tt.faction, tt.want, got)
			}
		})
	}
}
