package game

import (
	"encoding/json"

	"microcraft/internal/game/spatial"
)

// EventType enum for event classification
type EventType uint8

const (
	EventTypeUnknown EventType = iota
	EventTypeUnitSpawned
	EventTypeUnitDied
	EventTypeAttackLanded
	EventTypeBuildingPlaced
	EventTypeBuildingCompleted
	EventTypeProductionStarted
	EventTypeProductionCompleted
	EventTypeResourceCollected
	EventTypeMineralDepleted
	EventTypeBaseUnderAttack
	EventTypeCommandRejected
	EventTypePathFailed
	EventTypeAIStateChanged
	EventTypeFactionEliminated
	EventTypeGameOver
)

// EventVersion for backwards compatibility in archived logs
const EventVersion uint8 = 1

// Event is the core event structure for the outbound queue and event log
type Event struct {
	Version  uint8           `json:"version"`            // Schema version
	Type     EventType       `json:"type"`               // Event type
	Sequence uint64          `json:"sequence"`           // Monotonic sequence
	TickNum  uint64          `json:"tickNum"`            // Game tick this occurred in
	Faction  Faction         `json:"faction"`            // Faction the event concerns
	Other    Faction         `json:"other,omitempty"`    // Second faction involved, e.g. the one hit
	EntityID EntityID        `json:"entityId,omitempty"` // Primary entity
	Payload  json.RawMessage `json:"payload,omitempty"`  // JSON-encoded payload
}

// String returns human-readable event type
func (t EventType) String() string {
	switch t {
	case EventTypeUnitSpawned:
		return "unit_spawned"
	case EventTypeUnitDied:
		return "unit_died"
	case EventTypeAttackLanded:
		return "attack_landed"
	case EventTypeBuildingPlaced:
		return "building_placed"
	case EventTypeBuildingCompleted:
		return "building_completed"
	case EventTypeProductionStarted:
		return "production_started"
	case EventTypeProductionCompleted:
		return "production_completed"
	case EventTypeResourceCollected:
		return "resource_collected"
	case EventTypeMineralDepleted:
		return "mineral_depleted"
	case EventTypeBaseUnderAttack:
		return "base_under_attack"
	case EventTypeCommandRejected:
		return "command_rejected"
	case EventTypePathFailed:
		return "path_failed"
	case EventTypeAIStateChanged:
		return "ai_state_changed"
	case EventTypeFactionEliminated:
		return "faction_eliminated"
	case EventTypeGameOver:
		return "game_over"
	default:
		return "unknown"
	}
}

func (t EventType) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// Concerns reports whether faction f should hear about the event: it is one
// of the two factions involved, or the event is public (neutral or end of
// game).
func (e Event) Concerns(f Faction) bool {
	switch {
	case e.Faction == f, e.Other == f:
		return true
	case e.Faction == Neutral:
		return true
	case e.Type == EventTypeFactionEliminated, e.Type == EventTypeGameOver:
		return true
	}
	return false
}

// Typed payloads for different event types

// UnitSpawnedPayload is emitted for every new unit or building
type UnitSpawnedPayload struct {
	Kind Kind          `json:"kind"`
	Cell spatial.Coord `json:"cell"`
}

// UnitDiedPayload contains death details
type UnitDiedPayload struct {
	Kind     Kind          `json:"kind"`
	Cell     spatial.Coord `json:"cell"`
	KillerID EntityID      `json:"killerId,omitempty"`
}

// AttackPayload contains a single hit
type AttackPayload struct {
	AttackerID EntityID `json:"attackerId"`
	TargetID   EntityID `json:"targetId"`
	Damage     int      `json:"damage"`
	TargetHP   int      `json:"targetHp"`
}

// BuildingPayload covers placement and completion
type BuildingPayload struct {
	Kind      Kind          `json:"kind"`
	Anchor    spatial.Coord `json:"anchor"`
	BuilderID EntityID      `json:"builderId,omitempty"`
}

// ProductionPayload covers queue start and completion
type ProductionPayload struct {
	BuildingID EntityID `json:"buildingId"`
	Kind       Kind     `json:"kind"`
	QueueLen   int      `json:"queueLen"`
	UnitID     EntityID `json:"unitId,omitempty"`
}

// ResourcePayload is a worker delivery
type ResourcePayload struct {
	WorkerID EntityID `json:"workerId"`
	Amount   int      `json:"amount"`
	Total    int      `json:"total"`
}

// MineralDepletedPayload marks an exhausted patch
type MineralDepletedPayload struct {
	Cell spatial.Coord `json:"cell"`
}

// BaseUnderAttackPayload is rate limited per base
type BaseUnderAttackPayload struct {
	BaseID     EntityID `json:"baseId"`
	AttackerID EntityID `json:"attackerId"`
	HP         int      `json:"hp"`
}

// CommandRejectedPayload carries the validation failure
type CommandRejectedPayload struct {
	Command CommandType `json:"command"`
	Reason  string      `json:"reason"`
}

// PathFailedPayload is a mover giving up on a destination
type PathFailedPayload struct {
	From spatial.Coord `json:"from"`
	Goal spatial.Coord `json:"goal"`
}

// AIStatePayload is an opponent transition
type AIStatePayload struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// GameOverPayload names the surviving faction, zero for a draw
type GameOverPayload struct {
	Winner Faction `json:"winner"`
}

// EncodePayload marshals a payload to JSON bytes
func EncodePayload(payload interface{}) []byte {
	if payload == nil {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return data
}

// DecodePayload unmarshals an event payload into v.
func DecodePayload(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// NewEvent creates a new event. The sequence is assigned by the queue.
func NewEvent(eventType EventType, tickNum uint64, faction Faction, entity EntityID, payload interface{}) Event {
	return Event{
		Version:  EventVersion,
		Type:     eventType,
		TickNum:  tickNum,
		Faction:  faction,
		EntityID: entity,
		Payload:  EncodePayload(payload),
	}
}

// EventQueue collects events during a tick. The tick driver drains it once at
// the end of every tick.
type EventQueue struct {
	events []Event
	seq    uint64
	tick   uint64
}

// NewEventQueue creates an empty queue.
func NewEventQueue() *EventQueue {
	return &EventQueue{events: make([]Event, 0, 64)}
}

// setTick stamps subsequent events with tick.
func (q *EventQueue) setTick(tick uint64) { q.tick = tick }

// Emit appends an event stamped with the current tick and next sequence.
func (q *EventQueue) Emit(eventType EventType, faction Faction, entity EntityID, payload interface{}) {
	q.EmitPair(eventType, faction, Neutral, entity, payload)
}

// EmitPair is Emit for events between two factions.
func (q *EventQueue) EmitPair(eventType EventType, faction, other Faction, entity EntityID, payload interface{}) {
	ev := NewEvent(eventType, q.tick, faction, entity, payload)
	ev.Other = other
	q.seq++
	ev.Sequence = q.seq
	q.events = append(q.events, ev)
}

// Drain returns the queued events and empties the queue.
func (q *EventQueue) Drain() []Event {
	if len(q.events) == 0 {
		return nil
	}
	out := q.events
	q.events = make([]Event, 0, cap(out))
	return out
}

// Len returns the number of pending events.
func (q *EventQueue) Len() int { return len(q.events) }
