package game

import (
	"fmt"
	"strings"

	"microcraft/internal/game/spatial"
)

// EntityID identifies units and buildings. Ids are never reused, and the same
// value marks grid occupancy.
type EntityID = spatial.OccupantID

// Faction identifies a side. Zero is neutral.
type Faction uint8

// Neutral owns nothing and is hostile to nobody.
const Neutral Faction = 0

// Kind is the tagged variant of an entity.
type Kind uint8

const (
	KindNone Kind = iota
	KindWorker
	KindSoldier
	KindBase
	KindBarracks
)

// String returns the wire name of the kind
func (k Kind) String() string {
	switch k {
	case KindWorker:
		return "worker"
	case KindSoldier:
		return "soldier"
	case KindBase:
		return "base"
	case KindBarracks:
		return "barracks"
	default:
		return "none"
	}
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(s) {
	case "worker":
		return KindWorker, nil
	case "soldier":
		return KindSoldier, nil
	case "base":
		return KindBase, nil
	case "barracks":
		return KindBarracks, nil
	case "", "none":
		return KindNone, nil
	}
	return KindNone, fmt.Errorf("unknown kind %q", s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IsBuilding reports whether the kind is a structure.
func (k Kind) IsBuilding() bool {
	return k == KindBase || k == KindBarracks
}

// Activity is what an entity is doing this tick, as shown to renderers.
type Activity uint8

const (
	ActivityIdle Activity = iota
	ActivityMoving
	ActivityAttacking
	ActivityGathering
	ActivityReturning
	ActivityConstructing
	ActivityProducing
	ActivityUnderConstruction
)

func (a Activity) String() string {
	switch a {
	case ActivityIdle:
		return "idle"
	case ActivityMoving:
		return "moving"
	case ActivityAttacking:
		return "attacking"
	case ActivityGathering:
		return "gathering"
	case ActivityReturning:
		return "returning"
	case ActivityConstructing:
		return "constructing"
	case ActivityProducing:
		return "producing"
	case ActivityUnderConstruction:
		return "under_construction"
	default:
		return "unknown"
	}
}

func (a Activity) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// order is the standing instruction a unit is carrying out.
type order uint8

const (
	orderNone order = iota
	orderMove
	orderAttack
	orderGather
	orderBuild
)

// Entity is a unit or building in the world. Per-kind behavior comes from
// its Stats rather than from the type.
type Entity struct {
	ID        EntityID
	Kind      Kind
	Faction   Faction
	Cell      spatial.Coord // anchor; top-left cell of the footprint
	HP        int
	Alive     bool
	Stealthed bool
	Complete  bool // buildings under construction are not complete
	Activity  Activity

	stats Stats

	// Movement
	order        order
	path         *spatial.Path
	goal         spatial.Coord
	moveCooldown int
	blockedTicks int

	// Combat
	target         EntityID
	attackCooldown int
	chaseCell      spatial.Coord
	chaseTimer     int
	lastAlertTick  uint64
	alerted        bool

	// Gathering
	gatherCell  spatial.Coord
	gatherTimer int
	carrying    int

	// Construction
	buildKind   Kind
	buildAnchor spatial.Coord
	buildSite   EntityID
	buildHP     int // fractional HP gain accumulator, in BuildTicks units

	// Production
	queue    []Kind
	progress int
}

// Stats returns the per-kind balance entry the entity was created with.
func (e *Entity) Stats() Stats { return e.stats }

// MaxHP returns the full health of the entity.
func (e *Entity) MaxHP() int { return e.stats.MaxHP }

// Can reports whether the entity has capability c.
func (e *Entity) Can(c Capability) bool { return e.stats.Caps&c != 0 }

// Footprint returns the cells the entity occupies.
func (e *Entity) Footprint() []spatial.Coord {
	return footprintCells(e.Cell, e.stats.Footprint)
}

// Center returns the footprint cell used as the sight origin.
func (e *Entity) Center() spatial.Coord {
	half := e.stats.Footprint / 2
	return spatial.Coord{X: e.Cell.X + half, Y: e.Cell.Y + half}
}

// Carrying returns the minerals a worker is holding.
func (e *Entity) Carrying() int { return e.carrying }

// QueueLen returns the number of queued productions.
func (e *Entity) QueueLen() int { return len(e.queue) }

// Target returns the entity being attacked, if any.
func (e *Entity) Target() EntityID { return e.target }

// Moving reports whether the entity has path steps left.
func (e *Entity) Moving() bool { return e.path != nil && !e.path.Done() }

// Idle reports whether the entity has no standing order.
func (e *Entity) Idle() bool { return e.order == orderNone && !e.Moving() }

// footprintCells lists the size×size square anchored at anchor.
func footprintCells(anchor spatial.Coord, size int) []spatial.Coord {
	if size < 1 {
		size = 1
	}
	cells := make([]spatial.Coord, 0, size*size)
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			cells = append(cells, spatial.Coord{X: anchor.X + dx, Y: anchor.Y + dy})
		}
	}
	return cells
}

// inFootprint reports whether c lies in the square anchored at anchor.
func inFootprint(anchor spatial.Coord, size int, c spatial.Coord) bool {
	return c.X >= anchor.X && c.X < anchor.X+size && c.Y >= anchor.Y && c.Y < anchor.Y+size
}
