package game

// Capability is a bit set of what a kind can do.
type Capability uint8

const (
	CapMovable Capability = 1 << iota
	CapAttacker
	CapGatherer
	CapBuilder
	CapProducer
)

// SpeedClass groups movers by how many ticks a single cell step takes.
type SpeedClass uint8

const (
	SpeedNone SpeedClass = iota
	SpeedSlow
	SpeedNormal
	SpeedFast
)

// Stats is the balance entry for one kind. Durations are in ticks and
// distances in cells.
type Stats struct {
	MaxHP          int
	Sight          int
	Footprint      int
	Speed          SpeedClass
	Damage         int
	Range          int
	AttackCooldown int
	Cost           int
	BuildTicks     int
	Caps           Capability
	Produces       []Kind
	Builds         []Kind
}

// CanProduce reports whether kind k is in the production list.
func (s Stats) CanProduce(k Kind) bool { return containsKind(s.Produces, k) }

// CanBuild reports whether kind k is in the construction list.
func (s Stats) CanBuild(k Kind) bool { return containsKind(s.Builds, k) }

// Rules is the balance table of a match.
type Rules struct {
	Stats      map[Kind]Stats
	SpeedTicks map[SpeedClass]int

	StartingMinerals  int
	StartingWorkers   int
	MineralAmount     int // per patch
	GatherTicks       int
	GatherAmount      int
	MaxQueue          int
	BlockedRetryTicks int // ticks a blocked mover waits for a route before idling
	AlertCooldown     int // ticks between base-under-attack alerts per base
	ChaseRepathTicks  int // ticks between route refreshes while chasing
}

// DefaultRules returns the standard balance at 30 ticks per second.
func DefaultRules() Rules {
	return Rules{
		Stats: map[Kind]Stats{
			KindWorker: {
				MaxHP:      40,
				Sight:      6,
				Footprint:  1,
				Speed:      SpeedNormal,
				Cost:       50,
				BuildTicks: 300,
				Caps:       CapMovable | CapGatherer | CapBuilder,
				Builds:     []Kind{KindBarracks, KindBase},
			},
			KindSoldier: {
				MaxHP:          60,
				Sight:          7,
				Footprint:      1,
				Speed:          SpeedNormal,
				Damage:         6,
				Range:          3,
				AttackCooldown: 30,
				Cost:           75,
				BuildTicks:     450,
				Caps:           CapMovable | CapAttacker,
			},
			KindBase: {
				MaxHP:      1000,
				Sight:      8,
				Footprint:  2,
				Cost:       400,
				BuildTicks: 1800,
				Caps:       CapProducer,
				Produces:   []Kind{KindWorker},
			},
			KindBarracks: {
				MaxHP:      600,
				Sight:      6,
				Footprint:  2,
				Cost:       150,
				BuildTicks: 900,
				Caps:       CapProducer,
				Produces:   []Kind{KindSoldier},
			},
		},
		SpeedTicks: map[SpeedClass]int{
			SpeedSlow:   8,
			SpeedNormal: 6,
			SpeedFast:   4,
		},
		StartingMinerals:  100,
		StartingWorkers:   3,
		MineralAmount:     1500,
		GatherTicks:       60,
		GatherAmount:      8,
		MaxQueue:          5,
		BlockedRetryTicks: 30,
		AlertCooldown:     300,
		ChaseRepathTicks:  15,
	}
}

// ticksPerCell returns the step delay for a speed class. At least one tick.
func (r Rules) ticksPerCell(s SpeedClass) int {
	if t := r.SpeedTicks[s]; t > 0 {
		return t
	}
	return 1
}

func containsKind(list []Kind, k Kind) bool {
	for _, v := range list {
		if v == k {
			return true
		}
	}
	return false
}
