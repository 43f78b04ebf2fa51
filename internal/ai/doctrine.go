package ai

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"microcraft/internal/config"
)

// State is a phase of the opponent's plan.
type State uint8

const (
	StateScout State = iota
	StateExpand
	StateBuildArmy
	StateAttack
	StateDefend
)

func (s State) String() string {
	switch s {
	case StateScout:
		return "scout"
	case StateExpand:
		return "expand"
	case StateBuildArmy:
		return "build_army"
	case StateAttack:
		return "attack"
	case StateDefend:
		return "defend"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of String.
func ParseState(s string) (State, error) {
	for st := StateScout; st <= StateDefend; st++ {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("ai: unknown state %q", s)
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	parsed, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Params are the opponent thresholds. Durations are in ticks, distances in
// cells.
type Params struct {
	MinWorkers     int
	TargetWorkers  int
	ExpandMinerals int
	AttackArmySize int
	DefendRadius   int
	MemoryTTL      int
	ActionCooldown int
	MinDwell       int
	ScoutSpacing   int
}

// DefaultParams matches config.DefaultAI.
func DefaultParams() Params {
	return ParamsFromConfig(config.DefaultAI())
}

// ParamsFromConfig copies the opponent section of the app config.
func ParamsFromConfig(c config.AIConfig) Params {
	return Params{
		MinWorkers:     c.MinWorkers,
		TargetWorkers:  c.TargetWorkers,
		ExpandMinerals: c.ExpandMinerals,
		AttackArmySize: c.AttackArmySize,
		DefendRadius:   c.DefendRadius,
		MemoryTTL:      c.MemoryTTL,
		ActionCooldown: c.ActionCooldown,
		MinDwell:       c.MinDwell,
		ScoutSpacing:   max(1, c.ScoutSpacing),
	}
}

// Facts is the environment doctrine guards are evaluated against. Every
// field is derived from the faction's own view.
type Facts struct {
	Tick         int
	Dwell        int // ticks spent in the current state
	Minerals     int
	Workers      int
	Soldiers     int
	Barracks     int // complete barracks
	Bases        int
	Threats      int // visible enemies within DefendRadius of a base
	KnownTargets int // remembered enemy sightings

	MinWorkers     int
	TargetWorkers  int
	ExpandMinerals int
	AttackArmySize int
	MinDwell       int
}

// Transition moves the controller from one state to another when its guard
// holds. Guards are expr source over Facts.
type Transition struct {
	From State  `json:"from"`
	To   State  `json:"to"`
	When string `json:"when"`
}

// Doctrine is an ordered transition table. For a given state the first
// matching transition wins.
type Doctrine struct {
	Name        string       `json:"name"`
	Transitions []Transition `json:"transitions"`
}

// DefaultDoctrine returns the standard build-up-then-push plan.
func DefaultDoctrine() Doctrine {
	return Doctrine{
		Name: "standard",
		Transitions: []Transition{
			{From: StateScout, To: StateExpand, When: `Workers >= MinWorkers && Minerals >= ExpandMinerals && Dwell >= MinDwell`},
			{From: StateExpand, To: StateBuildArmy, When: `Workers >= TargetWorkers && Barracks > 0`},
			{From: StateBuildArmy, To: StateDefend, When: `Threats > 0`},
			{From: StateBuildArmy, To: StateAttack, When: `Soldiers >= AttackArmySize && Threats == 0`},
			{From: StateBuildArmy, To: StateExpand, When: `Barracks == 0`},
			{From: StateAttack, To: StateBuildArmy, When: `Soldiers == 0`},
			{From: StateAttack, To: StateDefend, When: `Threats > 0`},
			{From: StateAttack, To: StateScout, When: `KnownTargets == 0`},
			{From: StateDefend, To: StateBuildArmy, When: `Threats == 0`},
		},
	}
}

// ParseDoctrine decodes a JSON doctrine.
func ParseDoctrine(data []byte) (Doctrine, error) {
	var d Doctrine
	if err := json.Unmarshal(data, &d); err != nil {
		return Doctrine{}, fmt.Errorf("ai: parse doctrine: %w", err)
	}
	return d, nil
}

type compiledTransition struct {
	Transition
	program *vm.Program
}

// CompiledDoctrine is a doctrine with every guard compiled to bytecode.
type CompiledDoctrine struct {
	name  string
	table map[State][]compiledTransition
}

// Compile type-checks every guard against Facts.
func (d Doctrine) Compile() (*CompiledDoctrine, error) {
	c := &CompiledDoctrine{name: d.Name, table: make(map[State][]compiledTransition)}
	for i, t := range d.Transitions {
		prog, err := expr.Compile(t.When, expr.Env(Facts{}), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("ai: doctrine %q transition %d (%s -> %s): %w", d.Name, i, t.From, t.To, err)
		}
		c.table[t.From] = append(c.table[t.From], compiledTransition{Transition: t, program: prog})
	}
	return c, nil
}

// Name returns the doctrine name.
func (c *CompiledDoctrine) Name() string { return c.name }

// Next returns the state to move to from s, or s with ok false when no
// guard holds.
func (c *CompiledDoctrine) Next(s State, f Facts) (State, bool, error) {
	for _, t := range c.table[s] {
		out, err := vm.Run(t.program, f)
		if err != nil {
			return s, false, fmt.Errorf("ai: guard %q: %w", t.When, err)
		}
		if match, _ := out.(bool); match {
			return t.To, true, nil
		}
	}
	return s, false, nil
}
