package ai

import (
	"testing"
)

// TestDefaultDoctrineTransitions verifies each guard of the standard plan
func TestDefaultDoctrineTransitions(t *testing.T) {
	base := Facts{
		MinWorkers:     4,
		TargetWorkers:  12,
		ExpandMinerals: 50,
		AttackArmySize: 5,
		MinDwell:       90,
		Bases:          1,
	}
	with := func(fn func(f *Facts)) Facts {
		f := base
		fn(&f)
		return f
	}

	tests := []struct {
		name   string
		from   State
		facts  Facts
		want   State
		wantOK bool
	}{
		{"scout stays without workers", StateScout, with(func(f *Facts) { f.Workers = 3; f.Minerals = 100; f.Dwell = 200 }), StateScout, false},
		{"scout stays before dwell", StateScout, with(func(f *Facts) { f.Workers = 4; f.Minerals = 100; f.Dwell = 10 }), StateScout, false},
		{"scout to expand", StateScout, with(func(f *Facts) { f.Workers = 4; f.Minerals = 50; f.Dwell = 90 }), StateExpand, true},
		{"expand stays without barracks", StateExpand, with(func(f *Facts) { f.Workers = 12 }), StateExpand, false},
		{"expand to build army", StateExpand, with(func(f *Facts) { f.Workers = 12; f.Barracks = 1 }), StateBuildArmy, true},
		{"build army to defend", StateBuildArmy, with(func(f *Facts) { f.Barracks = 1; f.Soldiers = 9; f.Threats = 1 }), StateDefend, true},
		{"build army to attack", StateBuildArmy, with(func(f *Facts) { f.Barracks = 1; f.Soldiers = 5 }), StateAttack, true},
		{"build army back to expand", StateBuildArmy, with(func(f *Facts) { f.Soldiers = 1 }), StateExpand, true},
		{"build army stays", StateBuildArmy, with(func(f *Facts) { f.Barracks = 1; f.Soldiers = 2 }), StateBuildArmy, false},
		{"attack regroups when army is gone", StateAttack, with(func(f *Facts) { f.KnownTargets = 1 }), StateBuildArmy, true},
		{"attack to defend", StateAttack, with(func(f *Facts) { f.Soldiers = 3; f.Threats = 2; f.KnownTargets = 1 }), StateDefend, true},
		{"attack to scout without targets", StateAttack, with(func(f *Facts) { f.Soldiers = 3 }), StateScout, true},
		{"attack stays", StateAttack, with(func(f *Facts) { f.Soldiers = 3; f.KnownTargets = 1 }), StateAttack, false},
		{"defend to build army", StateDefend, with(func(f *Facts) { f.Soldiers = 3 }), StateBuildArmy, true},
		{"defend stays", StateDefend, with(func(f *Facts) { f.Threats = 1 }), StateDefend, false},
	}

	c, err := DefaultDoctrine().Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := c.Next(tt.from, tt.facts)
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Expected (%s, %v), got (%s, %v)", tt.want, tt.wantOK, got, ok)
			}
		})
	}
}

// TestCompileRejectsBadGuards verifies guards are type-checked against Facts
func TestCompileRejectsBadGuards(t *testing.T) {
	tests := []struct {
		name string
		when string
	}{
		{"syntax", `Workers >=`},
		{"unknown fact", `Gold > 10`},
		{"not boolean", `Workers + 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Doctrine{Name: "broken", Transitions: []Transition{{From: StateScout, To: StateExpand, When: tt.when}}}
			if _, err := d.Compile(); err == nil {
				t.Errorf("Expected %q to fail to compile", tt.when)
			}
		})
	}
}

// TestFirstMatchingTransitionWins verifies table order decides between guards that both hold
func TestFirstMatchingTransitionWins(t *testing.T) {
	d := Doctrine{Name: "order", Transitions: []Transition{
		{From: StateDefend, To: StateAttack, When: `Soldiers > 0`},
		{From: StateDefend, To: StateScout, When: `true`},
	}}
	c, err := d.Compile()
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if got, _, _ := c.Next(StateDefend, Facts{Soldiers: 1}); got != StateAttack {
		t.Errorf("Expected attack, got %s", got)
	}
	if got, _, _ := c.Next(StateDefend, Facts{}); got != StateScout {
		t.Errorf("Expected scout, got %s", got)
	}
	if c.Name() != "order" {
		t.Errorf("Expected name order, got %s", c.Name())
	}
}

// TestParseDoctrine verifies the JSON form uses state names
func TestParseDoctrine(t *testing.T) {
	src := `{"name":"rush","transitions":[
		{"from":"scout","to":"build_army","when":"Barracks > 0"},
		{"from":"build_army","to":"attack","when":"Soldiers >= 3"}
	]}`
	d, err := ParseDoctrine([]byte(src))
	if err != nil {
		t.Fatalf("ParseDoctrine: %v", err)
	}
	if d.Name != "rush" || len(d.Transitions) != 2 {
		t.Fatalf("Unexpected doctrine %+v", d)
	}
	if d.Transitions[0].To != StateBuildArmy || d.Transitions[1].From != StateBuildArmy {
		t.Errorf("Expected build_army states, got %+v", d.Transitions)
	}
	if _, err := d.Compile(); err != nil {
		t.Errorf("Compile: %v", err)
	}

	if _, err := ParseDoctrine([]byte(`{"transitions":[{"from":"retreat"}]}`)); err == nil {
		t.Error("Expected unknown state to fail")
	}
}

// TestParseState verifies every state name round trips
func TestParseState(t *testing.T) {
	for s := StateScout; s <= StateDefend; s++ {
		got, err := ParseState(s.String())
		if err != nil {
			t.Fatalf("ParseState(%q): %v", s, err)
		}
		if got != s {
			t.Errorf("Expected %s, got %s", s, got)
		}
	}
	if _, err := ParseState("retreat"); err == nil {
		t.Error("Expected an error for an unknown state")
	}
}
