package ai

import (
	"fmt"
	"testing"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
)

// call is one command the recorder saw.
type call struct {
	op     string
	ids    []game.EntityID
	cell   spatial.Coord
	target game.EntityID
	kind   game.Kind
}

func (c call) String() string {
	return fmt.Sprintf("%s %v %v %d %s", c.op, c.ids, c.cell, c.target, c.kind)
}

// recorder logs commands and forwards them to inner when set.
type recorder struct {
	inner game.Commander
	calls []call
}

func (r *recorder) SelectUnits(ids []game.EntityID) error {
	r.calls = append(r.calls, call{op: "select", ids: ids})
	if r.inner != nil {
		return r.inner.SelectUnits(ids)
	}
	return nil
}

func (r *recorder) Move(ids []game.EntityID, target spatial.Coord) error {
	r.calls = append(r.calls, call{op: "move", ids: ids, cell: target})
	if r.inner != nil {
		return r.inner.Move(ids, target)
	}
	return nil
}

func (r *recorder) Attack(ids []game.EntityID, target game.EntityID) error {
	r.calls = append(r.calls, call{op: "attack", ids: ids, target: target})
	if r.inner != nil {
		return r.inner.Attack(ids, target)
	}
	return nil
}

func (r *recorder) Build(worker game.EntityID, kind game.Kind, anchor spatial.Coord) error {
	r.calls = append(r.calls, call{op: "build", ids: []game.EntityID{worker}, cell: anchor, kind: kind})
	if r.inner != nil {
		return r.inner.Build(worker, kind, anchor)
	}
	return nil
}

func (r *recorder) Produce(building game.EntityID, kind game.Kind) error {
	r.calls = append(r.calls, call{op: "produce", ids: []game.EntityID{building}, kind: kind})
	if r.inner != nil {
		return r.inner.Produce(building, kind)
	}
	return nil
}

func (r *recorder) Gather(ids []game.EntityID, mineral spatial.Coord) error {
	r.calls = append(r.calls, call{op: "gather", ids: ids, cell: mineral})
	if r.inner != nil {
		return r.inner.Gather(ids, mineral)
	}
	return nil
}

func (r *recorder) ops(op string) []call {
	var out []call
	for _, c := range r.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

// tap runs an opponent inside an engine and records what it commands.
type tap struct {
	*Opponent
	log *[]string
}

func (t *tap) Update(view *game.FactionView, cmd game.Commander) {
	rec := &recorder{inner: cmd}
	t.Opponent.Update(view, rec)
	for _, c := range rec.calls {
		*t.log = append(*t.log, fmt.Sprintf("%d f%d %s", view.Tick, t.Faction(), c))
	}
}

// newTestWorld returns a 30x30 open map with faction 1 based at (1,1) and
// faction 2 at (26,26), fog already computed.
func newTestWorld(t *testing.T) (*game.World, *game.Entity, *game.Entity) {
	t.Helper()
	w := game.NewWorld(spatial.NewGrid(30, 30), game.DefaultRules(), 1, 2)
	home1 := mustSpawn(t, w, game.KindBase, 1, spatial.Coord{X: 1, Y: 1})
	home2 := mustSpawn(t, w, game.KindBase, 2, spatial.Coord{X: 26, Y: 26})
	w.UpdateVisibility()
	return w, home1, home2
}

func mustSpawn(t *testing.T, w *game.World, kind game.Kind, f game.Faction, c spatial.Coord) *game.Entity {
	t.Helper()
	e, err := w.Spawn(kind, f, c, true)
	if err != nil {
		t.Fatalf("Spawn %s at %v: %v", kind, c, err)
	}
	return e
}

func newOpponent(t *testing.T, f game.Faction) *Opponent {
	t.Helper()
	o, err := New(f, DefaultParams(), DefaultDoctrine(), 7)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}
