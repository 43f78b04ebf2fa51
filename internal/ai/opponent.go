// Package ai implements the scripted opponent: a finite state machine over
// Scout, Expand, BuildArmy, Attack and Defend whose transitions come from a
// compiled Doctrine. It sees the world only through a game.FactionView and
// acts only through a game.Commander.
package ai

import (
	"math/rand"
	"sort"

	"github.com/sirupsen/logrus"

	"microcraft/internal/game"
	"microcraft/internal/game/spatial"
	"microcraft/internal/game/visibility"
	"microcraft/internal/logger"
)

// productionQueueTarget is how many items a building is kept stocked with.
const productionQueueTarget = 2

// Opponent drives one faction.
type Opponent struct {
	faction  game.Faction
	params   Params
	doctrine *CompiledDoctrine
	rng      *rand.Rand

	state     State
	enteredAt uint64
	memory    *Memory

	waypoints    []spatial.Coord
	nextWaypoint int
	scout        game.EntityID
	builder      game.EntityID
	buildOrdered uint64

	lastProduce map[game.EntityID]uint64
	lastMove    map[game.EntityID]uint64
	lastBuild   uint64
	built       bool

	log *logrus.Entry
}

// New compiles doctrine and returns an opponent for faction in the Scout
// state. seed orders equally distant scout waypoints.
func New(faction game.Faction, params Params, doctrine Doctrine, seed int64) (*Opponent, error) {
	compiled, err := doctrine.Compile()
	if err != nil {
		return nil, err
	}
	return &Opponent{
		faction:     faction,
		params:      params,
		doctrine:    compiled,
		rng:         rand.New(rand.NewSource(seed)),
		state:       StateScout,
		memory:      NewMemory(params.MemoryTTL),
		lastProduce: make(map[game.EntityID]uint64),
		lastMove:    make(map[game.EntityID]uint64),
		log: logger.Component("ai").WithFields(logrus.Fields{
			"faction":  faction,
			"doctrine": compiled.Name(),
		}),
	}, nil
}

// Faction implements game.Controller.
func (o *Opponent) Faction() game.Faction { return o.faction }

// State implements game.Controller.
func (o *Opponent) State() string { return o.state.String() }

// Current returns the current state.
func (o *Opponent) Current() State { return o.state }

// Memory returns the enemy sightings the opponent is acting on.
func (o *Opponent) Memory() *Memory { return o.memory }

// threat is a visible enemy close to home.
type threat struct {
	enemy game.EntitySnapshot
	dist  int
}

// board is the per-tick summary of the view the decisions are made from.
type board struct {
	workers  []game.EntitySnapshot
	soldiers []game.EntitySnapshot
	bases    []game.EntitySnapshot
	barracks []game.EntitySnapshot // complete or under construction
	complete int                   // complete barracks
	threats  []threat
	home     spatial.Coord
	hasHome  bool
}

// Update implements game.Controller: observe, evaluate transitions, act.
func (o *Opponent) Update(view *game.FactionView, cmd game.Commander) {
	o.memory.Observe(view)
	b := o.survey(view)
	if b.hasHome && o.waypoints == nil {
		o.planWaypoints(view, b.home)
	}

	facts := o.facts(view, b)
	next, ok, err := o.doctrine.Next(o.state, facts)
	if err != nil {
		o.log.WithError(err).Warn("guard evaluation failed")
	} else if ok {
		o.enter(next, view.Tick)
	}

	switch o.state {
	case StateScout:
		o.produceWorkers(view, b, cmd, o.params.MinWorkers, 0)
		o.scoutAhead(view, b, cmd)
	case StateExpand:
		o.expand(view, b, cmd)
	case StateBuildArmy:
		o.produceSoldiers(view, b, cmd)
	case StateAttack:
		o.attack(view, b, cmd)
	case StateDefend:
		o.defend(view, b, cmd)
	}
	o.gatherIdle(view, b, cmd)
}

func (o *Opponent) enter(next State, tick uint64) {
	o.log.WithFields(logrus.Fields{
		"tick": tick,
		"from": o.state.String(),
		"to":   next.String(),
	}).Debug("transition")
	if o.state == StateScout {
		o.scout = 0
	}
	o.state = next
	o.enteredAt = tick
}

func (o *Opponent) survey(view *game.FactionView) board {
	var b board
	for _, e := range view.Own {
		switch e.Kind {
		case game.KindWorker:
			b.workers = append(b.workers, e)
		case game.KindSoldier:
			b.soldiers = append(b.soldiers, e)
		case game.KindBase:
			if e.Complete {
				b.bases = append(b.bases, e)
			}
		case game.KindBarracks:
			b.barracks = append(b.barracks, e)
			if e.Complete {
				b.complete++
			}
		}
	}
	if len(b.bases) > 0 {
		b.home = b.bases[0].Cell
		b.hasHome = true
	}

	if o.builder != 0 && !o.buildPending(view, b) {
		o.builder = 0
	}
	if o.scout != 0 && !hasID(b.workers, o.scout) {
		o.scout = 0
	}

	if len(view.Enemies) > 0 && len(b.bases) > 0 {
		var sources []spatial.Coord
		for _, base := range b.bases {
			sources = append(sources, cells(base.Cell, base.Footprint)...)
		}
		field := view.DistanceField(sources)
		for _, e := range view.Enemies {
			best := spatial.Unreachable
			for _, c := range cells(e.Cell, e.Footprint) {
				if d := field.Distance(c); d != spatial.Unreachable && (best == spatial.Unreachable || d < best) {
					best = d
				}
			}
			if best != spatial.Unreachable && best <= o.params.DefendRadius {
				b.threats = append(b.threats, threat{enemy: e, dist: best})
			}
		}
		sort.SliceStable(b.threats, func(i, j int) bool {
			if b.threats[i].dist != b.threats[j].dist {
				return b.threats[i].dist < b.threats[j].dist
			}
			return b.threats[i].enemy.ID < b.threats[j].enemy.ID
		})
	}
	return b
}

func (o *Opponent) facts(view *game.FactionView, b board) Facts {
	return Facts{
		Tick:           int(view.Tick),
		Dwell:          int(view.Tick - o.enteredAt),
		Minerals:       view.Minerals,
		Workers:        len(b.workers),
		Soldiers:       len(b.soldiers),
		Barracks:       b.complete,
		Bases:          len(b.bases),
		Threats:        len(b.threats),
		KnownTargets:   o.memory.Len(),
		MinWorkers:     o.params.MinWorkers,
		TargetWorkers:  o.params.TargetWorkers,
		ExpandMinerals: o.params.ExpandMinerals,
		AttackArmySize: o.params.AttackArmySize,
		MinDwell:       o.params.MinDwell,
	}
}

// ready reports whether id is out of its order cooldown.
func (o *Opponent) ready(last map[game.EntityID]uint64, id game.EntityID, tick uint64) bool {
	t, ok := last[id]
	return !ok || tick-t >= uint64(o.params.ActionCooldown)
}

// produceWorkers keeps bases producing until target workers exist or are
// queued, leaving reserve minerals untouched.
func (o *Opponent) produceWorkers(view *game.FactionView, b board, cmd game.Commander, target, reserve int) {
	cost := view.Rules.Stats[game.KindWorker].Cost
	count := len(b.workers)
	for _, base := range b.bases {
		count += base.QueueLen
	}
	spent := 0
	for _, base := range b.bases {
		if count >= target {
			return
		}
		if base.QueueLen >= productionQueueTarget || !o.ready(o.lastProduce, base.ID, view.Tick) {
			continue
		}
		if view.Minerals-spent-reserve < cost {
			return
		}
		if err := cmd.Produce(base.ID, game.KindWorker); err != nil {
			o.log.WithError(err).Debug("produce worker")
			continue
		}
		o.lastProduce[base.ID] = view.Tick
		spent += cost
		count++
	}
}

func (o *Opponent) produceSoldiers(view *game.FactionView, b board, cmd game.Commander) {
	cost := view.Rules.Stats[game.KindSoldier].Cost
	spent := 0
	for _, rax := range b.barracks {
		if !rax.Complete || rax.QueueLen >= productionQueueTarget || !o.ready(o.lastProduce, rax.ID, view.Tick) {
			continue
		}
		if view.Minerals-spent < cost {
			return
		}
		if err := cmd.Produce(rax.ID, game.KindSoldier); err != nil {
			o.log.WithError(err).Debug("produce soldier")
			continue
		}
		o.lastProduce[rax.ID] = view.Tick
		spent += cost
	}
}

// planWaypoints lays a lattice of passable cells over the map, nearest to
// home first.
func (o *Opponent) planWaypoints(view *game.FactionView, home spatial.Coord) {
	s := o.params.ScoutSpacing
	type waypoint struct {
		cell spatial.Coord
		dist int
		key  int64
	}
	var pts []waypoint
	for y := s / 2; y < view.Height; y += s {
		for x := s / 2; x < view.Width; x += s {
			c := spatial.Coord{X: x, Y: y}
			if !view.Passable(c) {
				continue
			}
			pts = append(pts, waypoint{cell: c, dist: c.Manhattan(home), key: o.rng.Int63()})
		}
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].dist != pts[j].dist {
			return pts[i].dist < pts[j].dist
		}
		return pts[i].key < pts[j].key
	})
	o.waypoints = make([]spatial.Coord, len(pts))
	for i, p := range pts {
		o.waypoints[i] = p.cell
	}
}

// nextUnexplored returns the next waypoint the faction has never seen,
// cycling through the list.
func (o *Opponent) nextUnexplored(view *game.FactionView) (spatial.Coord, bool) {
	n := len(o.waypoints)
	for i := 0; i < n; i++ {
		idx := (o.nextWaypoint + i) % n
		if view.Visibility(o.waypoints[idx]) == visibility.Unexplored {
			o.nextWaypoint = idx + 1
			return o.waypoints[idx], true
		}
	}
	return spatial.Coord{}, false
}

// scoutAhead sends idle soldiers, or a single worker when there are none,
// to unexplored waypoints.
func (o *Opponent) scoutAhead(view *game.FactionView, b board, cmd game.Commander) {
	var scouts []game.EntitySnapshot
	if len(b.soldiers) > 0 {
		o.scout = 0
		scouts = b.soldiers
	} else if len(b.workers) > 0 {
		if o.scout == 0 {
			o.scout = b.workers[len(b.workers)-1].ID
		}
		for _, w := range b.workers {
			if w.ID == o.scout {
				scouts = append(scouts, w)
			}
		}
	}

	for _, u := range scouts {
		if u.Moving || u.Target != 0 || !o.ready(o.lastMove, u.ID, view.Tick) {
			continue
		}
		if u.Kind == game.KindSoldier && u.Activity != game.ActivityIdle {
			continue
		}
		wp, ok := o.nextUnexplored(view)
		if !ok {
			return
		}
		if err := cmd.Move([]game.EntityID{u.ID}, wp); err != nil {
			o.log.WithError(err).Debug("scout move")
			continue
		}
		o.lastMove[u.ID] = view.Tick
	}
}

// expand grows the economy and gets one barracks up.
func (o *Opponent) expand(view *game.FactionView, b board, cmd game.Commander) {
	cost := view.Rules.Stats[game.KindBarracks].Cost
	reserve := 0
	if len(b.barracks) == 0 {
		reserve = cost
		if o.builder == 0 && view.Minerals >= cost && b.hasHome && o.buildReady(view.Tick) {
			o.buildBarracks(view, b, cmd)
		}
	}
	o.produceWorkers(view, b, cmd, o.params.TargetWorkers, reserve)
}

func (o *Opponent) buildReady(tick uint64) bool {
	return !o.built || tick-o.lastBuild >= uint64(o.params.ActionCooldown)
}

// buildPending reports whether the chosen builder is still on its way or
// building.
func (o *Opponent) buildPending(view *game.FactionView, b board) bool {
	for _, w := range b.workers {
		if w.ID != o.builder {
			continue
		}
		if view.Tick-o.buildOrdered <= 1 {
			return true
		}
		return w.Activity == game.ActivityMoving || w.Activity == game.ActivityConstructing
	}
	return false
}

func (o *Opponent) buildBarracks(view *game.FactionView, b board, cmd game.Commander) {
	site, ok := o.barracksSite(view, b.bases[0])
	if !ok {
		return
	}
	var builder game.EntitySnapshot
	found := false
	for _, w := range b.workers {
		if w.ID == o.scout {
			continue
		}
		if !found || w.Cell.Manhattan(site) < builder.Cell.Manhattan(site) {
			builder = w
			found = true
		}
	}
	if !found {
		return
	}

	o.built = true
	o.lastBuild = view.Tick
	if err := cmd.Build(builder.ID, game.KindBarracks, site); err != nil {
		o.log.WithError(err).Debug("build barracks")
		return
	}
	o.builder = builder.ID
	o.buildOrdered = view.Tick
	o.log.WithFields(logrus.Fields{
		"tick":    view.Tick,
		"builder": builder.ID,
		"site":    site,
	}).Debug("barracks ordered")
}

// barracksSite scans rings around the base for a footprint that is free,
// explored and clear of mineral lines.
func (o *Opponent) barracksSite(view *game.FactionView, base game.EntitySnapshot) (spatial.Coord, bool) {
	size := view.Rules.Stats[game.KindBarracks].Footprint
	for ring := 3; ring <= 8; ring++ {
		minX, maxX := base.Cell.X-ring, base.Cell.X+base.Footprint-1+ring
		minY, maxY := base.Cell.Y-ring, base.Cell.Y+base.Footprint-1+ring
		for y := minY; y <= maxY; y++ {
			for x := minX; x <= maxX; x++ {
				if x != minX && x != maxX && y != minY && y != maxY {
					continue
				}
				anchor := spatial.Coord{X: x, Y: y}
				if o.siteClear(view, anchor, size) {
					return anchor, true
				}
			}
		}
	}
	return spatial.Coord{}, false
}

func (o *Opponent) siteClear(view *game.FactionView, anchor spatial.Coord, size int) bool {
	for _, c := range cells(anchor, size) {
		if !view.Free(c) {
			return false
		}
		for _, p := range view.Patches {
			if p.Cell.Manhattan(c) <= 2 {
				return false
			}
		}
	}
	return true
}

// attack pushes the army at the remembered enemy base, else the freshest
// sighting.
func (o *Opponent) attack(view *game.FactionView, b board, cmd game.Commander) {
	target, ok := o.memory.EnemyBase(b.home)
	if !ok {
		if target, ok = o.memory.Latest(); !ok {
			return
		}
	}

	if visible(view, target.ID) {
		var ids []game.EntityID
		for _, s := range b.soldiers {
			if s.Target != target.ID {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) > 0 {
			if err := cmd.Attack(ids, target.ID); err != nil {
				o.log.WithError(err).Debug("attack")
			}
		}
		return
	}

	dest, ok := standoff(view, target.Cell, target.Footprint)
	if !ok {
		return
	}
	o.moveGroup(view, b.soldiers, dest, cmd)
}

// defend engages the threat nearest to home; soldiers with nothing to fight
// walk back.
func (o *Opponent) defend(view *game.FactionView, b board, cmd game.Commander) {
	if len(b.threats) > 0 {
		nearest := b.threats[0].enemy
		engaged := make(map[game.EntityID]bool, len(b.threats))
		for _, t := range b.threats {
			engaged[t.enemy.ID] = true
		}
		var ids []game.EntityID
		for _, s := range b.soldiers {
			if !engaged[s.Target] {
				ids = append(ids, s.ID)
			}
		}
		if len(ids) > 0 {
			if err := cmd.Attack(ids, nearest.ID); err != nil {
				o.log.WithError(err).Debug("defend")
			}
		}
		return
	}

	if !b.hasHome {
		return
	}
	rally, ok := standoff(view, b.home, b.bases[0].Footprint)
	if !ok {
		return
	}
	var away []game.EntitySnapshot
	for _, s := range b.soldiers {
		if s.Cell.Manhattan(rally) > 3 {
			away = append(away, s)
		}
	}
	o.moveGroup(view, away, rally, cmd)
}

// moveGroup moves the idle, unengaged soldiers among units to dest.
func (o *Opponent) moveGroup(view *game.FactionView, units []game.EntitySnapshot, dest spatial.Coord, cmd game.Commander) {
	var ids []game.EntityID
	for _, u := range units {
		if u.Moving || u.Target != 0 || !o.ready(o.lastMove, u.ID, view.Tick) {
			continue
		}
		ids = append(ids, u.ID)
	}
	if len(ids) == 0 {
		return
	}
	if err := cmd.Move(ids, dest); err != nil {
		o.log.WithError(err).Debug("move group")
		return
	}
	for _, id := range ids {
		o.lastMove[id] = view.Tick
	}
}

// gatherIdle sends every idle worker, other than the scout and the builder,
// to the nearest known mineral patch.
func (o *Opponent) gatherIdle(view *game.FactionView, b board, cmd game.Commander) {
	if len(view.Patches) == 0 {
		return
	}
	for _, w := range b.workers {
		if w.ID == o.scout || w.ID == o.builder {
			continue
		}
		if w.Activity != game.ActivityIdle || w.Moving || !o.ready(o.lastMove, w.ID, view.Tick) {
			continue
		}
		patch := nearestPatch(view.Patches, w.Cell)
		if err := cmd.Gather([]game.EntityID{w.ID}, patch); err != nil {
			o.log.WithError(err).Debug("gather")
			continue
		}
		o.lastMove[w.ID] = view.Tick
	}
}

func nearestPatch(patches []game.MineralPatch, from spatial.Coord) spatial.Coord {
	best := patches[0].Cell
	for _, p := range patches[1:] {
		if p.Cell.Manhattan(from) < best.Manhattan(from) {
			best = p.Cell
		}
	}
	return best
}

// standoff picks a cell next to a footprint to walk to, scanning the ring
// around it in row-major order. Cells out of sight are assumed free.
func standoff(view *game.FactionView, anchor spatial.Coord, size int) (spatial.Coord, bool) {
	if size <= 1 && view.Passable(anchor) && view.Visibility(anchor) != visibility.Visible {
		return anchor, true
	}
	size = max(1, size)
	for y := anchor.Y - 1; y <= anchor.Y+size; y++ {
		for x := anchor.X - 1; x <= anchor.X+size; x++ {
			c := spatial.Coord{X: x, Y: y}
			if x >= anchor.X && x < anchor.X+size && y >= anchor.Y && y < anchor.Y+size {
				continue
			}
			if view.Passable(c) && (view.Visibility(c) != visibility.Visible || view.Free(c)) {
				return c, true
			}
		}
	}
	return spatial.Coord{}, false
}

func visible(view *game.FactionView, id game.EntityID) bool {
	for _, e := range view.Enemies {
		if e.ID == id {
			return true
		}
	}
	return false
}

func hasID(list []game.EntitySnapshot, id game.EntityID) bool {
	for _, e := range list {
		if e.ID == id {
			return true
		}
	}
	return false
}

func cells(anchor spatial.Coord, size int) []spatial.Coord {
	size = max(1, size)
	out := make([]spatial.Coord, 0, size*size)
	for dy := 0; dy < size; dy++ {
		for dx := 0; dx < size; dx++ {
			out = append(out, spatial.Coord{X: anchor.X + dx, Y: anchor.Y + dy})
		}
	}
	return out
}
