package game

import (
	"errors"

	"microcraft/internal/game/spatial"
)

// Issue validates cmd against ownership, capability, cost and the issuing
// faction's visibility, then applies it. Failures return an
// *InvalidCommandError and emit command_rejected; they never abort the tick.
func (w *World) Issue(cmd Command) error {
	err := w.apply(cmd)
	var invalid *InvalidCommandError
	if errors.As(err, &invalid) {
		w.events.Emit(EventTypeCommandRejected, cmd.Faction, firstID(cmd.UnitIDs), CommandRejectedPayload{
			Command: cmd.Type,
			Reason:  invalid.Reason,
		})
	}
	return err
}

func (w *World) apply(cmd Command) error {
	if w.eliminated[cmd.Faction] || w.gameOver {
		return reject(cmd, ReasonEliminated)
	}
	switch cmd.Type {
	case CommandSelect:
		return w.applySelect(cmd)
	case CommandMove:
		return w.applyMove(cmd)
	case CommandAttack:
		return w.applyAttack(cmd)
	case CommandBuild:
		return w.applyBuild(cmd)
	case CommandProduce:
		return w.applyProduce(cmd)
	case CommandGather:
		return w.applyGather(cmd)
	default:
		return reject(cmd, ReasonUnknownCommand)
	}
}

// ownedUnits resolves the command's ids, or the faction selection when none
// are given, and checks each one is a living own entity with capability.
func (w *World) ownedUnits(cmd Command, capability Capability) ([]*Entity, error) {
	ids := cmd.UnitIDs
	if len(ids) == 0 {
		ids = w.selection[cmd.Faction]
	}
	if len(ids) == 0 {
		return nil, reject(cmd, ReasonNoUnits)
	}
	units := make([]*Entity, 0, len(ids))
	seen := make(map[EntityID]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		e, err := w.ownedEntity(cmd, id)
		if err != nil {
			return nil, err
		}
		if capability != 0 && !e.Can(capability) {
			return nil, reject(cmd, ReasonIncapable)
		}
		units = append(units, e)
	}
	return units, nil
}

func (w *World) ownedEntity(cmd Command, id EntityID) (*Entity, error) {
	e := w.entities[id]
	switch {
	case e == nil:
		return nil, reject(cmd, ReasonUnknownEntity)
	case e.Faction != cmd.Faction:
		return nil, reject(cmd, ReasonNotOwned)
	case !e.Alive:
		return nil, reject(cmd, ReasonDead)
	}
	return e, nil
}

func (w *World) applySelect(cmd Command) error {
	if len(cmd.UnitIDs) == 0 {
		w.selection[cmd.Faction] = nil
		return nil
	}
	units, err := w.ownedUnits(cmd, 0)
	if err != nil {
		return err
	}
	sel := make([]EntityID, len(units))
	for i, u := range units {
		sel[i] = u.ID
	}
	w.selection[cmd.Faction] = sel
	return nil
}

func (w *World) applyMove(cmd Command) error {
	units, err := w.ownedUnits(cmd, CapMovable)
	if err != nil {
		return err
	}
	if !w.grid.InBounds(cmd.Target) {
		return reject(cmd, ReasonOutOfBounds)
	}

	goals := w.groupDestinations(cmd.Target, units)
	for i, u := range units {
		w.clearOrders(u)
		u.order = orderMove
		if !w.setGoal(u, goals[i]) {
			w.giveUp(u, goals[i])
		}
	}
	return nil
}

func (w *World) applyAttack(cmd Command) error {
	units, err := w.ownedUnits(cmd, CapAttacker)
	if err != nil {
		return err
	}
	target := w.entities[cmd.TargetID]
	if target == nil || !target.Alive {
		return reject(cmd, ReasonUnknownEntity)
	}
	if !hostile(cmd.Faction, target.Faction) {
		return reject(cmd, ReasonNotEnemy)
	}
	if !w.visibleTo(cmd.Faction, target) {
		return reject(cmd, ReasonNotVisible)
	}
	for _, u := range units {
		w.clearOrders(u)
		u.order = orderAttack
		u.target = target.ID
		u.Activity = ActivityAttacking
	}
	return nil
}

func (w *World) applyBuild(cmd Command) error {
	if len(cmd.UnitIDs) == 0 {
		return reject(cmd, ReasonNoUnits)
	}
	worker, err := w.ownedEntity(cmd, cmd.UnitIDs[0])
	if err != nil {
		return err
	}
	if !worker.Can(CapBuilder) || !worker.stats.CanBuild(cmd.Kind) {
		return reject(cmd, ReasonIncapable)
	}
	stats := w.rules.Stats[cmd.Kind]

	// Resume an unfinished own building at the same site.
	if site := w.buildingAt(cmd.Target, cmd.Faction); site != nil {
		if site.Kind != cmd.Kind || site.Cell != cmd.Target || site.Complete {
			return reject(cmd, ReasonSiteBlocked)
		}
		w.clearOrders(worker)
		worker.order = orderBuild
		worker.buildKind = cmd.Kind
		worker.buildAnchor = cmd.Target
		worker.buildSite = site.ID
		return nil
	}

	for _, c := range footprintCells(cmd.Target, stats.Footprint) {
		if !w.grid.InBounds(c) {
			return reject(cmd, ReasonOutOfBounds)
		}
		if !w.exploredBy(cmd.Faction, c) {
			return reject(cmd, ReasonNotExplored)
		}
		if !w.grid.IsWalkable(c, spatial.NoOccupant) {
			return reject(cmd, ReasonSiteBlocked)
		}
	}
	if w.resources[cmd.Faction] < stats.Cost {
		return reject(cmd, ReasonInsufficient)
	}

	w.clearOrders(worker)
	worker.order = orderBuild
	worker.buildKind = cmd.Kind
	worker.buildAnchor = cmd.Target
	worker.buildSite = 0
	return nil
}

func (w *World) applyProduce(cmd Command) error {
	if len(cmd.UnitIDs) == 0 {
		return reject(cmd, ReasonNoUnits)
	}
	building, err := w.ownedEntity(cmd, cmd.UnitIDs[0])
	if err != nil {
		return err
	}
	if !building.Can(CapProducer) || !building.stats.CanProduce(cmd.Kind) {
		return reject(cmd, ReasonIncapable)
	}
	if !building.Complete {
		return reject(cmd, ReasonIncomplete)
	}
	if len(building.queue) >= w.rules.MaxQueue {
		return reject(cmd, ReasonQueueFull)
	}
	cost := w.rules.Stats[cmd.Kind].Cost
	if w.resources[cmd.Faction] < cost {
		return reject(cmd, ReasonInsufficient)
	}

	w.resources[cmd.Faction] -= cost
	building.queue = append(building.queue, cmd.Kind)
	building.Activity = ActivityProducing
	w.events.Emit(EventTypeProductionStarted, cmd.Faction, building.ID, ProductionPayload{
		BuildingID: building.ID,
		Kind:       cmd.Kind,
		QueueLen:   len(building.queue),
	})
	return nil
}

func (w *World) applyGather(cmd Command) error {
	units, err := w.ownedUnits(cmd, CapGatherer)
	if err != nil {
		return err
	}
	patch := w.minerals[cmd.Target]
	if patch == nil || patch.Amount <= 0 {
		return reject(cmd, ReasonNoMineral)
	}
	if !w.exploredBy(cmd.Faction, cmd.Target) {
		return reject(cmd, ReasonNotExplored)
	}
	for _, u := range units {
		carrying := u.carrying
		w.clearOrders(u)
		u.carrying = carrying
		u.order = orderGather
		u.gatherCell = cmd.Target
	}
	return nil
}

// clearOrders drops whatever u was doing. Carried minerals are lost unless
// the caller restores them.
func (w *World) clearOrders(u *Entity) {
	u.order = orderNone
	u.path = nil
	u.blockedTicks = 0
	u.target = 0
	u.gatherTimer = 0
	u.carrying = 0
	u.buildSite = 0
	u.buildKind = KindNone
	u.Activity = ActivityIdle
}

// buildingAt returns the own building covering c, if any.
func (w *World) buildingAt(c spatial.Coord, f Faction) *Entity {
	occ := w.grid.Occupant(c)
	if occ == spatial.NoOccupant {
		return nil
	}
	e := w.entities[occ]
	if e == nil || !e.Alive || e.Faction != f || !e.Kind.IsBuilding() {
		return nil
	}
	return e
}

// groupDestinations spreads a group over distinct cells around target so
// units do not all fight for one cell. A single unit gets the target itself.
// Cells are taken from square rings around the target in row-major order;
// units keep their command order.
func (w *World) groupDestinations(target spatial.Coord, units []*Entity) []spatial.Coord {
	goals := make([]spatial.Coord, len(units))
	if len(units) == 1 {
		goals[0] = target
		return goals
	}

	inGroup := make(map[EntityID]bool, len(units))
	for _, u := range units {
		inGroup[u.ID] = true
	}
	free := func(c spatial.Coord) bool {
		if !w.grid.Passable(c) {
			return false
		}
		occ := w.grid.Occupant(c)
		return occ == spatial.NoOccupant || inGroup[occ]
	}

	candidates := make([]spatial.Coord, 0, len(units))
	if free(target) {
		candidates = append(candidates, target)
	}
	maxRing := max(w.grid.Width(), w.grid.Height())
	for ring := 1; ring <= maxRing && len(candidates) < len(units); ring++ {
		for y := target.Y - ring; y <= target.Y+ring; y++ {
			for x := target.X - ring; x <= target.X+ring; x++ {
				if x != target.X-ring && x != target.X+ring && y != target.Y-ring && y != target.Y+ring {
					continue
				}
				c := spatial.Coord{X: x, Y: y}
				if free(c) {
					candidates = append(candidates, c)
				}
			}
		}
	}

	for i := range units {
		if i < len(candidates) {
			goals[i] = candidates[i]
		} else {
			goals[i] = target
		}
	}
	return goals
}

func firstID(ids []EntityID) EntityID {
	if len(ids) == 0 {
		return 0
	}
	return ids[0]
}
