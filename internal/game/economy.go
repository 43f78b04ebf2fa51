package game

import "microcraft/internal/game/spatial"

// stepEconomy runs gathering, construction and production, in that order.
func (w *World) stepEconomy() {
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || !e.Alive {
			continue
		}
		switch e.order {
		case orderGather:
			w.stepGather(e)
		case orderBuild:
			w.stepConstruction(e)
		}
	}
	for _, id := range w.order {
		if e := w.entities[id]; e != nil && e.Alive && e.Can(CapProducer) && e.Complete {
			w.stepProduction(e)
		}
	}
}

// stepGather runs the worker loop: walk to the patch, harvest for
// GatherTicks, carry the load to the nearest own base, repeat.
func (w *World) stepGather(u *Entity) {
	if u.carrying > 0 {
		base := w.nearestDropoff(u)
		if base == nil {
			u.Activity = ActivityIdle
			return
		}
		u.Activity = ActivityReturning
		if w.approach(u, base.Cell, base.stats.Footprint) {
			w.resources[u.Faction] += u.carrying
			w.events.Emit(EventTypeResourceCollected, u.Faction, u.ID, ResourcePayload{
				WorkerID: u.ID,
				Amount:   u.carrying,
				Total:    w.resources[u.Faction],
			})
			u.carrying = 0
		}
		return
	}

	patch := w.minerals[u.gatherCell]
	if patch == nil {
		next, ok := w.nearestPatch(u.Faction, u.gatherCell)
		if !ok {
			w.clearOrders(u)
			return
		}
		u.gatherCell = next
		u.path = nil
		patch = w.minerals[next]
	}

	if !w.approach(u, patch.Cell, 1) {
		if u.order == orderGather {
			u.Activity = ActivityMoving
		}
		return
	}

	u.Activity = ActivityGathering
	u.gatherTimer++
	if u.gatherTimer < w.rules.GatherTicks {
		return
	}
	u.gatherTimer = 0
	amount := min(w.rules.GatherAmount, patch.Amount)
	patch.Amount -= amount
	u.carrying = amount
	if patch.Amount <= 0 {
		delete(w.minerals, patch.Cell)
		w.grid.SetPassable(patch.Cell, true)
		w.events.Emit(EventTypeMineralDepleted, Neutral, 0, MineralDepletedPayload{Cell: patch.Cell})
	}
}

// stepConstruction walks the builder to the site, pays and places the
// building on arrival, then raises it while the builder stays adjacent.
func (w *World) stepConstruction(u *Entity) {
	stats := w.rules.Stats[u.buildKind]

	if u.buildSite == 0 {
		u.Activity = ActivityMoving
		if !w.approach(u, u.buildAnchor, stats.Footprint) {
			return
		}
		if w.resources[u.Faction] < stats.Cost {
			w.rejectOrder(u, CommandBuild, ReasonInsufficient)
			return
		}
		site, err := w.Spawn(u.buildKind, u.Faction, u.buildAnchor, false)
		if err != nil {
			w.rejectOrder(u, CommandBuild, ReasonSiteBlocked)
			return
		}
		w.resources[u.Faction] -= stats.Cost
		w.events.Emit(EventTypeBuildingPlaced, u.Faction, site.ID, BuildingPayload{
			Kind:      site.Kind,
			Anchor:    site.Cell,
			BuilderID: u.ID,
		})
		u.buildSite = site.ID
	}

	site := w.entities[u.buildSite]
	if site == nil || !site.Alive || site.Complete {
		w.clearOrders(u)
		return
	}
	if !w.approach(u, site.Cell, site.stats.Footprint) {
		return
	}

	u.Activity = ActivityConstructing
	buildTicks := max(1, site.stats.BuildTicks)
	site.progress++
	site.buildHP += site.stats.MaxHP
	for site.buildHP >= buildTicks {
		site.buildHP -= buildTicks
		if site.HP < site.stats.MaxHP {
			site.HP++
		}
	}
	if site.progress < buildTicks {
		return
	}

	site.Complete = true
	site.progress = 0
	site.buildHP = 0
	site.Activity = ActivityIdle
	w.events.Emit(EventTypeBuildingCompleted, site.Faction, site.ID, BuildingPayload{
		Kind:      site.Kind,
		Anchor:    site.Cell,
		BuilderID: u.ID,
	})
	w.clearOrders(u)
}

// stepProduction advances the head of a building's queue and spawns the
// unit on the nearest free cell. With no room the unit waits.
func (w *World) stepProduction(b *Entity) {
	if len(b.queue) == 0 {
		if b.Activity == ActivityProducing {
			b.Activity = ActivityIdle
		}
		return
	}
	b.Activity = ActivityProducing

	kind := b.queue[0]
	need := w.rules.Stats[kind].BuildTicks
	if b.progress < need {
		b.progress++
	}
	if b.progress < need {
		return
	}

	cell, ok := w.freeCellNear(b.Cell, b.stats.Footprint, 3)
	if !ok {
		return
	}
	unit, err := w.Spawn(kind, b.Faction, cell, true)
	if err != nil {
		return
	}
	b.queue = b.queue[1:]
	b.progress = 0
	w.events.Emit(EventTypeProductionCompleted, b.Faction, b.ID, ProductionPayload{
		BuildingID: b.ID,
		Kind:       kind,
		QueueLen:   len(b.queue),
		UnitID:     unit.ID,
	})

	if unit.Can(CapGatherer) {
		if patch, ok := w.nearestPatch(unit.Faction, unit.Cell); ok {
			unit.order = orderGather
			unit.gatherCell = patch
		}
	}
}

// rejectOrder drops an order that became invalid while it was carried out.
func (w *World) rejectOrder(u *Entity, t CommandType, reason string) {
	w.events.Emit(EventTypeCommandRejected, u.Faction, u.ID, CommandRejectedPayload{Command: t, Reason: reason})
	w.clearOrders(u)
}

// nearestDropoff returns the closest complete own base.
func (w *World) nearestDropoff(u *Entity) *Entity {
	var best *Entity
	bestDist := 0
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || !e.Alive || e.Faction != u.Faction || e.Kind != KindBase || !e.Complete {
			continue
		}
		d := e.Cell.Manhattan(u.Cell)
		if best == nil || d < bestDist {
			best = e
			bestDist = d
		}
	}
	return best
}

// nearestPatch returns the explored patch closest to from, ties broken by
// row then column.
func (w *World) nearestPatch(f Faction, from spatial.Coord) (spatial.Coord, bool) {
	var best spatial.Coord
	bestDist := -1
	for c, m := range w.minerals {
		if m.Amount <= 0 || !w.exploredBy(f, c) {
			continue
		}
		d := c.Manhattan(from)
		if bestDist < 0 || d < bestDist || (d == bestDist && coordLess(c, best)) {
			best = c
			bestDist = d
		}
	}
	return best, bestDist >= 0
}
