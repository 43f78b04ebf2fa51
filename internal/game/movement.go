package game

import "microcraft/internal/game/spatial"

// setGoal plans a route from u's cell to goal. On failure u keeps whatever
// path it had and false is returned.
func (w *World) setGoal(u *Entity, goal spatial.Coord) bool {
	path, err := w.pathfinder.FindPath(u.Cell, goal, u.ID)
	if err != nil {
		return false
	}
	u.goal = goal
	u.blockedTicks = 0
	if path.Done() {
		u.path = nil
		if u.order == orderMove {
			u.order = orderNone
			u.Activity = ActivityIdle
		}
		return true
	}
	u.path = path
	if u.order == orderMove {
		u.Activity = ActivityMoving
	}
	return true
}

// giveUp abandons u's order after routing failed. Carried minerals are kept.
func (w *World) giveUp(u *Entity, goal spatial.Coord) {
	w.events.Emit(EventTypePathFailed, u.Faction, u.ID, PathFailedPayload{From: u.Cell, Goal: goal})
	carrying := u.carrying
	w.clearOrders(u)
	u.carrying = carrying
}

// approach walks u until it is orthogonally adjacent to the footprint and
// reports whether it already is. Unreachable sites are retried for
// BlockedRetryTicks before the order is dropped.
func (w *World) approach(u *Entity, anchor spatial.Coord, size int) bool {
	if adjacentToFootprint(u.Cell, anchor, size) {
		u.path = nil
		u.blockedTicks = 0
		return true
	}
	if u.Moving() {
		return false
	}
	if cell, ok := w.approachCell(u, anchor, size); ok && w.setGoal(u, cell) {
		return false
	}
	u.blockedTicks++
	if u.blockedTicks > w.rules.BlockedRetryTicks {
		w.giveUp(u, anchor)
	}
	return false
}

// stepMovement advances every mover whose step cooldown has expired by one
// cell. A blocked next cell triggers a re-plan from the current position.
func (w *World) stepMovement() error {
	for _, id := range w.order {
		u := w.entities[id]
		if u == nil || !u.Alive || u.path == nil {
			continue
		}
		if u.moveCooldown > 0 {
			u.moveCooldown--
			continue
		}

		next, ok := u.path.Peek()
		if !ok {
			w.arrive(u)
			continue
		}
		if !w.grid.IsWalkable(next, u.ID) {
			path, err := w.pathfinder.FindPath(u.Cell, u.goal, u.ID)
			if err != nil {
				w.blocked(u)
				continue
			}
			u.path = path
			u.blockedTicks = 0
			if next, ok = path.Peek(); !ok {
				w.arrive(u)
				continue
			}
		}

		if err := w.stepTo(u, next); err != nil {
			return err
		}
		u.path.Advance()
		u.moveCooldown = w.rules.ticksPerCell(u.stats.Speed) - 1
		if u.path.Done() {
			w.arrive(u)
		}
	}
	return nil
}

// stepTo moves a single-cell unit onto an adjacent cell.
func (w *World) stepTo(u *Entity, next spatial.Coord) error {
	if err := w.grid.Occupy(next, u.ID); err != nil {
		return &InconsistentStateError{Cell: next, Entity: u.ID, Detail: "step onto claimed cell: " + err.Error()}
	}
	w.grid.Vacate(u.Cell)
	u.Cell = next
	return nil
}

// blocked handles a failed re-plan. Plain moves hold position and retry;
// other orders drop the path and let their system pick a new approach.
func (w *World) blocked(u *Entity) {
	if u.order != orderMove {
		u.path = nil
		return
	}
	u.blockedTicks++
	if u.blockedTicks > w.rules.BlockedRetryTicks {
		w.giveUp(u, u.goal)
	}
}

func (w *World) arrive(u *Entity) {
	u.path = nil
	u.blockedTicks = 0
	if u.order == orderMove {
		u.order = orderNone
		u.Activity = ActivityIdle
	}
}
