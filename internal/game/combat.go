package game

// stepCombat resolves attacks. Soldiers in range of their target strike when
// their cooldown allows, soldiers out of range chase, and idle soldiers pick
// the nearest enemy their faction can see.
func (w *World) stepCombat() {
	for _, id := range w.order {
		u := w.entities[id]
		if u == nil || !u.Alive || !u.Can(CapAttacker) {
			continue
		}
		if u.attackCooldown > 0 {
			u.attackCooldown--
		}
		if u.Idle() {
			w.autoAcquire(u)
		}
		if u.order != orderAttack {
			continue
		}

		t := w.entities[u.target]
		if t == nil || !t.Alive || !w.visibleTo(u.Faction, t) {
			w.clearOrders(u)
			continue
		}

		r := u.stats.Range
		if footprintDistSq(u.Cell, t.Cell, t.stats.Footprint) <= r*r {
			u.path = nil
			u.Activity = ActivityAttacking
			if u.attackCooldown == 0 {
				w.hit(u, t)
				u.attackCooldown = u.stats.AttackCooldown
			}
			continue
		}

		u.Activity = ActivityMoving
		if u.chaseTimer > 0 {
			u.chaseTimer--
		}
		if u.Moving() && (t.Cell == u.chaseCell || u.chaseTimer > 0) {
			continue
		}
		u.chaseCell = t.Cell
		u.chaseTimer = w.rules.ChaseRepathTicks
		u.path = nil
		w.approach(u, t.Cell, t.stats.Footprint)
	}
}

// hit applies one attack from u to t.
func (w *World) hit(u, t *Entity) {
	dmg := u.stats.Damage
	t.HP -= dmg
	if t.HP < 0 {
		t.HP = 0
	}
	w.events.EmitPair(EventTypeAttackLanded, u.Faction, t.Faction, u.ID, AttackPayload{
		AttackerID: u.ID,
		TargetID:   t.ID,
		Damage:     dmg,
		TargetHP:   t.HP,
	})

	if t.Kind == KindBase && (!t.alerted || w.tick-t.lastAlertTick >= uint64(w.rules.AlertCooldown)) {
		t.alerted = true
		t.lastAlertTick = w.tick
		w.events.Emit(EventTypeBaseUnderAttack, t.Faction, t.ID, BaseUnderAttackPayload{
			BaseID:     t.ID,
			AttackerID: u.ID,
			HP:         t.HP,
		})
	}

	if t.HP == 0 {
		w.kill(t, u.ID)
		w.clearOrders(u)
	}
}

// autoAcquire targets the nearest visible enemy within sight. Ties go to
// the lower id.
func (w *World) autoAcquire(u *Entity) {
	sight := u.stats.Sight * u.stats.Sight
	var best *Entity
	bestDist := 0
	for _, id := range w.order {
		e := w.entities[id]
		if e == nil || !e.Alive || !hostile(u.Faction, e.Faction) {
			continue
		}
		d := footprintDistSq(u.Cell, e.Cell, e.stats.Footprint)
		if d > sight || !w.visibleTo(u.Faction, e) {
			continue
		}
		if best == nil || d < bestDist {
			best = e
			bestDist = d
		}
	}
	if best != nil {
		u.order = orderAttack
		u.target = best.ID
		u.Activity = ActivityAttacking
	}
}
