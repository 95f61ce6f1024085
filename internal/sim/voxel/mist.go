package voxel

// FluidSpawnMist puts mist of type t at p if the type produces mist and p is open air.
// An existing mist is only refreshed, never shortened.
func (g *Grid) FluidSpawnMist(p Point, t FluidTypeID) {
	ft := g.FluidType(t)
	if ft.MistDuration <= 0 || p == NoPoint {
		return
	}
	g.spawnMist(p, Mist{Type: t, Ticks: ft.MistDuration, Spread: ft.MaxMistSpread})
}

func (g *Grid) spawnMist(p Point, m Mist) {
	if !g.FluidCanEnterEver(p) || g.FluidAny(p) {
		return
	}
	if cur, ok := g.mist[p]; ok && cur.Ticks >= m.Ticks {
		return
	}
	g.mist[p] = m
	g.markDirty(p)
}

func (g *Grid) MistAt(p Point) (Mist, bool) {
	m, ok := g.mist[p]
	return m, ok
}

func (g *Grid) MistCount() int { return len(g.mist) }

// TickMist ages every mist by one tick and lets it drift into open neighbours while
// its spread allows.
func (g *Grid) TickMist() {
	if len(g.mist) == 0 {
		return
	}
	points := sortedPoints(g.mist)
	var spawns []Point
	var spawnMist []Mist
	var nbuf []Point
	for _, p := range points {
		m := g.mist[p]
		m.Ticks--
		g.markDirty(p)
		if m.Ticks <= 0 || g.FluidAny(p) || !g.FluidCanEnterEver(p) {
			delete(g.mist, p)
			continue
		}
		g.mist[p] = m
		if m.Spread <= 0 {
			continue
		}
		nbuf = g.Neighbors(p, nbuf[:0])
		for _, q := range nbuf {
			if _, ok := g.mist[q]; ok {
				continue
			}
			spawns = append(spawns, q)
			spawnMist = append(spawnMist, Mist{Type: m.Type, Ticks: m.Ticks, Spread: m.Spread - 1})
		}
	}
	for i, q := range spawns {
		g.spawnMist(q, spawnMist[i])
	}
}

// Freeze turns p into a solid made of frozen fluid t. The caller removes the fluid.
func (g *Grid) Freeze(p Point, t FluidTypeID) {
	g.SetSolid(p, g.capacity)
	g.frozen[p] = t
	delete(g.mist, p)
	g.markDirty(p)
}

// Thaw clears a frozen point and reports which fluid it was made of.
func (g *Grid) Thaw(p Point) (FluidTypeID, bool) {
	t, ok := g.frozen[p]
	if !ok {
		return 0, false
	}
	delete(g.frozen, p)
	g.SetSolid(p, 0)
	g.markDirty(p)
	return t, true
}

func (g *Grid) FrozenAt(p Point) (FluidTypeID, bool) {
	t, ok := g.frozen[p]
	return t, ok
}

func (g *Grid) FrozenPoints() []Point { return sortedPoints(g.frozen) }
