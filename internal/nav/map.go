package nav

import (
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mkoval/navgo/internal/nav/mesh"
	"github.com/mkoval/navgo/internal/nav/pather"
)

// connKey identifies a directed connection by the dense indexes of its
// endpoint areas.
type connKey struct {
	from, to int
}

// cachedVis is one memoized visibility verdict. An entry past its expiry
// tick is logically absent: lookups ignore it and the periodic sweep
// removes it.
type cachedVis struct {
	expireTick int
	passable   bool
}

// Map owns a loaded mesh, the search oracle over it, and the visibility
// cache feeding the cost function. Not safe for concurrent use; all
// methods run on the tick thread.
type Map struct {
	File  *mesh.File
	State NavState

	pather   *pather.Pather
	vischeck *Vischeck
	clock    Clock

	visCache map[connKey]cachedVis
	usage    map[int]float64 // seconds of observed player presence per area
	danger   map[int]int     // area index -> expire tick

	usageBias  bool
	logPathing bool

	sweep Timer
}

// NewMap builds a Map around an already-loaded mesh file. A nil file
// produces an Unavailable map whose operations are no-ops.
func NewMap(f *mesh.File, vis *Vischeck, clock Clock, now func() time.Time) *Map {
	m := &Map{
		File:     f,
		State:    StateUnavailable,
		vischeck: vis,
		clock:    clock,
		visCache: make(map[connKey]cachedVis),
		usage:    make(map[int]float64),
		danger:   make(map[int]int),
		sweep:    NewTimer(now),
	}
	if f != nil {
		m.State = StateActive
	}
	m.pather = pather.New(m)
	return m
}

// SetUsageBias toggles discounting of edges into areas where other
// players have been observed.
func (m *Map) SetUsageBias(on bool) { m.usageBias = on }

// SetLogPathing toggles diagnostic pathing logs.
func (m *Map) SetLogPathing(on bool) { m.logPathing = on }

// AdjacentCost implements pather.Graph. For each outbound connection it
// prices the edge from the traversal waypoints, rejecting climbs above
// jump height, trusting the mesh topology for dropdowns, and consulting
// the visibility cache before spending ray casts.
func (m *Map) AdjacentCost(state int) []pather.StateCost {
	area := &m.File.Areas[state]
	tick := m.clock.TickCount()

	out := make([]pather.StateCost, 0, len(area.Connections))
	for _, next := range area.Connections {
		if m.isDanger(next, tick) {
			continue
		}
		nextArea := &m.File.Areas[next]
		points := DeterminePoints(area, nextArea)

		deltaZ := points.Center.Z() - points.Current.Z()
		// Too high for us to jump.
		if deltaZ > PlayerJumpHeight {
			continue
		}
		// A real dropdown: trust the mesh topology, no vischeck needed.
		dropdown := deltaZ < -PlayerJumpHeight

		points.Current = HandleDropdown(points.Current, points.Center)
		points.Center = HandleDropdown(points.Center, points.Next)
		// Rays go out at clearance height, not at the floor.
		points = points.Raised(PlayerJumpHeight)

		key := connKey{from: state, to: next}
		if c, ok := m.visCache[key]; ok && c.expireTick >= tick {
			if c.passable || dropdown {
				cost := float64(nextArea.Center.Sub(area.Center).Len())
				out = append(out, pather.StateCost{State: next, Cost: cost * m.usageMultiplier(next)})
			}
			continue
		}

		expire := tick + int(VisCacheTTL.Seconds()/m.clock.TickInterval())
		allowed := dropdown
		if m.vischeck.IsPlayerPassable(points.Current, points.Center) &&
			m.vischeck.IsPlayerPassable(points.Center, points.Next) {
			m.visCache[key] = cachedVis{expireTick: expire, passable: true}
			allowed = true
		} else {
			m.visCache[key] = cachedVis{expireTick: expire, passable: false}
		}
		if allowed {
			cost := float64(points.Next.Sub(points.Current).Len())
			out = append(out, pather.StateCost{State: next, Cost: cost * m.usageMultiplier(next)})
		}
	}
	return out
}

// LeastCostEstimate implements pather.Graph: straight-line distance
// between area centers. With usage bias active, edges can be discounted
// by up to 90%, so the estimate is scaled down to the minimum surviving
// fraction to stay admissible.
func (m *Map) LeastCostEstimate(start, end int) float64 {
	d := float64(m.File.Areas[end].Center.Sub(m.File.Areas[start].Center).Len())
	if m.usageBias {
		d *= 0.1
	}
	return d
}

// usageMultiplier discounts an edge into a well-traveled area. The
// logistic curve maps accumulated presence seconds onto [0, 0.9).
func (m *Map) usageMultiplier(area int) float64 {
	if !m.usageBias {
		return 1
	}
	score := m.usage[area]
	mult := 2 * (0.9/(1+math.Exp(-0.2*score)) - 0.45)
	return 1 - mult
}

// AddUsage records seconds of observed player presence in an area.
func (m *Map) AddUsage(area int, seconds float64) {
	if area < 0 {
		return
	}
	m.usage[area] += seconds
}

// MarkDanger blacklists an area until the given tick; the cost function
// skips edges into it while marked.
func (m *Map) MarkDanger(area int, untilTick int) {
	if area < 0 {
		return
	}
	m.danger[area] = untilTick
}

func (m *Map) isDanger(area, tick int) bool {
	expire, ok := m.danger[area]
	return ok && expire >= tick
}

// FindClosestArea locates the best area for a world point. It prefers the
// nearest area whose footprint contains the point and whose center is
// mutually visible at jump height; when no such area exists, it falls
// back to the nearest area by center distance. Returns -1 when the mesh
// holds no areas.
func (m *Map) FindClosestArea(point mgl32.Vec3) int {
	if m.File == nil || len(m.File.Areas) == 0 {
		return -1
	}
	corrected := mgl32.Vec3{point.X(), point.Y(), point.Z() + PlayerJumpHeight}

	ovBestDist := float32(math.MaxFloat32)
	bestDist := float32(math.MaxFloat32)
	ovBest, best := -1, -1

	for i := range m.File.Areas {
		area := &m.File.Areas[i]
		dist := area.Center.Sub(point).Len()
		if dist < bestDist {
			bestDist = dist
			best = i
		}

		if ovBestDist < dist || !area.Overlaps(point) {
			continue
		}
		centerCorrected := mgl32.Vec3{area.Center.X(), area.Center.Y(), area.Center.Z() + PlayerJumpHeight}
		if !m.vischeck.IsVisible(corrected, centerCorrected) {
			continue
		}
		ovBestDist = dist
		ovBest = i
	}

	if ovBest < 0 {
		return best
	}
	return ovBest
}

// FindPath runs the search oracle between two area indexes and returns
// the inclusive area sequence.
func (m *Map) FindPath(local, dest int) ([]int, error) {
	if m.State != StateActive {
		return nil, ErrMeshUnavailable
	}

	if m.logPathing {
		start := m.File.Areas[local].Center
		end := m.File.Areas[dest].Center
		slog.Info("pathing start", "from", start, "to", end)
	}

	began := time.Now()
	path, cost, err := m.pather.Solve(local, dest)
	if m.logPathing {
		slog.Info("pathing done", "err", err, "cost", cost, "took", time.Since(began))
	}
	if err != nil {
		if errors.Is(err, pather.ErrNoSolution) {
			return nil, ErrNoRoute
		}
		return nil, err
	}
	return path, nil
}

// Maintain sweeps expired cache entries and danger marks on a fixed
// cadence. Any purge resets the search oracle: a previously rejected edge
// may now pass, and a previously memoized route may lean on a verdict
// that no longer holds.
func (m *Map) Maintain() {
	if !m.sweep.TestAndSet(SweepInterval) {
		return
	}

	tick := m.clock.TickCount()
	purged := false
	for key, c := range m.visCache {
		if c.expireTick < tick {
			delete(m.visCache, key)
			purged = true
		}
	}
	for area, expire := range m.danger {
		if expire < tick {
			delete(m.danger, area)
			purged = true
		}
	}
	if purged {
		m.pather.Reset()
	}
}

// Reset drops the whole visibility cache, all danger marks and the search
// oracle's memory, unconditionally.
func (m *Map) Reset() {
	clear(m.visCache)
	clear(m.danger)
	m.pather.Reset()
}
