package nav

import (
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mkoval/navgo/internal/config"
	"github.com/mkoval/navgo/internal/nav/mesh"
)

// AgentState is the read side of the tick collaborator: the agent the
// engine is steering.
type AgentState interface {
	Origin() mgl32.Vec3
	Velocity() mgl32.Vec3
	Alive() bool
	OnGround() bool
	// Scoped and Revved gate jumping: an agent committed to an aiming
	// stance must not hop.
	Scoped() bool
	Revved() bool
}

// Controls is the write side of the tick collaborator: the movement
// inputs for the current tick.
type Controls interface {
	WalkTo(target mgl32.Vec3)
	Jump()
	Duck()
}

// Crumb is one waypoint of the committed route. Area is the dense index
// of the area the point belongs to, or -1 for the terminal crumb carrying
// the raw destination.
type Crumb struct {
	Area  int
	Point mgl32.Vec3
}

// Engine is one navigation session: the loaded map, the committed crumb
// queue, and the movement timers. It is owned by a single tick loop; only
// the map pointer, the load flag and the requested mesh path are touched
// across goroutines, and only by the background mesh load.
type Engine struct {
	cfg      config.Nav
	clock    Clock
	agent    AgentState
	controls Controls
	vischeck *Vischeck
	now      func() time.Time

	m        atomic.Pointer[Map]
	loading  atomic.Bool
	wantPath atomic.Pointer[string]

	crumbs  []Crumb
	scratch mgl32.Vec3

	inactivity     Timer
	lastJump       Timer
	crouch         bool
	ticksSinceJump int
}

// NewEngine creates a session with no mesh loaded. now should be time.Now
// outside of tests.
func NewEngine(cfg config.Nav, tracer Tracer, clock Clock, agent AgentState, controls Controls, now func() time.Time) *Engine {
	e := &Engine{
		cfg:        cfg,
		clock:      clock,
		agent:      agent,
		controls:   controls,
		vischeck:   NewVischeck(tracer),
		now:        now,
		inactivity: NewTimer(now),
		lastJump:   NewTimer(now),
	}
	return e
}

// Map returns the currently loaded map, which may be nil.
func (e *Engine) Map() *Map {
	return e.m.Load()
}

// IsReady reports whether pathing is enabled and an active mesh is
// loaded.
func (e *Engine) IsReady() bool {
	m := e.m.Load()
	return e.cfg.Enabled && m != nil && m.State == StateActive
}

// Crumbs returns the committed route. The slice is owned by the engine
// and replaced wholesale on each NavTo.
func (e *Engine) Crumbs() []Crumb {
	return e.crumbs
}

// newMap wires a freshly parsed mesh file into a Map with the session's
// collaborators and config.
func (e *Engine) newMap(f *mesh.File) *Map {
	m := NewMap(f, e.vischeck, e.clock, e.now)
	m.SetUsageBias(e.cfg.PreferPlayerRoutes)
	m.SetLogPathing(e.cfg.LogPathing)
	return m
}

// LevelInit points the session at a level. When the derived mesh path
// differs from the loaded one the mesh is loaded synchronously; when it
// is the same file, the caches and search state are fully reset instead.
func (e *Engine) LevelInit(levelName string) error {
	path := mesh.FilePathForLevel(e.cfg.MeshDir, levelName)

	if cur := e.m.Load(); cur != nil && cur.File != nil && cur.File.Path == path {
		cur.Reset()
		return nil
	}

	f, err := mesh.Load(path)
	if err != nil {
		slog.Warn("nav mesh unavailable", "path", path, "err", err)
		e.m.Store(e.newMap(nil))
		return fmt.Errorf("%w: %v", ErrMeshUnavailable, err)
	}

	slog.Info("nav mesh loaded", "path", path, "areas", len(f.Areas))
	e.m.Store(e.newMap(f))
	e.ClearRoute()
	return nil
}

// LevelInitAsync is the background variant of LevelInit: the mesh is
// parsed on a detached goroutine and published atomically, so a large
// mesh does not stall a tick. The committed route is discarded right
// here on the tick thread; pathing stays unavailable until the load
// lands. A request arriving while a load is in flight replaces the
// wanted path, and the loader picks the latest one up before retiring.
func (e *Engine) LevelInitAsync(levelName string) {
	path := mesh.FilePathForLevel(e.cfg.MeshDir, levelName)

	if cur := e.m.Load(); cur != nil && cur.File != nil && cur.File.Path == path {
		cur.Reset()
		return
	}

	// The route was planned against the outgoing mesh; it dies now, not
	// when the load lands.
	e.ClearRoute()

	e.wantPath.Store(&path)
	if !e.loading.CompareAndSwap(false, true) {
		return
	}

	go func() {
		for {
			p := *e.wantPath.Load()

			f, err := mesh.Load(p)
			if err != nil {
				slog.Warn("nav mesh unavailable", "path", p, "err", err)
				e.m.Store(e.newMap(nil))
			} else {
				slog.Info("nav mesh loaded", "path", p, "areas", len(f.Areas))
				e.m.Store(e.newMap(f))
			}

			e.loading.Store(false)
			// A request that lost the flag race stored its path before
			// failing the swap; re-check after releasing so it cannot
			// be dropped.
			if *e.wantPath.Load() == p || !e.loading.CompareAndSwap(false, true) {
				return
			}
		}
	}()
}

// ReloadMesh drops the loaded mesh and loads the level's mesh from disk
// again, regardless of whether the file changed.
func (e *Engine) ReloadMesh(levelName string) error {
	e.m.Store(nil)
	e.ClearRoute()
	return e.LevelInit(levelName)
}

// ClearRoute discards the committed route and resets the follow state.
func (e *Engine) ClearRoute() {
	e.crumbs = nil
	e.crouch = false
	e.ticksSinceJump = 0
	e.inactivity.Update()
}

// NavTo plans a route to destination and commits it as the crumb queue.
// With navToLocal the route starts with the agent's own area; otherwise
// the start area is dropped and the first crumbs already lead into the
// next area. Any previously committed route is discarded, even on
// failure.
func (e *Engine) NavTo(destination mgl32.Vec3, navToLocal bool) error {
	m := e.m.Load()
	if !e.cfg.Enabled || m == nil || m.State != StateActive {
		return ErrMeshUnavailable
	}
	e.crumbs = nil

	start := m.FindClosestArea(e.agent.Origin())
	dest := m.FindClosestArea(destination)
	if start < 0 || dest < 0 {
		return ErrUnresolvedArea
	}

	path, err := m.FindPath(start, dest)
	if err != nil {
		return err
	}
	if !navToLocal {
		path = path[1:]
		if len(path) == 0 {
			return ErrNoRoute
		}
	}

	crumbs := make([]Crumb, 0, 2*len(path)+1)
	for i, idx := range path {
		area := &m.File.Areas[idx]

		// Every area but the last contributes its two traversal
		// waypoints toward the successor; the last contributes its
		// center.
		if i != len(path)-1 {
			next := &m.File.Areas[path[i+1]]
			points := DeterminePoints(area, next)

			points.Current = HandleDropdown(points.Current, points.Center)
			points.Center = HandleDropdown(points.Center, points.Next)

			crumbs = append(crumbs,
				Crumb{Area: idx, Point: points.Current},
				Crumb{Area: idx, Point: points.Center})
		} else {
			crumbs = append(crumbs, Crumb{Area: idx, Point: area.Center})
		}
	}
	crumbs = append(crumbs, Crumb{Area: -1, Point: destination})

	e.crumbs = crumbs
	e.inactivity.Update()
	return nil
}

// CreateMove is the per-tick entry point: cache upkeep, crumb
// consumption, the jump/crouch decision and the movement command for this
// tick.
func (e *Engine) CreateMove() {
	m := e.m.Load()
	if !e.cfg.Enabled || m == nil || m.State != StateActive {
		return
	}
	if !e.agent.Alive() {
		return
	}

	m.Maintain()
	e.followCrumbs(m)
}

func (e *Engine) followCrumbs(m *Map) {
	if len(e.crumbs) == 0 {
		return
	}

	origin := e.agent.Origin()
	if e.crumbs[0].Point.Sub(origin).Len() < ArrivalRadius {
		e.crumbs = e.crumbs[1:]
		if len(e.crumbs) == 0 {
			return
		}
		e.inactivity.Update()
	} else if e.agent.Velocity().Len() > VelocityEpsilon {
		// Progress is motion, not just arrival; a moving agent is not
		// stuck.
		e.inactivity.Update()
	}

	e.decideJump(m, origin)

	e.controls.WalkTo(e.crumbs[0].Point)
}

// decideJump issues the jump-then-crouch sequence when the next crumb is
// meaningfully above the agent or when no progress has been made for half
// the stuck timeout. Holding jump continuously would bunny-hop, so the
// jump is a single tick followed by a crouch held until the agent is
// grounded again, at least CrouchHoldTicks later.
func (e *Engine) decideJump(m *Map, origin mgl32.Vec3) {
	aimLocked := e.agent.Scoped() || e.agent.Revved()
	jumpReady := e.lastJump.Check(JumpInterval)

	needRise := e.crouch || e.crumbs[0].Point.Z()-origin.Z() > RiseToJump
	stuck := e.inactivity.Check(e.cfg.StuckTime / 2)

	if !(!aimLocked && needRise && jumpReady) && !(jumpReady && stuck) {
		return
	}

	// The current area may forbid jumping outright (stairs included:
	// hopping up stairs just slows the agent down).
	local := m.FindClosestArea(origin)
	if local >= 0 && m.File.Areas[local].HasAttributes(mesh.AttrNoJump|mesh.AttrStairs) {
		return
	}

	if e.crouch {
		e.controls.Duck()
	} else {
		e.controls.Jump()
		e.crouch = true
		e.ticksSinceJump = 0
	}
	e.ticksSinceJump++

	if e.crouch && e.agent.OnGround() && e.ticksSinceJump >= CrouchHoldTicks {
		e.crouch = false
		e.lastJump.Update()
	}
}

// SetScratch stores the operator's scratch target point.
func (e *Engine) SetScratch(p mgl32.Vec3) {
	e.scratch = p
}

// Scratch returns the stored scratch point.
func (e *Engine) Scratch() mgl32.Vec3 {
	return e.scratch
}

// PathToScratch plans a route to the scratch point, keeping the local
// area in the route.
func (e *Engine) PathToScratch() error {
	return e.NavTo(e.scratch, true)
}

// CheckScratch runs a one-shot traversability check between the agent's
// area and the scratch point's area, returning the evaluated waypoints
// and the verdict.
func (e *Engine) CheckScratch() (NavPoints, bool, error) {
	m := e.m.Load()
	if !e.cfg.Enabled || m == nil || m.State != StateActive {
		return NavPoints{}, false, ErrMeshUnavailable
	}

	current := m.FindClosestArea(e.agent.Origin())
	next := m.FindClosestArea(e.scratch)
	if current < 0 || next < 0 {
		return NavPoints{}, false, ErrUnresolvedArea
	}

	points := DeterminePoints(&m.File.Areas[current], &m.File.Areas[next])
	points.Current = HandleDropdown(points.Current, points.Center)
	points.Center = HandleDropdown(points.Center, points.Next)
	points = points.Raised(PlayerJumpHeight)

	ok := e.vischeck.IsPlayerPassable(points.Current, points.Center) &&
		e.vischeck.IsPlayerPassable(points.Center, points.Next)
	if ok {
		slog.Info("nav check: area is player passable")
	} else {
		slog.Info("nav check: area is NOT player passable",
			"current", points.Current, "next", points.Next)
	}
	return points, ok, nil
}

// ObserveAreaUsage records another player's presence at a world position
// for one tick, feeding the usage bias. No-op unless the bias is enabled.
func (e *Engine) ObserveAreaUsage(pos mgl32.Vec3) {
	m := e.m.Load()
	if m == nil || m.State != StateActive || !e.cfg.PreferPlayerRoutes {
		return
	}
	m.AddUsage(m.FindClosestArea(pos), m.clock.TickInterval())
}

// MarkDangerAt blacklists the area under a world position for the given
// duration, steering routes around a sensed threat.
func (e *Engine) MarkDangerAt(pos mgl32.Vec3, d time.Duration) {
	m := e.m.Load()
	if m == nil || m.State != StateActive {
		return
	}
	until := m.clock.TickCount() + int(d.Seconds()/m.clock.TickInterval())
	m.MarkDanger(m.FindClosestArea(pos), until)
}
