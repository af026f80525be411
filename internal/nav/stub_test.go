package nav

import (
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/mkoval/navgo/internal/nav/mesh"
)

// fakeClock is a hand-advanced tick counter at a 66 tick/s rate.
type fakeClock struct {
	tick int
}

func (c *fakeClock) TickCount() int        { return c.tick }
func (c *fakeClock) TickInterval() float64 { return 1.0 / 66.0 }

// ttlTicks is the visibility cache lifetime under fakeClock.
func (c *fakeClock) ttlTicks() int {
	return int(VisCacheTTL.Seconds() / c.TickInterval())
}

// fakeNow is a hand-advanced wall clock for Timers.
type fakeNow struct {
	t time.Time
}

func (n *fakeNow) Now() time.Time          { return n.t }
func (n *fakeNow) Advance(d time.Duration) { n.t = n.t.Add(d) }

// fakeTracer counts rays and optionally blocks them via blockFn.
type fakeTracer struct {
	calls   int
	blockFn func(origin, end mgl32.Vec3) bool
}

func (t *fakeTracer) TraceRay(origin, end mgl32.Vec3, _ uint32) bool {
	t.calls++
	if t.blockFn == nil {
		return false
	}
	return t.blockFn(origin, end)
}

// wallAt blocks any ray crossing the vertical plane x = x0.
func wallAt(x0 float32) func(origin, end mgl32.Vec3) bool {
	return func(origin, end mgl32.Vec3) bool {
		return (origin.X()-x0)*(end.X()-x0) < 0
	}
}

// fakeAgent is a controllable AgentState.
type fakeAgent struct {
	origin mgl32.Vec3
	vel    mgl32.Vec3
	dead   bool
	air    bool
	scoped bool
	revved bool
}

func (a *fakeAgent) Origin() mgl32.Vec3   { return a.origin }
func (a *fakeAgent) Velocity() mgl32.Vec3 { return a.vel }
func (a *fakeAgent) Alive() bool          { return !a.dead }
func (a *fakeAgent) OnGround() bool       { return !a.air }
func (a *fakeAgent) Scoped() bool         { return a.scoped }
func (a *fakeAgent) Revved() bool         { return a.revved }

// recordControls captures the inputs issued each tick.
type recordControls struct {
	walked []mgl32.Vec3
	jumps  int
	ducks  int
}

func (c *recordControls) WalkTo(p mgl32.Vec3) { c.walked = append(c.walked, p) }
func (c *recordControls) Jump()               { c.jumps++ }
func (c *recordControls) Duck()               { c.ducks++ }

// square builds a 100x100 area centered at (cx, cy, cz).
func square(id uint32, cx, cy, cz float32) mesh.Area {
	return mesh.Area{
		ID:       id,
		Center:   mgl32.Vec3{cx, cy, cz},
		NWCorner: mgl32.Vec3{cx - 50, cy - 50, cz},
		SECorner: mgl32.Vec3{cx + 50, cy + 50, cz},
	}
}

// chain builds a bidirectionally connected row of 100x100 areas at the
// given centers.
func chain(centers ...mgl32.Vec3) *mesh.File {
	areas := make([]mesh.Area, len(centers))
	for i, c := range centers {
		areas[i] = square(uint32(i+1), c.X(), c.Y(), c.Z())
	}
	f := mesh.New(areas)
	for i := range f.Areas {
		if i > 0 {
			f.Areas[i].Connections = append(f.Areas[i].Connections, i-1)
		}
		if i < len(f.Areas)-1 {
			f.Areas[i].Connections = append(f.Areas[i].Connections, i+1)
		}
	}
	return f
}

// eastRow builds n areas in a row along +X, 100 units apart, at z = 0.
func eastRow(n int) *mesh.File {
	centers := make([]mgl32.Vec3, n)
	for i := range centers {
		centers[i] = mgl32.Vec3{float32(i) * 100, 0, 0}
	}
	return chain(centers...)
}

// testMap wires a Map over the given mesh with fresh fakes.
func testMap(f *mesh.File, tracer *fakeTracer, clock *fakeClock, now *fakeNow) *Map {
	return NewMap(f, NewVischeck(tracer), clock, now.Now)
}
