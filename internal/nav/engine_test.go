package nav

import (
	"os"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkoval/navgo/internal/config"
	"github.com/mkoval/navgo/internal/nav/mesh"
)

func testEngine(cfg config.Nav, f *mesh.File, tracer *fakeTracer, agent *fakeAgent, controls *recordControls) (*Engine, *fakeClock, *fakeNow) {
	clock := &fakeClock{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	e := NewEngine(cfg, tracer, clock, agent, controls, now.Now)
	e.m.Store(e.newMap(f))
	return e, clock, now
}

func TestNavToDropsStartArea(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	dest := mgl32.Vec3{100, 0, 0}
	require.NoError(t, e.NavTo(dest, false))

	crumbs := e.Crumbs()
	require.Len(t, crumbs, 2)
	assert.Equal(t, Crumb{Area: 1, Point: mgl32.Vec3{100, 0, 0}}, crumbs[0])
	assert.Equal(t, Crumb{Area: -1, Point: dest}, crumbs[1])
}

func TestNavToFourAreaRoute(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(4), &fakeTracer{}, agent, &recordControls{})

	require.NoError(t, e.NavTo(mgl32.Vec3{300, 0, 0}, false))

	// Start area dropped; two waypoints each for the two transit areas,
	// the final area's center, and the raw destination.
	crumbs := e.Crumbs()
	require.Len(t, crumbs, 6)
	assert.Equal(t, 1, crumbs[0].Area)
	assert.Equal(t, 1, crumbs[1].Area)
	assert.Equal(t, 2, crumbs[2].Area)
	assert.Equal(t, 2, crumbs[3].Area)
	assert.Equal(t, 3, crumbs[4].Area)
	assert.Equal(t, -1, crumbs[5].Area)
}

func TestNavToLocalKeepsStartArea(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, true))

	crumbs := e.Crumbs()
	require.Len(t, crumbs, 4)
	assert.Equal(t, 0, crumbs[0].Area)
}

func TestNavToSameAreaNotLocal(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	// Destination resolves to the agent's own area: after dropping the
	// start there is nothing left to walk.
	err := e.NavTo(mgl32.Vec3{10, 0, 0}, false)
	assert.ErrorIs(t, err, ErrNoRoute)
	assert.Empty(t, e.Crumbs())
}

func TestNavToFailureDiscardsRoute(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, true))
	require.NotEmpty(t, e.Crumbs())

	require.Error(t, e.NavTo(mgl32.Vec3{10, 0, 0}, false))
	assert.Empty(t, e.Crumbs(), "a failed plan must not leave the old route active")
}

func TestNavToBlocked(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{blockFn: wallAt(25)}, agent, &recordControls{})

	err := e.NavTo(mgl32.Vec3{100, 0, 0}, false)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestNavToDisabled(t *testing.T) {
	cfg := config.DefaultNav()
	cfg.Enabled = false
	e, _, _ := testEngine(cfg, eastRow(2), &fakeTracer{}, &fakeAgent{}, &recordControls{})

	assert.False(t, e.IsReady())
	assert.ErrorIs(t, e.NavTo(mgl32.Vec3{100, 0, 0}, true), ErrMeshUnavailable)
}

func TestIsReady(t *testing.T) {
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, &fakeAgent{}, &recordControls{})
	assert.True(t, e.IsReady())

	e.m.Store(e.newMap(nil))
	assert.False(t, e.IsReady())
}

func TestCreateMoveFollowsRoute(t *testing.T) {
	agent := &fakeAgent{}
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(3), &fakeTracer{}, agent, controls)

	require.NoError(t, e.NavTo(mgl32.Vec3{200, 0, 0}, false))

	// Teleport onto each crumb in turn; every arrival pops exactly one.
	for range e.Crumbs() {
		agent.origin = e.Crumbs()[0].Point
		e.CreateMove()
	}
	assert.Empty(t, e.Crumbs())
}

func TestCreateMoveWalksTowardHeadCrumb(t *testing.T) {
	agent := &fakeAgent{}
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, controls)

	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, false))
	head := e.Crumbs()[0].Point

	e.CreateMove()
	require.NotEmpty(t, controls.walked)
	assert.Equal(t, head, controls.walked[0])
}

func TestCreateMoveDeadAgent(t *testing.T) {
	agent := &fakeAgent{dead: true}
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, controls)

	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, false))
	agent.dead = true
	e.CreateMove()
	assert.Empty(t, controls.walked)
}

func TestJumpCrouchSequence(t *testing.T) {
	agent := &fakeAgent{}
	controls := &recordControls{}
	e, _, now := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, controls)

	// Head crumb out of arrival range and well above jump-worthy rise.
	e.crumbs = []Crumb{{Area: 0, Point: mgl32.Vec3{60, 0, 30}}}

	e.CreateMove()
	assert.Equal(t, 1, controls.jumps)
	assert.Equal(t, 0, controls.ducks)

	// Airborne: crouch is held, never a second jump.
	agent.air = true
	for range 3 {
		e.CreateMove()
	}
	assert.Equal(t, 1, controls.jumps)
	assert.Equal(t, 3, controls.ducks)

	// Landing after the hold window releases the crouch.
	agent.air = false
	e.CreateMove()
	assert.Equal(t, 4, controls.ducks)

	// The jump cooldown holds until the interval elapses.
	e.CreateMove()
	assert.Equal(t, 1, controls.jumps)
	assert.Equal(t, 4, controls.ducks)

	now.Advance(JumpInterval)
	e.CreateMove()
	assert.Equal(t, 2, controls.jumps)
}

func TestNoJumpWhileAiming(t *testing.T) {
	// Moving (so not stuck) but scoped in: the rise must not trigger a
	// hop that would break the aim.
	agent := &fakeAgent{scoped: true, vel: mgl32.Vec3{200, 0, 0}}
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, controls)

	e.crumbs = []Crumb{{Area: 0, Point: mgl32.Vec3{60, 0, 30}}}
	e.CreateMove()

	assert.Zero(t, controls.jumps)
	assert.NotEmpty(t, controls.walked, "movement continues, only the jump is held back")
}

func TestNoJumpAttrSuppresses(t *testing.T) {
	f := eastRow(2)
	f.Areas[0].Attributes = mesh.AttrNoJump

	agent := &fakeAgent{}
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), f, &fakeTracer{}, agent, controls)

	e.crumbs = []Crumb{{Area: 0, Point: mgl32.Vec3{60, 0, 30}}}
	e.CreateMove()

	assert.Zero(t, controls.jumps)
	assert.Zero(t, controls.ducks)
	assert.NotEmpty(t, controls.walked)
}

func TestStuckTriggersJump(t *testing.T) {
	agent := &fakeAgent{} // standing still
	controls := &recordControls{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(3), &fakeTracer{}, agent, controls)

	e.crumbs = []Crumb{{Area: 0, Point: mgl32.Vec3{200, 0, 0}}}
	e.CreateMove()
	assert.Equal(t, 1, controls.jumps, "no progress on flat ground still earns an unstick jump")

	// A moving agent is making progress and gets no unstick jump.
	moving := &fakeAgent{vel: mgl32.Vec3{200, 0, 0}}
	controls2 := &recordControls{}
	e2, _, _ := testEngine(config.DefaultNav(), eastRow(3), &fakeTracer{}, moving, controls2)
	e2.crumbs = []Crumb{{Area: 0, Point: mgl32.Vec3{200, 0, 0}}}
	e2.CreateMove()
	assert.Zero(t, controls2.jumps)
}

func writeMeshFile(t *testing.T, dir, level string, f *mesh.File) string {
	t.Helper()
	path := mesh.FilePathForLevel(dir, level)
	out, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, mesh.Encode(out, f))
	require.NoError(t, out.Close())
	return path
}

func TestLevelInitSameFileResets(t *testing.T) {
	dir := t.TempDir()
	path := writeMeshFile(t, dir, "ctf_turbine", eastRow(2))

	cfg := config.DefaultNav()
	cfg.MeshDir = dir
	agent := &fakeAgent{}
	clock := &fakeClock{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	e := NewEngine(cfg, &fakeTracer{}, clock, agent, &recordControls{}, now.Now)

	require.NoError(t, e.LevelInit("ctf_turbine"))
	require.True(t, e.IsReady())

	m := e.Map()
	m.AdjacentCost(0)
	require.NotEmpty(t, m.visCache)

	// The same level again must reset in place, not re-read the file.
	require.NoError(t, os.Remove(path))
	require.NoError(t, e.LevelInit("ctf_turbine"))
	assert.Same(t, m, e.Map())
	assert.Empty(t, m.visCache, "re-entering a level invalidates stale verdicts")

	// An explicit reload does hit the disk and fails without the file.
	err := e.ReloadMesh("ctf_turbine")
	assert.ErrorIs(t, err, ErrMeshUnavailable)
	assert.False(t, e.IsReady())
}

func TestLevelInitAsyncDiscardsRoute(t *testing.T) {
	dir := t.TempDir()
	writeMeshFile(t, dir, "cp_dustbowl", eastRow(2))
	want := writeMeshFile(t, dir, "cp_gorge", eastRow(3))

	cfg := config.DefaultNav()
	cfg.MeshDir = dir
	agent := &fakeAgent{}
	controls := &recordControls{}
	clock := &fakeClock{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	e := NewEngine(cfg, &fakeTracer{}, clock, agent, controls, now.Now)

	require.NoError(t, e.LevelInit("cp_dustbowl"))
	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, false))
	require.NotEmpty(t, e.Crumbs())

	e.LevelInitAsync("cp_gorge")
	assert.Empty(t, e.Crumbs(), "a route planned on the outgoing mesh must not survive the change")

	require.Eventually(t, func() bool {
		m := e.Map()
		return m != nil && m.File != nil && m.File.Path == want
	}, time.Second, time.Millisecond)

	e.CreateMove()
	assert.Empty(t, controls.walked, "nothing left to walk until a new route is planned")
}

func TestLevelInitAsyncSupersededRequestWins(t *testing.T) {
	dir := t.TempDir()
	writeMeshFile(t, dir, "cp_badlands", eastRow(2))
	want := writeMeshFile(t, dir, "cp_granary", eastRow(2))

	cfg := config.DefaultNav()
	cfg.MeshDir = dir
	clock := &fakeClock{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	e := NewEngine(cfg, &fakeTracer{}, clock, &fakeAgent{}, &recordControls{}, now.Now)

	// The second request may land while the first load is still in
	// flight; the latest requested level must be the one that sticks.
	e.LevelInitAsync("cp_badlands")
	e.LevelInitAsync("cp_granary")

	require.Eventually(t, func() bool {
		m := e.Map()
		return m != nil && m.File != nil && m.File.Path == want
	}, time.Second, time.Millisecond)
}

func TestLevelInitMissingMesh(t *testing.T) {
	cfg := config.DefaultNav()
	cfg.MeshDir = t.TempDir()
	clock := &fakeClock{}
	now := &fakeNow{t: time.Unix(1000, 0)}
	e := NewEngine(cfg, &fakeTracer{}, clock, &fakeAgent{}, &recordControls{}, now.Now)

	err := e.LevelInit("pl_badwater")
	assert.ErrorIs(t, err, ErrMeshUnavailable)
	require.NotNil(t, e.Map())
	assert.Equal(t, StateUnavailable, e.Map().State)
}

func TestCheckScratch(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	e.SetScratch(mgl32.Vec3{100, 0, 0})
	assert.Equal(t, mgl32.Vec3{100, 0, 0}, e.Scratch())

	points, ok, err := e.CheckScratch()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, PlayerJumpHeight, points.Current.Z(), 1e-3)

	blocked, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{blockFn: wallAt(25)}, agent, &recordControls{})
	blocked.SetScratch(mgl32.Vec3{100, 0, 0})
	_, ok, err = blocked.CheckScratch()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPathToScratch(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	e.SetScratch(mgl32.Vec3{100, 0, 0})
	require.NoError(t, e.PathToScratch())
	assert.Equal(t, 0, e.Crumbs()[0].Area, "scratch routes keep the local area")
}

func TestObserveAreaUsage(t *testing.T) {
	cfg := config.DefaultNav()
	cfg.PreferPlayerRoutes = true
	e, _, _ := testEngine(cfg, eastRow(2), &fakeTracer{}, &fakeAgent{}, &recordControls{})

	for range 3 {
		e.ObserveAreaUsage(mgl32.Vec3{100, 0, 0})
	}
	m := e.Map()
	assert.InDelta(t, 3.0/66.0, m.usage[1], 1e-6)
}

func TestMarkDangerAt(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(3), &fakeTracer{}, agent, &recordControls{})

	e.MarkDangerAt(mgl32.Vec3{100, 0, 0}, 10*time.Second)

	err := e.NavTo(mgl32.Vec3{200, 0, 0}, true)
	assert.ErrorIs(t, err, ErrNoRoute)
}

func TestClearRoute(t *testing.T) {
	agent := &fakeAgent{}
	e, _, _ := testEngine(config.DefaultNav(), eastRow(2), &fakeTracer{}, agent, &recordControls{})

	require.NoError(t, e.NavTo(mgl32.Vec3{100, 0, 0}, true))
	e.ClearRoute()
	assert.Empty(t, e.Crumbs())
}
