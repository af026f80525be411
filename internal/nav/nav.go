// Package nav is a navigation-mesh pathfinding and path-following engine.
// It plans minimum-cost routes between world positions over a mesh of
// convex areas, accounting for player collision width, jump height and
// line-of-sight obstructions, and drives an agent along the planned route
// tick by tick.
package nav

import (
	"errors"
	"time"
)

// Player collision constants, in world units.
const (
	PlayerWidth      float32 = 49
	HalfPlayerWidth  float32 = PlayerWidth / 2
	PlayerJumpHeight float32 = 41.5
)

// Route-following tuning.
const (
	// ArrivalRadius is how close the agent must get to a crumb to
	// consume it.
	ArrivalRadius float32 = 50
	// RiseToJump is the minimum height of the next crumb above the agent
	// that warrants a jump.
	RiseToJump float32 = 18
	// VelocityEpsilon is the speed above which the agent counts as
	// making progress.
	VelocityEpsilon float32 = 100
	// JumpInterval is the minimum time between jumps.
	JumpInterval = 200 * time.Millisecond
	// CrouchHoldTicks is how many ticks the post-jump crouch is held at
	// minimum, even if the agent lands earlier.
	CrouchHoldTicks = 4
)

// Cache maintenance cadence and lifetime.
const (
	// VisCacheTTL is how long a visibility verdict stays trustworthy.
	VisCacheTTL = 10 * time.Second
	// SweepInterval is how often expired cache entries are purged.
	SweepInterval = time.Second
)

// NavState is the lifecycle state of a loaded mesh.
type NavState int32

const (
	// StateUnavailable means the mesh file is missing or failed to
	// parse; all pathing operations are no-ops.
	StateUnavailable NavState = iota
	// StateActive means the mesh is loaded and pathing is available.
	StateActive
)

func (s NavState) String() string {
	switch s {
	case StateUnavailable:
		return "unavailable"
	case StateActive:
		return "active"
	}
	return "unknown"
}

// Failure modes of route planning. None of them are fatal: every failure
// degrades to "the agent does not move via this system".
var (
	// ErrMeshUnavailable means no usable mesh is loaded for the level.
	ErrMeshUnavailable = errors.New("nav: mesh unavailable")
	// ErrNoRoute means the search found no path between the areas.
	ErrNoRoute = errors.New("nav: no route")
	// ErrUnresolvedArea means no usable area could be found for a point.
	ErrUnresolvedArea = errors.New("nav: no area for point")
)

// Clock exposes the host's tick counter. Visibility cache expiry is
// expressed in ticks so it stays tick-rate independent.
type Clock interface {
	// TickCount returns the current tick number.
	TickCount() int
	// TickInterval returns the real-time duration of one tick, in
	// seconds.
	TickInterval() float64
}
