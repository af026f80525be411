package nav

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/mkoval/navgo/internal/nav/mesh"
)

// NavPoints are the three waypoints a traversal between two connected
// areas passes through: the current area's center, the chosen boundary
// midpoint, and the next area's center.
type NavPoints struct {
	Current mgl32.Vec3
	Center  mgl32.Vec3
	Next    mgl32.Vec3
}

// Raised returns the points with all three Z coordinates lifted by dz.
func (p NavPoints) Raised(dz float32) NavPoints {
	p.Current[2] += dz
	p.Center[2] += dz
	p.Next[2] += dz
	return p
}

// DeterminePoints computes the waypoints for moving from current into
// next. The midpoint is whichever area's boundary-nearest-point to the
// other center is x- or y-aligned with one of the two centers; walking
// through an aligned point cannot cut diagonally into a wall corner. If
// neither candidate aligns, next's boundary point is used.
//
// Cost evaluation and crumb expansion both go through here; they must
// agree on the geometry or the executed route diverges from the priced
// one.
func DeterminePoints(current, next *mesh.Area) NavPoints {
	areaCenter := current.Center
	nextCenter := next.Center

	areaClosest := current.NearestPoint(nextCenter)
	nextClosest := next.NearestPoint(areaCenter)

	center := areaClosest
	if center.X() != areaCenter.X() && center.Y() != areaCenter.Y() &&
		center.X() != nextCenter.X() && center.Y() != nextCenter.Y() {
		center = nextClosest
	}

	return NavPoints{Current: areaCenter, Center: center, Next: nextCenter}
}

// HandleDropdown corrects a waypoint for a steep descent: when the drop
// from from to to exceeds the jump height, from is pushed one player
// width forward along the flattened direction so the agent walks off the
// ledge instead of hugging it. If the push overshoots past to (the
// flattened direction flips), from collapses onto to.
func HandleDropdown(from, to mgl32.Vec3) mgl32.Vec3 {
	toTarget := to.Sub(from)
	if -toTarget.Z() <= PlayerJumpHeight {
		return from
	}

	flat := mgl32.Vec3{toTarget.X(), toTarget.Y(), 0}
	if flat.Len() == 0 {
		// Straight vertical drop, nothing to project along.
		return to
	}
	dir := flat.Normalize()
	from = from.Add(dir.Mul(PlayerWidth))

	newFlat := mgl32.Vec3{to.X() - from.X(), to.Y() - from.Y(), 0}
	if newFlat.Dot(dir) <= 0 {
		from = to
	}
	return from
}
