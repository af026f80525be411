// Package mesh holds the in-memory navigation mesh: convex areas connected
// by directed traversal links, loaded once per level and immutable after.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"
)

// Area attribute bitmask values. Subset of the Source engine nav flags
// that the engine actually consults.
const (
	AttrCrouch  uint32 = 0x0001
	AttrJump    uint32 = 0x0002
	AttrPrecise uint32 = 0x0004
	AttrNoJump  uint32 = 0x0008
	AttrStop    uint32 = 0x0010
	AttrStairs  uint32 = 0x1000
)

// Area is one convex polygonal region of the mesh. NWCorner holds the
// minimum X/Y of the footprint, SECorner the maximum.
type Area struct {
	ID         uint32
	Attributes uint32
	Center     mgl32.Vec3
	NWCorner   mgl32.Vec3
	SECorner   mgl32.Vec3

	// Connections are outbound directed edges, stored as indexes into
	// File.Areas so the search layer works on dense integer states.
	Connections []int
}

// NearestPoint clamps p to the area's 2D footprint. Z is taken from the
// area center; corners carry no independent height in this format.
func (a *Area) NearestPoint(p mgl32.Vec3) mgl32.Vec3 {
	x := clamp(p.X(), a.NWCorner.X(), a.SECorner.X())
	y := clamp(p.Y(), a.NWCorner.Y(), a.SECorner.Y())
	return mgl32.Vec3{x, y, a.Center.Z()}
}

// Overlaps reports whether p projects inside the area's 2D footprint.
func (a *Area) Overlaps(p mgl32.Vec3) bool {
	return p.X() >= a.NWCorner.X() && p.X() <= a.SECorner.X() &&
		p.Y() >= a.NWCorner.Y() && p.Y() <= a.SECorner.Y()
}

// HasAttributes reports whether any attribute in mask is set.
func (a *Area) HasAttributes(mask uint32) bool {
	return a.Attributes&mask != 0
}

// File is a fully loaded navigation mesh.
type File struct {
	Areas []Area
	Path  string
	Level string

	byID map[uint32]int
}

// New builds a File from already-constructed areas. Connection indexes
// must already be valid for the given slice.
func New(areas []Area) *File {
	f := &File{
		Areas: areas,
		byID:  make(map[uint32]int, len(areas)),
	}
	for i := range f.Areas {
		f.byID[f.Areas[i].ID] = i
	}
	return f
}

// IndexByID returns the dense index of the area with the given mesh ID.
func (f *File) IndexByID(id uint32) (int, bool) {
	i, ok := f.byID[id]
	return i, ok
}

// AreaByID returns the area with the given mesh ID, or nil.
func (f *File) AreaByID(id uint32) *Area {
	i, ok := f.byID[id]
	if !ok {
		return nil
	}
	return &f.Areas[i]
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
