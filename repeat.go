package csg

import (
	"github.com/chewxy/math32"
	"github.com/soypat/geometry/ms3"
)

// staggerOffset is the tile index offset applied to odd x columns of a staggered repetition.
var staggerOffset = ms3.Vec{Y: 0.5}

// Repeat is the domain repetition operation. It remaps every query point
// into the frame of its nearest tile centered at spacing*i before evaluating s,
// so a single shape represents a lattice of copies.
//
// When cfg.Bounded is set tile indices are clamped to [-Count, Count] and points
// beyond the last tile are evaluated relative to the boundary tile.
// When cfg.Stagger is set every odd x column is offset half a period along y, a brick pattern.
//
// A non-zero cfg.Count requires cfg.Bounded.
// Spacing must be non-zero on every axis that repeats. An axis with zero spacing is
// accepted only for bounded repetition with zero count on that axis.
func (bld *Builder) Repeat(s *Node, cfg RepeatConfig) *Node {
	if s == nil {
		bld.nilsdf("Repeat")
	}
	sp := cfg.Spacing.Array()
	for axis, spacing := range sp {
		if !isFinite(spacing) {
			bld.shapeErrorf("non-finite repeat spacing on axis %d", axis)
		}
		if cfg.Bounded && cfg.Count[axis] < 0 {
			bld.shapeErrorf("negative repeat count %d on axis %d", cfg.Count[axis], axis)
		}
		repeats := !cfg.Bounded || cfg.Count[axis] != 0
		if spacing == 0 && repeats {
			bld.shapeErrorf("zero repeat spacing on repeated axis %d", axis)
		}
	}
	if cfg.Stagger && sp[1] == 0 {
		bld.shapeErrorf("staggered repeat requires non-zero y spacing")
	}
	if !cfg.Bounded && cfg.Count != [3]int{} {
		bld.shapeErrorf("repeat count %v set without Bounded", cfg.Count)
		cfg.Count = [3]int{}
	}
	return &Node{op: OpRepeat, children: []*Node{s}, rep: cfg}
}

// tileIndex returns the index of the tile p belongs to, clamped if bounded.
func (cfg *RepeatConfig) tileIndex(p ms3.Vec) ms3.Vec {
	return ms3.Vec{
		X: cfg.axisIndex(p.X, cfg.Spacing.X, cfg.Count[0]),
		Y: cfg.axisIndex(p.Y, cfg.Spacing.Y, cfg.Count[1]),
		Z: cfg.axisIndex(p.Z, cfg.Spacing.Z, cfg.Count[2]),
	}
}

func (cfg *RepeatConfig) axisIndex(v, spacing float32, count int) float32 {
	if spacing == 0 {
		return 0 // Only reachable for non-repeated bounded axes.
	}
	i := roundf(v / spacing)
	if cfg.Bounded {
		c := float32(count)
		i = clampf(i, -c, c)
	}
	return i
}

// oddColumn reports whether the x tile index is odd.
func oddColumn(id ms3.Vec) bool {
	return math32.Mod(id.X, 2) != 0
}

// local returns p in the frame of tile id.
func (cfg *RepeatConfig) local(p, id ms3.Vec) ms3.Vec {
	return ms3.Sub(p, ms3.MulElem(cfg.Spacing, id))
}
