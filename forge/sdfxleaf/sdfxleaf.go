// Package sdfxleaf converts between github.com/deadsy/sdfx solids and
// point-batch SDFs so sdfx primitives can be composed as leaves and
// composed graphs can be handed to sdfx consumers.
package sdfxleaf

import (
	"errors"
	"fmt"
	"sync"

	"github.com/deadsy/sdfx/sdf"
	v3 "github.com/deadsy/sdfx/vec/v3"
	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
)

var (
	_ sdfeval.SDF3 = (*Leaf)(nil)
	_ sdf.SDF3     = (*Solid)(nil)
)

// Leaf evaluates an sdfx solid over point batches. Distances are computed in
// float64 by sdfx and truncated to float32.
type Leaf struct {
	s sdf.SDF3
}

// New returns a Leaf evaluating s.
func New(s sdf.SDF3) (*Leaf, error) {
	if s == nil {
		return nil, errors.New("nil sdfx solid")
	}
	return &Leaf{s: s}, nil
}

// Evaluate implements [sdfeval.SDF3]. userData is ignored.
func (l *Leaf) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := sdfeval.CheckBuffers(pos, dist)
	if err != nil {
		return err
	}
	for i, p := range pos {
		dist[i] = float32(l.s.Evaluate(toV3(p)))
	}
	return nil
}

// Bounds returns the bounding box of the sdfx solid.
func (l *Leaf) Bounds() ms3.Box {
	bb := l.s.BoundingBox()
	return ms3.Box{Min: fromV3(bb.Min), Max: fromV3(bb.Max)}
}

// SDFX returns the wrapped sdfx solid.
func (l *Leaf) SDFX() sdf.SDF3 { return l.s }

// Solid exposes a point-batch SDF as an sdfx solid. sdfx evaluates a single
// point per call and has no error return: Solid panics if the SDF fails.
// Solid is safe for concurrent use if the wrapped SDF is.
type Solid struct {
	s     sdfeval.SDF3
	bb    sdf.Box3
	pools sync.Pool
}

// NewSolid returns an sdfx solid evaluating s with the given bounds. Bounds are
// required since unbounded operations such as repetition have no finite box.
func NewSolid(s sdfeval.SDF3, bounds ms3.Box) (*Solid, error) {
	if s == nil {
		return nil, errors.New("nil SDF")
	}
	if bounds.Max.X < bounds.Min.X || bounds.Max.Y < bounds.Min.Y || bounds.Max.Z < bounds.Min.Z {
		return nil, fmt.Errorf("invalid bounds %v", bounds)
	}
	return &Solid{
		s:  s,
		bb: sdf.Box3{Min: toV3(bounds.Min), Max: toV3(bounds.Max)},
	}, nil
}

// Evaluate implements [sdf.SDF3].
func (s *Solid) Evaluate(p v3.Vec) float64 {
	vp, _ := s.pools.Get().(*sdfeval.VecPool)
	if vp == nil {
		vp = new(sdfeval.VecPool)
	}
	pos := [1]ms3.Vec{fromV3(p)}
	var dist [1]float32
	err := s.s.Evaluate(pos[:], dist[:], vp)
	if err == nil {
		err = vp.AssertAllReleased()
	}
	if err != nil {
		panic(fmt.Sprintf("sdfxleaf: evaluating %v: %s", p, err))
	}
	s.pools.Put(vp)
	return float64(dist[0])
}

// BoundingBox implements [sdf.SDF3].
func (s *Solid) BoundingBox() sdf.Box3 { return s.bb }

func toV3(p ms3.Vec) v3.Vec {
	return v3.Vec{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
}

func fromV3(p v3.Vec) ms3.Vec {
	return ms3.Vec{X: float32(p.X), Y: float32(p.Y), Z: float32(p.Z)}
}
