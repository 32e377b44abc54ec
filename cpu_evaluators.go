package csg

import (
	"fmt"

	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
)

// Evaluate implements [sdfeval.SDF3]. userData must provide a [*sdfeval.VecPool],
// see [sdfeval.CPU] for a wrapper that supplies one.
func (n *Node) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := sdfeval.CheckBuffers(pos, dist)
	if err != nil {
		return err
	} else if len(pos) == 0 {
		return nil
	}
	vp, err := sdfeval.GetVecPool(userData)
	if err != nil {
		return err
	}
	return n.eval(pos, dist, &evaluator{vp: vp, userData: userData})
}

// evaluator carries per-call evaluation state down the graph.
type evaluator struct {
	vp       *sdfeval.VecPool
	userData any
	// par is nil for sequential evaluation.
	par *parallel
}

// eval is the single dispatch over the node variant. pos and dist are of equal non-zero length.
func (n *Node) eval(pos []ms3.Vec, dist []float32, e *evaluator) error {
	switch n.op {
	case OpLeaf:
		return n.evalLeaf(pos, dist, e)
	case OpUnion, OpDifference, OpIntersection, OpBlend:
		if e.par != nil && len(n.children) > 1 {
			return n.evalFoldConcurrent(pos, dist, e)
		}
		return n.evalFold(pos, dist, e)
	case OpNegate:
		err := n.children[0].eval(pos, dist, e)
		if err != nil {
			return err
		}
		for i, d := range dist {
			dist[i] = -d
		}
		return nil
	case OpShell:
		err := n.children[0].eval(pos, dist, e)
		if err != nil {
			return err
		}
		t := n.thick
		for i, d := range dist {
			dist[i] = absf(d) - t
		}
		return nil
	case OpRepeat:
		if n.rep.Stagger {
			return n.evalStagger(pos, dist, e)
		}
		return n.evalRepeat(pos, dist, e)
	}
	return fmt.Errorf("csg: evaluate of invalid node operation %s", n.op)
}

func (n *Node) evalLeaf(pos []ms3.Vec, dist []float32, e *evaluator) error {
	if n.leaf == nil {
		return fmt.Errorf("csg: leaf %q has no SDF", n.name)
	}
	userData := e.userData
	if e.par != nil {
		// Concurrent workers own a pool each, leaves must see it.
		userData = e.vp
	}
	return n.leaf.Evaluate(pos, dist, userData)
}

// evalFold computes the primary operand into dist then merges each secondary
// operand in argument order with its resolved radius.
func (n *Node) evalFold(pos []ms3.Vec, dist []float32, e *evaluator) error {
	err := n.children[0].eval(pos, dist, e)
	if err != nil {
		return err
	}
	if len(n.children) == 1 {
		return nil
	}
	aux := e.vp.Float.Acquire(len(dist))
	defer e.vp.Float.Release(aux)
	for i, b := range n.children[1:] {
		err = b.eval(pos, aux, e)
		if err != nil {
			return err
		}
		reduce(n.op, dist, aux, n.radii[i])
	}
	return nil
}

func (n *Node) evalRepeat(pos []ms3.Vec, dist []float32, e *evaluator) error {
	transformed := e.vp.V3.Acquire(len(pos))
	defer e.vp.V3.Release(transformed)
	cfg := &n.rep
	for i, p := range pos {
		transformed[i] = cfg.local(p, cfg.tileIndex(p))
	}
	return n.children[0].eval(transformed, dist, e)
}

// evalStagger evaluates the two candidate lattices of a staggered repetition and keeps the closest.
func (n *Node) evalStagger(pos []ms3.Vec, dist []float32, e *evaluator) error {
	q1 := e.vp.V3.Acquire(len(pos))
	defer e.vp.V3.Release(q1)
	q2 := e.vp.V3.Acquire(len(pos))
	defer e.vp.V3.Release(q2)
	cfg := &n.rep
	for i, p := range pos {
		id := cfg.tileIndex(p)
		if oddColumn(id) {
			q1[i] = cfg.local(p, ms3.Add(id, staggerOffset))
			q2[i] = cfg.local(p, ms3.Sub(id, staggerOffset))
		} else {
			q := cfg.local(p, id)
			q1[i] = q
			q2[i] = q
		}
	}
	if e.par != nil {
		return n.evalStaggerConcurrent(q1, q2, dist, e)
	}
	err := n.children[0].eval(q1, dist, e)
	if err != nil {
		return err
	}
	aux := e.vp.Float.Acquire(len(dist))
	defer e.vp.Float.Release(aux)
	err = n.children[0].eval(q2, aux, e)
	if err != nil {
		return err
	}
	minReduce(dist, aux)
	return nil
}
