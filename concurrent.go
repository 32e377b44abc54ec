package csg

import (
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// ConcurrentSDF3 evaluates a node graph using several goroutines. Operands of
// fold nodes and the lattices of staggered repetitions are evaluated concurrently
// while results are always merged in argument order, so the output is identical to
// sequential evaluation of the same graph.
//
// Leaves must be safe for concurrent use. Each goroutine hands its own
// [sdfeval.VecPool] to the leaves it evaluates as userData.
type ConcurrentSDF3 struct {
	root *Node
	par  parallel
}

// NewConcurrentSDF3 returns a concurrent evaluator of root running at most maxWorkers
// goroutines besides the calling one. If maxWorkers is not positive GOMAXPROCS is used.
func NewConcurrentSDF3(root *Node, maxWorkers int) (*ConcurrentSDF3, error) {
	if root == nil {
		return nil, errors.New("nil root node")
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.GOMAXPROCS(0)
	}
	c := &ConcurrentSDF3{root: root}
	c.par.sem = semaphore.NewWeighted(int64(maxWorkers))
	return c, nil
}

// Evaluate implements [sdfeval.SDF3]. The userData argument is ignored.
// Evaluate is safe for concurrent use.
func (c *ConcurrentSDF3) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	err := sdfeval.CheckBuffers(pos, dist)
	if err != nil {
		return err
	} else if len(pos) == 0 {
		return nil
	}
	vp := c.par.getPool()
	err = c.root.eval(pos, dist, &evaluator{vp: vp, userData: vp, par: &c.par})
	errLeak := c.par.putPool(vp)
	if err != nil {
		return err
	}
	return errLeak
}

// Root returns the node evaluated by c.
func (c *ConcurrentSDF3) Root() *Node { return c.root }

type parallel struct {
	sem   *semaphore.Weighted
	pools sync.Pool
}

func (p *parallel) getPool() *sdfeval.VecPool {
	vp, _ := p.pools.Get().(*sdfeval.VecPool)
	if vp == nil {
		vp = new(sdfeval.VecPool)
	}
	return vp
}

// putPool returns vp for reuse unless it still has acquired buffers.
func (p *parallel) putPool(vp *sdfeval.VecPool) error {
	err := vp.AssertAllReleased()
	if err != nil {
		return fmt.Errorf("concurrent evaluation: %w", err)
	}
	p.pools.Put(vp)
	return nil
}

// do runs fn on a new goroutine of g if a worker slot is free.
// Otherwise fn runs on the calling goroutine and its error is returned.
func (p *parallel) do(g *errgroup.Group, e *evaluator, fn func(*evaluator) error) error {
	if !p.sem.TryAcquire(1) {
		return fn(e)
	}
	g.Go(func() error {
		defer p.sem.Release(1)
		vp := p.getPool()
		err := fn(&evaluator{vp: vp, userData: vp, par: p})
		errLeak := p.putPool(vp)
		if err != nil {
			return err
		}
		return errLeak
	})
	return nil
}

// evalFoldConcurrent evaluates all operands of a fold node concurrently and then
// merges the secondaries into the primary in argument order.
func (n *Node) evalFoldConcurrent(pos []ms3.Vec, dist []float32, e *evaluator) error {
	secondaries := n.children[1:]
	bufs := make([][]float32, len(secondaries))
	for i := range bufs {
		bufs[i] = e.vp.Float.Acquire(len(dist))
	}
	defer func() {
		for _, buf := range bufs {
			e.vp.Float.Release(buf)
		}
	}()
	var g errgroup.Group
	for i, b := range secondaries {
		err := e.par.do(&g, e, func(we *evaluator) error {
			return b.eval(pos, bufs[i], we)
		})
		if err != nil {
			g.Wait()
			return err
		}
	}
	errPrimary := n.children[0].eval(pos, dist, e)
	err := g.Wait()
	if errPrimary != nil {
		return errPrimary
	} else if err != nil {
		return err
	}
	for i, buf := range bufs {
		reduce(n.op, dist, buf, n.radii[i])
	}
	return nil
}

func (n *Node) evalStaggerConcurrent(q1, q2 []ms3.Vec, dist []float32, e *evaluator) error {
	aux := e.vp.Float.Acquire(len(dist))
	defer e.vp.Float.Release(aux)
	var g errgroup.Group
	err := e.par.do(&g, e, func(we *evaluator) error {
		return n.children[0].eval(q2, aux, we)
	})
	if err != nil {
		g.Wait()
		return err
	}
	errq1 := n.children[0].eval(q1, dist, e)
	err = g.Wait()
	if errq1 != nil {
		return errq1
	} else if err != nil {
		return err
	}
	minReduce(dist, aux)
	return nil
}
