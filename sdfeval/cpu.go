package sdfeval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// CPU wraps an SDF3 and supplies its own [VecPool] to evaluations when the
// caller passes nil userData. After every evaluation it checks all pooled
// buffers were released.
type CPU struct {
	SDF SDF3
	vp  VecPool
}

// NewCPU returns a CPU evaluator for sdf.
func NewCPU(sdf SDF3) (*CPU, error) {
	if sdf == nil {
		return nil, errors.New("nil SDF3")
	}
	return &CPU{SDF: sdf}, nil
}

// Evaluate implements [SDF3]. CPU is not safe for concurrent use.
func (sdf *CPU) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	if userData == nil {
		userData = &sdf.vp
	}
	err := sdf.SDF.Evaluate(pos, dist, userData)
	err2 := sdf.vp.AssertAllReleased()
	if err != nil {
		if err2 != nil {
			return fmt.Errorf("VecPool leak:(%s) SDF error:(%w)", err2, err)
		}
		return err
	}
	return err2
}

// VecPool method exposes the CPU's VecPool in case user wishes to use their own userData in evaluations.
func (sdf *CPU) VecPool() *VecPool { return &sdf.vp }

// GetVecPool asserts the userData as a VecPool. If assert fails then
// an error is returned with information on what went wrong.
func GetVecPool(userData any) (*VecPool, error) {
	vp, ok := userData.(*VecPool)
	if !ok {
		vper, ok := userData.(interface{ VecPool() *VecPool })
		if !ok {
			return nil, fmt.Errorf("want userData type *sdfeval.VecPool for CPU evaluations, got %T", userData)
		}
		vp = vper.VecPool()
		if vp == nil {
			return nil, fmt.Errorf("nil return value from VecPool method of %T", userData)
		}
	}
	if vp == nil {
		return nil, errors.New("nil *sdfeval.VecPool")
	}
	return vp, nil
}

// VecPool serves as a pool of Vec3 and float32 slices for
// evaluating SDFs on the CPU while reducing garbage generation.
// A VecPool is not safe for concurrent use.
type VecPool struct {
	V3    BufPool[ms3.Vec]
	Float BufPool[float32]
}

// AssertAllReleased checks all buffers are not in use. Should be called
// after ending a run to find memory leaks.
func (vp *VecPool) AssertAllReleased() error {
	err := vp.Float.assertAllReleased()
	if err != nil {
		return err
	}
	return vp.V3.assertAllReleased()
}

// BufPool hands out reusable slices of T.
type BufPool[T any] struct {
	_ins      [][]T
	_acquired []bool
}

// Acquire returns a slice of exactly length elements. The contents are
// unspecified. The slice must be returned with [BufPool.Release].
func (bp *BufPool[T]) Acquire(length int) []T {
	if length <= 0 {
		return nil
	}
	for i, locked := range bp._acquired {
		if !locked && len(bp._ins[i]) >= length {
			bp._acquired[i] = true
			return bp._ins[i][:length]
		}
	}
	newSlice := make([]T, length)
	newSlice = newSlice[:cap(newSlice)]
	bp._ins = append(bp._ins, newSlice)
	bp._acquired = append(bp._acquired, true)
	return newSlice[:length]
}

// Release returns buf to the pool. Releasing a nil or empty slice is a no-op.
func (bp *BufPool[T]) Release(buf []T) error {
	if len(buf) == 0 {
		return nil
	}
	for i, instance := range bp._ins {
		if &instance[0] == &buf[0] {
			if !bp._acquired[i] {
				return errors.New("release of unacquired resource")
			}
			bp._acquired[i] = false
			return nil
		}
	}
	return errors.New("release of nonexistent resource")
}

func (bp *BufPool[T]) assertAllReleased() error {
	for _, locked := range bp._acquired {
		if locked {
			return fmt.Errorf("locked %T resource found in sdfeval.BufPool, memory leak?", *new(T))
		}
	}
	return nil
}
