// Package csg implements constructive solid geometry operators over signed
// distance fields. Operators are composed into an immutable graph of [Node]s
// which is evaluated lazily over batches of points.
package csg

import (
	"errors"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

const (
	// largenum is used as the identity of minimum reductions.
	largenum = 1e20
	// DefaultBlend is the blend factor used by [Builder.Blend].
	DefaultBlend = 0.5
)

// Flags modify the behaviour of a [Builder].
type Flags uint64

const (
	// FlagNoDimensionPanic makes the Builder accumulate configuration errors
	// instead of panicking. Errors are retrieved with [Builder.Err].
	FlagNoDimensionPanic Flags = 1 << iota
	// FlagZeroRadiusFallback makes an explicit smoothing radius of zero
	// behave as if no radius were passed, so combinators fall back to the
	// secondary operand's default radius. Without this flag an explicit zero
	// forces a hard boolean operation.
	FlagZeroRadiusFallback
)

// Builder constructs composition nodes and validates their parameters.
// Provides error handling strategies with panics or error accumulation during shape generation.
// The zero value is ready for use and panics on configuration errors.
type Builder struct {
	flags     Flags
	accumErrs []error
}

// SetFlags replaces the Builder's flags.
func (bld *Builder) SetFlags(flags Flags) {
	bld.flags = flags
}

// Flags returns the Builder's current flags.
func (bld *Builder) Flags() Flags { return bld.flags }

// Err returns all accumulated configuration errors joined, or nil.
func (bld *Builder) Err() error {
	if len(bld.accumErrs) == 0 {
		return nil
	}
	return errors.Join(bld.accumErrs...)
}

// ClearErrors discards accumulated errors.
func (bld *Builder) ClearErrors() {
	bld.accumErrs = bld.accumErrs[:0]
}

// ErrConfig is wrapped by every configuration error reported by a Builder.
var ErrConfig = errors.New("csg: configuration error")

func (bld *Builder) shapeErrorf(msg string, args ...any) {
	err := fmt.Errorf("%w: %s", ErrConfig, fmt.Sprintf(msg, args...))
	if bld.flags&FlagNoDimensionPanic == 0 {
		panic(err)
	}
	bld.accumErrs = append(bld.accumErrs, err)
}

func (*Builder) nilsdf(msg string) {
	panic("nil SDF argument: " + msg)
}

func minf(a, b float32) float32 {
	return math32.Min(a, b)
}

func maxf(a, b float32) float32 {
	return math32.Max(a, b)
}

func absf(a float32) float32 {
	return math32.Abs(a)
}

func clampf(v, Min, Max float32) float32 {
	if v < Min {
		return Min
	} else if v > Max {
		return Max
	}
	return v
}

func mixf(x, y, a float32) float32 {
	return x*(1-a) + y*a
}

// roundf rounds half to even.
func roundf(v float32) float32 {
	return float32(math.RoundToEven(float64(v)))
}

func isFinite(v float32) bool {
	return !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0)
}
