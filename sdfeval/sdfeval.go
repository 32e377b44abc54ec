// Package sdfeval defines the point-batch evaluation contract shared by every
// signed distance field in this module along with CPU evaluation helpers.
package sdfeval

import (
	"errors"
	"fmt"

	"github.com/soypat/geometry/ms3"
)

// SDF3 implements a 3D signed distance field in vectorized form.
type SDF3 interface {
	// Evaluate evaluates the signed distance field over pos positions.
	// dist and pos must be of same length. Resulting distances are stored
	// in dist, dist[i] corresponding to pos[i]. Implementations must not modify pos.
	//
	// userData facilitates getting data to the evaluators for use in processing, such as [VecPool].
	Evaluate(pos []ms3.Vec, dist []float32, userData any) error
}

var (
	// ErrMismatchBufferLength is returned when position and distance buffers differ in length.
	ErrMismatchBufferLength = errors.New("position and distance buffer length mismatch")
	errEmptyBuffers         = errors.New("empty buffers")
)

// CheckBuffers returns a non-nil error wrapping [ErrMismatchBufferLength] if
// pos and dist are not of equal length.
func CheckBuffers(pos []ms3.Vec, dist []float32) error {
	if len(pos) != len(dist) {
		return fmt.Errorf("%w: %d positions, %d distances", ErrMismatchBufferLength, len(pos), len(dist))
	}
	return nil
}

// NormalsCentralDiff estimates the gradient of s at every position with central
// differences of width step and stores it in normals. Both offsets of an axis
// are evaluated in a single batch of 2*len(pos) points.
// For an exact SDF the gradient is the unit surface normal. Results are not normalized.
func NormalsCentralDiff(s SDF3, pos []ms3.Vec, normals []ms3.Vec, step float32, userData any) error {
	switch {
	case s == nil:
		return errors.New("nil SDF3")
	case !(step > 0):
		return errors.New("invalid step")
	case len(pos) != len(normals):
		return errors.New("length of position must match length of normals")
	case len(pos) == 0:
		return errEmptyBuffers
	}
	vp, err := GetVecPool(userData)
	if err != nil {
		return fmt.Errorf("VecPool required for normal calculation: %w", err)
	}
	n := len(pos)
	samples := vp.V3.Acquire(2 * n)
	defer vp.V3.Release(samples)
	dist := vp.Float.Acquire(2 * n)
	defer vp.Float.Release(dist)
	half := step / 2
	for axis := 0; axis < 3; axis++ {
		var h ms3.Vec
		setAxis(&h, axis, half)
		for i, p := range pos {
			samples[i] = ms3.Add(p, h)
			samples[n+i] = ms3.Sub(p, h)
		}
		err = s.Evaluate(samples, dist, userData)
		if err != nil {
			return err
		}
		for i := range normals {
			setAxis(&normals[i], axis, (dist[i]-dist[n+i])/step)
		}
	}
	return nil
}

func setAxis(v *ms3.Vec, axis int, value float32) {
	switch axis {
	case 0:
		v.X = value
	case 1:
		v.Y = value
	default:
		v.Z = value
	}
}
