package csg

// Polynomial smooth minimum and maximum. See https://iquilezles.org/articles/smin.
// Every function takes the hard path when k is zero so k never reaches a division.

// SmoothMin returns the smooth union of distances d1 and d2 with radius k.
// It returns min(d1,d2) when k is zero.
func SmoothMin(d1, d2, k float32) float32 {
	if k == 0 {
		return minf(d1, d2)
	}
	h := clampf(0.5+0.5*(d2-d1)/k, 0, 1)
	return mixf(d2, d1, h) - k*h*(1-h)
}

// SmoothDifference returns the smooth difference d1-d2 with radius k.
// It returns max(d1,-d2) when k is zero.
func SmoothDifference(d1, d2, k float32) float32 {
	if k == 0 {
		return maxf(d1, -d2)
	}
	h := clampf(0.5-0.5*(d2+d1)/k, 0, 1)
	return mixf(d1, -d2, h) + k*h*(1-h)
}

// SmoothMax returns the smooth intersection of d1 and d2 with radius k.
// It returns max(d1,d2) when k is zero.
func SmoothMax(d1, d2, k float32) float32 {
	if k == 0 {
		return maxf(d1, d2)
	}
	h := clampf(0.5-0.5*(d2-d1)/k, 0, 1)
	return mixf(d2, d1, h) + k*h*(1-h)
}

// unionReduce merges d2 into d1AndDst with union rule.
func unionReduce(d1AndDst, d2 []float32, r Radius) {
	d2 = d2[:len(d1AndDst)]
	if !r.smooths() {
		for i, d := range d2 {
			d1AndDst[i] = minf(d1AndDst[i], d)
		}
		return
	}
	k := r.k
	for i, d := range d2 {
		d1AndDst[i] = SmoothMin(d1AndDst[i], d, k)
	}
}

// differenceReduce subtracts d2 from d1AndDst.
func differenceReduce(d1AndDst, d2 []float32, r Radius) {
	d2 = d2[:len(d1AndDst)]
	if !r.smooths() {
		for i, d := range d2 {
			d1AndDst[i] = maxf(d1AndDst[i], -d)
		}
		return
	}
	k := r.k
	for i, d := range d2 {
		d1AndDst[i] = SmoothDifference(d1AndDst[i], d, k)
	}
}

// intersectReduce intersects d2 with d1AndDst.
func intersectReduce(d1AndDst, d2 []float32, r Radius) {
	d2 = d2[:len(d1AndDst)]
	if !r.smooths() {
		for i, d := range d2 {
			d1AndDst[i] = maxf(d1AndDst[i], d)
		}
		return
	}
	k := r.k
	for i, d := range d2 {
		d1AndDst[i] = SmoothMax(d1AndDst[i], d, k)
	}
}

// blendReduce cross-fades d1AndDst towards d2 by factor r.
func blendReduce(d1AndDst, d2 []float32, r Radius) {
	d2 = d2[:len(d1AndDst)]
	k := r.k
	for i, d := range d2 {
		d1AndDst[i] = k*d + (1-k)*d1AndDst[i]
	}
}

// minReduce takes element-wise minimum of arguments and stores to first argument.
func minReduce(d1AndDst, d2 []float32) {
	d2 = d2[:len(d1AndDst)]
	for i, d := range d2 {
		d1AndDst[i] = minf(d1AndDst[i], d)
	}
}

// reduce merges src into acc following op's rule.
func reduce(op Op, acc, src []float32, r Radius) {
	switch op {
	case OpUnion:
		unionReduce(acc, src, r)
	case OpDifference:
		differenceReduce(acc, src, r)
	case OpIntersection:
		intersectReduce(acc, src, r)
	case OpBlend:
		blendReduce(acc, src, r)
	default:
		panic("csg: reduce of non-fold operation " + op.String())
	}
}
