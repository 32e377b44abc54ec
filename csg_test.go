package csg_test

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"github.com/chewxy/math32"
	"github.com/soypat/csg"
	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
	"gonum.org/v1/gonum/floats/scalar"
)

const tol = 1e-5

// sphere is a test primitive with GLSL support.
type sphere struct {
	r float32
	c ms3.Vec
}

func (s *sphere) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		d := ms3.Sub(p, s.c)
		dist[i] = math32.Sqrt(d.X*d.X+d.Y*d.Y+d.Z*d.Z) - s.r
	}
	return nil
}

func (s *sphere) AppendShaderName(b []byte) []byte {
	return fmt.Appendf(b, "sphere%d", int(s.r*1000))
}

func (s *sphere) AppendShaderBody(b []byte) []byte {
	return fmt.Appendf(b, "return length(p-vec3(%f,%f,%f))-%f;", s.c.X, s.c.Y, s.c.Z, s.r)
}

// constant evaluates to the same distance everywhere.
type constant float32

func (c constant) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i := range dist {
		dist[i] = float32(c)
	}
	return nil
}

// frameX returns the x coordinate of the queried point, exposing the frame
// a repetition evaluates its operand in.
type frameX struct{}

func (frameX) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		dist[i] = p.X
	}
	return nil
}

// slab is invariant to translations along y.
type slab struct{ halfWidth float32 }

func (s slab) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		dist[i] = math32.Max(math32.Abs(p.X), math32.Abs(p.Z)) - s.halfWidth
	}
	return nil
}

type failing struct{}

var errLeaf = errors.New("leaf failure")

func (failing) Evaluate(pos []ms3.Vec, dist []float32, userData any) error { return errLeaf }

func randomPoints(rng *rand.Rand, n int, scale float32) []ms3.Vec {
	pos := make([]ms3.Vec, n)
	for i := range pos {
		pos[i] = ms3.Vec{
			X: scale * (2*rng.Float32() - 1),
			Y: scale * (2*rng.Float32() - 1),
			Z: scale * (2*rng.Float32() - 1),
		}
	}
	return pos
}

func eval(t *testing.T, s sdfeval.SDF3, pos []ms3.Vec) []float32 {
	t.Helper()
	cpu, err := sdfeval.NewCPU(s)
	if err != nil {
		t.Fatal(err)
	}
	dist := make([]float32, len(pos))
	err = cpu.Evaluate(pos, dist, nil)
	if err != nil {
		t.Fatal(err)
	}
	return dist
}

func equal(a, b float32) bool {
	return scalar.EqualWithinAbsOrRel(float64(a), float64(b), tol, tol)
}

func testShapes(bld *csg.Builder) (a, b *csg.Node) {
	a = bld.Leaf("a", &sphere{r: 1})
	b = bld.Leaf("b", &sphere{r: 0.6, c: ms3.Vec{X: 0.8, Y: 0.3, Z: -0.2}})
	return a, b
}

func TestHardBooleans(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	pos := randomPoints(rand.New(rand.NewSource(1)), 512, 2)
	da := eval(t, a, pos)
	db := eval(t, b, pos)
	var tests = []struct {
		name string
		node *csg.Node
		want func(a, b float32) float32
	}{
		{name: "union", node: bld.Union(a, b), want: math32.Min},
		{name: "difference", node: bld.Difference(a, b), want: func(a, b float32) float32 { return math32.Max(a, -b) }},
		{name: "intersection", node: bld.Intersection(a, b), want: math32.Max},
		{name: "smooth_zero_union", node: bld.SmoothUnion(0, a, b), want: math32.Min},
		{name: "smooth_zero_difference", node: bld.SmoothDifference(0, a, b), want: func(a, b float32) float32 { return math32.Max(a, -b) }},
		{name: "smooth_zero_intersection", node: bld.SmoothIntersection(0, a, b), want: math32.Max},
	}
	for _, test := range tests {
		got := eval(t, test.node, pos)
		for i := range got {
			want := test.want(da[i], db[i])
			if got[i] != want {
				t.Errorf("%s: pos %v want %g, got %g", test.name, pos[i], want, got[i])
				break
			}
		}
	}
}

func TestSmoothUnionBelowMin(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	pos := randomPoints(rand.New(rand.NewSource(2)), 512, 2)
	da := eval(t, a, pos)
	db := eval(t, b, pos)
	for _, k := range []float32{0.5, 0.1, 0.01, 0.001} {
		got := eval(t, bld.SmoothUnion(k, a, b), pos)
		for i, d := range got {
			hard := math32.Min(da[i], db[i])
			if d > hard+tol {
				t.Fatalf("k=%g: smooth union %g above hard min %g", k, d, hard)
			}
			// The polynomial smooth minimum deviates from the minimum by at most k/4.
			if hard-d > k/4+tol {
				t.Fatalf("k=%g: smooth union %g too far from hard min %g", k, d, hard)
			}
		}
	}
}

func TestSmoothKernelZeroRadius(t *testing.T) {
	for _, v := range [][2]float32{{0, 0}, {-1, 2}, {3, -0.5}, {0.25, 0.25}} {
		d1, d2 := v[0], v[1]
		if got := csg.SmoothMin(d1, d2, 0); got != math32.Min(d1, d2) {
			t.Errorf("SmoothMin(%g,%g,0)=%g", d1, d2, got)
		}
		if got := csg.SmoothDifference(d1, d2, 0); got != math32.Max(d1, -d2) {
			t.Errorf("SmoothDifference(%g,%g,0)=%g", d1, d2, got)
		}
		if got := csg.SmoothMax(d1, d2, 0); got != math32.Max(d1, d2) {
			t.Errorf("SmoothMax(%g,%g,0)=%g", d1, d2, got)
		}
	}
	// Far from the blend region the kernels equal the hard operations.
	if got := csg.SmoothMin(0, 10, 1); got != 0 {
		t.Errorf("SmoothMin far from crease: got %g", got)
	}
	if got := csg.SmoothMax(0, 10, 1); got != 10 {
		t.Errorf("SmoothMax far from crease: got %g", got)
	}
	// At the crease the correction peaks at k/4.
	if got := csg.SmoothMin(0, 0, 1); !equal(got, -0.25) {
		t.Errorf("SmoothMin at crease: got %g", got)
	}
	if got := csg.SmoothMax(0, 0, 1); !equal(got, 0.25) {
		t.Errorf("SmoothMax at crease: got %g", got)
	}
}

// smoothDiffRef and smoothMaxRef are the closed forms of the polynomial smooth
// difference and intersection evaluated in float64.
func smoothDiffRef(d1, d2, k float64) float64 {
	h := math.Max(0, math.Min(1, 0.5-0.5*(d2+d1)/k))
	m := d1 + (-d2-d1)*h
	return m + k*h*(1-h)
}

func smoothMaxRef(d1, d2, k float64) float64 {
	h := math.Max(0, math.Min(1, 0.5-0.5*(d2-d1)/k))
	m := d2 + (d1-d2)*h
	return m + k*h*(1-h)
}

func TestSmoothKernelClosedForm(t *testing.T) {
	var tests = []struct {
		d1, d2, k float32
	}{
		{d1: 0.1, d2: 0.05, k: 0.3},
		{d1: -0.2, d2: 0.1, k: 0.5},
		{d1: 0.3, d2: -0.1, k: 0.25},
		{d1: 1, d2: 0.9, k: 0.4},
		{d1: -0.05, d2: -0.3, k: 1},
		{d1: 2, d2: -2, k: 0.1}, // Outside blend region.
	}
	for _, test := range tests {
		d1, d2, k := float64(test.d1), float64(test.d2), float64(test.k)
		got := csg.SmoothDifference(test.d1, test.d2, test.k)
		if want := smoothDiffRef(d1, d2, k); !scalar.EqualWithinAbs(float64(got), want, tol) {
			t.Errorf("SmoothDifference(%g,%g,%g): want %g, got %g", d1, d2, k, want, got)
		}
		got = csg.SmoothMax(test.d1, test.d2, test.k)
		if want := smoothMaxRef(d1, d2, k); !scalar.EqualWithinAbs(float64(got), want, tol) {
			t.Errorf("SmoothMax(%g,%g,%g): want %g, got %g", d1, d2, k, want, got)
		}
	}
	if got := csg.SmoothDifference(0.1, 0.05, 0.3); !equal(got, 0.11875) {
		t.Errorf("SmoothDifference(0.1,0.05,0.3): want 0.11875, got %g", got)
	}
}

func TestSmoothDifferenceIntersectionConverge(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	pos := randomPoints(rand.New(rand.NewSource(8)), 512, 2)
	da := eval(t, a, pos)
	db := eval(t, b, pos)
	for _, k := range []float32{0.5, 0.1, 0.01, 0.001} {
		diff := eval(t, bld.SmoothDifference(k, a, b), pos)
		inter := eval(t, bld.SmoothIntersection(k, a, b), pos)
		for i := range pos {
			// Smooth maxima lie above the hard maximum by at most k/4.
			hard := math32.Max(da[i], -db[i])
			if diff[i] < hard-tol || diff[i]-hard > k/4+tol {
				t.Fatalf("k=%g: smooth difference %g outside [%g, %g+k/4]", k, diff[i], hard, hard)
			}
			hard = math32.Max(da[i], db[i])
			if inter[i] < hard-tol || inter[i]-hard > k/4+tol {
				t.Fatalf("k=%g: smooth intersection %g outside [%g, %g+k/4]", k, inter[i], hard, hard)
			}
		}
	}
}

// axisPlane is the distance to the plane normal to the given axis through the origin.
type axisPlane int

func (a axisPlane) Evaluate(pos []ms3.Vec, dist []float32, userData any) error {
	for i, p := range pos {
		dist[i] = p.Array()[a]
	}
	return nil
}

func TestSmoothUnionGradientContinuity(t *testing.T) {
	var bld csg.Builder
	px := bld.Leaf("x", axisPlane(0))
	py := bld.Leaf("y", axisPlane(1))
	// Walk across the x=y crease.
	const npts = 61
	pos := make([]ms3.Vec, npts)
	for i := range pos {
		s := -0.3 + 0.01*float32(i)
		pos[i] = ms3.Vec{X: s, Y: -s}
	}
	maxJump := func(shape *csg.Node) float32 {
		var vp sdfeval.VecPool
		normals := make([]ms3.Vec, npts)
		err := sdfeval.NormalsCentralDiff(shape, pos, normals, 1e-3, &vp)
		if err != nil {
			t.Fatal(err)
		}
		if err = vp.AssertAllReleased(); err != nil {
			t.Fatal(err)
		}
		var jump float32
		for i := 1; i < npts; i++ {
			d := ms3.Sub(ms3.Unit(normals[i]), ms3.Unit(normals[i-1]))
			jump = math32.Max(jump, ms3.Norm(d))
		}
		return jump
	}
	if jump := maxJump(bld.SmoothUnion(0.5, px, py)); jump > 0.1 {
		t.Errorf("smooth union normal discontinuous across crease: jump %g", jump)
	}
	if jump := maxJump(bld.Union(px, py)); jump < 0.5 {
		t.Errorf("hard union normal expected to jump across crease, got %g", jump)
	}

	// At the crease the smooth union gradient bisects both planes.
	var vp sdfeval.VecPool
	normal := make([]ms3.Vec, 1)
	err := sdfeval.NormalsCentralDiff(bld.SmoothUnion(0.5, px, py), []ms3.Vec{{}}, normal, 1e-3, &vp)
	if err != nil {
		t.Fatal(err)
	}
	n := ms3.Unit(normal[0])
	if !equalWithin(n.X, math32.Sqrt2/2, 1e-3) || !equalWithin(n.Y, math32.Sqrt2/2, 1e-3) || n.Z != 0 {
		t.Errorf("crease normal: got %+v", n)
	}
}

func equalWithin(a, b, tol float32) bool {
	return scalar.EqualWithinAbs(float64(a), float64(b), float64(tol))
}

func TestUnaryTransforms(t *testing.T) {
	var bld csg.Builder
	a, _ := testShapes(&bld)
	pos := randomPoints(rand.New(rand.NewSource(3)), 256, 2)
	da := eval(t, a, pos)
	neg := eval(t, bld.Negate(a), pos)
	for i := range neg {
		if neg[i] != -da[i] {
			t.Fatalf("negate: want %g, got %g", -da[i], neg[i])
		}
	}
	for _, thick := range []float32{0, 0.1, 0.5} {
		got := eval(t, bld.Shell(a, thick), pos)
		for i := range got {
			want := math32.Abs(da[i]) - thick
			if got[i] != want {
				t.Fatalf("shell %g: want %g, got %g", thick, want, got[i])
			}
		}
	}
}

func TestFoldOrderSensitivity(t *testing.T) {
	var bld csg.Builder
	a := bld.Leaf("a", constant(0))
	b := bld.WithDefaultRadius(bld.Leaf("b", constant(0.05)), 0.2)
	c := bld.Leaf("c", constant(-0.05))
	pos := []ms3.Vec{{}}

	abc := eval(t, bld.Union(a, b, c), pos)[0]
	acb := eval(t, bld.Union(a, c, b), pos)[0]
	wantABC := math32.Min(csg.SmoothMin(0, 0.05, 0.2), -0.05)
	wantACB := csg.SmoothMin(math32.Min(0, -0.05), 0.05, 0.2)
	if abc != wantABC {
		t.Errorf("union(a,b,c): want %g, got %g", wantABC, abc)
	}
	if acb != wantACB {
		t.Errorf("union(a,c,b): want %g, got %g", wantACB, acb)
	}
	if abc == acb {
		t.Error("expected fold order to change result")
	}

	// An explicit radius overrides every secondary default uniformly.
	explicit := eval(t, bld.SmoothUnion(0.1, a, b, c), pos)[0]
	want := csg.SmoothMin(csg.SmoothMin(0, 0.05, 0.1), -0.05, 0.1)
	if explicit != want {
		t.Errorf("explicit radius: want %g, got %g", want, explicit)
	}
	// The primary's default radius is never consulted.
	primarySmooth := bld.WithDefaultRadius(a, 0.3)
	got := eval(t, bld.Union(primarySmooth, c), pos)[0]
	if got != -0.05 {
		t.Errorf("primary default radius consulted: got %g", got)
	}
}

func TestExplicitZeroRadius(t *testing.T) {
	pos := []ms3.Vec{{}}
	t.Run("forced_hard", func(t *testing.T) {
		var bld csg.Builder
		a := bld.Leaf("a", constant(0))
		b := bld.WithDefaultRadius(bld.Leaf("b", constant(0.05)), 0.2)
		u := bld.SmoothUnion(0, a, b)
		if got := eval(t, u, pos)[0]; got != 0 {
			t.Errorf("want hard union 0, got %g", got)
		}
		if r := u.SecondaryRadius(0); !r.IsSet() {
			t.Error("expected explicit zero radius to be recorded as set")
		}
		// Omitting k uses the secondary default.
		if got := eval(t, bld.Union(a, b), pos)[0]; got != csg.SmoothMin(0, 0.05, 0.2) {
			t.Errorf("want smooth union with default radius, got %g", got)
		}
	})
	t.Run("fallback", func(t *testing.T) {
		var bld csg.Builder
		bld.SetFlags(csg.FlagZeroRadiusFallback)
		a := bld.Leaf("a", constant(0))
		b := bld.WithDefaultRadius(bld.Leaf("b", constant(0.05)), 0.2)
		got := eval(t, bld.SmoothUnion(0, a, b), pos)[0]
		if want := csg.SmoothMin(0, 0.05, 0.2); got != want {
			t.Errorf("want fallback to default radius %g, got %g", want, got)
		}
		// Without a default the fallback is the hard operation.
		c := bld.Leaf("c", constant(0.05))
		if got := eval(t, bld.SmoothUnion(0, a, c), pos)[0]; got != 0 {
			t.Errorf("want hard union, got %g", got)
		}
	})
}

func TestResolveRadius(t *testing.T) {
	if r := csg.ResolveRadius(csg.Radius{}, csg.Radius{}); r.IsSet() {
		t.Error("want unset radius")
	}
	if k, _ := csg.ResolveRadius(csg.Radius{}, csg.K(0.2)).Value(); k != 0.2 {
		t.Errorf("want secondary default, got %g", k)
	}
	if k, _ := csg.ResolveRadius(csg.K(0.1), csg.K(0.2)).Value(); k != 0.1 {
		t.Errorf("want explicit radius, got %g", k)
	}
	if k, ok := csg.ResolveRadius(csg.K(0), csg.K(0.2)).Value(); !ok || k != 0 {
		t.Errorf("want explicit zero radius, got %g", k)
	}
}

func TestBlend(t *testing.T) {
	pos := []ms3.Vec{{}}
	var bld csg.Builder
	a := bld.Leaf("a", constant(1))
	b := bld.Leaf("b", constant(3))
	if got := eval(t, bld.Blend(a, b), pos)[0]; got != 2 {
		t.Errorf("blend: want 2, got %g", got)
	}
	c := bld.Leaf("c", constant(-1))
	// 0.25*3 + 0.75*1 = 1.5 then 0.25*-1 + 0.75*1.5 = 0.875.
	if got := eval(t, bld.BlendK(0.25, a, b, c), pos)[0]; !equal(got, 0.875) {
		t.Errorf("blend fold: want 0.875, got %g", got)
	}

	// Factors outside [0,1] extrapolate: -0.5*3 + 1.5*1 = 0.
	if got := eval(t, bld.BlendK(-0.5, a, b), pos)[0]; !equal(got, 0) {
		t.Errorf("extrapolated blend: want 0, got %g", got)
	}
	if got := eval(t, bld.BlendK(2, a, b), pos)[0]; !equal(got, 5) {
		t.Errorf("extrapolated blend: want 5, got %g", got)
	}

	bld.SetFlags(csg.FlagZeroRadiusFallback | csg.FlagNoDimensionPanic)
	bs := bld.WithDefaultRadius(b, 0.25)
	if got := eval(t, bld.BlendK(0, a, bs), pos)[0]; !equal(got, 1.5) {
		t.Errorf("blend default factor: want 1.5, got %g", got)
	}
	if err := bld.Err(); err != nil {
		t.Fatal(err)
	}
	bld.BlendK(0, a, b)
	if err := bld.Err(); !errors.Is(err, csg.ErrConfig) {
		t.Errorf("want unresolved blend factor configuration error, got %v", err)
	}
}

func TestRepeat(t *testing.T) {
	var bld csg.Builder
	a, _ := testShapes(&bld)
	s := ms3.Vec{X: 1, Y: 1, Z: 1}
	rep := bld.Repeat(a, csg.RepeatConfig{Spacing: s})
	pos := randomPoints(rand.New(rand.NewSource(4)), 512, 10)
	got := eval(t, rep, pos)
	local := make([]ms3.Vec, len(pos))
	for i, p := range pos {
		local[i] = ms3.Sub(p, ms3.Vec{X: roundEven(p.X), Y: roundEven(p.Y), Z: roundEven(p.Z)})
	}
	want := eval(t, a, local)
	for i := range got {
		if got[i] != want[i] {
			t.Fatalf("repeat at %v: want %g, got %g", pos[i], want[i], got[i])
		}
	}
	center := eval(t, a, []ms3.Vec{{}})[0]
	for _, p := range []ms3.Vec{{X: 3, Y: -2, Z: 7}, {X: -10}, {}} {
		if d := eval(t, rep, []ms3.Vec{p})[0]; d != center {
			t.Errorf("tile center %v: want %g, got %g", p, center, d)
		}
	}
}

func TestRepeatBounded(t *testing.T) {
	var bld csg.Builder
	frame := bld.Leaf("frame", frameX{})
	rep := bld.Repeat(frame, csg.RepeatConfig{
		Spacing: ms3.Vec{X: 1},
		Count:   [3]int{2, 0, 0},
		Bounded: true,
	})
	var tests = []struct {
		p    ms3.Vec
		want float32
	}{
		{p: ms3.Vec{X: 5.25, Y: 3}, want: 3.25}, // Clamped to tile 2.
		{p: ms3.Vec{X: -7.5}, want: -5.5},       // Clamped to tile -2.
		{p: ms3.Vec{X: 1.25}, want: 0.25},       // Within bounds.
		{p: ms3.Vec{X: 2.25, Z: -4}, want: 0.25},
	}
	for _, test := range tests {
		got := eval(t, rep, []ms3.Vec{test.p})[0]
		if !equal(got, test.want) {
			t.Errorf("bounded repeat at %v: want %g, got %g", test.p, test.want, got)
		}
	}
}

func TestRepeatStagger(t *testing.T) {
	var bld csg.Builder
	a := bld.Leaf("brick", &sphere{r: 0.3, c: ms3.Vec{X: 0.1}})
	s := ms3.Vec{X: 1, Y: 2, Z: 1}
	cfg := csg.RepeatConfig{Spacing: s, Stagger: true}
	staggered := bld.Repeat(a, cfg)
	pos := randomPoints(rand.New(rand.NewSource(5)), 512, 6)
	got := eval(t, staggered, pos)
	q1 := make([]ms3.Vec, len(pos))
	q2 := make([]ms3.Vec, len(pos))
	for i, p := range pos {
		id := ms3.Vec{X: roundEven(p.X / s.X), Y: roundEven(p.Y / s.Y), Z: roundEven(p.Z / s.Z)}
		i1, i2 := id, id
		if int(id.X)%2 != 0 {
			i1.Y += 0.5
			i2.Y -= 0.5
		}
		q1[i] = ms3.Sub(p, ms3.MulElem(s, i1))
		q2[i] = ms3.Sub(p, ms3.MulElem(s, i2))
	}
	d1 := eval(t, a, q1)
	d2 := eval(t, a, q2)
	for i := range got {
		want := math32.Min(d1[i], d2[i])
		if got[i] != want {
			t.Fatalf("stagger at %v: want %g, got %g", pos[i], want, got[i])
		}
	}

	// A primitive invariant along y shows no stagger.
	yInvariant := bld.Leaf("slab", slab{halfWidth: 0.2})
	plain := eval(t, bld.Repeat(yInvariant, csg.RepeatConfig{Spacing: s}), pos)
	stag := eval(t, bld.Repeat(yInvariant, cfg), pos)
	for i := range plain {
		if plain[i] != stag[i] {
			t.Fatalf("y invariant stagger at %v: want %g, got %g", pos[i], plain[i], stag[i])
		}
	}
}

func TestConfigurationErrors(t *testing.T) {
	var bld csg.Builder
	bld.SetFlags(csg.FlagNoDimensionPanic)
	a, _ := testShapes(&bld)
	var tests = []struct {
		name  string
		build func() *csg.Node
	}{
		{name: "zero_spacing", build: func() *csg.Node {
			return bld.Repeat(a, csg.RepeatConfig{Spacing: ms3.Vec{X: 1, Y: 0, Z: 1}})
		}},
		{name: "negative_count", build: func() *csg.Node {
			return bld.Repeat(a, csg.RepeatConfig{Spacing: ms3.Vec{X: 1, Y: 1, Z: 1}, Count: [3]int{1, -1, 0}, Bounded: true})
		}},
		{name: "negative_thickness", build: func() *csg.Node { return bld.Shell(a, -0.1) }},
		{name: "negative_radius", build: func() *csg.Node { return bld.SmoothUnion(-1, a, a) }},
		{name: "nan_radius", build: func() *csg.Node { return bld.WithDefaultRadius(a, float32(math.NaN())) }},
		{name: "count_unbounded", build: func() *csg.Node {
			return bld.Repeat(a, csg.RepeatConfig{Spacing: ms3.Vec{X: 1, Y: 1, Z: 1}, Count: [3]int{2, 0, 0}})
		}},
		{name: "nan_blend", build: func() *csg.Node { return bld.BlendK(float32(math.NaN()), a, a) }},
	}
	for _, test := range tests {
		n := test.build()
		if n == nil {
			t.Errorf("%s: expecting non-nil shape", test.name)
		}
		err := bld.Err()
		if !errors.Is(err, csg.ErrConfig) {
			t.Errorf("%s: want configuration error, got %v", test.name, err)
		}
		bld.ClearErrors()
	}
	// Zero spacing is accepted on bounded axes that do not repeat.
	bld.Repeat(a, csg.RepeatConfig{Spacing: ms3.Vec{X: 1}, Count: [3]int{3, 0, 0}, Bounded: true})
	if err := bld.Err(); err != nil {
		t.Error(err)
	}
}

func TestLeafNilNode(t *testing.T) {
	var bld csg.Builder
	defer func() {
		if recover() == nil {
			t.Error("expected panic on nil node leaf")
		}
	}()
	bld.Leaf("", (*csg.Node)(nil))
}

func TestConfigurationPanic(t *testing.T) {
	var bld csg.Builder
	a, _ := testShapes(&bld)
	defer func() {
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, csg.ErrConfig) {
			t.Errorf("want configuration error panic, got %v", r)
		}
	}()
	bld.Shell(a, -1)
}

func TestEvaluateErrors(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	u := bld.Union(a, b)
	var vp sdfeval.VecPool
	err := u.Evaluate(make([]ms3.Vec, 3), make([]float32, 2), &vp)
	if !errors.Is(err, sdfeval.ErrMismatchBufferLength) {
		t.Errorf("want mismatch error, got %v", err)
	}
	err = u.Evaluate(make([]ms3.Vec, 3), make([]float32, 3), nil)
	if err == nil {
		t.Error("expected error with no VecPool")
	}
	if err = u.Evaluate(nil, nil, &vp); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	f := bld.Shell(bld.Union(a, bld.Leaf("fail", failing{})), 0.1)
	err = f.Evaluate(make([]ms3.Vec, 3), make([]float32, 3), &vp)
	if !errors.Is(err, errLeaf) {
		t.Errorf("want leaf error, got %v", err)
	}
	if err := vp.AssertAllReleased(); err != nil {
		t.Error(err)
	}
}

func TestInputsUnmodified(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	shape := bld.Repeat(bld.SmoothDifference(0.1, a, b), csg.RepeatConfig{Spacing: ms3.Vec{X: 3, Y: 3, Z: 3}, Stagger: true})
	pos := randomPoints(rand.New(rand.NewSource(6)), 128, 10)
	cp := append([]ms3.Vec(nil), pos...)
	eval(t, shape, pos)
	for i := range pos {
		if pos[i] != cp[i] {
			t.Fatalf("position %d modified", i)
		}
	}
}

func TestConcurrentMatchesSequential(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	c := bld.WithDefaultRadius(bld.Leaf("c", &sphere{r: 0.4, c: ms3.Vec{Y: 1}}), 0.15)
	body := bld.Union(a, b, c)
	holes := bld.Repeat(bld.Leaf("hole", &sphere{r: 0.1}), csg.RepeatConfig{Spacing: ms3.Vec{X: 0.5, Y: 0.5, Z: 0.5}, Stagger: true})
	shape := bld.SmoothDifference(0.05, body, holes, bld.Shell(b, 0.05))
	shape = bld.Blend(shape, bld.Negate(bld.Intersection(a, c)))

	pos := randomPoints(rand.New(rand.NewSource(7)), 1024, 2)
	want := eval(t, shape, pos)
	conc, err := csg.NewConcurrentSDF3(shape, 3)
	if err != nil {
		t.Fatal(err)
	}
	got := make([]float32, len(pos))
	for iter := 0; iter < 3; iter++ {
		err = conc.Evaluate(pos, got, nil)
		if err != nil {
			t.Fatal(err)
		}
		for i := range got {
			if got[i] != want[i] {
				t.Fatalf("concurrent result differs at %v: want %g, got %g", pos[i], want[i], got[i])
			}
		}
	}
	failShape := bld.Union(a, b, bld.Leaf("fail", failing{}))
	conc, _ = csg.NewConcurrentSDF3(failShape, 2)
	err = conc.Evaluate(pos, got, nil)
	if !errors.Is(err, errLeaf) {
		t.Errorf("want leaf error, got %v", err)
	}
}

func TestNodeIntrospection(t *testing.T) {
	var bld csg.Builder
	a, b := testShapes(&bld)
	bs := bld.WithDefaultRadius(b, 0.2)
	u := bld.Union(a, bs, bld.Shell(a, 0.1))
	if u.Op() != csg.OpUnion || u.NumChildren() != 3 {
		t.Fatalf("unexpected node %s with %d children", u.Op(), u.NumChildren())
	}
	if k, ok := u.SecondaryRadius(0).Value(); !ok || k != 0.2 {
		t.Errorf("want resolved radius 0.2, got %v", u.SecondaryRadius(0))
	}
	if u.SecondaryRadius(1).IsSet() {
		t.Error("want unset radius for shell secondary")
	}
	if u.ExplicitRadius().IsSet() {
		t.Error("union created without explicit radius")
	}
	if b.DefaultRadius().IsSet() {
		t.Error("WithDefaultRadius must not modify its argument")
	}
	const want = "union(leaf(a),leaf(b),shell(leaf(a)))"
	if got := u.String(); got != want {
		t.Errorf("want %q, got %q", want, got)
	}
	var count int
	u.ForEachChild(nil, func(_ any, child *csg.Node) error {
		count++
		return nil
	})
	if count != 3 {
		t.Errorf("want 3 children visited, got %d", count)
	}
	for _, name := range []string{"union", "difference", "repeat", "leaf"} {
		op, ok := csg.ParseOp(name)
		if !ok || op.String() != name {
			t.Errorf("ParseOp(%q) = %v, %v", name, op, ok)
		}
	}
	if _, ok := csg.ParseOp("undefined"); ok {
		t.Error("undefined must not parse")
	}
}

func roundEven(v float32) float32 {
	return float32(math.RoundToEven(float64(v)))
}
