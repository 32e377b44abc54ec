package csg

import (
	"fmt"

	"github.com/soypat/csg/sdfeval"
)

// Leaf wraps an opaque SDF as a composition node. name is optional and is
// used to identify the leaf when formatting or serializing the graph.
//
// If s is itself a *Node it is returned as is, renamed when name is non-empty.
func (bld *Builder) Leaf(name string, s sdfeval.SDF3) *Node {
	if s == nil {
		bld.nilsdf("Leaf " + name)
	}
	if n, ok := s.(*Node); ok {
		if n == nil {
			bld.nilsdf("Leaf " + name)
		}
		if name == "" {
			return n
		}
		n = n.clone()
		n.name = name
		return n
	}
	return &Node{op: OpLeaf, leaf: s, name: name}
}

// WithDefaultRadius returns a copy of s carrying k as its default smoothing radius.
// The default radius does not change how s evaluates. Combinators use it to merge s
// when s is passed as a secondary operand and no explicit radius is given.
func (bld *Builder) WithDefaultRadius(s *Node, k float32) *Node {
	if s == nil {
		bld.nilsdf("WithDefaultRadius")
	}
	if k < 0 || !isFinite(k) {
		bld.shapeErrorf("default smoothing radius must be finite and non-negative, got %g", k)
	}
	cp := s.clone()
	cp.smooth = K(k)
	return cp
}

// Union joins the shapes of a and bs into one. Each secondary operand in bs is merged
// in argument order using its default radius, or with the hard minimum if it has none.
// With no secondary operands the result evaluates as a.
func (bld *Builder) Union(a *Node, bs ...*Node) *Node {
	return bld.fold(OpUnion, Radius{}, a, bs)
}

// SmoothUnion joins the shapes of a and bs with smoothing radius k, which overrides
// the default radius of every secondary operand. A zero k performs a hard union.
func (bld *Builder) SmoothUnion(k float32, a *Node, bs ...*Node) *Node {
	return bld.fold(OpUnion, bld.explicit(k), a, bs)
}

// Difference subtracts the shapes bs from a in argument order. Does not produce an exact SDF.
func (bld *Builder) Difference(a *Node, bs ...*Node) *Node {
	return bld.fold(OpDifference, Radius{}, a, bs)
}

// SmoothDifference subtracts the shapes bs from a with smoothing radius k.
func (bld *Builder) SmoothDifference(k float32, a *Node, bs ...*Node) *Node {
	return bld.fold(OpDifference, bld.explicit(k), a, bs)
}

// Intersection is the intersection of a and all of bs. Does not produce an exact SDF.
func (bld *Builder) Intersection(a *Node, bs ...*Node) *Node {
	return bld.fold(OpIntersection, Radius{}, a, bs)
}

// SmoothIntersection intersects a and bs with smoothing radius k.
func (bld *Builder) SmoothIntersection(k float32, a *Node, bs ...*Node) *Node {
	return bld.fold(OpIntersection, bld.explicit(k), a, bs)
}

// Blend cross-fades the distance field of a towards each bs in order with factor [DefaultBlend]:
//
//	d = k*b(p) + (1-k)*d
//
// The result is a morph between the shapes and not a boolean operation.
func (bld *Builder) Blend(a *Node, bs ...*Node) *Node {
	return bld.BlendK(DefaultBlend, a, bs...)
}

// BlendK is [Builder.Blend] with an explicit blend factor k. k must be finite
// and may lie outside [0,1], which extrapolates the morph.
// With [FlagZeroRadiusFallback] set a zero k resolves to each secondary's default radius,
// which then must be set.
func (bld *Builder) BlendK(k float32, a *Node, bs ...*Node) *Node {
	factor := K(k)
	if !isFinite(k) {
		bld.shapeErrorf("blend factor must be finite, got %g", k)
	} else if k == 0 && bld.flags&FlagZeroRadiusFallback != 0 {
		factor = Radius{}
	}
	n := bld.fold(OpBlend, factor, a, bs)
	for i, r := range n.radii {
		if !r.set {
			bld.shapeErrorf("blend factor unresolved for secondary operand %d", i)
		}
	}
	return n
}

// explicit returns the explicit radius argument k as interpreted by the Builder's flags.
func (bld *Builder) explicit(k float32) Radius {
	if !isFinite(k) || k < 0 {
		bld.shapeErrorf("smoothing radius must be finite and non-negative, got %g", k)
	}
	if k == 0 && bld.flags&FlagZeroRadiusFallback != 0 {
		return Radius{}
	}
	return K(k)
}

func (bld *Builder) fold(op Op, k Radius, a *Node, bs []*Node) *Node {
	if a == nil {
		bld.nilsdf(op.String() + " primary operand")
	}
	n := &Node{
		op:       op,
		k:        k,
		children: make([]*Node, 0, 1+len(bs)),
		radii:    make([]Radius, len(bs)),
	}
	n.children = append(n.children, a)
	for i, b := range bs {
		if b == nil {
			bld.nilsdf(fmt.Sprintf("nil arg[%d] to %s", i+1, op))
		}
		n.children = append(n.children, b)
		n.radii[i] = ResolveRadius(k, b.smooth)
	}
	return n
}

// Negate flips the inside and outside of s.
func (bld *Builder) Negate(s *Node) *Node {
	if s == nil {
		bld.nilsdf("Negate")
	}
	return &Node{op: OpNegate, children: []*Node{s}}
}

// Shell carves the interior of s leaving a shell of half-width thickness
// centered on the surface of s:
//
//	d = abs(s(p)) - thickness
func (bld *Builder) Shell(s *Node, thickness float32) *Node {
	if s == nil {
		bld.nilsdf("Shell")
	}
	if thickness < 0 || !isFinite(thickness) {
		bld.shapeErrorf("shell thickness must be finite and non-negative, got %g", thickness)
	}
	return &Node{op: OpShell, children: []*Node{s}, thick: thickness}
}
