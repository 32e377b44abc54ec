package csg

import (
	"strconv"
	"strings"

	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
)

// Op identifies the operation a [Node] performs.
type Op uint8

const (
	opUndefined Op = iota
	// OpLeaf is an opaque SDF supplied by the caller.
	OpLeaf
	OpUnion
	OpDifference
	OpIntersection
	OpBlend
	OpNegate
	OpShell
	OpRepeat
)

var opNames = [...]string{
	opUndefined:    "undefined",
	OpLeaf:         "leaf",
	OpUnion:        "union",
	OpDifference:   "difference",
	OpIntersection: "intersection",
	OpBlend:        "blend",
	OpNegate:       "negate",
	OpShell:        "shell",
	OpRepeat:       "repeat",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// ParseOp returns the Op whose String method returns name.
func ParseOp(name string) (Op, bool) {
	for i, s := range opNames {
		if Op(i) != opUndefined && s == name {
			return Op(i), true
		}
	}
	return opUndefined, false
}

// IsFold reports whether the operation folds a primary operand with a variadic
// sequence of secondary operands.
func (op Op) IsFold() bool {
	return op == OpUnion || op == OpDifference || op == OpIntersection || op == OpBlend
}

// Radius is an optional smoothing radius. The zero value is unset.
type Radius struct {
	k   float32
	set bool
}

// K returns a set Radius of value k.
func K(k float32) Radius { return Radius{k: k, set: true} }

// Value returns the radius and whether it is set.
func (r Radius) Value() (k float32, ok bool) { return r.k, r.set }

// IsSet reports whether r holds a value.
func (r Radius) IsSet() bool { return r.set }

// smooths reports whether r selects a smooth operation. Unset and zero radii select the hard operation.
func (r Radius) smooths() bool { return r.set && r.k != 0 }

func (r Radius) String() string {
	if !r.set {
		return "none"
	}
	return strconv.FormatFloat(float64(r.k), 'g', -1, 32)
}

// ResolveRadius returns the radius used to merge a secondary operand:
// the explicit radius if set, else the secondary's default radius.
// The result is unset if neither is set.
func ResolveRadius(explicit, secondaryDefault Radius) Radius {
	if explicit.set {
		return explicit
	}
	return secondaryDefault
}

// RepeatConfig holds domain repetition parameters. See [Builder.Repeat].
type RepeatConfig struct {
	// Spacing is the tile period along each axis.
	Spacing ms3.Vec
	// Count bounds the number of tiles on either side of the origin per axis
	// when Bounded is true. Tile indices are clamped to [-Count, Count].
	Count [3]int
	// Bounded enables Count. Unbounded repetition tiles all of space.
	Bounded bool
	// Stagger offsets the tiles of every odd x column by half a period along y.
	Stagger bool
}

// Node is an immutable signed distance field operation. The operation is
// selected by its [Op] tag and its parameters are fixed at construction.
// Node implements [sdfeval.SDF3].
type Node struct {
	op Op
	// children[0] is the primary operand of fold operations and the
	// only operand of unary operations.
	children []*Node
	// k is the radius explicitly passed to the combinator.
	k Radius
	// radii[i] is the resolved radius used to merge children[i+1].
	radii []Radius
	// smooth is the default radius consulted when this node is a secondary operand.
	smooth Radius
	thick  float32
	rep    RepeatConfig
	leaf   sdfeval.SDF3
	name   string
}

// Op returns the node's operation.
func (n *Node) Op() Op { return n.op }

// NumChildren returns the number of operands of the node.
func (n *Node) NumChildren() int { return len(n.children) }

// Child returns the i'th operand. Child(0) is the primary operand.
func (n *Node) Child(i int) *Node { return n.children[i] }

// ForEachChild calls fn on each operand in argument order and stops at the first error.
func (n *Node) ForEachChild(userData any, fn func(userData any, child *Node) error) error {
	for _, c := range n.children {
		err := fn(userData, c)
		if err != nil {
			return err
		}
	}
	return nil
}

// ExplicitRadius returns the radius passed to the combinator that created the node.
func (n *Node) ExplicitRadius() Radius { return n.k }

// SecondaryRadius returns the resolved radius used to merge the i'th secondary
// operand, that is, Child(i+1), into the accumulated result.
func (n *Node) SecondaryRadius(i int) Radius { return n.radii[i] }

// DefaultRadius returns the node's attached default smoothing radius.
func (n *Node) DefaultRadius() Radius { return n.smooth }

// Thickness returns the shell thickness of an [OpShell] node.
func (n *Node) Thickness() float32 { return n.thick }

// RepeatConfig returns the repetition parameters of an [OpRepeat] node.
func (n *Node) RepeatConfig() RepeatConfig { return n.rep }

// Name returns the name given to the node by [Builder.Leaf], empty if unnamed.
func (n *Node) Name() string { return n.name }

// Leaf returns the opaque SDF of an [OpLeaf] node.
func (n *Node) Leaf() sdfeval.SDF3 { return n.leaf }

// String formats the node graph compactly, i.e: "union(leaf(a),shell(leaf))".
func (n *Node) String() string {
	var sb strings.Builder
	n.format(&sb)
	return sb.String()
}

func (n *Node) format(sb *strings.Builder) {
	sb.WriteString(n.op.String())
	if n.op == OpLeaf {
		if n.name != "" {
			sb.WriteByte('(')
			sb.WriteString(n.name)
			sb.WriteByte(')')
		}
		return
	}
	sb.WriteByte('(')
	for i, c := range n.children {
		if i > 0 {
			sb.WriteByte(',')
		}
		c.format(sb)
	}
	sb.WriteByte(')')
}

// clone returns a shallow copy of n. Children are shared.
func (n *Node) clone() *Node {
	cp := *n
	return &cp
}
