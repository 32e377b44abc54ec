// Package scene encodes and decodes composition graphs as YAML documents.
//
// A document is a tree of operations whose leaves refer by name to SDFs
// registered by the caller:
//
//	op: union
//	children:
//	  - op: leaf
//	    leaf: body
//	  - op: shell
//	    thickness: 0.1
//	    default_k: 0.05
//	    children:
//	      - op: leaf
//	        leaf: cap
package scene

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/soypat/csg"
	"github.com/soypat/csg/sdfeval"
	"github.com/soypat/geometry/ms3"
	"gopkg.in/yaml.v3"
)

var (
	// ErrUnknownLeaf is returned when a document references an unregistered leaf.
	ErrUnknownLeaf = errors.New("unknown leaf")
	// ErrArity is returned when an operation has the wrong number of children.
	ErrArity = errors.New("wrong number of children")
	// ErrUnnamedLeaf is returned when encoding a graph with a leaf that has no name.
	ErrUnnamedLeaf = errors.New("leaf has no name")
)

// Spec is the document representation of a single node.
type Spec struct {
	Op       string   `yaml:"op" validate:"required,oneof=leaf union difference intersection blend negate shell repeat"`
	Leaf     string   `yaml:"leaf,omitempty" validate:"required_if=Op leaf"`
	// K is the smoothing radius of boolean operations or the blend factor.
	K        *float32 `yaml:"k,omitempty"`
	DefaultK *float32 `yaml:"default_k,omitempty" validate:"omitempty,gte=0"`
	// Thickness of shell operations.
	Thickness float32 `yaml:"thickness,omitempty" validate:"gte=0"`
	// Spacing, Count, Bounded and Stagger configure repeat operations.
	// A present Count bounds the repetition.
	Spacing  []float32 `yaml:"spacing,omitempty,flow" validate:"omitempty,len=3"`
	Count    []int     `yaml:"count,omitempty,flow" validate:"omitempty,len=3,dive,gte=0"`
	Bounded  bool      `yaml:"bounded,omitempty"`
	Stagger  bool      `yaml:"stagger,omitempty"`
	Children []*Spec   `yaml:"children,omitempty" validate:"dive,required"`
}

// Config configures building of nodes from documents.
type Config struct {
	// Leaves maps leaf names used in documents to their SDF.
	Leaves map[string]sdfeval.SDF3
	// Flags are the Builder flags nodes are created with.
	// Configuration errors are always returned and never panic.
	Flags csg.Flags
	// Logger receives debug records for every decoded node. May be nil.
	Logger *slog.Logger
}

var validate = validator.New()

// Decode reads a single YAML document from r and builds its node graph.
func Decode(r io.Reader, cfg Config) (*csg.Node, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var spec Spec
	err := dec.Decode(&spec)
	if err != nil {
		return nil, fmt.Errorf("scene: decoding document: %w", err)
	}
	return Build(&spec, cfg)
}

// Build validates spec and builds its node graph.
func Build(spec *Spec, cfg Config) (*csg.Node, error) {
	if spec == nil {
		return nil, errors.New("scene: nil spec")
	}
	err := validate.Struct(spec)
	if err != nil {
		return nil, fmt.Errorf("scene: invalid document: %w", err)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := builder{leaves: cfg.Leaves, log: log}
	b.bld.SetFlags(cfg.Flags | csg.FlagNoDimensionPanic)
	node, err := b.build(spec, "root", 0)
	if err != nil {
		return nil, err
	}
	if err = b.bld.Err(); err != nil {
		return nil, fmt.Errorf("scene: %w", err)
	}
	return node, nil
}

type builder struct {
	bld    csg.Builder
	leaves map[string]sdfeval.SDF3
	log    *slog.Logger
}

func (b *builder) build(spec *Spec, path string, depth int) (*csg.Node, error) {
	op, ok := csg.ParseOp(spec.Op)
	if !ok {
		return nil, fmt.Errorf("scene: %s: unknown operation %q", path, spec.Op)
	}
	nc := len(spec.Children)
	switch {
	case op == csg.OpLeaf && nc != 0,
		op.IsFold() && nc == 0,
		!op.IsFold() && op != csg.OpLeaf && nc != 1:
		return nil, fmt.Errorf("scene: %s: %w for %s: %d", path, ErrArity, op, nc)
	}
	children := make([]*csg.Node, nc)
	for i, child := range spec.Children {
		var err error
		children[i], err = b.build(child, path+".children["+strconv.Itoa(i)+"]", depth+1)
		if err != nil {
			return nil, err
		}
	}
	bld := &b.bld
	var n *csg.Node
	switch op {
	case csg.OpLeaf:
		sdf, ok := b.leaves[spec.Leaf]
		if !ok {
			return nil, fmt.Errorf("scene: %s: %w %q", path, ErrUnknownLeaf, spec.Leaf)
		}
		n = bld.Leaf(spec.Leaf, sdf)
	case csg.OpUnion:
		if spec.K != nil {
			n = bld.SmoothUnion(*spec.K, children[0], children[1:]...)
		} else {
			n = bld.Union(children[0], children[1:]...)
		}
	case csg.OpDifference:
		if spec.K != nil {
			n = bld.SmoothDifference(*spec.K, children[0], children[1:]...)
		} else {
			n = bld.Difference(children[0], children[1:]...)
		}
	case csg.OpIntersection:
		if spec.K != nil {
			n = bld.SmoothIntersection(*spec.K, children[0], children[1:]...)
		} else {
			n = bld.Intersection(children[0], children[1:]...)
		}
	case csg.OpBlend:
		if spec.K != nil {
			n = bld.BlendK(*spec.K, children[0], children[1:]...)
		} else {
			n = bld.Blend(children[0], children[1:]...)
		}
	case csg.OpNegate:
		n = bld.Negate(children[0])
	case csg.OpShell:
		n = bld.Shell(children[0], spec.Thickness)
	case csg.OpRepeat:
		if len(spec.Spacing) != 3 {
			return nil, fmt.Errorf("scene: %s: repeat requires 3 spacing components", path)
		}
		rc := csg.RepeatConfig{
			Spacing: ms3.Vec{X: spec.Spacing[0], Y: spec.Spacing[1], Z: spec.Spacing[2]},
			Bounded: spec.Bounded || spec.Count != nil,
			Stagger: spec.Stagger,
		}
		copy(rc.Count[:], spec.Count)
		n = bld.Repeat(children[0], rc)
	}
	if spec.DefaultK != nil {
		n = bld.WithDefaultRadius(n, *spec.DefaultK)
	}
	b.log.Debug("decoded node",
		slog.String("path", path),
		slog.String("op", op.String()),
		slog.Int("depth", depth),
		slog.Int("children", nc),
	)
	return n, nil
}

// Encode writes root as a YAML document to w. Every leaf of root must be named.
func Encode(w io.Writer, root *csg.Node) error {
	spec, err := FromNode(root)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err = enc.Encode(spec)
	if err != nil {
		return fmt.Errorf("scene: encoding document: %w", err)
	}
	return enc.Close()
}

// FromNode returns the document representation of root.
func FromNode(root *csg.Node) (*Spec, error) {
	if root == nil {
		return nil, errors.New("scene: nil node")
	}
	spec := &Spec{Op: root.Op().String()}
	if k, ok := root.DefaultRadius().Value(); ok {
		spec.DefaultK = &k
	}
	switch root.Op() {
	case csg.OpLeaf:
		if root.Name() == "" {
			return nil, fmt.Errorf("scene: %w: %T", ErrUnnamedLeaf, root.Leaf())
		}
		spec.Leaf = root.Name()
		return spec, nil
	case csg.OpShell:
		spec.Thickness = root.Thickness()
	case csg.OpRepeat:
		rc := root.RepeatConfig()
		spec.Spacing = []float32{rc.Spacing.X, rc.Spacing.Y, rc.Spacing.Z}
		if rc.Bounded {
			spec.Count = rc.Count[:]
		}
		spec.Bounded = rc.Bounded
		spec.Stagger = rc.Stagger
	}
	if k, ok := root.ExplicitRadius().Value(); ok {
		spec.K = &k
	}
	err := root.ForEachChild(nil, func(_ any, child *csg.Node) error {
		cs, err := FromNode(child)
		if err != nil {
			return err
		}
		spec.Children = append(spec.Children, cs)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return spec, nil
}
