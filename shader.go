package csg

import (
	"github.com/soypat/csg/glbuild"
)

// AppendShaderName implements [glbuild.Shader]. Leaves that do not implement
// [glbuild.Shader] have no GLSL representation and neither do nodes depending on them.
func (n *Node) AppendShaderName(b []byte) []byte {
	if n.op == OpLeaf {
		if sh, ok := n.leaf.(glbuild.Shader); ok {
			return sh.AppendShaderName(b)
		}
		return b
	}
	// Name is a hash of the operation parameters and the names of its children
	// so structurally equal nodes share a GLSL function.
	var scratch [128]byte
	data := append(scratch[:0], n.op.String()...)
	for i, c := range n.children {
		start := len(data)
		data = c.AppendShaderName(data)
		if len(data) == start {
			return b
		}
		data = append(data, '_')
		if i > 0 {
			data = appendRadius(data, n.radii[i-1])
		}
	}
	switch n.op {
	case OpShell:
		data = glbuild.AppendFloat(data, 'n', 'p', n.thick)
	case OpRepeat:
		arr := n.rep.Spacing.Array()
		data = glbuild.AppendFloats(data, 'q', 'n', 'p', arr[:]...)
		if n.rep.Bounded {
			data = append(data, 'b')
			data = glbuild.AppendFloats(data, 'q', 'n', 'p', float32(n.rep.Count[0]), float32(n.rep.Count[1]), float32(n.rep.Count[2]))
		}
		if n.rep.Stagger {
			data = append(data, 's')
		}
	}
	return glbuild.AppendHashName(b, n.op.String(), data)
}

func appendRadius(b []byte, r Radius) []byte {
	if !r.set {
		return append(b, 'h')
	}
	return glbuild.AppendFloat(b, 'n', 'p', r.k)
}

// ForEachShaderChild implements [glbuild.Shader3D].
func (n *Node) ForEachShaderChild(fn func(child glbuild.Shader) error) error {
	if n.op == OpLeaf {
		if sh, ok := n.leaf.(glbuild.Shader3D); ok {
			return sh.ForEachShaderChild(fn)
		}
		return nil
	}
	for _, c := range n.children {
		err := fn(c)
		if err != nil {
			return err
		}
	}
	return nil
}

// AppendShaderBody implements [glbuild.Shader].
func (n *Node) AppendShaderBody(b []byte) []byte {
	switch n.op {
	case OpLeaf:
		if sh, ok := n.leaf.(glbuild.Shader); ok {
			return sh.AppendShaderBody(b)
		}
		return b
	case OpUnion, OpDifference, OpIntersection, OpBlend:
		return n.appendFoldBody(b)
	case OpNegate:
		b = append(b, "return -"...)
		b = n.children[0].AppendShaderName(b)
		b = append(b, "(p);"...)
	case OpShell:
		b = glbuild.AppendFloatDecl(b, "t", n.thick)
		b = append(b, "return abs("...)
		b = n.children[0].AppendShaderName(b)
		b = append(b, "(p))-t;"...)
	case OpRepeat:
		return n.appendRepeatBody(b)
	}
	return b
}

func (n *Node) appendFoldBody(b []byte) []byte {
	b = glbuild.AppendDistanceDecl(b, "d", "p", n.children[0])
	if len(n.children) > 1 {
		b = append(b, "float b;\n"...)
	}
	for i, c := range n.children[1:] {
		b = append(b, "b="...)
		b = c.AppendShaderName(b)
		b = append(b, "(p);\n"...)
		r := n.radii[i]
		if n.op == OpBlend {
			b = append(b, "d=mix(d,b,"...)
			b = glbuild.AppendFloat(b, '-', '.', r.k)
			b = append(b, ");\n"...)
			continue
		}
		if !r.smooths() {
			switch n.op {
			case OpUnion:
				b = append(b, "d=min(d,b);\n"...)
			case OpDifference:
				b = append(b, "d=max(d,-b);\n"...)
			case OpIntersection:
				b = append(b, "d=max(d,b);\n"...)
			}
			continue
		}
		b = append(b, "{\n"...)
		b = glbuild.AppendFloatDecl(b, "k", r.k)
		switch n.op {
		case OpUnion:
			b = append(b, "float h=clamp(0.5+0.5*(b-d)/k,0.,1.);\nd=mix(b,d,h)-k*h*(1.-h);\n"...)
		case OpDifference:
			b = append(b, "float h=clamp(0.5-0.5*(b+d)/k,0.,1.);\nd=mix(d,-b,h)+k*h*(1.-h);\n"...)
		case OpIntersection:
			b = append(b, "float h=clamp(0.5-0.5*(b-d)/k,0.,1.);\nd=mix(b,d,h)+k*h*(1.-h);\n"...)
		}
		b = append(b, "}\n"...)
	}
	b = append(b, "return d;"...)
	return b
}

func (n *Node) appendRepeatBody(b []byte) []byte {
	cfg := &n.rep
	b = glbuild.AppendVec3Decl(b, "s", cfg.Spacing)
	sp := cfg.Spacing.Array()
	const axes = "xyz"
	for axis, spacing := range sp {
		b = append(b, "float i"...)
		b = append(b, axes[axis], '=')
		if spacing == 0 {
			b = append(b, "0.;\n"...)
			continue
		}
		b = append(b, "roundEven(p."...)
		b = append(b, axes[axis])
		b = append(b, "/s."...)
		b = append(b, axes[axis], ')', ';', '\n')
		if cfg.Bounded {
			c := float32(cfg.Count[axis])
			b = append(b, 'i', axes[axis])
			b = append(b, "=clamp(i"...)
			b = append(b, axes[axis], ',')
			b = glbuild.AppendFloat(b, '-', '.', -c)
			b = append(b, ',')
			b = glbuild.AppendFloat(b, '-', '.', c)
			b = append(b, ");\n"...)
		}
	}
	b = append(b, "vec3 i=vec3(ix,iy,iz);\n"...)
	if !cfg.Stagger {
		b = append(b, "return "...)
		b = n.children[0].AppendShaderName(b)
		b = append(b, "(p-s*i);"...)
		return b
	}
	b = append(b, "vec3 o=mod(ix,2.)==0.?vec3(0.):vec3(0.,0.5,0.);\n"...)
	b = glbuild.AppendDistanceDecl(b, "d1", "p-s*(i+o)", n.children[0])
	b = glbuild.AppendDistanceDecl(b, "d2", "p-s*(i-o)", n.children[0])
	b = append(b, "return min(d1,d2);"...)
	return b
}
