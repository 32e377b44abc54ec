// Package glbuild generates GLSL source code from signed distance field graphs.
package glbuild

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/soypat/geometry/ms3"
)

const VersionStr = "#version 430\n"

// Shader stores information for automatically generating SDF shader functions.
type Shader interface {
	// AppendShaderName appends the name of the GL shader function
	// to the buffer and returns the result. It should be unique to that shader.
	// A shader with no GLSL representation appends nothing.
	AppendShaderName(b []byte) []byte
	// AppendShaderBody appends the body of the shader function to the
	// buffer and returns the result. The function receives a vec3 p argument.
	AppendShaderBody(b []byte) []byte
}

// Shader3D is a [Shader] whose body calls the shader functions of its children.
type Shader3D interface {
	Shader
	// ForEachShaderChild iterates over the shader's direct children.
	// Unary operations have one child i.e: Shell, Negate.
	// Fold operations have one or more i.e: Union, Intersection, Difference.
	ForEachShaderChild(fn func(child Shader) error) error
}

var (
	errNilShader = errors.New("nil shader object")
	// ErrNoShader is returned when a graph contains a shader with no GLSL representation.
	ErrNoShader = errors.New("shader has no GLSL representation")
)

// Programmer implements shader generation logic for Shader type.
type Programmer struct {
	scratchNodes  []Shader
	scratch       []byte
	computeHeader []byte
	// names maps shader names to body hashes for checking duplicates.
	names map[uint64]uint64
	// Invocations size in X (local group size) to give each compute work group.
	invocX int
}

var defaultComputeHeader = []byte("#shader compute\n" + VersionStr)

// NewDefaultProgrammer returns a Programmer with reasonable default parameters.
func NewDefaultProgrammer() *Programmer {
	return &Programmer{
		scratchNodes:  make([]Shader, 64),
		scratch:       make([]byte, 1024),
		computeHeader: defaultComputeHeader,
		names:         make(map[uint64]uint64),
		invocX:        32,
	}
}

// SetComputeInvocations sets the work group local-sizes. Only x may be other than 1.
func (p *Programmer) SetComputeInvocations(x, y, z int) {
	if y != 1 || z != 1 {
		panic("unsupported")
	} else if x < 1 {
		panic("zero or negative X invocation size")
	}
	p.invocX = x
}

// ComputeInvocations returns the worker group invocation size in x y and z.
func (p *Programmer) ComputeInvocations() (int, int, int) {
	return p.invocX, 1, 1
}

// WriteComputeSDF3 creates the bare bones I/O compute program for calculating SDF
// and writes it to the writer.
func (p *Programmer) WriteComputeSDF3(w io.Writer, obj Shader) (int, error) {
	n, err := w.Write(p.computeHeader)
	if err != nil {
		return n, err
	}
	baseName, ngot, err := p.WriteSDFDecl(w, obj)
	n += ngot
	if err != nil {
		return n, err
	}
	ngot, err = fmt.Fprintf(w, `

layout(local_size_x = %d, local_size_y = 1, local_size_z = 1) in;

// Input: 3D positions at which to evaluate SDF.
layout(std140, binding = 0) buffer PositionsBuffer {
    vec3 vbo_positions[];
};

// Output: Result of SDF evaluation are the distances. Maps to position buffer.
layout(std430, binding = 1) buffer DistancesBuffer {
    float vbo_distances[];
};

void main() {
	int idx = int( gl_GlobalInvocationID.x );

	vec3 p = vbo_positions[idx];    // Get position to evaluate SDF at.
	vbo_distances[idx] = %s(p);     // Evaluate SDF and store to distance buffer.
}
`, p.invocX, baseName)
	n += ngot
	return n, err
}

// WriteSDFDecl writes the SDF shader function declarations and returns the top-level SDF function name.
// Functions are written children first. Shaders sharing a name are written once and
// must share a body, else an error is returned.
func (p *Programmer) WriteSDFDecl(w io.Writer, s Shader) (baseName string, n int, err error) {
	baseName, nodes, err := ParseAppendNodes(p.scratchNodes[:0], s)
	if err != nil {
		return "", 0, err
	}
	p.scratchNodes = nodes[:0]
	clear(p.names)
	var ngot int
	for i := len(nodes) - 1; i >= 0; i-- {
		node := nodes[i]
		var name, body []byte
		p.scratch, name, body = AppendShaderSource(p.scratch[:0], node)
		nameHash := hash(name, 0)
		bodyHash := hash(body, nameHash)
		if prevBody, written := p.names[nameHash]; written {
			if prevBody != bodyHash {
				return baseName, n, fmt.Errorf("duplicate shader name %q with different bodies", name)
			}
			continue
		}
		p.names[nameHash] = bodyHash
		ngot, err = w.Write(p.scratch)
		n += ngot
		if err != nil {
			return baseName, n, err
		}
	}
	return baseName, n, nil
}

// ParseAppendNodes appends all of root's nodes to dst and returns root's shader name.
// It fails if any node in the graph has no GLSL representation.
func ParseAppendNodes(dst []Shader, root Shader) (baseName string, nodes []Shader, err error) {
	if root == nil {
		return "", nil, errNilShader
	}
	baseName = string(root.AppendShaderName(nil))
	if baseName == "" {
		return "", nil, fmt.Errorf("%w: %T", ErrNoShader, root)
	}
	dst, err = AppendAllNodes(dst, root)
	if err != nil {
		return "", nil, err
	}
	return baseName, dst, nil
}

// AppendAllNodes BFS iterates over all of root's descendants and appends all nodes
// found to dst.
//
// To generate shaders one must iterate over nodes in reverse order to ensure
// the first iterated nodes are the nodes with no dependencies on other nodes.
func AppendAllNodes(dst []Shader, root Shader) ([]Shader, error) {
	start := len(dst)
	dst = append(dst, root)
	nextChild := start
	for nextChild < len(dst) {
		obj := dst[nextChild]
		nextChild++
		parent, ok := obj.(Shader3D)
		if !ok {
			continue
		}
		err := parent.ForEachShaderChild(func(child Shader) error {
			if child == nil {
				return errNilShader
			}
			if len(child.AppendShaderName(nil)) == 0 {
				return fmt.Errorf("%w: %T", ErrNoShader, child)
			}
			dst = append(dst, child)
			return nil
		})
		if err != nil {
			return dst[:start], err
		}
	}
	return dst, nil
}

// AppendShaderSource appends the full GLSL function of s to dst and returns the
// result along with the subslices holding the name and body.
func AppendShaderSource(dst []byte, s Shader) (result, name, body []byte) {
	dst = append(dst, "float "...)
	nameStart := len(dst)
	dst = s.AppendShaderName(dst)
	nameEnd := len(dst)
	dst = append(dst, "(vec3 p){\n"...)
	bodyStart := len(dst)
	dst = s.AppendShaderBody(dst)
	bodyEnd := len(dst)
	dst = append(dst, "\n}\n"...)
	return dst, dst[nameStart:nameEnd], dst[bodyStart:bodyEnd]
}

// AppendDistanceDecl appends a float declaration initialized to the distance of s at sdfPositionArgInput.
func AppendDistanceDecl(b []byte, floatVarname, sdfPositionArgInput string, s Shader) []byte {
	b = append(b, "float "...)
	b = append(b, floatVarname...)
	b = append(b, '=')
	b = s.AppendShaderName(b)
	b = append(b, '(')
	b = append(b, sdfPositionArgInput...)
	b = append(b, ");\n"...)
	return b
}

func AppendVec3Decl(b []byte, vec3Varname string, v ms3.Vec) []byte {
	b = append(b, "vec3 "...)
	b = append(b, vec3Varname...)
	b = append(b, "=vec3("...)
	arr := v.Array()
	b = AppendFloats(b, ',', '-', '.', arr[:]...)
	b = append(b, ')', ';', '\n')
	return b
}

func AppendFloatDecl(b []byte, floatVarname string, v float32) []byte {
	b = append(b, "float "...)
	b = append(b, floatVarname...)
	b = append(b, '=')
	b = AppendFloat(b, '-', '.', v)
	b = append(b, ';', '\n')
	return b
}

const decimalDigits = 9

// AppendFloat appends v in decimal notation with trailing zeros trimmed.
// neg replaces the minus sign and decimal replaces the decimal point
// so the result can be used in identifiers.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	// Finally trim zeroes.
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// AppendHashName appends prefix followed by a hexadecimal hash of data.
func AppendHashName(b []byte, prefix string, data []byte) []byte {
	b = append(b, prefix...)
	return strconv.AppendUint(b, hash(data, 0), 16)
}

func hash(b []byte, in uint64) uint64 {
	x := in
	for len(b) >= 8 {
		x ^= binary.LittleEndian.Uint64(b)
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
		b = b[8:]
	}
	if len(b) > 0 {
		var buf [8]byte
		copy(buf[:], b)
		x ^= binary.LittleEndian.Uint64(buf[:])
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return x
}
