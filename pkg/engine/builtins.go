package engine

import (
	"fmt"
	"strings"

	"github.com/chazu/subdiv/pkg/control"
	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/kernel"
	"github.com/chazu/subdiv/pkg/weld"
	"github.com/go-gl/mathgl/mgl32"
	zygo "github.com/glycerine/zygomys/zygo"
)

// ---------------------------------------------------------------------------
// Custom Sexp types for passing Go values through the zygomys environment
// ---------------------------------------------------------------------------

// sexpSolid wraps a kernel.Solid so it can be passed between builtins.
type sexpSolid struct {
	solid kernel.Solid
	desc  string
}

func (s *sexpSolid) SexpString(ps *zygo.PrintState) string {
	return "(solid " + s.desc + ")"
}
func (s *sexpSolid) Type() *zygo.RegisteredType { return nil }

// ---------------------------------------------------------------------------
// Keyword argument parsing
// ---------------------------------------------------------------------------

// isKW checks if a Sexp is a preprocessed keyword string.
// Returns the keyword name (without prefix) and true if it is.
func isKW(s zygo.Sexp) (string, bool) {
	str, ok := s.(*zygo.SexpStr)
	if !ok {
		return "", false
	}
	if strings.HasPrefix(str.S, kwPrefix) {
		return str.S[len(kwPrefix):], true
	}
	return "", false
}

// kwArgs holds the result of parsing a mixed positional+keyword argument list.
type kwArgs struct {
	kw         map[string]zygo.Sexp
	positional []zygo.Sexp
}

// parseArgs separates args into keyword and positional arguments.
func parseArgs(args []zygo.Sexp) kwArgs {
	result := kwArgs{kw: make(map[string]zygo.Sexp)}
	for i := 0; i < len(args); i++ {
		name, ok := isKW(args[i])
		if !ok {
			result.positional = append(result.positional, args[i])
			continue
		}
		if i+1 < len(args) {
			result.kw[name] = args[i+1]
			i++
		} else {
			// Trailing keyword with no value is a flag.
			result.kw[name] = zygo.SexpNull
		}
	}
	return result
}

// ---------------------------------------------------------------------------
// Value extraction helpers
// ---------------------------------------------------------------------------

// toFloat64 extracts a float64 from a Sexp (SexpInt or SexpFloat).
func toFloat64(s zygo.Sexp) (float64, error) {
	switch v := s.(type) {
	case *zygo.SexpInt:
		return float64(v.Val), nil
	case *zygo.SexpFloat:
		return v.Val, nil
	}
	return 0, fmt.Errorf("expected number, got %T (%s)", s, s.SexpString(nil))
}

// toString extracts a string from a Sexp.
func toString(s zygo.Sexp) (string, error) {
	if str, ok := s.(*zygo.SexpStr); ok {
		return str.S, nil
	}
	return "", fmt.Errorf("expected string, got %T (%s)", s, s.SexpString(nil))
}

// toInt extracts a non-negative integer from a SexpInt.
func toInt(s zygo.Sexp) (int, error) {
	v, ok := s.(*zygo.SexpInt)
	if !ok {
		return 0, fmt.Errorf("expected integer, got %T (%s)", s, s.SexpString(nil))
	}
	if v.Val < 0 || v.Val >= control.Invalid {
		return 0, fmt.Errorf("index %d out of range", v.Val)
	}
	return int(v.Val), nil
}

// toBool extracts a boolean. SexpNull counts as false.
func toBool(s zygo.Sexp) (bool, error) {
	switch v := s.(type) {
	case *zygo.SexpBool:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return false, nil
		}
	}
	return false, fmt.Errorf("expected boolean, got %T (%s)", s, s.SexpString(nil))
}

// toFloats extracts exactly n numbers.
func toFloats(fn string, args []zygo.Sexp, names ...string) ([]float64, error) {
	if len(args) != len(names) {
		return nil, fmt.Errorf("%s requires %d arguments (%s), got %d",
			fn, len(names), strings.Join(names, " "), len(args))
	}
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := toFloat64(a)
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", fn, names[i], err)
		}
		out[i] = f
	}
	return out, nil
}

// toSolid extracts a kernel solid.
func toSolid(s zygo.Sexp) (*sexpSolid, error) {
	if v, ok := s.(*sexpSolid); ok {
		return v, nil
	}
	return nil, fmt.Errorf("expected solid, got %T (%s)", s, s.SexpString(nil))
}

// sexpListToSlice converts a SexpPair (Lisp list) or SexpArray to a Go slice.
func sexpListToSlice(s zygo.Sexp) ([]zygo.Sexp, error) {
	switch v := s.(type) {
	case *zygo.SexpPair:
		return zygo.ListToArray(v)
	case *zygo.SexpArray:
		return v.Val, nil
	case *zygo.SexpSentinel:
		if v == zygo.SexpNull {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("expected list or array, got %T", s)
}

func sexpInt(n int) zygo.Sexp { return &zygo.SexpInt{Val: int64(n)} }

// ---------------------------------------------------------------------------
// Builder state
// ---------------------------------------------------------------------------

// builder is the mutable state one evaluation's builtins share.
type builder struct {
	scene    *Scene
	current  *NamedMesh
	kernel   kernel.Kernel
	weld     weld.Options
	sink     diagnostics.Sink
	warnings []EvalWarning
}

func newBuilder(k kernel.Kernel, w weld.Options, sink diagnostics.Sink) *builder {
	return &builder{scene: &Scene{}, kernel: k, weld: w, sink: sink}
}

// open makes name the current mesh, creating it on first use.
func (b *builder) open(name string) *NamedMesh {
	if nm := b.scene.Lookup(name); nm != nil {
		b.current = nm
		return nm
	}
	nm := &NamedMesh{Name: name, Mesh: control.NewMesh(control.WithDiagnostics(b.sink))}
	b.scene.Meshes = append(b.scene.Meshes, nm)
	b.current = nm
	return nm
}

// mesh returns the current mesh, opening the default one if needed.
func (b *builder) mesh() *control.Mesh {
	if b.current == nil {
		b.open(DefaultMeshName)
	}
	return b.current.Mesh
}

func (b *builder) warn(code diagnostics.Code, format string, args ...any) {
	b.mesh()
	b.warnings = append(b.warnings, EvalWarning{
		Mesh:    b.current.Name,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	})
}

// edge resolves the edge between two vertex arguments.
func (b *builder) edge(fn string, a0, a1 zygo.Sexp) (control.EdgeIndex, error) {
	v0, err := toInt(a0)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	v1, err := toInt(a1)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", fn, err)
	}
	e := b.mesh().FindEdge(control.VertexIndex(v0), control.VertexIndex(v1))
	if e == control.Invalid {
		return 0, fmt.Errorf("%s: no edge between %d and %d", fn, v0, v1)
	}
	return e, nil
}

// addFace offers vs to the current mesh. A rejection becomes a warning and
// the face index -1.
func (b *builder) addFace(vs []control.VertexIndex) zygo.Sexp {
	f, err := b.mesh().AddFace(vs...)
	if err != nil {
		b.warn(control.CodeOf(err), "face %v rejected: %v", vs, err)
		return sexpInt(-1)
	}
	return sexpInt(int(f))
}

// ---------------------------------------------------------------------------
// Builtin registration
// ---------------------------------------------------------------------------

// register installs every subdiv builtin into env. Source must go through
// preprocessSource first so :keyword tokens are recognizable.
func (b *builder) register(env *zygo.Zlisp) {
	b.registerMeshBuiltins(env)
	b.registerCageBuiltins(env)
	b.registerSolidBuiltins(env)
}

func (b *builder) registerMeshBuiltins(env *zygo.Zlisp) {

	// -----------------------------------------------------------------------
	// (mesh "name")
	// -----------------------------------------------------------------------
	env.AddFunction("mesh", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("mesh requires a name argument")
		}
		meshName, err := toString(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("mesh: name: %w", err)
		}
		if strings.TrimSpace(meshName) == "" {
			return zygo.SexpNull, fmt.Errorf("mesh: name is empty")
		}
		b.open(meshName)
		return &zygo.SexpStr{S: meshName}, nil
	})

	// -----------------------------------------------------------------------
	// (vertex x y z)
	// -----------------------------------------------------------------------
	env.AddFunction("vertex", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		xyz, err := toFloats("vertex", args, "x", "y", "z")
		if err != nil {
			return zygo.SexpNull, err
		}
		v := b.mesh().AddVertex(mgl32.Vec3{float32(xyz[0]), float32(xyz[1]), float32(xyz[2])})
		return sexpInt(int(v)), nil
	})

	// -----------------------------------------------------------------------
	// (face a b c ...) or (face (list a b c ...))
	// -----------------------------------------------------------------------
	env.AddFunction("face", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		items := args
		if len(args) == 1 {
			list, err := sexpListToSlice(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("face: %w", err)
			}
			items = list
		}
		vs := make([]control.VertexIndex, 0, len(items))
		for i, it := range items {
			v, err := toInt(it)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("face: corner %d: %w", i, err)
			}
			vs = append(vs, control.VertexIndex(v))
		}
		return b.addFace(vs), nil
	})

	// -----------------------------------------------------------------------
	// (crease a b) / (crease a b false)
	// -----------------------------------------------------------------------
	env.AddFunction("crease", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 2 && len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("crease requires two vertices and an optional flag")
		}
		e, err := b.edge("crease", args[0], args[1])
		if err != nil {
			return zygo.SexpNull, err
		}
		on := true
		if len(args) == 3 {
			if on, err = toBool(args[2]); err != nil {
				return zygo.SexpNull, fmt.Errorf("crease: flag: %w", err)
			}
		}
		if err := b.mesh().SetEdgeCrease(e, on); err != nil {
			return zygo.SexpNull, fmt.Errorf("crease: %w", err)
		}
		return sexpInt(int(e)), nil
	})

	// -----------------------------------------------------------------------
	// (sharpness a b s)
	// -----------------------------------------------------------------------
	env.AddFunction("sharpness", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 3 {
			return zygo.SexpNull, fmt.Errorf("sharpness requires two vertices and a value")
		}
		e, err := b.edge("sharpness", args[0], args[1])
		if err != nil {
			return zygo.SexpNull, err
		}
		s, err := toFloat64(args[2])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("sharpness: value: %w", err)
		}
		if err := b.mesh().SetEdgeSharpness(e, float32(s)); err != nil {
			return zygo.SexpNull, fmt.Errorf("sharpness: %w", err)
		}
		return sexpInt(int(e)), nil
	})

	// -----------------------------------------------------------------------
	// (corner v) / (corner v :sharpness 2)
	// -----------------------------------------------------------------------
	env.AddFunction("corner", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 1 {
			return zygo.SexpNull, fmt.Errorf("corner requires a vertex argument")
		}
		v, err := toInt(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("corner: %w", err)
		}
		m := b.mesh()
		if err := m.SetCorner(control.VertexIndex(v), true); err != nil {
			return zygo.SexpNull, fmt.Errorf("corner: %w", err)
		}
		if sv, ok := pa.kw["sharpness"]; ok {
			s, err := toFloat64(sv)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("corner: sharpness: %w", err)
			}
			if err := m.SetVertexSharpness(control.VertexIndex(v), float32(s)); err != nil {
				return zygo.SexpNull, fmt.Errorf("corner: %w", err)
			}
		}
		return sexpInt(v), nil
	})
}

// cubeFaces lists outward-wound quads over the corners produced by cube.
var cubeFaces = [6][4]control.VertexIndex{
	{0, 3, 2, 1}, {4, 5, 6, 7},
	{0, 1, 5, 4}, {1, 2, 6, 5},
	{2, 3, 7, 6}, {3, 0, 4, 7},
}

func (b *builder) registerCageBuiltins(env *zygo.Zlisp) {

	// -----------------------------------------------------------------------
	// (cube size) -> index of the first of its 8 vertices
	// -----------------------------------------------------------------------
	env.AddFunction("cube", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		s, err := toFloats("cube", args, "size")
		if err != nil {
			return zygo.SexpNull, err
		}
		if s[0] <= 0 {
			return zygo.SexpNull, fmt.Errorf("cube: size must be positive, got %g", s[0])
		}
		h := float32(s[0] / 2)
		m := b.mesh()
		base := control.VertexIndex(m.NumVertices())
		for _, p := range []mgl32.Vec3{
			{-h, -h, -h}, {h, -h, -h}, {h, h, -h}, {-h, h, -h},
			{-h, -h, h}, {h, -h, h}, {h, h, h}, {-h, h, h},
		} {
			m.AddVertex(p)
		}
		for _, f := range cubeFaces {
			vs := make([]control.VertexIndex, len(f))
			for i, v := range f {
				vs[i] = base + v
			}
			b.addFace(vs)
		}
		return sexpInt(int(base)), nil
	})

	// -----------------------------------------------------------------------
	// (grid nx ny :size 2) -> index of the first vertex; quads face +Y
	// -----------------------------------------------------------------------
	env.AddFunction("grid", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		pa := parseArgs(args)
		if len(pa.positional) != 2 {
			return zygo.SexpNull, fmt.Errorf("grid requires nx and ny")
		}
		nx, err := toInt(pa.positional[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: nx: %w", err)
		}
		ny, err := toInt(pa.positional[1])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("grid: ny: %w", err)
		}
		if nx < 1 || ny < 1 || nx*ny > 1<<20 {
			return zygo.SexpNull, fmt.Errorf("grid: %dx%d is not a usable size", nx, ny)
		}
		size := 1.0
		if v, ok := pa.kw["size"]; ok {
			if size, err = toFloat64(v); err != nil {
				return zygo.SexpNull, fmt.Errorf("grid: size: %w", err)
			}
		}

		m := b.mesh()
		m.Reserve((nx+1)*(ny+1), nx*ny)
		base := control.VertexIndex(m.NumVertices())
		for j := 0; j <= ny; j++ {
			for i := 0; i <= nx; i++ {
				x := (float64(i)/float64(nx) - 0.5) * size
				z := (float64(j)/float64(ny) - 0.5) * size
				m.AddVertex(mgl32.Vec3{float32(x), 0, float32(z)})
			}
		}
		row := control.VertexIndex(nx + 1)
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				a := base + control.VertexIndex(j)*row + control.VertexIndex(i)
				b.addFace([]control.VertexIndex{a, a + row, a + row + 1, a + 1})
			}
		}
		return sexpInt(int(base)), nil
	})
}

func (b *builder) registerSolidBuiltins(env *zygo.Zlisp) {
	k := b.kernel

	primitive := func(fn string, names []string, build func(v []float64) (kernel.Solid, error)) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			v, err := toFloats(fn, args, names...)
			if err != nil {
				return zygo.SexpNull, err
			}
			s, err := build(v)
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			return &sexpSolid{solid: s, desc: fmt.Sprintf("%s %v", fn, v)}, nil
		})
	}

	// (box x y z) (cylinder h r) (sphere r)
	primitive("box", []string{"x", "y", "z"}, func(v []float64) (kernel.Solid, error) { return k.Box(v[0], v[1], v[2]) })
	primitive("cylinder", []string{"height", "radius"}, func(v []float64) (kernel.Solid, error) { return k.Cylinder(v[0], v[1]) })
	primitive("sphere", []string{"radius"}, func(v []float64) (kernel.Solid, error) { return k.Sphere(v[0]) })

	transform := func(fn string, apply func(s kernel.Solid, x, y, z float64) kernel.Solid) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) != 4 {
				return zygo.SexpNull, fmt.Errorf("%s requires a solid and x y z", fn)
			}
			s, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: %w", fn, err)
			}
			v, err := toFloats(fn, args[1:], "x", "y", "z")
			if err != nil {
				return zygo.SexpNull, err
			}
			return &sexpSolid{
				solid: apply(s.solid, v[0], v[1], v[2]),
				desc:  fmt.Sprintf("%s %v", fn, v),
			}, nil
		})
	}

	// (translate s x y z) (rotate s x y z)
	transform("translate", k.Translate)
	transform("rotate", k.Rotate)

	boolean := func(fn string, apply func(a, b kernel.Solid) kernel.Solid) {
		env.AddFunction(fn, func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
			if len(args) < 2 {
				return zygo.SexpNull, fmt.Errorf("%s requires at least two solids", fn)
			}
			acc, err := toSolid(args[0])
			if err != nil {
				return zygo.SexpNull, fmt.Errorf("%s: operand 0: %w", fn, err)
			}
			out := acc.solid
			for i, a := range args[1:] {
				s, err := toSolid(a)
				if err != nil {
					return zygo.SexpNull, fmt.Errorf("%s: operand %d: %w", fn, i+1, err)
				}
				out = apply(out, s.solid)
			}
			return &sexpSolid{solid: out, desc: fmt.Sprintf("%s of %d", fn, len(args))}, nil
		})
	}

	// (union a b ...) (difference a b ...) (intersection a b ...)
	boolean("union", k.Union)
	boolean("difference", k.Difference)
	boolean("intersection", k.Intersection)

	// -----------------------------------------------------------------------
	// (weld solid) -> number of faces added to the current mesh
	// -----------------------------------------------------------------------
	env.AddFunction("weld", func(env *zygo.Zlisp, name string, args []zygo.Sexp) (zygo.Sexp, error) {
		if len(args) != 1 {
			return zygo.SexpNull, fmt.Errorf("weld requires a solid")
		}
		s, err := toSolid(args[0])
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("weld: %w", err)
		}
		soup, err := k.ToSoup(s.solid)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("weld: %w", err)
		}
		stats, err := weld.Into(b.mesh(), soup, b.weld)
		if err != nil {
			return zygo.SexpNull, fmt.Errorf("weld: %w", err)
		}
		if stats.RejectedTotal() > 0 {
			b.warn(weld.CodeRejectedTriangles, "%s", stats)
		}
		return sexpInt(stats.Faces), nil
	})
}
