// Package weld turns a kernel triangle soup into a control mesh. Corners
// closer than the tolerance are merged into one vertex and every triangle is
// offered to Mesh.AddFace, so the result satisfies every mesh invariant:
// triangles that would break manifoldness are dropped and counted instead.
package weld

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"

	"github.com/chazu/subdiv/pkg/control"
	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/kernel"
	"github.com/go-gl/mathgl/mgl32"
)

// DefaultTolerance is the merge distance used when Options.Tolerance is zero.
const DefaultTolerance = 1e-4

// CodeRejectedTriangles is reported once per weld that dropped triangles.
const CodeRejectedTriangles diagnostics.Code = "WELD_REJECTED_TRIANGLES"

// ErrInvalidTolerance is returned for a negative or non-finite tolerance.
var ErrInvalidTolerance = errors.New("weld: tolerance must be positive and finite")

// Options controls a weld.
type Options struct {
	// Tolerance is the edge length of the quantization grid. Corners that fall
	// in the same cell become one vertex.
	Tolerance float32
}

// Stats summarizes one weld.
type Stats struct {
	Triangles  int // offered
	Faces      int // accepted
	Vertices   int // created
	Degenerate int // collapsed to fewer than three distinct corners
	Rejected   map[diagnostics.Code]int
}

// RejectedTotal returns the number of triangles AddFace refused.
func (s Stats) RejectedTotal() int {
	n := 0
	for _, c := range s.Rejected {
		n += c
	}
	return n
}

// String renders a one-line summary, codes in sorted order.
func (s Stats) String() string {
	out := fmt.Sprintf("%d/%d triangles welded, %d vertices, %d degenerate",
		s.Faces, s.Triangles, s.Vertices, s.Degenerate)
	for _, code := range slices.Sorted(maps.Keys(s.Rejected)) {
		out += fmt.Sprintf(", %s=%d", code, s.Rejected[code])
	}
	return out
}

type cell [3]int64

type welder struct {
	m     *control.Mesh
	inv   float64
	cells map[cell]control.VertexIndex
}

func (w *welder) vertex(p mgl32.Vec3) (control.VertexIndex, bool) {
	var c cell
	for i := 0; i < 3; i++ {
		c[i] = int64(math.Round(float64(p[i]) * w.inv))
	}
	if v, ok := w.cells[c]; ok {
		return v, false
	}
	v := w.m.AddVertex(p)
	w.cells[c] = v
	return v, true
}

// Into welds soup into m, appending to whatever m already holds. Vertices
// already in m are never merged with soup corners.
func Into(m *control.Mesh, soup *kernel.Soup, opts Options) (Stats, error) {
	tol := float64(opts.Tolerance)
	if tol == 0 {
		tol = DefaultTolerance
	}
	if !(tol > 0) || math.IsInf(tol, 0) {
		return Stats{}, fmt.Errorf("weld: tolerance %g: %w", tol, ErrInvalidTolerance)
	}

	stats := Stats{Rejected: make(map[diagnostics.Code]int)}
	if soup == nil || soup.IsEmpty() {
		return stats, nil
	}

	n := soup.TriangleCount()
	// A closed triangle mesh has about half as many vertices as triangles.
	m.Reserve(n/2+3, n)

	w := &welder{m: m, inv: 1 / tol, cells: make(map[cell]control.VertexIndex, n/2+3)}
	var vs [3]control.VertexIndex
	for _, t := range soup.Triangles {
		stats.Triangles++
		for j, p := range t {
			v, created := w.vertex(p)
			if created {
				stats.Vertices++
			}
			vs[j] = v
		}
		if vs[0] == vs[1] || vs[1] == vs[2] || vs[2] == vs[0] {
			stats.Degenerate++
			continue
		}
		if _, err := m.AddFace(vs[:]...); err != nil {
			stats.Rejected[control.CodeOf(err)]++
			continue
		}
		stats.Faces++
	}

	if r := stats.RejectedTotal(); r > 0 {
		m.Diagnostics().AddError(diagnostics.SeverityWarning, CodeRejectedTriangles,
			fmt.Sprintf("%d of %d triangles rejected", r, stats.Triangles), stats.String())
	}
	return stats, nil
}

// Weld welds soup into a new mesh built with meshOpts.
func Weld(soup *kernel.Soup, opts Options, meshOpts ...control.Option) (*control.Mesh, Stats, error) {
	m := control.NewMesh(meshOpts...)
	stats, err := Into(m, soup, opts)
	if err != nil {
		return nil, stats, err
	}
	return m, stats, nil
}
