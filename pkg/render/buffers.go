package render

import (
	"errors"
	"fmt"

	"github.com/chazu/subdiv/pkg/control"
)

// ErrCorruptMesh is returned when the cache exposes a face or edge that
// cannot be rendered. Run Mesh.Validate for the details.
var ErrCorruptMesh = errors.New("render: mesh topology is corrupt")

// Buffers is a control mesh flattened for rendering. Positions and Normals
// have 3 floats per vertex; Triangles has 3 indices per triangle; Lines and
// Creases have 2 indices per segment.
type Buffers struct {
	Name      string    `json:"name"`
	Positions []float32 `json:"positions"` // [x0,y0,z0, x1,y1,z1, ...]
	Normals   []float32 `json:"normals"`   // [nx0,ny0,nz0, ...]
	Triangles []uint32  `json:"triangles"` // [i0,i1,i2, ...]
	Lines     []uint32  `json:"lines"`     // every edge
	Creases   []uint32  `json:"creases"`   // non-smooth edges only
}

// VertexCount returns the number of vertices.
func (b *Buffers) VertexCount() int {
	return len(b.Positions) / 3
}

// TriangleCount returns the number of triangles.
func (b *Buffers) TriangleCount() int {
	return len(b.Triangles) / 3
}

// LineCount returns the number of wireframe segments.
func (b *Buffers) LineCount() int {
	return len(b.Lines) / 2
}

// IsEmpty returns true if there is nothing to draw.
func (b *Buffers) IsEmpty() bool {
	return len(b.Triangles) == 0 && len(b.Lines) == 0
}

// Build flattens m. The mesh's cache is rebuilt first if it is stale.
func Build(m *control.Mesh) (*Buffers, error) {
	c := m.Cache()
	nv := c.NumVertices()
	if len(m.Positions()) != nv {
		return nil, fmt.Errorf("render: %d positions for %d vertices: %w", len(m.Positions()), nv, ErrCorruptMesh)
	}

	// Corners are checked before any normal is computed: a corrupt loop can
	// carry Invalid corners that would index past the positions.
	tris, err := triangulate(nv, c.NumFaces(), c.FaceVertices)
	if err != nil {
		return nil, err
	}

	b := &Buffers{
		Positions: make([]float32, 0, nv*3),
		Normals:   make([]float32, 0, nv*3),
		Triangles: tris,
		Lines:     make([]uint32, 0, c.NumEdges()*2),
	}
	for _, p := range m.Positions() {
		b.Positions = append(b.Positions, p[0], p[1], p[2])
	}
	for _, n := range VertexNormals(m, c) {
		b.Normals = append(b.Normals, n[0], n[1], n[2])
	}

	for e := 0; e < c.NumEdges(); e++ {
		v0, v1 := c.EdgeVertices(control.EdgeIndex(e))
		if v0 == control.Invalid {
			continue
		}
		b.Lines = append(b.Lines, uint32(v0), uint32(v1))
		if m.Edge(control.EdgeIndex(e)).Tag != control.EdgeSmooth {
			b.Creases = append(b.Creases, uint32(v0), uint32(v1))
		}
	}
	return b, nil
}

// triangulate fans each of nf faces from its first corner. It fails with
// ErrCorruptMesh on a face with fewer than three corners or a corner outside
// [0, nv).
func triangulate(nv, nf int, corners func(control.FaceIndex) []control.VertexIndex) ([]uint32, error) {
	var tris []uint32
	for f := 0; f < nf; f++ {
		vs := corners(control.FaceIndex(f))
		if len(vs) < 3 {
			return nil, fmt.Errorf("render: face %d has %d corners: %w", f, len(vs), ErrCorruptMesh)
		}
		for _, v := range vs {
			if int(v) >= nv {
				return nil, fmt.Errorf("render: face %d corner %d: %w", f, v, ErrCorruptMesh)
			}
		}
		for i := 1; i+1 < len(vs); i++ {
			tris = append(tris, uint32(vs[0]), uint32(vs[i]), uint32(vs[i+1]))
		}
	}
	return tris, nil
}
