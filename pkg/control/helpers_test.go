package control

import (
	"slices"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

func mustFace(t *testing.T, m *Mesh, vs ...VertexIndex) FaceIndex {
	t.Helper()
	f, err := m.AddFace(vs...)
	require.NoError(t, err)
	return f
}

// newTriangle builds scenario A: one triangle in the XY plane.
func newTriangle(t *testing.T, opts ...Option) *Mesh {
	t.Helper()
	m := NewMesh(opts...)
	m.AddVertex(mgl32.Vec3{0, 0, 0})
	m.AddVertex(mgl32.Vec3{1, 0, 0})
	m.AddVertex(mgl32.Vec3{0, 1, 0})
	mustFace(t, m, 0, 1, 2)
	return m
}

// newTwoTriangles builds scenario B: two triangles sharing edge 1-2.
func newTwoTriangles(t *testing.T, opts ...Option) *Mesh {
	t.Helper()
	m := newTriangle(t, opts...)
	m.AddVertex(mgl32.Vec3{1, 1, 0})
	mustFace(t, m, 1, 3, 2)
	return m
}

// newClosedFan builds scenario E: four triangles around vertex 0, the last
// closing back onto the first.
func newClosedFan(t *testing.T) *Mesh {
	t.Helper()
	m := NewMesh()
	m.AddVertex(mgl32.Vec3{0, 0, 0})
	m.AddVertex(mgl32.Vec3{1, 0, 0})
	m.AddVertex(mgl32.Vec3{0, 1, 0})
	m.AddVertex(mgl32.Vec3{-1, 0, 0})
	m.AddVertex(mgl32.Vec3{0, -1, 0})
	mustFace(t, m, 0, 1, 2)
	mustFace(t, m, 0, 2, 3)
	mustFace(t, m, 0, 3, 4)
	mustFace(t, m, 0, 4, 1)
	return m
}

// newBowtie builds two triangles that share vertex 0 and nothing else.
func newBowtie(t *testing.T) *Mesh {
	t.Helper()
	m := NewMesh()
	m.AddVertex(mgl32.Vec3{0, 0, 0})
	m.AddVertex(mgl32.Vec3{1, -1, 0})
	m.AddVertex(mgl32.Vec3{1, 1, 0})
	m.AddVertex(mgl32.Vec3{-1, 1, 0})
	m.AddVertex(mgl32.Vec3{-1, -1, 0})
	mustFace(t, m, 0, 1, 2)
	mustFace(t, m, 0, 3, 4)
	return m
}

// newCube builds a closed unit cube of outward-wound quads.
func newCube(t *testing.T) *Mesh {
	t.Helper()
	m := NewMesh()
	for _, p := range []mgl32.Vec3{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	} {
		m.AddVertex(p)
	}
	for _, f := range [][]VertexIndex{
		{0, 3, 2, 1}, {4, 5, 6, 7},
		{0, 1, 5, 4}, {1, 2, 6, 5},
		{2, 3, 7, 6}, {3, 0, 4, 7},
	} {
		mustFace(t, m, f...)
	}
	return m
}

// newGrid builds an nx by ny grid of quads; vertex (i, j) is j*(nx+1)+i.
func newGrid(t *testing.T, nx, ny int) *Mesh {
	t.Helper()
	m := NewMesh()
	for j := 0; j <= ny; j++ {
		for i := 0; i <= nx; i++ {
			m.AddVertex(mgl32.Vec3{float32(i), float32(j), 0})
		}
	}
	row := VertexIndex(nx + 1)
	for j := 0; j < ny; j++ {
		for i := 0; i < nx; i++ {
			a := VertexIndex(j)*row + VertexIndex(i)
			mustFace(t, m, a, a+1, a+row+1, a+row)
		}
	}
	return m
}

// meshState is a deep copy of the mesh arrays used to prove that an
// operation did not mutate anything.
type meshState struct {
	vertices  []Vertex
	halfEdges []HalfEdge
	edges     []Edge
	faces     []Face
	indexLen  int
}

func stateOf(m *Mesh) meshState {
	return meshState{
		vertices:  slices.Clone(m.vertices),
		halfEdges: slices.Clone(m.halfEdges),
		edges:     slices.Clone(m.edges),
		faces:     slices.Clone(m.faces),
		indexLen:  m.index.len(),
	}
}
