package control

import (
	"errors"
	"testing"

	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingleTriangle(t *testing.T) {
	m := newTriangle(t)

	assert.Equal(t, 3, m.NumVertices())
	assert.Equal(t, 1, m.NumFaces())
	assert.Equal(t, 3, m.NumEdges())
	assert.Equal(t, 3, m.NumHalfEdges())
	for i, he := range m.HalfEdges() {
		assert.True(t, he.IsBoundary(), "half-edge %d", i)
		assert.Equal(t, FaceIndex(0), he.Face)
	}
	assert.Equal(t, Face{Edge: 0, Valence: 3}, m.Face(0))
}

func TestSharedEdgeBecomesTwins(t *testing.T) {
	m := newTwoTriangles(t)

	assert.Equal(t, 2, m.NumFaces())
	assert.Equal(t, 5, m.NumEdges())
	assert.Equal(t, 6, m.NumHalfEdges())

	h12 := m.FindHalfEdge(1, 2)
	h21 := m.FindHalfEdge(2, 1)
	require.NotEqual(t, HalfEdgeIndex(Invalid), h12)
	require.NotEqual(t, HalfEdgeIndex(Invalid), h21)
	assert.Equal(t, h21, m.HalfEdge(h12).Twin)
	assert.Equal(t, h12, m.HalfEdge(h21).Twin)
	assert.Equal(t, m.HalfEdge(h12).Edge, m.HalfEdge(h21).Edge)
	assert.Equal(t, m.FindEdge(1, 2), m.FindEdge(2, 1))
}

func TestAddFaceRejections(t *testing.T) {
	tests := []struct {
		name    string
		face    []VertexIndex
		code    diagnostics.Code
		sentry  error
		context string
	}{
		{"too few", []VertexIndex{0, 1}, CodeFaceTooFewVertices, ErrTooFewVertices, "got 2"},
		{"empty", nil, CodeFaceTooFewVertices, ErrTooFewVertices, "got 0"},
		{"out of range", []VertexIndex{0, 1, 9}, CodeInvalidVertexIndex, ErrVertexOutOfRange, "position 2"},
		{"sentinel index", []VertexIndex{0, Invalid, 1}, CodeInvalidVertexIndex, ErrVertexOutOfRange, "position 1"},
		{"repeated vertex", []VertexIndex{3, 1, 3}, CodeDuplicateVertexInFace, ErrDuplicateVertex, "positions 0 and 2"},
		{"duplicate directed edge", []VertexIndex{0, 1, 3}, CodeDuplicateDirectedEdge, ErrDuplicateDirectedEdge, "position 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTriangle(t)
			m.AddVertex(mgl32.Vec3{1, 1, 0})
			before := stateOf(m)

			f, err := m.AddFace(tt.face...)
			require.Error(t, err)
			assert.Equal(t, FaceIndex(Invalid), f)
			assert.True(t, errors.Is(err, tt.sentry))
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Contains(t, err.Error(), tt.context)
			assert.Equal(t, before, stateOf(m), "rejected face must not mutate the mesh")
		})
	}
}

func TestThirdFaceOnEdgeIsNonManifold(t *testing.T) {
	m := newTwoTriangles(t)
	m.AddVertex(mgl32.Vec3{2, 0, 0})
	before := stateOf(m)

	// 1->2 is already paired with 2->1.
	_, err := m.AddFace(1, 2, 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNonManifoldEdge)
	assert.Contains(t, err.Error(), "position 0")
	assert.Equal(t, before, stateOf(m))

	// The reverse direction is twinned too.
	_, err = m.AddFace(2, 1, 4)
	assert.Equal(t, CodeNonManifoldEdge, CodeOf(err))
	assert.Equal(t, before, stateOf(m))
}

func TestRejectionReportedToSink(t *testing.T) {
	sink := diagnostics.NewContext(diagnostics.ModeErrorsOnly)
	m := newTriangle(t, WithDiagnostics(sink))
	m.AddVertex(mgl32.Vec3{1, 1, 0})

	_, err := m.AddFace(0, 1, 3)
	require.Error(t, err)

	last, ok := sink.LastIssue()
	require.True(t, ok)
	assert.Equal(t, diagnostics.SeverityError, last.Severity)
	assert.Equal(t, CodeDuplicateDirectedEdge, last.Code)
	assert.Contains(t, last.Context, "position 0")
}

func TestDiagnosticsDoNotChangeResults(t *testing.T) {
	build := func(opts ...Option) *Mesh {
		m := NewMesh(opts...)
		for i := 0; i < 6; i++ {
			m.AddVertex(mgl32.Vec3{float32(i), 0, 0})
		}
		m.AddFace(0, 1, 2)
		m.AddFace(0, 1, 3)
		m.AddFace(2, 1, 4, 5)
		m.AddFace(1, 2)
		return m
	}
	plain := build()
	full := build(WithDiagnostics(diagnostics.NewContext(diagnostics.ModeFull)))

	assert.Equal(t, stateOf(plain), stateOf(full))
	assert.Equal(t, plain.Validate().Valid(), full.Validate().Valid())
	assert.Equal(t, plain.BuildCache(), full.BuildCache())
}

func TestStructuralLinkProperties(t *testing.T) {
	meshes := map[string]*Mesh{
		"triangle": newTriangle(t),
		"two":      newTwoTriangles(t),
		"fan":      newClosedFan(t),
		"cube":     newCube(t),
		"grid":     newGrid(t, 3, 2),
	}
	for name, m := range meshes {
		t.Run(name, func(t *testing.T) {
			hes := m.HalfEdges()
			for i, he := range hes {
				h := HalfEdgeIndex(i)
				assert.Equal(t, h, hes[he.Next].Prev, "next/prev of %d", i)
				assert.Equal(t, h, hes[he.Prev].Next, "prev/next of %d", i)
				if he.Twin != Invalid {
					assert.Equal(t, h, hes[he.Twin].Twin, "twin of %d", i)
				}
				// Round trip through the directed index.
				from := m.FromVertex(h)
				assert.Equal(t, h, m.FindHalfEdge(from, he.To))
				assert.Equal(t, from, m.FromVertex(m.FindHalfEdge(from, he.To)))
			}
			for fi, f := range m.Faces() {
				h := f.Edge
				for i := uint32(0); i < f.Valence; i++ {
					assert.Equal(t, FaceIndex(fi), hes[h].Face)
					h = hes[h].Next
				}
				assert.Equal(t, f.Edge, h, "face %d loop must close after valence steps", fi)
			}
		})
	}
}

func TestFindMissing(t *testing.T) {
	m := newTriangle(t)
	assert.Equal(t, HalfEdgeIndex(Invalid), m.FindHalfEdge(0, 0))
	assert.Equal(t, EdgeIndex(Invalid), m.FindEdge(5, 6))
	// 1->0 has no half-edge yet but the edge exists.
	assert.Equal(t, HalfEdgeIndex(Invalid), m.FindHalfEdge(1, 0))
	assert.Equal(t, m.FindEdge(0, 1), m.FindEdge(1, 0))
	assert.Equal(t, VertexIndex(Invalid), m.FromVertex(42))
}

func TestVertexValence(t *testing.T) {
	tests := []struct {
		name string
		mesh func(*testing.T) *Mesh
		v    VertexIndex
		want int
	}{
		{"triangle corner", func(t *testing.T) *Mesh { return newTriangle(t) }, 0, 2},
		{"shared boundary vertex", func(t *testing.T) *Mesh { return newTwoTriangles(t) }, 1, 3},
		{"fan center", newClosedFan, 0, 4},
		{"fan rim", newClosedFan, 1, 3},
		{"cube corner", newCube, 6, 3},
		{"grid interior", func(t *testing.T) *Mesh { return newGrid(t, 2, 2) }, 4, 4},
		{"grid side", func(t *testing.T) *Mesh { return newGrid(t, 2, 2) }, 1, 3},
		{"grid corner", func(t *testing.T) *Mesh { return newGrid(t, 2, 2) }, 8, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.mesh(t)
			got, err := m.VertexValence(tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, m.Cache().Valence(tt.v), "mesh and cache valence must agree")
		})
	}
}

func TestIsolatedVertex(t *testing.T) {
	m := newTriangle(t)
	v := m.AddVertex(mgl32.Vec3{5, 5, 5})

	n, err := m.VertexValence(v)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, m.IsBoundaryVertex(v))
	assert.True(t, m.Vertex(v).Isolated())

	_, err = m.VertexValence(99)
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestIsBoundaryVertex(t *testing.T) {
	fan := newClosedFan(t)
	assert.False(t, fan.IsBoundaryVertex(0))
	assert.True(t, fan.IsBoundaryVertex(1))

	cube := newCube(t)
	for v := 0; v < cube.NumVertices(); v++ {
		assert.False(t, cube.IsBoundaryVertex(VertexIndex(v)))
	}
}

func TestCorruptStarHitsStepCap(t *testing.T) {
	sink := diagnostics.NewContext(diagnostics.ModeErrorsOnly)
	m := NewMesh(WithDiagnostics(sink))
	for i := 0; i < 5; i++ {
		m.AddVertex(mgl32.Vec3{float32(i), 0, 0})
	}
	mustFace(t, m, 0, 1, 2)
	mustFace(t, m, 0, 2, 3)
	mustFace(t, m, 0, 3, 4)
	mustFace(t, m, 0, 4, 1)

	// The star walk runs 0->1, 0->4, 0->3, 0->2. Send 2->0 back to 0->3 so
	// it cycles without ever returning to 0->1.
	h02 := m.FindHalfEdge(0, 2)
	h03 := m.FindHalfEdge(0, 3)
	m.halfEdges[m.halfEdges[h02].Twin].Next = h03

	n, err := m.VertexValence(0)
	assert.ErrorIs(t, err, ErrTraversalLimit)
	assert.Equal(t, -1, n)
	assert.True(t, m.IsBoundaryVertex(0))

	last, ok := sink.LastIssue()
	require.True(t, ok)
	assert.Equal(t, CodeStarWalkLimit, last.Code)
	assert.Equal(t, diagnostics.SeverityWarning, last.Severity)
}

func TestFaceVertices(t *testing.T) {
	m := newCube(t)
	assert.Equal(t, []VertexIndex{1, 2, 6, 5}, m.FaceVertices(3, nil))
	assert.Empty(t, m.FaceVertices(99, nil))

	buf := make([]VertexIndex, 0, 8)
	buf = m.FaceVertices(0, buf)
	buf = m.FaceVertices(1, buf)
	assert.Equal(t, []VertexIndex{0, 3, 2, 1, 4, 5, 6, 7}, buf)
}

func TestEdgeTags(t *testing.T) {
	m := newTriangle(t)
	e := m.FindEdge(0, 1)

	require.NoError(t, m.SetEdgeCrease(e, true))
	assert.Equal(t, Edge{Tag: EdgeCrease, Sharpness: 1}, m.Edge(e))

	require.NoError(t, m.SetEdgeSharpness(e, 0.5))
	assert.Equal(t, EdgeSemi, m.Edge(e).Tag)
	assert.InDelta(t, 0.5, m.Edge(e).Sharpness, 1e-6)

	require.NoError(t, m.SetEdgeSharpness(e, -2))
	assert.Equal(t, Edge{Tag: EdgeSmooth}, m.Edge(e))

	require.NoError(t, m.SetEdgeCrease(e, true))
	require.NoError(t, m.SetEdgeCrease(e, false))
	assert.Equal(t, EdgeSmooth, m.Edge(e).Tag)
	assert.Equal(t, "SMOOTH", m.Edge(e).Tag.String())

	assert.ErrorIs(t, m.SetEdgeCrease(99, true), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.SetEdgeSharpness(Invalid, 1), ErrIndexOutOfRange)
}

func TestVertexEdits(t *testing.T) {
	m := newTriangle(t)
	c := m.Cache()
	gen := m.Generation()

	require.NoError(t, m.SetPosition(1, mgl32.Vec3{3, 0, 0}))
	require.NoError(t, m.SetCorner(1, true))
	require.NoError(t, m.SetVertexSharpness(1, -1))

	assert.Equal(t, mgl32.Vec3{3, 0, 0}, m.Position(1))
	assert.True(t, m.Vertex(1).Corner)
	assert.Zero(t, m.Vertex(1).Sharpness)
	assert.True(t, c.IsValid(), "geometry edits keep the cache")
	assert.Equal(t, gen, m.Generation())

	assert.ErrorIs(t, m.SetPosition(7, mgl32.Vec3{}), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.SetCorner(7, true), ErrIndexOutOfRange)
	assert.ErrorIs(t, m.SetVertexSharpness(7, 1), ErrIndexOutOfRange)
}

func TestTopologyChangeInvalidatesCache(t *testing.T) {
	m := newTriangle(t)
	c := m.Cache()
	require.True(t, c.IsValid())

	m.AddVertex(mgl32.Vec3{1, 1, 0})
	assert.False(t, c.IsValid())
	assert.Panics(t, func() { c.Valence(0) })

	// Lazily rebuilt on next access.
	assert.Equal(t, 4, m.Cache().NumVertices())

	mustFace(t, m, 1, 3, 2)
	assert.False(t, c.IsValid())
	assert.Equal(t, 2, m.Cache().NumFaces())
}

func TestClear(t *testing.T) {
	sink := diagnostics.NewContext(diagnostics.ModeFull)
	m := NewMesh(WithDiagnostics(sink))
	m.AddVertex(mgl32.Vec3{})
	m.AddVertex(mgl32.Vec3{1, 0, 0})
	m.AddVertex(mgl32.Vec3{0, 1, 0})
	mustFace(t, m, 0, 1, 2)
	m.BuildCache()

	m.Clear()
	assert.Zero(t, m.NumVertices())
	assert.Zero(t, m.NumHalfEdges())
	assert.Zero(t, m.NumEdges())
	assert.Zero(t, m.NumFaces())
	assert.Empty(t, m.Positions())
	assert.Equal(t, HalfEdgeIndex(Invalid), m.FindHalfEdge(0, 1))
	assert.False(t, m.cache.IsValid())

	for _, mem := range sink.Memory() {
		if mem.Name != "cache" {
			assert.Zero(t, mem.Allocated, "category %s", mem.Name)
		}
	}

	// The mesh is reusable.
	m.AddVertex(mgl32.Vec3{})
	m.AddVertex(mgl32.Vec3{1, 0, 0})
	m.AddVertex(mgl32.Vec3{0, 1, 0})
	mustFace(t, m, 0, 1, 2)
	assert.True(t, m.Validate().Valid())
}

func TestReserveRecordsAllocations(t *testing.T) {
	sink := diagnostics.NewContext(diagnostics.ModeFull)
	m := NewMesh(WithDiagnostics(sink))
	m.Reserve(100, 80)

	assert.GreaterOrEqual(t, cap(m.vertices), 100)
	assert.GreaterOrEqual(t, cap(m.halfEdges), 320)
	assert.GreaterOrEqual(t, m.MemoryUsage(), 100*sizeofVertex)

	names := map[string]bool{}
	for _, mem := range sink.Memory() {
		names[mem.Name] = true
	}
	assert.True(t, names[categoryVertices])
	assert.True(t, names[categoryFaces])
}

func TestAddFaceTimedWhenProfiling(t *testing.T) {
	sink := diagnostics.NewContext(diagnostics.ModeErrorsAndProfiling)
	m := newCube(t)
	m2 := NewMesh(WithDiagnostics(sink))
	for i := 0; i < m.NumVertices(); i++ {
		m2.AddVertex(m.Position(VertexIndex(i)))
	}
	for f := 0; f < m.NumFaces(); f++ {
		mustFace(t, m2, m.FaceVertices(FaceIndex(f), nil)...)
	}
	m2.BuildCache()

	calls := map[string]int{}
	for _, tm := range sink.Timings() {
		calls[tm.Name] = tm.Calls
	}
	assert.Equal(t, 6, calls["Mesh.AddFace"])
	assert.Equal(t, 1, calls["TopologyCache.Build"])
}

func TestLargeFaceDuplicateDetection(t *testing.T) {
	m := NewMesh()
	vs := make([]VertexIndex, 20)
	for i := range vs {
		vs[i] = m.AddVertex(mgl32.Vec3{float32(i), 0, 0})
	}
	f, err := m.AddFace(vs...)
	require.NoError(t, err)
	assert.Equal(t, uint32(20), m.Face(f).Valence)

	m2 := NewMesh()
	for i := 0; i < 20; i++ {
		m2.AddVertex(mgl32.Vec3{})
	}
	dup := append([]VertexIndex{}, vs...)
	dup[17] = 4
	_, err = m2.AddFace(dup...)
	assert.ErrorIs(t, err, ErrDuplicateVertex)
	assert.Contains(t, err.Error(), "positions 4 and 17")
}
