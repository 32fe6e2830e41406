package control

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	sizeofVertex   = int(unsafe.Sizeof(Vertex{}))
	sizeofHalfEdge = int(unsafe.Sizeof(HalfEdge{}))
	sizeofEdge     = int(unsafe.Sizeof(Edge{}))
	sizeofFace     = int(unsafe.Sizeof(Face{}))
	sizeofPosition = int(unsafe.Sizeof(mgl32.Vec3{}))
)

// Allocation categories reported to the diagnostics sink.
const (
	categoryVertices  = "vertices"
	categoryHalfEdges = "halfedges"
	categoryEdges     = "edges"
	categoryFaces     = "faces"
)

// Mesh is a half-edge control mesh. It owns one growable array per element
// kind plus a derived directed-edge index, and the TopologyCache built from
// it. A Mesh is not safe for concurrent mutation.
type Mesh struct {
	vertices  []Vertex
	halfEdges []HalfEdge
	edges     []Edge
	faces     []Face
	positions []mgl32.Vec3

	index      directedIndex
	generation uint64
	cache      *TopologyCache
	sink       diagnostics.Sink
}

// Option configures a Mesh.
type Option func(*Mesh)

// WithDiagnostics routes rejections, anomalies, timings and allocation
// events to sink.
func WithDiagnostics(sink diagnostics.Sink) Option {
	return func(m *Mesh) { m.sink = diagnostics.OrNop(sink) }
}

// NewMesh returns an empty mesh.
func NewMesh(opts ...Option) *Mesh {
	m := &Mesh{
		index: newDirectedIndex(),
		sink:  diagnostics.Nop{},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.cache = NewTopologyCache(m.sink)
	return m
}

// Diagnostics returns the sink the mesh reports to.
func (m *Mesh) Diagnostics() diagnostics.Sink { return m.sink }

// touch records a topology change.
func (m *Mesh) touch() {
	m.generation++
	m.cache.Invalidate()
}

// Generation increments on every topology change. Consumers holding a
// TopologyCache can compare it against SourceGeneration.
func (m *Mesh) Generation() uint64 { return m.generation }

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

// AddVertex appends an isolated vertex at pos.
func (m *Mesh) AddVertex(pos mgl32.Vec3) VertexIndex {
	idx := VertexIndex(len(m.vertices))
	m.vertices = append(m.vertices, newVertex())
	m.positions = append(m.positions, pos)
	m.touch()
	return idx
}

// AddFace adds the polygon vs, wound in the given order. Shared edges are
// paired with existing boundary half-edges running the opposite way.
//
// The face is rejected, leaving the mesh unchanged, when it has fewer than
// three corners, names a missing vertex, repeats a vertex, reuses a directed
// edge, or would give an edge a third face. The returned error is a
// *FaceError wrapping one of the Err* sentinels, and the index is Invalid.
func (m *Mesh) AddFace(vs ...VertexIndex) (FaceIndex, error) {
	defer m.sink.StartTimer("Mesh.AddFace")()

	if fe := m.checkFace(vs); fe != nil {
		m.sink.AddError(diagnostics.SeverityError, fe.Code, fe.Err.Error(), fe.Context)
		return Invalid, fe
	}

	n := len(vs)
	face := FaceIndex(len(m.faces))
	base := HalfEdgeIndex(len(m.halfEdges))

	for i := 0; i < n; i++ {
		he := newHalfEdge()
		he.To = vs[(i+1)%n]
		he.Next = base + HalfEdgeIndex((i+1)%n)
		he.Prev = base + HalfEdgeIndex((i+n-1)%n)
		he.Face = face
		m.halfEdges = append(m.halfEdges, he)
	}

	newEdges := 0
	for i := 0; i < n; i++ {
		from, to := vs[i], vs[(i+1)%n]
		h := base + HalfEdgeIndex(i)
		if rev, ok := m.index.get(to, from); ok && m.halfEdges[rev].Twin == Invalid {
			m.halfEdges[h].Twin = rev
			m.halfEdges[rev].Twin = h
			m.halfEdges[h].Edge = m.halfEdges[rev].Edge
		} else {
			m.halfEdges[h].Edge = EdgeIndex(len(m.edges))
			m.edges = append(m.edges, Edge{Tag: EdgeSmooth})
			newEdges++
		}
		m.index.put(from, to, h)
		if m.vertices[from].Outgoing == Invalid {
			m.vertices[from].Outgoing = h
		}
	}

	m.faces = append(m.faces, Face{Edge: base, Valence: uint32(n)})

	m.sink.RecordAllocation(categoryHalfEdges, n*sizeofHalfEdge)
	m.sink.RecordAllocation(categoryEdges, newEdges*sizeofEdge)
	m.sink.RecordAllocation(categoryFaces, sizeofFace)
	m.touch()
	return face, nil
}

// checkFace runs every rejection test without touching the mesh.
func (m *Mesh) checkFace(vs []VertexIndex) *FaceError {
	n := len(vs)
	if n < 3 {
		return &FaceError{Code: CodeFaceTooFewVertices, Err: ErrTooFewVertices,
			Context: fmt.Sprintf("got %d vertices", n)}
	}
	for i, v := range vs {
		if !inRange(v, len(m.vertices)) {
			return &FaceError{Code: CodeInvalidVertexIndex, Err: ErrVertexOutOfRange,
				Context: fmt.Sprintf("position %d (vertex %d, mesh has %d)", i, v, len(m.vertices))}
		}
	}
	if i, j, dup := firstDuplicate(vs); dup {
		return &FaceError{Code: CodeDuplicateVertexInFace, Err: ErrDuplicateVertex,
			Context: fmt.Sprintf("positions %d and %d (vertex %d)", i, j, vs[i])}
	}
	for i := 0; i < n; i++ {
		from, to := vs[i], vs[(i+1)%n]
		if h, ok := m.index.get(from, to); ok {
			if m.halfEdges[h].Twin != Invalid {
				return &FaceError{Code: CodeNonManifoldEdge, Err: ErrNonManifoldEdge,
					Context: fmt.Sprintf("position %d (%d->%d already has two faces)", i, from, to)}
			}
			return &FaceError{Code: CodeDuplicateDirectedEdge, Err: ErrDuplicateDirectedEdge,
				Context: fmt.Sprintf("position %d (%d->%d used by face %d)", i, from, to, m.halfEdges[h].Face)}
		}
		if rev, ok := m.index.get(to, from); ok && m.halfEdges[rev].Twin != Invalid {
			return &FaceError{Code: CodeNonManifoldEdge, Err: ErrNonManifoldEdge,
				Context: fmt.Sprintf("position %d (%d->%d already has two faces)", i, to, from)}
		}
	}
	return nil
}

// firstDuplicate returns the first pair of positions holding the same vertex.
func firstDuplicate(vs []VertexIndex) (int, int, bool) {
	if len(vs) <= 16 {
		for i := range vs {
			for j := i + 1; j < len(vs); j++ {
				if vs[i] == vs[j] {
					return i, j, true
				}
			}
		}
		return 0, 0, false
	}
	seen := make(map[VertexIndex]int, len(vs))
	for j, v := range vs {
		if i, ok := seen[v]; ok {
			return i, j, true
		}
		seen[v] = j
	}
	return 0, 0, false
}

// Reserve grows capacity ahead of a bulk import of the given number of
// vertices and faces. Half-edge and edge capacity assume quads.
func (m *Mesh) Reserve(vertices, faces int) {
	if vertices > 0 {
		m.vertices = slices.Grow(m.vertices, vertices)
		m.positions = slices.Grow(m.positions, vertices)
		m.sink.RecordAllocation(categoryVertices, vertices*(sizeofVertex+sizeofPosition))
	}
	if faces > 0 {
		m.faces = slices.Grow(m.faces, faces)
		m.halfEdges = slices.Grow(m.halfEdges, 4*faces)
		m.edges = slices.Grow(m.edges, 2*faces)
		m.sink.RecordAllocation(categoryFaces, faces*sizeofFace)
	}
}

// Clear removes every element and empties the directed-edge index.
func (m *Mesh) Clear() {
	m.sink.RecordDeallocation(categoryVertices, len(m.vertices)*(sizeofVertex+sizeofPosition))
	m.sink.RecordDeallocation(categoryHalfEdges, len(m.halfEdges)*sizeofHalfEdge)
	m.sink.RecordDeallocation(categoryEdges, len(m.edges)*sizeofEdge)
	m.sink.RecordDeallocation(categoryFaces, len(m.faces)*sizeofFace)

	m.vertices = nil
	m.halfEdges = nil
	m.edges = nil
	m.faces = nil
	m.positions = nil
	m.index.reset(0)
	m.touch()
}

// RebuildEdgeMap regenerates the directed-edge index from the half-edge
// arrays. Bulk edits that bypass AddFace call it once they are done.
func (m *Mesh) RebuildEdgeMap() {
	defer m.sink.StartTimer("Mesh.RebuildEdgeMap")()
	m.index.rebuild(m.halfEdges)
}

// ---------------------------------------------------------------------------
// Lookups
// ---------------------------------------------------------------------------

// FindHalfEdge returns the half-edge running v0->v1, or Invalid.
func (m *Mesh) FindHalfEdge(v0, v1 VertexIndex) HalfEdgeIndex {
	if h, ok := m.index.get(v0, v1); ok {
		return h
	}
	if rev, ok := m.index.get(v1, v0); ok {
		return m.halfEdges[rev].Twin
	}
	return Invalid
}

// FindEdge returns the edge joining v0 and v1 in either direction, or Invalid.
func (m *Mesh) FindEdge(v0, v1 VertexIndex) EdgeIndex {
	if h := m.FindHalfEdge(v0, v1); h != Invalid {
		return m.halfEdges[h].Edge
	}
	if h := m.FindHalfEdge(v1, v0); h != Invalid {
		return m.halfEdges[h].Edge
	}
	return Invalid
}

// FromVertex returns the source vertex of he, or Invalid if its loop is broken.
func (m *Mesh) FromVertex(he HalfEdgeIndex) VertexIndex {
	if !inRange(he, len(m.halfEdges)) {
		return Invalid
	}
	prev := m.halfEdges[he].Prev
	if !inRange(prev, len(m.halfEdges)) {
		return Invalid
	}
	return m.halfEdges[prev].To
}

// FaceVertices appends the corners of f, in winding order starting at the
// source of f's first half-edge, to dst. A corrupt loop stops early.
func (m *Mesh) FaceVertices(f FaceIndex, dst []VertexIndex) []VertexIndex {
	if !inRange(f, len(m.faces)) {
		return dst
	}
	face := m.faces[f]
	if !inRange(face.Edge, len(m.halfEdges)) {
		return dst
	}
	h := m.halfEdges[face.Edge].Prev
	for i := uint32(0); i < face.Valence; i++ {
		if !inRange(h, len(m.halfEdges)) {
			break
		}
		dst = append(dst, m.halfEdges[h].To)
		h = m.halfEdges[h].Next
	}
	return dst
}

// ---------------------------------------------------------------------------
// Vertex star queries
// ---------------------------------------------------------------------------

// starCap bounds any walk around one vertex. A valid star never visits a
// half-edge twice, so the half-edge count is always enough.
func (m *Mesh) starCap() int { return len(m.halfEdges) + 1 }

// VertexValence returns the number of edges incident to v, walking its star
// with twin->next and, past a boundary, prev->twin. Isolated vertices have
// valence 0. On a corrupt star the walk stops at a step cap and returns
// ErrTraversalLimit.
//
// Only the fan reachable from v's Outgoing is counted. Where two fans meet
// at v alone, this is less than the cache's Valence, which counts every
// incident edge; Validate reports such vertices as NON_MANIFOLD_VERTEX.
func (m *Mesh) VertexValence(v VertexIndex) (int, error) {
	if !inRange(v, len(m.vertices)) {
		return 0, fmt.Errorf("control: vertex %d: %w", v, ErrIndexOutOfRange)
	}
	start := m.vertices[v].Outgoing
	if start == Invalid {
		return 0, nil
	}

	limit := m.starCap()
	count := 0
	h := start
	for steps := 0; ; steps++ {
		if steps > limit || !inRange(h, len(m.halfEdges)) {
			return -1, m.starLimit(v)
		}
		count++
		twin := m.halfEdges[h].Twin
		if twin == Invalid {
			break
		}
		h = m.halfEdges[twin].Next
		if h == start {
			return count, nil
		}
	}

	// Boundary: count the rest of the fan on the other side of start,
	// including the incoming boundary half-edge.
	h = start
	for steps := 0; ; steps++ {
		if steps > limit || !inRange(h, len(m.halfEdges)) {
			return -1, m.starLimit(v)
		}
		prev := m.halfEdges[h].Prev
		if !inRange(prev, len(m.halfEdges)) {
			return -1, m.starLimit(v)
		}
		count++
		twin := m.halfEdges[prev].Twin
		if twin == Invalid {
			return count, nil
		}
		h = twin
	}
}

func (m *Mesh) starLimit(v VertexIndex) error {
	ctx := fmt.Sprintf("vertex %d", v)
	m.sink.AddError(diagnostics.SeverityWarning, CodeStarWalkLimit, "vertex star walk did not close", ctx)
	return fmt.Errorf("control: %s: %w", ctx, ErrTraversalLimit)
}

// IsBoundaryVertex reports whether v is isolated or any half-edge in its
// star lacks a twin. A star that fails to close within the step cap is
// treated as boundary.
func (m *Mesh) IsBoundaryVertex(v VertexIndex) bool {
	if !inRange(v, len(m.vertices)) {
		return false
	}
	start := m.vertices[v].Outgoing
	if start == Invalid {
		return true
	}
	limit := m.starCap()
	h := start
	for steps := 0; steps <= limit; steps++ {
		if !inRange(h, len(m.halfEdges)) {
			return true
		}
		twin := m.halfEdges[h].Twin
		if twin == Invalid {
			return true
		}
		h = m.halfEdges[twin].Next
		if h == start {
			return false
		}
	}
	m.starLimit(v)
	return true
}

// ---------------------------------------------------------------------------
// Edits
// ---------------------------------------------------------------------------

// SetPosition moves v. Topology and the cache are unaffected.
func (m *Mesh) SetPosition(v VertexIndex, pos mgl32.Vec3) error {
	if !inRange(v, len(m.vertices)) {
		return fmt.Errorf("control: set position of vertex %d: %w", v, ErrIndexOutOfRange)
	}
	m.positions[v] = pos
	return nil
}

// SetEdgeSharpness tags e semi-sharp with sharpness s, or smooth when s <= 0.
func (m *Mesh) SetEdgeSharpness(e EdgeIndex, s float32) error {
	if !inRange(e, len(m.edges)) {
		return fmt.Errorf("control: set sharpness of edge %d: %w", e, ErrIndexOutOfRange)
	}
	if s <= 0 {
		m.edges[e] = Edge{Tag: EdgeSmooth}
		return nil
	}
	m.edges[e] = Edge{Tag: EdgeSemi, Sharpness: s}
	return nil
}

// SetEdgeCrease tags e as a full crease, or back to smooth.
func (m *Mesh) SetEdgeCrease(e EdgeIndex, crease bool) error {
	if !inRange(e, len(m.edges)) {
		return fmt.Errorf("control: set crease of edge %d: %w", e, ErrIndexOutOfRange)
	}
	if crease {
		m.edges[e] = Edge{Tag: EdgeCrease, Sharpness: 1}
	} else {
		m.edges[e] = Edge{Tag: EdgeSmooth}
	}
	return nil
}

// SetVertexSharpness sets the crease sharpness of v, clamped at zero.
func (m *Mesh) SetVertexSharpness(v VertexIndex, s float32) error {
	if !inRange(v, len(m.vertices)) {
		return fmt.Errorf("control: set sharpness of vertex %d: %w", v, ErrIndexOutOfRange)
	}
	m.vertices[v].Sharpness = max(s, 0)
	return nil
}

// SetCorner marks or unmarks v as a corner.
func (m *Mesh) SetCorner(v VertexIndex, corner bool) error {
	if !inRange(v, len(m.vertices)) {
		return fmt.Errorf("control: set corner of vertex %d: %w", v, ErrIndexOutOfRange)
	}
	m.vertices[v].Corner = corner
	return nil
}

// ---------------------------------------------------------------------------
// Accessors
// ---------------------------------------------------------------------------

// Element counts.
func (m *Mesh) NumVertices() int { return len(m.vertices) }
func (m *Mesh) NumHalfEdges() int { return len(m.halfEdges) }
func (m *Mesh) NumEdges() int { return len(m.edges) }
func (m *Mesh) NumFaces() int { return len(m.faces) }

// Vertex returns a copy of vertex v. v must be in range.
func (m *Mesh) Vertex(v VertexIndex) Vertex { return m.vertices[v] }

// HalfEdge returns a copy of half-edge h. h must be in range.
func (m *Mesh) HalfEdge(h HalfEdgeIndex) HalfEdge { return m.halfEdges[h] }

// Edge returns a copy of edge e. e must be in range.
func (m *Mesh) Edge(e EdgeIndex) Edge { return m.edges[e] }

// Face returns a copy of face f. f must be in range.
func (m *Mesh) Face(f FaceIndex) Face { return m.faces[f] }

// Position returns the position of v. v must be in range.
func (m *Mesh) Position(v VertexIndex) mgl32.Vec3 { return m.positions[v] }

// The slice views below alias the mesh arrays and must be treated as
// read-only. They are invalidated by the next mutation.

func (m *Mesh) Vertices() []Vertex { return m.vertices }
func (m *Mesh) HalfEdges() []HalfEdge { return m.halfEdges }
func (m *Mesh) Edges() []Edge { return m.edges }
func (m *Mesh) Faces() []Face { return m.faces }
func (m *Mesh) Positions() []mgl32.Vec3 { return m.positions }

// MemoryUsage returns the approximate number of bytes held by the mesh
// arrays and the directed-edge index, excluding the cache.
func (m *Mesh) MemoryUsage() int {
	return cap(m.vertices)*sizeofVertex +
		cap(m.positions)*sizeofPosition +
		cap(m.halfEdges)*sizeofHalfEdge +
		cap(m.edges)*sizeofEdge +
		cap(m.faces)*sizeofFace +
		m.index.bytes()
}

// ---------------------------------------------------------------------------
// Cache ownership
// ---------------------------------------------------------------------------

// BuildCache rebuilds the owned TopologyCache from the current topology and
// returns the anomalies it found.
func (m *Mesh) BuildCache() []diagnostics.Issue {
	return m.cache.Build(m)
}

// Cache returns the owned TopologyCache, building it first if it is not
// valid for the current topology.
func (m *Mesh) Cache() *TopologyCache {
	if !m.cache.IsValid() || m.cache.source != m {
		m.cache.Build(m)
	}
	return m.cache
}
