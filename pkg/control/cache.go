package control

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/chazu/subdiv/pkg/diagnostics"
)

// TopologyCache is a flat, read-only index derived from a Mesh: valences,
// boundary flags, ordered one-rings and vertex/edge/face incidence stored as
// CSR arrays (an offset array plus one shared backing array per relation).
//
// The cache remembers the mesh it was built from and the generation it saw.
// It is valid from a completed Build until Invalidate or until that mesh's
// topology changes, whichever comes first; every query on an invalid cache
// panics.
type TopologyCache struct {
	sink       diagnostics.Sink
	valid      bool
	source     *Mesh
	generation uint64

	numVertices int
	numEdges    int
	numFaces    int

	valences       []uint32
	vertexBoundary []bool
	maxValence     uint32

	oneRingOffsets []uint32
	oneRings       []VertexIndex

	vertexFaceOffsets []uint32
	vertexFaces       []FaceIndex

	edgeVertices    [][2]VertexIndex
	edgeBoundary    []bool
	edgeFaceOffsets []uint32
	edgeFaces       []FaceIndex

	// face->vertex and face->edge share one offset array: both have one
	// entry per face corner.
	faceOffsets  []uint32
	faceVertices []VertexIndex
	faceEdges    []EdgeIndex

	numBoundaryVertices int
	numBoundaryEdges    int
}

// NewTopologyCache returns an empty, invalid cache reporting to sink.
func NewTopologyCache(sink diagnostics.Sink) *TopologyCache {
	return &TopologyCache{sink: diagnostics.OrNop(sink)}
}

// IsValid reports whether a build has completed since the last invalidation
// and the source mesh has not changed topology since.
func (c *TopologyCache) IsValid() bool {
	return c.valid && c.source != nil && c.source.generation == c.generation
}

// Invalidate marks the cache stale. Its arrays are kept for reuse by the
// next Build.
func (c *TopologyCache) Invalidate() { c.valid = false }

// SourceGeneration returns the Mesh.Generation the cache was built from.
func (c *TopologyCache) SourceGeneration() uint64 { return c.generation }

// Build derives every cache array from m in O(V+E+H). It never fails: corrupt
// input produces a best-effort cache plus the returned anomalies, which are
// also reported to the sink as warnings.
func (c *TopologyCache) Build(m *Mesh) []diagnostics.Issue {
	defer c.sink.StartTimer("TopologyCache.Build")()

	c.valid = false
	rec := &diagnostics.Recorder{Next: c.sink}
	b := &cacheBuilder{c: c, m: m, rec: rec}
	b.run()

	c.source = m
	c.generation = m.generation
	c.valid = true
	c.sink.RecordAllocation("cache", c.MemoryUsage())
	return rec.Issues
}

// cacheBuilder holds the scratch state for one Build.
type cacheBuilder struct {
	c   *TopologyCache
	m   *Mesh
	rec *diagnostics.Recorder

	halfEdgeCounts  []uint32 // per edge, phase 1
	vertexFaceCount []uint32
	edgeFaceCount   []uint32
	faceLen         []uint32

	// visit marks with a rolling stamp, so no walk needs to clear them
	mark  []uint32
	stamp uint32

	loop []HalfEdgeIndex
	ring []VertexIndex
	back []VertexIndex
}

func (b *cacheBuilder) warn(code diagnostics.Code, message, context string) {
	b.rec.AddError(diagnostics.SeverityWarning, code, message, context)
}

func (b *cacheBuilder) nextStamp() uint32 {
	if b.stamp == math.MaxUint32 {
		clear(b.mark)
		b.stamp = 0
	}
	b.stamp++
	return b.stamp
}

func (b *cacheBuilder) run() {
	c, m := b.c, b.m
	c.numVertices = len(m.vertices)
	c.numEdges = len(m.edges)
	c.numFaces = len(m.faces)
	b.mark = make([]uint32, len(m.halfEdges))

	b.edgePass()
	b.valencePass()
	b.boundaryPass()
	b.incidenceCountPass()
	b.allocate()
	b.oneRingPass()
	b.incidenceFillPass()
}

// edgePass records each edge's canonical (min, max) vertex pair and boundary
// flag, and flags edges with more than two half-edges.
func (b *cacheBuilder) edgePass() {
	c, m := b.c, b.m
	ne := c.numEdges
	c.edgeVertices = resize(c.edgeVertices, ne)
	for i := range c.edgeVertices {
		c.edgeVertices[i] = [2]VertexIndex{Invalid, Invalid}
	}
	c.edgeBoundary = resize(c.edgeBoundary, ne)
	b.halfEdgeCounts = make([]uint32, ne)

	for i, he := range m.halfEdges {
		e := he.Edge
		if !inRange(e, ne) {
			continue
		}
		b.halfEdgeCounts[e]++
		if he.Twin == Invalid {
			c.edgeBoundary[e] = true
		}
		if c.edgeVertices[e][0] != Invalid {
			continue
		}
		from, to := m.FromVertex(HalfEdgeIndex(i)), he.To
		if !inRange(from, c.numVertices) || !inRange(to, c.numVertices) {
			continue
		}
		c.edgeVertices[e] = [2]VertexIndex{min(from, to), max(from, to)}
	}

	for e, n := range b.halfEdgeCounts {
		if n == 1 {
			c.edgeBoundary[e] = true
		}
		if n > 2 {
			b.warn(CodeNonManifoldEdgeDetected,
				fmt.Sprintf("edge has %d incident faces", n), fmt.Sprintf("edge %d", e))
		}
	}
}

// valencePass counts incident edges per vertex.
func (b *cacheBuilder) valencePass() {
	c := b.c
	c.valences = resize(c.valences, c.numVertices)
	for _, ev := range c.edgeVertices {
		if ev[0] == Invalid {
			continue
		}
		c.valences[ev[0]]++
		c.valences[ev[1]]++
	}
	c.maxValence = 0
	for _, v := range c.valences {
		c.maxValence = max(c.maxValence, v)
	}
}

// boundaryPass marks endpoints of boundary edges.
func (b *cacheBuilder) boundaryPass() {
	c := b.c
	c.vertexBoundary = resize(c.vertexBoundary, c.numVertices)
	c.numBoundaryEdges = 0
	for e, ev := range c.edgeVertices {
		if !c.edgeBoundary[e] {
			continue
		}
		c.numBoundaryEdges++
		if ev[0] == Invalid {
			continue
		}
		c.vertexBoundary[ev[0]] = true
		c.vertexBoundary[ev[1]] = true
	}
	c.numBoundaryVertices = 0
	for _, isBoundary := range c.vertexBoundary {
		if isBoundary {
			c.numBoundaryVertices++
		}
	}
}

// faceLoop collects the half-edges of face f into b.loop, stopping at a
// revisit, a bad index, or valence+slack steps. ok is false unless the loop
// closes after exactly valence steps.
func (b *cacheBuilder) faceLoop(f int) (loop []HalfEdgeIndex, ok bool) {
	hes := b.m.halfEdges
	face := b.m.faces[f]
	b.loop = b.loop[:0]
	if !inRange(face.Edge, len(hes)) {
		return b.loop, false
	}
	stamp := b.nextStamp()
	limit := int(face.Valence) + faceLoopSlack
	h := face.Edge
	for len(b.loop) <= limit {
		if !inRange(h, len(hes)) || b.mark[h] == stamp {
			return b.loop, false
		}
		b.mark[h] = stamp
		b.loop = append(b.loop, h)
		h = hes[h].Next
		if h == face.Edge {
			return b.loop, len(b.loop) == int(face.Valence)
		}
	}
	return b.loop, false
}

// incidenceCountPass walks every face loop once, tallying face incidence per
// vertex and per edge and the usable corner count per face.
func (b *cacheBuilder) incidenceCountPass() {
	c, m := b.c, b.m
	b.vertexFaceCount = make([]uint32, c.numVertices)
	b.edgeFaceCount = make([]uint32, c.numEdges)
	b.faceLen = make([]uint32, c.numFaces)

	for f := range m.faces {
		loop, ok := b.faceLoop(f)
		if !ok {
			b.warn(CodeCycleInFace,
				fmt.Sprintf("face loop broken after %d of %d half-edges", len(loop), m.faces[f].Valence),
				fmt.Sprintf("face %d", f))
		}
		n := min(len(loop), int(m.faces[f].Valence))
		b.faceLen[f] = uint32(n)
		for _, h := range loop[:n] {
			he := m.halfEdges[h]
			if inRange(he.To, c.numVertices) {
				b.vertexFaceCount[he.To]++
			}
			if inRange(he.Edge, c.numEdges) {
				b.edgeFaceCount[he.Edge]++
			}
		}
	}
}

// prefixSum writes the exclusive prefix sum of counts into offsets, which
// ends up one longer than counts.
func prefixSum(offsets []uint32, counts []uint32) []uint32 {
	offsets = resize(offsets, len(counts)+1)
	offsets[0] = 0
	for i, n := range counts {
		offsets[i+1] = offsets[i] + n
	}
	return offsets
}

// allocate turns every count table into CSR offsets and sizes the backing
// arrays.
func (b *cacheBuilder) allocate() {
	c := b.c
	c.oneRingOffsets = prefixSum(c.oneRingOffsets, c.valences)
	c.vertexFaceOffsets = prefixSum(c.vertexFaceOffsets, b.vertexFaceCount)
	c.edgeFaceOffsets = prefixSum(c.edgeFaceOffsets, b.edgeFaceCount)
	c.faceOffsets = prefixSum(c.faceOffsets, b.faceLen)

	c.oneRings = resize(c.oneRings, int(c.oneRingOffsets[c.numVertices]))
	for i := range c.oneRings {
		c.oneRings[i] = Invalid
	}
	c.vertexFaces = resize(c.vertexFaces, int(c.vertexFaceOffsets[c.numVertices]))
	c.edgeFaces = resize(c.edgeFaces, int(c.edgeFaceOffsets[c.numEdges]))
	nCorners := int(c.faceOffsets[c.numFaces])
	c.faceVertices = resize(c.faceVertices, nCorners)
	c.faceEdges = resize(c.faceEdges, nCorners)
}

// oneRingPass fills each vertex's ordered neighbor list.
//
// The star is walked forward with twin->next. If that hits a twin-less
// half-edge the vertex is on a boundary, and the rest of the fan is walked
// backward from the start with prev->twin, ending at the source of the
// twin-less incoming half-edge. The backward part is stored first, reversed,
// so the ring runs from one boundary neighbor to the other in the same
// rotational sense as an interior ring.
func (b *cacheBuilder) oneRingPass() {
	c, m := b.c, b.m
	hes := m.halfEdges
	nh := len(hes)

	for vi, vert := range m.vertices {
		valence := int(c.valences[vi])
		start := vert.Outgoing
		if start == Invalid {
			if valence != 0 {
				b.warn(CodeOneRingCountMismatch,
					fmt.Sprintf("isolated vertex has valence %d", valence), fmt.Sprintf("vertex %d", vi))
			}
			continue
		}
		if !inRange(start, nh) {
			b.warn(CodeOneRingCycle, "outgoing half-edge out of range", fmt.Sprintf("vertex %d", vi))
			continue
		}

		stamp := b.nextStamp()
		b.ring = b.ring[:0]
		b.back = b.back[:0]
		broken, boundary := false, false

		h := start
		for {
			if b.mark[h] == stamp {
				broken = true
				break
			}
			b.mark[h] = stamp
			b.ring = append(b.ring, hes[h].To)
			twin := hes[h].Twin
			if twin == Invalid {
				boundary = true
				break
			}
			if !inRange(twin, nh) || !inRange(hes[twin].Next, nh) {
				broken = true
				break
			}
			h = hes[twin].Next
			if h == start {
				break
			}
		}

		if boundary {
			h = start
			for {
				prev := hes[h].Prev
				if !inRange(prev, nh) {
					broken = true
					break
				}
				twin := hes[prev].Twin
				if twin == Invalid {
					b.back = append(b.back, m.FromVertex(prev))
					break
				}
				if !inRange(twin, nh) || b.mark[twin] == stamp {
					broken = true
					break
				}
				b.mark[twin] = stamp
				b.back = append(b.back, hes[twin].To)
				h = twin
			}
		}

		if broken {
			b.warn(CodeOneRingCycle, "vertex star does not close", fmt.Sprintf("vertex %d", vi))
		}
		got := len(b.ring) + len(b.back)
		if got != valence {
			b.warn(CodeOneRingCountMismatch,
				fmt.Sprintf("one-ring has %d neighbors, valence is %d", got, valence),
				fmt.Sprintf("vertex %d", vi))
		}

		slot := c.oneRings[c.oneRingOffsets[vi]:c.oneRingOffsets[vi+1]]
		n := 0
		for i := len(b.back) - 1; i >= 0 && n < len(slot); i-- {
			slot[n] = b.back[i]
			n++
		}
		for i := 0; i < len(b.ring) && n < len(slot); i++ {
			slot[n] = b.ring[i]
			n++
		}
	}
}

// incidenceFillPass re-walks every face loop and writes face->vertex,
// face->edge, vertex->face and edge->face entries through per-slot cursors.
func (b *cacheBuilder) incidenceFillPass() {
	c, m := b.c, b.m

	vfCursor := make([]uint32, c.numVertices)
	copy(vfCursor, c.vertexFaceOffsets)
	efCursor := make([]uint32, c.numEdges)
	copy(efCursor, c.edgeFaceOffsets)

	for f := range m.faces {
		loop, _ := b.faceLoop(f)
		off := c.faceOffsets[f]
		n := int(c.faceOffsets[f+1] - off)
		for i, h := range loop[:min(n, len(loop))] {
			he := m.halfEdges[h]
			c.faceVertices[int(off)+i] = m.FromVertex(h)
			c.faceEdges[int(off)+i] = he.Edge

			if inRange(he.To, c.numVertices) && vfCursor[he.To] < c.vertexFaceOffsets[he.To+1] {
				c.vertexFaces[vfCursor[he.To]] = FaceIndex(f)
				vfCursor[he.To]++
			}
			if inRange(he.Edge, c.numEdges) && efCursor[he.Edge] < c.edgeFaceOffsets[he.Edge+1] {
				c.edgeFaces[efCursor[he.Edge]] = FaceIndex(f)
				efCursor[he.Edge]++
			}
		}
	}

	for v, cur := range vfCursor {
		if want := c.vertexFaceOffsets[v+1]; cur != want {
			b.warn(CodeVertexFaceCSRIncomplete,
				fmt.Sprintf("filled %d of %d incident faces", cur-c.vertexFaceOffsets[v], want-c.vertexFaceOffsets[v]),
				fmt.Sprintf("vertex %d", v))
		}
	}
	for e, cur := range efCursor {
		if want := c.edgeFaceOffsets[e+1]; cur != want {
			b.warn(CodeEdgeFaceCSRIncomplete,
				fmt.Sprintf("filled %d of %d incident faces", cur-c.edgeFaceOffsets[e], want-c.edgeFaceOffsets[e]),
				fmt.Sprintf("edge %d", e))
		}
	}
}

// resize returns a zeroed slice of length n, reusing s when it is big enough.
func resize[T any](s []T, n int) []T {
	if cap(s) < n {
		return make([]T, n)
	}
	s = s[:n]
	clear(s)
	return s
}

// MemoryUsage returns the bytes held by the cache arrays.
func (c *TopologyCache) MemoryUsage() int {
	const (
		u32  = 4
		idx  = 4
		pair = int(unsafe.Sizeof([2]VertexIndex{}))
	)
	return len(c.valences)*u32 +
		len(c.vertexBoundary) +
		len(c.oneRingOffsets)*u32 + len(c.oneRings)*idx +
		len(c.vertexFaceOffsets)*u32 + len(c.vertexFaces)*idx +
		len(c.edgeVertices)*pair + len(c.edgeBoundary) +
		len(c.edgeFaceOffsets)*u32 + len(c.edgeFaces)*idx +
		len(c.faceOffsets)*u32 + len(c.faceVertices)*idx + len(c.faceEdges)*idx
}
