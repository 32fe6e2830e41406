package control

import "fmt"

func (c *TopologyCache) mustBeValid() {
	if !c.IsValid() {
		panic("control: topology cache queried while invalid")
	}
}

func (c *TopologyCache) checkVertex(v VertexIndex) {
	c.mustBeValid()
	if !inRange(v, c.numVertices) {
		panic(fmt.Sprintf("control: vertex %d out of range [0,%d)", v, c.numVertices))
	}
}

func (c *TopologyCache) checkEdge(e EdgeIndex) {
	c.mustBeValid()
	if !inRange(e, c.numEdges) {
		panic(fmt.Sprintf("control: edge %d out of range [0,%d)", e, c.numEdges))
	}
}

func (c *TopologyCache) checkFace(f FaceIndex) {
	c.mustBeValid()
	if !inRange(f, c.numFaces) {
		panic(fmt.Sprintf("control: face %d out of range [0,%d)", f, c.numFaces))
	}
}

// span returns the read-only window [offsets[i], offsets[i+1]) of data. The
// capacity is clipped so appending to the result never clobbers a neighbor.
func span[T any](data []T, offsets []uint32, i uint32) []T {
	lo, hi := offsets[i], offsets[i+1]
	return data[lo:hi:hi]
}

// Valence returns the number of edges incident to v.
func (c *TopologyCache) Valence(v VertexIndex) int {
	c.checkVertex(v)
	return int(c.valences[v])
}

// IsBoundaryVertex reports whether v is an endpoint of a boundary edge.
func (c *TopologyCache) IsBoundaryVertex(v VertexIndex) bool {
	c.checkVertex(v)
	return c.vertexBoundary[v]
}

// OneRing returns the neighbors of v in rotational order. For a boundary
// vertex the first and last entries are its two boundary neighbors: the ring
// starts at the source of the incoming boundary half-edge, runs backward
// through the fan and ends at the target of the outgoing boundary half-edge,
// i.e. [source, backward..., forward...]. The
// length always equals Valence(v); slots a corrupt star could not fill hold
// Invalid.
func (c *TopologyCache) OneRing(v VertexIndex) []VertexIndex {
	c.checkVertex(v)
	return span(c.oneRings, c.oneRingOffsets, uint32(v))
}

// VertexFaces returns the faces incident to v.
func (c *TopologyCache) VertexFaces(v VertexIndex) []FaceIndex {
	c.checkVertex(v)
	return span(c.vertexFaces, c.vertexFaceOffsets, uint32(v))
}

// IsBoundaryEdge reports whether e has a single incident face.
func (c *TopologyCache) IsBoundaryEdge(e EdgeIndex) bool {
	c.checkEdge(e)
	return c.edgeBoundary[e]
}

// EdgeVertices returns the endpoints of e, smaller index first.
func (c *TopologyCache) EdgeVertices(e EdgeIndex) (VertexIndex, VertexIndex) {
	c.checkEdge(e)
	ev := c.edgeVertices[e]
	return ev[0], ev[1]
}

// EdgeFaces returns the faces incident to e.
func (c *TopologyCache) EdgeFaces(e EdgeIndex) []FaceIndex {
	c.checkEdge(e)
	return span(c.edgeFaces, c.edgeFaceOffsets, uint32(e))
}

// FaceVertices returns the corners of f in winding order.
func (c *TopologyCache) FaceVertices(f FaceIndex) []VertexIndex {
	c.checkFace(f)
	return span(c.faceVertices, c.faceOffsets, uint32(f))
}

// FaceEdges returns the edges of f in winding order; entry i joins corners
// i and i+1.
func (c *TopologyCache) FaceEdges(f FaceIndex) []EdgeIndex {
	c.checkFace(f)
	return span(c.faceEdges, c.faceOffsets, uint32(f))
}

func (c *TopologyCache) NumVertices() int { c.mustBeValid(); return c.numVertices }
func (c *TopologyCache) NumEdges() int { c.mustBeValid(); return c.numEdges }
func (c *TopologyCache) NumFaces() int { c.mustBeValid(); return c.numFaces }

func (c *TopologyCache) NumBoundaryVertices() int { c.mustBeValid(); return c.numBoundaryVertices }
func (c *TopologyCache) NumBoundaryEdges() int { c.mustBeValid(); return c.numBoundaryEdges }

// MaxValence returns the largest vertex valence.
func (c *TopologyCache) MaxValence() int {
	c.mustBeValid()
	return int(c.maxValence)
}

// Raw views for GPU upload. They alias the cache arrays and are read-only.

// Valences returns one valence per vertex.
func (c *TopologyCache) Valences() []uint32 { c.mustBeValid(); return c.valences }

// OneRingOffsets returns the one-ring CSR offsets, NumVertices()+1 long.
func (c *TopologyCache) OneRingOffsets() []uint32 { c.mustBeValid(); return c.oneRingOffsets }

// OneRings returns the flattened one-ring backing array.
func (c *TopologyCache) OneRings() []VertexIndex { c.mustBeValid(); return c.oneRings }

// EdgeVertexPairs returns the (min, max) endpoint pair of every edge.
func (c *TopologyCache) EdgeVertexPairs() [][2]VertexIndex { c.mustBeValid(); return c.edgeVertices }
