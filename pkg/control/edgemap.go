package control

// directedKey packs an ordered vertex pair into one map key.
func directedKey(from, to VertexIndex) uint64 {
	return uint64(from)<<32 | uint64(to)
}

// directedIndex maps (from, to) vertex pairs to the half-edge running
// between them. It is derived from the half-edge arrays and can be rebuilt
// at any time; the arrays are the ground truth.
type directedIndex struct {
	m map[uint64]HalfEdgeIndex
}

func newDirectedIndex() directedIndex {
	return directedIndex{m: make(map[uint64]HalfEdgeIndex)}
}

func (d *directedIndex) get(from, to VertexIndex) (HalfEdgeIndex, bool) {
	h, ok := d.m[directedKey(from, to)]
	return h, ok
}

func (d *directedIndex) put(from, to VertexIndex, h HalfEdgeIndex) {
	d.m[directedKey(from, to)] = h
}

func (d *directedIndex) len() int { return len(d.m) }

func (d *directedIndex) reset(sizeHint int) {
	d.m = make(map[uint64]HalfEdgeIndex, sizeHint)
}

// rebuild regenerates the index from halfEdges. Half-edges whose loop links
// are out of range are skipped; Validate reports them separately.
func (d *directedIndex) rebuild(halfEdges []HalfEdge) {
	d.reset(len(halfEdges))
	for i, he := range halfEdges {
		if !inRange(he.Prev, len(halfEdges)) || he.To == Invalid {
			continue
		}
		from := halfEdges[he.Prev].To
		if from == Invalid {
			continue
		}
		d.put(from, he.To, HalfEdgeIndex(i))
	}
}

// bytes estimates the memory held by the index.
func (d *directedIndex) bytes() int {
	// key + value + roughly one word of bucket overhead per entry
	return len(d.m) * (8 + 4 + 8)
}
