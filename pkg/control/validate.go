package control

import (
	"fmt"
	"strings"

	"github.com/chazu/subdiv/pkg/diagnostics"
)

// ValidationResult is the outcome of Mesh.Validate.
type ValidationResult struct {
	Issues []diagnostics.Issue
}

// Valid reports whether no issue was found.
func (r ValidationResult) Valid() bool { return len(r.Issues) == 0 }

// HasCode reports whether any issue carries code.
func (r ValidationResult) HasCode(code diagnostics.Code) bool {
	for _, i := range r.Issues {
		if i.Code == code {
			return true
		}
	}
	return false
}

// String renders one issue per line.
func (r ValidationResult) String() string {
	if r.Valid() {
		return "mesh valid"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d issue(s):\n", len(r.Issues))
	for _, i := range r.Issues {
		b.WriteString("  ")
		b.WriteString(i.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// validator accumulates findings. Every finding is also forwarded to the
// mesh's sink.
type validator struct {
	m   *Mesh
	rec diagnostics.Recorder
}

func (v *validator) report(code diagnostics.Code, format string, args ...any) {
	v.rec.AddError(diagnostics.SeverityError, code, fmt.Sprintf(format, args...), "validate")
}

// Validate re-checks every structural invariant of the mesh and reports all
// breaches, not only the first. It never mutates the mesh, so repeated calls
// without edits return identical results.
func (m *Mesh) Validate() ValidationResult {
	defer m.sink.StartTimer("Mesh.Validate")()

	v := &validator{m: m, rec: diagnostics.Recorder{Next: m.sink}}
	v.checkAttributes()
	v.checkVertices()
	v.checkHalfEdges()
	v.checkFaces()
	v.checkEdges()
	v.checkDirectedPairs()
	v.checkVertexStars()
	return ValidationResult{Issues: v.rec.Issues}
}

func (v *validator) checkAttributes() {
	if len(v.m.positions) != len(v.m.vertices) {
		v.report(CodePositionCountMismatch, "%d positions for %d vertices", len(v.m.positions), len(v.m.vertices))
	}
}

func (v *validator) checkVertices() {
	hes := v.m.halfEdges
	for i, vert := range v.m.vertices {
		if vert.Outgoing == Invalid {
			continue
		}
		if !inRange(vert.Outgoing, len(hes)) {
			v.report(CodeInvalidVertexOutgoing, "vertex %d outgoing %d", i, vert.Outgoing)
			continue
		}
		if from := v.m.FromVertex(vert.Outgoing); from != VertexIndex(i) && from != Invalid {
			v.report(CodeOutgoingWrongSource, "vertex %d outgoing %d starts at %d", i, vert.Outgoing, from)
		}
	}
}

func (v *validator) checkHalfEdges() {
	m := v.m
	nh := len(m.halfEdges)
	for i, he := range m.halfEdges {
		h := HalfEdgeIndex(i)
		if !inRange(he.To, len(m.vertices)) {
			v.report(CodeInvalidHalfEdgeTo, "half-edge %d to %d", i, he.To)
		}

		if he.Twin != Invalid {
			if !inRange(he.Twin, nh) {
				v.report(CodeInvalidHalfEdgeTwin, "half-edge %d twin %d", i, he.Twin)
			} else {
				twin := m.halfEdges[he.Twin]
				if twin.Twin != h {
					v.report(CodeBrokenTwinLink, "half-edge %d twin %d points back to %d", i, he.Twin, twin.Twin)
				}
				if twin.Edge != he.Edge {
					v.report(CodeTwinEdgeMismatch, "half-edge %d edge %d, twin %d edge %d", i, he.Edge, he.Twin, twin.Edge)
				}
				if from := m.FromVertex(he.Twin); from != Invalid && from != he.To {
					v.report(CodeTwinEndpointMismatch, "half-edge %d ends at %d, twin %d starts at %d", i, he.To, he.Twin, from)
				}
			}
		}

		if !inRange(he.Next, nh) {
			v.report(CodeInvalidHalfEdgeNext, "half-edge %d next %d", i, he.Next)
		} else if m.halfEdges[he.Next].Prev != h {
			v.report(CodeBrokenNextLink, "half-edge %d next %d has prev %d", i, he.Next, m.halfEdges[he.Next].Prev)
		}

		if !inRange(he.Prev, nh) {
			v.report(CodeInvalidHalfEdgePrev, "half-edge %d prev %d", i, he.Prev)
		} else if m.halfEdges[he.Prev].Next != h {
			v.report(CodeBrokenPrevLink, "half-edge %d prev %d has next %d", i, he.Prev, m.halfEdges[he.Prev].Next)
		}

		if !inRange(he.Edge, len(m.edges)) {
			v.report(CodeInvalidHalfEdgeEdge, "half-edge %d edge %d", i, he.Edge)
		}
		if !inRange(he.Face, len(m.faces)) {
			v.report(CodeInvalidHalfEdgeFace, "half-edge %d face %d", i, he.Face)
		}
	}
}

// faceLoopSlack is how far past its valence a face walk may run before the
// loop is declared runaway.
const faceLoopSlack = 1

func (v *validator) checkFaces() {
	m := v.m
	nh := len(m.halfEdges)
	for i, f := range m.faces {
		fi := FaceIndex(i)
		if !inRange(f.Edge, nh) {
			v.report(CodeInvalidFaceEdge, "face %d edge %d", i, f.Edge)
			continue
		}
		if f.Valence < 3 {
			v.report(CodeFaceValenceTooSmall, "face %d valence %d", i, f.Valence)
		}

		limit := int(f.Valence) + faceLoopSlack
		h := f.Edge
		count := 0
		closed := false
		for count <= limit {
			if !inRange(h, nh) {
				v.report(CodeFaceLoopInvalidIndex, "face %d reaches half-edge %d after %d steps", i, h, count)
				break
			}
			if m.halfEdges[h].Face != fi {
				v.report(CodeFaceLoopWrongFace, "face %d half-edge %d belongs to face %d", i, h, m.halfEdges[h].Face)
			}
			count++
			h = m.halfEdges[h].Next
			if h == f.Edge {
				closed = true
				break
			}
		}
		switch {
		case !closed && count > limit:
			v.report(CodeFaceLoopTooLong, "face %d loop exceeds %d steps", i, limit)
		case closed && count != int(f.Valence):
			v.report(CodeFaceValenceMismatch, "face %d valence %d, loop has %d", i, f.Valence, count)
		}
	}
}

func (v *validator) checkEdges() {
	m := v.m
	refs := make([]uint32, len(m.edges))
	for _, he := range m.halfEdges {
		if inRange(he.Edge, len(m.edges)) {
			refs[he.Edge]++
		}
	}
	for i, n := range refs {
		switch {
		case n == 0:
			v.report(CodeOrphanedEdge, "edge %d has no half-edges", i)
		case n > 2:
			v.report(CodeNonManifoldEdge, "edge %d has %d half-edges", i, n)
		}
	}
}

// checkDirectedPairs verifies that no vertex pair is used twice in the same
// direction and that the directed index resolves every half-edge to itself.
func (v *validator) checkDirectedPairs() {
	m := v.m
	seen := make(map[uint64]HalfEdgeIndex, len(m.halfEdges))
	for i, he := range m.halfEdges {
		from := m.FromVertex(HalfEdgeIndex(i))
		if from == Invalid || he.To == Invalid {
			continue
		}
		key := directedKey(from, he.To)
		if prev, ok := seen[key]; ok {
			v.report(CodeDuplicateDirectedEdge, "half-edges %d and %d both run %d->%d", prev, i, from, he.To)
			continue
		}
		seen[key] = HalfEdgeIndex(i)
		if got, ok := m.index.get(from, he.To); !ok || got != HalfEdgeIndex(i) {
			v.report(CodeEdgeMapStale, "half-edge %d (%d->%d) not indexed", i, from, he.To)
		}
	}
}

// checkVertexStars reports vertices whose star, walked from Outgoing, misses
// some of the half-edges leaving them. Two fans that share only a vertex pass
// every edge check but give the vertex no single ordered one-ring, so the
// mesh walk and the cache would disagree on its valence.
func (v *validator) checkVertexStars() {
	m := v.m
	leaving := make([]uint32, len(m.vertices))
	for i := range m.halfEdges {
		if from := m.FromVertex(HalfEdgeIndex(i)); inRange(from, len(leaving)) {
			leaving[from]++
		}
	}
	for i, vert := range m.vertices {
		if !inRange(vert.Outgoing, len(m.halfEdges)) || leaving[i] == 0 {
			continue
		}
		covered, ok := v.starCoverage(vert.Outgoing, int(leaving[i]))
		if ok && covered < int(leaving[i]) {
			v.report(CodeNonManifoldVertex, "vertex %d star reaches %d of %d outgoing half-edges",
				i, covered, leaving[i])
		}
	}
}

// starCoverage counts the outgoing half-edges reached from start, forward
// with twin->next and past a boundary backward with prev->twin. ok is false
// when the walk leaves the arena or runs past limit; other checks report
// those breaches.
func (v *validator) starCoverage(start HalfEdgeIndex, limit int) (covered int, ok bool) {
	hes := v.m.halfEdges
	nh := len(hes)

	h := start
	for {
		covered++
		if covered > limit {
			return covered, false
		}
		twin := hes[h].Twin
		if twin == Invalid {
			break
		}
		if !inRange(twin, nh) || !inRange(hes[twin].Next, nh) {
			return covered, false
		}
		h = hes[twin].Next
		if h == start {
			return covered, true
		}
	}

	h = start
	for {
		prev := hes[h].Prev
		if !inRange(prev, nh) {
			return covered, false
		}
		twin := hes[prev].Twin
		if twin == Invalid {
			return covered, true
		}
		if !inRange(twin, nh) {
			return covered, false
		}
		covered++
		if covered > limit {
			return covered, false
		}
		h = twin
	}
}
