// Package control implements the control-cage half-edge mesh used as the
// substrate for subdivision: incremental face construction with twin
// resolution and manifold checks, an exhaustive validator, and the
// TopologyCache, a derived set of flat query arrays.
//
// Element records never point at each other. Every reference is an index
// into the owning Mesh's arrays, with Invalid marking "none".
package control

import (
	"fmt"
	"math"
)

// Invalid is the "none" sentinel for every index type.
const Invalid = math.MaxUint32

type (
	// VertexIndex addresses Mesh.Vertices.
	VertexIndex uint32
	// HalfEdgeIndex addresses Mesh.HalfEdges.
	HalfEdgeIndex uint32
	// EdgeIndex addresses Mesh.Edges.
	EdgeIndex uint32
	// FaceIndex addresses Mesh.Faces.
	FaceIndex uint32
)

// inRange reports whether idx is set and addresses one of n elements.
func inRange[T ~uint32](idx T, n int) bool {
	return uint32(idx) != Invalid && int(idx) < n
}

// EdgeTag controls how an edge behaves under refinement.
type EdgeTag uint8

const (
	EdgeSmooth EdgeTag = iota
	EdgeCrease
	EdgeSemi
)

func (t EdgeTag) String() string {
	switch t {
	case EdgeSmooth:
		return "SMOOTH"
	case EdgeCrease:
		return "CREASE"
	case EdgeSemi:
		return "SEMI"
	default:
		return fmt.Sprintf("EdgeTag(%d)", uint8(t))
	}
}

// Vertex is a mesh vertex. Its position lives in the parallel
// Mesh.Positions attribute array.
type Vertex struct {
	Outgoing  HalfEdgeIndex // Invalid while isolated
	Sharpness float32
	Corner    bool
}

// Isolated reports whether no face uses the vertex.
func (v Vertex) Isolated() bool { return v.Outgoing == Invalid }

// HalfEdge is one directed side of an Edge, owned by exactly one Face.
type HalfEdge struct {
	To   VertexIndex
	Next HalfEdgeIndex
	Prev HalfEdgeIndex
	Twin HalfEdgeIndex // Invalid on a boundary
	Edge EdgeIndex
	Face FaceIndex
}

// IsBoundary reports whether the half-edge has no twin.
func (h HalfEdge) IsBoundary() bool { return h.Twin == Invalid }

// Edge is an undirected edge shared by one or two half-edges.
type Edge struct {
	Tag       EdgeTag
	Sharpness float32 // meaningful for EdgeSemi only
}

// Face is a polygon with Valence corners starting at half-edge Edge.
type Face struct {
	Edge    HalfEdgeIndex
	Valence uint32
}

func newVertex() Vertex {
	return Vertex{Outgoing: Invalid}
}

func newHalfEdge() HalfEdge {
	return HalfEdge{To: Invalid, Next: Invalid, Prev: Invalid, Twin: Invalid, Edge: Invalid, Face: Invalid}
}
