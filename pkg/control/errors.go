package control

import (
	"errors"
	"fmt"

	"github.com/chazu/subdiv/pkg/diagnostics"
)

// Stable issue codes reported by construction and validation.
const (
	CodeFaceTooFewVertices    diagnostics.Code = "FACE_TOO_FEW_VERTICES"
	CodeInvalidVertexIndex    diagnostics.Code = "INVALID_VERTEX_INDEX"
	CodeDuplicateVertexInFace diagnostics.Code = "DUPLICATE_VERTEX_IN_FACE"
	CodeDuplicateDirectedEdge diagnostics.Code = "DUPLICATE_DIRECTED_EDGE"
	CodeNonManifoldEdge       diagnostics.Code = "NON_MANIFOLD_EDGE"
	CodeStarWalkLimit         diagnostics.Code = "STAR_WALK_LIMIT"

	CodeInvalidHalfEdgeTo     diagnostics.Code = "INVALID_HALFEDGE_TO"
	CodeInvalidHalfEdgeNext   diagnostics.Code = "INVALID_HALFEDGE_NEXT"
	CodeInvalidHalfEdgePrev   diagnostics.Code = "INVALID_HALFEDGE_PREV"
	CodeInvalidHalfEdgeTwin   diagnostics.Code = "INVALID_HALFEDGE_TWIN"
	CodeInvalidHalfEdgeEdge   diagnostics.Code = "INVALID_HALFEDGE_EDGE"
	CodeInvalidHalfEdgeFace   diagnostics.Code = "INVALID_HALFEDGE_FACE"
	CodeBrokenNextLink        diagnostics.Code = "BROKEN_NEXT_LINK"
	CodeBrokenPrevLink        diagnostics.Code = "BROKEN_PREV_LINK"
	CodeBrokenTwinLink        diagnostics.Code = "BROKEN_TWIN_LINK"
	CodeTwinEdgeMismatch      diagnostics.Code = "TWIN_EDGE_MISMATCH"
	CodeTwinEndpointMismatch  diagnostics.Code = "TWIN_ENDPOINT_MISMATCH"
	CodeInvalidFaceEdge       diagnostics.Code = "INVALID_FACE_EDGE"
	CodeFaceValenceTooSmall   diagnostics.Code = "FACE_VALENCE_TOO_SMALL"
	CodeFaceLoopInvalidIndex  diagnostics.Code = "FACE_LOOP_INVALID_INDEX"
	CodeFaceLoopWrongFace     diagnostics.Code = "FACE_LOOP_WRONG_FACE"
	CodeFaceLoopTooLong       diagnostics.Code = "FACE_LOOP_TOO_LONG"
	CodeFaceValenceMismatch   diagnostics.Code = "FACE_VALENCE_MISMATCH"
	CodeOrphanedEdge          diagnostics.Code = "ORPHANED_EDGE"
	CodeInvalidVertexOutgoing diagnostics.Code = "INVALID_VERTEX_OUTGOING"
	CodeOutgoingWrongSource   diagnostics.Code = "OUTGOING_WRONG_SOURCE"
	CodeEdgeMapStale          diagnostics.Code = "EDGE_MAP_STALE"
	CodePositionCountMismatch diagnostics.Code = "POSITION_COUNT_MISMATCH"
	CodeNonManifoldVertex     diagnostics.Code = "NON_MANIFOLD_VERTEX"

	CodeNonManifoldEdgeDetected diagnostics.Code = "NON_MANIFOLD_EDGE_DETECTED"
	CodeCycleInFace             diagnostics.Code = "CYCLE_IN_FACE"
	CodeOneRingCountMismatch    diagnostics.Code = "ONE_RING_COUNT_MISMATCH"
	CodeOneRingCycle            diagnostics.Code = "ONE_RING_CYCLE"
	CodeVertexFaceCSRIncomplete diagnostics.Code = "VERTEX_FACE_CSR_INCOMPLETE"
	CodeEdgeFaceCSRIncomplete   diagnostics.Code = "EDGE_FACE_CSR_INCOMPLETE"
)

var (
	// ErrTooFewVertices is returned by AddFace for fewer than three corners.
	ErrTooFewVertices = errors.New("face needs at least 3 vertices")

	// ErrVertexOutOfRange is returned by AddFace when a corner does not exist.
	ErrVertexOutOfRange = errors.New("vertex index out of range")

	// ErrDuplicateVertex is returned by AddFace when a corner repeats.
	ErrDuplicateVertex = errors.New("vertex repeated within face")

	// ErrDuplicateDirectedEdge is returned by AddFace when one of its directed
	// edges already belongs to another face, which means inconsistent winding.
	ErrDuplicateDirectedEdge = errors.New("directed edge already exists")

	// ErrNonManifoldEdge is returned by AddFace when an edge would gain a
	// third face.
	ErrNonManifoldEdge = errors.New("edge would become non-manifold")

	// ErrTraversalLimit is returned when a vertex star walk exceeds its step
	// cap. The mesh is corrupt.
	ErrTraversalLimit = errors.New("traversal step limit exceeded")

	// ErrIndexOutOfRange is returned by edit operations given a bad index.
	ErrIndexOutOfRange = errors.New("index out of range")
)

// FaceError describes a rejected AddFace call. The mesh is unchanged.
type FaceError struct {
	Code    diagnostics.Code
	Context string
	Err     error
}

func (e *FaceError) Error() string {
	return fmt.Sprintf("control: add face: %s: %v (%s)", e.Code, e.Err, e.Context)
}

func (e *FaceError) Unwrap() error { return e.Err }

// CodeOf extracts the stable code from an AddFace error, or "" if err is not
// a *FaceError.
func CodeOf(err error) diagnostics.Code {
	var fe *FaceError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
