// Package snapshot saves and restores control meshes as msgpack documents.
// A snapshot stores geometry, face corner lists and tags only; restoring
// replays it through Mesh.AddVertex and Mesh.AddFace, so a restored mesh is
// checked exactly like one built by hand and its derived structures (twins,
// directed index, cache) are rebuilt rather than trusted.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chazu/subdiv/pkg/control"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/vmihailenco/msgpack/v5"
)

// Version is the current document version.
const Version = 1

var (
	// ErrVersion is returned when decoding a document from a newer writer.
	ErrVersion = errors.New("snapshot: unsupported version")
	// ErrUnknownEdge is returned when a tagged edge joins vertices that share
	// no edge in the restored mesh.
	ErrUnknownEdge = errors.New("snapshot: tagged edge not in mesh")
)

// Snapshot is the serialized form of one control mesh.
type Snapshot struct {
	Version   int          `msgpack:"version"`
	Name      string       `msgpack:"name"`
	Positions [][3]float32 `msgpack:"positions"`
	Faces     [][]uint32   `msgpack:"faces"`
	Edges     []EdgeTag    `msgpack:"edges,omitempty"`
	Vertices  []VertexTag  `msgpack:"vertices,omitempty"`
}

// EdgeTag records a non-smooth edge by its endpoints.
type EdgeTag struct {
	V0        uint32          `msgpack:"v0"`
	V1        uint32          `msgpack:"v1"`
	Tag       control.EdgeTag `msgpack:"tag"`
	Sharpness float32         `msgpack:"sharpness"`
}

// VertexTag records a vertex with non-default sharpness or corner flag.
type VertexTag struct {
	V         uint32  `msgpack:"v"`
	Sharpness float32 `msgpack:"sharpness"`
	Corner    bool    `msgpack:"corner"`
}

// Capture records m under name.
func Capture(name string, m *control.Mesh) *Snapshot {
	s := &Snapshot{
		Version:   Version,
		Name:      name,
		Positions: make([][3]float32, 0, m.NumVertices()),
		Faces:     make([][]uint32, 0, m.NumFaces()),
	}
	for _, p := range m.Positions() {
		s.Positions = append(s.Positions, [3]float32(p))
	}

	var corners []control.VertexIndex
	for f := 0; f < m.NumFaces(); f++ {
		corners = m.FaceVertices(control.FaceIndex(f), corners[:0])
		face := make([]uint32, len(corners))
		for i, v := range corners {
			face[i] = uint32(v)
		}
		s.Faces = append(s.Faces, face)
	}

	// Endpoints come from any half-edge of the edge.
	seen := make([]bool, m.NumEdges())
	for h, he := range m.HalfEdges() {
		e := he.Edge
		if int(e) >= len(seen) || seen[e] {
			continue
		}
		seen[e] = true
		edge := m.Edge(e)
		if edge.Tag == control.EdgeSmooth {
			continue
		}
		s.Edges = append(s.Edges, EdgeTag{
			V0:        uint32(m.FromVertex(control.HalfEdgeIndex(h))),
			V1:        uint32(he.To),
			Tag:       edge.Tag,
			Sharpness: edge.Sharpness,
		})
	}

	for v, vert := range m.Vertices() {
		if vert.Sharpness != 0 || vert.Corner {
			s.Vertices = append(s.Vertices, VertexTag{V: uint32(v), Sharpness: vert.Sharpness, Corner: vert.Corner})
		}
	}
	return s
}

// Restore rebuilds the mesh. Any rejected face or dangling tag aborts the
// restore.
func (s *Snapshot) Restore(opts ...control.Option) (*control.Mesh, error) {
	m := control.NewMesh(opts...)
	m.Reserve(len(s.Positions), len(s.Faces))
	for _, p := range s.Positions {
		m.AddVertex(mgl32.Vec3(p))
	}

	vs := make([]control.VertexIndex, 0, 8)
	for i, face := range s.Faces {
		vs = vs[:0]
		for _, v := range face {
			vs = append(vs, control.VertexIndex(v))
		}
		if _, err := m.AddFace(vs...); err != nil {
			return nil, fmt.Errorf("snapshot %q: face %d: %w", s.Name, i, err)
		}
	}

	for _, et := range s.Edges {
		e := m.FindEdge(control.VertexIndex(et.V0), control.VertexIndex(et.V1))
		if e == control.Invalid {
			return nil, fmt.Errorf("snapshot %q: edge %d-%d: %w", s.Name, et.V0, et.V1, ErrUnknownEdge)
		}
		var err error
		switch et.Tag {
		case control.EdgeCrease:
			err = m.SetEdgeCrease(e, true)
		case control.EdgeSemi:
			err = m.SetEdgeSharpness(e, et.Sharpness)
		}
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", s.Name, err)
		}
	}

	for _, vt := range s.Vertices {
		v := control.VertexIndex(vt.V)
		if err := m.SetVertexSharpness(v, vt.Sharpness); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", s.Name, err)
		}
		if err := m.SetCorner(v, vt.Corner); err != nil {
			return nil, fmt.Errorf("snapshot %q: %w", s.Name, err)
		}
	}
	return m, nil
}

// Encode writes snapshots as one msgpack array.
func Encode(w io.Writer, snaps ...*Snapshot) error {
	enc := msgpack.NewEncoder(w)
	enc.UseCompactInts(true)
	if err := enc.Encode(snaps); err != nil {
		return fmt.Errorf("snapshot: encode: %w", err)
	}
	return nil
}

// Decode reads what Encode wrote.
func Decode(r io.Reader) ([]*Snapshot, error) {
	var snaps []*Snapshot
	if err := msgpack.NewDecoder(r).Decode(&snaps); err != nil {
		return nil, fmt.Errorf("snapshot: decode: %w", err)
	}
	for _, s := range snaps {
		if s == nil {
			return nil, fmt.Errorf("snapshot: decode: nil entry")
		}
		if s.Version > Version {
			return nil, fmt.Errorf("snapshot %q: version %d: %w", s.Name, s.Version, ErrVersion)
		}
	}
	return snaps, nil
}

// WriteFile encodes snaps to path, replacing any existing file.
func WriteFile(path string, snaps ...*Snapshot) error {
	var buf bytes.Buffer
	if err := Encode(&buf, snaps...); err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// ReadFile decodes the snapshots stored at path.
func ReadFile(path string) ([]*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	defer f.Close()
	return Decode(f)
}
