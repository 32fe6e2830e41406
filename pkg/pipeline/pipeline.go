// Package pipeline turns an evaluated scene into render-ready results. Each
// named mesh is validated, indexed and flattened on its own goroutine; the
// meshes share nothing, so no locking is needed beyond the sink's own.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/chazu/subdiv/pkg/control"
	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/engine"
	"github.com/chazu/subdiv/pkg/render"
	"golang.org/x/sync/errgroup"
)

// Options tunes Process.
type Options struct {
	// Concurrency caps the meshes processed at once. Zero means GOMAXPROCS.
	Concurrency int
}

// Stats summarizes one processed mesh.
type Stats struct {
	Vertices         int  `json:"vertices"`
	Faces            int  `json:"faces"`
	Edges            int  `json:"edges"`
	BoundaryVertices int  `json:"boundaryVertices"`
	BoundaryEdges    int  `json:"boundaryEdges"`
	MaxValence       int  `json:"maxValence"`
	Valid            bool `json:"valid"`
}

func (s Stats) String() string {
	state := "valid"
	if !s.Valid {
		state = "INVALID"
	}
	return fmt.Sprintf("%d vertices, %d faces, %d edges (%d boundary), max valence %d, %s",
		s.Vertices, s.Faces, s.Edges, s.BoundaryEdges, s.MaxValence, state)
}

// Result is the outcome for one named mesh. Buffers is nil when the mesh is
// too corrupt to draw; Issues then says why.
type Result struct {
	Name    string
	Mesh    *control.Mesh
	Buffers *render.Buffers
	Stats   Stats
	Issues  []diagnostics.Issue
}

// Process runs every mesh in scene through validation, cache construction
// and buffer generation. Results keep scene order. A corrupt mesh is not an
// error; cancellation is.
func Process(ctx context.Context, scene *engine.Scene, opts Options) ([]Result, error) {
	if scene == nil {
		return nil, nil
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	results := make([]Result, len(scene.Meshes))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for i, nm := range scene.Meshes {
		eg.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			r, err := processMesh(nm)
			if err != nil {
				return fmt.Errorf("pipeline: mesh %q: %w", nm.Name, err)
			}
			results[i] = r
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func processMesh(nm *engine.NamedMesh) (Result, error) {
	m := nm.Mesh
	vr := m.Validate()
	issues := append([]diagnostics.Issue(nil), vr.Issues...)
	issues = append(issues, m.BuildCache()...)

	c := m.Cache()
	r := Result{
		Name: nm.Name,
		Mesh: m,
		Stats: Stats{
			Vertices:         c.NumVertices(),
			Faces:            c.NumFaces(),
			Edges:            c.NumEdges(),
			BoundaryVertices: c.NumBoundaryVertices(),
			BoundaryEdges:    c.NumBoundaryEdges(),
			MaxValence:       c.MaxValence(),
			Valid:            vr.Valid(),
		},
		Issues: issues,
	}

	buf, err := render.Build(m)
	switch {
	case errors.Is(err, render.ErrCorruptMesh):
		return r, nil
	case err != nil:
		return Result{}, err
	}
	buf.Name = nm.Name
	r.Buffers = buf
	return r, nil
}
