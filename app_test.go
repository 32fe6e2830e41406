package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/chazu/subdiv/pkg/config"
	"github.com/chazu/subdiv/pkg/control"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestApp returns an App with a coarse kernel and a silent logger.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.Kernel.MeshCells = 16
	cfg.Diagnostics.Mode = "full"
	return NewApp(cfg, slog.New(slog.DiscardHandler))
}

// TestE2ECageExample exercises the full path: source -> engine -> scene ->
// pipeline -> frontend meshes. It is the path the Wails Evaluate binding
// takes, without the Wails runtime.
func TestE2ECageExample(t *testing.T) {
	source, err := os.ReadFile("examples/cage.subdiv")
	require.NoError(t, err)

	result := newTestApp(t).Evaluate(string(source))
	require.Empty(t, result.Errors)
	assert.Empty(t, result.Warnings)
	require.Len(t, result.Meshes, 2)

	cage := result.Meshes[0]
	assert.Equal(t, "cage", cage.Name)
	assert.Equal(t, config.DefaultPalette[0], cage.Color)
	assert.Equal(t, 8, cage.Stats.Vertices)
	assert.Len(t, cage.Positions, 8*3)
	assert.Len(t, cage.Normals, 8*3)
	assert.Len(t, cage.Indices, 12*3)
	assert.Len(t, cage.Lines, 12*2)
	assert.Len(t, cage.Creases, 2*2, "one crease and one semi-sharp edge")

	floor := result.Meshes[1]
	assert.Equal(t, "floor", floor.Name)
	assert.Equal(t, config.DefaultPalette[1], floor.Color)
	assert.Equal(t, 16, floor.Stats.Faces)
	assert.Equal(t, 16, floor.Stats.BoundaryEdges)
	assert.True(t, floor.Stats.Valid)

	assert.Contains(t, result.Diagnostics.Profiling, "Mesh.AddFace")
}

func TestE2EManualExampleWarns(t *testing.T) {
	result := newTestApp(t).LoadFile("examples/manual.subdiv")
	require.Empty(t, result.Errors)
	require.Len(t, result.Meshes, 1)
	assert.Equal(t, 2, result.Meshes[0].Stats.Faces)

	require.NotEmpty(t, result.Warnings)
	assert.Equal(t, "strip", result.Warnings[0].Mesh)
	assert.Equal(t, string(control.CodeDuplicateDirectedEdge), result.Warnings[0].Code)
	assert.Contains(t, result.Diagnostics.Errors, string(control.CodeDuplicateDirectedEdge))
}

func TestEvaluateRejectedFaceCodes(t *testing.T) {
	const strip = `(mesh "strip")
(def a (vertex 0 0 0))
(def b (vertex 1 0 0))
(def c (vertex 0 1 0))
(def d (vertex 1 1 0))
(face a b c)
(face b d c)
`
	tests := []struct {
		name string
		face string
		want string
	}{
		{"repeated boundary winding", "(face a b d)", string(control.CodeDuplicateDirectedEdge)},
		{"third face on shared edge", "(face c b d)", string(control.CodeNonManifoldEdge)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := newTestApp(t).Evaluate(strip + tt.face)
			require.Empty(t, result.Errors)
			require.Len(t, result.Warnings, 1)
			assert.Equal(t, tt.want, result.Warnings[0].Code)
			assert.Contains(t, result.Diagnostics.Errors, tt.want)
			assert.Contains(t, result.Diagnostics.Profiling, "Mesh.AddFace")
		})
	}
}

func TestE2EWeldedExample(t *testing.T) {
	result := newTestApp(t).LoadFile("examples/welded.subdiv")
	require.Empty(t, result.Errors)
	require.Len(t, result.Meshes, 1)
	m := result.Meshes[0]
	assert.Equal(t, "bracket", m.Name)
	assert.Positive(t, m.Stats.Faces)
	assert.NotEmpty(t, m.Indices)
}

func TestE2ELoadFileMissing(t *testing.T) {
	result := newTestApp(t).LoadFile(filepath.Join(t.TempDir(), "missing.subdiv"))
	require.Len(t, result.Errors, 1)
	assert.NotNil(t, result.Meshes)
	assert.NotNil(t, result.Warnings)
}

func TestE2EWatchFileEmitsUpdates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "live.subdiv")
	require.NoError(t, os.WriteFile(path, []byte(`(mesh "a") (cube 1)`), 0o644))

	app := newTestApp(t)
	var mu sync.Mutex
	var names []string
	app.emit = func(_ context.Context, name string, data ...any) {
		assert.Equal(t, EventSceneUpdated, name)
		if !assert.Len(t, data, 1) {
			return
		}
		res, ok := data[0].(EvalResult)
		if !assert.True(t, ok) {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, m := range res.Meshes {
			names = append(names, m.Name)
		}
	}
	require.NoError(t, app.WatchFile(path))
	defer app.StopWatching()

	seen := func(name string) func() bool {
		return func() bool {
			mu.Lock()
			defer mu.Unlock()
			for _, n := range names {
				if n == name {
					return true
				}
			}
			return false
		}
	}
	require.Eventually(t, seen("a"), 5*time.Second, 10*time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte(`(mesh "b") (cube 1)`), 0o644))
	require.Eventually(t, seen("b"), 5*time.Second, 10*time.Millisecond)
}

func TestE2EWatchFileMissing(t *testing.T) {
	assert.Error(t, newTestApp(t).WatchFile(filepath.Join(t.TempDir(), "missing.subdiv")))
}
