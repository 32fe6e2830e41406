package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/chazu/subdiv/pkg/config"
	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/engine"
	"github.com/chazu/subdiv/pkg/kernel/sdfx"
	"github.com/chazu/subdiv/pkg/pipeline"
	"github.com/chazu/subdiv/pkg/weld"
	"github.com/wailsapp/wails/v2/pkg/runtime"
)

// EventSceneUpdated is emitted with an EvalResult whenever a watched file
// is re-evaluated.
const EventSceneUpdated = "scene:updated"

// App is the Wails backend. It exposes methods to the frontend via bindings.
type App struct {
	ctx    context.Context
	cfg    config.Config
	log    *slog.Logger
	diag   *diagnostics.Context
	engine *engine.Engine

	// evalMu serializes evaluations so diagnostics summaries belong to the
	// result they are returned with.
	evalMu sync.Mutex

	watchMu     sync.Mutex
	cancelWatch context.CancelFunc

	// emit delivers runtime events; tests replace it.
	emit func(ctx context.Context, name string, data ...any)
}

// MeshData is the JSON-serializable mesh format sent to the frontend.
type MeshData struct {
	Name      string         `json:"name"`
	Color     string         `json:"color"`
	Positions []float32      `json:"positions"`
	Normals   []float32      `json:"normals"`
	Indices   []uint32       `json:"indices"`
	Lines     []uint32       `json:"lines"`
	Creases   []uint32       `json:"creases"`
	Stats     pipeline.Stats `json:"stats"`
}

// EvalErrorData is a JSON-serializable eval error for the frontend.
type EvalErrorData struct {
	Line    int    `json:"line"`
	Col     int    `json:"col"`
	Message string `json:"message"`
}

// WarningData is a non-fatal problem tied to a mesh.
type WarningData struct {
	Mesh    string `json:"mesh"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DiagnosticsData carries the diagnostics context summaries.
type DiagnosticsData struct {
	Errors    string `json:"errors"`
	Profiling string `json:"profiling"`
	Memory    string `json:"memory"`
}

// EvalResult is the full result returned to the frontend.
type EvalResult struct {
	Meshes      []MeshData      `json:"meshes"`
	Errors      []EvalErrorData `json:"errors"`
	Warnings    []WarningData   `json:"warnings"`
	Diagnostics DiagnosticsData `json:"diagnostics"`
}

// NewApp creates an App configured by cfg. A nil logger logs to stderr at
// the configured level.
func NewApp(cfg config.Config, logger *slog.Logger) *App {
	if logger == nil {
		level, err := cfg.LogLevel()
		if err != nil {
			level = slog.LevelInfo
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}
	diag := diagnostics.NewContext(cfg.DiagnosticsMode(), diagnostics.WithLogger(logger))
	return &App{
		ctx:  context.Background(),
		cfg:  cfg,
		log:  logger,
		diag: diag,
		engine: engine.NewEngine(
			engine.WithTimeout(cfg.Engine.Timeout),
			engine.WithKernel(sdfx.New(sdfx.WithMeshCells(cfg.Kernel.MeshCells))),
			engine.WithWeldOptions(weld.Options{Tolerance: cfg.Weld.Tolerance}),
			engine.WithDiagnostics(diag),
		),
		emit: runtime.EventsEmit,
	}
}

// startup is called by Wails on app startup. The context is saved
// so runtime events can be emitted later.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
}

// shutdown stops any file watch.
func (a *App) shutdown(ctx context.Context) {
	a.StopWatching()
}

// Evaluate takes Lisp source and returns mesh data + errors.
// This is the primary binding called by the frontend editor.
func (a *App) Evaluate(source string) (result EvalResult) {
	a.evalMu.Lock()
	defer a.evalMu.Unlock()

	a.diag.Clear()
	result = EvalResult{
		Meshes:   []MeshData{},
		Errors:   []EvalErrorData{},
		Warnings: []WarningData{},
	}
	defer func() {
		result.Diagnostics = DiagnosticsData{
			Errors:    a.diag.ErrorSummary(),
			Profiling: a.diag.ProfilingSummary(),
			Memory:    a.diag.MemorySummary(),
		}
	}()

	// Step 1: Evaluate the Lisp source into a scene of control meshes.
	res, err := a.engine.Evaluate(source)
	if err != nil {
		// Fatal error (panic, timeout, etc.)
		a.log.Error("evaluate failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: err.Error()})
		return result
	}
	for _, w := range res.Warnings {
		result.Warnings = append(result.Warnings, WarningData{Mesh: w.Mesh, Code: string(w.Code), Message: w.Message})
	}

	// Step 2: Convert eval errors to the frontend format.
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			result.Errors = append(result.Errors, EvalErrorData{Line: e.Line, Col: e.Col, Message: e.Message})
		}
		return result
	}

	// Step 3: Validate, index and flatten each mesh.
	processed, err := pipeline.Process(a.ctx, res.Scene, pipeline.Options{})
	if err != nil {
		a.log.Error("pipeline failed", "err", err)
		result.Errors = append(result.Errors, EvalErrorData{Message: "pipeline failed: " + err.Error()})
		return result
	}

	// Step 4: Convert buffers to the frontend MeshData format.
	for i, r := range processed {
		for _, is := range r.Issues {
			result.Warnings = append(result.Warnings, WarningData{Mesh: r.Name, Code: string(is.Code), Message: is.Message})
		}
		if r.Buffers == nil {
			continue
		}
		result.Meshes = append(result.Meshes, MeshData{
			Name:      r.Name,
			Color:     a.cfg.Color(i),
			Positions: r.Buffers.Positions,
			Normals:   r.Buffers.Normals,
			Indices:   r.Buffers.Triangles,
			Lines:     r.Buffers.Lines,
			Creases:   r.Buffers.Creases,
			Stats:     r.Stats,
		})
		a.log.Debug("mesh built", "mesh", r.Name, "stats", r.Stats.String())
	}
	return result
}

// LoadFile reads a script from disk and evaluates it.
func (a *App) LoadFile(path string) EvalResult {
	data, err := os.ReadFile(path)
	if err != nil {
		a.log.Error("load failed", "path", path, "err", err)
		return EvalResult{
			Meshes:   []MeshData{},
			Errors:   []EvalErrorData{{Message: err.Error()}},
			Warnings: []WarningData{},
		}
	}
	return a.Evaluate(string(data))
}

// WatchFile evaluates path now and after every save, emitting
// EventSceneUpdated each time. It replaces any earlier watch.
func (a *App) WatchFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	a.watchMu.Lock()
	if a.cancelWatch != nil {
		a.cancelWatch()
	}
	ctx, cancel := context.WithCancel(a.ctx)
	a.cancelWatch = cancel
	a.watchMu.Unlock()

	go func() {
		err := pipeline.Watch(ctx, path, pipeline.DefaultSettle, func(source string, err error) {
			if err != nil {
				a.log.Warn("watch", "path", path, "err", err)
				return
			}
			a.log.Info("reloading", "path", path)
			a.emit(a.ctx, EventSceneUpdated, a.Evaluate(source))
		})
		if err != nil {
			a.log.Error("watch stopped", "path", path, "err", err)
		}
	}()
	return nil
}

// StopWatching ends the current file watch, if any.
func (a *App) StopWatching() {
	a.watchMu.Lock()
	defer a.watchMu.Unlock()
	if a.cancelWatch != nil {
		a.cancelWatch()
		a.cancelWatch = nil
	}
}
