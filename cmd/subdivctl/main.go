// Command subdivctl evaluates a subdiv script and prints a report for each
// control mesh it builds.
//
//	subdivctl [-config subdiv.yaml] [-snapshot out.msgpack] [-watch] [-v] script.subdiv
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/subdiv/pkg/config"
	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/engine"
	"github.com/chazu/subdiv/pkg/kernel/sdfx"
	"github.com/chazu/subdiv/pkg/pipeline"
	"github.com/chazu/subdiv/pkg/snapshot"
	"github.com/chazu/subdiv/pkg/weld"
)

// errScript marks a run whose script failed; the report has already been
// printed.
var errScript = errors.New("script failed")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	configPath string
	snapPath   string
	watch      bool
	verbose    bool
	script     string
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("subdivctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.configPath, "config", "", "YAML configuration file")
	fs.StringVar(&o.snapPath, "snapshot", "", "write the built meshes to this msgpack file")
	fs.BoolVar(&o.watch, "watch", false, "re-run whenever the script changes")
	fs.BoolVar(&o.verbose, "v", false, "print the full diagnostics report")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: subdivctl [flags] script.subdiv")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return o, errors.New("expected exactly one script")
	}
	o.script = fs.Arg(0)
	return o, nil
}

// runner holds what one invocation shares across re-runs.
type runner struct {
	opts   options
	cfg    config.Config
	log    *slog.Logger
	diag   *diagnostics.Context
	engine *engine.Engine
	out    io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 2
	}
	level, _ := cfg.LogLevel()
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	diag := diagnostics.NewContext(cfg.DiagnosticsMode(), diagnostics.WithLogger(logger))

	r := &runner{
		opts: opts,
		cfg:  cfg,
		log:  logger,
		diag: diag,
		engine: engine.NewEngine(
			engine.WithTimeout(cfg.Engine.Timeout),
			engine.WithKernel(sdfx.New(sdfx.WithMeshCells(cfg.Kernel.MeshCells))),
			engine.WithWeldOptions(weld.Options{Tolerance: cfg.Weld.Tolerance}),
			engine.WithDiagnostics(diag),
		),
		out: stdout,
	}

	if !opts.watch {
		source, err := os.ReadFile(opts.script)
		if err != nil {
			logger.Error("read script", "err", err)
			return 1
		}
		if err := r.once(ctx, string(source)); err != nil {
			if !errors.Is(err, errScript) {
				logger.Error("run", "err", err)
			}
			return 1
		}
		return 0
	}

	err = pipeline.Watch(ctx, opts.script, pipeline.DefaultSettle, func(source string, err error) {
		if err != nil {
			logger.Warn("watch", "err", err)
			return
		}
		fmt.Fprintf(stdout, "=== %s ===\n", opts.script)
		if err := r.once(ctx, source); err != nil && !errors.Is(err, errScript) {
			logger.Error("run", "err", err)
		}
	})
	if err != nil {
		logger.Error("watch", "err", err)
		return 1
	}
	return 0
}

// once evaluates source, prints the report and writes the snapshot.
func (r *runner) once(ctx context.Context, source string) error {
	r.diag.Clear()
	res, err := r.engine.Evaluate(source)
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(r.out, "warning: %s\n", w)
	}
	if len(res.Errors) > 0 {
		for _, e := range res.Errors {
			fmt.Fprintf(r.out, "error: %s\n", e.Error())
		}
		return errScript
	}

	results, err := pipeline.Process(ctx, res.Scene, pipeline.Options{})
	if err != nil {
		return err
	}
	snaps := make([]*snapshot.Snapshot, 0, len(results))
	for _, pr := range results {
		fmt.Fprintf(r.out, "mesh %q: %s\n", pr.Name, pr.Stats)
		for _, is := range pr.Issues {
			fmt.Fprintf(r.out, "  %s\n", is.Error())
		}
		if pr.Buffers != nil {
			fmt.Fprintf(r.out, "  %d triangles, %d lines, %d creases\n",
				pr.Buffers.TriangleCount(), pr.Buffers.LineCount(), len(pr.Buffers.Creases)/2)
		}
		snaps = append(snaps, snapshot.Capture(pr.Name, pr.Mesh))
	}
	if r.opts.verbose {
		fmt.Fprint(r.out, r.diag.FullReport())
	}

	if r.opts.snapPath != "" {
		if err := snapshot.WriteFile(r.opts.snapPath, snaps...); err != nil {
			return err
		}
		r.log.Info("snapshot written", "path", r.opts.snapPath, "meshes", len(snaps))
	}
	return nil
}
