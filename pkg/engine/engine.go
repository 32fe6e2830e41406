// Package engine evaluates subdiv scripts. A script is zygomys Lisp run in a
// fresh sandbox whose builtins build named control meshes, either vertex by
// vertex or by welding kernel solids.
package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chazu/subdiv/pkg/diagnostics"
	"github.com/chazu/subdiv/pkg/kernel"
	"github.com/chazu/subdiv/pkg/kernel/sdfx"
	"github.com/chazu/subdiv/pkg/weld"
	zygo "github.com/glycerine/zygomys/zygo"
)

// EvalError represents a non-fatal error encountered during evaluation,
// such as a parse error or a runtime error in user code.
type EvalError struct {
	Line    int
	Col     int
	Message string
}

func (e EvalError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s", e.Line, e.Message)
	}
	return e.Message
}

// EvalWarning is a problem that did not stop the script, such as a face the
// mesh refused.
type EvalWarning struct {
	Mesh    string
	Code    diagnostics.Code
	Message string
}

func (w EvalWarning) String() string {
	return fmt.Sprintf("%s: %s: %s", w.Mesh, w.Code, w.Message)
}

// EvalResult bundles the full output of an evaluation. Scene is nil when
// Errors is non-empty.
type EvalResult struct {
	Scene    *Scene
	Errors   []EvalError
	Warnings []EvalWarning
}

// Engine wraps the zygomys interpreter. It is safe for concurrent use; each
// call to Evaluate creates a fresh sandbox and fresh meshes.
type Engine struct {
	mu         sync.Mutex
	generation uint64

	timeout time.Duration
	kernel  kernel.Kernel
	weld    weld.Options
	sink    diagnostics.Sink
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout bounds each evaluation. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithKernel sets the kernel behind the solid builtins.
func WithKernel(k kernel.Kernel) Option {
	return func(e *Engine) { e.kernel = k }
}

// WithWeldOptions sets how (weld ...) merges soup corners.
func WithWeldOptions(o weld.Options) Option {
	return func(e *Engine) { e.weld = o }
}

// WithDiagnostics attaches sink to every mesh a script builds.
func WithDiagnostics(sink diagnostics.Sink) Option {
	return func(e *Engine) { e.sink = sink }
}

// NewEngine creates a new Engine. Without options it uses the sdfx kernel
// and a five second timeout.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{timeout: DefaultTimeout}
	for _, o := range opts {
		o(e)
	}
	if e.kernel == nil {
		e.kernel = sdfx.New()
	}
	e.sink = diagnostics.OrNop(e.sink)
	return e
}

// Timeout returns the evaluation limit.
func (e *Engine) Timeout() time.Duration { return e.timeout }

// Evaluate runs source and returns the scene it built.
//
// Return semantics:
//   - On success: scene set, no errors, nil error. Warnings may be present.
//   - On parse/eval failure: nil scene, eval errors, nil error.
//   - On fatal failure (timeout, panic, superseded): nil error result and
//     a non-nil error.
func (e *Engine) Evaluate(source string) (EvalResult, error) {
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.mu.Unlock()

	ch := make(chan evalResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- evalResult{err: fmt.Errorf("panic during evaluation: %v", r)}
			}
		}()

		ch <- evalResult{res: e.evaluate(source)}
	}()

	return waitWithTimeout(ch, gen, e.timeout, &e.mu, &e.generation)
}

// evaluate performs the actual zygomys evaluation in a fresh sandbox.
func (e *Engine) evaluate(source string) EvalResult {
	b := newBuilder(e.kernel, e.weld, e.sink)

	// Empty source is a valid program that builds nothing.
	if strings.TrimSpace(source) == "" {
		return EvalResult{Scene: b.scene}
	}

	// Sandbox mode prevents user code from accessing the filesystem or syscalls.
	env := zygo.NewZlispSandbox()
	defer env.Stop()
	b.register(env)

	if err := env.LoadString(preprocessSource(source)); err != nil {
		return EvalResult{Errors: parseZygomysError(err), Warnings: b.warnings}
	}
	if _, err := env.Run(); err != nil {
		return EvalResult{Errors: parseZygomysError(err), Warnings: b.warnings}
	}
	return EvalResult{Scene: b.scene, Warnings: b.warnings}
}

// linePattern matches zygomys error messages that include "Error on line N: ..."
var linePattern = regexp.MustCompile(`(?i)(?:error )?on line (\d+):\s*(.*)`)

// linePatternShort matches simpler "line N: ..." patterns.
var linePatternShort = regexp.MustCompile(`(?i)^line (\d+):\s*(.*)`)

// parseZygomysError converts a zygomys error into one or more EvalError values.
func parseZygomysError(err error) []EvalError {
	msg := err.Error()
	for _, re := range []*regexp.Regexp{linePattern, linePatternShort} {
		if m := re.FindStringSubmatch(msg); m != nil {
			line, _ := strconv.Atoi(m[1])
			return []EvalError{{Line: line, Message: strings.TrimSpace(m[2])}}
		}
	}
	return []EvalError{{Message: strings.TrimSpace(msg)}}
}
