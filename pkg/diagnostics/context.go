package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
)

// Mode selects what a Context records.
type Mode int

const (
	ModeDisabled Mode = iota
	ModeErrorsOnly
	ModeErrorsAndProfiling
	ModeFull
)

// String returns the configuration spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeDisabled:
		return "disabled"
	case ModeErrorsOnly:
		return "errors"
	case ModeErrorsAndProfiling:
		return "profiling"
	case ModeFull:
		return "full"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts the spellings produced by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "disabled", "off":
		return ModeDisabled, nil
	case "errors", "errors-only":
		return ModeErrorsOnly, nil
	case "profiling", "errors-and-profiling":
		return ModeErrorsAndProfiling, nil
	case "full":
		return ModeFull, nil
	}
	return ModeDisabled, fmt.Errorf("diagnostics: unknown mode %q", s)
}

// Timing aggregates samples for one named operation.
type Timing struct {
	Name  string
	Calls int
	Total time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Avg returns the mean sample duration.
func (t Timing) Avg() time.Duration {
	if t.Calls == 0 {
		return 0
	}
	return t.Total / time.Duration(t.Calls)
}

func (t *Timing) add(d time.Duration) {
	if t.Calls == 0 || d < t.Min {
		t.Min = d
	}
	if d > t.Max {
		t.Max = d
	}
	t.Total += d
	t.Calls++
}

// Memory tracks allocation events for one category.
type Memory struct {
	Name        string
	Allocated   int
	Peak        int
	Allocations int
}

// Context is a scoped Sink that records issues, timings and memory events
// according to its Mode. It is safe for concurrent use.
type Context struct {
	mu      sync.Mutex
	mode    Mode
	issues  []Issue
	timings map[string]*Timing
	memory  map[string]*Memory
	logger  *slog.Logger
	now     func() time.Time
}

var _ Sink = (*Context)(nil)

// Option configures a Context.
type Option func(*Context)

// WithLogger forwards every recorded issue to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Context) { c.logger = logger }
}

// withClock replaces the time source; tests use it for deterministic timings.
func withClock(now func() time.Time) Option {
	return func(c *Context) { c.now = now }
}

// NewContext returns a Context recording in mode.
func NewContext(mode Mode, opts ...Option) *Context {
	c := &Context{
		mode:    mode,
		timings: make(map[string]*Timing),
		memory:  make(map[string]*Memory),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enable switches the recording mode.
func (c *Context) Enable(mode Mode) {
	c.mu.Lock()
	c.mode = mode
	c.mu.Unlock()
}

// Disable stops recording. Data already recorded is kept.
func (c *Context) Disable() { c.Enable(ModeDisabled) }

// Enabled reports whether anything is being recorded.
func (c *Context) Enabled() bool { return c.Mode() != ModeDisabled }

// Mode returns the current recording mode.
func (c *Context) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// AddError implements Sink.
func (c *Context) AddError(sev Severity, code Code, message, ctx string) {
	c.mu.Lock()
	if c.mode == ModeDisabled {
		c.mu.Unlock()
		return
	}
	issue := Issue{Severity: sev, Code: code, Message: message, Context: ctx}
	c.issues = append(c.issues, issue)
	logger := c.logger
	c.mu.Unlock()

	if logger == nil {
		return
	}
	attrs := []any{slog.String("code", string(code)), slog.String("context", ctx)}
	switch sev {
	case SeverityWarning:
		logger.Warn(message, attrs...)
	case SeverityFatal:
		logger.Log(context.Background(), slog.LevelError, message, append(attrs, slog.Bool("fatal", true))...)
	default:
		logger.Error(message, attrs...)
	}
}

// StartTimer implements Sink. Timings are kept in profiling and full modes.
func (c *Context) StartTimer(name string) func() {
	mode := c.Mode()
	if mode != ModeErrorsAndProfiling && mode != ModeFull {
		return noop
	}
	start := c.now()
	return func() {
		c.RecordTiming(name, c.now().Sub(start))
	}
}

// RecordTiming adds one sample for name.
func (c *Context) RecordTiming(name string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeErrorsAndProfiling && c.mode != ModeFull {
		return
	}
	t, ok := c.timings[name]
	if !ok {
		t = &Timing{Name: name}
		c.timings[name] = t
	}
	t.add(d)
}

// RecordAllocation implements Sink. Memory is kept in full mode only.
func (c *Context) RecordAllocation(category string, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeFull {
		return
	}
	m := c.memoryLocked(category)
	m.Allocated += bytes
	if m.Allocated > m.Peak {
		m.Peak = m.Allocated
	}
	m.Allocations++
}

// RecordDeallocation implements Sink. The allocated total never drops below zero.
func (c *Context) RecordDeallocation(category string, bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeFull {
		return
	}
	m := c.memoryLocked(category)
	if bytes > m.Allocated {
		m.Allocated = 0
	} else {
		m.Allocated -= bytes
	}
}

func (c *Context) memoryLocked(category string) *Memory {
	m, ok := c.memory[category]
	if !ok {
		m = &Memory{Name: category}
		c.memory[category] = m
	}
	return m
}

// Issues returns a copy of every recorded issue in report order.
func (c *Context) Issues() []Issue {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Issue, len(c.issues))
	copy(out, c.issues)
	return out
}

// LastIssue returns the most recent issue, if any.
func (c *Context) LastIssue() (Issue, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.issues) == 0 {
		return Issue{}, false
	}
	return c.issues[len(c.issues)-1], true
}

func (c *Context) hasSeverity(match func(Severity) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, i := range c.issues {
		if match(i.Severity) {
			return true
		}
	}
	return false
}

// HasErrors reports whether any ERROR or FATAL issue was recorded.
func (c *Context) HasErrors() bool {
	return c.hasSeverity(func(s Severity) bool { return s >= SeverityError })
}

// HasWarnings reports whether any WARNING was recorded.
func (c *Context) HasWarnings() bool {
	return c.hasSeverity(func(s Severity) bool { return s == SeverityWarning })
}

// HasFatal reports whether any FATAL issue was recorded.
func (c *Context) HasFatal() bool {
	return c.hasSeverity(func(s Severity) bool { return s == SeverityFatal })
}

// Timings returns a snapshot of all timings sorted by name.
func (c *Context) Timings() []Timing {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Timing, 0, len(c.timings))
	for _, t := range c.timings {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Memory returns a snapshot of all memory categories sorted by name.
func (c *Context) Memory() []Memory {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Memory, 0, len(c.memory))
	for _, m := range c.memory {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Clear drops all recorded data. The mode is kept.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issues = nil
	c.timings = make(map[string]*Timing)
	c.memory = make(map[string]*Memory)
}

// ErrorSummary renders the issue log.
func (c *Context) ErrorSummary() string {
	issues := c.Issues()
	if len(issues) == 0 {
		return "No errors or warnings.\n"
	}
	var warnings, errs, fatal int
	for _, i := range issues {
		switch i.Severity {
		case SeverityWarning:
			warnings++
		case SeverityFatal:
			fatal++
		default:
			errs++
		}
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Issues: %d (warnings=%d errors=%d fatal=%d)\n", len(issues), warnings, errs, fatal)
	for _, i := range issues {
		b.WriteString("  ")
		b.WriteString(i.Error())
		b.WriteString("\n")
	}
	return b.String()
}

// ProfilingSummary renders the timing table.
func (c *Context) ProfilingSummary() string {
	timings := c.Timings()
	if len(timings) == 0 {
		return "No timings recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-28s %8s %12s %12s %12s %12s\n", "operation", "calls", "total", "min", "max", "avg")
	for _, t := range timings {
		fmt.Fprintf(&b, "%-28s %8d %12s %12s %12s %12s\n", t.Name, t.Calls, t.Total, t.Min, t.Max, t.Avg())
	}
	return b.String()
}

// MemorySummary renders the memory table.
func (c *Context) MemorySummary() string {
	mem := c.Memory()
	if len(mem) == 0 {
		return "No memory events recorded.\n"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%-20s %12s %12s %8s\n", "category", "current", "peak", "allocs")
	for _, m := range mem {
		fmt.Fprintf(&b, "%-20s %12s %12s %8d\n", m.Name, formatBytes(m.Allocated), formatBytes(m.Peak), m.Allocations)
	}
	return b.String()
}

// FullReport concatenates every summary.
func (c *Context) FullReport() string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== diagnostics (%s) ===\n", c.Mode())
	b.WriteString(c.ErrorSummary())
	b.WriteString("--- profiling ---\n")
	b.WriteString(c.ProfilingSummary())
	b.WriteString("--- memory ---\n")
	b.WriteString(c.MemorySummary())
	return b.String()
}

func formatBytes(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit && exp < 2; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMG"[exp])
}
