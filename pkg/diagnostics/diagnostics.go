// Package diagnostics collects issues, timings and allocation events reported
// by the mesh core. A Sink is injected into each collaborator; nothing here is
// process-global, so independent meshes and tests never share state.
package diagnostics

import (
	"fmt"
	"strings"
)

// Severity classifies a reported issue.
type Severity int

const (
	// SeverityWarning is a non-critical finding; the operation continued.
	SeverityWarning Severity = iota
	// SeverityError means the operation was rejected.
	SeverityError
	// SeverityFatal means the data can no longer be trusted.
	SeverityFatal
)

// String returns a human-readable name for the severity.
func (s Severity) String() string {
	switch s {
	case SeverityWarning:
		return "WARNING"
	case SeverityError:
		return "ERROR"
	case SeverityFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// Code is a stable, machine-readable issue identifier such as
// "NON_MANIFOLD_EDGE".
type Code string

// Issue is one reported finding.
type Issue struct {
	Severity Severity `json:"severity"`
	Code     Code     `json:"code"`
	Message  string   `json:"message"`
	Context  string   `json:"context,omitempty"`
}

// Error implements the error interface.
func (i Issue) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(i.Severity.String())
	b.WriteString("] ")
	b.WriteString(string(i.Code))
	b.WriteString(": ")
	b.WriteString(i.Message)
	if i.Context != "" {
		b.WriteString(" (")
		b.WriteString(i.Context)
		b.WriteString(")")
	}
	return b.String()
}

// Sink receives reports from the mesh core. Implementations must not feed
// anything back into the caller: a sink can observe, never steer.
type Sink interface {
	AddError(sev Severity, code Code, message, context string)
	// StartTimer begins timing name and returns the function that stops it.
	StartTimer(name string) (stop func())
	RecordAllocation(category string, bytes int)
	RecordDeallocation(category string, bytes int)
}

// Nop is a Sink that discards everything.
type Nop struct{}

var _ Sink = Nop{}

func noop() {}

// AddError implements Sink.
func (Nop) AddError(Severity, Code, string, string) {}

// StartTimer implements Sink.
func (Nop) StartTimer(string) func() { return noop }

// RecordAllocation implements Sink.
func (Nop) RecordAllocation(string, int) {}

// RecordDeallocation implements Sink.
func (Nop) RecordDeallocation(string, int) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Recorder is a Sink that keeps issues in memory and ignores everything else.
// The mesh core uses it to hand findings back to the caller while still
// forwarding them to the injected sink.
type Recorder struct {
	Next   Sink
	Issues []Issue
}

// AddError implements Sink.
func (r *Recorder) AddError(sev Severity, code Code, message, context string) {
	r.Issues = append(r.Issues, Issue{Severity: sev, Code: code, Message: message, Context: context})
	if r.Next != nil {
		r.Next.AddError(sev, code, message, context)
	}
}

// StartTimer implements Sink.
func (r *Recorder) StartTimer(name string) func() {
	if r.Next != nil {
		return r.Next.StartTimer(name)
	}
	return noop
}

// RecordAllocation implements Sink.
func (r *Recorder) RecordAllocation(category string, bytes int) {
	if r.Next != nil {
		r.Next.RecordAllocation(category, bytes)
	}
}

// RecordDeallocation implements Sink.
func (r *Recorder) RecordDeallocation(category string, bytes int) {
	if r.Next != nil {
		r.Next.RecordDeallocation(category, bytes)
	}
}
