package diagnostics

import (
	"bytes"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledContextRecordsNothing(t *testing.T) {
	c := NewContext(ModeDisabled)
	c.AddError(SeverityError, "X", "boom", "")
	c.StartTimer("op")()
	c.RecordAllocation("faces", 128)

	assert.False(t, c.Enabled())
	assert.Empty(t, c.Issues())
	assert.Empty(t, c.Timings())
	assert.Empty(t, c.Memory())
	assert.False(t, c.HasErrors())
}

func TestSeverityQueries(t *testing.T) {
	tests := []struct {
		name                      string
		sev                       Severity
		errors, warnings, isFatal bool
	}{
		{"warning", SeverityWarning, false, true, false},
		{"error", SeverityError, true, false, false},
		{"fatal", SeverityFatal, true, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewContext(ModeErrorsOnly)
			c.AddError(tt.sev, "CODE", "msg", "ctx")
			assert.Equal(t, tt.errors, c.HasErrors())
			assert.Equal(t, tt.warnings, c.HasWarnings())
			assert.Equal(t, tt.isFatal, c.HasFatal())

			last, ok := c.LastIssue()
			require.True(t, ok)
			assert.Equal(t, Code("CODE"), last.Code)
			assert.Equal(t, "ctx", last.Context)
		})
	}
}

func TestErrorsOnlyIgnoresTimingAndMemory(t *testing.T) {
	c := NewContext(ModeErrorsOnly)
	c.StartTimer("op")()
	c.RecordAllocation("faces", 64)
	assert.Empty(t, c.Timings())
	assert.Empty(t, c.Memory())
}

func TestTimingStats(t *testing.T) {
	clock := time.Unix(0, 0)
	c := NewContext(ModeErrorsAndProfiling, withClock(func() time.Time { return clock }))

	for _, d := range []time.Duration{2 * time.Millisecond, 6 * time.Millisecond, 4 * time.Millisecond} {
		stop := c.StartTimer("addFace")
		clock = clock.Add(d)
		stop()
	}

	timings := c.Timings()
	require.Len(t, timings, 1)
	tm := timings[0]
	assert.Equal(t, "addFace", tm.Name)
	assert.Equal(t, 3, tm.Calls)
	assert.Equal(t, 2*time.Millisecond, tm.Min)
	assert.Equal(t, 6*time.Millisecond, tm.Max)
	assert.Equal(t, 4*time.Millisecond, tm.Avg())
	assert.Contains(t, c.ProfilingSummary(), "addFace")
}

func TestMemoryTrackingPeakAndClamp(t *testing.T) {
	c := NewContext(ModeFull)
	c.RecordAllocation("halfedges", 100)
	c.RecordAllocation("halfedges", 50)
	c.RecordDeallocation("halfedges", 120)
	c.RecordDeallocation("halfedges", 500)

	mem := c.Memory()
	require.Len(t, mem, 1)
	assert.Equal(t, 0, mem[0].Allocated)
	assert.Equal(t, 150, mem[0].Peak)
	assert.Equal(t, 2, mem[0].Allocations)
}

func TestClearKeepsMode(t *testing.T) {
	c := NewContext(ModeFull)
	c.AddError(SeverityWarning, "W", "w", "")
	c.RecordAllocation("x", 1)
	c.Clear()
	assert.Empty(t, c.Issues())
	assert.Empty(t, c.Memory())
	assert.Equal(t, ModeFull, c.Mode())
}

func TestSummaries(t *testing.T) {
	c := NewContext(ModeFull)
	assert.Contains(t, c.ErrorSummary(), "No errors")

	c.AddError(SeverityError, "INVALID_VERTEX_INDEX", "vertex out of range", "position 2")
	c.AddError(SeverityWarning, "CYCLE_IN_FACE", "face loop revisits", "face 3")
	c.RecordAllocation("faces", 2048)

	summary := c.ErrorSummary()
	assert.Contains(t, summary, "warnings=1 errors=1 fatal=0")
	assert.Contains(t, summary, "INVALID_VERTEX_INDEX")
	assert.Contains(t, summary, "(position 2)")
	assert.Contains(t, c.MemorySummary(), "2.0 KiB")

	report := c.FullReport()
	assert.Contains(t, report, "diagnostics (full)")
	assert.Contains(t, report, "CYCLE_IN_FACE")
}

func TestLoggerForwarding(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	c := NewContext(ModeErrorsOnly, WithLogger(logger))

	c.AddError(SeverityWarning, "ONE_RING_COUNT_MISMATCH", "ring shorter than valence", "vertex 7")
	c.AddError(SeverityFatal, "CORRUPT", "cannot continue", "")

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "code=ONE_RING_COUNT_MISMATCH")
	assert.Contains(t, out, "fatal=true")
}

func TestConcurrentReports(t *testing.T) {
	c := NewContext(ModeFull)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.AddError(SeverityWarning, "W", "w", "")
				c.RecordAllocation("faces", 1)
				c.StartTimer("op")()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, c.Issues(), 800)
	assert.Equal(t, 800, c.Memory()[0].Allocations)
}

func TestParseMode(t *testing.T) {
	for _, m := range []Mode{ModeDisabled, ModeErrorsOnly, ModeErrorsAndProfiling, ModeFull} {
		got, err := ParseMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseMode("verbose")
	assert.Error(t, err)
}

func TestRecorderForwards(t *testing.T) {
	next := NewContext(ModeErrorsOnly)
	r := &Recorder{Next: next}
	r.AddError(SeverityWarning, "A", "a", "")
	assert.Len(t, r.Issues, 1)
	assert.Len(t, next.Issues(), 1)

	bare := &Recorder{}
	bare.AddError(SeverityError, "B", "b", "")
	bare.StartTimer("t")()
	assert.Len(t, bare.Issues, 1)
}

func TestIssueError(t *testing.T) {
	i := Issue{Severity: SeverityError, Code: "NON_MANIFOLD_EDGE", Message: "third face on edge", Context: "position 0"}
	assert.Equal(t, "[ERROR] NON_MANIFOLD_EDGE: third face on edge (position 0)", i.Error())
	assert.Equal(t, Nop{}, OrNop(nil))
}
