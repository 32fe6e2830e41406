package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateEmptySource(t *testing.T) {
	for _, src := range []string{"", "   \n\t  \n  "} {
		res, err := NewEngine().Evaluate(src)
		require.NoError(t, err)
		assert.Empty(t, res.Errors)
		require.NotNil(t, res.Scene)
		assert.Zero(t, res.Scene.Len())
	}
}

func TestEvaluatePlainLisp(t *testing.T) {
	source := `
(def x 10)
(def y 20)
(+ x y)
`
	res, err := NewEngine().Evaluate(source)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	require.NotNil(t, res.Scene)
	assert.Zero(t, res.Scene.Len(), "no builtin touched a mesh")
}

func TestEvaluateSyntaxError(t *testing.T) {
	res, err := NewEngine().Evaluate("(+ 1 2)\n(+ 3")
	require.NoError(t, err, "parse errors are not fatal")
	assert.Nil(t, res.Scene)
	require.NotEmpty(t, res.Errors)
	assert.NotEmpty(t, res.Errors[0].Message)
	if res.Errors[0].Line > 0 {
		t.Logf("extracted line info: line=%d, message=%q", res.Errors[0].Line, res.Errors[0].Message)
	}
}

func TestEvaluateUndefinedSymbol(t *testing.T) {
	res, err := NewEngine().Evaluate("(+ 1 undefined-symbol)")
	require.NoError(t, err)
	assert.Nil(t, res.Scene)
	assert.NotEmpty(t, res.Errors)
}

func TestEvalErrorString(t *testing.T) {
	e := EvalError{Line: 5, Message: "something went wrong"}
	assert.Equal(t, "line 5: something went wrong", e.Error())
	assert.Equal(t, "no location", EvalError{Message: "no location"}.Error())

	w := EvalWarning{Mesh: "cage", Code: "X", Message: "m"}
	assert.Equal(t, "cage: X: m", w.String())
}

func TestEvaluateDeterministic(t *testing.T) {
	eng := NewEngine()
	for i := 0; i < 5; i++ {
		res, err := eng.Evaluate(`(mesh "m") (cube 2)`)
		require.NoError(t, err, "iteration %d", i)
		require.Empty(t, res.Errors)
		nm := res.Scene.Lookup("m")
		require.NotNil(t, nm)
		assert.Equal(t, 8, nm.Mesh.NumVertices())
		assert.Equal(t, 6, nm.Mesh.NumFaces())
	}
}

func TestEngineOptions(t *testing.T) {
	assert.Equal(t, DefaultTimeout, NewEngine().Timeout())
	assert.Equal(t, time.Second, NewEngine(WithTimeout(time.Second)).Timeout())
	assert.Equal(t, DefaultTimeout, NewEngine(WithTimeout(-1)).Timeout())
}

func TestWaitWithTimeoutExpires(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(1)
	ch := make(chan evalResult) // never sends

	start := time.Now()
	_, err := waitWithTimeout(ch, 1, 20*time.Millisecond, &mu, &gen)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Contains(t, err.Error(), "timed out after 20ms")
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestWaitWithTimeoutDiscardsStale(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(2)

	ch := make(chan evalResult, 1)
	ch <- evalResult{res: EvalResult{Scene: &Scene{}}}

	res, err := waitWithTimeout(ch, 1, time.Second, &mu, &gen)
	assert.ErrorIs(t, err, ErrSuperseded)
	assert.Nil(t, res.Scene)
}

func TestWaitWithTimeoutPassesResult(t *testing.T) {
	var mu sync.Mutex
	gen := uint64(3)
	boom := errors.New("boom")

	ch := make(chan evalResult, 1)
	ch <- evalResult{err: boom}
	_, err := waitWithTimeout(ch, 3, time.Second, &mu, &gen)
	assert.ErrorIs(t, err, boom)
}

func TestParseZygomysError(t *testing.T) {
	tests := []struct {
		name     string
		msg      string
		wantLine int
		wantMsg  string
	}{
		{"error on line format", "Error on line 5: unexpected token\n", 5, "unexpected token"},
		{"no line info", "some generic error", 0, "some generic error"},
		{"line format lowercase", "error on line 12: missing paren", 12, "missing paren"},
		{"short line format", "line 3: bad", 3, "bad"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := parseZygomysError(errors.New(tt.msg))
			require.Len(t, errs, 1)
			assert.Equal(t, tt.wantLine, errs[0].Line)
			assert.Equal(t, tt.wantMsg, errs[0].Message)
		})
	}
}
