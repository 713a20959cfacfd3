package grader

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

func newTestGrader(t *testing.T, timeout time.Duration) *Grader {
	t.Helper()
	g, err := New(Config{
		Precheck: sandbox.NewGojaSandbox(sandbox.DefaultPolicy()),
		Policy:   sandbox.DefaultPolicy(),
		Timeout:  timeout,
	})
	require.NoError(t, err)
	return g
}

func mustTests(t *testing.T, js string) []TestCase {
	t.Helper()
	tests, err := ParseTests([]byte(js))
	require.NoError(t, err)
	return tests
}

func evaluate(t *testing.T, code, fn, tests string) *Report {
	t.Helper()
	r, err := newTestGrader(t, 0).Evaluate(context.Background(), Request{
		Code:         code,
		FunctionName: fn,
		Tests:        mustTests(t, tests),
	})
	require.NoError(t, err)
	require.NotNil(t, r)
	return r
}

func TestNewRequiresPrecheck(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestEvaluateRequiresFunctionName(t *testing.T) {
	_, err := newTestGrader(t, 0).Evaluate(context.Background(), Request{Code: "1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestEvaluateAllPass(t *testing.T) {
	r := evaluate(t,
		`function suma(a, b) { return a + b; }`,
		"suma",
		`[{"input": 1, "b": 2, "expected": 3}, {"input": -4, "b": 4, "expected": 0}]`)

	assert.Equal(t, StateScored, r.State)
	assert.Equal(t, sandbox.OutcomeSuccess, r.Type)
	assert.Equal(t, 10.0, r.Score)
	assert.Equal(t, 2, r.PassedCount)
	assert.Equal(t, EvalDoneText, r.Output)
	assert.Equal(t, "✅ 2/2 tests superados.", r.Message)
	assert.True(t, r.Approved(DefaultPassThreshold))
}

func TestEvaluatePartialScore(t *testing.T) {
	r := evaluate(t,
		`function doble(x) { return x > 2 ? x : x * 2; }`,
		"doble",
		`[{"input": 1, "expected": 2}, {"input": 2, "expected": 4}, {"input": 3, "expected": 6}]`)

	assert.Equal(t, 2, r.PassedCount)
	assert.Equal(t, 3, r.TotalTests)
	assert.Equal(t, 6.67, r.Score)
	assert.False(t, r.Approved(DefaultPassThreshold))
	assert.False(t, r.Results[2].Passed)
	assert.False(t, r.Results[2].CorrectResult)
}

func TestEvaluateNoTestsScoresTen(t *testing.T) {
	r := evaluate(t, `function f() {}`, "f", `[]`)
	assert.Equal(t, StateScored, r.State)
	assert.Equal(t, 10.0, r.Score)
}

func TestEvaluateStructuredResults(t *testing.T) {
	r := evaluate(t, `
		function analizar(notas) {
			const aprobados = notas.filter(n => n >= 5).length;
			return { aprobados, suspensos: notas.length - aprobados, nombres: ["a", "b"] };
		}`,
		"analizar",
		`[{"input": [4, 5, 9], "expected": {"nombres": ["a", "b"], "suspensos": 1, "aprobados": 2}}]`)

	assert.Equal(t, 1, r.PassedCount)
}

func TestEvaluateCapturesConsole(t *testing.T) {
	r := evaluate(t,
		`function f(x) { console.log("x =", x, [1, 2]); return x; }`,
		"f",
		`[{"input": 7, "expected": 7}]`)

	assert.Equal(t, "x = 7 1,2", r.Output)
}

func TestEvaluatePrecheckFailure(t *testing.T) {
	r := evaluate(t, `function f( {`, "f", `[{"input": 1, "expected": 1}]`)
	assert.Equal(t, StatePrecheckFailed, r.State)
	assert.Equal(t, sandbox.OutcomeError, r.Type)
	assert.Zero(t, r.Score)
	assert.True(t, strings.HasPrefix(r.Output, sandbox.ErrorPrefix))

	r = evaluate(t, `throw new Error("top level")`, "f", `[]`)
	assert.Equal(t, StatePrecheckFailed, r.State)
	assert.Equal(t, sandbox.ErrorPrefix+"top level", r.Output)
}

func TestGradePrecheckTimeout(t *testing.T) {
	g, err := New(Config{
		Precheck:        sandbox.NewGojaSandbox(sandbox.DefaultPolicy()),
		Policy:          sandbox.DefaultPolicy(),
		PrecheckTimeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)

	start := time.Now()
	r, err := g.Grade(context.Background(), Content{
		FunctionName: "f",
		Tests:        mustTests(t, `[{"input": 1, "expected": 1}]`),
	}, `while (true) {}`, nil)
	require.NoError(t, err)

	assert.Equal(t, StatePrecheckFailed, r.State)
	assert.Equal(t, sandbox.OutcomeTimeout, r.Type)
	assert.Equal(t, sandbox.TimeoutMessage, r.Output)
	assert.Zero(t, r.Score)
	assert.Empty(t, r.Results)
	assert.Equal(t, 1, r.TotalTests)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEvaluateUnicodeFunctionName(t *testing.T) {
	r := evaluate(t, `function tamaño(arr) { return arr.length; }`, "tamaño",
		`[{"input": [1, 2], "expected": 2}]`)
	assert.Equal(t, StateScored, r.State)
	assert.Equal(t, 10.0, r.Score)
}

func TestEvaluateYAMLKeepsKeyOrder(t *testing.T) {
	var tests []TestCase
	require.NoError(t, yaml.Unmarshal([]byte(`
- input: {zeta: 1, alfa: 2}
  expected: [zeta, alfa]
`), &tests))

	r, err := newTestGrader(t, 0).Evaluate(context.Background(), Request{
		Code:         `function claves(o) { return Object.keys(o); }`,
		FunctionName: "claves",
		Tests:        tests,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, r.PassedCount)
	assert.Equal(t, 10.0, r.Score)
}

func TestEvaluateThrowingGetterInResult(t *testing.T) {
	code := `function obj(n) {
		if (n === 1) return { get a() { throw new Error('getter'); } };
		return { a: n };
	}`
	r := evaluate(t, code, "obj",
		`[{"input": 1, "expected": {"a": 1}}, {"input": 2, "expected": {"a": 2}}]`)
	assert.Equal(t, StateScored, r.State)
	require.Len(t, r.Results, 2)
	assert.False(t, r.Results[0].Passed)
	assert.True(t, r.Results[1].Passed)
	assert.Equal(t, 5.0, r.Score)
}

func TestEvaluateMissingFunction(t *testing.T) {
	for _, code := range []string{`const g = 1;`, `const f = 42;`} {
		r := evaluate(t, code, "f", `[{"input": 1, "expected": 1}]`)
		assert.Equal(t, StateErrored, r.State)
		assert.Equal(t, `❌ Error: La función "f" no está definida.`, r.Output)
		assert.Zero(t, r.Score)
	}
}

func TestEvaluateInvalidFunctionName(t *testing.T) {
	r := evaluate(t, `function f() {}`, "f; globalThis.x = 1", `[]`)
	assert.Equal(t, StateErrored, r.State)
}

func TestEvaluateContainsTestExceptions(t *testing.T) {
	r := evaluate(t, `
		function raiz(x) {
			if (x < 0) throw new Error("negativo");
			return Math.sqrt(x);
		}`,
		"raiz",
		`[{"input": -1, "expected": 0}, {"input": 9, "expected": 3}]`)

	require.Len(t, r.Results, 2)
	assert.Equal(t, TestResult{AccessCheck: true, WriteCheck: true, Error: "negativo"}, r.Results[0])
	assert.True(t, r.Results[1].Passed)
	assert.Equal(t, 5.0, r.Score)
}

func TestEvaluateTimeout(t *testing.T) {
	g := newTestGrader(t, 100*time.Millisecond)
	start := time.Now()
	r, err := g.Evaluate(context.Background(), Request{
		Code:         `function bucle(x) { while (true) {} }`,
		FunctionName: "bucle",
		Tests:        mustTests(t, `[{"input": 1, "expected": 1}, {"input": 2, "expected": 2}]`),
	})
	require.NoError(t, err)

	assert.Equal(t, StateTimedOut, r.State)
	assert.Equal(t, sandbox.OutcomeTimeout, r.Type)
	assert.Equal(t, EvalTimeoutMessage, r.Output)
	assert.Equal(t, EvalTimeoutStatus, r.Message)
	assert.Zero(t, r.Score)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEvaluateAccessCounting(t *testing.T) {
	code := `
		function suma(arr) {
			let total = 0;
			for (let i = 0; i < arr.length; i++) total += arr[i];
			return total;
		}
		function tam(arr) { return arr.length; }`

	r := evaluate(t, code, "suma", `[
		{"input": [1, 2, 3], "expected": 6, "maxAccesses": 3},
		{"input": [1, 2, 3], "expected": 6, "maxAccesses": 2}
	]`)
	require.Len(t, r.Results, 2)
	assert.True(t, r.Results[0].Passed)
	require.NotNil(t, r.Results[0].Accesses)
	assert.Equal(t, 3, *r.Results[0].Accesses)

	assert.False(t, r.Results[1].Passed)
	assert.True(t, r.Results[1].CorrectResult)
	assert.False(t, r.Results[1].AccessCheck)
	assert.Equal(t, "⚠️ 1/2 tests superados (algunos con demasiados accesos).", r.Message)

	r = evaluate(t, code, "tam", `[{"input": [1, 2, 3], "expected": 3, "maxAccesses": 0}]`)
	assert.True(t, r.Results[0].Passed)
	assert.Equal(t, 0, *r.Results[0].Accesses)
}

func TestEvaluateWriteCounting(t *testing.T) {
	r := evaluate(t,
		`function marca(arr) { arr[0] = 9; return arr[0]; }`,
		"marca",
		`[{"input": [1, 2], "expected": 9, "maxWrites": 0}, {"input": [1, 2], "expected": 9, "maxWrites": 1}]`)

	assert.False(t, r.Results[0].WriteCheck)
	assert.True(t, r.Results[0].CorrectResult)
	assert.False(t, r.Results[0].Passed)
	assert.True(t, r.Results[1].Passed)
	assert.Equal(t, 1, *r.Results[1].Writes)
}

func TestEvaluateProxyBehavesLikeArray(t *testing.T) {
	r := evaluate(t,
		`function copia(arr) { const out = []; for (const x of arr) out.push(x); return out.concat(arr.slice(1)); }`,
		"copia",
		`[{"input": [1, 2], "expected": [1, 2, 2], "maxAccesses": 10}]`)

	assert.True(t, r.Results[0].Passed)
}

func TestEvaluateInputsAreFresh(t *testing.T) {
	r := evaluate(t,
		`function vacia(arr) { const n = arr.length; arr.length = 0; return n; }`,
		"vacia",
		`[{"input": [1, 2, 3], "expected": 3}, {"input": [1, 2, 3], "expected": 3}]`)

	assert.Equal(t, 2, r.PassedCount)
}

func TestEvaluateDebugLines(t *testing.T) {
	var lines []string
	r, err := newTestGrader(t, 0).Evaluate(context.Background(), Request{
		Code:         `function id(x) { return x.slice(); }`,
		FunctionName: "id",
		Tests:        mustTests(t, `[{"input": [1], "expected": [1], "maxAccesses": 5}]`),
		Debug:        func(line string) { lines = append(lines, line) },
	})
	require.NoError(t, err)
	require.Equal(t, StateScored, r.State)

	require.NotEmpty(t, lines)
	for _, l := range lines {
		assert.True(t, strings.HasPrefix(l, "🔍 "), l)
	}
	assert.Equal(t, "🔍 Función a buscar: id", lines[1])
	assert.Contains(t, lines, "🔍 Test 1: input=[1], expected=[1], maxAccesses=5")
	assert.Equal(t, "🔍 Resultado final: 1/1 tests superados (nota: 10.00)", lines[len(lines)-1])
}

func TestGradeRejectsForbidden(t *testing.T) {
	content := Content{
		FunctionName:       "doble",
		Tests:              mustTests(t, `[{"input": [1], "expected": [2]}]`),
		ForbiddenFunctions: []string{".map("},
	}

	r, err := newTestGrader(t, 0).Grade(context.Background(), content,
		`function doble(a) { return a.map(x => x * 2); }`, nil)
	require.NoError(t, err)
	assert.Equal(t, StateRejectedForbidden, r.State)
	assert.Equal(t, "❌ Solución rechazada. Uso de función .map( no permitido.", r.Output)
	assert.Equal(t, ".map(", r.Rejected)
	assert.Zero(t, r.Score)

	r, err = newTestGrader(t, 0).Grade(context.Background(), content, `
		// no uses .map(
		function doble(a) {
			/* ni a.map(f) */
			const out = [];
			for (const x of a) out.push(x * 2);
			return out;
		}`, nil)
	require.NoError(t, err)
	assert.Equal(t, StateScored, r.State)
	assert.Equal(t, 10.0, r.Score)
}

func TestGradeInjectsStudentCode(t *testing.T) {
	content := Content{
		MainCode:     "const base = 10;\n" + InjectMarker + "\n",
		FunctionName: "masBase",
		Tests:        mustTests(t, `[{"input": 5, "expected": 15}]`),
		InjectCode:   true,
	}
	editor := "// plantilla que no se evalúa\nconst base = 99;\n" + StudentMarker + "\nfunction masBase(x) { return x + base; }"

	r, err := newTestGrader(t, 0).Grade(context.Background(), content, editor, nil)
	require.NoError(t, err)
	assert.Equal(t, StateScored, r.State)
	assert.Equal(t, 1, r.PassedCount)
}

type recordingObserver struct {
	reports []*Report
}

func (o *recordingObserver) ObserveGrade(r *Report, _ time.Duration) {
	o.reports = append(o.reports, r)
}

func TestObserverSeesEveryTerminalReport(t *testing.T) {
	obs := &recordingObserver{}
	g, err := New(Config{Precheck: sandbox.NewGojaSandbox(sandbox.DefaultPolicy()), Observer: obs})
	require.NoError(t, err)

	_, err = g.Grade(context.Background(), Content{FunctionName: "f", ForbiddenFunctions: []string{"eval"}}, "eval('1')", nil)
	require.NoError(t, err)
	_, err = g.Evaluate(context.Background(), Request{Code: "function f() {}", FunctionName: "f"})
	require.NoError(t, err)

	require.Len(t, obs.reports, 2)
	assert.Equal(t, StateRejectedForbidden, obs.reports[0].State)
	assert.Equal(t, StateScored, obs.reports[1].State)
}
