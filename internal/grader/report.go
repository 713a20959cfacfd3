package grader

import (
	"fmt"
	"math"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

// State is the lifecycle state of a grading request.
type State string

const (
	StatePending           State = "PENDING"
	StatePrecheck          State = "PRECHECK"
	StateRejectedForbidden State = "REJECTED_FORBIDDEN"
	StatePrecheckFailed    State = "PRECHECK_FAILED"
	StateRunningTests      State = "RUNNING_TESTS"
	StateTimedOut          State = "TIMED_OUT"
	StateScored            State = "SCORED"
	StateErrored           State = "ERRORED"
)

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	switch s {
	case StateRejectedForbidden, StatePrecheckFailed, StateTimedOut, StateScored, StateErrored:
		return true
	}
	return false
}

// User-facing grading messages.
const (
	EvalTimeoutMessage  = "⚠️ Evaluación detenida: posible bucle infinito o tiempo de ejecución excesivo."
	EvalTimeoutStatus   = "⚠️ Evaluación detenida: bucle infinito detectado."
	EvalDoneText        = "Evaluación completada."
	EvalErrorPrefix     = "❌ Error en evaluación: "
	MissingFunctionText = "❌ Error: La función \"%s\" no está definida."
	RejectedText        = "❌ Solución rechazada. Uso de función %s no permitido."
)

// DefaultPassThreshold is the minimum score the UI treats as approved.
const DefaultPassThreshold = 8.0

// TestResult is the outcome of one test case.
type TestResult struct {
	Passed        bool   `json:"passed"`
	CorrectResult bool   `json:"correctResult"`
	AccessCheck   bool   `json:"accessCheck"`
	WriteCheck    bool   `json:"writeCheck"`
	Accesses      *int   `json:"actualAccesses,omitempty"`
	Writes        *int   `json:"actualWrites,omitempty"`
	MaxAccesses   *int   `json:"maxAccesses,omitempty"`
	MaxWrites     *int   `json:"maxWrites,omitempty"`
	Error         string `json:"error,omitempty"`
}

func failedResult(msg string) TestResult {
	return TestResult{AccessCheck: true, WriteCheck: true, Error: msg}
}

// Report is the result of grading one submission.
type Report struct {
	State       State           `json:"state"`
	Type        sandbox.Outcome `json:"type"`
	Score       float64         `json:"score"`
	PassedCount int             `json:"passedCount"`
	TotalTests  int             `json:"totalTests"`
	Results     []TestResult    `json:"results"`
	Output      string          `json:"output"`
	Message     string          `json:"message"`
	Rejected    string          `json:"rejectedConstruct,omitempty"`
}

// Score maps passed/total onto 0-10 with two decimals. A run with no
// tests scores 10.
func Score(passed, total int) float64 {
	if total <= 0 {
		return 10
	}
	return math.Round(float64(passed)/float64(total)*1000) / 100
}

func scoredReport(results []TestResult, output string) *Report {
	passed := 0
	for _, r := range results {
		if r.Passed {
			passed++
		}
	}
	if output == "" {
		output = EvalDoneText
	}
	return &Report{
		State:       StateScored,
		Type:        sandbox.OutcomeSuccess,
		Score:       Score(passed, len(results)),
		PassedCount: passed,
		TotalTests:  len(results),
		Results:     results,
		Output:      output,
	}
}

func erroredReport(output string, total int) *Report {
	return &Report{State: StateErrored, Type: sandbox.OutcomeError, TotalTests: total, Output: output}
}

func timedOutReport(total int) *Report {
	return &Report{State: StateTimedOut, Type: sandbox.OutcomeTimeout, TotalTests: total, Output: EvalTimeoutMessage}
}

func rejectedReport(construct string, total int) *Report {
	return &Report{
		State:      StateRejectedForbidden,
		Type:       sandbox.OutcomeError,
		TotalTests: total,
		Output:     fmt.Sprintf(RejectedText, construct),
		Rejected:   construct,
	}
}

func precheckReport(res *sandbox.ExecResult, total int) *Report {
	return &Report{State: StatePrecheckFailed, Type: res.Type, TotalTests: total, Output: res.Output}
}

// TooManyAccesses reports whether some test produced the right value but
// exceeded its access limit.
func (r *Report) TooManyAccesses() bool {
	for _, tr := range r.Results {
		if tr.CorrectResult && !tr.AccessCheck {
			return true
		}
	}
	return false
}

// StatusMessage is the one-line summary shown next to the output.
func (r *Report) StatusMessage() string {
	switch r.State {
	case StateScored:
		if r.TooManyAccesses() {
			return fmt.Sprintf("⚠️ %d/%d tests superados (algunos con demasiados accesos).", r.PassedCount, r.TotalTests)
		}
		return fmt.Sprintf("✅ %d/%d tests superados.", r.PassedCount, r.TotalTests)
	case StateTimedOut:
		return EvalTimeoutStatus
	default:
		return r.Output
	}
}

// Approved reports whether the submission scored at least threshold.
func (r *Report) Approved(threshold float64) bool {
	return r.State == StateScored && r.Score >= threshold
}
