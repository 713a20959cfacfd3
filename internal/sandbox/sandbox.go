package sandbox

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Outcome classifies how an execution ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
	OutcomeTimeout Outcome = "timeout"
)

// User-facing messages. They are rendered verbatim by the course UI.
const (
	ErrorPrefix    = "❌ Error: "
	NoOutputText   = "Ejecución completada (sin salida)."
	TimeoutMessage = "⚠️ Ejecución detenida: posible bucle infinito o tiempo de ejecución excesivo."
)

// ErrImageNotAllowed is returned when a docker image is not on the policy allowlist.
var ErrImageNotAllowed = errors.New("image not in allowlist")

// ExecOpts describes a code execution request.
type ExecOpts struct {
	Code    string        // Source code, run as the body of a zero-argument function
	Timeout time.Duration // Zero means Policy.Timeout
}

// ExecResult is the output of a sandboxed execution.
type ExecResult struct {
	Type     Outcome       `json:"type"`
	Output   string        `json:"output"`
	Duration time.Duration `json:"-"`
}

// Sandbox runs code in an isolated environment.
//
// Failures of the executed code are reported through ExecResult. The error
// return is reserved for infrastructure problems and caller cancellation.
type Sandbox interface {
	Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error)
}

func successResult(lines []string) *ExecResult {
	out := strings.Join(lines, "\n")
	if out == "" {
		out = NoOutputText
	}
	return &ExecResult{Type: OutcomeSuccess, Output: out}
}

func errorResult(msg string) *ExecResult {
	return &ExecResult{Type: OutcomeError, Output: ErrorPrefix + msg}
}

func timeoutResult() *ExecResult {
	return &ExecResult{Type: OutcomeTimeout, Output: TimeoutMessage}
}
