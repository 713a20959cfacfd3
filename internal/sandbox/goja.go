package sandbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/dop251/goja"
)

// GojaSandbox runs JavaScript in a fresh in-process runtime per call.
type GojaSandbox struct {
	Policy Policy
	Logger *slog.Logger
}

// NewGojaSandbox creates a sandbox with the given policy.
func NewGojaSandbox(policy Policy) *GojaSandbox {
	return &GojaSandbox{Policy: policy, Logger: slog.Default()}
}

func (g *GojaSandbox) Exec(ctx context.Context, opts ExecOpts) (*ExecResult, error) {
	timeout := g.Policy.timeoutFor(opts)
	vm := NewRuntime(g.Policy)
	console := BindConsole(vm, FormatValue)

	start := time.Now()
	result, timedOut, err := Race(ctx, vm, timeout, func() *ExecResult {
		fn, err := CompileBody(vm, opts.Code)
		if err != nil {
			return errorResult(ErrorMessage(err))
		}
		if _, err := fn(goja.Undefined()); err != nil {
			return errorResult(ErrorMessage(err))
		}
		return successResult(console.Lines())
	})
	if err != nil {
		return nil, err
	}
	if timedOut {
		result = timeoutResult()
	}
	result.Duration = time.Since(start)

	g.logger().Debug("sandbox exec",
		"backend", "goja",
		"outcome", result.Type,
		"duration", result.Duration,
		"timeout", timeout,
	)
	return result, nil
}

func (g *GojaSandbox) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}
