// Package grader scores a student's JavaScript function against a list of
// test cases inside an isolated runtime.
package grader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

// ErrInvalidRequest is returned when a request cannot be graded at all.
var ErrInvalidRequest = errors.New("invalid grading request")

const (
	DefaultTimeout         = 2 * time.Second
	DefaultPrecheckTimeout = 2 * time.Second
)

// identifier matches JavaScript identifier names, non-ASCII letters included.
var identifier = regexp.MustCompile(`^[\p{L}\p{Nl}_$][\p{L}\p{Nl}\p{Mn}\p{Mc}\p{Nd}\p{Pc}_$]*$`)

// DebugFunc receives progress lines while a run is in flight.
type DebugFunc func(line string)

// Observer is notified of every finished grading.
type Observer interface {
	ObserveGrade(r *Report, elapsed time.Duration)
}

// Request is a fully combined program plus the function to grade.
type Request struct {
	Code         string
	FunctionName string
	Tests        []TestCase
	// Debug, when set, receives progress lines in order.
	Debug DebugFunc
}

// Config configures a Grader. Precheck is required.
type Config struct {
	Precheck        sandbox.Sandbox
	Policy          sandbox.Policy
	Timeout         time.Duration
	PrecheckTimeout time.Duration
	Logger          *slog.Logger
	Observer        Observer
}

// Grader runs precheck and tests for submissions. It is safe for
// concurrent use; every Evaluate gets its own runtime.
type Grader struct {
	cfg Config
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Grader, error) {
	if cfg.Precheck == nil {
		return nil, fmt.Errorf("grader: precheck sandbox is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PrecheckTimeout <= 0 {
		cfg.PrecheckTimeout = DefaultPrecheckTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Grader{cfg: cfg}, nil
}

// Grade combines editorCode with the exercise content, rejects forbidden
// constructs without running anything, then evaluates.
func (g *Grader) Grade(ctx context.Context, content Content, editorCode string, debug DebugFunc) (*Report, error) {
	code := Combine(content, editorCode)
	if construct, found := FindForbidden(code, content.ForbiddenFunctions); found {
		g.cfg.Logger.Info("submission rejected", "function", content.FunctionName, "construct", construct)
		return g.finish(rejectedReport(construct, len(content.Tests)), time.Now()), nil
	}
	return g.Evaluate(ctx, Request{
		Code:         code,
		FunctionName: content.FunctionName,
		Tests:        content.Tests,
		Debug:        debug,
	})
}

// Evaluate runs the precheck and, when it succeeds, every test case.
// A non-nil error means the request could not be processed; graded
// failures are reported in the Report.
func (g *Grader) Evaluate(ctx context.Context, req Request) (*Report, error) {
	if req.FunctionName == "" {
		return nil, fmt.Errorf("%w: function name is required", ErrInvalidRequest)
	}
	start := time.Now()
	log := g.cfg.Logger.With("function", req.FunctionName, "tests", len(req.Tests))

	log.Debug("grading", "state", StatePrecheck)
	pre, err := g.cfg.Precheck.Exec(ctx, sandbox.ExecOpts{Code: req.Code, Timeout: g.cfg.PrecheckTimeout})
	if err != nil {
		return nil, fmt.Errorf("precheck: %w", err)
	}
	if pre.Type != sandbox.OutcomeSuccess {
		log.Debug("precheck failed", "outcome", pre.Type)
		return g.finish(precheckReport(pre, len(req.Tests)), start), nil
	}

	log.Debug("grading", "state", StateRunningTests)
	report, err := g.runTests(ctx, req)
	if err != nil {
		return nil, err
	}
	report = g.finish(report, start)
	log.Info("graded", "state", report.State, "score", report.Score, "passed", report.PassedCount, "elapsed", time.Since(start))
	return report, nil
}

func (g *Grader) runTests(ctx context.Context, req Request) (*Report, error) {
	vm := sandbox.NewRuntime(g.cfg.Policy)
	box := newMailbox(req.Debug)
	defer box.close()

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	s := newSession(runCtx, vm, box)
	report, timedOut, err := sandbox.Race(ctx, vm, g.cfg.Timeout, func() *Report {
		return s.run(req)
	})
	stop()
	box.close()

	if err != nil {
		return nil, err
	}
	if timedOut {
		return timedOutReport(len(req.Tests)), nil
	}
	if report == nil {
		// The run was abandoned because ctx ended.
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return timedOutReport(len(req.Tests)), nil
	}
	return report, nil
}

func (g *Grader) finish(r *Report, start time.Time) *Report {
	r.Message = r.StatusMessage()
	if g.cfg.Observer != nil {
		g.cfg.Observer.ObserveGrade(r, time.Since(start))
	}
	return r
}
