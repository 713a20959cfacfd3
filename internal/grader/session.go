package grader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dop251/goja"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

// mailbox delivers debug lines to the caller until it is closed. Posts
// after close are dropped, and close waits for an in-flight post.
type mailbox struct {
	mu     sync.Mutex
	fn     DebugFunc
	closed bool
}

func newMailbox(fn DebugFunc) *mailbox {
	return &mailbox{fn: fn}
}

func (m *mailbox) enabled() bool {
	return m.fn != nil
}

func (m *mailbox) post(format string, args ...any) {
	if m.fn == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.fn("🔍 " + fmt.Sprintf(format, args...))
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// session is one grading run bound to a single runtime. It runs on the
// goroutine started by sandbox.Race and owns vm exclusively.
type session struct {
	ctx     context.Context
	vm      *goja.Runtime
	console *sandbox.Console
	eq      equaler
	debug   *mailbox
	parse   goja.Callable
	dump    goja.Callable
	// interrupted is set once the runtime has been interrupted; the
	// remaining tests are skipped.
	interrupted bool
}

func newSession(ctx context.Context, vm *goja.Runtime, debug *mailbox) *session {
	return &session{
		ctx:     ctx,
		vm:      vm,
		console: sandbox.BindConsole(vm, sandbox.PlainString),
		eq:      equaler{vm: vm},
		debug:   debug,
	}
}

func (s *session) run(req Request) *Report {
	s.debug.post("Contexto de evaluación iniciado")
	s.debug.post("Función a buscar: %s", req.FunctionName)
	s.debug.post("Tests a ejecutar: %d", len(req.Tests))

	if err := s.bindJSON(); err != nil {
		return erroredReport(EvalErrorPrefix+err.Error(), len(req.Tests))
	}

	fn, err := s.lookup(req.Code, req.FunctionName)
	if err != nil {
		msg := sandbox.ErrorMessage(err)
		s.debug.post("ERROR GENERAL: %s", msg)
		return erroredReport(EvalErrorPrefix+msg, len(req.Tests))
	}
	s.debug.post("Función encontrada: %t", fn != nil)
	if fn == nil {
		return erroredReport(fmt.Sprintf(MissingFunctionText, req.FunctionName), len(req.Tests))
	}

	results := make([]TestResult, 0, len(req.Tests))
	for i, tc := range req.Tests {
		if s.interrupted || s.ctx.Err() != nil {
			return nil
		}
		results = append(results, s.runTest(i, tc, fn))
	}

	report := scoredReport(results, strings.Join(s.console.Lines(), "\n"))
	s.debug.post("Resultado final: %d/%d tests superados (nota: %.2f)", report.PassedCount, report.TotalTests, report.Score)
	return report
}

func (s *session) bindJSON() error {
	obj := s.vm.Get("JSON").ToObject(s.vm)
	parse, ok := goja.AssertFunction(obj.Get("parse"))
	if !ok {
		return errors.New("JSON.parse is not available")
	}
	dump, ok := goja.AssertFunction(obj.Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not available")
	}
	s.parse, s.dump = parse, dump
	return nil
}

// lookup evaluates code as a function body and returns the named binding
// when it is callable. A nil function with a nil error means not found.
func (s *session) lookup(code, name string) (goja.Callable, error) {
	if !identifier.MatchString(name) {
		return nil, nil
	}
	body := code + "\n;return typeof " + name + " !== 'undefined' ? " + name + " : null;"
	loader, err := sandbox.CompileBody(s.vm, body)
	if err != nil {
		return nil, err
	}
	v, err := loader(goja.Undefined())
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(v)
	if !ok {
		return nil, nil
	}
	return fn, nil
}

func (s *session) runTest(i int, tc TestCase, fn goja.Callable) (tr TestResult) {
	// Debug lines number tests from 1.
	n := i + 1
	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprint(r)
			switch e := r.(type) {
			case *goja.Exception:
				msg = sandbox.ErrorMessage(e)
			case *goja.InterruptedError:
				s.interrupted = true
			}
			s.debug.post("Test %d: ERROR - %s", n, msg)
			tr = failedResult(msg)
		}
	}()

	if s.debug.enabled() {
		s.debug.post("Test %d: input=%s, expected=%s, maxAccesses=%s",
			n, rawOrUndefined(tc.Input), rawOrUndefined(tc.Expected), limitText(tc.MaxAccesses))
	}

	args, err := s.args(tc)
	if err != nil {
		msg := sandbox.ErrorMessage(err)
		s.debug.post("Test %d: ERROR - %s", n, msg)
		return failedResult(msg)
	}
	expected, err := s.value(tc.Expected)
	if err != nil {
		msg := sandbox.ErrorMessage(err)
		s.debug.post("Test %d: ERROR - %s", n, msg)
		return failedResult(msg)
	}

	var counter *accessCounter
	if tc.Limited() && sandbox.IsArray(s.vm, args[0]) {
		args[0], counter = instrument(s.vm, args[0].(*goja.Object))
	}

	result, err := fn(goja.Undefined(), args...)
	if err != nil {
		var ie *goja.InterruptedError
		if errors.As(err, &ie) {
			s.interrupted = true
		}
		msg := sandbox.ErrorMessage(err)
		s.debug.post("Test %d: ERROR - %s", n, msg)
		return failedResult(msg)
	}

	tr = TestResult{AccessCheck: true, WriteCheck: true, MaxAccesses: tc.MaxAccesses, MaxWrites: tc.MaxWrites}
	if counter != nil {
		reads, writes := counter.reads, counter.writes
		tr.Accesses, tr.Writes = &reads, &writes
		if tc.MaxAccesses != nil {
			tr.AccessCheck = reads <= *tc.MaxAccesses
			s.debug.post("Test %d: accesos=%d, límite=%d, ok=%t", n, reads, *tc.MaxAccesses, tr.AccessCheck)
		}
		if tc.MaxWrites != nil {
			tr.WriteCheck = writes <= *tc.MaxWrites
			s.debug.post("Test %d: escrituras=%d, límite=%d, ok=%t", n, writes, *tc.MaxWrites, tr.WriteCheck)
		}
	}

	// A throwing getter on the result fails the comparison.
	if ex := s.vm.Try(func() { tr.CorrectResult = s.eq.equal(result, expected) }); ex != nil {
		tr.CorrectResult = false
		s.debug.post("Test %d: ERROR - %s", n, sandbox.ErrorMessage(ex))
	}
	tr.Passed = tr.CorrectResult && tr.AccessCheck && tr.WriteCheck
	if s.debug.enabled() {
		s.debug.post("Test %d: result=%s, correctResult=%t, accessCheck=%t, writeCheck=%t, passed=%t",
			n, s.stringify(result), tr.CorrectResult, tr.AccessCheck, tr.WriteCheck, tr.Passed)
	}
	return tr
}

// args materialises input followed by the extra fields in declaration order.
func (s *session) args(tc TestCase) ([]goja.Value, error) {
	args := make([]goja.Value, 0, 1+len(tc.Extra))
	input, err := s.value(tc.Input)
	if err != nil {
		return nil, err
	}
	args = append(args, input)
	for _, a := range tc.Extra {
		v, err := s.value(a.Value)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", a.Name, err)
		}
		args = append(args, v)
	}
	return args, nil
}

func (s *session) value(raw json.RawMessage) (goja.Value, error) {
	if raw == nil {
		return goja.Undefined(), nil
	}
	return s.parse(goja.Undefined(), s.vm.ToValue(string(raw)))
}

func (s *session) stringify(v goja.Value) string {
	out, err := s.dump(goja.Undefined(), v)
	if err != nil || out == nil || goja.IsUndefined(out) {
		return "undefined"
	}
	return out.String()
}

func rawOrUndefined(raw json.RawMessage) string {
	if raw == nil {
		return "undefined"
	}
	return string(raw)
}

func limitText(limit *int) string {
	if limit == nil {
		return "sin límite"
	}
	return fmt.Sprint(*limit)
}
