package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dop251/goja"
)

// errDeadline is the value passed to Runtime.Interrupt when the timer wins.
var errDeadline = errors.New("execution deadline exceeded")

// NewRuntime returns a fresh JS runtime configured by the policy.
// Runtimes are never reused across executions.
func NewRuntime(p Policy) *goja.Runtime {
	vm := goja.New()
	if p.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(p.MaxCallStackSize)
	}
	return vm
}

// CompileBody compiles body the way `new Function(body)` does and returns
// the resulting zero-parameter function. Syntax errors surface as thrown
// SyntaxError exceptions.
func CompileBody(vm *goja.Runtime, body string) (goja.Callable, error) {
	fnObj, err := vm.New(vm.Get("Function"), vm.ToValue(body))
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(fnObj)
	if !ok {
		return nil, errors.New("compiled body is not callable")
	}
	return fn, nil
}

// ErrorMessage extracts the JS-visible message of an error raised by the
// runtime: the thrown value's message property, or the thrown value itself.
func ErrorMessage(err error) string {
	var ex *goja.Exception
	if errors.As(err, &ex) {
		v := ex.Value()
		if obj, ok := v.(*goja.Object); ok {
			if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
				return msg.String()
			}
		}
		if v == nil {
			return "undefined"
		}
		return v.String()
	}
	var so *goja.StackOverflowError
	if errors.As(err, &so) {
		return "Maximum call stack size exceeded"
	}
	return err.Error()
}

// IsArray reports whether v is an array according to Array.isArray, which
// also sees through proxies wrapping arrays.
func IsArray(vm *goja.Runtime, v goja.Value) bool {
	if _, ok := v.(*goja.Object); !ok {
		return false
	}
	isArray, ok := goja.AssertFunction(vm.Get("Array").ToObject(vm).Get("isArray"))
	if !ok {
		return false
	}
	res, err := isArray(goja.Undefined(), v)
	return err == nil && res.ToBoolean()
}

// Race runs fn on its own goroutine against a wall-clock timer.
//
// Exactly one of three things happens: fn's value is returned, the timer
// fires (timedOut is true), or ctx is done (err is ctx.Err()). In the last
// two cases the runtime is interrupted and fn's eventual value is dropped.
// fn must only touch vm and state private to this call.
func Race[T any](ctx context.Context, vm *goja.Runtime, timeout time.Duration, fn func() T) (result T, timedOut bool, err error) {
	done := make(chan T, 1)
	failed := make(chan any, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				failed <- r
			}
		}()
		done <- fn()
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case result = <-done:
		return result, false, nil
	case r := <-failed:
		return result, false, fmt.Errorf("runtime panic: %v", r)
	case <-timer.C:
		vm.Interrupt(errDeadline)
		return result, true, nil
	case <-ctx.Done():
		vm.Interrupt(ctx.Err())
		return result, false, ctx.Err()
	}
}
