package grader

import (
	"github.com/dop251/goja"

	"github.com/michaelbrown/gradebox/internal/sandbox"
)

// equaler compares JS values structurally inside one runtime.
type equaler struct {
	vm *goja.Runtime
}

// equal reports deep structural equality:
//   - strictly equal values are equal, so NaN never equals itself
//   - null and undefined only equal themselves
//   - functions only equal themselves
//   - arrays equal arrays of the same length with equal elements
//   - an array never equals a non-array object
//   - objects equal objects with the same own enumerable key set and
//     equal values, regardless of key order
//   - everything else must be strictly equal
//
// Reading properties may run getters, which can panic with a JS exception.
func (e equaler) equal(a, b goja.Value) bool {
	if a == nil {
		a = goja.Undefined()
	}
	if b == nil {
		b = goja.Undefined()
	}
	if a.StrictEquals(b) {
		return true
	}
	if isNullish(a) || isNullish(b) {
		return false
	}

	objA, okA := a.(*goja.Object)
	objB, okB := b.(*goja.Object)
	if !okA || !okB {
		return false
	}
	if isFunction(objA) || isFunction(objB) {
		return false
	}

	arrA, arrB := sandbox.IsArray(e.vm, objA), sandbox.IsArray(e.vm, objB)
	if arrA != arrB {
		return false
	}
	if arrA {
		return e.equalArrays(objA, objB)
	}
	return e.equalObjects(objA, objB)
}

func (e equaler) equalArrays(a, b *goja.Object) bool {
	n := a.Get("length").ToInteger()
	if n != b.Get("length").ToInteger() {
		return false
	}
	for i := int64(0); i < n; i++ {
		idx := e.vm.ToValue(i).String()
		if !e.equal(a.Get(idx), b.Get(idx)) {
			return false
		}
	}
	return true
}

func (e equaler) equalObjects(a, b *goja.Object) bool {
	keysA, keysB := a.Keys(), b.Keys()
	if len(keysA) != len(keysB) {
		return false
	}
	inB := make(map[string]struct{}, len(keysB))
	for _, k := range keysB {
		inB[k] = struct{}{}
	}
	for _, k := range keysA {
		if _, ok := inB[k]; !ok {
			return false
		}
		if !e.equal(a.Get(k), b.Get(k)) {
			return false
		}
	}
	return true
}

func isNullish(v goja.Value) bool {
	return goja.IsUndefined(v) || goja.IsNull(v)
}

func isFunction(obj *goja.Object) bool {
	_, ok := goja.AssertFunction(obj)
	return ok
}
