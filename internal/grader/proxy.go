package grader

import (
	"math"
	"strconv"

	"github.com/dop251/goja"
)

// accessCounter tallies index reads and writes made through an
// instrumented array. Non-index properties such as length and methods are
// not counted.
type accessCounter struct {
	reads  int
	writes int
}

// instrument wraps arr in a proxy that counts index accesses and otherwise
// behaves exactly like arr.
func instrument(vm *goja.Runtime, arr *goja.Object) (goja.Value, *accessCounter) {
	c := &accessCounter{}
	proxy := vm.NewProxy(arr, &goja.ProxyTrapConfig{
		Get: func(target *goja.Object, prop string, _ goja.Value) goja.Value {
			if isIndexKey(prop) {
				c.reads++
			}
			return orUndefined(target.Get(prop))
		},
		GetIdx: func(target *goja.Object, idx int, _ goja.Value) goja.Value {
			c.reads++
			return orUndefined(target.Get(strconv.Itoa(idx)))
		},
		GetSym: func(target *goja.Object, sym *goja.Symbol, _ goja.Value) goja.Value {
			return orUndefined(target.GetSymbol(sym))
		},
		Set: func(target *goja.Object, prop string, value goja.Value, _ goja.Value) bool {
			if isIndexKey(prop) {
				c.writes++
			}
			return target.Set(prop, value) == nil
		},
		SetIdx: func(target *goja.Object, idx int, value goja.Value, _ goja.Value) bool {
			c.writes++
			return target.Set(strconv.Itoa(idx), value) == nil
		},
		SetSym: func(target *goja.Object, sym *goja.Symbol, value goja.Value, _ goja.Value) bool {
			return target.SetSymbol(sym, value) == nil
		},
	})
	return vm.ToValue(proxy), c
}

// isIndexKey reports whether a property name reads as a number.
func isIndexKey(prop string) bool {
	f, err := strconv.ParseFloat(prop, 64)
	return err == nil && !math.IsNaN(f)
}

func orUndefined(v goja.Value) goja.Value {
	if v == nil {
		return goja.Undefined()
	}
	return v
}
