package sandbox

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/dop251/goja"
)

// Formatter renders one console argument.
type Formatter func(vm *goja.Runtime, v goja.Value) string

// Console is a context-local sink for console output. It is bound into a
// single runtime and discarded with it, so nothing needs restoring.
type Console struct {
	vm     *goja.Runtime
	format Formatter
	lines  []string
}

// BindConsole installs a console object whose log-family methods append to
// the returned sink.
func BindConsole(vm *goja.Runtime, format Formatter) *Console {
	c := &Console{vm: vm, format: format}
	obj := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug"} {
		_ = obj.Set(name, c.log)
	}
	_ = vm.Set("console", obj)
	return c
}

func (c *Console) log(call goja.FunctionCall) goja.Value {
	parts := make([]string, len(call.Arguments))
	for i, arg := range call.Arguments {
		parts[i] = c.format(c.vm, arg)
	}
	c.lines = append(c.lines, strings.Join(parts, " "))
	return goja.Undefined()
}

// Lines returns the captured lines in call order.
func (c *Console) Lines() []string {
	return append([]string(nil), c.lines...)
}

// PlainString renders a value with JS String() semantics.
func PlainString(_ *goja.Runtime, v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

// FormatValue renders a value for human-readable output: bare strings
// unquoted, strings nested in arrays or objects single-quoted, arrays as
// [a, b] and objects as { k: v } over own enumerable keys.
func FormatValue(vm *goja.Runtime, v goja.Value) string {
	var b strings.Builder
	formatValue(vm, &b, v, false, map[*goja.Object]bool{})
	return b.String()
}

func formatValue(vm *goja.Runtime, b *strings.Builder, v goja.Value, nested bool, path map[*goja.Object]bool) {
	switch {
	case v == nil || goja.IsUndefined(v):
		b.WriteString("undefined")
		return
	case goja.IsNull(v):
		b.WriteString("null")
		return
	}

	obj, isObj := v.(*goja.Object)
	if !isObj {
		if nested && isString(v) {
			b.WriteByte('\'')
			b.WriteString(v.String())
			b.WriteByte('\'')
			return
		}
		b.WriteString(v.String())
		return
	}

	if _, isFn := goja.AssertFunction(obj); isFn {
		b.WriteString(obj.String())
		return
	}
	if path[obj] {
		b.WriteString("[Circular]")
		return
	}
	path[obj] = true
	defer delete(path, obj)

	var inner strings.Builder
	if ex := vm.Try(func() { formatObject(vm, &inner, obj, path) }); ex != nil {
		b.WriteString(objectString(vm, obj))
		return
	}
	b.WriteString(inner.String())
}

// formatObject renders an array or plain object. A throwing getter panics
// with a JS exception, so callers run it under vm.Try.
func formatObject(vm *goja.Runtime, b *strings.Builder, obj *goja.Object, path map[*goja.Object]bool) {
	if IsArray(vm, obj) {
		n := obj.Get("length").ToInteger()
		b.WriteByte('[')
		for i := int64(0); i < n; i++ {
			if i > 0 {
				b.WriteString(", ")
			}
			formatValue(vm, b, obj.Get(strconv.FormatInt(i, 10)), true, path)
		}
		b.WriteByte(']')
		return
	}

	b.WriteString("{ ")
	for i, key := range obj.Keys() {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(key)
		b.WriteString(": ")
		formatValue(vm, b, obj.Get(key), true, path)
	}
	b.WriteString(" }")
}

// objectString is String(obj), or "[object Object]" when toString throws.
func objectString(vm *goja.Runtime, obj *goja.Object) string {
	s := "[object Object]"
	vm.Try(func() { s = obj.String() })
	return s
}

func isString(v goja.Value) bool {
	t := v.ExportType()
	return t != nil && t.Kind() == reflect.String
}
