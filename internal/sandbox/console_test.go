package sandbox

import (
	"encoding/json"
	"strconv"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func evalValue(t require.TestingT, vm *goja.Runtime, expr string) goja.Value {
	v, err := vm.RunString("(" + expr + ")")
	require.NoError(t, err)
	return v
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		expr string
		want string
	}{
		{`null`, "null"},
		{`undefined`, "undefined"},
		{`"hola"`, "hola"},
		{`42`, "42"},
		{`1.5`, "1.5"},
		{`false`, "false"},
		{`[]`, "[]"},
		{`({})`, "{  }"},
		{`[1, "a", null, undefined]`, "[1, 'a', null, undefined]"},
		{`[[1, 2], ["x"]]`, "[[1, 2], ['x']]"},
		{`({ nombre: "Ana", notas: [7, 8] })`, "{ nombre: 'Ana', notas: [7, 8] }"},
		{`({ a: { b: "c" } })`, "{ a: { b: 'c' } }"},
		{`(function () { var o = { a: 1 }; o.self = o; return o; })()`, "{ a: 1, self: [Circular] }"},
		{`Object.create({ inherited: 1 }, { own: { value: 2, enumerable: true } })`, "{ own: 2 }"},
	}

	vm := goja.New()
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(vm, evalValue(t, vm, tt.expr)))
		})
	}
}

func TestFormatValueThrowingGetter(t *testing.T) {
	vm := goja.New()
	c := BindConsole(vm, FormatValue)
	_, err := vm.RunString(`
		var roto = { get x() { throw new Error("no"); } };
		console.log(roto);
		console.log([1, roto]);
		console.log({ toString() { return "especial"; }, get y() { throw 1; } });
	`)
	require.NoError(t, err)

	assert.Equal(t, []string{"[object Object]", "[1, [object Object]]", "especial"}, c.Lines())
}

func TestFormatValueIntArrays(t *testing.T) {
	vm := goja.New()
	rapid.Check(t, func(t *rapid.T) {
		xs := rapid.SliceOf(rapid.IntRange(-1000, 1000)).Draw(t, "xs")
		parts := make([]string, len(xs))
		for i, x := range xs {
			parts[i] = strconv.Itoa(x)
		}
		data, _ := json.Marshal(xs)
		if xs == nil {
			data = []byte("[]")
		}

		got := FormatValue(vm, evalValue(t, vm, string(data)))
		want := "[" + strings.Join(parts, ", ") + "]"
		if got != want {
			t.Fatalf("FormatValue(%s) = %q, want %q", data, got, want)
		}
	})
}

func TestFormatValueBareStringsUnquoted(t *testing.T) {
	vm := goja.New()
	rapid.Check(t, func(t *rapid.T) {
		s := rapid.StringMatching(`[a-zA-Z0-9 ]{0,20}`).Draw(t, "s")
		if got := FormatValue(vm, vm.ToValue(s)); got != s {
			t.Fatalf("FormatValue(%q) = %q", s, got)
		}
		nested := vm.NewArray(s)
		if got := FormatValue(vm, nested); got != "['"+s+"']" {
			t.Fatalf("nested FormatValue(%q) = %q", s, got)
		}
	})
}

func TestConsoleJoinsArguments(t *testing.T) {
	vm := goja.New()
	c := BindConsole(vm, PlainString)
	_, err := vm.RunString(`console.log("a", 1, [1, 2]); console.warn({}); console.error()`)
	require.NoError(t, err)

	assert.Equal(t, []string{"a 1 1,2", "[object Object]", ""}, c.Lines())
}
