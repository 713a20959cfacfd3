package grader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/tidwall/gjson"
	"gopkg.in/yaml.v3"
)

// Reserved test case keys. Every other key is an extra positional argument.
const (
	keyInput       = "input"
	keyExpected    = "expected"
	keyMaxAccesses = "maxAccesses"
	keyMaxWrites   = "maxWrites"
)

// Arg is an extra named argument passed after input, in declaration order.
type Arg struct {
	Name  string
	Value json.RawMessage
}

// TestCase is one graded call of the target function.
//
// Values are kept as raw JSON and only materialised inside the grading
// runtime, so the function under test never touches the caller's copy.
// A nil Input or Expected stands for undefined.
type TestCase struct {
	Input       json.RawMessage
	Expected    json.RawMessage
	MaxAccesses *int
	MaxWrites   *int
	Extra       []Arg
}

// Limited reports whether the test meters array accesses.
func (tc TestCase) Limited() bool {
	return tc.MaxAccesses != nil || tc.MaxWrites != nil
}

// UnmarshalJSON decodes a test case keeping extra keys in document order.
func (tc *TestCase) UnmarshalJSON(data []byte) error {
	if !gjson.ValidBytes(data) {
		return fmt.Errorf("invalid test case JSON")
	}
	doc := gjson.ParseBytes(data)
	if !doc.IsObject() {
		return fmt.Errorf("test case must be an object, got %s", doc.Type)
	}

	*tc = TestCase{}
	var err error
	doc.ForEach(func(key, value gjson.Result) bool {
		raw := json.RawMessage(value.Raw)
		switch name := key.String(); name {
		case keyInput:
			tc.Input = raw
		case keyExpected:
			tc.Expected = raw
		case keyMaxAccesses:
			tc.MaxAccesses, err = jsonLimit(name, value)
		case keyMaxWrites:
			tc.MaxWrites, err = jsonLimit(name, value)
		default:
			tc.Extra = append(tc.Extra, Arg{Name: name, Value: raw})
		}
		return err == nil
	})
	return err
}

func jsonLimit(name string, v gjson.Result) (*int, error) {
	switch v.Type {
	case gjson.Null:
		return nil, nil
	case gjson.Number:
		if v.Num != math.Trunc(v.Num) {
			return nil, fmt.Errorf("%s must be an integer, got %s", name, v.Raw)
		}
		n := int(v.Num)
		return &n, nil
	default:
		return nil, fmt.Errorf("%s must be a number, got %s", name, v.Type)
	}
}

// MarshalJSON encodes the test case with reserved keys first, then extras
// in their original order.
func (tc TestCase) MarshalJSON() ([]byte, error) {
	var b bytes.Buffer
	b.WriteByte('{')
	first := true
	field := func(name string, raw []byte) error {
		if !first {
			b.WriteByte(',')
		}
		first = false
		key, err := json.Marshal(name)
		if err != nil {
			return err
		}
		b.Write(key)
		b.WriteByte(':')
		return json.Compact(&b, raw)
	}

	if tc.Input != nil {
		if err := field(keyInput, tc.Input); err != nil {
			return nil, err
		}
	}
	if tc.Expected != nil {
		if err := field(keyExpected, tc.Expected); err != nil {
			return nil, err
		}
	}
	for _, lim := range []struct {
		name string
		v    *int
	}{{keyMaxAccesses, tc.MaxAccesses}, {keyMaxWrites, tc.MaxWrites}} {
		if lim.v != nil {
			if err := field(lim.name, []byte(fmt.Sprint(*lim.v))); err != nil {
				return nil, err
			}
		}
	}
	for _, a := range tc.Extra {
		if err := field(a.Name, a.Value); err != nil {
			return nil, err
		}
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}

// UnmarshalYAML decodes a test case from an exercise file, keeping extra
// keys in document order.
func (tc *TestCase) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: test case must be a mapping", node.Line)
	}

	*tc = TestCase{}
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		valueNode := node.Content[i+1]

		switch name {
		case keyMaxAccesses, keyMaxWrites:
			lim, err := yamlLimit(name, valueNode)
			if err != nil {
				return err
			}
			if name == keyMaxAccesses {
				tc.MaxAccesses = lim
			} else {
				tc.MaxWrites = lim
			}
			continue
		}

		raw, err := yamlToJSON(valueNode)
		if err != nil {
			return fmt.Errorf("line %d: %s: %w", valueNode.Line, name, err)
		}
		switch name {
		case keyInput:
			tc.Input = raw
		case keyExpected:
			tc.Expected = raw
		default:
			tc.Extra = append(tc.Extra, Arg{Name: name, Value: raw})
		}
	}
	return nil
}

func yamlLimit(name string, node *yaml.Node) (*int, error) {
	if node.Tag == "!!null" {
		return nil, nil
	}
	var n int
	if err := node.Decode(&n); err != nil {
		return nil, fmt.Errorf("line %d: %s must be an integer: %w", node.Line, name, err)
	}
	return &n, nil
}

// yamlToJSON converts a YAML value to JSON, keeping mapping keys in
// document order.
func yamlToJSON(node *yaml.Node) (json.RawMessage, error) {
	var b bytes.Buffer
	if err := writeYAMLNode(&b, node); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func writeYAMLNode(b *bytes.Buffer, node *yaml.Node) error {
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			b.WriteString("null")
			return nil
		}
		return writeYAMLNode(b, node.Content[0])
	case yaml.AliasNode:
		return writeYAMLNode(b, node.Alias)
	case yaml.SequenceNode:
		b.WriteByte('[')
		for i, item := range node.Content {
			if i > 0 {
				b.WriteByte(',')
			}
			if err := writeYAMLNode(b, item); err != nil {
				return err
			}
		}
		b.WriteByte(']')
		return nil
	case yaml.MappingNode:
		b.WriteByte('{')
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode := node.Content[i]
			if keyNode.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: mapping keys must be scalars", keyNode.Line)
			}
			if i > 0 {
				b.WriteByte(',')
			}
			key, err := json.Marshal(keyNode.Value)
			if err != nil {
				return err
			}
			b.Write(key)
			b.WriteByte(':')
			if err := writeYAMLNode(b, node.Content[i+1]); err != nil {
				return err
			}
		}
		b.WriteByte('}')
		return nil
	case yaml.ScalarNode:
		// Decoding resolves the tag, so 1, true, null and "1" keep their types.
		var v any
		if err := node.Decode(&v); err != nil {
			return err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", node.Line, err)
		}
		b.Write(data)
		return nil
	default:
		return fmt.Errorf("line %d: unsupported YAML node", node.Line)
	}
}

// ParseTests decodes a JSON array of test cases.
func ParseTests(data []byte) ([]TestCase, error) {
	var tests []TestCase
	if err := json.Unmarshal(data, &tests); err != nil {
		return nil, fmt.Errorf("parsing tests: %w", err)
	}
	return tests, nil
}
