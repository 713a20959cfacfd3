package grader

import (
	"encoding/json"
	"regexp"
	"strings"
)

const (
	// InjectMarker is replaced by the student fragment in injected harnesses.
	InjectMarker = "// INJECT_CODE_HERE"
	// StudentMarker precedes the student's own code in the editor template.
	StudentMarker = "// Escribe a partir de aquí tu código:"
)

// Content is the grading part of an exercise as supplied by the lesson
// content collaborators. Missing fields are tolerated.
type Content struct {
	MainCode           string     `json:"mainCode" yaml:"main_code"`
	FunctionName       string     `json:"functionName" yaml:"function_name"`
	Tests              []TestCase `json:"tests" yaml:"tests"`
	ForbiddenFunctions []string   `json:"forbiddenFunctions" yaml:"forbidden_functions"`
	InjectCode         bool       `json:"inyectCode" yaml:"inject_code"`
}

// UnmarshalJSON also accepts the "injectCode" spelling.
func (c *Content) UnmarshalJSON(data []byte) error {
	type plain Content
	aux := struct {
		*plain
		InjectCode *bool `json:"injectCode"`
	}{plain: (*plain)(c)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.InjectCode != nil {
		c.InjectCode = *aux.InjectCode
	}
	return nil
}

// ExtractStudentCode returns everything after StudentMarker, or "" when the
// marker is absent.
func ExtractStudentCode(editorCode string) string {
	_, after, found := strings.Cut(editorCode, StudentMarker)
	if !found {
		return ""
	}
	return after
}

// Combine assembles the program that is graded: the student fragment
// injected into MainCode, or the editor code followed by MainCode.
func Combine(c Content, editorCode string) string {
	if c.InjectCode {
		return strings.Replace(c.MainCode, InjectMarker, ExtractStudentCode(editorCode), 1)
	}
	return editorCode + "\n" + c.MainCode
}

var (
	lineComment  = regexp.MustCompile(`(?m)//.*$`)
	blockComment = regexp.MustCompile(`/\*[\s\S]*?\*/`)
)

// StripComments removes // line comments and /* */ block comments. It is a
// textual pass and does not understand string literals.
func StripComments(code string) string {
	code = lineComment.ReplaceAllString(code, "")
	return blockComment.ReplaceAllString(code, "")
}

// FindForbidden returns the first deny-list entry that occurs in the
// comment-stripped code. Empty entries are ignored.
func FindForbidden(code string, deny []string) (string, bool) {
	if len(deny) == 0 {
		return "", false
	}
	clean := StripComments(code)
	for _, construct := range deny {
		if construct != "" && strings.Contains(clean, construct) {
			return construct, true
		}
	}
	return "", false
}
