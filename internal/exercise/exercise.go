// Package exercise loads graded exercises from YAML files.
package exercise

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/michaelbrown/gradebox/internal/grader"
)

// ErrNotFound is returned when no exercise has the requested ID.
var ErrNotFound = errors.New("exercise not found")

var validID = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// Exercise is one lesson exercise: what the student sees plus what the
// grader needs.
type Exercise struct {
	ID                 string            `yaml:"id" json:"id"`
	Title              string            `yaml:"title" json:"title"`
	Instructions       string            `yaml:"instructions" json:"instructions"`
	Preconditions      []string          `yaml:"preconditions" json:"preconditions,omitempty"`
	Postconditions     []string          `yaml:"postconditions" json:"postconditions,omitempty"`
	StarterCode        string            `yaml:"starter_code" json:"starterCode"`
	MainCode           string            `yaml:"main_code" json:"mainCode,omitempty"`
	Solution           string            `yaml:"solution" json:"-"`
	FunctionName       string            `yaml:"function_name" json:"functionName"`
	ForbiddenFunctions []string          `yaml:"forbidden_functions" json:"forbiddenFunctions,omitempty"`
	InjectCode         bool              `yaml:"inject_code" json:"inyectCode"`
	Tests              []grader.TestCase `yaml:"tests" json:"tests"`
}

// Load reads an exercise from a YAML file. A missing id defaults to the
// file name without extension.
func Load(path string) (*Exercise, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exercise %s: %w", path, err)
	}

	var ex Exercise
	if err := yaml.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("parsing exercise %s: %w", path, err)
	}
	if ex.ID == "" {
		ex.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("exercise %s: %w", path, err)
	}
	return &ex, nil
}

// Validate checks the fields the grader depends on.
func (e *Exercise) Validate() error {
	if !validID.MatchString(e.ID) {
		return fmt.Errorf("invalid id %q", e.ID)
	}
	if e.FunctionName == "" {
		return errors.New("function_name is required")
	}
	if e.InjectCode && !strings.Contains(e.MainCode, grader.InjectMarker) {
		return fmt.Errorf("inject_code is set but main_code has no %q", grader.InjectMarker)
	}
	return nil
}

// Content returns the grading content for this exercise.
func (e *Exercise) Content() grader.Content {
	return grader.Content{
		MainCode:           e.MainCode,
		FunctionName:       e.FunctionName,
		Tests:              e.Tests,
		ForbiddenFunctions: e.ForbiddenFunctions,
		InjectCode:         e.InjectCode,
	}
}

// Check grades the reference solution. Authors use it to catch broken
// tests before students do.
func (e *Exercise) Check(ctx context.Context, g *grader.Grader) (*grader.Report, error) {
	if strings.TrimSpace(e.Solution) == "" {
		return nil, fmt.Errorf("exercise %s has no solution", e.ID)
	}
	code := e.Solution
	if e.InjectCode {
		code = grader.StudentMarker + "\n" + code
	}
	return g.Grade(ctx, e.Content(), code, nil)
}

// Catalog is an immutable set of exercises keyed by ID.
type Catalog struct {
	byID map[string]*Exercise
}

// NewCatalog builds a catalog, rejecting duplicate IDs.
func NewCatalog(exercises ...*Exercise) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]*Exercise, len(exercises))}
	for _, ex := range exercises {
		if _, dup := c.byID[ex.ID]; dup {
			return nil, fmt.Errorf("duplicate exercise id %q", ex.ID)
		}
		c.byID[ex.ID] = ex
	}
	return c, nil
}

// LoadDir loads every *.yaml and *.yml file in dir. A missing directory
// yields an empty catalog.
func LoadDir(dir string) (*Catalog, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return NewCatalog()
	}
	if err != nil {
		return nil, fmt.Errorf("reading exercises dir: %w", err)
	}

	var exercises []*Exercise
	for _, entry := range entries {
		ext := filepath.Ext(entry.Name())
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		ex, err := Load(filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, err
		}
		exercises = append(exercises, ex)
	}
	return NewCatalog(exercises...)
}

// Get returns the exercise with the given ID.
func (c *Catalog) Get(id string) (*Exercise, error) {
	ex, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return ex, nil
}

// List returns all exercises sorted by ID.
func (c *Catalog) List() []*Exercise {
	out := make([]*Exercise, 0, len(c.byID))
	for _, ex := range c.byID {
		out = append(out, ex)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of exercises.
func (c *Catalog) Len() int {
	return len(c.byID)
}
