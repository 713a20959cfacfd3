package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

var (
	// ErrNotFound is returned when no submission matches an ID or prefix.
	ErrNotFound = errors.New("submission not found")
	// ErrAmbiguousID is returned when an ID prefix matches several submissions.
	ErrAmbiguousID = errors.New("ambiguous submission id")
)

// Kind distinguishes free runs from graded attempts.
type Kind string

const (
	KindRun   Kind = "run"
	KindGrade Kind = "grade"
)

// Submission is one recorded execution or grading of student code.
type Submission struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	ExerciseID  string          `json:"exercise_id,omitempty"`
	Digest      string          `json:"digest"`
	Code        string          `json:"code"`
	Outcome     string          `json:"outcome"`
	State       string          `json:"state,omitempty"`
	Score       float64         `json:"score"`
	PassedCount int             `json:"passed_count"`
	TotalTests  int             `json:"total_tests"`
	Output      string          `json:"output"`
	Results     json.RawMessage `json:"results,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewSubmission returns a submission with a fresh ID and the digest of code.
func NewSubmission(kind Kind, exerciseID, code string) *Submission {
	return &Submission{
		ID:         uuid.New().String(),
		Kind:       kind,
		ExerciseID: exerciseID,
		Digest:     Digest(code),
		Code:       code,
	}
}

// Digest returns the hex BLAKE3 hash of code. Identical code always
// yields the same digest, which groups resubmissions.
func Digest(code string) string {
	sum := blake3.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

// ListOptions controls filtering and pagination for ListSubmissions.
type ListOptions struct {
	Kind       Kind
	ExerciseID string
	Limit      int
	Offset     int
}

// Store is the persistence interface for submissions.
type Store interface {
	// CreateSubmission inserts a new submission. The ID field must be set by the caller.
	CreateSubmission(ctx context.Context, s *Submission) error

	// GetSubmission returns a submission by ID or ID prefix.
	GetSubmission(ctx context.Context, id string) (*Submission, error)

	// ListSubmissions returns submissions ordered by created_at descending.
	ListSubmissions(ctx context.Context, opts ListOptions) ([]Submission, error)

	// DeleteSubmission removes a submission by ID or ID prefix.
	DeleteSubmission(ctx context.Context, id string) error

	// Close releases resources.
	Close() error
}
