package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/michaelbrown/gradebox/internal/storage"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening memory db: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestCreateAndGetSubmission(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sub := storage.NewSubmission(storage.KindGrade, "analizar-notas", "function f() {}")
	sub.Outcome = "success"
	sub.State = "SCORED"
	sub.Score = 6.67
	sub.PassedCount = 2
	sub.TotalTests = 3
	sub.Output = "Evaluación completada."
	sub.Results = []byte(`[{"passed":true}]`)

	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	got, err := s.GetSubmission(ctx, sub.ID)
	if err != nil {
		t.Fatalf("GetSubmission: %v", err)
	}

	if got.Kind != storage.KindGrade {
		t.Errorf("kind = %q, want %q", got.Kind, storage.KindGrade)
	}
	if got.ExerciseID != "analizar-notas" {
		t.Errorf("exercise = %q, want %q", got.ExerciseID, "analizar-notas")
	}
	if got.Digest != storage.Digest("function f() {}") {
		t.Errorf("digest = %q, want digest of code", got.Digest)
	}
	if got.Score != 6.67 || got.PassedCount != 2 || got.TotalTests != 3 {
		t.Errorf("score = %v (%d/%d), want 6.67 (2/3)", got.Score, got.PassedCount, got.TotalTests)
	}
	if string(got.Results) != `[{"passed":true}]` {
		t.Errorf("results = %s", got.Results)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should not be zero")
	}
}

func TestCreateSubmissionRequiresID(t *testing.T) {
	s := testStore(t)
	if err := s.CreateSubmission(context.Background(), &storage.Submission{Kind: storage.KindRun}); err == nil {
		t.Fatal("expected error for missing id")
	}
}

func TestGetSubmissionByPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	sub := &storage.Submission{ID: "abc12345-0000-0000-0000-000000000000", Kind: storage.KindRun}
	if err := s.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}

	got, err := s.GetSubmission(ctx, "abc12345")
	if err != nil {
		t.Fatalf("GetSubmission by prefix: %v", err)
	}
	if got.ID != sub.ID {
		t.Errorf("got ID %q, want %q", got.ID, sub.ID)
	}
}

func TestGetSubmissionAmbiguousPrefix(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{
		"abc00000-0000-0000-0000-000000000000",
		"abc11111-0000-0000-0000-000000000000",
	} {
		if err := s.CreateSubmission(ctx, &storage.Submission{ID: id, Kind: storage.KindRun}); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
	}

	_, err := s.GetSubmission(ctx, "abc")
	if !errors.Is(err, storage.ErrAmbiguousID) {
		t.Fatalf("err = %v, want ErrAmbiguousID", err)
	}
}

func TestGetSubmissionNotFound(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, id := range []string{"missing", "", "%"} {
		if _, err := s.GetSubmission(ctx, id); !errors.Is(err, storage.ErrNotFound) {
			t.Errorf("GetSubmission(%q) err = %v, want ErrNotFound", id, err)
		}
	}
}

func TestListSubmissions(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"aaa", "bbb", "ccc"} {
		sub := &storage.Submission{ID: id, Kind: storage.KindRun, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.CreateSubmission(ctx, sub); err != nil {
			t.Fatalf("CreateSubmission: %v", err)
		}
	}

	subs, err := s.ListSubmissions(ctx, storage.ListOptions{})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 3 {
		t.Fatalf("got %d submissions, want 3", len(subs))
	}
	if subs[0].ID != "ccc" || subs[2].ID != "aaa" {
		t.Errorf("order = %s,%s,%s, want newest first", subs[0].ID, subs[1].ID, subs[2].ID)
	}
}

func TestListSubmissionsFilters(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.CreateSubmission(ctx, &storage.Submission{ID: "a1", Kind: storage.KindRun})
	s.CreateSubmission(ctx, &storage.Submission{ID: "a2", Kind: storage.KindGrade, ExerciseID: "x"})
	s.CreateSubmission(ctx, &storage.Submission{ID: "a3", Kind: storage.KindGrade, ExerciseID: "y"})

	subs, err := s.ListSubmissions(ctx, storage.ListOptions{Kind: storage.KindGrade})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("got %d grade submissions, want 2", len(subs))
	}

	subs, err = s.ListSubmissions(ctx, storage.ListOptions{Kind: storage.KindGrade, ExerciseID: "y"})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 1 || subs[0].ID != "a3" {
		t.Errorf("got %v, want only a3", subs)
	}
}

func TestListSubmissionsLimitOffset(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		s.CreateSubmission(ctx, &storage.Submission{ID: string(rune('a' + i)), Kind: storage.KindRun})
	}

	subs, err := s.ListSubmissions(ctx, storage.ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("got %d submissions, want 2", len(subs))
	}

	subs, err = s.ListSubmissions(ctx, storage.ListOptions{Limit: 10, Offset: 4})
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if len(subs) != 1 {
		t.Errorf("got %d submissions past offset, want 1", len(subs))
	}
}

func TestDeleteSubmission(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	s.CreateSubmission(ctx, &storage.Submission{ID: "del12345", Kind: storage.KindRun})

	if err := s.DeleteSubmission(ctx, "del1"); err != nil {
		t.Fatalf("DeleteSubmission: %v", err)
	}

	_, err := s.GetSubmission(ctx, "del12345")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	if err := s.DeleteSubmission(ctx, "del12345"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "gradebox.db")
	ctx := context.Background()

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.CreateSubmission(ctx, &storage.Submission{ID: "keep", Kind: storage.KindRun}); err != nil {
		t.Fatalf("CreateSubmission: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	if _, err := s.GetSubmission(ctx, "keep"); err != nil {
		t.Fatalf("GetSubmission after reopen: %v", err)
	}
}
