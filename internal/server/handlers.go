package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/gradebox/internal/exercise"
	"github.com/michaelbrown/gradebox/internal/grader"
	"github.com/michaelbrown/gradebox/internal/sandbox"
	"github.com/michaelbrown/gradebox/internal/storage"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, exercise.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAmbiguousID):
		return http.StatusConflict
	case errors.Is(err, grader.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// --- Execution ---

type runRequest struct {
	Code string `json:"code"`
}

type runResponse struct {
	*sandbox.ExecResult
	SubmissionID string `json:"submissionId,omitempty"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	_, ctx, release := s.runs.Start(r.Context())
	defer release()

	res, err := s.deps.Runner.Exec(ctx, sandbox.ExecOpts{Code: req.Code})
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	sub := storage.NewSubmission(storage.KindRun, "", req.Code)
	sub.Outcome = string(res.Type)
	sub.Output = res.Output
	writeJSON(w, http.StatusOK, runResponse{
		ExecResult:   res,
		SubmissionID: s.record(r.Context(), sub),
	})
}

// --- Grading ---

type gradeRequest struct {
	Content grader.Content `json:"content"`
	Code    string         `json:"code"`
	Debug   bool           `json:"debug"`
}

type gradeResponse struct {
	*grader.Report
	Approved     bool     `json:"approved"`
	SubmissionID string   `json:"submissionId,omitempty"`
	Debug        []string `json:"debug,omitempty"`
}

func (s *Server) handleGrade(w http.ResponseWriter, r *http.Request) {
	var req gradeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.respondGrade(w, r, "", req.Content, req.Code, req.Debug)
}

type gradeExerciseRequest struct {
	Code  string `json:"code"`
	Debug bool   `json:"debug"`
}

func (s *Server) handleGradeExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.deps.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	var req gradeExerciseRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	s.respondGrade(w, r, ex.ID, ex.Content(), req.Code, req.Debug)
}

func (s *Server) respondGrade(w http.ResponseWriter, r *http.Request, exerciseID string, content grader.Content, code string, debug bool) {
	var lines []string
	var fn grader.DebugFunc
	if debug {
		// Lines arrive from the grading goroutine but the grader stops
		// posting before Grade returns.
		fn = func(line string) { lines = append(lines, line) }
	}

	resp, err := s.grade(r.Context(), exerciseID, content, code, fn)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	resp.Debug = lines
	writeJSON(w, http.StatusOK, resp)
}

// grade runs one grading under the run tracker and records it.
func (s *Server) grade(ctx context.Context, exerciseID string, content grader.Content, code string, debug grader.DebugFunc) (*gradeResponse, error) {
	_, runCtx, release := s.runs.Start(ctx)
	defer release()

	report, err := s.deps.Grader.Grade(runCtx, content, code, debug)
	if err != nil {
		return nil, err
	}

	sub := storage.NewSubmission(storage.KindGrade, exerciseID, code)
	sub.Outcome = string(report.Type)
	sub.State = string(report.State)
	sub.Score = report.Score
	sub.PassedCount = report.PassedCount
	sub.TotalTests = report.TotalTests
	sub.Output = report.Output
	if results, err := json.Marshal(report.Results); err == nil {
		sub.Results = results
	}

	return &gradeResponse{
		Report:       report,
		Approved:     report.Approved(s.deps.PassThreshold),
		SubmissionID: s.record(ctx, sub),
	}, nil
}

// record persists sub when a store is configured and returns its ID.
// History is best effort; a storage failure never fails the request.
func (s *Server) record(ctx context.Context, sub *storage.Submission) string {
	if s.deps.Store == nil {
		return ""
	}
	if err := s.deps.Store.CreateSubmission(ctx, sub); err != nil {
		s.log.Warn("recording submission", "id", sub.ID, "kind", sub.Kind, "error", err)
		return ""
	}
	return sub.ID
}

// --- Exercise handlers ---

type exerciseSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	FunctionName string `json:"functionName"`
	TotalTests   int    `json:"totalTests"`
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	list := s.deps.Catalog.List()
	out := make([]exerciseSummary, 0, len(list))
	for _, ex := range list {
		out = append(out, exerciseSummary{
			ID:           ex.ID,
			Title:        ex.Title,
			FunctionName: ex.FunctionName,
			TotalTests:   len(ex.Tests),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	ex, err := s.deps.Catalog.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ex)
}

// --- Submission handlers ---

func (s *Server) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeJSON(w, http.StatusOK, []storage.Submission{})
		return
	}

	q := r.URL.Query()
	opts := storage.ListOptions{
		Kind:       storage.Kind(q.Get("kind")),
		ExerciseID: q.Get("exercise"),
	}
	if limit := q.Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := q.Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	subs, err := s.deps.Store.ListSubmissions(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []storage.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (s *Server) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	sub, err := s.deps.Store.GetSubmission(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (s *Server) handleDeleteSubmission(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store == nil {
		writeError(w, http.StatusNotFound, "history is disabled")
		return
	}
	if err := s.deps.Store.DeleteSubmission(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
