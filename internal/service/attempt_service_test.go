package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/rs/zerolog"
)

type fakeExamStore struct {
	exams map[uuid.UUID]*model.Exam
	err   error // when set, GetByID fails with it
}

func (f *fakeExamStore) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	if f.err != nil {
		return nil, f.err
	}
	exam, ok := f.exams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *exam
	return &cp, nil
}

type fakeQuestionStore struct {
	questions map[uuid.UUID][]model.Question
}

func (f *fakeQuestionStore) ListByExam(_ context.Context, examID uuid.UUID) ([]model.Question, error) {
	return f.questions[examID], nil
}

type fakeAttemptStore struct {
	attempts map[uuid.UUID]*model.Attempt
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{attempts: map[uuid.UUID]*model.Attempt{}}
}

func (f *fakeAttemptStore) Create(_ context.Context, a *model.Attempt) error {
	a.ID = uuid.New()
	a.StartedAt = time.Now()
	cp := *a
	f.attempts[a.ID] = &cp
	return nil
}

func (f *fakeAttemptStore) GetOpen(_ context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error) {
	a, ok := f.attempts[id]
	if !ok || a.SessionToken != sessionToken || a.SubmittedAt != nil {
		return nil, errors.New("no rows in result set")
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAttemptStore) GetSubmitted(_ context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error) {
	a, ok := f.attempts[id]
	if !ok || a.SessionToken != sessionToken || a.SubmittedAt == nil {
		return nil, errors.New("no rows in result set")
	}
	cp := *a
	return &cp, nil
}

// Finalize mirrors the SQL check-and-set: the write happens only when
// the row is still open and the token matches.
func (f *fakeAttemptStore) Finalize(_ context.Context, id uuid.UUID, sessionToken string, answers map[string]string, score int) (bool, error) {
	a, ok := f.attempts[id]
	if !ok || a.SessionToken != sessionToken || a.SubmittedAt != nil {
		return false, nil
	}
	now := time.Now()
	a.Answers = answers
	a.Score = &score
	a.SubmittedAt = &now
	return true, nil
}

func (f *fakeAttemptStore) CountByExamAndToken(_ context.Context, examID uuid.UUID, sessionToken string) (int, error) {
	n := 0
	for _, a := range f.attempts {
		if a.ExamID == examID && a.SessionToken == sessionToken {
			n++
		}
	}
	return n, nil
}

func (f *fakeAttemptStore) ListByExam(_ context.Context, examID uuid.UUID, limit, offset int) ([]repository.AttemptResult, int, error) {
	return nil, 0, nil
}

func newTestAttemptService(exams *fakeExamStore, questions *fakeQuestionStore, attempts *fakeAttemptStore, maxAttempts int) *AttemptService {
	cfg := &config.Config{MaxAttemptsPerExam: maxAttempts}
	return NewAttemptService(exams, questions, attempts, nil, nil, cfg, zerolog.Nop())
}

func fixtureExam(published bool) (*fakeExamStore, *fakeQuestionStore, uuid.UUID, []model.Question) {
	examID := uuid.New()
	questions := []model.Question{
		{ID: uuid.New(), ExamID: examID, QuestionText: "2+2?", QuestionType: model.QuestionTypeShortAnswer, CorrectAnswer: "4"},
		{ID: uuid.New(), ExamID: examID, QuestionText: "Capital of France?", QuestionType: model.QuestionTypeShortAnswer, CorrectAnswer: "Paris"},
	}
	exams := &fakeExamStore{exams: map[uuid.UUID]*model.Exam{
		examID: {ID: examID, Title: "Quiz", IsPublished: published, OwnerID: 1},
	}}
	qs := &fakeQuestionStore{questions: map[uuid.UUID][]model.Question{examID: questions}}
	return exams, qs, examID, questions
}

func TestStartUnknownExam(t *testing.T) {
	exams, qs, _, _ := fixtureExam(true)
	svc := newTestAttemptService(exams, qs, newFakeAttemptStore(), 0)

	_, err := svc.Start(context.Background(), uuid.New(), 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestStartExamStoreFailureIsNotNotFound(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	exams.err = errors.New("connection refused")
	svc := newTestAttemptService(exams, qs, newFakeAttemptStore(), 0)

	_, err := svc.Start(context.Background(), examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrExamNotFound) {
		t.Fatalf("transient store failure reported as not-found: %v", err)
	}
}

func TestStartUnpublishedExam(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(false)
	svc := newTestAttemptService(exams, qs, newFakeAttemptStore(), 0)

	_, err := svc.Start(context.Background(), examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestStartSoloModeOwnerOnly(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(false)
	exams.exams[examID].SoloMode = true
	svc := newTestAttemptService(exams, qs, newFakeAttemptStore(), 0)

	if _, err := svc.Start(context.Background(), examID, 1, &model.StartAttemptRequest{SessionToken: "tok-1234567890"}); err != nil {
		t.Fatalf("owner should start a solo-mode draft: %v", err)
	}
	if _, err := svc.Start(context.Background(), examID, 2, &model.StartAttemptRequest{SessionToken: "tok-1234567890"}); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for non-owner, got %v", err)
	}
}

func TestStartRespectsAttemptLimit(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 2)

	req := &model.StartAttemptRequest{SessionToken: "tok-1234567890"}
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if _, err := svc.Start(ctx, examID, 0, req); err != nil {
			t.Fatalf("start %d: %v", i, err)
		}
	}
	if _, err := svc.Start(ctx, examID, 0, req); !errors.Is(err, ErrAttemptLimit) {
		t.Fatalf("expected ErrAttemptLimit, got %v", err)
	}
	// Another session is unaffected.
	if _, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-other-session"}); err != nil {
		t.Fatalf("different session token should not be limited: %v", err)
	}
}

func TestSubmitScoresAgainstServerKey(t *testing.T) {
	exams, qs, examID, questions := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{
		questions[0].ID.String(): "4",
		questions[1].ID.String(): "paris", // case mismatch counts as wrong
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 50 || result.CorrectCount != 1 || result.TotalCount != 2 {
		t.Fatalf("got score=%d correct=%d total=%d, want 50/1/2", result.Score, result.CorrectCount, result.TotalCount)
	}

	stored := store.attempts[attempt.ID]
	if stored.SubmittedAt == nil || stored.Score == nil || *stored.Score != 50 {
		t.Fatalf("finalized row not persisted: %+v", stored)
	}
}

func TestSubmitAtMostOnce(t *testing.T) {
	exams, qs, examID, questions := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{
		questions[0].ID.String(): "4",
		questions[1].ID.String(): "Paris",
	})
	if err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if first.Score != 100 {
		t.Fatalf("first submit score = %d, want 100", first.Score)
	}

	// A second submit, even with different answers, changes nothing.
	if _, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{}); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("expected ErrInvalidAttempt on resubmit, got %v", err)
	}
	if *store.attempts[attempt.ID].Score != 100 {
		t.Fatalf("resubmit mutated the stored score")
	}
}

func TestSubmitErrorIsOpaque(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	// Unknown id, wrong token and already-submitted must all collapse
	// into the same error value.
	_, unknownErr := svc.Submit(ctx, uuid.New(), "tok-1234567890", nil)
	_, tokenErr := svc.Submit(ctx, attempt.ID, "tok-wrong-token", nil)
	if _, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{}); err != nil {
		t.Fatalf("valid submit: %v", err)
	}
	_, resubmitErr := svc.Submit(ctx, attempt.ID, "tok-1234567890", nil)

	for name, err := range map[string]error{"unknown id": unknownErr, "token mismatch": tokenErr, "resubmit": resubmitErr} {
		if !errors.Is(err, ErrInvalidAttempt) {
			t.Errorf("%s: expected ErrInvalidAttempt, got %v", name, err)
		}
		if err.Error() != ErrInvalidAttempt.Error() {
			t.Errorf("%s: error leaks detail: %q", name, err.Error())
		}
	}
}

func TestSubmitRejectsMalformedQuestionIDs(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{"not-a-uuid": "x"}); !errors.Is(err, ErrMalformedAnswers) {
		t.Fatalf("expected ErrMalformedAnswers, got %v", err)
	}
	if store.attempts[attempt.ID].SubmittedAt != nil {
		t.Fatal("malformed submit must not finalize the attempt")
	}
}

func TestSubmitIgnoresUnknownButWellFormedIDs(t *testing.T) {
	exams, qs, examID, questions := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	result, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{
		questions[0].ID.String(): "4",
		uuid.NewString():         "stray",
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 50 || result.TotalCount != 2 {
		t.Fatalf("stray answer skewed the score: %+v", result)
	}
}

func TestReviewRequiresSubmission(t *testing.T) {
	exams, qs, examID, questions := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, _, err := svc.Review(ctx, attempt.ID, "tok-1234567890"); !errors.Is(err, ErrInvalidAttempt) {
		t.Fatalf("review before submit should fail, got %v", err)
	}

	if _, err := svc.Submit(ctx, attempt.ID, "tok-1234567890", map[string]string{}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	got, full, err := svc.Review(ctx, attempt.ID, "tok-1234567890")
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if !got.Submitted() {
		t.Fatal("reviewed attempt should be submitted")
	}
	if len(full) != len(questions) || full[0].CorrectAnswer == "" {
		t.Fatalf("review should expose the full question set, got %+v", full)
	}
}

func TestStateReportsRemainingTime(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	limit := 30
	exams.exams[examID].TimeLimitMinutes = &limit
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	state, err := svc.State(ctx, attempt.ID, "tok-1234567890")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.RemainingSeconds == nil {
		t.Fatal("timed exam should report remaining seconds")
	}
	if *state.RemainingSeconds <= 0 || *state.RemainingSeconds > float64(limit)*60 {
		t.Fatalf("remaining seconds out of range: %f", *state.RemainingSeconds)
	}
}

func TestStateUntimedExam(t *testing.T) {
	exams, qs, examID, _ := fixtureExam(true)
	store := newFakeAttemptStore()
	svc := newTestAttemptService(exams, qs, store, 0)
	ctx := context.Background()

	attempt, err := svc.Start(ctx, examID, 0, &model.StartAttemptRequest{SessionToken: "tok-1234567890"})
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	state, err := svc.State(ctx, attempt.ID, "tok-1234567890")
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if state.RemainingSeconds != nil {
		t.Fatalf("untimed exam should report nil remaining, got %f", *state.RemainingSeconds)
	}
}
