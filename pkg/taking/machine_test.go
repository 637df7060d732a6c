package taking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSubmitter records submissions and can be told to fail.
type fakeSubmitter struct {
	mu      sync.Mutex
	calls   int
	last    map[string]string
	result  Result
	err     error
	block   chan struct{} // when set, Submit waits until closed
}

func (f *fakeSubmitter) Submit(_ context.Context, answers map[string]string) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.last = answers
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return Result{}, f.err
	}
	return f.result, nil
}

func (f *fakeSubmitter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func newReviewingSession(t *testing.T, sub Submitter, ids ...string) *Session {
	t.Helper()
	s := NewSession(ids, sub)
	if err := s.Begin(0, nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.EnterReview(); err != nil {
		t.Fatalf("enter review: %v", err)
	}
	return s
}

func TestLifecycleHappyPath(t *testing.T) {
	sub := &fakeSubmitter{result: Result{Score: 100, CorrectCount: 2, TotalCount: 2}}
	s := NewSession([]string{"q1", "q2"}, sub)

	if s.State() != StateNotStarted {
		t.Fatalf("initial state = %v", s.State())
	}
	if err := s.Begin(0, nil); err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := s.Answer("q1", "a"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.Answer("q2", "b"); err != nil {
		t.Fatalf("answer: %v", err)
	}
	if err := s.EnterReview(); err != nil {
		t.Fatalf("enter review: %v", err)
	}

	result, err := s.Submit(context.Background(), false)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("score = %d, want 100", result.Score)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state after submit = %v", s.State())
	}
}

func TestReviewRoundTripKeepsAnswersEditable(t *testing.T) {
	sub := &fakeSubmitter{}
	s := NewSession([]string{"q1"}, sub)
	s.Begin(0, nil)
	s.Answer("q1", "first")
	s.EnterReview()

	// Edits are allowed while reviewing.
	if err := s.Answer("q1", "second"); err != nil {
		t.Fatalf("answer in review: %v", err)
	}

	// And after going back.
	if err := s.ResumeAnswering(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if s.State() != StateInProgress {
		t.Fatalf("state = %v, want in_progress", s.State())
	}
	if err := s.Answer("q1", "third"); err != nil {
		t.Fatalf("answer after resume: %v", err)
	}
}

func TestSubmitDirectlyFromInProgress(t *testing.T) {
	// Reviewing is an optional stop; a client without a summary screen
	// submits straight from answering.
	sub := &fakeSubmitter{result: Result{Score: 100, CorrectCount: 1, TotalCount: 1}}
	s := NewSession([]string{"q1"}, sub)
	s.Begin(0, nil)
	s.Answer("q1", "a")

	result, err := s.Submit(context.Background(), false)
	if err != nil {
		t.Fatalf("submit from in_progress: %v", err)
	}
	if result.Score != 100 {
		t.Fatalf("score = %d, want 100", result.Score)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
}

func TestSubmitFromInProgressKeepsConfirmationGate(t *testing.T) {
	sub := &fakeSubmitter{result: Result{Score: 0, CorrectCount: 0, TotalCount: 2}}
	s := NewSession([]string{"q1", "q2"}, sub)
	s.Begin(0, nil)
	s.Answer("q1", "a")

	if _, err := s.Submit(context.Background(), false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed submit: %v", err)
	}
	if s.State() != StateInProgress {
		t.Fatalf("state after gated submit = %v, want in_progress", s.State())
	}
	if sub.callCount() != 0 {
		t.Fatal("gated submit must not reach the server")
	}

	if _, err := s.Submit(context.Background(), true); err != nil {
		t.Fatalf("confirmed submit: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
}

func TestSubmitRejectedBeforeStartAndAfterFinish(t *testing.T) {
	sub := &fakeSubmitter{result: Result{Score: 100, CorrectCount: 1, TotalCount: 1}}
	s := NewSession([]string{"q1"}, sub)

	if _, err := s.Submit(context.Background(), true); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("submit before begin: %v", err)
	}

	s.Begin(0, nil)
	s.Answer("q1", "a")
	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := s.Submit(context.Background(), true); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("submit after submitted: %v", err)
	}
	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.callCount())
	}
}

func TestConfirmationGate(t *testing.T) {
	sub := &fakeSubmitter{result: Result{Score: 50, CorrectCount: 1, TotalCount: 2}}
	s := newReviewingSession(t, sub, "q1", "q2")
	s.Answer("q1", "a")
	s.Answer("q2", "   ") // whitespace only counts as unanswered

	if got := s.UnansweredCount(); got != 1 {
		t.Fatalf("unanswered = %d, want 1", got)
	}

	if _, err := s.Submit(context.Background(), false); !errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("unconfirmed submit: %v", err)
	}
	if s.State() != StateReviewing {
		t.Fatalf("state after gated submit = %v, want reviewing", s.State())
	}
	if sub.callCount() != 0 {
		t.Fatal("gated submit must not reach the server")
	}

	if _, err := s.Submit(context.Background(), true); err != nil {
		t.Fatalf("confirmed submit: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
}

func TestSubmitFailureReturnsToReviewing(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("network down")}
	s := newReviewingSession(t, sub, "q1")
	s.Answer("q1", "a")

	if _, err := s.Submit(context.Background(), false); err == nil {
		t.Fatal("expected submit error")
	}
	if s.State() != StateReviewing {
		t.Fatalf("state after failed submit = %v, want reviewing", s.State())
	}

	// Retry succeeds once the transport recovers.
	sub.mu.Lock()
	sub.err = nil
	sub.result = Result{Score: 100, CorrectCount: 1, TotalCount: 1}
	sub.mu.Unlock()

	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("retry submit: %v", err)
	}
	if s.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
}

func TestSubmitFailureReturnsToInProgress(t *testing.T) {
	sub := &fakeSubmitter{err: errors.New("network down")}
	s := NewSession([]string{"q1"}, sub)
	s.Begin(0, nil)
	s.Answer("q1", "a")

	if _, err := s.Submit(context.Background(), false); err == nil {
		t.Fatal("expected submit error")
	}
	if s.State() != StateInProgress {
		t.Fatalf("state after failed submit = %v, want in_progress", s.State())
	}
	if err := s.Answer("q1", "edited"); err != nil {
		t.Fatalf("answer after failed submit: %v", err)
	}
}

func TestSubmitReentrancyGuard(t *testing.T) {
	block := make(chan struct{})
	sub := &fakeSubmitter{block: block, result: Result{Score: 100, CorrectCount: 1, TotalCount: 1}}
	s := newReviewingSession(t, sub, "q1")
	s.Answer("q1", "a")

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), false)
		done <- err
	}()

	// Wait for the first submit to be in flight.
	for s.State() != StateSubmitting {
		time.Sleep(time.Millisecond)
	}

	if _, err := s.Submit(context.Background(), false); !errors.Is(err, ErrAlreadySubmitting) {
		t.Fatalf("second submit while in flight: %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.callCount())
	}
}

func TestTimerForcesSubmitBypassingGate(t *testing.T) {
	clock := newFakeClock()
	sub := &fakeSubmitter{result: Result{Score: 0, CorrectCount: 0, TotalCount: 2}}
	s := NewSession([]string{"q1", "q2"}, sub)

	fired := make(chan struct{})
	s.SetOnTimeUp(func() { close(fired) })

	if err := s.Begin(10*time.Minute, clock); err != nil {
		t.Fatalf("begin: %v", err)
	}
	// Still answering, nothing confirmed, one question blank.
	s.Answer("q1", "a")

	clock.Advance(10 * time.Minute)
	<-fired

	if s.State() != StateSubmitted {
		t.Fatalf("state after time-up = %v, want submitted", s.State())
	}
	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times, want 1", sub.callCount())
	}
	if sub.last["q1"] != "a" {
		t.Fatalf("forced submit lost answers: %v", sub.last)
	}
}

func TestTimerForcedSubmitFailureStillEndsSession(t *testing.T) {
	clock := newFakeClock()
	wantErr := errors.New("server unreachable")
	sub := &fakeSubmitter{err: wantErr}
	s := NewSession([]string{"q1"}, sub)

	fired := make(chan struct{})
	s.SetOnTimeUp(func() { close(fired) })

	s.Begin(time.Minute, clock)
	clock.Advance(time.Minute)
	<-fired

	// The deadline passed: no more answering, even though the submit
	// never landed.
	if s.State() != StateSubmitted {
		t.Fatalf("state = %v, want submitted", s.State())
	}
	if err := s.Answer("q1", "late"); !errors.Is(err, ErrBadTransition) {
		t.Fatalf("answer after deadline: %v", err)
	}
	if got := s.SubmitErr(); !errors.Is(got, wantErr) {
		t.Fatalf("retained error = %v, want %v", got, wantErr)
	}
	if s.Result() != nil {
		t.Fatal("no result should be recorded for a failed submit")
	}
}

func TestTimerDoesNotFireAfterManualSubmit(t *testing.T) {
	clock := newFakeClock()
	sub := &fakeSubmitter{result: Result{Score: 100, CorrectCount: 1, TotalCount: 1}}
	s := NewSession([]string{"q1"}, sub)

	s.Begin(10*time.Minute, clock)
	s.Answer("q1", "a")
	s.EnterReview()
	if _, err := s.Submit(context.Background(), false); err != nil {
		t.Fatalf("submit: %v", err)
	}

	clock.Advance(20 * time.Minute)

	if sub.callCount() != 1 {
		t.Fatalf("submitter called %d times after deadline, want 1", sub.callCount())
	}
}

func TestUntimedSessionHasNoCountdown(t *testing.T) {
	s := NewSession([]string{"q1"}, &fakeSubmitter{})
	s.Begin(0, nil)

	if _, ok := s.Remaining(); ok {
		t.Fatal("untimed session should report no remaining time")
	}
}
