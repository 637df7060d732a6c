// Package taking implements the client side of the attempt protocol:
// a state machine that frontends (or test harnesses) can embed to walk
// an attempt from start to submission, plus the countdown timer. It
// holds no grading logic; scores only ever come back from the server.
package taking

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

// State is the lifecycle position of a taking session.
type State int

const (
	StateNotStarted State = iota
	StateInProgress
	StateReviewing
	StateSubmitting
	StateSubmitted
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateInProgress:
		return "in_progress"
	case StateReviewing:
		return "reviewing"
	case StateSubmitting:
		return "submitting"
	case StateSubmitted:
		return "submitted"
	default:
		return "unknown"
	}
}

var (
	ErrBadTransition        = errors.New("operation not allowed in current state")
	ErrConfirmationRequired = errors.New("unanswered questions require confirmation")
	ErrAlreadySubmitting    = errors.New("a submission is already in flight")
)

// Result is the graded outcome returned by the server.
type Result struct {
	Score        int
	CorrectCount int
	TotalCount   int
}

// Submitter delivers the final answer map to the server. The session
// calls it exactly once per successful submission.
type Submitter interface {
	Submit(ctx context.Context, answers map[string]string) (Result, error)
}

// Session drives one attempt through the taking lifecycle:
//
//	NotStarted → InProgress ⇄ Reviewing, InProgress/Reviewing → Submitted
//
// Answers are editable in InProgress and Reviewing. Reviewing is an
// optional summary stop; explicit submission departs from either state
// and gates on confirmation when questions are unanswered. The timer
// path bypasses the gate. All methods are safe for concurrent use.
type Session struct {
	mu sync.Mutex

	state       State
	questionIDs []string
	answers     map[string]string
	submitter   Submitter
	timer       *Timer

	result    *Result
	submitErr error

	onTimeUp func()
}

// NewSession creates a session over the given question ids. The ids
// define the denominator for unanswered counts; answers to other ids
// are accepted but not counted.
func NewSession(questionIDs []string, submitter Submitter) *Session {
	ids := make([]string, len(questionIDs))
	copy(ids, questionIDs)
	return &Session{
		state:       StateNotStarted,
		questionIDs: ids,
		answers:     make(map[string]string),
		submitter:   submitter,
	}
}

// SetOnTimeUp registers a callback invoked after a timer-forced
// submission completes (successfully or not). Must be called before
// Begin.
func (s *Session) SetOnTimeUp(f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTimeUp = f
}

// Begin moves NotStarted → InProgress. A positive limit starts the
// countdown; zero means untimed. clock may be nil for real time.
func (s *Session) Begin(limit time.Duration, clock Clock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateNotStarted {
		return ErrBadTransition
	}
	s.state = StateInProgress

	if limit > 0 {
		s.timer = NewTimer(limit, clock, s.timeUp)
	}
	return nil
}

// Answer records or replaces one answer. Allowed while InProgress or
// Reviewing.
func (s *Session) Answer(questionID, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInProgress && s.state != StateReviewing {
		return ErrBadTransition
	}
	s.answers[questionID] = value
	return nil
}

// EnterReview moves InProgress → Reviewing.
func (s *Session) EnterReview() error {
	return s.transition(StateInProgress, StateReviewing)
}

// ResumeAnswering moves Reviewing → InProgress.
func (s *Session) ResumeAnswering() error {
	return s.transition(StateReviewing, StateInProgress)
}

func (s *Session) transition(from, to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != from {
		return ErrBadTransition
	}
	s.state = to
	return nil
}

// UnansweredCount counts questions with no answer or an answer that is
// empty after trimming whitespace.
func (s *Session) UnansweredCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unansweredLocked()
}

func (s *Session) unansweredLocked() int {
	n := 0
	for _, id := range s.questionIDs {
		if strings.TrimSpace(s.answers[id]) == "" {
			n++
		}
	}
	return n
}

// Submit finalizes from InProgress or Reviewing. When unanswered
// questions remain, confirmed must be true or the call fails with
// ErrConfirmationRequired and nothing changes. On transport failure
// the session returns to the state it departed from so the candidate
// can retry.
func (s *Session) Submit(ctx context.Context, confirmed bool) (Result, error) {
	s.mu.Lock()
	origin := s.state
	switch origin {
	case StateSubmitting:
		s.mu.Unlock()
		return Result{}, ErrAlreadySubmitting
	case StateInProgress, StateReviewing:
		// proceed
	default:
		s.mu.Unlock()
		return Result{}, ErrBadTransition
	}

	if !confirmed && s.unansweredLocked() > 0 {
		s.mu.Unlock()
		return Result{}, ErrConfirmationRequired
	}

	s.state = StateSubmitting
	answers := s.snapshotLocked()
	s.mu.Unlock()

	result, err := s.submitter.Submit(ctx, answers)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = origin
		return Result{}, err
	}

	s.finishLocked(result)
	return result, nil
}

// timeUp is the timer callback: it submits whatever is answered,
// bypassing the review state and the confirmation gate. Even if the
// submission fails the session still ends in Submitted — the deadline
// has passed and no further answering is allowed — with the error
// retained for display.
func (s *Session) timeUp() {
	s.mu.Lock()
	if s.state == StateSubmitted || s.state == StateSubmitting {
		s.mu.Unlock()
		return
	}
	s.state = StateSubmitting
	answers := s.snapshotLocked()
	callback := s.onTimeUp
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	result, err := s.submitter.Submit(ctx, answers)

	s.mu.Lock()
	if err != nil {
		s.submitErr = err
		s.state = StateSubmitted
	} else {
		s.finishLocked(result)
	}
	s.mu.Unlock()

	if callback != nil {
		callback()
	}
}

func (s *Session) finishLocked(result Result) {
	s.result = &result
	s.submitErr = nil
	s.state = StateSubmitted
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (s *Session) snapshotLocked() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Result returns the server's grading outcome, or nil before a
// successful submission.
func (s *Session) Result() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil
	}
	cp := *s.result
	return &cp
}

// SubmitErr returns the retained error from a failed timer-forced
// submission, or nil.
func (s *Session) SubmitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitErr
}

// Remaining returns the time left on the countdown, or zero duration
// and false when the session is untimed.
func (s *Session) Remaining() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer == nil {
		return 0, false
	}
	return s.timer.Remaining(), true
}
