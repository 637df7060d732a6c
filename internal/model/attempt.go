package model

import (
	"time"

	"github.com/google/uuid"
)

// Attempt represents one candidate's instance of taking one exam.
//
// Invariants:
//   - SubmittedAt is written at most once; nil means in progress.
//   - Score is written only by the submit transaction, never from a
//     client-supplied value.
//   - Answers/Score/SubmittedAt change only when the caller presents
//     the matching session token and SubmittedAt is still nil.
type Attempt struct {
	ID           uuid.UUID         `json:"id"`
	ExamID       uuid.UUID         `json:"exam_id"`
	SessionToken string            `json:"-"`
	StudentName  string            `json:"student_name,omitempty"`
	StudentEmail string            `json:"student_email,omitempty"`
	Answers      map[string]string `json:"answers,omitempty"`
	Score        *int              `json:"score,omitempty"`
	StartedAt    time.Time         `json:"started_at"`
	SubmittedAt  *time.Time        `json:"submitted_at,omitempty"`
}

// Submitted reports whether the attempt has been finalized.
func (a *Attempt) Submitted() bool {
	return a.SubmittedAt != nil
}

// StartAttemptRequest is the payload for starting an attempt.
// The session token is an opaque identifier generated once per browser
// session and passed explicitly — never ambient state.
type StartAttemptRequest struct {
	SessionToken string `json:"session_token" binding:"required,min=8,max=128"`
	StudentName  string `json:"student_name" binding:"omitempty,max=255"`
	StudentEmail string `json:"student_email" binding:"omitempty,email,max=255"`
}

// SubmitAttemptRequest is the payload for finalizing an attempt.
type SubmitAttemptRequest struct {
	SessionToken string            `json:"session_token" binding:"required,min=8,max=128"`
	Answers      map[string]string `json:"answers" binding:"required"`
}

// SubmitResult is the score triple returned by the submit operation.
// It never carries the answer key.
type SubmitResult struct {
	Score        int `json:"score"`
	CorrectCount int `json:"correct_count"`
	TotalCount   int `json:"total_count"`
}

// AutosaveEnvelope is the queue payload for one autosaved answer,
// pushed to Redis by the stream handler and drained into the attempt
// row by the autosave worker.
type AutosaveEnvelope struct {
	AttemptID string `json:"attempt_id"`
	QID       string `json:"q_id"`
	Answer    string `json:"answer"`
	SavedAt   int64  `json:"saved_at"`
}

// AttemptState is the resumable view of an in-progress attempt:
// autosaved answers plus the authoritative remaining time.
type AttemptState struct {
	AttemptID        uuid.UUID         `json:"attempt_id"`
	ExamID           uuid.UUID         `json:"exam_id"`
	AutosavedAnswers map[string]string `json:"autosaved_answers"`
	RemainingSeconds *float64          `json:"remaining_seconds,omitempty"` // nil = untimed
}
