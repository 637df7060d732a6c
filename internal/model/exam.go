package model

import (
	"time"

	"github.com/google/uuid"
)

// Exam represents an exam entity owned by an author.
//
// TimeLimitMinutes nil means the exam is untimed. IsPublished gates
// visibility to candidates; SoloMode additionally lets the owner take
// an unpublished exam themselves.
type Exam struct {
	ID               uuid.UUID `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	TimeLimitMinutes *int      `json:"time_limit_minutes,omitempty"`
	IsPublished      bool      `json:"is_published"`
	SoloMode         bool      `json:"solo_mode"`
	OwnerID          int       `json:"owner_id"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title            string `json:"title" binding:"required,min=3,max=255"`
	Description      string `json:"description" binding:"max=2000"`
	TimeLimitMinutes *int   `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	SoloMode         bool   `json:"solo_mode"`
}

// UpdateExamRequest is the payload for updating an existing exam.
type UpdateExamRequest struct {
	Title            string `json:"title" binding:"omitempty,min=3,max=255"`
	Description      *string `json:"description" binding:"omitempty,max=2000"`
	TimeLimitMinutes *int   `json:"time_limit_minutes" binding:"omitempty,min=1,max=480"`
	SoloMode         *bool  `json:"solo_mode" binding:"omitempty"`
}

// ExamPaper is the Redis-cached payload served to candidates.
// It is built exclusively from redacted questions — no answer keys.
type ExamPaper struct {
	ExamID           uuid.UUID          `json:"exam_id"`
	Title            string             `json:"title"`
	Description      string             `json:"description"`
	TimeLimitMinutes *int               `json:"time_limit_minutes,omitempty"`
	Questions        []RedactedQuestion `json:"questions"`
}
