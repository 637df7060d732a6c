package model

import (
	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeTrueFalse      QuestionType = "true_false"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
)

// Question represents a single exam question, including its answer key.
// Never serialize a Question to a candidate before their attempt is
// submitted — use RedactedQuestion for that.
type Question struct {
	ID           uuid.UUID    `json:"id"`
	ExamID       uuid.UUID    `json:"exam_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []string     `json:"options"`
	CorrectAnswer string      `json:"correct_answer"`
	Solution     *string      `json:"solution,omitempty"`
	Explanation  *string      `json:"explanation,omitempty"`
	OrderIndex   int          `json:"order_index"`
	ImageURL     *string      `json:"image_url,omitempty"`
}

// RedactedQuestion is the candidate-facing projection of Question.
// It intentionally has no fields for correct_answer, solution or
// explanation, so the key cannot leak through serialization.
type RedactedQuestion struct {
	ID           uuid.UUID    `json:"id"`
	ExamID       uuid.UUID    `json:"exam_id"`
	QuestionText string       `json:"question_text"`
	QuestionType QuestionType `json:"question_type"`
	Options      []string     `json:"options"`
	OrderIndex   int          `json:"order_index"`
	ImageURL     *string      `json:"image_url,omitempty"`
}

// Redact derives the candidate-facing projection of q.
func (q *Question) Redact() RedactedQuestion {
	return RedactedQuestion{
		ID:           q.ID,
		ExamID:       q.ExamID,
		QuestionText: q.QuestionText,
		QuestionType: q.QuestionType,
		Options:      q.Options,
		OrderIndex:   q.OrderIndex,
		ImageURL:     q.ImageURL,
	}
}

// QuestionInput is the payload for a single question in a wholesale
// replace. Questions are always replaced as a set on edit; order_index
// is assigned from slice position.
type QuestionInput struct {
	QuestionText  string   `json:"question_text" binding:"required,min=1,max=4000"`
	QuestionType  string   `json:"question_type" binding:"required,oneof=multiple_choice true_false short_answer"`
	Options       []string `json:"options" binding:"omitempty,max=10,dive,max=1000"`
	CorrectAnswer string   `json:"correct_answer" binding:"required,max=1000"`
	Solution      *string  `json:"solution" binding:"omitempty,max=4000"`
	Explanation   *string  `json:"explanation" binding:"omitempty,max=4000"`
	ImageURL      *string  `json:"image_url" binding:"omitempty,max=512"`
}

// ReplaceQuestionsRequest is the payload for bulk replacing an exam's questions.
type ReplaceQuestionsRequest struct {
	Questions []QuestionInput `json:"questions" binding:"required,min=1,dive"`
}
