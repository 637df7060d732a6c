package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
)

var ErrInvalidQuestion = errors.New("invalid question input")

// QuestionService handles question authoring logic. Edits are wholesale:
// the full question set is replaced in one transaction, and a published
// exam's cache is re-warmed afterwards so candidates never see a stale
// paper.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
	examService  *ExamService
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository, examService *ExamService) *QuestionService {
	return &QuestionService{
		questionRepo: questionRepo,
		examService:  examService,
	}
}

// ListByExam returns an exam's full questions for its owner.
func (s *QuestionService) ListByExam(ctx context.Context, examID uuid.UUID, ownerID int) ([]model.Question, error) {
	if _, err := s.examService.GetOwned(ctx, examID, ownerID); err != nil {
		return nil, err
	}
	return s.questionRepo.ListByExam(ctx, examID)
}

// Replace swaps an exam's question set wholesale. OrderIndex is
// assigned from slice position; options are required for
// multiple_choice and defaulted for true_false.
func (s *QuestionService) Replace(ctx context.Context, examID uuid.UUID, ownerID int, inputs []model.QuestionInput) ([]model.Question, error) {
	exam, err := s.examService.GetOwned(ctx, examID, ownerID)
	if err != nil {
		return nil, err
	}

	questions := make([]model.Question, len(inputs))
	for i, in := range inputs {
		q := model.Question{
			ExamID:        examID,
			QuestionText:  in.QuestionText,
			QuestionType:  model.QuestionType(in.QuestionType),
			Options:       in.Options,
			CorrectAnswer: in.CorrectAnswer,
			Solution:      in.Solution,
			Explanation:   in.Explanation,
			OrderIndex:    i,
			ImageURL:      in.ImageURL,
		}
		switch q.QuestionType {
		case model.QuestionTypeMultipleChoice:
			if len(q.Options) < 2 {
				return nil, fmt.Errorf("%w: question %d: multiple_choice requires at least two options", ErrInvalidQuestion, i)
			}
		case model.QuestionTypeTrueFalse:
			if len(q.Options) == 0 {
				q.Options = []string{"true", "false"}
			}
		case model.QuestionTypeShortAnswer:
			q.Options = nil
		}
		questions[i] = q
	}

	if err := s.questionRepo.ReplaceForExam(ctx, examID, questions); err != nil {
		return nil, fmt.Errorf("replace questions: %w", err)
	}

	if exam.IsPublished {
		if err := s.examService.WarmExamCache(ctx, exam); err != nil {
			return nil, fmt.Errorf("rewarm cache: %w", err)
		}
	}

	return s.questionRepo.ListByExam(ctx, examID)
}
