package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/quizora/quizora-backend/internal/response"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Domain errors.
var (
	ErrNotExamOwner     = errors.New("not the owner of this exam")
	ErrNoQuestions      = errors.New("exam has no questions, cannot publish")
	ErrExamNotPublished = errors.New("exam is not published")
)

// ExamService handles exam authoring logic and the Redis fast lane.
//
// Publishing warms two cache entries per exam: the redacted paper (the
// only payload candidates ever see) and the answer-key hash used by the
// submit path. Both are built from the repository's column-allowlisted
// reads, so the paper can never contain answer-key fields.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.examRepo.GetByID(ctx, id)
}

// GetOwned retrieves an exam and verifies ownership.
func (s *ExamService) GetOwned(ctx context.Context, id uuid.UUID, ownerID int) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if exam.OwnerID != ownerID {
		return nil, ErrNotExamOwner
	}
	return exam, nil
}

// ListByOwner retrieves an author's exams with pagination.
func (s *ExamService) ListByOwner(ctx context.Context, ownerID, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}

	exams, total, err := s.examRepo.ListByOwnerPaginated(ctx, ownerID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}

	totalPages := (total + perPage - 1) / perPage
	pagination := &response.Pagination{
		Page:       page,
		PerPage:    perPage,
		TotalItems: total,
		TotalPages: totalPages,
	}

	return exams, pagination, nil
}

// Create inserts a new unpublished exam.
func (s *ExamService) Create(ctx context.Context, exam *model.Exam) error {
	return s.examRepo.Create(ctx, exam)
}

// Update modifies an exam owned by ownerID. A published exam's cache is
// re-warmed so candidates see the new metadata.
func (s *ExamService) Update(ctx context.Context, ownerID int, exam *model.Exam) error {
	existing, err := s.GetOwned(ctx, exam.ID, ownerID)
	if err != nil {
		return err
	}
	exam.IsPublished = existing.IsPublished

	if err := s.examRepo.Update(ctx, exam); err != nil {
		return err
	}
	if existing.IsPublished {
		return s.WarmExamCache(ctx, exam)
	}
	return nil
}

// Delete removes an exam owned by ownerID and drops its cache entries.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, id, ownerID); err != nil {
		return err
	}
	if err := s.examRepo.Delete(ctx, id); err != nil {
		return err
	}
	s.dropCache(ctx, id)
	return nil
}

// Publish flips an exam to published and warms the Redis fast lane.
// An exam without questions cannot be published.
func (s *ExamService) Publish(ctx context.Context, examID uuid.UUID, ownerID int) error {
	exam, err := s.GetOwned(ctx, examID, ownerID)
	if err != nil {
		return err
	}

	if err := s.WarmExamCache(ctx, exam); err != nil {
		return err
	}

	if err := s.examRepo.SetPublished(ctx, examID, true); err != nil {
		return fmt.Errorf("set published: %w", err)
	}

	s.log.Info().Str("exam_id", examID.String()).Msg("Exam published")
	return nil
}

// Unpublish hides an exam from candidates and drops its cache entries.
// Existing attempts are untouched.
func (s *ExamService) Unpublish(ctx context.Context, examID uuid.UUID, ownerID int) error {
	if _, err := s.GetOwned(ctx, examID, ownerID); err != nil {
		return err
	}
	if err := s.examRepo.SetPublished(ctx, examID, false); err != nil {
		return fmt.Errorf("set unpublished: %w", err)
	}
	s.dropCache(ctx, examID)
	s.log.Info().Str("exam_id", examID.String()).Msg("Exam unpublished")
	return nil
}

// WarmExamCache loads an exam's redacted paper and answer key from
// PostgreSQL into Redis. Used by Publish, question edits on published
// exams, and PrewarmAllCaches.
func (s *ExamService) WarmExamCache(ctx context.Context, exam *model.Exam) error {
	redacted, err := s.questionRepo.ListRedactedByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list redacted questions: %w", err)
	}
	if len(redacted) == 0 {
		return ErrNoQuestions
	}

	paper := model.ExamPaper{
		ExamID:           exam.ID,
		Title:            exam.Title,
		Description:      exam.Description,
		TimeLimitMinutes: exam.TimeLimitMinutes,
		Questions:        redacted,
	}

	paperJSON, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}

	// The answer key hash lives in a separate key that is never read by
	// any candidate-facing path.
	questions, err := s.questionRepo.ListByExam(ctx, exam.ID)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	answerKey := make(map[string]interface{}, len(questions))
	for _, q := range questions {
		answerKey[q.ID.String()] = q.CorrectAnswer
	}

	pipe := s.rdb.Pipeline()
	pipe.Set(ctx, config.CacheKey.ExamPaperKey(exam.ID.String()), paperJSON, 0)
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(exam.ID.String()))
	pipe.HSet(ctx, config.CacheKey.ExamAnswerKey(exam.ID.String()), answerKey)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache to redis: %w", err)
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(redacted)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on startup,
// before traffic is accepted, to avoid lazy-load races under load.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	warmed := 0
	for i := range exams {
		if err := s.WarmExamCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

// GetPaper retrieves the cached redacted paper, falling back to the
// repository's redacted read on a cache miss (self-healing).
func (s *ExamService) GetPaper(ctx context.Context, examID uuid.UUID) (*model.ExamPaper, error) {
	data, err := s.rdb.Get(ctx, config.CacheKey.ExamPaperKey(examID.String())).Bytes()
	if err == nil {
		var paper model.ExamPaper
		if err := json.Unmarshal(data, &paper); err != nil {
			return nil, fmt.Errorf("unmarshal paper: %w", err)
		}
		return &paper, nil
	}
	if !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("get paper: %w", err)
	}

	// Cache miss: rebuild from PostgreSQL and self-heal.
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if err := s.WarmExamCache(ctx, exam); err != nil {
		return nil, err
	}

	redacted, err := s.questionRepo.ListRedactedByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	return &model.ExamPaper{
		ExamID:           exam.ID,
		Title:            exam.Title,
		Description:      exam.Description,
		TimeLimitMinutes: exam.TimeLimitMinutes,
		Questions:        redacted,
	}, nil
}

// GetAnswerKey retrieves the cached answer key for a published exam.
// Trusted callers only.
func (s *ExamService) GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error) {
	result, err := s.rdb.HGetAll(ctx, config.CacheKey.ExamAnswerKey(examID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("get answer key: %w", err)
	}
	if len(result) == 0 {
		return nil, errors.New("answer key not cached")
	}
	return result, nil
}

func (s *ExamService) dropCache(ctx context.Context, examID uuid.UUID) {
	pipe := s.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.ExamPaperKey(examID.String()))
	pipe.Del(ctx, config.CacheKey.ExamAnswerKey(examID.String()))
	if _, err := pipe.Exec(ctx); err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Cache drop failed")
	}
}
