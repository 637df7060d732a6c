package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/quizora/quizora-backend/internal/scoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Attempt protocol errors.
var (
	ErrExamNotFound = errors.New("exam not found")
	ErrForbidden    = errors.New("exam is not available to this caller")
	// ErrInvalidAttempt deliberately covers unknown attempt id, session
	// token mismatch and already-submitted. Callers must not narrow it.
	ErrInvalidAttempt   = errors.New("attempt cannot be submitted")
	ErrAttemptLimit     = errors.New("attempt limit reached for this exam")
	ErrMalformedAnswers = errors.New("answer map contains malformed question ids")
)

// examGetter is the read surface of the exam repository the protocol needs.
type examGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
}

// questionSource provides the unredacted question bank. Only the submit
// path, which runs in a trusted context, reads it.
type questionSource interface {
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
}

// attemptStore is the session store surface of the attempt repository.
type attemptStore interface {
	Create(ctx context.Context, a *model.Attempt) error
	GetOpen(ctx context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error)
	GetSubmitted(ctx context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error)
	Finalize(ctx context.Context, id uuid.UUID, sessionToken string, answers map[string]string, score int) (bool, error)
	CountByExamAndToken(ctx context.Context, examID uuid.UUID, sessionToken string) (int, error)
	ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]repository.AttemptResult, int, error)
}

// answerKeyCache is the Redis fast lane for answer keys. Optional: a
// nil cache makes submit read the question bank from PostgreSQL.
type answerKeyCache interface {
	GetAnswerKey(ctx context.Context, examID uuid.UUID) (map[string]string, error)
}

// AttemptService implements the attempt protocol: Start and Submit are
// the only sanctioned ways to create or finalize an attempt. It runs in
// a trusted context with read access to the unredacted question bank;
// clients never get direct write access to score or submitted_at.
type AttemptService struct {
	examRepo    examGetter
	questions   questionSource
	attemptRepo attemptStore
	keyCache    answerKeyCache
	rdb         *redis.Client // optional; autosave buffers + start-time cache
	cfg         *config.Config
	log         zerolog.Logger
}

// NewAttemptService creates a new AttemptService.
func NewAttemptService(
	examRepo examGetter,
	questions questionSource,
	attemptRepo attemptStore,
	keyCache answerKeyCache,
	rdb *redis.Client,
	cfg *config.Config,
	log zerolog.Logger,
) *AttemptService {
	return &AttemptService{
		examRepo:    examRepo,
		questions:   questions,
		attemptRepo: attemptRepo,
		keyCache:    keyCache,
		rdb:         rdb,
		cfg:         cfg,
		log:         log.With().Str("component", "attempt_service").Logger(),
	}
}

// Start creates a new attempt for an exam.
//
// Preconditions: the exam exists, and it is published OR it is in solo
// mode and the caller is its owner (callerAuthorID > 0 identifies an
// authenticated author). Restarts create new attempts unless the
// configured MaxAttemptsPerExam caps them.
func (s *AttemptService) Start(ctx context.Context, examID uuid.UUID, callerAuthorID int, req *model.StartAttemptRequest) (*model.Attempt, error) {
	exam, err := s.examRepo.GetByID(ctx, examID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrExamNotFound, examID)
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}

	if !exam.IsPublished {
		if !(exam.SoloMode && callerAuthorID == exam.OwnerID) {
			return nil, ErrForbidden
		}
	}

	// Count-then-insert: concurrent starts from one session token can
	// briefly exceed the cap. The limit is a policy knob, not a
	// security boundary, so it does not get the check-and-set treatment
	// that Finalize does.
	if s.cfg.MaxAttemptsPerExam > 0 {
		n, err := s.attemptRepo.CountByExamAndToken(ctx, examID, req.SessionToken)
		if err != nil {
			return nil, fmt.Errorf("count attempts: %w", err)
		}
		if n >= s.cfg.MaxAttemptsPerExam {
			return nil, ErrAttemptLimit
		}
	}

	attempt := &model.Attempt{
		ExamID:       examID,
		SessionToken: req.SessionToken,
		StudentName:  req.StudentName,
		StudentEmail: req.StudentEmail,
	}
	if err := s.attemptRepo.Create(ctx, attempt); err != nil {
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	// Cache the authoritative start time for fast clock reads. Best
	// effort: the DB row remains the source of truth.
	if s.rdb != nil {
		startKey := config.CacheKey.AttemptStartKey(attempt.ID.String())
		if err := s.rdb.Set(ctx, startKey, attempt.StartedAt.Unix(), 0).Err(); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Start time cache failed")
		}
	}

	s.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("exam_id", examID.String()).
		Msg("Attempt started")
	return attempt, nil
}

// Submit finalizes an attempt: it grades the answer map against the
// server-side answer key and atomically writes answers, score and
// submitted_at. Any precondition failure — unknown id, token mismatch,
// already submitted — yields the single opaque ErrInvalidAttempt with
// no partial writes.
func (s *AttemptService) Submit(ctx context.Context, attemptID uuid.UUID, sessionToken string, answers map[string]string) (*model.SubmitResult, error) {
	if answers == nil {
		answers = map[string]string{}
	}
	// Question ids are opaque to candidates but not arbitrary: reject
	// keys that are not well-formed UUIDs before trusting the map.
	// Well-formed unknown ids pass through; the scorer ignores them and
	// the denominator stays the exam's question count.
	for qid := range answers {
		if _, err := uuid.Parse(qid); err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMalformedAnswers, qid)
		}
	}

	attempt, err := s.attemptRepo.GetOpen(ctx, attemptID, sessionToken)
	if err != nil {
		return nil, ErrInvalidAttempt
	}

	key, err := s.loadAnswerKey(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}

	result := scoring.Score(key, answers)

	ok, err := s.attemptRepo.Finalize(ctx, attemptID, sessionToken, answers, result.Score)
	if err != nil {
		return nil, fmt.Errorf("finalize attempt: %w", err)
	}
	if !ok {
		// Lost the race against a concurrent submit (or sweep).
		return nil, ErrInvalidAttempt
	}

	if s.rdb != nil {
		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()))
		pipe.Del(ctx, config.CacheKey.AttemptStartKey(attemptID.String()))
		if _, err := pipe.Exec(ctx); err != nil {
			s.log.Warn().Err(err).Str("attempt_id", attemptID.String()).Msg("Autosave buffer cleanup failed")
		}
	}

	s.log.Info().
		Str("attempt_id", attemptID.String()).
		Int("score", result.Score).
		Int("correct", result.CorrectCount).
		Int("total", result.TotalCount).
		Msg("Attempt submitted")

	return &model.SubmitResult{
		Score:        result.Score,
		CorrectCount: result.CorrectCount,
		TotalCount:   result.TotalCount,
	}, nil
}

// VerifyOpen checks that an attempt exists, matches the session token
// and has not been submitted. Used to gate paper and stream access.
func (s *AttemptService) VerifyOpen(ctx context.Context, attemptID uuid.UUID, sessionToken string) (*model.Attempt, error) {
	attempt, err := s.attemptRepo.GetOpen(ctx, attemptID, sessionToken)
	if err != nil {
		return nil, ErrInvalidAttempt
	}
	return attempt, nil
}

// Review returns the submitted attempt together with the full,
// unredacted question set for explanation display. It refuses any
// attempt that has not been finalized — the unredacted fetch must never
// happen before submitted_at is set.
func (s *AttemptService) Review(ctx context.Context, attemptID uuid.UUID, sessionToken string) (*model.Attempt, []model.Question, error) {
	attempt, err := s.attemptRepo.GetSubmitted(ctx, attemptID, sessionToken)
	if err != nil {
		return nil, nil, ErrInvalidAttempt
	}

	questions, err := s.questions.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return nil, nil, fmt.Errorf("list questions: %w", err)
	}
	return attempt, questions, nil
}

// State returns the resumable state of an open attempt: autosaved
// answers plus the authoritative remaining time derived from the
// absolute deadline (started_at + limit), never from a client clock.
func (s *AttemptService) State(ctx context.Context, attemptID uuid.UUID, sessionToken string) (*model.AttemptState, error) {
	attempt, err := s.attemptRepo.GetOpen(ctx, attemptID, sessionToken)
	if err != nil {
		return nil, ErrInvalidAttempt
	}

	state := &model.AttemptState{
		AttemptID:        attempt.ID,
		ExamID:           attempt.ExamID,
		AutosavedAnswers: map[string]string{},
	}

	if s.rdb != nil {
		saved, err := s.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String())).Result()
		if err != nil {
			return nil, fmt.Errorf("get autosaved answers: %w", err)
		}
		if len(saved) > 0 {
			state.AutosavedAnswers = saved
		}
	}
	// Answers already drained to the attempt row win over an empty buffer.
	if len(state.AutosavedAnswers) == 0 && len(attempt.Answers) > 0 {
		state.AutosavedAnswers = attempt.Answers
	}

	exam, err := s.examRepo.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	if exam.TimeLimitMinutes != nil {
		remaining := s.remaining(ctx, attempt, *exam.TimeLimitMinutes)
		secs := remaining.Seconds()
		state.RemainingSeconds = &secs
	}

	return state, nil
}

// remaining computes time left from the absolute deadline. The start
// time is read from the Redis cache with a PostgreSQL fallback that
// self-heals the cache.
func (s *AttemptService) remaining(ctx context.Context, attempt *model.Attempt, limitMinutes int) time.Duration {
	startUnix := attempt.StartedAt.Unix()

	if s.rdb != nil {
		startKey := config.CacheKey.AttemptStartKey(attempt.ID.String())
		val, err := s.rdb.Get(ctx, startKey).Result()
		switch {
		case err == nil:
			if parsed, perr := strconv.ParseInt(val, 10, 64); perr == nil {
				startUnix = parsed
			}
		case errors.Is(err, redis.Nil):
			_ = s.rdb.Set(ctx, startKey, startUnix, 0).Err()
		}
	}

	endTime := time.Unix(startUnix, 0).Add(time.Duration(limitMinutes) * time.Minute)
	remaining := time.Until(endTime)
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// loadAnswerKey reads the answer key from the Redis fast lane, falling
// back to the question bank in PostgreSQL. Either way the key never
// travels toward the client.
func (s *AttemptService) loadAnswerKey(ctx context.Context, examID uuid.UUID) ([]scoring.AnswerKey, error) {
	if s.keyCache != nil {
		if cached, err := s.keyCache.GetAnswerKey(ctx, examID); err == nil && len(cached) > 0 {
			key := make([]scoring.AnswerKey, 0, len(cached))
			for qid, correct := range cached {
				key = append(key, scoring.AnswerKey{QuestionID: qid, CorrectAnswer: correct})
			}
			return key, nil
		}
	}

	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	key := make([]scoring.AnswerKey, len(questions))
	for i, q := range questions {
		key[i] = scoring.AnswerKey{QuestionID: q.ID.String(), CorrectAnswer: q.CorrectAnswer}
	}
	return key, nil
}

// ListResults returns an exam's attempts for its owner.
func (s *AttemptService) ListResults(ctx context.Context, examID uuid.UUID, page, perPage int) ([]repository.AttemptResult, int, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return s.attemptRepo.ListByExam(ctx, examID, perPage, (page-1)*perPage)
}
