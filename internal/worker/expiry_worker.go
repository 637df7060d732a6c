package worker

import (
	"context"
	"time"

	"github.com/quizora/quizora-backend/internal/config"
	"github.com/quizora/quizora-backend/internal/model"
	"github.com/quizora/quizora-backend/internal/repository"
	"github.com/quizora/quizora-backend/internal/scoring"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const sweepBatchSize = 100

// ExpiryWorker periodically finalizes attempts whose deadline passed
// without a submit, usually because the candidate closed the tab. It
// grades whatever was autosaved. The worker is a janitor, not part of
// the protocol: a live client still submits through the normal path,
// so the sweep waits out a configurable grace period first.
type ExpiryWorker struct {
	attemptRepo  *repository.AttemptRepository
	questionRepo *repository.QuestionRepository
	rdb          *redis.Client
	cfg          *config.Config
	log          zerolog.Logger
}

// NewExpiryWorker creates a new ExpiryWorker.
func NewExpiryWorker(attemptRepo *repository.AttemptRepository, questionRepo *repository.QuestionRepository, rdb *redis.Client, cfg *config.Config, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		attemptRepo:  attemptRepo,
		questionRepo: questionRepo,
		rdb:          rdb,
		cfg:          cfg,
		log:          log.With().Str("component", "expiry_worker").Logger(),
	}
}

// Start begins the sweep loop. Call in a goroutine. A zero interval
// disables the worker entirely.
func (w *ExpiryWorker) Start(ctx context.Context) {
	if w.cfg.AttemptSweepInterval <= 0 {
		w.log.Info().Msg("Sweep disabled")
		return
	}

	w.log.Info().Dur("interval", w.cfg.AttemptSweepInterval).Msg("Worker started")
	ticker := time.NewTicker(w.cfg.AttemptSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopped")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	overdue, err := w.attemptRepo.ListOverdue(ctx, w.cfg.AttemptSweepGrace, sweepBatchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("List overdue failed")
		return
	}

	for _, attempt := range overdue {
		if err := w.finalize(ctx, &attempt); err != nil {
			w.log.Error().Err(err).Str("attempt_id", attempt.ID.String()).Msg("Sweep finalize failed")
		}
	}

	if len(overdue) > 0 {
		w.log.Info().Int("count", len(overdue)).Msg("Swept expired attempts")
	}
}

// finalize grades an expired attempt from its autosaved answers. The
// Redis buffer wins over the row since it holds the latest saves; the
// check-and-set in FinalizeExpired keeps a concurrent client submit
// safe either way.
func (w *ExpiryWorker) finalize(ctx context.Context, attempt *model.Attempt) error {
	answers := map[string]string{}
	for qid, ans := range attempt.Answers {
		answers[qid] = ans
	}

	buffered, err := w.rdb.HGetAll(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID.String())).Result()
	if err == nil {
		for qid, ans := range buffered {
			answers[qid] = ans
		}
	}

	questions, err := w.questionRepo.ListByExam(ctx, attempt.ExamID)
	if err != nil {
		return err
	}
	key := make([]scoring.AnswerKey, len(questions))
	for i, q := range questions {
		key[i] = scoring.AnswerKey{QuestionID: q.ID.String(), CorrectAnswer: q.CorrectAnswer}
	}

	result := scoring.Score(key, answers)

	ok, err := w.attemptRepo.FinalizeExpired(ctx, attempt.ID, answers, result.Score)
	if err != nil {
		return err
	}
	if !ok {
		// The candidate submitted between our read and the update.
		return nil
	}

	pipe := w.rdb.Pipeline()
	pipe.Del(ctx, config.CacheKey.AttemptAnswersKey(attempt.ID.String()))
	pipe.Del(ctx, config.CacheKey.AttemptStartKey(attempt.ID.String()))
	pipe.Exec(ctx)

	w.log.Info().
		Str("attempt_id", attempt.ID.String()).
		Int("score", result.Score).
		Msg("Expired attempt finalized")
	return nil
}
