package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizora/quizora-backend/internal/model"
)

// AttemptResult is an attempt row joined for author-facing result lists.
type AttemptResult struct {
	AttemptID    uuid.UUID  `json:"attempt_id"`
	StudentName  string     `json:"student_name"`
	StudentEmail string     `json:"student_email"`
	Score        *int       `json:"score"`
	StartedAt    time.Time  `json:"started_at"`
	SubmittedAt  *time.Time `json:"submitted_at"`
}

// AttemptRepository handles attempt data access. It is the session
// store: attempts.submitted_at is the single source of truth for
// whether an attempt has been finalized.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt with empty answers and no score.
// StartedAt comes from the database clock.
func (r *AttemptRepository) Create(ctx context.Context, a *model.Attempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO attempts (exam_id, session_token, student_name, student_email, answers)
		 VALUES ($1, $2, $3, $4, '{}'::jsonb)
		 RETURNING id, started_at`,
		a.ExamID, a.SessionToken, a.StudentName, a.StudentEmail,
	).Scan(&a.ID, &a.StartedAt)
}

// GetByID retrieves an attempt by id.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, session_token, student_name, student_email,
		        answers, score, started_at, submitted_at
		 FROM attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.SessionToken, &a.StudentName, &a.StudentEmail,
		&a.Answers, &a.Score, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetOpen retrieves an attempt only if the session token matches and
// it has not been submitted. Callers must treat any error — not found,
// token mismatch, already submitted — identically.
func (r *AttemptRepository) GetOpen(ctx context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, session_token, student_name, student_email,
		        answers, score, started_at, submitted_at
		 FROM attempts
		 WHERE id = $1 AND session_token = $2 AND submitted_at IS NULL`,
		id, sessionToken,
	).Scan(&a.ID, &a.ExamID, &a.SessionToken, &a.StudentName, &a.StudentEmail,
		&a.Answers, &a.Score, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetSubmitted retrieves an attempt only if the session token matches
// and it has been submitted. Used by the post-submission review path.
func (r *AttemptRepository) GetSubmitted(ctx context.Context, id uuid.UUID, sessionToken string) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, session_token, student_name, student_email,
		        answers, score, started_at, submitted_at
		 FROM attempts
		 WHERE id = $1 AND session_token = $2 AND submitted_at IS NOT NULL`,
		id, sessionToken,
	).Scan(&a.ID, &a.ExamID, &a.SessionToken, &a.StudentName, &a.StudentEmail,
		&a.Answers, &a.Score, &a.StartedAt, &a.SubmittedAt)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Finalize atomically writes answers, score and submitted_at, guarded
// by the session token and submitted_at IS NULL in a single statement.
// This check-and-set is what closes the double-submit race: a
// concurrent second submit sees zero rows affected and fails. Returns
// true if the attempt was finalized by this call.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, sessionToken string, answers map[string]string, score int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, score = $2, submitted_at = NOW()
		 WHERE id = $3 AND session_token = $4 AND submitted_at IS NULL`,
		answers, score, id, sessionToken)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FinalizeExpired is the trusted-context variant used by the expiry
// sweep. It skips the token check (the sweep acts server-side) but
// keeps the submitted_at IS NULL guard, so it can never double-write a
// score over a concurrent candidate submit.
func (r *AttemptRepository) FinalizeExpired(ctx context.Context, id uuid.UUID, answers map[string]string, score int) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, score = $2, submitted_at = NOW()
		 WHERE id = $3 AND submitted_at IS NULL`,
		answers, score, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SaveAnswer upserts a single autosaved answer into the answers map of
// an open attempt. Used by the autosave worker only; submit overwrites
// the whole map.
func (r *AttemptRepository) SaveAnswer(ctx context.Context, id uuid.UUID, questionID, answer string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = jsonb_set(answers, ARRAY[$1::text], to_jsonb($2::text))
		 WHERE id = $3 AND submitted_at IS NULL`,
		questionID, answer, id)
	return err
}

// CountByExamAndToken counts attempts a session token has made against
// an exam. Supports the configurable attempt-limit policy.
func (r *AttemptRepository) CountByExamAndToken(ctx context.Context, examID uuid.UUID, sessionToken string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1 AND session_token = $2`,
		examID, sessionToken,
	).Scan(&n)
	return n, err
}

// ListByExam retrieves attempts for an exam with pagination, newest first.
func (r *AttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID, limit, offset int) ([]AttemptResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE exam_id = $1`, examID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, student_name, student_email, score, started_at, submitted_at
		 FROM attempts WHERE exam_id = $1
		 ORDER BY started_at DESC
		 LIMIT $2 OFFSET $3`, examID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []AttemptResult
	for rows.Next() {
		var res AttemptResult
		if err := rows.Scan(&res.AttemptID, &res.StudentName, &res.StudentEmail,
			&res.Score, &res.StartedAt, &res.SubmittedAt); err != nil {
			return nil, 0, err
		}
		results = append(results, res)
	}
	return results, total, rows.Err()
}

// ListOverdue returns open attempts on timed exams whose deadline plus
// grace has passed. Used by the expiry sweep.
func (r *AttemptRepository) ListOverdue(ctx context.Context, grace time.Duration, limit int) ([]model.Attempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, a.session_token, a.student_name, a.student_email,
		        a.answers, a.score, a.started_at, a.submitted_at
		 FROM attempts a
		 JOIN exams e ON a.exam_id = e.id
		 WHERE a.submitted_at IS NULL
		   AND e.time_limit_minutes IS NOT NULL
		   AND a.started_at + make_interval(mins => e.time_limit_minutes) + $1::interval < NOW()
		 ORDER BY a.started_at
		 LIMIT $2`,
		grace, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.Attempt
	for rows.Next() {
		var a model.Attempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.SessionToken, &a.StudentName, &a.StudentEmail,
			&a.Answers, &a.Score, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
