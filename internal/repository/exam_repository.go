package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizora/quizora-backend/internal/model"
)

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, title, description, time_limit_minutes, is_published,
		        solo_mode, owner_id, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.Title, &e.Description, &e.TimeLimitMinutes, &e.IsPublished,
		&e.SoloMode, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListByOwnerPaginated retrieves an author's exams with pagination.
func (r *ExamRepository) ListByOwnerPaginated(ctx context.Context, ownerID, limit, offset int) ([]model.Exam, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exams WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, time_limit_minutes, is_published,
		        solo_mode, owner_id, created_at, updated_at
		 FROM exams WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.TimeLimitMinutes, &e.IsPublished,
			&e.SoloMode, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, 0, err
		}
		exams = append(exams, e)
	}
	return exams, total, rows.Err()
}

// Create inserts a new exam (unpublished).
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (title, description, time_limit_minutes, solo_mode, owner_id)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, is_published, created_at, updated_at`,
		e.Title, e.Description, e.TimeLimitMinutes, e.SoloMode, e.OwnerID,
	).Scan(&e.ID, &e.IsPublished, &e.CreatedAt, &e.UpdatedAt)
}

// Update modifies an exam's mutable fields.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET title = $1, description = $2, time_limit_minutes = $3,
		     solo_mode = $4, updated_at = NOW()
		 WHERE id = $5`,
		e.Title, e.Description, e.TimeLimitMinutes, e.SoloMode, e.ID)
	return err
}

// SetPublished flips an exam's publication flag.
func (r *ExamRepository) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_published = $1, updated_at = NOW() WHERE id = $2`,
		published, id)
	return err
}

// Delete removes an exam and, via FK cascade, its questions and attempts.
func (r *ExamRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM exams WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("exam %s not found", id)
	}
	return nil
}

// ListPublished returns all published exams.
// Used for cache prewarming on application startup.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, title, description, time_limit_minutes, is_published,
		        solo_mode, owner_id, created_at, updated_at
		 FROM exams WHERE is_published
		 ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.TimeLimitMinutes, &e.IsPublished,
			&e.SoloMode, &e.OwnerID, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}
