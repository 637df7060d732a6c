package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/quizora/quizora-backend/internal/model"
)

// QuestionRepository handles question data access.
//
// It exposes two read paths on purpose: ListByExam returns full rows
// including the answer key and is only for trusted callers (scoring,
// authoring, post-submission review); ListRedactedByExam selects an
// allowlist of columns and is the only path candidate-facing payloads
// may be built from. The redaction happens here, at the data-access
// boundary, not in the handlers.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListByExam retrieves all questions for an exam, answer key included,
// ordered by order_index.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options,
		        correct_answer, solution, explanation, order_index, image_url
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_index`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType, &q.Options,
			&q.CorrectAnswer, &q.Solution, &q.Explanation, &q.OrderIndex, &q.ImageURL); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ListRedactedByExam retrieves the candidate-facing projection of an
// exam's questions. The column list is an allowlist: correct_answer,
// solution and explanation are never selected.
func (r *QuestionRepository) ListRedactedByExam(ctx context.Context, examID uuid.UUID) ([]model.RedactedQuestion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, question_text, question_type, options, order_index, image_url
		 FROM questions WHERE exam_id = $1
		 ORDER BY order_index`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.RedactedQuestion
	for rows.Next() {
		var q model.RedactedQuestion
		if err := rows.Scan(&q.ID, &q.ExamID, &q.QuestionText, &q.QuestionType,
			&q.Options, &q.OrderIndex, &q.ImageURL); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// ReplaceForExam deletes an exam's questions and inserts the given set
// in one transaction. Questions are always replaced wholesale on edit.
func (r *QuestionRepository) ReplaceForExam(ctx context.Context, examID uuid.UUID, questions []model.Question) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE exam_id = $1`, examID); err != nil {
		return fmt.Errorf("delete old questions: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range questions {
		q := &questions[i]
		batch.Queue(
			`INSERT INTO questions (exam_id, question_text, question_type, options,
			                        correct_answer, solution, explanation, order_index, image_url)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			examID, q.QuestionText, q.QuestionType, q.Options,
			q.CorrectAnswer, q.Solution, q.Explanation, q.OrderIndex, q.ImageURL,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert questions: %w", err)
	}

	return tx.Commit(ctx)
}

// CountByExam returns the number of questions in an exam.
func (r *QuestionRepository) CountByExam(ctx context.Context, examID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE exam_id = $1`, examID,
	).Scan(&n)
	return n, err
}
