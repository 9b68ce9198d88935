package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

// QuestionnaireStore is the pgx implementation of store.QuestionnaireStore.
// Questions live in their own table, ordered by position.
type QuestionnaireStore struct {
	pool *pgxpool.Pool
}

// NewQuestionnaireStore creates a new QuestionnaireStore.
func NewQuestionnaireStore(pool *pgxpool.Pool) *QuestionnaireStore {
	return &QuestionnaireStore{pool: pool}
}

// CreateQuestionnaire inserts the definition and its questions in one
// transaction.
func (s *QuestionnaireStore) CreateQuestionnaire(ctx context.Context, q *model.Questionnaire) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO questionnaires
			(title, description, owner_id, target_learning_paths, target_student_ids,
			 due_date, allow_late_submission, show_correct_answers, max_attempts,
			 time_limit_minutes, is_published)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id, created_at, updated_at`,
		q.Title, q.Description, q.OwnerID, q.TargetLearningPaths, q.TargetStudentIDs,
		q.DueDate, q.AllowLateSubmission, q.ShowCorrectAnswers, q.MaxAttempts,
		q.TimeLimitMinutes, q.IsPublished,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert questionnaire: %w", err)
	}

	if err := insertQuestions(ctx, tx, q.ID, q.Questions); err != nil {
		return err
	}
	for i := range q.Questions {
		q.Questions[i].Position = i
	}

	return tx.Commit(ctx)
}

// UpdateQuestionnaire rewrites the definition row and replaces its question
// set. Existing attempts are untouched; edits are never retroactive.
func (s *QuestionnaireStore) UpdateQuestionnaire(ctx context.Context, q *model.Questionnaire) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE questionnaires
		 SET title = $1, description = $2, target_learning_paths = $3,
		     target_student_ids = $4, due_date = $5, allow_late_submission = $6,
		     show_correct_answers = $7, max_attempts = $8, time_limit_minutes = $9,
		     is_published = $10, updated_at = NOW()
		 WHERE id = $11`,
		q.Title, q.Description, q.TargetLearningPaths, q.TargetStudentIDs,
		q.DueDate, q.AllowLateSubmission, q.ShowCorrectAnswers, q.MaxAttempts,
		q.TimeLimitMinutes, q.IsPublished, q.ID,
	)
	if err != nil {
		return fmt.Errorf("update questionnaire: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}

	if _, err := tx.Exec(ctx, `DELETE FROM questions WHERE questionnaire_id = $1`, q.ID); err != nil {
		return fmt.Errorf("clear questions: %w", err)
	}
	if err := insertQuestions(ctx, tx, q.ID, q.Questions); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertQuestions(ctx context.Context, tx pgx.Tx, questionnaireID uuid.UUID, questions []model.QuestionDefinition) error {
	for i := range questions {
		q := &questions[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.New()
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO questions
				(id, questionnaire_id, position, qtype, prompt, description, required,
				 points, options, min_value, max_value, min_label, max_label)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
			q.ID, questionnaireID, i, q.Type, q.Prompt, q.Description, q.Required,
			q.Points, q.Options, q.MinValue, q.MaxValue, q.MinLabel, q.MaxLabel,
		)
		if err != nil {
			return fmt.Errorf("insert question %d: %w", i, err)
		}
	}
	return nil
}

// GetQuestionnaire retrieves a definition with its questions in order.
func (s *QuestionnaireStore) GetQuestionnaire(ctx context.Context, id uuid.UUID) (*model.Questionnaire, error) {
	q := &model.Questionnaire{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, owner_id, target_learning_paths,
		        target_student_ids, due_date, allow_late_submission,
		        show_correct_answers, max_attempts, time_limit_minutes,
		        is_published, created_at, updated_at
		 FROM questionnaires WHERE id = $1`, id,
	).Scan(&q.ID, &q.Title, &q.Description, &q.OwnerID, &q.TargetLearningPaths,
		&q.TargetStudentIDs, &q.DueDate, &q.AllowLateSubmission,
		&q.ShowCorrectAnswers, &q.MaxAttempts, &q.TimeLimitMinutes,
		&q.IsPublished, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, position, qtype, prompt, description, required, points,
		        options, min_value, max_value, min_label, max_label
		 FROM questions WHERE questionnaire_id = $1
		 ORDER BY position`, id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var qd model.QuestionDefinition
		if err := rows.Scan(&qd.ID, &qd.Position, &qd.Type, &qd.Prompt, &qd.Description,
			&qd.Required, &qd.Points, &qd.Options, &qd.MinValue, &qd.MaxValue,
			&qd.MinLabel, &qd.MaxLabel); err != nil {
			return nil, err
		}
		q.Questions = append(q.Questions, qd)
	}
	return q, rows.Err()
}

// ListQuestionnairesByOwner retrieves definitions authored by ownerID,
// newest first, without their question sets.
func (s *QuestionnaireStore) ListQuestionnairesByOwner(ctx context.Context, ownerID, limit, offset int) ([]model.Questionnaire, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questionnaires WHERE owner_id = $1`, ownerID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, title, description, owner_id, target_learning_paths,
		        target_student_ids, due_date, allow_late_submission,
		        show_correct_answers, max_attempts, time_limit_minutes,
		        is_published, created_at, updated_at
		 FROM questionnaires
		 WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2 OFFSET $3`, ownerID, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []model.Questionnaire
	for rows.Next() {
		var q model.Questionnaire
		if err := rows.Scan(&q.ID, &q.Title, &q.Description, &q.OwnerID, &q.TargetLearningPaths,
			&q.TargetStudentIDs, &q.DueDate, &q.AllowLateSubmission,
			&q.ShowCorrectAnswers, &q.MaxAttempts, &q.TimeLimitMinutes,
			&q.IsPublished, &q.CreatedAt, &q.UpdatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// ListPublishedQuestionnaireIDs returns the ids of all published
// definitions. Used at boot to prewarm the cache.
func (s *QuestionnaireStore) ListPublishedQuestionnaireIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `SELECT id FROM questionnaires WHERE is_published`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetPublished flips the publish flag.
func (s *QuestionnaireStore) SetPublished(ctx context.Context, id uuid.UUID, published bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE questionnaires SET is_published = $1, updated_at = NOW() WHERE id = $2`,
		published, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}
