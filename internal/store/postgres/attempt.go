package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/courseloop/assessment-backend/internal/model"
	"github.com/courseloop/assessment-backend/internal/store"
)

const attemptColumns = `id, questionnaire_id, student_id, attempt_number, answers,
	started_at, submitted_at, late, time_spent_seconds, score, max_score,
	is_graded, graded_by, graded_at, feedback`

// AttemptStore is the pgx implementation of store.AttemptStore. The
// uniqueness of the open attempt per (questionnaire, student) pair is
// enforced by a partial unique index; attempt numbers carry their own
// unique constraint, so the count+1 insert is race-safe.
type AttemptStore struct {
	pool *pgxpool.Pool
}

// NewAttemptStore creates a new AttemptStore.
func NewAttemptStore(pool *pgxpool.Pool) *AttemptStore {
	return &AttemptStore{pool: pool}
}

// CreateAttempt inserts a new in-progress attempt, assigning the next
// attempt number for the pair. Returns store.ErrConflictingAttempt when the
// pair already has an open attempt.
func (s *AttemptStore) CreateAttempt(ctx context.Context, a *model.Attempt) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO attempts (questionnaire_id, student_id, attempt_number, answers, started_at)
		 VALUES (
			$1, $2,
			(SELECT COUNT(*) + 1 FROM attempts WHERE questionnaire_id = $1 AND student_id = $2),
			$3, $4
		 )
		 RETURNING id, attempt_number`,
		a.QuestionnaireID, a.StudentID, a.Answers, a.StartedAt,
	).Scan(&a.ID, &a.AttemptNumber)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return store.ErrConflictingAttempt
		}
		return err
	}
	return nil
}

func scanAttempt(row pgx.Row) (*model.Attempt, error) {
	a := &model.Attempt{}
	err := row.Scan(&a.ID, &a.QuestionnaireID, &a.StudentID, &a.AttemptNumber, &a.Answers,
		&a.StartedAt, &a.SubmittedAt, &a.Late, &a.TimeSpentSeconds, &a.Score, &a.MaxScore,
		&a.IsGraded, &a.GradedBy, &a.GradedAt, &a.Feedback)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if a.Answers == nil {
		a.Answers = model.AnswerMap{}
	}
	return a, nil
}

// GetAttempt retrieves an attempt by id.
func (s *AttemptStore) GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts WHERE id = $1`, id))
}

// GetInProgressAttempt retrieves the single open attempt for the pair, if any.
func (s *AttemptStore) GetInProgressAttempt(ctx context.Context, questionnaireID uuid.UUID, studentID int) (*model.Attempt, error) {
	return scanAttempt(s.pool.QueryRow(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE questionnaire_id = $1 AND student_id = $2 AND submitted_at IS NULL`,
		questionnaireID, studentID))
}

// CountAttempts returns the number of attempts for the pair.
func (s *AttemptStore) CountAttempts(ctx context.Context, questionnaireID uuid.UUID, studentID int) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM attempts WHERE questionnaire_id = $1 AND student_id = $2`,
		questionnaireID, studentID,
	).Scan(&n)
	return n, err
}

// UpsertAnswers replaces the whole answer map on an open attempt.
func (s *AttemptStore) UpsertAnswers(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts SET answers = $1 WHERE id = $2 AND submitted_at IS NULL`,
		answers, attemptID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the attempt is gone or it was already submitted.
		if _, getErr := s.GetAttempt(ctx, attemptID); getErr != nil {
			return getErr
		}
		return store.ErrAlreadySubmitted
	}
	return nil
}

// SubmitAttempt finalizes an open attempt. The guard on submitted_at makes
// retries of a half-failed submit safe.
func (s *AttemptStore) SubmitAttempt(ctx context.Context, attemptID uuid.UUID, p store.SubmitParams) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE attempts
		 SET answers = $1, submitted_at = $2, time_spent_seconds = $3, late = $4,
		     max_score = $5, score = $6, is_graded = $7
		 WHERE id = $8 AND submitted_at IS NULL`,
		p.Answers, p.SubmittedAt, p.TimeSpentSeconds, p.Late,
		p.MaxScore, p.Score, p.IsGraded, attemptID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := s.GetAttempt(ctx, attemptID); getErr != nil {
			return getErr
		}
		return store.ErrAlreadySubmitted
	}
	return nil
}

// GradeAttempt writes the manual score and feedback atomically.
func (s *AttemptStore) GradeAttempt(ctx context.Context, attemptID uuid.UUID, p store.GradeParams) error {
	args := []any{p.Score, p.Feedback, p.GradedBy, p.GradedAt, attemptID}
	query := `UPDATE attempts
		 SET score = $1, is_graded = TRUE, feedback = $2, graded_by = $3, graded_at = $4
		 WHERE id = $5 AND submitted_at IS NOT NULL`
	if p.MaxScore != nil {
		query = `UPDATE attempts
		 SET score = $1, is_graded = TRUE, feedback = $2, graded_by = $3, graded_at = $4,
		     max_score = $6
		 WHERE id = $5 AND submitted_at IS NOT NULL`
		args = append(args, *p.MaxScore)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListAttemptsByQuestionnaire retrieves every attempt for a questionnaire,
// most recently submitted first.
func (s *AttemptStore) ListAttemptsByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]model.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE questionnaire_id = $1
		 ORDER BY submitted_at DESC NULLS LAST, started_at DESC`, questionnaireID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

// ListAttemptsByStudent retrieves a student's attempts, newest first.
func (s *AttemptStore) ListAttemptsByStudent(ctx context.Context, studentID int) ([]model.Attempt, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+attemptColumns+` FROM attempts
		 WHERE student_id = $1
		 ORDER BY started_at DESC`, studentID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttempts(rows)
}

func collectAttempts(rows pgx.Rows) ([]model.Attempt, error) {
	var out []model.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}
