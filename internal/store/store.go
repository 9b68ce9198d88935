// Package store defines the persistence contracts the assessment engine
// depends on. The postgres subpackage is the production implementation; the
// memory subpackage backs unit tests and single-binary deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/courseloop/assessment-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflictingAttempt is returned by CreateAttempt when another
	// in-progress attempt already exists for the same pair. Callers resolve
	// it by re-reading and resuming the existing attempt.
	ErrConflictingAttempt = errors.New("an in-progress attempt already exists for this student and questionnaire")
	// ErrAlreadySubmitted is returned when a write targets an attempt that
	// has already left the in-progress state.
	ErrAlreadySubmitted = errors.New("attempt is already submitted")
)

// QuestionnaireStore persists questionnaire definitions.
type QuestionnaireStore interface {
	CreateQuestionnaire(ctx context.Context, q *model.Questionnaire) error
	UpdateQuestionnaire(ctx context.Context, q *model.Questionnaire) error
	GetQuestionnaire(ctx context.Context, id uuid.UUID) (*model.Questionnaire, error)
	ListQuestionnairesByOwner(ctx context.Context, ownerID, limit, offset int) ([]model.Questionnaire, int, error)
	ListPublishedQuestionnaireIDs(ctx context.Context) ([]uuid.UUID, error)
	SetPublished(ctx context.Context, id uuid.UUID, published bool) error
}

// SubmitParams carries the attempt fields written together at submit time.
// Score and MaxScore are only set when the questionnaire is fully
// auto-gradable and grading completes synchronously.
type SubmitParams struct {
	SubmittedAt      time.Time
	TimeSpentSeconds int
	Late             bool
	Answers          model.AnswerMap
	MaxScore         *float64
	Score            *float64
	IsGraded         bool
}

// GradeParams carries the manual-grading fields, written atomically.
type GradeParams struct {
	Score    float64
	MaxScore *float64
	Feedback string
	GradedBy int
	GradedAt time.Time
}

// AttemptStore persists attempts. Implementations must guarantee at most
// one in-progress attempt per (questionnaire, student) pair and gapless
// monotonically increasing attempt numbers per pair.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *model.Attempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*model.Attempt, error)
	GetInProgressAttempt(ctx context.Context, questionnaireID uuid.UUID, studentID int) (*model.Attempt, error)
	CountAttempts(ctx context.Context, questionnaireID uuid.UUID, studentID int) (int, error)
	// UpsertAnswers replaces the attempt's whole answer map. Last writer
	// wins; no delta log is kept.
	UpsertAnswers(ctx context.Context, attemptID uuid.UUID, answers model.AnswerMap) error
	SubmitAttempt(ctx context.Context, attemptID uuid.UUID, p SubmitParams) error
	GradeAttempt(ctx context.Context, attemptID uuid.UUID, p GradeParams) error
	ListAttemptsByQuestionnaire(ctx context.Context, questionnaireID uuid.UUID) ([]model.Attempt, error)
	ListAttemptsByStudent(ctx context.Context, studentID int) ([]model.Attempt, error)
}

// StudentDirectory resolves student profiles and targeting rosters. The
// engine only reads from it.
type StudentDirectory interface {
	GetStudent(ctx context.Context, id int) (*model.Student, error)
	GetStudentByEmail(ctx context.Context, email string) (*model.Student, error)
	// ResolveRoster returns the students a questionnaire targets: the union
	// of the named learning paths, or the explicit id list.
	ResolveRoster(ctx context.Context, learningPaths []string, studentIDs []int) ([]model.Student, error)
}

// InstructorStore resolves instructor accounts for the identity boundary.
type InstructorStore interface {
	GetInstructor(ctx context.Context, id int) (*model.Instructor, error)
	GetInstructorByEmail(ctx context.Context, email string) (*model.Instructor, error)
	CreateInstructor(ctx context.Context, ins *model.Instructor) error
}
