package model

import (
	"time"

	"github.com/google/uuid"
)

// Questionnaire is an instructor-authored definition: the ordered questions
// plus targeting and delivery policy. Identity is immutable once an attempt
// references it; later edits never re-grade existing attempts.
type Questionnaire struct {
	ID          uuid.UUID            `json:"id"`
	Title       string               `json:"title"`
	Description string               `json:"description,omitempty"`
	OwnerID     int                  `json:"owner_id"`
	Questions   []QuestionDefinition `json:"questions"`

	// Targeting is either by learning path or by explicit roster, never both.
	TargetLearningPaths []string `json:"target_learning_paths,omitempty"`
	TargetStudentIDs    []int    `json:"target_student_ids,omitempty"`

	DueDate             *time.Time `json:"due_date,omitempty"`
	AllowLateSubmission bool       `json:"allow_late_submission"`
	ShowCorrectAnswers  bool       `json:"show_correct_answers"`
	MaxAttempts         int        `json:"max_attempts"`
	TimeLimitMinutes    *int       `json:"time_limit_minutes,omitempty"`
	IsPublished         bool       `json:"is_published"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutoGradableOnly reports whether every graded question can be scored
// without a manual pass.
func (q *Questionnaire) AutoGradableOnly() bool {
	for i := range q.Questions {
		if q.Questions[i].Graded() && !q.Questions[i].AutoGradable() {
			return false
		}
	}
	return true
}

// Overdue reports whether now is past the due date. Questionnaires without
// a due date are never overdue.
func (q *Questionnaire) Overdue(now time.Time) bool {
	return q.DueDate != nil && now.After(*q.DueDate)
}

// CorrectAnswerKey maps each objective question id to its correct option
// ids, for revealing answers to students after grading.
func (q *Questionnaire) CorrectAnswerKey() map[string][]string {
	key := make(map[string][]string)
	for i := range q.Questions {
		qd := &q.Questions[i]
		if !qd.AutoGradable() {
			continue
		}
		key[qd.ID.String()] = qd.CorrectOptionIDs()
	}
	return key
}

// QuestionByID finds a question by its id string.
func (q *Questionnaire) QuestionByID(id string) *QuestionDefinition {
	for i := range q.Questions {
		if q.Questions[i].ID.String() == id {
			return &q.Questions[i]
		}
	}
	return nil
}

// QuestionnairePayload is the student-facing view of a published
// questionnaire, cached in Redis at publish time.
type QuestionnairePayload struct {
	QuestionnaireID  uuid.UUID            `json:"questionnaire_id"`
	Title            string               `json:"title"`
	Description      string               `json:"description,omitempty"`
	TimeLimitMinutes *int                 `json:"time_limit_minutes,omitempty"`
	DueDate          *time.Time           `json:"due_date,omitempty"`
	Questions        []QuestionForStudent `json:"questions"`
}

// Payload builds the student-facing view (correct answers stripped).
func (q *Questionnaire) Payload() *QuestionnairePayload {
	p := &QuestionnairePayload{
		QuestionnaireID:  q.ID,
		Title:            q.Title,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		DueDate:          q.DueDate,
		Questions:        make([]QuestionForStudent, len(q.Questions)),
	}
	for i := range q.Questions {
		p.Questions[i] = q.Questions[i].ForStudent()
	}
	return p
}

// TimingPolicy is the subset of the definition the session layer needs to
// enforce deadlines, cached alongside the payload.
type TimingPolicy struct {
	TimeLimitMinutes    *int       `json:"time_limit_minutes,omitempty"`
	DueDate             *time.Time `json:"due_date,omitempty"`
	AllowLateSubmission bool       `json:"allow_late_submission"`
	MaxAttempts         int        `json:"max_attempts"`
}

// Policy extracts the timing policy from the definition.
func (q *Questionnaire) Policy() TimingPolicy {
	return TimingPolicy{
		TimeLimitMinutes:    q.TimeLimitMinutes,
		DueDate:             q.DueDate,
		AllowLateSubmission: q.AllowLateSubmission,
		MaxAttempts:         q.MaxAttempts,
	}
}

// QuestionInput is the request payload for one question when authoring.
type QuestionInput struct {
	Type        string   `json:"type" binding:"required,oneof=multiple_choice checkbox short_answer long_answer rating linear_scale"`
	Prompt      string   `json:"prompt" binding:"required,min=1,max=2000"`
	Description string   `json:"description" binding:"omitempty,max=2000"`
	Required    bool     `json:"required"`
	Points      float64  `json:"points" binding:"min=0"`
	Options     []Option `json:"options" binding:"omitempty,dive"`
	MinValue    *int     `json:"min_value" binding:"omitempty"`
	MaxValue    *int     `json:"max_value" binding:"omitempty"`
	MinLabel    string   `json:"min_label" binding:"omitempty,max=100"`
	MaxLabel    string   `json:"max_label" binding:"omitempty,max=100"`
}

// CreateQuestionnaireRequest is the payload for creating a draft questionnaire.
type CreateQuestionnaireRequest struct {
	Title               string          `json:"title" binding:"required,min=1,max=255"`
	Description         string          `json:"description" binding:"omitempty,max=5000"`
	Questions           []QuestionInput `json:"questions" binding:"omitempty,dive"`
	TargetLearningPaths []string        `json:"target_learning_paths" binding:"omitempty,dive,min=1"`
	TargetStudentIDs    []int           `json:"target_student_ids" binding:"omitempty"`
	DueDate             *time.Time      `json:"due_date" binding:"omitempty"`
	AllowLateSubmission bool            `json:"allow_late_submission"`
	ShowCorrectAnswers  bool            `json:"show_correct_answers"`
	MaxAttempts         int             `json:"max_attempts" binding:"required,min=1"`
	TimeLimitMinutes    *int            `json:"time_limit_minutes" binding:"omitempty,min=1"`
}

// UpdateQuestionnaireRequest is the payload for editing a questionnaire.
// All fields are optional; nil/zero fields are left untouched.
type UpdateQuestionnaireRequest struct {
	Title               *string         `json:"title" binding:"omitempty,min=1,max=255"`
	Description         *string         `json:"description" binding:"omitempty,max=5000"`
	Questions           []QuestionInput `json:"questions" binding:"omitempty,dive"`
	TargetLearningPaths []string        `json:"target_learning_paths" binding:"omitempty,dive,min=1"`
	TargetStudentIDs    []int           `json:"target_student_ids" binding:"omitempty"`
	DueDate             *time.Time      `json:"due_date" binding:"omitempty"`
	AllowLateSubmission *bool           `json:"allow_late_submission" binding:"omitempty"`
	ShowCorrectAnswers  *bool           `json:"show_correct_answers" binding:"omitempty"`
	MaxAttempts         *int            `json:"max_attempts" binding:"omitempty,min=1"`
	TimeLimitMinutes    *int            `json:"time_limit_minutes" binding:"omitempty,min=1"`
}
