package model

import (
	"github.com/google/uuid"
)

// QuestionType enumerates the supported question variants.
type QuestionType string

const (
	QuestionTypeMultipleChoice QuestionType = "multiple_choice"
	QuestionTypeCheckbox       QuestionType = "checkbox"
	QuestionTypeShortAnswer    QuestionType = "short_answer"
	QuestionTypeLongAnswer     QuestionType = "long_answer"
	QuestionTypeRating         QuestionType = "rating"
	QuestionTypeLinearScale    QuestionType = "linear_scale"
)

// Rating questions always use a fixed 1-5 integer scale.
const (
	RatingMin = 1
	RatingMax = 5
)

// Option is a selectable choice on multiple_choice and checkbox questions.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct,omitempty"`
}

// QuestionDefinition is the per-question envelope. The variant fields after
// Points are only meaningful for the matching Type: Options for
// multiple_choice/checkbox, the Min*/Max* group for linear_scale.
type QuestionDefinition struct {
	ID          uuid.UUID    `json:"id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"prompt"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	Points      float64      `json:"points"`
	Position    int          `json:"position"`

	Options []Option `json:"options,omitempty"`

	MinValue *int   `json:"min_value,omitempty"`
	MaxValue *int   `json:"max_value,omitempty"`
	MinLabel string `json:"min_label,omitempty"`
	MaxLabel string `json:"max_label,omitempty"`
}

// Graded reports whether the question contributes to scoring.
// Zero-point questions are survey-only.
func (q *QuestionDefinition) Graded() bool {
	return q.Points > 0
}

// AutoGradable reports whether the engine can score this question type
// without human input.
func (q *QuestionDefinition) AutoGradable() bool {
	return q.Type == QuestionTypeMultipleChoice || q.Type == QuestionTypeCheckbox
}

// HasOption reports whether id names one of the question's options.
func (q *QuestionDefinition) HasOption(id string) bool {
	for _, opt := range q.Options {
		if opt.ID == id {
			return true
		}
	}
	return false
}

// CorrectOptionIDs returns the ids of options marked correct.
func (q *QuestionDefinition) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// QuestionForStudent is a question stripped of correct-answer markers,
// safe to send to a student taking the questionnaire.
type QuestionForStudent struct {
	ID          uuid.UUID    `json:"id"`
	Type        QuestionType `json:"type"`
	Prompt      string       `json:"prompt"`
	Description string       `json:"description,omitempty"`
	Required    bool         `json:"required"`
	Points      float64      `json:"points"`
	Position    int          `json:"position"`
	Options     []Option     `json:"options,omitempty"`
	MinValue    *int         `json:"min_value,omitempty"`
	MaxValue    *int         `json:"max_value,omitempty"`
	MinLabel    string       `json:"min_label,omitempty"`
	MaxLabel    string       `json:"max_label,omitempty"`
}

// ForStudent strips correct-answer markers from the question.
func (q *QuestionDefinition) ForStudent() QuestionForStudent {
	out := QuestionForStudent{
		ID:          q.ID,
		Type:        q.Type,
		Prompt:      q.Prompt,
		Description: q.Description,
		Required:    q.Required,
		Points:      q.Points,
		Position:    q.Position,
		MinValue:    q.MinValue,
		MaxValue:    q.MaxValue,
		MinLabel:    q.MinLabel,
		MaxLabel:    q.MaxLabel,
	}
	if len(q.Options) > 0 {
		out.Options = make([]Option, len(q.Options))
		for i, opt := range q.Options {
			out.Options[i] = Option{ID: opt.ID, Text: opt.Text}
		}
	}
	return out
}
