package model

import (
	"fmt"
	"strings"
)

// ValidationError describes one rule violation in a questionnaire definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the definition against the publish rules. A nil result
// means the definition is publishable. Drafts may be saved with a non-nil
// result; the violations are surfaced as warnings instead of blocking.
func (q *Questionnaire) Validate() []ValidationError {
	var errs []ValidationError

	if strings.TrimSpace(q.Title) == "" {
		errs = append(errs, ValidationError{Field: "title", Message: "title must not be empty"})
	}
	if len(q.Questions) == 0 {
		errs = append(errs, ValidationError{Field: "questions", Message: "at least one question is required"})
	}
	if q.MaxAttempts < 1 {
		errs = append(errs, ValidationError{Field: "max_attempts", Message: "max_attempts must be at least 1"})
	}
	if q.TimeLimitMinutes != nil && *q.TimeLimitMinutes < 1 {
		errs = append(errs, ValidationError{Field: "time_limit_minutes", Message: "time limit must be a positive number of minutes"})
	}
	if len(q.TargetLearningPaths) == 0 && len(q.TargetStudentIDs) == 0 {
		errs = append(errs, ValidationError{Field: "targeting", Message: "at least one learning path or student must be targeted"})
	}
	if len(q.TargetLearningPaths) > 0 && len(q.TargetStudentIDs) > 0 {
		errs = append(errs, ValidationError{Field: "targeting", Message: "learning-path and explicit-roster targeting are mutually exclusive"})
	}

	for i := range q.Questions {
		errs = append(errs, q.Questions[i].validate(i)...)
	}

	return errs
}

// ValidateAnswers checks each recorded answer against its question's
// expected shape and range: option ids must exist, rating and linear_scale
// values must be integers within bounds, text answers must be strings.
// Blank answers are skipped; required-ness is enforced separately.
func ValidateAnswers(questions []QuestionDefinition, answers AnswerMap) []ValidationError {
	var errs []ValidationError

	known := make(map[string]struct{}, len(questions))
	for i := range questions {
		qd := &questions[i]
		qid := qd.ID.String()
		known[qid] = struct{}{}
		if answers.Empty(qid) {
			continue
		}
		field := "answers." + qid

		switch qd.Type {
		case QuestionTypeMultipleChoice:
			id, ok := answers.OptionID(qid)
			if !ok {
				errs = append(errs, ValidationError{Field: field, Message: "answer must be a single option id"})
			} else if !qd.HasOption(id) {
				errs = append(errs, ValidationError{Field: field, Message: "answer names an unknown option"})
			}

		case QuestionTypeCheckbox:
			ids, ok := answers.OptionIDSet(qid)
			if !ok {
				errs = append(errs, ValidationError{Field: field, Message: "answer must be an array of option ids"})
				continue
			}
			for id := range ids {
				if !qd.HasOption(id) {
					errs = append(errs, ValidationError{Field: field, Message: "answer names an unknown option"})
					break
				}
			}

		case QuestionTypeShortAnswer, QuestionTypeLongAnswer:
			if _, ok := answers.Text(qid); !ok {
				errs = append(errs, ValidationError{Field: field, Message: "answer must be a string"})
			}

		case QuestionTypeRating:
			if n, ok := answers.Int(qid); !ok || n < RatingMin || n > RatingMax {
				errs = append(errs, ValidationError{
					Field:   field,
					Message: fmt.Sprintf("answer must be an integer between %d and %d", RatingMin, RatingMax),
				})
			}

		case QuestionTypeLinearScale:
			n, ok := answers.Int(qid)
			if !ok {
				errs = append(errs, ValidationError{Field: field, Message: "answer must be an integer"})
			} else if qd.MinValue != nil && qd.MaxValue != nil && (n < *qd.MinValue || n > *qd.MaxValue) {
				errs = append(errs, ValidationError{Field: field, Message: "answer is outside the scale bounds"})
			}
		}
	}

	for qid := range answers {
		if _, ok := known[qid]; !ok {
			errs = append(errs, ValidationError{Field: "answers." + qid, Message: "answer references an unknown question"})
		}
	}
	return errs
}

func (q *QuestionDefinition) validate(idx int) []ValidationError {
	field := func(name string) string {
		return fmt.Sprintf("questions[%d].%s", idx, name)
	}

	var errs []ValidationError

	if strings.TrimSpace(q.Prompt) == "" {
		errs = append(errs, ValidationError{Field: field("prompt"), Message: "prompt must not be empty"})
	}
	if q.Points < 0 {
		errs = append(errs, ValidationError{Field: field("points"), Message: "points must not be negative"})
	}

	switch q.Type {
	case QuestionTypeMultipleChoice, QuestionTypeCheckbox:
		if len(q.Options) < 2 {
			errs = append(errs, ValidationError{Field: field("options"), Message: "choice questions need at least two options"})
		}
		seen := make(map[string]struct{}, len(q.Options))
		for j, opt := range q.Options {
			if strings.TrimSpace(opt.ID) == "" {
				errs = append(errs, ValidationError{Field: field(fmt.Sprintf("options[%d].id", j)), Message: "option id must not be empty"})
			}
			if _, dup := seen[opt.ID]; dup {
				errs = append(errs, ValidationError{Field: field(fmt.Sprintf("options[%d].id", j)), Message: "option id is duplicated"})
			}
			seen[opt.ID] = struct{}{}
		}
		// A graded multiple_choice question has exactly one correct option;
		// checkbox allows zero or more.
		if q.Type == QuestionTypeMultipleChoice && q.Graded() && len(q.CorrectOptionIDs()) != 1 {
			errs = append(errs, ValidationError{Field: field("options"), Message: "graded multiple_choice questions need exactly one correct option"})
		}
		if q.MinValue != nil || q.MaxValue != nil {
			errs = append(errs, ValidationError{Field: field("min_value"), Message: "scale bounds are only valid on linear_scale questions"})
		}

	case QuestionTypeLinearScale:
		if q.MinValue == nil || q.MaxValue == nil {
			errs = append(errs, ValidationError{Field: field("min_value"), Message: "linear_scale questions need min_value and max_value"})
		} else if *q.MinValue >= *q.MaxValue {
			errs = append(errs, ValidationError{Field: field("min_value"), Message: "min_value must be less than max_value"})
		}
		if len(q.Options) > 0 {
			errs = append(errs, ValidationError{Field: field("options"), Message: "options are only valid on choice questions"})
		}

	case QuestionTypeShortAnswer, QuestionTypeLongAnswer, QuestionTypeRating:
		if len(q.Options) > 0 {
			errs = append(errs, ValidationError{Field: field("options"), Message: "options are only valid on choice questions"})
		}
		if q.MinValue != nil || q.MaxValue != nil {
			errs = append(errs, ValidationError{Field: field("min_value"), Message: "scale bounds are only valid on linear_scale questions"})
		}

	default:
		errs = append(errs, ValidationError{Field: field("type"), Message: fmt.Sprintf("unknown question type %q", q.Type)})
	}

	return errs
}
