package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden             ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly     ErrCode = "STUDENT_ACCESS_ONLY"
	ErrInstructorOnly        ErrCode = "INSTRUCTOR_ACCESS_ONLY"
	ErrNotQuestionnaireOwner ErrCode = "NOT_QUESTIONNAIRE_OWNER"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Assessment-specific ───────────────────────────────────────────
	ErrDefinitionInvalid      ErrCode = "DEFINITION_INVALID"
	ErrNotPublished           ErrCode = "NOT_PUBLISHED"
	ErrAttemptBudgetExhausted ErrCode = "ATTEMPT_BUDGET_EXHAUSTED"
	ErrOverdue                ErrCode = "OVERDUE"
	ErrAlreadySubmitted       ErrCode = "ALREADY_SUBMITTED"
	ErrRequiredUnanswered     ErrCode = "REQUIRED_QUESTIONS_UNANSWERED"
	ErrNotSubmitted           ErrCode = "NOT_SUBMITTED"
	ErrScoreOutOfRange        ErrCode = "SCORE_OUT_OF_RANGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrInstructorOnly:
		return "This resource is restricted to instructors."
	case ErrNotQuestionnaireOwner:
		return "You are not the owner of this questionnaire."

	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "The ID format is invalid."
	case ErrInvalidPayload:
		return "The request payload is invalid."

	case ErrNotFound:
		return "The requested resource was not found."
	case ErrConflict:
		return "The resource already exists."

	case ErrDefinitionInvalid:
		return "The questionnaire definition failed validation and cannot be published."
	case ErrNotPublished:
		return "This questionnaire has not been published."
	case ErrAttemptBudgetExhausted:
		return "The maximum number of attempts has been reached."
	case ErrOverdue:
		return "The due date has passed and late submissions are not allowed."
	case ErrAlreadySubmitted:
		return "This attempt has already been submitted."
	case ErrRequiredUnanswered:
		return "All required questions must be answered before submitting."
	case ErrNotSubmitted:
		return "This attempt has not been submitted yet."
	case ErrScoreOutOfRange:
		return "The score must be between 0 and 100."

	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
