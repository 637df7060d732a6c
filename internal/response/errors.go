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
	ErrForbidden      ErrCode = "FORBIDDEN"
	ErrNotExamOwner   ErrCode = "NOT_EXAM_OWNER"
	ErrAuthorAccessOnly ErrCode = "AUTHOR_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Attempt protocol ──────────────────────────────────────────────
	// ErrInvalidAttempt deliberately covers session-token mismatch,
	// unknown attempt id, and already-submitted with one opaque code so
	// an adversarial client cannot tell which precondition failed.
	ErrInvalidAttempt      ErrCode = "INVALID_ATTEMPT"
	ErrAttemptLimitReached ErrCode = "ATTEMPT_LIMIT_REACHED"
	ErrExamNotPublished    ErrCode = "EXAM_NOT_PUBLISHED"
	ErrNoQuestions         ErrCode = "NO_QUESTIONS"

	// ─── Generation / extraction ───────────────────────────────────────
	ErrQuotaExceeded       ErrCode = "QUOTA_EXCEEDED"
	ErrGenerationDisabled  ErrCode = "GENERATION_DISABLED"
	ErrExtractionFailed    ErrCode = "EXTRACTION_FAILED"

	// ─── Media ─────────────────────────────────────────────────────────
	ErrFileRequired    ErrCode = "FILE_REQUIRED"
	ErrUnsupportedFile ErrCode = "UNSUPPORTED_FILE_TYPE"
	ErrFileTooLarge    ErrCode = "FILE_TOO_LARGE"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email or password is incorrect."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrNotExamOwner:
		return "You are not the owner of this exam."
	case ErrAuthorAccessOnly:
		return "This resource is restricted to exam authors."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Attempt protocol ──────────────────────────────────────────────
	case ErrInvalidAttempt:
		return "This attempt cannot be submitted."
	case ErrAttemptLimitReached:
		return "The attempt limit for this exam has been reached."
	case ErrExamNotPublished:
		return "This exam is not published."
	case ErrNoQuestions:
		return "This exam has no questions."

	// ─── Generation / extraction ───────────────────────────────────────
	case ErrQuotaExceeded:
		return "Daily question generation quota exceeded."
	case ErrGenerationDisabled:
		return "Question generation is not configured on this server."
	case ErrExtractionFailed:
		return "Could not extract text from the uploaded document."

	// ─── Media ─────────────────────────────────────────────────────────
	case ErrFileRequired:
		return "A file upload is required."
	case ErrUnsupportedFile:
		return "Unsupported file type."
	case ErrFileTooLarge:
		return "File size exceeds the limit."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
