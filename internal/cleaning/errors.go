package cleaning

import "fmt"

// CleaningError represents cleaning-specific errors
type CleaningError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (e *CleaningError) Error() string {
	return e.Message
}

// Common cleaning errors
var (
	ErrInvalidMethod = &CleaningError{
		Type:    "invalid_method",
		Message: "unknown name redaction method",
		Code:    400,
	}

	ErrInvalidURLOption = &CleaningError{
		Type:    "invalid_url_option",
		Message: "unknown URL anonymization option",
		Code:    400,
	}

	ErrCandidateSubstitution = &CleaningError{
		Type:    "candidate_substitution",
		Message: "name candidate could not be substituted",
		Code:    422,
	}

	ErrPatternTimeout = &CleaningError{
		Type:    "pattern_timeout",
		Message: "pattern exceeded match timeout",
		Code:    422,
	}
)

// ItemError reports a failure for a single email of a batch
type ItemError struct {
	Index int
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e ItemError) Unwrap() error {
	return e.Err
}
