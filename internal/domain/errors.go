package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message.
// This lets wrapped copies created by NewDomainErrorWithCause match their sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches cause to a copy of the sentinel so callers can still match it with errors.Is.
func Wrap(sentinel *DomainError, cause error) *DomainError {
	return NewDomainErrorWithCause(sentinel.Code, sentinel.Message, cause)
}

// CodeOf returns the DomainError code carried by err, or "" if there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeProcessing    = "PROCESSING_ERROR"
	ErrCodeIndex         = "INDEX_ERROR"
	ErrCodeConfiguration = "CONFIGURATION_ERROR"
)

// Validation errors
var (
	ErrEmptyQuestion        = NewDomainError(ErrCodeValidation, "question cannot be empty")
	ErrConflictingFilters   = NewDomainError(ErrCodeValidation, "category and type filters are mutually exclusive")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrInvalidRule          = NewDomainError(ErrCodeValidation, "invalid override rule")
	ErrInvalidMetadata      = NewDomainError(ErrCodeValidation, "invalid flattened metadata")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
	ErrRuleNotFound     = NewDomainError(ErrCodeNotFound, "override rule not found")
)

// Authorization errors
var (
	ErrInvalidAdminToken = NewDomainError(ErrCodeUnauthorized, "invalid admin token")
)

// Processing errors are recorded per file and never abort a batch.
var (
	ErrFileUnreadable    = NewDomainError(ErrCodeProcessing, "file could not be read")
	ErrEmptyDocument     = NewDomainError(ErrCodeProcessing, "document is empty")
	ErrWriteLayout       = NewDomainError(ErrCodeProcessing, "failed to write organized document")
	ErrDuplicateDocument = NewDomainError(ErrCodeProcessing, "document id already used in batch")
)

// Index errors cover embedding and vector store failures.
var (
	ErrEmbeddingFailed      = NewDomainError(ErrCodeIndex, "embedding generation failed")
	ErrStoreFailed          = NewDomainError(ErrCodeIndex, "vector store operation failed")
	ErrEmptyDeletePredicate = NewDomainError(ErrCodeIndex, "delete requires ids or a where clause")
)

// Configuration errors are fatal at startup.
var (
	ErrMissingConfig = NewDomainError(ErrCodeConfiguration, "missing required configuration")
	ErrInvalidConfig = NewDomainError(ErrCodeConfiguration, "invalid configuration")
)
