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

// Is reports whether target is a DomainError with the same code and message,
// so a wrapped error still matches its sentinel.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// Wrap returns a copy of the sentinel carrying err as its cause.
func (e *DomainError) Wrap(err error) *DomainError {
	return NewDomainErrorWithCause(e.Code, e.Message, err)
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

// AsDomainError extracts the outermost DomainError from an error chain.
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain error codes
const (
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeNotFound              = "NOT_FOUND"
	ErrCodeAlreadyExists         = "ALREADY_EXISTS"
	ErrCodeInternalError         = "INTERNAL_ERROR"
	ErrCodeInvalidOperation      = "INVALID_OPERATION"
	ErrCodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
	ErrCodeExtractionFailed      = "EXTRACTION_FAILED"
	ErrCodeEmbeddingUnavailable  = "EMBEDDING_UNAVAILABLE"
	ErrCodeIndexWriteFailed      = "INDEX_WRITE_FAILED"
	ErrCodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
	ErrCodeGenerationInterrupted = "GENERATION_INTERRUPTED"
	ErrCodeSettingsMismatch      = "INDEX_SETTINGS_MISMATCH"
)

// Validation errors
var (
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
	ErrUnsafeFileName       = NewDomainError(ErrCodeValidation, "file name contains forbidden characters")
	ErrFileTooLarge         = NewDomainError(ErrCodeValidation, "file exceeds the maximum allowed size")
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrInvalidChunkConfig   = NewDomainError(ErrCodeValidation, "chunk overlap must be >= 0 and smaller than chunk size")
	ErrUnsupportedFormat    = NewDomainError(ErrCodeUnsupportedFormat, "unsupported document format")
)

// Not found errors
var (
	ErrDocumentNotFound     = NewDomainError(ErrCodeNotFound, "document not found")
	ErrConversationNotFound = NewDomainError(ErrCodeNotFound, "conversation not found")
	ErrBlobNotFound         = NewDomainError(ErrCodeNotFound, "stored document content not found")
)

// Pipeline errors
var (
	ErrExtractionFailed      = NewDomainError(ErrCodeExtractionFailed, "could not extract text from document")
	ErrTextTooShort          = NewDomainError(ErrCodeExtractionFailed, "document has too little text after cleaning")
	ErrEmbeddingUnavailable  = NewDomainError(ErrCodeEmbeddingUnavailable, "embedding provider unavailable")
	ErrIndexWriteFailed      = NewDomainError(ErrCodeIndexWriteFailed, "vector index write failed")
	ErrGenerationUnavailable = NewDomainError(ErrCodeGenerationUnavailable, "generation provider unavailable")
	ErrGenerationInterrupted = NewDomainError(ErrCodeGenerationInterrupted, "generation interrupted mid-stream")
	ErrSettingsMismatch      = NewDomainError(ErrCodeSettingsMismatch, "configured index settings differ from the stored index; rebuild required")
)

// Storage errors
var (
	ErrStorageOperationFail = NewDomainError(ErrCodeInternalError, "storage operation failed")
)
