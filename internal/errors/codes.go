// Package errors provides structured error handling for biosearch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Storage errors (index, snapshot store, disk)
//   - 3XX: External service errors (embedding, reranker, generator)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryStorage indicates index and snapshot store errors.
	CategoryStorage Category = "STORAGE"
	// CategoryService indicates external service errors.
	CategoryService Category = "SERVICE"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Storage errors (200-299)
	ErrCodeIndexNotFound   = "ERR_201_INDEX_NOT_FOUND"
	ErrCodeIndexCorrupt    = "ERR_202_INDEX_CORRUPT"
	ErrCodeIndexLocked     = "ERR_203_INDEX_LOCKED"
	ErrCodeSnapshotStore   = "ERR_204_SNAPSHOT_STORE"
	ErrCodeDocumentMissing = "ERR_205_DOCUMENT_MISSING"

	// External service errors (300-399)
	ErrCodeServiceTimeout     = "ERR_301_SERVICE_TIMEOUT"
	ErrCodeServiceUnavailable = "ERR_302_SERVICE_UNAVAILABLE"
	ErrCodeEmbeddingFailed    = "ERR_303_EMBEDDING_FAILED"
	ErrCodeRerankFailed       = "ERR_304_RERANK_FAILED"
	ErrCodeExtractionFailed   = "ERR_305_EXTRACTION_FAILED"
	ErrCodeGenerationFailed   = "ERR_306_GENERATION_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeQueryEmpty        = "ERR_402_QUERY_EMPTY"
	ErrCodeQuestionEmpty     = "ERR_403_QUESTION_EMPTY"
	ErrCodeInvalidFilter     = "ERR_404_INVALID_FILTER"
	ErrCodeDimensionMismatch = "ERR_405_DIMENSION_MISMATCH"

	// Internal errors (500-599)
	ErrCodeInternal     = "ERR_501_INTERNAL"
	ErrCodeSearchFailed = "ERR_502_SEARCH_FAILED"
	ErrCodeQAFailed     = "ERR_503_QA_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryStorage
	case '3':
		return CategoryService
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	if code == ErrCodeIndexCorrupt {
		return SeverityFatal
	}
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeServiceTimeout, ErrCodeServiceUnavailable:
		return true
	default:
		return false
	}
}
