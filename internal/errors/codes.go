// Package errors provides structured error handling for docvector.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk, tracker store)
//   - 3XX: Network errors (backends, embedding provider)
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates network-related errors.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort the run.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but the run can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// IO errors (200-299)
	ErrCodeRootNotFound   = "ERR_201_ROOT_NOT_FOUND"
	ErrCodeFileUnreadable = "ERR_202_FILE_UNREADABLE"
	ErrCodeTrackerCorrupt = "ERR_203_TRACKER_CORRUPT"
	ErrCodeStoreCorrupt   = "ERR_204_STORE_CORRUPT"

	// Network errors (300-399)
	ErrCodeBackendUnavailable  = "ERR_301_BACKEND_UNAVAILABLE"
	ErrCodeEmbedderUnavailable = "ERR_302_EMBEDDER_UNAVAILABLE"
	ErrCodeRequestFailed       = "ERR_303_REQUEST_FAILED"

	// Validation errors (400-499)
	ErrCodeSchemaValidation  = "ERR_401_SCHEMA_VALIDATION"
	ErrCodeInvalidFilter     = "ERR_402_INVALID_FILTER"
	ErrCodeDimensionMismatch = "ERR_403_DIMENSION_MISMATCH"
	ErrCodeUnsupportedFile   = "ERR_404_UNSUPPORTED_FILE"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeUploadFailed    = "ERR_503_UPLOAD_FAILED"
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
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
// Fatal codes abort the whole pipeline run; everything else is
// recovered at file granularity and accumulated for reporting.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeRootNotFound, ErrCodeBackendUnavailable, ErrCodeConfigInvalid, ErrCodeConfigNotFound:
		return SeverityFatal
	case ErrCodeTrackerCorrupt, ErrCodeEmbeddingFailed:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeRequestFailed, ErrCodeEmbedderUnavailable:
		return true
	default:
		return false
	}
}
