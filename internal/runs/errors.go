package runs

import "errors"

var (
	ErrNotFound      = errors.New("run not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotCompleted  = errors.New("run not completed")
	ErrNotConfigured = errors.New("run dependencies not configured")
)

const (
	ErrorCodeValidation = "VALIDATION_ERROR"
	ErrorCodeLLMTimeout = "LLM_TIMEOUT"
	ErrorCodeNoProvider = "NO_PROVIDER"
	ErrorCodeStorage    = "STORAGE_ERROR"
	ErrorCodeExtraction = "EXTRACTION_ERROR"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)
