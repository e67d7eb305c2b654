package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
	ErrCodeCanceled           ErrorCode = "COMMON_017"
)

// Aliases
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeCacheError   = ErrCodeCacheError
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Concept linking error codes
const (
	ErrCodeConceptStoreFormat ErrorCode = "CLN_001"
	ErrCodeVocabularyFormat   ErrorCode = "CLN_002"
	ErrCodeVectorBlockFormat  ErrorCode = "CLN_003"
	ErrCodeConceptStoreIO     ErrorCode = "CLN_004"
	ErrCodeVocabularyIO       ErrorCode = "CLN_005"
	ErrCodeDimensionMismatch  ErrorCode = "CLN_006"
	ErrCodeThresholdPolicy    ErrorCode = "CLN_007"
	ErrCodeEngineNotReady     ErrorCode = "CLN_008"
	ErrCodeDocumentEmpty      ErrorCode = "CLN_009"
	ErrCodeNameInvalid        ErrorCode = "CLN_010"
)

// Infrastructure error codes
const (
	ErrCodeArtifactFetch  ErrorCode = "INFRA_001"
	ErrCodeArtifactUpload ErrorCode = "INFRA_002"
	ErrCodeMessagePublish ErrorCode = "INFRA_003"
	ErrCodeMessageConsume ErrorCode = "INFRA_004"
	ErrCodeConfigInvalid  ErrorCode = "INFRA_005"
)

// Infrastructure aliases
const (
	CodeMessageQueueError = ErrCodeMessagePublish
	CodeStorageError      = ErrCodeArtifactFetch
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.  The worker
// health endpoints and the retry classifier both read it.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusBadRequest,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,
	ErrCodeCanceled:           499,

	ErrCodeConceptStoreFormat: http.StatusUnprocessableEntity,
	ErrCodeVocabularyFormat:   http.StatusUnprocessableEntity,
	ErrCodeVectorBlockFormat:  http.StatusUnprocessableEntity,
	ErrCodeConceptStoreIO:     http.StatusInternalServerError,
	ErrCodeVocabularyIO:       http.StatusInternalServerError,
	ErrCodeDimensionMismatch:  http.StatusUnprocessableEntity,
	ErrCodeThresholdPolicy:    http.StatusBadRequest,
	ErrCodeEngineNotReady:     http.StatusServiceUnavailable,
	ErrCodeDocumentEmpty:      http.StatusBadRequest,
	ErrCodeNameInvalid:        http.StatusBadRequest,

	ErrCodeArtifactFetch:  http.StatusBadGateway,
	ErrCodeArtifactUpload: http.StatusBadGateway,
	ErrCodeMessagePublish: http.StatusServiceUnavailable,
	ErrCodeMessageConsume: http.StatusServiceUnavailable,
	ErrCodeConfigInvalid:  http.StatusBadRequest,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeCacheError:         "cache error",
	ErrCodeExternalService:    "external service error",
	ErrCodeCanceled:           "operation canceled",

	ErrCodeConceptStoreFormat: "malformed concept store",
	ErrCodeVocabularyFormat:   "malformed vocabulary",
	ErrCodeVectorBlockFormat:  "malformed vector block",
	ErrCodeConceptStoreIO:     "concept store i/o failed",
	ErrCodeVocabularyIO:       "vocabulary i/o failed",
	ErrCodeDimensionMismatch:  "vector dimension mismatch",
	ErrCodeThresholdPolicy:    "unknown similarity threshold type",
	ErrCodeEngineNotReady:     "annotation engine not ready",
	ErrCodeDocumentEmpty:      "document text is empty",
	ErrCodeNameInvalid:        "concept name normalises to nothing",

	ErrCodeArtifactFetch:  "failed to fetch artifact",
	ErrCodeArtifactUpload: "failed to upload artifact",
	ErrCodeMessagePublish: "failed to publish message",
	ErrCodeMessageConsume: "failed to consume message",
	ErrCodeConfigInvalid:  "invalid configuration",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx status.
// The worker treats these as permanent and skips retries.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// IsRetryable reports whether a failure carrying err may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return !IsClientError(GetCode(err))
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
