package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"bibkeys/internal/services"
	"bibkeys/internal/utils/bibtexparser"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrorTypeBadRequest          ErrorType = "BAD_REQUEST"
	ErrorTypeUnauthorized        ErrorType = "UNAUTHORIZED"
	ErrorTypeNotFound            ErrorType = "NOT_FOUND"
	ErrorTypeConflict            ErrorType = "CONFLICT"
	ErrorTypePayloadTooLarge     ErrorType = "PAYLOAD_TOO_LARGE"
	ErrorTypeInternalServerError ErrorType = "INTERNAL_SERVER_ERROR"
)

// CustomError represents a custom error with associated HTTP status code and type
type CustomError struct {
	Type       ErrorType
	Message    string
	StatusCode int
	Internal   error
}

func (e *CustomError) Error() string {
	return e.Message
}

func (e *CustomError) Unwrap() error {
	return e.Internal
}

func newError(errType ErrorType, message string, statusCode int, internal error) *CustomError {
	return &CustomError{
		Type:       errType,
		Message:    message,
		StatusCode: statusCode,
		Internal:   internal,
	}
}

func New400Error(message string) *CustomError {
	return newError(ErrorTypeBadRequest, message, http.StatusBadRequest, nil)
}

func New401Error() *CustomError {
	return newError(ErrorTypeUnauthorized, "Unauthorized access", http.StatusUnauthorized, nil)
}

func New404Error(message string) *CustomError {
	return newError(ErrorTypeNotFound, message, http.StatusNotFound, nil)
}

func New409Error(message string) *CustomError {
	return newError(ErrorTypeConflict, message, http.StatusConflict, nil)
}

func New413Error(limit int64) *CustomError {
	return newError(ErrorTypePayloadTooLarge, fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge, nil)
}

func New500Error(internal error) *CustomError {
	return newError(ErrorTypeInternalServerError, "An unexpected error occurred", http.StatusInternalServerError, internal)
}

// FromServiceError maps service and parser errors onto HTTP errors. Anything
// unrecognised becomes a 500.
func FromServiceError(err error) *CustomError {
	var customErr *CustomError
	var tooLarge *http.MaxBytesError
	switch {
	case stderrors.As(err, &customErr):
		return customErr
	case stderrors.As(err, &tooLarge):
		return New413Error(tooLarge.Limit)
	case stderrors.Is(err, services.ErrProjectNotFound), stderrors.Is(err, services.ErrReferenceNotFound):
		return New404Error(err.Error())
	case stderrors.Is(err, services.ErrProjectExists),
		stderrors.Is(err, services.ErrDuplicateKey),
		stderrors.Is(err, services.ErrStorageDisabled):
		return New409Error(err.Error())
	case stderrors.Is(err, services.ErrInvalidName),
		stderrors.Is(err, services.ErrInvalidReference),
		stderrors.Is(err, services.ErrNoInput),
		stderrors.Is(err, bibtexparser.ErrMalformed):
		return New400Error(err.Error())
	default:
		return New500Error(err)
	}
}

// HandleError handles the custom error and sends an appropriate JSON response
func HandleError(c *gin.Context, err error) {
	customErr := FromServiceError(err)

	// Log internal server errors
	if customErr.Type == ErrorTypeInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(customErr.Internal).
			Str("url", c.Request.URL.String()).
			Msg("Internal Server Error")
	}

	c.AbortWithStatusJSON(customErr.StatusCode, gin.H{
		"error": gin.H{
			"type":    customErr.Type,
			"message": customErr.Message,
		},
	})
}
