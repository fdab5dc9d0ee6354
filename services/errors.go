package services

import (
	"fmt"
	"net/http"
)

// ErrorKind classifies an AppError independently of its transport status.
type ErrorKind string

const (
	KindNotFound         ErrorKind = "NotFound"
	KindForbidden        ErrorKind = "Forbidden"
	KindConflict         ErrorKind = "Conflict"
	KindQuotaExceeded    ErrorKind = "QuotaExceeded"
	KindInvalidSignature ErrorKind = "InvalidSignature"
	KindInvalidInput     ErrorKind = "InvalidInput"
	KindUpstreamStorage  ErrorKind = "UpstreamStorage"
	KindInternal         ErrorKind = "Internal"
)

const (
	ReasonSessionExpired = "session_expired"
	ReasonInvalidPart    = "invalid_part"
)

type AppError struct {
	HTTPCode int
	Kind     ErrorKind
	Reason   string
	Message  string
	Data     interface{}
	Err      error
}

func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newAppError(httpCode int, message string, err error) *AppError {
	return &AppError{HTTPCode: httpCode, Kind: kindForStatus(httpCode), Message: message, Err: err}
}

func newAppErrorWithData(httpCode int, message string, data interface{}, err error) *AppError {
	return &AppError{HTTPCode: httpCode, Kind: kindForStatus(httpCode), Message: message, Data: data, Err: err}
}

// newUpstreamError reports an object store rejection. Known reasons are the
// caller's fault and map to 400, anything else is internal.
func newUpstreamError(reason string, message string, err error) *AppError {
	code := http.StatusInternalServerError
	if reason != "" {
		code = http.StatusBadRequest
	}
	return &AppError{HTTPCode: code, Kind: KindUpstreamStorage, Reason: reason, Message: message, Err: err}
}

func kindForStatus(code int) ErrorKind {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden:
		return KindForbidden
	case http.StatusConflict:
		return KindConflict
	case http.StatusUnprocessableEntity:
		return KindQuotaExceeded
	case http.StatusUnauthorized:
		return KindInvalidSignature
	case http.StatusBadRequest:
		return KindInvalidInput
	}
	return KindInternal
}
