package anilist

import (
	"errors"
	"fmt"
)

// ErrRetryExhausted is returned when all retry attempts are used up.
var ErrRetryExhausted = errors.New("retry attempts exhausted")

// ErrorClass categorizes request failures for handling and metrics.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx responses. Not retried.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents transport-level failures.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is a failed AniList request with its classification.
type APIError struct {
	StatusCode int
	Class      ErrorClass
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("anilist %s error (status %d): %s: %v",
			e.Class, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("anilist %s error (status %d): %s",
		e.Class, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.Err }

// classifyStatus maps an HTTP status code to an error class.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == 429:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry reports whether an error class is worth retrying.
// Client errors are not: the request will fail the same way again.
func shouldRetry(class ErrorClass) bool {
	switch class {
	case ErrorClassServer, ErrorClassRateLimit, ErrorClassNetwork:
		return true
	default:
		return false
	}
}
