package rest

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited is returned only when the retry budget for a
	// 429 cooldown cycle is exhausted.
	ErrRateLimited = errors.New("rate limited")

	ErrPermissionDenied = errors.New("permission denied")
	ErrNotFound         = errors.New("not found")
)

// HTTPError is a non-2xx response that is not retryable.
type HTTPError struct {
	Status  int
	Code    int
	Message string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("http %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("http %d", e.Status)
}

func (e *HTTPError) Unwrap() error {
	switch e.Status {
	case 401, 403:
		return ErrPermissionDenied
	case 404:
		return ErrNotFound
	}
	return nil
}

// apiError is the error body shape the API returns.
type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}
