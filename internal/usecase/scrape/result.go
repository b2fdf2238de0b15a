package scrape

import (
	"errors"
	"reflect"

	"rsd-scraper/internal/domain/entity"
)

// Status tags the variant held by a Result.
type Status int

const (
	StatusUpdated Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusUpdated:
		return "updated"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result is the outcome of one fetch. Payload is set only for StatusUpdated
// and Err only for StatusFailed.
type Result struct {
	Status  Status
	Payload entity.Payload
	Err     error
}

// Success wraps a payload.
func Success(p entity.Payload) Result {
	return Result{Status: StatusUpdated, Payload: p}
}

// Empty reports a fetch that succeeded without data.
func Empty() Result {
	return Result{Status: StatusEmpty}
}

// Failure wraps a fetch error.
func Failure(err error) Result {
	return Result{Status: StatusFailed, Err: err}
}

// NewResult classifies the return values of a Fetcher.
func NewResult(p entity.Payload, err error) Result {
	if err != nil {
		if errors.Is(err, ErrNoData) {
			return Empty()
		}
		return Failure(err)
	}
	if isNilPayload(p) {
		return Empty()
	}
	return Success(p)
}

// isNilPayload reports whether p is nil or wraps a nil pointer, map or slice.
func isNilPayload(p entity.Payload) bool {
	if p == nil {
		return true
	}
	v := reflect.ValueOf(p)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
