package service

import (
	"errors"

	appErrors "github.com/noah-isme/library-api/pkg/errors"
)

// statisticsCacheKey holds the cached aggregate; every write that moves a count drops it.
const statisticsCacheKey = "library:stats"

func kindError(err error, kind *appErrors.Error, message string) *appErrors.Error {
	return appErrors.Wrap(err, kind.Code, kind.Status, message)
}

func validationError(err error, message string) *appErrors.Error {
	return kindError(err, appErrors.ErrValidation, message)
}

// passThrough returns err unchanged when it already carries a kind, otherwise a persistence failure.
func passThrough(err error, message string) error {
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.Persistence(err, message)
}

func pageOrDefault(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	return page, size
}
