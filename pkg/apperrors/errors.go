package apperrors

import "errors"

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnsupportedStore = errors.New("unsupported store type")
)
