package storage

import "errors"

var (
	ErrRootNotFound   = errors.New("storage root not found")
	ErrLengthMismatch = errors.New("file length does not match job layout")
	ErrInvalidPath    = errors.New("invalid file path")
)
