package merger

import "errors"

var (
	ErrNoEquivalentFile     = errors.New("no equivalent file")
	ErrSourceUnavailable    = errors.New("source piece unavailable")
	ErrContainmentViolation = errors.New("target block outside source window")
	ErrDigestMismatch       = errors.New("digest mismatch")
	ErrIOFailure            = errors.New("i/o failure")
	ErrSameJob              = errors.New("source and destination are the same job")
)
