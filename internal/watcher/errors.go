package watcher

import "errors"

var (
	ErrWatcherClosed      = errors.New("watcher is closed")
	ErrInvalidPath        = errors.New("invalid path")
	ErrPathAlreadyWatched = errors.New("path is already being watched")
)
