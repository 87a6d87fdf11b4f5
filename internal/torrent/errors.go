package torrent

import "errors"

var (
	ErrAddressOutOfRange = errors.New("address out of range")
	ErrFileNotFound      = errors.New("file not found")
	ErrOffsetBeyondFile  = errors.New("offset beyond file")
	ErrInvalidSnapshot   = errors.New("invalid job snapshot")
)
