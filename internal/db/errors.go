package db

import "errors"

var (
	ErrReportNotFound = errors.New("report not found")
	ErrBucketNotFound = errors.New("bucket not found")
	ErrNilDB          = errors.New("database connection is nil")
	ErrNilReport      = errors.New("report is nil")
)
