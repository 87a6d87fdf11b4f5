package db

import "qbmerge/internal/merger"

// ReportStorage is the ledger as seen by the CLI.
type ReportStorage interface {
	SaveReport(r *merger.Report) error
	GetReport(runID string) (*merger.Report, error)
	ListReports(limit int) ([]*merger.Report, error)
	DeleteReport(runID string) error
	Close() error
}
