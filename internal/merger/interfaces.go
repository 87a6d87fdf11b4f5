package merger

import (
	"context"

	"qbmerge/internal/torrent"
)

// Session is the torrent client holding the jobs.
type Session interface {
	PieceDigests(ctx context.Context, id string) ([]torrent.Digest, error)
	PieceStates(ctx context.Context, id string) ([]torrent.PieceState, error)
	Properties(ctx context.Context, id string) (torrent.Properties, error)
	Contents(ctx context.Context, id string) ([]torrent.FileEntry, error)
	Pause(ctx context.Context, id string) error
}

// Rechecker is implemented by sessions able to re-verify a job's data.
type Rechecker interface {
	Recheck(ctx context.Context, id string) error
}

// Storage resolves job files on disk and moves byte ranges in and out.
type Storage interface {
	CheckRoot(job *torrent.JobSnapshot) error
	Read(job *torrent.JobSnapshot, name string, block torrent.FileBlock) ([]byte, error)
	Write(job *torrent.JobSnapshot, name string, block torrent.FileBlock, data []byte) error
}

// Verifier checks bytes against an expected piece digest.
type Verifier interface {
	Verify(expected torrent.Digest, data []byte) (bool, error)
}

// ReportStore keeps finished reports.
type ReportStore interface {
	SaveReport(r *Report) error
}
