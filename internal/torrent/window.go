package torrent

import "fmt"

// MergeConsecutive folds a run of consecutive pieces of one job into a single
// virtual window starting at the first piece. The run must be non-empty,
// contiguous and share one piece size; anything else is a programming error.
func MergeConsecutive(pieces []Piece) VirtualPiece {
	if len(pieces) == 0 {
		panic("torrent: merge of an empty piece run")
	}
	first := pieces[0]
	for i, p := range pieces {
		if p.Size != first.Size || p.Index != first.Index+i {
			panic(fmt.Sprintf("torrent: piece run not contiguous at %d: %+v", i, p))
		}
	}

	return VirtualPiece{
		Offset: int64(first.Index) * first.Size,
		Size:   int64(len(pieces)) * first.Size,
	}
}

// IsDownloaded reports whether the bytes of p can be trusted on disk. Indexes
// outside the recorded state vector are never downloaded.
func IsDownloaded(job *JobSnapshot, p Piece) bool {
	if p.Index < 0 || p.Index >= len(job.States) {
		return false
	}
	return job.States[p.Index] == PieceDownloaded
}

// AllDownloaded returns the first piece of pieces that is not downloaded.
func AllDownloaded(job *JobSnapshot, pieces []Piece) (Piece, bool) {
	for _, p := range pieces {
		if !IsDownloaded(job, p) {
			return p, false
		}
	}
	return Piece{}, true
}
