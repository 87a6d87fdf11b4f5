package torrent

import "fmt"

// PieceState mirrors the per-piece download state reported by the client.
type PieceState int

const (
	PieceNotDownloaded PieceState = 0
	PieceDownloading   PieceState = 1
	PieceDownloaded    PieceState = 2
)

func (s PieceState) String() string {
	switch s {
	case PieceNotDownloaded:
		return "not-downloaded"
	case PieceDownloading:
		return "downloading"
	case PieceDownloaded:
		return "downloaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Digest is the expected hash of one piece. Its width identifies the
// algorithm that produced it.
type Digest []byte

// FileEntry is one file of a job. The order of entries defines the
// concatenation used for piece addressing.
type FileEntry struct {
	Name string
	Size int64
}

// Properties holds the job-level values the session reports.
type Properties struct {
	Name        string
	PieceSize   int64
	PiecesNum   int
	PiecesHave  int
	SavePath    string
	StagingPath string
}

// JobSnapshot is a read-only view of one job taken at the start of a run.
type JobSnapshot struct {
	ID         string
	Name       string
	Files      []FileEntry
	PieceSize  int64
	Digests    []Digest
	States     []PieceState
	PiecesHave int

	// SavePath is the permanent root used once every piece is present,
	// StagingPath the root used while the job is incomplete.
	SavePath    string
	StagingPath string
}

func (j *JobSnapshot) NumPieces() int {
	return len(j.Digests)
}

func (j *JobSnapshot) TotalSize() int64 {
	var total int64
	for _, f := range j.Files {
		total += f.Size
	}
	return total
}

// IsComplete reports whether the session counts every piece as present.
func (j *JobSnapshot) IsComplete() bool {
	return j.PiecesHave == j.NumPieces()
}

// Root returns the storage root file names are resolved against.
func (j *JobSnapshot) Root() string {
	if j.IsComplete() || j.StagingPath == "" {
		return j.SavePath
	}
	return j.StagingPath
}

// LastPieceSize is total - pieceSize*(n-1). It equals PieceSize when the
// total is a multiple of the piece size.
func (j *JobSnapshot) LastPieceSize() int64 {
	n := j.NumPieces()
	if n == 0 {
		return 0
	}
	return j.TotalSize() - j.PieceSize*int64(n-1)
}

// PieceLength returns the number of bytes covered by piece index.
func (j *JobSnapshot) PieceLength(index int) int64 {
	if index == j.NumPieces()-1 {
		return j.LastPieceSize()
	}
	return j.PieceSize
}

// Piece returns the index-addressed window for index using the job's own
// piece size.
func (j *JobSnapshot) Piece(index int) Piece {
	return Piece{Index: index, Size: j.PieceSize}
}

// File looks up a file entry by name.
func (j *JobSnapshot) File(name string) (FileEntry, bool) {
	for _, f := range j.Files {
		if f.Name == name {
			return f, true
		}
	}
	return FileEntry{}, false
}

// FileOffset returns the offset of the named file inside the concatenation.
func (j *JobSnapshot) FileOffset(name string) (int64, error) {
	var offset int64
	for _, f := range j.Files {
		if f.Name == name {
			return offset, nil
		}
		offset += f.Size
	}
	return 0, fmt.Errorf("%w: %q", ErrFileNotFound, name)
}

// Validate checks the snapshot is internally consistent:
// sum(sizes) == pieceSize*(n-1) + last with 0 < last <= pieceSize.
func (j *JobSnapshot) Validate() error {
	if j.PieceSize <= 0 {
		return fmt.Errorf("%w: piece size %d", ErrInvalidSnapshot, j.PieceSize)
	}
	if len(j.States) != len(j.Digests) {
		return fmt.Errorf("%w: %d piece states for %d digests",
			ErrInvalidSnapshot, len(j.States), len(j.Digests))
	}
	n := j.NumPieces()
	if n == 0 {
		if j.TotalSize() != 0 {
			return fmt.Errorf("%w: no pieces for %d bytes", ErrInvalidSnapshot, j.TotalSize())
		}
		return nil
	}
	last := j.LastPieceSize()
	if last <= 0 || last > j.PieceSize {
		return fmt.Errorf("%w: %d bytes do not fit %d pieces of %d",
			ErrInvalidSnapshot, j.TotalSize(), n, j.PieceSize)
	}
	return nil
}

// FileBlock is the half-open byte range [Offset, Offset+Size) inside one file.
type FileBlock struct {
	Offset int64
	Size   int64
}

func (b FileBlock) End() int64 {
	return b.Offset + b.Size
}

// Contains reports whether b fully covers other. Both blocks must refer to
// the same file; that is not checked here.
func (b FileBlock) Contains(other FileBlock) bool {
	return b.Offset <= other.Offset && b.End() >= other.End()
}

// Within returns the part of b that lies inside a file of the given size.
func (b FileBlock) Within(size int64) FileBlock {
	start := max(b.Offset, 0)
	end := min(b.End(), size)
	if end < start {
		end = start
	}
	return FileBlock{Offset: start, Size: end - start}
}
