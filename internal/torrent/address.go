package torrent

import "fmt"

// Window is a byte window over the concatenation of a job's files. It is
// either index-addressed (Piece) or offset-addressed (VirtualPiece).
type Window interface {
	start() int64
	length() int64
}

// Piece is a real piece: window Index*Size .. (Index+1)*Size of the job
// whose piece size is Size.
type Piece struct {
	Index int
	Size  int64
}

func (p Piece) start() int64  { return int64(p.Index) * p.Size }
func (p Piece) length() int64 { return p.Size }

// VirtualPiece is a window that does not line up with a single piece index.
// It has no digest of its own.
type VirtualPiece struct {
	Offset int64
	Size   int64
}

func (v VirtualPiece) start() int64  { return v.Offset }
func (v VirtualPiece) length() int64 { return v.Size }

// PieceToFileBlock resolves w to the file it starts in and the block it
// covers, relative to that file. The block length is the window length
// trimmed to the end of the job, so the final, shorter piece is addressed
// by its real size. The block may extend past the end of the file when the
// window straddles a file boundary.
func PieceToFileBlock(job *JobSnapshot, w Window) (string, FileBlock, error) {
	start, size := w.start(), w.length()
	if start < 0 {
		return "", FileBlock{}, fmt.Errorf("%w: window starts at %d", ErrAddressOutOfRange, start)
	}
	if total := job.TotalSize(); start+size > total {
		size = total - start
	}

	offset := start
	for _, f := range job.Files {
		if offset < f.Size {
			return f.Name, FileBlock{Offset: offset, Size: size}, nil
		}
		offset -= f.Size
	}

	return "", FileBlock{}, fmt.Errorf("%w: window at %d beyond %d bytes",
		ErrAddressOutOfRange, start, job.TotalSize())
}

// FileBlockToPieces returns, in order, every piece of job overlapping block
// inside the named file.
func FileBlockToPieces(job *JobSnapshot, name string, block FileBlock) ([]Piece, error) {
	var offset int64
	for _, f := range job.Files {
		if f.Name != name {
			offset += f.Size
			continue
		}
		if block.Offset > f.Size {
			return nil, fmt.Errorf("%w: offset %d in %q of %d bytes",
				ErrOffsetBeyondFile, block.Offset, name, f.Size)
		}

		begin := offset + block.Offset
		startIdx := begin / job.PieceSize
		endIdx := ceilDiv(begin+block.Size, job.PieceSize)

		pieces := make([]Piece, 0, endIdx-startIdx)
		for idx := startIdx; idx < endIdx; idx++ {
			pieces = append(pieces, Piece{Index: int(idx), Size: job.PieceSize})
		}
		return pieces, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
}

// Rebase expresses block, given relative to file from, relative to file to
// of the same job. The result may start before offset zero or end past the
// file when the block does not lie inside to.
func Rebase(job *JobSnapshot, from, to string, block FileBlock) (FileBlock, error) {
	if from == to {
		return block, nil
	}
	fromOffset, err := job.FileOffset(from)
	if err != nil {
		return FileBlock{}, err
	}
	toOffset, err := job.FileOffset(to)
	if err != nil {
		return FileBlock{}, err
	}
	return FileBlock{Offset: block.Offset + fromOffset - toOffset, Size: block.Size}, nil
}

// MissingPieces lists, ascending, the pieces overlapping the named file that
// the job does not have.
func MissingPieces(job *JobSnapshot, name string) ([]int, error) {
	f, ok := job.File(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFileNotFound, name)
	}
	pieces, err := FileBlockToPieces(job, name, FileBlock{Offset: 0, Size: f.Size})
	if err != nil {
		return nil, err
	}

	var missing []int
	for _, p := range pieces {
		if p.Index >= len(job.States) {
			break
		}
		if job.States[p.Index] != PieceDownloaded {
			missing = append(missing, p.Index)
		}
	}
	return missing, nil
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
