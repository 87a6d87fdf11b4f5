package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"qbmerge/internal/torrent"
)

const DefaultPermissions = 0644

// Disk resolves job file names against the job's storage root and performs
// scoped byte-range I/O. Handles never outlive a single call.
type Disk struct {
	mu sync.Mutex
}

func NewDisk() *Disk {
	return &Disk{}
}

// Resolve maps a file name of job to its path: the save path once the job
// has every piece, the staging path otherwise.
func (d *Disk) Resolve(job *torrent.JobSnapshot, name string) (string, error) {
	root := job.Root()
	if root == "" {
		return "", fmt.Errorf("%w: job %s has no storage root", ErrRootNotFound, job.ID)
	}
	clean := filepath.Clean(filepath.FromSlash(name))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, name)
	}
	return filepath.Join(root, clean), nil
}

// CheckRoot fails when the root the job resolves against is not a directory.
func (d *Disk) CheckRoot(job *torrent.JobSnapshot) error {
	root := job.Root()
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: job %s: %v", ErrRootNotFound, job.ID, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: job %s: %s is not a directory", ErrRootNotFound, job.ID, root)
	}
	return nil
}

// Read returns the bytes of block from the named file of job. It refuses to
// read when the file on disk is longer than the job says or too short to hold
// the block.
func (d *Disk) Read(job *torrent.JobSnapshot, name string, block torrent.FileBlock) ([]byte, error) {
	entry, ok := job.File(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", torrent.ErrFileNotFound, name)
	}
	path, err := d.Resolve(job, name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.Size() > entry.Size || info.Size() < block.End() {
		return nil, fmt.Errorf("%w: %s is %d bytes, job expects %d, block ends at %d",
			ErrLengthMismatch, path, info.Size(), entry.Size, block.End())
	}

	buf := make([]byte, block.Size)
	n, err := file.ReadAt(buf, block.Offset)
	if n < len(buf) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read block at %d: %w", block.Offset, err)
	}
	return buf, nil
}

// Write stores data at block.Offset of the named file of job and syncs it to
// stable storage before returning. The file must already exist.
func (d *Disk) Write(job *torrent.JobSnapshot, name string, block torrent.FileBlock, data []byte) error {
	if int64(len(data)) != block.Size {
		return fmt.Errorf("%w: %d bytes for a block of %d", ErrLengthMismatch, len(data), block.Size)
	}
	path, err := d.Resolve(job, name)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	return writeAt(path, block.Offset, data)
}

// ZeroFill overwrites size bytes at offset of path with zeros.
func ZeroFill(path string, offset, size int64) error {
	if offset < 0 || size < 0 {
		return fmt.Errorf("%w: offset %d size %d", ErrLengthMismatch, offset, size)
	}
	return writeAt(path, offset, make([]byte, size))
}

func writeAt(path string, offset int64, data []byte) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY, DefaultPermissions)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	if _, err := file.WriteAt(data, offset); err != nil {
		return fmt.Errorf("failed to write block at %d: %w", offset, err)
	}
	if err := file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}
	return nil
}
