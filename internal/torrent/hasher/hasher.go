package hasher

import (
	"bytes"
	"crypto/sha1"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"

	"qbmerge/internal/torrent"
)

var ErrUnsupportedDigest = errors.New("unsupported digest width")

// PieceHasher computes piece digests with the algorithm implied by the width
// of the digest the job already carries: SHA-1 for v1 torrents, SHA-256 for
// v2 piece layers.
type PieceHasher struct{}

func NewPieceHasher() *PieceHasher {
	return &PieceHasher{}
}

func (h *PieceHasher) newHash(width int) (hash.Hash, error) {
	switch width {
	case torrent.SHA1Size:
		return sha1.New(), nil
	case torrent.SHA256Size:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("%w: %d bytes", ErrUnsupportedDigest, width)
	}
}

// Sum hashes data with the algorithm of a digest of the given width.
func (h *PieceHasher) Sum(width int, data []byte) (torrent.Digest, error) {
	hs, err := h.newHash(width)
	if err != nil {
		return nil, err
	}
	hs.Write(data)
	return hs.Sum(nil), nil
}

// Verify reports whether data hashes to expected.
func (h *PieceHasher) Verify(expected torrent.Digest, data []byte) (bool, error) {
	sum, err := h.Sum(len(expected), data)
	if err != nil {
		return false, err
	}
	return bytes.Equal(sum, expected), nil
}
