package merger

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"qbmerge/internal/torrent"
)

// Outcome is what happened to one missing piece.
type Outcome int

const (
	OutcomeRestored Outcome = iota
	OutcomeVerified
	OutcomeUnavailable
	OutcomeOutsideBlock
	OutcomeDigestMismatch
	OutcomeNoEquivalent
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRestored:
		return "restored"
	case OutcomeVerified:
		return "verified"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeOutsideBlock:
		return "outside-block"
	case OutcomeDigestMismatch:
		return "digest-mismatch"
	case OutcomeNoEquivalent:
		return "no-equivalent"
	default:
		return "failed"
	}
}

// classify maps a per-piece error onto the category it is counted under.
func classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeRestored
	case errors.Is(err, ErrSourceUnavailable):
		return OutcomeUnavailable
	case errors.Is(err, ErrContainmentViolation),
		errors.Is(err, torrent.ErrOffsetBeyondFile),
		errors.Is(err, torrent.ErrAddressOutOfRange):
		return OutcomeOutsideBlock
	case errors.Is(err, ErrDigestMismatch):
		return OutcomeDigestMismatch
	case errors.Is(err, ErrNoEquivalentFile),
		errors.Is(err, torrent.ErrFileNotFound):
		return OutcomeNoEquivalent
	default:
		return OutcomeFailed
	}
}

type Counts struct {
	Attempted      int
	Restored       int
	Verified       int
	Unavailable    int
	OutsideBlock   int
	DigestMismatch int
	NoEquivalent   int
	Failed         int
}

func (c *Counts) Record(o Outcome) {
	c.Attempted++
	switch o {
	case OutcomeRestored:
		c.Restored++
	case OutcomeVerified:
		c.Verified++
	case OutcomeUnavailable:
		c.Unavailable++
	case OutcomeOutsideBlock:
		c.OutsideBlock++
	case OutcomeDigestMismatch:
		c.DigestMismatch++
	case OutcomeNoEquivalent:
		c.NoEquivalent++
	default:
		c.Failed++
	}
}

func (c *Counts) Add(other Counts) {
	c.Attempted += other.Attempted
	c.Restored += other.Restored
	c.Verified += other.Verified
	c.Unavailable += other.Unavailable
	c.OutsideBlock += other.OutsideBlock
	c.DigestMismatch += other.DigestMismatch
	c.NoEquivalent += other.NoEquivalent
	c.Failed += other.Failed
}

// Accounted reports whether every attempted piece landed in one category.
func (c Counts) Accounted() bool {
	return c.Attempted == c.Restored+c.Verified+c.Unavailable+c.OutsideBlock+
		c.DigestMismatch+c.NoEquivalent+c.Failed
}

// FileReport covers one destination file.
type FileReport struct {
	Destination string
	Sources     []string
	Missing     int
	Counts
}

// Report is the summary of one repair run from a source job into a
// destination job.
type Report struct {
	RunID         string
	SourceID      string
	DestinationID string
	StartedAt     time.Time
	FinishedAt    time.Time
	DryRun        bool
	Counts
	Files     []FileReport
	Ambiguous []int64

	// RecheckRequired is set whenever bytes were written: the destination
	// must be re-verified against its full piece-hash set before it is
	// trusted.
	RecheckRequired  bool
	RecheckRequested bool
}

func newReport(srcID, dstID string, dryRun bool) *Report {
	return &Report{
		RunID:         uuid.New().String(),
		SourceID:      srcID,
		DestinationID: dstID,
		StartedAt:     time.Now(),
		DryRun:        dryRun,
	}
}

func (r *Report) addFile(fr FileReport) {
	r.Files = append(r.Files, fr)
	r.Counts.Add(fr.Counts)
}

func (r *Report) finish() {
	r.FinishedAt = time.Now()
	r.RecheckRequired = r.Restored > 0
}

func (r *Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
