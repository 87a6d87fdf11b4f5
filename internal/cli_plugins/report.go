package cliplugins

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"qbmerge/internal/merger"
)

var (
	good = color.New(color.FgGreen).SprintFunc()
	warn = color.New(color.FgYellow).SprintFunc()
	bad  = color.New(color.FgRed).SprintFunc()
	dim  = color.New(color.Faint).SprintFunc()
)

// PrintReport writes a human readable summary of r.
func PrintReport(w io.Writer, r *merger.Report) {
	mode := ""
	if r.DryRun {
		mode = warn(" (dry run)")
	}
	fmt.Fprintf(w, "%s %s -> %s%s\n", dim(r.RunID), r.SourceID, r.DestinationID, mode)

	for _, f := range r.Files {
		fmt.Fprintf(w, "  %s <- %s: %d missing, %s\n",
			f.Destination, strings.Join(f.Sources, " | "), f.Missing, countsLine(f.Counts))
	}

	fmt.Fprintf(w, "  total: %d attempted, %s in %s\n", r.Attempted, countsLine(r.Counts), r.Duration().Round(time.Millisecond))

	if len(r.Ambiguous) > 0 {
		fmt.Fprintf(w, "  %s several files share sizes %v\n", warn("ambiguous:"), r.Ambiguous)
	}
	switch {
	case r.RecheckRequested:
		fmt.Fprintf(w, "  %s\n", good("recheck requested"))
	case r.RecheckRequired:
		fmt.Fprintf(w, "  %s\n", warn("recheck the destination before trusting it"))
	}
}

func countsLine(c merger.Counts) string {
	parts := []string{good(fmt.Sprintf("%d restored", c.Restored))}
	if c.Verified > 0 {
		parts = append(parts, good(fmt.Sprintf("%d verified", c.Verified)))
	}
	if c.Unavailable > 0 {
		parts = append(parts, warn(fmt.Sprintf("%d unavailable", c.Unavailable)))
	}
	if c.OutsideBlock > 0 {
		parts = append(parts, warn(fmt.Sprintf("%d outside block", c.OutsideBlock)))
	}
	if c.NoEquivalent > 0 {
		parts = append(parts, warn(fmt.Sprintf("%d no equivalent", c.NoEquivalent)))
	}
	if c.DigestMismatch > 0 {
		parts = append(parts, bad(fmt.Sprintf("%d digest mismatch", c.DigestMismatch)))
	}
	if c.Failed > 0 {
		parts = append(parts, bad(fmt.Sprintf("%d failed", c.Failed)))
	}
	return strings.Join(parts, ", ")
}
