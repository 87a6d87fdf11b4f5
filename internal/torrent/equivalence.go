package torrent

import "fmt"

// EquivalencePair groups the files of two jobs that share one exact size.
// Names keep the order of their job's file list.
type EquivalencePair struct {
	Size int64
	A    []string
	B    []string
}

// Ambiguous reports whether either side has more than one candidate.
func (p EquivalencePair) Ambiguous() bool {
	return len(p.A) > 1 || len(p.B) > 1
}

// Equivalence is the ordered set of pairs found between two jobs.
type Equivalence []EquivalencePair

// FindSameSizeFiles pairs every size present in both jobs with the full list
// of names carrying it on each side. Pairs are ordered by the first
// appearance of their size in a's file list, so the result is stable for a
// given pair of jobs.
func FindSameSizeFiles(a, b *JobSnapshot) Equivalence {
	bySizeB := make(map[int64][]string)
	for _, f := range b.Files {
		bySizeB[f.Size] = append(bySizeB[f.Size], f.Name)
	}

	var (
		order   []int64
		bySizeA = make(map[int64][]string)
	)
	for _, f := range a.Files {
		if _, ok := bySizeB[f.Size]; !ok {
			continue
		}
		if _, seen := bySizeA[f.Size]; !seen {
			order = append(order, f.Size)
		}
		bySizeA[f.Size] = append(bySizeA[f.Size], f.Name)
	}

	pairs := make(Equivalence, 0, len(order))
	for _, size := range order {
		pairs = append(pairs, EquivalencePair{
			Size: size,
			A:    bySizeA[size],
			B:    bySizeB[size],
		})
	}
	return pairs
}

// Candidates returns every name on the other side of the pair holding name.
func (e Equivalence) Candidates(name string) ([]string, error) {
	for _, p := range e {
		if contains(p.A, name) {
			return p.B, nil
		}
		if contains(p.B, name) {
			return p.A, nil
		}
	}
	return nil, fmt.Errorf("%w: %q has no same-size counterpart", ErrFileNotFound, name)
}

// SourcesFor returns the names in the first job that may hold the content
// of nameB from the second job. Unlike Candidates it never matches a name on
// the wrong side when both jobs use the same file names.
func (e Equivalence) SourcesFor(nameB string) ([]string, error) {
	for _, p := range e {
		if contains(p.B, nameB) {
			return p.A, nil
		}
	}
	return nil, fmt.Errorf("%w: %q has no same-size counterpart", ErrFileNotFound, nameB)
}

// ConvertFilename returns the first-listed counterpart of name.
func (e Equivalence) ConvertFilename(name string) (string, error) {
	candidates, err := e.Candidates(name)
	if err != nil {
		return "", err
	}
	return candidates[0], nil
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
