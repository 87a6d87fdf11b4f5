package merger

import (
	"context"
	"fmt"

	"qbmerge/internal/torrent"
)

// LoadSnapshot fetches everything the engine needs about one job. Any
// session error is returned as is; nothing is defaulted.
func LoadSnapshot(ctx context.Context, s Session, id string) (*torrent.JobSnapshot, error) {
	props, err := s.Properties(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get properties of %s: %w", id, err)
	}
	files, err := s.Contents(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", id, err)
	}
	digests, err := s.PieceDigests(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get piece digests of %s: %w", id, err)
	}
	states, err := s.PieceStates(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get piece states of %s: %w", id, err)
	}

	if props.PiecesNum != len(digests) {
		return nil, fmt.Errorf("%w: %s reports %d pieces but %d digests",
			torrent.ErrInvalidSnapshot, id, props.PiecesNum, len(digests))
	}

	job := &torrent.JobSnapshot{
		ID:          id,
		Name:        props.Name,
		Files:       files,
		PieceSize:   props.PieceSize,
		Digests:     digests,
		States:      states,
		PiecesHave:  props.PiecesHave,
		SavePath:    props.SavePath,
		StagingPath: props.StagingPath,
	}
	if err := job.Validate(); err != nil {
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	return job, nil
}
