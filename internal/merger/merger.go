package merger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"qbmerge/internal/storage"
	"qbmerge/internal/torrent"
	"qbmerge/internal/torrent/hasher"
	"qbmerge/internal/util/logger/sl"
)

const tracerName = "qbmerge/internal/merger"

// Merger copies verified pieces from a source job into the matching files
// of a destination job. Runs are sequential: one missing piece is fully
// handled before the next one starts.
type Merger struct {
	session  Session
	storage  Storage
	verifier Verifier
	store    ReportStore
	log      *slog.Logger
	tracer   trace.Tracer
	dryRun   bool
	recheck  bool
}

type Config struct {
	Session  Session
	Storage  Storage
	Verifier Verifier
	Store    ReportStore
	Logger   *slog.Logger
	DryRun   bool
	Recheck  bool
}

func New(cfg Config) *Merger {
	if cfg.Storage == nil {
		cfg.Storage = storage.NewDisk()
	}
	if cfg.Verifier == nil {
		cfg.Verifier = hasher.NewPieceHasher()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}

	return &Merger{
		session:  cfg.Session,
		storage:  cfg.Storage,
		verifier: cfg.Verifier,
		store:    cfg.Store,
		log:      cfg.Logger,
		tracer:   otel.Tracer(tracerName),
		dryRun:   cfg.DryRun,
		recheck:  cfg.Recheck,
	}
}

// Repair fetches both jobs from the session, pauses the destination and
// restores whatever it can from the source.
func (m *Merger) Repair(ctx context.Context, srcID, dstID string) (*Report, error) {
	const op = "merger.Repair"
	log := m.log.With(slog.String("op", op), slog.String("src", srcID), slog.String("dst", dstID))

	if srcID == dstID {
		return nil, fmt.Errorf("%s: %w", op, ErrSameJob)
	}

	ctx, span := m.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("src", srcID),
		attribute.String("dst", dstID),
		attribute.Bool("dry_run", m.dryRun),
	))
	defer span.End()

	src, err := LoadSnapshot(ctx, m.session, srcID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load source")
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	dst, err := LoadSnapshot(ctx, m.session, dstID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load destination")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := m.checkRoots(src, dst); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "check roots")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if !m.dryRun {
		if err := m.session.Pause(ctx, dstID); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("%s: failed to pause %s: %w", op, dstID, err)
		}
		log.Debug("destination paused")
	}

	report, err := m.RepairSnapshots(ctx, src, dst)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "repair")
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if m.recheck && report.Restored > 0 {
		if rc, ok := m.session.(Rechecker); ok {
			if err := rc.Recheck(ctx, dstID); err != nil {
				log.Warn("recheck request failed", sl.Err(err))
			} else {
				report.RecheckRequested = true
				log.Info("recheck requested")
			}
		}
	}

	if m.store != nil {
		if err := m.store.SaveReport(report); err != nil {
			log.Warn("failed to save report", sl.Err(err))
		}
	}

	span.SetAttributes(
		attribute.Int("attempted", report.Attempted),
		attribute.Int("restored", report.Restored),
	)
	return report, nil
}

// RepairAll runs Repair for every pair of ids in both directions. A failing
// pair does not stop the others; the errors are joined.
func (m *Merger) RepairAll(ctx context.Context, ids []string) ([]*Report, error) {
	var (
		reports []*Report
		errs    []error
	)
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			for _, pair := range [][2]string{{ids[i], ids[j]}, {ids[j], ids[i]}} {
				if err := ctx.Err(); err != nil {
					return reports, errors.Join(append(errs, err)...)
				}
				report, err := m.Repair(ctx, pair[0], pair[1])
				if err != nil {
					errs = append(errs, err)
					continue
				}
				reports = append(reports, report)
			}
		}
	}
	return reports, errors.Join(errs...)
}

func (m *Merger) checkRoots(src, dst *torrent.JobSnapshot) error {
	if err := m.storage.CheckRoot(src); err != nil {
		return fmt.Errorf("%w: source: %w", ErrIOFailure, err)
	}
	if err := m.storage.CheckRoot(dst); err != nil {
		return fmt.Errorf("%w: destination: %w", ErrIOFailure, err)
	}
	return nil
}

// RepairSnapshots is the repair loop proper. Only a storage root that cannot
// be used fails the run; every per-piece problem is counted and skipped.
func (m *Merger) RepairSnapshots(ctx context.Context, src, dst *torrent.JobSnapshot) (*Report, error) {
	const op = "merger.RepairSnapshots"
	log := m.log.With(slog.String("op", op), slog.String("src", src.ID), slog.String("dst", dst.ID))

	if err := m.checkRoots(src, dst); err != nil {
		return nil, err
	}

	report := newReport(src.ID, dst.ID, m.dryRun)

	log.Debug("source layout", slog.Int64("piece_size", src.PieceSize), slog.Any("files", src.Files))
	log.Debug("destination layout", slog.Int64("piece_size", dst.PieceSize), slog.Any("files", dst.Files))

	pairs := torrent.FindSameSizeFiles(src, dst)
	log.Info("same size files", slog.Int("pairs", len(pairs)))
	for _, p := range pairs {
		if p.Ambiguous() {
			report.Ambiguous = append(report.Ambiguous, p.Size)
			log.Warn("several files share one size, trying candidates in order",
				slog.Int64("size", p.Size),
				slog.Any("source", p.A),
				slog.Any("destination", p.B),
			)
		}
	}

	attempted := make(map[int]bool)
	for _, p := range pairs {
		for _, name := range p.B {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			report.addFile(m.repairFile(ctx, src, dst, pairs, name, attempted))
		}
	}

	report.finish()
	log.Info("repair finished",
		slog.String("run_id", report.RunID),
		slog.Int("restored", report.Restored),
		slog.Int("verified", report.Verified),
		slog.Int("unavailable", report.Unavailable),
		slog.Int("outside_block", report.OutsideBlock),
		slog.Int("digest_mismatch", report.DigestMismatch),
		slog.Int("failed", report.Failed),
	)
	if report.RecheckRequired {
		log.Info("destination must be rechecked before it is trusted")
	}
	return report, nil
}

func (m *Merger) repairFile(
	ctx context.Context,
	src, dst *torrent.JobSnapshot,
	pairs torrent.Equivalence,
	name string,
	attempted map[int]bool,
) FileReport {
	const op = "merger.repairFile"
	log := m.log.With(slog.String("op", op), slog.String("file", name))

	_, span := m.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("file", name)))
	defer span.End()

	fr := FileReport{Destination: name}
	fr.Sources, _ = pairs.SourcesFor(name)

	missing, err := torrent.MissingPieces(dst, name)
	if err != nil {
		log.Error("failed to list missing pieces", sl.Err(err))
		return fr
	}
	fr.Missing = len(missing)
	log.Debug("missing pieces", slog.Int("count", len(missing)))

	for _, idx := range missing {
		if attempted[idx] {
			continue
		}
		attempted[idx] = true

		outcome, err := m.repairPiece(src, dst, pairs, idx)
		fr.Record(outcome)

		switch outcome {
		case OutcomeRestored, OutcomeVerified:
			log.Debug("piece recovered", slog.Int("piece", idx), slog.String("outcome", outcome.String()))
		case OutcomeDigestMismatch, OutcomeFailed:
			log.Warn("piece skipped", slog.Int("piece", idx), slog.String("outcome", outcome.String()), sl.Err(err))
		default:
			log.Debug("piece skipped", slog.Int("piece", idx), slog.String("outcome", outcome.String()), sl.Err(err))
		}
	}

	span.SetAttributes(
		attribute.Int("missing", fr.Missing),
		attribute.Int("restored", fr.Restored),
	)
	return fr
}

// repairPiece runs one missing destination piece through mapping,
// availability, containment and digest checks, writing only verified bytes.
func (m *Merger) repairPiece(src, dst *torrent.JobSnapshot, pairs torrent.Equivalence, idx int) (Outcome, error) {
	target := dst.Piece(idx)
	name, block, err := torrent.PieceToFileBlock(dst, target)
	if err != nil {
		return classify(err), err
	}
	if f, _ := dst.File(name); block.End() > f.Size {
		err := fmt.Errorf("%w: piece %d runs past the end of %q", ErrContainmentViolation, idx, name)
		return classify(err), err
	}

	sources, err := pairs.SourcesFor(name)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrNoEquivalentFile, err)
		return classify(err), err
	}

	var (
		data     []byte
		firstErr error
	)
	for _, source := range sources {
		data, err = m.recoverBlock(src, source, block, dst.Digests[idx])
		if err == nil {
			break
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	if data == nil {
		return classify(firstErr), firstErr
	}

	if m.dryRun {
		return OutcomeVerified, nil
	}
	if err := m.storage.Write(dst, name, block, data); err != nil {
		err = fmt.Errorf("%w: %w", ErrIOFailure, err)
		return OutcomeFailed, err
	}
	return OutcomeRestored, nil
}

// recoverBlock reads the bytes of block from the named source file and returns
// them only if they hash to expected.
func (m *Merger) recoverBlock(src *torrent.JobSnapshot, name string, block torrent.FileBlock, expected torrent.Digest) ([]byte, error) {
	pieces, err := torrent.FileBlockToPieces(src, name, block)
	if err != nil {
		return nil, err
	}
	if len(pieces) == 0 {
		return nil, fmt.Errorf("%w: no source pieces cover %+v", ErrContainmentViolation, block)
	}
	if p, ok := torrent.AllDownloaded(src, pieces); !ok {
		return nil, fmt.Errorf("%w: piece %d of %s", ErrSourceUnavailable, p.Index, src.ID)
	}

	window := torrent.MergeConsecutive(pieces)
	windowFile, windowBlock, err := torrent.PieceToFileBlock(src, window)
	if err != nil {
		return nil, err
	}
	windowBlock, err = torrent.Rebase(src, windowFile, name, windowBlock)
	if err != nil {
		return nil, err
	}
	if !windowBlock.Contains(block) {
		return nil, fmt.Errorf("%w: window %+v, block %+v", ErrContainmentViolation, windowBlock, block)
	}

	f, _ := src.File(name)
	readBlock := windowBlock.Within(f.Size)
	raw, err := m.storage.Read(src, name, readBlock)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIOFailure, err)
	}

	rel := block.Offset - readBlock.Offset
	data := raw[rel : rel+block.Size]

	ok, err := m.verifier.Verify(expected, data)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: piece data from %q at %d", ErrDigestMismatch, name, block.Offset)
	}
	return data, nil
}
