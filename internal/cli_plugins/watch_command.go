package cliplugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"qbmerge/internal/merger"
	"qbmerge/internal/torrent"
	"qbmerge/internal/util/logger/sl"
	"qbmerge/internal/watcher"
)

// WatchCommand repairs a destination again whenever the files of its source
// change on disk and the source has gained pieces since the last run.
type WatchCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewWatchCommand(app *AppContext) *WatchCommand {
	return &WatchCommand{app: app}
}

func (w *WatchCommand) Meta() *cobra.Command {
	if w.cmd != nil {
		return w.cmd
	}
	w.cmd = &cobra.Command{
		Use:   "watch <source-hash> <destination-hash>",
		Short: "Repair a torrent each time its source receives new data",
		Args:  cobra.ExactArgs(2),
	}
	w.cmd.Flags().Duration("debounce", 0, "quiet period before a repair starts (default from config)")
	return w.cmd
}

// sourceTracker remembers how many pieces the source had at the last run.
type sourceTracker struct {
	mu   sync.Mutex
	have int
	ran  bool
}

func (t *sourceTracker) changed(have int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ran && have == t.have {
		return false
	}
	t.ran = true
	t.have = have
	return true
}

// watchRoots adds the staging and save directories of the source that exist
// and are not watched yet.
func watchRoots(fw *watcher.FileWatcher, log *slog.Logger, props torrent.Properties) {
	for _, root := range []string{props.StagingPath, props.SavePath} {
		if root == "" {
			continue
		}
		err := fw.Watch(root)
		if err != nil && !errors.Is(err, watcher.ErrPathAlreadyWatched) {
			log.Debug("cannot watch directory", slog.String("root", root), sl.Err(err))
		}
	}
}

func (w *WatchCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.Watch"
	src, dst := args[0], args[1]
	log := w.app.Log.With(slog.String("op", op), slog.String("src", src), slog.String("dst", dst))

	if src == dst {
		return merger.ErrSameJob
	}

	session, err := w.app.Session(ctx)
	if err != nil {
		return err
	}
	mg, err := w.app.Merger(ctx, w.app.Config.Repair.DryRun, w.app.Config.Repair.Recheck)
	if err != nil {
		return err
	}

	if _, err := session.Properties(ctx, src); err != nil {
		return fmt.Errorf("failed to get properties of %s: %w", src, err)
	}

	debounce := w.app.Config.Watch.Debounce
	if d, _ := cmd.Flags().GetDuration("debounce"); d > 0 {
		debounce = d
	}

	var fw *watcher.FileWatcher
	tracker := &sourceTracker{}
	// the initial run happens outside the watcher, so runs are serialized
	// here as well
	var running sync.Mutex
	repair := func(ctx context.Context, root string) error {
		running.Lock()
		defer running.Unlock()

		props, err := session.Properties(ctx, src)
		if err != nil {
			return fmt.Errorf("failed to get properties of %s: %w", src, err)
		}
		// the files move to the save path once the source completes
		watchRoots(fw, log, props)

		if !tracker.changed(props.PiecesHave) {
			log.Debug("source unchanged, skipping", slog.Int("pieces_have", props.PiecesHave))
			return nil
		}

		report, err := mg.Repair(ctx, src, dst)
		if err != nil {
			return err
		}
		PrintReport(cmd.OutOrStdout(), report)
		return nil
	}

	fw, err = watcher.NewFileWatcher(watcher.TriggerFunc(repair), watcher.Config{
		DebounceDuration: debounce,
		IgnorePatterns:   w.app.Config.Watch.IgnorePatterns,
		Logger:           w.app.Log,
	})
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	if err := repair(ctx, ""); err != nil {
		log.Error("initial repair failed", sl.Err(err))
	}
	if len(fw.Roots()) == 0 {
		fw.Close()
		return fmt.Errorf("%w: no directory of %s can be watched", watcher.ErrInvalidPath, src)
	}
	log.Info("watching source", slog.Any("roots", fw.Roots()))

	for {
		select {
		case <-ctx.Done():
			log.Info("stopping", slog.Any("stats", fw.Metrics().GetStats()))
			if err := fw.Close(); err != nil {
				return err
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case err, ok := <-fw.Errors():
			if !ok {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				continue
			}
			log.Error("repair failed", sl.Err(err))
		}
	}
}
