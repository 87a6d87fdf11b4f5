package cliplugins

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
)

type MergeCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewMergeCommand(app *AppContext) *MergeCommand {
	return &MergeCommand{app: app}
}

func (m *MergeCommand) Meta() *cobra.Command {
	if m.cmd != nil {
		return m.cmd
	}
	m.cmd = &cobra.Command{
		Use:   "merge <hash> <hash> [hash...]",
		Short: "Repair torrents from each other's same-size files",
		Long: "For every pair of the given torrents, in both directions, copies pieces\n" +
			"the destination is missing from a same-size file of the source. Only\n" +
			"bytes matching the destination's piece hash are written.",
		Args: cobra.MinimumNArgs(2),
	}
	m.cmd.Flags().Bool("dry-run", false, "verify recoverable pieces without writing")
	m.cmd.Flags().Bool("recheck", false, "ask qBittorrent to recheck each repaired torrent")
	return m.cmd
}

func (m *MergeCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	const op = "cliplugins.Merge"
	log := m.app.Log.With(slog.String("op", op))

	dryRun := m.app.Config.Repair.DryRun
	if cmd.Flags().Changed("dry-run") {
		dryRun, _ = cmd.Flags().GetBool("dry-run")
	}
	recheck := m.app.Config.Repair.Recheck
	if cmd.Flags().Changed("recheck") {
		recheck, _ = cmd.Flags().GetBool("recheck")
	}

	seen := make(map[string]bool, len(args))
	for _, id := range args {
		if seen[id] {
			return fmt.Errorf("torrent %s given twice", id)
		}
		seen[id] = true
	}

	mg, err := m.app.Merger(ctx, dryRun, recheck)
	if err != nil {
		return fmt.Errorf("failed to set up merger: %w", err)
	}

	log.Info("merging", slog.Any("torrents", args), slog.Bool("dry_run", dryRun))
	reports, err := mg.RepairAll(ctx, args)
	for _, r := range reports {
		PrintReport(cmd.OutOrStdout(), r)
	}
	if err != nil {
		return fmt.Errorf("some pairs failed: %w", err)
	}
	return nil
}
