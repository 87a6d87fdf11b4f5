package cliplugins

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

type HistoryCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewHistoryCommand(app *AppContext) *HistoryCommand {
	return &HistoryCommand{app: app}
}

func (h *HistoryCommand) Meta() *cobra.Command {
	if h.cmd != nil {
		return h.cmd
	}
	h.cmd = &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past repair runs",
		Args:  cobra.MaximumNArgs(1),
	}
	h.cmd.Flags().IntP("limit", "n", 10, "number of runs to list, 0 for all")
	h.cmd.Flags().String("delete", "", "remove the run with this id from the ledger")
	return h.cmd
}

func (h *HistoryCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	ledger, err := h.app.Ledger()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if id, _ := cmd.Flags().GetString("delete"); id != "" {
		if err := ledger.DeleteReport(id); err != nil {
			return fmt.Errorf("failed to delete %s: %w", id, err)
		}
		fmt.Fprintf(out, "deleted %s\n", id)
		return nil
	}

	if len(args) == 1 {
		r, err := ledger.GetReport(args[0])
		if err != nil {
			return err
		}
		PrintReport(out, r)
		return nil
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("flag --limit failed: %w", err)
	}
	reports, err := ledger.ListReports(limit)
	if err != nil {
		return err
	}
	if len(reports) == 0 {
		fmt.Fprintln(out, "no runs recorded")
		return nil
	}
	for _, r := range reports {
		fmt.Fprintf(out, "%s  %s  %s -> %s  %d/%d restored\n",
			r.RunID, r.StartedAt.Format("2006-01-02 15:04:05"),
			r.SourceID, r.DestinationID, r.Restored+r.Verified, r.Attempted)
	}
	return nil
}
