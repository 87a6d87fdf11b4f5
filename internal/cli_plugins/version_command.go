package cliplugins

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"qbmerge/internal/session/qbittorrent"
)

// Version is set at build time with -ldflags "-X ...cliplugins.Version=".
var Version = "dev"

type VersionCommand struct {
	cmd *cobra.Command
	app *AppContext
}

func NewVersionCommand(app *AppContext) *VersionCommand {
	return &VersionCommand{app: app}
}

func (v *VersionCommand) Meta() *cobra.Command {
	if v.cmd == nil {
		v.cmd = &cobra.Command{
			Use:   "version",
			Short: "Print qbmerge and qBittorrent versions",
			Args:  cobra.NoArgs,
		}
		v.cmd.Flags().BoolP("remote", "r", false, "also query the qBittorrent version")
	}
	return v.cmd
}

func (v *VersionCommand) Execute(ctx context.Context, cmd *cobra.Command, args []string) error {
	fmt.Fprintf(cmd.OutOrStdout(), "qbmerge %s\n", Version)

	remote, _ := cmd.Flags().GetBool("remote")
	if !remote {
		return nil
	}

	session, err := v.app.Session(ctx)
	if err != nil {
		return err
	}
	client, ok := session.(*qbittorrent.Client)
	if !ok {
		return fmt.Errorf("session does not report a version")
	}
	version, err := client.Version(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "qBittorrent %s\n", version)
	return nil
}
