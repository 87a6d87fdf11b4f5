package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"qbmerge/internal/config"
	cliplugins "qbmerge/internal/cli_plugins"
	"qbmerge/internal/util/logger/handlers/slogpretty"
	"qbmerge/internal/util/logger/sl"
	"qbmerge/pkg/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := cliplugins.NewAppContext(setupLogger)

	c := cli.NewCLI("qbmerge", "Repair qBittorrent torrents from same-size files of other torrents")
	root := c.Root()
	root.PersistentFlags().StringVarP(&app.ConfigPath, "config", "c", "", "path to config file (default $CONFIG_PATH)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "completion" {
			return nil
		}
		return app.Init(cmd.Context())
	}

	c.RegisterPlugin(cliplugins.NewMergeCommand(app))
	c.RegisterPlugin(cliplugins.NewWatchCommand(app))
	c.RegisterPlugin(cliplugins.NewHistoryCommand(app))
	c.RegisterPlugin(cliplugins.NewCorruptCommand())
	c.RegisterPlugin(cliplugins.NewVersionCommand(app))

	err := c.Run(ctx)

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if cerr := app.Close(shutdownCtx); cerr != nil {
		app.Log.Warn("shutdown", sl.Err(cerr))
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error:"), err)
		os.Exit(1)
	}
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case config.EnvLocal:
		if term.IsTerminal(int(os.Stderr.Fd())) {
			log = setupPrettySlog()
		} else {
			log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
		}
	case config.EnvDev:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case config.EnvProd:
		log = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stderr)

	return slog.New(handler)
}
