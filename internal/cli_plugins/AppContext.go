package cliplugins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"qbmerge/internal/config"
	"qbmerge/internal/db"
	"qbmerge/internal/merger"
	"qbmerge/internal/session/qbittorrent"
	"qbmerge/internal/tracing"
	"qbmerge/internal/util/logger/handlers/slogdiscard"
	"qbmerge/internal/util/logger/sl"
)

// AppContext holds what the commands share. Everything past the config is
// created on first use, so a command only pays for what it touches.
type AppContext struct {
	ConfigPath string
	Config     *config.Config
	Log        *slog.Logger
	Out        io.Writer

	newLogger       func(env string) *slog.Logger
	shutdownTracing tracing.ShutdownFunc
	session         merger.Session
	ledger          *db.ReportDB
}

func NewAppContext(newLogger func(env string) *slog.Logger) *AppContext {
	return &AppContext{
		Log:       slogdiscard.NewDiscardLogger(),
		Out:       os.Stdout,
		newLogger: newLogger,
	}
}

// Init loads the config and sets up logging and tracing.
func (a *AppContext) Init(ctx context.Context) error {
	cfg, err := config.Load(config.Path(a.ConfigPath))
	if err != nil {
		return err
	}
	a.Config = cfg

	if a.newLogger != nil {
		a.Log = a.newLogger(cfg.Env)
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing.Enabled, cfg.Tracing.ServiceName, cfg.Tracing.Endpoint, Version, a.Log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	a.shutdownTracing = shutdown
	return nil
}

// Session returns the logged-in qBittorrent client.
func (a *AppContext) Session(ctx context.Context) (merger.Session, error) {
	if a.session != nil {
		return a.session, nil
	}

	client, err := qbittorrent.New(qbittorrent.Config{
		URL:      a.Config.QBittorrent.URL,
		Username: a.Config.QBittorrent.Username,
		Password: a.Config.QBittorrent.Password,
		Timeout:  a.Config.QBittorrent.Timeout,
		Logger:   a.Log,
	})
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx); err != nil {
		return nil, err
	}

	a.session = client
	return client, nil
}

// SetSession replaces the session, for callers bringing their own client.
func (a *AppContext) SetSession(s merger.Session) {
	a.session = s
}

func (a *AppContext) Ledger() (*db.ReportDB, error) {
	if a.ledger != nil {
		return a.ledger, nil
	}

	ledger, err := db.NewReportDB(db.Config{Path: a.Config.Ledger.Path})
	if err != nil {
		return nil, err
	}
	a.ledger = ledger
	return ledger, nil
}

// Merger wires a merger over the session and the ledger. A ledger that cannot
// be opened only disables report persistence.
func (a *AppContext) Merger(ctx context.Context, dryRun, recheck bool) (*merger.Merger, error) {
	session, err := a.Session(ctx)
	if err != nil {
		return nil, err
	}

	cfg := merger.Config{
		Session: session,
		Logger:  a.Log,
		DryRun:  dryRun,
		Recheck: recheck,
	}
	if ledger, err := a.Ledger(); err != nil {
		a.Log.Warn("ledger unavailable, reports will not be kept", sl.Err(err))
	} else {
		cfg.Store = ledger
	}

	return merger.New(cfg), nil
}

func (a *AppContext) Close(ctx context.Context) error {
	var errs []error
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
		}
		a.ledger = nil
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			errs = append(errs, fmt.Errorf("failed to shut down tracer: %w", err))
		}
		a.shutdownTracing = nil
	}
	return errors.Join(errs...)
}
