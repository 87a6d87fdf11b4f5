package cliplugins

import (
	"bytes"
	"context"
	"crypto/sha1"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"qbmerge/internal/config"
	"qbmerge/internal/torrent"
	"qbmerge/internal/util/logger/handlers/slogdiscard"
	"qbmerge/internal/watcher"
	"qbmerge/pkg/cli"
)

type fakeSession struct {
	jobs   map[string]*torrent.JobSnapshot
	paused []string
}

func (f *fakeSession) job(id string) (*torrent.JobSnapshot, error) {
	j, ok := f.jobs[id]
	if !ok {
		return nil, os.ErrNotExist
	}
	return j, nil
}

func (f *fakeSession) PieceDigests(_ context.Context, id string) ([]torrent.Digest, error) {
	j, err := f.job(id)
	if err != nil {
		return nil, err
	}
	return j.Digests, nil
}

func (f *fakeSession) PieceStates(_ context.Context, id string) ([]torrent.PieceState, error) {
	j, err := f.job(id)
	if err != nil {
		return nil, err
	}
	return j.States, nil
}

func (f *fakeSession) Properties(_ context.Context, id string) (torrent.Properties, error) {
	j, err := f.job(id)
	if err != nil {
		return torrent.Properties{}, err
	}
	return torrent.Properties{
		Name:        j.Name,
		PieceSize:   j.PieceSize,
		PiecesNum:   len(j.Digests),
		PiecesHave:  j.PiecesHave,
		SavePath:    j.SavePath,
		StagingPath: j.StagingPath,
	}, nil
}

func (f *fakeSession) Contents(_ context.Context, id string) ([]torrent.FileEntry, error) {
	j, err := f.job(id)
	if err != nil {
		return nil, err
	}
	return j.Files, nil
}

func (f *fakeSession) Pause(_ context.Context, id string) error {
	f.paused = append(f.paused, id)
	return nil
}

func newTestApp(t *testing.T) (*AppContext, *bytes.Buffer) {
	t.Helper()
	color.NoColor = true

	app := NewAppContext(nil)
	app.Config = &config.Config{
		Env:    config.EnvLocal,
		Ledger: config.Ledger{Path: filepath.Join(t.TempDir(), "ledger.db")},
	}
	t.Cleanup(func() { app.Close(context.Background()) })

	out := &bytes.Buffer{}
	return app, out
}

func run(t *testing.T, out *bytes.Buffer, args []string, plugins ...cli.CommandPlugin) error {
	t.Helper()
	c := cli.NewCLI("qbmerge", "test")
	for _, p := range plugins {
		c.RegisterPlugin(p)
	}
	c.Root().SetOut(out)
	c.Root().SetErr(out)
	return c.RunArgs(context.Background(), args)
}

// twoJobs returns a complete job "src" and an empty job "dst" over the same
// 32 bytes stored in files of different names.
func twoJobs(t *testing.T) (*fakeSession, string) {
	t.Helper()
	content := []byte("abcdefghijklmnopqrstuvwxyz012345")
	srcRoot, dstRoot := t.TempDir(), t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.bin"), content, 0644))
	dstPath := filepath.Join(dstRoot, "b.bin")
	require.NoError(t, os.WriteFile(dstPath, make([]byte, len(content)), 0644))

	var digests []torrent.Digest
	for off := 0; off < len(content); off += 16 {
		sum := sha1.Sum(content[off : off+16])
		digests = append(digests, sum[:])
	}

	return &fakeSession{jobs: map[string]*torrent.JobSnapshot{
		"src": {
			ID:         "src",
			Files:      []torrent.FileEntry{{Name: "a.bin", Size: 32}},
			PieceSize:  16,
			Digests:    digests,
			States:     []torrent.PieceState{torrent.PieceDownloaded, torrent.PieceDownloaded},
			PiecesHave: 2,
			SavePath:   srcRoot,
		},
		"dst": {
			ID:        "dst",
			Files:     []torrent.FileEntry{{Name: "b.bin", Size: 32}},
			PieceSize: 16,
			Digests:   digests,
			States:    []torrent.PieceState{torrent.PieceNotDownloaded, torrent.PieceDownloading},
			SavePath:  dstRoot,
		},
	}}, dstPath
}

func TestMergeCommand(t *testing.T) {
	app, out := newTestApp(t)
	session, dstPath := twoJobs(t)
	app.SetSession(session)

	err := run(t, out, []string{"merge", "src", "dst"}, NewMergeCommand(app), NewHistoryCommand(app))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "src -> dst")
	assert.Contains(t, out.String(), "2 restored")
	assert.Contains(t, out.String(), "recheck the destination")
	assert.Equal(t, []string{"dst", "src"}, session.paused)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefghijklmnopqrstuvwxyz012345"), got)

	out.Reset()
	require.NoError(t, run(t, out, []string{"history"}, NewMergeCommand(app), NewHistoryCommand(app)))
	assert.Contains(t, out.String(), "src -> dst  2/2 restored")
	assert.Contains(t, out.String(), "dst -> src  0/0 restored")
}

func TestMergeCommand_DryRun(t *testing.T) {
	app, out := newTestApp(t)
	session, dstPath := twoJobs(t)
	app.SetSession(session)

	err := run(t, out, []string{"merge", "--dry-run", "src", "dst"}, NewMergeCommand(app))
	require.NoError(t, err)

	assert.Contains(t, out.String(), "2 verified")
	assert.Contains(t, out.String(), "(dry run)")
	assert.Empty(t, session.paused)

	got, err := os.ReadFile(dstPath)
	require.NoError(t, err)
	assert.Equal(t, make([]byte, 32), got)
}

func TestMergeCommand_Arguments(t *testing.T) {
	app, out := newTestApp(t)
	session, _ := twoJobs(t)
	app.SetSession(session)

	assert.Error(t, run(t, out, []string{"merge", "src"}, NewMergeCommand(app)))
	assert.ErrorContains(t, run(t, out, []string{"merge", "src", "src"}, NewMergeCommand(app)), "given twice")
	assert.ErrorContains(t, run(t, out, []string{"merge", "src", "nope"}, NewMergeCommand(app)), "some pairs failed")
}

func TestHistoryCommand(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, run(t, out, []string{"history"}, NewHistoryCommand(app)))
	assert.Contains(t, out.String(), "no runs recorded")

	err := run(t, out, []string{"history", "unknown-run"}, NewHistoryCommand(app))
	assert.Error(t, err)

	out.Reset()
	require.NoError(t, run(t, out, []string{"history", "--delete", "unknown-run"}, NewHistoryCommand(app)))
	assert.Contains(t, out.String(), "deleted unknown-run")
}

func TestCorruptCommand(t *testing.T) {
	_, out := newTestApp(t)
	path := filepath.Join(t.TempDir(), "f.bin")
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0644))

	require.NoError(t, run(t, out, []string{"corrupt", path, "2", "3"}, NewCorruptCommand()))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("01\x00\x00\x0056789"), got)

	assert.Error(t, run(t, out, []string{"corrupt", path, "8", "3"}, NewCorruptCommand()))
	assert.Error(t, run(t, out, []string{"corrupt", path, "x", "3"}, NewCorruptCommand()))
	assert.Error(t, run(t, out, []string{"corrupt", filepath.Dir(path), "0", "1"}, NewCorruptCommand()))
}

func TestVersionCommand(t *testing.T) {
	app, out := newTestApp(t)

	require.NoError(t, run(t, out, []string{"version"}, NewVersionCommand(app)))
	assert.Equal(t, "qbmerge dev\n", out.String())
}

func TestSourceTracker(t *testing.T) {
	tr := &sourceTracker{}
	assert.True(t, tr.changed(3))
	assert.False(t, tr.changed(3))
	assert.True(t, tr.changed(4))
}

func TestWatchRoots(t *testing.T) {
	staging, save := t.TempDir(), t.TempDir()
	log := slogdiscard.NewDiscardLogger()

	fw, err := watcher.NewFileWatcher(watcher.TriggerFunc(func(context.Context, string) error { return nil }),
		watcher.Config{Logger: log})
	require.NoError(t, err)
	defer fw.Close()

	// an incomplete job whose save path is not created yet
	props := torrent.Properties{StagingPath: staging, SavePath: filepath.Join(save, "later")}
	watchRoots(fw, log, props)
	assert.Equal(t, []string{staging}, fw.Roots())

	// qBittorrent moved the files after completion
	require.NoError(t, os.Mkdir(props.SavePath, 0755))
	watchRoots(fw, log, props)
	watchRoots(fw, log, props)
	assert.ElementsMatch(t, []string{staging, props.SavePath}, fw.Roots())
}

func TestAppContext_Init(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("env: prod\nledger:\n  path: /tmp/x.db\n"), 0644))

	var gotEnv string
	app := NewAppContext(func(env string) *slog.Logger {
		gotEnv = env
		return slogdiscard.NewDiscardLogger()
	})
	app.ConfigPath = path
	require.NoError(t, app.Init(context.Background()))
	assert.Equal(t, config.EnvProd, app.Config.Env)
	assert.Equal(t, "/tmp/x.db", app.Config.Ledger.Path)
	assert.Equal(t, config.EnvProd, gotEnv)
	assert.NoError(t, app.Close(context.Background()))

	app.ConfigPath = filepath.Join(t.TempDir(), "missing.yaml")
	assert.Error(t, app.Init(context.Background()))
}
