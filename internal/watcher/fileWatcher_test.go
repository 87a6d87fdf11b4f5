package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"qbmerge/internal/util/logger/handlers/slogdiscard"
)

type MockTrigger struct {
	mock.Mock
}

func (m *MockTrigger) OnChange(ctx context.Context, root string) error {
	args := m.Called(root)
	return args.Error(0)
}

func testConfig(d time.Duration) Config {
	return Config{
		DebounceDuration: d,
		Logger:           slogdiscard.NewDiscardLogger(),
	}
}

func TestNewFileWatcher(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{
			name:   "Default configuration",
			config: Config{},
		},
		{
			name: "Custom configuration",
			config: Config{
				DebounceDuration: time.Second,
				BufferSize:       200,
				IgnorePatterns:   []string{".tmp"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw, err := NewFileWatcher(new(MockTrigger), tt.config)
			require.NoError(t, err)
			require.NotNil(t, fw)
			assert.NotNil(t, fw.watcher)
			assert.NotNil(t, fw.errors)
			assert.NotNil(t, fw.debouncer)
			assert.NotEmpty(t, fw.config.IgnorePatterns)

			assert.NoError(t, fw.Close())
			assert.ErrorIs(t, fw.Close(), ErrWatcherClosed)
		})
	}
}

func TestFileWatcher_Watch(t *testing.T) {
	tempDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tempDir, "sub"), 0755))
	testFile := filepath.Join(tempDir, "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0644))

	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{
			name: "Watch existing directory",
			path: tempDir,
		},
		{
			name:    "Watch file",
			path:    testFile,
			wantErr: ErrInvalidPath,
		},
		{
			name:    "Watch non-existent path",
			path:    "/non/existent/path",
			wantErr: ErrInvalidPath,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw, err := NewFileWatcher(new(MockTrigger), testConfig(0))
			require.NoError(t, err)
			defer fw.Close()

			err = fw.Watch(tt.path)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileWatcher_WatchTwice(t *testing.T) {
	tempDir := t.TempDir()
	fw, err := NewFileWatcher(new(MockTrigger), testConfig(0))
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, fw.Watch(tempDir))
	assert.ErrorIs(t, fw.Watch(tempDir), ErrPathAlreadyWatched)
	assert.EqualValues(t, 1, fw.Metrics().GetStats()["dirs_watched"])
}

func TestFileWatcher_CoalescesBurst(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "test.bin")
	require.NoError(t, os.WriteFile(testFile, []byte("test content"), 0644))

	trigger := new(MockTrigger)
	trigger.On("OnChange", tempDir).Return(nil)

	fw, err := NewFileWatcher(trigger, testConfig(100*time.Millisecond))
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, fw.Watch(tempDir))

	require.NoError(t, os.WriteFile(testFile, []byte("updated content"), 0644))
	newFile := filepath.Join(tempDir, "new.bin")
	require.NoError(t, os.WriteFile(newFile, []byte("new content"), 0644))
	require.NoError(t, os.Rename(newFile, filepath.Join(tempDir, "renamed.bin")))

	time.Sleep(400 * time.Millisecond)

	trigger.AssertNumberOfCalls(t, "OnChange", 1)
}

func TestFileWatcher_TriggerError(t *testing.T) {
	tempDir := t.TempDir()

	trigger := new(MockTrigger)
	trigger.On("OnChange", tempDir).Return(errors.New("session gone"))

	fw, err := NewFileWatcher(trigger, testConfig(50*time.Millisecond))
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, fw.Watch(tempDir))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "f.bin"), []byte("x"), 0644))

	select {
	case err := <-fw.Errors():
		assert.ErrorContains(t, err, "session gone")
	case <-time.After(2 * time.Second):
		t.Fatal("no error reported")
	}
}

func TestFileWatcher_CloseCancelsTrigger(t *testing.T) {
	tempDir := t.TempDir()

	started := make(chan struct{})
	var (
		once      sync.Once
		cancelled atomic.Bool
	)
	trigger := TriggerFunc(func(ctx context.Context, root string) error {
		once.Do(func() { close(started) })
		<-ctx.Done()
		cancelled.Store(true)
		return ctx.Err()
	})

	fw, err := NewFileWatcher(trigger, testConfig(20*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, fw.Watch(tempDir))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "f.bin"), []byte("x"), 0644))

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run")
	}

	require.NoError(t, fw.Close())
	assert.True(t, cancelled.Load())
}

func TestDebouncer(t *testing.T) {
	debouncer := NewDebouncer(100 * time.Millisecond)
	var counter atomic.Int32

	for i := 0; i < 5; i++ {
		debouncer.Debounce("test", func() { counter.Add(1) })
		time.Sleep(10 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)

	assert.EqualValues(t, 1, counter.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	debouncer := NewDebouncer(50 * time.Millisecond)
	var counter atomic.Int32

	debouncer.Debounce("a", func() { counter.Add(1) })
	debouncer.Debounce("b", func() { counter.Add(1) })
	debouncer.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, counter.Load())
}

func TestFileWatcher_IgnorePatterns(t *testing.T) {
	fw, err := NewFileWatcher(new(MockTrigger), Config{
		IgnorePatterns: []string{".!qB", "~"},
		Logger:         slogdiscard.NewDiscardLogger(),
	})
	require.NoError(t, err)
	defer fw.Close()

	assert.False(t, fw.shouldProcessEvent(fsnotify.Event{
		Name: "movie.mkv.!qB",
		Op:   fsnotify.Write,
	}))
	assert.False(t, fw.shouldProcessEvent(fsnotify.Event{
		Name: "movie.mkv",
		Op:   fsnotify.Chmod,
	}))
	assert.True(t, fw.shouldProcessEvent(fsnotify.Event{
		Name: "movie.mkv",
		Op:   fsnotify.Create,
	}))
}

func TestFileWatcher_RootOf(t *testing.T) {
	tempDir := t.TempDir()
	fw, err := NewFileWatcher(new(MockTrigger), testConfig(0))
	require.NoError(t, err)
	defer fw.Close()
	require.NoError(t, fw.Watch(tempDir))

	root, ok := fw.rootOf(filepath.Join(tempDir, "a", "b.bin"))
	assert.True(t, ok)
	assert.Equal(t, tempDir, root)

	_, ok = fw.rootOf(filepath.Join(filepath.Dir(tempDir), "elsewhere"))
	assert.False(t, ok)
}

type recordingTrigger struct {
	mu        sync.Mutex
	calls     []string
	active    int
	maxActive int
	block     chan struct{}
	started   chan struct{}
	delay     time.Duration
}

func (r *recordingTrigger) OnChange(ctx context.Context, root string) error {
	r.mu.Lock()
	r.calls = append(r.calls, root)
	r.active++
	r.maxActive = max(r.maxActive, r.active)
	first := len(r.calls) == 1
	r.mu.Unlock()

	if first && r.started != nil {
		close(r.started)
	}
	if first && r.block != nil {
		<-r.block
	}
	time.Sleep(r.delay)

	r.mu.Lock()
	r.active--
	r.mu.Unlock()
	return nil
}

func (r *recordingTrigger) snapshot() ([]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...), r.maxActive
}

func TestFileWatcher_QueuesWhileRunning(t *testing.T) {
	trigger := &recordingTrigger{block: make(chan struct{}), started: make(chan struct{})}
	fw, err := NewFileWatcher(trigger, testConfig(0))
	require.NoError(t, err)

	go fw.fire("a")
	select {
	case <-trigger.started:
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not run")
	}

	// all three return at once; "a" is queued only once
	fw.fire("a")
	fw.fire("b")
	fw.fire("a")
	close(trigger.block)

	assert.Eventually(t, func() bool {
		calls, _ := trigger.snapshot()
		return len(calls) == 3
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, fw.Close())

	calls, maxActive := trigger.snapshot()
	assert.Equal(t, []string{"a", "a", "b"}, calls)
	assert.Equal(t, 1, maxActive)
	assert.EqualValues(t, 2, fw.Metrics().GetStats()["queued"])
}

func TestFileWatcher_BurstDuringSlowTrigger(t *testing.T) {
	tempDir := t.TempDir()
	testFile := filepath.Join(tempDir, "x.bin")

	trigger := &recordingTrigger{delay: 400 * time.Millisecond}
	fw, err := NewFileWatcher(trigger, testConfig(30*time.Millisecond))
	require.NoError(t, err)
	require.NoError(t, fw.Watch(tempDir))

	require.NoError(t, os.WriteFile(testFile, []byte("one"), 0644))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(testFile, []byte("two"), 0644))
	time.Sleep(150 * time.Millisecond)
	require.NoError(t, os.WriteFile(testFile, []byte("three"), 0644))

	assert.Eventually(t, func() bool {
		calls, _ := trigger.snapshot()
		return len(calls) == 2
	}, 3*time.Second, 20*time.Millisecond)
	time.Sleep(500 * time.Millisecond)

	require.NoError(t, fw.Close())

	calls, maxActive := trigger.snapshot()
	assert.Len(t, calls, 2)
	assert.Equal(t, 1, maxActive)
}

func TestFileWatcher_FireAfterClose(t *testing.T) {
	trigger := new(MockTrigger)
	fw, err := NewFileWatcher(trigger, testConfig(0))
	require.NoError(t, err)
	require.NoError(t, fw.Close())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fw.fire("a")
		}()
	}
	wg.Wait()

	trigger.AssertNotCalled(t, "OnChange", mock.Anything)
}

func TestFileWatcher_Roots(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()
	fw, err := NewFileWatcher(new(MockTrigger), testConfig(0))
	require.NoError(t, err)
	defer fw.Close()

	require.NoError(t, fw.Watch(b))
	require.NoError(t, fw.Watch(a))

	want := []string{a, b}
	slices.Sort(want)
	assert.Equal(t, want, fw.Roots())
}
