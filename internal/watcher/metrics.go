package watcher

import (
	"sync"
	"sync/atomic"
	"time"
)

type WatcherMetrics struct {
	eventsProcessed int64
	eventsIgnored   int64
	triggers        int64
	queued          int64
	errors          int64
	dirsWatched     int64

	mu            sync.Mutex
	lastEventTime time.Time
}

func NewWatcherMetrics() *WatcherMetrics {
	return &WatcherMetrics{}
}

func (m *WatcherMetrics) RecordEvent() {
	atomic.AddInt64(&m.eventsProcessed, 1)
	m.mu.Lock()
	m.lastEventTime = time.Now()
	m.mu.Unlock()
}

func (m *WatcherMetrics) RecordIgnored() {
	atomic.AddInt64(&m.eventsIgnored, 1)
}

func (m *WatcherMetrics) RecordTrigger() {
	atomic.AddInt64(&m.triggers, 1)
}

// RecordQueued counts triggers deferred because another run was in progress.
func (m *WatcherMetrics) RecordQueued() {
	atomic.AddInt64(&m.queued, 1)
}

func (m *WatcherMetrics) RecordError() {
	atomic.AddInt64(&m.errors, 1)
}

func (m *WatcherMetrics) RecordDirectoryAdded() {
	atomic.AddInt64(&m.dirsWatched, 1)
}

func (m *WatcherMetrics) GetStats() map[string]interface{} {
	m.mu.Lock()
	last := m.lastEventTime
	m.mu.Unlock()

	return map[string]interface{}{
		"events_processed": atomic.LoadInt64(&m.eventsProcessed),
		"events_ignored":   atomic.LoadInt64(&m.eventsIgnored),
		"triggers":         atomic.LoadInt64(&m.triggers),
		"queued":           atomic.LoadInt64(&m.queued),
		"errors":           atomic.LoadInt64(&m.errors),
		"dirs_watched":     atomic.LoadInt64(&m.dirsWatched),
		"last_event_time":  last,
	}
}
