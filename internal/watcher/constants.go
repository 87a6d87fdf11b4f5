package watcher

import (
	"time"

	"github.com/fsnotify/fsnotify"
)

const (
	DefaultDebounceDuration = 5 * time.Second
	DefaultBufferSize       = 100
)

var (
	// events that can change the bytes of a job's files
	WatchedEvents = fsnotify.Create | fsnotify.Write | fsnotify.Rename

	// qBittorrent part files and editor leftovers
	IgnoredPatterns = []string{
		".!qB",
		".parts",
		"~",
	}
)
