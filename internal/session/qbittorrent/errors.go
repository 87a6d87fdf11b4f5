package qbittorrent

import "errors"

var (
	ErrLoginFailed     = errors.New("qbittorrent login failed")
	ErrTorrentNotFound = errors.New("torrent not found")
	ErrUnexpectedReply = errors.New("unexpected qbittorrent reply")
)
