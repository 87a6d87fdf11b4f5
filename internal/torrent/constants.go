package torrent

const (
	KiB = 1 << 10
	MiB = 1 << 20

	SHA1Size   = 20
	SHA256Size = 32
)
