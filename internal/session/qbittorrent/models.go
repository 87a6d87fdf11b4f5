package qbittorrent

// properties is the subset of /torrents/properties the merger needs.
type properties struct {
	Name       string `json:"name"`
	SavePath   string `json:"save_path"`
	PieceSize  int64  `json:"piece_size"`
	PiecesNum  int    `json:"pieces_num"`
	PiecesHave int    `json:"pieces_have"`
}

type file struct {
	Index    int     `json:"index"`
	Name     string  `json:"name"`
	Size     int64   `json:"size"`
	Progress float64 `json:"progress"`
	Priority int     `json:"priority"`
}

type preferences struct {
	TempPathEnabled bool   `json:"temp_path_enabled"`
	TempPath        string `json:"temp_path"`
}
