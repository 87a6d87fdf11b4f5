// Package qbittorrent talks to a qBittorrent instance over Web API v2 and
// exposes the jobs it holds to the merger.
package qbittorrent

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"qbmerge/internal/torrent"
)

const (
	apiPrefix      = "/api/v2"
	defaultTimeout = 30 * time.Second
)

type Config struct {
	URL      string
	Username string
	Password string
	Timeout  time.Duration
	Logger   *slog.Logger
}

type Client struct {
	baseURL    string
	username   string
	password   string
	httpClient *http.Client
	log        *slog.Logger
}

func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = "http://localhost:8080"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	return &Client{
		baseURL:  strings.TrimSuffix(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Jar:       jar,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		log: cfg.Logger,
	}, nil
}

// Login opens a session; the SID cookie is kept in the client's jar.
func (c *Client) Login(ctx context.Context) error {
	const op = "qbittorrent.Login"
	log := c.log.With(slog.String("op", op))

	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	body, status, err := c.do(ctx, http.MethodPost, "/auth/login", form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK || strings.TrimSpace(string(body)) != "Ok." {
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrLoginFailed, status, strings.TrimSpace(string(body)))
	}

	log.Debug("logged in", slog.String("url", c.baseURL))
	return nil
}

func (c *Client) Version(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/app/version", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

// PieceDigests returns the hex-decoded piece hashes of a torrent.
func (c *Client) PieceDigests(ctx context.Context, id string) ([]torrent.Digest, error) {
	var hashes []string
	if err := c.getJSON(ctx, "/torrents/pieceHashes", hashQuery(id), &hashes); err != nil {
		return nil, err
	}

	digests := make([]torrent.Digest, len(hashes))
	for i, h := range hashes {
		d, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("%w: piece %d hash %q: %v", ErrUnexpectedReply, i, h, err)
		}
		digests[i] = d
	}
	return digests, nil
}

func (c *Client) PieceStates(ctx context.Context, id string) ([]torrent.PieceState, error) {
	var raw []int
	if err := c.getJSON(ctx, "/torrents/pieceStates", hashQuery(id), &raw); err != nil {
		return nil, err
	}

	states := make([]torrent.PieceState, len(raw))
	for i, s := range raw {
		states[i] = torrent.PieceState(s)
	}
	return states, nil
}

// Properties combines the torrent's properties with the client-wide
// incomplete-download directory, which is where an unfinished torrent keeps
// its files when it is enabled.
func (c *Client) Properties(ctx context.Context, id string) (torrent.Properties, error) {
	var p properties
	if err := c.getJSON(ctx, "/torrents/properties", hashQuery(id), &p); err != nil {
		return torrent.Properties{}, err
	}

	var prefs preferences
	if err := c.getJSON(ctx, "/app/preferences", nil, &prefs); err != nil {
		return torrent.Properties{}, err
	}

	staging := p.SavePath
	if prefs.TempPathEnabled && prefs.TempPath != "" {
		staging = prefs.TempPath
	}

	return torrent.Properties{
		Name:        p.Name,
		PieceSize:   p.PieceSize,
		PiecesNum:   p.PiecesNum,
		PiecesHave:  p.PiecesHave,
		SavePath:    p.SavePath,
		StagingPath: staging,
	}, nil
}

// Contents lists the torrent's files in their torrent order.
func (c *Client) Contents(ctx context.Context, id string) ([]torrent.FileEntry, error) {
	var files []file
	if err := c.getJSON(ctx, "/torrents/files", hashQuery(id), &files); err != nil {
		return nil, err
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Index < files[j].Index })

	entries := make([]torrent.FileEntry, len(files))
	for i, f := range files {
		entries[i] = torrent.FileEntry{Name: f.Name, Size: f.Size}
	}
	return entries, nil
}

// Pause stops the torrent. Pausing a paused torrent is a no-op. Servers that
// renamed the endpoint to stop are handled transparently.
func (c *Client) Pause(ctx context.Context, id string) error {
	const op = "qbittorrent.Pause"
	log := c.log.With(slog.String("op", op), slog.String("hash", id))

	form := url.Values{"hashes": {id}}
	_, status, err := c.do(ctx, http.MethodPost, "/torrents/pause", form)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusNotFound {
		log.Debug("pause endpoint missing, using stop")
		if err := c.post(ctx, "/torrents/stop", form); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: %w: status %d", op, ErrUnexpectedReply, status)
	}
	return nil
}

// Recheck asks the client to verify every piece of the torrent again.
func (c *Client) Recheck(ctx context.Context, id string) error {
	return c.post(ctx, "/torrents/recheck", url.Values{"hashes": {id}})
}

func hashQuery(id string) url.Values {
	return url.Values{"hash": {id}}
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	body, status, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if err := checkStatus(path, query, status, body); err != nil {
		return nil, err
	}
	return body, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	body, err := c.get(ctx, path, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, form url.Values) error {
	body, status, err := c.do(ctx, http.MethodPost, path, form)
	if err != nil {
		return err
	}
	return checkStatus(path, form, status, body)
}

func checkStatus(path string, params url.Values, status int, body []byte) error {
	switch status {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrTorrentNotFound, params.Get("hash")+params.Get("hashes"))
	case http.StatusForbidden:
		return fmt.Errorf("%w: %s: forbidden, login required", ErrLoginFailed, path)
	default:
		return fmt.Errorf("%w: %s: status %d: %s", ErrUnexpectedReply, path, status, strings.TrimSpace(string(body)))
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values) ([]byte, int, error) {
	var payload io.Reader
	if form != nil {
		payload = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+apiPrefix+endpoint, payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	// qBittorrent rejects requests whose Referer does not match its host.
	req.Header.Set("Referer", c.baseURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%s request failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read %s reply: %w", endpoint, err)
	}
	return body, resp.StatusCode, nil
}
