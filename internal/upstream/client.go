// Package upstream fetches playlists, segments and keys from origin servers.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/metrics"
	"github.com/mogiioin/hls-proxy/m3u8"
)

// DefaultMaxManifestSize bounds the playlist body read into memory.
const DefaultMaxManifestSize = 32 << 20

var (
	ErrInvalidTarget    = errors.New("target must be an absolute http or https URL")
	ErrPrivateTarget    = errors.New("target resolves to a private address")
	ErrFallbackFailed   = errors.New("alternative fetch failed")
	ErrManifestTooLarge = errors.New("manifest too large")
	ErrStalled          = errors.New("upstream stopped sending data")
)

// StatusError is returned when the origin answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string // e.g. "404 Not Found"
}

func (e *StatusError) Error() string {
	return "upstream responded " + e.Status
}

// Options configures a Client.
type Options struct {
	// Timeout bounds connecting and waiting for response headers. Manifest
	// fetches are additionally bounded by it as a whole.
	Timeout time.Duration
	// FallbackURL is tried once when a manifest body is empty. "{url}" is
	// replaced by the query-escaped target. Empty disables the fallback.
	FallbackURL string
	// BlockPrivate refuses to connect to loopback, private and link-local
	// addresses.
	BlockPrivate bool
	// MaxManifestSize bounds manifest bodies. Zero means DefaultMaxManifestSize.
	MaxManifestSize int64
}

// Client performs upstream requests. It is safe for concurrent use.
type Client struct {
	http *http.Client
	opts Options
	log  *logrus.Entry
}

// New creates a client with its own transport.
func New(opts Options, log *logrus.Entry) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxManifestSize <= 0 {
		opts.MaxManifestSize = DefaultMaxManifestSize
	}
	dialer := &net.Dialer{
		Timeout:   opts.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if opts.BlockPrivate {
		dialer.Control = refusePrivate
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.TLSHandshakeTimeout = opts.Timeout
	transport.ResponseHeaderTimeout = opts.Timeout

	return &Client{
		http: &http.Client{Transport: transport},
		opts: opts,
		log:  log,
	}
}

// ParseTarget validates a target URL taken from a request parameter.
func ParseTarget(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTarget, logging.Truncate(raw))
	}
	return u, nil
}

// Manifest is a downloaded playlist.
type Manifest struct {
	Body        string
	ContentType string // as declared by the origin
	Fallback    bool   // served by the fallback URL
}

// FetchManifest downloads a playlist body. An empty body triggers at most
// one fetch of the fallback URL; if that is empty as well the result is
// m3u8.ErrEmptyContent.
func (c *Client) FetchManifest(ctx context.Context, target string, header http.Header) (*Manifest, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
	defer cancel()

	m, err := c.fetchText(ctx, target, header)
	if err != nil {
		return nil, err
	}
	if m.Body != "" {
		return m, nil
	}
	if c.opts.FallbackURL == "" {
		return nil, m3u8.ErrEmptyContent
	}

	alt := strings.ReplaceAll(c.opts.FallbackURL, "{url}", url.QueryEscape(target))
	c.log.WithField("fallback", logging.Truncate(alt)).Info("empty manifest, trying alternative fetch")
	metrics.FallbackFetches.Inc()

	fallbackHeader := make(http.Header)
	fallbackHeader.Set("User-Agent", header.Get("User-Agent"))
	m, err = c.fetchText(ctx, alt, fallbackHeader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFallbackFailed, err)
	}
	if m.Body == "" {
		return nil, m3u8.ErrEmptyContent
	}
	m.Fallback = true
	return m, nil
}

// Open starts a streaming request for a relay. The caller must close the
// body of the returned response. Non-2xx responses are closed and reported
// as *StatusError. Once headers have arrived, the body fails with ErrStalled
// when the origin sends nothing for longer than the client timeout.
func (c *Client) Open(ctx context.Context, target string, header http.Header) (*http.Response, error) {
	ctx, cancel := context.WithCancelCause(ctx)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		cancel(nil)
		return nil, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if header != nil {
		req.Header = header
	}
	resp, err := c.http.Do(req)
	if err != nil {
		cancel(nil)
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		resp.Body.Close()
		cancel(nil)
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status}
	}
	resp.Body = newIdleBody(ctx, resp.Body, c.opts.Timeout, cancel)
	return resp, nil
}

func (c *Client) fetchText(ctx context.Context, target string, header http.Header) (*Manifest, error) {
	resp, err := c.Open(ctx, target, header)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	c.log.WithFields(logrus.Fields{
		"url":          logging.Truncate(target),
		"status":       resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
	}).Debug("manifest response")

	limit := c.opts.MaxManifestSize
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrManifestTooLarge, limit)
	}
	return &Manifest{Body: string(data), ContentType: resp.Header.Get("Content-Type")}, nil
}
