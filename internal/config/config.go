// Package config holds the proxy configuration. Values come, lowest
// precedence first, from Default, an optional YAML file, HLSPROXY_*
// environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/mogiioin/hls-proxy/internal/headers"
)

// Config holds all configuration of the proxy service.
type Config struct {
	// Addr is the listen address of the HTTP server.
	Addr string `yaml:"addr"`
	// PublicURL is prepended to rewritten proxy URLs, e.g.
	// "https://proxy.example.com". Empty yields root-relative URLs.
	PublicURL string `yaml:"public_url"`
	// UpstreamTimeout bounds connecting to origins, waiting for response
	// headers and reading whole playlists.
	UpstreamTimeout time.Duration `yaml:"upstream_timeout"`
	// ShutdownTimeout bounds draining of in-flight requests on shutdown.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// FallbackURL is fetched once when a playlist body is empty. "{url}" is
	// replaced by the escaped playlist URL. Empty disables the fallback.
	FallbackURL string `yaml:"fallback_url"`
	// DefaultReferer is sent upstream unless the header token overrides it.
	// Empty sends the origin of the target.
	DefaultReferer string `yaml:"default_referer"`
	// UserAgent is sent upstream when the client sends none.
	UserAgent string `yaml:"user_agent"`
	// RewriteRenditions also rewrites EXT-X-MEDIA, EXT-X-MAP and
	// EXT-X-SESSION-KEY URIs.
	RewriteRenditions bool `yaml:"rewrite_renditions"`
	// BlockPrivate refuses upstream connections to private addresses.
	BlockPrivate bool `yaml:"block_private"`
	// MetricsEnabled exposes GET /metrics.
	MetricsEnabled bool   `yaml:"metrics_enabled"`
	LogLevel       string `yaml:"log_level"`
	LogFormat      string `yaml:"log_format"`
	SentryDSN      string `yaml:"sentry_dsn"`
	Environment    string `yaml:"environment"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Addr:            ":3000",
		UpstreamTimeout: 15 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		UserAgent:       headers.DefaultUserAgent,
		MetricsEnabled:  true,
		LogLevel:        "info",
		LogFormat:       "json",
		Environment:     "development",
	}
}

// LoadFile overlays the YAML file at path onto c. Keys absent from the file
// keep their current value.
func LoadFile(path string, c *Config) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks every value and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.PublicURL != "" && !isHTTPURL(c.PublicURL) {
		errs = append(errs, fmt.Errorf("public_url must be an absolute http or https URL, got %q", c.PublicURL))
	}
	if c.UpstreamTimeout <= 0 {
		errs = append(errs, fmt.Errorf("upstream_timeout must be positive, got %s", c.UpstreamTimeout))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("shutdown_timeout must not be negative, got %s", c.ShutdownTimeout))
	}
	if c.FallbackURL != "" {
		if !strings.Contains(c.FallbackURL, "{url}") {
			errs = append(errs, fmt.Errorf("fallback_url must contain {url}, got %q", c.FallbackURL))
		} else if !isHTTPURL(strings.ReplaceAll(c.FallbackURL, "{url}", "x")) {
			errs = append(errs, fmt.Errorf("fallback_url must be an absolute http or https URL, got %q", c.FallbackURL))
		}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, fmt.Errorf("log_format must be json or text, got %q", c.LogFormat))
	}
	return errors.Join(errs...)
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
