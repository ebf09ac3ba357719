package config

import (
	"time"

	"github.com/urfave/cli/v2"
)

// FlagConfigFile names the YAML config file flag.
const FlagConfigFile = "config"

// FlagSource is the part of *cli.Context that Apply reads.
type FlagSource interface {
	IsSet(name string) bool
	String(name string) string
	Bool(name string) bool
	Duration(name string) time.Duration
}

type binding struct {
	flag  cli.Flag
	apply func(src FlagSource, c *Config)
}

func bindings(d Config) []binding {
	return []binding{
		{
			flag:  &cli.StringFlag{Name: "addr", Usage: "listen address", Value: d.Addr, EnvVars: []string{"HLSPROXY_ADDR"}},
			apply: func(src FlagSource, c *Config) { c.Addr = src.String("addr") },
		},
		{
			flag:  &cli.StringFlag{Name: "public-url", Usage: "origin prepended to rewritten URLs", Value: d.PublicURL, EnvVars: []string{"HLSPROXY_PUBLIC_URL"}},
			apply: func(src FlagSource, c *Config) { c.PublicURL = src.String("public-url") },
		},
		{
			flag:  &cli.DurationFlag{Name: "upstream-timeout", Usage: "upstream connect and header timeout", Value: d.UpstreamTimeout, EnvVars: []string{"HLSPROXY_UPSTREAM_TIMEOUT"}},
			apply: func(src FlagSource, c *Config) { c.UpstreamTimeout = src.Duration("upstream-timeout") },
		},
		{
			flag:  &cli.DurationFlag{Name: "shutdown-timeout", Usage: "drain timeout on shutdown", Value: d.ShutdownTimeout, EnvVars: []string{"HLSPROXY_SHUTDOWN_TIMEOUT"}},
			apply: func(src FlagSource, c *Config) { c.ShutdownTimeout = src.Duration("shutdown-timeout") },
		},
		{
			flag:  &cli.StringFlag{Name: "fallback-url", Usage: "alternative fetch for empty playlists, {url} is replaced", Value: d.FallbackURL, EnvVars: []string{"HLSPROXY_FALLBACK_URL"}},
			apply: func(src FlagSource, c *Config) { c.FallbackURL = src.String("fallback-url") },
		},
		{
			flag:  &cli.StringFlag{Name: "default-referer", Usage: "Referer sent upstream, default is the target origin", Value: d.DefaultReferer, EnvVars: []string{"HLSPROXY_DEFAULT_REFERER"}},
			apply: func(src FlagSource, c *Config) { c.DefaultReferer = src.String("default-referer") },
		},
		{
			flag:  &cli.StringFlag{Name: "user-agent", Usage: "User-Agent sent upstream when the client sends none", Value: d.UserAgent, EnvVars: []string{"HLSPROXY_USER_AGENT"}},
			apply: func(src FlagSource, c *Config) { c.UserAgent = src.String("user-agent") },
		},
		{
			flag:  &cli.BoolFlag{Name: "rewrite-renditions", Usage: "also rewrite EXT-X-MEDIA, EXT-X-MAP and EXT-X-SESSION-KEY URIs", Value: d.RewriteRenditions, EnvVars: []string{"HLSPROXY_REWRITE_RENDITIONS"}},
			apply: func(src FlagSource, c *Config) { c.RewriteRenditions = src.Bool("rewrite-renditions") },
		},
		{
			flag:  &cli.BoolFlag{Name: "block-private", Usage: "refuse upstream connections to private addresses", Value: d.BlockPrivate, EnvVars: []string{"HLSPROXY_BLOCK_PRIVATE"}},
			apply: func(src FlagSource, c *Config) { c.BlockPrivate = src.Bool("block-private") },
		},
		{
			flag:  &cli.BoolFlag{Name: "metrics", Usage: "expose GET /metrics", Value: d.MetricsEnabled, EnvVars: []string{"HLSPROXY_METRICS"}},
			apply: func(src FlagSource, c *Config) { c.MetricsEnabled = src.Bool("metrics") },
		},
		{
			flag:  &cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error", Value: d.LogLevel, EnvVars: []string{"HLSPROXY_LOG_LEVEL"}},
			apply: func(src FlagSource, c *Config) { c.LogLevel = src.String("log-level") },
		},
		{
			flag:  &cli.StringFlag{Name: "log-format", Usage: "json or text", Value: d.LogFormat, EnvVars: []string{"HLSPROXY_LOG_FORMAT"}},
			apply: func(src FlagSource, c *Config) { c.LogFormat = src.String("log-format") },
		},
		{
			flag:  &cli.StringFlag{Name: "sentry-dsn", Usage: "Sentry DSN, empty disables error reporting", Value: d.SentryDSN, EnvVars: []string{"HLSPROXY_SENTRY_DSN", "SENTRY_DSN"}},
			apply: func(src FlagSource, c *Config) { c.SentryDSN = src.String("sentry-dsn") },
		},
		{
			flag:  &cli.StringFlag{Name: "environment", Usage: "environment reported to Sentry", Value: d.Environment, EnvVars: []string{"HLSPROXY_ENV"}},
			apply: func(src FlagSource, c *Config) { c.Environment = src.String("environment") },
		},
	}
}

// Flags returns the command-line flags of every configuration key, plus
// the config file flag. Flag defaults are taken from Default.
func Flags() []cli.Flag {
	flags := []cli.Flag{
		&cli.StringFlag{Name: FlagConfigFile, Usage: "YAML config file", EnvVars: []string{"HLSPROXY_CONFIG"}},
	}
	for _, b := range bindings(Default()) {
		flags = append(flags, b.flag)
	}
	return flags
}

// Apply copies every flag that was set on the command line or through its
// environment variable onto c. Unset flags leave c untouched, so values
// loaded from a file survive.
func Apply(src FlagSource, c *Config) {
	for _, b := range bindings(Config{}) {
		if src.IsSet(b.flag.Names()[0]) {
			b.apply(src, c)
		}
	}
}

// Load builds the configuration of a command: defaults, then the config
// file when one is named, then flags and environment variables.
func Load(src FlagSource) (Config, error) {
	c := Default()
	if path := src.String(FlagConfigFile); path != "" {
		if err := LoadFile(path, &c); err != nil {
			return c, err
		}
	}
	Apply(src, &c)
	return c, c.Validate()
}
