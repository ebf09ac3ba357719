package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/mogiioin/hls-proxy/internal/config"
	"github.com/mogiioin/hls-proxy/internal/logging"
	"github.com/mogiioin/hls-proxy/internal/proxy"
	"github.com/mogiioin/hls-proxy/internal/shutdown"
	"github.com/mogiioin/hls-proxy/internal/telemetry"
	"github.com/mogiioin/hls-proxy/internal/upstream"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "run the proxy HTTP server",
		Flags:  config.Flags(),
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	cfg, err := config.Load(c)
	if err != nil {
		return cli.Exit(err, 2)
	}

	log := logging.NewLogger(proxy.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err := telemetry.Init(cfg.SentryDSN, proxy.ServiceName, cfg.Environment, version); err != nil {
		log.WithError(err).Warn("sentry disabled")
	}
	defer telemetry.Flush()

	client := upstream.New(upstream.Options{
		Timeout:      cfg.UpstreamTimeout,
		FallbackURL:  cfg.FallbackURL,
		BlockPrivate: cfg.BlockPrivate,
	}, log)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           proxy.NewServer(cfg, client, log).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithField("public_url", cfg.PublicURL).
		WithField("rewrite_renditions", cfg.RewriteRenditions).
		WithField("block_private", cfg.BlockPrivate).
		Info("configuration loaded")
	return shutdown.Serve(ctx, srv, cfg.ShutdownTimeout, log)
}
