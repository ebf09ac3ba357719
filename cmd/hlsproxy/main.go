// Command hlsproxy serves HLS playlists, segments and keys through a
// rewriting proxy, and rewrites single playlists offline.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// A missing .env file is normal outside development.
	_ = godotenv.Load()

	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "hlsproxy",
		Usage:   "HLS playlist rewriting proxy",
		Version: version,
		Commands: []*cli.Command{
			serveCommand(),
			rewriteCommand(),
		},
	}
}
