package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/mogiioin/hls-proxy/m3u8"
)

func rewriteCommand() *cli.Command {
	return &cli.Command{
		Name:      "rewrite",
		Usage:     "rewrite a playlist read from FILE or stdin",
		ArgsUsage: "[FILE]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "source", Aliases: []string{"s"}, Usage: "absolute URL the playlist was fetched from", Required: true},
			&cli.StringFlag{Name: "headers", Usage: "header token carried into every proxy URL"},
			&cli.StringFlag{Name: "origin", Aliases: []string{"o"}, Usage: "proxy origin prepended to rewritten URLs"},
			&cli.BoolFlag{Name: "renditions", Usage: "also rewrite EXT-X-MEDIA, EXT-X-MAP and EXT-X-SESSION-KEY URIs"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "print a summary to stderr"},
		},
		Action: rewrite,
	}
}

func rewrite(c *cli.Context) error {
	in := io.Reader(os.Stdin)
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return cli.Exit(err, 1)
		}
		defer f.Close()
		in = f
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return cli.Exit(err, 1)
	}

	ctx, err := m3u8.NewPlaylistContext(c.String("source"), c.String("headers"))
	if err != nil {
		return cli.Exit(err, 2)
	}
	rw := m3u8.NewRewriter(c.String("origin"))
	rw.RewriteRenditions = c.Bool("renditions")

	out, sum, err := rw.RewriteWithSummary(string(raw), ctx)
	if err != nil {
		return cli.Exit(err, 1)
	}
	if _, err := io.WriteString(c.App.Writer, out); err != nil {
		return err
	}
	if c.Bool("verbose") {
		printSummary(c.App.ErrWriter, sum)
	}
	return nil
}

func printSummary(w io.Writer, sum m3u8.Summary) {
	label := color.New(color.FgCyan)
	label.Fprintf(w, "%s playlist", sum.Type)
	color.New(color.FgGreen).Fprintf(w, " %d rewritten", sum.Rewritten())
	printCounts(w, sum)
	if sum.Unrecognized > 0 {
		color.New(color.FgYellow).Fprintf(w, " %d without a media extension", sum.Unrecognized)
	}
	fmt.Fprintln(w)
}

func printCounts(w io.Writer, sum m3u8.Summary) {
	for _, kind := range []m3u8.ReferenceKind{m3u8.VariantPlaylist, m3u8.MediaSegment, m3u8.EncryptionKeyURI, m3u8.IFrameStreamURI} {
		if n := sum.Count(kind); n > 0 {
			color.New(color.Faint).Fprintf(w, " %s=%d", kind, n)
		}
	}
}
