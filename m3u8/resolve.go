package m3u8

/*
 This file defines functions related to URI resolution.
*/

import (
	"fmt"
	"net/url"
	"strings"
)

// NewPlaylistContext derives the resolution frame for a playlist fetched
// from source. token is the raw header token to propagate.
func NewPlaylistContext(source, token string) (PlaylistContext, error) {
	u, err := url.Parse(source)
	if err != nil {
		return PlaylistContext{}, fmt.Errorf("%w: %v", ErrInvalidSourceURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return PlaylistContext{}, fmt.Errorf("%w: %q is not absolute", ErrInvalidSourceURL, source)
	}
	origin := u.Scheme + "://" + u.Host

	// The directory is taken from the text before any query or fragment,
	// so a "/" inside a query value does not move it.
	path := source
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	basePath := origin + "/"
	if i := strings.LastIndexByte(path, '/'); i >= len(u.Scheme)+3+len(u.Host) {
		basePath = path[:i+1]
	}

	return PlaylistContext{
		BaseOrigin:  origin,
		BasePath:    basePath,
		HeaderToken: token,
	}, nil
}

// Resolve returns the absolute URL designated by ref within ctx.
// Absolute references are returned unchanged, root-relative ones are joined
// to the origin and everything else to the directory of the playlist.
// Dot segments are not collapsed and queries are not merged.
func Resolve(ctx PlaylistContext, ref string) string {
	switch {
	case hasScheme(ref):
		return ref
	case strings.HasPrefix(ref, "//"):
		// network-path reference keeps the playlist's scheme
		if i := strings.Index(ctx.BaseOrigin, "//"); i > 0 {
			return ctx.BaseOrigin[:i] + ref
		}
		return "https:" + ref
	case strings.HasPrefix(ref, "/"):
		return ctx.BaseOrigin + ref
	}
	return ctx.BasePath + ref
}

// hasScheme reports whether ref starts with an RFC 3986 scheme and ":".
func hasScheme(ref string) bool {
	for i := 0; i < len(ref); i++ {
		c := ref[i]
		switch {
		case 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z':
		case '0' <= c && c <= '9' || c == '+' || c == '-' || c == '.':
			if i == 0 {
				return false
			}
		case c == ':':
			return i > 0
		default:
			return false
		}
	}
	return false
}

// isFetchable reports whether the proxy can fetch u.
func isFetchable(u string) bool {
	return hasPrefixFold(u, "http://") || hasPrefixFold(u, "https://")
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
