package m3u8

/*
 This file defines data structures related to package.
*/

import (
	"errors"
)

var ErrEmptyContent = errors.New("empty M3U8 content")
var ErrInvalidSourceURL = errors.New("invalid playlist source URL")

// ContentType is the media type every rewritten playlist is served with.
const ContentType = "application/vnd.apple.mpegurl"

// ListType is type of playlist.
type ListType uint

const (
	// use 0 for undefined type
	MASTER ListType = iota + 1
	MEDIA
)

func (t ListType) String() string {
	switch t {
	case MASTER:
		return "master"
	case MEDIA:
		return "media"
	}
	return "unknown"
}

// ReferenceKind classifies one line of a playlist by the URI it carries.
type ReferenceKind uint

const (
	Blank           ReferenceKind = iota // Blank is an empty or whitespace-only line
	OpaqueTag                            // OpaqueTag is a tag or comment passed through unchanged
	VariantPlaylist                      // VariantPlaylist is a URI line pointing to another playlist
	IFrameStreamURI                      // IFrameStreamURI is the URI attribute of EXT-X-I-FRAME-STREAM-INF
	EncryptionKeyURI                     // EncryptionKeyURI is the URI attribute of EXT-X-KEY
	MediaSegment                         // MediaSegment is a URI line pointing to media or subtitles
)

func (k ReferenceKind) String() string {
	switch k {
	case Blank:
		return "blank"
	case OpaqueTag:
		return "opaque_tag"
	case VariantPlaylist:
		return "variant_playlist"
	case IFrameStreamURI:
		return "iframe_stream_uri"
	case EncryptionKeyURI:
		return "encryption_key_uri"
	case MediaSegment:
		return "media_segment"
	}
	return "unknown"
}

// Route is a path on the proxy's own origin that serves one kind of resource.
type Route string

const (
	RouteM3U8    Route = "/proxy/m3u8"    // RouteM3U8 fetches and rewrites a playlist
	RouteSegment Route = "/proxy/segment" // RouteSegment relays media bytes
	RouteKey     Route = "/proxy/key"     // RouteKey relays key bytes
)

// PlaylistContext is the resolution frame of one rewrite pass.
// BasePath always ends in "/", BaseOrigin never does.
type PlaylistContext struct {
	BaseOrigin  string // scheme://host[:port] of the playlist source
	BasePath    string // source URL up to and including the last "/" of its path
	HeaderToken string // raw header token, copied verbatim onto every proxy URL
}

// Reference is one classified line of a playlist. For tag lines carrying a
// URI attribute, Start and End delimit the attribute value within Line.
type Reference struct {
	Kind  ReferenceKind
	Line  string // trimmed source line
	Raw   string // URI text as written in the playlist
	URL   string // absolute URL, empty for Blank and OpaqueTag
	Route Route  // proxy route the URL is re-targeted to
	Start int
	End   int
}

// Rewrites reports whether the reference is re-targeted through the proxy.
func (r Reference) Rewrites() bool {
	return r.Route != ""
}

// Summary describes what a rewrite pass saw. It does not affect the output.
type Summary struct {
	Type         ListType
	Lines        int
	References   map[ReferenceKind]int
	Unrecognized int // segments routed to the segment relay without a known media extension
}

// Count returns the number of lines of the given kind.
func (s Summary) Count(kind ReferenceKind) int {
	return s.References[kind]
}

// Rewritten returns the number of URIs that were re-targeted.
func (s Summary) Rewritten() int {
	return s.Count(VariantPlaylist) + s.Count(IFrameStreamURI) +
		s.Count(EncryptionKeyURI) + s.Count(MediaSegment)
}

// Rewriter turns upstream playlists into playlists whose URIs point back at
// the proxy. The zero value emits root-relative proxy URLs.
type Rewriter struct {
	// Origin is prepended to every proxy route, e.g. "https://proxy.example.com".
	// Leave empty to emit root-relative URLs.
	Origin string
	// RewriteRenditions also re-targets URI attributes of EXT-X-MEDIA,
	// EXT-X-MAP and EXT-X-SESSION-KEY.
	RewriteRenditions bool
}
